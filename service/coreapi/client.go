package coreapi

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/werachapchap/service-payments/service/utility"
)

const (
	tokenPath       = "/oauth/v1/generate?grant_type=client_credentials"
	stkPushPath     = "/mpesa/stkpush/v1/processrequest"
	stkQueryPath    = "/mpesa/stkpushquery/v1/query"
	b2cPaymentPath  = "/mpesa/b2c/v3/paymentrequest"
	responseCodeOK  = "0"
	tokenSafetySkew = time.Minute
)

// Client talks to the Safaricom Daraja API.
type Client struct {
	ConsumerKey    string
	ConsumerSecret string
	ShortCode      string
	Passkey        string
	CallbackURL    string

	B2CShortCode       string
	InitiatorName      string
	SecurityCredential string
	B2CResultURL       string
	B2CTimeoutURL      string

	HttpClient *http.Client
	Env        string
	Now        func() time.Time

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// New creates a Daraja client whose requests give up after timeout.
func New(env, consumerKey, consumerSecret string, timeout time.Duration) *Client {
	tr := &http.Transport{
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
		MaxIdleConns:    10,
		IdleConnTimeout: 30 * time.Second,
	}

	httpClient := &http.Client{
		Transport: tr,
		Timeout:   timeout,
	}

	return &Client{
		ConsumerKey:    consumerKey,
		ConsumerSecret: consumerSecret,
		HttpClient:     httpClient,
		Env:            strings.TrimRight(env, "/"),
	}
}

// BearerTokenResponse is the OAuth answer; Daraja sends expires_in as a string.
type BearerTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   string `json:"expires_in"`
}

func (c *Client) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// GenerateBearerToken fetches a fresh OAuth token.
func (c *Client) GenerateBearerToken(ctx context.Context) (*BearerTokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.Env+tokenPath, nil)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.ConsumerKey, c.ConsumerSecret)

	resp, err := c.HttpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Op: "generate token", Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Op: "generate token", Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		err = fmt.Errorf("failed to generate token: %s, body: %s", resp.Status, string(respBody))
		if ambiguousStatus(resp.StatusCode) {
			return nil, &TransportError{Op: "generate token", Err: err}
		}
		return nil, err
	}

	var tokenResponse BearerTokenResponse
	if err := json.Unmarshal(respBody, &tokenResponse); err != nil {
		return nil, err
	}
	return &tokenResponse, nil
}

func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	tokenResponse, err := c.GenerateBearerToken(ctx)
	if err != nil {
		return "", err
	}

	expiresIn, err := strconv.Atoi(tokenResponse.ExpiresIn)
	if err != nil || expiresIn <= 0 {
		expiresIn = 3599
	}
	c.token = tokenResponse.AccessToken
	c.tokenExpiry = c.now().Add(time.Duration(expiresIn)*time.Second - tokenSafetySkew)
	return c.token, nil
}

// post sends an authorised JSON request. A *TransportError means the outcome
// is unknown; an *APIError means the provider refused the request.
func (c *Client) post(ctx context.Context, op, path string, payload, out any) error {
	token, err := c.accessToken(ctx)
	if err != nil {
		return err
	}

	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Env+path, bytes.NewBuffer(jsonBody))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.HttpClient.Do(req)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if jsonErr := json.Unmarshal(respBody, apiErr); jsonErr != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(respBody))
		}
		if ambiguousStatus(resp.StatusCode) {
			return &TransportError{Op: op, Err: apiErr}
		}
		return apiErr
	}

	// An unreadable 200 does not tell us whether the request was accepted.
	if err := json.Unmarshal(respBody, out); err != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

type stkPushRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

type stkPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

// InitiateCharge sends an STK push prompting the payer to authorise a charge.
func (c *Client) InitiateCharge(ctx context.Context, request ChargeRequest) (*Result, error) {
	timestamp := Timestamp(c.now())
	payload := stkPushRequest{
		BusinessShortCode: c.ShortCode,
		Password:          Password(c.ShortCode, c.Passkey, timestamp),
		Timestamp:         timestamp,
		TransactionType:   "CustomerPayBillOnline",
		Amount:            utility.ChargeUnits(request.Amount),
		PartyA:            request.Phone,
		PartyB:            c.ShortCode,
		PhoneNumber:       request.Phone,
		CallBackURL:       c.CallbackURL,
		AccountReference:  request.Reference,
		TransactionDesc:   request.Description,
	}

	var response stkPushResponse
	err := c.post(ctx, "stk push", stkPushPath, payload, &response)
	if err != nil {
		return rejectionOrError(err)
	}

	return &Result{
		Success:             response.ResponseCode == responseCodeOK,
		CheckoutID:          response.CheckoutRequestID,
		MerchantID:          response.MerchantRequestID,
		ResponseCode:        response.ResponseCode,
		ResponseDescription: response.ResponseDescription,
		Error:               errorText(response.ResponseCode, response.ResponseDescription),
	}, nil
}

type stkQueryRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
}

type stkQueryResponse struct {
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResultCode          string `json:"ResultCode"`
	ResultDesc          string `json:"ResultDesc"`
}

// QueryCharge asks the provider for the outcome of an earlier STK push.
func (c *Client) QueryCharge(ctx context.Context, checkoutRequestID string) (*QueryResult, error) {
	timestamp := Timestamp(c.now())
	payload := stkQueryRequest{
		BusinessShortCode: c.ShortCode,
		Password:          Password(c.ShortCode, c.Passkey, timestamp),
		Timestamp:         timestamp,
		CheckoutRequestID: checkoutRequestID,
	}

	var response stkQueryResponse
	err := c.post(ctx, "stk query", stkQueryPath, payload, &response)
	if err != nil {
		if isProcessing(err) {
			return &QueryResult{Pending: true, ResultDesc: "The transaction is being processed"}, nil
		}
		return nil, err
	}

	if response.ResponseCode != responseCodeOK || response.ResultCode == "" {
		return &QueryResult{Pending: true, ResultDesc: response.ResponseDescription}, nil
	}

	resultCode, err := strconv.Atoi(strings.TrimSpace(response.ResultCode))
	if err != nil {
		return nil, fmt.Errorf("stk query: unexpected result code %q", response.ResultCode)
	}
	return &QueryResult{ResultCode: resultCode, ResultDesc: response.ResultDesc}, nil
}

type b2cRequest struct {
	OriginatorConversationID string `json:"OriginatorConversationID"`
	InitiatorName            string `json:"InitiatorName"`
	SecurityCredential       string `json:"SecurityCredential"`
	CommandID                string `json:"CommandID"`
	Amount                   int64  `json:"Amount"`
	PartyA                   string `json:"PartyA"`
	PartyB                   string `json:"PartyB"`
	Remarks                  string `json:"Remarks"`
	QueueTimeOutURL          string `json:"QueueTimeOutURL"`
	ResultURL                string `json:"ResultURL"`
	Occasion                 string `json:"Occasion"`
}

type b2cResponse struct {
	ConversationID           string `json:"ConversationID"`
	OriginatorConversationID string `json:"OriginatorConversationID"`
	ResponseCode             string `json:"ResponseCode"`
	ResponseDescription      string `json:"ResponseDescription"`
}

// InitiateDisbursement sends a B2C business payment to the runner's phone.
func (c *Client) InitiateDisbursement(ctx context.Context, request DisbursementRequest) (*Result, error) {
	remarks := request.Remarks
	if remarks == "" {
		remarks = "Runner payout"
	}
	payload := b2cRequest{
		OriginatorConversationID: request.Reference,
		InitiatorName:            c.InitiatorName,
		SecurityCredential:       c.SecurityCredential,
		CommandID:                "BusinessPayment",
		Amount:                   utility.PayoutUnits(request.Amount),
		PartyA:                   c.B2CShortCode,
		PartyB:                   request.Phone,
		Remarks:                  remarks,
		QueueTimeOutURL:          c.B2CTimeoutURL,
		ResultURL:                c.B2CResultURL,
		Occasion:                 request.Reference,
	}

	var response b2cResponse
	err := c.post(ctx, "b2c payment", b2cPaymentPath, payload, &response)
	if err != nil {
		return rejectionOrError(err)
	}

	return &Result{
		Success:             response.ResponseCode == responseCodeOK,
		ConversationID:      response.ConversationID,
		OriginatorID:        response.OriginatorConversationID,
		ResponseCode:        response.ResponseCode,
		ResponseDescription: response.ResponseDescription,
		Error:               errorText(response.ResponseCode, response.ResponseDescription),
	}, nil
}

// rejectionOrError turns a provider refusal into an unsuccessful Result and
// passes everything else through as an error.
func rejectionOrError(err error) (*Result, error) {
	if IsTransportError(err) {
		return nil, err
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return &Result{
			Success:             false,
			ResponseCode:        apiErr.Code,
			ResponseDescription: apiErr.Message,
			Error:               apiErr.Message,
		}, nil
	}
	return nil, err
}

func errorText(code, description string) string {
	if code == responseCodeOK {
		return ""
	}
	if description == "" {
		return "provider declined the request"
	}
	return description
}
