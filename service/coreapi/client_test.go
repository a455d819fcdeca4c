package coreapi

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)

// newTestClient points a client at a fake Daraja. The token endpoint is
// answered here; every other path goes to handler.
func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *atomic.Int32) {
	t.Helper()
	tokenCalls := &atomic.Int32{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/oauth/v1/generate" {
			tokenCalls.Add(1)
			user, pass, ok := r.BasicAuth()
			assert.True(t, ok)
			assert.Equal(t, "consumer-key", user)
			assert.Equal(t, "consumer-secret", pass)
			w.Header().Set("Content-Type", "application/json")
			_, err := w.Write([]byte(`{"access_token":"test-token","expires_in":"3599"}`))
			assert.NoError(t, err)
			return
		}
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	client := &Client{
		ConsumerKey:        "consumer-key",
		ConsumerSecret:     "consumer-secret",
		ShortCode:          "174379",
		Passkey:            "passkey",
		CallbackURL:        "https://example.com/mpesa/callback",
		B2CShortCode:       "600000",
		InitiatorName:      "testapi",
		SecurityCredential: "credential",
		B2CResultURL:       "https://example.com/mpesa/b2c/callback",
		B2CTimeoutURL:      "https://example.com/mpesa/timeout",
		HttpClient:         server.Client(),
		Env:                server.URL,
		Now:                func() time.Time { return fixedNow },
	}
	return client, tokenCalls
}

func writeJSON(t *testing.T, w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, err := w.Write([]byte(body))
	assert.NoError(t, err)
}

func TestGenerateBearerToken(t *testing.T) {
	tests := []struct {
		name           string
		responseStatus int
		responseBody   string
		expectError    bool
		expectTrans    bool
		expectedToken  *BearerTokenResponse
	}{
		{
			name:           "Success - 200 OK",
			responseStatus: http.StatusOK,
			responseBody:   `{"access_token":"abc","expires_in":"3599"}`,
			expectedToken:  &BearerTokenResponse{AccessToken: "abc", ExpiresIn: "3599"},
		},
		{
			name:           "Error - 400 Bad Request",
			responseStatus: http.StatusBadRequest,
			responseBody:   `{"errorCode":"400.008.01","errorMessage":"Invalid Authentication passed"}`,
			expectError:    true,
		},
		{
			name:           "Error - 503 Unavailable",
			responseStatus: http.StatusServiceUnavailable,
			responseBody:   `upstream down`,
			expectError:    true,
			expectTrans:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodGet, r.Method)
				assert.Equal(t, "client_credentials", r.URL.Query().Get("grant_type"))
				writeJSON(t, w, tt.responseStatus, tt.responseBody)
			}))
			defer server.Close()

			client := &Client{
				ConsumerKey:    "key",
				ConsumerSecret: "secret",
				HttpClient:     server.Client(),
				Env:            server.URL,
			}

			token, err := client.GenerateBearerToken(context.Background())
			if tt.expectError {
				assert.Error(t, err)
				assert.Nil(t, token)
				assert.Equal(t, tt.expectTrans, IsTransportError(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expectedToken, token)
		})
	}
}

func TestAccessTokenIsCached(t *testing.T) {
	client, tokenCalls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, `{"ResponseCode":"0","CheckoutRequestID":"ws_CO_1","MerchantRequestID":"m-1"}`)
	})

	for i := 0; i < 3; i++ {
		_, err := client.InitiateCharge(context.Background(), ChargeRequest{Phone: "254712345678", Amount: decimal.NewFromInt(10), Reference: "R"})
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), tokenCalls.Load())
}

func TestInitiateCharge(t *testing.T) {
	tests := []struct {
		name           string
		responseStatus int
		responseBody   string
		expectTrans    bool
		expected       *Result
	}{
		{
			name:           "Success - accepted for processing",
			responseStatus: http.StatusOK,
			responseBody:   `{"MerchantRequestID":"29115-34620561-1","CheckoutRequestID":"ws_CO_1","ResponseCode":"0","ResponseDescription":"Success. Request accepted for processing","CustomerMessage":"Success"}`,
			expected: &Result{
				Success:             true,
				CheckoutID:          "ws_CO_1",
				MerchantID:          "29115-34620561-1",
				ResponseCode:        "0",
				ResponseDescription: "Success. Request accepted for processing",
			},
		},
		{
			name:           "Rejected - 400 with daraja error body",
			responseStatus: http.StatusBadRequest,
			responseBody:   `{"requestId":"r-1","errorCode":"400.002.02","errorMessage":"Bad Request - Invalid PhoneNumber"}`,
			expected: &Result{
				Success:             false,
				ResponseCode:        "400.002.02",
				ResponseDescription: "Bad Request - Invalid PhoneNumber",
				Error:               "Bad Request - Invalid PhoneNumber",
			},
		},
		{
			name:           "Rejected - non zero response code",
			responseStatus: http.StatusOK,
			responseBody:   `{"ResponseCode":"1","ResponseDescription":"Duplicate request"}`,
			expected: &Result{
				Success:             false,
				ResponseCode:        "1",
				ResponseDescription: "Duplicate request",
				Error:               "Duplicate request",
			},
		},
		{
			name:           "Ambiguous - 500",
			responseStatus: http.StatusInternalServerError,
			responseBody:   `{"errorCode":"500.001.1001","errorMessage":"Internal error"}`,
			expectTrans:    true,
		},
		{
			name:           "Ambiguous - 200 with unreadable body",
			responseStatus: http.StatusOK,
			responseBody:   `<html>gateway</html>`,
			expectTrans:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "/mpesa/stkpush/v1/processrequest", r.URL.Path)

				var body map[string]any
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
				assert.Equal(t, "174379", body["BusinessShortCode"])
				assert.Equal(t, "20240301123000", body["Timestamp"])
				assert.Equal(t, Password("174379", "passkey", "20240301123000"), body["Password"])
				assert.Equal(t, float64(501), body["Amount"])
				assert.Equal(t, "254712345678", body["PhoneNumber"])
				assert.Equal(t, "WERA1234567890", body["AccountReference"])

				writeJSON(t, w, tt.responseStatus, tt.responseBody)
			})

			result, err := client.InitiateCharge(context.Background(), ChargeRequest{
				Phone:       "254712345678",
				Amount:      decimal.RequireFromString("500.40"),
				Reference:   "WERA1234567890",
				Description: "Task payment",
			})

			if tt.expectTrans {
				assert.Nil(t, result)
				assert.True(t, IsTransportError(err), "expected transport error, got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestInitiateChargeTimeout(t *testing.T) {
	release := make(chan struct{})
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	result, err := client.InitiateCharge(ctx, ChargeRequest{Phone: "254712345678", Amount: decimal.NewFromInt(500), Reference: "R"})
	assert.Nil(t, result)
	assert.True(t, IsTransportError(err))
}

func TestQueryCharge(t *testing.T) {
	tests := []struct {
		name           string
		responseStatus int
		responseBody   string
		expectError    bool
		expected       *QueryResult
	}{
		{
			name:           "Final - success",
			responseStatus: http.StatusOK,
			responseBody:   `{"ResponseCode":"0","ResponseDescription":"The service request has been accepted successsfully","CheckoutRequestID":"ws_CO_1","ResultCode":"0","ResultDesc":"The service request is processed successfully."}`,
			expected:       &QueryResult{ResultCode: 0, ResultDesc: "The service request is processed successfully."},
		},
		{
			name:           "Final - cancelled by user",
			responseStatus: http.StatusOK,
			responseBody:   `{"ResponseCode":"0","ResultCode":"1032","ResultDesc":"Request cancelled by user"}`,
			expected:       &QueryResult{ResultCode: 1032, ResultDesc: "Request cancelled by user"},
		},
		{
			name:           "Pending - still processing",
			responseStatus: http.StatusInternalServerError,
			responseBody:   `{"requestId":"r-2","errorCode":"500.001.1001","errorMessage":"The transaction is being processed"}`,
			expected:       &QueryResult{Pending: true, ResultDesc: "The transaction is being processed"},
		},
		{
			name:           "Error - upstream failure",
			responseStatus: http.StatusBadGateway,
			responseBody:   `bad gateway`,
			expectError:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/mpesa/stkpushquery/v1/query", r.URL.Path)
				var body map[string]any
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
				assert.Equal(t, "ws_CO_1", body["CheckoutRequestID"])
				writeJSON(t, w, tt.responseStatus, tt.responseBody)
			})

			result, err := client.QueryCharge(context.Background(), "ws_CO_1")
			if tt.expectError {
				assert.Error(t, err)
				assert.Nil(t, result)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestInitiateDisbursement(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/mpesa/b2c/v3/paymentrequest", r.URL.Path)

		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "WDR-0001", body["OriginatorConversationID"])
		assert.Equal(t, "testapi", body["InitiatorName"])
		assert.Equal(t, "credential", body["SecurityCredential"])
		assert.Equal(t, "BusinessPayment", body["CommandID"])
		assert.Equal(t, float64(299), body["Amount"])
		assert.Equal(t, "600000", body["PartyA"])
		assert.Equal(t, "254712345678", body["PartyB"])
		assert.Equal(t, "https://example.com/mpesa/b2c/callback", body["ResultURL"])

		writeJSON(t, w, http.StatusOK, `{"ConversationID":"AG_20230101_00001","OriginatorConversationID":"WDR-0001","ResponseCode":"0","ResponseDescription":"Accept the service request successfully."}`)
	})

	result, err := client.InitiateDisbursement(context.Background(), DisbursementRequest{
		Phone:     "254712345678",
		Amount:    decimal.RequireFromString("299.99"),
		Reference: "WDR-0001",
	})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "AG_20230101_00001", result.ConversationID)
	assert.Equal(t, "WDR-0001", result.OriginatorID)
	assert.Empty(t, result.Error)
}

func TestTimestampAndPassword(t *testing.T) {
	assert.Equal(t, "20240301123000", Timestamp(fixedNow))

	password := Password("174379", "passkey", "20240301123000")
	decoded, err := base64.StdEncoding.DecodeString(password)
	require.NoError(t, err)
	assert.Equal(t, "174379passkey20240301123000", string(decoded))
}

func TestSecurityCredential(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "daraja-test"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})

	certPath := filepath.Join(t.TempDir(), "cert.cer")
	require.NoError(t, os.WriteFile(certPath, certPEM, 0o600))

	credential, err := SecurityCredential("Safaricom999!*!", certPath)
	require.NoError(t, err)

	cipherText, err := base64.StdEncoding.DecodeString(credential)
	require.NoError(t, err)
	plain, err := rsa.DecryptPKCS1v15(rand.Reader, key, cipherText)
	require.NoError(t, err)
	assert.Equal(t, "Safaricom999!*!", string(plain))

	_, err = SecurityCredential("x", "")
	assert.Error(t, err)
	_, err = SecurityCredential("x", "../cert.cer")
	assert.Error(t, err)
	_, err = EncryptCredential("x", []byte("not a pem"))
	assert.Error(t, err)
}
