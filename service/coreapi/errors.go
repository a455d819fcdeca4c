package coreapi

import (
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// errorCodeProcessing is returned by the STK query while the payer has not answered.
const errorCodeProcessing = "500.001.1001"

// APIError is the error body Daraja sends with non-200 answers.
type APIError struct {
	StatusCode int    `json:"-"`
	RequestID  string `json:"requestId"`
	Code       string `json:"errorCode"`
	Message    string `json:"errorMessage"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("daraja %d %s: %s", e.StatusCode, e.Code, e.Message)
}

// TransportError means the outcome of a request is unknown: the network
// failed, the call timed out, or the provider answered 5xx. The request may
// still have taken effect.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (e *TransportError) GRPCStatus() *status.Status {
	return status.New(codes.Unavailable, e.Error())
}

func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

func isProcessing(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == errorCodeProcessing
}

func ambiguousStatus(code int) bool {
	return code >= http.StatusInternalServerError || code == http.StatusTooManyRequests
}
