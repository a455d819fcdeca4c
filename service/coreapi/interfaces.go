package coreapi

import (
	"context"

	"github.com/shopspring/decimal"
)

//go:generate mockgen -source=interfaces.go -destination=mock_gateway.go -package=coreapi

// Gateway is the mobile-money provider as seen by the reconciliation core.
type Gateway interface {
	InitiateCharge(ctx context.Context, request ChargeRequest) (*Result, error)
	InitiateDisbursement(ctx context.Context, request DisbursementRequest) (*Result, error)
	QueryCharge(ctx context.Context, checkoutRequestID string) (*QueryResult, error)
}

type ChargeRequest struct {
	Phone       string
	Amount      decimal.Decimal
	Reference   string
	Description string
}

type DisbursementRequest struct {
	Phone     string
	Amount    decimal.Decimal
	Reference string
	Remarks   string
}

// Result is the normalised answer to an initiation request. Success=false
// with a nil error means the provider declined synchronously.
type Result struct {
	Success             bool
	CheckoutID          string
	MerchantID          string
	ConversationID      string
	OriginatorID        string
	ResponseCode        string
	ResponseDescription string
	Error               string
}

// QueryResult is the provider's view of an earlier charge. Pending means the
// provider has no final answer yet.
type QueryResult struct {
	Pending    bool
	ResultCode int
	ResultDesc string
}
