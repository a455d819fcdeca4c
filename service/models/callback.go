package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ResultCodeSuccess is the Daraja success sentinel for callbacks and queries.
const ResultCodeSuccess = 0

// StkCallback is the body Daraja posts to the STK push callback URL.
type StkCallback struct {
	Body struct {
		StkCallback StkCallbackResult `json:"stkCallback"`
	} `json:"Body"`
}

type StkCallbackResult struct {
	MerchantRequestID string           `json:"MerchantRequestID"`
	CheckoutRequestID string           `json:"CheckoutRequestID"`
	ResultCode        int              `json:"ResultCode"`
	ResultDesc        string           `json:"ResultDesc"`
	CallbackMetadata  CallbackMetadata `json:"CallbackMetadata"`
}

type CallbackMetadata struct {
	Item []CallbackItem `json:"Item"`
}

type CallbackItem struct {
	Name  string `json:"Name"`
	Value any    `json:"Value,omitempty"`
}

// Lookup returns the metadata value rendered as a string.
func (m CallbackMetadata) Lookup(name string) (string, bool) {
	for _, item := range m.Item {
		if !strings.EqualFold(item.Name, name) || item.Value == nil {
			continue
		}
		switch v := item.Value.(type) {
		case string:
			return v, true
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64), true
		case json.Number:
			return v.String(), true
		default:
			return fmt.Sprint(v), true
		}
	}
	return "", false
}

// ChargeOutcome is the provider verdict on a charge, whichever way it arrived.
type ChargeOutcome struct {
	CheckoutRequestID string
	MerchantRequestID string
	ResultCode        int
	ResultDesc        string
	Receipt           string
	Metadata          map[string]any
}

func (o ChargeOutcome) Succeeded() bool {
	return o.ResultCode == ResultCodeSuccess
}

func (c *StkCallback) Outcome() ChargeOutcome {
	result := c.Body.StkCallback
	outcome := ChargeOutcome{
		CheckoutRequestID: result.CheckoutRequestID,
		MerchantRequestID: result.MerchantRequestID,
		ResultCode:        result.ResultCode,
		ResultDesc:        result.ResultDesc,
	}
	if receipt, ok := result.CallbackMetadata.Lookup("MpesaReceiptNumber"); ok {
		outcome.Receipt = receipt
	}
	if len(result.CallbackMetadata.Item) > 0 {
		outcome.Metadata = make(map[string]any, len(result.CallbackMetadata.Item))
		for _, item := range result.CallbackMetadata.Item {
			if v, ok := result.CallbackMetadata.Lookup(item.Name); ok {
				outcome.Metadata[item.Name] = v
			}
		}
	}
	return outcome
}

// B2CCallback is the body Daraja posts to the B2C result URL.
type B2CCallback struct {
	Result B2CResult `json:"Result"`
}

type B2CResult struct {
	ResultType               int    `json:"ResultType"`
	ResultCode               int    `json:"ResultCode"`
	ResultDesc               string `json:"ResultDesc"`
	OriginatorConversationID string `json:"OriginatorConversationID"`
	ConversationID           string `json:"ConversationID"`
	TransactionID            string `json:"TransactionID"`
}

// DisbursementOutcome is the provider verdict on a B2C payout.
type DisbursementOutcome struct {
	ConversationID           string
	OriginatorConversationID string
	TransactionID            string
	ResultCode               int
	ResultDesc               string
}

func (o DisbursementOutcome) Succeeded() bool {
	return o.ResultCode == ResultCodeSuccess
}

func (c *B2CCallback) Outcome() DisbursementOutcome {
	return DisbursementOutcome{
		ConversationID:           c.Result.ConversationID,
		OriginatorConversationID: c.Result.OriginatorConversationID,
		TransactionID:            c.Result.TransactionID,
		ResultCode:               c.Result.ResultCode,
		ResultDesc:               c.Result.ResultDesc,
	}
}

// CallbackAck is the body every provider callback endpoint answers with.
type CallbackAck struct {
	ResultCode int    `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}

var (
	AckAccepted = CallbackAck{ResultCode: 0, ResultDesc: "Accepted"}
	AckFailed   = CallbackAck{ResultCode: 1, ResultDesc: "Failed"}
)
