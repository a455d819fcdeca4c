package models

import "fmt"

// ChargeCallbackJob is queued by the STK callback endpoint.
type ChargeCallbackJob struct {
	ID       string      `json:"id"`
	Callback StkCallback `json:"callback"`
}

func NewChargeCallbackJob(cb StkCallback) *ChargeCallbackJob {
	result := cb.Body.StkCallback
	return &ChargeCallbackJob{
		ID:       fmt.Sprintf("stk:%s:%d", result.CheckoutRequestID, result.ResultCode),
		Callback: cb,
	}
}

// DisbursementCallbackJob is queued by the B2C result endpoint.
type DisbursementCallbackJob struct {
	ID       string      `json:"id"`
	Callback B2CCallback `json:"callback"`
}

func NewDisbursementCallbackJob(cb B2CCallback) *DisbursementCallbackJob {
	return &DisbursementCallbackJob{
		ID:       fmt.Sprintf("b2c:%s:%d", cb.Result.ConversationID, cb.Result.ResultCode),
		Callback: cb,
	}
}
