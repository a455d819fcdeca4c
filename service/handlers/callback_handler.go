package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/werachapchap/service-payments/service/events"
	"github.com/werachapchap/service-payments/service/models"
)

// The provider retries anything but a 200, so every callback answer is a 200;
// only the body says whether we took it.

func (ps *PaymentServer) HandleChargeCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := ps.logger("ChargeCallbackHandler")

	var callback models.StkCallback
	if err := json.NewDecoder(r.Body).Decode(&callback); err != nil {
		logger.WithError(err).Error("failed to decode stk callback")
		writeJSON(w, http.StatusOK, models.AckFailed)
		return
	}

	result := callback.Body.StkCallback
	logger = logger.WithField("checkout_request_id", result.CheckoutRequestID).
		WithField("result_code", result.ResultCode)

	if result.CheckoutRequestID == "" && result.MerchantRequestID == "" {
		logger.Warn("stk callback without request ids, discarding")
		writeJSON(w, http.StatusOK, models.AckAccepted)
		return
	}

	if err := ps.Emitter.Emit(ctx, events.ChargeCallbackEventName, models.NewChargeCallbackJob(callback)); err != nil {
		logger.WithError(err).Error("failed to queue stk callback")
		writeJSON(w, http.StatusOK, models.AckFailed)
		return
	}

	logger.Info("stk callback queued")
	writeJSON(w, http.StatusOK, models.AckAccepted)
}

func (ps *PaymentServer) HandleB2CCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := ps.logger("B2CCallbackHandler")

	var callback models.B2CCallback
	if err := json.NewDecoder(r.Body).Decode(&callback); err != nil {
		logger.WithError(err).Error("failed to decode b2c callback")
		writeJSON(w, http.StatusOK, models.AckFailed)
		return
	}

	logger = logger.WithField("conversation_id", callback.Result.ConversationID).
		WithField("result_code", callback.Result.ResultCode)

	if callback.Result.ConversationID == "" && callback.Result.OriginatorConversationID == "" {
		logger.Warn("b2c callback without conversation ids, discarding")
		writeJSON(w, http.StatusOK, models.AckAccepted)
		return
	}

	if err := ps.Emitter.Emit(ctx, events.DisbursementCallbackEventName, models.NewDisbursementCallbackJob(callback)); err != nil {
		logger.WithError(err).Error("failed to queue b2c callback")
		writeJSON(w, http.StatusOK, models.AckFailed)
		return
	}

	logger.Info("b2c callback queued")
	writeJSON(w, http.StatusOK, models.AckAccepted)
}

// HandleTimeout receives queue-timeout notices. They carry no verdict; the
// result callback or the sweep settles the record.
func (ps *PaymentServer) HandleTimeout(w http.ResponseWriter, r *http.Request) {
	logger := ps.logger("TimeoutHandler")

	var notice map[string]any
	if err := json.NewDecoder(r.Body).Decode(&notice); err != nil {
		logger.WithError(err).Error("failed to decode timeout notice")
		writeJSON(w, http.StatusOK, models.AckFailed)
		return
	}

	logger.WithField("notice", notice).Info("provider timeout notice received")
	writeJSON(w, http.StatusOK, models.AckAccepted)
}
