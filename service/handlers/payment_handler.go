package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/werachapchap/service-payments/service/business"
	"github.com/werachapchap/service-payments/service/models"
)

type initiatePaymentRequest struct {
	Phone     string          `json:"phone"`
	Amount    decimal.Decimal `json:"amount"`
	Reference string          `json:"reference"`
}

type initiatePaymentResponse struct {
	Message             string `json:"message"`
	CheckoutRequestID   string `json:"checkout_request_id"`
	PaymentID           string `json:"payment_id"`
	TransactionRef      string `json:"transaction_ref"`
	ResponseCode        string `json:"response_code"`
	ResponseDescription string `json:"response_description"`
}

type paymentView struct {
	ID                string               `json:"id"`
	TaskID            string               `json:"task_id"`
	Amount            string               `json:"amount"`
	PaymentMethod     models.PaymentMethod `json:"payment_method"`
	TransactionRef    string               `json:"transaction_ref"`
	CheckoutRequestID string               `json:"checkout_request_id,omitempty"`
	MpesaReceipt      string               `json:"mpesa_receipt,omitempty"`
	PhoneNumber       string               `json:"phone_number"`
	Status            models.PaymentStatus `json:"status"`
	ResultCode        string               `json:"result_code,omitempty"`
	ResultDesc        string               `json:"result_desc,omitempty"`
	CreatedAt         time.Time            `json:"created_at"`
}

func newPaymentView(payment *models.Payment) paymentView {
	return paymentView{
		ID:                payment.GetID(),
		TaskID:            payment.TaskID,
		Amount:            payment.Amount.StringFixed(2),
		PaymentMethod:     payment.PaymentMethod,
		TransactionRef:    payment.TransactionRef,
		CheckoutRequestID: payment.CheckoutRequestID,
		MpesaReceipt:      payment.MpesaReceipt,
		PhoneNumber:       payment.PhoneNumber,
		Status:            payment.Status,
		ResultCode:        payment.ResultCode,
		ResultDesc:        payment.ResultDesc,
		CreatedAt:         payment.CreatedAt,
	}
}

// InitiateTaskPayment prompts the task owner's phone for the task payment.
func (ps *PaymentServer) InitiateTaskPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	taskID := mux.Vars(r)["taskID"]
	logger := ps.logger("InitiateTaskPaymentHandler").WithField("task_id", taskID)

	userID := requesterID(r)
	if userID == "" {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "Authentication required"})
		return
	}

	var request initiatePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid request body", Details: err.Error()})
		return
	}

	response, err := ps.Business.InitiateTaskPayment(ctx, &business.InitiatePaymentRequest{
		TaskID:      taskID,
		RequesterID: userID,
		Phone:       request.Phone,
		Amount:      request.Amount,
		Reference:   request.Reference,
	})
	if err != nil {
		logger.WithError(err).Info("payment initiation failed")
		writeError(w, "Failed to initiate payment", err)
		return
	}

	writeJSON(w, http.StatusOK, initiatePaymentResponse{
		Message:             "Payment initiated successfully. Please check your phone.",
		CheckoutRequestID:   response.CheckoutRequestID,
		PaymentID:           response.PaymentID,
		TransactionRef:      response.TransactionRef,
		ResponseCode:        response.ResponseCode,
		ResponseDescription: response.ResponseDescription,
	})
}

func (ps *PaymentServer) GetPayment(w http.ResponseWriter, r *http.Request) {
	userID := requesterID(r)
	if userID == "" {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "Authentication required"})
		return
	}

	payment, err := ps.Business.GetPayment(r.Context(), userID, mux.Vars(r)["paymentID"])
	if err != nil {
		writeError(w, "Failed to load payment", err)
		return
	}
	writeJSON(w, http.StatusOK, newPaymentView(payment))
}
