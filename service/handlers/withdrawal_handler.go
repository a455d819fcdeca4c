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

type withdrawalRequest struct {
	Phone  string          `json:"phone"`
	Amount decimal.Decimal `json:"amount"`
}

type withdrawalView struct {
	ID            string                  `json:"id"`
	Amount        string                  `json:"amount"`
	PhoneNumber   string                  `json:"phone_number"`
	Status        models.WithdrawalStatus `json:"status"`
	Reference     string                  `json:"reference"`
	TransactionID string                  `json:"transaction_id,omitempty"`
	ResultDesc    string                  `json:"result_desc,omitempty"`
	ProcessedAt   *time.Time              `json:"processed_at,omitempty"`
	CreatedAt     time.Time               `json:"created_at"`
}

func newWithdrawalView(withdrawal *models.WithdrawalRequest) withdrawalView {
	view := withdrawalView{
		ID:            withdrawal.GetID(),
		Amount:        withdrawal.Amount.StringFixed(2),
		PhoneNumber:   withdrawal.PhoneNumber,
		Status:        withdrawal.Status,
		Reference:     withdrawal.Reference,
		TransactionID: withdrawal.TransactionID,
		ResultDesc:    withdrawal.ResultDesc,
		CreatedAt:     withdrawal.CreatedAt,
	}
	if withdrawal.IsProcessed() {
		view.ProcessedAt = withdrawal.ProcessedAt
	}
	return view
}

func (ps *PaymentServer) RequestWithdrawal(w http.ResponseWriter, r *http.Request) {
	userID := requesterID(r)
	if userID == "" {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "Authentication required"})
		return
	}

	var request withdrawalRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid request body", Details: err.Error()})
		return
	}

	withdrawal, err := ps.Business.RequestWithdrawal(r.Context(), &business.WithdrawalInput{
		UserID: userID,
		Phone:  request.Phone,
		Amount: request.Amount,
	})
	if err != nil {
		writeError(w, "Failed to request withdrawal", err)
		return
	}
	writeJSON(w, http.StatusCreated, newWithdrawalView(withdrawal))
}

func (ps *PaymentServer) ProcessWithdrawal(w http.ResponseWriter, r *http.Request) {
	withdrawalID := mux.Vars(r)["withdrawalID"]
	logger := ps.logger("ProcessWithdrawalHandler").WithField("withdrawal_id", withdrawalID)

	userID := requesterID(r)
	if userID == "" {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "Authentication required"})
		return
	}
	if !isProcessor(r) {
		writeJSON(w, http.StatusForbidden, errorResponse{Error: "Only staff can process withdrawals"})
		return
	}

	withdrawal, err := ps.Business.ProcessWithdrawal(r.Context(), withdrawalID, userID)
	if err != nil {
		logger.WithError(err).Info("withdrawal processing failed")
		writeError(w, "Failed to process withdrawal", err)
		return
	}
	writeJSON(w, http.StatusOK, newWithdrawalView(withdrawal))
}

type walletView struct {
	UserID  string `json:"user_id"`
	Balance string `json:"balance"`
}

func (ps *PaymentServer) GetWallet(w http.ResponseWriter, r *http.Request) {
	userID := requesterID(r)
	if userID == "" {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "Authentication required"})
		return
	}

	wallet, err := ps.Business.GetWallet(r.Context(), userID)
	if err != nil {
		writeError(w, "Failed to load wallet", err)
		return
	}
	writeJSON(w, http.StatusOK, walletView{UserID: wallet.UserID, Balance: wallet.Balance.StringFixed(2)})
}
