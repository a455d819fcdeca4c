package router

import (
	"github.com/gorilla/mux"

	"github.com/werachapchap/service-payments/service/handlers"
)

func NewRouter(ps *handlers.PaymentServer) *mux.Router {
	router := mux.NewRouter().StrictSlash(true)

	// Health check endpoint
	router.HandleFunc("/health", handlers.HealthHandler).Methods("GET")

	// Provider callbacks
	router.HandleFunc("/mpesa/callback", ps.HandleChargeCallback).Methods("POST")
	router.HandleFunc("/mpesa/timeout", ps.HandleTimeout).Methods("POST")
	router.HandleFunc("/mpesa/b2c/callback", ps.HandleB2CCallback).Methods("POST")

	// Payments
	router.HandleFunc("/tasks/{taskID}/pay", ps.InitiateTaskPayment).Methods("POST")
	router.HandleFunc("/payments/{paymentID}", ps.GetPayment).Methods("GET")

	// Withdrawals
	router.HandleFunc("/wallet", ps.GetWallet).Methods("GET")
	router.HandleFunc("/withdrawals", ps.RequestWithdrawal).Methods("POST")
	router.HandleFunc("/withdrawals/{withdrawalID}/process", ps.ProcessWithdrawal).Methods("POST")

	return router
}
