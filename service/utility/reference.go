package utility

import (
	"strings"

	"github.com/google/uuid"
)

const (
	transactionRefPrefix = "WERA"
	withdrawalRefPrefix  = "WDR"
)

func shortHex(n int) string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:n])
}

// NewTransactionRef returns a payment idempotency key such as WERA1A2B3C4D5E.
func NewTransactionRef() string {
	return transactionRefPrefix + shortHex(10)
}

// NewWithdrawalRef is sent to the provider as the OriginatorConversationID.
func NewWithdrawalRef() string {
	return withdrawalRefPrefix + shortHex(16)
}
