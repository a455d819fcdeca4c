package utility

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	// decimalPrecision matches the numeric(10,2) ledger columns.
	decimalPrecision = 2
)

// maxDecimalValue returns the largest amount a numeric(10,2) column holds.
func maxDecimalValue() decimal.Decimal {
	return decimal.New(99999999_99, -decimalPrecision)
}

// CleanDecimal rounds to cents and clamps to what the ledger can store.
func CleanDecimal(d decimal.Decimal) decimal.Decimal {
	rounded := d.Round(decimalPrecision)

	minValue := maxDecimalValue().Neg()
	if rounded.GreaterThan(maxDecimalValue()) {
		return maxDecimalValue()
	} else if rounded.LessThan(minValue) {
		return minValue
	}

	return rounded
}

// Fee is the platform's cut of amount at rate, in cents.
func Fee(amount, rate decimal.Decimal) decimal.Decimal {
	return CleanDecimal(amount.Mul(rate))
}

// ChargeUnits is the whole-shilling amount sent for a charge. The provider
// only takes integers; charges round up so a payment never falls short.
func ChargeUnits(amount decimal.Decimal) int64 {
	return amount.Ceil().IntPart()
}

// PayoutUnits rounds payouts down so we never send more than was held.
func PayoutUnits(amount decimal.Decimal) int64 {
	return amount.Floor().IntPart()
}

func IsValidTime(t *time.Time) bool {
	return t != nil && !t.IsZero()
}
