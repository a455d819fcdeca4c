package business

import (
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/werachapchap/service-payments/service/models"
)

func successOutcome(checkout string) models.ChargeOutcome {
	return models.ChargeOutcome{
		CheckoutRequestID: checkout,
		ResultCode:        0,
		ResultDesc:        "The service request is processed successfully.",
		Receipt:           "QGH7X9",
		Metadata: map[string]any{
			"Amount":             "500",
			"MpesaReceiptNumber": "QGH7X9",
			"PhoneNumber":        "254712345678",
		},
	}
}

func TestApplyChargeCallbackSuccess(t *testing.T) {
	f := newFixture(t)
	task := f.store.SeedTask(t, "customer-1", 500)
	payment := f.seedPayment(t, task, "WERA1234567890", "ws_CO_1")

	require.NoError(t, f.business.ApplyChargeCallback(f.ctx, successOutcome("ws_CO_1")))

	stored := f.store.Payment(t, payment.GetID())
	assert.Equal(t, models.PaymentSuccessful, stored.Status)
	assert.Equal(t, "QGH7X9", stored.MpesaReceipt)
	assert.Equal(t, "0", stored.ResultCode)
	assert.Equal(t, "QGH7X9", stored.Extra["MpesaReceiptNumber"])

	storedTask := f.store.Task(t, task.GetID())
	assert.True(t, decimal.NewFromInt(500).Equal(storedTask.TotalPaid), "total paid %s", storedTask.TotalPaid)
	assert.Equal(t, models.TaskNew, storedTask.Status)

	assert.Equal(t, []string{models.TemplatePaymentSuccessful}, f.notifier.templates())
	sent := f.notifier.sent[0]
	assert.Equal(t, "customer-1", sent.UserID)
	assert.Equal(t, "QGH7X9", sent.Context["receipt"])
	assert.Equal(t, "500.00", sent.Context["amount"])
}

func TestApplyChargeCallbackFailure(t *testing.T) {
	f := newFixture(t)
	task := f.store.SeedTask(t, "customer-1", 500)
	payment := f.seedPayment(t, task, "WERA1234567890", "ws_CO_1")

	require.NoError(t, f.business.ApplyChargeCallback(f.ctx, models.ChargeOutcome{
		CheckoutRequestID: "ws_CO_1",
		ResultCode:        1026,
		ResultDesc:        "Request cancelled by user",
	}))

	stored := f.store.Payment(t, payment.GetID())
	assert.Equal(t, models.PaymentFailed, stored.Status)
	assert.Equal(t, "1026", stored.ResultCode)
	assert.Equal(t, "Request cancelled by user", stored.ResultDesc)
	assert.Empty(t, stored.MpesaReceipt)

	storedTask := f.store.Task(t, task.GetID())
	assert.True(t, storedTask.TotalPaid.IsZero())
	assert.Equal(t, models.TaskPaymentPending, storedTask.Status)
	assert.True(t, storedTask.Status.IsPayable())

	assert.Equal(t, []string{models.TemplatePaymentFailed}, f.notifier.templates())
	assert.Equal(t, "Request cancelled by user", f.notifier.sent[0].Context["reason"])
}

func TestApplyChargeCallbackUnknownCheckout(t *testing.T) {
	f := newFixture(t)
	task := f.store.SeedTask(t, "customer-1", 500)
	payment := f.seedPayment(t, task, "WERA1234567890", "ws_CO_1")

	require.NoError(t, f.business.ApplyChargeCallback(f.ctx, successOutcome("ws_CO_999")))

	assert.Equal(t, models.PaymentPending, f.store.Payment(t, payment.GetID()).Status)
	assert.True(t, f.store.Task(t, task.GetID()).TotalPaid.IsZero())
	assert.Empty(t, f.notifier.templates())
}

func TestApplyChargeCallbackFallsBackToMerchantID(t *testing.T) {
	f := newFixture(t)
	task := f.store.SeedTask(t, "customer-1", 500)
	payment := f.seedPayment(t, task, "WERA1234567890", "ws_CO_1")

	outcome := successOutcome("")
	outcome.MerchantRequestID = payment.MerchantRequestID
	require.NoError(t, f.business.ApplyChargeCallback(f.ctx, outcome))

	assert.Equal(t, models.PaymentSuccessful, f.store.Payment(t, payment.GetID()).Status)
}

func TestApplyChargeCallbackDuplicateIsIdempotent(t *testing.T) {
	f := newFixture(t)
	task := f.store.SeedTask(t, "customer-1", 500)
	payment := f.seedPayment(t, task, "WERA1234567890", "ws_CO_1")

	require.NoError(t, f.business.ApplyChargeCallback(f.ctx, successOutcome("ws_CO_1")))
	require.NoError(t, f.business.ApplyChargeCallback(f.ctx, successOutcome("ws_CO_1")))

	// A late contradicting verdict does not reopen the payment either.
	require.NoError(t, f.business.ApplyChargeCallback(f.ctx, models.ChargeOutcome{CheckoutRequestID: "ws_CO_1", ResultCode: 1032}))

	assert.Equal(t, models.PaymentSuccessful, f.store.Payment(t, payment.GetID()).Status)
	assert.True(t, decimal.NewFromInt(500).Equal(f.store.Task(t, task.GetID()).TotalPaid))
	assert.Equal(t, []string{models.TemplatePaymentSuccessful}, f.notifier.templates())
}

func TestApplyChargeCallbackConcurrentDuplicatesCreditOnce(t *testing.T) {
	f := newFixture(t)
	task := f.store.SeedTask(t, "customer-1", 500)
	payment := f.seedPayment(t, task, "WERA1234567890", "ws_CO_1")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, f.business.ApplyChargeCallback(f.ctx, successOutcome("ws_CO_1")))
		}()
	}
	wg.Wait()

	assert.Equal(t, models.PaymentSuccessful, f.store.Payment(t, payment.GetID()).Status)
	assert.True(t, decimal.NewFromInt(500).Equal(f.store.Task(t, task.GetID()).TotalPaid))
	assert.Len(t, f.notifier.templates(), 1)
}

func TestApplyChargeCallbackNotifierFailureDoesNotUndo(t *testing.T) {
	f := newFixture(t)
	f.notifier.err = assert.AnError
	task := f.store.SeedTask(t, "customer-1", 500)
	payment := f.seedPayment(t, task, "WERA1234567890", "ws_CO_1")

	require.NoError(t, f.business.ApplyChargeCallback(f.ctx, successOutcome("ws_CO_1")))
	assert.Equal(t, models.PaymentSuccessful, f.store.Payment(t, payment.GetID()).Status)
}
