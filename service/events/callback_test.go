package events

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/werachapchap/service-payments/service/business"
	"github.com/werachapchap/service-payments/service/coreapi"
	"github.com/werachapchap/service-payments/service/models"
	"github.com/werachapchap/service-payments/service/repository"
	"github.com/werachapchap/service-payments/service/testutil"
)

// MockReconciler mocks the business calls made by callback events.
type MockReconciler struct {
	mock.Mock
}

func (m *MockReconciler) ApplyChargeCallback(ctx context.Context, outcome models.ChargeOutcome) error {
	args := m.Called(ctx, outcome)
	return args.Error(0)
}

func (m *MockReconciler) ApplyDisbursementCallback(ctx context.Context, outcome models.DisbursementOutcome) error {
	args := m.Called(ctx, outcome)
	return args.Error(0)
}

const stkCallbackBody = `{
  "Body": {
    "stkCallback": {
      "MerchantRequestID": "29115-34620561-1",
      "CheckoutRequestID": "ws_CO_1",
      "ResultCode": 0,
      "ResultDesc": "The service request is processed successfully.",
      "CallbackMetadata": {
        "Item": [
          {"Name": "Amount", "Value": 500},
          {"Name": "MpesaReceiptNumber", "Value": "QGH7X9"},
          {"Name": "Balance"},
          {"Name": "TransactionDate", "Value": 20191219102115},
          {"Name": "PhoneNumber", "Value": 254712345678}
        ]
      }
    }
  }
}`

// queued mimics the queue: the job is serialised by the producer and decoded
// into PayloadType by the consumer.
func queued(t *testing.T, job any, into any) any {
	t.Helper()
	raw, err := json.Marshal(job)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, into))
	return into
}

func TestChargeCallbackValidate(t *testing.T) {
	event := &ChargeCallback{Reconciler: &MockReconciler{}}

	tests := []struct {
		name      string
		payload   any
		expectErr bool
	}{
		{name: "wrong type", payload: &models.DisbursementCallbackJob{}, expectErr: true},
		{name: "no ids", payload: &models.ChargeCallbackJob{}, expectErr: true},
		{
			name: "checkout id",
			payload: func() any {
				var cb models.StkCallback
				cb.Body.StkCallback.CheckoutRequestID = "ws_CO_1"
				return models.NewChargeCallbackJob(cb)
			}(),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := event.Validate(context.Background(), tt.payload)
			if tt.expectErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestChargeCallbackExecute(t *testing.T) {
	var cb models.StkCallback
	require.NoError(t, json.Unmarshal([]byte(stkCallbackBody), &cb))

	tests := []struct {
		name      string
		applyErr  error
		expectErr bool
	}{
		{name: "applied"},
		{name: "storage failure is retried", applyErr: assert.AnError, expectErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reconciler := &MockReconciler{}
			reconciler.On("ApplyChargeCallback", mock.Anything, mock.MatchedBy(func(o models.ChargeOutcome) bool {
				return o.CheckoutRequestID == "ws_CO_1" && o.Receipt == "QGH7X9" && o.Succeeded()
			})).Return(tt.applyErr)

			event := &ChargeCallback{Reconciler: reconciler}
			payload := queued(t, models.NewChargeCallbackJob(cb), event.PayloadType())

			require.NoError(t, event.Validate(context.Background(), payload))
			err := event.Execute(context.Background(), payload)
			assert.Equal(t, tt.expectErr, err != nil)
			reconciler.AssertExpectations(t)
		})
	}
}

func TestDisbursementCallbackExecute(t *testing.T) {
	var cb models.B2CCallback
	require.NoError(t, json.Unmarshal([]byte(`{"Result":{"ResultType":0,"ResultCode":0,"ResultDesc":"The service request is processed successfully.","OriginatorConversationID":"WDR-0001","ConversationID":"AG_20230101_00001","TransactionID":"NLJ41HAY6Q"}}`), &cb))

	reconciler := &MockReconciler{}
	reconciler.On("ApplyDisbursementCallback", mock.Anything, models.DisbursementOutcome{
		ConversationID:           "AG_20230101_00001",
		OriginatorConversationID: "WDR-0001",
		TransactionID:            "NLJ41HAY6Q",
		ResultCode:               0,
		ResultDesc:               "The service request is processed successfully.",
	}).Return(nil)

	event := &DisbursementCallback{Reconciler: reconciler}
	payload := queued(t, models.NewDisbursementCallbackJob(cb), event.PayloadType())

	require.NoError(t, event.Validate(context.Background(), payload))
	require.NoError(t, event.Execute(context.Background(), payload))
	reconciler.AssertExpectations(t)

	assert.Error(t, event.Validate(context.Background(), &models.DisbursementCallbackJob{}))
	assert.Error(t, event.Validate(context.Background(), &models.ChargeCallbackJob{}))
}

func TestChargeCallbackSettlesPayment(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewDatastore(t)
	gateway := coreapi.NewMockGateway(gomock.NewController(t))
	notifier := &countingNotifier{}

	pb, err := business.NewPaymentBusiness(ctx, store, gateway, notifier, nil, business.Options{})
	require.NoError(t, err)

	task := store.SeedTask(t, "customer-1", 500)
	payments := repository.NewPaymentRepository(ctx, store)
	payment := &models.Payment{
		TaskID:         task.GetID(),
		UserID:         "customer-1",
		Amount:         task.Budget,
		PaymentMethod:  models.PaymentMethodMpesa,
		TransactionRef: "WERA1234567890",
		Status:         models.PaymentPending,
	}
	payment.GenID(ctx)
	require.NoError(t, payments.Create(ctx, payment))
	require.NoError(t, payments.AttachCheckout(ctx, payment.GetID(), "ws_CO_1", "29115-34620561-1"))

	var cb models.StkCallback
	require.NoError(t, json.Unmarshal([]byte(stkCallbackBody), &cb))

	event := &ChargeCallback{Reconciler: pb}
	for i := 0; i < 2; i++ {
		payload := queued(t, models.NewChargeCallbackJob(cb), event.PayloadType())
		require.NoError(t, event.Execute(ctx, payload))
	}

	stored := store.Payment(t, payment.GetID())
	assert.Equal(t, models.PaymentSuccessful, stored.Status)
	assert.Equal(t, "QGH7X9", stored.MpesaReceipt)
	assert.Equal(t, "254712345678", stored.Extra["PhoneNumber"])
	assert.True(t, task.Budget.Equal(store.Task(t, task.GetID()).TotalPaid))
	assert.Equal(t, 1, notifier.count)
}

type countingNotifier struct {
	count int
}

func (cn *countingNotifier) Notify(context.Context, *models.Notification) error {
	cn.count++
	return nil
}
