package router

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/werachapchap/service-payments/service/business"
	"github.com/werachapchap/service-payments/service/coreapi"
	"github.com/werachapchap/service-payments/service/events"
	"github.com/werachapchap/service-payments/service/handlers"
	"github.com/werachapchap/service-payments/service/models"
	"github.com/werachapchap/service-payments/service/testutil"
)

// inlineEmitter runs queued jobs straight away, standing in for frame's
// event queue.
type inlineEmitter struct {
	charge       *events.ChargeCallback
	disbursement *events.DisbursementCallback
}

func (ie *inlineEmitter) Emit(ctx context.Context, name string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	switch name {
	case ie.charge.Name():
		job := ie.charge.PayloadType()
		if err := json.Unmarshal(raw, job); err != nil {
			return err
		}
		if err := ie.charge.Validate(ctx, job); err != nil {
			return err
		}
		return ie.charge.Execute(ctx, job)
	case ie.disbursement.Name():
		job := ie.disbursement.PayloadType()
		if err := json.Unmarshal(raw, job); err != nil {
			return err
		}
		if err := ie.disbursement.Validate(ctx, job); err != nil {
			return err
		}
		return ie.disbursement.Execute(ctx, job)
	}
	return nil
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, *models.Notification) error { return nil }

func TestPaymentFlowThroughRouter(t *testing.T) {
	store := testutil.NewDatastore(t)
	gateway := coreapi.NewMockGateway(gomock.NewController(t))

	pb, err := business.NewPaymentBusiness(context.Background(), store, gateway, nopNotifier{}, nil, business.Options{})
	require.NoError(t, err)

	emitter := &inlineEmitter{
		charge:       &events.ChargeCallback{Reconciler: pb},
		disbursement: &events.DisbursementCallback{Reconciler: pb},
	}
	router := NewRouter(&handlers.PaymentServer{Emitter: emitter, Business: pb})

	task := store.SeedTask(t, "customer-1", 500)
	gateway.EXPECT().InitiateCharge(gomock.Any(), gomock.Any()).
		Return(&coreapi.Result{Success: true, CheckoutID: "ws_CO_1", MerchantID: "29115-1", ResponseCode: "0"}, nil)

	req := httptest.NewRequest(http.MethodPost, "/tasks/"+task.GetID()+"/pay",
		bytes.NewBufferString(`{"phone":"0712345678","reference":"WERA1234567890"}`))
	req.Header.Set("X-User-ID", "customer-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var initiated map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &initiated))
	paymentID := initiated["payment_id"]

	callback := `{"Body":{"stkCallback":{"MerchantRequestID":"29115-1","CheckoutRequestID":"ws_CO_1","ResultCode":0,"ResultDesc":"ok","CallbackMetadata":{"Item":[{"Name":"MpesaReceiptNumber","Value":"QGH7X9"}]}}}}`
	for i := 0; i < 2; i++ {
		rr = httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/mpesa/callback", bytes.NewBufferString(callback)))
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `{"ResultCode":0,"ResultDesc":"Accepted"}`, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	unknown := `{"Body":{"stkCallback":{"CheckoutRequestID":"ws_CO_999","ResultCode":0}}}`
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/mpesa/callback", bytes.NewBufferString(unknown)))
	assert.JSONEq(t, `{"ResultCode":0,"ResultDesc":"Accepted"}`, rr.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/payments/"+paymentID, nil)
	req.Header.Set("X-User-ID", "customer-1")
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var view map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &view))
	assert.Equal(t, "successful", view["status"])
	assert.Equal(t, "QGH7X9", view["mpesa_receipt"])

	stored := store.Task(t, task.GetID())
	assert.Equal(t, models.TaskNew, stored.Status)
	assert.True(t, task.Budget.Equal(stored.TotalPaid))
}

func TestRoutes(t *testing.T) {
	router := NewRouter(&handlers.PaymentServer{})

	tests := []struct {
		method string
		path   string
		status int
	}{
		{method: http.MethodGet, path: "/health", status: http.StatusOK},
		{method: http.MethodGet, path: "/mpesa/callback", status: http.StatusMethodNotAllowed},
		{method: http.MethodGet, path: "/tasks/t-1/pay", status: http.StatusMethodNotAllowed},
		{method: http.MethodGet, path: "/nowhere", status: http.StatusNotFound},
		{method: http.MethodPost, path: "/mpesa/timeout", status: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, httptest.NewRequest(tt.method, tt.path, bytes.NewBufferString(`{}`)))
			assert.Equal(t, tt.status, rr.Code)
		})
	}
}
