package events

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/werachapchap/service-payments/service/models"
)

const ChargeCallbackEventName = "mpesa.callback.charge"

type ChargeReconciler interface {
	ApplyChargeCallback(ctx context.Context, outcome models.ChargeOutcome) error
}

// ChargeCallback applies queued STK callbacks. Returning an error hands the
// job back to the queue for another attempt.
type ChargeCallback struct {
	Reconciler ChargeReconciler
	Logger     *logrus.Entry
}

func (event *ChargeCallback) Name() string {
	return ChargeCallbackEventName
}

func (event *ChargeCallback) PayloadType() any {
	return &models.ChargeCallbackJob{}
}

func (event *ChargeCallback) Validate(_ context.Context, payload any) error {
	job, ok := payload.(*models.ChargeCallbackJob)
	if !ok {
		return errors.New(" payload is not of type models.ChargeCallbackJob")
	}

	result := job.Callback.Body.StkCallback
	if result.CheckoutRequestID == "" && result.MerchantRequestID == "" {
		return errors.New(" callback carries no checkout or merchant request id")
	}
	return nil
}

func (event *ChargeCallback) Execute(ctx context.Context, payload any) error {
	job := payload.(*models.ChargeCallbackJob)

	logger := eventLogger(event.Logger, event.Name()).WithField("job_id", job.ID)
	logger.Debug("handling event")

	err := event.Reconciler.ApplyChargeCallback(ctx, job.Callback.Outcome())
	if err != nil {
		logger.WithError(err).Warn("could not apply charge callback")
		return err
	}
	return nil
}

func eventLogger(logger *logrus.Entry, name string) *logrus.Entry {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return logger.WithField("type", name)
}
