package events

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/werachapchap/service-payments/service/models"
)

const DisbursementCallbackEventName = "mpesa.callback.b2c"

type DisbursementReconciler interface {
	ApplyDisbursementCallback(ctx context.Context, outcome models.DisbursementOutcome) error
}

type DisbursementCallback struct {
	Reconciler DisbursementReconciler
	Logger     *logrus.Entry
}

func (event *DisbursementCallback) Name() string {
	return DisbursementCallbackEventName
}

func (event *DisbursementCallback) PayloadType() any {
	return &models.DisbursementCallbackJob{}
}

func (event *DisbursementCallback) Validate(_ context.Context, payload any) error {
	job, ok := payload.(*models.DisbursementCallbackJob)
	if !ok {
		return errors.New(" payload is not of type models.DisbursementCallbackJob")
	}

	result := job.Callback.Result
	if result.ConversationID == "" && result.OriginatorConversationID == "" {
		return errors.New(" callback carries no conversation id")
	}
	return nil
}

func (event *DisbursementCallback) Execute(ctx context.Context, payload any) error {
	job := payload.(*models.DisbursementCallbackJob)

	logger := eventLogger(event.Logger, event.Name()).WithField("job_id", job.ID)
	logger.Debug("handling event")

	err := event.Reconciler.ApplyDisbursementCallback(ctx, job.Callback.Outcome())
	if err != nil {
		logger.WithError(err).Warn("could not apply disbursement callback")
		return err
	}
	return nil
}
