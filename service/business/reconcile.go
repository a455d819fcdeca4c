package business

import (
	"context"
	"errors"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/werachapchap/service-payments/service/models"
	"github.com/werachapchap/service-payments/service/repository"
)

// resolution is a final verdict on a pending payment, from a callback, a
// status query or the sweep giving up on it.
type resolution struct {
	status      models.PaymentStatus
	code        string
	description string
	receipt     string
	extra       map[string]any
}

func chargeResolution(outcome models.ChargeOutcome) resolution {
	res := resolution{
		status:      models.PaymentFailed,
		code:        strconv.Itoa(outcome.ResultCode),
		description: outcome.ResultDesc,
		receipt:     outcome.Receipt,
		extra:       outcome.Metadata,
	}
	if outcome.Succeeded() {
		res.status = models.PaymentSuccessful
	}
	return res
}

func (pb *paymentBusiness) ApplyChargeCallback(ctx context.Context, outcome models.ChargeOutcome) error {
	logger := pb.log.WithFields(logrus.Fields{
		"checkout_request_id": outcome.CheckoutRequestID,
		"merchant_request_id": outcome.MerchantRequestID,
		"result_code":         outcome.ResultCode,
	})

	payment, err := pb.payments.GetByCheckout(ctx, outcome.CheckoutRequestID, outcome.MerchantRequestID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			logger.Warn("no payment matches charge callback, discarding")
			return nil
		}
		return err
	}

	_, err = pb.resolvePayment(ctx, payment, chargeResolution(outcome))
	return err
}

// resolvePayment moves a pending payment to its final status and applies the
// task effects in the same transaction. It reports whether this call made the
// transition; only the winner notifies.
func (pb *paymentBusiness) resolvePayment(ctx context.Context, payment *models.Payment, res resolution) (bool, error) {
	logger := pb.log.WithField("payment_id", payment.GetID()).WithField("status", res.status)

	if payment.Status.IsTerminal() {
		logger.WithField("current", payment.Status).Debug("payment already final, ignoring")
		return false, nil
	}

	err := repository.WithTransaction(ctx, pb.store, func(ctx context.Context) error {
		err := pb.payments.Transition(ctx, payment.GetID(), res.status, repository.PaymentOutcome{
			ResultCode: res.code,
			ResultDesc: res.description,
			Receipt:    res.receipt,
			Extra:      res.extra,
		})
		if err != nil {
			return err
		}
		if res.status != models.PaymentSuccessful {
			return nil
		}

		if err := pb.tasks.Credit(ctx, payment.TaskID, payment.Amount); err != nil {
			return err
		}
		_, err = pb.tasks.Activate(ctx, payment.TaskID)
		return err
	})
	if err != nil {
		if errors.Is(err, repository.ErrTransitionLost) {
			logger.Debug("payment resolved concurrently, ignoring")
			return false, nil
		}
		logger.WithError(err).Error("could not resolve payment")
		return false, err
	}

	logger.Info("payment resolved")

	data := map[string]string{
		"amount":          payment.Amount.StringFixed(2),
		"transaction_ref": payment.TransactionRef,
		"task_id":         payment.TaskID,
	}
	if res.status == models.PaymentSuccessful {
		data["receipt"] = res.receipt
		pb.notify(ctx, payment.UserID, models.TemplatePaymentSuccessful, data)
	} else {
		data["reason"] = res.description
		pb.notify(ctx, payment.UserID, models.TemplatePaymentFailed, data)
	}
	return true, nil
}
