package business

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/werachapchap/service-payments/service/coreapi"
	"github.com/werachapchap/service-payments/service/models"
	"github.com/werachapchap/service-payments/service/repository"
	"github.com/werachapchap/service-payments/service/utility"
)

type PaymentBusiness interface {
	InitiateTaskPayment(ctx context.Context, request *InitiatePaymentRequest) (*InitiatePaymentResponse, error)
	GetPayment(ctx context.Context, requesterID, paymentID string) (*models.Payment, error)
	ApplyChargeCallback(ctx context.Context, outcome models.ChargeOutcome) error

	RequestWithdrawal(ctx context.Context, request *WithdrawalInput) (*models.WithdrawalRequest, error)
	ProcessWithdrawal(ctx context.Context, withdrawalID, processorID string) (*models.WithdrawalRequest, error)
	ApplyDisbursementCallback(ctx context.Context, outcome models.DisbursementOutcome) error
	GetWallet(ctx context.Context, userID string) (*models.Wallet, error)

	SweepStalePayments(ctx context.Context) (*SweepReport, error)
}

// Notifier queues a message for the notification service.
type Notifier interface {
	Notify(ctx context.Context, notification *models.Notification) error
}

type InitiatePaymentRequest struct {
	TaskID      string
	RequesterID string
	Phone       string
	// Amount defaults to the task budget when zero.
	Amount    decimal.Decimal
	Reference string
}

type InitiatePaymentResponse struct {
	PaymentID           string
	TransactionRef      string
	CheckoutRequestID   string
	ResponseCode        string
	ResponseDescription string
}

type Options struct {
	// FeeRate defaults to 10% when nil; a zero rate charges no fee.
	FeeRate          *decimal.Decimal
	PendingAge       time.Duration
	ExpireAfter      time.Duration
	SweepConcurrency int
	SweepBatchSize   int
	Now              func() time.Time
}

func (o *Options) setDefaults() {
	if o.FeeRate == nil {
		rate := decimal.RequireFromString("0.10")
		o.FeeRate = &rate
	}
	if o.PendingAge <= 0 {
		o.PendingAge = 15 * time.Minute
	}
	if o.ExpireAfter <= 0 {
		o.ExpireAfter = 24 * time.Hour
	}
	if o.SweepConcurrency <= 0 {
		o.SweepConcurrency = 4
	}
	if o.SweepBatchSize <= 0 {
		o.SweepBatchSize = 200
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

type paymentBusiness struct {
	store    repository.Datastore
	gateway  coreapi.Gateway
	notifier Notifier
	log      *logrus.Entry
	opts     Options

	payments    repository.PaymentRepository
	tasks       repository.TaskRepository
	wallets     repository.WalletRepository
	withdrawals repository.WithdrawalRepository
}

func NewPaymentBusiness(ctx context.Context, store repository.Datastore, gateway coreapi.Gateway,
	notifier Notifier, logger *logrus.Entry, opts Options) (PaymentBusiness, error) {
	if store == nil || gateway == nil || notifier == nil {
		return nil, ErrorInitializationFail
	}
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	opts.setDefaults()

	return &paymentBusiness{
		store:       store,
		gateway:     gateway,
		notifier:    notifier,
		log:         logger.WithField("type", "payment business"),
		opts:        opts,
		payments:    repository.NewPaymentRepository(ctx, store),
		tasks:       repository.NewTaskRepository(ctx, store),
		wallets:     repository.NewWalletRepository(ctx, store),
		withdrawals: repository.NewWithdrawalRepository(ctx, store),
	}, nil
}

func (pb *paymentBusiness) InitiateTaskPayment(ctx context.Context, request *InitiatePaymentRequest) (*InitiatePaymentResponse, error) {
	logger := pb.log.WithField("task_id", request.TaskID).WithField("requester", request.RequesterID)

	phone, err := utility.NormalisePhone(request.Phone)
	if err != nil {
		return nil, ErrInvalidPhone
	}

	task, err := pb.tasks.GetByID(ctx, request.TaskID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, err
	}
	if task.PostedBy != request.RequesterID {
		return nil, ErrNotTaskOwner
	}
	if !task.Status.IsPayable() {
		return nil, ErrTaskNotPayable
	}

	amount := request.Amount
	if amount.IsZero() {
		amount = task.Budget
	}
	amount = utility.CleanDecimal(amount)
	if !amount.IsPositive() || amount.LessThan(task.Budget) {
		return nil, fmt.Errorf("%w: at least %s is required", ErrInvalidAmount, task.Budget.StringFixed(2))
	}
	fee := utility.Fee(amount, *pb.opts.FeeRate)

	reference := request.Reference
	if reference == "" {
		reference = utility.NewTransactionRef()
	}

	payment := &models.Payment{
		TaskID:         task.GetID(),
		UserID:         request.RequesterID,
		Amount:         amount,
		PaymentMethod:  models.PaymentMethodMpesa,
		TransactionRef: reference,
		PhoneNumber:    phone,
		Status:         models.PaymentPending,
	}
	payment.GenID(ctx)

	err = pb.payments.Create(ctx, payment)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			return nil, ErrDuplicateReference
		}
		return nil, err
	}
	logger = logger.WithField("payment_id", payment.GetID()).WithField("transaction_ref", reference)

	result, err := pb.gateway.InitiateCharge(ctx, coreapi.ChargeRequest{
		Phone:       phone,
		Amount:      amount,
		Reference:   reference,
		Description: "Task payment",
	})
	if err != nil {
		if coreapi.IsTransportError(err) {
			// The provider may still prompt the payer; a callback or the sweep settles it.
			logger.WithError(err).Warn("charge outcome unknown, payment left pending")
			return nil, fmt.Errorf("payment %s is awaiting confirmation: %w", payment.GetID(), err)
		}

		logger.WithError(err).Error("could not initiate charge")
		pb.failPayment(ctx, payment, "", fmt.Sprintf("initiation failed: %v", err))
		return nil, fmt.Errorf("could not initiate charge: %w", err)
	}

	if !result.Success {
		logger.WithField("response_code", result.ResponseCode).Info("provider declined charge")
		pb.failPayment(ctx, payment, result.ResponseCode, result.Error)
		return nil, &ProviderRejection{Code: result.ResponseCode, Description: result.Error}
	}

	err = repository.WithTransaction(ctx, pb.store, func(ctx context.Context) error {
		if err := pb.payments.AttachCheckout(ctx, payment.GetID(), result.CheckoutID, result.MerchantID); err != nil {
			return err
		}
		return pb.tasks.SetTransactionFee(ctx, task.GetID(), fee)
	})
	if err != nil {
		logger.WithError(err).WithField("checkout_request_id", result.CheckoutID).
			Error("charge accepted but checkout could not be recorded")
		return nil, err
	}

	logger.WithField("checkout_request_id", result.CheckoutID).Info("charge initiated")
	return &InitiatePaymentResponse{
		PaymentID:           payment.GetID(),
		TransactionRef:      reference,
		CheckoutRequestID:   result.CheckoutID,
		ResponseCode:        result.ResponseCode,
		ResponseDescription: result.ResponseDescription,
	}, nil
}

func (pb *paymentBusiness) GetPayment(ctx context.Context, requesterID, paymentID string) (*models.Payment, error) {
	payment, err := pb.payments.GetByID(ctx, paymentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	if payment.UserID != requesterID {
		return nil, ErrNotPaymentOwner
	}
	return payment, nil
}

// failPayment records a failure known at initiation time. Losing the race to a
// callback is fine: whoever won already recorded the outcome.
func (pb *paymentBusiness) failPayment(ctx context.Context, payment *models.Payment, code, description string) {
	err := pb.payments.Transition(ctx, payment.GetID(), models.PaymentFailed, repository.PaymentOutcome{
		ResultCode: code,
		ResultDesc: description,
	})
	if err != nil && !errors.Is(err, repository.ErrTransitionLost) {
		pb.log.WithError(err).WithField("payment_id", payment.GetID()).Error("could not mark payment failed")
	}
}

func (pb *paymentBusiness) notify(ctx context.Context, userID, template string, data map[string]string) {
	notification := &models.Notification{
		UserID:   userID,
		Template: template,
		Context:  data,
	}
	if err := pb.notifier.Notify(ctx, notification); err != nil {
		pb.log.WithError(err).WithField("template", template).WithField("user_id", userID).
			Warn("could not enqueue notification")
	}
}
