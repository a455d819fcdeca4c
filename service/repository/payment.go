package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/werachapchap/service-payments/service/models"
)

// PaymentOutcome is what gets recorded on a payment when it leaves pending.
type PaymentOutcome struct {
	ResultCode string
	ResultDesc string
	Receipt    string
	Extra      map[string]any
}

type PaymentRepository interface {
	GetByID(ctx context.Context, id string) (*models.Payment, error)
	GetByTransactionRef(ctx context.Context, ref string) (*models.Payment, error)
	GetByCheckout(ctx context.Context, checkoutRequestID, merchantRequestID string) (*models.Payment, error)
	ListStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]*models.Payment, error)
	TouchPending(ctx context.Context, id string) error
	Create(ctx context.Context, payment *models.Payment) error
	AttachCheckout(ctx context.Context, id, checkoutRequestID, merchantRequestID string) error
	Transition(ctx context.Context, id string, to models.PaymentStatus, outcome PaymentOutcome) error
}

type paymentRepository struct {
	abstractRepository
}

func NewPaymentRepository(_ context.Context, store Datastore) PaymentRepository {
	return &paymentRepository{abstractRepository{store: store}}
}

func (repo *paymentRepository) GetByID(ctx context.Context, id string) (*models.Payment, error) {
	payment := models.Payment{}
	err := repo.readDB(ctx).First(&payment, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (repo *paymentRepository) GetByTransactionRef(ctx context.Context, ref string) (*models.Payment, error) {
	payment := models.Payment{}
	err := repo.readDB(ctx).First(&payment, "transaction_ref = ?", ref).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// GetByCheckout matches on the checkout request id and falls back to the
// merchant request id when the former is absent or unknown.
func (repo *paymentRepository) GetByCheckout(ctx context.Context, checkoutRequestID, merchantRequestID string) (*models.Payment, error) {
	if checkoutRequestID == "" && merchantRequestID == "" {
		return nil, ErrNotFound
	}

	payment := models.Payment{}
	if checkoutRequestID != "" {
		err := repo.readDB(ctx).First(&payment, "checkout_request_id = ?", checkoutRequestID).Error
		if err == nil {
			return &payment, nil
		}
		if !errors.Is(err, ErrNotFound) || merchantRequestID == "" {
			return nil, err
		}
	}

	err := repo.readDB(ctx).First(&payment, "merchant_request_id = ?", merchantRequestID).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// ListStalePending returns pending payments created before createdBefore,
// least recently examined first.
func (repo *paymentRepository) ListStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]*models.Payment, error) {
	var payments []*models.Payment
	query := repo.readDB(ctx).
		Where("status = ? AND created_at < ?", models.PaymentPending, createdBefore).
		Order("modified_at ASC").
		Order("created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&payments).Error
	if err != nil {
		return nil, err
	}
	return payments, nil
}

// TouchPending bumps modified_at on a still-pending payment so the next
// sweep looks at other rows first.
func (repo *paymentRepository) TouchPending(ctx context.Context, id string) error {
	return repo.writeDB(ctx).Model(&models.Payment{}).
		Where("id = ? AND status = ?", id, models.PaymentPending).
		UpdateColumn("modified_at", time.Now()).Error
}

func (repo *paymentRepository) Create(ctx context.Context, payment *models.Payment) error {
	err := repo.writeDB(ctx).Create(payment).Error
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: transaction_ref %s", ErrDuplicateKey, payment.TransactionRef)
	}
	return err
}

// AttachCheckout stores the provider identifiers once; a row that already has
// them is left alone.
func (repo *paymentRepository) AttachCheckout(ctx context.Context, id, checkoutRequestID, merchantRequestID string) error {
	result := repo.writeDB(ctx).Model(&models.Payment{}).
		Where("id = ? AND checkout_request_id = ?", id, "").
		UpdateColumns(map[string]any{
			"checkout_request_id": checkoutRequestID,
			"merchant_request_id": merchantRequestID,
			"modified_at":         time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrTransitionLost
	}
	return nil
}

// Transition moves a pending payment to a terminal status. It is a
// compare-and-swap on status: ErrTransitionLost means someone else already
// finalised the row.
func (repo *paymentRepository) Transition(ctx context.Context, id string, to models.PaymentStatus, outcome PaymentOutcome) error {
	if !to.IsTerminal() {
		return fmt.Errorf("payment %s: %s is not a terminal status", id, to)
	}

	updates := map[string]any{
		"status":      to,
		"result_code": outcome.ResultCode,
		"result_desc": outcome.ResultDesc,
		"modified_at": time.Now(),
	}
	if outcome.Receipt != "" {
		updates["mpesa_receipt"] = outcome.Receipt
	}

	result := repo.writeDB(ctx).Model(&models.Payment{}).
		Where("id = ? AND status = ?", id, models.PaymentPending).
		UpdateColumns(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrTransitionLost
	}

	if len(outcome.Extra) > 0 {
		return repo.mergeExtra(ctx, id, outcome.Extra)
	}
	return nil
}

func (repo *paymentRepository) mergeExtra(ctx context.Context, id string, extra map[string]any) error {
	payment := models.Payment{}
	err := repo.writeDB(ctx).Select("id", "extra").First(&payment, "id = ?", id).Error
	if err != nil {
		return err
	}
	if payment.Extra == nil {
		payment.Extra = make(map[string]any, len(extra))
	}
	for key, val := range extra {
		payment.Extra[key] = val
	}
	return repo.writeDB(ctx).Model(&models.Payment{}).
		Where("id = ?", id).
		UpdateColumn("extra", payment.Extra).Error
}
