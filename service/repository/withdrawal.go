package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/werachapchap/service-payments/service/models"
)

type WithdrawalRepository interface {
	GetByID(ctx context.Context, id string) (*models.WithdrawalRequest, error)
	GetByConversation(ctx context.Context, conversationID, originatorConversationID string) (*models.WithdrawalRequest, error)
	Create(ctx context.Context, withdrawal *models.WithdrawalRequest) error
	MarkProcessing(ctx context.Context, id, processedBy string) error
	AttachConversation(ctx context.Context, id, conversationID string) error
	Finalise(ctx context.Context, id string, to models.WithdrawalStatus, resultDesc string) error
}

type withdrawalRepository struct {
	abstractRepository
}

func NewWithdrawalRepository(_ context.Context, store Datastore) WithdrawalRepository {
	return &withdrawalRepository{abstractRepository{store: store}}
}

func (repo *withdrawalRepository) GetByID(ctx context.Context, id string) (*models.WithdrawalRequest, error) {
	withdrawal := models.WithdrawalRequest{}
	err := repo.readDB(ctx).First(&withdrawal, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &withdrawal, nil
}

func (repo *withdrawalRepository) GetByConversation(ctx context.Context, conversationID, originatorConversationID string) (*models.WithdrawalRequest, error) {
	if conversationID == "" && originatorConversationID == "" {
		return nil, ErrNotFound
	}

	withdrawal := models.WithdrawalRequest{}
	if conversationID != "" {
		err := repo.readDB(ctx).First(&withdrawal, "transaction_id = ?", conversationID).Error
		if err == nil {
			return &withdrawal, nil
		}
		if !errors.Is(err, ErrNotFound) || originatorConversationID == "" {
			return nil, err
		}
	}

	err := repo.readDB(ctx).First(&withdrawal, "reference = ?", originatorConversationID).Error
	if err != nil {
		return nil, err
	}
	return &withdrawal, nil
}

func (repo *withdrawalRepository) Create(ctx context.Context, withdrawal *models.WithdrawalRequest) error {
	err := repo.writeDB(ctx).Create(withdrawal).Error
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: withdrawal reference %s", ErrDuplicateKey, withdrawal.Reference)
	}
	return err
}

func (repo *withdrawalRepository) MarkProcessing(ctx context.Context, id, processedBy string) error {
	result := repo.writeDB(ctx).Model(&models.WithdrawalRequest{}).
		Where("id = ? AND status = ?", id, models.WithdrawalPending).
		UpdateColumns(map[string]any{
			"status":       models.WithdrawalProcessing,
			"processed_by": processedBy,
			"modified_at":  time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrTransitionLost
	}
	return nil
}

func (repo *withdrawalRepository) AttachConversation(ctx context.Context, id, conversationID string) error {
	return repo.writeDB(ctx).Model(&models.WithdrawalRequest{}).
		Where("id = ? AND transaction_id = ?", id, "").
		UpdateColumns(map[string]any{
			"transaction_id": conversationID,
			"modified_at":    time.Now(),
		}).Error
}

// Finalise is the compare-and-swap into completed or failed; processed_at is
// written only by the winning update.
func (repo *withdrawalRepository) Finalise(ctx context.Context, id string, to models.WithdrawalStatus, resultDesc string) error {
	if !to.IsTerminal() {
		return fmt.Errorf("withdrawal %s: %s is not a terminal status", id, to)
	}

	now := time.Now()
	result := repo.writeDB(ctx).Model(&models.WithdrawalRequest{}).
		Where("id = ? AND status IN ?", id, []models.WithdrawalStatus{models.WithdrawalPending, models.WithdrawalProcessing}).
		UpdateColumns(map[string]any{
			"status":       to,
			"result_desc":  resultDesc,
			"processed_at": now,
			"modified_at":  now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrTransitionLost
	}
	return nil
}
