package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/werachapchap/service-payments/service/models"
)

type TaskRepository interface {
	GetByID(ctx context.Context, id string) (*models.Task, error)
	Save(ctx context.Context, task *models.Task) error
	SetTransactionFee(ctx context.Context, id string, fee decimal.Decimal) error
	Credit(ctx context.Context, id string, amount decimal.Decimal) error
	Activate(ctx context.Context, id string) (bool, error)
}

type taskRepository struct {
	abstractRepository
}

func NewTaskRepository(_ context.Context, store Datastore) TaskRepository {
	return &taskRepository{abstractRepository{store: store}}
}

func (repo *taskRepository) GetByID(ctx context.Context, id string) (*models.Task, error) {
	task := models.Task{}
	err := repo.readDB(ctx).First(&task, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &task, nil
}

func (repo *taskRepository) Save(ctx context.Context, task *models.Task) error {
	return repo.writeDB(ctx).Save(task).Error
}

func (repo *taskRepository) SetTransactionFee(ctx context.Context, id string, fee decimal.Decimal) error {
	return repo.update(ctx, id, map[string]any{"transaction_fee": fee})
}

// Credit adds amount to total_paid in the database, not from a stale read.
func (repo *taskRepository) Credit(ctx context.Context, id string, amount decimal.Decimal) error {
	return repo.update(ctx, id, map[string]any{"total_paid": gorm.Expr("total_paid + ?", amount)})
}

// Activate opens a funded task to runners. It reports false when the task
// was not awaiting payment, which is not an error.
func (repo *taskRepository) Activate(ctx context.Context, id string) (bool, error) {
	result := repo.writeDB(ctx).Model(&models.Task{}).
		Where("id = ? AND status = ?", id, models.TaskPaymentPending).
		UpdateColumns(map[string]any{"status": models.TaskNew, "modified_at": time.Now()})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (repo *taskRepository) update(ctx context.Context, id string, updates map[string]any) error {
	updates["modified_at"] = time.Now()
	result := repo.writeDB(ctx).Model(&models.Task{}).Where("id = ?", id).UpdateColumns(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
