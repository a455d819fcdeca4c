package repository

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/werachapchap/service-payments/service/models"
)

var ErrInsufficientFunds = errors.New("wallet balance is insufficient")

type WalletRepository interface {
	GetByUser(ctx context.Context, userID string) (*models.Wallet, error)
	Credit(ctx context.Context, userID string, amount decimal.Decimal) error
	Debit(ctx context.Context, userID string, amount decimal.Decimal) error
}

type walletRepository struct {
	abstractRepository
}

func NewWalletRepository(_ context.Context, store Datastore) WalletRepository {
	return &walletRepository{abstractRepository{store: store}}
}

func (repo *walletRepository) GetByUser(ctx context.Context, userID string) (*models.Wallet, error) {
	wallet := models.Wallet{}
	err := repo.readDB(ctx).First(&wallet, "user_id = ?", userID).Error
	if err != nil {
		return nil, err
	}
	return &wallet, nil
}

// Credit adds to the user's balance, opening the wallet on first use.
func (repo *walletRepository) Credit(ctx context.Context, userID string, amount decimal.Decimal) error {
	result := repo.writeDB(ctx).Model(&models.Wallet{}).
		Where("user_id = ?", userID).
		UpdateColumns(map[string]any{
			"balance":     gorm.Expr("balance + ?", amount),
			"modified_at": time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}

	wallet := &models.Wallet{UserID: userID, Balance: amount}
	wallet.GenID(ctx)
	return repo.writeDB(ctx).Create(wallet).Error
}

// Debit only succeeds when the balance covers amount at the time of the update.
func (repo *walletRepository) Debit(ctx context.Context, userID string, amount decimal.Decimal) error {
	result := repo.writeDB(ctx).Model(&models.Wallet{}).
		Where("user_id = ? AND balance >= ?", userID, amount).
		UpdateColumns(map[string]any{
			"balance":     gorm.Expr("balance - ?", amount),
			"modified_at": time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrInsufficientFunds
	}
	return nil
}
