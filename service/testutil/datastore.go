// Package testutil provides an in-memory datastore for package tests.
package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/werachapchap/service-payments/service/models"
)

// Datastore satisfies repository.Datastore over a private in-memory SQLite
// database. A single connection serialises writers the way row locks would.
type Datastore struct {
	db *gorm.DB
}

func NewDatastore(t testing.TB) *Datastore {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("could not open sqlite: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("could not get sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(models.AllModels()...); err != nil {
		t.Fatalf("could not migrate: %v", err)
	}
	return &Datastore{db: db}
}

func (ds *Datastore) DB(ctx context.Context, _ bool) *gorm.DB {
	return ds.db.WithContext(ctx)
}

// SeedTask inserts a task awaiting payment.
func (ds *Datastore) SeedTask(t testing.TB, owner string, budget int64) *models.Task {
	t.Helper()
	task := &models.Task{
		Title:    "Deliver groceries",
		PostedBy: owner,
		Budget:   decimal.NewFromInt(budget),
		Status:   models.TaskPaymentPending,
	}
	task.GenID(context.Background())
	if err := ds.db.Create(task).Error; err != nil {
		t.Fatalf("could not seed task: %v", err)
	}
	return task
}

// SeedWallet inserts a wallet with the given balance.
func (ds *Datastore) SeedWallet(t testing.TB, userID string, balance int64) *models.Wallet {
	t.Helper()
	wallet := &models.Wallet{UserID: userID, Balance: decimal.NewFromInt(balance)}
	wallet.GenID(context.Background())
	if err := ds.db.Create(wallet).Error; err != nil {
		t.Fatalf("could not seed wallet: %v", err)
	}
	return wallet
}

func (ds *Datastore) Task(t testing.TB, id string) *models.Task {
	t.Helper()
	task := &models.Task{}
	if err := ds.db.First(task, "id = ?", id).Error; err != nil {
		t.Fatalf("could not load task %s: %v", id, err)
	}
	return task
}

func (ds *Datastore) Payment(t testing.TB, id string) *models.Payment {
	t.Helper()
	payment := &models.Payment{}
	if err := ds.db.First(payment, "id = ?", id).Error; err != nil {
		t.Fatalf("could not load payment %s: %v", id, err)
	}
	return payment
}

func (ds *Datastore) Withdrawal(t testing.TB, id string) *models.WithdrawalRequest {
	t.Helper()
	withdrawal := &models.WithdrawalRequest{}
	if err := ds.db.First(withdrawal, "id = ?", id).Error; err != nil {
		t.Fatalf("could not load withdrawal %s: %v", id, err)
	}
	return withdrawal
}

func (ds *Datastore) Wallet(t testing.TB, userID string) *models.Wallet {
	t.Helper()
	wallet := &models.Wallet{}
	if err := ds.db.First(wallet, "user_id = ?", userID).Error; err != nil {
		t.Fatalf("could not load wallet %s: %v", userID, err)
	}
	return wallet
}

// CountPayments counts every payment row.
func (ds *Datastore) CountPayments(t testing.TB) int64 {
	t.Helper()
	var count int64
	if err := ds.db.Model(&models.Payment{}).Count(&count).Error; err != nil {
		t.Fatalf("could not count payments: %v", err)
	}
	return count
}

// Backdate moves a row's created_at and modified_at into the past.
func (ds *Datastore) Backdate(t testing.TB, model any, id string, by time.Duration) {
	t.Helper()
	at := time.Now().Add(-by)
	err := ds.db.Model(model).Where("id = ?", id).
		UpdateColumns(map[string]any{"created_at": at, "modified_at": at}).Error
	if err != nil {
		t.Fatalf("could not backdate: %v", err)
	}
}
