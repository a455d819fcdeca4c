package repository

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"
)

var (
	// ErrTransitionLost means a conditional update matched no row: another
	// writer already moved the record out of the expected state.
	ErrTransitionLost = errors.New("record is no longer in the expected state")

	ErrDuplicateKey = errors.New("record with the same unique key already exists")

	ErrNotFound = gorm.ErrRecordNotFound
)

// Datastore hands out database sessions. *frame.Service satisfies it.
type Datastore interface {
	DB(ctx context.Context, readOnly bool) *gorm.DB
}

type txKey struct{}

// WithTransaction runs fn inside a database transaction. Repositories built on
// the same Datastore join the transaction when called with the context passed
// to fn; returning an error rolls everything back.
func WithTransaction(ctx context.Context, store Datastore, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return fn(ctx)
	}
	return store.DB(ctx, false).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

type abstractRepository struct {
	store Datastore
}

func (ar *abstractRepository) readDB(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return tx.WithContext(ctx)
	}
	return ar.store.DB(ctx, true)
}

func (ar *abstractRepository) writeDB(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return tx.WithContext(ctx)
	}
	return ar.store.DB(ctx, false)
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate key")
}
