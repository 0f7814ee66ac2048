package store

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var errNoTransaction = errors.New("no transaction in progress")

type txKey struct{}

// Tx is a gorm transaction carried in a context. Store methods called with
// that context run inside it until Commit or Rollback clears it.
type Tx struct {
	db *gorm.DB
}

func newTransactionContext(ctx context.Context, db *gorm.DB) (context.Context, error) {
	if current, ok := ctx.Value(txKey{}).(*Tx); ok && current != nil && current.db != nil {
		return ctx, nil
	}
	begun := db.WithContext(ctx).Begin()
	if begun.Error != nil {
		return ctx, begun.Error
	}
	return context.WithValue(ctx, txKey{}, &Tx{db: begun}), nil
}

// FromContext returns the transaction bound to ctx, or nil.
func FromContext(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*Tx); ok && tx != nil {
		return tx.db
	}
	return nil
}

func Commit(ctx context.Context) (context.Context, error) {
	return finish(ctx, "commit", func(db *gorm.DB) *gorm.DB { return db.Commit() })
}

func Rollback(ctx context.Context) (context.Context, error) {
	return finish(ctx, "rollback", func(db *gorm.DB) *gorm.DB { return db.Rollback() })
}

func finish(ctx context.Context, action string, end func(*gorm.DB) *gorm.DB) (context.Context, error) {
	tx, ok := ctx.Value(txKey{}).(*Tx)
	if !ok || tx == nil {
		return ctx, nil
	}
	detached := context.WithValue(ctx, txKey{}, (*Tx)(nil))
	if tx.db == nil {
		return detached, errNoTransaction
	}
	err := end(tx.db).Error
	tx.db = nil
	if err != nil {
		zap.S().Named("store").Errorw("transaction "+action+" failed", "error", err)
	}
	return detached, err
}
