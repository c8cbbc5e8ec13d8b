package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
)

type txContextKey string

const txKey = txContextKey("tx-context-key")

// Tx is the subset of sqlx.Tx the repositories write through
type Tx interface {
	IsOpen() bool
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

type txBeginner interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

// Transaction wraps sqlx.Tx. A Transaction joined from the context leaves Commit and
// Rollback to the caller that began it.
type Transaction struct {
	*sqlx.Tx
	logger ectologger.Logger
	closed *bool
	joined bool
}

func NewTx(tx *sqlx.Tx, logger ectologger.Logger) *Transaction {
	closed := false
	return &Transaction{Tx: tx, logger: logger, closed: &closed}
}

// GetTx returns the open transaction carried by ctx, or begins one and returns a ctx carrying it
func GetTx(ctx context.Context, logger ectologger.Logger, db txBeginner, opts *sql.TxOptions) (context.Context, Tx, error) {
	if outer, ok := ctx.Value(txKey).(*Transaction); ok && outer.IsOpen() {
		return ctx, &Transaction{Tx: outer.Tx, logger: outer.logger, closed: outer.closed, joined: true}, nil
	}

	tx, err := db.BeginTxx(ctx, opts)
	if err != nil {
		logger.WithContext(ctx).WithError(err).Error("error while beginning transaction")
		return ctx, nil, fmt.Errorf("error while beginning transaction: %w", err)
	}

	newTx := NewTx(tx, logger)
	return context.WithValue(ctx, txKey, newTx), newTx, nil
}

func (t *Transaction) IsOpen() bool {
	return !*t.closed
}

func (t *Transaction) Rollback(ctx context.Context) error {
	if t.joined || *t.closed {
		return nil
	}

	*t.closed = true
	if err := t.Tx.Rollback(); err != nil {
		t.logger.WithContext(ctx).WithError(err).Error("error while rolling back transaction")
		return fmt.Errorf("error while rolling back transaction")
	}
	return nil
}

func (t *Transaction) Commit(ctx context.Context) error {
	if t.joined || *t.closed {
		return nil
	}

	*t.closed = true
	if err := t.Tx.Commit(); err != nil {
		t.logger.WithContext(ctx).WithError(err).Error("error while committing transaction")
		return fmt.Errorf("error while committing transaction")
	}
	return nil
}
