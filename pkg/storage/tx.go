package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/platinummonkey/hearth/pkg/contextkeys"
)

// Querier is the subset of *sql.DB and *sql.Tx used by the stores
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Q returns the transaction bound to ctx, or db when the caller is not inside
// a unit of work
func Q(ctx context.Context, db *sql.DB) Querier {
	if tx := contextkeys.GetTx(ctx); tx != nil {
		return tx
	}
	return db
}

// InTx reports whether ctx carries an open unit of work
func InTx(ctx context.Context) bool {
	return contextkeys.GetTx(ctx) != nil
}

// RunInTx runs fn inside a transaction. A transaction already bound to ctx is
// reused so nested units of work commit or roll back together with the outermost one.
func RunInTx(ctx context.Context, db *sql.DB, fn func(ctx context.Context) error) error {
	if InTx(ctx) {
		return fn(ctx)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(contextkeys.WithTx(ctx, tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
