// Package contextkeys defines the typed keys hearth stores in a
// context.Context: the authenticated principal, the request id, the request
// logger and the active unit of work.
//
//	ctx = contextkeys.WithPrincipalID(ctx, principalID)
//	principalID, ok := contextkeys.GetPrincipalID(ctx)
package contextkeys

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
)

// Key is the type for context keys to prevent collisions
type Key string

const (
	// PrincipalIDKey contains the authenticated principal's uuid.UUID
	// Set by: middleware.AuthMiddleware (pkg/middleware/auth.go)
	// Required by: every tenant-scoped handler
	PrincipalIDKey Key = "principal_id"

	// RequestIDKey contains request ID string (UUID)
	// Set by: httputil.RequestIDMiddleware
	// Used by: Logger, tracing
	RequestIDKey Key = "request_id"

	// LoggerKey contains *observability.Logger
	// Set by: httputil.RequestIDMiddleware
	// Used by: Handlers that need structured logging with request context
	LoggerKey Key = "logger"

	// TxKey contains the *sql.Tx of the current unit of work
	// Set by: storage.RunInTx
	// Used by: Postgres stores that must join the caller's transaction
	TxKey Key = "sql_tx"

	// UnitOfWorkKey marks a context that is already inside a unit of work and
	// carries its after-commit callbacks
	// Set by: storage.SQLUnitOfWork, storage.LocalUnitOfWork
	UnitOfWorkKey Key = "unit_of_work"
)

// WithPrincipalID adds the authenticated principal to the context
func WithPrincipalID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, PrincipalIDKey, id)
}

// GetPrincipalID retrieves the authenticated principal from context
func GetPrincipalID(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(PrincipalIDKey).(uuid.UUID)
	if !ok || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// WithTx attaches a transaction to the context
func WithTx(ctx context.Context, tx *sql.Tx) context.Context {
	return context.WithValue(ctx, TxKey, tx)
}

// GetTx retrieves the transaction of the current unit of work, if any
func GetTx(ctx context.Context) *sql.Tx {
	if tx, ok := ctx.Value(TxKey).(*sql.Tx); ok {
		return tx
	}
	return nil
}
