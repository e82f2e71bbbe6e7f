package audit

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/platinummonkey/hearth/pkg/observability"
)

// Trail appends and reads entity history
type Trail struct {
	store   Store
	logger  *observability.Logger
	metrics *observability.Metrics
}

// Option configures a Trail
type Option func(*Trail)

// WithLogger sets the logger
func WithLogger(l *observability.Logger) Option {
	return func(t *Trail) { t.logger = l }
}

// WithMetrics records appends in m
func WithMetrics(m *observability.Metrics) Option {
	return func(t *Trail) { t.metrics = m }
}

// NewTrail creates a trail over store
func NewTrail(store Store, opts ...Option) *Trail {
	t := &Trail{store: store, logger: observability.NewNopLogger()}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func validate(rec *Record) error {
	switch {
	case rec.TenantID == uuid.Nil:
		return fmt.Errorf("%w: tenant is required", ErrInvalidRecord)
	case rec.EntityType == "":
		return fmt.Errorf("%w: entity type is required", ErrInvalidRecord)
	case rec.EntityID == uuid.Nil:
		return fmt.Errorf("%w: entity id is required", ErrInvalidRecord)
	case rec.Field == "":
		return fmt.Errorf("%w: field is required", ErrInvalidRecord)
	}
	return nil
}

// Append adds rec to its entity's history unconditionally. Called inside a
// unit of work, the record commits or rolls back with the mutation.
func (t *Trail) Append(ctx context.Context, rec *Record) error {
	if err := validate(rec); err != nil {
		return err
	}
	if err := t.store.Append(ctx, rec); err != nil {
		return err
	}

	t.metrics.RecordAudit(rec.EntityType)
	t.logger.WithFields(map[string]interface{}{
		"tenant_id":   rec.TenantID.String(),
		"entity_type": rec.EntityType,
		"entity_id":   rec.EntityID.String(),
		"field":       rec.Field,
	}).Debug("history appended")
	return nil
}

// Record appends c when its value actually changed. It reports whether a
// record was written.
func (t *Trail) Record(ctx context.Context, c Change) (bool, error) {
	if c.From == c.To {
		return false, nil
	}

	rec := &Record{
		TenantID:   c.Entity.TenantID,
		EntityType: c.Entity.Type,
		EntityID:   c.Entity.ID,
		Field:      c.Field,
		FromValue:  c.From,
		ToValue:    c.To,
		Reason:     c.Reason,
		ActorID:    c.ActorID,
	}
	if err := t.Append(ctx, rec); err != nil {
		return false, err
	}
	return true, nil
}

// History returns the records of an entity in insertion order
func (t *Trail) History(ctx context.Context, ref EntityRef) ([]Record, error) {
	return t.store.List(ctx, ref)
}
