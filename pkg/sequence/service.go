package sequence

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/platinummonkey/hearth/pkg/observability"
	"go.opentelemetry.io/otel/attribute"
)

// Service issues per-tenant, prefix-scoped identifiers such as JOB-000042
type Service struct {
	counter Counter
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewService creates a sequence service. logger and metrics may be nil.
func NewService(counter Counter, logger *observability.Logger, metrics *observability.Metrics) *Service {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &Service{counter: counter, logger: logger, metrics: metrics}
}

// Next returns the next identifier of (tenant, prefix). Identifiers are
// strictly increasing and never repeat, though a failed caller may leave a gap.
func (s *Service) Next(ctx context.Context, tenant uuid.UUID, prefix string) (string, error) {
	ctx, span := observability.Tracer().Start(ctx, "sequence.Service.Next")
	defer span.End()

	p, err := NormalizePrefix(prefix)
	if err != nil {
		return "", err
	}
	span.SetAttributes(attribute.String("tenant_id", tenant.String()), attribute.String("prefix", p))

	n, err := s.counter.Increment(ctx, tenant, p)
	if err != nil {
		if errors.Is(err, ErrSequenceContention) {
			s.metrics.RecordSequenceContention()
			s.logger.WithError(err).WithField("prefix", p).Warn("sequence contention")
		}
		span.RecordError(err)
		return "", err
	}

	s.metrics.RecordSequenceIssued(p)
	return Format(p, n), nil
}

// Reconcile raises the counter of (tenant, prefix) past the highest of the
// existing identifiers, so numbering can take over from a source that
// derived numbers by scanning. Identifiers of other prefixes are ignored.
func (s *Service) Reconcile(ctx context.Context, tenant uuid.UUID, prefix string, existing []string) (int64, error) {
	p, err := NormalizePrefix(prefix)
	if err != nil {
		return 0, err
	}

	var highest int64
	for _, id := range existing {
		idPrefix, n, err := Parse(id)
		if err != nil {
			return 0, err
		}
		if idPrefix == p && n > highest {
			highest = n
		}
	}

	value, err := s.counter.Seed(ctx, tenant, p, highest)
	if err != nil {
		return 0, fmt.Errorf("reconcile %s: %w", p, err)
	}

	s.logger.WithTenant(tenant).WithFields(map[string]interface{}{
		"prefix":  p,
		"scanned": len(existing),
		"value":   value,
	}).Info("sequence reconciled")
	return value, nil
}
