// Package observability carries hearth's logging, metrics, tracing, health
// probes and shutdown sequencing.
//
// Loggers write logrus JSON lines. Request handlers take theirs from the
// context so entries carry the request id, the principal and the span:
//
//	observability.FromContext(ctx).WithTenant(tenantID).Info("membership upserted")
//
// Metrics are registered on a caller supplied registry. Every Record* helper
// tolerates a nil *Metrics, so services and tests can run without one:
//
//	metrics := observability.NewMetrics(prometheus.NewRegistry())
//	metrics.RecordDecision(true, "view_jobs")
//
// Spans are started from Tracer(); InitOTel swaps the global provider for an
// OTLP exporter when tracing is enabled.
//
// The health server answers /health/live and /health/ready. Readiness runs
// the database and Redis probes plus any registered with AddProbe.
package observability
