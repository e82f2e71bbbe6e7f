package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and records nothing.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Access control
	AuthzDecisionsTotal   *prometheus.CounterVec
	AuthzCacheHitsTotal   prometheus.Counter
	MembershipWritesTotal *prometheus.CounterVec

	// Invitations
	InvitationTransitionsTotal *prometheus.CounterVec
	InvitationsSweptTotal      prometheus.Counter

	// Audit
	AuditRecordsTotal *prometheus.CounterVec

	// Sequences
	SequenceIssuedTotal     *prometheus.CounterVec
	SequenceContentionTotal prometheus.Counter

	// Database pool
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hearth_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "hearth_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),

		AuthzDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hearth_authz_decisions_total",
				Help: "Authorization decisions by outcome and capability",
			},
			[]string{"decision", "capability"},
		),
		AuthzCacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "hearth_authz_cache_hits_total",
				Help: "Authorization decisions served from the membership cache",
			},
		),
		MembershipWritesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hearth_membership_writes_total",
				Help: "Membership writes by operation",
			},
			[]string{"operation"},
		),

		InvitationTransitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hearth_invitation_transitions_total",
				Help: "Invitation state transitions by target status",
			},
			[]string{"status"},
		),
		InvitationsSweptTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "hearth_invitations_swept_total",
				Help: "Pending invitations moved to expired by the sweeper",
			},
		),

		AuditRecordsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hearth_audit_records_total",
				Help: "History records appended by entity type",
			},
			[]string{"entity_type"},
		),

		SequenceIssuedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hearth_sequence_issued_total",
				Help: "Sequence identifiers issued by prefix",
			},
			[]string{"prefix"},
		),
		SequenceContentionTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "hearth_sequence_contention_total",
				Help: "Sequence allocations that failed with a transient backend error",
			},
		),

		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "hearth_db_connections_active",
				Help: "Number of active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "hearth_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.AuthzDecisionsTotal,
		m.AuthzCacheHitsTotal,
		m.MembershipWritesTotal,
		m.InvitationTransitionsTotal,
		m.InvitationsSweptTotal,
		m.AuditRecordsTotal,
		m.SequenceIssuedTotal,
		m.SequenceContentionTotal,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
	)

	return m
}

// RecordDecision counts an authorization decision
func (m *Metrics) RecordDecision(allowed bool, capability string) {
	if m == nil {
		return
	}
	decision := "deny"
	if allowed {
		decision = "allow"
	}
	m.AuthzDecisionsTotal.WithLabelValues(decision, capability).Inc()
}

// RecordCacheHit counts a decision answered from cache
func (m *Metrics) RecordCacheHit() {
	if m == nil {
		return
	}
	m.AuthzCacheHitsTotal.Inc()
}

// RecordMembershipWrite counts a membership write
func (m *Metrics) RecordMembershipWrite(operation string) {
	if m == nil {
		return
	}
	m.MembershipWritesTotal.WithLabelValues(operation).Inc()
}

// RecordInvitationTransition counts an invitation reaching status
func (m *Metrics) RecordInvitationTransition(status string) {
	if m == nil {
		return
	}
	m.InvitationTransitionsTotal.WithLabelValues(status).Inc()
}

// RecordInvitationsSwept adds n expired invitations
func (m *Metrics) RecordInvitationsSwept(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.InvitationsSweptTotal.Add(float64(n))
	m.InvitationTransitionsTotal.WithLabelValues("expired").Add(float64(n))
}

// RecordAudit counts an appended history record
func (m *Metrics) RecordAudit(entityType string) {
	if m == nil {
		return
	}
	m.AuditRecordsTotal.WithLabelValues(entityType).Inc()
}

// RecordSequenceIssued counts an issued identifier
func (m *Metrics) RecordSequenceIssued(prefix string) {
	if m == nil {
		return
	}
	m.SequenceIssuedTotal.WithLabelValues(prefix).Inc()
}

// RecordSequenceContention counts a transient counter failure
func (m *Metrics) RecordSequenceContention() {
	if m == nil {
		return
	}
	m.SequenceContentionTotal.Inc()
}

// UpdateDBStats copies pool statistics into the gauges
func (m *Metrics) UpdateDBStats(active, idle int) {
	if m == nil {
		return
	}
	m.DBConnectionsActive.Set(float64(active))
	m.DBConnectionsIdle.Set(float64(idle))
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics.
// Requests are labelled with the matched mux route template so tenant ids do
// not explode label cardinality.
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if metrics == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			route := routeTemplate(r)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(mux *http.ServeMux, gatherer prometheus.Gatherer) {
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
}
