package observability

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

const readinessTimeout = 5 * time.Second

// errDegraded marks a probe result that is usable but impaired
var errDegraded = errors.New("degraded")

// ProbeFunc checks one dependency. Wrapping Degraded in the returned error
// reports the dependency as degraded instead of unhealthy.
type ProbeFunc func(ctx context.Context) error

// Degraded wraps msg so a probe reports degraded
func Degraded(msg string) error {
	return &degradedError{msg: msg}
}

type degradedError struct{ msg string }

func (e *degradedError) Error() string { return e.msg }
func (e *degradedError) Unwrap() error { return errDegraded }

type probe struct {
	name string
	// optional probes can only degrade the service
	optional bool
	fn       ProbeFunc
}

// HealthChecker runs readiness probes against the service's dependencies
type HealthChecker struct {
	probes  []probe
	version string
}

// NewHealthChecker probes the database and, when the sequence counter runs
// there, Redis. Either may be nil.
func NewHealthChecker(db *sql.DB, rdb *redis.Client) *HealthChecker {
	h := &HealthChecker{version: "devel"}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		h.version = info.Main.Version
	}
	if db != nil {
		h.AddProbe("database", false, databaseProbe(db))
	}
	if rdb != nil {
		h.AddProbe("redis", false, func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
	}
	return h
}

// AddProbe registers an extra dependency check. Failures of optional probes
// degrade the service without failing readiness.
func (h *HealthChecker) AddProbe(name string, optional bool, fn ProbeFunc) {
	h.probes = append(h.probes, probe{name: name, optional: optional, fn: fn})
}

func databaseProbe(db *sql.DB) ProbeFunc {
	return func(ctx context.Context) error {
		var one int
		if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
			return errors.New("query failed: " + err.Error())
		}
		if s := db.Stats(); s.MaxOpenConnections > 0 && s.InUse >= s.MaxOpenConnections {
			return Degraded("connection pool exhausted")
		}
		return nil
	}
}

// HealthStatus is the readiness report
type HealthStatus struct {
	Status       string                      `json:"status"`
	Timestamp    time.Time                   `json:"timestamp"`
	Version      string                      `json:"version,omitempty"`
	Dependencies map[string]DependencyStatus `json:"dependencies,omitempty"`
}

// DependencyStatus is the result of one probe
type DependencyStatus struct {
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	LatencyMS int64     `json:"latency_ms"`
	Timestamp time.Time `json:"timestamp"`
}

var statusRank = map[string]int{StatusHealthy: 0, StatusDegraded: 1, StatusUnhealthy: 2}

// Check runs every probe in registration order. The overall status is the
// worst dependency status.
func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	report := HealthStatus{
		Status:       StatusHealthy,
		Timestamp:    time.Now(),
		Version:      h.version,
		Dependencies: make(map[string]DependencyStatus, len(h.probes)),
	}
	for _, p := range h.probes {
		dep := p.run(ctx)
		report.Dependencies[p.name] = dep
		if statusRank[dep.Status] > statusRank[report.Status] {
			report.Status = dep.Status
		}
	}
	return report
}

func (p probe) run(ctx context.Context) DependencyStatus {
	start := time.Now()
	err := p.fn(ctx)
	dep := DependencyStatus{Status: StatusHealthy, LatencyMS: time.Since(start).Milliseconds(), Timestamp: start}
	switch {
	case err == nil:
	case errors.Is(err, errDegraded) || p.optional:
		dep.Status, dep.Message = StatusDegraded, err.Error()
	default:
		dep.Status, dep.Message = StatusUnhealthy, err.Error()
	}
	return dep
}

func writeHealth(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

// Liveness answers 200 while the process runs
func (h *HealthChecker) Liveness(w http.ResponseWriter, r *http.Request) {
	writeHealth(w, http.StatusOK, HealthStatus{Status: StatusHealthy, Timestamp: time.Now(), Version: h.version})
}

// Readiness answers 503 when any required dependency is unhealthy
func (h *HealthChecker) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	report := h.Check(ctx)
	code := http.StatusOK
	if report.Status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	writeHealth(w, code, report)
}

// RegisterHealthRoutes mounts /health, /health/live and /health/ready
func RegisterHealthRoutes(mux *http.ServeMux, checker *HealthChecker) {
	mux.HandleFunc("/health", checker.Readiness)
	mux.HandleFunc("/health/live", checker.Liveness)
	mux.HandleFunc("/health/ready", checker.Readiness)
}
