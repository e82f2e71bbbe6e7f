package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetrics_Registers(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)

	m.RecordDecision(true, "view_jobs")
	m.RecordDecision(false, "view_jobs")
	m.RecordDecision(false, "view_jobs")

	if got := testutil.ToFloat64(m.AuthzDecisionsTotal.WithLabelValues("allow", "view_jobs")); got != 1 {
		t.Errorf("Expected 1 allow, got %v", got)
	}
	if got := testutil.ToFloat64(m.AuthzDecisionsTotal.WithLabelValues("deny", "view_jobs")); got != 2 {
		t.Errorf("Expected 2 deny, got %v", got)
	}

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	if len(families) == 0 {
		t.Error("Expected registered metric families")
	}
}

func TestMetrics_Recorders(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordInvitationTransition("accepted")
	m.RecordInvitationsSwept(3)
	m.RecordInvitationsSwept(0)
	m.RecordAudit("job")
	m.RecordSequenceIssued("JOB")
	m.RecordSequenceContention()
	m.RecordCacheHit()
	m.RecordMembershipWrite("upsert")
	m.UpdateDBStats(4, 2)

	checks := []struct {
		name string
		c    prometheus.Collector
		want float64
	}{
		{"accepted", m.InvitationTransitionsTotal.WithLabelValues("accepted"), 1},
		{"expired", m.InvitationTransitionsTotal.WithLabelValues("expired"), 3},
		{"swept", m.InvitationsSweptTotal, 3},
		{"audit", m.AuditRecordsTotal.WithLabelValues("job"), 1},
		{"sequence", m.SequenceIssuedTotal.WithLabelValues("JOB"), 1},
		{"contention", m.SequenceContentionTotal, 1},
		{"cache", m.AuthzCacheHitsTotal, 1},
		{"membership", m.MembershipWritesTotal.WithLabelValues("upsert"), 1},
		{"db active", m.DBConnectionsActive, 4},
		{"db idle", m.DBConnectionsIdle, 2},
	}
	for _, c := range checks {
		if got := testutil.ToFloat64(c.c); got != c.want {
			t.Errorf("%s: expected %v, got %v", c.name, c.want, got)
		}
	}
}

func TestMetrics_NilReceiver(t *testing.T) {
	var m *Metrics
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("nil metrics panicked: %v", r)
		}
	}()
	m.RecordDecision(true, "x")
	m.RecordAudit("job")
	m.RecordSequenceIssued("JOB")
	m.RecordSequenceContention()
	m.RecordInvitationsSwept(1)
}

func TestHTTPMetricsMiddleware(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	router := mux.NewRouter()
	router.Use(HTTPMetricsMiddleware(m))
	router.HandleFunc("/tenants/{tenant_id}/jobs", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})

	req := httptest.NewRequest(http.MethodPost, "/tenants/abc/jobs", nil)
	router.ServeHTTP(httptest.NewRecorder(), req)

	got := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("POST", "/tenants/{tenant_id}/jobs", "201"))
	if got != 1 {
		t.Errorf("Expected request counted under route template, got %v", got)
	}
}

func TestRegisterMetricsEndpoint(t *testing.T) {
	registry := prometheus.NewRegistry()
	NewMetrics(registry).RecordAudit("contact")

	mux := http.NewServeMux()
	RegisterMetricsEndpoint(mux, registry)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "hearth_audit_records_total") {
		t.Error("Expected hearth_audit_records_total in output")
	}
}
