package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

func TestHealthChecker_Check(t *testing.T) {
	t.Run("no dependencies is healthy", func(t *testing.T) {
		status := NewHealthChecker(nil, nil).Check(context.Background())
		if status.Status != StatusHealthy {
			t.Errorf("Expected healthy, got %s", status.Status)
		}
		if status.Version == "" {
			t.Error("Expected a version")
		}
	})

	t.Run("database failure is unhealthy", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		if err != nil {
			t.Fatalf("Failed to create mock db: %v", err)
		}
		defer db.Close()
		mock.ExpectQuery("SELECT 1").WillReturnError(errors.New("connection refused"))

		status := NewHealthChecker(db, nil).Check(context.Background())
		if status.Status != StatusUnhealthy {
			t.Errorf("Expected unhealthy, got %s", status.Status)
		}
		if status.Dependencies["database"].Message == "" {
			t.Error("Expected failure message")
		}
	})

	t.Run("database and redis healthy", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		if err != nil {
			t.Fatalf("Failed to create mock db: %v", err)
		}
		defer db.Close()
		mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

		mr, err := miniredis.Run()
		if err != nil {
			t.Fatalf("Failed to start miniredis: %v", err)
		}
		defer mr.Close()
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		defer client.Close()

		status := NewHealthChecker(db, client).Check(context.Background())
		if status.Status != StatusHealthy {
			t.Errorf("Expected healthy, got %s (%+v)", status.Status, status.Dependencies)
		}
		if _, ok := status.Dependencies["redis"]; !ok {
			t.Error("Expected redis dependency")
		}
	})

	t.Run("redis down is unhealthy", func(t *testing.T) {
		mr, err := miniredis.Run()
		if err != nil {
			t.Fatalf("Failed to start miniredis: %v", err)
		}
		client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
		defer client.Close()
		mr.Close()

		status := NewHealthChecker(nil, client).Check(context.Background())
		if status.Status != StatusUnhealthy {
			t.Errorf("Expected unhealthy, got %s", status.Status)
		}
	})
}

func TestHealthChecker_Handlers(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock db: %v", err)
	}
	defer db.Close()
	mock.ExpectQuery("SELECT 1").WillReturnError(errors.New("down"))

	mux := http.NewServeMux()
	RegisterHealthRoutes(mux, NewHealthChecker(db, nil))

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if w.Code != http.StatusOK {
		t.Errorf("Expected liveness 200, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected readiness 503, got %d", w.Code)
	}

	var status HealthStatus
	if err := json.NewDecoder(w.Body).Decode(&status); err != nil {
		t.Fatalf("Failed to decode: %v", err)
	}
	if status.Status != StatusUnhealthy {
		t.Errorf("Expected unhealthy body, got %s", status.Status)
	}
}

func TestHealthChecker_Probes(t *testing.T) {
	h := NewHealthChecker(nil, nil)
	h.AddProbe("catalog_file", true, func(context.Context) error { return errors.New("missing") })
	h.AddProbe("pool", false, func(context.Context) error { return Degraded("busy") })

	status := h.Check(context.Background())
	if status.Status != StatusDegraded {
		t.Fatalf("Expected degraded, got %s", status.Status)
	}
	if got := status.Dependencies["catalog_file"]; got.Status != StatusDegraded || got.Message != "missing" {
		t.Errorf("Unexpected optional probe result %+v", got)
	}
	if got := status.Dependencies["pool"].Status; got != StatusDegraded {
		t.Errorf("Expected degraded pool, got %s", got)
	}

	h.AddProbe("counter", false, func(context.Context) error { return errors.New("down") })
	if got := h.Check(context.Background()).Status; got != StatusUnhealthy {
		t.Errorf("Expected unhealthy once a required probe fails, got %s", got)
	}
}
