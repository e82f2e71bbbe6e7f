//go:build integration

// Package storagetest starts a migrated PostgreSQL container for integration tests
package storagetest

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/platinummonkey/hearth/pkg/observability"
	"github.com/platinummonkey/hearth/pkg/storage"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Postgres starts a container, applies every migration and returns a pool.
// The container is terminated when the test finishes. Without a container
// runtime the test is skipped.
func Postgres(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	provider, err := testcontainers.ProviderDocker.GetProvider()
	if err != nil {
		t.Skip("Docker/Podman not available, skipping integration tests")
	}
	provider.Close()

	container, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("hearth_test"),
		postgres.WithUsername("hearth"),
		postgres.WithPassword("hearth_test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Skipf("Failed to start PostgreSQL container: %v", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sql.Open("postgres", connStr)
	require.NoError(t, err)
	require.NoError(t, db.PingContext(ctx))
	require.NoError(t, storage.Migrate(ctx, db, observability.NewNopLogger()))

	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Logf("Warning: failed to close database: %v", err)
		}
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := container.Terminate(cleanupCtx); err != nil {
			t.Errorf("Failed to terminate container: %v", err)
		}
	})
	return db
}

// Tenant inserts a principal and a tenant owned by it
func Tenant(t *testing.T, db *sql.DB) (tenant, owner uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	tenant, owner = uuid.New(), uuid.New()

	_, err := db.ExecContext(ctx, `INSERT INTO principals (id, display_name) VALUES ($1, 'owner')`, owner)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `INSERT INTO tenants (id, name, slug, owner_id) VALUES ($1, $2, $2, $3)`,
		tenant, "tenant-"+tenant.String(), owner)
	require.NoError(t, err)
	return tenant, owner
}
