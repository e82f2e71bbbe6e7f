package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/platinummonkey/hearth/pkg/observability"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// Migrations returns the schema migrations in version order
func Migrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create tenants and principals tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS principals (
					id UUID PRIMARY KEY,
					display_name VARCHAR(255) NOT NULL DEFAULT '',
					email VARCHAR(320),
					phone VARCHAR(32),
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE UNIQUE INDEX IF NOT EXISTS idx_principals_email ON principals(LOWER(email)) WHERE email IS NOT NULL;

				CREATE TABLE IF NOT EXISTS tenants (
					id UUID PRIMARY KEY,
					name VARCHAR(255) NOT NULL,
					slug VARCHAR(255) NOT NULL UNIQUE,
					owner_id UUID NOT NULL REFERENCES principals(id),
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);
			`,
		},
		{
			Version:     2,
			Description: "Create memberships table",
			SQL: `
				CREATE TABLE IF NOT EXISTS memberships (
					id UUID PRIMARY KEY,
					tenant_id UUID NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
					principal_id UUID NOT NULL REFERENCES principals(id) ON DELETE CASCADE,
					role VARCHAR(32) NOT NULL CHECK (role IN ('owner', 'admin', 'manager', 'employee', 'contractor', 'viewer')),
					capabilities JSONB NOT NULL CHECK (jsonb_array_length(capabilities) > 0),
					active BOOLEAN NOT NULL DEFAULT TRUE,
					invited_by UUID REFERENCES principals(id) ON DELETE SET NULL,
					joined_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					UNIQUE(tenant_id, principal_id)
				);

				CREATE INDEX IF NOT EXISTS idx_memberships_principal_active ON memberships(principal_id) WHERE active;
			`,
		},
		{
			Version:     3,
			Description: "Create invitations table",
			SQL: `
				CREATE TABLE IF NOT EXISTS invitations (
					id UUID PRIMARY KEY,
					tenant_id UUID NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
					inviter_id UUID NOT NULL REFERENCES principals(id),
					role VARCHAR(32) NOT NULL,
					capabilities JSONB NOT NULL,
					email VARCHAR(320),
					phone VARCHAR(32),
					status VARCHAR(16) NOT NULL DEFAULT 'pending'
						CHECK (status IN ('pending', 'accepted', 'declined', 'expired', 'cancelled')),
					token_hash VARCHAR(64) NOT NULL UNIQUE,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					expires_at TIMESTAMPTZ NOT NULL,
					resolved_at TIMESTAMPTZ,
					resolved_by UUID REFERENCES principals(id) ON DELETE SET NULL,
					CHECK (email IS NOT NULL OR phone IS NOT NULL),
					CHECK (expires_at > created_at)
				);

				CREATE INDEX IF NOT EXISTS idx_invitations_tenant ON invitations(tenant_id);
				CREATE INDEX IF NOT EXISTS idx_invitations_pending_expiry ON invitations(expires_at) WHERE status = 'pending';
			`,
		},
		{
			Version:     4,
			Description: "Create entity_history table",
			SQL: `
				CREATE TABLE IF NOT EXISTS entity_history (
					id BIGSERIAL PRIMARY KEY,
					tenant_id UUID NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
					entity_type VARCHAR(64) NOT NULL,
					entity_id UUID NOT NULL,
					field VARCHAR(64) NOT NULL,
					from_value TEXT NOT NULL DEFAULT '',
					to_value TEXT NOT NULL DEFAULT '',
					reason TEXT NOT NULL DEFAULT '',
					actor_id UUID,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_entity_history_entity ON entity_history(tenant_id, entity_type, entity_id, id);
			`,
		},
		{
			Version:     5,
			Description: "Create sequence_counters table",
			SQL: `
				CREATE TABLE IF NOT EXISTS sequence_counters (
					tenant_id UUID NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
					prefix VARCHAR(16) NOT NULL,
					value BIGINT NOT NULL CHECK (value >= 0),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					PRIMARY KEY (tenant_id, prefix)
				);
			`,
		},
		{
			Version:     6,
			Description: "Create contacts and jobs tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS contacts (
					id UUID PRIMARY KEY,
					tenant_id UUID NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
					name VARCHAR(255) NOT NULL,
					email VARCHAR(320) NOT NULL DEFAULT '',
					phone VARCHAR(32) NOT NULL DEFAULT '',
					relationship_status VARCHAR(32) NOT NULL,
					created_by UUID NOT NULL,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_contacts_tenant ON contacts(tenant_id);

				CREATE TABLE IF NOT EXISTS jobs (
					id UUID PRIMARY KEY,
					tenant_id UUID NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
					number VARCHAR(32) NOT NULL,
					title VARCHAR(255) NOT NULL,
					description TEXT NOT NULL DEFAULT '',
					status VARCHAR(32) NOT NULL,
					contact_id UUID REFERENCES contacts(id) ON DELETE SET NULL,
					assignee_id UUID,
					created_by UUID NOT NULL,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					UNIQUE(tenant_id, number)
				);

				CREATE INDEX IF NOT EXISTS idx_jobs_tenant ON jobs(tenant_id);
			`,
		},
	}
}

// Migrate applies every migration not yet recorded in schema_migrations.
// Each migration runs in its own transaction together with its bookkeeping row.
func Migrate(ctx context.Context, db *sql.DB, logger *observability.Logger) error {
	if logger == nil {
		logger = observability.NewNopLogger()
	}

	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := appliedVersions(ctx, db)
	if err != nil {
		return err
	}

	for _, migration := range Migrations() {
		if applied[migration.Version] {
			continue
		}

		logger.WithFields(map[string]interface{}{
			"version":     migration.Version,
			"description": migration.Description,
		}).Info("Running migration")

		err := RunInTx(ctx, db, func(ctx context.Context) error {
			q := Q(ctx, db)
			if _, err := q.ExecContext(ctx, migration.SQL); err != nil {
				return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
			}
			if _, err := q.ExecContext(ctx,
				"INSERT INTO schema_migrations (version, description) VALUES ($1, $2)",
				migration.Version, migration.Description,
			); err != nil {
				return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}

	return nil
}

func appliedVersions(ctx context.Context, db *sql.DB) (map[int]bool, error) {
	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, fmt.Errorf("failed to query migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}
	return applied, rows.Err()
}
