package rbac

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/platinummonkey/hearth/pkg/storage"
	"github.com/platinummonkey/hearth/pkg/storage/postgres"
)

// Store persists memberships
type Store interface {
	// Upsert updates the role and capabilities of an existing membership or
	// inserts a new one. A concurrent insert for the same (tenant, principal)
	// that wins the race makes the loser fail with ErrDuplicateMembership.
	Upsert(ctx context.Context, m *Membership, reactivate bool) (*Membership, error)

	// Get returns the membership of principal in tenant, active or not
	Get(ctx context.Context, tenantID, principalID uuid.UUID) (*Membership, error)

	// Update writes role, capabilities and the active flag of a membership
	Update(ctx context.Context, m *Membership) error

	// ListForTenant returns every membership of a tenant, oldest first
	ListForTenant(ctx context.Context, tenantID uuid.UUID) ([]*Membership, error)

	// ListForPrincipal returns the active memberships of a principal
	ListForPrincipal(ctx context.Context, principalID uuid.UUID) ([]*Membership, error)

	// SharesActiveTenant reports whether both principals are active members of a common tenant
	SharesActiveTenant(ctx context.Context, a, b uuid.UUID) (bool, error)

	// ActiveOwners returns the active owner memberships of a tenant, locking
	// them for the rest of the unit of work
	ActiveOwners(ctx context.Context, tenantID uuid.UUID) ([]*Membership, error)
}

const membershipColumns = `id, tenant_id, principal_id, role, capabilities, active, invited_by, joined_at, updated_at`

// PostgresStore is the PostgreSQL membership store. Calls join the
// transaction bound to ctx when there is one.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new membership store
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMembership(row rowScanner) (*Membership, error) {
	var (
		m         Membership
		invitedBy uuid.NullUUID
	)
	if err := row.Scan(
		&m.ID,
		&m.TenantID,
		&m.PrincipalID,
		&m.Role,
		&m.Capabilities,
		&m.Active,
		&invitedBy,
		&m.JoinedAt,
		&m.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if invitedBy.Valid {
		id := invitedBy.UUID
		m.InvitedBy = &id
	}
	return &m, nil
}

// Upsert implements Store
func (s *PostgresStore) Upsert(ctx context.Context, m *Membership, reactivate bool) (*Membership, error) {
	q := storage.Q(ctx, s.db)
	now := time.Now().UTC()

	updated, err := scanMembership(q.QueryRowContext(ctx, `
		UPDATE memberships
		SET role = $3, capabilities = $4, active = (active OR $5::boolean), updated_at = $6
		WHERE tenant_id = $1 AND principal_id = $2
		RETURNING `+membershipColumns,
		m.TenantID, m.PrincipalID, m.Role, m.Capabilities, reactivate, now,
	))
	if err == nil {
		return updated, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to update membership: %w", err)
	}

	id := m.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	var invitedBy uuid.NullUUID
	if m.InvitedBy != nil {
		invitedBy = uuid.NullUUID{UUID: *m.InvitedBy, Valid: true}
	}

	inserted, err := scanMembership(q.QueryRowContext(ctx, `
		INSERT INTO memberships (id, tenant_id, principal_id, role, capabilities, active, invited_by, joined_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, TRUE, $6, $7, $7)
		ON CONFLICT (tenant_id, principal_id) DO NOTHING
		RETURNING `+membershipColumns,
		id, m.TenantID, m.PrincipalID, m.Role, m.Capabilities, invitedBy, now,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDuplicateMembership
	}
	if postgres.IsUniqueViolation(err) {
		return nil, ErrDuplicateMembership
	}
	if err != nil {
		return nil, fmt.Errorf("failed to insert membership: %w", err)
	}
	return inserted, nil
}

// Get implements Store
func (s *PostgresStore) Get(ctx context.Context, tenantID, principalID uuid.UUID) (*Membership, error) {
	m, err := scanMembership(storage.Q(ctx, s.db).QueryRowContext(ctx, `
		SELECT `+membershipColumns+`
		FROM memberships
		WHERE tenant_id = $1 AND principal_id = $2
	`, tenantID, principalID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMembershipNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}
	return m, nil
}

// Update implements Store
func (s *PostgresStore) Update(ctx context.Context, m *Membership) error {
	m.UpdatedAt = time.Now().UTC()
	result, err := storage.Q(ctx, s.db).ExecContext(ctx, `
		UPDATE memberships
		SET role = $2, capabilities = $3, active = $4, updated_at = $5
		WHERE id = $1
	`, m.ID, m.Role, m.Capabilities, m.Active, m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update membership: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrMembershipNotFound
	}
	return nil
}

// ListForTenant implements Store
func (s *PostgresStore) ListForTenant(ctx context.Context, tenantID uuid.UUID) ([]*Membership, error) {
	return s.list(ctx, `
		SELECT `+membershipColumns+`
		FROM memberships
		WHERE tenant_id = $1
		ORDER BY joined_at, id
	`, tenantID)
}

// ListForPrincipal implements Store
func (s *PostgresStore) ListForPrincipal(ctx context.Context, principalID uuid.UUID) ([]*Membership, error) {
	return s.list(ctx, `
		SELECT `+membershipColumns+`
		FROM memberships
		WHERE principal_id = $1 AND active
		ORDER BY joined_at, id
	`, principalID)
}

// ActiveOwners implements Store
func (s *PostgresStore) ActiveOwners(ctx context.Context, tenantID uuid.UUID) ([]*Membership, error) {
	return s.list(ctx, `
		SELECT `+membershipColumns+`
		FROM memberships
		WHERE tenant_id = $1 AND role = 'owner' AND active
		ORDER BY joined_at, id
		FOR UPDATE
	`, tenantID)
}

func (s *PostgresStore) list(ctx context.Context, query string, args ...interface{}) ([]*Membership, error) {
	rows, err := storage.Q(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	defer rows.Close()

	var memberships []*Membership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		memberships = append(memberships, m)
	}
	return memberships, rows.Err()
}

// SharesActiveTenant implements Store
func (s *PostgresStore) SharesActiveTenant(ctx context.Context, a, b uuid.UUID) (bool, error) {
	var shared bool
	err := storage.Q(ctx, s.db).QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM memberships ma
			JOIN memberships mb ON mb.tenant_id = ma.tenant_id
			WHERE ma.principal_id = $1 AND ma.active
			  AND mb.principal_id = $2 AND mb.active
		)
	`, a, b).Scan(&shared)
	if err != nil {
		return false, fmt.Errorf("failed to check shared tenant: %w", err)
	}
	return shared, nil
}
