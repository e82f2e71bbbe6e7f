package orgs

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

// InvitationStore persists invitations
type InvitationStore interface {
	Create(ctx context.Context, inv *Invitation) error
	Get(ctx context.Context, id uuid.UUID) (*Invitation, error)
	ListForTenant(ctx context.Context, tenantID uuid.UUID) ([]*Invitation, error)

	// Update locks the invitation, lets fn mutate it and writes the result
	// only if no other writer changed its status in between. A lost race
	// fails with ErrInvalidTransition.
	Update(ctx context.Context, id uuid.UUID, fn func(ctx context.Context, inv *Invitation) error) (*Invitation, error)

	// ExpirePending moves every pending invitation of a tenant with
	// expires_at < now to expired and returns how many it moved
	ExpirePending(ctx context.Context, tenantID uuid.UUID, now time.Time) (int, error)

	// TenantsWithExpiredPending lists tenants holding pending invitations past expiry
	TenantsWithExpiredPending(ctx context.Context, now time.Time) ([]uuid.UUID, error)

	// PurgeTerminal deletes terminal invitations resolved before the cutoff
	PurgeTerminal(ctx context.Context, before time.Time) (int64, error)
}

const invitationColumns = `id, tenant_id, inviter_id, role, capabilities, email, phone, status, token_hash, created_at, expires_at, resolved_at, resolved_by`

// PostgresInvitationStore is the PostgreSQL invitation store
type PostgresInvitationStore struct {
	db *sql.DB
}

// NewPostgresInvitationStore creates a new invitation store
func NewPostgresInvitationStore(db *sql.DB) *PostgresInvitationStore {
	return &PostgresInvitationStore{db: db}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanInvitation(row rowScanner) (*Invitation, error) {
	var (
		inv          Invitation
		email, phone sql.NullString
		resolvedAt   sql.NullTime
		resolvedBy   uuid.NullUUID
	)
	if err := row.Scan(
		&inv.ID,
		&inv.TenantID,
		&inv.InviterID,
		&inv.Role,
		&inv.Capabilities,
		&email,
		&phone,
		&inv.Status,
		&inv.TokenHash,
		&inv.CreatedAt,
		&inv.ExpiresAt,
		&resolvedAt,
		&resolvedBy,
	); err != nil {
		return nil, err
	}
	inv.Contact = Contact{Email: email.String, Phone: phone.String}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		inv.ResolvedAt = &t
	}
	if resolvedBy.Valid {
		id := resolvedBy.UUID
		inv.ResolvedBy = &id
	}
	return &inv, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// Create implements InvitationStore
func (s *PostgresInvitationStore) Create(ctx context.Context, inv *Invitation) error {
	_, err := storage.Q(ctx, s.db).ExecContext(ctx, `
		INSERT INTO invitations (`+invitationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NULL, NULL)
	`, inv.ID, inv.TenantID, inv.InviterID, inv.Role, inv.Capabilities,
		nullString(inv.Contact.Email), nullString(inv.Contact.Phone),
		inv.Status, inv.TokenHash, inv.CreatedAt, inv.ExpiresAt)
	if postgres.IsForeignKeyViolation(err) {
		return fmt.Errorf("%w: %v", ErrTenantNotFound, err)
	}
	if err != nil {
		return fmt.Errorf("failed to create invitation: %w", err)
	}
	return nil
}

// Get implements InvitationStore
func (s *PostgresInvitationStore) Get(ctx context.Context, id uuid.UUID) (*Invitation, error) {
	inv, err := scanInvitation(storage.Q(ctx, s.db).QueryRowContext(ctx, `
		SELECT `+invitationColumns+`
		FROM invitations
		WHERE id = $1
	`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvitationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invitation: %w", err)
	}
	return inv, nil
}

// ListForTenant implements InvitationStore
func (s *PostgresInvitationStore) ListForTenant(ctx context.Context, tenantID uuid.UUID) ([]*Invitation, error) {
	rows, err := storage.Q(ctx, s.db).QueryContext(ctx, `
		SELECT `+invitationColumns+`
		FROM invitations
		WHERE tenant_id = $1
		ORDER BY created_at DESC, id
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list invitations: %w", err)
	}
	defer rows.Close()

	var invitations []*Invitation
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invitation: %w", err)
		}
		invitations = append(invitations, inv)
	}
	return invitations, rows.Err()
}

// Update implements InvitationStore with SELECT ... FOR UPDATE and a
// conditional write on the previous status
func (s *PostgresInvitationStore) Update(ctx context.Context, id uuid.UUID, fn func(ctx context.Context, inv *Invitation) error) (*Invitation, error) {
	var out *Invitation
	err := storage.RunInTx(ctx, s.db, func(ctx context.Context) error {
		q := storage.Q(ctx, s.db)

		inv, err := scanInvitation(q.QueryRowContext(ctx, `
			SELECT `+invitationColumns+`
			FROM invitations
			WHERE id = $1
			FOR UPDATE
		`, id))
		if errors.Is(err, sql.ErrNoRows) {
			return ErrInvitationNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to lock invitation: %w", err)
		}

		previous := inv.Status
		if err := fn(ctx, inv); err != nil {
			return err
		}

		result, err := q.ExecContext(ctx, `
			UPDATE invitations
			SET status = $2, resolved_at = $3, resolved_by = $4
			WHERE id = $1 AND status = $5
		`, inv.ID, inv.Status, nullTime(inv.ResolvedAt), nullUUID(inv.ResolvedBy), previous)
		if err != nil {
			return fmt.Errorf("failed to update invitation: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rows == 0 {
			return ErrInvalidTransition
		}

		out = inv
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ExpirePending implements InvitationStore
func (s *PostgresInvitationStore) ExpirePending(ctx context.Context, tenantID uuid.UUID, now time.Time) (int, error) {
	result, err := storage.Q(ctx, s.db).ExecContext(ctx, `
		UPDATE invitations
		SET status = 'expired', resolved_at = $2
		WHERE tenant_id = $1 AND status = 'pending' AND expires_at < $2
	`, tenantID, now)
	if err != nil {
		return 0, fmt.Errorf("failed to expire invitations: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(rows), nil
}

// TenantsWithExpiredPending implements InvitationStore
func (s *PostgresInvitationStore) TenantsWithExpiredPending(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	rows, err := storage.Q(ctx, s.db).QueryContext(ctx, `
		SELECT DISTINCT tenant_id
		FROM invitations
		WHERE status = 'pending' AND expires_at < $1
	`, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants with expired invitations: %w", err)
	}
	defer rows.Close()

	var tenants []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan tenant id: %w", err)
		}
		tenants = append(tenants, id)
	}
	return tenants, rows.Err()
}

// PurgeTerminal implements InvitationStore
func (s *PostgresInvitationStore) PurgeTerminal(ctx context.Context, before time.Time) (int64, error) {
	result, err := storage.Q(ctx, s.db).ExecContext(ctx, `
		DELETE FROM invitations
		WHERE status <> 'pending' AND COALESCE(resolved_at, expires_at) < $1
	`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to purge invitations: %w", err)
	}
	return result.RowsAffected()
}
