package rbac

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock, *sql.DB) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return NewPostgresStore(db), mock, db
}

var membershipRowColumns = []string{
	"id", "tenant_id", "principal_id", "role", "capabilities", "active", "invited_by", "joined_at", "updated_at",
}

func membershipRows(ms ...*Membership) *sqlmock.Rows {
	rows := sqlmock.NewRows(membershipRowColumns)
	for _, m := range ms {
		var invitedBy interface{}
		if m.InvitedBy != nil {
			invitedBy = m.InvitedBy.String()
		}
		caps, _ := m.Capabilities.Value()
		rows.AddRow(m.ID.String(), m.TenantID.String(), m.PrincipalID.String(), string(m.Role),
			caps, m.Active, invitedBy, m.JoinedAt, m.UpdatedAt)
	}
	return rows
}

func sampleMembership(role Role, caps ...Capability) *Membership {
	now := time.Now().UTC().Truncate(time.Second)
	return &Membership{
		ID:           uuid.New(),
		TenantID:     uuid.New(),
		PrincipalID:  uuid.New(),
		Role:         role,
		Capabilities: NewCapabilitySet(caps...),
		Active:       true,
		JoinedAt:     now,
		UpdatedAt:    now,
	}
}

func TestPostgresStoreUpsert(t *testing.T) {
	ctx := context.Background()

	t.Run("updates an existing membership", func(t *testing.T) {
		store, mock, db := newMockStore(t)
		defer db.Close()

		m := sampleMembership(RoleManager, CapViewJobs, CapAssignJobs)
		mock.ExpectQuery(`UPDATE memberships\s+SET role = \$3, capabilities = \$4, active = \(active OR \$5::boolean\)`).
			WithArgs(m.TenantID, m.PrincipalID, string(RoleManager), sqlmock.AnyArg(), true, sqlmock.AnyArg()).
			WillReturnRows(membershipRows(m))

		got, err := store.Upsert(ctx, m, true)
		require.NoError(t, err)
		assert.Equal(t, m.ID, got.ID)
		assert.Equal(t, RoleManager, got.Role)
		assert.Equal(t, m.Capabilities, got.Capabilities)
		assert.Nil(t, got.InvitedBy)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("inserts when missing", func(t *testing.T) {
		store, mock, db := newMockStore(t)
		defer db.Close()

		inviter := uuid.New()
		m := sampleMembership(RoleEmployee, CapViewJobs)
		m.InvitedBy = &inviter

		mock.ExpectQuery(`UPDATE memberships`).WillReturnError(sql.ErrNoRows)
		mock.ExpectQuery(`INSERT INTO memberships .* ON CONFLICT \(tenant_id, principal_id\) DO NOTHING`).
			WithArgs(m.ID, m.TenantID, m.PrincipalID, string(RoleEmployee), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnRows(membershipRows(m))

		got, err := store.Upsert(ctx, m, false)
		require.NoError(t, err)
		require.NotNil(t, got.InvitedBy)
		assert.Equal(t, inviter, *got.InvitedBy)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("losing a concurrent insert", func(t *testing.T) {
		store, mock, db := newMockStore(t)
		defer db.Close()

		m := sampleMembership(RoleEmployee, CapViewJobs)
		mock.ExpectQuery(`UPDATE memberships`).WillReturnRows(sqlmock.NewRows(membershipRowColumns))
		mock.ExpectQuery(`INSERT INTO memberships`).WillReturnRows(sqlmock.NewRows(membershipRowColumns))

		_, err := store.Upsert(ctx, m, false)
		assert.ErrorIs(t, err, ErrDuplicateMembership)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unique violation", func(t *testing.T) {
		store, mock, db := newMockStore(t)
		defer db.Close()

		m := sampleMembership(RoleEmployee, CapViewJobs)
		mock.ExpectQuery(`UPDATE memberships`).WillReturnRows(sqlmock.NewRows(membershipRowColumns))
		mock.ExpectQuery(`INSERT INTO memberships`).WillReturnError(&pq.Error{Code: "23505"})

		_, err := store.Upsert(ctx, m, false)
		assert.ErrorIs(t, err, ErrDuplicateMembership)
	})

	t.Run("database error", func(t *testing.T) {
		store, mock, db := newMockStore(t)
		defer db.Close()

		mock.ExpectQuery(`UPDATE memberships`).WillReturnError(sql.ErrConnDone)

		_, err := store.Upsert(ctx, sampleMembership(RoleViewer, CapViewJobs), false)
		assert.ErrorIs(t, err, sql.ErrConnDone)
		assert.NotErrorIs(t, err, ErrDuplicateMembership)
	})
}

func TestPostgresStoreGet(t *testing.T) {
	ctx := context.Background()
	store, mock, db := newMockStore(t)
	defer db.Close()

	m := sampleMembership(RoleOwner, Wildcard)

	t.Run("found", func(t *testing.T) {
		mock.ExpectQuery(`SELECT .* FROM memberships\s+WHERE tenant_id = \$1 AND principal_id = \$2`).
			WithArgs(m.TenantID, m.PrincipalID).
			WillReturnRows(membershipRows(m))

		got, err := store.Get(ctx, m.TenantID, m.PrincipalID)
		require.NoError(t, err)
		assert.True(t, got.Capabilities.IsWildcard())
		assert.True(t, got.Active)
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectQuery(`SELECT .* FROM memberships`).
			WillReturnRows(sqlmock.NewRows(membershipRowColumns))

		_, err := store.Get(ctx, m.TenantID, uuid.New())
		assert.ErrorIs(t, err, ErrMembershipNotFound)
	})

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreUpdate(t *testing.T) {
	ctx := context.Background()
	store, mock, db := newMockStore(t)
	defer db.Close()

	m := sampleMembership(RoleEmployee, CapViewJobs)
	m.Active = false

	mock.ExpectExec(`UPDATE memberships\s+SET role = \$2, capabilities = \$3, active = \$4`).
		WithArgs(m.ID, string(RoleEmployee), sqlmock.AnyArg(), false, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, store.Update(ctx, m))

	mock.ExpectExec(`UPDATE memberships`).WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, store.Update(ctx, m), ErrMembershipNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreLists(t *testing.T) {
	ctx := context.Background()
	store, mock, db := newMockStore(t)
	defer db.Close()

	a := sampleMembership(RoleOwner, Wildcard)
	b := sampleMembership(RoleViewer, CapViewJobs)
	b.TenantID = a.TenantID

	mock.ExpectQuery(`WHERE tenant_id = \$1\s+ORDER BY joined_at, id`).
		WithArgs(a.TenantID).
		WillReturnRows(membershipRows(a, b))
	all, err := store.ListForTenant(ctx, a.TenantID)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	mock.ExpectQuery(`WHERE principal_id = \$1 AND active`).
		WithArgs(b.PrincipalID).
		WillReturnRows(membershipRows(b))
	mine, err := store.ListForPrincipal(ctx, b.PrincipalID)
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	mock.ExpectQuery(`role = 'owner' AND active\s+ORDER BY joined_at, id\s+FOR UPDATE`).
		WithArgs(a.TenantID).
		WillReturnRows(membershipRows(a))
	owners, err := store.ActiveOwners(ctx, a.TenantID)
	require.NoError(t, err)
	require.Len(t, owners, 1)
	assert.Equal(t, a.PrincipalID, owners[0].PrincipalID)

	mock.ExpectQuery(`WHERE tenant_id = \$1`).WillReturnError(sql.ErrConnDone)
	_, err = store.ListForTenant(ctx, a.TenantID)
	assert.Error(t, err)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreSharesActiveTenant(t *testing.T) {
	ctx := context.Background()
	store, mock, db := newMockStore(t)
	defer db.Close()

	a, b := uuid.New(), uuid.New()
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs(a, b).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	shared, err := store.SharesActiveTenant(ctx, a, b)
	require.NoError(t, err)
	assert.True(t, shared)
	require.NoError(t, mock.ExpectationsWereMet())
}
