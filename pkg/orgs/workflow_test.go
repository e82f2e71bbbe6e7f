package orgs

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/platinummonkey/hearth/pkg/observability"
	"github.com/platinummonkey/hearth/pkg/rbac"
	"github.com/platinummonkey/hearth/pkg/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	clock       *fakeClock
	metrics     *observability.Metrics
	members     *rbac.MemoryStore
	guard       *rbac.Guard
	memberships *rbac.Memberships
	invitations *MemoryInvitationStore
	principals  *MemoryPrincipalStore
	workflow    *Workflow
	tenants     *Tenants
	tenant      uuid.UUID
	owner       uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	f := &fixture{
		clock:       &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)},
		metrics:     observability.NewMetrics(prometheus.NewRegistry()),
		members:     rbac.NewMemoryStore(),
		invitations: NewMemoryInvitationStore(),
		principals:  NewMemoryPrincipalStore(),
		owner:       uuid.New(),
	}
	uow := storage.NewLocalUnitOfWork()
	f.guard = rbac.NewGuard(f.members, rbac.WithDecisionCache(64, time.Minute))
	f.memberships = rbac.NewMemberships(f.members, rbac.NewCatalog(), f.guard, uow, nil, f.metrics)
	f.workflow = NewWorkflow(f.invitations, f.memberships, f.guard, uow,
		WithClock(f.clock.Now),
		WithMaxTTL(30*24*time.Hour),
		WithSweepConcurrency(2),
		WithWorkflowMetrics(f.metrics),
	)
	f.tenants = NewTenants(NewMemoryTenantStore(), f.principals, f.memberships, uow, nil)

	require.NoError(t, f.principals.Save(ctx, &Principal{ID: f.owner, DisplayName: "Owner"}))
	tenant, _, err := f.tenants.Create(ctx, "Acme Plumbing", f.owner)
	require.NoError(t, err)
	f.tenant = tenant.ID
	return f
}

func (f *fixture) join(t *testing.T, role rbac.Role) uuid.UUID {
	t.Helper()
	p := uuid.New()
	_, err := f.memberships.Upsert(context.Background(), rbac.UpsertRequest{TenantID: f.tenant, PrincipalID: p, Role: role})
	require.NoError(t, err)
	return p
}

func (f *fixture) invite(t *testing.T, role rbac.Role, ttl time.Duration) (*Invitation, string) {
	t.Helper()
	inv, token, err := f.workflow.Create(context.Background(), CreateInvitationRequest{
		TenantID:  f.tenant,
		InviterID: f.owner,
		Role:      role,
		Contact:   Contact{Email: "crew@example.com"},
		TTL:       ttl,
	})
	require.NoError(t, err)
	return inv, token
}

func TestWorkflowCreate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	t.Run("pending with defaults and expiry", func(t *testing.T) {
		inv, token := f.invite(t, rbac.RoleManager, 48*time.Hour)
		assert.Equal(t, StatusPending, inv.Status)
		assert.Equal(t, f.clock.Now().Add(48*time.Hour), inv.ExpiresAt)
		assert.True(t, inv.ExpiresAt.After(inv.CreatedAt))
		assert.NotEmpty(t, token)
		assert.NotEqual(t, token, inv.TokenHash)
		assert.Equal(t, hashToken(token), inv.TokenHash)

		defaults, _ := rbac.NewCatalog().DefaultsFor(rbac.RoleManager)
		assert.Equal(t, defaults, inv.Capabilities)
	})

	tests := []struct {
		name    string
		inviter func() uuid.UUID
		req     CreateInvitationRequest
		wantErr error
	}{
		{
			name:    "missing contact",
			req:     CreateInvitationRequest{Role: rbac.RoleViewer, Contact: Contact{Email: "  "}, TTL: time.Hour},
			wantErr: ErrMissingContact,
		},
		{
			name:    "zero ttl",
			req:     CreateInvitationRequest{Role: rbac.RoleViewer, Contact: Contact{Phone: "555-0100"}},
			wantErr: ErrInvalidTTL,
		},
		{
			name:    "ttl above the cap",
			req:     CreateInvitationRequest{Role: rbac.RoleViewer, Contact: Contact{Phone: "555-0100"}, TTL: 31 * 24 * time.Hour},
			wantErr: ErrInvalidTTL,
		},
		{
			name:    "invalid role",
			req:     CreateInvitationRequest{Role: "boss", Contact: Contact{Phone: "555-0100"}, TTL: time.Hour},
			wantErr: rbac.ErrInvalidRole,
		},
		{
			name:    "inviter without invite capability",
			inviter: func() uuid.UUID { return f.join(t, rbac.RoleEmployee) },
			req:     CreateInvitationRequest{Role: rbac.RoleViewer, Contact: Contact{Phone: "555-0100"}, TTL: time.Hour},
			wantErr: rbac.ErrUnauthorized,
		},
		{
			name:    "outsider",
			inviter: uuid.New,
			req:     CreateInvitationRequest{Role: rbac.RoleViewer, Contact: Contact{Phone: "555-0100"}, TTL: time.Hour},
			wantErr: rbac.ErrUnauthorized,
		},
		{
			name:    "manager cannot invite an owner",
			inviter: func() uuid.UUID { return f.join(t, rbac.RoleManager) },
			req:     CreateInvitationRequest{Role: rbac.RoleOwner, Contact: Contact{Phone: "555-0100"}, TTL: time.Hour},
			wantErr: rbac.ErrUnauthorized,
		},
		{
			name:    "manager cannot invite an admin with admin defaults",
			inviter: func() uuid.UUID { return f.join(t, rbac.RoleManager) },
			req:     CreateInvitationRequest{Role: rbac.RoleAdmin, Contact: Contact{Phone: "555-0100"}, TTL: time.Hour},
			wantErr: rbac.ErrUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.req
			req.TenantID = f.tenant
			req.InviterID = f.owner
			if tt.inviter != nil {
				req.InviterID = tt.inviter()
			}
			_, _, err := f.workflow.Create(ctx, req)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestWorkflowAccept(t *testing.T) {
	ctx := context.Background()

	t.Run("creates the membership", func(t *testing.T) {
		f := newFixture(t)
		inv, token := f.invite(t, rbac.RoleManager, 48*time.Hour)
		invitee := uuid.New()

		m, err := f.workflow.Accept(ctx, inv.ID, invitee, token)
		require.NoError(t, err)
		assert.Equal(t, rbac.RoleManager, m.Role)
		assert.True(t, m.Active)
		require.NotNil(t, m.InvitedBy)
		assert.Equal(t, f.owner, *m.InvitedBy)

		stored, err := f.invitations.Get(ctx, inv.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusAccepted, stored.Status)
		require.NotNil(t, stored.ResolvedBy)
		assert.Equal(t, invitee, *stored.ResolvedBy)

		d, err := f.guard.Authorize(ctx, invitee, f.tenant, rbac.CapAssignJobs)
		require.NoError(t, err)
		assert.True(t, d.Allowed)
	})

	t.Run("reactivates a deactivated membership", func(t *testing.T) {
		f := newFixture(t)
		former := f.join(t, rbac.RoleEmployee)
		_, err := f.memberships.Deactivate(ctx, f.owner, f.tenant, former)
		require.NoError(t, err)

		inv, token := f.invite(t, rbac.RoleViewer, time.Hour)
		m, err := f.workflow.Accept(ctx, inv.ID, former, token)
		require.NoError(t, err)
		assert.True(t, m.Active)
		assert.Equal(t, rbac.RoleViewer, m.Role)
	})

	t.Run("wrong token", func(t *testing.T) {
		f := newFixture(t)
		inv, _ := f.invite(t, rbac.RoleViewer, time.Hour)

		_, err := f.workflow.Accept(ctx, inv.ID, uuid.New(), "not-the-token")
		assert.ErrorIs(t, err, rbac.ErrUnauthorized)

		stored, err := f.invitations.Get(ctx, inv.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusPending, stored.Status)
	})

	t.Run("after expiry without a sweep", func(t *testing.T) {
		f := newFixture(t)
		inv, token := f.invite(t, rbac.RoleManager, 48*time.Hour)
		f.clock.Advance(49 * time.Hour)

		_, err := f.workflow.Accept(ctx, inv.ID, uuid.New(), token)
		assert.ErrorIs(t, err, ErrExpired)
	})

	t.Run("after expiry and a sweep", func(t *testing.T) {
		f := newFixture(t)
		inv, token := f.invite(t, rbac.RoleManager, 48*time.Hour)
		f.clock.Advance(49 * time.Hour)

		n, err := f.workflow.SweepExpired(ctx, &f.tenant)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		stored, err := f.invitations.Get(ctx, inv.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusExpired, stored.Status)

		_, err = f.workflow.Accept(ctx, inv.ID, uuid.New(), token)
		assert.ErrorIs(t, err, ErrExpired)
	})

	t.Run("exactly at expiry is still valid", func(t *testing.T) {
		f := newFixture(t)
		inv, token := f.invite(t, rbac.RoleViewer, time.Hour)
		f.clock.Advance(time.Hour)

		_, err := f.workflow.Accept(ctx, inv.ID, uuid.New(), token)
		require.NoError(t, err)
	})

	t.Run("unknown invitation", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.workflow.Accept(ctx, uuid.New(), uuid.New(), "x")
		assert.ErrorIs(t, err, ErrInvitationNotFound)
	})
}

func TestWorkflowTerminalStates(t *testing.T) {
	ctx := context.Background()

	resolve := map[InvitationStatus]func(f *fixture, inv *Invitation, token string) error{
		StatusAccepted: func(f *fixture, inv *Invitation, token string) error {
			_, err := f.workflow.Accept(ctx, inv.ID, uuid.New(), token)
			return err
		},
		StatusDeclined: func(f *fixture, inv *Invitation, token string) error {
			_, err := f.workflow.Decline(ctx, inv.ID, token)
			return err
		},
		StatusCancelled: func(f *fixture, inv *Invitation, token string) error {
			_, err := f.workflow.Cancel(ctx, f.tenant, inv.ID, f.owner)
			return err
		},
	}

	for status, apply := range resolve {
		t.Run(string(status), func(t *testing.T) {
			f := newFixture(t)
			inv, token := f.invite(t, rbac.RoleViewer, time.Hour)
			require.NoError(t, apply(f, inv, token))

			stored, err := f.invitations.Get(ctx, inv.ID)
			require.NoError(t, err)
			assert.Equal(t, status, stored.Status)
			assert.NotNil(t, stored.ResolvedAt)

			for other, again := range resolve {
				err := again(f, inv, token)
				assert.ErrorIs(t, err, ErrInvalidTransition, "%s after %s", other, status)
			}

			f.clock.Advance(2 * time.Hour)
			n, err := f.workflow.SweepExpired(ctx, &f.tenant)
			require.NoError(t, err)
			assert.Zero(t, n)
		})
	}

	t.Run("expired", func(t *testing.T) {
		f := newFixture(t)
		inv, token := f.invite(t, rbac.RoleViewer, time.Hour)
		f.clock.Advance(2 * time.Hour)
		_, err := f.workflow.SweepExpired(ctx, nil)
		require.NoError(t, err)

		_, err = f.workflow.Decline(ctx, inv.ID, token)
		assert.ErrorIs(t, err, ErrExpired)

		_, err = f.workflow.Cancel(ctx, f.tenant, inv.ID, f.owner)
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})
}

func TestWorkflowCancel(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	t.Run("requires invite capability", func(t *testing.T) {
		inv, _ := f.invite(t, rbac.RoleViewer, time.Hour)
		employee := f.join(t, rbac.RoleEmployee)

		_, err := f.workflow.Cancel(ctx, f.tenant, inv.ID, employee)
		assert.ErrorIs(t, err, rbac.ErrUnauthorized)
	})

	t.Run("pending past expiry can still be cancelled", func(t *testing.T) {
		inv, _ := f.invite(t, rbac.RoleViewer, time.Hour)
		f.clock.Advance(2 * time.Hour)

		got, err := f.workflow.Cancel(ctx, f.tenant, inv.ID, f.owner)
		require.NoError(t, err)
		assert.Equal(t, StatusCancelled, got.Status)
	})

	t.Run("invitation of another tenant", func(t *testing.T) {
		inv, _ := f.invite(t, rbac.RoleViewer, time.Hour)

		otherOwner := uuid.New()
		require.NoError(t, f.principals.Save(ctx, &Principal{ID: otherOwner}))
		other, _, err := f.tenants.Create(ctx, "Other Co", otherOwner)
		require.NoError(t, err)

		_, err = f.workflow.Cancel(ctx, other.ID, inv.ID, otherOwner)
		assert.ErrorIs(t, err, ErrInvitationNotFound)
	})
}

func TestWorkflowList(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.invite(t, rbac.RoleViewer, time.Hour)
	f.invite(t, rbac.RoleEmployee, time.Hour)

	invitations, err := f.workflow.List(ctx, f.owner, f.tenant)
	require.NoError(t, err)
	assert.Len(t, invitations, 2)

	_, err = f.workflow.List(ctx, f.join(t, rbac.RoleViewer), f.tenant)
	assert.ErrorIs(t, err, rbac.ErrUnauthorized)
}

func TestWorkflowSweepExpired(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.invite(t, rbac.RoleViewer, time.Hour)
	f.invite(t, rbac.RoleViewer, time.Hour)
	keep, _ := f.invite(t, rbac.RoleViewer, 72*time.Hour)

	otherOwner := uuid.New()
	require.NoError(t, f.principals.Save(ctx, &Principal{ID: otherOwner}))
	other, _, err := f.tenants.Create(ctx, "Other Co", otherOwner)
	require.NoError(t, err)
	_, _, err = f.workflow.Create(ctx, CreateInvitationRequest{
		TenantID: other.ID, InviterID: otherOwner, Role: rbac.RoleViewer,
		Contact: Contact{Phone: "555-0101"}, TTL: time.Hour,
	})
	require.NoError(t, err)

	f.clock.Advance(2 * time.Hour)

	n, err := f.workflow.SweepExpired(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, float64(3), testutil.ToFloat64(f.metrics.InvitationsSweptTotal))

	t.Run("idempotent", func(t *testing.T) {
		n, err := f.workflow.SweepExpired(ctx, nil)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	stored, err := f.invitations.Get(ctx, keep.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, stored.Status)
}

func TestWorkflowAcceptRacesSweep(t *testing.T) {
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		f := newFixture(t)
		inv, token := f.invite(t, rbac.RoleViewer, time.Hour)

		var accepted, swept int
		var mu sync.Mutex
		var g errgroup.Group
		g.Go(func() error {
			_, err := f.workflow.Accept(ctx, inv.ID, uuid.New(), token)
			if err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
			return nil
		})
		g.Go(func() error {
			f.clock.Advance(2 * time.Hour)
			n, err := f.workflow.SweepExpired(ctx, nil)
			mu.Lock()
			swept += n
			mu.Unlock()
			return err
		})
		require.NoError(t, g.Wait())

		assert.Equal(t, 1, accepted+swept, "exactly one terminal transition wins")

		stored, err := f.invitations.Get(ctx, inv.ID)
		require.NoError(t, err)
		assert.True(t, stored.Status.Terminal())
	}
}

func TestWorkflowPurgeTerminal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	old, token := f.invite(t, rbac.RoleViewer, time.Hour)
	_, err := f.workflow.Decline(ctx, old.ID, token)
	require.NoError(t, err)
	pending, _ := f.invite(t, rbac.RoleViewer, 500*time.Hour)

	f.clock.Advance(100 * 24 * time.Hour)
	n, err := f.workflow.PurgeTerminal(ctx, 90*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = f.invitations.Get(ctx, old.ID)
	assert.ErrorIs(t, err, ErrInvitationNotFound)
	_, err = f.invitations.Get(ctx, pending.ID)
	require.NoError(t, err)
}
