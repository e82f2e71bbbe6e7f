package orgs

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/platinummonkey/hearth/pkg/observability"
	"github.com/platinummonkey/hearth/pkg/rbac"
	"github.com/platinummonkey/hearth/pkg/storage"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

// Workflow drives the invitation state machine:
//
//	pending -> accepted | declined | cancelled | expired
//
// Every terminal transition is a compare-and-swap from pending, so exactly
// one of several racing writers wins and the others fail.
type Workflow struct {
	store       InvitationStore
	memberships *rbac.Memberships
	guard       *rbac.Guard
	uow         storage.UnitOfWork
	logger      *observability.Logger
	metrics     *observability.Metrics
	now         func() time.Time

	maxTTL           time.Duration
	sweepConcurrency int
}

// WorkflowOption configures a Workflow
type WorkflowOption func(*Workflow)

// WithClock replaces the wall clock
func WithClock(now func() time.Time) WorkflowOption {
	return func(w *Workflow) { w.now = now }
}

// WithMaxTTL caps invitation lifetimes
func WithMaxTTL(d time.Duration) WorkflowOption {
	return func(w *Workflow) { w.maxTTL = d }
}

// WithSweepConcurrency bounds how many tenants a global sweep expires at once
func WithSweepConcurrency(n int) WorkflowOption {
	return func(w *Workflow) {
		if n > 0 {
			w.sweepConcurrency = n
		}
	}
}

// WithWorkflowLogger sets the logger
func WithWorkflowLogger(l *observability.Logger) WorkflowOption {
	return func(w *Workflow) { w.logger = l }
}

// WithWorkflowMetrics records transitions in m
func WithWorkflowMetrics(m *observability.Metrics) WorkflowOption {
	return func(w *Workflow) { w.metrics = m }
}

// NewWorkflow creates the invitation workflow
func NewWorkflow(store InvitationStore, memberships *rbac.Memberships, guard *rbac.Guard, uow storage.UnitOfWork, opts ...WorkflowOption) *Workflow {
	w := &Workflow{
		store:            store,
		memberships:      memberships,
		guard:            guard,
		uow:              uow,
		logger:           observability.NewNopLogger(),
		now:              func() time.Time { return time.Now().UTC() },
		sweepConcurrency: 8,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// generateToken returns a random invitee token and its SHA-256 hash
func generateToken() (token, hash string, err error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", "", err
	}
	token = hex.EncodeToString(b)
	return token, hashToken(token), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func tokenMatches(inv *Invitation, token string) bool {
	return subtle.ConstantTimeCompare([]byte(inv.TokenHash), []byte(hashToken(token))) == 1
}

// Create issues a pending invitation. The returned token is the invitee's
// credential and is only ever available here; the store keeps its hash.
func (w *Workflow) Create(ctx context.Context, req CreateInvitationRequest) (*Invitation, string, error) {
	ctx, span := observability.Tracer().Start(ctx, "orgs.Workflow.Create")
	defer span.End()
	span.SetAttributes(attribute.String("tenant_id", req.TenantID.String()))

	inviter, err := w.guard.Require(ctx, req.InviterID, req.TenantID, rbac.CapInviteTeamMembers)
	if err != nil {
		return nil, "", err
	}

	contact := req.Contact.Normalize()
	if contact.Empty() {
		return nil, "", ErrMissingContact
	}
	if req.TTL <= 0 {
		return nil, "", fmt.Errorf("%w: must be positive", ErrInvalidTTL)
	}
	if w.maxTTL > 0 && req.TTL > w.maxTTL {
		return nil, "", fmt.Errorf("%w: exceeds %s", ErrInvalidTTL, w.maxTTL)
	}

	caps, err := w.memberships.Catalog().Resolve(req.Role, req.Capabilities)
	if err != nil {
		return nil, "", err
	}
	if err := rbac.CheckGrant(inviter, req.Role, caps); err != nil {
		return nil, "", err
	}

	token, hash, err := generateToken()
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate token: %w", err)
	}

	now := w.now()
	inv := &Invitation{
		ID:           uuid.New(),
		TenantID:     req.TenantID,
		InviterID:    req.InviterID,
		Role:         req.Role,
		Capabilities: caps,
		Contact:      contact,
		Status:       StatusPending,
		TokenHash:    hash,
		CreatedAt:    now,
		ExpiresAt:    now.Add(req.TTL),
	}
	if err := w.store.Create(ctx, inv); err != nil {
		return nil, "", err
	}

	w.metrics.RecordInvitationTransition(string(StatusPending))
	w.logger.WithFields(map[string]interface{}{
		"invitation_id": inv.ID.String(),
		"tenant_id":     inv.TenantID.String(),
		"role":          string(inv.Role),
		"expires_at":    inv.ExpiresAt,
	}).Info("invitation created")
	return inv, token, nil
}

// checkPending rejects transitions out of terminal states and, for invitee
// actions, re-checks expiry so a missed sweep never lets a stale invitation through
func (w *Workflow) checkPending(inv *Invitation, checkExpiry bool) error {
	switch {
	case inv.Status == StatusExpired:
		return ErrExpired
	case inv.Status.Terminal():
		return fmt.Errorf("%w: invitation is %s", ErrInvalidTransition, inv.Status)
	case checkExpiry && inv.ExpiredAt(w.now()):
		return ErrExpired
	}
	return nil
}

func (w *Workflow) resolve(inv *Invitation, status InvitationStatus, by *uuid.UUID) {
	at := w.now()
	inv.Status = status
	inv.ResolvedAt = &at
	inv.ResolvedBy = by
}

func (w *Workflow) transitioned(inv *Invitation) {
	w.metrics.RecordInvitationTransition(string(inv.Status))
	w.logger.WithFields(map[string]interface{}{
		"invitation_id": inv.ID.String(),
		"tenant_id":     inv.TenantID.String(),
		"status":        string(inv.Status),
	}).Info("invitation resolved")
}

// Accept creates or reactivates the invitee's membership and marks the
// invitation accepted, both in one unit of work
func (w *Workflow) Accept(ctx context.Context, id, principal uuid.UUID, token string) (*rbac.Membership, error) {
	ctx, span := observability.Tracer().Start(ctx, "orgs.Workflow.Accept")
	defer span.End()

	var membership *rbac.Membership
	var accepted *Invitation
	err := w.uow.Do(ctx, func(ctx context.Context) error {
		inv, err := w.store.Update(ctx, id, func(ctx context.Context, inv *Invitation) error {
			if !tokenMatches(inv, token) {
				return fmt.Errorf("%w: invalid invitation token", rbac.ErrUnauthorized)
			}
			if err := w.checkPending(inv, true); err != nil {
				return err
			}

			inviter := inv.InviterID
			m, err := w.memberships.Upsert(ctx, rbac.UpsertRequest{
				TenantID:     inv.TenantID,
				PrincipalID:  principal,
				Role:         inv.Role,
				Capabilities: inv.Capabilities,
				InvitedBy:    &inviter,
				Reactivate:   true,
			})
			if err != nil {
				return err
			}
			membership = m

			w.resolve(inv, StatusAccepted, &principal)
			return nil
		})
		accepted = inv
		return err
	})
	if err != nil {
		return nil, err
	}

	w.transitioned(accepted)
	return membership, nil
}

// Decline marks the invitation declined through the invitee channel
func (w *Workflow) Decline(ctx context.Context, id uuid.UUID, token string) (*Invitation, error) {
	inv, err := w.store.Update(ctx, id, func(ctx context.Context, inv *Invitation) error {
		if !tokenMatches(inv, token) {
			return fmt.Errorf("%w: invalid invitation token", rbac.ErrUnauthorized)
		}
		if err := w.checkPending(inv, true); err != nil {
			return err
		}
		w.resolve(inv, StatusDeclined, nil)
		return nil
	})
	if err != nil {
		return nil, err
	}

	w.transitioned(inv)
	return inv, nil
}

// Cancel withdraws a pending invitation of tenant. The actor needs
// invite_team_members. Pending invitations past expiry can still be cancelled.
func (w *Workflow) Cancel(ctx context.Context, tenant, id, actor uuid.UUID) (*Invitation, error) {
	inv, err := rbac.Scoped(ctx, w.guard, rbac.Access{Principal: actor, Tenant: tenant, Capability: rbac.CapInviteTeamMembers},
		func(ctx context.Context, _ *rbac.Membership) (*Invitation, error) {
			return w.store.Update(ctx, id, func(ctx context.Context, inv *Invitation) error {
				if inv.TenantID != tenant {
					return ErrInvitationNotFound
				}
				if inv.Status.Terminal() {
					return fmt.Errorf("%w: invitation is %s", ErrInvalidTransition, inv.Status)
				}
				w.resolve(inv, StatusCancelled, &actor)
				return nil
			})
		})
	if err != nil {
		return nil, err
	}

	w.transitioned(inv)
	return inv, nil
}

// List returns the invitations of a tenant; requires invite_team_members
func (w *Workflow) List(ctx context.Context, actor, tenant uuid.UUID) ([]*Invitation, error) {
	return rbac.Scoped(ctx, w.guard, rbac.Access{Principal: actor, Tenant: tenant, Capability: rbac.CapInviteTeamMembers},
		func(ctx context.Context, _ *rbac.Membership) ([]*Invitation, error) {
			return w.store.ListForTenant(ctx, tenant)
		})
}

// SweepExpired moves pending invitations past expiry to expired, either for
// one tenant or, with a nil tenant, for every tenant. Running it repeatedly
// or concurrently with invitee actions is safe.
func (w *Workflow) SweepExpired(ctx context.Context, tenant *uuid.UUID) (int, error) {
	ctx, span := observability.Tracer().Start(ctx, "orgs.Workflow.SweepExpired")
	defer span.End()

	now := w.now()
	if tenant != nil {
		n, err := w.store.ExpirePending(ctx, *tenant, now)
		if err != nil {
			return 0, err
		}
		w.swept(n)
		return n, nil
	}

	tenants, err := w.store.TenantsWithExpiredPending(ctx, now)
	if err != nil {
		return 0, err
	}

	var total atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.sweepConcurrency)
	for _, t := range tenants {
		t := t
		g.Go(func() error {
			n, err := w.store.ExpirePending(gctx, t, now)
			if err != nil {
				return fmt.Errorf("tenant %s: %w", t, err)
			}
			total.Add(int64(n))
			return nil
		})
	}
	err = g.Wait()

	n := int(total.Load())
	w.swept(n)
	span.SetAttributes(attribute.Int("expired", n), attribute.Int("tenants", len(tenants)))
	return n, err
}

func (w *Workflow) swept(n int) {
	w.metrics.RecordInvitationsSwept(n)
	if n > 0 {
		w.logger.WithField("expired", n).Info("invitation sweep complete")
	}
}

// PurgeTerminal deletes terminal invitations resolved more than olderThan ago
func (w *Workflow) PurgeTerminal(ctx context.Context, olderThan time.Duration) (int64, error) {
	n, err := w.store.PurgeTerminal(ctx, w.now().Add(-olderThan))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		w.logger.WithField("purged", n).Info("terminal invitations purged")
	}
	return n, nil
}
