package rbac

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/platinummonkey/hearth/pkg/observability"
	"github.com/platinummonkey/hearth/pkg/storage"
)

// UpsertRequest creates or updates the membership of a principal in a tenant
type UpsertRequest struct {
	TenantID     uuid.UUID
	PrincipalID  uuid.UUID
	Role         Role
	Capabilities CapabilitySet // empty means role defaults
	InvitedBy    *uuid.UUID
	Reactivate   bool
}

// Memberships manages membership records. Writes that need an acting
// principal go through the guard; Upsert is the trusted path used by tenant
// onboarding and invitation acceptance.
type Memberships struct {
	store   Store
	catalog *Catalog
	guard   *Guard
	uow     storage.UnitOfWork
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewMemberships creates the membership service
func NewMemberships(store Store, catalog *Catalog, guard *Guard, uow storage.UnitOfWork, logger *observability.Logger, metrics *observability.Metrics) *Memberships {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &Memberships{
		store:   store,
		catalog: catalog,
		guard:   guard,
		uow:     uow,
		logger:  logger,
		metrics: metrics,
	}
}

// Catalog returns the role catalog used for defaulting
func (s *Memberships) Catalog() *Catalog {
	return s.catalog
}

func (s *Memberships) invalidateAfterCommit(ctx context.Context, tenant, principal uuid.UUID) {
	storage.AfterCommit(ctx, func() {
		s.guard.Invalidate(tenant, principal)
	})
}

// Upsert writes a membership, filling empty capabilities from the role
// defaults exactly once: an existing membership keeping its role keeps its
// stored capabilities when none are requested
func (s *Memberships) Upsert(ctx context.Context, req UpsertRequest) (*Membership, error) {
	var m *Membership
	err := s.uow.Do(ctx, func(ctx context.Context) error {
		caps, err := s.upsertCapabilities(ctx, req)
		if err != nil {
			return err
		}
		m, err = s.store.Upsert(ctx, &Membership{
			TenantID:     req.TenantID,
			PrincipalID:  req.PrincipalID,
			Role:         req.Role,
			Capabilities: caps,
			InvitedBy:    req.InvitedBy,
		}, req.Reactivate)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.invalidateAfterCommit(ctx, req.TenantID, req.PrincipalID)
	s.metrics.RecordMembershipWrite("upsert")
	s.logger.WithFields(map[string]interface{}{
		"tenant_id":    req.TenantID.String(),
		"principal_id": req.PrincipalID.String(),
		"role":         string(m.Role),
	}).Info("membership upserted")
	return m, nil
}

func (s *Memberships) upsertCapabilities(ctx context.Context, req UpsertRequest) (CapabilitySet, error) {
	if !req.Role.Valid() || req.Role == RoleOwner || len(NewCapabilitySet(req.Capabilities...)) > 0 {
		return s.catalog.Resolve(req.Role, req.Capabilities)
	}

	existing, err := s.store.Get(ctx, req.TenantID, req.PrincipalID)
	switch {
	case errors.Is(err, ErrMembershipNotFound):
	case err != nil:
		return nil, err
	case existing.Role == req.Role && len(existing.Capabilities) > 0:
		return NewCapabilitySet(existing.Capabilities...), nil
	}
	return s.catalog.Resolve(req.Role, nil)
}

// Get returns the membership of principal in tenant, active or not
func (s *Memberships) Get(ctx context.Context, tenant, principal uuid.UUID) (*Membership, error) {
	return s.store.Get(ctx, tenant, principal)
}

// Me returns the caller's own active membership
func (s *Memberships) Me(ctx context.Context, actor, tenant uuid.UUID) (*Membership, error) {
	return s.guard.Member(ctx, actor, tenant)
}

// List returns every membership of a tenant; requires manage_team
func (s *Memberships) List(ctx context.Context, actor, tenant uuid.UUID) ([]*Membership, error) {
	return Scoped(ctx, s.guard, Access{Principal: actor, Tenant: tenant, Capability: CapManageTeam},
		func(ctx context.Context, _ *Membership) ([]*Membership, error) {
			return s.store.ListForTenant(ctx, tenant)
		})
}

// ForPrincipal returns the active memberships of a principal
func (s *Memberships) ForPrincipal(ctx context.Context, principal uuid.UUID) ([]*Membership, error) {
	return s.store.ListForPrincipal(ctx, principal)
}

// CheckGrant enforces the escalation rule: an actor may only hand out
// capabilities it holds itself, and only a wildcard holder may grant owner
func CheckGrant(actor *Membership, role Role, caps CapabilitySet) error {
	if role == RoleOwner && !actor.Capabilities.IsWildcard() {
		return fmt.Errorf("%w: only owners can grant the owner role", ErrUnauthorized)
	}
	if !actor.Capabilities.Covers(caps) {
		return fmt.Errorf("%w: cannot grant capabilities beyond your own", ErrUnauthorized)
	}
	return nil
}

// ChangeRole sets the role and capabilities of another member; requires manage_team
func (s *Memberships) ChangeRole(ctx context.Context, actor, tenant, target uuid.UUID, role Role, caps CapabilitySet) (*Membership, error) {
	resolved, err := s.catalog.Resolve(role, caps)
	if err != nil {
		return nil, err
	}

	var out *Membership
	err = s.uow.Do(ctx, func(ctx context.Context) error {
		return ScopedExec(ctx, s.guard, Access{Principal: actor, Tenant: tenant, Capability: CapManageTeam},
			func(ctx context.Context, me *Membership) error {
				if err := CheckGrant(me, role, resolved); err != nil {
					return err
				}

				m, err := s.store.Get(ctx, tenant, target)
				if err != nil {
					return err
				}
				if m.Role == RoleOwner && !me.Capabilities.IsWildcard() {
					return fmt.Errorf("%w: only owners can change an owner", ErrUnauthorized)
				}
				if m.Role == RoleOwner && m.Active && role != RoleOwner {
					if err := s.ensureAnotherOwner(ctx, tenant, target); err != nil {
						return err
					}
				}

				m.Role = role
				m.Capabilities = resolved
				if err := s.store.Update(ctx, m); err != nil {
					return err
				}
				out = m
				return nil
			})
	})
	if err != nil {
		return nil, err
	}

	s.invalidateAfterCommit(ctx, tenant, target)
	s.metrics.RecordMembershipWrite("change_role")
	s.logger.WithFields(map[string]interface{}{
		"tenant_id":    tenant.String(),
		"principal_id": target.String(),
		"actor_id":     actor.String(),
		"role":         string(role),
	}).Info("membership role changed")
	return out, nil
}

// Deactivate soft-deletes a membership; requires manage_team. The record is
// kept for history and excluded from every authorization decision.
func (s *Memberships) Deactivate(ctx context.Context, actor, tenant, target uuid.UUID) (*Membership, error) {
	var out *Membership
	err := s.uow.Do(ctx, func(ctx context.Context) error {
		return ScopedExec(ctx, s.guard, Access{Principal: actor, Tenant: tenant, Capability: CapManageTeam},
			func(ctx context.Context, me *Membership) error {
				m, err := s.store.Get(ctx, tenant, target)
				if err != nil {
					return err
				}
				if !m.Active {
					out = m
					return nil
				}
				if m.Role == RoleOwner {
					if !me.Capabilities.IsWildcard() {
						return fmt.Errorf("%w: only owners can deactivate an owner", ErrUnauthorized)
					}
					if err := s.ensureAnotherOwner(ctx, tenant, target); err != nil {
						return err
					}
				}

				m.Active = false
				if err := s.store.Update(ctx, m); err != nil {
					return err
				}
				out = m
				return nil
			})
	})
	if err != nil {
		return nil, err
	}

	s.invalidateAfterCommit(ctx, tenant, target)
	s.metrics.RecordMembershipWrite("deactivate")
	s.logger.WithFields(map[string]interface{}{
		"tenant_id":    tenant.String(),
		"principal_id": target.String(),
		"actor_id":     actor.String(),
	}).Info("membership deactivated")
	return out, nil
}

// ensureAnotherOwner fails with ErrLastOwner when target is the only active owner
func (s *Memberships) ensureAnotherOwner(ctx context.Context, tenant, target uuid.UUID) error {
	owners, err := s.store.ActiveOwners(ctx, tenant)
	if err != nil {
		return err
	}
	for _, o := range owners {
		if o.PrincipalID != target {
			return nil
		}
	}
	return ErrLastOwner
}

// IsNotFound reports whether err means the membership does not exist
func IsNotFound(err error) bool {
	return errors.Is(err, ErrMembershipNotFound)
}
