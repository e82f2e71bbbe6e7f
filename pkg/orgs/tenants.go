package orgs

import (
	"context"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"github.com/platinummonkey/hearth/pkg/observability"
	"github.com/platinummonkey/hearth/pkg/rbac"
	"github.com/platinummonkey/hearth/pkg/storage"
)

// Tenants handles tenant onboarding and lookup
type Tenants struct {
	store       TenantStore
	principals  PrincipalStore
	memberships *rbac.Memberships
	uow         storage.UnitOfWork
	logger      *observability.Logger
}

// NewTenants creates the tenant service
func NewTenants(store TenantStore, principals PrincipalStore, memberships *rbac.Memberships, uow storage.UnitOfWork, logger *observability.Logger) *Tenants {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &Tenants{
		store:       store,
		principals:  principals,
		memberships: memberships,
		uow:         uow,
		logger:      logger,
	}
}

// Create creates a tenant and makes ownerID its owner in one unit of work
func (s *Tenants) Create(ctx context.Context, name string, ownerID uuid.UUID) (*Tenant, *rbac.Membership, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil, ErrInvalidName
	}
	slug := generateSlug(name)
	if slug == "" {
		return nil, nil, ErrInvalidName
	}

	t := &Tenant{
		ID:      uuid.New(),
		Name:    name,
		Slug:    slug,
		OwnerID: ownerID,
	}

	var owner *rbac.Membership
	err := s.uow.Do(ctx, func(ctx context.Context) error {
		if _, err := s.principals.Get(ctx, ownerID); err != nil {
			return err
		}
		if err := s.store.Create(ctx, t); err != nil {
			return err
		}

		m, err := s.memberships.Upsert(ctx, rbac.UpsertRequest{
			TenantID:    t.ID,
			PrincipalID: ownerID,
			Role:        rbac.RoleOwner,
		})
		if err != nil {
			return err
		}
		owner = m
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	s.logger.WithFields(map[string]interface{}{
		"tenant_id": t.ID.String(),
		"slug":      t.Slug,
		"owner_id":  ownerID.String(),
	}).Info("tenant created")
	return t, owner, nil
}

// Get returns a tenant the actor is an active member of
func (s *Tenants) Get(ctx context.Context, actor, id uuid.UUID) (*Tenant, error) {
	if _, err := s.memberships.Me(ctx, actor, id); err != nil {
		return nil, err
	}
	return s.store.Get(ctx, id)
}

// Mine returns every tenant the principal is an active member of
func (s *Tenants) Mine(ctx context.Context, principal uuid.UUID) ([]*Tenant, error) {
	memberships, err := s.memberships.ForPrincipal(ctx, principal)
	if err != nil {
		return nil, err
	}

	tenants := make([]*Tenant, 0, len(memberships))
	for _, m := range memberships {
		t, err := s.store.Get(ctx, m.TenantID)
		if err != nil {
			return nil, err
		}
		tenants = append(tenants, t)
	}
	return tenants, nil
}

// generateSlug derives a URL-safe slug from a tenant name
func generateSlug(name string) string {
	slug := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r == '\'':
			return -1
		case unicode.IsSpace(r), r == '-', r == '&', r == '/', r == '_', r == '.':
			return ' '
		}
		return -1
	}, strings.ToLower(name))
	return strings.Join(strings.Fields(slug), "-")
}
