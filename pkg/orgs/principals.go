package orgs

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/platinummonkey/hearth/pkg/rbac"
)

// Principals manages principal profiles and applies the principal visibility rule
type Principals struct {
	store PrincipalStore
	guard *rbac.Guard
}

// NewPrincipals creates the principal service
func NewPrincipals(store PrincipalStore, guard *rbac.Guard) *Principals {
	return &Principals{store: store, guard: guard}
}

// SaveProfile creates or updates the profile of the authenticated principal
func (s *Principals) SaveProfile(ctx context.Context, id uuid.UUID, displayName string, contact Contact) (*Principal, error) {
	contact = contact.Normalize()
	p := &Principal{
		ID:          id,
		DisplayName: strings.TrimSpace(displayName),
		Email:       contact.Email,
		Phone:       contact.Phone,
	}
	if err := s.store.Save(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// View returns target when viewer may see it: itself always, anyone else only
// through a shared active membership
func (s *Principals) View(ctx context.Context, viewer, target uuid.UUID) (*Principal, error) {
	d, err := s.guard.CanViewPrincipal(ctx, viewer, target)
	if err != nil {
		return nil, err
	}
	if !d.Allowed {
		return nil, fmt.Errorf("%w: %s", rbac.ErrUnauthorized, d.Reason)
	}
	return s.store.Get(ctx, target)
}
