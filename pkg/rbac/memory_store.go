package rbac

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type membershipKey struct {
	tenant    uuid.UUID
	principal uuid.UUID
}

// MemoryStore is an in-process Store used by tests and single-node setups
type MemoryStore struct {
	mu          sync.RWMutex
	memberships map[membershipKey]*Membership
}

// NewMemoryStore creates an empty in-memory membership store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{memberships: make(map[membershipKey]*Membership)}
}

func cloneMembership(m *Membership) *Membership {
	out := *m
	out.Capabilities = append(CapabilitySet(nil), m.Capabilities...)
	if m.InvitedBy != nil {
		id := *m.InvitedBy
		out.InvitedBy = &id
	}
	return &out
}

// Upsert implements Store
func (s *MemoryStore) Upsert(ctx context.Context, m *Membership, reactivate bool) (*Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	key := membershipKey{tenant: m.TenantID, principal: m.PrincipalID}

	if existing, ok := s.memberships[key]; ok {
		existing.Role = m.Role
		existing.Capabilities = NewCapabilitySet(m.Capabilities...)
		existing.Active = existing.Active || reactivate
		existing.UpdatedAt = now
		return cloneMembership(existing), nil
	}

	stored := cloneMembership(m)
	if stored.ID == uuid.Nil {
		stored.ID = uuid.New()
	}
	stored.Active = true
	stored.JoinedAt = now
	stored.UpdatedAt = now
	s.memberships[key] = stored
	return cloneMembership(stored), nil
}

// Get implements Store
func (s *MemoryStore) Get(ctx context.Context, tenantID, principalID uuid.UUID) (*Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.memberships[membershipKey{tenant: tenantID, principal: principalID}]
	if !ok {
		return nil, ErrMembershipNotFound
	}
	return cloneMembership(m), nil
}

// Update implements Store
func (s *MemoryStore) Update(ctx context.Context, m *Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.memberships[membershipKey{tenant: m.TenantID, principal: m.PrincipalID}]
	if !ok || existing.ID != m.ID {
		return ErrMembershipNotFound
	}
	m.UpdatedAt = time.Now().UTC()
	existing.Role = m.Role
	existing.Capabilities = NewCapabilitySet(m.Capabilities...)
	existing.Active = m.Active
	existing.UpdatedAt = m.UpdatedAt
	return nil
}

func (s *MemoryStore) filter(keep func(m *Membership) bool) []*Membership {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Membership
	for _, m := range s.memberships {
		if keep(m) {
			out = append(out, cloneMembership(m))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].JoinedAt.Before(out[j].JoinedAt)
	})
	return out
}

// ListForTenant implements Store
func (s *MemoryStore) ListForTenant(ctx context.Context, tenantID uuid.UUID) ([]*Membership, error) {
	return s.filter(func(m *Membership) bool { return m.TenantID == tenantID }), nil
}

// ListForPrincipal implements Store
func (s *MemoryStore) ListForPrincipal(ctx context.Context, principalID uuid.UUID) ([]*Membership, error) {
	return s.filter(func(m *Membership) bool { return m.PrincipalID == principalID && m.Active }), nil
}

// ActiveOwners implements Store
func (s *MemoryStore) ActiveOwners(ctx context.Context, tenantID uuid.UUID) ([]*Membership, error) {
	return s.filter(func(m *Membership) bool {
		return m.TenantID == tenantID && m.Role == RoleOwner && m.Active
	}), nil
}

// SharesActiveTenant implements Store
func (s *MemoryStore) SharesActiveTenant(ctx context.Context, a, b uuid.UUID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for key, m := range s.memberships {
		if key.principal != a || !m.Active {
			continue
		}
		if other, ok := s.memberships[membershipKey{tenant: key.tenant, principal: b}]; ok && other.Active {
			return true, nil
		}
	}
	return false, nil
}
