package orgs

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/platinummonkey/hearth/pkg/rbac"
)

// MemoryInvitationStore is an in-process InvitationStore
type MemoryInvitationStore struct {
	mu          sync.Mutex
	invitations map[uuid.UUID]*Invitation
}

// NewMemoryInvitationStore creates an empty in-memory invitation store
func NewMemoryInvitationStore() *MemoryInvitationStore {
	return &MemoryInvitationStore{invitations: make(map[uuid.UUID]*Invitation)}
}

func cloneInvitation(inv *Invitation) *Invitation {
	out := *inv
	out.Capabilities = append(rbac.CapabilitySet(nil), inv.Capabilities...)
	if inv.ResolvedAt != nil {
		t := *inv.ResolvedAt
		out.ResolvedAt = &t
	}
	if inv.ResolvedBy != nil {
		id := *inv.ResolvedBy
		out.ResolvedBy = &id
	}
	return &out
}

// Create implements InvitationStore
func (s *MemoryInvitationStore) Create(ctx context.Context, inv *Invitation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invitations[inv.ID] = cloneInvitation(inv)
	return nil
}

// Get implements InvitationStore
func (s *MemoryInvitationStore) Get(ctx context.Context, id uuid.UUID) (*Invitation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.invitations[id]
	if !ok {
		return nil, ErrInvitationNotFound
	}
	return cloneInvitation(inv), nil
}

// ListForTenant implements InvitationStore
func (s *MemoryInvitationStore) ListForTenant(ctx context.Context, tenantID uuid.UUID) ([]*Invitation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*Invitation
	for _, inv := range s.invitations {
		if inv.TenantID == tenantID {
			out = append(out, cloneInvitation(inv))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Update implements InvitationStore. The store lock is held while fn runs.
func (s *MemoryInvitationStore) Update(ctx context.Context, id uuid.UUID, fn func(ctx context.Context, inv *Invitation) error) (*Invitation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.invitations[id]
	if !ok {
		return nil, ErrInvitationNotFound
	}

	working := cloneInvitation(stored)
	if err := fn(ctx, working); err != nil {
		return nil, err
	}

	s.invitations[id] = cloneInvitation(working)
	return working, nil
}

// ExpirePending implements InvitationStore
func (s *MemoryInvitationStore) ExpirePending(ctx context.Context, tenantID uuid.UUID, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, inv := range s.invitations {
		if inv.TenantID != tenantID || inv.Status != StatusPending || !inv.ExpiresAt.Before(now) {
			continue
		}
		resolved := now
		inv.Status = StatusExpired
		inv.ResolvedAt = &resolved
		n++
	}
	return n, nil
}

// TenantsWithExpiredPending implements InvitationStore
func (s *MemoryInvitationStore) TenantsWithExpiredPending(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[uuid.UUID]struct{})
	var out []uuid.UUID
	for _, inv := range s.invitations {
		if inv.Status != StatusPending || !inv.ExpiresAt.Before(now) {
			continue
		}
		if _, ok := seen[inv.TenantID]; ok {
			continue
		}
		seen[inv.TenantID] = struct{}{}
		out = append(out, inv.TenantID)
	}
	return out, nil
}

// PurgeTerminal implements InvitationStore
func (s *MemoryInvitationStore) PurgeTerminal(ctx context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, inv := range s.invitations {
		if !inv.Status.Terminal() {
			continue
		}
		at := inv.ExpiresAt
		if inv.ResolvedAt != nil {
			at = *inv.ResolvedAt
		}
		if at.Before(before) {
			delete(s.invitations, id)
			n++
		}
	}
	return n, nil
}
