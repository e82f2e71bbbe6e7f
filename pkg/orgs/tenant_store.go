package orgs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/platinummonkey/hearth/pkg/storage"
	"github.com/platinummonkey/hearth/pkg/storage/postgres"
)

// TenantStore persists tenants
type TenantStore interface {
	Create(ctx context.Context, t *Tenant) error
	Get(ctx context.Context, id uuid.UUID) (*Tenant, error)
}

// PostgresTenantStore is the PostgreSQL tenant store
type PostgresTenantStore struct {
	db *sql.DB
}

// NewPostgresTenantStore creates a new tenant store
func NewPostgresTenantStore(db *sql.DB) *PostgresTenantStore {
	return &PostgresTenantStore{db: db}
}

// Create implements TenantStore
func (s *PostgresTenantStore) Create(ctx context.Context, t *Tenant) error {
	err := storage.Q(ctx, s.db).QueryRowContext(ctx, `
		INSERT INTO tenants (id, name, slug, owner_id)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`, t.ID, t.Name, t.Slug, t.OwnerID).Scan(&t.CreatedAt)
	switch {
	case postgres.IsUniqueViolation(err):
		return fmt.Errorf("%w: %s", ErrSlugTaken, t.Slug)
	case postgres.IsForeignKeyViolation(err):
		return fmt.Errorf("%w: %s", ErrPrincipalNotFound, t.OwnerID)
	case err != nil:
		return fmt.Errorf("failed to create tenant: %w", err)
	}
	return nil
}

// Get implements TenantStore
func (s *PostgresTenantStore) Get(ctx context.Context, id uuid.UUID) (*Tenant, error) {
	var t Tenant
	err := storage.Q(ctx, s.db).QueryRowContext(ctx, `
		SELECT id, name, slug, owner_id, created_at
		FROM tenants
		WHERE id = $1
	`, id).Scan(&t.ID, &t.Name, &t.Slug, &t.OwnerID, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTenantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}
	return &t, nil
}

// MemoryTenantStore is an in-process TenantStore
type MemoryTenantStore struct {
	mu      sync.RWMutex
	tenants map[uuid.UUID]Tenant
	slugs   map[string]uuid.UUID
}

// NewMemoryTenantStore creates an empty in-memory tenant store
func NewMemoryTenantStore() *MemoryTenantStore {
	return &MemoryTenantStore{
		tenants: make(map[uuid.UUID]Tenant),
		slugs:   make(map[string]uuid.UUID),
	}
}

// Create implements TenantStore
func (s *MemoryTenantStore) Create(ctx context.Context, t *Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.slugs[t.Slug]; ok {
		return fmt.Errorf("%w: %s", ErrSlugTaken, t.Slug)
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = timeNow()
	}
	s.tenants[t.ID] = *t
	s.slugs[t.Slug] = t.ID
	return nil
}

// Get implements TenantStore
func (s *MemoryTenantStore) Get(ctx context.Context, id uuid.UUID) (*Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tenants[id]
	if !ok {
		return nil, ErrTenantNotFound
	}
	return &t, nil
}
