package orgs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/platinummonkey/hearth/pkg/storage"
	"github.com/platinummonkey/hearth/pkg/storage/postgres"
)

var timeNow = func() time.Time { return time.Now().UTC() }

// PrincipalStore persists principal profiles
type PrincipalStore interface {
	// Save creates the principal or updates its profile fields
	Save(ctx context.Context, p *Principal) error
	Get(ctx context.Context, id uuid.UUID) (*Principal, error)
}

// PostgresPrincipalStore is the PostgreSQL principal store
type PostgresPrincipalStore struct {
	db *sql.DB
}

// NewPostgresPrincipalStore creates a new principal store
func NewPostgresPrincipalStore(db *sql.DB) *PostgresPrincipalStore {
	return &PostgresPrincipalStore{db: db}
}

// Save implements PrincipalStore
func (s *PostgresPrincipalStore) Save(ctx context.Context, p *Principal) error {
	err := storage.Q(ctx, s.db).QueryRowContext(ctx, `
		INSERT INTO principals (id, display_name, email, phone)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET display_name = EXCLUDED.display_name, email = EXCLUDED.email, phone = EXCLUDED.phone
		RETURNING created_at
	`, p.ID, p.DisplayName, nullString(p.Email), nullString(p.Phone)).Scan(&p.CreatedAt)
	if postgres.IsUniqueViolation(err) {
		return fmt.Errorf("%w: %s", ErrEmailTaken, p.Email)
	}
	if err != nil {
		return fmt.Errorf("failed to save principal: %w", err)
	}
	return nil
}

// Get implements PrincipalStore
func (s *PostgresPrincipalStore) Get(ctx context.Context, id uuid.UUID) (*Principal, error) {
	var (
		p            Principal
		email, phone sql.NullString
	)
	err := storage.Q(ctx, s.db).QueryRowContext(ctx, `
		SELECT id, display_name, email, phone, created_at
		FROM principals
		WHERE id = $1
	`, id).Scan(&p.ID, &p.DisplayName, &email, &phone, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPrincipalNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get principal: %w", err)
	}
	p.Email, p.Phone = email.String, phone.String
	return &p, nil
}

// MemoryPrincipalStore is an in-process PrincipalStore
type MemoryPrincipalStore struct {
	mu         sync.RWMutex
	principals map[uuid.UUID]Principal
}

// NewMemoryPrincipalStore creates an empty in-memory principal store
func NewMemoryPrincipalStore() *MemoryPrincipalStore {
	return &MemoryPrincipalStore{principals: make(map[uuid.UUID]Principal)}
}

// Save implements PrincipalStore
func (s *MemoryPrincipalStore) Save(ctx context.Context, p *Principal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.Email != "" {
		for id, other := range s.principals {
			if id != p.ID && strings.EqualFold(other.Email, p.Email) {
				return fmt.Errorf("%w: %s", ErrEmailTaken, p.Email)
			}
		}
	}

	if existing, ok := s.principals[p.ID]; ok {
		p.CreatedAt = existing.CreatedAt
	} else {
		p.CreatedAt = timeNow()
	}
	s.principals[p.ID] = *p
	return nil
}

// Get implements PrincipalStore
func (s *MemoryPrincipalStore) Get(ctx context.Context, id uuid.UUID) (*Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.principals[id]
	if !ok {
		return nil, ErrPrincipalNotFound
	}
	return &p, nil
}
