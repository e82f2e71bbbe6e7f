package crm

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/platinummonkey/hearth/pkg/storage"
)

// ContactStore persists contacts. Every lookup is scoped by tenant.
type ContactStore interface {
	Create(ctx context.Context, c *Contact) error
	// Get returns a contact; lock holds the row until the unit of work ends
	Get(ctx context.Context, tenantID, id uuid.UUID, lock bool) (*Contact, error)
	List(ctx context.Context, tenantID uuid.UUID) ([]*Contact, error)
	Update(ctx context.Context, c *Contact) error
}

const contactColumns = `id, tenant_id, name, email, phone, relationship_status, created_by, created_at, updated_at`

// PostgresContactStore is the PostgreSQL contact store
type PostgresContactStore struct {
	db *sql.DB
}

// NewPostgresContactStore creates a new contact store
func NewPostgresContactStore(db *sql.DB) *PostgresContactStore {
	return &PostgresContactStore{db: db}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanContact(row rowScanner) (*Contact, error) {
	var c Contact
	err := row.Scan(&c.ID, &c.TenantID, &c.Name, &c.Email, &c.Phone,
		&c.RelationshipStatus, &c.CreatedBy, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Create implements ContactStore
func (s *PostgresContactStore) Create(ctx context.Context, c *Contact) error {
	_, err := storage.Q(ctx, s.db).ExecContext(ctx, `
		INSERT INTO contacts (`+contactColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, c.ID, c.TenantID, c.Name, c.Email, c.Phone, c.RelationshipStatus, c.CreatedBy, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create contact: %w", err)
	}
	return nil
}

// Get implements ContactStore
func (s *PostgresContactStore) Get(ctx context.Context, tenantID, id uuid.UUID, lock bool) (*Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts WHERE tenant_id = $1 AND id = $2`
	if lock {
		query += ` FOR UPDATE`
	}
	c, err := scanContact(storage.Q(ctx, s.db).QueryRowContext(ctx, query, tenantID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrContactNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get contact: %w", err)
	}
	return c, nil
}

// List implements ContactStore
func (s *PostgresContactStore) List(ctx context.Context, tenantID uuid.UUID) ([]*Contact, error) {
	rows, err := storage.Q(ctx, s.db).QueryContext(ctx, `
		SELECT `+contactColumns+`
		FROM contacts
		WHERE tenant_id = $1
		ORDER BY created_at, id
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list contacts: %w", err)
	}
	defer rows.Close()

	contacts := []*Contact{}
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan contact: %w", err)
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

// Update implements ContactStore
func (s *PostgresContactStore) Update(ctx context.Context, c *Contact) error {
	result, err := storage.Q(ctx, s.db).ExecContext(ctx, `
		UPDATE contacts
		SET name = $3, email = $4, phone = $5, relationship_status = $6, updated_at = $7
		WHERE tenant_id = $1 AND id = $2
	`, c.TenantID, c.ID, c.Name, c.Email, c.Phone, c.RelationshipStatus, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update contact: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrContactNotFound
	}
	return nil
}

type entityKey struct {
	tenant uuid.UUID
	id     uuid.UUID
}

// MemoryContactStore is an in-process ContactStore. Pair it with
// storage.LocalUnitOfWork, which serializes the read-modify-write of an update.
type MemoryContactStore struct {
	mu       sync.RWMutex
	contacts map[entityKey]Contact
}

// NewMemoryContactStore creates an empty in-memory contact store
func NewMemoryContactStore() *MemoryContactStore {
	return &MemoryContactStore{contacts: make(map[entityKey]Contact)}
}

// Create implements ContactStore
func (s *MemoryContactStore) Create(ctx context.Context, c *Contact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contacts[entityKey{c.TenantID, c.ID}] = *c
	return nil
}

// Get implements ContactStore
func (s *MemoryContactStore) Get(ctx context.Context, tenantID, id uuid.UUID, lock bool) (*Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.contacts[entityKey{tenantID, id}]
	if !ok {
		return nil, ErrContactNotFound
	}
	return &c, nil
}

// List implements ContactStore
func (s *MemoryContactStore) List(ctx context.Context, tenantID uuid.UUID) ([]*Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	contacts := []*Contact{}
	for k, c := range s.contacts {
		if k.tenant == tenantID {
			c := c
			contacts = append(contacts, &c)
		}
	}
	sort.Slice(contacts, func(i, j int) bool { return contacts[i].CreatedAt.Before(contacts[j].CreatedAt) })
	return contacts, nil
}

// Update implements ContactStore
func (s *MemoryContactStore) Update(ctx context.Context, c *Contact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := entityKey{c.TenantID, c.ID}
	if _, ok := s.contacts[k]; !ok {
		return ErrContactNotFound
	}
	s.contacts[k] = *c
	return nil
}
