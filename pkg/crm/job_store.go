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
	"github.com/platinummonkey/hearth/pkg/storage/postgres"
)

// JobStore persists jobs. Every lookup is scoped by tenant.
type JobStore interface {
	Create(ctx context.Context, j *Job) error
	// Get returns a job; lock holds the row until the unit of work ends
	Get(ctx context.Context, tenantID, id uuid.UUID, lock bool) (*Job, error)
	List(ctx context.Context, tenantID uuid.UUID) ([]*Job, error)
	Update(ctx context.Context, j *Job) error
	// Tenants lists every tenant holding at least one job
	Tenants(ctx context.Context) ([]uuid.UUID, error)
}

const jobColumns = `id, tenant_id, number, title, description, status, contact_id, assignee_id, created_by, created_at, updated_at`

// PostgresJobStore is the PostgreSQL job store
type PostgresJobStore struct {
	db *sql.DB
}

// NewPostgresJobStore creates a new job store
func NewPostgresJobStore(db *sql.DB) *PostgresJobStore {
	return &PostgresJobStore{db: db}
}

func nullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}

func ptrUUID(id uuid.NullUUID) *uuid.UUID {
	if !id.Valid {
		return nil
	}
	v := id.UUID
	return &v
}

func scanJob(row rowScanner) (*Job, error) {
	var (
		j                 Job
		contact, assignee uuid.NullUUID
	)
	err := row.Scan(&j.ID, &j.TenantID, &j.Number, &j.Title, &j.Description, &j.Status,
		&contact, &assignee, &j.CreatedBy, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	j.ContactID, j.AssigneeID = ptrUUID(contact), ptrUUID(assignee)
	return &j, nil
}

// Create implements JobStore
func (s *PostgresJobStore) Create(ctx context.Context, j *Job) error {
	_, err := storage.Q(ctx, s.db).ExecContext(ctx, `
		INSERT INTO jobs (`+jobColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, j.ID, j.TenantID, j.Number, j.Title, j.Description, j.Status,
		nullUUID(j.ContactID), nullUUID(j.AssigneeID), j.CreatedBy, j.CreatedAt, j.UpdatedAt)
	if postgres.IsUniqueViolation(err) {
		return fmt.Errorf("%w: %s", ErrDuplicateNumber, j.Number)
	}
	if postgres.IsForeignKeyViolation(err) {
		return fmt.Errorf("%w: %v", ErrContactNotFound, err)
	}
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

// Get implements JobStore
func (s *PostgresJobStore) Get(ctx context.Context, tenantID, id uuid.UUID, lock bool) (*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE tenant_id = $1 AND id = $2`
	if lock {
		query += ` FOR UPDATE`
	}
	j, err := scanJob(storage.Q(ctx, s.db).QueryRowContext(ctx, query, tenantID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return j, nil
}

// List implements JobStore
func (s *PostgresJobStore) List(ctx context.Context, tenantID uuid.UUID) ([]*Job, error) {
	rows, err := storage.Q(ctx, s.db).QueryContext(ctx, `
		SELECT `+jobColumns+`
		FROM jobs
		WHERE tenant_id = $1
		ORDER BY created_at, number
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	jobs := []*Job{}
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// Tenants implements JobStore
func (s *PostgresJobStore) Tenants(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := storage.Q(ctx, s.db).QueryContext(ctx, `SELECT DISTINCT tenant_id FROM jobs ORDER BY tenant_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list job tenants: %w", err)
	}
	defer rows.Close()

	tenants := []uuid.UUID{}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan job tenant: %w", err)
		}
		tenants = append(tenants, id)
	}
	return tenants, rows.Err()
}

// Update implements JobStore
func (s *PostgresJobStore) Update(ctx context.Context, j *Job) error {
	result, err := storage.Q(ctx, s.db).ExecContext(ctx, `
		UPDATE jobs
		SET title = $3, description = $4, status = $5, assignee_id = $6, updated_at = $7
		WHERE tenant_id = $1 AND id = $2
	`, j.TenantID, j.ID, j.Title, j.Description, j.Status, nullUUID(j.AssigneeID), j.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrJobNotFound
	}
	return nil
}

// MemoryJobStore is an in-process JobStore
type MemoryJobStore struct {
	mu      sync.RWMutex
	jobs    map[entityKey]Job
	numbers map[string]bool
}

// NewMemoryJobStore creates an empty in-memory job store
func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{
		jobs:    make(map[entityKey]Job),
		numbers: make(map[string]bool),
	}
}

func cloneJob(j Job) *Job {
	out := j
	if j.ContactID != nil {
		id := *j.ContactID
		out.ContactID = &id
	}
	if j.AssigneeID != nil {
		id := *j.AssigneeID
		out.AssigneeID = &id
	}
	return &out
}

// Create implements JobStore
func (s *MemoryJobStore) Create(ctx context.Context, j *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	number := j.TenantID.String() + "/" + j.Number
	if s.numbers[number] {
		return fmt.Errorf("%w: %s", ErrDuplicateNumber, j.Number)
	}
	s.numbers[number] = true
	s.jobs[entityKey{j.TenantID, j.ID}] = *cloneJob(*j)
	return nil
}

// Get implements JobStore
func (s *MemoryJobStore) Get(ctx context.Context, tenantID, id uuid.UUID, lock bool) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	j, ok := s.jobs[entityKey{tenantID, id}]
	if !ok {
		return nil, ErrJobNotFound
	}
	return cloneJob(j), nil
}

// List implements JobStore
func (s *MemoryJobStore) List(ctx context.Context, tenantID uuid.UUID) ([]*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := []*Job{}
	for k, j := range s.jobs {
		if k.tenant == tenantID {
			jobs = append(jobs, cloneJob(j))
		}
	}
	sort.Slice(jobs, func(a, b int) bool { return jobs[a].Number < jobs[b].Number })
	return jobs, nil
}

// Tenants implements JobStore
func (s *MemoryJobStore) Tenants(ctx context.Context) ([]uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := map[uuid.UUID]bool{}
	tenants := []uuid.UUID{}
	for k := range s.jobs {
		if !seen[k.tenant] {
			seen[k.tenant] = true
			tenants = append(tenants, k.tenant)
		}
	}
	sort.Slice(tenants, func(a, b int) bool { return tenants[a].String() < tenants[b].String() })
	return tenants, nil
}

// Update implements JobStore
func (s *MemoryJobStore) Update(ctx context.Context, j *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := entityKey{j.TenantID, j.ID}
	if _, ok := s.jobs[k]; !ok {
		return ErrJobNotFound
	}
	s.jobs[k] = *cloneJob(*j)
	return nil
}
