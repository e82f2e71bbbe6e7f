package audit

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/platinummonkey/hearth/pkg/storage"
)

// Store persists history records. Appends are single-row inserts; records
// are never updated or reordered.
type Store interface {
	// Append inserts rec and fills in its ID and Timestamp
	Append(ctx context.Context, rec *Record) error

	// List returns the history of an entity in insertion order
	List(ctx context.Context, ref EntityRef) ([]Record, error)
}

// PostgresStore stores history in the entity_history table
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new history store
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Append implements Store. It joins the unit of work bound to ctx.
func (s *PostgresStore) Append(ctx context.Context, rec *Record) error {
	err := storage.Q(ctx, s.db).QueryRowContext(ctx, `
		INSERT INTO entity_history (tenant_id, entity_type, entity_id, field, from_value, to_value, reason, actor_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`, rec.TenantID, rec.EntityType, rec.EntityID, rec.Field,
		rec.FromValue, rec.ToValue, rec.Reason, nullActor(rec.ActorID),
	).Scan(&rec.ID, &rec.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to append history: %w", err)
	}
	return nil
}

func nullActor(id uuid.UUID) uuid.NullUUID {
	return uuid.NullUUID{UUID: id, Valid: id != uuid.Nil}
}

// List implements Store
func (s *PostgresStore) List(ctx context.Context, ref EntityRef) ([]Record, error) {
	rows, err := storage.Q(ctx, s.db).QueryContext(ctx, `
		SELECT id, tenant_id, entity_type, entity_id, field, from_value, to_value, reason, actor_id, created_at
		FROM entity_history
		WHERE tenant_id = $1 AND entity_type = $2 AND entity_id = $3
		ORDER BY id
	`, ref.TenantID, ref.Type, ref.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		var (
			rec   Record
			actor uuid.NullUUID
		)
		if err := rows.Scan(&rec.ID, &rec.TenantID, &rec.EntityType, &rec.EntityID, &rec.Field,
			&rec.FromValue, &rec.ToValue, &rec.Reason, &actor, &rec.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan history: %w", err)
		}
		rec.ActorID = actor.UUID
		records = append(records, rec)
	}
	return records, rows.Err()
}

// MemoryStore is an in-process Store. Records appended inside a unit of work
// become visible only once the unit commits.
type MemoryStore struct {
	mu      sync.Mutex
	nextID  int64
	records map[EntityRef][]Record
	now     func() time.Time
}

// NewMemoryStore creates an empty in-memory history store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[EntityRef][]Record),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Append implements Store
func (s *MemoryStore) Append(ctx context.Context, rec *Record) error {
	s.mu.Lock()
	s.nextID++
	rec.ID = s.nextID
	rec.Timestamp = s.now()
	s.mu.Unlock()

	stored := *rec
	storage.AfterCommit(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		ref := stored.Entity()
		s.records[ref] = append(s.records[ref], stored)
	})
	return nil
}

// List implements Store
func (s *MemoryStore) List(ctx context.Context, ref EntityRef) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := append([]Record{}, s.records[ref]...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Len returns the total number of committed records
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, recs := range s.records {
		n += len(recs)
	}
	return n
}
