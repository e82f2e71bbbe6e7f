package sequence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/platinummonkey/hearth/pkg/storage/postgres"
)

// Counter is an atomic per-(tenant, prefix) counter. Counters start at zero,
// so the first Increment returns 1.
type Counter interface {
	// Increment atomically adds one and returns the new value
	Increment(ctx context.Context, tenant uuid.UUID, prefix string) (int64, error)

	// Seed raises the counter to at least floor and returns its value
	Seed(ctx context.Context, tenant uuid.UUID, prefix string, floor int64) (int64, error)
}

// PostgresCounter keeps counters in the sequence_counters table. Each
// operation is one upsert statement, so it never reads then writes.
type PostgresCounter struct {
	db *sql.DB
}

// NewPostgresCounter creates a counter on db
func NewPostgresCounter(db *sql.DB) *PostgresCounter {
	return &PostgresCounter{db: db}
}

func pgError(op string, err error) error {
	if postgres.IsContention(err) {
		return fmt.Errorf("%w: %v", ErrSequenceContention, err)
	}
	return fmt.Errorf("failed to %s sequence counter: %w", op, err)
}

// Increment implements Counter
func (c *PostgresCounter) Increment(ctx context.Context, tenant uuid.UUID, prefix string) (int64, error) {
	var value int64
	err := c.db.QueryRowContext(ctx, `
		INSERT INTO sequence_counters (tenant_id, prefix, value)
		VALUES ($1, $2, 1)
		ON CONFLICT (tenant_id, prefix)
		DO UPDATE SET value = sequence_counters.value + 1, updated_at = NOW()
		RETURNING value
	`, tenant, prefix).Scan(&value)
	if err != nil {
		return 0, pgError("increment", err)
	}
	return value, nil
}

// Seed implements Counter
func (c *PostgresCounter) Seed(ctx context.Context, tenant uuid.UUID, prefix string, floor int64) (int64, error) {
	var value int64
	err := c.db.QueryRowContext(ctx, `
		INSERT INTO sequence_counters (tenant_id, prefix, value)
		VALUES ($1, $2, $3)
		ON CONFLICT (tenant_id, prefix)
		DO UPDATE SET value = GREATEST(sequence_counters.value, EXCLUDED.value), updated_at = NOW()
		RETURNING value
	`, tenant, prefix, floor).Scan(&value)
	if err != nil {
		return 0, pgError("seed", err)
	}
	return value, nil
}

// RedisCounter keeps counters as Redis integers under
// hearth:seq:{tenant}:{prefix}. Redis must run with AOF persistence
// (appendonly yes, appendfsync everysec or always); a restart that loses the
// keys reissues numbers until the counters are reconciled, which
// cmd/hearth does for job numbers at startup.
type RedisCounter struct {
	client *redis.Client
}

// NewRedisCounter creates a counter on client
func NewRedisCounter(client *redis.Client) *RedisCounter {
	return &RedisCounter{client: client}
}

// seedScript raises the key to ARGV[1] when it is lower
var seedScript = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
local floor = tonumber(ARGV[1])
if floor > current then
	redis.call('SET', KEYS[1], floor)
	return floor
end
return current
`)

// Key returns the Redis key of a counter
func Key(tenant uuid.UUID, prefix string) string {
	return "hearth:seq:" + tenant.String() + ":" + prefix
}

func redisError(op string, err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %v", ErrSequenceContention, err)
	}
	return fmt.Errorf("failed to %s sequence counter: %w", op, err)
}

// Increment implements Counter
func (c *RedisCounter) Increment(ctx context.Context, tenant uuid.UUID, prefix string) (int64, error) {
	value, err := c.client.Incr(ctx, Key(tenant, prefix)).Result()
	if err != nil {
		return 0, redisError("increment", err)
	}
	return value, nil
}

// Seed implements Counter
func (c *RedisCounter) Seed(ctx context.Context, tenant uuid.UUID, prefix string, floor int64) (int64, error) {
	value, err := seedScript.Run(ctx, c.client, []string{Key(tenant, prefix)}, floor).Int64()
	if err != nil {
		return 0, redisError("seed", err)
	}
	return value, nil
}

type counterKey struct {
	tenant uuid.UUID
	prefix string
}

// MemoryCounter is an in-process Counter
type MemoryCounter struct {
	mu     sync.Mutex
	values map[counterKey]int64
}

// NewMemoryCounter creates an empty in-memory counter
func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{values: make(map[counterKey]int64)}
}

// Increment implements Counter
func (c *MemoryCounter) Increment(ctx context.Context, tenant uuid.UUID, prefix string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	k := counterKey{tenant: tenant, prefix: prefix}
	c.values[k]++
	return c.values[k], nil
}

// Seed implements Counter
func (c *MemoryCounter) Seed(ctx context.Context, tenant uuid.UUID, prefix string, floor int64) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	k := counterKey{tenant: tenant, prefix: prefix}
	if floor > c.values[k] {
		c.values[k] = floor
	}
	return c.values[k], nil
}
