package sequence

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/platinummonkey/hearth/pkg/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestServiceNext(t *testing.T) {
	ctx := context.Background()
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	svc := NewService(NewMemoryCounter(), nil, metrics)
	a, b := uuid.New(), uuid.New()

	id, err := svc.Next(ctx, a, "job")
	require.NoError(t, err)
	assert.Equal(t, "JOB-000001", id)

	id, err = svc.Next(ctx, a, "JOB")
	require.NoError(t, err)
	assert.Equal(t, "JOB-000002", id)

	id, err = svc.Next(ctx, b, "JOB")
	require.NoError(t, err)
	assert.Equal(t, "JOB-000001", id, "tenants number independently")

	id, err = svc.Next(ctx, a, "INV")
	require.NoError(t, err)
	assert.Equal(t, "INV-000001", id, "prefixes number independently")

	_, err = svc.Next(ctx, a, "J0B")
	assert.ErrorIs(t, err, ErrInvalidPrefix)

	assert.Equal(t, float64(3), testutil.ToFloat64(metrics.SequenceIssuedTotal.WithLabelValues("JOB")))
}

func TestServiceNextConcurrent(t *testing.T) {
	counters := map[string]func(t *testing.T) Counter{
		"memory": func(t *testing.T) Counter { return NewMemoryCounter() },
		"redis": func(t *testing.T) Counter {
			c, _ := newRedisCounter(t)
			return c
		},
	}

	for name, newCounter := range counters {
		t.Run(name, func(t *testing.T) {
			svc := NewService(newCounter(t), nil, nil)
			tenant := uuid.New()

			const writers, perWriter = 10, 20
			var mu sync.Mutex
			seen := make(map[string]bool)

			g, ctx := errgroup.WithContext(context.Background())
			for w := 0; w < writers; w++ {
				g.Go(func() error {
					for i := 0; i < perWriter; i++ {
						id, err := svc.Next(ctx, tenant, "JOB")
						if err != nil {
							return err
						}
						mu.Lock()
						dup := seen[id]
						seen[id] = true
						mu.Unlock()
						if dup {
							return fmt.Errorf("duplicate identifier %s", id)
						}
					}
					return nil
				})
			}
			require.NoError(t, g.Wait())

			ids := make([]string, 0, len(seen))
			for id := range seen {
				ids = append(ids, id)
			}
			sort.Strings(ids)
			require.Len(t, ids, writers*perWriter)
			assert.Equal(t, "JOB-000001", ids[0])
			assert.Equal(t, Format("JOB", writers*perWriter), ids[len(ids)-1])
		})
	}
}

type contendedCounter struct{ Counter }

func (contendedCounter) Increment(ctx context.Context, tenant uuid.UUID, prefix string) (int64, error) {
	return 0, fmt.Errorf("%w: could not serialize access", ErrSequenceContention)
}

func TestServiceNextContention(t *testing.T) {
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	svc := NewService(contendedCounter{}, nil, metrics)

	_, err := svc.Next(context.Background(), uuid.New(), "JOB")
	assert.ErrorIs(t, err, ErrSequenceContention)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.SequenceContentionTotal))
}

func TestServiceReconcile(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryCounter(), nil, nil)
	tenant := uuid.New()

	value, err := svc.Reconcile(ctx, tenant, "job", []string{"JOB-000017", "JOB-000203", "INV-009999", "JOB-000150"})
	require.NoError(t, err)
	assert.Equal(t, int64(203), value)

	id, err := svc.Next(ctx, tenant, "JOB")
	require.NoError(t, err)
	assert.Equal(t, "JOB-000204", id)

	value, err = svc.Reconcile(ctx, tenant, "JOB", []string{"JOB-000010"})
	require.NoError(t, err)
	assert.Equal(t, int64(204), value, "reconcile never moves a counter backwards")

	_, err = svc.Reconcile(ctx, tenant, "JOB", []string{"JOB-12"})
	assert.True(t, errors.Is(err, ErrMalformedIdentifier))

	value, err = svc.Reconcile(ctx, uuid.New(), "JOB", nil)
	require.NoError(t, err)
	assert.Zero(t, value)
}
