package audit

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/platinummonkey/hearth/pkg/observability"
	"github.com/platinummonkey/hearth/pkg/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func contactRef() EntityRef {
	return EntityRef{TenantID: uuid.New(), Type: EntityContact, ID: uuid.New()}
}

func TestTrailRecordSkipsUnchanged(t *testing.T) {
	ctx := context.Background()
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	trail := NewTrail(NewMemoryStore(), WithMetrics(metrics))
	ref := contactRef()
	actor := uuid.New()

	wrote, err := trail.Record(ctx, Change{Entity: ref, Field: FieldRelationshipStatus, From: "prospect", To: "prospect", ActorID: actor})
	require.NoError(t, err)
	assert.False(t, wrote)

	history, err := trail.History(ctx, ref)
	require.NoError(t, err)
	assert.Empty(t, history)

	wrote, err = trail.Record(ctx, Change{Entity: ref, Field: FieldRelationshipStatus, From: "prospect", To: "qualified_lead", ActorID: actor})
	require.NoError(t, err)
	assert.True(t, wrote)

	history, err = trail.History(ctx, ref)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "prospect", history[0].FromValue)
	assert.Equal(t, "qualified_lead", history[0].ToValue)
	assert.Equal(t, actor, history[0].ActorID)
	assert.False(t, history[0].Timestamp.IsZero())

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.AuditRecordsTotal.WithLabelValues(EntityContact)))
}

func TestTrailHistoryOrder(t *testing.T) {
	ctx := context.Background()
	trail := NewTrail(NewMemoryStore())
	ref := contactRef()
	other := contactRef()

	statuses := []string{"prospect", "qualified_lead", "customer", "inactive", "customer"}
	changed := 0
	for i := 1; i < len(statuses); i++ {
		wrote, err := trail.Record(ctx, Change{Entity: ref, Field: FieldRelationshipStatus, From: statuses[i-1], To: statuses[i]})
		require.NoError(t, err)
		if wrote {
			changed++
		}
		_, err = trail.Record(ctx, Change{Entity: other, Field: FieldRelationshipStatus, From: "a", To: "b"})
		require.NoError(t, err)
	}

	history, err := trail.History(ctx, ref)
	require.NoError(t, err)
	require.Len(t, history, changed)
	for i, rec := range history {
		assert.Equal(t, statuses[i], rec.FromValue)
		assert.Equal(t, statuses[i+1], rec.ToValue)
		if i > 0 {
			assert.Greater(t, rec.ID, history[i-1].ID)
		}
	}
}

func TestTrailAppendValidation(t *testing.T) {
	ctx := context.Background()
	trail := NewTrail(NewMemoryStore())
	ref := contactRef()

	tests := []struct {
		name string
		rec  Record
	}{
		{"missing tenant", Record{EntityType: EntityJob, EntityID: ref.ID, Field: FieldStatus}},
		{"missing type", Record{TenantID: ref.TenantID, EntityID: ref.ID, Field: FieldStatus}},
		{"missing entity", Record{TenantID: ref.TenantID, EntityType: EntityJob, Field: FieldStatus}},
		{"missing field", Record{TenantID: ref.TenantID, EntityType: EntityJob, EntityID: ref.ID}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := tt.rec
			err := trail.Append(ctx, &rec)
			assert.ErrorIs(t, err, ErrInvalidRecord)
		})
	}
}

func TestTrailRollsBackWithUnit(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	trail := NewTrail(store)
	uow := storage.NewLocalUnitOfWork()
	ref := contactRef()
	boom := errors.New("mutation failed")

	err := uow.Do(ctx, func(ctx context.Context) error {
		if _, err := trail.Record(ctx, Change{Entity: ref, Field: FieldStatus, From: "scheduled", To: "in_progress"}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, store.Len())

	err = uow.Do(ctx, func(ctx context.Context) error {
		_, err := trail.Record(ctx, Change{Entity: ref, Field: FieldStatus, From: "scheduled", To: "in_progress"})
		return err
	})
	require.NoError(t, err)

	history, err := trail.History(ctx, ref)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestTrailConcurrentAppends(t *testing.T) {
	ctx := context.Background()
	trail := NewTrail(NewMemoryStore())
	ref := contactRef()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := trail.Record(ctx, Change{Entity: ref, Field: FieldAssignee, From: "", To: uuid.NewString()})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	history, err := trail.History(ctx, ref)
	require.NoError(t, err)
	assert.Len(t, history, 50)
}

type failingStore struct{ Store }

func (failingStore) Append(ctx context.Context, rec *Record) error {
	return errors.New("disk full")
}

func TestTrailPropagatesStoreFailure(t *testing.T) {
	trail := NewTrail(failingStore{})
	_, err := trail.Record(context.Background(), Change{Entity: contactRef(), Field: FieldStatus, From: "a", To: "b"})
	assert.EqualError(t, err, "disk full")
}
