package audit

import (
	"context"
	"database/sql/driver"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresStoreAppend(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresStore(db)
	ref := contactRef()
	actor := uuid.New()
	now := time.Now().UTC().Truncate(time.Second)

	mock.ExpectQuery(`INSERT INTO entity_history \(tenant_id, entity_type, entity_id, field, from_value, to_value, reason, actor_id\)`).
		WithArgs(ref.TenantID, EntityContact, ref.ID, FieldRelationshipStatus, "prospect", "customer", "signed", actor).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(42), now))

	rec := &Record{
		TenantID: ref.TenantID, EntityType: EntityContact, EntityID: ref.ID,
		Field: FieldRelationshipStatus, FromValue: "prospect", ToValue: "customer",
		Reason: "signed", ActorID: actor,
	}
	require.NoError(t, store.Append(context.Background(), rec))
	assert.Equal(t, int64(42), rec.ID)
	assert.Equal(t, now, rec.Timestamp)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreAppendWithoutActor(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ref := contactRef()
	mock.ExpectQuery(`INSERT INTO entity_history`).
		WithArgs(ref.TenantID, EntityJob, ref.ID, FieldCreated, "", "JOB-000001", "", nil).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(1), time.Now()))

	rec := &Record{TenantID: ref.TenantID, EntityType: EntityJob, EntityID: ref.ID, Field: FieldCreated, ToValue: "JOB-000001"}
	require.NoError(t, NewPostgresStore(db).Append(context.Background(), rec))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreList(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ref := contactRef()
	actor := uuid.New()
	now := time.Now().UTC()
	columns := []string{"id", "tenant_id", "entity_type", "entity_id", "field", "from_value", "to_value", "reason", "actor_id", "created_at"}
	row := func(id int64, from, to string, actor driver.Value) []driver.Value {
		return []driver.Value{id, ref.TenantID.String(), ref.Type, ref.ID.String(), FieldRelationshipStatus, from, to, "", actor, now}
	}

	mock.ExpectQuery(`SELECT .+ FROM entity_history\s+WHERE tenant_id = \$1 AND entity_type = \$2 AND entity_id = \$3\s+ORDER BY id`).
		WithArgs(ref.TenantID, ref.Type, ref.ID).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow(row(1, "prospect", "qualified_lead", actor.String())...).
			AddRow(row(2, "qualified_lead", "customer", nil)...))

	records, err := NewPostgresStore(db).List(context.Background(), ref)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, int64(1), records[0].ID)
	assert.Equal(t, actor, records[0].ActorID)
	assert.Equal(t, uuid.Nil, records[1].ActorID)
	assert.Equal(t, "customer", records[1].ToValue)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreListEmpty(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT .+ FROM entity_history`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	records, err := NewPostgresStore(db).List(context.Background(), contactRef())
	require.NoError(t, err)
	assert.NotNil(t, records)
	assert.Empty(t, records)
}
