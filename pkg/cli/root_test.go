package cli

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/platinummonkey/hearth/pkg/config"
	"github.com/platinummonkey/hearth/pkg/middleware"
	"github.com/platinummonkey/hearth/pkg/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func testEnv(t *testing.T, db *sql.DB) (*Env, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	cfg := &config.Config{Auth: config.AuthConfig{JWTSecret: testSecret, JWTIssuer: "hearth"}}
	return &Env{
		Out:    &out,
		Logger: observability.NewNopLogger(),
		Config: func() (*config.Config, error) { return cfg, nil },
		OpenDB: func(context.Context, *config.Config) (*sql.DB, error) {
			if db == nil {
				return nil, errors.New("no database")
			}
			return db, nil
		},
	}, &out
}

func TestRootCommand(t *testing.T) {
	env, out := testEnv(t, nil)
	root := NewRootCommand(env)

	for _, name := range []string{"migrate", "token", "sweep", "purge", "reconcile"} {
		assert.Contains(t, root.Subcommands, name)
	}
	assert.Len(t, root.Subcommands, 5)

	require.NoError(t, root.Execute(context.Background(), out, nil))
	assert.Contains(t, out.String(), "Usage: hearthctl <command>")
	assert.Less(t, strings.Index(out.String(), "migrate"), strings.Index(out.String(), "token"), "commands are listed sorted")

	err := root.Execute(context.Background(), out, []string{"frobnicate"})
	assert.EqualError(t, err, "unknown command: frobnicate")
}

func TestTokenCommand(t *testing.T) {
	env, out := testEnv(t, nil)
	root := NewRootCommand(env)
	principal := uuid.New()

	require.NoError(t, root.Execute(context.Background(), out, []string{"token", "--principal", principal.String(), "--ttl", "5m"}))

	got, err := middleware.NewTokenVerifier(testSecret, "hearth").Verify(strings.TrimSpace(out.String()))
	require.NoError(t, err)
	assert.Equal(t, principal, got)

	err = NewRootCommand(env).Execute(context.Background(), out, []string{"token", "--principal", "nope"})
	assert.ErrorContains(t, err, "invalid --principal")
}

func TestReconcileCommand(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	env, out := testEnv(t, db)
	tenant := uuid.New()
	now := time.Now()

	rows := sqlmock.NewRows([]string{"id", "tenant_id", "number", "title", "description", "status",
		"contact_id", "assignee_id", "created_by", "created_at", "updated_at"})
	for _, number := range []string{"JOB-000003", "JOB-000017"} {
		rows.AddRow(uuid.NewString(), tenant.String(), number, "t", "", "completed", nil, nil, uuid.NewString(), now, now)
	}
	mock.ExpectQuery(`FROM jobs`).WithArgs(tenant).WillReturnRows(rows)
	mock.ExpectQuery(`INSERT INTO sequence_counters`).
		WithArgs(tenant, "JOB", int64(17)).
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow(int64(17)))
	mock.ExpectClose()

	require.NoError(t, NewRootCommand(env).Execute(context.Background(), out, []string{"reconcile", "--tenant", tenant.String()}))
	assert.Equal(t, "next job number: JOB-000018\n", out.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommandsNeedADatabase(t *testing.T) {
	env, out := testEnv(t, nil)

	err := NewRootCommand(env).Execute(context.Background(), out, []string{"sweep"})
	assert.EqualError(t, err, "no database")

	err = NewRootCommand(env).Execute(context.Background(), out, []string{"sweep", "--tenant", "x"})
	assert.ErrorContains(t, err, "invalid --tenant")
}
