package storage

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrations(t *testing.T) {
	migrations := Migrations()
	require.NotEmpty(t, migrations)

	for i, m := range migrations {
		assert.Equal(t, i+1, m.Version, "versions must be contiguous")
		assert.NotEmpty(t, m.Description)
		assert.NotEmpty(t, m.SQL)
	}
}

func TestMigrate(t *testing.T) {
	t.Run("applies pending migrations only", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		all := Migrations()

		mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").
			WillReturnResult(sqlmock.NewResult(0, 0))

		applied := sqlmock.NewRows([]string{"version"})
		for _, m := range all[:len(all)-1] {
			applied.AddRow(m.Version)
		}
		mock.ExpectQuery("SELECT version FROM schema_migrations").WillReturnRows(applied)

		last := all[len(all)-1]
		mock.ExpectBegin()
		mock.ExpectExec("CREATE TABLE IF NOT EXISTS contacts").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec("INSERT INTO schema_migrations").
			WithArgs(last.Version, last.Description).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		require.NoError(t, Migrate(context.Background(), db, nil))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("failed migration rolls back", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT version FROM schema_migrations").
			WillReturnRows(sqlmock.NewRows([]string{"version"}))
		mock.ExpectBegin()
		mock.ExpectExec("CREATE TABLE IF NOT EXISTS principals").
			WillReturnError(assert.AnError)
		mock.ExpectRollback()

		err = Migrate(context.Background(), db, nil)
		assert.ErrorIs(t, err, assert.AnError)
		assert.Contains(t, err.Error(), "migration 1")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
