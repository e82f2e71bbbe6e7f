package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConnectionConfig(t *testing.T) {
	cfg := DefaultConnectionConfig("postgres://localhost/hearth")
	assert.Equal(t, "postgres://localhost/hearth", cfg.URL)
	assert.Equal(t, 25, cfg.MaxConns)
	assert.Equal(t, 5, cfg.MinConns)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
}

func TestOpen_RequiresURL(t *testing.T) {
	_, err := Open(context.Background(), ConnectionConfig{})
	assert.Error(t, err)
}

func TestConfigurePool(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	configurePool(db, ConnectionConfig{MaxConns: 7, MinConns: 2})
	assert.Equal(t, 7, db.Stats().MaxOpenConnections)
}
