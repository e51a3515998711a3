package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolConfigAppliesOptions(t *testing.T) {
	cfg, err := poolConfig("  postgres://u:p@h:5432/db?sslmode=disable  ", PoolOptions{
		MaxConns:        12,
		MinConns:        2,
		ConnectTimeout:  3 * time.Second,
		MaxConnLifetime: 10 * time.Minute,
	})
	require.NoError(t, err)
	assert.Equal(t, int32(12), cfg.MaxConns)
	assert.Equal(t, int32(2), cfg.MinConns)
	assert.Equal(t, 3*time.Second, cfg.ConnConfig.ConnectTimeout)
	assert.Equal(t, 10*time.Minute, cfg.MaxConnLifetime)
	assert.Equal(t, defaultMaxConnIdleTime, cfg.MaxConnIdleTime)
	assert.Equal(t, "h", cfg.ConnConfig.Host)
}

func TestPoolConfigDefaultsAndDSNParams(t *testing.T) {
	cfg, err := poolConfig("postgres://u@h/db", PoolOptions{})
	require.NoError(t, err)
	assert.Equal(t, int32(defaultMaxConns), cfg.MaxConns)
	assert.Equal(t, defaultMaxConnLifetime, cfg.MaxConnLifetime)
	assert.Equal(t, defaultHealthCheckPeriod, cfg.HealthCheckPeriod)

	cfg, err = poolConfig("postgres://u@h/db?pool_max_conns=7", PoolOptions{})
	require.NoError(t, err)
	assert.Equal(t, int32(7), cfg.MaxConns)

	cfg, err = poolConfig("postgres://u@h/db?pool_max_conns=7", PoolOptions{MaxConns: 9})
	require.NoError(t, err)
	assert.Equal(t, int32(9), cfg.MaxConns)
}

func TestPoolConfigRejectsBadInput(t *testing.T) {
	_, err := poolConfig(" ", PoolOptions{})
	require.Error(t, err)

	_, err = poolConfig("postgres://u@h/db", PoolOptions{MaxConns: 2, MinConns: 3})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds max conns")
}

func TestConnectRejectsGarbageDSN(t *testing.T) {
	_, err := Connect(context.Background(), "postgres://%zz", PoolOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres: parse config")
}

func TestOpenSQLite(t *testing.T) {
	_, err := OpenSQLite(context.Background(), " ")
	require.Error(t, err)

	db, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	var one int
	require.NoError(t, db.QueryRow("SELECT 1").Scan(&one))
	assert.Equal(t, 1, one)
}
