package storage

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trailblazer_ai/internal/config"
)

func TestNormalizeDriver(t *testing.T) {
	for in, want := range map[string]string{
		"postgres":   DriverPostgres,
		"postgresql": DriverPostgres,
		"sqlite3":    DriverSQLite,
		"SQLite":     DriverSQLite,
		"":           DriverSQLite,
	} {
		got, err := NormalizeDriver(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := NormalizeDriver("mysql")
	assert.Error(t, err)
}

func TestNewDB_RequiresURL(t *testing.T) {
	cfg := DefaultDBConfig()
	cfg.URL = ""
	_, err := NewDB(cfg)
	assert.Error(t, err)
}

func TestDB_HealthAndMigrateIdempotent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.Health(ctx))
	require.NoError(t, db.Migrate(ctx), "second migration is a no-op")

	stats := db.GetStats()
	assert.Equal(t, DriverSQLite, stats.Driver)
	assert.Equal(t, 1, stats.MaxOpenConnections)
}

func TestDB_Rebind(t *testing.T) {
	db := newTestDB(t)
	assert.Equal(t, "SELECT 1 WHERE a = ? AND b = ?", db.Rebind("SELECT 1 WHERE a = ? AND b = ?"))
}

func TestSchemaStatements(t *testing.T) {
	pg, err := SchemaStatements(DriverPostgres)
	require.NoError(t, err)
	joined := strings.Join(pg, "\n")
	assert.Contains(t, joined, "TIMESTAMPTZ")
	assert.Contains(t, joined, "JSONB")
	assert.NotContains(t, joined, "{{")

	lite, err := SchemaStatements(DriverSQLite)
	require.NoError(t, err)
	assert.NotContains(t, strings.Join(lite, "\n"), "JSONB")

	_, err = SchemaStatements("oracle")
	assert.Error(t, err)
}

func TestConfigFrom(t *testing.T) {
	cfg := ConfigFrom(config.DatabaseConfig{Driver: "postgres", URL: "postgres://localhost/trailblazer", MaxOpenConns: 40})
	assert.Equal(t, "postgres", cfg.Driver)
	assert.Equal(t, "postgres://localhost/trailblazer", cfg.URL)
	assert.Equal(t, 40, cfg.MaxOpenConns)
	assert.Equal(t, DefaultDBConfig().MaxIdleConns, cfg.MaxIdleConns)
	assert.Equal(t, DefaultDBConfig().QueryTimeout, cfg.QueryTimeout)
}
