package storage

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite" // SQLite driver, registered as "sqlite"

	"trailblazer_ai/internal/config"
	"trailblazer_ai/internal/models"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

func init() {
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

// DB wraps the database connection and provides health checks
type DB struct {
	conn   *sqlx.DB
	driver string

	queryTimeout time.Duration

	// Budget settings are read on every usage request
	budgetCache *LRUCache[*models.BudgetSettings]
}

// DBConfig holds database configuration
type DBConfig struct {
	// Connection settings
	Driver string // postgres or sqlite
	URL    string

	// Pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	// Query timeouts
	QueryTimeout time.Duration

	// Cache settings
	BudgetCacheSize int
	BudgetCacheTTL  time.Duration
}

// DefaultDBConfig returns default database configuration
func DefaultDBConfig() DBConfig {
	return DBConfig{
		Driver: DriverSQLite,
		URL:    "file:trailblazer.db?_pragma=busy_timeout(5000)",

		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 1 * time.Minute,

		QueryTimeout: 5 * time.Second,

		BudgetCacheSize: 100,
		BudgetCacheTTL:  time.Minute,
	}
}

// ConfigFrom applies the loaded database settings over the defaults.
func ConfigFrom(c config.DatabaseConfig) DBConfig {
	cfg := DefaultDBConfig()
	cfg.Driver = c.Driver
	cfg.URL = c.URL
	if c.MaxOpenConns > 0 {
		cfg.MaxOpenConns = c.MaxOpenConns
	}
	if c.MaxIdleConns > 0 {
		cfg.MaxIdleConns = c.MaxIdleConns
	}
	if c.ConnMaxLifetime > 0 {
		cfg.ConnMaxLifetime = c.ConnMaxLifetime
	}
	if c.ConnMaxIdleTime > 0 {
		cfg.ConnMaxIdleTime = c.ConnMaxIdleTime
	}
	return cfg
}

// NormalizeDriver maps driver aliases onto the registered driver names.
func NormalizeDriver(driver string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "postgres", "postgresql", "pq":
		return DriverPostgres, nil
	case "sqlite", "sqlite3", "":
		return DriverSQLite, nil
	}
	return "", eris.Errorf("unsupported database driver %q", driver)
}

// NewDB opens the database and configures the pool
func NewDB(cfg DBConfig) (*DB, error) {
	driver, err := NormalizeDriver(cfg.Driver)
	if err != nil {
		return nil, err
	}
	if cfg.URL == "" {
		return nil, eris.New("database url is required")
	}

	conn, err := sqlx.Connect(driver, cfg.URL)
	if err != nil {
		return nil, eris.Wrap(err, "failed to connect to database")
	}

	// Configure connection pool
	if driver == DriverSQLite {
		// single writer; avoids SQLITE_BUSY between pooled connections
		conn.SetMaxOpenConns(1)
	} else {
		conn.SetMaxOpenConns(cfg.MaxOpenConns)
		conn.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	conn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	conn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	return NewDBFromConn(conn, cfg), nil
}

// NewDBFromConn wraps an existing connection (tests use sqlmock here)
func NewDBFromConn(conn *sqlx.DB, cfg DBConfig) *DB {
	if cfg.BudgetCacheSize <= 0 {
		cfg.BudgetCacheSize = 100
	}
	if cfg.BudgetCacheTTL <= 0 {
		cfg.BudgetCacheTTL = time.Minute
	}
	return &DB{
		conn:         conn,
		driver:       conn.DriverName(),
		queryTimeout: cfg.QueryTimeout,
		budgetCache:  NewLRUCache[*models.BudgetSettings](cfg.BudgetCacheSize, cfg.BudgetCacheTTL),
	}
}

// Close closes the database connection and clears caches
func (db *DB) Close() error {
	db.budgetCache.Clear()
	return db.conn.Close()
}

// Ping checks if the database is reachable
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Health returns the health status of the database
func (db *DB) Health(ctx context.Context) error {
	if err := db.Ping(ctx); err != nil {
		return eris.Wrap(err, "database ping failed")
	}

	var result int
	if err := db.conn.GetContext(ctx, &result, "SELECT 1"); err != nil {
		return eris.Wrap(err, "health check query failed")
	}

	return nil
}

// DBStats reports pool and cache statistics
type DBStats struct {
	Driver             string
	MaxOpenConnections int
	OpenConnections    int
	InUse              int
	Idle               int
	WaitCount          int64
	WaitDuration       time.Duration

	BudgetCacheStats CacheStats
}

// GetStats returns current database and cache statistics
func (db *DB) GetStats() DBStats {
	stats := db.conn.Stats()

	return DBStats{
		Driver:             db.driver,
		MaxOpenConnections: stats.MaxOpenConnections,
		OpenConnections:    stats.OpenConnections,
		InUse:              stats.InUse,
		Idle:               stats.Idle,
		WaitCount:          stats.WaitCount,
		WaitDuration:       stats.WaitDuration,

		BudgetCacheStats: db.budgetCache.GetStats(),
	}
}

// BeginTx starts a new transaction
func (db *DB) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return db.conn.BeginTxx(ctx, opts)
}

// Conn returns the underlying sqlx connection
func (db *DB) Conn() *sqlx.DB {
	return db.conn
}

// Driver returns the normalized driver name
func (db *DB) Driver() string {
	return db.driver
}

// Rebind converts ? placeholders to the driver's bind style
func (db *DB) Rebind(query string) string {
	return db.conn.Rebind(query)
}

// withTimeout bounds a single query when a query timeout is configured
func (db *DB) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if db.queryTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, db.queryTimeout)
}

// CleanupExpiredCacheEntries removes expired budget entries
func (db *DB) CleanupExpiredCacheEntries() int {
	return db.budgetCache.CleanupExpired()
}

// Repository factory methods

// NewCredentialRepository creates a provider credential repository
func (db *DB) NewCredentialRepository() *CredentialRepository {
	return NewCredentialRepository(db)
}

// NewAnalysisRepository creates an analysis record repository
func (db *DB) NewAnalysisRepository() *AnalysisRepository {
	return NewAnalysisRepository(db)
}

// NewMetricsRepository creates a metrics record repository
func (db *DB) NewMetricsRepository() *MetricsRepository {
	return NewMetricsRepository(db)
}

// NewBudgetRepository creates a budget settings repository
func (db *DB) NewBudgetRepository() *BudgetRepository {
	return NewBudgetRepository(db)
}
