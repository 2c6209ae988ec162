package storage

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
)

// column types that differ between dialects
type dialect struct {
	id, timestamp, json, money string
}

var dialects = map[string]dialect{
	DriverPostgres: {id: "UUID", timestamp: "TIMESTAMPTZ", json: "JSONB", money: "NUMERIC(20,10)"},
	// modernc parses TIMESTAMP columns back into time.Time; TEXT keeps decimals exact
	DriverSQLite: {id: "TEXT", timestamp: "TIMESTAMP", json: "TEXT", money: "TEXT"},
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS provider_credentials (
		id {{id}} PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		provider TEXT NOT NULL,
		encrypted_api_key TEXT NOT NULL,
		api_key_iv TEXT NOT NULL,
		api_key_auth_tag TEXT NOT NULL,
		encrypted_secret_key TEXT,
		secret_key_iv TEXT,
		secret_key_auth_tag TEXT,
		region TEXT,
		default_model TEXT NOT NULL DEFAULT '',
		is_enabled BOOLEAN NOT NULL DEFAULT TRUE,
		is_judge_model BOOLEAN NOT NULL DEFAULT FALSE,
		created_at {{timestamp}} NOT NULL,
		updated_at {{timestamp}} NOT NULL,
		UNIQUE (tenant_id, provider)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_provider_credentials_tenant ON provider_credentials (tenant_id, is_enabled, updated_at)`,
	`CREATE TABLE IF NOT EXISTS analysis_records (
		id {{id}} PRIMARY KEY,
		user_id TEXT NOT NULL DEFAULT '',
		provider TEXT NOT NULL,
		model TEXT NOT NULL,
		difficulty INTEGER NOT NULL,
		analysis {{json}} NOT NULL,
		raw_response TEXT NOT NULL,
		judge_verdict {{json}},
		judge_passed BOOLEAN,
		input_tokens BIGINT NOT NULL DEFAULT 0,
		output_tokens BIGINT NOT NULL DEFAULT 0,
		cost_usd {{money}} NOT NULL,
		latency_ms BIGINT NOT NULL DEFAULT 0,
		use_case_id TEXT NOT NULL DEFAULT '',
		created_at {{timestamp}} NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_analysis_records_user ON analysis_records (user_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS metrics_records (
		id {{id}} PRIMARY KEY,
		user_id TEXT NOT NULL DEFAULT '',
		provider TEXT NOT NULL,
		model TEXT NOT NULL,
		use_case TEXT NOT NULL DEFAULT '',
		use_case_id TEXT NOT NULL DEFAULT '',
		input_tokens BIGINT NOT NULL DEFAULT 0,
		output_tokens BIGINT NOT NULL DEFAULT 0,
		cost_usd {{money}} NOT NULL,
		latency_ms BIGINT NOT NULL DEFAULT 0,
		success BOOLEAN NOT NULL,
		created_at {{timestamp}} NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_metrics_records_created ON metrics_records (created_at)`,
	`CREATE TABLE IF NOT EXISTS budget_settings (
		scope TEXT PRIMARY KEY,
		monthly_limit_usd {{money}} NOT NULL,
		daily_limit_usd {{money}} NOT NULL,
		warning_threshold DOUBLE PRECISION NOT NULL,
		updated_at {{timestamp}} NOT NULL
	)`,
}

// SchemaStatements renders the DDL for a driver
func SchemaStatements(driver string) ([]string, error) {
	d, ok := dialects[driver]
	if !ok {
		return nil, eris.Errorf("no schema for driver %q", driver)
	}
	r := strings.NewReplacer("{{id}}", d.id, "{{timestamp}}", d.timestamp, "{{json}}", d.json, "{{money}}", d.money)
	out := make([]string, len(schema))
	for i, stmt := range schema {
		out[i] = r.Replace(stmt)
	}
	return out, nil
}

// Migrate creates the tables if they do not exist
func (db *DB) Migrate(ctx context.Context) error {
	stmts, err := SchemaStatements(db.driver)
	if err != nil {
		return err
	}
	for _, stmt := range stmts {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return eris.Wrapf(err, "migration failed: %s", firstLine(stmt))
		}
	}
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
