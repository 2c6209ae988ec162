package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"trailblazer_ai/internal/models"
	"trailblazer_ai/internal/utils"
)

const metricsInsert = `INSERT INTO metrics_records
	(id, user_id, provider, model, use_case, use_case_id, input_tokens, output_tokens, cost_usd, latency_ms, success, created_at)
	VALUES (:id, :user_id, :provider, :model, :use_case, :use_case_id, :input_tokens, :output_tokens, :cost_usd, :latency_ms, :success, :created_at)`

// MetricsRepository persists per-call usage records
type MetricsRepository struct {
	db *DB
}

// NewMetricsRepository creates a new metrics repository
func NewMetricsRepository(db *DB) *MetricsRepository {
	return &MetricsRepository{db: db}
}

// validateMetricsRecord rejects records no retry can fix.
func validateMetricsRecord(rec *models.MetricsRecord) error {
	if rec.Provider == "" || rec.Model == "" {
		return utils.Permanent(eris.New("metrics record needs a provider and a model"))
	}
	if rec.CostUSD.IsNegative() {
		return utils.Permanent(eris.Errorf("metrics record %s has negative cost", rec.ID))
	}
	return nil
}

func prepareMetricsRecord(rec *models.MetricsRecord) {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
}

// Create inserts one record
func (r *MetricsRepository) Create(ctx context.Context, rec *models.MetricsRecord) error {
	if err := validateMetricsRecord(rec); err != nil {
		return err
	}
	prepareMetricsRecord(rec)

	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	if _, err := r.db.conn.NamedExecContext(ctx, metricsInsert, rec); err != nil {
		return eris.Wrap(err, "failed to insert metrics record")
	}
	return nil
}

// BatchInsert inserts all records in one transaction; either all land or none do
func (r *MetricsRepository) BatchInsert(ctx context.Context, recs []*models.MetricsRecord) error {
	if len(recs) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback() //nolint:errcheck

	for _, rec := range recs {
		prepareMetricsRecord(rec)
		if _, err := tx.NamedExecContext(ctx, metricsInsert, rec); err != nil {
			return eris.Wrapf(err, "failed to insert metrics record %s", rec.ID)
		}
	}

	if err := tx.Commit(); err != nil {
		return eris.Wrap(err, "failed to commit transaction")
	}
	return nil
}

// ListSince returns records created at or after since, oldest first
func (r *MetricsRepository) ListSince(ctx context.Context, since time.Time) ([]*models.MetricsRecord, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var recs []*models.MetricsRecord
	query := r.db.Rebind(`SELECT id, user_id, provider, model, use_case, use_case_id, input_tokens, output_tokens,
		cost_usd, latency_ms, success, created_at
		FROM metrics_records WHERE created_at >= ? ORDER BY created_at ASC`)
	if err := r.db.conn.SelectContext(ctx, &recs, query, since.UTC()); err != nil {
		return nil, eris.Wrap(err, "failed to list metrics records")
	}
	return recs, nil
}
