package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"trailblazer_ai/internal/models"
)

const analysisColumns = `id, user_id, provider, model, difficulty, analysis, raw_response, judge_verdict,
	judge_passed, input_tokens, output_tokens, cost_usd, latency_ms, use_case_id, created_at`

// AnalysisRepository persists final analysis results
type AnalysisRepository struct {
	db *DB
}

// NewAnalysisRepository creates a new analysis repository
func NewAnalysisRepository(db *DB) *AnalysisRepository {
	return &AnalysisRepository{db: db}
}

// Create inserts a record, assigning an id and timestamp when missing
func (r *AnalysisRepository) Create(ctx context.Context, rec *models.AnalysisRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	query := `INSERT INTO analysis_records (` + analysisColumns + `)
		VALUES (:id, :user_id, :provider, :model, :difficulty, :analysis, :raw_response, :judge_verdict,
			:judge_passed, :input_tokens, :output_tokens, :cost_usd, :latency_ms, :use_case_id, :created_at)`

	if _, err := r.db.conn.NamedExecContext(ctx, query, rec); err != nil {
		return eris.Wrap(err, "failed to create analysis record")
	}
	return nil
}

// GetByID loads one record
func (r *AnalysisRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.AnalysisRecord, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var rec models.AnalysisRecord
	query := r.db.Rebind(`SELECT ` + analysisColumns + ` FROM analysis_records WHERE id = ?`)
	if err := r.db.conn.GetContext(ctx, &rec, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAnalysisNotFound
		}
		return nil, eris.Wrap(err, "failed to get analysis record")
	}
	return &rec, nil
}

// ListByUser returns a user's most recent records
func (r *AnalysisRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*models.AnalysisRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var recs []*models.AnalysisRecord
	query := r.db.Rebind(`SELECT ` + analysisColumns + ` FROM analysis_records
		WHERE user_id = ? ORDER BY created_at DESC LIMIT ?`)
	if err := r.db.conn.SelectContext(ctx, &recs, query, userID, limit); err != nil {
		return nil, eris.Wrap(err, "failed to list analysis records")
	}
	return recs, nil
}
