package logging

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// AuditRecord is one completed analysis or trail search, archived to S3 as a JSON line.
type AuditRecord struct {
	Timestamp    time.Time       `json:"timestamp"`
	RequestID    string          `json:"request_id"`
	AnalysisID   string          `json:"analysis_id,omitempty"`
	UserID       string          `json:"user_id,omitempty"`
	UseCase      string          `json:"use_case"`
	Provider     string          `json:"provider"`
	Model        string          `json:"model"`
	Source       string          `json:"credential_source,omitempty"`
	ImageCount   int             `json:"image_count,omitempty"`
	ImageSHA256  []string        `json:"image_sha256,omitempty"`
	Difficulty   int             `json:"difficulty,omitempty"`
	ParseFailed  bool            `json:"parse_failed,omitempty"`
	LatencyMs    int64           `json:"latency_ms"`
	InputTokens  int64           `json:"input_tokens"`
	OutputTokens int64           `json:"output_tokens"`
	CostUSD      decimal.Decimal `json:"cost_usd"`
	Verdict      *VerdictSummary `json:"verdict,omitempty"`
	Error        string          `json:"error,omitempty"`
	RawResponse  string          `json:"raw_response,omitempty"`
}

// VerdictSummary is the part of a judge verdict worth keeping in the archive.
type VerdictSummary struct {
	Passed              bool    `json:"passed"`
	OverallScore        float64 `json:"overall_score"`
	Severity            string  `json:"hallucination_severity"`
	Iterations          int     `json:"iterations"`
	VerificationSkipped bool    `json:"verification_skipped,omitempty"`
	Revised             bool    `json:"revised,omitempty"`
}

// Sink receives audit records from the analysis service.
type Sink interface {
	Enqueue(rec *AuditRecord) error
	Shutdown(ctx context.Context) error
}

// NoopSink discards records. Used when the archive is disabled.
type NoopSink struct{}

func NewNoopSink() *NoopSink {
	return &NoopSink{}
}

func (s *NoopSink) Enqueue(rec *AuditRecord) error { return nil }

func (s *NoopSink) Shutdown(ctx context.Context) error { return nil }
