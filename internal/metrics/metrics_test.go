package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trailblazer_ai/internal/billing"
	"trailblazer_ai/internal/models"
)

var _ billing.Reporter = (*Prometheus)(nil)
var _ billing.Reporter = (*NoopMetrics)(nil)

func TestPrometheus_Report(t *testing.T) {
	p := NewPrometheus("test")
	ev := models.UsageEvent{
		Provider:     models.ProviderAnthropic,
		Model:        "claude-sonnet-4-20250514",
		InputTokens:  1000,
		OutputTokens: 500,
		Cost:         decimal.RequireFromString("0.0105"),
		LatencyMs:    1500,
		UseCase:      models.UseCaseTrailAnalysis,
		Success:      true,
	}
	require.NoError(t, p.Report(context.Background(), ev))
	require.NoError(t, p.Report(context.Background(), ev))

	assert.Equal(t, 2.0, testutil.ToFloat64(p.providerCalls.WithLabelValues("anthropic", ev.Model, ev.UseCase, "true")))
	assert.Equal(t, 2000.0, testutil.ToFloat64(p.tokens.WithLabelValues("anthropic", ev.Model, "input")))
	assert.Equal(t, 1000.0, testutil.ToFloat64(p.tokens.WithLabelValues("anthropic", ev.Model, "output")))
	assert.InDelta(t, 0.021, testutil.ToFloat64(p.costUSD.WithLabelValues("anthropic", ev.Model, ev.UseCase)), 1e-9)
}

func TestPrometheus_ObserveVerdict(t *testing.T) {
	p := NewPrometheus("test")
	p.ObserveVerdict(models.JudgeVerdict{Passed: true, HallucinationSeverity: models.SeverityNone, Iterations: 1})
	p.ObserveVerdict(models.JudgeVerdict{Passed: true, VerificationSkipped: true, HallucinationSeverity: models.SeverityNone})
	p.ObserveVerdict(models.JudgeVerdict{NeedsRerun: true})
	p.ObserveVerdict(models.JudgeVerdict{HallucinationSeverity: models.SeveritySevere, Iterations: 3})

	assert.Equal(t, 1.0, testutil.ToFloat64(p.verdicts.WithLabelValues("passed", "none")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.verdicts.WithLabelValues("skipped", "none")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.verdicts.WithLabelValues("error", "unknown")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.verdicts.WithLabelValues("failed", "severe")))
}

func TestPrometheus_HTTPHandler(t *testing.T) {
	p := NewPrometheus("test")
	p.ObserveRequest("/v1/analyze", http.MethodPost, http.StatusOK, 2*time.Second)
	p.ObserveRateLimited("user")

	rec := httptest.NewRecorder()
	p.HTTPHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `test_http_requests_total{method="POST",route="/v1/analyze",status="200"} 1`)
	assert.Contains(t, string(body), `test_rate_limited_total{scope="user"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestNoopMetrics(t *testing.T) {
	m := NewNoopMetrics()
	rec := httptest.NewRecorder()
	m.HTTPHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.NoError(t, m.Report(context.Background(), models.UsageEvent{}))
}
