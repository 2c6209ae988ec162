package analyzer

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"trailblazer_ai/internal/logging"
	"trailblazer_ai/internal/models"
	"trailblazer_ai/internal/prompts"
	"trailblazer_ai/internal/providers"
	"trailblazer_ai/internal/registry"
)

const maxTrailQueryLength = 2000

// TrailSearchResult is the outcome of one trail search.
type TrailSearchResult struct {
	SearchID     uuid.UUID            `json:"searchId"`
	Text         string               `json:"text"`
	WebSearch    bool                 `json:"webSearch"`
	Metrics      Metrics              `json:"metrics"`
	JudgeVerdict *models.JudgeVerdict `json:"judgeVerdict,omitempty"`
	Revised      bool                 `json:"revised,omitempty"`
}

// FindTrails answers a trail discovery query, grounded with web search when the
// resolved client supports it.
func (s *Service) FindTrails(ctx context.Context, q models.TrailSearch) (*TrailSearchResult, error) {
	start := s.now()
	requestID := uuid.New()

	q.Query = strings.TrimSpace(q.Query)
	if q.Query == "" {
		return nil, validationError("query is required", -1, nil)
	}
	if len(q.Query) > maxTrailQueryLength {
		return nil, validationError("query is too long", -1, nil)
	}
	if q.RadiusMiles < 0 {
		return nil, validationError("radius must not be negative", -1, nil)
	}

	if err := s.checkBudget(ctx); err != nil {
		return nil, err
	}

	res, err := s.resolve(ctx, q.Model)
	if err != nil {
		return nil, err
	}
	defer res.Provider.Close()

	prompt := prompts.TrailFinderPrompt(q)
	maxTokens := q.MaxTokens
	if maxTokens <= 0 {
		maxTokens = s.maxTokens
	}
	opts := providers.CallOptions{
		Model:     modelFor(q.Model, res),
		MaxTokens: maxTokens,
		UseCase:   models.UseCaseTrailFinder,
		UserID:    q.UserID,
	}

	callStart := s.now()
	result, webSearch, callErr := s.search(ctx, res, prompt, opts)
	event := s.record(res, opts, result, callErr, time.Since(callStart))
	if callErr != nil {
		s.logger.Warn("Trail search failed",
			"request_id", requestID, "provider", res.Identity, "model", opts.Model, "error", callErr)
		return nil, classify(callErr)
	}

	out := &TrailSearchResult{
		SearchID:  uuid.New(),
		Text:      result.Text,
		WebSearch: webSearch,
		Metrics:   Metrics{UsageEvent: event},
	}

	if q.Verify {
		outcome := s.verify(ctx, res, q.UserID, prompt, result.Text, models.UseCaseTrailFinder)
		out.Metrics.JudgeCalls = outcome.JudgeCalls
		out.Metrics.ImprovementCalls = outcome.ImprovementCalls
		if outcome.Revised && outcome.Verdict.Passed {
			out.Text = outcome.Response
			out.Revised = true
		}
		verdict := outcome.Verdict
		out.JudgeVerdict = &verdict
		s.metrics.ObserveVerdict(verdict)
	}

	rec := &logging.AuditRecord{
		Timestamp:    s.now().UTC(),
		RequestID:    requestID.String(),
		AnalysisID:   out.SearchID.String(),
		UserID:       q.UserID,
		UseCase:      models.UseCaseTrailFinder,
		Provider:     string(res.Identity),
		Model:        event.Model,
		Source:       res.Source,
		LatencyMs:    time.Since(start).Milliseconds(),
		InputTokens:  event.InputTokens,
		OutputTokens: event.OutputTokens,
		CostUSD:      event.Cost,
		RawResponse:  result.Text,
	}
	if out.JudgeVerdict != nil {
		rec.Verdict = summarize(*out.JudgeVerdict, out.Revised)
	}
	s.archive(rec)

	s.logger.Info("Trail search completed",
		"request_id", requestID, "provider", res.Identity, "model", event.Model,
		"web_search", webSearch, "cost_usd", event.Cost.StringFixed(6))
	return out, nil
}

func (s *Service) search(ctx context.Context, res *registry.Resolution, prompt string, opts providers.CallOptions) (*providers.Result, bool, error) {
	if searcher, ok := res.Provider.(providers.WebSearcher); ok {
		result, err := searcher.SearchWeb(ctx, prompt, opts)
		return result, true, err
	}
	result, err := res.Provider.Chat(ctx, []providers.Message{{Role: "user", Content: prompt}}, opts)
	return result, false, err
}
