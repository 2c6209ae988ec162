// Package analyzer is the orchestration service behind the analysis and
// trail finder endpoints.
package analyzer

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"trailblazer_ai/internal/billing"
	"trailblazer_ai/internal/judge"
	"trailblazer_ai/internal/logging"
	"trailblazer_ai/internal/metrics"
	"trailblazer_ai/internal/models"
	"trailblazer_ai/internal/normalize"
	"trailblazer_ai/internal/prompts"
	"trailblazer_ai/internal/providers"
	"trailblazer_ai/internal/registry"
	"trailblazer_ai/internal/utils"
)

const persistTimeout = 5 * time.Second

// Resolver materializes provider clients. registry.Registry implements it.
type Resolver interface {
	ResolveEnabledProvider(ctx context.Context, tenant string) (*registry.Resolution, bool, error)
	ResolveSpecificProvider(ctx context.Context, tenant string, identity models.ProviderIdentity) (*registry.Resolution, bool, error)
}

// Verifier runs the judge loop. judge.Evaluator implements it.
type Verifier interface {
	Evaluate(ctx context.Context, req judge.EvaluationRequest) judge.Outcome
}

// AnalysisStore persists final analyses. storage.AnalysisRepository implements it.
type AnalysisStore interface {
	Create(ctx context.Context, rec *models.AnalysisRecord) error
}

// BudgetChecker refuses calls once spend reaches a limit. billing.BudgetGuard implements it.
type BudgetChecker interface {
	Check(ctx context.Context, now time.Time) (exceeded bool, retryAfter time.Duration)
}

// Options wires the service. Resolver and Recorder are required.
type Options struct {
	Resolver Resolver
	Verifier Verifier
	Recorder judge.UsageRecorder
	Store    AnalysisStore
	Audit    logging.Sink
	Metrics  metrics.Metrics
	Budget   BudgetChecker

	// Tenant owns the credentials used for resolution.
	Tenant string
	// Proxied is true when anthropic calls go through the billing proxy.
	Proxied   bool
	MaxTokens int
}

// Metrics summarizes the primary provider call of a request.
type Metrics struct {
	models.UsageEvent
	JudgeCalls       int `json:"judgeCalls"`
	ImprovementCalls int `json:"improvementCalls"`
}

// Result is the outcome of one analysis.
type Result struct {
	AnalysisID   uuid.UUID                `json:"analysisId"`
	Analysis     models.CanonicalAnalysis `json:"analysis"`
	Metrics      Metrics                  `json:"metrics"`
	JudgeVerdict *models.JudgeVerdict     `json:"judgeVerdict,omitempty"`
	// Revised is true when the judge loop replaced the first answer.
	Revised bool `json:"revised,omitempty"`
}

// Service runs analyses and trail searches.
type Service struct {
	resolver  Resolver
	verifier  Verifier
	recorder  judge.UsageRecorder
	store     AnalysisStore
	audit     logging.Sink
	metrics   metrics.Metrics
	budget    BudgetChecker
	tenant    string
	proxied   bool
	maxTokens int
	now       func() time.Time
	logger    *utils.Logger
}

// NewService creates a service, substituting no-op collaborators for nil options.
func NewService(opts Options) *Service {
	s := &Service{
		resolver:  opts.Resolver,
		verifier:  opts.Verifier,
		recorder:  opts.Recorder,
		store:     opts.Store,
		audit:     opts.Audit,
		metrics:   opts.Metrics,
		budget:    opts.Budget,
		tenant:    opts.Tenant,
		proxied:   opts.Proxied,
		maxTokens: opts.MaxTokens,
		now:       time.Now,
		logger:    utils.NewLogger("analyzer"),
	}
	if s.audit == nil {
		s.audit = logging.NewNoopSink()
	}
	if s.metrics == nil {
		s.metrics = metrics.NewNoopMetrics()
	}
	if s.tenant == "" {
		s.tenant = "default"
	}
	return s
}

// Analyze runs one analysis.
//
// Flow:
//  1. Validate images against the upload limits
//  2. Budget check
//  3. Resolve a provider (the one the model implies, else the enabled one)
//  4. Validate images against that provider's limits
//  5. Build the prompt and call the provider
//  6. Record usage (fire-and-forget reporters)
//  7. Normalize the response
//  8. Judge loop when requested
//  9. Persist + audit (best-effort)
func (s *Service) Analyze(ctx context.Context, req models.AnalysisRequest) (*Result, error) {
	start := s.now()
	requestID := uuid.New()

	// 1. Upload limits
	if err := providers.ValidateImages(req.Images, providers.UploadLimits()); err != nil {
		return nil, classify(err)
	}

	// 2. Budget
	if err := s.checkBudget(ctx); err != nil {
		return nil, err
	}

	// 3. Resolve
	res, err := s.resolve(ctx, req.Model)
	if err != nil {
		return nil, err
	}
	defer res.Provider.Close()

	// 4. Provider limits, before any network call
	if err := providers.ValidateImages(req.Images, s.limitsFor(res.Identity)); err != nil {
		return nil, classify(err)
	}

	// 5. Call
	prompt := prompts.AnalysisPrompt(req.Vehicle, req.Context)
	useCase := req.UseCase
	if useCase == "" {
		useCase = models.UseCaseTrailAnalysis
	}
	opts := providers.CallOptions{
		Model:     modelFor(req.Model, res),
		MaxTokens: s.maxTokens,
		UseCase:   useCase,
		UserID:    req.UserID,
		Properties: map[string]string{
			"image_count": strconv.Itoa(len(req.Images)),
		},
	}
	callStart := s.now()
	result, callErr := res.Provider.AnalyzeImages(ctx, req.Images, prompt, opts)

	// 6. Usage
	event := s.record(res, opts, result, callErr, time.Since(callStart))
	if callErr != nil {
		s.logger.Warn("Analysis call failed",
			"request_id", requestID, "provider", res.Identity, "model", opts.Model, "error", callErr)
		s.archive(&logging.AuditRecord{
			Timestamp:   s.now(),
			RequestID:   requestID.String(),
			UserID:      req.UserID,
			UseCase:     useCase,
			Provider:    string(res.Identity),
			Model:       opts.Model,
			Source:      res.Source,
			ImageCount:  len(req.Images),
			ImageSHA256: imageHashes(req.Images),
			LatencyMs:   time.Since(start).Milliseconds(),
			Error:       callErr.Error(),
		})
		return nil, classify(callErr)
	}

	// 7. Normalize
	analysis := normalize.Analysis(result.Text)
	if analysis.ParseFailed() {
		s.logger.Warn("Analysis response could not be parsed",
			"request_id", requestID, "provider", res.Identity, "model", event.Model)
	}

	out := &Result{
		AnalysisID: uuid.New(),
		Analysis:   analysis,
		Metrics:    Metrics{UsageEvent: event},
	}

	// 8. Judge
	if req.Verify {
		outcome := s.verify(ctx, res, req.UserID, prompt, result.Text, models.UseCaseImprovement)
		out.Metrics.JudgeCalls = outcome.JudgeCalls
		out.Metrics.ImprovementCalls = outcome.ImprovementCalls
		if outcome.Revised && outcome.Verdict.Passed {
			if revised := normalize.Analysis(outcome.Response); !revised.ParseFailed() {
				out.Analysis = revised
				out.Revised = true
			}
		}
		verdict := outcome.Verdict
		out.JudgeVerdict = &verdict
		s.metrics.ObserveVerdict(verdict)
	}

	// 9. Persist + audit
	s.persist(ctx, out, req, res)
	s.archive(s.auditRecord(requestID, out, req, res, useCase, time.Since(start)))

	s.logger.Info("Analysis completed",
		"request_id", requestID,
		"analysis_id", out.AnalysisID,
		"provider", res.Identity,
		"model", event.Model,
		"difficulty", out.Analysis.Difficulty,
		"cost_usd", event.Cost.StringFixed(6),
		"latency_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}

func (s *Service) checkBudget(ctx context.Context) error {
	if s.budget == nil {
		return nil
	}
	if exceeded, retryAfter := s.budget.Check(ctx, s.now()); exceeded {
		s.metrics.ObserveRateLimited("budget")
		return rateLimitedError("spend budget exceeded", retryAfter, nil)
	}
	return nil
}

func (s *Service) resolve(ctx context.Context, model string) (*registry.Resolution, error) {
	if s.resolver == nil {
		return nil, unavailableError("no provider registry configured", nil)
	}
	var (
		res *registry.Resolution
		ok  bool
		err error
	)
	if identity, known := ProviderForModel(model); known {
		res, ok, err = s.resolver.ResolveSpecificProvider(ctx, s.tenant, identity)
		if err == nil && !ok {
			s.logger.Warn("No credential for the requested model's provider, using the enabled provider",
				"model", model, "provider", identity)
		}
	}
	if err == nil && !ok {
		res, ok, err = s.resolver.ResolveEnabledProvider(ctx, s.tenant)
	}
	if err != nil {
		return nil, classify(err)
	}
	if !ok {
		return nil, unavailableError("no AI provider is configured", nil)
	}
	return res, nil
}

func (s *Service) limitsFor(identity models.ProviderIdentity) providers.ImageLimits {
	return providers.LimitsFor(identity, s.proxied && identity == models.ProviderAnthropic)
}

// verify runs the judge loop; improvement calls are booked under improveUseCase.
func (s *Service) verify(ctx context.Context, res *registry.Resolution, userID, prompt, response, improveUseCase string) judge.Outcome {
	if s.verifier == nil {
		return judge.Outcome{Verdict: judge.SkippedVerdict(), Response: response}
	}
	return s.verifier.Evaluate(ctx, judge.EvaluationRequest{
		Tenant:         s.tenant,
		UserID:         userID,
		OriginalPrompt: prompt,
		Response:       response,
		Improver:       s.improver(res, userID, improveUseCase),
	})
}

// improver re-prompts the original provider with the judge's feedback.
func (s *Service) improver(res *registry.Resolution, userID, useCase string) judge.Improver {
	return func(ctx context.Context, prompt string) (string, error) {
		opts := providers.CallOptions{
			Model:     res.Model,
			MaxTokens: s.maxTokens,
			UseCase:   useCase,
			UserID:    userID,
		}
		start := s.now()
		result, err := res.Provider.Chat(ctx, []providers.Message{{Role: "user", Content: prompt}}, opts)
		s.record(res, opts, result, err, time.Since(start))
		if err != nil {
			return "", err
		}
		return result.Text, nil
	}
}

// record books a provider call whenever the provider reported usage.
func (s *Service) record(res *registry.Resolution, opts providers.CallOptions, result *providers.Result, callErr error, elapsed time.Duration) models.UsageEvent {
	model := opts.Model
	in := billing.UsageInput{
		Provider: res.Identity,
		Latency:  elapsed,
		UseCase:  opts.UseCase,
		UserID:   opts.UserID,
		Success:  callErr == nil,
	}
	if result != nil {
		if result.Model != "" {
			model = result.Model
		}
		if result.Latency > 0 {
			in.Latency = result.Latency
		}
		in.InputTokens = result.Usage.InputTokens
		in.OutputTokens = result.Usage.OutputTokens
		in.UseCaseID = result.UseCaseID
	}
	in.Model = model

	if s.recorder == nil || result == nil {
		return models.UsageEvent{
			Provider:  in.Provider,
			Model:     in.Model,
			LatencyMs: in.Latency.Milliseconds(),
			UseCase:   in.UseCase,
			UserID:    in.UserID,
			Success:   in.Success,
			Cost:      decimal.Zero,
			Timestamp: s.now().UTC(),
		}
	}
	return s.recorder.Record(in)
}

func (s *Service) persist(ctx context.Context, out *Result, req models.AnalysisRequest, res *registry.Resolution) {
	if s.store == nil {
		return
	}
	rec := &models.AnalysisRecord{
		ID:           out.AnalysisID,
		UserID:       req.UserID,
		Provider:     string(res.Identity),
		Model:        out.Metrics.Model,
		Difficulty:   out.Analysis.Difficulty,
		Analysis:     models.NewJSONColumn(out.Analysis),
		RawResponse:  out.Analysis.RawResponse,
		InputTokens:  out.Metrics.InputTokens,
		OutputTokens: out.Metrics.OutputTokens,
		CostUSD:      out.Metrics.Cost,
		LatencyMs:    out.Metrics.LatencyMs,
		UseCaseID:    out.Metrics.UseCaseID,
		CreatedAt:    s.now().UTC(),
	}
	if out.JudgeVerdict != nil {
		rec.Verdict = models.NewJSONColumn(*out.JudgeVerdict)
		rec.JudgePassed = utils.BoolPtr(out.JudgeVerdict.Passed)
	}

	// the caller may already be gone; the record is still worth keeping
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if err := s.store.Create(pctx, rec); err != nil {
		s.logger.Error("Failed to persist analysis", "analysis_id", out.AnalysisID, "error", err)
	}
}

func (s *Service) auditRecord(requestID uuid.UUID, out *Result, req models.AnalysisRequest, res *registry.Resolution, useCase string, elapsed time.Duration) *logging.AuditRecord {
	rec := &logging.AuditRecord{
		Timestamp:    s.now().UTC(),
		RequestID:    requestID.String(),
		AnalysisID:   out.AnalysisID.String(),
		UserID:       req.UserID,
		UseCase:      useCase,
		Provider:     string(res.Identity),
		Model:        out.Metrics.Model,
		Source:       res.Source,
		ImageCount:   len(req.Images),
		ImageSHA256:  imageHashes(req.Images),
		Difficulty:   out.Analysis.Difficulty,
		ParseFailed:  out.Analysis.ParseFailed(),
		LatencyMs:    elapsed.Milliseconds(),
		InputTokens:  out.Metrics.InputTokens,
		OutputTokens: out.Metrics.OutputTokens,
		CostUSD:      out.Metrics.Cost,
		RawResponse:  out.Analysis.RawResponse,
	}
	if v := out.JudgeVerdict; v != nil {
		rec.Verdict = summarize(*v, out.Revised)
	}
	return rec
}

// imageHashes identifies the uploads in the archive without storing them.
func imageHashes(images []models.ImageInput) []string {
	out := make([]string, len(images))
	for i, img := range images {
		out[i] = utils.HashBytes(img.Data)
	}
	return out
}

func summarize(v models.JudgeVerdict, revised bool) *logging.VerdictSummary {
	return &logging.VerdictSummary{
		Passed:              v.Passed,
		OverallScore:        v.OverallScore,
		Severity:            string(v.HallucinationSeverity),
		Iterations:          v.Iterations,
		VerificationSkipped: v.VerificationSkipped,
		Revised:             revised,
	}
}

func (s *Service) archive(rec *logging.AuditRecord) {
	if err := s.audit.Enqueue(rec); err != nil {
		s.logger.Warn("Audit record dropped", "request_id", rec.RequestID, "error", err)
	}
}

// ProviderForModel infers the vendor from a model id. Unknown ids report false.
func ProviderForModel(model string) (models.ProviderIdentity, bool) {
	m := strings.ToLower(strings.TrimSpace(model))
	switch {
	case m == "":
		return "", false
	case strings.Contains(m, "anthropic."):
		return models.ProviderBedrock, true
	case strings.HasPrefix(m, "claude"):
		return models.ProviderAnthropic, true
	case strings.HasPrefix(m, "gpt"), strings.HasPrefix(m, "o1"), strings.HasPrefix(m, "o3"), strings.HasPrefix(m, "o4"), strings.HasPrefix(m, "chatgpt"):
		return models.ProviderOpenAI, true
	case strings.HasPrefix(m, "gemini"):
		return models.ProviderGoogle, true
	case strings.HasPrefix(m, "grok"):
		return models.ProviderXAI, true
	}
	return "", false
}

// modelFor prefers the requested model when it belongs to the resolved provider.
func modelFor(requested string, res *registry.Resolution) string {
	if requested != "" {
		if identity, ok := ProviderForModel(requested); !ok || identity == res.Identity {
			return requested
		}
	}
	return res.Model
}
