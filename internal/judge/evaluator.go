// Package judge verifies a model's answer with a second, independent model.
//
// One evaluation is a bounded, sequential loop:
//
//	evaluate -> thresholds -> passed?                      -> done
//	                       -> revision supplied?           -> adopt, evaluate again
//	                       -> retries left and an improver -> re-prompt, evaluate again
//	                       -> otherwise                    -> done, failed
package judge

import (
	"context"
	"time"

	"trailblazer_ai/internal/billing"
	"trailblazer_ai/internal/models"
	"trailblazer_ai/internal/normalize"
	"trailblazer_ai/internal/prompts"
	"trailblazer_ai/internal/providers"
	"trailblazer_ai/internal/registry"
	"trailblazer_ai/internal/utils"
)

// Notes attached to verdicts the judge did not actually produce.
const (
	NoteSkipped        = "verification skipped: no judge model configured"
	NoteJudgeFailed    = "verification failed: judge call did not complete"
	NoteUnparseable    = "verification failed: judge response could not be parsed"
	NoteResolveFailure = "verification failed: judge model could not be resolved"
)

// SkippedScore is the optimistic overall score of an unverified response.
const SkippedScore = 7

// Resolver finds the judge model. registry.Registry implements it.
type Resolver interface {
	ResolveJudgeProvider(ctx context.Context, tenant string) (*registry.Resolution, bool, error)
}

// UsageRecorder records provider calls. billing.Recorder implements it.
type UsageRecorder interface {
	Record(in billing.UsageInput) models.UsageEvent
}

// Improver re-prompts the original model and returns its new answer.
type Improver func(ctx context.Context, prompt string) (string, error)

// EvaluationRequest is one top-level evaluation.
type EvaluationRequest struct {
	Tenant         string
	UserID         string
	OriginalPrompt string
	Response       string
	// Improver may be nil; the loop then only follows judge revisions.
	Improver Improver
}

// Outcome is the result of an evaluation.
type Outcome struct {
	Verdict models.JudgeVerdict
	// Response is the last candidate that was evaluated.
	Response string
	// Revised is true when Response differs from the request's response.
	Revised          bool
	JudgeCalls       int
	ImprovementCalls int
}

// Evaluator runs the judge loop.
type Evaluator struct {
	resolver Resolver
	recorder UsageRecorder
	cfg      Config
	logger   *utils.Logger
}

// NewEvaluator creates an evaluator. recorder may be nil.
func NewEvaluator(resolver Resolver, recorder UsageRecorder, cfg Config) *Evaluator {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &Evaluator{
		resolver: resolver,
		recorder: recorder,
		cfg:      cfg,
		logger:   utils.NewLogger("judge"),
	}
}

// Config returns the evaluator's configuration.
func (e *Evaluator) Config() Config { return e.cfg }

// Evaluate never fails: a missing judge yields a skipped verdict, and judge
// failures yield a conservative failed verdict that asks for a re-run.
func (e *Evaluator) Evaluate(ctx context.Context, req EvaluationRequest) Outcome {
	out := Outcome{Response: req.Response}

	if e.resolver == nil {
		out.Verdict = SkippedVerdict()
		return out
	}
	res, ok, err := e.resolver.ResolveJudgeProvider(ctx, req.Tenant)
	if err != nil {
		e.logger.Warn("Judge resolution failed", "tenant", req.Tenant, "error", err)
		out.Verdict = conservativeVerdict(NoteResolveFailure)
		return out
	}
	if !ok {
		out.Verdict = SkippedVerdict()
		return out
	}
	defer res.Provider.Close()

	candidate := req.Response
	for attempt := 0; attempt <= e.cfg.MaxRetries; attempt++ {
		verdict, note := e.judgeOnce(ctx, res, req, candidate)
		out.JudgeCalls++
		if note != "" {
			verdict = conservativeVerdict(note)
			verdict.JudgeProvider, verdict.JudgeModel = res.Identity, res.Model
			out.Verdict = verdict
			break
		}

		verdict = ApplyThresholds(verdict, e.cfg.Thresholds)
		out.Verdict = verdict
		e.logger.Debug("Judge verdict", "attempt", attempt, "passed", verdict.Passed,
			"overall", verdict.OverallScore, "severity", verdict.HallucinationSeverity)

		if verdict.Passed || !e.cfg.AutoImprove || attempt == e.cfg.MaxRetries {
			break
		}

		if verdict.RevisedResponse != "" {
			candidate = verdict.RevisedResponse
			continue
		}
		if req.Improver == nil {
			break
		}

		improved, err := req.Improver(ctx, prompts.ImprovementPrompt(req.OriginalPrompt, candidate, verdict))
		out.ImprovementCalls++
		if err != nil {
			e.logger.Warn("Improvement call failed, keeping last verdict", "error", err)
			break
		}
		candidate = improved
	}

	out.Verdict.Iterations = out.JudgeCalls
	out.Response = candidate
	out.Revised = candidate != req.Response
	return out
}

// judgeOnce makes exactly one judge call. A non-empty note means the call or
// its parsing failed.
func (e *Evaluator) judgeOnce(ctx context.Context, res *registry.Resolution, req EvaluationRequest, candidate string) (models.JudgeVerdict, string) {
	messages := []providers.Message{{Role: "user", Content: prompts.JudgePrompt(req.OriginalPrompt, candidate)}}
	opts := providers.CallOptions{
		Model:     res.Model,
		MaxTokens: e.cfg.MaxTokens,
		UseCase:   models.UseCaseJudgeValidation,
		UserID:    req.UserID,
	}

	start := time.Now()
	result, err := res.Provider.Chat(ctx, messages, opts)
	e.record(res, req.UserID, result, err, time.Since(start))
	if err != nil {
		e.logger.Warn("Judge call failed", "provider", res.Identity, "model", res.Model, "error", err)
		return models.JudgeVerdict{}, NoteJudgeFailed
	}

	verdict, err := normalize.Verdict(result.Text)
	if err != nil {
		e.logger.Warn("Judge response unparseable", "provider", res.Identity, "model", res.Model)
		return models.JudgeVerdict{}, NoteUnparseable
	}
	verdict.JudgeProvider = res.Identity
	verdict.JudgeModel = res.Model
	if result.Model != "" {
		verdict.JudgeModel = result.Model
	}
	return verdict, ""
}

// record books judge usage whenever the provider reported any.
func (e *Evaluator) record(res *registry.Resolution, userID string, result *providers.Result, callErr error, elapsed time.Duration) {
	if e.recorder == nil || result == nil {
		return
	}
	model := result.Model
	if model == "" {
		model = res.Model
	}
	latency := result.Latency
	if latency == 0 {
		latency = elapsed
	}
	e.recorder.Record(billing.UsageInput{
		Provider:     res.Identity,
		Model:        model,
		InputTokens:  result.Usage.InputTokens,
		OutputTokens: result.Usage.OutputTokens,
		Latency:      latency,
		UseCase:      models.UseCaseJudgeValidation,
		UseCaseID:    result.UseCaseID,
		UserID:       userID,
		Success:      callErr == nil,
	})
}

// SkippedVerdict is the optimistic verdict returned when no judge is configured.
func SkippedVerdict() models.JudgeVerdict {
	return models.JudgeVerdict{
		Passed:                true,
		OverallScore:          SkippedScore,
		HallucinationSeverity: models.SeverityNone,
		Issues:                []string{},
		UnverifiedClaims:      []string{},
		FabricationExamples:   []string{},
		UnverifiableSources:   []string{},
		VerificationSkipped:   true,
		Note:                  NoteSkipped,
	}
}

func conservativeVerdict(note string) models.JudgeVerdict {
	return models.JudgeVerdict{
		Passed:              false,
		NeedsRerun:          true,
		Issues:              []string{},
		UnverifiedClaims:    []string{},
		FabricationExamples: []string{},
		UnverifiableSources: []string{},
		FailureReasons:      []string{note},
		Note:                note,
	}
}
