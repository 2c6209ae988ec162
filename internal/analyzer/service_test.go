package analyzer

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trailblazer_ai/internal/billing"
	"trailblazer_ai/internal/judge"
	"trailblazer_ai/internal/logging"
	"trailblazer_ai/internal/models"
	"trailblazer_ai/internal/providers"
	"trailblazer_ai/internal/registry"
)

var jpeg = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F'}

const canonicalAnalysis = `{"difficulty": 3, "trailType": ["forest road"], "conditions": ["dry"], "hazards": ["loose rock"],
"recommendations": ["air down"], "bestFor": ["stock 4x4"], "summary": "Moderate shelf road."}`

// stubProvider answers AnalyzeImages with a fixed text and Chat from a script
type stubProvider struct {
	mu          sync.Mutex
	identity    models.ProviderIdentity
	text        string
	err         error
	chatReplies []string
	analyzeOpts []providers.CallOptions
	chatOpts    []providers.CallOptions
	closed      bool
}

func (p *stubProvider) Identity() models.ProviderIdentity { return p.identity }
func (p *stubProvider) DefaultModel() string              { return providers.DefaultModels[p.identity] }
func (p *stubProvider) ChatStream(ctx context.Context, messages []providers.Message, opts providers.CallOptions) (<-chan providers.StreamChunk, error) {
	return nil, providers.ErrStreamingUnsupported
}
func (p *stubProvider) Close() error { p.closed = true; return nil }

func (p *stubProvider) AnalyzeImages(ctx context.Context, images []models.ImageInput, prompt string, opts providers.CallOptions) (*providers.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.analyzeOpts = append(p.analyzeOpts, opts)
	if p.err != nil {
		return nil, p.err
	}
	return &providers.Result{
		Text:    p.text,
		Usage:   providers.Usage{InputTokens: 1000, OutputTokens: 500},
		Model:   opts.Model,
		Latency: 120 * time.Millisecond,
	}, nil
}

func (p *stubProvider) Chat(ctx context.Context, messages []providers.Message, opts providers.CallOptions) (*providers.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.chatOpts = append(p.chatOpts, opts)
	if len(p.chatReplies) == 0 {
		return nil, errors.New("no scripted reply")
	}
	i := len(p.chatOpts) - 1
	if i >= len(p.chatReplies) {
		i = len(p.chatReplies) - 1
	}
	return &providers.Result{
		Text:  p.chatReplies[i],
		Usage: providers.Usage{InputTokens: 300, OutputTokens: 100},
		Model: opts.Model,
	}, nil
}

func (p *stubProvider) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.analyzeOpts)
}

// stubResolver hands out fixed providers for each resolution kind
type stubResolver struct {
	primary  *stubProvider
	specific map[models.ProviderIdentity]*stubProvider
	judge    providers.Provider
	err      error
}

func (r *stubResolver) resolution(p *stubProvider) *registry.Resolution {
	return &registry.Resolution{Provider: p, Identity: p.identity, Model: p.DefaultModel(), Source: "environment"}
}

func (r *stubResolver) ResolveEnabledProvider(ctx context.Context, tenant string) (*registry.Resolution, bool, error) {
	if r.err != nil {
		return nil, false, r.err
	}
	if r.primary == nil {
		return nil, false, nil
	}
	return r.resolution(r.primary), true, nil
}

func (r *stubResolver) ResolveSpecificProvider(ctx context.Context, tenant string, identity models.ProviderIdentity) (*registry.Resolution, bool, error) {
	if r.err != nil {
		return nil, false, r.err
	}
	if p, ok := r.specific[identity]; ok {
		return r.resolution(p), true, nil
	}
	if r.primary != nil && r.primary.identity == identity {
		return r.resolution(r.primary), true, nil
	}
	return nil, false, nil
}

func (r *stubResolver) ResolveJudgeProvider(ctx context.Context, tenant string) (*registry.Resolution, bool, error) {
	if r.judge == nil {
		return nil, false, nil
	}
	return &registry.Resolution{Provider: r.judge, Identity: r.judge.Identity(), Model: "gpt-4o", Source: "environment", IsJudge: true}, true, nil
}

type memoryStore struct {
	mu      sync.Mutex
	records []*models.AnalysisRecord
	err     error
}

func (m *memoryStore) Create(ctx context.Context, rec *models.AnalysisRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.records = append(m.records, rec)
	return nil
}

type memorySink struct {
	mu      sync.Mutex
	records []*logging.AuditRecord
}

func (s *memorySink) Enqueue(rec *logging.AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

func (s *memorySink) Shutdown(ctx context.Context) error { return nil }

type fixedBudget struct {
	exceeded   bool
	retryAfter time.Duration
}

func (b fixedBudget) Check(ctx context.Context, now time.Time) (bool, time.Duration) {
	return b.exceeded, b.retryAfter
}

type harness struct {
	svc      *Service
	resolver *stubResolver
	recorder *billing.Recorder
	store    *memoryStore
	sink     *memorySink
}

func newHarness(t *testing.T, resolver *stubResolver, judgeCfg judge.Config) *harness {
	t.Helper()
	recorder := billing.NewRecorder(billing.NewTracker(nil, billing.BudgetLimits{}), time.Second)
	h := &harness{
		resolver: resolver,
		recorder: recorder,
		store:    &memoryStore{},
		sink:     &memorySink{},
	}
	h.svc = NewService(Options{
		Resolver:  resolver,
		Verifier:  judge.NewEvaluator(resolver, recorder, judgeCfg),
		Recorder:  recorder,
		Store:     h.store,
		Audit:     h.sink,
		Tenant:    "tenant-1",
		MaxTokens: 2048,
	})
	t.Cleanup(recorder.Wait)
	return h
}

func requireAnalyzerError(t *testing.T, err error, kind ErrorKind) *Error {
	t.Helper()
	var ae *Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, kind, ae.Kind)
	return ae
}

func TestAnalyze_TwoImagesWorkingProvider(t *testing.T) {
	primary := &stubProvider{identity: models.ProviderAnthropic, text: canonicalAnalysis}
	h := newHarness(t, &stubResolver{primary: primary}, judge.DefaultConfig())

	out, err := h.svc.Analyze(context.Background(), models.AnalysisRequest{
		Images: []models.ImageInput{{Data: jpeg}, {Data: jpeg, MimeType: "image/jpeg"}},
		Model:  "claude-sonnet-4-20250514",
		UserID: "user-1",
	})
	require.NoError(t, err)

	assert.GreaterOrEqual(t, out.Analysis.Difficulty, 1)
	assert.LessOrEqual(t, out.Analysis.Difficulty, 5)
	assert.NotEmpty(t, out.Analysis.RawResponse)
	assert.False(t, out.Metrics.Cost.IsNegative())
	assert.True(t, out.Metrics.Cost.Equal(decimal.RequireFromString("0.0105")), out.Metrics.Cost.String())
	assert.Nil(t, out.JudgeVerdict)
	assert.True(t, primary.closed)

	require.Len(t, primary.analyzeOpts, 1)
	assert.Equal(t, "claude-sonnet-4-20250514", primary.analyzeOpts[0].Model)
	assert.Equal(t, models.UseCaseTrailAnalysis, primary.analyzeOpts[0].UseCase)

	require.Len(t, h.store.records, 1)
	rec := h.store.records[0]
	assert.Equal(t, out.AnalysisID, rec.ID)
	assert.Equal(t, 3, rec.Difficulty)
	assert.Nil(t, rec.JudgePassed)
	assert.False(t, rec.Verdict.Valid)

	require.Len(t, h.sink.records, 1)
	assert.Equal(t, 2, h.sink.records[0].ImageCount)
	assert.Equal(t, out.AnalysisID.String(), h.sink.records[0].AnalysisID)
	require.Len(t, h.sink.records[0].ImageSHA256, 2)
	assert.Equal(t, h.sink.records[0].ImageSHA256[0], h.sink.records[0].ImageSHA256[1], "same bytes, same digest")

	events := h.recorder.Tracker().Events(billing.WindowAll)
	require.Len(t, events, 1)
	assert.Equal(t, models.UseCaseTrailAnalysis, events[0].UseCase)
	assert.Equal(t, "user-1", events[0].UserID)
}

func TestAnalyze_UnsupportedMimeTypeNeverCallsProvider(t *testing.T) {
	primary := &stubProvider{identity: models.ProviderAnthropic, text: canonicalAnalysis}
	h := newHarness(t, &stubResolver{primary: primary}, judge.DefaultConfig())

	_, err := h.svc.Analyze(context.Background(), models.AnalysisRequest{
		Images: []models.ImageInput{{Data: jpeg}, {Data: []byte("BM....."), MimeType: "image/bmp"}},
	})
	ae := requireAnalyzerError(t, err, KindValidation)
	assert.Equal(t, 1, ae.ImageIndex)
	assert.Equal(t, http.StatusBadRequest, ae.HTTPStatus())
	assert.Zero(t, primary.calls())
	assert.Empty(t, h.recorder.Tracker().Events(billing.WindowAll))
}

func TestAnalyze_ProviderSpecificLimits(t *testing.T) {
	// webp passes the upload boundary but xAI only takes jpeg and png
	webp := append([]byte("RIFF\x00\x00\x00\x00WEBP"), make([]byte, 16)...)
	primary := &stubProvider{identity: models.ProviderXAI, text: canonicalAnalysis}
	h := newHarness(t, &stubResolver{primary: primary}, judge.DefaultConfig())

	_, err := h.svc.Analyze(context.Background(), models.AnalysisRequest{
		Images: []models.ImageInput{{Data: jpeg}, {Data: jpeg}, {Data: webp}},
	})
	ae := requireAnalyzerError(t, err, KindValidation)
	assert.Equal(t, 2, ae.ImageIndex)
	assert.Zero(t, primary.calls())
}

func TestAnalyze_TooManyImages(t *testing.T) {
	primary := &stubProvider{identity: models.ProviderAnthropic, text: canonicalAnalysis}
	h := newHarness(t, &stubResolver{primary: primary}, judge.DefaultConfig())

	images := make([]models.ImageInput, providers.MaxImagesPerRequest+1)
	for i := range images {
		images[i] = models.ImageInput{Data: jpeg}
	}
	_, err := h.svc.Analyze(context.Background(), models.AnalysisRequest{Images: images})
	ae := requireAnalyzerError(t, err, KindValidation)
	assert.Equal(t, providers.MaxImagesPerRequest, ae.ImageIndex)
	assert.Zero(t, primary.calls())
}

func TestAnalyze_MalformedFencedJSON(t *testing.T) {
	text := "Here you go:\n```json\n{\"difficulty\": 3, \"hazards\": [\"mud\"],}\n```"
	primary := &stubProvider{identity: models.ProviderOpenAI, text: text}
	h := newHarness(t, &stubResolver{primary: primary}, judge.DefaultConfig())

	out, err := h.svc.Analyze(context.Background(), models.AnalysisRequest{Images: []models.ImageInput{{Data: jpeg}}})
	require.NoError(t, err)

	assert.Equal(t, 0, out.Analysis.Difficulty)
	assert.True(t, out.Analysis.ParseFailed())
	assert.Equal(t, text, out.Analysis.RawResponse)
	assert.NotNil(t, out.Analysis.Hazards)
	assert.Empty(t, out.Analysis.Hazards)

	require.Len(t, h.sink.records, 1)
	assert.True(t, h.sink.records[0].ParseFailed)
}

func TestAnalyze_ModerateSeverityFailsDespiteHighScore(t *testing.T) {
	judgeModel := &stubProvider{
		identity:    models.ProviderOpenAI,
		chatReplies: []string{`{"passed": true, "overallScore": 9, "accuracyScore": 9, "hallucinationSeverity": "moderate"}`},
	}
	primary := &stubProvider{identity: models.ProviderAnthropic, text: canonicalAnalysis}
	cfg := judge.DefaultConfig()
	cfg.MaxRetries = 0
	h := newHarness(t, &stubResolver{primary: primary, judge: judgeModel}, cfg)

	out, err := h.svc.Analyze(context.Background(), models.AnalysisRequest{
		Images: []models.ImageInput{{Data: jpeg}},
		Verify: true,
	})
	require.NoError(t, err)
	require.NotNil(t, out.JudgeVerdict)
	assert.False(t, out.JudgeVerdict.Passed)
	assert.Equal(t, models.SeverityModerate, out.JudgeVerdict.HallucinationSeverity)
	assert.Equal(t, 1, out.Metrics.JudgeCalls)
	assert.Equal(t, 3, out.Analysis.Difficulty, "the primary analysis is still returned")

	require.Len(t, h.store.records, 1)
	require.NotNil(t, h.store.records[0].JudgePassed)
	assert.False(t, *h.store.records[0].JudgePassed)
}

func TestAnalyze_NoJudgeConfigured(t *testing.T) {
	primary := &stubProvider{identity: models.ProviderAnthropic, text: canonicalAnalysis}
	h := newHarness(t, &stubResolver{primary: primary}, judge.DefaultConfig())

	out, err := h.svc.Analyze(context.Background(), models.AnalysisRequest{
		Images: []models.ImageInput{{Data: jpeg}},
		Verify: true,
	})
	require.NoError(t, err)
	require.NotNil(t, out.JudgeVerdict)
	assert.True(t, out.JudgeVerdict.Passed)
	assert.Equal(t, 7.0, out.JudgeVerdict.OverallScore)
	assert.True(t, out.JudgeVerdict.VerificationSkipped)
	assert.Equal(t, judge.NoteSkipped, out.JudgeVerdict.Note)
	assert.Zero(t, out.Metrics.JudgeCalls)
	assert.Empty(t, primary.chatOpts)
}

func TestAnalyze_ImprovementAdoptedWhenVerified(t *testing.T) {
	improved := `{"difficulty": 4, "summary": "Steeper than it looks."}`
	judgeModel := &stubProvider{
		identity: models.ProviderOpenAI,
		chatReplies: []string{
			`{"passed": false, "overallScore": 4, "accuracyScore": 5, "hallucinationSeverity": "minor", "issues": ["invented closure"]}`,
			`{"passed": true, "overallScore": 9, "accuracyScore": 9, "hallucinationSeverity": "none"}`,
		},
	}
	primary := &stubProvider{identity: models.ProviderAnthropic, text: canonicalAnalysis, chatReplies: []string{improved}}
	h := newHarness(t, &stubResolver{primary: primary, judge: judgeModel}, judge.DefaultConfig())

	out, err := h.svc.Analyze(context.Background(), models.AnalysisRequest{
		Images: []models.ImageInput{{Data: jpeg}},
		Verify: true,
		UserID: "user-2",
	})
	require.NoError(t, err)
	assert.True(t, out.JudgeVerdict.Passed)
	assert.True(t, out.Revised)
	assert.Equal(t, 4, out.Analysis.Difficulty)
	assert.Equal(t, 2, out.Metrics.JudgeCalls)
	assert.Equal(t, 1, out.Metrics.ImprovementCalls)

	require.Len(t, primary.chatOpts, 1)
	assert.Equal(t, models.UseCaseImprovement, primary.chatOpts[0].UseCase)

	byUseCase := map[string]int{}
	for _, ev := range h.recorder.Tracker().Events(billing.WindowAll) {
		byUseCase[ev.UseCase]++
	}
	assert.Equal(t, map[string]int{
		models.UseCaseTrailAnalysis:   1,
		models.UseCaseJudgeValidation: 2,
		models.UseCaseImprovement:     1,
	}, byUseCase)
}

func TestAnalyze_BudgetExceeded(t *testing.T) {
	primary := &stubProvider{identity: models.ProviderAnthropic, text: canonicalAnalysis}
	h := newHarness(t, &stubResolver{primary: primary}, judge.DefaultConfig())
	h.svc.budget = fixedBudget{exceeded: true, retryAfter: 3 * time.Hour}

	_, err := h.svc.Analyze(context.Background(), models.AnalysisRequest{Images: []models.ImageInput{{Data: jpeg}}})
	ae := requireAnalyzerError(t, err, KindRateLimited)
	assert.Equal(t, 3*time.Hour, ae.RetryAfter)
	assert.Equal(t, http.StatusTooManyRequests, ae.HTTPStatus())
	assert.Zero(t, primary.calls())
}

func TestAnalyze_NoProviderConfigured(t *testing.T) {
	h := newHarness(t, &stubResolver{}, judge.DefaultConfig())
	_, err := h.svc.Analyze(context.Background(), models.AnalysisRequest{Images: []models.ImageInput{{Data: jpeg}}})
	ae := requireAnalyzerError(t, err, KindProviderUnavailable)
	assert.Equal(t, http.StatusServiceUnavailable, ae.HTTPStatus())
}

func TestAnalyze_RequestedProviderMissingFallsBack(t *testing.T) {
	primary := &stubProvider{identity: models.ProviderOpenAI, text: canonicalAnalysis}
	h := newHarness(t, &stubResolver{primary: primary}, judge.DefaultConfig())

	out, err := h.svc.Analyze(context.Background(), models.AnalysisRequest{
		Images: []models.ImageInput{{Data: jpeg}},
		Model:  "gemini-2.0-flash",
	})
	require.NoError(t, err)
	assert.Equal(t, models.ProviderOpenAI, out.Metrics.Provider)
	assert.Equal(t, "gpt-4o", primary.analyzeOpts[0].Model)
}

func TestAnalyze_ProviderErrors(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		kind  ErrorKind
		retry time.Duration
	}{
		{"rate limit", &providers.RateLimitError{Provider: models.ProviderAnthropic, RetryAfter: 20 * time.Second}, KindRateLimited, 20 * time.Second},
		{"outage", &providers.ProviderError{Provider: models.ProviderAnthropic, Kind: providers.KindTransient, StatusCode: 529}, KindProviderUnavailable, 0},
		{"bad key", &providers.ProviderError{Provider: models.ProviderAnthropic, Kind: providers.KindClient, StatusCode: 401}, KindProviderUnavailable, 0},
		{"bad request", &providers.ProviderError{Provider: models.ProviderAnthropic, Kind: providers.KindClient, StatusCode: 400, Message: "image too large"}, KindValidation, 0},
		{"cancelled", context.Canceled, KindInternal, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			primary := &stubProvider{identity: models.ProviderAnthropic, err: tt.err}
			h := newHarness(t, &stubResolver{primary: primary}, judge.DefaultConfig())

			_, err := h.svc.Analyze(context.Background(), models.AnalysisRequest{Images: []models.ImageInput{{Data: jpeg}}})
			ae := requireAnalyzerError(t, err, tt.kind)
			assert.Equal(t, tt.retry, ae.RetryAfter)
			assert.ErrorIs(t, err, tt.err)
			assert.Empty(t, h.store.records)
			require.Len(t, h.sink.records, 1)
			assert.NotEmpty(t, h.sink.records[0].Error)
		})
	}
}

func TestAnalyze_PersistenceFailureStillReturnsResult(t *testing.T) {
	primary := &stubProvider{identity: models.ProviderAnthropic, text: canonicalAnalysis}
	h := newHarness(t, &stubResolver{primary: primary}, judge.DefaultConfig())
	h.store.err = errors.New("database is down")

	out, err := h.svc.Analyze(context.Background(), models.AnalysisRequest{Images: []models.ImageInput{{Data: jpeg}}})
	require.NoError(t, err)
	assert.Equal(t, 3, out.Analysis.Difficulty)
}

func TestProviderForModel(t *testing.T) {
	tests := []struct {
		model string
		want  models.ProviderIdentity
		ok    bool
	}{
		{"claude-sonnet-4-20250514", models.ProviderAnthropic, true},
		{"us.anthropic.claude-sonnet-4-20250514-v1:0", models.ProviderBedrock, true},
		{"anthropic.claude-3-haiku-20240307-v1:0", models.ProviderBedrock, true},
		{"gpt-4o", models.ProviderOpenAI, true},
		{"o4-mini", models.ProviderOpenAI, true},
		{"gemini-2.5-pro", models.ProviderGoogle, true},
		{"grok-2-vision-1212", models.ProviderXAI, true},
		{"", "", false},
		{"llama-3", "", false},
	}
	for _, tt := range tests {
		got, ok := ProviderForModel(tt.model)
		assert.Equal(t, tt.ok, ok, tt.model)
		assert.Equal(t, tt.want, got, tt.model)
	}
}
