package registry

import (
	"context"
	"time"

	"trailblazer_ai/internal/config"
	"trailblazer_ai/internal/models"
	"trailblazer_ai/internal/providers"
)

// Defaults used when nothing else names a provider or model.
const (
	FallbackProvider = models.ProviderAnthropic
	FallbackModel    = "claude-sonnet-4-20250514"
)

// EnvironmentStrategy builds a credential from process configuration.
// For ordinary queries it serves the configured default provider (or the named one);
// for judge queries it serves JUDGE_PROVIDER / JUDGE_MODEL and nothing else.
type EnvironmentStrategy struct {
	keys            map[models.ProviderIdentity]string
	baseURLs        map[models.ProviderIdentity]string
	awsSecret       string
	awsRegion       string
	defaultProvider models.ProviderIdentity
	defaultModel    string
	judgeProvider   models.ProviderIdentity
	judgeModel      string
	timeout         time.Duration
	maxTokens       int
}

// NewEnvironmentStrategy creates the strategy from loaded configuration
func NewEnvironmentStrategy(pc config.ProviderConfig, jc config.JudgeConfig) *EnvironmentStrategy {
	s := &EnvironmentStrategy{
		keys: map[models.ProviderIdentity]string{
			models.ProviderAnthropic: pc.AnthropicAPIKey,
			models.ProviderOpenAI:    pc.OpenAIAPIKey,
			models.ProviderGoogle:    pc.GoogleAPIKey,
			models.ProviderXAI:       pc.XAIAPIKey,
			models.ProviderBedrock:   pc.AWSAccessKeyID,
		},
		baseURLs: map[models.ProviderIdentity]string{
			models.ProviderAnthropic: pc.AnthropicBaseURL,
			models.ProviderOpenAI:    pc.OpenAIBaseURL,
			models.ProviderGoogle:    pc.GoogleBaseURL,
			models.ProviderXAI:       pc.XAIBaseURL,
		},
		awsSecret:       pc.AWSSecretAccessKey,
		awsRegion:       pc.AWSRegion,
		defaultProvider: FallbackProvider,
		defaultModel:    pc.DefaultModel,
		judgeModel:      jc.Model,
		timeout:         pc.RequestTimeout,
		maxTokens:       pc.MaxTokens,
	}

	if id, err := models.ParseProviderIdentity(pc.DefaultProvider); err == nil {
		s.defaultProvider = id
	}
	if s.defaultProvider == FallbackProvider && s.defaultModel == "" {
		s.defaultModel = FallbackModel
	}
	if id, err := models.ParseProviderIdentity(jc.Provider); err == nil {
		s.judgeProvider = id
	}
	return s
}

func (s *EnvironmentStrategy) Name() string { return "environment" }

// Candidates returns at most one credential
func (s *EnvironmentStrategy) Candidates(ctx context.Context, q Query) ([]providers.ProviderConfig, error) {
	identity, model := s.defaultProvider, s.defaultModel
	if q.Judge {
		if s.judgeProvider == "" {
			return nil, ErrNotApplicable
		}
		identity, model = s.judgeProvider, s.judgeModel
	}
	if q.Provider != "" {
		if q.Judge && q.Provider != identity {
			return nil, ErrNotApplicable
		}
		if q.Provider != identity {
			model = ""
		}
		identity = q.Provider
	}

	cfg, ok := s.configFor(identity)
	if !ok {
		return nil, ErrNotApplicable
	}
	cfg.DefaultModel = model
	cfg.IsJudge = q.Judge
	return []providers.ProviderConfig{cfg}, nil
}

func (s *EnvironmentStrategy) configFor(identity models.ProviderIdentity) (providers.ProviderConfig, bool) {
	cfg := providers.ProviderConfig{
		Identity:  identity,
		APIKey:    s.keys[identity],
		BaseURL:   s.baseURLs[identity],
		Timeout:   s.timeout,
		MaxTokens: s.maxTokens,
		Source:    s.Name(),
	}

	if identity == models.ProviderBedrock {
		// without static keys the client falls back to the default AWS credential chain
		if cfg.APIKey == "" && s.awsRegion == "" {
			return providers.ProviderConfig{}, false
		}
		cfg.SecretKey = s.awsSecret
		cfg.Region = s.awsRegion
		return cfg, true
	}

	if cfg.APIKey == "" {
		return providers.ProviderConfig{}, false
	}
	return cfg, true
}
