package judge

import (
	"fmt"

	"trailblazer_ai/internal/config"
	"trailblazer_ai/internal/models"
)

// Thresholds turn a judge verdict into pass/fail.
type Thresholds struct {
	MinOverallScore        float64
	MinAccuracyScore       float64
	MaxUnverifiedClaims    int
	MaxUnverifiableSources int
	// AutoFailSeverity fails any verdict at or above this severity. Severe always fails.
	AutoFailSeverity models.HallucinationSeverity
}

// DefaultThresholds returns the stock floors and auto-fail triggers.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinOverallScore:        7,
		MinAccuracyScore:       7,
		MaxUnverifiedClaims:    3,
		MaxUnverifiableSources: 2,
		AutoFailSeverity:       models.SeverityModerate,
	}
}

// Config controls the evaluation loop.
type Config struct {
	// MaxRetries bounds the loop: at most MaxRetries+1 judge calls and MaxRetries improvements.
	MaxRetries  int
	AutoImprove bool
	Thresholds  Thresholds
	MaxTokens   int
}

// DefaultConfig returns two retries with auto-improve on.
func DefaultConfig() Config {
	return Config{MaxRetries: 2, AutoImprove: true, Thresholds: DefaultThresholds(), MaxTokens: 2048}
}

// ConfigFrom maps loaded configuration, keeping defaults for unset values.
func ConfigFrom(jc config.JudgeConfig) Config {
	cfg := DefaultConfig()
	if jc.MaxRetries >= 0 {
		cfg.MaxRetries = jc.MaxRetries
	}
	cfg.AutoImprove = jc.AutoImprove
	if jc.MinOverallScore > 0 {
		cfg.Thresholds.MinOverallScore = jc.MinOverallScore
	}
	if jc.MinAccuracyScore > 0 {
		cfg.Thresholds.MinAccuracyScore = jc.MinAccuracyScore
	}
	if jc.MaxUnverifiedClaims > 0 {
		cfg.Thresholds.MaxUnverifiedClaims = jc.MaxUnverifiedClaims
	}
	if jc.MaxUnverifiableSources > 0 {
		cfg.Thresholds.MaxUnverifiableSources = jc.MaxUnverifiableSources
	}
	return cfg
}

// ApplyThresholds decides Passed and fills FailureReasons. Pure.
func ApplyThresholds(v models.JudgeVerdict, th Thresholds) models.JudgeVerdict {
	var reasons []string
	if !v.Passed {
		reasons = append(reasons, "judge marked the response as failed")
	}
	if v.OverallScore < th.MinOverallScore {
		reasons = append(reasons, fmt.Sprintf("overall score %g is below %g", v.OverallScore, th.MinOverallScore))
	}
	if v.AccuracyScore < th.MinAccuracyScore {
		reasons = append(reasons, fmt.Sprintf("accuracy score %g is below %g", v.AccuracyScore, th.MinAccuracyScore))
	}

	autoFail := th.AutoFailSeverity
	if !autoFail.Valid() {
		autoFail = models.SeverityModerate
	}
	if v.HallucinationSeverity == models.SeveritySevere || v.HallucinationSeverity.Rank() >= autoFail.Rank() {
		reasons = append(reasons, fmt.Sprintf("hallucination severity is %s", v.HallucinationSeverity))
	}

	if n := len(v.UnverifiedClaims); n > th.MaxUnverifiedClaims {
		reasons = append(reasons, fmt.Sprintf("%d unverified claims (max %d)", n, th.MaxUnverifiedClaims))
	}
	if n := len(v.UnverifiableSources); n > th.MaxUnverifiableSources {
		reasons = append(reasons, fmt.Sprintf("%d unverifiable sources (max %d)", n, th.MaxUnverifiableSources))
	}

	v.FailureReasons = reasons
	v.Passed = len(reasons) == 0
	return v
}
