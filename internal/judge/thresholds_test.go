package judge

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"trailblazer_ai/internal/config"
	"trailblazer_ai/internal/models"
)

func goodVerdict() models.JudgeVerdict {
	return models.JudgeVerdict{
		Passed:                true,
		OverallScore:          8,
		AccuracyScore:         8,
		HallucinationSeverity: models.SeverityNone,
		CompletenessScore:     8,
		SourceQualityScore:    8,
	}
}

func TestApplyThresholds(t *testing.T) {
	th := DefaultThresholds()

	tests := []struct {
		name   string
		mutate func(v *models.JudgeVerdict)
		passed bool
	}{
		{"clean", func(v *models.JudgeVerdict) {}, true},
		{"minor is tolerated", func(v *models.JudgeVerdict) { v.HallucinationSeverity = models.SeverityMinor }, true},
		{"moderate auto-fails", func(v *models.JudgeVerdict) {
			v.HallucinationSeverity = models.SeverityModerate
			v.OverallScore = 9
		}, false},
		{"low overall", func(v *models.JudgeVerdict) { v.OverallScore = 6.9 }, false},
		{"low accuracy", func(v *models.JudgeVerdict) { v.AccuracyScore = 5 }, false},
		{"judge said no", func(v *models.JudgeVerdict) { v.Passed = false }, false},
		{"three unverified claims ok", func(v *models.JudgeVerdict) { v.UnverifiedClaims = []string{"a", "b", "c"} }, true},
		{"four unverified claims", func(v *models.JudgeVerdict) { v.UnverifiedClaims = []string{"a", "b", "c", "d"} }, false},
		{"three unverifiable sources", func(v *models.JudgeVerdict) { v.UnverifiableSources = []string{"a", "b", "c"} }, false},
		{"unknown severity counts as moderate", func(v *models.JudgeVerdict) { v.HallucinationSeverity = "odd" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := goodVerdict()
			tt.mutate(&v)
			got := ApplyThresholds(v, th)
			assert.Equal(t, tt.passed, got.Passed)
			if tt.passed {
				assert.Empty(t, got.FailureReasons)
			} else {
				assert.NotEmpty(t, got.FailureReasons)
			}
		})
	}
}

func TestApplyThresholds_SevereAlwaysFails(t *testing.T) {
	// even with every other trigger relaxed
	lenient := Thresholds{AutoFailSeverity: "nonsense", MaxUnverifiedClaims: 100, MaxUnverifiableSources: 100}
	for _, th := range []Thresholds{DefaultThresholds(), lenient} {
		for score := 1.0; score <= 10; score++ {
			v := goodVerdict()
			v.OverallScore, v.AccuracyScore, v.CompletenessScore, v.SourceQualityScore = score, score, score, score
			v.HallucinationSeverity = models.SeveritySevere
			assert.False(t, ApplyThresholds(v, th).Passed, "score %v", score)
		}
	}
}

func TestConfigFrom(t *testing.T) {
	cfg := ConfigFrom(config.JudgeConfig{MaxRetries: 4, AutoImprove: true, MinOverallScore: 8})
	assert.Equal(t, 4, cfg.MaxRetries)
	assert.True(t, cfg.AutoImprove)
	assert.Equal(t, 8.0, cfg.Thresholds.MinOverallScore)
	assert.Equal(t, 7.0, cfg.Thresholds.MinAccuracyScore)
	assert.Equal(t, models.SeverityModerate, cfg.Thresholds.AutoFailSeverity)
}
