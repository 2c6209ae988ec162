package normalize

import (
	"encoding/json"
	"errors"
	"math"

	"trailblazer_ai/internal/models"
)

// ErrUnparseableVerdict is returned when judge output holds no verdict object.
var ErrUnparseableVerdict = errors.New("judge response could not be parsed as a verdict")

// Verdict decodes judge output. Scores are clamped into 1..10 when present;
// an unknown severity counts as moderate.
func Verdict(text string) (v models.JudgeVerdict, err error) {
	defer func() {
		if recover() != nil {
			v, err = models.JudgeVerdict{}, ErrUnparseableVerdict
		}
	}()

	var obj map[string]any
	if jerr := json.Unmarshal([]byte(ExtractJSON(text)), &obj); jerr != nil || obj == nil {
		return models.JudgeVerdict{}, ErrUnparseableVerdict
	}
	_, hasPassed := obj["passed"]
	_, hasOverall := obj["overallScore"]
	if !hasPassed && !hasOverall {
		return models.JudgeVerdict{}, ErrUnparseableVerdict
	}

	v = models.JudgeVerdict{
		OverallScore:        score(obj["overallScore"]),
		AccuracyScore:       score(obj["accuracyScore"]),
		CompletenessScore:   score(obj["completenessScore"]),
		SourceQualityScore:  score(obj["sourceQualityScore"]),
		Issues:              asStrings(obj["issues"]),
		UnverifiedClaims:    asStrings(obj["unverifiedClaims"]),
		FabricationExamples: asStrings(obj["fabricationExamples"]),
		UnverifiableSources: asStrings(obj["unverifiableSources"]),
		RevisedResponse:     rawText(obj["revisedResponse"]),
	}
	v.Passed = true // scores decide when the judge gives no explicit flag
	if passed, ok := asBool(obj["passed"]); ok {
		v.Passed = passed
	}
	sev, ok := obj["hallucinationSeverity"]
	if !ok {
		sev = obj["hallucination"]
	}
	v.HallucinationSeverity = severity(sev)
	return v, nil
}

// score rounds to one decimal and clamps into 1..10; absent scores are 0.
func score(v any) float64 {
	f, ok := asNumber(v)
	if !ok {
		return 0
	}
	f = math.Round(f*10) / 10
	return math.Max(1, math.Min(10, f))
}

func severity(v any) models.HallucinationSeverity {
	// some judges nest it: {"hallucination": {"severity": "minor"}}
	if m, ok := asObject(v); ok {
		v = m["severity"]
	}
	return models.HallucinationSeverity(enumValue(v, []string{
		string(models.SeverityNone), string(models.SeverityMinor),
		string(models.SeverityModerate), string(models.SeveritySevere),
	}, string(models.SeverityModerate)))
}
