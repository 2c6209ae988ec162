package models

// HallucinationSeverity is the judge's rating of fabricated content.
type HallucinationSeverity string

const (
	SeverityNone     HallucinationSeverity = "none"
	SeverityMinor    HallucinationSeverity = "minor"
	SeverityModerate HallucinationSeverity = "moderate"
	SeveritySevere   HallucinationSeverity = "severe"
)

// Rank orders severities; unknown values rank as moderate.
func (s HallucinationSeverity) Rank() int {
	switch s {
	case SeverityNone:
		return 0
	case SeverityMinor:
		return 1
	case SeverityModerate:
		return 2
	case SeveritySevere:
		return 3
	}
	return 2
}

// Valid reports whether s is a known severity.
func (s HallucinationSeverity) Valid() bool {
	switch s {
	case SeverityNone, SeverityMinor, SeverityModerate, SeveritySevere:
		return true
	}
	return false
}

// JudgeVerdict is the outcome of one judge evaluation.
type JudgeVerdict struct {
	Passed                bool                  `json:"passed"`
	OverallScore          float64               `json:"overallScore"`
	AccuracyScore         float64               `json:"accuracyScore"`
	HallucinationSeverity HallucinationSeverity `json:"hallucinationSeverity"`
	CompletenessScore     float64               `json:"completenessScore"`
	SourceQualityScore    float64               `json:"sourceQualityScore"`
	Issues                []string              `json:"issues"`
	UnverifiedClaims      []string              `json:"unverifiedClaims"`
	FabricationExamples   []string              `json:"fabricationExamples"`
	UnverifiableSources   []string              `json:"unverifiableSources"`
	RevisedResponse       string                `json:"revisedResponse,omitempty"`
	FailureReasons        []string              `json:"failureReasons,omitempty"`

	JudgeProvider       ProviderIdentity `json:"judgeProvider,omitempty"`
	JudgeModel          string           `json:"judgeModel,omitempty"`
	Iterations          int              `json:"iterations"`
	VerificationSkipped bool             `json:"verificationSkipped"`
	NeedsRerun          bool             `json:"needsRerun,omitempty"`
	Note                string           `json:"note,omitempty"`
}
