package prompts

import (
	"fmt"
	"strings"

	"trailblazer_ai/internal/models"
)

const judgeInstructions = `You are a strict fact-checking judge. Another AI model produced the response below for the request shown. Your only job is to find problems in it.

Look specifically for:
- Fabricated sources: named guidebooks, websites, clubs or officials that may not exist.
- Impossible or suspiciously precise statistics (exact mileage, elevation, accident counts) not derivable from the request.
- Unverifiable local-knowledge claims: permit rules, seasonal closures, land ownership, named landmarks.
- Internal inconsistency: ratings that contradict the description, recommendations that contradict hazards.

Respond with ONLY a JSON object in exactly this shape:
{
  "passed": true,
  "overallScore": 8,
  "accuracyScore": 8,
  "hallucinationSeverity": "none",
  "completenessScore": 8,
  "sourceQualityScore": 8,
  "issues": ["Specific problem found."],
  "unverifiedClaims": ["Claim that cannot be verified."],
  "fabricationExamples": ["Quoted fabricated content."],
  "unverifiableSources": ["Source that cannot be checked."],
  "revisedResponse": "Optional. A complete corrected response in the original format, only if you can fix every issue."
}

Scoring rules:
- All scores are integers from 1 (worst) to 10 (best).
- "hallucinationSeverity" is one of: "none", "minor", "moderate", "severe".
- Omit "revisedResponse" or leave it empty when no full correction is possible.`

// JudgePrompt builds the critique prompt for a response to originalPrompt.
func JudgePrompt(originalPrompt, response string) string {
	var sb strings.Builder
	sb.WriteString(judgeInstructions)
	sb.WriteString("\n\n=== ORIGINAL REQUEST ===\n")
	sb.WriteString(strings.TrimSpace(originalPrompt))
	sb.WriteString("\n\n=== RESPONSE TO EVALUATE ===\n")
	sb.WriteString(strings.TrimSpace(response))
	sb.WriteString("\n=== END ===")
	return sb.String()
}

// ImprovementPrompt re-prompts the original model with the judge's findings.
func ImprovementPrompt(originalPrompt, previous string, verdict models.JudgeVerdict) string {
	var sb strings.Builder
	sb.WriteString(strings.TrimSpace(originalPrompt))
	sb.WriteString("\n\nA reviewer checked your previous answer and found problems. Produce a corrected answer in the same format.\n")
	sb.WriteString("Remove or qualify anything you cannot support; do not add new specific claims.\n")
	sb.WriteString(fmt.Sprintf("\nReviewer scores: overall %g/10, accuracy %g/10, hallucination severity %s.\n",
		verdict.OverallScore, verdict.AccuracyScore, verdict.HallucinationSeverity))

	writeList(&sb, "Issues", verdict.Issues)
	writeList(&sb, "Unverified claims", verdict.UnverifiedClaims)
	writeList(&sb, "Fabricated content", verdict.FabricationExamples)
	writeList(&sb, "Unverifiable sources", verdict.UnverifiableSources)
	writeList(&sb, "Threshold failures", verdict.FailureReasons)

	sb.WriteString("\nPrevious answer:\n")
	sb.WriteString(strings.TrimSpace(previous))
	return sb.String()
}

func writeList(sb *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	sb.WriteString("\n" + title + ":\n")
	for _, item := range items {
		sb.WriteString("- " + strings.TrimSpace(item) + "\n")
	}
}
