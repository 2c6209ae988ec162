package prompts

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"trailblazer_ai/internal/models"
)

func TestAnalysisPrompt_Deterministic(t *testing.T) {
	vehicle := &models.VehicleProfile{Make: "Toyota", Model: "4Runner", Year: 2021, Features: []string{"rear locker", "33s"}}
	trail := &models.TrailContext{TrailName: "Elephant Hill", TrailLocation: "Canyonlands, UT"}

	first := AnalysisPrompt(vehicle, trail)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, AnalysisPrompt(vehicle, trail))
	}
}

func TestAnalysisPrompt_Base(t *testing.T) {
	p := AnalysisPrompt(nil, nil)

	assert.Contains(t, p, `"difficulty"`)
	assert.Contains(t, p, "5 = Extreme")
	assert.Contains(t, p, `"none", "limited", "moderate", "good"`)
	assert.Contains(t, p, `"gmrs", "frs", "cb", "ham", "satellite"`)
	assert.NotContains(t, p, "vehicleSettings")
	assert.NotContains(t, p, "Trail context")
	assert.NotContains(t, p, "%!")
}

func TestAnalysisPrompt_Context(t *testing.T) {
	p := AnalysisPrompt(nil, &models.TrailContext{TrailName: "Black Bear Pass", Notes: "after rain"})
	assert.Contains(t, p, "Trail name: Black Bear Pass")
	assert.Contains(t, p, "Notes from the user: after rain")
	assert.NotContains(t, p, "Location:")

	// blank context adds nothing
	assert.Equal(t, AnalysisPrompt(nil, nil), AnalysisPrompt(nil, &models.TrailContext{TrailName: "  "}))
}

func TestAnalysisPrompt_VehicleExtendsContract(t *testing.T) {
	vehicle := &models.VehicleProfile{
		Make: "Jeep", Model: "Wrangler Rubicon", Year: 2019,
		SuspensionBrand: "Fox", SuspensionTravel: "2.5in lift",
		Features: []string{"front locker", "rear locker", "sway bar disconnect"},
	}
	p := AnalysisPrompt(vehicle, nil)

	assert.Contains(t, p, `"vehicleSettings"`)
	assert.Contains(t, p, `"2H", "4H", "4L", "AWD"`)
	assert.Contains(t, p, `"off", "rear", "front_and_rear", "as_needed"`)
	assert.Contains(t, p, "Vehicle: 2019 Jeep Wrangler Rubicon")
	assert.Contains(t, p, "Suspension: Fox 2.5in lift")
	assert.Contains(t, p, "Features: front locker, rear locker, sway bar disconnect")

	// the contract extension sits inside the JSON example
	assert.Less(t, strings.Index(p, `"vehicleSettings"`), strings.Index(p, "Field rules:"))
}

func TestVehicleName(t *testing.T) {
	assert.Equal(t, "Ford Bronco", VehicleName(&models.VehicleProfile{Make: "Ford", Model: "Bronco"}))
	assert.Equal(t, "2023 Ford Bronco", VehicleName(&models.VehicleProfile{Make: "Ford", Model: "Bronco", Year: 2023}))
	assert.Equal(t, "", VehicleName(nil))
}

func TestJudgePrompt(t *testing.T) {
	p := JudgePrompt("  analyze this  ", `{"difficulty": 3}`)
	assert.Contains(t, p, "Fabricated sources")
	assert.Contains(t, p, `"hallucinationSeverity"`)
	assert.Contains(t, p, `"revisedResponse"`)
	assert.Contains(t, p, "=== ORIGINAL REQUEST ===\nanalyze this\n")
	assert.Contains(t, p, "=== RESPONSE TO EVALUATE ===\n{\"difficulty\": 3}")
}

func TestImprovementPrompt(t *testing.T) {
	verdict := models.JudgeVerdict{
		OverallScore:          4,
		AccuracyScore:         5,
		HallucinationSeverity: models.SeverityModerate,
		Issues:                []string{"cites a guidebook that does not exist"},
		UnverifiedClaims:      []string{"closed every March"},
	}
	p := ImprovementPrompt("original prompt", "previous answer", verdict)

	assert.True(t, strings.HasPrefix(p, "original prompt"))
	assert.Contains(t, p, "overall 4/10, accuracy 5/10, hallucination severity moderate")
	assert.Contains(t, p, "Issues:\n- cites a guidebook that does not exist\n")
	assert.Contains(t, p, "Unverified claims:\n- closed every March\n")
	assert.NotContains(t, p, "Fabricated content:")
	assert.True(t, strings.HasSuffix(p, "previous answer"))
}

func TestTrailFinderPrompt(t *testing.T) {
	p := TrailFinderPrompt(models.TrailSearch{
		Query:       "scenic beginner trails",
		Location:    "Moab, UT",
		RadiusMiles: 50,
		Difficulty:  "easy",
		Vehicle:     &models.VehicleProfile{Make: "Subaru", Model: "Outback"},
	})
	assert.Contains(t, p, "Request: scenic beginner trails")
	assert.Contains(t, p, "Near: Moab, UT (within 50 miles)")
	assert.Contains(t, p, "Preferred difficulty: easy")
	assert.Contains(t, p, "Vehicle: Subaru Outback")
	assert.Contains(t, p, "Cite a source")
}
