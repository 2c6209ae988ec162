package normalize

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trailblazer_ai/internal/models"
)

func assertParseFailed(t *testing.T, text string) {
	t.Helper()
	a := Analysis(text)
	assert.Equal(t, 0, a.Difficulty)
	assert.True(t, a.ParseFailed())
	assert.Equal(t, text, a.RawResponse)
	assert.Equal(t, ParseFailedSummary, a.Summary)
	for _, arr := range [][]string{a.TrailType, a.Conditions, a.Hazards, a.Recommendations, a.BestFor} {
		assert.NotNil(t, arr)
		assert.Empty(t, arr)
	}
	assert.Nil(t, a.VehicleSettings)
	assert.Nil(t, a.FuelEstimate)
	assert.Nil(t, a.EmergencyComms)
}

func TestAnalysis_ParseFailure(t *testing.T) {
	inputs := []string{
		"",
		"I cannot analyze these images.",
		"{",
		"}{",
		"[1, 2, 3]",
		"null",
		`"just a string"`,
		"```\nnot json at all\n```",
		"{\"difficulty\": 3,,}",
		"\x00\xff\xfe",
	}
	for _, in := range inputs {
		assert.NotPanics(t, func() { assertParseFailed(t, in) }, "%q", in)
	}
}

func TestAnalysis_FencedTrailingComma(t *testing.T) {
	text := "Here is my analysis:\n```json\n{\n  \"difficulty\": 4,\n  \"hazards\": [\"rocks\", \"ledges\",],\n}\n```"
	assertParseFailed(t, text)
}

func TestAnalysis_FieldCoercion(t *testing.T) {
	text := `Sure! {
		"difficulty": "4.4 out of 5",
		"trailType": "rock crawl",
		"conditions": ["dry", 12, null, "", {"x": 1}],
		"hazards": null,
		"bestFor": ["built rigs"],
		"summary": ["Rocky.", "Short."],
		"vehicleSettings": {
			"tirePressure": {"frontPsi": "15 psi", "rearPsi": -3},
			"transferCase": "4l",
			"lockers": "Front and Rear",
			"disconnectSwayBars": "yes",
			"notes": "Use low range"
		},
		"fuelEstimate": {"trailMiles": 9, "estimatedGallons": "2.5", "notes": ["hilly", "slow"]},
		"emergencyComms": {
			"cellCoverage": "spotty",
			"channels": [{"type": "GMRS", "channel": 20}, {"type": "smoke signals", "channel": "1"}, "CB 19"],
			"satelliteRecommended": true
		}
	}`
	a := Analysis(text)

	assert.Equal(t, 4, a.Difficulty)
	assert.Equal(t, []string{"rock crawl"}, a.TrailType)
	assert.Equal(t, []string{"dry", "12"}, a.Conditions)
	assert.Equal(t, []string{}, a.Hazards)
	assert.Equal(t, []string{}, a.Recommendations)
	assert.Equal(t, "Rocky.; Short.", a.Summary)
	assert.Equal(t, text, a.RawResponse)

	require.NotNil(t, a.VehicleSettings)
	assert.Equal(t, 15.0, a.VehicleSettings.TirePressure.FrontPSI)
	assert.Equal(t, 0.0, a.VehicleSettings.TirePressure.RearPSI)
	assert.Equal(t, models.TransferCase4L, a.VehicleSettings.TransferCase)
	assert.Equal(t, models.LockersFrontAndRear, a.VehicleSettings.Lockers)
	assert.True(t, a.VehicleSettings.DisconnectSwayBars)
	assert.Equal(t, []string{"Use low range"}, a.VehicleSettings.Notes)

	require.NotNil(t, a.FuelEstimate)
	assert.Equal(t, 9.0, a.FuelEstimate.TrailMiles)
	assert.Equal(t, 2.5, a.FuelEstimate.EstimatedGallons)
	assert.Equal(t, "hilly; slow", a.FuelEstimate.Notes)

	require.NotNil(t, a.EmergencyComms)
	assert.Equal(t, models.CoverageLimited, a.EmergencyComms.CellCoverage)
	assert.True(t, a.EmergencyComms.SatelliteRecommended)
	assert.Equal(t, []models.RadioChannel{
		{Type: models.ChannelGMRS, Channel: "20"},
		{Type: models.ChannelGMRS, Channel: "1"},
		{Type: models.ChannelGMRS, Channel: "CB 19"},
	}, a.EmergencyComms.Channels)
}

func TestAnalysis_DifficultyBounds(t *testing.T) {
	tests := map[string]int{
		`{"difficulty": 0}`:      1,
		`{"difficulty": -2}`:     1,
		`{"difficulty": 9}`:      5,
		`{"difficulty": 2.5}`:    3,
		`{"difficulty": "hard"}`: DefaultDifficulty,
		`{"summary": "x"}`:       DefaultDifficulty,
		`{"difficulty": true}`:   DefaultDifficulty,
	}
	for in, want := range tests {
		assert.Equal(t, want, Analysis(in).Difficulty, in)
	}
}

func TestAnalysis_InvalidEnumsDefault(t *testing.T) {
	a := Analysis(`{"difficulty": 2, "vehicleSettings": {"transferCase": "8WD", "lockers": 3}, "emergencyComms": {"channels": "none"}}`)
	require.NotNil(t, a.VehicleSettings)
	assert.Equal(t, models.TransferCase4H, a.VehicleSettings.TransferCase)
	assert.Equal(t, models.LockersAsNeeded, a.VehicleSettings.Lockers)
	assert.Equal(t, []string{}, a.VehicleSettings.Notes)
	require.NotNil(t, a.EmergencyComms)
	assert.Equal(t, models.CoverageLimited, a.EmergencyComms.CellCoverage)
	assert.Equal(t, []models.RadioChannel{}, a.EmergencyComms.Channels)
}

func TestAnalysis_IdempotentOnCanonical(t *testing.T) {
	canonical := []models.CanonicalAnalysis{
		{
			Difficulty:      2,
			TrailType:       []string{"forest road"},
			Conditions:      []string{"dry"},
			Hazards:         []string{},
			Recommendations: []string{"stay on trail"},
			BestFor:         []string{"stock SUVs"},
			Summary:         "Mellow forest road.",
		},
		{
			Difficulty:      5,
			TrailType:       []string{"rock crawl", "waterfall"},
			Conditions:      []string{"wet"},
			Hazards:         []string{"rollover risk"},
			Recommendations: []string{"winch", "spotter"},
			BestFor:         []string{"built rigs"},
			Summary:         "Extreme.",
			VehicleSettings: &models.VehicleSettings{
				TirePressure:       models.TirePressure{FrontPSI: 12, RearPSI: 12.5},
				TransferCase:       models.TransferCase4L,
				Lockers:            models.LockersFrontAndRear,
				DisconnectSwayBars: true,
				Notes:              []string{"disconnect before the first ledge"},
			},
			FuelEstimate: &models.FuelEstimate{TrailMiles: 4, EstimatedGallons: 2, ConsumptionMultiplier: 3, Notes: "low range"},
			EmergencyComms: &models.EmergencyComms{
				CellCoverage:         models.CoverageNone,
				Channels:             []models.RadioChannel{{Type: models.ChannelHam, Channel: "146.520", Notes: "calling"}},
				SatelliteRecommended: true,
				Notes:                "carry a messenger",
			},
		},
	}

	for _, want := range canonical {
		b, err := json.Marshal(want)
		require.NoError(t, err)

		once := Analysis(string(b))
		twice := Analysis(mustJSON(t, once))

		want.RawResponse = string(b)
		assert.Equal(t, want, once)

		once.RawResponse, twice.RawResponse = "", ""
		assert.Equal(t, once, twice)
	}
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}
