package normalize

import (
	"encoding/json"
	"math"

	"trailblazer_ai/internal/models"
)

// ParseFailedSummary is the summary of the degraded analysis.
const ParseFailedSummary = "Analysis failed: the model response could not be parsed as JSON."

// DefaultDifficulty is used when a parsed response has no usable difficulty.
const DefaultDifficulty = 3

var (
	transferCaseModes = []string{models.TransferCase2H, models.TransferCase4H, models.TransferCase4L, models.TransferCaseAWD}
	lockerModes       = []string{models.LockersOff, models.LockersRear, models.LockersFrontAndRear, models.LockersAsNeeded}
	coverageLevels    = []string{models.CoverageNone, models.CoverageLimited, models.CoverageModerate, models.CoverageGood}
	channelTypes      = []string{models.ChannelGMRS, models.ChannelFRS, models.ChannelCB, models.ChannelHam, models.ChannelSatellite}
)

// ParseFailed returns the degraded analysis for text that held no usable JSON.
func ParseFailed(text string) models.CanonicalAnalysis {
	return models.CanonicalAnalysis{
		Difficulty:      0,
		TrailType:       []string{},
		Conditions:      []string{},
		Hazards:         []string{},
		Recommendations: []string{},
		BestFor:         []string{},
		Summary:         ParseFailedSummary,
		RawResponse:     text,
	}
}

// Analysis parses model text into a canonical analysis. It never panics and never
// fails: unparseable text yields ParseFailed(text), and every field of a parsed
// object is validated and defaulted independently.
func Analysis(text string) (out models.CanonicalAnalysis) {
	defer func() {
		if recover() != nil {
			out = ParseFailed(text)
		}
	}()

	var obj map[string]any
	if err := json.Unmarshal([]byte(ExtractJSON(text)), &obj); err != nil || obj == nil {
		return ParseFailed(text)
	}

	a := models.CanonicalAnalysis{
		Difficulty:      difficulty(obj["difficulty"]),
		TrailType:       asStrings(obj["trailType"]),
		Conditions:      asStrings(obj["conditions"]),
		Hazards:         asStrings(obj["hazards"]),
		Recommendations: asStrings(obj["recommendations"]),
		BestFor:         asStrings(obj["bestFor"]),
		RawResponse:     text,
	}
	a.Summary, _ = asString(obj["summary"])

	if m, ok := asObject(obj["vehicleSettings"]); ok {
		a.VehicleSettings = vehicleSettings(m)
	}
	if m, ok := asObject(obj["fuelEstimate"]); ok {
		a.FuelEstimate = fuelEstimate(m)
	}
	if m, ok := asObject(obj["emergencyComms"]); ok {
		a.EmergencyComms = emergencyComms(m)
	}
	return a
}

// difficulty rounds and clamps into 1..5.
func difficulty(v any) int {
	f, ok := asNumber(v)
	if !ok {
		return DefaultDifficulty
	}
	d := int(math.Round(f))
	switch {
	case d < 1:
		return 1
	case d > 5:
		return 5
	}
	return d
}

func vehicleSettings(m map[string]any) *models.VehicleSettings {
	vs := &models.VehicleSettings{
		TransferCase: enumValue(m["transferCase"], transferCaseModes, models.TransferCase4H),
		Lockers:      enumValue(m["lockers"], lockerModes, models.LockersAsNeeded),
		Notes:        asStrings(m["notes"]),
	}
	if tp, ok := asObject(m["tirePressure"]); ok {
		vs.TirePressure.FrontPSI = nonNegative(tp["frontPsi"])
		vs.TirePressure.RearPSI = nonNegative(tp["rearPsi"])
	} else if psi, ok := asNumber(m["tirePressure"]); ok && psi > 0 {
		vs.TirePressure = models.TirePressure{FrontPSI: psi, RearPSI: psi}
	}
	vs.DisconnectSwayBars, _ = asBool(m["disconnectSwayBars"])
	return vs
}

func fuelEstimate(m map[string]any) *models.FuelEstimate {
	fe := &models.FuelEstimate{
		TrailMiles:            nonNegative(m["trailMiles"]),
		EstimatedGallons:      nonNegative(m["estimatedGallons"]),
		ConsumptionMultiplier: nonNegative(m["consumptionMultiplier"]),
	}
	fe.Notes, _ = asString(m["notes"])
	return fe
}

func emergencyComms(m map[string]any) *models.EmergencyComms {
	ec := &models.EmergencyComms{
		CellCoverage: enumValue(m["cellCoverage"], coverageLevels, models.CoverageLimited),
		Channels:     []models.RadioChannel{},
	}
	ec.SatelliteRecommended, _ = asBool(m["satelliteRecommended"])
	ec.Notes, _ = asString(m["notes"])

	items, _ := m["channels"].([]any)
	for _, item := range items {
		switch t := item.(type) {
		case map[string]any:
			ch := models.RadioChannel{Type: enumValue(t["type"], channelTypes, models.ChannelGMRS)}
			ch.Channel, _ = asString(t["channel"])
			ch.Notes, _ = asString(t["notes"])
			ec.Channels = append(ec.Channels, ch)
		case string:
			if t != "" {
				ec.Channels = append(ec.Channels, models.RadioChannel{Type: models.ChannelGMRS, Channel: t})
			}
		}
	}
	return ec
}
