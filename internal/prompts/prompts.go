// Package prompts builds the outbound instruction text for analysis, judging,
// improvement and trail finding. Everything here is pure: identical inputs
// always produce identical text.
package prompts

import (
	"fmt"
	"strconv"
	"strings"

	"trailblazer_ai/internal/models"
)

// analysisInstructions is the fixed task block with the output contract.
const analysisInstructions = `You are an expert off-road and overlanding guide. Analyze the attached trail photos and assess the terrain.

Respond with ONLY a JSON object, no prose before or after it, using exactly this shape:
{
  "difficulty": 3,
  "trailType": ["dirt road", "rock crawl"],
  "conditions": ["dry", "loose gravel"],
  "hazards": ["steep grades", "off-camber sections"],
  "recommendations": ["air down tires", "use a spotter"],
  "bestFor": ["high-clearance 4x4", "experienced drivers"],
  "summary": "Two or three sentences describing the trail.",
  "fuelEstimate": {
    "trailMiles": 12,
    "estimatedGallons": 3.5,
    "consumptionMultiplier": 1.8,
    "notes": "How terrain affects consumption."
  },
  "emergencyComms": {
    "cellCoverage": "limited",
    "channels": [{"type": "gmrs", "channel": "20", "notes": "Common trail channel."}],
    "satelliteRecommended": true,
    "notes": "Communication advice."
  }%s
}

Field rules:
- "difficulty" is an integer from 1 to 5:
  1 = Easy: maintained dirt or gravel road, passable by any vehicle in dry conditions.
  2 = Moderate: uneven surface, small rocks or ruts; high clearance helps but 2WD may pass.
  3 = Challenging: loose rock, moderate ledges or steep grades; high clearance and 4WD required.
  4 = Difficult: large rocks, deep ruts or mud, tight lines; lockers or a lift strongly recommended.
  5 = Extreme: boulder fields, waterfalls or severe off-camber; built rigs, winch and experience required.
- "trailType", "conditions", "hazards", "recommendations" and "bestFor" are arrays of short strings.
- "emergencyComms.cellCoverage" is one of: "none", "limited", "moderate", "good".
- "emergencyComms.channels[].type" is one of: "gmrs", "frs", "cb", "ham", "satellite".
- Only describe what the photos and the supplied context support. Do not invent trail names, statistics or sources.`

const vehicleSettingsContract = `,
  "vehicleSettings": {
    "tirePressure": {"frontPsi": 18, "rearPsi": 18},
    "transferCase": "4H",
    "lockers": "as_needed",
    "disconnectSwayBars": false,
    "notes": ["Vehicle-specific advice."]
  }`

const vehicleInstructions = `Vehicle-specific requirements:
- Include "vehicleSettings" in the JSON.
- Tailor "tirePressure" (PSI) to this vehicle's weight class and the terrain shown.
- "transferCase" is one of: "2H", "4H", "4L", "AWD".
- "lockers" is one of: "off", "rear", "front_and_rear", "as_needed".
- Set "disconnectSwayBars" only if this vehicle has disconnects and the terrain is articulated.
- Reflect the listed features in "recommendations" and "bestFor".`

// AnalysisPrompt builds the trail analysis prompt. A vehicle extends the contract
// with vehicleSettings; context is appended only when present.
func AnalysisPrompt(vehicle *models.VehicleProfile, trail *models.TrailContext) string {
	contract := ""
	if vehicle != nil {
		contract = vehicleSettingsContract
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf(analysisInstructions, contract))

	if block := contextBlock(trail); block != "" {
		sb.WriteString("\n\n")
		sb.WriteString(block)
	}
	if vehicle != nil {
		sb.WriteString("\n\n")
		sb.WriteString(vehicleBlock(vehicle))
		sb.WriteString("\n\n")
		sb.WriteString(vehicleInstructions)
	}
	return sb.String()
}

func contextBlock(trail *models.TrailContext) string {
	if trail == nil {
		return ""
	}
	var lines []string
	if v := strings.TrimSpace(trail.TrailName); v != "" {
		lines = append(lines, "Trail name: "+v)
	}
	if v := strings.TrimSpace(trail.TrailLocation); v != "" {
		lines = append(lines, "Location: "+v)
	}
	if v := strings.TrimSpace(trail.Notes); v != "" {
		lines = append(lines, "Notes from the user: "+v)
	}
	if len(lines) == 0 {
		return ""
	}
	return "Trail context:\n" + strings.Join(lines, "\n")
}

func vehicleBlock(v *models.VehicleProfile) string {
	lines := []string{"Vehicle: " + VehicleName(v)}
	if v.SuspensionBrand != "" || v.SuspensionTravel != "" {
		lines = append(lines, "Suspension: "+strings.TrimSpace(v.SuspensionBrand+" "+v.SuspensionTravel))
	}
	if len(v.Features) > 0 {
		// declared order; the user lists the most important first
		lines = append(lines, "Features: "+strings.Join(v.Features, ", "))
	}
	return strings.Join(lines, "\n")
}

// VehicleName renders "2021 Toyota 4Runner", omitting an unknown year.
func VehicleName(v *models.VehicleProfile) string {
	if v == nil {
		return ""
	}
	parts := make([]string, 0, 3)
	if v.Year > 0 {
		parts = append(parts, strconv.Itoa(v.Year))
	}
	for _, p := range []string{v.Make, v.Model} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}
