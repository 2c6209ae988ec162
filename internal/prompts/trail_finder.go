package prompts

import (
	"strconv"
	"strings"

	"trailblazer_ai/internal/models"
)

const trailFinderInstructions = `You are an off-road trail research assistant. Find real, currently open off-road or overland trails that match the request below.

For each trail give: name, location, length, difficulty (1-5 using the usual overland scale), surface, best season, permit or pass requirements, and the source you used.
Only list trails you found through search or are certain exist. Cite a source for every trail. If you are unsure a detail is current, say so instead of guessing.`

// TrailFinderPrompt builds the trail discovery prompt.
func TrailFinderPrompt(q models.TrailSearch) string {
	var sb strings.Builder
	sb.WriteString(trailFinderInstructions)
	sb.WriteString("\n\nRequest: ")
	sb.WriteString(strings.TrimSpace(q.Query))

	if q.Location != "" {
		sb.WriteString("\nNear: " + strings.TrimSpace(q.Location))
		if q.RadiusMiles > 0 {
			sb.WriteString(" (within " + strconv.Itoa(q.RadiusMiles) + " miles)")
		}
	}
	if q.Difficulty != "" {
		sb.WriteString("\nPreferred difficulty: " + strings.TrimSpace(q.Difficulty))
	}
	if q.Vehicle != nil {
		sb.WriteString("\n" + vehicleBlock(q.Vehicle))
	}
	return sb.String()
}
