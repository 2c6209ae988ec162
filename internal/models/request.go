package models

// Business-level labels attached to usage records.
const (
	UseCaseTrailAnalysis   = "trail_analysis"
	UseCaseTrailFinder     = "trail_finder"
	UseCaseJudgeValidation = "judge_validation"
	UseCaseImprovement     = "trail_analysis_improvement"
)

// ImageInput is one uploaded image as received from the upload boundary.
type ImageInput struct {
	Data     []byte `json:"-"`
	MimeType string `json:"mimeType,omitempty"` // declared type, may be empty
	Name     string `json:"name,omitempty"`
}

// VehicleProfile describes the user's vehicle.
type VehicleProfile struct {
	Make             string   `json:"make"`
	Model            string   `json:"model"`
	Year             int      `json:"year,omitempty"`
	SuspensionBrand  string   `json:"suspensionBrand,omitempty"`
	SuspensionTravel string   `json:"suspensionTravel,omitempty"`
	Features         []string `json:"features,omitempty"`
}

// TrailContext is optional user-supplied trail information.
type TrailContext struct {
	TrailName     string `json:"trailName,omitempty"`
	TrailLocation string `json:"trailLocation,omitempty"`
	Notes         string `json:"additionalNotes,omitempty"`
}

// AnalysisRequest is a single analysis call.
type AnalysisRequest struct {
	Images  []ImageInput
	Model   string
	Vehicle *VehicleProfile
	Context *TrailContext
	UserID  string
	Verify  bool
	UseCase string
}

// TrailSearch is a trail discovery request.
type TrailSearch struct {
	Query       string          `json:"query"`
	Location    string          `json:"location,omitempty"`
	RadiusMiles int             `json:"radiusMiles,omitempty"`
	Difficulty  string          `json:"difficulty,omitempty"`
	Vehicle     *VehicleProfile `json:"vehicle,omitempty"`
	Model       string          `json:"model,omitempty"`
	MaxTokens   int             `json:"maxTokens,omitempty"`
	Verify      bool            `json:"verify,omitempty"`
	UserID      string          `json:"-"`
}
