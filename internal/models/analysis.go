package models

// CanonicalAnalysis is the provider-independent trail assessment.
// Every field has a safe zero/default; Difficulty is 0 only when the model output could not be parsed.
type CanonicalAnalysis struct {
	Difficulty      int              `json:"difficulty"`
	TrailType       []string         `json:"trailType"`
	Conditions      []string         `json:"conditions"`
	Hazards         []string         `json:"hazards"`
	Recommendations []string         `json:"recommendations"`
	BestFor         []string         `json:"bestFor"`
	Summary         string           `json:"summary"`
	RawResponse     string           `json:"rawResponse"`
	VehicleSettings *VehicleSettings `json:"vehicleSettings,omitempty"`
	FuelEstimate    *FuelEstimate    `json:"fuelEstimate,omitempty"`
	EmergencyComms  *EmergencyComms  `json:"emergencyComms,omitempty"`
}

// ParseFailed reports whether the analysis is the degraded "could not parse" shape.
func (a CanonicalAnalysis) ParseFailed() bool {
	return a.Difficulty == 0
}

// Transfer case modes.
const (
	TransferCase2H  = "2H"
	TransferCase4H  = "4H"
	TransferCase4L  = "4L"
	TransferCaseAWD = "AWD"
)

// Locker engagement values.
const (
	LockersOff          = "off"
	LockersRear         = "rear"
	LockersFrontAndRear = "front_and_rear"
	LockersAsNeeded     = "as_needed"
)

// TirePressure is a recommended pressure pair in PSI.
type TirePressure struct {
	FrontPSI float64 `json:"frontPsi"`
	RearPSI  float64 `json:"rearPsi"`
}

// VehicleSettings is the vehicle-specific setup recommendation.
type VehicleSettings struct {
	TirePressure       TirePressure `json:"tirePressure"`
	TransferCase       string       `json:"transferCase"`
	Lockers            string       `json:"lockers"`
	DisconnectSwayBars bool         `json:"disconnectSwayBars"`
	Notes              []string     `json:"notes"`
}

// FuelEstimate is an off-road fuel consumption estimate.
type FuelEstimate struct {
	TrailMiles            float64 `json:"trailMiles"`
	EstimatedGallons      float64 `json:"estimatedGallons"`
	ConsumptionMultiplier float64 `json:"consumptionMultiplier"`
	Notes                 string  `json:"notes"`
}

// Cell coverage levels.
const (
	CoverageNone     = "none"
	CoverageLimited  = "limited"
	CoverageModerate = "moderate"
	CoverageGood     = "good"
)

// Radio channel types.
const (
	ChannelGMRS      = "gmrs"
	ChannelFRS       = "frs"
	ChannelCB        = "cb"
	ChannelHam       = "ham"
	ChannelSatellite = "satellite"
)

// RadioChannel is a recommended communication channel.
type RadioChannel struct {
	Type    string `json:"type"`
	Channel string `json:"channel"`
	Notes   string `json:"notes"`
}

// EmergencyComms is the emergency communications assessment.
type EmergencyComms struct {
	CellCoverage         string         `json:"cellCoverage"`
	Channels             []RadioChannel `json:"channels"`
	SatelliteRecommended bool           `json:"satelliteRecommended"`
	Notes                string         `json:"notes"`
}
