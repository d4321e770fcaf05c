package contracts

// DriftClass 드리프트 강도 분류
type DriftClass string

const (
	DriftStable   DriftClass = "STABLE"
	DriftModerate DriftClass = "MODERATE"
	DriftHigh     DriftClass = "HIGH"
)

// BiasChange records a per-pillar bias transition
type BiasChange struct {
	From Bias `json:"from"`
	To   Bias `json:"to"`
}

// DriftMeasurement compares two decisions for the same symbol (derived, not stored)
type DriftMeasurement struct {
	Symbol             string                    `json:"symbol"`
	PreviousDecisionID string                    `json:"previous_decision_id"`
	CurrentDecisionID  string                    `json:"current_decision_id"`
	ScoreDeltas        map[PillarName]float64    `json:"score_deltas"`
	BiasChanges        map[PillarName]BiasChange `json:"bias_changes"`
	MaxDriftPillar     PillarName                `json:"max_drift_pillar,omitempty"`
	MaxDriftMagnitude  float64                   `json:"max_drift_magnitude"`
	TotalDriftScore    float64                   `json:"total_drift_score"`
	TimeDeltaSeconds   float64                   `json:"time_delta_seconds"`
	CalibrationChanged bool                      `json:"calibration_changed"`
	Classification     DriftClass                `json:"classification"`
	AggregateBiasShift *BiasChange               `json:"aggregate_bias_shift,omitempty"`
}
