package contracts

import (
	"maps"
	"slices"
	"time"
)

// ContractVersion is the version of the external JSON shape.
// 1.0 + additive fields: decision effective_weights and recorded_at,
// drift classification and aggregate_bias_shift.
const ContractVersion = "1.1"

// AnalysisQuality describes how much of the evidence base was usable
type AnalysisQuality struct {
	TotalPillars       int          `json:"total_pillars"`
	ActivePillars      int          `json:"active_pillars"`
	PlaceholderPillars int          `json:"placeholder_pillars"`
	FailedPillars      []PillarName `json:"failed_pillars"`
	DataAgeSeconds     *uint64      `json:"data_age_seconds,omitempty"`
}

// IsConsistent checks active + placeholder + failed == total
func (q AnalysisQuality) IsConsistent() bool {
	return q.TotalPillars == PillarCount &&
		q.ActivePillars+q.PlaceholderPillars+len(q.FailedPillars) == q.TotalPillars
}

// Decision is the immutable output of one evaluation
// ⭐ SSOT: 집계기 → 원장 데이터 전달 (생성 후 분석 필드 변경 금지)
type Decision struct {
	DecisionID         string                 `json:"decision_id"`
	Symbol             string                 `json:"symbol"`
	AnalysisTimestamp  time.Time              `json:"analysis_timestamp"`
	ContractVersion    string                 `json:"contract_version"`
	CalibrationVersion string                 `json:"calibration_version"`
	PillarResults      []PillarResult         `json:"pillar_results"`
	EffectiveWeights   map[PillarName]float64 `json:"effective_weights"`
	ConvictionScore    float64                `json:"conviction_score"`
	DirectionalBias    Bias                   `json:"directional_bias"`
	Quality            AnalysisQuality        `json:"quality"`
	IsValid            bool                   `json:"is_valid"`
	IsExecutionReady   bool                   `json:"is_execution_ready"`
	Warnings           []string               `json:"warnings"`
	ReasoningNarrative string                 `json:"reasoning_narrative"`

	// 원장이 후속 결정 추가 시에만 true로 전환 (메타데이터)
	IsSuperseded bool `json:"is_superseded"`

	// Set by the ledger on append
	RecordedAt *time.Time `json:"recorded_at,omitempty"`
}

// Pillar returns the result for the given pillar
func (d *Decision) Pillar(name PillarName) (PillarResult, bool) {
	for _, r := range d.PillarResults {
		if r.Name == name {
			return r, true
		}
	}
	return PillarResult{}, false
}

// EffectiveWeight returns the renormalized weight (0 for failed pillars)
func (d *Decision) EffectiveWeight(name PillarName) float64 {
	return d.EffectiveWeights[name]
}

// Clone returns a deep copy so stored records cannot be mutated through aliases
func (d *Decision) Clone() *Decision {
	if d == nil {
		return nil
	}
	out := *d

	out.PillarResults = make([]PillarResult, len(d.PillarResults))
	for i, r := range d.PillarResults {
		out.PillarResults[i] = r.Clone()
	}

	out.EffectiveWeights = maps.Clone(d.EffectiveWeights)
	out.Quality.FailedPillars = slices.Clone(d.Quality.FailedPillars)
	if d.Quality.DataAgeSeconds != nil {
		age := *d.Quality.DataAgeSeconds
		out.Quality.DataAgeSeconds = &age
	}

	if d.RecordedAt != nil {
		at := *d.RecordedAt
		out.RecordedAt = &at
	}

	out.Warnings = slices.Clone(d.Warnings)
	return &out
}
