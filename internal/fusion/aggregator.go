package fusion

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/wonny/aegis/fusion/internal/calibration"
	"github.com/wonny/aegis/fusion/internal/contracts"
)

// Warning texts. No other warning text is produced.
const (
	warnPlaceholderFmt    = "%s pillar is placeholder"
	warnFailedFmt         = "%s pillar failed during analysis"
	WarnNotExecutionReady = "Analysis not execution-ready"
)

// nominal weight from the result must match the calibration
const weightMatchEpsilon = 1e-9

// IDGenerator produces opaque decision identifiers
type IDGenerator func() string

// Request is one evaluation instant for one symbol
type Request struct {
	Symbol         string
	Timestamp      time.Time
	Results        []contracts.PillarResult
	DataAgeSeconds *uint64 // max staleness of the snapshot the pillars consumed
}

// Aggregator fuses six pillar results into one Decision
// ⭐ SSOT: 필러 간 교차 읽기는 집계기에서만 허용
type Aggregator struct {
	newID IDGenerator
	log   zerolog.Logger
}

// NewAggregator 새 집계기 생성
func NewAggregator(log zerolog.Logger) *Aggregator {
	return &Aggregator{
		newID: func() string { return uuid.NewString() },
		log:   log.With().Str("component", "fusion.aggregator").Logger(),
	}
}

// WithIDGenerator overrides decision id generation (tests, replays)
func (a *Aggregator) WithIDGenerator(gen IDGenerator) *Aggregator {
	a.newID = gen
	return a
}

// Aggregate validates the six results and produces a Decision.
// ContractViolation and IncompleteInput are returned as errors; all-failed input
// yields an INVALID decision, not an error.
func (a *Aggregator) Aggregate(cal calibration.Calibration, req Request) (*contracts.Decision, error) {
	symbol := strings.TrimSpace(req.Symbol)
	if symbol == "" {
		return nil, &contracts.ContractViolation{Field: "symbol", Message: "is required"}
	}
	if req.Timestamp.IsZero() {
		return nil, &contracts.ContractViolation{Field: "analysis_timestamp", Message: "is required"}
	}
	if cal.Version == "" {
		return nil, &contracts.ContractViolation{Field: "calibration_version", Message: "is required"}
	}

	results, err := admit(cal, req.Results)
	if err != nil {
		a.log.Warn().Err(err).Str("symbol", symbol).Msg("pillar results rejected")
		return nil, err
	}

	// 1~2. failed 제외 후 가중치 재정규화
	effective, activeWeight := renormalize(results)

	// 3. aggregate_score = Σ(effective_i * score_i)
	aggregate := 0.0
	for _, r := range results {
		aggregate += effective[r.Name] * r.Score
	}

	quality := Quality(results, req.DataAgeSeconds)

	// 4~5. bias / validity
	isValid := activeWeight > 0
	bias := contracts.BiasInvalid
	conviction := 0.0
	if isValid {
		conviction = clampScore(aggregate)
		bias = cal.Thresholds.Classify(conviction)
	}

	// 6. execution readiness
	executionReady := isValid &&
		len(quality.FailedPillars) == 0 &&
		quality.PlaceholderPillars <= cal.ExecutionPlaceholderTolerance

	// 7. warnings (canonical pillar order)
	warnings := make([]string, 0, contracts.PillarCount+1)
	for _, r := range results {
		switch r.State {
		case contracts.StatePlaceholder:
			warnings = append(warnings, fmt.Sprintf(warnPlaceholderFmt, r.Name))
		case contracts.StateFailed:
			warnings = append(warnings, fmt.Sprintf(warnFailedFmt, r.Name))
		}
	}
	if !executionReady {
		warnings = append(warnings, WarnNotExecutionReady)
	}

	// 8. narrative
	narrative := buildNarrative(bias, conviction, quality, topDrivers(results, effective, 2))

	d := &contracts.Decision{
		DecisionID:         a.newID(),
		Symbol:             symbol,
		AnalysisTimestamp:  req.Timestamp.UTC(),
		ContractVersion:    contracts.ContractVersion,
		CalibrationVersion: cal.Version,
		PillarResults:      results,
		EffectiveWeights:   effective,
		ConvictionScore:    conviction,
		DirectionalBias:    bias,
		Quality:            quality,
		IsValid:            isValid,
		IsExecutionReady:   executionReady,
		Warnings:           warnings,
		ReasoningNarrative: narrative,
	}

	a.log.Debug().
		Str("symbol", symbol).
		Str("decision_id", d.DecisionID).
		Str("calibration", cal.Version).
		Float64("conviction", conviction).
		Str("bias", string(bias)).
		Int("active", quality.ActivePillars).
		Int("placeholder", quality.PlaceholderPillars).
		Int("failed", len(quality.FailedPillars)).
		Bool("execution_ready", executionReady).
		Msg("decision aggregated")

	return d, nil
}

// admit validates every result, checks completeness and returns a
// canonical-order copy.
func admit(cal calibration.Calibration, in []contracts.PillarResult) ([]contracts.PillarResult, error) {
	for _, r := range in {
		if err := r.Validate(); err != nil {
			return nil, err
		}
		if nominal := cal.Weights.Of(r.Name); math.Abs(r.Weight-nominal) > weightMatchEpsilon {
			return nil, &contracts.ContractViolation{
				Pillar:  r.Name,
				Field:   "weight",
				Message: fmt.Sprintf("nominal weight %.4f does not match calibration %s (%.4f)", r.Weight, cal.Version, nominal),
			}
		}

		// same thresholds for pillar and aggregate bias; failed scores carry no signal
		if r.State != contracts.StateFailed {
			if want := cal.Thresholds.Classify(r.Score); r.Bias != want {
				return nil, &contracts.ContractViolation{
					Pillar:  r.Name,
					Field:   "bias",
					Message: fmt.Sprintf("%s does not match score %.2f under calibration %s (want %s)", r.Bias, r.Score, cal.Version, want),
				}
			}
		}
	}

	var seen [contracts.PillarCount]int
	for _, r := range in {
		seen[r.Name.Index()]++
	}

	incomplete := &contracts.IncompleteInput{Count: len(in)}
	for i, p := range contracts.AllPillars() {
		switch {
		case seen[i] == 0:
			incomplete.Missing = append(incomplete.Missing, p)
		case seen[i] > 1:
			incomplete.Duplicates = append(incomplete.Duplicates, p)
		}
	}
	if len(in) != contracts.PillarCount || len(incomplete.Missing) > 0 || len(incomplete.Duplicates) > 0 {
		return nil, incomplete
	}

	out := make([]contracts.PillarResult, len(in))
	for i, r := range in {
		out[i] = r.Clone()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name.Index() < out[j].Name.Index() })

	return out, nil
}

// renormalize returns effective weights for all six pillars (failed → 0)
// and the nominal weight mass that survived.
func renormalize(results []contracts.PillarResult) (map[contracts.PillarName]float64, float64) {
	total := 0.0
	for _, r := range results {
		if r.State != contracts.StateFailed {
			total += r.Weight
		}
	}

	effective := make(map[contracts.PillarName]float64, contracts.PillarCount)
	for _, r := range results {
		if r.State == contracts.StateFailed || total == 0 {
			effective[r.Name] = 0
			continue
		}
		effective[r.Name] = r.Weight / total
	}

	return effective, total
}

// clampScore absorbs floating error at the range edges (e.g. 100.00000000000001)
func clampScore(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}
