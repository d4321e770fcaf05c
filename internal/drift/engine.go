package drift

import (
	"context"
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/wonny/aegis/fusion/internal/calibration"
	"github.com/wonny/aegis/fusion/internal/contracts"
)

// Engine measures how much the evidence moved between two decisions.
// Stateless; safe for concurrent use.
type Engine struct {
	thresholds calibration.Drift
	log        zerolog.Logger
}

// NewEngine creates a drift engine with the given classification thresholds
func NewEngine(thresholds calibration.Drift, log zerolog.Logger) *Engine {
	return &Engine{
		thresholds: thresholds,
		log:        log.With().Str("component", "drift.engine").Logger(),
	}
}

// Thresholds returns the classification thresholds in force
func (e *Engine) Thresholds() calibration.Drift {
	return e.thresholds
}

// Drift compares previous → current for the same symbol
func (e *Engine) Drift(previous, current *contracts.Decision) (*contracts.DriftMeasurement, error) {
	if previous == nil || current == nil {
		return nil, fmt.Errorf("drift: %w", contracts.ErrInvalidDecision)
	}
	if previous.Symbol != current.Symbol {
		return nil, &contracts.SymbolMismatch{Previous: previous.Symbol, Current: current.Symbol}
	}

	m := &contracts.DriftMeasurement{
		Symbol:             current.Symbol,
		PreviousDecisionID: previous.DecisionID,
		CurrentDecisionID:  current.DecisionID,
		ScoreDeltas:        make(map[contracts.PillarName]float64, contracts.PillarCount),
		BiasChanges:        make(map[contracts.PillarName]contracts.BiasChange),
		TimeDeltaSeconds:   current.AnalysisTimestamp.Sub(previous.AnalysisTimestamp).Seconds(),
		CalibrationChanged: previous.CalibrationVersion != current.CalibrationVersion,
	}

	for _, p := range contracts.AllPillars() {
		prev, okPrev := previous.Pillar(p)
		cur, okCur := current.Pillar(p)
		if !okPrev || !okCur {
			return nil, fmt.Errorf("drift: %s missing from decision: %w", p, contracts.ErrInvalidDecision)
		}

		delta := cur.Score - prev.Score
		m.ScoreDeltas[p] = delta
		if prev.Bias != cur.Bias {
			m.BiasChanges[p] = contracts.BiasChange{From: prev.Bias, To: cur.Bias}
		}

		// 동점이면 정규 순서상 앞선 필러 유지 (strict >)
		magnitude := math.Abs(delta)
		if magnitude > m.MaxDriftMagnitude {
			m.MaxDriftMagnitude = magnitude
			m.MaxDriftPillar = p
		}

		m.TotalDriftScore += magnitude * current.EffectiveWeight(p)
	}

	if previous.DirectionalBias != current.DirectionalBias {
		m.AggregateBiasShift = &contracts.BiasChange{From: previous.DirectionalBias, To: current.DirectionalBias}
	}
	m.Classification = e.Classify(m.TotalDriftScore)

	return m, nil
}

// Classify maps a total drift score to STABLE / MODERATE / HIGH
func (e *Engine) Classify(total float64) contracts.DriftClass {
	switch {
	case total < e.thresholds.StableBelow:
		return contracts.DriftStable
	case total < e.thresholds.ModerateBelow:
		return contracts.DriftModerate
	default:
		return contracts.DriftHigh
	}
}

// Latest measures drift between the two most recent decisions for symbol
func (e *Engine) Latest(ctx context.Context, ledger contracts.DecisionLedger, symbol string) (*contracts.DriftMeasurement, error) {
	history, err := ledger.History(ctx, symbol, contracts.HistoryFilter{Limit: 2})
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	if len(history) < 2 {
		return nil, fmt.Errorf("drift for %s needs 2 decisions, have %d: %w",
			symbol, len(history), contracts.ErrInsufficientHistory)
	}

	m, err := e.Drift(history[0], history[1])
	if err != nil {
		return nil, err
	}

	e.log.Debug().
		Str("symbol", symbol).
		Float64("total", m.TotalDriftScore).
		Str("class", string(m.Classification)).
		Msg("drift measured")

	return m, nil
}
