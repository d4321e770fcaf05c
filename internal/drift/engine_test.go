package drift

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis/fusion/internal/calibration"
	"github.com/wonny/aegis/fusion/internal/contracts"
	"github.com/wonny/aegis/fusion/internal/fusion"
	"github.com/wonny/aegis/fusion/internal/ledger"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func newEngine() *Engine {
	return NewEngine(calibration.Default().Drift, zerolog.Nop())
}

func decide(t *testing.T, symbol string, at time.Time, scores [6]float64, failed ...contracts.PillarName) *contracts.Decision {
	t.Helper()
	cal := calibration.Default().Calibration()

	isFailed := map[contracts.PillarName]bool{}
	for _, p := range failed {
		isFailed[p] = true
	}

	results := make([]contracts.PillarResult, 0, contracts.PillarCount)
	for i, p := range contracts.AllPillars() {
		state := contracts.StateActive
		if isFailed[p] {
			state = contracts.StateFailed
		}
		results = append(results, contracts.PillarResult{
			Name:   p,
			Score:  scores[i],
			Bias:   cal.Thresholds.Classify(scores[i]),
			Weight: cal.Weights.Of(p),
			State:  state,
		})
	}

	d, err := fusion.NewAggregator(zerolog.Nop()).Aggregate(cal, fusion.Request{
		Symbol:    symbol,
		Timestamp: at,
		Results:   results,
	})
	require.NoError(t, err)
	return d
}

func TestDrift_DeltasAndTotals(t *testing.T) {
	prev := decide(t, "AAPL", t0, [6]float64{50, 50, 50, 50, 50, 50})
	cur := decide(t, "AAPL", t0.Add(time.Hour), [6]float64{70, 50, 50, 40, 50, 50})

	m, err := newEngine().Drift(prev, cur)
	require.NoError(t, err)

	assert.Equal(t, 20.0, m.ScoreDeltas[contracts.PillarTrend])
	assert.Equal(t, -10.0, m.ScoreDeltas[contracts.PillarLiquidity])
	assert.Equal(t, 0.0, m.ScoreDeltas[contracts.PillarRegime])
	assert.Len(t, m.ScoreDeltas, contracts.PillarCount)

	assert.Equal(t, map[contracts.PillarName]contracts.BiasChange{
		contracts.PillarTrend:     {From: contracts.BiasNeutral, To: contracts.BiasBullish},
		contracts.PillarLiquidity: {From: contracts.BiasNeutral, To: contracts.BiasBearish},
	}, m.BiasChanges)

	// 20*0.3 + 10*0.1
	assert.InDelta(t, 7.0, m.TotalDriftScore, 1e-9)
	assert.Equal(t, contracts.PillarTrend, m.MaxDriftPillar)
	assert.Equal(t, 20.0, m.MaxDriftMagnitude)
	assert.Equal(t, contracts.DriftStable, m.Classification)
	assert.Equal(t, 3600.0, m.TimeDeltaSeconds)
	assert.False(t, m.CalibrationChanged)
	assert.Equal(t, prev.DecisionID, m.PreviousDecisionID)
	assert.Equal(t, cur.DecisionID, m.CurrentDecisionID)
}

func TestDrift_UsesCurrentEffectiveWeights(t *testing.T) {
	prev := decide(t, "AAPL", t0, [6]float64{50, 50, 50, 50, 50, 50})
	cur := decide(t, "AAPL", t0.Add(time.Minute), [6]float64{90, 50, 50, 50, 50, 50}, contracts.PillarTrend)

	m, err := newEngine().Drift(prev, cur)
	require.NoError(t, err)

	// failed pillar has effective weight 0: delta recorded, no contribution
	assert.Equal(t, 40.0, m.ScoreDeltas[contracts.PillarTrend])
	assert.Equal(t, 0.0, m.TotalDriftScore)
	assert.Equal(t, contracts.PillarTrend, m.MaxDriftPillar)
}

func TestDrift_Symmetry(t *testing.T) {
	a := decide(t, "AAPL", t0, [6]float64{12, 80, 35, 66, 50, 91})
	b := decide(t, "AAPL", t0.Add(time.Hour), [6]float64{40, 20, 35, 70, 10, 55})

	ab, err := newEngine().Drift(a, b)
	require.NoError(t, err)
	ba, err := newEngine().Drift(b, a)
	require.NoError(t, err)

	for _, p := range contracts.AllPillars() {
		assert.Equal(t, ab.ScoreDeltas[p], -ba.ScoreDeltas[p], "pillar %s", p)
	}
	assert.Equal(t, ab.MaxDriftPillar, ba.MaxDriftPillar)
	assert.Equal(t, -ab.TimeDeltaSeconds, ba.TimeDeltaSeconds)
}

func TestDrift_NoChange(t *testing.T) {
	a := decide(t, "AAPL", t0, [6]float64{60, 60, 60, 60, 60, 60})
	b := decide(t, "AAPL", t0.Add(time.Hour), [6]float64{60, 60, 60, 60, 60, 60})

	m, err := newEngine().Drift(a, b)
	require.NoError(t, err)

	assert.Empty(t, m.MaxDriftPillar)
	assert.Empty(t, m.BiasChanges)
	assert.NotNil(t, m.BiasChanges)
	assert.Nil(t, m.AggregateBiasShift)
	assert.Equal(t, contracts.DriftStable, m.Classification)
}

func TestDrift_TieBreaksInCanonicalOrder(t *testing.T) {
	a := decide(t, "AAPL", t0, [6]float64{50, 50, 50, 50, 50, 50})
	b := decide(t, "AAPL", t0.Add(time.Hour), [6]float64{50, 50, 65, 50, 35, 50})

	m, err := newEngine().Drift(a, b)
	require.NoError(t, err)
	assert.Equal(t, contracts.PillarVolatility, m.MaxDriftPillar)
}

func TestDrift_SymbolMismatch(t *testing.T) {
	a := decide(t, "AAPL", t0, [6]float64{50, 50, 50, 50, 50, 50})
	b := decide(t, "MSFT", t0, [6]float64{50, 50, 50, 50, 50, 50})

	_, err := newEngine().Drift(a, b)

	var mismatch *contracts.SymbolMismatch
	require.True(t, errors.As(err, &mismatch))
	assert.Equal(t, "AAPL", mismatch.Previous)
	assert.Equal(t, "MSFT", mismatch.Current)
	assert.True(t, errors.Is(err, contracts.ErrSymbolMismatch))
}

func TestDrift_CalibrationChangedAndAggregateShift(t *testing.T) {
	a := decide(t, "AAPL", t0, [6]float64{20, 20, 20, 20, 20, 20})
	b := decide(t, "AAPL", t0.Add(time.Hour), [6]float64{90, 90, 90, 90, 90, 90})
	b.CalibrationVersion = "tuned-2.0"

	m, err := newEngine().Drift(a, b)
	require.NoError(t, err)

	assert.True(t, m.CalibrationChanged)
	require.NotNil(t, m.AggregateBiasShift)
	assert.Equal(t, contracts.BiasBearish, m.AggregateBiasShift.From)
	assert.Equal(t, contracts.BiasBullish, m.AggregateBiasShift.To)
	assert.InDelta(t, 70.0, m.TotalDriftScore, 1e-9)
	assert.Equal(t, contracts.DriftHigh, m.Classification)
}

func TestClassify(t *testing.T) {
	e := newEngine()

	tests := []struct {
		total float64
		want  contracts.DriftClass
	}{
		{0, contracts.DriftStable},
		{9.99, contracts.DriftStable},
		{10, contracts.DriftModerate},
		{24.99, contracts.DriftModerate},
		{25, contracts.DriftHigh},
		{100, contracts.DriftHigh},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, e.Classify(tt.total), "total=%v", tt.total)
	}

	custom := NewEngine(calibration.Drift{StableBelow: 1, ModerateBelow: 2}, zerolog.Nop())
	assert.Equal(t, contracts.DriftHigh, custom.Classify(5))
}

func TestLatest(t *testing.T) {
	ctx := context.Background()
	l := ledger.NewMemoryLedger(zerolog.Nop())
	e := newEngine()

	_, err := e.Latest(ctx, l, "AAPL")
	assert.True(t, errors.Is(err, contracts.ErrInsufficientHistory))

	require.NoError(t, l.Append(ctx, decide(t, "AAPL", t0, [6]float64{50, 50, 50, 50, 50, 50})))
	_, err = e.Latest(ctx, l, "AAPL")
	assert.True(t, errors.Is(err, contracts.ErrInsufficientHistory))

	second := decide(t, "AAPL", t0.Add(time.Hour), [6]float64{60, 50, 50, 50, 50, 50})
	third := decide(t, "AAPL", t0.Add(2*time.Hour), [6]float64{80, 50, 50, 50, 50, 50})
	require.NoError(t, l.Append(ctx, second))
	require.NoError(t, l.Append(ctx, third))

	m, err := e.Latest(ctx, l, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, second.DecisionID, m.PreviousDecisionID)
	assert.Equal(t, third.DecisionID, m.CurrentDecisionID)
	assert.Equal(t, 20.0, m.ScoreDeltas[contracts.PillarTrend])
}
