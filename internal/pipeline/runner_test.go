package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis/fusion/internal/calibration"
	"github.com/wonny/aegis/fusion/internal/contracts"
	"github.com/wonny/aegis/fusion/internal/fusion"
	"github.com/wonny/aegis/fusion/internal/ledger"
	"github.com/wonny/aegis/fusion/pkg/config"
	"github.com/wonny/aegis/fusion/pkg/httputil"
	"github.com/wonny/aegis/fusion/pkg/logger"
	"github.com/wonny/aegis/fusion/pkg/metrics"
)

var now = time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)

// funcEvaluator adapts a function to contracts.PillarEvaluator
type funcEvaluator struct {
	pillar contracts.PillarName
	fn     func(ctx context.Context, s *contracts.MarketSnapshot) (contracts.PillarResult, error)
}

func (f funcEvaluator) Pillar() contracts.PillarName { return f.pillar }

func (f funcEvaluator) Evaluate(ctx context.Context, s *contracts.MarketSnapshot) (contracts.PillarResult, error) {
	return f.fn(ctx, s)
}

func scoring(p contracts.PillarName, score float64) funcEvaluator {
	cal := calibration.Default().Calibration()
	return funcEvaluator{pillar: p, fn: func(context.Context, *contracts.MarketSnapshot) (contracts.PillarResult, error) {
		return contracts.PillarResult{
			Name:  p,
			Score: score,
			Bias:  cal.Thresholds.Classify(score),
			State: contracts.StateActive,
		}, nil
	}}
}

func newRunner(t *testing.T, l contracts.DecisionLedger, evaluators ...contracts.PillarEvaluator) *Runner {
	t.Helper()
	r, err := NewRunner(fusion.NewAggregator(zerolog.Nop()), l, evaluators, Options{
		PillarTimeout: 100 * time.Millisecond,
		Metrics:       metrics.New(),
		Clock:         func() time.Time { return now },
	}, zerolog.Nop())
	require.NoError(t, err)
	return r
}

func TestRunner_WorkedExample(t *testing.T) {
	ctx := context.Background()
	l := ledger.NewMemoryLedger(zerolog.Nop())

	r := newRunner(t, l,
		scoring(contracts.PillarTrend, 60),
		scoring(contracts.PillarMomentum, 80),
		funcEvaluator{pillar: contracts.PillarVolatility, fn: func(context.Context, *contracts.MarketSnapshot) (contracts.PillarResult, error) {
			return contracts.PillarResult{}, errors.New("feed down")
		}},
		scoring(contracts.PillarLiquidity, 70),
		scoring(contracts.PillarSentiment, 40),
		scoring(contracts.PillarRegime, 90),
	)

	snap := &contracts.MarketSnapshot{Symbol: "AAPL", AsOf: now.Add(-90 * time.Second)}
	d, err := r.Evaluate(ctx, calibration.Default().Calibration(), snap)
	require.NoError(t, err)

	assert.InDelta(t, 70.0, d.ConvictionScore, 0.2)
	assert.Equal(t, contracts.BiasBullish, d.DirectionalBias)
	assert.Equal(t, []contracts.PillarName{contracts.PillarVolatility}, d.Quality.FailedPillars)
	require.NotNil(t, d.Quality.DataAgeSeconds)
	assert.Equal(t, uint64(90), *d.Quality.DataAgeSeconds)
	assert.Equal(t, now, d.AnalysisTimestamp)

	latest, err := l.Latest(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, d.DecisionID, latest.DecisionID)
}

func TestRunner_FailureModesBecomeFailedPillars(t *testing.T) {
	r := newRunner(t, nil,
		funcEvaluator{pillar: contracts.PillarTrend, fn: func(ctx context.Context, _ *contracts.MarketSnapshot) (contracts.PillarResult, error) {
			<-ctx.Done()
			return contracts.PillarResult{}, ctx.Err()
		}},
		funcEvaluator{pillar: contracts.PillarMomentum, fn: func(context.Context, *contracts.MarketSnapshot) (contracts.PillarResult, error) {
			// ignores its context entirely
			time.Sleep(time.Second)
			return contracts.PillarResult{}, nil
		}},
		funcEvaluator{pillar: contracts.PillarVolatility, fn: func(context.Context, *contracts.MarketSnapshot) (contracts.PillarResult, error) {
			panic("boom")
		}},
		scoring(contracts.PillarLiquidity, 70),
		NewPlaceholderEvaluator(contracts.PillarSentiment),
		// regime has no evaluator
	)

	start := time.Now()
	results := r.Collect(context.Background(), calibration.Default().Calibration(), &contracts.MarketSnapshot{Symbol: "AAPL"})
	assert.Less(t, time.Since(start), 900*time.Millisecond, "slow evaluator must not hold up the cycle")

	require.Len(t, results, contracts.PillarCount)
	states := map[contracts.PillarName]contracts.PillarState{}
	for i, res := range results {
		assert.Equal(t, contracts.AllPillars()[i], res.Name)
		assert.NoError(t, res.Validate())
		states[res.Name] = res.State
	}
	assert.Equal(t, map[contracts.PillarName]contracts.PillarState{
		contracts.PillarTrend:      contracts.StateFailed,
		contracts.PillarMomentum:   contracts.StateFailed,
		contracts.PillarVolatility: contracts.StateFailed,
		contracts.PillarLiquidity:  contracts.StateActive,
		contracts.PillarSentiment:  contracts.StatePlaceholder,
		contracts.PillarRegime:     contracts.StateFailed,
	}, states)
	assert.Equal(t, 0.10, results[contracts.PillarLiquidity.Index()].Weight, "weight stamped from calibration")
}

func TestRunner_ContractViolationRejectsCycle(t *testing.T) {
	l := ledger.NewMemoryLedger(zerolog.Nop())
	evaluators := BuildEvaluators(nil, nil)
	evaluators[0] = funcEvaluator{pillar: contracts.PillarTrend, fn: func(context.Context, *contracts.MarketSnapshot) (contracts.PillarResult, error) {
		return contracts.PillarResult{Name: contracts.PillarTrend, Score: 150, Bias: contracts.BiasBullish, State: contracts.StateActive}, nil
	}}
	r := newRunner(t, l, evaluators...)

	_, err := r.Evaluate(context.Background(), calibration.Default().Calibration(), &contracts.MarketSnapshot{Symbol: "AAPL"})
	assert.True(t, errors.Is(err, contracts.ErrContractViolation))

	latest, err := l.Latest(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Nil(t, latest, "rejected cycles are not recorded")
}

func TestRunner_RequiresSymbol(t *testing.T) {
	r := newRunner(t, nil)
	_, err := r.Evaluate(context.Background(), calibration.Default().Calibration(), &contracts.MarketSnapshot{})
	assert.True(t, errors.Is(err, contracts.ErrContractViolation))
}

func TestRunner_AllPlaceholders(t *testing.T) {
	r := newRunner(t, nil, BuildEvaluators(map[string]string{}, nil)...)

	d, err := r.Evaluate(context.Background(), calibration.Default().Calibration(), &contracts.MarketSnapshot{Symbol: "AAPL"})
	require.NoError(t, err)

	assert.Equal(t, 50.0, d.ConvictionScore)
	assert.Equal(t, contracts.BiasNeutral, d.DirectionalBias)
	assert.Equal(t, contracts.PillarCount, d.Quality.PlaceholderPillars)
	assert.False(t, d.IsExecutionReady)
	assert.Nil(t, d.Quality.DataAgeSeconds)
}

func TestRunner_EvaluateSymbolUsesProvider(t *testing.T) {
	var seen *contracts.MarketSnapshot
	probe := funcEvaluator{pillar: contracts.PillarTrend, fn: func(_ context.Context, s *contracts.MarketSnapshot) (contracts.PillarResult, error) {
		seen = s
		return contracts.PillarResult{Name: contracts.PillarTrend, Score: 50, Bias: contracts.BiasNeutral, State: contracts.StateActive}, nil
	}}

	snaps := NewStaticSnapshots(&contracts.MarketSnapshot{Symbol: "AAPL", Fields: map[string]float64{"close": 190}})
	r, err := NewRunner(fusion.NewAggregator(zerolog.Nop()), nil, []contracts.PillarEvaluator{probe}, Options{Snapshots: snaps}, zerolog.Nop())
	require.NoError(t, err)

	_, err = r.EvaluateSymbol(context.Background(), calibration.Default().Calibration(), "AAPL")
	require.NoError(t, err)
	require.NotNil(t, seen)
	assert.Equal(t, 190.0, seen.Fields["close"])

	// unknown symbol: evaluators still run on an empty snapshot
	d, err := r.EvaluateSymbol(context.Background(), calibration.Default().Calibration(), "MSFT")
	require.NoError(t, err)
	assert.Equal(t, "MSFT", d.Symbol)
}

func TestNewRunner_RejectsDuplicateEvaluators(t *testing.T) {
	_, err := NewRunner(fusion.NewAggregator(zerolog.Nop()), nil, []contracts.PillarEvaluator{
		NewPlaceholderEvaluator(contracts.PillarTrend),
		NewPlaceholderEvaluator(contracts.PillarTrend),
	}, Options{}, zerolog.Nop())
	assert.Error(t, err)

	_, err = NewRunner(fusion.NewAggregator(zerolog.Nop()), nil, []contracts.PillarEvaluator{
		NewPlaceholderEvaluator("orderflow"),
	}, Options{}, zerolog.Nop())
	assert.Error(t, err)
}

func TestRemoteEvaluator(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req RemoteRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, contracts.PillarMomentum, req.Pillar)
		assert.Equal(t, "AAPL", req.Snapshot.Symbol)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"score":72.5,"bias":"BULLISH","state":"ACTIVE","metrics":{"rsi":61}}`))
	}))
	defer server.Close()

	client := httputil.New(&config.Config{}, logger.Nop()).DisableRetry()
	e := NewRemoteEvaluator(contracts.PillarMomentum, server.URL, client)

	res, err := e.Evaluate(context.Background(), &contracts.MarketSnapshot{Symbol: "AAPL"})
	require.NoError(t, err)
	assert.Equal(t, contracts.PillarMomentum, res.Name)
	assert.Equal(t, 72.5, res.Score)
	assert.Equal(t, 61.0, res.Metrics["rsi"])
}

func TestRemoteEvaluator_ServerErrorIsFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := httputil.New(&config.Config{}, logger.Nop()).DisableRetry()
	evaluators := BuildEvaluators(map[string]string{"regime": server.URL}, client)
	require.IsType(t, &RemoteEvaluator{}, evaluators[contracts.PillarRegime.Index()])
	require.IsType(t, &PlaceholderEvaluator{}, evaluators[contracts.PillarTrend.Index()])

	r := newRunner(t, nil, evaluators...)
	results := r.Collect(context.Background(), calibration.Default().Calibration(), &contracts.MarketSnapshot{Symbol: "AAPL"})
	assert.Equal(t, contracts.StateFailed, results[contracts.PillarRegime.Index()].State)
}

func TestLoadSnapshotFile(t *testing.T) {
	path := t.TempDir() + "/snapshots.json"
	require.NoError(t, writeFile(path, `[{"symbol":"AAPL","as_of":"2026-03-02T14:00:00Z","fields":{"close":190.5}}]`))

	snaps, err := LoadSnapshotFile(path)
	require.NoError(t, err)

	s, err := snaps.Snapshot(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 190.5, s.Fields["close"])

	_, err = snaps.Snapshot(context.Background(), "MSFT")
	assert.Error(t, err)
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}

func TestRunner_Submit(t *testing.T) {
	ctx := context.Background()
	l := ledger.NewMemoryLedger(zerolog.Nop())
	r := newRunner(t, l)
	cal := calibration.Default().Calibration()

	results := make([]contracts.PillarResult, 0, contracts.PillarCount)
	for _, p := range contracts.AllPillars() {
		results = append(results, contracts.PillarResult{
			Name:   p,
			Score:  30,
			Bias:   contracts.BiasBearish,
			Weight: cal.Weights.Of(p),
			State:  contracts.StateActive,
		})
	}

	t.Run("zero timestamp means now", func(t *testing.T) {
		d, err := r.Submit(ctx, cal, fusion.Request{Symbol: "AAPL", Results: results})
		require.NoError(t, err)
		assert.Equal(t, now, d.AnalysisTimestamp)
		assert.Equal(t, contracts.BiasBearish, d.DirectionalBias)
		assert.InDelta(t, 30.0, d.ConvictionScore, 1e-9)

		latest, err := l.Latest(ctx, "AAPL")
		require.NoError(t, err)
		assert.Equal(t, d.DecisionID, latest.DecisionID)
	})

	t.Run("weight mismatch is rejected before the ledger", func(t *testing.T) {
		bad := append([]contracts.PillarResult(nil), results...)
		bad[0].Weight = 0.5

		_, err := r.Submit(ctx, cal, fusion.Request{Symbol: "MSFT", Results: bad})
		require.Error(t, err)
		assert.ErrorIs(t, err, contracts.ErrContractViolation)

		latest, err := l.Latest(ctx, "MSFT")
		require.NoError(t, err)
		assert.Nil(t, latest)
	})
}
