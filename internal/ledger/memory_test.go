package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis/fusion/internal/contracts"
)

func newMemory() *MemoryLedger {
	return NewMemoryLedger(zerolog.Nop()).WithClock(func() time.Time { return t0.Add(24 * time.Hour) })
}

func TestMemoryLedger_Supersession(t *testing.T) {
	ctx := context.Background()
	l := newMemory()

	d1 := decision("AAPL", 1, 60)
	d2 := decision("AAPL", 2, 70)
	original, err := json.Marshal(d1)
	require.NoError(t, err)

	require.NoError(t, l.Append(ctx, d1))
	require.NoError(t, l.Append(ctx, d2))

	history, err := l.History(ctx, "AAPL", contracts.HistoryFilter{})
	require.NoError(t, err)
	require.Len(t, history, 2)

	assert.Equal(t, d1.DecisionID, history[0].DecisionID)
	assert.Equal(t, d2.DecisionID, history[1].DecisionID)
	assert.True(t, history[0].IsSuperseded)
	assert.False(t, history[1].IsSuperseded)

	// everything except ledger-owned metadata is byte-identical
	stored := history[0].Clone()
	require.NotNil(t, stored.RecordedAt)
	stored.IsSuperseded = false
	stored.RecordedAt = nil
	got, err := json.Marshal(stored)
	require.NoError(t, err)
	assert.JSONEq(t, string(original), string(got))

	// caller's value is never touched
	assert.False(t, d1.IsSuperseded)
	assert.Nil(t, d1.RecordedAt)

	latest, err := l.Latest(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, d2.DecisionID, latest.DecisionID)
}

func TestMemoryLedger_LatestEmpty(t *testing.T) {
	latest, err := newMemory().Latest(context.Background(), "NONE")
	require.NoError(t, err)
	assert.Nil(t, latest)
}

func TestMemoryLedger_SymbolsAreIndependent(t *testing.T) {
	ctx := context.Background()
	l := newMemory()

	require.NoError(t, l.Append(ctx, decision("AAPL", 1, 60)))
	require.NoError(t, l.Append(ctx, decision("MSFT", 1, 40)))

	a, err := l.Latest(ctx, "AAPL")
	require.NoError(t, err)
	assert.False(t, a.IsSuperseded)
	assert.ElementsMatch(t, []string{"AAPL", "MSFT"}, l.Symbols())
}

func TestMemoryLedger_AppendRejects(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name  string
		setup func(l *MemoryLedger)
		input func() *contracts.Decision
		want  error
	}{
		{
			name:  "nil decision",
			input: func() *contracts.Decision { return nil },
			want:  contracts.ErrInvalidDecision,
		},
		{
			name: "empty symbol",
			input: func() *contracts.Decision {
				d := decision("AAPL", 1, 50)
				d.Symbol = ""
				return d
			},
			want: contracts.ErrInvalidDecision,
		},
		{
			name: "already superseded",
			input: func() *contracts.Decision {
				d := decision("AAPL", 1, 50)
				d.IsSuperseded = true
				return d
			},
			want: contracts.ErrInvalidDecision,
		},
		{
			name:  "duplicate id",
			setup: func(l *MemoryLedger) { _ = l.Append(ctx, decision("AAPL", 1, 50)) },
			input: func() *contracts.Decision {
				d := decision("AAPL", 1, 50)
				d.AnalysisTimestamp = d.AnalysisTimestamp.Add(time.Hour)
				return d
			},
			want: contracts.ErrDuplicateDecision,
		},
		{
			name:  "older than latest",
			setup: func(l *MemoryLedger) { _ = l.Append(ctx, decision("AAPL", 5, 50)) },
			input: func() *contracts.Decision { return decision("AAPL", 2, 50) },
			want:  contracts.ErrOutOfOrder,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newMemory()
			if tt.setup != nil {
				tt.setup(l)
			}

			err := l.Append(ctx, tt.input())
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestMemoryLedger_RejectedAppendLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	l := newMemory()

	require.NoError(t, l.Append(ctx, decision("AAPL", 5, 50)))
	require.Error(t, l.Append(ctx, decision("AAPL", 2, 50)))

	latest, err := l.Latest(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, "AAPL-005", latest.DecisionID)
	assert.False(t, latest.IsSuperseded)
}

func TestMemoryLedger_EqualTimestampAllowed(t *testing.T) {
	ctx := context.Background()
	l := newMemory()

	d1 := decision("AAPL", 1, 50)
	d2 := decision("AAPL", 1, 60)
	d2.DecisionID = "AAPL-001b"

	require.NoError(t, l.Append(ctx, d1))
	require.NoError(t, l.Append(ctx, d2))

	latest, err := l.Latest(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, "AAPL-001b", latest.DecisionID)
}

func TestMemoryLedger_HistoryFilter(t *testing.T) {
	ctx := context.Background()
	l := newMemory()
	for i := 1; i <= 5; i++ {
		require.NoError(t, l.Append(ctx, decision("AAPL", i, float64(40+i*5))))
	}

	since := t0.Add(2 * time.Hour)
	until := t0.Add(4 * time.Hour)

	tests := []struct {
		name   string
		filter contracts.HistoryFilter
		want   []string
	}{
		{"all", contracts.HistoryFilter{}, []string{"AAPL-001", "AAPL-002", "AAPL-003", "AAPL-004", "AAPL-005"}},
		{"limit keeps most recent", contracts.HistoryFilter{Limit: 2}, []string{"AAPL-004", "AAPL-005"}},
		{"limit larger than window", contracts.HistoryFilter{Limit: 10}, []string{"AAPL-001", "AAPL-002", "AAPL-003", "AAPL-004", "AAPL-005"}},
		{"since inclusive", contracts.HistoryFilter{Since: &since}, []string{"AAPL-002", "AAPL-003", "AAPL-004", "AAPL-005"}},
		{"until inclusive", contracts.HistoryFilter{Until: &until}, []string{"AAPL-001", "AAPL-002", "AAPL-003", "AAPL-004"}},
		{"range with limit", contracts.HistoryFilter{Since: &since, Until: &until, Limit: 2}, []string{"AAPL-003", "AAPL-004"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			history, err := l.History(ctx, "AAPL", tt.filter)
			require.NoError(t, err)

			ids := make([]string, len(history))
			for i, d := range history {
				ids[i] = d.DecisionID
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestMemoryLedger_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	l := newMemory()
	d := decision("AAPL", 1, 60)
	require.NoError(t, l.Append(ctx, d))

	// mutate the caller's value after append
	d.PillarResults[0].Metrics["raw"] = -1
	d.Warnings = append(d.Warnings, "mutated")

	got, err := l.Latest(ctx, "AAPL")
	require.NoError(t, err)
	got.ConvictionScore = 0
	got.EffectiveWeights[contracts.PillarTrend] = 0

	again, err := l.Latest(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 60.0, again.ConvictionScore)
	assert.Equal(t, 60.0, again.PillarResults[0].Metrics["raw"])
	assert.Equal(t, 0.30, again.EffectiveWeight(contracts.PillarTrend))
	assert.Empty(t, again.Warnings)
}

func TestMemoryLedger_Statistics(t *testing.T) {
	ctx := context.Background()
	l := newMemory()

	empty, err := l.Statistics(ctx, "AAPL", contracts.HistoryFilter{})
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Count)
	assert.NotNil(t, empty.BiasDistribution)

	for i, score := range []float64{30, 50, 70, 80} {
		require.NoError(t, l.Append(ctx, decision("AAPL", i+1, score)))
	}

	stats, err := l.Statistics(ctx, "AAPL", contracts.HistoryFilter{})
	require.NoError(t, err)
	assert.Equal(t, "AAPL", stats.Symbol)
	assert.Equal(t, 4, stats.Count)
	assert.InDelta(t, 57.5, stats.AverageConviction, 1e-9)
	assert.Equal(t, contracts.ConvictionRange{Min: 30, Max: 80}, stats.ConvictionRange)
	assert.Equal(t, map[contracts.Bias]int{
		contracts.BiasBearish: 1,
		contracts.BiasNeutral: 1,
		contracts.BiasBullish: 2,
	}, stats.BiasDistribution)

	windowed, err := l.Statistics(ctx, "AAPL", contracts.HistoryFilter{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, windowed.Count)
	assert.InDelta(t, 75.0, windowed.AverageConviction, 1e-9)
}

func TestMemoryLedger_ConcurrentAppends(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger(zerolog.Nop())

	const perSymbol = 50
	symbols := []string{"AAPL", "MSFT", "NVDA"}

	var wg sync.WaitGroup
	for _, s := range symbols {
		for i := 0; i < perSymbol; i++ {
			wg.Add(1)
			go func(s string, i int) {
				defer wg.Done()
				d := decision(s, 1, 50)
				d.DecisionID = fmt.Sprintf("%s-%d", s, i)
				_ = l.Append(ctx, d)
			}(s, i)
		}
	}

	// concurrent readers must always see exactly one un-superseded latest
	stop := make(chan struct{})
	readerErr := make(chan error, 1)
	go func() {
		for {
			select {
			case <-stop:
				readerErr <- nil
				return
			default:
			}
			history, err := l.History(ctx, "AAPL", contracts.HistoryFilter{})
			if err != nil {
				readerErr <- err
				return
			}
			if n := countLive(history); len(history) > 0 && n != 1 {
				readerErr <- fmt.Errorf("observed %d live entries", n)
				return
			}
		}
	}()

	wg.Wait()
	close(stop)
	require.NoError(t, <-readerErr)

	for _, s := range symbols {
		history, err := l.History(ctx, s, contracts.HistoryFilter{})
		require.NoError(t, err)
		assert.Len(t, history, perSymbol)
		assert.Equal(t, 1, countLive(history))
		assert.False(t, history[len(history)-1].IsSuperseded)
	}
}

func TestMemoryLedger_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	l := newMemory()
	assert.ErrorIs(t, l.Append(ctx, decision("AAPL", 1, 50)), context.Canceled)
	_, err := l.History(ctx, "AAPL", contracts.HistoryFilter{})
	assert.ErrorIs(t, err, context.Canceled)
}

func countLive(history []*contracts.Decision) int {
	n := 0
	for _, d := range history {
		if !d.IsSuperseded {
			n++
		}
	}
	return n
}
