package ledger

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis/fusion/internal/contracts"
	"github.com/wonny/aegis/fusion/pkg/config"
	"github.com/wonny/aegis/fusion/pkg/database"
)

func TestHistoryQuery(t *testing.T) {
	since := t0
	until := t0.Add(time.Hour)

	tests := []struct {
		name     string
		filter   contracts.HistoryFilter
		args     int
		contains []string
	}{
		{"unbounded", contracts.HistoryFilter{}, 1, []string{"symbol = $1", "ORDER BY analysis_timestamp ASC"}},
		{"since", contracts.HistoryFilter{Since: &since}, 2, []string{"analysis_timestamp >= $2"}},
		{"range", contracts.HistoryFilter{Since: &since, Until: &until}, 3, []string{"analysis_timestamp <= $3"}},
		{"limit", contracts.HistoryFilter{Until: &until, Limit: 5}, 3, []string{"analysis_timestamp <= $2", "DESC, seq DESC LIMIT $3"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query, args := historyQuery("AAPL", tt.filter)
			assert.Len(t, args, tt.args)
			assert.Equal(t, "AAPL", args[0])
			for _, s := range tt.contains {
				assert.Contains(t, query, s)
			}
		})
	}
}

// Integration: requires DATABASE_URL
func TestPostgresLedger(t *testing.T) {
	if os.Getenv("DATABASE_URL") == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	cfg, err := config.Load()
	require.NoError(t, err)
	db, err := database.New(context.Background(), cfg)
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	l := NewPostgresLedger(db.Pool, zerolog.Nop())
	require.NoError(t, l.EnsureSchema(ctx))

	symbol := fmt.Sprintf("TEST%d", time.Now().UnixNano())
	t.Cleanup(func() {
		_, _ = db.Pool.Exec(context.Background(), `DELETE FROM fusion.decisions WHERE symbol = $1`, symbol)
	})

	d1 := decision(symbol, 1, 60)
	d2 := decision(symbol, 2, 70)
	require.NoError(t, l.Append(ctx, d1))
	require.NoError(t, l.Append(ctx, d2))

	history, err := l.History(ctx, symbol, contracts.HistoryFilter{})
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.True(t, history[0].IsSuperseded)
	assert.False(t, history[1].IsSuperseded)
	assert.Equal(t, d1.PillarResults, history[0].PillarResults)

	latest, err := l.Latest(ctx, symbol)
	require.NoError(t, err)
	assert.Equal(t, d2.DecisionID, latest.DecisionID)

	assert.True(t, errors.Is(l.Append(ctx, d2), contracts.ErrDuplicateDecision))
	old := decision(symbol, 0, 50)
	assert.True(t, errors.Is(l.Append(ctx, old), contracts.ErrOutOfOrder))

	limited, err := l.History(ctx, symbol, contracts.HistoryFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, d2.DecisionID, limited[0].DecisionID)

	stats, err := l.Statistics(ctx, symbol, contracts.HistoryFilter{})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Count)
}
