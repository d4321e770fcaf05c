package jobs

import (
	"context"
	"errors"

	"github.com/wonny/aegis/fusion/internal/contracts"
	"github.com/wonny/aegis/fusion/internal/drift"
	"github.com/wonny/aegis/fusion/internal/timeline"
	"github.com/wonny/aegis/fusion/pkg/logger"
	"github.com/wonny/aegis/fusion/pkg/metrics"
)

// LedgerReportJob logs timeline and drift statistics per symbol
type LedgerReportJob struct {
	ledger   contracts.DecisionLedger
	drift    *drift.Engine
	timeline *timeline.Engine
	symbols  []string
	window   int
	metrics  *metrics.Recorder
	logger   *logger.Logger
}

// NewLedgerReportJob creates a report over the most recent window decisions per symbol
func NewLedgerReportJob(ledger contracts.DecisionLedger, driftEngine *drift.Engine, timelineEngine *timeline.Engine, symbols []string, window int, recorder *metrics.Recorder, log *logger.Logger) *LedgerReportJob {
	return &LedgerReportJob{
		ledger:   ledger,
		drift:    driftEngine,
		timeline: timelineEngine,
		symbols:  symbols,
		window:   window,
		metrics:  recorder,
		logger:   log,
	}
}

// Name returns the job name
func (j *LedgerReportJob) Name() string {
	return "ledger_report"
}

// Schedule returns the cron schedule (every hour)
func (j *LedgerReportJob) Schedule() string {
	return "0 0 * * * *"
}

// Run executes the report
func (j *LedgerReportJob) Run(ctx context.Context) error {
	for _, symbol := range j.symbols {
		tl, err := j.timeline.ForSymbol(ctx, j.ledger, symbol, contracts.HistoryFilter{Limit: j.window})
		if err != nil {
			return err
		}

		fields := map[string]interface{}{
			"symbol":      symbol,
			"points":      len(tl.Points),
			"average":     tl.AverageConviction,
			"volatility":  tl.ConvictionVolatility,
			"consistency": tl.BiasConsistency,
			"trend":       tl.ConvictionTrend,
			"recent_bias": tl.RecentBias,
			"streak":      tl.BiasStreakCount,
		}

		m, err := j.drift.Latest(ctx, j.ledger, symbol)
		switch {
		case errors.Is(err, contracts.ErrInsufficientHistory):
		case err != nil:
			return err
		default:
			j.metrics.RecordDrift(string(m.Classification))
			fields["drift"] = m.TotalDriftScore
			fields["drift_class"] = m.Classification
			fields["max_drift_pillar"] = m.MaxDriftPillar
		}

		j.logger.WithFields(fields).Info("Ledger report")
	}
	return nil
}
