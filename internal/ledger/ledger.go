// Package ledger stores decisions append-only per symbol.
// A newer decision for the same symbol marks the previous latest superseded;
// nothing else about a stored decision ever changes.
package ledger

import (
	"fmt"

	"github.com/wonny/aegis/fusion/internal/contracts"
)

// validateForAppend checks what every backend requires before storing
func validateForAppend(d *contracts.Decision) error {
	switch {
	case d == nil:
		return fmt.Errorf("nil decision: %w", contracts.ErrInvalidDecision)
	case d.DecisionID == "":
		return fmt.Errorf("decision_id is required: %w", contracts.ErrInvalidDecision)
	case d.Symbol == "":
		return fmt.Errorf("symbol is required: %w", contracts.ErrInvalidDecision)
	case d.AnalysisTimestamp.IsZero():
		return fmt.Errorf("analysis_timestamp is required: %w", contracts.ErrInvalidDecision)
	case d.IsSuperseded:
		return fmt.Errorf("decision %s is already superseded: %w", d.DecisionID, contracts.ErrInvalidDecision)
	}
	return nil
}

// applyFilter keeps entries inside since/until, then the most recent Limit of them.
// entries must be oldest → newest.
func applyFilter(entries []*contracts.Decision, filter contracts.HistoryFilter) []*contracts.Decision {
	out := make([]*contracts.Decision, 0, len(entries))
	for _, d := range entries {
		if filter.Matches(d.AnalysisTimestamp) {
			out = append(out, d)
		}
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[len(out)-filter.Limit:]
	}
	return out
}

// computeStatistics summarizes a history window
func computeStatistics(symbol string, history []*contracts.Decision) *contracts.LedgerStatistics {
	stats := &contracts.LedgerStatistics{
		Symbol:           symbol,
		Count:            len(history),
		BiasDistribution: make(map[contracts.Bias]int),
	}
	if len(history) == 0 {
		return stats
	}

	sum := 0.0
	stats.ConvictionRange = contracts.ConvictionRange{
		Min: history[0].ConvictionScore,
		Max: history[0].ConvictionScore,
	}
	for _, d := range history {
		sum += d.ConvictionScore
		stats.BiasDistribution[d.DirectionalBias]++
		stats.ConvictionRange.Min = min(stats.ConvictionRange.Min, d.ConvictionScore)
		stats.ConvictionRange.Max = max(stats.ConvictionRange.Max, d.ConvictionScore)
	}
	stats.AverageConviction = sum / float64(len(history))

	return stats
}
