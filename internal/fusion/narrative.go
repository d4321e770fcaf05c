package fusion

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/wonny/aegis/fusion/internal/contracts"
)

// driver is one pillar's pull away from neutral
type driver struct {
	pillar       contracts.PillarName
	score        float64
	contribution float64 // effective_weight * |score - 50|
}

// topDrivers returns up to n non-failed pillars ranked by contribution.
// Ties keep canonical pillar order.
func topDrivers(results []contracts.PillarResult, effective map[contracts.PillarName]float64, n int) []driver {
	var drivers []driver
	for _, r := range results {
		if r.State == contracts.StateFailed {
			continue
		}
		c := effective[r.Name] * math.Abs(r.Score-contracts.NeutralScore)
		if c <= 0 {
			continue
		}
		drivers = append(drivers, driver{pillar: r.Name, score: r.Score, contribution: c})
	}

	sort.SliceStable(drivers, func(i, j int) bool {
		return drivers[i].contribution > drivers[j].contribution
	})

	if len(drivers) > n {
		drivers = drivers[:n]
	}
	return drivers
}

// buildNarrative renders the fixed reasoning template
func buildNarrative(bias contracts.Bias, conviction float64, q contracts.AnalysisQuality, drivers []driver) string {
	if bias == contracts.BiasInvalid {
		return fmt.Sprintf("No directional conclusion: all %d pillars failed.", q.TotalPillars)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s bias at conviction %.1f (%d active, %d placeholder, %d failed of %d pillars).",
		bias, conviction, q.ActivePillars, q.PlaceholderPillars, len(q.FailedPillars), q.TotalPillars)

	if len(drivers) == 0 {
		b.WriteString(" No pillar deviates from neutral.")
		return b.String()
	}

	parts := make([]string, len(drivers))
	for i, d := range drivers {
		parts[i] = fmt.Sprintf("%s %.1f (contribution %.2f)", d.pillar, d.score, d.contribution)
	}
	fmt.Fprintf(&b, " Top drivers: %s.", strings.Join(parts, ", "))

	return b.String()
}
