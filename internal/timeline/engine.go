package timeline

import (
	"context"
	"fmt"
	"math"
	"slices"

	"github.com/wonny/aegis/fusion/internal/contracts"
)

// DefaultTrendEpsilon is the slope magnitude (conviction points per entry)
// below which the trend is STABLE
const DefaultTrendEpsilon = 0.1

// Engine derives conviction statistics over a window of decisions.
// Stateless; safe for concurrent use.
type Engine struct {
	epsilon float64
}

// NewEngine creates a timeline engine; non-positive epsilon falls back to the default
func NewEngine(epsilon float64) *Engine {
	if epsilon <= 0 {
		epsilon = DefaultTrendEpsilon
	}
	return &Engine{epsilon: epsilon}
}

// Timeline computes statistics over history (oldest → newest).
// Empty and single-point windows are defined results, never errors.
func (e *Engine) Timeline(history []*contracts.Decision) *contracts.ConvictionTimeline {
	tl := &contracts.ConvictionTimeline{
		Points:          make([]contracts.TimelinePoint, 0, len(history)),
		BiasConsistency: 1.0,
		ConvictionTrend: contracts.TrendStable,
	}

	scores := make([]float64, 0, len(history))
	biases := make([]contracts.Bias, 0, len(history))
	for _, d := range history {
		if d == nil {
			continue
		}
		if tl.Symbol == "" {
			tl.Symbol = d.Symbol
		}
		tl.Points = append(tl.Points, contracts.TimelinePoint{
			Timestamp:       d.AnalysisTimestamp,
			ConvictionScore: d.ConvictionScore,
			Bias:            d.DirectionalBias,
			ActivePillars:   d.Quality.ActivePillars,
		})
		scores = append(scores, d.ConvictionScore)
		biases = append(biases, d.DirectionalBias)
	}

	if len(scores) == 0 {
		return tl
	}

	tl.AverageConviction = mean(scores)
	tl.ConvictionVolatility = stddev(scores, tl.AverageConviction)
	tl.BiasConsistency = modalFraction(biases)
	tl.ConvictionTrend = e.classifyTrend(slope(scores))
	tl.RecentBias, tl.BiasStreakCount = trailingStreak(biases)

	sorted := slices.Clone(scores)
	slices.Sort(sorted)
	tl.Percentiles = contracts.Percentiles{
		P25: percentile(sorted, 25),
		P50: percentile(sorted, 50),
		P75: percentile(sorted, 75),
	}

	return tl
}

// ForSymbol loads a ledger window and computes its timeline
func (e *Engine) ForSymbol(ctx context.Context, ledger contracts.DecisionLedger, symbol string, filter contracts.HistoryFilter) (*contracts.ConvictionTimeline, error) {
	history, err := ledger.History(ctx, symbol, filter)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	tl := e.Timeline(history)
	tl.Symbol = symbol
	return tl, nil
}

func (e *Engine) classifyTrend(s float64) contracts.Trend {
	switch {
	case s > e.epsilon:
		return contracts.TrendIncreasing
	case s < -e.epsilon:
		return contracts.TrendDecreasing
	default:
		return contracts.TrendStable
	}
}

func mean(xs []float64) float64 {
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// stddev population standard deviation
func stddev(xs []float64, mu float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	ss := 0.0
	for _, x := range xs {
		ss += (x - mu) * (x - mu)
	}
	return math.Sqrt(ss / float64(len(xs)))
}

// modalFraction share of entries with the most common bias.
// Ties resolve to the earlier bias in declaration order (fraction is the same either way).
func modalFraction(biases []contracts.Bias) float64 {
	counts := make(map[contracts.Bias]int, 4)
	for _, b := range biases {
		counts[b]++
	}

	best := 0
	for _, b := range contracts.AllBiases() {
		if counts[b] > best {
			best = counts[b]
		}
	}
	return float64(best) / float64(len(biases))
}

// slope least-squares slope of xs against its index 0..n-1
func slope(xs []float64) float64 {
	n := float64(len(xs))
	if n < 2 {
		return 0
	}

	meanX := (n - 1) / 2
	meanY := mean(xs)

	var num, den float64
	for i, y := range xs {
		dx := float64(i) - meanX
		num += dx * (y - meanY)
		den += dx * dx
	}
	return num / den
}

// trailingStreak returns the latest bias and how many entries in a row end with it
func trailingStreak(biases []contracts.Bias) (contracts.Bias, int) {
	last := biases[len(biases)-1]
	count := 0
	for i := len(biases) - 1; i >= 0 && biases[i] == last; i-- {
		count++
	}
	return last, count
}

// percentile linear interpolation on a sorted slice, rank = p/100·(n−1)
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}

	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}
