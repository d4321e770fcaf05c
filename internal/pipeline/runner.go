package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/wonny/aegis/fusion/internal/calibration"
	"github.com/wonny/aegis/fusion/internal/contracts"
	"github.com/wonny/aegis/fusion/internal/fusion"
	"github.com/wonny/aegis/fusion/pkg/metrics"
)

// DefaultPillarTimeout bounds a single evaluator call
const DefaultPillarTimeout = 10 * time.Second

// Runner orchestrates one evaluation cycle: six evaluators in parallel on one
// snapshot, aggregation, then append to the ledger.
// Evaluator errors, timeouts and panics become FAILED results; they never
// abort the cycle.
// ⭐ SSOT: 평가 → 집계 → 원장 흐름은 여기서만
type Runner struct {
	evaluators map[contracts.PillarName]contracts.PillarEvaluator
	aggregator *fusion.Aggregator
	ledger     contracts.DecisionLedger
	snapshots  contracts.SnapshotProvider
	timeout    time.Duration
	metrics    *metrics.Recorder
	now        func() time.Time
	log        zerolog.Logger
}

// Options tunes a Runner. Zero values pick defaults.
type Options struct {
	PillarTimeout time.Duration
	Snapshots     contracts.SnapshotProvider
	Metrics       *metrics.Recorder
	Clock         func() time.Time
}

// NewRunner wires evaluators (at most one per pillar) to the aggregator and ledger.
// ledger may be nil for dry runs.
func NewRunner(agg *fusion.Aggregator, ledger contracts.DecisionLedger, evaluators []contracts.PillarEvaluator, opts Options, log zerolog.Logger) (*Runner, error) {
	byPillar := make(map[contracts.PillarName]contracts.PillarEvaluator, len(evaluators))
	for _, e := range evaluators {
		p := e.Pillar()
		if !p.IsValid() {
			return nil, fmt.Errorf("evaluator for unknown pillar %q", p)
		}
		if _, dup := byPillar[p]; dup {
			return nil, fmt.Errorf("duplicate evaluator for pillar %s", p)
		}
		byPillar[p] = e
	}

	if opts.PillarTimeout <= 0 {
		opts.PillarTimeout = DefaultPillarTimeout
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	return &Runner{
		evaluators: byPillar,
		aggregator: agg,
		ledger:     ledger,
		snapshots:  opts.Snapshots,
		timeout:    opts.PillarTimeout,
		metrics:    opts.Metrics,
		now:        opts.Clock,
		log:        log.With().Str("component", "pipeline.runner").Logger(),
	}, nil
}

// Collect runs every pillar evaluator concurrently and returns six results in canonical order
func (r *Runner) Collect(ctx context.Context, cal calibration.Calibration, snapshot *contracts.MarketSnapshot) []contracts.PillarResult {
	pillars := contracts.AllPillars()
	results := make([]contracts.PillarResult, len(pillars))

	var g errgroup.Group
	for i, p := range pillars {
		i, p := i, p
		g.Go(func() error {
			results[i] = r.evaluateOne(ctx, cal, p, snapshot)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// Evaluate collects, aggregates and appends one decision for snapshot.Symbol
func (r *Runner) Evaluate(ctx context.Context, cal calibration.Calibration, snapshot *contracts.MarketSnapshot) (*contracts.Decision, error) {
	if snapshot == nil || snapshot.Symbol == "" {
		return nil, &contracts.ContractViolation{Field: "symbol", Message: "snapshot symbol is required"}
	}

	results := r.Collect(ctx, cal, snapshot)

	now := r.now().UTC()
	var dataAge *uint64
	if !snapshot.AsOf.IsZero() {
		age := snapshot.AgeSeconds(now)
		dataAge = &age
	}

	return r.Submit(ctx, cal, fusion.Request{
		Symbol:         snapshot.Symbol,
		Timestamp:      now,
		Results:        results,
		DataAgeSeconds: dataAge,
	})
}

// Submit aggregates externally computed pillar results and appends the decision.
// A zero Timestamp means now.
func (r *Runner) Submit(ctx context.Context, cal calibration.Calibration, req fusion.Request) (*contracts.Decision, error) {
	if req.Timestamp.IsZero() {
		req.Timestamp = r.now().UTC()
	}

	d, err := r.aggregator.Aggregate(cal, req)
	if err != nil {
		r.metrics.RecordRejection(rejectionKind(err))
		return nil, fmt.Errorf("aggregate %s: %w", req.Symbol, err)
	}

	pillarStates := make(map[string]string, len(d.PillarResults))
	for _, pr := range d.PillarResults {
		pillarStates[string(pr.Name)] = string(pr.State)
	}
	r.metrics.RecordDecision(d.Symbol, string(d.DirectionalBias), d.IsExecutionReady, d.ConvictionScore, pillarStates)

	if r.ledger != nil {
		if err := r.ledger.Append(ctx, d); err != nil {
			return nil, fmt.Errorf("append %s: %w", d.DecisionID, err)
		}
	}

	r.log.Info().
		Str("symbol", d.Symbol).
		Str("decision_id", d.DecisionID).
		Str("bias", string(d.DirectionalBias)).
		Float64("conviction", d.ConvictionScore).
		Bool("execution_ready", d.IsExecutionReady).
		Int("failed", len(d.Quality.FailedPillars)).
		Msg("decision recorded")

	return d, nil
}

// EvaluateSymbol fetches a snapshot from the configured provider, then evaluates it
func (r *Runner) EvaluateSymbol(ctx context.Context, cal calibration.Calibration, symbol string) (*contracts.Decision, error) {
	snapshot := &contracts.MarketSnapshot{Symbol: symbol}
	if r.snapshots != nil {
		s, err := r.snapshots.Snapshot(ctx, symbol)
		if err != nil {
			// 스냅샷 실패도 필러 실패로 처리 (데이터 날조 금지)
			r.log.Warn().Err(err).Str("symbol", symbol).Msg("snapshot unavailable, evaluators get an empty snapshot")
		} else if s != nil {
			snapshot = s
		}
	}
	return r.Evaluate(ctx, cal, snapshot)
}

// evaluateOne runs a single evaluator under the per-pillar timeout
func (r *Runner) evaluateOne(ctx context.Context, cal calibration.Calibration, p contracts.PillarName, snapshot *contracts.MarketSnapshot) contracts.PillarResult {
	start := time.Now()
	result := r.callEvaluator(ctx, cal, p, snapshot)
	r.metrics.RecordEvaluation(string(p), string(result.State), time.Since(start).Seconds())
	return result
}

type outcome struct {
	result contracts.PillarResult
	err    error
}

func (r *Runner) callEvaluator(ctx context.Context, cal calibration.Calibration, p contracts.PillarName, snapshot *contracts.MarketSnapshot) contracts.PillarResult {
	e, ok := r.evaluators[p]
	if !ok {
		r.log.Warn().Str("pillar", string(p)).Msg("no evaluator configured")
		return failedResult(cal, p)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	// buffered: a late evaluator must not leak a blocked goroutine
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- outcome{err: fmt.Errorf("evaluator panic: %v", rec)}
			}
		}()
		res, err := e.Evaluate(ctx, snapshot)
		done <- outcome{result: res, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			r.log.Warn().Err(out.err).Str("pillar", string(p)).Msg("evaluator failed")
			return failedResult(cal, p)
		}
		res := out.result
		if res.Weight == 0 {
			res.Weight = cal.Weights.Of(p)
		}
		return res
	case <-ctx.Done():
		r.log.Warn().Err(ctx.Err()).Str("pillar", string(p)).Dur("timeout", r.timeout).Msg("evaluator timed out")
		return failedResult(cal, p)
	}
}

// failedResult is the explicit record of an unavailable pillar
func failedResult(cal calibration.Calibration, p contracts.PillarName) contracts.PillarResult {
	return contracts.PillarResult{
		Name:   p,
		Score:  contracts.NeutralScore,
		Bias:   contracts.BiasNeutral,
		Weight: cal.Weights.Of(p),
		State:  contracts.StateFailed,
	}
}

func rejectionKind(err error) string {
	switch {
	case errors.Is(err, contracts.ErrContractViolation):
		return "contract_violation"
	case errors.Is(err, contracts.ErrIncompleteInput):
		return "incomplete_input"
	default:
		return "other"
	}
}
