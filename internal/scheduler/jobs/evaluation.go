package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/wonny/aegis/fusion/internal/calibration"
	"github.com/wonny/aegis/fusion/internal/contracts"
	"github.com/wonny/aegis/fusion/pkg/logger"
)

// Evaluator is the slice of pipeline.Runner the job needs
type Evaluator interface {
	EvaluateSymbol(ctx context.Context, cal calibration.Calibration, symbol string) (*contracts.Decision, error)
}

// EvaluationJob evaluates every configured symbol on a cron schedule
type EvaluationJob struct {
	runner      Evaluator
	calibration calibration.Calibration
	symbols     []string
	schedule    string
	logger      *logger.Logger
}

// NewEvaluationJob creates a new evaluation job
func NewEvaluationJob(runner Evaluator, cal calibration.Calibration, symbols []string, schedule string, log *logger.Logger) *EvaluationJob {
	return &EvaluationJob{
		runner:      runner,
		calibration: cal,
		symbols:     symbols,
		schedule:    schedule,
		logger:      log,
	}
}

// Name returns the job name
func (j *EvaluationJob) Name() string {
	return "decision_evaluation"
}

// Schedule returns the cron schedule
func (j *EvaluationJob) Schedule() string {
	return j.schedule
}

// MaxRetries is 0: a retry would re-append symbols that already succeeded.
// The next tick is the retry.
func (j *EvaluationJob) MaxRetries() int {
	return 0
}

// Run evaluates each symbol; one symbol failing does not stop the others
func (j *EvaluationJob) Run(ctx context.Context) error {
	if len(j.symbols) == 0 {
		j.logger.Warn("No symbols configured for evaluation")
		return nil
	}

	var errs []error
	counts := make(map[contracts.Bias]int)
	for _, symbol := range j.symbols {
		if err := ctx.Err(); err != nil {
			return err
		}

		d, err := j.runner.EvaluateSymbol(ctx, j.calibration, symbol)
		if err != nil {
			j.logger.WithError(err).WithField("symbol", symbol).Error("Evaluation failed")
			errs = append(errs, fmt.Errorf("%s: %w", symbol, err))
			continue
		}
		counts[d.DirectionalBias]++
	}

	j.logger.WithFields(map[string]interface{}{
		"symbols": len(j.symbols),
		"failed":  len(errs),
		"bullish": counts[contracts.BiasBullish],
		"bearish": counts[contracts.BiasBearish],
		"neutral": counts[contracts.BiasNeutral],
		"invalid": counts[contracts.BiasInvalid],
	}).Info("Evaluation cycle completed")

	return errors.Join(errs...)
}
