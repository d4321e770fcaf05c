package commands

import (
	"context"
	"fmt"

	"github.com/wonny/aegis/fusion/internal/calibration"
	"github.com/wonny/aegis/fusion/internal/contracts"
	"github.com/wonny/aegis/fusion/internal/drift"
	"github.com/wonny/aegis/fusion/internal/fusion"
	"github.com/wonny/aegis/fusion/internal/ledger"
	"github.com/wonny/aegis/fusion/internal/pipeline"
	"github.com/wonny/aegis/fusion/internal/stream"
	"github.com/wonny/aegis/fusion/internal/timeline"
	"github.com/wonny/aegis/fusion/pkg/config"
	"github.com/wonny/aegis/fusion/pkg/database"
	"github.com/wonny/aegis/fusion/pkg/httputil"
	"github.com/wonny/aegis/fusion/pkg/logger"
	"github.com/wonny/aegis/fusion/pkg/metrics"
	"github.com/wonny/aegis/fusion/pkg/redis"
)

// app holds every wired component shared by the commands
// ⭐ SSOT: 의존성 조립은 여기서만 (커맨드는 app만 사용)
type app struct {
	cfg         *config.Config
	log         *logger.Logger
	calFile     *calibration.File
	calHash     string
	db          *database.DB
	redis       *redis.Client
	rateLimiter *redis.RateLimiter
	metrics     *metrics.Recorder
	hub         *stream.Hub
	ledger      contracts.DecisionLedger
	runner      *pipeline.Runner
	drift       *drift.Engine
	timeline    *timeline.Engine
}

// appOptions selects the optional parts to build
type appOptions struct {
	stream       bool   // websocket hub behind the ledger
	snapshotFile string // static snapshots (JSON array) for evaluators
}

func newApp(ctx context.Context, opts appOptions) (*app, error) {
	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if configEnv != "" {
		cfg.Env = configEnv
	}
	if verbose {
		cfg.LogLevel = "debug"
	}

	// 2. Initialize logger
	log := logger.New(cfg)

	a := &app{cfg: cfg, log: log}

	// 3. Calibration
	calFile, _, err := calibration.Load(cfg.Calibration.Path)
	if err != nil {
		return nil, fmt.Errorf("load calibration %s: %w", cfg.Calibration.Path, err)
	}
	a.calFile = calFile
	if a.calHash, err = calibration.Hash(calFile); err != nil {
		return nil, fmt.Errorf("hash calibration: %w", err)
	}
	for _, w := range calibration.Warn(calFile) {
		log.WithFields(map[string]interface{}{"code": w.Code}).Warn(w.Message)
	}

	// 4. Metrics
	if cfg.MetricsEnabled {
		a.metrics = metrics.New()
	}

	// 5. Redis (optional)
	a.redis, err = redis.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	a.rateLimiter = redis.NewRateLimiter(a.redis, "fusion")

	// 6. Ledger
	var base contracts.DecisionLedger
	switch cfg.Ledger.Backend {
	case "postgres":
		a.db, err = database.New(ctx, cfg)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		pg := ledger.NewPostgresLedger(a.db.Pool, log.Zerolog())
		if err := pg.EnsureSchema(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("ensure ledger schema: %w", err)
		}
		base = pg
	default:
		base = ledger.NewMemoryLedger(log.Zerolog())
		log.Warn("Using in-memory ledger: decisions are lost on exit")
	}

	if a.redis.Enabled() {
		base = ledger.NewCachedLedger(base, redis.NewCache(a.redis, "fusion"), cfg.Ledger.CacheTTL, log.Zerolog())
	}

	var publisher contracts.DecisionPublisher
	if opts.stream && cfg.StreamEnabled {
		a.hub = stream.NewHub(a.metrics, log.Zerolog())
		publisher = a.hub
	}
	a.ledger = ledger.NewNotifyingLedger(base, publisher, a.metrics, log.Zerolog())

	// 7. Evaluators
	client := httputil.New(cfg, log)
	if a.redis.Enabled() {
		rl := redis.EvaluatorRateLimit
		if cfg.Evaluation.RequestsPerSec > 0 {
			rl.Limit = cfg.Evaluation.RequestsPerSec
		}
		client = client.WithRateLimiter(a.rateLimiter, rl)
	}

	var snapshots contracts.SnapshotProvider
	if opts.snapshotFile != "" {
		s, err := pipeline.LoadSnapshotFile(opts.snapshotFile)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("load snapshots: %w", err)
		}
		snapshots = s
	}

	a.runner, err = pipeline.NewRunner(
		fusion.NewAggregator(log.Zerolog()),
		a.ledger,
		pipeline.BuildEvaluators(cfg.Evaluation.EvaluatorURLs, client),
		pipeline.Options{
			PillarTimeout: cfg.Evaluation.PillarTimeout,
			Snapshots:     snapshots,
			Metrics:       a.metrics,
		},
		log.Zerolog(),
	)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("build runner: %w", err)
	}

	// 8. Analytics engines
	a.drift = drift.NewEngine(calFile.Drift, log.Zerolog())
	a.timeline = timeline.NewEngine(calFile.Timeline.TrendEpsilon)

	log.WithFields(map[string]interface{}{
		"ledger":      cfg.Ledger.Backend,
		"calibration": calFile.Meta.Version,
		"hash":        a.calHash[:12],
		"redis":       a.redis.Enabled(),
		"remote":      len(cfg.Evaluation.EvaluatorURLs),
	}).Info("Application initialized")

	return a, nil
}

// cal returns the value handed to the aggregator
func (a *app) cal() calibration.Calibration {
	return a.calFile.Calibration()
}

// Close releases connections (safe on a partially built app)
func (a *app) Close() {
	if a.hub != nil {
		a.hub.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.WithError(err).Warn("Failed to close redis")
		}
	}
	if a.db != nil {
		a.db.Close()
	}
}
