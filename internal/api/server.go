package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/wonny/aegis/fusion/pkg/config"
	"github.com/wonny/aegis/fusion/pkg/logger"
)

const (
	minWriteTimeout = 15 * time.Second
	// response headroom after the slowest pillar gives up
	writeSlack = 5 * time.Second
)

// Server serves the decision API, the stream and /metrics
// ⭐ SSOT: API 서버 설정은 이 파일에서만
type Server struct {
	httpServer *http.Server
	logger     *logger.Logger
	config     *config.Config
}

// New creates the server; the write timeout covers a full evaluation cycle
func New(cfg *config.Config, log *logger.Logger, router http.Handler) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              ":" + cfg.Port,
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      writeTimeout(cfg.Evaluation.PillarTimeout),
			IdleTimeout:       60 * time.Second,
		},
		logger: log,
		config: cfg,
	}
}

// writeTimeout lets POST .../evaluate wait out the pillar timeout
// (pillars run in parallel, so one timeout bounds the cycle)
func writeTimeout(pillarTimeout time.Duration) time.Duration {
	if t := pillarTimeout + writeSlack; t > minWriteTimeout {
		return t
	}
	return minWriteTimeout
}

// Start blocks until the server stops; a graceful Shutdown returns nil
func (s *Server) Start() error {
	s.logger.WithFields(map[string]interface{}{
		"port":          s.config.Port,
		"env":           s.config.Env,
		"ledger":        s.config.Ledger.Backend,
		"stream":        s.config.StreamEnabled,
		"write_timeout": s.httpServer.WriteTimeout.String(),
	}).Info("Fusion API listening")

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("fusion api: %w", err)
	}

	return nil
}

// Shutdown drains in-flight evaluations; websocket clients are closed by the hub
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Draining fusion API requests")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("fusion api shutdown: %w", err)
	}

	return nil
}
