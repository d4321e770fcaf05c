package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/aegis/fusion/internal/api"
	"github.com/wonny/aegis/fusion/internal/api/handlers"
)

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "API 서버 시작",
	Long: `REST API 서버를 시작합니다.

이 명령어는:
- HTTP API 서버 시작
- 결정 평가 / 원장 조회 / 드리프트 / 타임라인 엔드포인트 제공
- 결정 스트림(websocket) 및 Prometheus 메트릭 제공

Endpoints:
  GET  /health                              - Health check
  POST /api/decisions/{symbol}/evaluate     - 결정 평가 및 기록
  GET  /api/decisions/{symbol}/latest       - 최신 결정
  GET  /api/decisions/{symbol}/history      - 결정 이력 (limit/since/until)
  GET  /api/decisions/{symbol}/statistics   - 원장 통계
  GET  /api/decisions/{symbol}/timeline     - 확신도 타임라인
  GET  /api/decisions/{symbol}/drift        - 최근 두 결정 간 드리프트
  POST /api/drift                           - 임의의 두 결정 비교
  GET  /api/calibration                     - 활성 캘리브레이션
  GET  /ws/decisions?symbols=A,B            - 결정 스트림
  GET  /metrics                             - Prometheus

Example:
  go run ./cmd/fusion api
  go run ./cmd/fusion api --port 8080`,
	RunE: runAPIServer,
}

var (
	apiPort      string
	apiSnapshots string
)

func init() {
	rootCmd.AddCommand(apiCmd)

	// Flags
	apiCmd.Flags().StringVar(&apiPort, "port", "", "API 서버 포트 (기본: PORT)")
	apiCmd.Flags().StringVar(&apiSnapshots, "snapshots", "", "정적 스냅샷 JSON 파일")
}

func runAPIServer(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Aegis Fusion API Server ===")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, appOptions{stream: true, snapshotFile: apiSnapshots})
	if err != nil {
		return err
	}
	defer a.Close()

	// Override port if flag is set
	if apiPort != "" {
		a.cfg.Port = apiPort
	}

	decisionHandler, err := handlers.NewDecisionHandler(a.runner, a.ledger, a.drift, a.timeline, a.calFile, a.metrics, a.log)
	if err != nil {
		return fmt.Errorf("create decision handler: %w", err)
	}

	deps := api.RouterDeps{
		Metrics:     a.metrics,
		RateLimiter: a.rateLimiter,
	}
	if a.hub != nil {
		deps.Stream = a.hub
		// Shutdown does not close hijacked websocket connections
		go a.hub.Run(ctx)
	}
	router := api.NewRouter(decisionHandler, deps, a.log)
	server := api.New(a.cfg, a.log, router)

	// Start server
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	a.log.Info("API server started successfully")
	fmt.Printf("\n✅ Server running on http://localhost:%s\n", a.cfg.Port)
	fmt.Printf("   Ledger: %s | Calibration: %s (%s)\n", a.cfg.Ledger.Backend, a.calFile.Meta.Version, a.calHash[:12])
	fmt.Println("\nPress Ctrl+C to stop")

	// Wait for interrupt signal or server failure
	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	a.log.Info("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	a.log.Info("Server stopped")
	return nil
}
