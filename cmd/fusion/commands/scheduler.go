package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/aegis/fusion/internal/scheduler"
	"github.com/wonny/aegis/fusion/internal/scheduler/jobs"
)

// reportWindow is how many recent decisions the ledger report looks at
const reportWindow = 50

// schedulerCmd represents the scheduler command
var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "스케줄러 관리",
	Long: `스케줄러를 시작하거나 작업을 관리합니다.

Subcommands:
  start   - 스케줄러 시작
  list    - 등록된 작업 목록
  run     - 특정 작업 즉시 실행 (완료까지 대기)

Example:
  go run ./cmd/fusion scheduler start
  go run ./cmd/fusion scheduler list
  go run ./cmd/fusion scheduler run decision_evaluation`,
}

var (
	schedulerStartCmd = &cobra.Command{
		Use:   "start",
		Short: "스케줄러 시작",
		Long: `스케줄러를 시작하고 등록된 모든 작업을 스케줄합니다.

등록되는 작업:
- decision_evaluation: EVAL_SCHEDULE (기본 15분마다, EVAL_SYMBOLS 대상)
- ledger_report: 매시간 (타임라인/드리프트 요약 로그)

METRICS_ENABLED=true 이면 METRICS_PORT 에서 /metrics 를 제공합니다.
스케줄러는 Ctrl+C로 종료할 수 있습니다.`,
		RunE: runScheduler,
	}

	schedulerListCmd = &cobra.Command{
		Use:   "list",
		Short: "등록된 작업 목록",
		RunE:  listJobs,
	}

	schedulerRunCmd = &cobra.Command{
		Use:   "run [job_name]",
		Short: "특정 작업 즉시 실행",
		Args:  cobra.ExactArgs(1),
		RunE:  runJob,
	}

	schedulerSnapshots string
)

func init() {
	rootCmd.AddCommand(schedulerCmd)
	schedulerCmd.AddCommand(schedulerStartCmd)
	schedulerCmd.AddCommand(schedulerListCmd)
	schedulerCmd.AddCommand(schedulerRunCmd)

	schedulerCmd.PersistentFlags().StringVar(&schedulerSnapshots, "snapshots", "", "정적 스냅샷 JSON 파일")
}

func runScheduler(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Aegis Fusion Scheduler ===")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, appOptions{snapshotFile: schedulerSnapshots})
	if err != nil {
		return err
	}
	defer a.Close()

	sched, err := initScheduler(a)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}

	// Metrics endpoint (scheduler has no API router)
	var metricsServer *http.Server
	if a.metrics != nil {
		mux := http.NewServeMux()
		mux.Handle("/metrics", a.metrics.Handler())
		metricsServer = &http.Server{
			Addr:              ":" + a.cfg.MetricsPort,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.log.WithError(err).Error("Metrics server failed")
			}
		}()
	}

	// Start scheduler
	sched.Start()

	fmt.Println("\n✅ Scheduler started successfully")
	fmt.Println("\nRegistered jobs:")
	PrintList(sched.GetAllJobs())
	fmt.Println("\nPress Ctrl+C to stop")

	<-ctx.Done()

	fmt.Println("\nShutting down scheduler...")
	sched.Stop()
	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}
	fmt.Println("Scheduler stopped")

	return nil
}

func listJobs(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), appOptions{snapshotFile: schedulerSnapshots})
	if err != nil {
		return err
	}
	defer a.Close()

	sched, err := initScheduler(a)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}

	widths := []int{24, 18}
	PrintTableHeader([]string{"JOB", "SCHEDULE"}, widths)
	stats := sched.GetJobStats()
	for _, name := range sched.GetAllJobs() {
		PrintTableRow([]string{name, stats[name].Schedule}, widths)
	}

	return nil
}

func runJob(cmd *cobra.Command, args []string) error {
	jobName := args[0]

	a, err := newApp(cmd.Context(), appOptions{snapshotFile: schedulerSnapshots})
	if err != nil {
		return err
	}
	defer a.Close()

	sched, err := initScheduler(a)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	defer sched.Stop()

	fmt.Printf("Running job: %s\n", jobName)
	result, err := sched.RunJobSync(jobName)
	if err != nil {
		return fmt.Errorf("run job: %w", err)
	}

	if !result.Success {
		PrintError(fmt.Sprintf("%s failed after %s: %s", jobName, result.Duration.Round(time.Millisecond), result.Error))
		return errors.New(result.Error)
	}

	PrintSuccess(fmt.Sprintf("%s completed in %s", jobName, result.Duration.Round(time.Millisecond)))
	return nil
}

func initScheduler(a *app) (*scheduler.Scheduler, error) {
	sched := scheduler.New(a.log)

	if err := sched.AddJob(jobs.NewEvaluationJob(a.runner, a.cal(), a.cfg.Evaluation.Symbols, a.cfg.Evaluation.Schedule, a.log)); err != nil {
		return nil, err
	}
	if err := sched.AddJob(jobs.NewLedgerReportJob(a.ledger, a.drift, a.timeline, a.cfg.Evaluation.Symbols, reportWindow, a.metrics, a.log)); err != nil {
		return nil, err
	}

	return sched, nil
}
