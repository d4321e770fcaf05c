package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/aegis/fusion/internal/contracts"
)

// timelineCmd represents the timeline command
var timelineCmd = &cobra.Command{
	Use:   "timeline [symbol]",
	Short: "확신도 타임라인 통계",
	Long: `원장 이력으로 확신도 타임라인 통계를 계산합니다.

평균/변동성/편향 일관성/추세/연속 편향/백분위수.

Example:
  go run ./cmd/fusion timeline AAPL
  go run ./cmd/fusion timeline AAPL --limit 20
  go run ./cmd/fusion timeline AAPL --since 2026-03-01T00:00:00Z`,
	Args: cobra.ExactArgs(1),
	RunE: runTimeline,
}

var (
	timelineLimit int
	timelineSince string
	timelineUntil string
)

func init() {
	rootCmd.AddCommand(timelineCmd)

	timelineCmd.Flags().IntVar(&timelineLimit, "limit", 0, "최근 N개 결정만 (0 = 전체)")
	timelineCmd.Flags().StringVar(&timelineSince, "since", "", "시작 시각 (RFC3339)")
	timelineCmd.Flags().StringVar(&timelineUntil, "until", "", "종료 시각 (RFC3339)")
	timelineCmd.Flags().BoolVar(&outputJSON, "json", false, "JSON 출력")
}

func runTimeline(cmd *cobra.Command, args []string) error {
	filter, err := parseFilter(timelineLimit, timelineSince, timelineUntil)
	if err != nil {
		return err
	}

	a, err := newApp(cmd.Context(), appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	tl, err := a.timeline.ForSymbol(cmd.Context(), a.ledger, args[0], filter)
	if err != nil {
		return fmt.Errorf("compute timeline: %w", err)
	}

	if outputJSON {
		return printJSON(tl)
	}

	PrintDoubleSeparator()
	fmt.Printf("  Conviction timeline: %s (%d points)\n", args[0], len(tl.Points))
	PrintSeparator()
	PrintKeyValue("Average", fmt.Sprintf("%.2f", tl.AverageConviction), 16)
	PrintKeyValue("Volatility", fmt.Sprintf("%.2f", tl.ConvictionVolatility), 16)
	PrintKeyValue("Bias consistency", fmt.Sprintf("%.0f%%", tl.BiasConsistency*100), 16)
	PrintKeyValue("Trend", string(tl.ConvictionTrend), 16)
	if tl.RecentBias != "" {
		PrintKeyValue("Recent bias", fmt.Sprintf("%s × %d", tl.RecentBias, tl.BiasStreakCount), 16)
	}
	PrintKeyValue("P25/P50/P75", fmt.Sprintf("%.1f / %.1f / %.1f", tl.Percentiles.P25, tl.Percentiles.P50, tl.Percentiles.P75), 16)
	PrintDoubleSeparator()
	return nil
}

// parseFilter builds a history filter from CLI flags
func parseFilter(limit int, since, until string) (contracts.HistoryFilter, error) {
	if limit < 0 {
		return contracts.HistoryFilter{}, fmt.Errorf("--limit must be >= 0")
	}
	f := contracts.HistoryFilter{Limit: limit}

	if since != "" {
		ts, err := time.Parse(time.RFC3339, since)
		if err != nil {
			return f, fmt.Errorf("--since: %w", err)
		}
		f.Since = &ts
	}
	if until != "" {
		ts, err := time.Parse(time.RFC3339, until)
		if err != nil {
			return f, fmt.Errorf("--until: %w", err)
		}
		f.Until = &ts
	}
	if f.Since != nil && f.Until != nil && f.Since.After(*f.Until) {
		return f, fmt.Errorf("--since must not be after --until")
	}
	return f, nil
}
