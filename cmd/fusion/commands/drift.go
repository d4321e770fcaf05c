package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/aegis/fusion/internal/contracts"
)

// driftCmd represents the drift command
var driftCmd = &cobra.Command{
	Use:   "drift",
	Short: "결정 드리프트 측정",
	Long: `두 결정 사이의 필러별 점수 변화(드리프트)를 측정합니다.

--symbol: 원장의 최근 두 결정 비교
--previous/--current: 결정 JSON 파일 두 개 비교

Example:
  go run ./cmd/fusion drift --symbol AAPL
  go run ./cmd/fusion drift --previous a.json --current b.json`,
	RunE: runDrift,
}

var (
	driftSymbol   string
	driftPrevious string
	driftCurrent  string
)

func init() {
	rootCmd.AddCommand(driftCmd)

	driftCmd.Flags().StringVar(&driftSymbol, "symbol", "", "원장에서 비교할 종목")
	driftCmd.Flags().StringVar(&driftPrevious, "previous", "", "이전 결정 JSON 파일")
	driftCmd.Flags().StringVar(&driftCurrent, "current", "", "현재 결정 JSON 파일")
	driftCmd.Flags().BoolVar(&outputJSON, "json", false, "JSON 출력")
	driftCmd.MarkFlagsRequiredTogether("previous", "current")
	driftCmd.MarkFlagsMutuallyExclusive("symbol", "previous")
	driftCmd.MarkFlagsOneRequired("symbol", "previous")
}

func runDrift(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	var m *contracts.DriftMeasurement
	if driftSymbol != "" {
		m, err = a.drift.Latest(cmd.Context(), a.ledger, driftSymbol)
	} else {
		var prev, cur *contracts.Decision
		if prev, err = readDecision(driftPrevious); err != nil {
			return err
		}
		if cur, err = readDecision(driftCurrent); err != nil {
			return err
		}
		m, err = a.drift.Drift(prev, cur)
	}
	if err != nil {
		return fmt.Errorf("measure drift: %w", err)
	}
	a.metrics.RecordDrift(string(m.Classification))

	if outputJSON {
		return printJSON(m)
	}
	printDrift(m)
	return nil
}

func readDecision(path string) (*contracts.Decision, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var d contracts.Decision
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &d, nil
}

func printDrift(m *contracts.DriftMeasurement) {
	PrintDoubleSeparator()
	fmt.Printf("  Drift %s: %s → %s\n", m.Symbol, m.PreviousDecisionID, m.CurrentDecisionID)
	PrintSeparator()

	widths := []int{12, 10, 24}
	PrintTableHeader([]string{"PILLAR", "DELTA", "BIAS"}, widths)
	for _, p := range contracts.AllPillars() {
		bias := "-"
		if c, ok := m.BiasChanges[p]; ok {
			bias = fmt.Sprintf("%s → %s", c.From, c.To)
		}
		PrintTableRow([]string{string(p), fmt.Sprintf("%+.2f", m.ScoreDeltas[p]), bias}, widths)
	}

	PrintSeparator()
	PrintKeyValue("Total drift", fmt.Sprintf("%.2f (%s)", m.TotalDriftScore, m.Classification), 14)
	if m.MaxDriftPillar != "" {
		PrintKeyValue("Max drift", fmt.Sprintf("%s %.2f", m.MaxDriftPillar, m.MaxDriftMagnitude), 14)
	}
	PrintKeyValue("Time delta", (time.Duration(m.TimeDeltaSeconds) * time.Second).String(), 14)
	if m.AggregateBiasShift != nil {
		PrintKeyValue("Bias shift", fmt.Sprintf("%s → %s", m.AggregateBiasShift.From, m.AggregateBiasShift.To), 14)
	}
	if m.CalibrationChanged {
		PrintWarning("Calibration changed between the two decisions")
	}
	PrintDoubleSeparator()
}
