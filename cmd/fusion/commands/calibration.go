package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wonny/aegis/fusion/internal/calibration"
	"github.com/wonny/aegis/fusion/internal/contracts"
	"github.com/wonny/aegis/fusion/pkg/config"
)

// calibrationCmd represents the calibration command
var calibrationCmd = &cobra.Command{
	Use:   "calibration",
	Short: "캘리브레이션 관리",
}

var calibrationCheckCmd = &cobra.Command{
	Use:   "check [path]",
	Short: "캘리브레이션 파일 검증",
	Long: `캘리브레이션 YAML을 검증하고 감사용 해시를 출력합니다.

검증 (실패 시 종료 코드 1):
- 가중치 합 = 1.0, 각 가중치 (0, 1]
- bearish_below < bullish_above
- placeholder_tolerance 0~6
- 드리프트 임계값 순서

경고:
- placeholder 허용, 좁은 중립 구간, 단일 필러 과대 가중

Example:
  go run ./cmd/fusion calibration check
  go run ./cmd/fusion calibration check config/calibration/default.yaml`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCalibrationCheck,
}

func init() {
	rootCmd.AddCommand(calibrationCmd)
	calibrationCmd.AddCommand(calibrationCheckCmd)
}

func runCalibrationCheck(cmd *cobra.Command, args []string) error {
	path := ""
	if len(args) == 1 {
		path = args[0]
	} else {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		path = cfg.Calibration.Path
	}

	f, _, err := calibration.Load(path)
	if err != nil {
		PrintError(fmt.Sprintf("%s: %v", path, err))
		return err
	}

	hash, err := calibration.Hash(f)
	if err != nil {
		return fmt.Errorf("hash calibration: %w", err)
	}

	PrintDoubleSeparator()
	fmt.Printf("  Calibration %s\n", f.Meta.Version)
	PrintSeparator()
	PrintKeyValue("File", path, 12)
	PrintKeyValue("SHA256", hash, 12)
	PrintKeyValue("Bullish >", fmt.Sprintf("%.1f", f.Thresholds.BullishAbove), 12)
	PrintKeyValue("Bearish <", fmt.Sprintf("%.1f", f.Thresholds.BearishBelow), 12)
	PrintKeyValue("Tolerance", fmt.Sprintf("%d placeholder(s)", f.Execution.PlaceholderTolerance), 12)
	PrintSeparator()

	widths := []int{12, 8}
	PrintTableHeader([]string{"PILLAR", "WEIGHT"}, widths)
	for _, p := range contracts.AllPillars() {
		PrintTableRow([]string{string(p), fmt.Sprintf("%.3f", f.Weights.Of(p))}, widths)
	}

	for _, w := range calibration.Warn(f) {
		PrintWarning(fmt.Sprintf("[%s] %s", w.Code, w.Message))
	}

	PrintSuccess("Calibration is valid")
	return nil
}
