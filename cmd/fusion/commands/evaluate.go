package commands

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/aegis/fusion/internal/contracts"
	"github.com/wonny/aegis/fusion/internal/fusion"
)

// evaluateCmd represents the evaluate command
var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "결정 평가 (파일 또는 평가기)",
	Long: `한 종목에 대한 결정을 평가하고 원장에 기록합니다.

--file: 필러 결과 JSON을 직접 융합
  {"symbol": "AAPL", "analysis_timestamp": "2026-03-02T09:00:00Z",
   "data_age_seconds": 30, "pillar_results": [ ...6개... ]}

--symbol: 설정된 평가기(EVALUATOR_<PILLAR>_URL, 없으면 placeholder)를 실행

Example:
  go run ./cmd/fusion evaluate --file pillars.json
  go run ./cmd/fusion evaluate --file pillars.json --dry-run
  go run ./cmd/fusion evaluate --symbol AAPL --snapshots snapshots.json`,
	RunE: runEvaluate,
}

var (
	evaluateFile      string
	evaluateSymbol    string
	evaluateSnapshots string
	evaluateDryRun    bool
	outputJSON        bool
)

// evaluationFile is the --file format
type evaluationFile struct {
	Symbol            string                   `json:"symbol"`
	AnalysisTimestamp *time.Time               `json:"analysis_timestamp,omitempty"`
	DataAgeSeconds    *uint64                  `json:"data_age_seconds,omitempty"`
	PillarResults     []contracts.PillarResult `json:"pillar_results"`
}

func init() {
	rootCmd.AddCommand(evaluateCmd)

	evaluateCmd.Flags().StringVar(&evaluateFile, "file", "", "필러 결과 JSON 파일")
	evaluateCmd.Flags().StringVar(&evaluateSymbol, "symbol", "", "평가기를 실행할 종목")
	evaluateCmd.Flags().StringVar(&evaluateSnapshots, "snapshots", "", "정적 스냅샷 JSON 파일 (--symbol)")
	evaluateCmd.Flags().BoolVar(&evaluateDryRun, "dry-run", false, "원장에 기록하지 않음 (--file)")
	evaluateCmd.Flags().BoolVar(&outputJSON, "json", false, "JSON 출력")
	evaluateCmd.MarkFlagsMutuallyExclusive("file", "symbol")
	evaluateCmd.MarkFlagsOneRequired("file", "symbol")
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx, appOptions{snapshotFile: evaluateSnapshots})
	if err != nil {
		return err
	}
	defer a.Close()

	var d *contracts.Decision
	if evaluateFile != "" {
		req, err := readEvaluationFile(evaluateFile)
		if err != nil {
			return err
		}
		if evaluateDryRun {
			d, err = fusion.NewAggregator(a.log.Zerolog()).Aggregate(a.cal(), req)
		} else {
			d, err = a.runner.Submit(ctx, a.cal(), req)
		}
		if err != nil {
			return describeRejection(err)
		}
	} else {
		d, err = a.runner.EvaluateSymbol(ctx, a.cal(), strings.TrimSpace(evaluateSymbol))
		if err != nil {
			return describeRejection(err)
		}
	}

	if outputJSON {
		return printJSON(d)
	}
	printDecision(d)
	return nil
}

func readEvaluationFile(path string) (fusion.Request, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return fusion.Request{}, fmt.Errorf("read %s: %w", path, err)
	}

	var f evaluationFile
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&f); err != nil {
		return fusion.Request{}, fmt.Errorf("parse %s: %w", path, err)
	}

	req := fusion.Request{
		Symbol:         f.Symbol,
		Results:        f.PillarResults,
		DataAgeSeconds: f.DataAgeSeconds,
	}
	if f.AnalysisTimestamp != nil {
		req.Timestamp = f.AnalysisTimestamp.UTC()
	} else {
		req.Timestamp = time.Now().UTC()
	}
	return req, nil
}

// describeRejection prints the structured part of a validation error
func describeRejection(err error) error {
	var (
		cv  *contracts.ContractViolation
		inc *contracts.IncompleteInput
	)
	switch {
	case errors.As(err, &cv):
		PrintError(fmt.Sprintf("contract violation: pillar=%s field=%s: %s", cv.Pillar, cv.Field, cv.Message))
	case errors.As(err, &inc):
		PrintError(fmt.Sprintf("incomplete input: %d results, missing=%v duplicates=%v", inc.Count, inc.Missing, inc.Duplicates))
	case errors.Is(err, contracts.ErrOutOfOrder), errors.Is(err, contracts.ErrDuplicateDecision):
		PrintError(fmt.Sprintf("ledger rejected decision: %v", err))
	}
	return err
}

func printDecision(d *contracts.Decision) {
	PrintDoubleSeparator()
	fmt.Printf("  Decision %s\n", d.DecisionID)
	PrintSeparator()
	PrintKeyValue("Symbol", d.Symbol, 16)
	PrintKeyValue("Timestamp", d.AnalysisTimestamp.Format(time.RFC3339), 16)
	PrintKeyValue("Bias", string(d.DirectionalBias), 16)
	PrintKeyValue("Conviction", fmt.Sprintf("%.2f", d.ConvictionScore), 16)
	PrintKeyValue("Valid", fmt.Sprintf("%v", d.IsValid), 16)
	PrintKeyValue("Execution ready", fmt.Sprintf("%v", d.IsExecutionReady), 16)
	PrintKeyValue("Quality", fmt.Sprintf("%d active / %d placeholder / %d failed",
		d.Quality.ActivePillars, d.Quality.PlaceholderPillars, len(d.Quality.FailedPillars)), 16)
	PrintKeyValue("Calibration", d.CalibrationVersion, 16)
	PrintSeparator()
	fmt.Printf("  %s\n", d.ReasoningNarrative)
	for _, w := range d.Warnings {
		fmt.Printf("⚠️  %s\n", w)
	}
	PrintDoubleSeparator()
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
