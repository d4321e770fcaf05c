package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	configEnv string
	verbose   bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "fusion",
	Short: "Aegis Fusion - 6-필러 판단 융합 & 관측 엔진",
	Long: `Aegis Fusion Unified CLI

여섯 개 필러(trend, momentum, volatility, liquidity, sentiment, regime)의
점수를 하나의 감사 가능한 결정(Decision)으로 융합하고,
결정 원장 / 드리프트 / 확신도 타임라인을 제공합니다.

Usage:
  go run ./cmd/fusion [command]

Examples:
  go run ./cmd/fusion api
  go run ./cmd/fusion evaluate --file pillars.json
  go run ./cmd/fusion drift --symbol AAPL
  go run ./cmd/fusion calibration check`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&configEnv, "env", "", "environment override (development|staging|production)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
