package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/aegis/fusion/internal/ledger"
	"github.com/wonny/aegis/fusion/pkg/config"
	"github.com/wonny/aegis/fusion/pkg/database"
	"github.com/wonny/aegis/fusion/pkg/logger"
)

// migrateCmd represents the migrate command
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "결정 원장 스키마 생성",
	Long: `PostgreSQL에 결정 원장 스키마(fusion.decisions)를 생성합니다.
이미 존재하면 아무것도 하지 않습니다.

Example:
  go run ./cmd/fusion migrate
  go run ./cmd/fusion migrate --print`,
	RunE: runMigrate,
}

var migratePrint bool

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.Flags().BoolVar(&migratePrint, "print", false, "DDL만 출력")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	if migratePrint {
		fmt.Println(ledger.Schema)
		return nil
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.New(cfg)

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	db, err := database.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	if err := ledger.NewPostgresLedger(db.Pool, log.Zerolog()).EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}

	PrintSuccess("Ledger schema is up to date")
	return nil
}
