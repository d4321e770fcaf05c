package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/wonny/aegis/fusion/internal/contracts"
)

// Schema is the DDL for the decision ledger.
// payload keeps the full JSON contract; the other columns exist for querying
// and are never updated after insert, except is_superseded.
const Schema = `
CREATE SCHEMA IF NOT EXISTS fusion;

CREATE TABLE IF NOT EXISTS fusion.decisions (
	seq                 BIGSERIAL PRIMARY KEY,
	decision_id         TEXT NOT NULL UNIQUE,
	symbol              TEXT NOT NULL,
	analysis_timestamp  TIMESTAMPTZ NOT NULL,
	contract_version    TEXT NOT NULL,
	calibration_version TEXT NOT NULL,
	conviction_score    DOUBLE PRECISION NOT NULL,
	directional_bias    TEXT NOT NULL,
	is_valid            BOOLEAN NOT NULL,
	is_execution_ready  BOOLEAN NOT NULL,
	is_superseded       BOOLEAN NOT NULL DEFAULT FALSE,
	payload             JSONB NOT NULL,
	recorded_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_decisions_symbol_ts
	ON fusion.decisions (symbol, analysis_timestamp, seq);

CREATE UNIQUE INDEX IF NOT EXISTS idx_decisions_symbol_latest
	ON fusion.decisions (symbol) WHERE NOT is_superseded;
`

// uniqueViolation is the Postgres SQLSTATE for unique_violation
const uniqueViolation = "23505"

// PostgresLedger implements contracts.DecisionLedger on PostgreSQL
// ⭐ SSOT: 결정 원장 저장/조회는 여기서만
type PostgresLedger struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

// NewPostgresLedger creates a ledger on an existing pool
func NewPostgresLedger(pool *pgxpool.Pool, log zerolog.Logger) *PostgresLedger {
	return &PostgresLedger{
		pool: pool,
		log:  log.With().Str("component", "ledger.postgres").Logger(),
	}
}

// EnsureSchema creates the ledger schema if it does not exist
func (l *PostgresLedger) EnsureSchema(ctx context.Context) error {
	if _, err := l.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to create ledger schema: %w", err)
	}
	return nil
}

// Append supersedes the current latest and inserts d in one transaction.
// A transaction-scoped advisory lock on the symbol serializes writers.
func (l *PostgresLedger) Append(ctx context.Context, d *contracts.Decision) error {
	if err := validateForAppend(d); err != nil {
		return err
	}

	stored := d.Clone()
	stored.RecordedAt = nil
	payload, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("failed to marshal decision: %w", err)
	}

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, d.Symbol); err != nil {
		return fmt.Errorf("failed to lock symbol %s: %w", d.Symbol, err)
	}

	var exists bool
	if err := tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM fusion.decisions WHERE decision_id = $1)`,
		d.DecisionID,
	).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check decision id: %w", err)
	}
	if exists {
		return fmt.Errorf("%s: %w", d.DecisionID, contracts.ErrDuplicateDecision)
	}

	var latestTS time.Time
	err = tx.QueryRow(ctx, `
		SELECT analysis_timestamp
		FROM fusion.decisions
		WHERE symbol = $1 AND NOT is_superseded
	`, d.Symbol).Scan(&latestTS)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
	case err != nil:
		return fmt.Errorf("failed to read latest decision: %w", err)
	case d.AnalysisTimestamp.Before(latestTS):
		return fmt.Errorf("%s at %s before %s: %w", d.DecisionID,
			d.AnalysisTimestamp.Format(time.RFC3339), latestTS.Format(time.RFC3339),
			contracts.ErrOutOfOrder)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE fusion.decisions
		SET is_superseded = TRUE
		WHERE symbol = $1 AND NOT is_superseded
	`, d.Symbol); err != nil {
		return fmt.Errorf("failed to supersede latest decision: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO fusion.decisions (
			decision_id, symbol, analysis_timestamp, contract_version, calibration_version,
			conviction_score, directional_bias, is_valid, is_execution_ready, payload
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		d.DecisionID, d.Symbol, d.AnalysisTimestamp, d.ContractVersion, d.CalibrationVersion,
		d.ConvictionScore, string(d.DirectionalBias), d.IsValid, d.IsExecutionReady, payload,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("%s: %w", d.DecisionID, contracts.ErrDuplicateDecision)
		}
		return fmt.Errorf("failed to insert decision: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	l.log.Debug().
		Str("symbol", d.Symbol).
		Str("decision_id", d.DecisionID).
		Msg("decision appended")

	return nil
}

// Latest returns the newest decision for symbol, nil if none
func (l *PostgresLedger) Latest(ctx context.Context, symbol string) (*contracts.Decision, error) {
	row := l.pool.QueryRow(ctx, `
		SELECT payload, is_superseded, recorded_at
		FROM fusion.decisions
		WHERE symbol = $1 AND NOT is_superseded
	`, symbol)

	d, err := scanDecision(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest decision: %w", err)
	}
	return d, nil
}

// History returns decisions oldest → newest
func (l *PostgresLedger) History(ctx context.Context, symbol string, filter contracts.HistoryFilter) ([]*contracts.Decision, error) {
	query, args := historyQuery(symbol, filter)

	rows, err := l.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	history := make([]*contracts.Decision, 0)
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		history = append(history, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return history, nil
}

// Statistics summarizes the filtered window
func (l *PostgresLedger) Statistics(ctx context.Context, symbol string, filter contracts.HistoryFilter) (*contracts.LedgerStatistics, error) {
	history, err := l.History(ctx, symbol, filter)
	if err != nil {
		return nil, err
	}
	return computeStatistics(symbol, history), nil
}

// historyQuery builds the window query. With a limit the newest N rows are
// selected first and re-ordered ascending.
func historyQuery(symbol string, filter contracts.HistoryFilter) (string, []any) {
	where := []string{"symbol = $1"}
	args := []any{symbol}

	if filter.Since != nil {
		args = append(args, *filter.Since)
		where = append(where, fmt.Sprintf("analysis_timestamp >= $%d", len(args)))
	}
	if filter.Until != nil {
		args = append(args, *filter.Until)
		where = append(where, fmt.Sprintf("analysis_timestamp <= $%d", len(args)))
	}

	inner := `SELECT seq, analysis_timestamp, payload, is_superseded, recorded_at
		FROM fusion.decisions
		WHERE ` + strings.Join(where, " AND ")

	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		inner += fmt.Sprintf(" ORDER BY analysis_timestamp DESC, seq DESC LIMIT $%d", len(args))
	}

	query := `SELECT payload, is_superseded, recorded_at FROM (` + inner + `) w
		ORDER BY analysis_timestamp ASC, seq ASC`

	return query, args
}

// scanDecision decodes payload and overlays ledger-owned columns
func scanDecision(row pgx.Row) (*contracts.Decision, error) {
	var (
		payload    []byte
		superseded bool
		recordedAt time.Time
	)
	if err := row.Scan(&payload, &superseded, &recordedAt); err != nil {
		return nil, err
	}

	var d contracts.Decision
	if err := json.Unmarshal(payload, &d); err != nil {
		return nil, fmt.Errorf("failed to decode decision payload: %w", err)
	}
	d.IsSuperseded = superseded
	recordedAt = recordedAt.UTC()
	d.RecordedAt = &recordedAt

	return &d, nil
}
