package contracts

import (
	"context"
	"errors"
	"time"
)

// Ledger errors
var (
	ErrDuplicateDecision   = errors.New("decision already recorded")
	ErrOutOfOrder          = errors.New("decision is older than the latest recorded decision")
	ErrInvalidDecision     = errors.New("invalid decision")
	ErrInsufficientHistory = errors.New("insufficient decision history")
)

// HistoryFilter narrows a ledger query. Zero values mean "no bound".
type HistoryFilter struct {
	Limit int        `json:"limit,omitempty"` // keep the most recent N
	Since *time.Time `json:"since,omitempty"` // inclusive
	Until *time.Time `json:"until,omitempty"` // inclusive
}

// Matches reports whether ts falls inside the since/until bounds
func (f HistoryFilter) Matches(ts time.Time) bool {
	if f.Since != nil && ts.Before(*f.Since) {
		return false
	}
	if f.Until != nil && ts.After(*f.Until) {
		return false
	}
	return true
}

// ConvictionRange min/max conviction over a window
type ConvictionRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// LedgerStatistics summarizes a ledger window for one symbol
type LedgerStatistics struct {
	Symbol            string          `json:"symbol"`
	Count             int             `json:"count"`
	AverageConviction float64         `json:"average_conviction"`
	BiasDistribution  map[Bias]int    `json:"bias_distribution"`
	ConvictionRange   ConvictionRange `json:"conviction_range"`
}

// DecisionLedger is the append-only per-symbol store of decisions
// ⭐ SSOT: 결정 원장 인터페이스는 여기서만 정의
type DecisionLedger interface {
	// Append records d and marks the previous latest for d.Symbol superseded
	Append(ctx context.Context, d *Decision) error
	// Latest returns the newest decision for symbol, nil if none
	Latest(ctx context.Context, symbol string) (*Decision, error)
	// History returns decisions oldest → newest
	History(ctx context.Context, symbol string, filter HistoryFilter) ([]*Decision, error)
	Statistics(ctx context.Context, symbol string, filter HistoryFilter) (*LedgerStatistics, error)
}
