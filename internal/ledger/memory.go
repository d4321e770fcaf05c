package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/wonny/aegis/fusion/internal/contracts"
)

// MemoryLedger is an in-process DecisionLedger.
// Appends for one symbol are serialized; readers take a snapshot under the
// read lock, so a supersede flag and the new entry become visible together.
type MemoryLedger struct {
	mu      sync.RWMutex
	entries map[string][]*contracts.Decision
	ids     map[string]struct{}

	writersMu sync.Mutex
	writers   map[string]*sync.Mutex

	now func() time.Time
	log zerolog.Logger
}

// NewMemoryLedger creates an empty in-memory ledger
func NewMemoryLedger(log zerolog.Logger) *MemoryLedger {
	return &MemoryLedger{
		entries: make(map[string][]*contracts.Decision),
		ids:     make(map[string]struct{}),
		writers: make(map[string]*sync.Mutex),
		now:     time.Now,
		log:     log.With().Str("component", "ledger.memory").Logger(),
	}
}

// WithClock overrides the recorded_at clock
func (l *MemoryLedger) WithClock(now func() time.Time) *MemoryLedger {
	l.now = now
	return l
}

// writer returns the append lock for symbol
func (l *MemoryLedger) writer(symbol string) *sync.Mutex {
	l.writersMu.Lock()
	defer l.writersMu.Unlock()

	w, ok := l.writers[symbol]
	if !ok {
		w = &sync.Mutex{}
		l.writers[symbol] = w
	}
	return w
}

// Append stores a deep copy of d and supersedes the previous latest
func (l *MemoryLedger) Append(ctx context.Context, d *contracts.Decision) error {
	if err := validateForAppend(d); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	w := l.writer(d.Symbol)
	w.Lock()
	defer w.Unlock()

	stored := d.Clone()
	recordedAt := l.now().UTC()
	stored.RecordedAt = &recordedAt

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, dup := l.ids[d.DecisionID]; dup {
		return fmt.Errorf("%s: %w", d.DecisionID, contracts.ErrDuplicateDecision)
	}

	entries := l.entries[d.Symbol]
	if n := len(entries); n > 0 {
		latest := entries[n-1]
		if d.AnalysisTimestamp.Before(latest.AnalysisTimestamp) {
			return fmt.Errorf("%s at %s before %s: %w", d.DecisionID,
				d.AnalysisTimestamp.Format(time.RFC3339), latest.AnalysisTimestamp.Format(time.RFC3339),
				contracts.ErrOutOfOrder)
		}
		latest.IsSuperseded = true
	}

	l.entries[d.Symbol] = append(entries, stored)
	l.ids[d.DecisionID] = struct{}{}

	l.log.Debug().
		Str("symbol", d.Symbol).
		Str("decision_id", d.DecisionID).
		Int("count", len(l.entries[d.Symbol])).
		Msg("decision appended")

	return nil
}

// Latest returns the newest decision for symbol, nil if none
func (l *MemoryLedger) Latest(ctx context.Context, symbol string) (*contracts.Decision, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	entries := l.entries[symbol]
	if len(entries) == 0 {
		return nil, nil
	}
	return entries[len(entries)-1].Clone(), nil
}

// History returns decisions oldest → newest
func (l *MemoryLedger) History(ctx context.Context, symbol string, filter contracts.HistoryFilter) ([]*contracts.Decision, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	window := applyFilter(l.entries[symbol], filter)
	out := make([]*contracts.Decision, len(window))
	for i, d := range window {
		out[i] = d.Clone()
	}
	return out, nil
}

// Statistics summarizes the filtered window
func (l *MemoryLedger) Statistics(ctx context.Context, symbol string, filter contracts.HistoryFilter) (*contracts.LedgerStatistics, error) {
	history, err := l.History(ctx, symbol, filter)
	if err != nil {
		return nil, err
	}
	return computeStatistics(symbol, history), nil
}

// Symbols returns every symbol with at least one decision
func (l *MemoryLedger) Symbols() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]string, 0, len(l.entries))
	for s := range l.entries {
		out = append(out, s)
	}
	return out
}
