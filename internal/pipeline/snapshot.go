package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/wonny/aegis/fusion/internal/contracts"
)

// StaticSnapshots serves fixed snapshots keyed by symbol (files, tests, CLI)
type StaticSnapshots struct {
	mu        sync.RWMutex
	snapshots map[string]*contracts.MarketSnapshot
}

// NewStaticSnapshots creates a provider over the given snapshots
func NewStaticSnapshots(snapshots ...*contracts.MarketSnapshot) *StaticSnapshots {
	s := &StaticSnapshots{snapshots: make(map[string]*contracts.MarketSnapshot)}
	for _, snap := range snapshots {
		s.Put(snap)
	}
	return s
}

// LoadSnapshotFile reads a JSON array of snapshots
func LoadSnapshotFile(path string) (*StaticSnapshots, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot file: %w", err)
	}

	var snapshots []*contracts.MarketSnapshot
	if err := json.Unmarshal(data, &snapshots); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot file: %w", err)
	}
	return NewStaticSnapshots(snapshots...), nil
}

// Put replaces the snapshot for its symbol
func (s *StaticSnapshots) Put(snap *contracts.MarketSnapshot) {
	if snap == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[snap.Symbol] = snap
}

// Snapshot implements contracts.SnapshotProvider
func (s *StaticSnapshots) Snapshot(ctx context.Context, symbol string) (*contracts.MarketSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.snapshots[symbol]
	if !ok {
		return nil, fmt.Errorf("no snapshot for %s", symbol)
	}
	return snap, nil
}
