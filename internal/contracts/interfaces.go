package contracts

import (
	"context"
	"time"
)

// Bar is one OHLCV candle
type Bar struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// MarketSnapshot is the shared, read-only input handed to every evaluator
// for one evaluation instant. Evaluators must not modify it.
type MarketSnapshot struct {
	Symbol string             `json:"symbol"`
	AsOf   time.Time          `json:"as_of"`
	Bars   []Bar              `json:"bars,omitempty"`
	Fields map[string]float64 `json:"fields,omitempty"`
}

// AgeSeconds returns how stale the snapshot is at now (0 if AsOf is in the future)
func (s *MarketSnapshot) AgeSeconds(now time.Time) uint64 {
	if s == nil || s.AsOf.IsZero() || now.Before(s.AsOf) {
		return 0
	}
	return uint64(now.Sub(s.AsOf) / time.Second)
}

// PillarEvaluator scores one pillar from a snapshot.
// ⭐ SSOT: 평가기는 다른 필러의 결과를 읽을 수 없음 (스냅샷만 입력)
type PillarEvaluator interface {
	Pillar() PillarName
	Evaluate(ctx context.Context, snapshot *MarketSnapshot) (PillarResult, error)
}

// SnapshotProvider supplies market snapshots (market-data layer, external)
type SnapshotProvider interface {
	Snapshot(ctx context.Context, symbol string) (*MarketSnapshot, error)
}

// DecisionPublisher is notified after a decision has been durably appended
type DecisionPublisher interface {
	Publish(d *Decision)
}
