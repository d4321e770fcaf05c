package ledger

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/wonny/aegis/fusion/internal/contracts"
	"github.com/wonny/aegis/fusion/pkg/metrics"
)

// NotifyingLedger publishes each decision after it has been appended
// and records append latency. Reads pass through.
type NotifyingLedger struct {
	contracts.DecisionLedger

	publisher contracts.DecisionPublisher
	metrics   *metrics.Recorder
	log       zerolog.Logger
}

// NewNotifyingLedger wraps inner; publisher and recorder may be nil
func NewNotifyingLedger(inner contracts.DecisionLedger, publisher contracts.DecisionPublisher, recorder *metrics.Recorder, log zerolog.Logger) *NotifyingLedger {
	return &NotifyingLedger{
		DecisionLedger: inner,
		publisher:      publisher,
		metrics:        recorder,
		log:            log.With().Str("component", "ledger.notify").Logger(),
	}
}

// Append appends, then notifies only on success
func (n *NotifyingLedger) Append(ctx context.Context, d *contracts.Decision) error {
	start := time.Now()
	err := n.DecisionLedger.Append(ctx, d)
	n.metrics.RecordAppend(time.Since(start).Seconds(), err)
	if err != nil {
		return err
	}

	if n.publisher != nil {
		n.publisher.Publish(d.Clone())
	}
	return nil
}
