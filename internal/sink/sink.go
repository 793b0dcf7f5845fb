// Package sink delivers mutation events outside the observing process.
package sink

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/hazyhaar/domprobe/idgen"
	"github.com/hazyhaar/domprobe/mutation"
)

// Sink is an output backend: stdout JSON lines, webhook, in-process
// callback or the poll queue.
type Sink interface {
	Send(ctx context.Context, d mutation.Delivery) error
	Close() error
}

// Forward returns an observer callback that stamps each event into a
// Delivery and sends it to s. Sequence numbers start at 1 per call to
// Forward. Send errors are logged; the event is not retried here.
func Forward(ctx context.Context, s Sink, subscriptionID string, logger *slog.Logger) func(mutation.Event) {
	if logger == nil {
		logger = slog.Default()
	}
	var seq atomic.Uint64
	return func(ev mutation.Event) {
		d := mutation.Delivery{
			ID:             idgen.New(),
			SubscriptionID: subscriptionID,
			Seq:            seq.Add(1),
			Timestamp:      time.Now().UnixMilli(),
			Event:          ev,
		}
		if err := s.Send(ctx, d); err != nil {
			logger.Warn("sink: deliver", "subscription", subscriptionID, "seq", d.Seq, "error", err)
		}
	}
}
