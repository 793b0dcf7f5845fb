package sink

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hazyhaar/domprobe/mutation"
)

// Router fans deliveries out to several sinks. A failing sink does not stop
// the others; the first error is returned.
type Router struct {
	sinks  []Sink
	logger *slog.Logger
}

// NewRouter creates a Router over sinks.
func NewRouter(logger *slog.Logger, sinks ...Sink) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{sinks: sinks, logger: logger}
}

func (r *Router) Send(ctx context.Context, d mutation.Delivery) error {
	var first error
	for _, s := range r.sinks {
		if err := s.Send(ctx, d); err != nil {
			r.logger.Warn("sink: send failed", "subscription", d.SubscriptionID, "seq", d.Seq, "error", err)
			if first == nil {
				first = err
			}
		}
	}
	return first
}

// Close closes every sink and joins their errors.
func (r *Router) Close() error {
	var errs []error
	for _, s := range r.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
