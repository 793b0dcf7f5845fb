package sink

import (
	"context"

	"github.com/hazyhaar/domprobe/mutation"
)

// DeliveryFunc handles one delivery in-process.
type DeliveryFunc func(ctx context.Context, d mutation.Delivery) error

// Callback hands deliveries to a Go function, without serialisation.
type Callback struct {
	fn DeliveryFunc
}

// NewCallback creates a Callback sink. A nil fn discards deliveries.
func NewCallback(fn DeliveryFunc) *Callback {
	return &Callback{fn: fn}
}

func (c *Callback) Send(ctx context.Context, d mutation.Delivery) error {
	if c.fn == nil {
		return nil
	}
	return c.fn(ctx, d)
}

func (c *Callback) Close() error { return nil }
