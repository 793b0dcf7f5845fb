package sink

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"

	"github.com/hazyhaar/domprobe/mutation"
)

// Stdout writes one JSON envelope per line to an io.Writer.
type Stdout struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewStdout creates a Stdout sink. A nil w means os.Stdout.
func NewStdout(w io.Writer) *Stdout {
	if w == nil {
		w = os.Stdout
	}
	return &Stdout{enc: json.NewEncoder(w)}
}

func (s *Stdout) Send(_ context.Context, d mutation.Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(envelope{Type: envelopeMutation, Data: d})
}

func (s *Stdout) Close() error { return nil }

const envelopeMutation = "mutation"

type envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}
