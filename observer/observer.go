// Package observer implements the mutation bridge: a MutationObserver
// installed in the page relays change batches through an exposed binding,
// and each batch is split into mutation.Event values delivered in order to a
// host callback.
//
// A Subscription is Observing from the moment Observe returns until Close.
// Close is terminal and idempotent. Once it has been called no event reaches
// the callback, even if the in-page observer could not be disconnected (the
// page may have navigated away).
package observer

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hazyhaar/domprobe/driver"
	"github.com/hazyhaar/domprobe/idgen"
	"github.com/hazyhaar/domprobe/mutation"
	"github.com/hazyhaar/domprobe/query"
)

//go:embed watch.js
var watchJS string

const disconnectJS = `(name) => {
  const w = window.__domprobeWatchers;
  if (w && w[name]) {
    w[name].disconnect();
    delete w[name];
  }
  return true;
}`

// Options selects which changes are watched.
type Options struct {
	Attributes      bool     `json:"attributes"`
	ChildList       bool     `json:"childList"`
	Subtree         bool     `json:"subtree"`
	AttributeFilter []string `json:"attributeFilter,omitempty"`

	// Selector names the watched root. Default: document.body.
	Selector string `json:"selector,omitempty"`
}

func (o *Options) defaults() {
	if !o.Attributes && !o.ChildList {
		o.Attributes = true
	}
	if len(o.AttributeFilter) > 0 {
		o.Attributes = true
	}
}

// Callback receives each event. It runs on the relay goroutine; a slow
// callback delays later events but never reorders them.
type Callback func(mutation.Event)

// State is the lifecycle state of a Subscription.
type State int32

const (
	StateObserving State = iota + 1
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateObserving:
		return "observing"
	case StateClosed:
		return "closed"
	}
	return "idle"
}

// Subscription is a live watch owned by the caller.
type Subscription struct {
	id      string
	binding string
	page    driver.Page
	release func() error
	cb      Callback
	logger  *slog.Logger
	timeout time.Duration

	// mu is held for reading across each delivery and for writing while
	// Close flips the state, so no callback runs after Close returns.
	mu        sync.RWMutex
	state     atomic.Int32
	delivered atomic.Uint64
	closeOnce sync.Once
}

// Option configures Observe.
type Option func(*Subscription)

// WithID sets the subscription id. Default: a fresh UUIDv7.
func WithID(id string) Option {
	return func(s *Subscription) { s.id = id }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Subscription) { s.logger = l }
}

// WithCloseTimeout bounds the best-effort disconnect in Close. Default: 2s.
func WithCloseTimeout(d time.Duration) Option {
	return func(s *Subscription) { s.timeout = d }
}

var bindingName = idgen.Identifier("__domprobe_")

// Observe installs a watch on page and returns its Subscription. Setup
// failures are reported as *query.Error with CodeObserver; nothing stays
// registered in that case.
func Observe(ctx context.Context, page driver.Page, opts Options, cb Callback, options ...Option) (*Subscription, error) {
	if cb == nil {
		return nil, query.NewError(query.CodeObserver, "observer: nil callback", nil)
	}
	opts.defaults()

	s := &Subscription{
		binding: bindingName(),
		page:    page,
		cb:      cb,
		logger:  slog.Default(),
		timeout: 2 * time.Second,
	}
	for _, o := range options {
		o(s)
	}
	if s.id == "" {
		s.id = idgen.New()
	}

	release, err := page.Expose(ctx, s.binding, s.relay)
	if err != nil {
		return nil, query.NewError(query.CodeObserver, fmt.Sprintf("observer: expose relay: %v", err), err)
	}
	s.release = release
	s.state.Store(int32(StateObserving))

	if err := s.install(ctx, opts); err != nil {
		s.state.Store(int32(StateClosed))
		if rerr := release(); rerr != nil {
			s.logger.Warn("observer: release after failed install", "binding", s.binding, "error", rerr)
		}
		return nil, query.NewError(query.CodeObserver, err.Error(), err)
	}

	s.logger.Info("observer: watching",
		"subscription", s.id, "binding", s.binding,
		"attributes", opts.Attributes, "child_list", opts.ChildList, "subtree", opts.Subtree)
	return s, nil
}

func (s *Subscription) install(ctx context.Context, opts Options) error {
	raw, err := s.page.Eval(ctx, watchJS, s.binding, opts)
	if err != nil {
		return fmt.Errorf("observer: install: %w", err)
	}
	var res struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		return fmt.Errorf("observer: install: decode result: %w", err)
	}
	if !res.OK {
		if res.Error == "" {
			res.Error = "watch not installed"
		}
		return fmt.Errorf("observer: install: %s", res.Error)
	}
	return nil
}

// relay is the binding target. Batches that fail to decode are logged and
// dropped; they never reach the callback.
func (s *Subscription) relay(payload string) {
	if s.State() != StateObserving {
		return
	}
	events, err := mutation.DecodeBatch([]byte(payload))
	if err != nil {
		s.logger.Warn("observer: bad relay payload", "subscription", s.id, "error", err)
		return
	}
	for _, ev := range events {
		if !s.deliver(ev) {
			return
		}
	}
}

func (s *Subscription) deliver(ev mutation.Event) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.State() != StateObserving {
		return false
	}
	s.delivered.Add(1)
	s.cb(ev)
	return true
}

// Close ends the subscription. The relay is released first so no further
// event is delivered, then the in-page observer is disconnected on a best
// effort basis. Close waits for an event being delivered to finish, so it
// must not be called from the callback. Close always returns nil; later
// calls do nothing.
func (s *Subscription) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.state.Store(int32(StateClosed))
		s.mu.Unlock()
		if err := s.release(); err != nil {
			s.logger.Debug("observer: release relay", "subscription", s.id, "error", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		if _, err := s.page.Eval(ctx, disconnectJS, s.binding); err != nil {
			s.logger.Debug("observer: disconnect", "subscription", s.id, "error", err)
		}
		s.logger.Info("observer: closed", "subscription", s.id, "delivered", s.delivered.Load())
	})
	return nil
}

// ID returns the subscription id.
func (s *Subscription) ID() string { return s.id }

// Binding returns the name of the in-page relay function.
func (s *Subscription) Binding() string { return s.binding }

// State returns the current lifecycle state.
func (s *Subscription) State() State { return State(s.state.Load()) }

// Delivered returns the number of events handed to the callback.
func (s *Subscription) Delivered() uint64 { return s.delivered.Load() }
