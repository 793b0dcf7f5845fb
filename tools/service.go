// Package tools exposes the domprobe operations to clients: one Endpoint per
// tool, served as MCP tools and as POST /v1/<tool> HTTP routes.
//
// A Service owns the open pages (keyed by session id, "default" when the
// client names none) and the observe subscriptions. Every failure a client
// can cause is returned as a {success:false, error} payload; Go errors from
// an endpoint mean the service itself broke.
package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/domprobe/dom"
	"github.com/hazyhaar/domprobe/driver"
	"github.com/hazyhaar/domprobe/extract"
	"github.com/hazyhaar/domprobe/idgen"
	"github.com/hazyhaar/domprobe/internal/sink"
	"github.com/hazyhaar/domprobe/observer"
	"github.com/hazyhaar/domprobe/query"
)

// DefaultSession is the session used when a request names none.
const DefaultSession = "default"

// ErrNoPage is reported when a tool runs before navigate opened a page.
var ErrNoPage = errors.New("tools: no page open, call navigate first")

// Page is a driver.Page the service can steer and close.
type Page interface {
	driver.Page
	Navigate(ctx context.Context, url string) error
	URL() string
	Close() error
}

// Opener opens a new page, navigated to url when non-empty.
type Opener interface {
	Open(ctx context.Context, url string) (Page, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context, url string) (Page, error)

// Open implements Opener.
func (f OpenerFunc) Open(ctx context.Context, url string) (Page, error) { return f(ctx, url) }

// Config tunes a Service.
type Config struct {
	QueryTimeout    time.Duration
	MaxDepth        int
	SignificantTags dom.TagSet
	Extract         extract.Options

	// CheckURL vets every URL before navigation. Nil allows all.
	CheckURL func(url string) error

	// CallTimeout bounds one tool call. Zero means no bound.
	CallTimeout time.Duration

	// ObserveBuffer is the poll queue size of each subscription.
	ObserveBuffer int
	CloseTimeout  time.Duration

	// Sinks receive every subscription's events besides the poll queue.
	// The service never closes them.
	Sinks []sink.Sink

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.QueryTimeout <= 0 {
		c.QueryTimeout = query.DefaultTimeout
	}
	if c.MaxDepth <= 0 {
		c.MaxDepth = 3
	}
	if c.SignificantTags == nil {
		c.SignificantTags = dom.SignificantTags
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = time.Minute
	}
	if c.ObserveBuffer <= 0 {
		c.ObserveBuffer = 1000
	}
	if c.CloseTimeout <= 0 {
		c.CloseTimeout = 2 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// watch is one observe subscription with its poll queue.
type watch struct {
	session string
	sub     *observer.Subscription
	queue   *sink.Queue
}

// Service holds the state behind the tools.
type Service struct {
	cfg    Config
	opener Opener
	logger *slog.Logger

	// base outlives single calls; subscriptions deliver under it.
	base   context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	sessions map[string]Page
	watches  map[string]*watch
	closed   bool
}

// New creates a Service that opens pages through opener.
func New(opener Opener, cfg Config) *Service {
	cfg.defaults()
	base, cancel := context.WithCancel(context.Background())
	return &Service{
		cfg:      cfg,
		opener:   opener,
		logger:   cfg.Logger,
		base:     base,
		cancel:   cancel,
		sessions: make(map[string]Page),
		watches:  make(map[string]*watch),
	}
}

// Adopt registers an already open page under id. It replaces and closes any
// page held under the same id.
func (s *Service) Adopt(id string, p Page) {
	id = sessionID(id)
	s.mu.Lock()
	old := s.sessions[id]
	s.sessions[id] = p
	s.mu.Unlock()
	if old != nil && old != p {
		s.closeSession(id, old)
	}
}

func sessionID(id string) string {
	if id == "" {
		return DefaultSession
	}
	return id
}

func (s *Service) page(id string) (Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, driver.ErrClosed
	}
	p, ok := s.sessions[sessionID(id)]
	if !ok {
		return nil, ErrNoPage
	}
	return p, nil
}

func (s *Service) engine(p Page) *query.Engine {
	return query.New(p,
		query.WithTimeout(s.cfg.QueryTimeout),
		query.WithSignificantTags(s.cfg.SignificantTags),
		query.WithLogger(s.logger),
	)
}

// navigate loads url in the session, opening the page on first use.
func (s *Service) navigate(ctx context.Context, id, url string) (Page, error) {
	if s.cfg.CheckURL != nil {
		if err := s.cfg.CheckURL(url); err != nil {
			return nil, err
		}
	}
	id = sessionID(id)
	s.mu.Lock()
	p, ok := s.sessions[id]
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, driver.ErrClosed
	}
	if ok {
		if err := p.Navigate(ctx, url); err != nil {
			return nil, err
		}
		return p, nil
	}

	p, err := s.opener.Open(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("tools: open session %s: %w", id, err)
	}
	s.mu.Lock()
	if existing, ok := s.sessions[id]; ok {
		// A concurrent navigate won; keep its page.
		s.mu.Unlock()
		p.Close()
		if err := existing.Navigate(ctx, url); err != nil {
			return nil, err
		}
		return existing, nil
	}
	s.sessions[id] = p
	s.mu.Unlock()
	s.logger.Info("tools: session opened", "session", id, "url", url)
	return p, nil
}

// observe starts a subscription on the session page. Events go to a poll
// queue and to every configured sink.
func (s *Service) observe(ctx context.Context, id string, opts observer.Options) (*watch, error) {
	p, err := s.page(id)
	if err != nil {
		return nil, err
	}
	subID := idgen.New()
	queue := sink.NewQueue(s.cfg.ObserveBuffer)
	out := sink.Sink(queue)
	if len(s.cfg.Sinks) > 0 {
		out = sink.NewRouter(s.logger, append([]sink.Sink{queue}, s.cfg.Sinks...)...)
	}

	sub, err := observer.Observe(ctx, p, opts,
		sink.Forward(s.base, out, subID, s.logger),
		observer.WithID(subID),
		observer.WithLogger(s.logger),
		observer.WithCloseTimeout(s.cfg.CloseTimeout),
	)
	if err != nil {
		return nil, err
	}
	w := &watch{session: sessionID(id), sub: sub, queue: queue}
	s.mu.Lock()
	s.watches[subID] = w
	s.mu.Unlock()
	return w, nil
}

func (s *Service) watch(subID string) (*watch, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.watches[subID]
	return w, ok
}

// unwatch closes and forgets a subscription. It reports false for an
// unknown id.
func (s *Service) unwatch(subID string) bool {
	s.mu.Lock()
	w, ok := s.watches[subID]
	delete(s.watches, subID)
	s.mu.Unlock()
	if !ok {
		return false
	}
	w.sub.Close()
	w.queue.Close()
	return true
}

// closeSession closes the subscriptions on a session, then its page.
func (s *Service) closeSession(id string, p Page) {
	s.mu.Lock()
	var subs []string
	for subID, w := range s.watches {
		if w.session == id {
			subs = append(subs, subID)
		}
	}
	s.mu.Unlock()
	for _, subID := range subs {
		s.unwatch(subID)
	}
	if err := p.Close(); err != nil {
		s.logger.Warn("tools: close session", "session", id, "error", err)
	}
}

// Close stops every subscription and closes every page.
func (s *Service) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	sessions := s.sessions
	s.sessions = make(map[string]Page)
	s.mu.Unlock()

	for id, p := range sessions {
		s.closeSession(id, p)
	}
	s.cancel()
	s.logger.Info("tools: closed", "sessions", len(sessions))
	return nil
}
