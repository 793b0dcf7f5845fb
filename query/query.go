// Package query locates elements in a live page and reports them as
// dom.Snapshot records.
//
// A Criterion names exactly one strategy; when several fields are set the
// selector wins over role + name, which wins over text. Every operation
// returns a Result value: failures never escape as Go errors.
package query

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/hazyhaar/domprobe/dom"
	"github.com/hazyhaar/domprobe/driver"
	"github.com/hazyhaar/domprobe/structure"
)

// DefaultTimeout bounds the wait for a selector in Query.
const DefaultTimeout = 5 * time.Second

// Criterion selects elements.
type Criterion struct {
	Selector string `json:"selector,omitempty"`
	Role     string `json:"role,omitempty"`
	Name     string `json:"name,omitempty"`
	Text     string `json:"text,omitempty"`
	Visible  bool   `json:"visible,omitempty"`
	MaxDepth *int   `json:"maxDepth,omitempty"`
}

// Result is the uniform success-or-failure value returned to clients.
type Result struct {
	Success   bool           `json:"success"`
	Error     string         `json:"error,omitempty"`
	Code      Code           `json:"code,omitempty"`
	Info      *dom.Snapshot  `json:"info,omitempty"`
	Elements  []dom.Snapshot `json:"elements,omitempty"`
	Structure string         `json:"structure,omitempty"`
}

// Engine runs queries against one page.
type Engine struct {
	page    driver.Page
	timeout time.Duration
	tags    dom.TagSet
	logger  *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithTimeout sets how long Query waits for a selector. Default: 5s.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) { e.timeout = d }
}

// WithSignificantTags overrides dom.SignificantTags for Structure.
func WithSignificantTags(tags dom.TagSet) Option {
	return func(e *Engine) { e.tags = tags }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New creates an Engine over page.
func New(page driver.Page, opts ...Option) *Engine {
	e := &Engine{
		page:    page,
		timeout: DefaultTimeout,
		tags:    dom.SignificantTags,
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Query resolves a single element.
func (e *Engine) Query(ctx context.Context, c Criterion) Result {
	h, err := e.resolveOne(ctx, c)
	if err != nil {
		return Failure(err)
	}
	snap, err := e.snapshot(ctx, h)
	if err != nil {
		return Failure(err)
	}
	if c.Visible && !snap.IsVisible {
		return Failure(NewError(CodeNotVisible, ReasonNotVisible, nil))
	}
	return Result{Success: true, Info: &snap}
}

// QueryAll resolves every matching element. A comma-separated selector list
// is evaluated one selector at a time and the results concatenated, so an
// element matched by two selectors appears twice. Elements removed while the
// set is being inspected are dropped.
func (e *Engine) QueryAll(ctx context.Context, c Criterion) Result {
	hs, err := e.resolveAll(ctx, c)
	if err != nil {
		return Failure(err)
	}
	out := make([]dom.Snapshot, 0, len(hs))
	for _, h := range hs {
		snap, err := e.snapshot(ctx, h)
		if err != nil {
			if qe := Classify(err); qe.Code == CodeNotFound {
				e.logger.Debug("query: skipping vanished node", "reason", qe.Reason)
				continue
			}
			return Failure(err)
		}
		out = append(out, snap)
	}
	if c.Visible {
		visible := out[:0]
		for _, s := range out {
			if s.IsVisible {
				visible = append(visible, s)
			}
		}
		out = visible
	}
	return Result{Success: true, Elements: out}
}

// Structure serializes the document outline; see package structure. The
// criterion's Selector scopes the outline and MaxDepth bounds it.
func (e *Engine) Structure(ctx context.Context, c Criterion) Result {
	depth := structure.DefaultMaxDepth
	if c.MaxDepth != nil {
		depth = *c.MaxDepth
	}
	doc, err := e.page.Capture(ctx, c.Selector)
	if err != nil {
		return Failure(err)
	}
	out, err := structure.Serialize(doc.Root, structure.Options{
		MaxDepth: depth,
		Selector: c.Selector,
		Tags:     e.tags,
		Viewport: doc.Viewport,
	})
	if err != nil {
		return Failure(err)
	}
	return Result{Success: true, Structure: out}
}

func (e *Engine) resolveOne(ctx context.Context, c Criterion) (driver.Handle, error) {
	switch {
	case c.Selector != "":
		wctx, cancel := context.WithTimeout(ctx, e.timeout)
		defer cancel()
		return e.page.WaitSelector(wctx, c.Selector)
	case c.Role != "":
		return first(e.page.ByRole(ctx, c.Role, c.Name))
	case c.Text != "":
		return first(e.page.ByText(ctx, c.Text))
	}
	return nil, NewError(CodeNotFound, ReasonNoCriteria, nil)
}

func (e *Engine) resolveAll(ctx context.Context, c Criterion) ([]driver.Handle, error) {
	switch {
	case c.Selector != "":
		var all []driver.Handle
		for _, sel := range strings.Split(c.Selector, ",") {
			sel = strings.TrimSpace(sel)
			if sel == "" {
				continue
			}
			hs, err := e.page.Select(ctx, sel)
			if err != nil {
				return nil, err
			}
			all = append(all, hs...)
		}
		return all, nil
	case c.Role != "":
		return e.page.ByRole(ctx, c.Role, c.Name)
	case c.Text != "":
		return e.page.ByText(ctx, c.Text)
	}
	return nil, NewError(CodeNotFound, ReasonNoCriteria, nil)
}

func first(hs []driver.Handle, err error) (driver.Handle, error) {
	if err != nil {
		return nil, err
	}
	if len(hs) == 0 {
		return nil, NewError(CodeNotFound, ReasonNotFound, nil)
	}
	return hs[0], nil
}

// snapshot checks the node type, then reads the element and decides its
// visibility.
func (e *Engine) snapshot(ctx context.Context, h driver.Handle) (dom.Snapshot, error) {
	if h == nil {
		return dom.Snapshot{}, NewError(CodeNotFound, ReasonNotFound, nil)
	}
	ok, err := h.IsElement(ctx)
	if err != nil {
		return dom.Snapshot{}, err
	}
	if !ok {
		return dom.Snapshot{}, NewError(CodeNotFound, ReasonNotElement, nil)
	}
	el, err := h.Inspect(ctx)
	if err != nil {
		return dom.Snapshot{}, err
	}
	snap := el.Snapshot
	snap.IsVisible = el.Inspection.Visible()
	return snap, nil
}
