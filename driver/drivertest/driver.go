package drivertest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"

	"github.com/hazyhaar/domprobe/dom"
	"github.com/hazyhaar/domprobe/driver"
)

var _ driver.Page = (*Page)(nil)

// Capture implements driver.Page.
func (p *Page) Capture(_ context.Context, selector string) (*driver.Document, error) {
	var m cascadia.Matcher
	if selector != "" {
		sel, err := cascadia.ParseGroup(selector)
		if err != nil {
			return nil, fmt.Errorf("drivertest: %w: %v", driver.ErrInvalidSelector, err)
		}
		m = sel
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	top := dom.DocumentElement(p.doc)
	if top == nil {
		return nil, fmt.Errorf("drivertest: empty document")
	}
	doc := &driver.Document{
		URL:      "about:blank",
		Viewport: p.viewport,
		Root:     p.clone(top, nil, m),
	}
	if t := cascadia.Query(p.doc, cascadia.MustCompile("title")); t != nil && t.FirstChild != nil {
		doc.Title = strings.TrimSpace(t.FirstChild.Data)
	}
	return doc, nil
}

func (p *Page) clone(n *html.Node, parent *dom.Node, m cascadia.Matcher) *dom.Node {
	src := p.nodes[n]
	out := &dom.Node{Tag: src.Tag, Attrs: src.Attrs, Text: src.Text, Style: src.Style, Parent: parent}
	if src.Box != nil {
		b := *src.Box
		out.Box = &b
	}
	if m != nil && n.Type == html.ElementNode && m.Match(n) {
		out.Matched = true
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode || c.Type == html.TextNode {
			out.Children = append(out.Children, p.clone(c, out, m))
		}
	}
	return out
}

// Select implements driver.Page.
func (p *Page) Select(_ context.Context, selector string) ([]driver.Handle, error) {
	p.mu.Lock()
	stub, ok := p.stubs[selector]
	p.mu.Unlock()
	if ok {
		return stub, nil
	}
	sel, err := cascadia.ParseGroup(selector)
	if err != nil {
		return nil, fmt.Errorf("drivertest: %w: %v", driver.ErrInvalidSelector, err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []driver.Handle
	for _, n := range cascadia.QueryAll(p.doc, sel) {
		out = append(out, &handle{page: p, node: p.nodes[n]})
	}
	return out, nil
}

// WaitSelector implements driver.Page. A static page never changes, so a
// selector with no match blocks until ctx is done.
func (p *Page) WaitSelector(ctx context.Context, selector string) (driver.Handle, error) {
	hs, err := p.Select(ctx, selector)
	if err != nil {
		return nil, err
	}
	if len(hs) > 0 {
		return hs[0], nil
	}
	<-ctx.Done()
	return nil, fmt.Errorf("drivertest: wait %q: %w", selector, ctx.Err())
}

// ByRole implements driver.Page.
func (p *Page) ByRole(_ context.Context, role, name string) ([]driver.Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []driver.Handle
	p.walkElements(func(n *html.Node, d *dom.Node) {
		if roleOf(d) != role {
			return
		}
		if name != "" && !containsFold(p.nameOf(d), name) {
			return
		}
		out = append(out, &handle{page: p, node: d})
	})
	return out, nil
}

// ByText implements driver.Page.
func (p *Page) ByText(_ context.Context, text string) ([]driver.Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []driver.Handle
	p.walkElements(func(n *html.Node, d *dom.Node) {
		if d.Style.Display == "none" && (d.Tag == "script" || d.Tag == "style" || d.Tag == "head") {
			return
		}
		var own strings.Builder
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.TextNode {
				own.WriteString(c.Data)
			}
		}
		if containsFold(strings.Join(strings.Fields(own.String()), " "), text) {
			out = append(out, &handle{page: p, node: d})
		}
	})
	return out, nil
}

func (p *Page) walkElements(fn func(*html.Node, *dom.Node)) {
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			fn(n, p.nodes[n])
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(p.doc)
}

// HTML implements driver.Page.
func (p *Page) HTML(_ context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var buf bytes.Buffer
	if err := html.Render(&buf, p.doc); err != nil {
		return "", fmt.Errorf("drivertest: render: %w", err)
	}
	return buf.String(), nil
}

// Eval implements driver.Page.
func (p *Page) Eval(_ context.Context, fn string, args ...any) (json.RawMessage, error) {
	p.mu.Lock()
	p.evals = append(p.evals, fn)
	hook := p.OnEval
	p.mu.Unlock()
	if hook == nil {
		return json.RawMessage("null"), nil
	}
	return hook(fn, args...)
}

// Expose implements driver.Page.
func (p *Page) Expose(_ context.Context, name string, fn driver.Relay) (func() error, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.bindings[name]; exists {
		return nil, fmt.Errorf("drivertest: binding %q already exposed", name)
	}
	p.bindings[name] = fn
	var once sync.Once
	release := func() error {
		once.Do(func() {
			p.mu.Lock()
			delete(p.bindings, name)
			p.mu.Unlock()
		})
		return nil
	}
	return release, nil
}

// NodeHandle wraps a node of any type as a handle on p. Tests use it with
// Stub to feed text or comment nodes to callers.
func (p *Page) NodeHandle(n *dom.Node) driver.Handle {
	return &handle{page: p, node: n}
}

type handle struct {
	page *Page
	node *dom.Node
}

func (h *handle) IsElement(_ context.Context) (bool, error) {
	if h.node == nil || h.node.Detached {
		return false, driver.ErrDetached
	}
	return h.node.IsElement(), nil
}

func (h *handle) Inspect(_ context.Context) (*driver.Element, error) {
	if h.node == nil || h.node.Detached {
		return nil, driver.ErrDetached
	}
	h.page.mu.Lock()
	vp := h.page.viewport
	h.page.mu.Unlock()
	return &driver.Element{
		Snapshot:   h.node.Snapshot(vp),
		Inspection: dom.Inspect(h.node, vp),
	}, nil
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}
