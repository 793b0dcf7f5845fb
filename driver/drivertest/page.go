// Package drivertest provides an in-memory driver.Page built from static
// HTML, for tests that must not start Chrome.
//
// Layout is faked: every element gets the box given by its data-box
// attribute ("x,y,width,height") or a default 100x20 box at the origin.
// Computed style comes from the inline style attribute and the hidden
// attribute; head, script, style and template are display:none. Elements under
// a display:none ancestor get an empty box, as in a browser.
package drivertest

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"

	"github.com/hazyhaar/domprobe/dom"
	"github.com/hazyhaar/domprobe/driver"
)

// EvalFunc answers Eval calls.
type EvalFunc func(fn string, args ...any) (json.RawMessage, error)

// Page is a static document. It is safe for concurrent use.
type Page struct {
	mu       sync.Mutex
	src      string
	doc      *html.Node
	nodes    map[*html.Node]*dom.Node
	viewport dom.Viewport
	bindings map[string]driver.Relay
	stubs    map[string][]driver.Handle
	evals    []string

	// OnEval answers Eval. When nil, Eval returns null.
	OnEval EvalFunc
}

// New parses src into a Page with a 1280x720 viewport.
func New(src string) (*Page, error) {
	doc, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("drivertest: parse: %w", err)
	}
	p := &Page{
		src:      src,
		doc:      doc,
		viewport: dom.Viewport{Width: 1280, Height: 720},
		bindings: make(map[string]driver.Relay),
		stubs:    make(map[string][]driver.Handle),
	}
	p.index()
	return p, nil
}

// MustNew is New for test setup.
func MustNew(src string) *Page {
	p, err := New(src)
	if err != nil {
		panic(err)
	}
	return p
}

// SetViewport changes the viewport size.
func (p *Page) SetViewport(vp dom.Viewport) {
	p.mu.Lock()
	p.viewport = vp
	p.mu.Unlock()
}

// Stub makes Select and WaitSelector return hs for selector.
func (p *Page) Stub(selector string, hs ...driver.Handle) {
	p.mu.Lock()
	p.stubs[selector] = hs
	p.mu.Unlock()
}

// Remove detaches every element matching selector. Handles obtained earlier
// report driver.ErrDetached.
func (p *Page) Remove(selector string) error {
	sel, err := cascadia.ParseGroup(selector)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, n := range cascadia.QueryAll(p.doc, sel) {
		d := p.nodes[n]
		dom.Walk(d, func(x *dom.Node) bool {
			x.Detached = true
			return true
		})
		if parent := d.Parent; parent != nil {
			kept := parent.Children[:0]
			for _, c := range parent.Children {
				if c != d {
					kept = append(kept, c)
				}
			}
			parent.Children = kept
		}
		if n.Parent != nil {
			n.Parent.RemoveChild(n)
		}
	}
	return nil
}

// Emit calls the binding registered under name. It reports false when no
// such binding is registered.
func (p *Page) Emit(name, payload string) bool {
	p.mu.Lock()
	fn, ok := p.bindings[name]
	p.mu.Unlock()
	if !ok {
		return false
	}
	fn(payload)
	return true
}

// Bindings lists the names currently exposed.
func (p *Page) Bindings() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.bindings))
	for name := range p.bindings {
		out = append(out, name)
	}
	return out
}

// Evals returns the scripts passed to Eval so far.
func (p *Page) Evals() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.evals...)
}

// index builds the dom.Node mirror with fake style and layout.
func (p *Page) index() {
	p.nodes = make(map[*html.Node]*dom.Node)
	top := dom.DocumentElement(p.doc)
	if top == nil {
		return
	}
	var build func(n *html.Node, parent *dom.Node, hidden bool) *dom.Node
	build = func(n *html.Node, parent *dom.Node, hidden bool) *dom.Node {
		d := &dom.Node{Tag: strings.ToLower(n.Data), Parent: parent}
		if len(n.Attr) > 0 {
			d.Attrs = make(map[string]string, len(n.Attr))
			for _, a := range n.Attr {
				d.Attrs[a.Key] = a.Val
			}
		}
		d.Style = styleOf(d)
		hidden = hidden || d.Style.Display == "none"
		if hidden {
			d.Box = &dom.Rect{}
		} else {
			d.Box = boxOf(d)
		}
		p.nodes[n] = d
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			switch c.Type {
			case html.ElementNode:
				d.Children = append(d.Children, build(c, d, hidden))
			case html.TextNode:
				t := &dom.Node{Tag: dom.TextTag, Text: c.Data, Parent: d}
				p.nodes[c] = t
				d.Children = append(d.Children, t)
			}
		}
		return d
	}
	build(top, nil, false)
}

func styleOf(n *dom.Node) dom.Style {
	var s dom.Style
	switch n.Tag {
	case "head", "script", "style", "template", "noscript":
		s.Display = "none"
	default:
		s.Display = "block"
	}
	s.Visibility = "visible"
	s.Opacity = "1"
	if _, ok := n.Attrs["hidden"]; ok {
		s.Display = "none"
	}
	for _, decl := range strings.Split(n.Attr("style"), ";") {
		k, v, ok := strings.Cut(decl, ":")
		if !ok {
			continue
		}
		v = strings.TrimSpace(v)
		switch strings.TrimSpace(strings.ToLower(k)) {
		case "display":
			s.Display = v
		case "visibility":
			s.Visibility = v
		case "opacity":
			s.Opacity = v
		}
	}
	return s
}

func boxOf(n *dom.Node) *dom.Rect {
	raw := n.Attr("data-box")
	if raw == "" {
		return &dom.Rect{Width: 100, Height: 20}
	}
	parts := strings.Split(raw, ",")
	var v [4]float64
	for i := 0; i < len(parts) && i < 4; i++ {
		v[i], _ = strconv.ParseFloat(strings.TrimSpace(parts[i]), 64)
	}
	return &dom.Rect{X: v[0], Y: v[1], Width: v[2], Height: v[3]}
}
