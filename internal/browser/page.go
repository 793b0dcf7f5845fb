package browser

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/domprobe/dom"
	"github.com/hazyhaar/domprobe/driver"
)

var (
	//go:embed js/capture.js
	captureJS string

	//go:embed js/inspect.js
	inspectJS string

	//go:embed js/bytext.js
	byTextJS string
)

const checkSelectorJS = `(s) => {
  try {
    document.createDocumentFragment().querySelector(s);
    return true;
  } catch (e) {
    return false;
  }
}`

// asJSON wraps a function expression so its result crosses CDP as one JSON
// string. undefined becomes null.
func asJSON(fn string) string {
	return `function (...args) {
  const r = (` + fn + `).apply(this, args);
  return JSON.stringify(r === undefined ? null : r);
}`
}

// Eval implements driver.Page.
func (s *Session) Eval(ctx context.Context, fn string, args ...any) (json.RawMessage, error) {
	p, err := s.live()
	if err != nil {
		return nil, err
	}
	res, err := p.Context(ctx).Eval(asJSON(fn), args...)
	if err != nil {
		return nil, fmt.Errorf("browser: eval: %w", err)
	}
	return json.RawMessage(res.Value.Str()), nil
}

// Capture implements driver.Page.
func (s *Session) Capture(ctx context.Context, selector string) (*driver.Document, error) {
	raw, err := s.Eval(ctx, captureJS, selector)
	if err != nil {
		return nil, err
	}
	var out struct {
		driver.Document
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("browser: capture: decode: %w", err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("browser: capture: %w: %s", driver.ErrInvalidSelector, out.Error)
	}
	if out.Root == nil {
		return nil, fmt.Errorf("browser: capture: empty document")
	}
	dom.Link(out.Root)
	doc := out.Document
	return &doc, nil
}

func (s *Session) checkSelector(ctx context.Context, selector string) error {
	raw, err := s.Eval(ctx, checkSelectorJS, selector)
	if err != nil {
		return err
	}
	if string(raw) != "true" {
		return fmt.Errorf("browser: %w: %q", driver.ErrInvalidSelector, selector)
	}
	return nil
}

// Select implements driver.Page.
func (s *Session) Select(ctx context.Context, selector string) ([]driver.Handle, error) {
	if err := s.checkSelector(ctx, selector); err != nil {
		return nil, err
	}
	p, err := s.live()
	if err != nil {
		return nil, err
	}
	els, err := p.Context(ctx).Elements(selector)
	if err != nil {
		return nil, fmt.Errorf("browser: select %q: %w", selector, err)
	}
	return handles(els), nil
}

// WaitSelector implements driver.Page. rod retries until ctx is done.
func (s *Session) WaitSelector(ctx context.Context, selector string) (driver.Handle, error) {
	if err := s.checkSelector(ctx, selector); err != nil {
		return nil, err
	}
	p, err := s.live()
	if err != nil {
		return nil, err
	}
	el, err := p.Context(ctx).Element(selector)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("browser: wait %q: %w", selector, ctxErr)
		}
		return nil, fmt.Errorf("browser: wait %q: %w", selector, err)
	}
	return &handle{el: el}, nil
}

// ByRole implements driver.Page through the accessibility tree, so implicit
// roles count. name matches case-insensitively as a substring.
func (s *Session) ByRole(ctx context.Context, role, name string) ([]driver.Handle, error) {
	p, err := s.live()
	if err != nil {
		return nil, err
	}
	p = p.Context(ctx)
	doc, err := proto.DOMGetDocument{}.Call(p)
	if err != nil {
		return nil, fmt.Errorf("browser: by role: document: %w", err)
	}
	tree, err := proto.AccessibilityQueryAXTree{
		BackendNodeID: doc.Root.BackendNodeID,
		Role:          role,
	}.Call(p)
	if err != nil {
		return nil, fmt.Errorf("browser: by role %q: %w", role, err)
	}

	var out []driver.Handle
	for _, n := range tree.Nodes {
		if n.Ignored || n.BackendDOMNodeID == 0 {
			continue
		}
		if name != "" && !containsFold(axString(n.Name), name) {
			continue
		}
		el, err := p.ElementFromNode(&proto.DOMNode{BackendNodeID: n.BackendDOMNodeID})
		if err != nil {
			s.logger.Debug("browser: by role: resolve node", "role", role, "error", err)
			continue
		}
		out = append(out, &handle{el: el})
	}
	return out, nil
}

func axString(v *proto.AccessibilityAXValue) string {
	if v == nil {
		return ""
	}
	return v.Value.Str()
}

// ByText implements driver.Page.
func (s *Session) ByText(ctx context.Context, text string) ([]driver.Handle, error) {
	p, err := s.live()
	if err != nil {
		return nil, err
	}
	els, err := p.Context(ctx).ElementsByJS(rod.Eval(byTextJS, text))
	if err != nil {
		return nil, fmt.Errorf("browser: by text: %w", err)
	}
	return handles(els), nil
}

// HTML implements driver.Page.
func (s *Session) HTML(ctx context.Context) (string, error) {
	p, err := s.live()
	if err != nil {
		return "", err
	}
	out, err := p.Context(ctx).HTML()
	if err != nil {
		return "", fmt.Errorf("browser: html: %w", err)
	}
	return out, nil
}

// Expose implements driver.Page with a CDP binding. Calls are delivered one
// at a time, in the order the document made them.
func (s *Session) Expose(ctx context.Context, name string, fn driver.Relay) (func() error, error) {
	p, err := s.live()
	if err != nil {
		return nil, err
	}
	if err := (proto.RuntimeAddBinding{Name: name}).Call(p.Context(ctx)); err != nil {
		return nil, fmt.Errorf("browser: add binding %s: %w", name, err)
	}

	lctx, cancel := context.WithCancel(context.Background())
	wait := p.Context(lctx).EachEvent(func(e *proto.RuntimeBindingCalled) {
		if e.Name == name {
			fn(e.Payload)
		}
	})
	go wait()

	var (
		once   sync.Once
		relErr error
	)
	release := func() error {
		once.Do(func() {
			// The listener may be the caller; do not wait for it to exit.
			cancel()
			if p, err := s.live(); err == nil {
				if err := (proto.RuntimeRemoveBinding{Name: name}).Call(p); err != nil {
					relErr = fmt.Errorf("browser: remove binding %s: %w", name, err)
				}
			}
		})
		return relErr
	}
	return release, nil
}

func handles(els rod.Elements) []driver.Handle {
	out := make([]driver.Handle, 0, len(els))
	for _, el := range els {
		out = append(out, &handle{el: el})
	}
	return out
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

// handle is a driver.Handle over a remote element.
type handle struct {
	el *rod.Element
}

func (h *handle) eval(ctx context.Context, fn string) (json.RawMessage, error) {
	res, err := h.el.Context(ctx).Eval(asJSON(fn))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if isDetached(err) {
			return nil, driver.ErrDetached
		}
		return nil, fmt.Errorf("browser: element eval: %w", err)
	}
	return json.RawMessage(res.Value.Str()), nil
}

// isDetached reports whether err means the remote node is gone.
func isDetached(err error) bool {
	var notFound *rod.ObjectNotFoundError
	if errors.As(err, &notFound) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "Could not find") || strings.Contains(msg, "Cannot find")
}

// IsElement implements driver.Handle.
func (h *handle) IsElement(ctx context.Context) (bool, error) {
	raw, err := h.eval(ctx, `function () { return this.nodeType === Node.ELEMENT_NODE; }`)
	if err != nil {
		return false, err
	}
	return string(raw) == "true", nil
}

// Inspect implements driver.Handle.
func (h *handle) Inspect(ctx context.Context) (*driver.Element, error) {
	raw, err := h.eval(ctx, inspectJS)
	if err != nil {
		return nil, err
	}
	var in struct {
		Connected bool              `json:"connected"`
		Tag       string            `json:"tag"`
		Attrs     map[string]string `json:"attrs"`
		Text      string            `json:"text"`
		Style     dom.Style         `json:"style"`
		Ancestors []dom.Style       `json:"ancestors"`
		Box       *dom.Rect         `json:"box"`
		Viewport  dom.Viewport      `json:"viewport"`
	}
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, fmt.Errorf("browser: inspect: decode: %w", err)
	}
	if !in.Connected {
		return nil, driver.ErrDetached
	}
	if in.Attrs == nil {
		in.Attrs = map[string]string{}
	}
	classes := strings.Fields(in.Attrs["class"])
	if classes == nil {
		classes = []string{}
	}
	return &driver.Element{
		Snapshot: dom.Snapshot{
			Tag:        in.Tag,
			ID:         in.Attrs["id"],
			Classes:    classes,
			Attributes: in.Attrs,
			Text:       strings.TrimSpace(in.Text),
			Position:   in.Box,
		},
		Inspection: dom.Inspection{
			Style:     in.Style,
			Ancestors: in.Ancestors,
			Box:       in.Box,
			Viewport:  in.Viewport,
			Connected: true,
		},
	}, nil
}
