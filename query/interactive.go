package query

import (
	"context"
	"strings"

	"github.com/hazyhaar/domprobe/dom"
)

// InteractiveSelector matches the elements Interactive reports.
const InteractiveSelector = `button, input, textarea, select, [role="button"], [role="checkbox"], [role="radio"]`

// Kind is the interaction family of a control.
type Kind string

const (
	KindButton   Kind = "button"
	KindTextArea Kind = "textarea"
	KindRadio    Kind = "radio"
	KindCheckbox Kind = "checkbox"
	KindSlider   Kind = "range"
	KindSelect   Kind = "select"
	KindText     Kind = "text"
	KindSubmit   Kind = "submit"
)

// Interactive describes one control a client could act on.
type Interactive struct {
	Kind      Kind      `json:"type"`
	Tag       string    `json:"tag"`
	ID        string    `json:"id,omitempty"`
	Name      string    `json:"name,omitempty"`
	Value     string    `json:"value,omitempty"`
	Label     string    `json:"label,omitempty"`
	Bounds    *dom.Rect `json:"bounds,omitempty"`
	IsVisible bool      `json:"isVisible"`
	IsEnabled bool      `json:"isEnabled"`
}

// InteractiveResult lists the page's controls.
type InteractiveResult struct {
	Success  bool          `json:"success"`
	Error    string        `json:"error,omitempty"`
	Code     Code          `json:"code,omitempty"`
	Elements []Interactive `json:"elements"`
}

// Interactive lists buttons, inputs, text areas and selects in document
// order. Controls whose kind cannot be determined (hidden inputs, file
// pickers) are skipped.
func (e *Engine) Interactive(ctx context.Context) InteractiveResult {
	doc, err := e.page.Capture(ctx, InteractiveSelector)
	if err != nil {
		f := Failure(err)
		return InteractiveResult{Error: f.Error, Code: f.Code, Elements: []Interactive{}}
	}

	labels := make(map[string]string)
	dom.Walk(doc.Root, func(n *dom.Node) bool {
		if n.Tag == "label" {
			if id := n.Attr("for"); id != "" {
				if _, seen := labels[id]; !seen {
					labels[id] = strings.TrimSpace(n.TextContent())
				}
			}
		}
		return true
	})

	out := []Interactive{}
	dom.Walk(doc.Root, func(n *dom.Node) bool {
		if !n.IsElement() || !n.Matched {
			return true
		}
		kind, ok := kindOf(n)
		if !ok {
			return true
		}
		item := Interactive{
			Kind:      kind,
			Tag:       n.Tag,
			ID:        n.ID(),
			Name:      n.Attr("name"),
			Value:     n.Attr("value"),
			Label:     labelOf(n, labels),
			IsVisible: dom.IsVisible(n, doc.Viewport),
			IsEnabled: !hasAttr(n, "disabled"),
		}
		if n.Box != nil {
			b := *n.Box
			item.Bounds = &b
		}
		out = append(out, item)
		return true
	})
	return InteractiveResult{Success: true, Elements: out}
}

func kindOf(n *dom.Node) (Kind, bool) {
	typ := strings.ToLower(n.Attr("type"))
	switch n.Tag {
	case "button":
		if typ == "submit" {
			return KindSubmit, true
		}
		return KindButton, true
	case "textarea":
		return KindTextArea, true
	case "select":
		return KindSelect, true
	case "input":
		switch typ {
		case "button", "reset":
			return KindButton, true
		case "radio":
			return KindRadio, true
		case "checkbox":
			return KindCheckbox, true
		case "range":
			return KindSlider, true
		case "submit", "image":
			return KindSubmit, true
		case "", "text", "email", "password", "search", "tel", "url", "number":
			return KindText, true
		}
		return "", false
	}
	switch strings.ToLower(n.Role()) {
	case "button":
		return KindButton, true
	case "checkbox":
		return KindCheckbox, true
	case "radio":
		return KindRadio, true
	}
	return "", false
}

// labelOf resolves the label bound by id, then an enclosing <label>, then
// aria-label.
func labelOf(n *dom.Node, byFor map[string]string) string {
	if id := n.ID(); id != "" {
		if l, ok := byFor[id]; ok {
			return l
		}
	}
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Tag == "label" {
			return strings.TrimSpace(p.TextContent())
		}
	}
	return strings.TrimSpace(n.Attr("aria-label"))
}

func hasAttr(n *dom.Node, name string) bool {
	_, ok := n.Attrs[name]
	return ok
}
