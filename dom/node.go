// Package dom models a captured document tree and answers the two pure
// questions asked about any element: is it visible, and is it significant
// enough to survive depth truncation.
//
// A tree comes either from a live page (the browser driver captures it in one
// evaluate round trip, computed styles and boxes included) or from an offline
// HTML string via Convert, in which case style and geometry are absent.
package dom

import (
	"strings"
)

// TextTag is the tag carried by text nodes.
const TextTag = "#text"

// Style holds the computed style properties that decide visibility.
type Style struct {
	Display    string `json:"display,omitempty"`
	Visibility string `json:"visibility,omitempty"`
	Opacity    string `json:"opacity,omitempty"`
}

// Hidden reports whether this style alone hides the element and its subtree.
func (s Style) Hidden() bool {
	return s.Display == "none" || s.Visibility == "hidden" || s.Opacity == "0"
}

// Rect is a bounding box in CSS pixels, relative to the viewport.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Viewport is the size of the visible window.
type Viewport struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Node is one node of a captured tree. Element nodes carry a lowercase tag
// and attributes; text nodes carry TextTag and their data in Text.
type Node struct {
	Tag      string            `json:"tag"`
	Attrs    map[string]string `json:"attrs,omitempty"`
	Text     string            `json:"text,omitempty"`
	Style    Style             `json:"style,omitzero"`
	Box      *Rect             `json:"box,omitempty"`
	Matched  bool              `json:"matched,omitempty"`
	Detached bool              `json:"detached,omitempty"`
	Children []*Node           `json:"children,omitempty"`

	Parent *Node `json:"-"`
}

// IsElement reports whether n is an element node.
func (n *Node) IsElement() bool {
	return n != nil && n.Tag != TextTag
}

// Attr returns the value of an attribute, or "" when absent.
func (n *Node) Attr(name string) string {
	if n == nil {
		return ""
	}
	return n.Attrs[name]
}

// ID returns the id attribute.
func (n *Node) ID() string { return n.Attr("id") }

// Role returns the role attribute.
func (n *Node) Role() string { return n.Attr("role") }

// Classes returns the class list in document order.
func (n *Node) Classes() []string {
	return strings.Fields(n.Attr("class"))
}

// ElementChildren returns the element children of n, skipping text nodes.
func (n *Node) ElementChildren() []*Node {
	var out []*Node
	for _, c := range n.Children {
		if c.IsElement() {
			out = append(out, c)
		}
	}
	return out
}

// TextContent concatenates the data of every descendant text node.
func (n *Node) TextContent() string {
	if n == nil {
		return ""
	}
	if !n.IsElement() {
		return n.Text
	}
	var b strings.Builder
	var walk func(*Node)
	walk = func(x *Node) {
		for _, c := range x.Children {
			if c.IsElement() {
				walk(c)
			} else {
				b.WriteString(c.Text)
			}
		}
	}
	walk(n)
	return b.String()
}

// Link sets Parent pointers across the subtree rooted at n. Trees decoded
// from JSON need it before IsVisible can walk ancestors.
func Link(n *Node) {
	for _, c := range n.Children {
		c.Parent = n
		Link(c)
	}
}

// Walk visits n and its descendants depth first, in document order. Returning
// false from fn skips the children of the node.
func Walk(n *Node, fn func(*Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	for _, c := range n.Children {
		Walk(c, fn)
	}
}

// Snapshot is the uniform record returned for a located element. It is built
// fresh for every query and owned by the caller.
type Snapshot struct {
	Tag        string            `json:"tag"`
	ID         string            `json:"id,omitempty"`
	Classes    []string          `json:"classes"`
	Attributes map[string]string `json:"attributes"`
	Text       string            `json:"text,omitempty"`
	IsVisible  bool              `json:"isVisible"`
	Position   *Rect             `json:"position,omitempty"`
}

// Snapshot describes n as seen through the given viewport.
func (n *Node) Snapshot(vp Viewport) Snapshot {
	attrs := make(map[string]string, len(n.Attrs))
	for k, v := range n.Attrs {
		attrs[k] = v
	}
	s := Snapshot{
		Tag:        n.Tag,
		ID:         n.ID(),
		Classes:    n.Classes(),
		Attributes: attrs,
		Text:       strings.TrimSpace(n.TextContent()),
		IsVisible:  IsVisible(n, vp),
	}
	if s.Classes == nil {
		s.Classes = []string{}
	}
	if n.Box != nil {
		box := *n.Box
		s.Position = &box
	}
	return s
}
