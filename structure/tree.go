package structure

import (
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/net/html"

	"github.com/hazyhaar/domprobe/dom"
)

// Node is the parallel, JSON-friendly form of the outline. A collapsed
// element carries a single elided child.
type Node struct {
	Tag       string   `json:"tag"`
	ID        string   `json:"id,omitempty"`
	Classes   []string `json:"classes"`
	Role      string   `json:"role,omitempty"`
	Text      string   `json:"text,omitempty"`
	Children  []Child  `json:"children,omitempty"`
	IsVisible bool     `json:"isVisible"`
}

// Child is either a nested Node or the elision marker.
type Child struct {
	Node   *Node
	Elided bool
}

// MarshalJSON encodes an elided child as the bare marker string.
func (c Child) MarshalJSON() ([]byte, error) {
	if c.Elided || c.Node == nil {
		return json.Marshal(Elision)
	}
	return json.Marshal(c.Node)
}

// Build returns the outline as Node values. In scoped mode one Node is
// returned per top-level match.
func Build(root *dom.Node, opts Options) ([]*Node, error) {
	opts.defaults()
	if opts.Selector == "" {
		return []*Node{build(root, 0, true, opts)}, nil
	}
	matches := TopLevelMatches(root)
	if len(matches) == 0 {
		return nil, &NotFoundError{Selector: opts.Selector}
	}
	out := make([]*Node, 0, len(matches))
	for _, m := range matches {
		out = append(out, build(m, 0, true, opts))
	}
	return out, nil
}

func build(n *dom.Node, depth int, root bool, opts Options) *Node {
	out := &Node{
		Tag:       n.Tag,
		ID:        n.ID(),
		Classes:   n.Classes(),
		Role:      n.Role(),
		IsVisible: dom.IsVisible(n, opts.Viewport),
	}
	if out.Classes == nil {
		out.Classes = []string{}
	}
	kids := n.ElementChildren()
	switch {
	case len(kids) == 0:
		out.Text = clip(strings.TrimSpace(n.TextContent()))
	case !expands(n, depth, root, opts):
		out.Text = Elision
		out.Children = []Child{{Elided: true}}
	default:
		for _, c := range kids {
			out.Children = append(out.Children, Child{Node: build(c, depth+1, false, opts)})
		}
	}
	return out
}

// SerializeHTML runs Serialize over an offline HTML document, starting at the
// <html> element.
func SerializeHTML(src string, opts Options) (string, error) {
	doc, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return "", fmt.Errorf("structure: parse: %w", err)
	}
	top := dom.DocumentElement(doc)
	if top == nil {
		return "", fmt.Errorf("structure: parse: empty document")
	}
	if opts.Selector == "" {
		return Serialize(dom.Convert(top, nil), opts)
	}
	sel, err := dom.CompileSelector(opts.Selector)
	if err != nil {
		return "", fmt.Errorf("structure: %w", err)
	}
	return Serialize(dom.Convert(top, sel), opts)
}
