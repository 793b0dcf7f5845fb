package dom

import (
	"fmt"
	"io"
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// Parse reads an HTML document and converts it to a Node tree rooted at the
// <html> element.
func Parse(r io.Reader) (*Node, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("dom: parse: %w", err)
	}
	root := DocumentElement(doc)
	if root == nil {
		return nil, fmt.Errorf("dom: parse: no document element")
	}
	return Convert(root, nil), nil
}

// ParseString is Parse over a string.
func ParseString(s string) (*Node, error) {
	return Parse(strings.NewReader(s))
}

// DocumentElement returns the first element child of an html.Parse result.
func DocumentElement(doc *html.Node) *html.Node {
	if doc == nil {
		return nil
	}
	if doc.Type == html.ElementNode {
		return doc
	}
	for c := doc.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			return c
		}
	}
	return nil
}

// Convert copies an x/net/html subtree into a Node tree. Comments and
// doctypes are dropped. When m is non-nil, elements it matches get Matched.
func Convert(n *html.Node, m cascadia.Matcher) *Node {
	out := &Node{Tag: strings.ToLower(n.Data)}
	if len(n.Attr) > 0 {
		out.Attrs = make(map[string]string, len(n.Attr))
		for _, a := range n.Attr {
			out.Attrs[a.Key] = a.Val
		}
	}
	if m != nil && m.Match(n) {
		out.Matched = true
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.ElementNode:
			child := Convert(c, m)
			child.Parent = out
			out.Children = append(out.Children, child)
		case html.TextNode:
			out.Children = append(out.Children, &Node{Tag: TextTag, Text: c.Data, Parent: out})
		}
	}
	return out
}

// CompileSelector compiles a CSS selector group. Callers use it to reject a
// malformed selector before walking any tree.
func CompileSelector(sel string) (cascadia.SelectorGroup, error) {
	g, err := cascadia.ParseGroup(sel)
	if err != nil {
		return nil, fmt.Errorf("dom: selector %q: %w", sel, err)
	}
	return g, nil
}
