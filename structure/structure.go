// Package structure renders a depth-bounded outline of a document tree.
//
// One algorithm serves both output shapes. At each element: a leaf (no element
// children) prints its tag, its id/class/role attributes and up to 50
// characters of text on one line. An element with children is expanded when it
// is the traversal root, significant (see dom.IsSignificant) or shallower than
// MaxDepth; otherwise its body collapses to the elision marker.
//
// Without a selector the outline starts at the given root. With a selector,
// each top-level match (a match with no matching ancestor) is rendered from
// depth 0 and the blocks are wrapped in a bracketed, comma-separated array.
package structure

import (
	"strings"
	"unicode/utf8"

	"github.com/hazyhaar/domprobe/dom"
)

const (
	// Elision stands in for a collapsed subtree or clipped text.
	Elision = "..."

	// DefaultMaxDepth is the depth budget used when a caller gives none.
	DefaultMaxDepth = 3

	textBudget = 50
	indentUnit = "    "
)

// Options controls one serialization.
type Options struct {
	// MaxDepth is the depth below which non-significant elements still
	// expand. Negative values behave as 0.
	MaxDepth int

	// Selector switches to scoped mode. The tree must have been captured or
	// converted with the same selector so that Matched flags are set.
	Selector string

	// Tags overrides dom.SignificantTags.
	Tags dom.TagSet

	// Viewport is used by Build to fill visibility flags.
	Viewport dom.Viewport
}

func (o *Options) defaults() {
	if o.MaxDepth < 0 {
		o.MaxDepth = 0
	}
	if o.Tags == nil {
		o.Tags = dom.SignificantTags
	}
}

// NotFoundError reports a scoped serialization whose selector matched nothing.
type NotFoundError struct {
	Selector string
}

func (e *NotFoundError) Error() string {
	return "Elements not found: " + e.Selector
}

// Serialize renders root as indented pseudo-markup.
func Serialize(root *dom.Node, opts Options) (string, error) {
	opts.defaults()
	if opts.Selector == "" {
		return render(root, 0, true, opts), nil
	}

	matches := TopLevelMatches(root)
	if len(matches) == 0 {
		return "", &NotFoundError{Selector: opts.Selector}
	}
	blocks := make([]string, 0, len(matches))
	for _, m := range matches {
		blocks = append(blocks, indentLines(render(m, 0, true, opts)))
	}
	return "[\n" + strings.Join(blocks, ",\n") + "\n]", nil
}

// TopLevelMatches returns the Matched elements under root, in document order,
// skipping any match nested inside another match.
func TopLevelMatches(root *dom.Node) []*dom.Node {
	var out []*dom.Node
	dom.Walk(root, func(n *dom.Node) bool {
		if !n.IsElement() {
			return false
		}
		if n.Matched {
			out = append(out, n)
			return false
		}
		return true
	})
	return out
}

func expands(n *dom.Node, depth int, root bool, opts Options) bool {
	return root || dom.IsSignificant(n, opts.Tags) || depth < opts.MaxDepth
}

func render(n *dom.Node, depth int, root bool, opts Options) string {
	open := "<" + n.Tag + attributes(n) + ">"
	end := "</" + n.Tag + ">"

	kids := n.ElementChildren()
	if len(kids) == 0 {
		return open + clip(strings.TrimSpace(n.TextContent())) + end
	}
	if !expands(n, depth, root, opts) {
		return open + Elision + end
	}

	var b strings.Builder
	b.WriteString(open)
	for _, c := range kids {
		out := render(c, depth+1, false, opts)
		for _, line := range strings.Split(out, "\n") {
			if strings.TrimSpace(line) == "" {
				continue
			}
			b.WriteByte('\n')
			b.WriteString(indentUnit)
			b.WriteString(line)
		}
	}
	return strings.TrimRight(b.String(), " \t\n") + end
}

// attributes prints id, class and role in that order.
func attributes(n *dom.Node) string {
	var parts []string
	if id := n.ID(); id != "" {
		parts = append(parts, `id="`+id+`"`)
	}
	if cls := n.Classes(); len(cls) > 0 {
		parts = append(parts, `class="`+strings.Join(cls, " ")+`"`)
	}
	if role := n.Role(); role != "" {
		parts = append(parts, `role="`+role+`"`)
	}
	if len(parts) == 0 {
		return ""
	}
	return " " + strings.Join(parts, " ")
}

// clip keeps text within the 50 character budget: 47 characters plus the
// elision marker when longer.
func clip(s string) string {
	if utf8.RuneCountInString(s) <= textBudget {
		return s
	}
	r := []rune(s)
	return string(r[:textBudget-len(Elision)]) + Elision
}

func indentLines(s string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = indentUnit + l
	}
	return strings.Join(lines, "\n")
}
