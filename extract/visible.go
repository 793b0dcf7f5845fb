package extract

import (
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hazyhaar/domprobe/dom"
)

// Visible runs the pipeline over the part of a captured tree a user can see.
// An element is kept when it is visible in vp or when one of its
// descendants is; text is kept only under a visible element. title comes
// from the live document since <head> is never visible.
func Visible(root *dom.Node, vp dom.Viewport, title string, opts Options) (res Result) {
	opts.defaults()
	defer func() {
		if r := recover(); r != nil {
			opts.Logger.Error("extract: visible: panic", "error", r)
			res = Result{Title: title, Content: FailureText}
		}
	}()

	doc := &html.Node{Type: html.DocumentNode}
	if pruned := prune(root, vp); pruned != nil {
		doc.AppendChild(pruned)
	}
	if body := findAtom(doc, atom.Body); body == nil {
		// mainContent falls back to <body>; wrap whatever survived.
		wrapped := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
		for c := doc.FirstChild; c != nil; {
			next := c.NextSibling
			doc.RemoveChild(c)
			wrapped.AppendChild(c)
			c = next
		}
		doc.AppendChild(wrapped)
	}

	gq := goquery.NewDocumentFromNode(doc)
	res = Result{
		Title:       strings.TrimSpace(title),
		Description: metaDescription(root),
	}
	res.Content = mainContent(gq, opts)
	return res
}

func prune(n *dom.Node, vp dom.Viewport) *html.Node {
	if n == nil || !n.IsElement() {
		return nil
	}
	visible := dom.IsVisible(n, vp)
	out := &html.Node{
		Type:     html.ElementNode,
		Data:     n.Tag,
		DataAtom: atom.Lookup([]byte(n.Tag)),
		Attr:     attrsOf(n),
	}
	kept := visible
	for _, c := range n.Children {
		if !c.IsElement() {
			if visible && c.Text != "" {
				out.AppendChild(&html.Node{Type: html.TextNode, Data: c.Text})
			}
			continue
		}
		if pc := prune(c, vp); pc != nil {
			out.AppendChild(pc)
			kept = true
		}
	}
	if !kept {
		return nil
	}
	return out
}

func attrsOf(n *dom.Node) []html.Attribute {
	if len(n.Attrs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(n.Attrs))
	for k := range n.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]html.Attribute, 0, len(keys))
	for _, k := range keys {
		out = append(out, html.Attribute{Key: k, Val: n.Attrs[k]})
	}
	return out
}

func metaDescription(root *dom.Node) string {
	var desc string
	dom.Walk(root, func(n *dom.Node) bool {
		if desc != "" {
			return false
		}
		if n.Tag == "meta" && strings.EqualFold(n.Attr("name"), "description") {
			desc = strings.TrimSpace(n.Attr("content"))
			return false
		}
		return true
	})
	return desc
}

func findAtom(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if f := findAtom(c, a); f != nil {
			return f
		}
	}
	return nil
}
