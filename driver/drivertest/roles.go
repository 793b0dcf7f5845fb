package drivertest

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/hazyhaar/domprobe/dom"
)

// roleOf approximates the ARIA role mapping browsers apply. An explicit role
// attribute wins.
func roleOf(n *dom.Node) string {
	if r := strings.Fields(n.Role()); len(r) > 0 {
		return r[0]
	}
	switch n.Tag {
	case "a", "area":
		if _, ok := n.Attrs["href"]; ok {
			return "link"
		}
	case "button":
		return "button"
	case "h1", "h2", "h3", "h4", "h5", "h6":
		return "heading"
	case "input":
		switch strings.ToLower(n.Attr("type")) {
		case "checkbox":
			return "checkbox"
		case "radio":
			return "radio"
		case "submit", "button", "reset", "image":
			return "button"
		case "range":
			return "slider"
		case "hidden":
			return ""
		default:
			return "textbox"
		}
	case "textarea":
		return "textbox"
	case "select":
		if _, ok := n.Attrs["multiple"]; ok {
			return "listbox"
		}
		return "combobox"
	case "img":
		return "img"
	case "nav":
		return "navigation"
	case "main":
		return "main"
	case "header":
		return "banner"
	case "footer":
		return "contentinfo"
	case "aside":
		return "complementary"
	case "article":
		return "article"
	case "section":
		return "region"
	case "ul", "ol":
		return "list"
	case "li":
		return "listitem"
	case "table":
		return "table"
	case "dialog":
		return "dialog"
	case "form":
		return "form"
	}
	return ""
}

// nameOf computes a simplified accessible name: aria-label, the label bound
// to the element, alt text, value for button-like inputs, then text.
func (p *Page) nameOf(n *dom.Node) string {
	if v := strings.TrimSpace(n.Attr("aria-label")); v != "" {
		return v
	}
	if id := n.ID(); id != "" {
		var label string
		p.walkElements(func(_ *html.Node, d *dom.Node) {
			if label == "" && d.Tag == "label" && d.Attr("for") == id {
				label = normalize(d.TextContent())
			}
		})
		if label != "" {
			return label
		}
	}
	if v := strings.TrimSpace(n.Attr("alt")); v != "" {
		return v
	}
	if n.Tag == "input" {
		return strings.TrimSpace(n.Attr("value"))
	}
	return normalize(n.TextContent())
}

func normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
