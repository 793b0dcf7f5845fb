package extract

import (
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// family groups tags that render the same way.
type family int

const (
	familyContainer family = iota
	familySkip
	familyImage
	familyLink
	familyBlock
	familyList
	familyListItem
	familyHeading
	familyBreak
	familyPre
	familyTable
	familyForm
	familyMedia
)

func familyOf(a atom.Atom) family {
	switch a {
	case atom.Script, atom.Style, atom.Noscript, atom.Template, atom.Head:
		return familySkip
	case atom.Img:
		return familyImage
	case atom.A:
		return familyLink
	case atom.P, atom.Div, atom.Section, atom.Article:
		return familyBlock
	case atom.Ul, atom.Ol:
		return familyList
	case atom.Li:
		return familyListItem
	case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
		return familyHeading
	case atom.Br:
		return familyBreak
	case atom.Pre, atom.Code:
		return familyPre
	case atom.Table:
		return familyTable
	case atom.Form:
		return familyForm
	case atom.Video, atom.Audio:
		return familyMedia
	}
	return familyContainer
}

// renderer turns one element into text. indent is the list nesting depth.
type renderer interface {
	render(w *walker, n *html.Node, indent int) string
}

func rendererFor(f family) renderer {
	switch f {
	case familySkip:
		return skipRenderer{}
	case familyImage:
		return imageRenderer{}
	case familyLink:
		return linkRenderer{}
	case familyBlock:
		return blockRenderer{}
	case familyList:
		return listRenderer{}
	case familyListItem:
		return listItemRenderer{}
	case familyHeading:
		return headingRenderer{}
	case familyBreak:
		return breakRenderer{}
	case familyPre:
		return preRenderer{}
	case familyTable:
		return tableRenderer{}
	case familyForm:
		return formRenderer{}
	case familyMedia:
		return mediaRenderer{}
	case familyContainer:
		return containerRenderer{}
	}
	return containerRenderer{}
}

// Control runes carried through rendering and resolved by finish. The
// parser never emits NUL in text, and indentMark is stripped from input.
const (
	indentMark  = '\x01'
	verbatimTag = '\x00'
)

// walker holds per-render state: the document for label lookups and the
// verbatim blocks that must survive whitespace normalisation.
type walker struct {
	doc      *goquery.Document
	verbatim []string
}

func newWalker(doc *goquery.Document) *walker {
	return &walker{doc: doc}
}

func (w *walker) render(n *html.Node, indent int) string {
	switch n.Type {
	case html.TextNode:
		return renderText(n.Data)
	case html.ElementNode:
		return rendererFor(familyOf(n.DataAtom)).render(w, n, indent)
	case html.DocumentNode:
		return w.children(n, indent)
	}
	return ""
}

func (w *walker) children(n *html.Node, indent int) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		b.WriteString(w.render(c, indent))
	}
	return b.String()
}

// keep stores s untouched and returns its placeholder.
func (w *walker) keep(s string) string {
	w.verbatim = append(w.verbatim, s)
	return string(verbatimTag) + strconv.Itoa(len(w.verbatim)-1) + string(verbatimTag)
}

func (w *walker) finish(raw string) string {
	out := Normalize(raw)
	if len(w.verbatim) == 0 {
		return out
	}
	pairs := make([]string, 0, 2*len(w.verbatim))
	for i, v := range w.verbatim {
		pairs = append(pairs, string(verbatimTag)+strconv.Itoa(i)+string(verbatimTag), v)
	}
	return strings.NewReplacer(pairs...).Replace(out)
}

func marks(indent int) string {
	return strings.Repeat(string(indentMark), indent)
}

func renderText(s string) string {
	s = strings.ReplaceAll(s, string(indentMark), "")
	return collapseWhitespace(s)
}

// textOf is the trimmed, collapsed text content of n.
func textOf(n *html.Node) string {
	return strings.TrimSpace(collapseWhitespace(nodeText(n)))
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

type containerRenderer struct{}

func (containerRenderer) render(w *walker, n *html.Node, indent int) string {
	return w.children(n, indent)
}

type skipRenderer struct{}

func (skipRenderer) render(*walker, *html.Node, int) string { return "" }

type imageRenderer struct{}

func (imageRenderer) render(_ *walker, n *html.Node, _ int) string {
	src := attr(n, "src")
	if src == "" {
		return ""
	}
	return "![" + strings.TrimSpace(collapseWhitespace(attr(n, "alt"))) + "](" + src + ") "
}

// linkRenderer falls back to the children when the link has no target or
// no text, so images and headings inside anchors survive.
type linkRenderer struct{}

func (linkRenderer) render(w *walker, n *html.Node, indent int) string {
	href := attr(n, "href")
	text := textOf(n)
	if href == "" || text == "" {
		return w.children(n, indent)
	}
	return "[" + text + "](" + href + ") "
}

type blockRenderer struct{}

func (blockRenderer) render(w *walker, n *html.Node, indent int) string {
	content := w.children(n, indent)
	if strings.TrimSpace(content) == "" {
		return ""
	}
	return "\n\n" + content + "\n\n"
}

// listRenderer ends a list with a line break. Items open their own line, so
// consecutive and nested items never leave a blank line between them.
type listRenderer struct{}

func (listRenderer) render(w *walker, n *html.Node, indent int) string {
	return w.children(n, indent) + "\n"
}

type listItemRenderer struct{}

func (listItemRenderer) render(w *walker, n *html.Node, indent int) string {
	content := strings.TrimSpace(w.children(n, indent+1))
	if content == "" {
		return ""
	}
	return "\n" + marks(indent) + "- " + content
}

type headingRenderer struct{}

func (headingRenderer) render(w *walker, n *html.Node, indent int) string {
	text := strings.TrimSpace(collapseWhitespace(w.children(n, indent)))
	if text == "" {
		return ""
	}
	level := int(n.Data[1] - '0')
	return "\n\n" + strings.Repeat("#", level) + " " + text + "\n\n"
}

type breakRenderer struct{}

func (breakRenderer) render(*walker, *html.Node, int) string { return "\n" }

// preRenderer fences <pre> blocks and multi-line <code>. Single-line code
// outside <pre> stays inline.
type preRenderer struct{}

func (preRenderer) render(w *walker, n *html.Node, _ int) string {
	text := strings.Trim(nodeText(n), "\n")
	if strings.TrimSpace(text) == "" {
		return ""
	}
	if n.DataAtom == atom.Code && !strings.Contains(text, "\n") {
		return "`" + strings.TrimSpace(text) + "` "
	}
	lang := codeLanguage(n)
	return "\n\n" + w.keep("```"+lang+"\n"+text+"\n```") + "\n\n"
}

func codeLanguage(n *html.Node) string {
	target := n
	if n.DataAtom == atom.Pre {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && c.DataAtom == atom.Code {
				target = c
				break
			}
		}
	}
	for _, cls := range strings.Fields(attr(target, "class")) {
		if lang, ok := strings.CutPrefix(cls, "language-"); ok {
			return lang
		}
	}
	return ""
}

type tableRenderer struct{}

func (tableRenderer) render(_ *walker, n *html.Node, indent int) string {
	var rows []string
	goquery.NewDocumentFromNode(n).Find("tr").Each(func(_ int, tr *goquery.Selection) {
		var cells []string
		tr.Find("th, td").Each(func(_ int, cell *goquery.Selection) {
			cells = append(cells, strings.TrimSpace(collapseWhitespace(cell.Text())))
		})
		if len(cells) > 0 {
			rows = append(rows, marks(indent+1)+"| "+strings.Join(cells, " | ")+" |")
		}
	})
	if len(rows) == 0 {
		return ""
	}
	return "\n\n" + marks(indent) + "Table:\n" + strings.Join(rows, "\n") + "\n\n"
}

type formRenderer struct{}

func (formRenderer) render(w *walker, n *html.Node, indent int) string {
	var rows []string
	goquery.NewDocumentFromNode(n).Find("input, textarea, select, button").Each(func(_ int, field *goquery.Selection) {
		el := field.Get(0)
		kind := attr(el, "type")
		if kind == "" {
			kind = el.Data
		}
		row := kind
		if name := attr(el, "name"); name != "" {
			row += " (" + name + ")"
		}
		if label := w.labelFor(el); label != "" {
			row += ": " + label
		}
		rows = append(rows, marks(indent+1)+row)
	})
	if len(rows) == 0 {
		return ""
	}
	return "\n\n" + marks(indent) + "Form:\n" + strings.Join(rows, "\n") + "\n\n"
}

// labelFor resolves a form field's label: an explicit label[for=id] in the
// document, then an enclosing label minus the field's own text.
func (w *walker) labelFor(el *html.Node) string {
	if id := attr(el, "id"); id != "" {
		var found *goquery.Selection
		w.doc.Find("label").EachWithBreak(func(_ int, l *goquery.Selection) bool {
			if l.AttrOr("for", "") == id {
				found = l
				return false
			}
			return true
		})
		// An explicit label wins even when empty.
		if found != nil {
			return strings.TrimSpace(collapseWhitespace(found.Text()))
		}
	}
	for p := el.Parent; p != nil; p = p.Parent {
		if p.Type == html.ElementNode && p.DataAtom == atom.Label {
			full := textOf(p)
			own := textOf(el)
			if own != "" {
				full = strings.TrimSpace(strings.Replace(full, own, "", 1))
			}
			return strings.TrimSpace(collapseWhitespace(full))
		}
	}
	return ""
}

type mediaRenderer struct{}

func (mediaRenderer) render(_ *walker, n *html.Node, _ int) string {
	var srcs []string
	if src := attr(n, "src"); src != "" {
		srcs = append(srcs, src)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == atom.Source {
			if src := attr(c, "src"); src != "" {
				srcs = append(srcs, src)
			}
		}
	}
	var b strings.Builder
	for _, src := range srcs {
		b.WriteString("[" + n.Data + "](" + src + ") ")
	}
	return b.String()
}
