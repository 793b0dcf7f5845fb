// Package extract turns raw HTML into Markdown-flavoured prose.
//
// The pipeline works offline on an x/net/html tree: strip <style> blocks,
// read title and description, locate the main content region, render it
// through one renderer per tag family, then normalise the text. It never
// fails: any internal error yields FailureText as the content.
package extract

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// FailureText replaces the content when the pipeline cannot process a page.
const FailureText = "Failed to process webpage content"

// DefaultMinContentLength is the length a main-content candidate must exceed.
const DefaultMinContentLength = 100

// DefaultSelectors are the main-content candidates, in priority order.
var DefaultSelectors = []string{
	"article",
	"main",
	`[role="main"]`,
	"#main-content",
	".main-content",
	"#content",
	".content",
}

// Options configures extraction.
type Options struct {
	// MinContentLength is the floor a candidate's rendered text must exceed.
	// Default: 100.
	MinContentLength int

	// Selectors overrides DefaultSelectors.
	Selectors []string

	Logger *slog.Logger
}

func (o *Options) defaults() {
	if o.MinContentLength <= 0 {
		o.MinContentLength = DefaultMinContentLength
	}
	if len(o.Selectors) == 0 {
		o.Selectors = DefaultSelectors
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Result is the outcome of Extract.
type Result struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Content     string `json:"content"`
}

// Document assembles the structured Markdown document.
func (r Result) Document() string {
	title := "# No Title"
	if r.Title != "" {
		title = "# " + r.Title
	}
	parts := []string{title}
	if r.Description != "" {
		parts = append(parts, "\n## Description\n"+r.Description)
	}
	parts = append(parts, "\n## Content")
	if r.Content != "" {
		parts = append(parts, r.Content)
	}
	return strings.Join(parts, "\n")
}

var styleBlockRe = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)

// Extract runs the pipeline over src.
func Extract(src string, opts Options) (res Result) {
	opts.defaults()
	defer func() {
		if r := recover(); r != nil {
			opts.Logger.Error("extract: panic", "error", r)
			res = Result{Content: FailureText}
		}
	}()

	src = styleBlockRe.ReplaceAllString(src, "")
	root, err := html.Parse(strings.NewReader(src))
	if err != nil {
		opts.Logger.Warn("extract: parse", "error", err)
		return Result{Content: FailureText}
	}
	return extractDocument(goquery.NewDocumentFromNode(root), opts)
}

// Markdown runs the pipeline and returns the structured document.
func Markdown(src string, opts Options) (out string) {
	defer func() {
		if r := recover(); r != nil {
			out = FailureText
		}
	}()
	return Extract(src, opts).Document()
}

func extractDocument(doc *goquery.Document, opts Options) Result {
	res := Result{
		Title:       strings.TrimSpace(doc.Find("title").First().Text()),
		Description: strings.TrimSpace(doc.Find(`meta[name="description"]`).First().AttrOr("content", "")),
	}
	res.Content = mainContent(doc, opts)
	return res
}

// mainContent renders the first candidate whose text exceeds the floor, or
// the whole body without scripts and styles.
func mainContent(doc *goquery.Document, opts Options) string {
	for _, sel := range opts.Selectors {
		found := doc.Find(sel)
		if found.Length() == 0 {
			continue
		}
		text := renderNode(doc, found.Get(0))
		if utf8.RuneCountInString(text) > opts.MinContentLength {
			opts.Logger.Debug("extract: main content", "selector", sel, "length", len(text))
			return text
		}
	}

	body := doc.Find("body").First()
	if body.Length() == 0 {
		return ""
	}
	clone := body.Clone()
	clone.Find("script, style").Remove()
	return renderNode(doc, clone.Get(0))
}

func renderNode(doc *goquery.Document, n *html.Node) string {
	w := newWalker(doc)
	return w.finish(w.render(n, 0))
}

// String is a debugging aid for a Result.
func (r Result) String() string {
	return fmt.Sprintf("extract.Result{title=%q, description=%q, content=%d bytes}", r.Title, r.Description, len(r.Content))
}
