package structure

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/hazyhaar/domprobe/dom"
)

func first(t *testing.T, root *dom.Node, tag string) *dom.Node {
	t.Helper()
	var found *dom.Node
	dom.Walk(root, func(n *dom.Node) bool {
		if found == nil && n.Tag == tag {
			found = n
		}
		return found == nil
	})
	if found == nil {
		t.Fatalf("no <%s> in tree", tag)
	}
	return found
}

func parse(t *testing.T, src string) *dom.Node {
	t.Helper()
	root, err := dom.ParseString(src)
	if err != nil {
		t.Fatal(err)
	}
	return root
}

func TestSerialize_MaxDepthZero(t *testing.T) {
	root := parse(t, `<div><p>A</p><div><span>x</span></div><section><p>B</p></section></div>`)
	div := first(t, root, "div")

	got, err := Serialize(div, Options{MaxDepth: 0})
	if err != nil {
		t.Fatal(err)
	}
	want := "<div>\n" +
		"    <p>A</p>\n" +
		"    <div>...</div>\n" +
		"    <section>\n" +
		"        <p>B</p></section></div>"
	if got != want {
		t.Fatalf("serialize:\ngot:\n%s\nwant:\n%s", got, want)
	}
}

func TestSerialize_SignificantBranchExpands(t *testing.T) {
	root := parse(t, `<div><p>A</p><section class="x"><p>B</p></section><div><p>C</p></div></div>`)
	div := first(t, root, "div")

	got, err := Serialize(div, Options{MaxDepth: 1})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(got, "<section class=\"x\">\n        <p>B</p></section>") {
		t.Errorf("section should be expanded, got:\n%s", got)
	}
	if !strings.Contains(got, "    <div>...</div>") {
		t.Errorf("plain div at depth 1 should be elided, got:\n%s", got)
	}
	if strings.Contains(got, "<p>C</p>") {
		t.Errorf("elided branch leaked its content:\n%s", got)
	}
}

func TestSerialize_WholeDocumentRootAlwaysExpands(t *testing.T) {
	got, err := SerializeHTML(`<html><head></head><body><div><p>x</p></div></body></html>`, Options{MaxDepth: 0})
	if err != nil {
		t.Fatal(err)
	}
	want := "<html>\n    <head></head>\n    <body>...</body></html>"
	if got != want {
		t.Fatalf("got:\n%s\nwant:\n%s", got, want)
	}
}

func TestSerialize_AttributeOrder(t *testing.T) {
	root := parse(t, `<nav role="navigation" class="b a" id="top" data-x="1">menu</nav>`)
	nav := first(t, root, "nav")
	got, err := Serialize(nav, Options{MaxDepth: 3})
	if err != nil {
		t.Fatal(err)
	}
	want := `<nav id="top" class="b a" role="navigation">menu</nav>`
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestSerialize_TextBudget(t *testing.T) {
	long := strings.Repeat("a", 60)
	exact := strings.Repeat("b", 50)
	root := parse(t, `<div><p>`+long+`</p><p>  `+exact+`  </p><p></p></div>`)
	got, err := Serialize(first(t, root, "div"), Options{MaxDepth: 3})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(got, "<p>"+strings.Repeat("a", 47)+"...</p>") {
		t.Errorf("long text should be clipped to 47 + marker:\n%s", got)
	}
	if !strings.Contains(got, "<p>"+exact+"</p>") {
		t.Errorf("50 characters should fit:\n%s", got)
	}
	if !strings.Contains(got, "<p></p>") {
		t.Errorf("empty leaf should keep its tag pair:\n%s", got)
	}
}

func TestSerialize_Scoped(t *testing.T) {
	src := `<html><body>
<ul class="a"><li>1</li><li><ul class="a"><li>2</li></ul></li></ul>
<ul class="a"><li>3</li></ul>
</body></html>`
	got, err := SerializeHTML(src, Options{MaxDepth: 3, Selector: "ul.a"})
	if err != nil {
		t.Fatal(err)
	}
	want := "[\n" +
		"    <ul class=\"a\">\n" +
		"        <li>1</li>\n" +
		"        <li>\n" +
		"            <ul class=\"a\">\n" +
		"                <li>2</li></ul></li></ul>,\n" +
		"    <ul class=\"a\">\n" +
		"        <li>3</li></ul>\n" +
		"]"
	if got != want {
		t.Fatalf("scoped:\ngot:\n%s\nwant:\n%s", got, want)
	}
}

func TestSerialize_ScopedDepthRestartsPerMatch(t *testing.T) {
	src := `<div><div><div><div><p>deep</p></div></div></div></div>`
	got, err := SerializeHTML(src, Options{MaxDepth: 1, Selector: "body > div"})
	if err != nil {
		t.Fatal(err)
	}
	// Root match expands, its child at depth 1 collapses.
	want := "[\n    <div>\n        <div>...</div></div>\n]"
	if got != want {
		t.Fatalf("got:\n%s\nwant:\n%s", got, want)
	}
}

func TestSerialize_ScopedNotFound(t *testing.T) {
	_, err := SerializeHTML(`<p>x</p>`, Options{Selector: "table"})
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("want NotFoundError, got %v", err)
	}
	if err.Error() != "Elements not found: table" {
		t.Fatalf("message: got %q", err.Error())
	}
}

func TestSerialize_InvalidSelector(t *testing.T) {
	if _, err := SerializeHTML(`<p>x</p>`, Options{Selector: "p[["}); err == nil {
		t.Fatal("malformed selector should fail")
	}
}

func TestBuild_ElisionMarker(t *testing.T) {
	root := parse(t, `<div><div><span>x</span></div></div>`)
	nodes, err := Build(first(t, root, "div"), Options{MaxDepth: 0})
	if err != nil {
		t.Fatal(err)
	}
	if len(nodes) != 1 {
		t.Fatalf("nodes: got %d, want 1", len(nodes))
	}
	data, err := json.Marshal(nodes[0])
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"children":["..."]`) {
		t.Fatalf("collapsed child should marshal to the marker, got %s", data)
	}
}
