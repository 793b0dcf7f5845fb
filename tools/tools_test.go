package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/domprobe/driver/drivertest"
	"github.com/hazyhaar/domprobe/internal/sink"
	"github.com/hazyhaar/domprobe/mutation"
	"github.com/hazyhaar/domprobe/observer"
	"github.com/hazyhaar/domprobe/query"
)

const fixture = `<!doctype html><html><head><title>Fixture</title>
<meta name="description" content="A test page"></head><body>
<nav><a href="/home">Home</a></nav>
<main>
  <h1 id="title">Welcome</h1>
  <p>This paragraph is long enough to make the main element win over the body fallback when the page is extracted.</p>
  <button id="go" class="primary">Go</button>
  <label for="email">Email</label><input id="email" name="email" type="email">
  <p id="ghost" style="display:none">ghost</p>
</main>
</body></html>`

// testPage is a drivertest page that remembers navigation and closing.
type testPage struct {
	*drivertest.Page

	mu     sync.Mutex
	url    string
	closed bool
}

func (p *testPage) Navigate(_ context.Context, url string) error {
	p.mu.Lock()
	p.url = url
	p.mu.Unlock()
	return nil
}

func (p *testPage) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

func (p *testPage) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

func (p *testPage) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// newService returns a Service whose opener hands out fixture pages. The
// install script of the observer is answered with ok.
func newService(t *testing.T, cfg Config) (*Service, *[]*testPage) {
	t.Helper()
	var (
		mu    sync.Mutex
		pages []*testPage
	)
	opener := OpenerFunc(func(_ context.Context, url string) (Page, error) {
		p := &testPage{Page: drivertest.MustNew(fixture), url: url}
		p.OnEval = func(fn string, args ...any) (json.RawMessage, error) {
			if strings.Contains(fn, "MutationObserver") {
				return json.RawMessage(`{"ok":true}`), nil
			}
			return json.RawMessage("true"), nil
		}
		mu.Lock()
		pages = append(pages, p)
		mu.Unlock()
		return p, nil
	})
	svc := New(opener, cfg)
	t.Cleanup(func() { svc.Close() })
	return svc, &pages
}

func connect(t *testing.T, svc *Service) *mcp.ClientSession {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	srv := mcp.NewServer(&mcp.Implementation{Name: "domprobe-test", Version: "test"}, nil)
	svc.RegisterMCP(srv)
	serverT, clientT := mcp.NewInMemoryTransports()
	go srv.Run(ctx, serverT)

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "test"}, nil)
	session, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session
}

func call(t *testing.T, session *mcp.ClientSession, name string, args map[string]any, out any) {
	t.Helper()
	res, err := session.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		t.Fatalf("%s: %v", name, err)
	}
	if res.IsError {
		t.Fatalf("%s: tool error: %+v", name, res.Content)
	}
	text, ok := res.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("%s: content is %T, want text", name, res.Content[0])
	}
	if err := json.Unmarshal([]byte(text.Text), out); err != nil {
		t.Fatalf("%s: decode %q: %v", name, text.Text, err)
	}
}

func TestMCP_ListsEveryTool(t *testing.T) {
	svc, _ := newService(t, Config{})
	session := connect(t, svc)

	res, err := session.ListTools(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	got := make(map[string]bool)
	for _, tool := range res.Tools {
		got[tool.Name] = true
	}
	for _, name := range []string{
		"get_structure", "query_element", "query_all", "observe_start", "observe_poll",
		"observe_stop", "get_all_content", "get_commonmark", "get_visible_content",
		"get_interactive_elements", "navigate",
	} {
		if !got[name] {
			t.Errorf("tool %s not registered", name)
		}
	}
	if len(svc.Names()) != len(res.Tools) {
		t.Fatalf("tools: got %d, want %d", len(res.Tools), len(svc.Names()))
	}
}

func TestMCP_ToolBeforeNavigate(t *testing.T) {
	svc, _ := newService(t, Config{})
	session := connect(t, svc)

	var res query.Result
	call(t, session, "query_element", map[string]any{"selector": "#go"}, &res)
	if res.Success {
		t.Fatal("query before navigate succeeded")
	}
	if res.Error != ErrNoPage.Error() {
		t.Fatalf("error: got %q, want %q", res.Error, ErrNoPage.Error())
	}
}

func TestMCP_NavigateAndQuery(t *testing.T) {
	svc, pages := newService(t, Config{})
	session := connect(t, svc)

	var nav NavigateResult
	call(t, session, "navigate", map[string]any{"url": "https://example.test/a"}, &nav)
	if !nav.Success || nav.Session != DefaultSession || nav.URL != "https://example.test/a" {
		t.Fatalf("navigate: got %+v", nav)
	}
	call(t, session, "navigate", map[string]any{"url": "https://example.test/b"}, &nav)
	if len(*pages) != 1 {
		t.Fatalf("pages opened: got %d, want 1", len(*pages))
	}
	if nav.URL != "https://example.test/b" {
		t.Fatalf("second navigate: got %q", nav.URL)
	}

	var res query.Result
	call(t, session, "query_element", map[string]any{"selector": "#go"}, &res)
	if !res.Success || res.Info == nil || res.Info.Tag != "button" || !res.Info.IsVisible {
		t.Fatalf("query_element: got %+v", res)
	}

	call(t, session, "query_element", map[string]any{"selector": "#ghost", "visible": true}, &res)
	if res.Success || res.Code != query.CodeNotVisible {
		t.Fatalf("hidden element: got %+v", res)
	}

	call(t, session, "query_element", map[string]any{"selector": "div[["}, &res)
	if res.Code != query.CodeInvalidSelector {
		t.Fatalf("invalid selector: got %+v", res)
	}

	call(t, session, "query_all", map[string]any{"selector": "h1, button"}, &res)
	if !res.Success || len(res.Elements) != 2 {
		t.Fatalf("query_all: got %+v", res)
	}

	call(t, session, "get_structure", map[string]any{"selector": "main"}, &res)
	if !res.Success || !strings.Contains(res.Structure, `<button id="go" class="primary">Go</button>`) {
		t.Fatalf("get_structure: got %+v", res)
	}
}

func TestMCP_Content(t *testing.T) {
	svc, _ := newService(t, Config{})
	session := connect(t, svc)

	var nav NavigateResult
	call(t, session, "navigate", map[string]any{"url": "https://example.test/"}, &nav)

	var all ContentResult
	call(t, session, "get_all_content", nil, &all)
	if !all.Success || all.Title != "Fixture" || all.Description != "A test page" {
		t.Fatalf("get_all_content: got %+v", all)
	}
	if !strings.HasPrefix(all.Content, "# Fixture\n") || strings.Contains(all.Content, "[Home]") {
		t.Fatalf("main content not preferred: %q", all.Content)
	}

	var cm ContentResult
	call(t, session, "get_commonmark", nil, &cm)
	if !cm.Success || !strings.Contains(cm.Content, "# Welcome") {
		t.Fatalf("get_commonmark: got %+v", cm)
	}

	var vis ContentResult
	call(t, session, "get_visible_content", nil, &vis)
	if !vis.Success || strings.Contains(vis.Content, "ghost") || !strings.Contains(vis.Content, "Welcome") {
		t.Fatalf("get_visible_content: got %+v", vis)
	}

	var ctrl query.InteractiveResult
	call(t, session, "get_interactive_elements", nil, &ctrl)
	if !ctrl.Success || len(ctrl.Elements) != 2 {
		t.Fatalf("get_interactive_elements: got %+v", ctrl)
	}
	if ctrl.Elements[1].ID != "email" || ctrl.Elements[1].Label != "Email" {
		t.Fatalf("input: got %+v", ctrl.Elements[1])
	}
}

const attrBatch = `[{"type":"modified","tag":"main","attributes":{"data-state":"2"},"visible":true,
  "attribute":"data-state","oldValue":"1","newValue":"2"}]`

func TestMCP_ObserveLifecycle(t *testing.T) {
	var (
		mu        sync.Mutex
		forwarded []mutation.Delivery
	)
	extra := sink.NewCallback(func(_ context.Context, d mutation.Delivery) error {
		mu.Lock()
		forwarded = append(forwarded, d)
		mu.Unlock()
		return nil
	})
	svc, pages := newService(t, Config{Sinks: []sink.Sink{extra}})
	session := connect(t, svc)

	var nav NavigateResult
	call(t, session, "navigate", map[string]any{"url": "https://example.test/"}, &nav)

	var start ObserveResult
	call(t, session, "observe_start", map[string]any{"attributes": true, "subtree": true}, &start)
	if !start.Success || start.SubscriptionID == "" {
		t.Fatalf("observe_start: got %+v", start)
	}

	page := (*pages)[0]
	bindings := page.Bindings()
	if len(bindings) != 1 {
		t.Fatalf("bindings: got %v", bindings)
	}
	page.Emit(bindings[0], attrBatch)
	page.Emit(bindings[0], attrBatch)

	var poll PollResult
	call(t, session, "observe_poll", map[string]any{"subscriptionId": start.SubscriptionID, "max": 1}, &poll)
	if !poll.Success || len(poll.Events) != 1 || poll.Pending != 1 {
		t.Fatalf("observe_poll: got %+v", poll)
	}
	if poll.Events[0].Seq != 1 || poll.Events[0].Event.Kind != mutation.KindModified {
		t.Fatalf("event: got %+v", poll.Events[0])
	}

	var stop StopResult
	call(t, session, "observe_stop", map[string]any{"subscriptionId": start.SubscriptionID}, &stop)
	if !stop.Success || stop.Delivered != 2 {
		t.Fatalf("observe_stop: got %+v", stop)
	}
	if len(page.Bindings()) != 0 {
		t.Fatal("relay still exposed after stop")
	}

	call(t, session, "observe_poll", map[string]any{"subscriptionId": start.SubscriptionID}, &poll)
	if poll.Success || poll.Code != query.CodeObserver {
		t.Fatalf("poll after stop: got %+v", poll)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(forwarded) != 2 {
		t.Fatalf("extra sink: got %d deliveries, want 2", len(forwarded))
	}
}

func TestService_CloseReleasesPages(t *testing.T) {
	svc, pages := newService(t, Config{})
	ctx := context.Background()
	if _, err := svc.navigate(ctx, "", "https://example.test/"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.navigate(ctx, "other", "https://example.test/"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.observe(ctx, "other", observer.Options{Attributes: true}); err != nil {
		t.Fatal(err)
	}
	svc.Close()
	for i, p := range *pages {
		if !p.isClosed() {
			t.Errorf("page %d left open", i)
		}
		if len(p.Bindings()) != 0 {
			t.Errorf("page %d: relay left exposed", i)
		}
	}
	if _, err := svc.page(""); err == nil {
		t.Fatal("page lookup after close succeeded")
	}
}

func TestHTTP_Routes(t *testing.T) {
	svc, _ := newService(t, Config{})
	r := chi.NewRouter()
	svc.RegisterHTTP(r)
	srv := httptest.NewServer(r)
	defer srv.Close()

	post := func(tool, body string) *http.Response {
		t.Helper()
		resp, err := http.Post(srv.URL+"/v1/"+tool, "application/json", bytes.NewBufferString(body))
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { resp.Body.Close() })
		return resp
	}

	tests := []struct {
		tool       string
		body       string
		wantStatus int
		wantIn     string
	}{
		{"query_element", `{"selector":"#go"}`, http.StatusOK, `"success":false`},
		{"navigate", `{"url":"https://example.test/"}`, http.StatusOK, `"session":"default"`},
		{"query_element", `{"selector":"#go"}`, http.StatusOK, `"tag":"button"`},
		{"get_structure", ``, http.StatusOK, `"structure":"\u003chtml\u003e`},
		{"query_element", `{"selector":`, http.StatusBadRequest, `invalid arguments`},
		{"no_such_tool", `{}`, http.StatusNotFound, ``},
	}
	for _, tt := range tests {
		resp := post(tt.tool, tt.body)
		if resp.StatusCode != tt.wantStatus {
			t.Fatalf("%s %s: status got %d, want %d", tt.tool, tt.body, resp.StatusCode, tt.wantStatus)
		}
		var buf bytes.Buffer
		buf.ReadFrom(resp.Body)
		if tt.wantIn != "" && !strings.Contains(buf.String(), tt.wantIn) {
			t.Fatalf("%s %s: body %q lacks %q", tt.tool, tt.body, buf.String(), tt.wantIn)
		}
	}
}

func TestNavigate_URLRejected(t *testing.T) {
	svc, pages := newService(t, Config{CheckURL: func(url string) error {
		if strings.HasPrefix(url, "file:") {
			return errors.New("only http and https URLs may be loaded")
		}
		return nil
	}})
	res, err := svc.navigateEndpoint(context.Background(), &navigateRequest{URL: "file:///etc/passwd"})
	if err != nil {
		t.Fatal(err)
	}
	nav := res.(NavigateResult)
	if nav.Success || !strings.Contains(nav.Error, "only http") {
		t.Fatalf("navigate: got %+v", nav)
	}
	if len(*pages) != 0 {
		t.Fatalf("pages opened: got %d, want 0", len(*pages))
	}
}
