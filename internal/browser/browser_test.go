package browser

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/domprobe/mutation"
	"github.com/hazyhaar/domprobe/observer"
	"github.com/hazyhaar/domprobe/query"
)

func TestBlockSet(t *testing.T) {
	got := blockSet([]string{"Images", " fonts", "media", "stylesheets", "xhr"})
	for _, want := range []proto.NetworkResourceType{
		proto.NetworkResourceTypeImage,
		proto.NetworkResourceTypeFont,
		proto.NetworkResourceTypeMedia,
		proto.NetworkResourceTypeStylesheet,
		proto.NetworkResourceTypeXHR,
	} {
		if !got[string(want)] {
			t.Errorf("%s not blocked", want)
		}
	}
	if got[string(proto.NetworkResourceTypeDocument)] {
		t.Error("documents must never be blocked")
	}
}

func TestIsDetached(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"object not found", fmt.Errorf("eval: %w", &rod.ObjectNotFoundError{RuntimeRemoteObject: &proto.RuntimeRemoteObject{}}), true},
		{"cdp message", errors.New("{-32000 Could not find node with given id}"), true},
		{"other", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isDetached(tt.err); got != tt.want {
				t.Fatalf("isDetached(%v): got %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{"": ModeHeadless, "headful": ModeHeadful, "plain": ModePlain, "nope": ModeHeadless} {
		if got := ParseMode(in); got != want {
			t.Errorf("ParseMode(%q): got %s, want %s", in, got, want)
		}
	}
}

func TestConfigDefaults(t *testing.T) {
	var c Config
	c.defaults()
	if c.NavigateTimeout != 30*time.Second || c.Display != ":99" || c.HeapLimit != 1<<30 {
		t.Fatalf("defaults: got %+v", c)
	}
}

const page = `<!doctype html><html><head><title>Fixture</title></head><body>
<main>
  <h1 id="title">Welcome</h1>
  <button id="go" class="primary">Go</button>
  <div id="box" data-state="1">box</div>
  <p style="display:none" id="ghost">ghost</p>
</main>
</body></html>`

// TestSession_LiveChrome drives a real browser. It runs only when a Chrome
// binary is already installed.
func TestSession_LiveChrome(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping browser test in short mode")
	}
	bin, ok := launcher.LookPath()
	if !ok {
		t.Skip("no chrome binary found")
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(page))
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	mgr := NewManager(Config{Bin: bin, Mode: ModePlain})
	if err := mgr.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer mgr.Close()

	s, err := mgr.Open(ctx, srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	eng := query.New(s)
	res := eng.Query(ctx, query.Criterion{Selector: "#go"})
	if !res.Success || res.Info.Tag != "button" || !res.Info.IsVisible {
		t.Fatalf("query #go: got %+v", res)
	}
	if res := eng.Query(ctx, query.Criterion{Role: "button", Name: "go"}); !res.Success || res.Info.ID != "go" {
		t.Fatalf("query by role: got %+v", res)
	}
	if res := eng.Query(ctx, query.Criterion{Selector: "#ghost", Visible: true}); res.Code != query.CodeNotVisible {
		t.Fatalf("hidden element: got %+v", res)
	}
	if res := eng.Query(ctx, query.Criterion{Selector: "div[["}); res.Code != query.CodeInvalidSelector {
		t.Fatalf("invalid selector: got %+v", res)
	}

	doc, err := s.Capture(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if doc.Title != "Fixture" || doc.Root.Tag != "html" {
		t.Fatalf("capture: got title %q root %q", doc.Title, doc.Root.Tag)
	}

	var (
		mu     sync.Mutex
		events []mutation.Event
		got    = make(chan struct{}, 1)
	)
	sub, err := observer.Observe(ctx, s, observer.Options{Attributes: true, Subtree: true}, func(ev mutation.Event) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
		select {
		case got <- struct{}{}:
		default:
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Eval(ctx, `() => document.getElementById('box').setAttribute('data-state', '2')`); err != nil {
		t.Fatal(err)
	}
	select {
	case <-got:
	case <-ctx.Done():
		t.Fatal("no mutation delivered")
	}
	sub.Close()

	mu.Lock()
	defer mu.Unlock()
	ev := events[0]
	if ev.Kind != mutation.KindModified || ev.Changes == nil || ev.Changes.Attribute != "data-state" {
		t.Fatalf("event: got %+v", ev)
	}
	if !strings.EqualFold(ev.Target.ID, "box") {
		t.Fatalf("target: got %+v", ev.Target)
	}
}
