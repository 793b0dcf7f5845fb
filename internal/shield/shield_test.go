package shield

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func ok(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }

func do(h http.Handler, path, addr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, nil)
	req.RemoteAddr = addr
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestSecurityHeaders(t *testing.T) {
	rec := do(SecurityHeaders(http.HandlerFunc(ok)), "/v1/navigate", "1.2.3.4:1000")
	for k, want := range map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Cache-Control":          "no-store",
	} {
		if got := rec.Header().Get(k); got != want {
			t.Errorf("%s: got %q, want %q", k, got, want)
		}
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute, nil, "/health")
	now := time.Unix(1000, 0)
	rl.now = func() time.Time { return now }
	h := rl.Middleware(http.HandlerFunc(ok))

	for i, want := range []int{200, 200, 429} {
		if rec := do(h, "/v1/query_element", "1.2.3.4:1000"); rec.Code != want {
			t.Fatalf("request %d: got %d, want %d", i, rec.Code, want)
		}
	}
	if rec := do(h, "/v1/query_element", "5.6.7.8:1000"); rec.Code != 200 {
		t.Fatalf("other client: got %d, want 200", rec.Code)
	}
	if rec := do(h, "/health", "1.2.3.4:1000"); rec.Code != 200 {
		t.Fatalf("excluded path: got %d, want 200", rec.Code)
	}
	rec := do(h, "/v1/query_element", "1.2.3.4:1000")
	if rec.Header().Get("Retry-After") != "60" {
		t.Fatalf("retry-after: got %q", rec.Header().Get("Retry-After"))
	}

	now = now.Add(2 * time.Minute)
	if rec := do(h, "/v1/query_element", "1.2.3.4:1000"); rec.Code != 200 {
		t.Fatalf("after window: got %d, want 200", rec.Code)
	}
	rl.GC()
	rl.mu.Lock()
	n := len(rl.buckets)
	rl.mu.Unlock()
	if n != 1 {
		t.Fatalf("buckets after gc: got %d, want 1", n)
	}
}

func TestRateLimiter_Disabled(t *testing.T) {
	h := NewRateLimiter(0, time.Minute, nil).Middleware(http.HandlerFunc(ok))
	for i := 0; i < 10; i++ {
		if rec := do(h, "/v1/navigate", "1.2.3.4:1000"); rec.Code != 200 {
			t.Fatalf("request %d: got %d", i, rec.Code)
		}
	}
}
