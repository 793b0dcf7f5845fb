package kit

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestChain_Order(t *testing.T) {
	var order []string

	mw := func(name string) Middleware {
		return func(next Endpoint) Endpoint {
			return func(ctx context.Context, req any) (any, error) {
				order = append(order, name+"_before")
				resp, err := next(ctx, req)
				order = append(order, name+"_after")
				return resp, err
			}
		}
	}

	base := func(_ context.Context, _ any) (any, error) {
		order = append(order, "endpoint")
		return "ok", nil
	}

	chained := Chain(mw("a"), mw("b"), mw("c"))(base)
	resp, err := chained(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if resp != "ok" {
		t.Fatalf("response: got %v", resp)
	}

	expected := []string{"a_before", "b_before", "c_before", "endpoint", "c_after", "b_after", "a_after"}
	if len(order) != len(expected) {
		t.Fatalf("order length: got %d, want %d", len(order), len(expected))
	}
	for i, v := range expected {
		if order[i] != v {
			t.Fatalf("order[%d]: got %q, want %q", i, order[i], v)
		}
	}
}

func TestChain_ErrorPropagation(t *testing.T) {
	errFail := errors.New("fail")
	base := func(_ context.Context, _ any) (any, error) {
		return nil, errFail
	}

	noop := func(next Endpoint) Endpoint { return next }
	chained := Chain(noop)(base)

	_, err := chained(context.Background(), nil)
	if !errors.Is(err, errFail) {
		t.Fatalf("error: got %v, want %v", err, errFail)
	}
}

func TestContext_Transport_Default(t *testing.T) {
	ctx := context.Background()
	if v := GetTransport(ctx); v != "http" {
		t.Fatalf("default transport: got %q, want 'http'", v)
	}
}

func TestContext_Transport_Set(t *testing.T) {
	ctx := WithTransport(context.Background(), "mcp")
	if v := GetTransport(ctx); v != "mcp" {
		t.Fatalf("transport: got %q", v)
	}
}

func TestContext_RequestAndSession(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req_abc")
	ctx = WithSessionID(ctx, "ses_1")
	if v := GetRequestID(ctx); v != "req_abc" {
		t.Fatalf("request_id: got %q", v)
	}
	if v := GetSessionID(ctx); v != "ses_1" {
		t.Fatalf("session_id: got %q", v)
	}
	if v := GetSessionID(context.Background()); v != "" {
		t.Fatalf("session_id default: got %q", v)
	}
}

func TestRecovery(t *testing.T) {
	ep := Recovery(slog.Default())(func(context.Context, any) (any, error) {
		panic("kaboom")
	})
	_, err := ep(context.Background(), nil)
	var pe *PanicError
	if !errors.As(err, &pe) || pe.Value != "kaboom" {
		t.Fatalf("error: got %v, want PanicError", err)
	}
}

func TestTimeout(t *testing.T) {
	ep := Timeout(time.Millisecond)(func(ctx context.Context, _ any) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	if _, err := ep(context.Background(), nil); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("error: got %v, want deadline exceeded", err)
	}
}

type echoRequest struct {
	Say string `json:"say"`
}

func TestHTTPHandler(t *testing.T) {
	ep := func(ctx context.Context, req any) (any, error) {
		r := req.(*echoRequest)
		if r.Say == "fail" {
			return nil, errors.New("told to fail")
		}
		return map[string]string{"said": r.Say, "transport": GetTransport(ctx)}, nil
	}
	decode := func(body []byte) (any, error) {
		var r echoRequest
		if err := json.Unmarshal(body, &r); err != nil {
			return nil, err
		}
		return &r, nil
	}
	h := HTTPHandler(ep, decode)

	cases := []struct {
		body string
		code int
		want string
	}{
		{`{"say":"hi"}`, http.StatusOK, `"said":"hi"`},
		{``, http.StatusOK, `"said":""`},
		{`{"say":`, http.StatusBadRequest, `invalid arguments`},
		{`{"say":"fail"}`, http.StatusInternalServerError, `told to fail`},
	}
	for _, c := range cases {
		rec := httptest.NewRecorder()
		h(rec, httptest.NewRequest(http.MethodPost, "/v1/echo", strings.NewReader(c.body)))
		if rec.Code != c.code {
			t.Errorf("body %q: status got %d, want %d", c.body, rec.Code, c.code)
		}
		if !strings.Contains(rec.Body.String(), c.want) {
			t.Errorf("body %q: response %q lacks %q", c.body, rec.Body.String(), c.want)
		}
	}
}
