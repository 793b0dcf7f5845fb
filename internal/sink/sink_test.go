package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hazyhaar/domprobe/dom"
	"github.com/hazyhaar/domprobe/mutation"
)

func delivery(seq uint64) mutation.Delivery {
	return mutation.Delivery{
		ID:             "d",
		SubscriptionID: "sub",
		Seq:            seq,
		Event:          mutation.Event{Kind: mutation.KindAdded, Target: dom.Snapshot{Tag: "li"}},
	}
}

func TestStdout_JSONLines(t *testing.T) {
	var buf bytes.Buffer
	s := NewStdout(&buf)
	s.Send(context.Background(), delivery(1))
	s.Send(context.Background(), delivery(2))

	dec := json.NewDecoder(&buf)
	for want := uint64(1); want <= 2; want++ {
		var env struct {
			Type string             `json:"type"`
			Data mutation.Delivery `json:"data"`
		}
		if err := dec.Decode(&env); err != nil {
			t.Fatal(err)
		}
		if env.Type != "mutation" || env.Data.Seq != want {
			t.Fatalf("line %d: got %+v", want, env)
		}
	}
}

func TestWebhook_RetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Idempotency-Key") != "d" {
			t.Errorf("idempotency key: got %q", r.Header.Get("Idempotency-Key"))
		}
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL, WithWebhookBackoff(time.Millisecond))
	if err := w.Send(context.Background(), delivery(1)); err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 3 {
		t.Fatalf("calls: got %d, want 3", calls.Load())
	}
}

func TestWebhook_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL, WithWebhookBackoff(time.Millisecond))
	if err := w.Send(context.Background(), delivery(1)); err == nil {
		t.Fatal("want error for 400")
	}
	if calls.Load() != 1 {
		t.Fatalf("calls: got %d, want 1", calls.Load())
	}
}

func TestWebhook_Exhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL, WithWebhookRetries(1), WithWebhookBackoff(time.Millisecond))
	if err := w.Send(context.Background(), delivery(1)); err == nil {
		t.Fatal("want error after retries")
	}
}

func TestRouter_FanOutDespiteFailure(t *testing.T) {
	boom := errors.New("boom")
	var got []uint64
	r := NewRouter(nil,
		NewCallback(func(context.Context, mutation.Delivery) error { return boom }),
		NewCallback(func(_ context.Context, d mutation.Delivery) error {
			got = append(got, d.Seq)
			return nil
		}),
	)
	if err := r.Send(context.Background(), delivery(7)); !errors.Is(err, boom) {
		t.Fatalf("error: got %v, want boom", err)
	}
	if len(got) != 1 || got[0] != 7 {
		t.Fatalf("second sink: got %v", got)
	}
}

func TestQueue_DrainAndOverflow(t *testing.T) {
	q := NewQueue(3)
	ctx := context.Background()
	for i := uint64(1); i <= 5; i++ {
		q.Send(ctx, delivery(i))
	}
	if q.Dropped() != 2 {
		t.Fatalf("dropped: got %d, want 2", q.Dropped())
	}
	first := q.Drain(2)
	if len(first) != 2 || first[0].Seq != 3 || first[1].Seq != 4 {
		t.Fatalf("drain: got %+v", first)
	}
	rest := q.Drain(0)
	if len(rest) != 1 || rest[0].Seq != 5 {
		t.Fatalf("drain rest: got %+v", rest)
	}
	if q.Len() != 0 {
		t.Fatalf("len: got %d, want 0", q.Len())
	}
}

func TestForward_StampsSequence(t *testing.T) {
	q := NewQueue(0)
	cb := Forward(context.Background(), q, "sub-1", nil)
	cb(mutation.Event{Kind: mutation.KindAdded})
	cb(mutation.Event{Kind: mutation.KindRemoved})

	out := q.Drain(0)
	if len(out) != 2 {
		t.Fatalf("deliveries: got %d, want 2", len(out))
	}
	for i, d := range out {
		if d.Seq != uint64(i+1) || d.SubscriptionID != "sub-1" || d.ID == "" || d.Timestamp == 0 {
			t.Fatalf("delivery %d: got %+v", i, d)
		}
	}
	if out[1].Event.Kind != mutation.KindRemoved {
		t.Fatalf("order: got %q", out[1].Event.Kind)
	}
}
