package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/hazyhaar/domprobe/extract"
	"github.com/hazyhaar/domprobe/mutation"
	"github.com/hazyhaar/domprobe/observer"
	"github.com/hazyhaar/domprobe/query"
)

// status is the success flag shared by every response.
type status struct {
	Success bool       `json:"success"`
	Error   string     `json:"error,omitempty"`
	Code    query.Code `json:"code,omitempty"`
}

func ok() status { return status{Success: true} }

func fail(err error) status {
	f := query.Failure(err)
	return status{Error: f.Error, Code: f.Code}
}

// --- requests ---

type pageRequest struct {
	Session string `json:"session,omitempty"`
}

type navigateRequest struct {
	Session string `json:"session,omitempty"`
	URL     string `json:"url"`
}

type queryRequest struct {
	Session string `json:"session,omitempty"`
	query.Criterion
}

type observeStartRequest struct {
	Session string `json:"session,omitempty"`
	observer.Options
}

type observePollRequest struct {
	SubscriptionID string `json:"subscriptionId"`
	Max            int    `json:"max,omitempty"`
}

type observeStopRequest struct {
	SubscriptionID string `json:"subscriptionId"`
}

// --- responses ---

// NavigateResult reports where a session landed.
type NavigateResult struct {
	status
	Session string `json:"session,omitempty"`
	URL     string `json:"url,omitempty"`
}

// ContentResult carries extracted page content.
type ContentResult struct {
	status
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Content     string `json:"content"`
}

// ObserveResult identifies a started subscription.
type ObserveResult struct {
	status
	SubscriptionID string `json:"subscriptionId,omitempty"`
}

// PollResult returns queued events in delivery order.
type PollResult struct {
	status
	Events  []mutation.Delivery `json:"events"`
	Pending int                 `json:"pending"`
	Dropped uint64              `json:"dropped"`
}

// StopResult reports how many events a subscription delivered.
type StopResult struct {
	status
	Delivered uint64 `json:"delivered"`
}

// --- endpoints ---

func (s *Service) navigateEndpoint(ctx context.Context, req any) (any, error) {
	r := req.(*navigateRequest)
	if r.URL == "" {
		return NavigateResult{status: fail(errors.New("url is required"))}, nil
	}
	p, err := s.navigate(ctx, r.Session, r.URL)
	if err != nil {
		return NavigateResult{status: fail(err)}, nil
	}
	return NavigateResult{status: ok(), Session: sessionID(r.Session), URL: p.URL()}, nil
}

func (s *Service) structureEndpoint(ctx context.Context, req any) (any, error) {
	r := req.(*queryRequest)
	p, err := s.page(r.Session)
	if err != nil {
		return query.Failure(err), nil
	}
	c := r.Criterion
	if c.MaxDepth == nil {
		depth := s.cfg.MaxDepth
		c.MaxDepth = &depth
	}
	return s.engine(p).Structure(ctx, c), nil
}

func (s *Service) queryEndpoint(ctx context.Context, req any) (any, error) {
	r := req.(*queryRequest)
	p, err := s.page(r.Session)
	if err != nil {
		return query.Failure(err), nil
	}
	return s.engine(p).Query(ctx, r.Criterion), nil
}

func (s *Service) queryAllEndpoint(ctx context.Context, req any) (any, error) {
	r := req.(*queryRequest)
	p, err := s.page(r.Session)
	if err != nil {
		return query.Failure(err), nil
	}
	return s.engine(p).QueryAll(ctx, r.Criterion), nil
}

func (s *Service) interactiveEndpoint(ctx context.Context, req any) (any, error) {
	r := req.(*pageRequest)
	p, err := s.page(r.Session)
	if err != nil {
		f := query.Failure(err)
		return query.InteractiveResult{Error: f.Error, Code: f.Code, Elements: []query.Interactive{}}, nil
	}
	return s.engine(p).Interactive(ctx), nil
}

func (s *Service) allContentEndpoint(ctx context.Context, req any) (any, error) {
	r := req.(*pageRequest)
	p, err := s.page(r.Session)
	if err != nil {
		return ContentResult{status: fail(err)}, nil
	}
	src, err := p.HTML(ctx)
	if err != nil {
		return ContentResult{status: fail(err)}, nil
	}
	res := extract.Extract(src, s.cfg.Extract)
	return ContentResult{
		status:      ok(),
		Title:       res.Title,
		Description: res.Description,
		Content:     res.Document(),
	}, nil
}

func (s *Service) commonmarkEndpoint(ctx context.Context, req any) (any, error) {
	r := req.(*pageRequest)
	p, err := s.page(r.Session)
	if err != nil {
		return ContentResult{status: fail(err)}, nil
	}
	src, err := p.HTML(ctx)
	if err != nil {
		return ContentResult{status: fail(err)}, nil
	}
	md, err := extract.Commonmark(src, p.URL())
	if err != nil {
		return ContentResult{status: fail(err)}, nil
	}
	return ContentResult{status: ok(), Content: md}, nil
}

func (s *Service) visibleContentEndpoint(ctx context.Context, req any) (any, error) {
	r := req.(*pageRequest)
	p, err := s.page(r.Session)
	if err != nil {
		return ContentResult{status: fail(err)}, nil
	}
	doc, err := p.Capture(ctx, "")
	if err != nil {
		return ContentResult{status: fail(err)}, nil
	}
	res := extract.Visible(doc.Root, doc.Viewport, doc.Title, s.cfg.Extract)
	return ContentResult{
		status:      ok(),
		Title:       res.Title,
		Description: res.Description,
		Content:     res.Document(),
	}, nil
}

func (s *Service) observeStartEndpoint(ctx context.Context, req any) (any, error) {
	r := req.(*observeStartRequest)
	w, err := s.observe(ctx, r.Session, r.Options)
	if err != nil {
		return ObserveResult{status: fail(err)}, nil
	}
	return ObserveResult{status: ok(), SubscriptionID: w.sub.ID()}, nil
}

func (s *Service) observePollEndpoint(_ context.Context, req any) (any, error) {
	r := req.(*observePollRequest)
	w, found := s.watch(r.SubscriptionID)
	if !found {
		return PollResult{status: fail(unknownSubscription(r.SubscriptionID)), Events: []mutation.Delivery{}}, nil
	}
	events := w.queue.Drain(r.Max)
	if events == nil {
		events = []mutation.Delivery{}
	}
	return PollResult{
		status:  ok(),
		Events:  events,
		Pending: w.queue.Len(),
		Dropped: w.queue.Dropped(),
	}, nil
}

func (s *Service) observeStopEndpoint(_ context.Context, req any) (any, error) {
	r := req.(*observeStopRequest)
	w, found := s.watch(r.SubscriptionID)
	if !found || !s.unwatch(r.SubscriptionID) {
		return StopResult{status: fail(unknownSubscription(r.SubscriptionID))}, nil
	}
	return StopResult{status: ok(), Delivered: w.sub.Delivered()}, nil
}

func unknownSubscription(id string) error {
	return query.NewError(query.CodeObserver, fmt.Sprintf("Unknown subscription: %s", id), nil)
}
