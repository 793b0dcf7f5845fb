// Package driver defines the Page Driver: the capability set domprobe
// consumes from whatever actually runs the browser. The rod-backed
// implementation lives in internal/browser; drivertest provides an in-memory
// page built from static HTML.
package driver

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/hazyhaar/domprobe/dom"
)

var (
	// ErrDetached is returned when a handle no longer refers to a node in the
	// document, typically because it was removed or the page navigated.
	ErrDetached = errors.New("driver: node detached")

	// ErrInvalidSelector is returned for a selector the engine cannot parse.
	ErrInvalidSelector = errors.New("driver: invalid selector")

	// ErrClosed is returned by a page whose session has ended.
	ErrClosed = errors.New("driver: page closed")
)

// Document is one capture of the live document: the tree rooted at the
// document element, with computed styles, boxes and, when a selector was
// given, Matched flags.
type Document struct {
	URL      string       `json:"url"`
	Title    string       `json:"title"`
	Viewport dom.Viewport `json:"viewport"`
	Root     *dom.Node    `json:"root"`
}

// Element is what a handle reports about the node it points to.
type Element struct {
	Snapshot   dom.Snapshot
	Inspection dom.Inspection
}

// Handle points at one resolved node.
type Handle interface {
	// IsElement reports whether the node is an element (not text, comment).
	IsElement(ctx context.Context) (bool, error)

	// Inspect reads the node's snapshot fields and visibility inputs in one
	// round trip. Snapshot.IsVisible is left for the caller to decide.
	Inspect(ctx context.Context) (*Element, error)
}

// Relay receives payloads sent by document code through an exposed binding.
type Relay func(payload string)

// Page is the session-scoped document the operations run against.
type Page interface {
	// Capture snapshots the document tree. When selector is non-empty the
	// matching elements are flagged.
	Capture(ctx context.Context, selector string) (*Document, error)

	// Select returns every element matching selector, in document order.
	Select(ctx context.Context, selector string) ([]Handle, error)

	// WaitSelector waits until selector matches and returns the first match.
	// It gives up when ctx is done.
	WaitSelector(ctx context.Context, selector string) (Handle, error)

	// ByRole returns the elements with the given accessible role, filtered by
	// accessible name when name is non-empty.
	ByRole(ctx context.Context, role, name string) ([]Handle, error)

	// ByText returns the innermost elements whose text contains text.
	ByText(ctx context.Context, text string) ([]Handle, error)

	// HTML returns the serialized document.
	HTML(ctx context.Context) (string, error)

	// Eval runs a read-only function expression in the document and returns
	// its JSON-encoded result.
	Eval(ctx context.Context, fn string, args ...any) (json.RawMessage, error)

	// Expose makes fn callable from the document under name. The returned
	// release function unregisters it; it is safe to call more than once.
	Expose(ctx context.Context, name string, fn Relay) (release func() error, err error)
}
