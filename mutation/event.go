// Package mutation defines the change events relayed from a watched document.
// Consumers (sinks, MCP clients, in-process callbacks) import this package to
// receive and process them.
package mutation

import (
	"github.com/hazyhaar/domprobe/dom"
)

// Kind is the type of change observed.
type Kind string

const (
	KindAdded    Kind = "added"    // element inserted
	KindRemoved  Kind = "removed"  // element removed
	KindModified Kind = "modified" // attribute changed
)

// Change details an attribute modification. A nil value means the attribute
// was absent.
type Change struct {
	Attribute string  `json:"attribute,omitempty"`
	OldValue  *string `json:"oldValue,omitempty"`
	NewValue  *string `json:"newValue,omitempty"`
}

// Event is a single change. Target attributes are empty for added and removed
// elements; Changes is set only for modified.
type Event struct {
	Kind    Kind         `json:"type"`
	Target  dom.Snapshot `json:"target"`
	Changes *Change      `json:"changes,omitempty"`
}

// Delivery wraps an Event for out-of-process sinks.
type Delivery struct {
	ID             string `json:"id"`              // UUIDv7
	SubscriptionID string `json:"subscription_id"` // subscription that produced the event
	Seq            uint64 `json:"seq"`             // per subscription, starts at 1 (gap detection)
	Timestamp      int64  `json:"timestamp"`       // epoch milliseconds at relay
	Event          Event  `json:"event"`
}
