package mutation

import (
	"encoding/json"
	"fmt"

	"github.com/hazyhaar/domprobe/dom"
)

// record is one entry of a relayed batch, as produced by the in-page watcher.
type record struct {
	Type       Kind              `json:"type"`
	Tag        string            `json:"tag"`
	ID         string            `json:"id"`
	Classes    []string          `json:"classes"`
	Attributes map[string]string `json:"attributes"`
	Text       string            `json:"text"`
	Visible    bool              `json:"visible"`
	Box        *dom.Rect         `json:"box"`
	Attribute  string            `json:"attribute"`
	OldValue   *string           `json:"oldValue"`
	NewValue   *string           `json:"newValue"`
}

// DecodeBatch turns a relayed payload (a JSON array of records) into events,
// keeping the order of the array. Records of unknown type are an error.
func DecodeBatch(payload []byte) ([]Event, error) {
	var recs []record
	if err := json.Unmarshal(payload, &recs); err != nil {
		return nil, fmt.Errorf("mutation: decode batch: %w", err)
	}
	events := make([]Event, 0, len(recs))
	for i, r := range recs {
		switch r.Type {
		case KindAdded, KindRemoved, KindModified:
		default:
			return nil, fmt.Errorf("mutation: decode batch: record %d: unknown type %q", i, r.Type)
		}
		ev := Event{
			Kind: r.Type,
			Target: dom.Snapshot{
				Tag:        r.Tag,
				ID:         r.ID,
				Classes:    r.Classes,
				Attributes: r.Attributes,
				Text:       r.Text,
				IsVisible:  r.Visible && r.Type != KindRemoved,
				Position:   r.Box,
			},
		}
		if ev.Target.Classes == nil {
			ev.Target.Classes = []string{}
		}
		if ev.Target.Attributes == nil {
			ev.Target.Attributes = map[string]string{}
		}
		if r.Type == KindModified {
			ev.Changes = &Change{Attribute: r.Attribute, OldValue: r.OldValue, NewValue: r.NewValue}
		}
		events = append(events, ev)
	}
	return events, nil
}

// MarshalDelivery serialises a Delivery to JSON.
func MarshalDelivery(d *Delivery) ([]byte, error) {
	return json.Marshal(d)
}

// UnmarshalDelivery deserialises a Delivery from JSON.
func UnmarshalDelivery(data []byte) (*Delivery, error) {
	var d Delivery
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, err
	}
	return &d, nil
}
