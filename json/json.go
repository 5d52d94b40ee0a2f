// Package json implements the JSON encodings of agentstream: the payload
// classifier for {"eventType","content"} frames and transcript persistence.
package json

import (
	"encoding/json"
	"fmt"

	"github.com/fwojciec/agentstream"
)

// payload is the wire shape of one frame.
type payload struct {
	EventType *string `json:"eventType"`
	Content   *string `json:"content"`
}

// Classifier implements [agentstream.Classifier] for frames shaped
// {"eventType": "...", "content": "..."}.
type Classifier struct{}

// Interface compliance check.
var _ agentstream.Classifier = Classifier{}

// Classify parses p. A missing or unknown eventType classifies as
// [agentstream.EventNull]; only invalid JSON is an error.
func (Classifier) Classify(p string) (agentstream.Event, error) {
	var v payload
	if err := json.Unmarshal([]byte(p), &v); err != nil {
		return agentstream.Event{}, fmt.Errorf("json: parse frame: %w", err)
	}
	ev := agentstream.Event{Kind: agentstream.EventNull}
	if v.EventType != nil {
		ev.Kind = agentstream.ParseEventKind(*v.EventType)
	}
	if v.Content != nil {
		ev.Content = *v.Content
	}
	return ev, nil
}

// MarshalEvent encodes ev in the wire shape Classify accepts.
func MarshalEvent(ev agentstream.Event) ([]byte, error) {
	kind := string(ev.Kind)
	return json.Marshal(payload{EventType: &kind, Content: &ev.Content})
}
