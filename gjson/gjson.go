// Package gjson implements [agentstream.Classifier] for payload shapes that
// nest the event kind or content, using gjson path expressions.
//
// It is a thin adapter: servers that emit, for example,
//
//	{"type":"text-delta","delta":{"text":"Hel"}}
//
// are classified by mapping "type" values to event kinds and reading the
// content from "delta.text".
package gjson

import (
	"errors"

	"github.com/fwojciec/agentstream"
	"github.com/tidwall/gjson"
)

// ErrInvalidJSON indicates a payload that is not valid JSON.
var ErrInvalidJSON = errors.New("gjson: invalid json payload")

// Classifier maps payloads to events by path. The zero value is not useful;
// set KindPath and Kinds at least.
type Classifier struct {
	// KindPath locates the wire kind, e.g. "type".
	KindPath string
	// ContentPaths locate the content; the first path that exists wins.
	// Non-string values are delivered as raw JSON.
	ContentPaths []string
	// Kinds maps wire kind values to event kinds. Unmapped values
	// classify as EventNull.
	Kinds map[string]agentstream.EventKind
}

// Interface compliance check.
var _ agentstream.Classifier = Classifier{}

// TextDelta returns a Classifier for the "text-delta" family of payloads:
// {"type":"text-delta","delta":{"text":...}}, {"type":"finish"} and
// {"type":"error","error":{"message":...}}.
func TextDelta() Classifier {
	return Classifier{
		KindPath:     "type",
		ContentPaths: []string{"delta.text", "textDelta", "error.message", "error"},
		Kinds: map[string]agentstream.EventKind{
			"text-delta": agentstream.EventMessage,
			"finish":     agentstream.EventComplete,
			"error":      agentstream.EventError,
			"usage":      agentstream.EventUsage,
		},
	}
}

// Classify parses payload.
func (c Classifier) Classify(payload string) (agentstream.Event, error) {
	if !gjson.Valid(payload) {
		return agentstream.Event{}, ErrInvalidJSON
	}
	ev := agentstream.Event{Kind: agentstream.EventNull}
	if kind, ok := c.Kinds[gjson.Get(payload, c.KindPath).String()]; ok {
		ev.Kind = kind
	}
	for _, p := range c.ContentPaths {
		r := gjson.Get(payload, p)
		if !r.Exists() {
			continue
		}
		if r.Type == gjson.String {
			ev.Content = r.String()
		} else {
			ev.Content = r.Raw
		}
		break
	}
	return ev, nil
}
