// Package mock provides test doubles for agentstream interfaces using
// function fields.
package mock

import (
	"context"

	"github.com/fwojciec/agentstream"
)

// Interface compliance checks.
var (
	_ agentstream.Transport  = (*Transport)(nil)
	_ agentstream.Framer     = (*Framer)(nil)
	_ agentstream.Classifier = (*Classifier)(nil)
)

// Transport is a test double for agentstream.Transport.
// Set OpenFn before calling Open.
type Transport struct {
	OpenFn func(ctx context.Context, req agentstream.Request) (agentstream.Source, error)
}

// Open delegates to OpenFn.
func (t *Transport) Open(ctx context.Context, req agentstream.Request) (agentstream.Source, error) {
	return t.OpenFn(ctx, req)
}

// Framer is a test double for agentstream.Framer.
type Framer struct {
	PushFn  func(chunk []byte) ([]string, error)
	FlushFn func() ([]string, error)
}

// Push delegates to PushFn.
func (f *Framer) Push(chunk []byte) ([]string, error) {
	return f.PushFn(chunk)
}

// Flush delegates to FlushFn. Returns nothing when FlushFn is not set.
func (f *Framer) Flush() ([]string, error) {
	if f.FlushFn == nil {
		return nil, nil
	}
	return f.FlushFn()
}

// Classifier is a test double for agentstream.Classifier.
type Classifier struct {
	ClassifyFn func(payload string) (agentstream.Event, error)
}

// Classify delegates to ClassifyFn.
func (c *Classifier) Classify(payload string) (agentstream.Event, error) {
	return c.ClassifyFn(payload)
}
