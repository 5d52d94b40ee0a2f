package agentstream

import "context"

// Transport opens the byte stream for a request. Implementations own
// request construction and the HTTP (or other) client; the session only
// sees the returned Source.
type Transport interface {
	Open(ctx context.Context, req Request) (Source, error)
}

// Framer reassembles arbitrary byte chunks into complete frame payloads.
// Frame boundaries never need to align with chunk boundaries.
//
// Push buffers chunk and returns every frame completed by it, in order.
// Flush is called once at end of stream and returns whatever final frames
// the remaining buffer still yields. A non-nil error is fatal to the stream.
type Framer interface {
	Push(chunk []byte) ([]string, error)
	Flush() ([]string, error)
}

// Classifier parses one frame payload into an Event. A returned error means
// the frame is malformed; the session drops it and keeps streaming.
type Classifier interface {
	Classify(payload string) (Event, error)
}
