package agentstream

import (
	"errors"
	"io"
)

// SessionState indicates the current state of a Session.
type SessionState int

const (
	SessionIdle      SessionState = iota // Before Run is called.
	SessionStreaming                     // Read loop running.
	SessionCompleted                     // Completion reached; absorbing.
	SessionErrored                       // Transport failure or abort; absorbing.
)

func (s SessionState) String() string {
	switch s {
	case SessionIdle:
		return "idle"
	case SessionStreaming:
		return "streaming"
	case SessionCompleted:
		return "completed"
	case SessionErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// Source is a byte-chunk stream. Chunk boundaries carry no meaning and may
// split frames anywhere.
//
// Next returns the next chunk. It returns io.EOF exactly once on a clean end
// of stream and any other error on transport failure; after either, the
// source is exhausted. Close releases the underlying resource and unblocks a
// pending Next.
type Source interface {
	Next() ([]byte, error)
	Close() error
}

// DefaultChunkSize is the read buffer size of a ReaderSource.
const DefaultChunkSize = 4096

// ReaderSource adapts an io.ReadCloser (an HTTP response body, a capture
// file) into a Source. Each successful Read becomes one chunk.
type ReaderSource struct {
	rc  io.ReadCloser
	buf []byte
}

// Interface compliance check.
var _ Source = (*ReaderSource)(nil)

// NewReaderSource returns a Source reading chunks of at most size bytes.
// A non-positive size selects DefaultChunkSize.
func NewReaderSource(rc io.ReadCloser, size int) *ReaderSource {
	if size <= 0 {
		size = DefaultChunkSize
	}
	return &ReaderSource{rc: rc, buf: make([]byte, size)}
}

// Next returns a copy of the bytes produced by the next non-empty Read.
func (s *ReaderSource) Next() ([]byte, error) {
	for {
		n, err := s.rc.Read(s.buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, s.buf[:n])
			// A trailing error is reported on the following call.
			return chunk, nil
		}
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		if err != nil {
			return nil, err
		}
	}
}

// Close closes the underlying reader.
func (s *ReaderSource) Close() error {
	return s.rc.Close()
}
