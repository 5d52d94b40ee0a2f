package mock

import (
	"io"
	"sync"

	"github.com/fwojciec/agentstream"
)

// Interface compliance check.
var _ agentstream.Source = (*Source)(nil)

// Source is a test double for agentstream.Source.
// NextFn panics when nil to catch missing setup. CloseFn is nil-safe.
type Source struct {
	NextFn  func() ([]byte, error)
	CloseFn func() error
}

// Next delegates to NextFn.
func (s *Source) Next() ([]byte, error) {
	return s.NextFn()
}

// Close delegates to CloseFn. Returns nil when CloseFn is not set.
func (s *Source) Close() error {
	if s.CloseFn == nil {
		return nil
	}
	return s.CloseFn()
}

// ChunkSource yields fixed chunks, then End (io.EOF when nil). When Hang
// is set it blocks after the chunks instead, until Close is called, and
// then reports io.ErrClosedPipe.
type ChunkSource struct {
	Chunks []string
	End    error
	Hang   bool

	mu     sync.Mutex
	i      int
	closed chan struct{}
	once   sync.Once
	closes int
}

// Interface compliance check.
var _ agentstream.Source = (*ChunkSource)(nil)

// NewChunkSource returns a ChunkSource that ends cleanly after chunks.
func NewChunkSource(chunks ...string) *ChunkSource {
	return &ChunkSource{Chunks: chunks}
}

func (s *ChunkSource) init() {
	s.once.Do(func() { s.closed = make(chan struct{}) })
}

// Next returns the next chunk.
func (s *ChunkSource) Next() ([]byte, error) {
	s.init()
	s.mu.Lock()
	if s.i < len(s.Chunks) {
		c := s.Chunks[s.i]
		s.i++
		s.mu.Unlock()
		return []byte(c), nil
	}
	s.mu.Unlock()
	if s.Hang {
		<-s.closed
		return nil, io.ErrClosedPipe
	}
	if s.End != nil {
		return nil, s.End
	}
	return nil, io.EOF
}

// Close unblocks a hanging Next. It may be called more than once.
func (s *ChunkSource) Close() error {
	s.init()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closes == 0 {
		close(s.closed)
	}
	s.closes++
	return nil
}

// Closes reports how many times Close was called.
func (s *ChunkSource) Closes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}
