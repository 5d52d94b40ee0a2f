// Package frame implements [agentstream.Framer] for the two wire framings
// agent servers use: blank-line delimited tag lines (Delimited) and
// tag-prefixed JSON objects found by brace counting (Embedded).
//
// Both framers buffer incomplete input between chunks, so a frame may be
// split across any number of chunks at any byte offset.
package frame

import (
	"errors"
	"fmt"

	"github.com/fwojciec/agentstream"
)

const (
	// DefaultTag is the line or object tag, written on the wire as "data:".
	DefaultTag = "data"

	// DefaultMaxFrameSize bounds the bytes buffered for a single frame.
	DefaultMaxFrameSize = 4 << 20
)

var (
	// ErrFrameTooLarge indicates buffered input exceeded the maximum frame
	// size without completing a frame.
	ErrFrameTooLarge = errors.New("frame: frame exceeds maximum size")

	// ErrTruncated indicates the stream ended inside a frame.
	ErrTruncated = errors.New("frame: stream ended inside a frame")
)

type config struct {
	tag string
	max int
}

// Option configures a framer.
type Option func(*config)

// WithTag sets the frame tag. The colon is implied: WithTag("data")
// matches "data:".
func WithTag(tag string) Option {
	return func(c *config) {
		if tag != "" {
			c.tag = tag
		}
	}
}

// WithMaxFrameSize sets the maximum number of bytes buffered for one frame.
func WithMaxFrameSize(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.max = n
		}
	}
}

func newConfig(opts []Option) config {
	c := config{tag: DefaultTag, max: DefaultMaxFrameSize}
	for _, o := range opts {
		o(&c)
	}
	return c
}

// New returns the framer for strategy.
func New(strategy agentstream.Strategy, opts ...Option) (agentstream.Framer, error) {
	switch strategy {
	case agentstream.StrategyDelimited:
		return NewDelimited(opts...), nil
	case agentstream.StrategyEmbedded:
		return NewEmbedded(opts...), nil
	default:
		return nil, fmt.Errorf("frame: unknown strategy %v", strategy)
	}
}
