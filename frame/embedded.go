package frame

import (
	"bytes"

	"github.com/fwojciec/agentstream"
)

// Embedded frames are "tag:" followed, after optional whitespace, by one
// JSON object. Frames may be directly concatenated with no separator. The
// object's extent is found by counting braces outside string literals, so
// the object itself is never parsed here.
//
// A tag not followed by an object is skipped. Input before the next tag is
// discarded.
type Embedded struct {
	prefix []byte
	max    int
	buf    []byte
}

// Interface compliance check.
var _ agentstream.Framer = (*Embedded)(nil)

// NewEmbedded returns a brace-counting framer.
func NewEmbedded(opts ...Option) *Embedded {
	c := newConfig(opts)
	return &Embedded{prefix: []byte(c.tag + ":"), max: c.max}
}

// Push buffers chunk and returns every object it completes, in order.
func (e *Embedded) Push(chunk []byte) ([]string, error) {
	e.buf = append(e.buf, chunk...)

	var frames []string
	pos := 0
	for {
		i := bytes.Index(e.buf[pos:], e.prefix)
		if i < 0 {
			// Keep a tail that may be the start of a tag split across
			// chunks; it cannot contain a whole tag.
			keep := max(pos, len(e.buf)-(len(e.prefix)-1))
			e.buf = bytes.Clone(e.buf[keep:])
			break
		}
		tag := pos + i
		open := skipSpace(e.buf, tag+len(e.prefix))
		if open == len(e.buf) {
			e.buf = bytes.Clone(e.buf[tag:])
			break
		}
		if e.buf[open] != '{' {
			pos = tag + len(e.prefix)
			continue
		}
		end, ok := matchObject(e.buf, open)
		if !ok {
			e.buf = bytes.Clone(e.buf[tag:])
			break
		}
		frames = append(frames, string(e.buf[open:end+1]))
		pos = end + 1
	}

	if len(e.buf) > e.max {
		e.buf = nil
		return frames, ErrFrameTooLarge
	}
	return frames, nil
}

// Flush discards the buffer. It returns ErrTruncated when the stream ended
// inside a frame.
func (e *Embedded) Flush() ([]string, error) {
	rest := e.buf
	e.buf = nil
	if bytes.Contains(rest, e.prefix) {
		return nil, ErrTruncated
	}
	return nil, nil
}

func skipSpace(b []byte, i int) int {
	for i < len(b) {
		switch b[i] {
		case ' ', '\t', '\r', '\n':
			i++
		default:
			return i
		}
	}
	return i
}

// matchObject returns the index of the brace closing the object opened at
// b[open]. Braces inside strings and escaped characters do not count.
func matchObject(b []byte, open int) (int, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := open; i < len(b); i++ {
		c := b[i]
		if escaped {
			escaped = false
			continue
		}
		if c == '\\' {
			escaped = true
			continue
		}
		if inString {
			if c == '"' {
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}
