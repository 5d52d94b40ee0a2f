package frame

import (
	"bytes"
	"strings"

	"github.com/fwojciec/agentstream"
)

var (
	cr        = []byte("\r")
	crlf      = []byte("\r\n")
	lf        = []byte("\n")
	separator = []byte("\n\n")
)

// Delimited frames are separated by a blank line. Within a frame, every
// line starting with "tag:" contributes its remainder (minus one optional
// space); the contributions are joined with newlines and trimmed. Frames
// without tag lines, or with an empty payload, produce nothing.
//
// Lines may end in "\n", "\r\n" or a lone "\r".
type Delimited struct {
	prefix    string
	max       int
	buf       []byte
	pendingCR bool // last chunk ended in "\r"; a leading "\n" belongs to it
}

// Interface compliance check.
var _ agentstream.Framer = (*Delimited)(nil)

// NewDelimited returns a blank-line delimited framer.
func NewDelimited(opts ...Option) *Delimited {
	c := newConfig(opts)
	return &Delimited{prefix: c.tag + ":", max: c.max}
}

// Push buffers chunk and returns the payloads of all frames it completes.
func (d *Delimited) Push(chunk []byte) ([]string, error) {
	d.buf = append(d.buf, d.normalize(chunk)...)

	var frames []string
	consumed := 0
	for {
		i := bytes.Index(d.buf[consumed:], separator)
		if i < 0 {
			break
		}
		if p := d.payload(d.buf[consumed : consumed+i]); p != "" {
			frames = append(frames, p)
		}
		consumed += i + len(separator)
	}
	if consumed > 0 {
		d.buf = bytes.Clone(d.buf[consumed:])
	}
	if len(d.buf) > d.max {
		d.buf = nil
		return frames, ErrFrameTooLarge
	}
	return frames, nil
}

// Flush parses whatever remains buffered as one final frame, so a last
// frame that arrived without its trailing blank line is not lost.
func (d *Delimited) Flush() ([]string, error) {
	raw := d.buf
	d.buf = nil
	d.pendingCR = false
	if p := d.payload(raw); p != "" {
		return []string{p}, nil
	}
	return nil, nil
}

// normalize rewrites the line endings of chunk to "\n". The "\n" of a
// "\r\n" split across chunks is dropped.
func (d *Delimited) normalize(chunk []byte) []byte {
	if len(chunk) == 0 {
		return chunk
	}
	if d.pendingCR && chunk[0] == '\n' {
		chunk = chunk[1:]
	}
	d.pendingCR = len(chunk) > 0 && chunk[len(chunk)-1] == '\r'
	if bytes.IndexByte(chunk, '\r') < 0 {
		return chunk
	}
	return bytes.ReplaceAll(bytes.ReplaceAll(chunk, crlf, lf), cr, lf)
}

func (d *Delimited) payload(raw []byte) string {
	var data []string
	for _, line := range strings.Split(string(raw), "\n") {
		rest, ok := strings.CutPrefix(line, d.prefix)
		if !ok {
			continue
		}
		data = append(data, strings.TrimPrefix(rest, " "))
	}
	if len(data) == 0 {
		return ""
	}
	return strings.TrimSpace(strings.Join(data, "\n"))
}
