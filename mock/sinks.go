package mock

import (
	"strings"
	"sync"

	"github.com/fwojciec/agentstream"
)

// CallKind names the sink a Call was delivered to.
type CallKind string

const (
	CallMessage  CallKind = "message"
	CallInterval CallKind = "interval"
	CallComplete CallKind = "complete"
	CallError    CallKind = "error"
)

// Call is one recorded sink invocation.
type Call struct {
	Kind   CallKind
	Result agentstream.Result
	Err    error
}

// Recorder records sink invocations in order. It is safe to inspect from a
// goroutine other than the session's.
type Recorder struct {
	mu    sync.Mutex
	calls []Call
}

// Sinks returns a full sink set recording into r.
func (r *Recorder) Sinks() agentstream.Sinks {
	return agentstream.Sinks{
		OnMessage:  func(res agentstream.Result) { r.add(Call{Kind: CallMessage, Result: res}) },
		OnInterval: func(res agentstream.Result) { r.add(Call{Kind: CallInterval, Result: res}) },
		OnComplete: func(res agentstream.Result) { r.add(Call{Kind: CallComplete, Result: res}) },
		OnError:    func(err error) { r.add(Call{Kind: CallError, Err: err}) },
	}
}

// IntervalSinks returns a sink set without OnMessage, recording into r.
func (r *Recorder) IntervalSinks() agentstream.Sinks {
	s := r.Sinks()
	s.OnMessage = nil
	return s
}

func (r *Recorder) add(c Call) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, c)
}

// Calls returns a copy of all recorded calls.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// Of returns the recorded calls of kind k.
func (r *Recorder) Of(k CallKind) []Call {
	var out []Call
	for _, c := range r.Calls() {
		if c.Kind == k {
			out = append(out, c)
		}
	}
	return out
}

// Segments concatenates the segments delivered to kind k, in order.
func (r *Recorder) Segments(k CallKind) string {
	var b strings.Builder
	for _, c := range r.Of(k) {
		b.WriteString(c.Result.Segment)
	}
	return b.String()
}
