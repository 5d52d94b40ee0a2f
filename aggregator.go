package agentstream

import "strings"

// Aggregator owns the accumulated content of a session and the delta
// pending since the last flush. It is not safe for concurrent use; the
// session serializes every call on its loop goroutine.
type Aggregator struct {
	full       strings.Builder
	pending    strings.Builder
	onInterval func(Result)
}

// NewAggregator returns an Aggregator that delivers flushed content to
// onInterval. A nil onInterval still clears pending content on flush.
func NewAggregator(onInterval func(Result)) *Aggregator {
	return &Aggregator{onInterval: onInterval}
}

// Append adds delta to both the accumulated and the pending content.
func (a *Aggregator) Append(delta string) {
	a.full.WriteString(delta)
	a.pending.WriteString(delta)
}

// FlushIfPending delivers pending content and clears it. It reports whether
// anything was delivered. Calling it directly bypasses any throttling.
func (a *Aggregator) FlushIfPending() bool {
	if a.pending.Len() == 0 {
		return false
	}
	r := Result{Segment: a.pending.String(), Full: a.full.String()}
	a.pending.Reset()
	if a.onInterval != nil {
		a.onInterval(r)
	}
	return true
}

// Full returns all content appended so far.
func (a *Aggregator) Full() string { return a.full.String() }

// Pending returns content appended since the last flush.
func (a *Aggregator) Pending() string { return a.pending.String() }
