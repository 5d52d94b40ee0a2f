package agentstream

// Result is the payload delivered to content sinks. Full is always a prefix
// of, or equal to, the content accumulated by the end of the session.
type Result struct {
	Segment string // Content since the previous delivery.
	Full    string // All content accumulated so far.
}

// Sinks are the caller-supplied callbacks of a session. All are optional and
// are invoked from the session's Run goroutine, never concurrently.
type Sinks struct {
	// OnMessage receives every delta as soon as it is classified.
	OnMessage func(Result)
	// OnInterval receives pending content, at most once per throttle
	// window, and once more at every terminal boundary.
	OnInterval func(Result)
	// OnComplete fires exactly once per session with an empty Segment.
	OnComplete func(Result)
	// OnError receives server error events (*ServerError) and transport
	// failures.
	OnError func(error)
}
