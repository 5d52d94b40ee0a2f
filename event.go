package agentstream

// EventKind classifies a frame payload.
type EventKind string

const (
	EventMessage  EventKind = "message"  // A content delta arrived.
	EventComplete EventKind = "complete" // The server signals the logical end.
	EventError    EventKind = "error"    // Recoverable application-level error.
	EventUsage    EventKind = "usage"    // Metadata, ignored by the session.
	EventNull     EventKind = "null"     // Unknown or empty, ignored.
)

// ParseEventKind maps a wire value to an EventKind. Unknown values map to
// EventNull so they are dropped rather than ending the session.
func ParseEventKind(s string) EventKind {
	switch k := EventKind(s); k {
	case EventMessage, EventComplete, EventError, EventUsage:
		return k
	default:
		return EventNull
	}
}

// Event is one classified frame. Events are transient and never retained
// by the session.
type Event struct {
	Kind    EventKind
	Content string
}

// DoneSentinel is the payload that forces completion without parsing.
const DoneSentinel = "[DONE]"
