package agentstream

import "errors"

// Sentinel errors for common failure modes.
var (
	// ErrValidation indicates a request failed validation before any
	// transport call was made.
	ErrValidation = errors.New("validation error")

	// ErrSessionDone indicates Run or Stream was called on a session that
	// already ran.
	ErrSessionDone = errors.New("session already ran")

	// ErrNoSource indicates Run was called without a byte source.
	ErrNoSource = errors.New("no source")
)

// DefaultServerErrorMessage is reported when the server signals an error
// event without content.
const DefaultServerErrorMessage = "stream error"

// ServerError is an application-level error signalled by the server through
// an error event. It does not end the session by itself.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	if e.Message == "" {
		return DefaultServerErrorMessage
	}
	return e.Message
}
