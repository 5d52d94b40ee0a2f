package agentstream

import (
	"fmt"
	"strings"
)

// Validate checks caller-side constraints on Request. It runs before any
// transport call.
func (r Request) Validate() error {
	q := r.Question()
	if len(q) == 0 {
		return fmt.Errorf("question is required: %w", ErrValidation)
	}
	for i, m := range q {
		if err := ValidateMessage(m); err != nil {
			return fmt.Errorf("message %d: %w", i, err)
		}
	}
	if strings.TrimSpace(q[len(q)-1].Content) == "" {
		return fmt.Errorf("question is empty: %w", ErrValidation)
	}
	return nil
}

// ValidateMessage checks that a message has a known role.
func ValidateMessage(m Message) error {
	switch m.Role {
	case RoleUser, RoleAssistant, RoleSystem:
		return nil
	case "":
		return fmt.Errorf("missing role: %w", ErrValidation)
	default:
		return fmt.Errorf("unknown role %q: %w", m.Role, ErrValidation)
	}
}
