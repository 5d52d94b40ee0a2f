package agentstream

import "fmt"

// Strategy selects the wire framing of a deployment.
type Strategy int

const (
	// StrategyDelimited frames are blank-line separated blocks of
	// tag-prefixed lines.
	StrategyDelimited Strategy = iota
	// StrategyEmbedded frames are tag-prefixed JSON objects found by
	// brace counting, with no required separator.
	StrategyEmbedded
)

func (s Strategy) String() string {
	switch s {
	case StrategyDelimited:
		return "delimited"
	case StrategyEmbedded:
		return "embedded"
	default:
		return fmt.Sprintf("Strategy(%d)", int(s))
	}
}

// ParseStrategy parses a configuration value. The empty string selects
// StrategyDelimited.
func ParseStrategy(s string) (Strategy, error) {
	switch s {
	case "", "delimited", "sse":
		return StrategyDelimited, nil
	case "embedded", "json":
		return StrategyEmbedded, nil
	default:
		return 0, fmt.Errorf("unknown framing %q: must be \"delimited\" or \"embedded\": %w", s, ErrValidation)
	}
}
