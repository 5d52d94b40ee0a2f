package agentstream

import "log/slog"

var nopLogger = slog.New(slog.DiscardHandler)

// maxLoggedFrame bounds frame text attached to log records.
const maxLoggedFrame = 256

func clip(s string) string {
	if len(s) <= maxLoggedFrame {
		return s
	}
	return s[:maxLoggedFrame] + "..."
}
