package websocket

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Control frame payloads are limited to 125 bytes, two of which hold the
// close code.
const maxCloseReason = 123

// StreamFunc produces a response for the request body received as the
// first client message. Each Write on w is sent as one message.
type StreamFunc func(ctx context.Context, body []byte, w io.Writer) error

// Handler serves a [StreamFunc] over websocket.
type Handler struct {
	Stream   StreamFunc
	Upgrader websocket.Upgrader
	Logger   *slog.Logger
}

// ServeHTTP upgrades the connection, reads the request message and runs
// Stream. The connection is closed normally when Stream returns nil and
// with an internal error status otherwise. A client disconnect cancels the
// context passed to Stream.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := h.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	conn, err := h.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	_, body, err := conn.ReadMessage()
	if err != nil {
		logger.Debug("reading request message", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	// Reading is required to observe the peer's close frame.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	code, reason := websocket.CloseNormalClosure, ""
	if err := h.Stream(ctx, body, messageWriter{conn}); err != nil {
		logger.Warn("websocket stream failed", "error", err)
		code, reason = websocket.CloseInternalServerErr, err.Error()
		if len(reason) > maxCloseReason {
			reason = reason[:maxCloseReason]
		}
	}
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeTimeout))
}

type messageWriter struct {
	conn *websocket.Conn
}

func (m messageWriter) Write(p []byte) (int, error) {
	if err := m.conn.WriteMessage(websocket.TextMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}
