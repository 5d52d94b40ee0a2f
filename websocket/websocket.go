// Package websocket implements an agentstream transport over websocket
// connections. The client sends the agent run body as its first message;
// every following server message is one chunk of the framed stream.
package websocket

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/fwojciec/agentstream"
	"github.com/fwojciec/agentstream/agentapi"
	"github.com/gorilla/websocket"
)

const closeTimeout = time.Second

// Interface compliance checks.
var (
	_ agentstream.Transport = (*Transport)(nil)
	_ agentstream.Source    = (*Source)(nil)
)

// Transport dials a websocket endpoint per request.
type Transport struct {
	url    string
	model  string
	dialer *websocket.Dialer
	logger *slog.Logger
}

// Option configures a [Transport].
type Option func(*Transport)

// WithDialer sets the websocket dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(t *Transport) { t.dialer = d }
}

// WithModel sets the model used when a request does not name one.
func WithModel(model string) Option {
	return func(t *Transport) {
		if model != "" {
			t.model = model
		}
	}
}

// WithLogger sets the transport logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Transport) { t.logger = l }
}

// New returns a Transport dialing url (ws:// or wss://).
func New(url string, opts ...Option) *Transport {
	t := &Transport{
		url:    url,
		model:  agentapi.DefaultModel,
		dialer: websocket.DefaultDialer,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Open dials, sends the encoded request and returns the connection as a
// source.
func (t *Transport) Open(ctx context.Context, req agentstream.Request) (agentstream.Source, error) {
	body, err := agentapi.EncodeRequest(req, t.model)
	if err != nil {
		return nil, fmt.Errorf("websocket: %w", err)
	}
	header := http.Header{}
	header.Set("x-ak", req.LLM.AccessKey)

	conn, resp, err := t.dialer.DialContext(ctx, t.url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket: handshake: HTTP %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket: %w", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, body); err != nil {
		conn.Close()
		return nil, fmt.Errorf("websocket: send request: %w", err)
	}
	t.logger.Debug("websocket run opened", "url", t.url)
	return NewSource(conn), nil
}

// Source reads websocket messages as chunks. A normal closure from the peer
// is the clean end of the stream.
type Source struct {
	conn *websocket.Conn
	once sync.Once
	err  error
}

// NewSource wraps an established connection.
func NewSource(conn *websocket.Conn) *Source {
	return &Source{conn: conn}
}

// Next returns the payload of the next non-empty message.
func (s *Source) Next() ([]byte, error) {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil, io.EOF
			}
			return nil, fmt.Errorf("websocket: %w", err)
		}
		if len(data) > 0 {
			return data, nil
		}
	}
}

// Close sends a close frame and closes the connection. It unblocks a
// pending Next and may be called more than once.
func (s *Source) Close() error {
	s.once.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		err := s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeTimeout))
		if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
			s.err = errors.Join(err, s.conn.Close())
			return
		}
		s.err = s.conn.Close()
	})
	return s.err
}
