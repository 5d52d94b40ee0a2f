// Package lorem implements a demo agent server. It answers agent runs with
// lorem ipsum text, framed in either wire strategy and written in small
// fragments so clients see frames split across reads.
package lorem

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	loremgen "github.com/bozaro/golorem"
	"github.com/fwojciec/agentstream"
	"github.com/fwojciec/agentstream/agentapi"
	asjson "github.com/fwojciec/agentstream/json"
	"github.com/fwojciec/agentstream/websocket"
)

const (
	defaultDeltas   = 40
	defaultFragment = 7
	defaultDelay    = 30 * time.Millisecond
	maxRequestBody  = 1 << 20
)

// Server streams lorem ipsum answers.
type Server struct {
	strategy agentstream.Strategy
	deltas   int
	fragment int
	delay    time.Duration
	errorMsg string
	logger   *slog.Logger

	mu    sync.Mutex // guards words
	words func() string
}

// Option configures a [Server].
type Option func(*Server)

// WithStrategy sets the wire framing of responses.
func WithStrategy(s agentstream.Strategy) Option {
	return func(srv *Server) { srv.strategy = s }
}

// WithDeltas sets the number of message events per answer.
func WithDeltas(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.deltas = n
		}
	}
}

// WithFragmentSize sets how many bytes are written per flush.
func WithFragmentSize(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.fragment = n
		}
	}
}

// WithDelay sets the pause between fragments.
func WithDelay(d time.Duration) Option {
	return func(s *Server) { s.delay = d }
}

// WithErrorEvent makes every answer carry an error event with msg halfway
// through.
func WithErrorEvent(msg string) Option {
	return func(s *Server) { s.errorMsg = msg }
}

// WithWordSource replaces the lorem generator.
func WithWordSource(fn func() string) Option {
	return func(s *Server) { s.words = fn }
}

// WithLogger sets the server logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New creates a Server.
func New(opts ...Option) *Server {
	gen := loremgen.New()
	s := &Server{
		strategy: agentstream.StrategyDelimited,
		deltas:   defaultDeltas,
		fragment: defaultFragment,
		delay:    defaultDelay,
		logger:   slog.New(slog.DiscardHandler),
		words:    func() string { return gen.Word(2, 9) },
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Frames returns the encoded frames of one answer, terminator included.
func (s *Server) Frames() ([]string, error) {
	var frames []string
	add := func(kind agentstream.EventKind, content string) error {
		p, err := asjson.MarshalEvent(agentstream.Event{Kind: kind, Content: content})
		if err != nil {
			return fmt.Errorf("lorem: %w", err)
		}
		frames = append(frames, s.encode(len(frames), string(p)))
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.deltas {
		if s.errorMsg != "" && i == s.deltas/2 {
			if err := add(agentstream.EventError, s.errorMsg); err != nil {
				return nil, err
			}
		}
		delta := s.words()
		if i < s.deltas-1 {
			delta += " "
		}
		if err := add(agentstream.EventMessage, delta); err != nil {
			return nil, err
		}
	}
	if err := add(agentstream.EventUsage, fmt.Sprint(s.deltas)); err != nil {
		return nil, err
	}
	if s.strategy == agentstream.StrategyDelimited {
		frames = append(frames, s.encode(len(frames), agentstream.DoneSentinel))
		return frames, nil
	}
	if err := add(agentstream.EventComplete, ""); err != nil {
		return nil, err
	}
	return frames, nil
}

// encode wraps payload p as the i-th frame of a response.
func (s *Server) encode(i int, p string) string {
	if s.strategy == agentstream.StrategyEmbedded {
		// Vary the whitespace after the tag the way real servers do.
		if i%2 == 1 {
			return "data: " + p
		}
		return "data:" + p
	}
	if i%3 == 2 {
		return "data: " + p + "\r\n\r\n"
	}
	return "data: " + p + "\n\n"
}

// Write streams one answer to w in fragments, calling flush after each
// fragment when flush is not nil.
func (s *Server) Write(ctx context.Context, w io.Writer, flush func()) error {
	frames, err := s.Frames()
	if err != nil {
		return err
	}
	var stream []byte
	for _, f := range frames {
		stream = append(stream, f...)
	}
	for len(stream) > 0 {
		n := min(s.fragment, len(stream))
		if _, err := w.Write(stream[:n]); err != nil {
			return fmt.Errorf("lorem: %w", err)
		}
		if flush != nil {
			flush()
		}
		stream = stream[n:]
		if s.delay > 0 && len(stream) > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.delay):
			}
		}
	}
	return nil
}

func (s *Server) decode(body []byte) (agentstream.Request, error) {
	req, err := agentapi.DecodeRequest(body)
	if err != nil {
		return req, err
	}
	return req, req.Validate()
}

// ServeHTTP answers POST agent runs.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req, err := s.decode(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Info("agent run", "session", req.ConversationID, "worker", req.WorkerID, "framing", s.strategy)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	var flush func()
	if f, ok := w.(http.Flusher); ok {
		flush = f.Flush
	}
	if err := s.Write(r.Context(), w, flush); err != nil {
		s.logger.Debug("agent run aborted", "error", err)
	}
}

// WebSocket returns a handler serving the same answers over websocket.
func (s *Server) WebSocket() http.Handler {
	return &websocket.Handler{
		Logger: s.logger,
		Stream: func(ctx context.Context, body []byte, w io.Writer) error {
			if _, err := s.decode(body); err != nil {
				return err
			}
			return s.Write(ctx, w, nil)
		},
	}
}

// Routes returns the server's endpoints: the HTTP agent run and its
// websocket variant.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/api/v1/agent/run", s)
	mux.Handle("/api/v1/agent/ws", s.WebSocket())
	return mux
}

func writeError(w http.ResponseWriter, status int, msg string) {
	body, _ := json.Marshal(map[string]string{"message": msg})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
