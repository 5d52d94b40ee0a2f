package agentstream

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"
)

// Session turns one streaming response into sink callbacks. It owns all
// per-request state: the framer buffer, the aggregated content, the
// throttle gate, and the exactly-once completion guard.
//
// A Session is single-use. Every exit path of Run (clean end, server
// completion, transport error, context cancellation) fires OnComplete
// exactly once, after the last OnInterval delivery.
type Session struct {
	framer     Framer
	classifier Classifier
	sinks      Sinks
	logger     *slog.Logger
	interval   time.Duration
	now        func() time.Time

	state     SessionState
	agg       *Aggregator
	throttle  *Throttle
	completed bool // OnComplete fired
	closed    bool // source reported end or error
	cleaned   bool
}

// Option configures a [Session].
type Option func(*Session)

// WithLogger sets the logger for dropped frames and lifecycle events.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithThrottleInterval sets the interval sink's throttle window.
func WithThrottleInterval(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithClock sets the time source of the throttle gate. Useful for testing.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// NewSession creates a Session that frames chunks with framer, classifies
// frames with classifier, and reports to sinks.
func NewSession(framer Framer, classifier Classifier, sinks Sinks, opts ...Option) *Session {
	s := &Session{
		framer:     framer,
		classifier: classifier,
		sinks:      sinks,
		logger:     nopLogger,
		interval:   DefaultThrottleInterval,
	}
	for _, o := range opts {
		o(s)
	}
	s.agg = NewAggregator(sinks.OnInterval)
	s.throttle = NewThrottle(s.interval, func() { s.agg.FlushIfPending() }, s.now)
	return s
}

// State returns the current session state.
func (s *Session) State() SessionState { return s.state }

// Content returns the content accumulated so far.
func (s *Session) Content() string { return s.agg.Full() }

// Stream validates req, opens it on transport and runs the session on the
// resulting source. A request that fails validation is reported through
// OnError only and never reaches the transport. A transport that fails to
// open is handled like any transport failure.
func (s *Session) Stream(ctx context.Context, transport Transport, req Request) error {
	if s.state != SessionIdle {
		return ErrSessionDone
	}
	if err := req.Validate(); err != nil {
		s.state = SessionErrored
		s.reportError(err)
		return err
	}
	src, err := transport.Open(ctx, req)
	if err != nil {
		s.state = SessionStreaming
		defer s.cleanup(nil)
		return s.fail(err)
	}
	return s.Run(ctx, src)
}

type readResult struct {
	chunk []byte
	err   error
}

// Run consumes src until completion, end of stream, transport error, or
// cancellation of ctx, and closes src before returning. It returns nil on
// clean completion and the transport or context error otherwise. Server
// error events are reported through OnError and do not make Run fail.
func (s *Session) Run(ctx context.Context, src Source) error {
	if s.state != SessionIdle {
		return ErrSessionDone
	}
	if src == nil {
		return ErrNoSource
	}
	s.state = SessionStreaming
	defer s.cleanup(src)

	reads := make(chan readResult)
	done := make(chan struct{})
	defer close(done)
	go readLoop(src, reads, done)

	for {
		select {
		case r := <-reads:
			if r.err != nil {
				s.closed = true
				if errors.Is(r.err, io.EOF) {
					return s.finish()
				}
				return s.fail(r.err)
			}
			frames, err := s.framer.Push(r.chunk)
			s.dispatchAll(frames)
			if s.state != SessionStreaming {
				return nil
			}
			if err != nil {
				return s.fail(err)
			}
		case <-s.throttle.C():
			s.throttle.Fire()
		case <-ctx.Done():
			s.logger.Debug("session aborted", "error", ctx.Err())
			return s.fail(ctx.Err())
		}
	}
}

// readLoop forwards chunks until the source ends or Run returns. Closing
// the source in cleanup unblocks a pending Next.
func readLoop(src Source, out chan<- readResult, done <-chan struct{}) {
	for {
		chunk, err := src.Next()
		select {
		case out <- readResult{chunk: chunk, err: err}:
		case <-done:
			return
		}
		if err != nil {
			return
		}
	}
}

func (s *Session) dispatchAll(frames []string) {
	for _, f := range frames {
		if s.state != SessionStreaming {
			s.logger.Debug("ignoring frame after terminal state", "frame", clip(f))
			continue
		}
		s.dispatch(f)
	}
}

func (s *Session) dispatch(frame string) {
	if frame == DoneSentinel {
		s.complete()
		return
	}
	ev, err := s.classifier.Classify(frame)
	if err != nil {
		s.logger.Warn("dropping malformed frame", "error", err, "frame", clip(frame))
		return
	}
	switch ev.Kind {
	case EventMessage:
		if ev.Content == "" {
			return
		}
		s.agg.Append(ev.Content)
		if s.sinks.OnMessage != nil {
			s.sinks.OnMessage(Result{Segment: ev.Content, Full: s.agg.Full()})
		}
		s.throttle.Trigger()
	case EventComplete:
		s.complete()
	case EventError:
		s.flush()
		s.reportError(&ServerError{Message: ev.Content})
	default:
		s.logger.Debug("ignoring event", "kind", ev.Kind)
	}
}

// finish handles a clean end of stream: frames still buffered get one
// last chance, then the session completes with whatever accumulated.
func (s *Session) finish() error {
	frames, err := s.framer.Flush()
	if err != nil {
		s.logger.Warn("discarding unframed trailing data", "error", err)
	}
	s.dispatchAll(frames)
	if s.state == SessionStreaming {
		s.complete()
	}
	return nil
}

func (s *Session) complete() {
	s.flush()
	s.state = SessionCompleted
	s.fireComplete()
}

func (s *Session) fail(err error) error {
	s.flush()
	s.state = SessionErrored
	s.reportError(err)
	s.fireComplete()
	return err
}

func (s *Session) flush() {
	s.throttle.Flush()
	s.agg.FlushIfPending()
}

func (s *Session) fireComplete() {
	if s.completed {
		return
	}
	s.completed = true
	if s.sinks.OnComplete != nil {
		s.sinks.OnComplete(Result{Full: s.agg.Full()})
	}
}

func (s *Session) reportError(err error) {
	if s.sinks.OnError != nil {
		s.sinks.OnError(err)
	}
}

// cleanup runs once on every exit path of Run.
func (s *Session) cleanup(src Source) {
	if s.cleaned {
		return
	}
	s.cleaned = true
	s.throttle.Cancel()
	if !s.closed {
		s.agg.FlushIfPending()
	}
	if !s.completed {
		if s.state == SessionStreaming {
			s.state = SessionCompleted
		}
		s.fireComplete()
	}
	if src != nil {
		if err := src.Close(); err != nil {
			s.logger.Debug("closing source", "error", err)
		}
	}
}
