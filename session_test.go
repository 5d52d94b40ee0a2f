package agentstream_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand/v2"
	"strings"
	"testing"
	"time"

	"github.com/fwojciec/agentstream"
	"github.com/fwojciec/agentstream/frame"
	asjson "github.com/fwojciec/agentstream/json"
	"github.com/fwojciec/agentstream/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func payload(t *testing.T, kind agentstream.EventKind, content string) string {
	t.Helper()
	b, err := asjson.MarshalEvent(agentstream.Event{Kind: kind, Content: content})
	require.NoError(t, err)
	return string(b)
}

// sse renders payloads as blank-line delimited data frames.
func sse(payloads ...string) string {
	var b strings.Builder
	for _, p := range payloads {
		b.WriteString("data: " + p + "\n\n")
	}
	return b.String()
}

// tagged renders payloads as directly concatenated embedded frames.
func tagged(payloads ...string) string {
	var b strings.Builder
	for _, p := range payloads {
		b.WriteString("data:" + p)
	}
	return b.String()
}

func newSession(t *testing.T, strategy agentstream.Strategy, sinks agentstream.Sinks, opts ...agentstream.Option) *agentstream.Session {
	t.Helper()
	f, err := frame.New(strategy)
	require.NoError(t, err)
	return agentstream.NewSession(f, asjson.Classifier{}, sinks, opts...)
}

func kinds(calls []mock.Call) []mock.CallKind {
	out := make([]mock.CallKind, len(calls))
	for i, c := range calls {
		out[i] = c.Kind
	}
	return out
}

func TestSession_DelimitedScenario(t *testing.T) {
	t.Parallel()
	rec := &mock.Recorder{}
	s := newSession(t, agentstream.StrategyDelimited, rec.Sinks(), agentstream.WithThrottleInterval(time.Hour))
	src := mock.NewChunkSource(
		"data: {\"eventType\":\"message\",\"content\":\"Hel\"}\n\ndata: {\"eventType\":\"mes",
		"sage\",\"content\":\"lo\"}\n\n",
		"data: [DONE]\n\n",
	)

	err := s.Run(context.Background(), src)
	require.NoError(t, err)

	assert.Equal(t, []mock.Call{
		{Kind: mock.CallMessage, Result: agentstream.Result{Segment: "Hel", Full: "Hel"}},
		{Kind: mock.CallInterval, Result: agentstream.Result{Segment: "Hel", Full: "Hel"}},
		{Kind: mock.CallMessage, Result: agentstream.Result{Segment: "lo", Full: "Hello"}},
		{Kind: mock.CallInterval, Result: agentstream.Result{Segment: "lo", Full: "Hello"}},
		{Kind: mock.CallComplete, Result: agentstream.Result{Full: "Hello"}},
	}, rec.Calls())
	assert.Equal(t, agentstream.SessionCompleted, s.State())
	assert.Equal(t, "Hello", s.Content())
	assert.Equal(t, 1, src.Closes())
}

func TestSession_EmbeddedScenario(t *testing.T) {
	t.Parallel()
	rec := &mock.Recorder{}
	s := newSession(t, agentstream.StrategyEmbedded, rec.Sinks(), agentstream.WithThrottleInterval(time.Hour))
	src := mock.NewChunkSource(`data:{"eventType":"message","content":"ab"}data:{"eventType":"complete","content":""}`)

	require.NoError(t, s.Run(context.Background(), src))

	assert.Equal(t, []mock.Call{
		{Kind: mock.CallMessage, Result: agentstream.Result{Segment: "ab", Full: "ab"}},
		{Kind: mock.CallInterval, Result: agentstream.Result{Segment: "ab", Full: "ab"}},
		{Kind: mock.CallComplete, Result: agentstream.Result{Full: "ab"}},
	}, rec.Calls())
}

func TestSession_CompletesExactlyOnce(t *testing.T) {
	t.Parallel()

	errReset := errors.New("connection reset")

	tests := []struct {
		name      string
		strategy  agentstream.Strategy
		frameOpts []frame.Option
		src       func(t *testing.T) *mock.ChunkSource
		wantErr   error
		wantState agentstream.SessionState
		wantFull  string
		wantErrs  int
	}{
		{
			name:     "done sentinel",
			strategy: agentstream.StrategyDelimited,
			src: func(t *testing.T) *mock.ChunkSource {
				return mock.NewChunkSource(
					sse(payload(t, agentstream.EventMessage, "a"), "[DONE]"),
					sse(payload(t, agentstream.EventMessage, "ignored")),
				)
			},
			wantState: agentstream.SessionCompleted,
			wantFull:  "a",
		},
		{
			name:     "complete event",
			strategy: agentstream.StrategyEmbedded,
			src: func(t *testing.T) *mock.ChunkSource {
				return mock.NewChunkSource(tagged(
					payload(t, agentstream.EventMessage, "a"),
					payload(t, agentstream.EventComplete, ""),
					payload(t, agentstream.EventMessage, "ignored"),
				))
			},
			wantState: agentstream.SessionCompleted,
			wantFull:  "a",
		},
		{
			name:     "silent close",
			strategy: agentstream.StrategyDelimited,
			src: func(t *testing.T) *mock.ChunkSource {
				return mock.NewChunkSource(sse(payload(t, agentstream.EventMessage, "a")))
			},
			wantState: agentstream.SessionCompleted,
			wantFull:  "a",
		},
		{
			name:     "trailing frame without delimiter",
			strategy: agentstream.StrategyDelimited,
			src: func(t *testing.T) *mock.ChunkSource {
				return mock.NewChunkSource("data: " + payload(t, agentstream.EventMessage, "a"))
			},
			wantState: agentstream.SessionCompleted,
			wantFull:  "a",
		},
		{
			name:     "error event then close",
			strategy: agentstream.StrategyEmbedded,
			src: func(t *testing.T) *mock.ChunkSource {
				return mock.NewChunkSource(tagged(
					payload(t, agentstream.EventMessage, "a"),
					payload(t, agentstream.EventError, "boom"),
					payload(t, agentstream.EventMessage, "b"),
				))
			},
			wantState: agentstream.SessionCompleted,
			wantFull:  "ab",
			wantErrs:  1,
		},
		{
			name:     "truncated embedded frame",
			strategy: agentstream.StrategyEmbedded,
			src: func(t *testing.T) *mock.ChunkSource {
				return mock.NewChunkSource(tagged(payload(t, agentstream.EventMessage, "a")) + `data:{"eventType":"mess`)
			},
			wantState: agentstream.SessionCompleted,
			wantFull:  "a",
		},
		{
			name:     "transport error",
			strategy: agentstream.StrategyDelimited,
			src: func(t *testing.T) *mock.ChunkSource {
				src := mock.NewChunkSource(sse(payload(t, agentstream.EventMessage, "a")))
				src.End = errReset
				return src
			},
			wantErr:   errReset,
			wantState: agentstream.SessionErrored,
			wantFull:  "a",
			wantErrs:  1,
		},
		{
			name:      "oversized frame",
			strategy:  agentstream.StrategyDelimited,
			frameOpts: []frame.Option{frame.WithMaxFrameSize(64)},
			src: func(t *testing.T) *mock.ChunkSource {
				return mock.NewChunkSource(
					sse(payload(t, agentstream.EventMessage, "a")),
					"data: "+strings.Repeat("x", 128),
				)
			},
			wantErr:   frame.ErrFrameTooLarge,
			wantState: agentstream.SessionErrored,
			wantFull:  "a",
			wantErrs:  1,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			f, err := frame.New(tc.strategy, tc.frameOpts...)
			require.NoError(t, err)
			rec := &mock.Recorder{}
			s := agentstream.NewSession(f, asjson.Classifier{}, rec.IntervalSinks())
			src := tc.src(t)

			err = s.Run(context.Background(), src)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
			} else {
				require.NoError(t, err)
			}

			calls := rec.Calls()
			require.Len(t, rec.Of(mock.CallComplete), 1)
			require.NotEmpty(t, calls)
			last := calls[len(calls)-1]
			assert.Equal(t, mock.CallComplete, last.Kind, "completion must be the final callback: %v", kinds(calls))
			assert.Equal(t, tc.wantFull, last.Result.Full)
			assert.Equal(t, tc.wantFull, rec.Segments(mock.CallInterval))
			assert.Len(t, rec.Of(mock.CallError), tc.wantErrs)
			assert.Equal(t, tc.wantState, s.State())
			assert.Equal(t, 1, src.Closes())
		})
	}
}

func TestSession_ErrorEvent(t *testing.T) {
	t.Parallel()

	t.Run("flushes pending content before reporting", func(t *testing.T) {
		t.Parallel()
		rec := &mock.Recorder{}
		s := newSession(t, agentstream.StrategyDelimited, rec.IntervalSinks(), agentstream.WithThrottleInterval(time.Hour))
		src := mock.NewChunkSource(sse(
			payload(t, agentstream.EventMessage, "a"),
			payload(t, agentstream.EventMessage, "b"),
			payload(t, agentstream.EventError, "rate limited"),
		))

		require.NoError(t, s.Run(context.Background(), src))

		assert.Equal(t, []mock.CallKind{
			mock.CallInterval, mock.CallInterval, mock.CallError, mock.CallComplete,
		}, kinds(rec.Calls()))
		var evErr *agentstream.ServerError
		require.ErrorAs(t, rec.Of(mock.CallError)[0].Err, &evErr)
		assert.Equal(t, "rate limited", evErr.Error())
	})

	t.Run("empty content uses the default message", func(t *testing.T) {
		t.Parallel()
		rec := &mock.Recorder{}
		s := newSession(t, agentstream.StrategyDelimited, rec.Sinks())
		src := mock.NewChunkSource(sse(payload(t, agentstream.EventError, "")))

		require.NoError(t, s.Run(context.Background(), src))

		errs := rec.Of(mock.CallError)
		require.Len(t, errs, 1)
		assert.Equal(t, agentstream.DefaultServerErrorMessage, errs[0].Err.Error())
	})
}

func TestSession_MalformedFrames(t *testing.T) {
	t.Parallel()
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	rec := &mock.Recorder{}
	s := newSession(t, agentstream.StrategyDelimited, rec.Sinks(), agentstream.WithLogger(logger))
	src := mock.NewChunkSource(sse(
		payload(t, agentstream.EventMessage, "a"),
		"not json",
		`{"eventType":"usage","content":"12"}`,
		`{"content":"no kind"}`,
		payload(t, agentstream.EventMessage, ""),
		payload(t, agentstream.EventMessage, "b"),
	))

	require.NoError(t, s.Run(context.Background(), src))

	assert.Equal(t, "ab", rec.Segments(mock.CallMessage))
	assert.Equal(t, "ab", rec.Segments(mock.CallInterval))
	assert.Empty(t, rec.Of(mock.CallError))
	assert.Contains(t, logs.String(), "dropping malformed frame")
}

func TestSession_DefaultLoggerDiscards(t *testing.T) {
	t.Parallel()
	rec := &mock.Recorder{}
	s := newSession(t, agentstream.StrategyDelimited, rec.Sinks(), agentstream.WithLogger(nil))
	src := mock.NewChunkSource(sse("not json", `{"eventType":"usage"}`, payload(t, agentstream.EventMessage, "ok")))

	require.NoError(t, s.Run(context.Background(), src))

	assert.Equal(t, "ok", rec.Of(mock.CallComplete)[0].Result.Full)
}

func TestSession_NoDataLoss(t *testing.T) {
	t.Parallel()
	const alphabet = "ab {}\"\\:\n[]data"

	for _, strategy := range []agentstream.Strategy{agentstream.StrategyDelimited, agentstream.StrategyEmbedded} {
		t.Run(strategy.String(), func(t *testing.T) {
			t.Parallel()
			r := rand.New(rand.NewPCG(7, uint64(strategy)))
			for range 50 {
				var want strings.Builder
				var payloads []string
				for range 1 + r.IntN(30) {
					delta := make([]byte, 1+r.IntN(8))
					for i := range delta {
						delta[i] = alphabet[r.IntN(len(alphabet))]
					}
					want.Write(delta)
					payloads = append(payloads, payload(t, agentstream.EventMessage, string(delta)))
				}
				stream := sse(payloads...)
				if strategy == agentstream.StrategyEmbedded {
					stream = tagged(payloads...)
				}
				var chunks []string
				for len(stream) > 0 {
					n := min(len(stream), 1+r.IntN(24))
					chunks = append(chunks, stream[:n])
					stream = stream[n:]
				}

				rec := &mock.Recorder{}
				s := newSession(t, strategy, rec.Sinks(), agentstream.WithThrottleInterval(time.Millisecond))
				require.NoError(t, s.Run(context.Background(), mock.NewChunkSource(chunks...)))

				complete := rec.Of(mock.CallComplete)
				require.Len(t, complete, 1)
				assert.Equal(t, want.String(), complete[0].Result.Full)
				assert.Equal(t, want.String(), rec.Segments(mock.CallInterval))
				assert.Equal(t, want.String(), rec.Segments(mock.CallMessage))
			}
		})
	}
}

func TestSession_TrailingIntervalFiresOnTimer(t *testing.T) {
	t.Parallel()
	rec := &mock.Recorder{}
	s := newSession(t, agentstream.StrategyDelimited, rec.IntervalSinks(), agentstream.WithThrottleInterval(20*time.Millisecond))
	src := &mock.ChunkSource{
		Chunks: []string{
			sse(payload(t, agentstream.EventMessage, "a")),
			sse(payload(t, agentstream.EventMessage, "b")),
		},
		Hang: true,
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx, src) }()

	require.Eventually(t, func() bool {
		return rec.Segments(mock.CallInterval) == "ab"
	}, 5*time.Second, 5*time.Millisecond)
	assert.Empty(t, rec.Of(mock.CallComplete))

	cancel()
	select {
	case err := <-errCh:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Len(t, rec.Of(mock.CallInterval), 2)
	assert.Len(t, rec.Of(mock.CallComplete), 1)
}

func TestSession_Abort(t *testing.T) {
	t.Parallel()
	rec := &mock.Recorder{}
	s := newSession(t, agentstream.StrategyDelimited, rec.Sinks(), agentstream.WithThrottleInterval(time.Hour))
	src := &mock.ChunkSource{
		Chunks: []string{sse(payload(t, agentstream.EventMessage, "a"), payload(t, agentstream.EventMessage, "b"))},
		Hang:   true,
	}
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx, src) }()
	require.Eventually(t, func() bool {
		return len(rec.Of(mock.CallMessage)) == 2
	}, 5*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	calls := rec.Calls()
	assert.Equal(t, mock.CallComplete, calls[len(calls)-1].Kind)
	assert.Len(t, rec.Of(mock.CallComplete), 1)
	assert.Equal(t, "ab", rec.Segments(mock.CallInterval))
	assert.Equal(t, "ab", rec.Of(mock.CallComplete)[0].Result.Full)
	assert.Equal(t, agentstream.SessionErrored, s.State())
	assert.Equal(t, 1, src.Closes())
}

func TestSession_Stream(t *testing.T) {
	t.Parallel()

	t.Run("opens the request on the transport", func(t *testing.T) {
		t.Parallel()
		var got agentstream.Request
		transport := &mock.Transport{
			OpenFn: func(_ context.Context, req agentstream.Request) (agentstream.Source, error) {
				got = req
				return mock.NewChunkSource(sse(`{"eventType":"message","content":"hi"}`, "[DONE]")), nil
			},
		}
		rec := &mock.Recorder{}
		s := newSession(t, agentstream.StrategyDelimited, rec.Sinks())

		err := s.Stream(context.Background(), transport, agentstream.Request{Prompt: "hello", WorkerID: "w1"})
		require.NoError(t, err)

		assert.Equal(t, "hello", got.Prompt)
		assert.Equal(t, "w1", got.WorkerID)
		assert.Equal(t, "hi", rec.Of(mock.CallComplete)[0].Result.Full)
	})

	t.Run("invalid request never reaches the transport", func(t *testing.T) {
		t.Parallel()
		transport := &mock.Transport{
			OpenFn: func(context.Context, agentstream.Request) (agentstream.Source, error) {
				t.Fatal("transport opened for invalid request")
				return nil, nil
			},
		}
		rec := &mock.Recorder{}
		s := newSession(t, agentstream.StrategyDelimited, rec.Sinks())

		err := s.Stream(context.Background(), transport, agentstream.Request{Prompt: "  "})
		require.ErrorIs(t, err, agentstream.ErrValidation)

		assert.Equal(t, []mock.CallKind{mock.CallError}, kinds(rec.Calls()))
		assert.Equal(t, agentstream.SessionErrored, s.State())
	})

	t.Run("open failure reports the error and completes", func(t *testing.T) {
		t.Parallel()
		errDial := errors.New("dial tcp: refused")
		transport := &mock.Transport{
			OpenFn: func(context.Context, agentstream.Request) (agentstream.Source, error) {
				return nil, errDial
			},
		}
		rec := &mock.Recorder{}
		s := newSession(t, agentstream.StrategyDelimited, rec.Sinks())

		err := s.Stream(context.Background(), transport, agentstream.Request{Prompt: "hello"})
		require.ErrorIs(t, err, errDial)

		assert.Equal(t, []mock.CallKind{mock.CallError, mock.CallComplete}, kinds(rec.Calls()))
		assert.Equal(t, agentstream.SessionErrored, s.State())
	})
}

func TestSession_SingleUse(t *testing.T) {
	t.Parallel()
	s := newSession(t, agentstream.StrategyDelimited, agentstream.Sinks{})

	require.ErrorIs(t, s.Run(context.Background(), nil), agentstream.ErrNoSource)
	assert.Equal(t, agentstream.SessionIdle, s.State())

	require.NoError(t, s.Run(context.Background(), mock.NewChunkSource(sse("[DONE]"))))
	assert.ErrorIs(t, s.Run(context.Background(), mock.NewChunkSource()), agentstream.ErrSessionDone)
	assert.ErrorIs(t, s.Stream(context.Background(), &mock.Transport{}, agentstream.Request{Prompt: "x"}), agentstream.ErrSessionDone)
}

func TestSession_CustomFramerAndClassifier(t *testing.T) {
	t.Parallel()
	framer := &mock.Framer{
		PushFn: func(chunk []byte) ([]string, error) {
			return strings.Fields(string(chunk)), nil
		},
	}
	classifier := &mock.Classifier{
		ClassifyFn: func(p string) (agentstream.Event, error) {
			if p == "end" {
				return agentstream.Event{Kind: agentstream.EventComplete}, nil
			}
			return agentstream.Event{Kind: agentstream.EventMessage, Content: p}, nil
		},
	}
	rec := &mock.Recorder{}
	s := agentstream.NewSession(framer, classifier, rec.Sinks())

	require.NoError(t, s.Run(context.Background(), mock.NewChunkSource("x y", "end z")))

	assert.Equal(t, "xy", rec.Of(mock.CallComplete)[0].Result.Full)
}

func TestReaderSource(t *testing.T) {
	t.Parallel()

	t.Run("splits reads into bounded chunks", func(t *testing.T) {
		t.Parallel()
		src := agentstream.NewReaderSource(io.NopCloser(strings.NewReader("abcdefg")), 3)
		var chunks []string
		for {
			c, err := src.Next()
			if errors.Is(err, io.EOF) {
				break
			}
			require.NoError(t, err)
			chunks = append(chunks, string(c))
		}
		assert.Equal(t, []string{"abc", "def", "g"}, chunks)
		assert.NoError(t, src.Close())
	})

	t.Run("passes read errors through", func(t *testing.T) {
		t.Parallel()
		errBroken := errors.New("broken pipe")
		src := agentstream.NewReaderSource(io.NopCloser(io.MultiReader(strings.NewReader("ab"), errReader{errBroken})), 0)

		c, err := src.Next()
		require.NoError(t, err)
		assert.Equal(t, "ab", string(c))
		_, err = src.Next()
		assert.ErrorIs(t, err, errBroken)
	})
}

type errReader struct{ err error }

func (r errReader) Read([]byte) (int, error) { return 0, r.err }
