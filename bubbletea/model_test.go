package bubbletea_test

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/exp/teatest"
	"github.com/fwojciec/agentstream"
	bt "github.com/fwojciec/agentstream/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nopAsk(context.Context, agentstream.Request, agentstream.Sinks) error { return nil }

// initModel creates a model and sends a WindowSizeMsg to initialize the viewport.
func initModel(t *testing.T, ask bt.AskFunc) bt.Model {
	t.Helper()
	m := bt.New(ask, agentstream.Request{WorkerID: "w"}, agentstream.DefaultTheme())
	return updateModel(t, m, tea.WindowSizeMsg{Width: 80, Height: 24})
}

// updateModel sends a message and returns the updated Model.
func updateModel(t *testing.T, m bt.Model, msg tea.Msg) bt.Model {
	t.Helper()
	updated, _ := m.Update(msg)
	model, ok := updated.(bt.Model)
	require.True(t, ok)
	return model
}

func TestModel_Update(t *testing.T) {
	t.Parallel()

	t.Run("window size initializes viewport", func(t *testing.T) {
		t.Parallel()
		m := bt.New(nopAsk, agentstream.Request{}, agentstream.DefaultTheme())
		assert.Equal(t, "Initializing...", m.View())

		m = initModel(t, nopAsk)
		assert.Equal(t, 80, m.Viewport.Width)
		assert.Equal(t, 20, m.Viewport.Height)
		assert.Contains(t, m.View(), "Enter to send")
	})

	t.Run("ctrl+c when idle quits", func(t *testing.T) {
		t.Parallel()
		m := initModel(t, nopAsk)
		_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
		require.NotNil(t, cmd)
		_, isQuit := cmd().(tea.QuitMsg)
		assert.True(t, isQuit)
	})

	t.Run("enter with empty input does nothing", func(t *testing.T) {
		t.Parallel()
		m := initModel(t, nopAsk)
		updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
		assert.False(t, updated.(bt.Model).Running())
		assert.Nil(t, cmd)
	})

	t.Run("data updates the answer while streaming", func(t *testing.T) {
		t.Parallel()
		m := initModel(t, nopAsk)
		m, _ = bt.SetRunning(m)
		m = updateModel(t, m, bt.StreamDataMsg{Result: agentstream.Result{Segment: "Hel", Full: "Hel"}})
		m = updateModel(t, m, bt.StreamDataMsg{Result: agentstream.Result{Segment: "lo", Full: "Hello"}})

		assert.Equal(t, "Hello", m.Answer())
		assert.Contains(t, m.View(), "Hello")
		assert.Contains(t, m.View(), "Streaming... 5 chars")
	})

	t.Run("end renders the final answer as markdown", func(t *testing.T) {
		t.Parallel()
		m := initModel(t, nopAsk)
		m = updateModel(t, m, bt.StreamEndMsg{Result: agentstream.Result{Full: "# Title\n\n- item"}})

		content := bt.RenderContent(m)
		assert.Contains(t, content, "Title")
		assert.NotContains(t, content, "# Title")
		assert.Contains(t, content, "- item")
	})

	t.Run("error is shown in the status line", func(t *testing.T) {
		t.Parallel()
		m := initModel(t, nopAsk)
		m, _ = bt.SetRunning(m)
		m = updateModel(t, m, bt.StreamErrorMsg{Err: assert.AnError, Message: "rate limited"})
		m = updateModel(t, m, bt.AskDoneMsg{Err: assert.AnError})

		assert.False(t, m.Running())
		assert.ErrorIs(t, m.Err(), assert.AnError)
		assert.Contains(t, m.View(), "Error:")
		assert.Contains(t, bt.RenderContent(m), "rate limited")
	})

	t.Run("cancellation is not an error", func(t *testing.T) {
		t.Parallel()
		m := initModel(t, nopAsk)
		m, _ = bt.SetRunning(m)
		m = updateModel(t, m, bt.StreamErrorMsg{Err: context.Canceled, Message: "context canceled"})
		m = updateModel(t, m, bt.AskDoneMsg{Err: context.Canceled})

		assert.NoError(t, m.Err())
		assert.Contains(t, bt.RenderContent(m), "(canceled)")
	})

	t.Run("enter during a run is ignored", func(t *testing.T) {
		t.Parallel()
		m := initModel(t, nopAsk)
		m.Input.SetValue("again")
		m, _ = bt.SetRunning(m)
		_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
		assert.Nil(t, cmd)
	})
}

func TestModel_Teatest(t *testing.T) {
	t.Parallel()

	t.Run("question is streamed and answered", func(t *testing.T) {
		t.Parallel()

		var mu sync.Mutex
		var reqs []agentstream.Request
		ask := func(_ context.Context, req agentstream.Request, s agentstream.Sinks) error {
			mu.Lock()
			reqs = append(reqs, req)
			mu.Unlock()
			s.OnInterval(agentstream.Result{Segment: "Hello", Full: "Hello"})
			s.OnInterval(agentstream.Result{Segment: " there!", Full: "Hello there!"})
			s.OnComplete(agentstream.Result{Full: "Hello there!"})
			return nil
		}
		m := bt.New(ask, agentstream.Request{WorkerID: "w1"}, agentstream.DefaultTheme())
		tm := teatest.NewTestModel(t, m, teatest.WithInitialTermSize(80, 24))

		tm.Type("hi")
		tm.Send(tea.KeyMsg{Type: tea.KeyEnter})
		teatest.WaitFor(t, tm.Output(), func(out []byte) bool {
			return bytes.Contains(out, []byte("Hello there!")) &&
				bytes.Contains(out, []byte("1 answered"))
		}, teatest.WithDuration(5*time.Second))

		tm.Type("more")
		tm.Send(tea.KeyMsg{Type: tea.KeyEnter})
		teatest.WaitFor(t, tm.Output(), func(out []byte) bool {
			return bytes.Contains(out, []byte("2 answered"))
		}, teatest.WithDuration(5*time.Second))

		tm.Send(tea.KeyMsg{Type: tea.KeyCtrlC})
		fm := tm.FinalModel(t, teatest.WithFinalTimeout(5*time.Second))
		final, ok := fm.(bt.Model)
		require.True(t, ok)
		assert.False(t, final.Running())
		assert.NoError(t, final.Err())

		mu.Lock()
		defer mu.Unlock()
		require.Len(t, reqs, 2)
		assert.Equal(t, "w1", reqs[0].WorkerID)
		assert.Equal(t, []agentstream.Message{agentstream.UserMessage("hi")}, reqs[0].Messages)
		assert.Equal(t, []agentstream.Message{
			agentstream.UserMessage("hi"),
			{Role: agentstream.RoleAssistant, Content: "Hello there!"},
			agentstream.UserMessage("more"),
		}, reqs[1].Messages)
	})

	t.Run("ctrl+c cancels a running question", func(t *testing.T) {
		t.Parallel()

		ask := func(ctx context.Context, _ agentstream.Request, s agentstream.Sinks) error {
			s.OnInterval(agentstream.Result{Segment: "partial", Full: "partial"})
			<-ctx.Done()
			s.OnError(ctx.Err())
			s.OnComplete(agentstream.Result{Full: "partial"})
			return ctx.Err()
		}
		m := bt.New(ask, agentstream.Request{}, agentstream.DefaultTheme())
		tm := teatest.NewTestModel(t, m, teatest.WithInitialTermSize(80, 24))

		tm.Type("go")
		tm.Send(tea.KeyMsg{Type: tea.KeyEnter})
		teatest.WaitFor(t, tm.Output(), func(out []byte) bool {
			return bytes.Contains(out, []byte("partial"))
		}, teatest.WithDuration(5*time.Second))

		tm.Send(tea.KeyMsg{Type: tea.KeyCtrlC})
		teatest.WaitFor(t, tm.Output(), func(out []byte) bool {
			return bytes.Contains(out, []byte("(canceled)")) &&
				bytes.Contains(out, []byte("1 answered"))
		}, teatest.WithDuration(5*time.Second))

		tm.Send(tea.KeyMsg{Type: tea.KeyCtrlC})
		fm := tm.FinalModel(t, teatest.WithFinalTimeout(5*time.Second))
		final := fm.(bt.Model)
		assert.NoError(t, final.Err())
		assert.True(t, strings.HasPrefix(final.Answer(), "partial"))
	})
}
