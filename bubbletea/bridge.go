package bubbletea

import (
	"context"
	"errors"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fwojciec/agentstream"
)

// UnknownErrorMessage is displayed for errors without a message.
const UnknownErrorMessage = "unknown error"

// ErrorMessage returns a displayable message for err.
func ErrorMessage(err error) string {
	if err == nil {
		return UnknownErrorMessage
	}
	var evErr *agentstream.ServerError
	if errors.As(err, &evErr) {
		return evErr.Error()
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return UnknownErrorMessage
}

// Ask runs ask for req and translates its sink callbacks into messages on
// out. A request that fails validation produces a single StreamErrorMsg.
// Otherwise StreamStartMsg comes first and StreamEndMsg last, even when
// ask returns without completing. Ask does not close out.
func Ask(ctx context.Context, ask AskFunc, req agentstream.Request, out chan<- tea.Msg) error {
	if err := req.Validate(); err != nil {
		out <- StreamErrorMsg{Err: err, Message: ErrorMessage(err)}
		return err
	}
	out <- StreamStartMsg{}

	ended := false
	sinks := agentstream.Sinks{
		OnInterval: func(r agentstream.Result) {
			out <- StreamDataMsg{Result: r}
		},
		OnComplete: func(r agentstream.Result) {
			ended = true
			out <- StreamEndMsg{Result: r}
		},
		OnError: func(err error) {
			out <- StreamErrorMsg{Err: err, Message: ErrorMessage(err)}
		},
	}
	err := ask(ctx, req, sinks)
	if !ended {
		out <- StreamEndMsg{}
	}
	return err
}

// startAsk runs Ask in a goroutine and signals completion on done.
func startAsk(ctx context.Context, ask AskFunc, req agentstream.Request, out chan<- tea.Msg, done chan<- error) tea.Cmd {
	return func() tea.Msg {
		err := Ask(ctx, ask, req, out)
		close(out)
		done <- err
		return nil
	}
}

// listen waits for the next stream message. When the channel closes, it
// reads the result from done and returns AskDoneMsg.
func listen(ch <-chan tea.Msg, done <-chan error) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-ch
		if !ok {
			return AskDoneMsg{Err: <-done}
		}
		return msg
	}
}
