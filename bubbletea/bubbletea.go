// Package bubbletea provides a Bubble Tea TUI that streams agent answers.
package bubbletea

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fwojciec/agentstream"
)

// AskFunc runs one agent request, reporting through sinks. It blocks until
// the session ends or ctx is cancelled.
type AskFunc func(ctx context.Context, req agentstream.Request, sinks agentstream.Sinks) error

// Run creates and runs the Bubble Tea TUI program. It blocks until the
// program exits. Cancelling ctx quits the program.
func Run(ctx context.Context, m Model) error {
	p := tea.NewProgram(m, tea.WithAltScreen())
	go func() {
		<-ctx.Done()
		p.Quit()
	}()
	_, err := p.Run()
	return err
}

// StreamStartMsg signals that a request was accepted and streaming begins.
type StreamStartMsg struct{}

// StreamDataMsg carries a throttled content update.
type StreamDataMsg struct {
	Result agentstream.Result
}

// StreamEndMsg signals the end of a stream. It is delivered exactly once
// for every started stream.
type StreamEndMsg struct {
	Result agentstream.Result
}

// StreamErrorMsg reports an error. Message is always displayable.
type StreamErrorMsg struct {
	Err     error
	Message string
}

// AskDoneMsg signals that the AskFunc returned and no more stream messages
// follow.
type AskDoneMsg struct {
	Err error
}
