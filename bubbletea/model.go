package bubbletea

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/fwojciec/agentstream"
	"github.com/fwojciec/agentstream/goldmark"
	"github.com/mattn/go-runewidth"
	"github.com/rivo/uniseg"
)

var _ tea.Model = Model{}

// turn is one question and its streamed answer.
type turn struct {
	question string
	answer   string
	errors   []string
	done     bool
	canceled bool
}

// Model is the Bubble Tea model for the agentstream TUI.
type Model struct {
	// Input is the question input. Exported for test access.
	Input textinput.Model
	// Viewport is the scrollable conversation. Exported for test access.
	Viewport viewport.Model
	// Spinner animates the status line while streaming.
	Spinner spinner.Model

	ask      AskFunc
	base     agentstream.Request
	styles   Styles
	markdown *goldmark.Renderer

	turns   []*turn
	running bool
	cancel  context.CancelFunc
	msgCh   chan tea.Msg
	doneCh  chan error
	err     error
	width   int
	ready   bool
}

// New creates a TUI Model. Every question is sent as a copy of base with
// the conversation so far as its messages.
func New(ask AskFunc, base agentstream.Request, theme agentstream.Theme) Model {
	ti := textinput.New()
	ti.Placeholder = "Ask the agent..."
	ti.Prompt = "> "
	ti.Focus()
	ti.CharLimit = 0

	styles := NewStyles(theme)
	sp := spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(styles.Accent))

	return Model{
		Input:    ti,
		Spinner:  sp,
		ask:      ask,
		base:     base,
		styles:   styles,
		markdown: goldmark.New(theme),
	}
}

// Running returns whether a question is being answered.
func (m Model) Running() bool { return m.running }

// Err returns the last error, if any.
func (m Model) Err() error { return m.err }

// Answer returns the latest answer received so far.
func (m Model) Answer() string {
	if len(m.turns) == 0 {
		return ""
	}
	return m.turns[len(m.turns)-1].answer
}

// SetRunning is a test helper that puts the model in a running state.
func SetRunning(m Model) (Model, tea.Cmd) {
	m.running = true
	return m, nil
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.handleWindowSize(msg), nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case StreamStartMsg:
		return m, m.next()

	case StreamDataMsg:
		m.current().answer = msg.Result.Full
		m = m.refresh()
		return m, m.next()

	case StreamErrorMsg:
		t := m.current()
		if errors.Is(msg.Err, context.Canceled) {
			t.canceled = true
		} else {
			t.errors = append(t.errors, msg.Message)
			m.err = msg.Err
		}
		m = m.refresh()
		return m, m.next()

	case StreamEndMsg:
		t := m.current()
		if msg.Result.Full != "" {
			t.answer = msg.Result.Full
		}
		t.done = true
		m = m.refresh()
		return m, m.next()

	case AskDoneMsg:
		m.running = false
		m.cancel = nil
		m.msgCh = nil
		m.doneCh = nil
		if msg.Err != nil && m.err == nil && !errors.Is(msg.Err, context.Canceled) {
			m.err = msg.Err
		}
		return m, m.Input.Focus()

	case spinner.TickMsg:
		if !m.running {
			return m, nil
		}
		var cmd tea.Cmd
		m.Spinner, cmd = m.Spinner.Update(msg)
		return m, cmd
	}

	var cmds []tea.Cmd
	var cmd tea.Cmd
	m.Viewport, cmd = m.Viewport.Update(msg)
	cmds = append(cmds, cmd)
	if !m.running {
		m.Input, cmd = m.Input.Update(msg)
		cmds = append(cmds, cmd)
	}
	return m, tea.Batch(cmds...)
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Initializing..."
	}
	var b strings.Builder
	b.WriteString(m.Viewport.View())
	b.WriteString("\n")
	b.WriteString(m.statusLine())
	b.WriteString("\n")
	b.WriteString(m.Input.View())
	return b.String()
}

func (m Model) handleWindowSize(msg tea.WindowSizeMsg) Model {
	const inputHeight, statusHeight, borderHeight = 1, 1, 2
	vpHeight := max(msg.Height-inputHeight-statusHeight-borderHeight, 1)

	m.width = msg.Width
	if !m.ready {
		m.Viewport = viewport.New(msg.Width, vpHeight)
		m.ready = true
	} else {
		m.Viewport.Width = msg.Width
		m.Viewport.Height = vpHeight
	}
	m.Input.Width = msg.Width
	return m.refresh()
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		if m.running {
			if m.cancel != nil {
				m.cancel()
			}
			return m, nil
		}
		return m, tea.Quit

	case tea.KeyEnter:
		if m.running {
			return m, nil
		}
		text := strings.TrimSpace(m.Input.Value())
		if text == "" {
			return m, nil
		}
		return m.submit(text)
	}

	if m.running {
		return m, nil
	}
	var cmds []tea.Cmd
	var cmd tea.Cmd
	// Character keys belong to the input; 'j'/'k' would otherwise scroll.
	if msg.Type != tea.KeyRunes {
		m.Viewport, cmd = m.Viewport.Update(msg)
		cmds = append(cmds, cmd)
	}
	m.Input, cmd = m.Input.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m Model) submit(text string) (tea.Model, tea.Cmd) {
	req := m.base
	req.Prompt = ""
	req.Messages = m.history(text)

	m.Input.SetValue("")
	m.Input.Blur()
	m.err = nil
	m.turns = append(m.turns, &turn{question: text})
	m = m.refresh()

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.msgCh = make(chan tea.Msg, 64)
	m.doneCh = make(chan error, 1)
	m.running = true

	return m, tea.Batch(
		startAsk(ctx, m.ask, req, m.msgCh, m.doneCh),
		listen(m.msgCh, m.doneCh),
		m.Spinner.Tick,
	)
}

// history returns the finished turns as messages, followed by question.
func (m Model) history(question string) []agentstream.Message {
	var msgs []agentstream.Message
	for _, t := range m.turns {
		if !t.done || t.answer == "" {
			continue
		}
		msgs = append(msgs,
			agentstream.UserMessage(t.question),
			agentstream.Message{Role: agentstream.RoleAssistant, Content: t.answer},
		)
	}
	return append(msgs, agentstream.UserMessage(question))
}

func (m Model) next() tea.Cmd {
	if m.msgCh == nil {
		return nil
	}
	return listen(m.msgCh, m.doneCh)
}

// current returns the turn stream messages apply to.
func (m *Model) current() *turn {
	if len(m.turns) == 0 {
		m.turns = append(m.turns, &turn{})
	}
	return m.turns[len(m.turns)-1]
}

func (m Model) refresh() Model {
	if !m.ready {
		return m
	}
	m.Viewport.SetContent(m.renderContent())
	m.Viewport.GotoBottom()
	return m
}

func (m Model) renderContent() string {
	width := max(m.Viewport.Width, 1)
	wrap := lipgloss.NewStyle().Width(width)
	var parts []string
	for _, t := range m.turns {
		var b strings.Builder
		if t.question != "" {
			b.WriteString(wrap.Render(m.styles.Question.Render("> " + t.question)))
			b.WriteString("\n")
		}
		switch {
		case t.answer == "":
		case t.done:
			b.WriteString(m.markdown.Render(t.answer, width))
			b.WriteString("\n")
		default:
			b.WriteString(wrap.Render(m.styles.Content.Render(t.answer)))
			b.WriteString("\n")
		}
		for _, e := range t.errors {
			b.WriteString(wrap.Render(m.styles.Error.Render("✗ " + e)))
			b.WriteString("\n")
		}
		if t.canceled {
			b.WriteString(m.styles.Muted.Render("(canceled)"))
			b.WriteString("\n")
		}
		parts = append(parts, strings.TrimRight(b.String(), "\n"))
	}
	return strings.Join(parts, "\n\n")
}

func (m Model) statusLine() string {
	width := max(m.width, 10)
	switch {
	case m.err != nil:
		return m.styles.Error.Render(runewidth.Truncate("Error: "+ErrorMessage(m.err), width, "…"))
	case m.running:
		n := uniseg.GraphemeClusterCount(m.Answer())
		text := fmt.Sprintf("Streaming... %d chars, Ctrl+C to cancel", n)
		prefix := m.Spinner.View() + " "
		return prefix + m.styles.Muted.Render(runewidth.Truncate(text, width-lipgloss.Width(prefix), "…"))
	default:
		hint := "Enter to send, Ctrl+C to quit"
		if n := m.answered(); n > 0 {
			hint = fmt.Sprintf("%d answered, %s", n, hint)
		}
		return m.styles.Muted.Render(runewidth.Truncate(hint, width, "…"))
	}
}

func (m Model) answered() int {
	n := 0
	for _, t := range m.turns {
		if t.done {
			n++
		}
	}
	return n
}
