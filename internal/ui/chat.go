// Package ui is the terminal chat interface over the run protocol consumer.
package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"folio/internal/consumer"
	"folio/internal/logging"
)

// Run starts the chat interface against the given server.
func Run(serverURL string, watchdogCeiling time.Duration) error {
	transport := consumer.NewTransport(serverURL)

	var program *tea.Program
	coordinator := consumer.NewCoordinator(transport, watchdogCeiling, func() {
		if program != nil {
			program.Send(refreshMsg{})
		}
	})

	program = tea.NewProgram(NewModel(coordinator), tea.WithAltScreen())
	_, err := program.Run()
	return err
}

// refreshMsg tells the model to re-read coordinator state.
type refreshMsg struct{}

// Model is the bubbletea chat model. All conversation state lives in the
// coordinator; the model only renders snapshots of it.
type Model struct {
	coordinator *consumer.Coordinator
	styles      *Styles

	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model
	renderer *glamour.TermRenderer

	width  int
	height int
	ready  bool
	notice string
}

// NewModel creates the chat model.
func NewModel(coordinator *consumer.Coordinator) Model {
	input := textinput.New()
	input.Placeholder = "Ask about your portfolio... (/mode analyst|concise|educational, esc cancels)"
	input.Focus()
	input.CharLimit = 4000

	styles := DefaultStyles()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styles.Spinner

	return Model{
		coordinator: coordinator,
		styles:      styles,
		input:       input,
		spinner:     sp,
	}
}

// Init starts the spinner.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick)
}

// Update handles input and coordinator refreshes.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		inputHeight := 3
		statusHeight := 1
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-inputHeight-statusHeight)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - inputHeight - statusHeight
		}
		if r, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(msg.Width-4),
		); err == nil {
			m.renderer = r
		}
		m.refreshViewport()

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			m.coordinator.Abort()
			return m, tea.Quit
		case tea.KeyEsc:
			m.coordinator.Abort()
			return m, nil
		case tea.KeyEnter:
			text := strings.TrimSpace(m.input.Value())
			if text == "" {
				return m, nil
			}
			m.input.Reset()
			if cmd, handled := m.handleCommand(text); handled {
				return m, cmd
			}
			m.coordinator.Send(text)
			m.refreshViewport()
			return m, nil
		}

	case refreshMsg:
		m.refreshViewport()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

// handleCommand intercepts slash commands.
func (m *Model) handleCommand(text string) (tea.Cmd, bool) {
	if !strings.HasPrefix(text, "/") {
		return nil, false
	}
	fields := strings.Fields(text)
	switch fields[0] {
	case "/mode":
		if len(fields) != 2 {
			m.notice = "usage: /mode analyst|concise|educational"
			return nil, true
		}
		mode := fields[1]
		coordinator := m.coordinator
		return func() tea.Msg {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := coordinator.SetMode(ctx, mode); err != nil {
				logging.Warn("mode switch failed", "mode", mode, "error", err)
			}
			return refreshMsg{}
		}, true
	case "/quit":
		return tea.Quit, true
	}
	m.notice = "unknown command: " + fields[0]
	return nil, true
}

func (m *Model) refreshViewport() {
	if !m.ready {
		return
	}
	atBottom := m.viewport.AtBottom()
	m.viewport.SetContent(m.renderTranscript())
	if atBottom {
		m.viewport.GotoBottom()
	}
}

func (m *Model) renderTranscript() string {
	var b strings.Builder
	busy := m.coordinator.Busy()

	for _, msg := range m.coordinator.Messages() {
		switch msg.Role {
		case consumer.RoleUser:
			b.WriteString(m.styles.UserLabel.Render("You"))
			b.WriteString("\n")
			b.WriteString(msg.Content)
			b.WriteString("\n\n")
		case consumer.RoleAssistant:
			b.WriteString(m.styles.AssistantLabel.Render("Analyst"))
			b.WriteString("\n")
			b.WriteString(m.renderAssistant(msg, busy))
			b.WriteString("\n")
		case consumer.RoleSystem:
			style := m.styles.SystemNote
			if msg.Err != "" || !msg.Transient {
				style = m.styles.ErrorNote
			}
			b.WriteString(style.Render("• " + msg.Content))
			b.WriteString("\n\n")
		}
	}
	return b.String()
}

// renderAssistant renders finalized answers through glamour; text still
// streaming stays plain so partial markdown never flickers half-rendered.
func (m *Model) renderAssistant(msg consumer.Message, busy bool) string {
	streaming := msg.RunID != "" && busy
	if msg.Content == "" {
		if streaming {
			return m.spinner.View() + " thinking...\n"
		}
		return "\n"
	}
	if streaming || m.renderer == nil {
		return msg.Content + "\n"
	}
	rendered, err := m.renderer.Render(msg.Content)
	if err != nil {
		return msg.Content + "\n"
	}
	return rendered
}

// View renders the full frame.
func (m Model) View() string {
	if !m.ready {
		return "loading..."
	}

	status := "ready"
	if m.coordinator.Busy() {
		status = m.spinner.View() + " streaming"
		if n := m.coordinator.QueuedCount(); n > 0 {
			status += fmt.Sprintf(" (%d queued)", n)
		}
	}
	if m.notice != "" {
		status += "  " + m.notice
	}

	return m.viewport.View() + "\n" +
		m.styles.InputBox.Width(m.width-2).Render(m.input.View()) + "\n" +
		m.styles.StatusBar.Render(" "+status)
}
