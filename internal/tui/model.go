package tui

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
)

const (
	headerHeight = 2
	footerHeight = 4
)

func NewModel(client *ChatClient) *Model {
	ti := textinput.New()
	ti.Placeholder = "say something..."
	ti.Focus()
	ti.CharLimit = 0
	ti.Width = 80
	ti.Prompt = "> "
	ti.PromptStyle = promptStyle
	ti.TextStyle = lipgloss.NewStyle().Foreground(colorWhite)

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = infoStyle

	return &Model{
		client:  client,
		input:   ti,
		spinner: sp,
	}
}

func (m *Model) Init() tea.Cmd {
	return textinput.Blink
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit

		case "enter":
			if m.streaming {
				return m, nil
			}

			text := m.input.Value()
			if strings.TrimSpace(text) == "" {
				return m, nil
			}

			m.input.SetValue("")
			m.transcript = append(m.transcript,
				Entry{Role: RoleUser, Content: text},
				Entry{Role: RoleAssistant},
			)
			m.streaming = true
			m.events = m.startReply(text)
			m.refresh()

			return m, tea.Batch(waitForEvent(m.events), m.spinner.Tick)
		}

	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		m.refresh()

	case ChunkMsg:
		m.appendToReply(msg.Text)
		m.refresh()
		return m, waitForEvent(m.events)

	case ReplyDoneMsg:
		m.finishReply(nil)
		m.refresh()
		return m, nil

	case ReplyErrorMsg:
		m.finishReply(msg.Err)
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		if !m.streaming {
			return m, nil
		}

		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd

	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)

	if m.ready {
		m.viewport, cmd = m.viewport.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m *Model) View() string {
	if !m.ready {
		return "\n  loading..."
	}

	var b strings.Builder

	header := lipgloss.JoinHorizontal(lipgloss.Left,
		titleStyle.Render("AI CHAT"),
		"  ",
		helpStyle.Render("[Enter: Send] [PgUp/PgDn: Scroll] [Esc: Exit]"),
	)

	b.WriteString(header)
	b.WriteString("\n\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	b.WriteString(borderStyle.Width(max(0, m.width-4)).Render(m.input.View()))
	b.WriteString("\n")

	if m.streaming {
		b.WriteString(m.spinner.View())
		b.WriteString(infoStyle.Render(" receiving reply..."))
	}

	return b.String()
}

// the transcript as it would be rendered right now
func (m *Model) Transcript() []Entry {
	return m.transcript
}

// runs the request in the background and feeds its progress back as
// messages through the returned channel
func (m *Model) startReply(text string) <-chan tea.Msg {
	events := make(chan tea.Msg, 16)

	go func() {
		defer close(events)

		err := m.client.Send(context.Background(), text, func(chunk string) {
			events <- ChunkMsg{Text: chunk}
		})
		if err != nil {
			events <- ReplyErrorMsg{Err: err}
			return
		}

		events <- ReplyDoneMsg{}
	}()

	return events
}

func waitForEvent(events <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-events
		if !ok {
			return nil
		}

		return msg
	}
}

func (m *Model) appendToReply(text string) {
	if n := len(m.transcript); n > 0 && m.transcript[n-1].Role == RoleAssistant {
		m.transcript[n-1].Content += text
	}
}

func (m *Model) finishReply(err error) {
	m.streaming = false
	m.events = nil
	m.input.Focus()

	if err == nil {
		return
	}

	if n := len(m.transcript); n > 0 && m.transcript[n-1].Role == RoleAssistant {
		m.transcript[n-1].Failed = true

		if m.transcript[n-1].Content == "" {
			m.transcript[n-1].Content = err.Error()
			return
		}

		m.transcript[n-1].Content += "\n\n" + err.Error()
	}
}

func (m *Model) resize(width, height int) {
	m.width = width
	m.height = height
	m.input.Width = max(10, width-10)

	vpHeight := max(1, height-headerHeight-footerHeight)

	if !m.ready {
		m.viewport = viewport.New(width, vpHeight)
		m.ready = true
	} else {
		m.viewport.Width = width
		m.viewport.Height = vpHeight
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(max(20, width-4)),
	)
	if err == nil {
		m.renderer = renderer
	}
}

// redraws the transcript into the viewport and keeps the latest text visible
func (m *Model) refresh() {
	if !m.ready {
		return
	}

	m.viewport.SetContent(m.render())
	m.viewport.GotoBottom()
}

func (m *Model) render() string {
	var b strings.Builder

	for i, entry := range m.transcript {
		switch {
		case entry.Role == RoleUser:
			b.WriteString(userStyle.Render("you: "))
			b.WriteString(entry.Content)
			b.WriteString("\n\n")

		case entry.Failed:
			b.WriteString(errorStyle.Render(entry.Content))
			b.WriteString("\n\n")

		// the reply still streaming is shown raw; markdown is rendered once it is complete
		case m.streaming && i == len(m.transcript)-1:
			b.WriteString(entry.Content)
			b.WriteString("\n\n")

		default:
			b.WriteString(m.renderMarkdown(entry.Content))
		}
	}

	return b.String()
}

func (m *Model) renderMarkdown(content string) string {
	if m.renderer == nil {
		return content + "\n\n"
	}

	out, err := m.renderer.Render(content)
	if err != nil {
		return content + "\n\n"
	}

	return out
}
