// Package ui renders a chat session in the terminal: a bubbletea model with a full page
// view and a compact widget view, and a plain line printer for non-interactive output.
// Both views draw from the same session snapshots.
package ui

import (
	"fmt"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/go-go-golems/streamchat/pkg/session"
	"github.com/go-go-golems/streamchat/pkg/status"
	"github.com/pkg/errors"
)

// StateMsg carries a session snapshot into the program.
type StateMsg session.State

// StatusMsg carries the latest status poll.
type StatusMsg struct {
	Report status.Report
	Err    error
}

type ViewMode int

const (
	ViewPage ViewMode = iota
	ViewWidget
)

const widgetWidth = 48

// Chat is what the model drives. *session.Controller satisfies it.
type Chat interface {
	Submit(text string) error
	Reset()
}

type Option func(*Model)

func WithBadges(badges []status.Badge) Option {
	return func(m *Model) {
		m.badges = badges
	}
}

func WithViewMode(mode ViewMode) Option {
	return func(m *Model) {
		m.mode = mode
	}
}

// WithClipboard replaces the clipboard writer used by ctrl+y.
func WithClipboard(write func(string) error) Option {
	return func(m *Model) {
		m.copy = write
	}
}

// WithPlainText disables markdown rendering of assistant replies.
func WithPlainText() Option {
	return func(m *Model) {
		m.plain = true
	}
}

type Model struct {
	chat   Chat
	badges []status.Badge
	copy   func(string) error
	plain  bool

	state     session.State
	report    status.Report
	reportErr error
	mode      ViewMode
	notice    string

	input    textinput.Model
	viewport viewport.Model
	markdown *markdown
	width    int
	height   int
}

func NewModel(chat Chat, opts ...Option) Model {
	ti := textinput.New()
	ti.Placeholder = "Type a message"
	ti.Prompt = "> "
	ti.CharLimit = 4000
	ti.Focus()

	m := Model{
		chat:     chat,
		badges:   status.DefaultBadges,
		copy:     clipboard.WriteAll,
		input:    ti,
		viewport: viewport.New(80, 20),
		width:    80,
		height:   24,
	}
	for _, opt := range opts {
		opt(&m)
	}
	m.resize(m.width, m.height)
	return m
}

func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// State returns the snapshot the model last rendered.
func (m Model) State() session.State {
	return m.state
}

func (m Model) Mode() ViewMode {
	return m.mode
}

func (m Model) Notice() string {
	return m.notice
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		m.refresh()
		return m, nil

	case StateMsg:
		m.state = session.State(msg)
		m.refresh()
		return m, nil

	case StatusMsg:
		m.report, m.reportErr = msg.Report, msg.Err
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		case "tab":
			if m.mode == ViewPage {
				m.mode = ViewWidget
			} else {
				m.mode = ViewPage
			}
			m.resize(m.width, m.height)
			m.refresh()
			return m, nil
		case "ctrl+y":
			m.copyLast()
			return m, nil
		case "ctrl+r":
			m.chat.Reset()
			m.notice = ""
			return m, nil
		case "enter":
			m.submit()
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) submit() {
	err := m.chat.Submit(m.input.Value())
	switch {
	case err == nil:
		m.input.Reset()
		m.notice = ""
	case errors.Is(err, session.ErrEmptyInput):
		m.notice = ""
	case errors.Is(err, session.ErrNotReady):
		m.notice = "not connected"
	default:
		m.notice = err.Error()
	}
}

func (m *Model) copyLast() {
	last, ok := m.state.LastAssistant()
	if !ok || last.Content == "" {
		m.notice = "nothing to copy"
		return
	}
	if err := m.copy(last.Content); err != nil {
		m.notice = "copy failed: " + err.Error()
		return
	}
	m.notice = "copied"
}

func (m *Model) resize(width, height int) {
	if width > 0 {
		m.width = width
	}
	if height > 0 {
		m.height = height
	}
	contentWidth := m.width
	if m.mode == ViewWidget {
		contentWidth = min(widgetWidth, m.width) - 4
	}
	contentWidth = max(contentWidth, 10)
	// header, status line, input, help
	m.viewport.Width = contentWidth
	m.viewport.Height = max(m.height-6, 3)
	m.input.Width = contentWidth - 3
	if !m.plain && (m.markdown == nil || m.markdown.width != contentWidth) {
		m.markdown = newMarkdown(contentWidth)
	}
}

func (m *Model) refresh() {
	var md *markdown
	if !m.plain {
		md = m.markdown
	}
	blocks := make([]string, 0, len(m.state.Messages))
	for _, msg := range m.state.Messages {
		blocks = append(blocks, renderMessage(msg, md))
	}
	m.viewport.SetContent(strings.Join(blocks, "\n\n"))
	m.viewport.GotoBottom()
}

func (m Model) statusLine() string {
	var line string
	switch {
	case m.state.IsComposing:
		line = composeStyle.Render("assistant is typing…")
	case !m.state.CanSubmit():
		line = composeStyle.Render(fmt.Sprintf("session %s", m.state.Phase))
	}
	if m.notice != "" {
		if line != "" {
			line += "  "
		}
		line += noticeStyle.Render(m.notice)
	}
	return line
}

func (m Model) View() string {
	if m.mode == ViewWidget {
		return m.widgetView()
	}
	return m.pageView()
}

func (m Model) pageView() string {
	header := lipgloss.JoinHorizontal(lipgloss.Top,
		titleStyle.Render("Chat"),
		"  ",
		renderBadges(m.badges, m.report, m.reportErr),
	)
	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		m.viewport.View(),
		m.statusLine(),
		m.input.View(),
		helpStyle.Render("enter send • tab widget • ctrl+y copy • ctrl+r reset • esc quit"),
	)
}

func (m Model) widgetView() string {
	body := lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render("Chat"),
		m.viewport.View(),
		m.statusLine(),
		m.input.View(),
	)
	return widgetStyle.Render(body) + "\n" + helpStyle.Render("tab page • esc quit")
}

// Attach forwards every snapshot of ctrl to the program, in order. Snapshots are queued
// and sent from a separate goroutine, so Submit and Reset may be called from Update.
func Attach(p *tea.Program, ctrl *session.Controller) func() {
	f := newForwarder(func(s session.State) {
		p.Send(StateMsg(s))
	})
	go f.run()
	unsubscribe := ctrl.Subscribe(f.push)
	return func() {
		unsubscribe()
		f.stop()
	}
}
