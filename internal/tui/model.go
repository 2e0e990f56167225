// Package tui is the single screen of the terminal assistant: a status
// line with a listening pulse, the reply text and the last error.
package tui

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"zegion/internal/capture"
	"zegion/internal/turn"
)

const defaultWidth = 80

// Controls is the part of the turn controller the screen drives.
type Controls interface {
	Activate(ctx context.Context) error
	Stop(ctx context.Context) error
}

type (
	textMsg    string
	errorMsg   string
	noticeMsg  string
	pulseMsg   bool
	stateMsg   turn.State
	commandMsg struct{ err error }
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	stateStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	textStyle   = lipgloss.NewStyle().PaddingLeft(2)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).PaddingLeft(2)
	noticeStyle = lipgloss.NewStyle().Faint(true).PaddingLeft(2)
	helpStyle   = lipgloss.NewStyle().Faint(true)
)

type Model struct {
	controls Controls
	timeout  time.Duration

	spinner spinner.Model
	state   turn.State
	pulsing bool
	text    string
	err     string
	notice  string
	width   int
}

func New(controls Controls) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Pulse
	return Model{
		controls: controls,
		timeout:  5 * time.Second,
		spinner:  sp,
		width:    defaultWidth,
	}
}

// WithNotice returns m showing notice, below any notice already set, until
// the first key press.
func (m Model) WithNotice(notice string) Model {
	if m.notice != "" {
		notice = m.notice + "\n" + notice
	}
	m.notice = notice
	return m
}

func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case " ", "enter":
			m.err = ""
			m.notice = ""
			return m, m.command(m.controls.Activate)
		case "s", "esc":
			return m, m.command(m.controls.Stop)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width

	case textMsg:
		m.text = string(msg)

	case errorMsg:
		m.err = string(msg)

	case noticeMsg:
		m.notice = string(msg)

	case pulseMsg:
		m.pulsing = bool(msg)

	case stateMsg:
		m.state = turn.State(msg)
		if m.state == turn.Listening {
			m.text = ""
		}

	case commandMsg:
		switch {
		case msg.err == nil:
		case errors.Is(msg.err, turn.ErrBusy):
			m.notice = "Still busy, press s to stop"
		case errors.Is(msg.err, capture.ErrPermissionRequired):
			// the controller has already notified
		default:
			m.err = msg.err.Error()
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// command runs fn off the update loop since the controller may block.
func (m Model) command(fn func(context.Context) error) tea.Cmd {
	timeout := m.timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return commandMsg{err: fn(ctx)}
	}
}

func (m Model) View() string {
	width := max(m.width-4, 20)

	var b strings.Builder
	b.WriteString(titleStyle.Render("zegion"))
	b.WriteString("  ")

	status := m.state.String()
	if m.pulsing {
		status = m.spinner.View() + " " + status
	}
	b.WriteString(stateStyle.Render(status))
	b.WriteString("\n\n")

	if m.text != "" {
		b.WriteString(textStyle.Render(wordwrap.String(m.text, width)))
		b.WriteString("\n\n")
	}
	if m.err != "" {
		b.WriteString(errorStyle.Render(wordwrap.String(m.err, width)))
		b.WriteString("\n")
	}
	if m.notice != "" {
		b.WriteString(noticeStyle.Render(m.notice))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render("space talk • s stop • q quit"))
	b.WriteString("\n")
	return b.String()
}
