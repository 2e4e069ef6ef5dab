// Package dashboard renders a live view of one controller session.
package dashboard

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/grovetools/cncctl/internal/conn"
	"github.com/grovetools/cncctl/internal/session"
	"github.com/grovetools/cncctl/pkg/machine"
	"github.com/grovetools/cncctl/pkg/tree"
	"github.com/grovetools/cncctl/state"
	"github.com/grovetools/cncctl/tui/theme"
)

const maxFeed = 8

// Backend is the part of a session the dashboard reads and drives.
type Backend interface {
	Status() machine.Status
	State() tree.Map
	ConnectionStatus() conn.Status
	Host() string

	// Act runs a named machine action (start, stop, estop, continue).
	Act(ctx context.Context, action string) error
	BlockErrors() bool
}

// eventMsg carries a session event into the update loop.
type eventMsg session.Event

// closedMsg reports that the event subscription ended.
type closedMsg struct{}

// actionMsg reports the result of a key-triggered action.
type actionMsg struct {
	action string
	err    error
}

// Model is the bubbletea model of the dashboard.
type Model struct {
	backend Backend
	events  <-chan session.Event
	ctx     context.Context

	keys     KeyMap
	help     help.Model
	progress progress.Model
	theme    *theme.Theme

	width int

	conn   conn.Status
	status machine.Status
	snap   machine.Snapshot
	feed   []string
}

// New creates a dashboard reading events from the given subscription.
func New(ctx context.Context, backend Backend, events <-chan session.Event) Model {
	return Model{
		backend:  backend,
		events:   events,
		ctx:      ctx,
		keys:     DefaultKeyMap(),
		help:     help.New(),
		progress: progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		theme:    theme.DefaultTheme,
		width:    80,
		conn:     backend.ConnectionStatus(),
		status:   backend.Status(),
		snap:     machine.FromState(backend.State()),
	}
}

func (m Model) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		e, ok := <-m.events
		if !ok {
			return closedMsg{}
		}
		return eventMsg(e)
	}
}

func (m Model) act(action string) tea.Cmd {
	return func() tea.Msg {
		return actionMsg{action: action, err: m.backend.Act(m.ctx, action)}
	}
}

// Init starts listening for session events.
func (m Model) Init() tea.Cmd {
	return m.waitForEvent()
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		w := msg.Width - 20
		if w > 60 {
			w = 60
		}
		if w < 10 {
			w = 10
		}
		m.progress.Width = w

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.StartPause):
			return m, m.act("start")
		case key.Matches(msg, m.keys.Stop):
			return m, m.act("stop")
		case key.Matches(msg, m.keys.Estop):
			return m, m.act("estop")
		case key.Matches(msg, m.keys.Continue):
			return m, m.act("continue")
		case key.Matches(msg, m.keys.BlockErrors):
			if m.backend.BlockErrors() {
				m.push(m.theme.Muted.Render("Blocked the last error"))
			}
		}

	case actionMsg:
		if msg.err != nil {
			m.push(m.theme.Error.Render(fmt.Sprintf("%s failed: %v", msg.action, msg.err)))
		}

	case eventMsg:
		m.apply(session.Event(msg))
		return m, m.waitForEvent()

	case closedMsg:
		return m, tea.Quit
	}
	return m, nil
}

func (m *Model) apply(e session.Event) {
	switch e.Type {
	case session.EventConnection:
		m.conn = e.Status
		m.push(m.theme.Info.Render("Connection " + string(e.Status)))
	case session.EventState, session.EventToolpath, session.EventReload:
		m.snap = machine.FromState(m.backend.State())
		m.status = m.backend.Status()
	case session.EventLog:
		m.push(formatLog(m.theme.Muted, e.Log))
	case session.EventAlert:
		m.push(formatLog(m.theme.Error, e.Log))
	case session.EventMessage:
		m.push(m.theme.Warning.Render(fmt.Sprintf("Message: %v", e.Message)))
	case session.EventUpgrade:
		m.push(m.theme.Success.Render("Firmware " + e.Version + " is available"))
	case session.EventError:
		m.push(m.theme.Error.Render(fmt.Sprintf("%s failed: %v", e.Op, e.Err)))
	}
}

func (m *Model) push(line string) {
	m.feed = append(m.feed, line)
	if len(m.feed) > maxFeed {
		m.feed = m.feed[len(m.feed)-maxFeed:]
	}
}

func formatLog(style lipgloss.Style, e *state.LogEntry) string {
	if e == nil {
		return ""
	}
	text := strings.ToUpper(e.Level) + " " + e.Msg
	if e.Source != "" {
		text = strings.ToUpper(e.Level) + " " + e.Source + ": " + e.Msg
	}
	if e.Repeat > 1 {
		text += fmt.Sprintf(" (x%d)", e.Repeat)
	}
	return style.Render(text)
}

// View renders the dashboard.
func (m Model) View() string {
	t := m.theme
	var b strings.Builder

	b.WriteString(t.Bold.Render("cncctl " + m.backend.Host()))
	b.WriteString("  ")
	b.WriteString(m.renderConnection())
	b.WriteString("\n\n")

	mode := string(m.status.Mode)
	if mode == "" {
		mode = "UNKNOWN"
	}
	fmt.Fprintf(&b, "%s %s", t.Muted.Render("Mode:"), t.ModeStyle(mode).Render(mode))
	if m.status.Reason != "" {
		reason := t.Muted
		if m.status.HighlightReason {
			reason = t.Warning
		}
		b.WriteString("  " + reason.Render(m.status.Reason))
	}
	b.WriteString("\n")

	units := "mm"
	if m.snap.Imperial {
		units = "in"
	}
	file := m.snap.Selected
	if file == "" {
		file = "(none)"
	}
	fmt.Fprintf(&b, "%s %s  %s %d\n", t.Muted.Render("File:"), file, t.Muted.Render("Line:"), int(m.snap.Line))
	fmt.Fprintf(&b, "%s %s  %s\n", t.Muted.Render("Job:"), m.progress.ViewAs(m.status.Progress), formatRemaining(m.status.Remaining))

	b.WriteString(m.renderPositions(units))
	b.WriteString("\n")

	for _, line := range m.feed {
		b.WriteString(line + "\n")
	}
	b.WriteString("\n" + m.help.View(m.keys))
	return b.String()
}

func (m Model) renderConnection() string {
	switch m.conn {
	case conn.StatusConnected:
		return m.theme.Success.Render(string(m.conn))
	case conn.StatusConnecting:
		return m.theme.Warning.Render(string(m.conn))
	default:
		return m.theme.Error.Render(string(m.conn))
	}
}

func (m Model) renderPositions(units string) string {
	var parts []string
	for _, axis := range m.snap.EnabledAxes() {
		if p, ok := m.snap.Position(axis); ok {
			parts = append(parts, fmt.Sprintf("%s %.3f", strings.ToUpper(axis), p))
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return m.theme.Muted.Render("Pos ("+units+"):") + " " + strings.Join(parts, "  ") + "\n"
}

func formatRemaining(d time.Duration) string {
	if d <= 0 {
		return ""
	}
	return d.Round(time.Second).String() + " left"
}
