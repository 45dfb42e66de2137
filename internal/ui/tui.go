// Package ui renders the terminal surface: a connection indicator, a
// volume-reactive meter, and the rolling conversation transcript. It is a
// pure consumer of the session manager and the viz projector; nothing in
// the pipeline depends on it.
package ui

import (
	"context"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/voxline/voxline/internal/session"
	"github.com/voxline/voxline/internal/transcript"
	"github.com/voxline/voxline/internal/viz"
)

const (
	tickInterval = 80 * time.Millisecond
	meterWidth   = 30
	sideWidth    = 38
)

var (
	titleStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("63")).Bold(true)
	liveStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	offlineStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	connectingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	meterOnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	meterOffStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))
	helpStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
	helpKeyStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("239")).Bold(true)
	userStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("45"))
	modelStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	systemStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	timeStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type tickMsg time.Time

type connectResultMsg struct{ err error }

type disconnectedMsg struct{}

// Model is the bubbletea model for the client surface.
type Model struct {
	mgr  *session.Manager
	proj viz.Projector

	params        viz.Params
	connecting    bool
	width, height int
}

// New returns a model bound to mgr.
func New(mgr *session.Manager) Model {
	return Model{mgr: mgr}
}

// Run drives the TUI until the user quits.
func Run(mgr *session.Manager) error {
	_, err := tea.NewProgram(New(mgr), tea.WithAltScreen()).Run()
	return err
}

func tick() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) Init() tea.Cmd {
	return tick()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		m.params = m.proj.Project(m.mgr.Volume(), m.mgr.Connected())
		return m, tick()

	case connectResultMsg:
		m.connecting = false

	case disconnectedMsg:

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "c":
			if !m.mgr.Connected() && !m.connecting {
				m.connecting = true
				mgr := m.mgr
				return m, func() tea.Msg {
					return connectResultMsg{err: mgr.Connect(context.Background())}
				}
			}
		case "d":
			mgr := m.mgr
			return m, func() tea.Msg {
				mgr.Disconnect()
				return disconnectedMsg{}
			}
		}
	}
	return m, nil
}

func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	side := m.renderSide()
	feed := m.renderTranscript(m.width - sideWidth - 1)

	sidePanel := lipgloss.NewStyle().
		Width(sideWidth).
		Height(m.height).
		PaddingLeft(1).
		Render(side)
	feedPanel := lipgloss.NewStyle().
		Width(m.width - sideWidth - 1).
		Height(m.height).
		PaddingLeft(1).
		Render(feed)

	return lipgloss.JoinHorizontal(lipgloss.Top, sidePanel, feedPanel)
}

func (m Model) renderSide() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("voxline") + "\n\n")

	switch {
	case m.connecting:
		b.WriteString(connectingStyle.Render("◌ CONNECTING") + "\n")
	case m.params.Connected:
		b.WriteString(liveStyle.Render("● LIVE") + "\n")
	default:
		b.WriteString(offlineStyle.Render("○ OFFLINE") + "\n")
	}
	b.WriteString("\n")

	filled := viz.Bars(m.params.Level, meterWidth)
	meter := meterOnStyle.Render(strings.Repeat("▮", filled)) +
		meterOffStyle.Render(strings.Repeat("▯", meterWidth-filled))
	b.WriteString(meter + "\n\n")

	b.WriteString(helpKeyStyle.Render("c") + helpStyle.Render(" connect  "))
	b.WriteString(helpKeyStyle.Render("d") + helpStyle.Render(" disconnect  "))
	b.WriteString(helpKeyStyle.Render("q") + helpStyle.Render(" quit") + "\n")
	return b.String()
}

func (m Model) renderTranscript(width int) string {
	wrapWidth := width - 2
	if wrapWidth < 10 {
		wrapWidth = 10
	}

	entries := m.mgr.Transcript().Entries()
	if len(entries) == 0 {
		return offlineStyle.Render("No conversation yet. Press c to connect.")
	}

	// Assume two lines per entry on average; show the newest that fit.
	maxEntries := m.height / 2
	if maxEntries < 1 {
		maxEntries = 1
	}
	if len(entries) > maxEntries {
		entries = entries[len(entries)-maxEntries:]
	}

	var b strings.Builder
	for _, e := range entries {
		b.WriteString(timeStyle.Render(e.Timestamp.Format("15:04:05")) + " ")
		style, label := styleFor(e.Role)
		b.WriteString(style.Render(label) + "\n")
		for _, line := range wrapText(e.Text, wrapWidth) {
			b.WriteString("  " + style.Render(line) + "\n")
		}
	}
	return b.String()
}

func styleFor(role transcript.Role) (lipgloss.Style, string) {
	switch role {
	case transcript.RoleUser:
		return userStyle, "you"
	case transcript.RoleModel:
		return modelStyle, "assistant"
	default:
		return systemStyle, "system"
	}
}

func wrapText(text string, width int) []string {
	if len(text) == 0 {
		return []string{""}
	}
	if width <= 0 {
		width = 1
	}

	var lines []string
	for len(text) > width {
		splitAt := width
		for i := width; i > 0; i-- {
			if text[i] == ' ' {
				splitAt = i
				break
			}
		}
		lines = append(lines, text[:splitAt])
		text = strings.TrimLeft(text[splitAt:], " ")
	}
	if len(text) > 0 {
		lines = append(lines, text)
	}
	return lines
}
