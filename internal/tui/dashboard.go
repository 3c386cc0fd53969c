// Package tui renders an interactive dashboard over a session.
package tui

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/gmsas95/medtwin/internal/llm"
	"github.com/gmsas95/medtwin/internal/model"
	"github.com/gmsas95/medtwin/internal/report"
	"github.com/gmsas95/medtwin/internal/session"
)

const adviceTimeout = 65 * time.Second

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	panelStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	cursorStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	appliedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	mutedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	improvingText = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	decliningText = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

type snapshotMsg model.Snapshot

type adviceMsg llm.Advice

// Model is the bubbletea model of the dashboard
type Model struct {
	sess        *session.Session
	advisor     *llm.Advisor
	updates     <-chan model.Snapshot
	unsubscribe func()

	snap    model.Snapshot
	entries []session.Entry
	cursor  int

	status   string
	isError  bool
	advice   string
	thinking bool

	keys  keyMap
	help  help.Model
	width int
}

// New creates a dashboard over sess. A nil advisor disables advice requests.
func New(sess *session.Session, advisor *llm.Advisor) Model {
	updates, unsubscribe := sess.Subscribe()
	return Model{
		sess:        sess,
		advisor:     advisor,
		updates:     updates,
		unsubscribe: unsubscribe,
		snap:        sess.Snapshot(),
		entries:     sess.Entries(),
		keys:        defaultKeys(),
		help:        help.New(),
	}
}

// Run starts the dashboard on the terminal and blocks until it exits
func Run(sess *session.Session, advisor *llm.Advisor) error {
	m := New(sess, advisor)
	defer m.unsubscribe()

	_, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}

func (m Model) Init() tea.Cmd {
	return waitForSnapshot(m.updates)
}

func waitForSnapshot(updates <-chan model.Snapshot) tea.Cmd {
	return func() tea.Msg {
		snap, ok := <-updates
		if !ok {
			return nil
		}
		return snapshotMsg(snap)
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		return m, nil

	case snapshotMsg:
		m.snap = model.Snapshot(msg)
		m.entries = m.sess.Entries()
		return m, waitForSnapshot(m.updates)

	case adviceMsg:
		m.thinking = false
		if msg.Error != "" {
			m.setStatus(msg.Error, true)
			m.advice = ""
		} else {
			m.setStatus("Advice received", false)
			m.advice = msg.Text
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.unsubscribe()
		return m, tea.Quit

	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}

	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.entries)-1 {
			m.cursor++
		}

	case key.Matches(msg, m.keys.Apply):
		if e, ok := m.selected(); ok {
			if _, err := m.sess.ApplyByID(e.ID); err != nil {
				m.setStatus(fmt.Sprintf("%s: %v", e.Name, err), true)
			} else {
				m.setStatus("Applied "+e.Name, false)
			}
			m.refresh()
		}

	case key.Matches(msg, m.keys.Revert):
		if e, ok := m.selected(); ok {
			if _, reverted := m.sess.Revert(e.ID); !reverted {
				m.setStatus(e.Name+" is not applied", true)
			} else {
				m.setStatus("Reverted "+e.Name, false)
			}
			m.refresh()
		}

	case key.Matches(msg, m.keys.Reset):
		m.sess.Reset()
		m.advice = ""
		m.setStatus("Session reset", false)
		m.refresh()

	case key.Matches(msg, m.keys.Advise):
		if m.advisor == nil {
			m.setStatus("Advisor not configured", true)
			return m, nil
		}
		if m.thinking {
			return m, nil
		}
		m.thinking = true
		m.setStatus("Asking advisor...", false)
		return m, m.ask(m.sess.Snapshot())

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	}

	return m, nil
}

func (m Model) ask(snap model.Snapshot) tea.Cmd {
	advisor := m.advisor
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), adviceTimeout)
		defer cancel()
		return adviceMsg(advisor.Ask(ctx, snap, ""))
	}
}

func (m *Model) selected() (session.Entry, bool) {
	if m.cursor < 0 || m.cursor >= len(m.entries) {
		return session.Entry{}, false
	}
	return m.entries[m.cursor], true
}

func (m *Model) refresh() {
	m.snap = m.sess.Snapshot()
	m.entries = m.sess.Entries()
	if m.cursor >= len(m.entries) {
		m.cursor = max(len(m.entries)-1, 0)
	}
}

func (m *Model) setStatus(s string, isError bool) {
	m.status = s
	m.isError = isError
}

func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("medtwin · health trajectory"))
	b.WriteString("\n\n")

	panels := lipgloss.JoinHorizontal(lipgloss.Top,
		panelStyle.Render(m.treatmentsView()),
		panelStyle.Render(m.metricsView()),
	)
	b.WriteString(panels)
	b.WriteString("\n")

	b.WriteString(fmt.Sprintf("Overall Health Score: %d (%s)\n", m.snap.OverallHealth, m.snap.Status))

	if m.status != "" {
		if m.isError {
			b.WriteString(errorStyle.Render(m.status))
		} else {
			b.WriteString(mutedStyle.Render(m.status))
		}
		b.WriteString("\n")
	}

	if m.advice != "" {
		width := 80
		if m.width > 4 {
			width = m.width - 4
		}
		b.WriteString(panelStyle.Width(width).Render(m.advice))
		b.WriteString("\n")
	}

	b.WriteString(m.help.View(m.keys))
	return b.String()
}

func (m Model) treatmentsView() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Treatments"))
	b.WriteString("\n")

	for i, e := range m.entries {
		mark := "[ ]"
		if e.Applied {
			mark = appliedStyle.Render(fmt.Sprintf("[%d]", e.AppliedCount))
		}
		line := fmt.Sprintf("%s %d %s", mark, e.ID, e.Name)
		if e.Priority != "" {
			line += mutedStyle.Render(" (" + e.Priority + ")")
		}
		if i == m.cursor {
			line = cursorStyle.Render("> ") + line
		} else {
			line = "  " + line
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m Model) metricsView() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Metrics"))
	b.WriteString("\n")

	for _, k := range slices.Sorted(maps.Keys(m.snap.Metrics)) {
		metric := m.snap.Metrics[k]
		trend := string(metric.Trend)
		switch metric.Trend {
		case model.TrendImproving:
			trend = improvingText.Render(trend)
		case model.TrendDeclining:
			trend = decliningText.Render(trend)
		}
		fmt.Fprintf(&b, "%-16s %8s %-6s %6s  %s\n",
			metric.Name,
			report.Number(metric.Current),
			metric.Unit,
			report.SignedNumber(metric.ImpactScore),
			trend,
		)
	}
	return strings.TrimRight(b.String(), "\n")
}
