// Package dashboard implements chorusctl's read-only terminal dashboard: a
// live, periodically-refreshed view over a workspace's sessions and jobs
// built by replaying its event log, never by writing to it.
package dashboard

import (
	"fmt"
	"sort"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kestrelhq/chorus/internal/protocol"
	"github.com/kestrelhq/chorus/internal/runstate"
)

const refreshInterval = 2 * time.Second

// tickMsg is sent on every refresh interval.
type tickMsg time.Time

// stateMsg carries a freshly reloaded projection of the event log.
// nil State and non-nil Err means the reload failed.
type stateMsg struct {
	State *runstate.State
	Err   error
}

func tickCmd() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func loadCmd(logPath string) tea.Cmd {
	return func() tea.Msg {
		state, err := loadState(logPath)
		return stateMsg{State: state, Err: err}
	}
}

// Model is the Bubble Tea model backing the dashboard command.
type Model struct {
	logPath string
	theme   Theme

	state      *runstate.State
	lastErr    error
	lastLoaded time.Time

	sessions table.Model
	jobs     table.Model

	width, height int
}

// New builds a dashboard Model reading the event log at logPath.
func New(logPath string) Model {
	sessionCols := []table.Column{
		{Title: "Thread", Width: 16},
		{Title: "Project", Width: 14},
		{Title: "Tool", Width: 6},
		{Title: "Queue", Width: 6},
		{Title: "Running Job", Width: 20},
		{Title: "Last Activity", Width: 19},
	}
	jobCols := []table.Column{
		{Title: "Job", Width: 20},
		{Title: "Thread", Width: 16},
		{Title: "State", Width: 20},
		{Title: "Attempt", Width: 8},
		{Title: "Error", Width: 24},
	}

	sessions := table.New(table.WithColumns(sessionCols), table.WithFocused(true), table.WithHeight(10))
	jobs := table.New(table.WithColumns(jobCols), table.WithHeight(10))

	return Model{
		logPath:  logPath,
		theme:    DefaultTheme(),
		sessions: sessions,
		jobs:     jobs,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(loadCmd(m.logPath), tickCmd())
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "tab":
			if m.sessions.Focused() {
				m.sessions.Blur()
				m.jobs.Focus()
			} else {
				m.jobs.Blur()
				m.sessions.Focus()
			}
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height

	case tickMsg:
		return m, tea.Batch(loadCmd(m.logPath), tickCmd())

	case stateMsg:
		m.lastLoaded = time.Now()
		if msg.Err != nil {
			m.lastErr = msg.Err
		} else {
			m.lastErr = nil
			m.state = msg.State
			m.sessions.SetRows(sessionRows(msg.State))
			m.jobs.SetRows(jobRows(msg.State))
		}
		return m, nil
	}

	var cmd tea.Cmd
	if m.sessions.Focused() {
		m.sessions, cmd = m.sessions.Update(msg)
	} else {
		m.jobs, cmd = m.jobs.Update(msg)
	}
	return m, cmd
}

// View implements tea.Model.
func (m Model) View() string {
	status := m.renderStatusBar()
	sectionTitle := lipgloss.NewStyle().Bold(true).Foreground(m.theme.Primary)

	view := status + "\n\n"
	view += sectionTitle.Render("Sessions") + "\n"
	view += m.sessions.View() + "\n\n"
	view += sectionTitle.Render("Recent jobs") + "\n"
	view += m.jobs.View() + "\n"
	view += lipgloss.NewStyle().Foreground(m.theme.Muted).Render("tab: switch table   q: quit")
	return view
}

func (m Model) renderStatusBar() string {
	if m.lastErr != nil {
		errStyle := lipgloss.NewStyle().Foreground(m.theme.Error)
		return errStyle.Render(fmt.Sprintf("reload failed: %v", m.lastErr))
	}
	sessionCount, running := 0, 0
	if m.state != nil {
		sessions := m.state.Sessions()
		sessionCount = len(sessions)
		for _, s := range sessions {
			if s.RunningJobID != "" {
				running++
			}
		}
	}
	okStyle := lipgloss.NewStyle().Foreground(m.theme.Success)
	return lipgloss.JoinHorizontal(
		lipgloss.Left,
		okStyle.Render("chorus dashboard"),
		lipgloss.NewStyle().Render(fmt.Sprintf("  sessions: %d  running: %d  refreshed: %s",
			sessionCount, running, m.lastLoaded.Format("15:04:05"))),
	)
}

func sessionRows(state *runstate.State) []table.Row {
	if state == nil {
		return nil
	}
	sessions := state.Sessions()
	ids := make([]string, 0, len(sessions))
	for id := range sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	rows := make([]table.Row, 0, len(ids))
	for _, id := range ids {
		s := sessions[id]
		running := s.RunningJobID
		if running == "" {
			running = "-"
		}
		rows = append(rows, table.Row{
			s.ThreadID,
			s.ProjectName,
			string(s.Tool),
			fmt.Sprintf("%d", len(s.Queue)),
			running,
			s.LastActivityAt.Format("2006-01-02 15:04:05"),
		})
	}
	return rows
}

func jobRows(state *runstate.State) []table.Row {
	if state == nil {
		return nil
	}
	jobs := state.Jobs()
	list := make([]*protocol.Job, 0, len(jobs))
	for _, j := range jobs {
		list = append(list, j)
	}
	sort.Slice(list, func(i, k int) bool {
		return list[i].StartedAt.After(list[k].StartedAt)
	})

	const maxRows = 20
	if len(list) > maxRows {
		list = list[:maxRows]
	}

	rows := make([]table.Row, 0, len(list))
	for _, j := range list {
		errText := j.ErrorCode
		if errText == "" {
			errText = "-"
		}
		rows = append(rows, table.Row{
			j.JobID,
			j.ThreadID,
			string(j.State),
			fmt.Sprintf("%d", j.Attempt),
			errText,
		})
	}
	return rows
}
