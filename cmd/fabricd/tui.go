package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/agentfabric/coordinator/pkg/agentmgr"
	"github.com/agentfabric/coordinator/pkg/coordination"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/gen2brain/beeep"
)

const statusPollInterval = 2 * time.Second

var (
	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(0, 1)
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

type statusTickMsg struct {
	status        coordination.Status
	stalls        []agentmgr.StallReport
	newStallCount int
}

type statusModel struct {
	rt          *runtime
	status      coordination.Status
	stalls      []agentmgr.StallReport
	knownStalls map[string]bool
	spinner     spinner.Model
	err         error
}

func runStatusTUI(rt *runtime) error {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = mutedStyle

	m := statusModel{rt: rt, knownStalls: make(map[string]bool), spinner: sp}
	p := tea.NewProgram(m)
	_, err := p.Run()
	return err
}

func (m statusModel) Init() tea.Cmd {
	return tea.Batch(m.poll(), m.spinner.Tick)
}

func (m statusModel) poll() tea.Cmd {
	return tea.Tick(statusPollInterval, func(time.Time) tea.Msg {
		status := m.rt.coordinator.GetStatus()
		stalls := m.rt.coordinator.CheckProgress()

		newCount := 0
		for _, s := range stalls {
			if !m.knownStalls[s.AgentID] {
				newCount++
			}
		}

		return statusTickMsg{status: status, stalls: stalls, newStallCount: newCount}
	})
}

func (m statusModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
	case statusTickMsg:
		m.status = msg.status
		m.stalls = msg.stalls
		if msg.newStallCount > 0 {
			_ = beeep.Notify("fabricd", fmt.Sprintf("%d agent(s) newly stalled", msg.newStallCount), "")
		}
		for _, s := range m.stalls {
			m.knownStalls[s.AgentID] = true
		}
		return m, m.poll()
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m statusModel) View() string {
	var b strings.Builder

	b.WriteString(headerStyle.Render("fabricd — live fabric status") + " " + m.spinner.View() + "\n\n")

	agentLines := make([]string, 0, len(m.status.Agents))
	for _, a := range m.status.Agents {
		agentLines = append(agentLines, fmt.Sprintf("%-18s %-12s locks=%v", a.ID, a.State, a.HeldLocks))
	}
	if len(agentLines) == 0 {
		agentLines = append(agentLines, mutedStyle.Render("no agents joined"))
	}
	b.WriteString(panelStyle.Render("Agents\n" + strings.Join(agentLines, "\n")) + "\n\n")

	lockLines := make([]string, 0, len(m.status.Locks))
	for _, l := range m.status.Locks {
		lockLines = append(lockLines, fmt.Sprintf("%-18s held by %s", l.ScopePath, l.HolderID))
	}
	if len(lockLines) == 0 {
		lockLines = append(lockLines, mutedStyle.Render("no locks held"))
	}
	b.WriteString(panelStyle.Render("Locks\n" + strings.Join(lockLines, "\n")) + "\n\n")

	syncLines := make([]string, 0, len(m.status.Syncs))
	for scope, status := range m.status.Syncs {
		syncLines = append(syncLines, fmt.Sprintf("%-18s %s", scope, status))
	}
	if len(syncLines) == 0 {
		syncLines = append(syncLines, mutedStyle.Render("no syncs registered"))
	}
	b.WriteString(panelStyle.Render("Syncs\n" + strings.Join(syncLines, "\n")) + "\n\n")

	if len(m.stalls) > 0 {
		stallLines := make([]string, 0, len(m.stalls))
		for _, s := range m.stalls {
			stallLines = append(stallLines, fmt.Sprintf("%-18s blocked %s", s.AgentID, s.Blocked))
		}
		b.WriteString(warnStyle.Render(panelStyle.Render("Stalled\n" + strings.Join(stallLines, "\n"))) + "\n\n")
	}

	if len(m.status.Violations) > 0 {
		violationLines := make([]string, 0, len(m.status.Violations))
		for _, v := range m.status.Violations {
			violationLines = append(violationLines, v.String())
		}
		b.WriteString(errorStyle.Render(panelStyle.Render("Safety violations\n" + strings.Join(violationLines, "\n"))) + "\n\n")
	}

	b.WriteString(mutedStyle.Render("q to quit"))
	return b.String()
}
