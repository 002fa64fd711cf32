// Package tui provides the terminal interface for reviewing anomalies.
package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"commsentry/internal/tui/api"
	"commsentry/internal/tui/scenes"
	"commsentry/internal/tui/styles"
)

// Scene represents the current view
type Scene int

const (
	SceneAnomalies Scene = iota
	SceneStats
	SceneSystem
)

// Model is the main TUI model
type Model struct {
	client *api.Client

	scene Scene

	// Scene models - only the active one receives updates
	anomalies *scenes.AnomaliesScene
	stats     *scenes.StatsScene
	system    *scenes.SystemScene

	width  int
	height int

	quitting bool
}

// New creates a new TUI model
func New(baseURL, apiKey string) *Model {
	client := api.NewClient(baseURL, apiKey)

	return &Model{
		client:    client,
		scene:     SceneAnomalies,
		anomalies: scenes.NewAnomaliesScene(client),
		stats:     scenes.NewStatsScene(client),
		system:    scenes.NewSystemScene(client),
	}
}

// Init initializes the TUI
func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		m.anomalies.Init(),
		m.getActiveSceneTickCmd(),
	)
}

// getActiveSceneTickCmd returns the tick command for the active scene only.
// Inactive scenes must not keep tickers running.
func (m *Model) getActiveSceneTickCmd() tea.Cmd {
	switch m.scene {
	case SceneAnomalies:
		return m.anomalies.TickCmd()
	case SceneStats:
		return m.stats.TickCmd()
	case SceneSystem:
		return m.system.TickCmd()
	default:
		return nil
	}
}

// Update handles all messages
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit

		case "1":
			if m.scene != SceneAnomalies {
				m.scene = SceneAnomalies
				cmds = append(cmds, m.anomalies.Init(), m.anomalies.TickCmd())
			}
			return m, tea.Batch(cmds...)

		case "2":
			if m.scene != SceneStats {
				m.scene = SceneStats
				cmds = append(cmds, m.stats.Init(), m.stats.TickCmd())
			}
			return m, tea.Batch(cmds...)

		case "3":
			if m.scene != SceneSystem {
				m.scene = SceneSystem
				cmds = append(cmds, m.system.Init(), m.system.TickCmd())
			}
			return m, tea.Batch(cmds...)

		case "tab":
			m.scene = (m.scene + 1) % 3
			cmds = append(cmds, m.getActiveSceneTickCmd())
			return m, tea.Batch(cmds...)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.anomalies, _ = m.anomalies.Update(msg)
		m.stats, _ = m.stats.Update(msg)
		m.system, _ = m.system.Update(msg)
		return m, nil

	case scenes.TickMsg:
		// Only the active scene refreshes and reschedules.
		var cmd tea.Cmd
		switch m.scene {
		case SceneAnomalies:
			m.anomalies, cmd = m.anomalies.Update(msg)
			if cmd != nil {
				cmds = append(cmds, cmd)
			}
			cmds = append(cmds, m.anomalies.TickCmd())
		case SceneStats:
			m.stats, cmd = m.stats.Update(msg)
			if cmd != nil {
				cmds = append(cmds, cmd)
			}
			cmds = append(cmds, m.stats.TickCmd())
		case SceneSystem:
			m.system, cmd = m.system.Update(msg)
			if cmd != nil {
				cmds = append(cmds, cmd)
			}
			cmds = append(cmds, m.system.TickCmd())
		}
		return m, tea.Batch(cmds...)
	}

	// Forward other messages to the active scene only.
	var cmd tea.Cmd
	switch m.scene {
	case SceneAnomalies:
		m.anomalies, cmd = m.anomalies.Update(msg)
	case SceneStats:
		m.stats, cmd = m.stats.Update(msg)
	case SceneSystem:
		m.system, cmd = m.system.Update(msg)
	}

	if cmd != nil {
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

// View renders the current view
func (m *Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder

	b.WriteString(m.renderHeader())
	b.WriteString("\n")

	switch m.scene {
	case SceneAnomalies:
		b.WriteString(m.anomalies.View())
	case SceneStats:
		b.WriteString(m.stats.View())
	case SceneSystem:
		b.WriteString(m.system.View())
	}

	b.WriteString("\n")
	b.WriteString(m.renderFooter())

	return b.String()
}

func (m *Model) renderHeader() string {
	tabs := []struct {
		name  string
		key   string
		scene Scene
	}{
		{"Anomalies", "1", SceneAnomalies},
		{"Stats", "2", SceneStats},
		{"System", "3", SceneSystem},
	}

	var tabViews []string
	for _, tab := range tabs {
		label := fmt.Sprintf(" %s %s ", tab.key, tab.name)
		if tab.scene == m.scene {
			tabViews = append(tabViews, styles.TabActive.Render(label))
		} else {
			tabViews = append(tabViews, styles.TabInactive.Render(label))
		}
	}

	tabBar := lipgloss.JoinHorizontal(lipgloss.Top, tabViews...)

	header := lipgloss.NewStyle().
		BorderBottom(true).
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(styles.MutedColor).
		Width(m.width).
		Render(tabBar)

	return header
}

func (m *Model) renderFooter() string {
	help := " [1-3] Switch tabs  [Tab] Next tab  [↑↓/jk] Navigate  [q] Quit "
	return styles.Help.Render(help)
}

// Run starts the TUI application
func Run(baseURL, apiKey string) error {
	m := New(baseURL, apiKey)
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err := p.Run()
	return err
}
