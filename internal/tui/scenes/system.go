package scenes

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"commsentry/internal/tui/api"
	"commsentry/internal/tui/styles"
)

// SystemScene displays backend health and counters.
type SystemScene struct {
	client     *api.Client
	system     *api.System
	err        string
	width      int
	height     int
	loading    bool
	lastUpdate time.Time
}

// systemMsg carries refreshed system info.
type systemMsg struct {
	system *api.System
	err    string
}

// NewSystemScene creates the system scene.
func NewSystemScene(client *api.Client) *SystemScene {
	return &SystemScene{
		client:  client,
		loading: true,
	}
}

// Init starts the first fetch.
func (s *SystemScene) Init() tea.Cmd {
	return s.fetchSystem()
}

func (s *SystemScene) fetchSystem() tea.Cmd {
	return func() tea.Msg {
		sys, err := s.client.GetSystem()
		if err != nil {
			return systemMsg{err: err.Error()}
		}
		return systemMsg{system: sys}
	}
}

// TickCmd returns the auto-refresh tick for this scene.
func (s *SystemScene) TickCmd() tea.Cmd {
	return tea.Tick(5*time.Second, func(t time.Time) tea.Msg {
		return TickMsg{Scene: "system", Time: t}
	})
}

// Update handles messages for the system scene.
func (s *SystemScene) Update(msg tea.Msg) (*SystemScene, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		s.width = msg.Width
		s.height = msg.Height
		return s, nil

	case tea.KeyMsg:
		if msg.String() == "r" {
			s.loading = true
			return s, s.fetchSystem()
		}
		return s, nil

	case systemMsg:
		s.loading = false
		s.system = msg.system
		s.err = msg.err
		s.lastUpdate = time.Now()
		return s, nil

	case TickMsg:
		if msg.Scene == "system" {
			return s, s.fetchSystem()
		}
		return s, nil
	}

	return s, nil
}

// View renders the system status.
func (s *SystemScene) View() string {
	var b strings.Builder

	b.WriteString(styles.Title.Render("  System"))
	b.WriteString("\n\n")

	if s.loading && s.system == nil {
		b.WriteString(styles.Muted.Render("  Connecting to backend..."))
		return b.String()
	}

	if s.err != "" {
		b.WriteString(styles.StatusError.Render(fmt.Sprintf("  Error: %s", s.err)))
		b.WriteString("\n\n")
		b.WriteString(styles.Muted.Render("  Check that the commsentry server is running and reachable."))
		return b.String()
	}

	status := styles.StatusError.Render("DEGRADED")
	if s.system.Healthy {
		status = styles.StatusOK.Render("HEALTHY")
	}
	b.WriteString(fmt.Sprintf("  Backend: %s   Uptime: %s\n\n", status, s.system.Uptime))

	cards := []struct {
		value int64
		label string
	}{
		{s.system.EventsIngested, "Events ingested"},
		{s.system.DetectionRuns, "Detection runs"},
		{s.system.AnomaliesDetected, "Anomalies detected"},
	}

	var rendered []string
	for _, c := range cards {
		rendered = append(rendered, styles.MetricCard.Render(
			styles.MetricValue.Render(fmt.Sprintf("%d", c.value))+"\n"+
				styles.MetricLabel.Render(c.label)))
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, rendered...))

	b.WriteString("\n")
	b.WriteString(styles.Muted.Render("  [r] Refresh"))
	if !s.lastUpdate.IsZero() {
		b.WriteString(styles.Muted.Render(fmt.Sprintf("  |  Updated: %s", s.lastUpdate.Format("15:04:05"))))
	}

	return b.String()
}
