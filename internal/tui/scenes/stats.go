package scenes

import (
	"fmt"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"commsentry/internal/tui/api"
	"commsentry/internal/tui/styles"
)

// StatsScene displays anomaly aggregates by severity, type and status.
type StatsScene struct {
	client     *api.Client
	stats      *api.Stats
	err        string
	width      int
	height     int
	loading    bool
	lastUpdate time.Time
}

// statsMsg carries refreshed aggregates.
type statsMsg struct {
	stats *api.Stats
	err   string
}

// NewStatsScene creates the stats scene.
func NewStatsScene(client *api.Client) *StatsScene {
	return &StatsScene{
		client:  client,
		loading: true,
	}
}

// Init starts the first fetch.
func (s *StatsScene) Init() tea.Cmd {
	return s.fetchStats()
}

func (s *StatsScene) fetchStats() tea.Cmd {
	return func() tea.Msg {
		stats, err := s.client.GetStats()
		if err != nil {
			return statsMsg{err: err.Error()}
		}
		return statsMsg{stats: stats}
	}
}

// TickCmd returns the auto-refresh tick for this scene.
func (s *StatsScene) TickCmd() tea.Cmd {
	return tea.Tick(15*time.Second, func(t time.Time) tea.Msg {
		return TickMsg{Scene: "stats", Time: t}
	})
}

// Update handles messages for the stats scene.
func (s *StatsScene) Update(msg tea.Msg) (*StatsScene, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		s.width = msg.Width
		s.height = msg.Height
		return s, nil

	case tea.KeyMsg:
		if msg.String() == "r" {
			s.loading = true
			return s, s.fetchStats()
		}
		return s, nil

	case statsMsg:
		s.loading = false
		s.stats = msg.stats
		s.err = msg.err
		s.lastUpdate = time.Now()
		return s, nil

	case TickMsg:
		if msg.Scene == "stats" {
			return s, s.fetchStats()
		}
		return s, nil
	}

	return s, nil
}

// View renders the aggregates.
func (s *StatsScene) View() string {
	var b strings.Builder

	b.WriteString(styles.Title.Render("  Statistics"))
	b.WriteString("\n\n")

	if s.loading && s.stats == nil {
		b.WriteString(styles.Muted.Render("  Loading statistics..."))
		return b.String()
	}

	if s.err != "" {
		b.WriteString(styles.StatusError.Render(fmt.Sprintf("  Error: %s", s.err)))
		b.WriteString("\n\n")
		b.WriteString(styles.Muted.Render("  Press [r] to retry."))
		return b.String()
	}

	if s.stats == nil || s.stats.Total == 0 {
		b.WriteString(styles.Muted.Render("  No anomalies recorded yet."))
		return b.String()
	}

	total := styles.MetricCard.Render(
		styles.MetricValue.Render(fmt.Sprintf("%d", s.stats.Total)) + "\n" +
			styles.MetricLabel.Render("Total anomalies"))
	b.WriteString(total)
	b.WriteString("\n\n")

	b.WriteString(renderBreakdown("By severity", s.stats.BySeverity))
	b.WriteString("\n")
	b.WriteString(renderBreakdown("By type", s.stats.ByType))
	b.WriteString("\n")
	b.WriteString(renderBreakdown("By status", s.stats.ByStatus))

	b.WriteString("\n")
	b.WriteString(styles.Muted.Render("  [r] Refresh"))
	if !s.lastUpdate.IsZero() {
		b.WriteString(styles.Muted.Render(fmt.Sprintf("  |  Updated: %s", s.lastUpdate.Format("15:04:05"))))
	}

	return b.String()
}

func renderBreakdown(label string, counts map[string]int) string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(styles.Subtitle.Render("  " + label))
	b.WriteString("\n")
	for _, k := range keys {
		bar := strings.Repeat("█", min(counts[k], 40))
		line := fmt.Sprintf("  %-16s %4d %s", k, counts[k], bar)
		b.WriteString(lipgloss.NewStyle().Render(line))
		b.WriteString("\n")
	}
	return b.String()
}
