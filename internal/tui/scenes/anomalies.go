// Package scenes provides the review TUI scenes.
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

// TickMsg drives periodic refresh for a scene.
type TickMsg struct {
	Scene string
	Time  time.Time
}

// statusFilters are the filter cycle for the anomaly list. Empty means all.
var statusFilters = []string{"", "new", "investigating", "confirmed", "resolved", "false_positive"}

// AnomaliesScene displays the anomaly review list with an optional detail
// pane for the selected record.
type AnomaliesScene struct {
	client *api.Client

	anomalies  []api.Anomaly
	count      int
	filterIdx  int
	err        string
	notice     string
	width      int
	height     int
	cursor     int
	offset     int
	loading    bool
	showDetail bool
	maxRows    int
	lastUpdate time.Time
}

// anomaliesMsg carries a refreshed anomaly list.
type anomaliesMsg struct {
	anomalies []api.Anomaly
	count     int
	err       string
}

// statusUpdatedMsg carries the result of a status change.
type statusUpdatedMsg struct {
	anomaly *api.Anomaly
	err     string
}

// NewAnomaliesScene creates the anomaly review scene.
func NewAnomaliesScene(client *api.Client) *AnomaliesScene {
	return &AnomaliesScene{
		client:  client,
		loading: true,
		maxRows: 10,
	}
}

// Init starts the first fetch.
func (a *AnomaliesScene) Init() tea.Cmd {
	return a.fetchAnomalies()
}

func (a *AnomaliesScene) fetchAnomalies() tea.Cmd {
	status := statusFilters[a.filterIdx]
	return func() tea.Msg {
		list, err := a.client.ListAnomalies(status, 100)
		if err != nil {
			return anomaliesMsg{err: err.Error()}
		}
		return anomaliesMsg{anomalies: list.Anomalies, count: list.Count}
	}
}

func (a *AnomaliesScene) updateStatus(status string) tea.Cmd {
	if a.cursor >= len(a.anomalies) {
		return nil
	}
	id := a.anomalies[a.cursor].ID
	return func() tea.Msg {
		rec, err := a.client.UpdateStatus(id, status, "")
		if err != nil {
			return statusUpdatedMsg{err: err.Error()}
		}
		return statusUpdatedMsg{anomaly: rec}
	}
}

// TickCmd returns the auto-refresh tick for this scene.
func (a *AnomaliesScene) TickCmd() tea.Cmd {
	return tea.Tick(10*time.Second, func(t time.Time) tea.Msg {
		return TickMsg{Scene: "anomalies", Time: t}
	})
}

// Update handles messages for the anomalies scene.
func (a *AnomaliesScene) Update(msg tea.Msg) (*AnomaliesScene, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.maxRows = max(5, a.height-12)
		return a, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "up", "k":
			if a.cursor > 0 {
				a.cursor--
				if a.cursor < a.offset {
					a.offset = a.cursor
				}
			}
		case "down", "j":
			if a.cursor < len(a.anomalies)-1 {
				a.cursor++
				if a.cursor >= a.offset+a.maxRows {
					a.offset = a.cursor - a.maxRows + 1
				}
			}
		case "enter":
			a.showDetail = !a.showDetail
		case "f":
			a.filterIdx = (a.filterIdx + 1) % len(statusFilters)
			a.cursor = 0
			a.offset = 0
			a.loading = true
			return a, a.fetchAnomalies()
		case "r":
			a.loading = true
			return a, a.fetchAnomalies()
		case "i":
			return a, a.updateStatus("investigating")
		case "c":
			return a, a.updateStatus("confirmed")
		case "o":
			return a, a.updateStatus("resolved")
		case "x":
			return a, a.updateStatus("false_positive")
		}
		return a, nil

	case anomaliesMsg:
		a.loading = false
		a.anomalies = msg.anomalies
		a.count = msg.count
		a.err = msg.err
		a.lastUpdate = time.Now()
		if a.cursor >= len(a.anomalies) {
			a.cursor = max(0, len(a.anomalies)-1)
		}
		return a, nil

	case statusUpdatedMsg:
		if msg.err != "" {
			a.notice = "update failed: " + msg.err
			return a, nil
		}
		a.notice = fmt.Sprintf("marked %s", msg.anomaly.Status)
		// Refresh so a status filter drops records that left it.
		return a, a.fetchAnomalies()

	case TickMsg:
		if msg.Scene == "anomalies" {
			return a, a.fetchAnomalies()
		}
		return a, nil
	}

	return a, nil
}

// View renders the anomaly list.
func (a *AnomaliesScene) View() string {
	var b strings.Builder

	b.WriteString(styles.Title.Render("  Anomalies"))
	b.WriteString("\n\n")

	if a.loading && len(a.anomalies) == 0 {
		b.WriteString(styles.Muted.Render("  Loading anomalies..."))
		return b.String()
	}

	if a.err != "" {
		b.WriteString(styles.StatusError.Render(fmt.Sprintf("  Error: %s", a.err)))
		b.WriteString("\n\n")
		b.WriteString(styles.Muted.Render("  Press [r] to retry."))
		return b.String()
	}

	filterLabel := statusFilters[a.filterIdx]
	if filterLabel == "" {
		filterLabel = "all"
	}
	b.WriteString(styles.Subtitle.Render(fmt.Sprintf("  %d anomalies  |  filter: %s", a.count, filterLabel)))
	if a.notice != "" {
		b.WriteString(styles.Muted.Render("  |  " + a.notice))
	}
	b.WriteString("\n\n")

	if len(a.anomalies) == 0 {
		b.WriteString(styles.Muted.Render("  No anomalies match the current filter."))
		b.WriteString("\n\n")
		b.WriteString(styles.Muted.Render("  Run detection (POST /v1/detection/run) to analyze recent events."))
		return b.String()
	}

	header := fmt.Sprintf("  %-12s %-10s %-16s %-15s %s",
		"Detected", "Severity", "Type", "Status", "Title")
	b.WriteString(styles.TableHeader.Render(header))
	b.WriteString("\n")

	endIdx := min(a.offset+a.maxRows, len(a.anomalies))
	for i, rec := range a.anomalies[a.offset:endIdx] {
		idx := a.offset + i
		b.WriteString(a.renderRow(rec, idx == a.cursor))
		b.WriteString("\n")
	}

	if len(a.anomalies) > a.maxRows {
		b.WriteString(styles.Muted.Render(fmt.Sprintf("\n  %d-%d of %d",
			a.offset+1, endIdx, len(a.anomalies))))
	}

	if a.showDetail && a.cursor < len(a.anomalies) {
		b.WriteString("\n")
		b.WriteString(a.renderDetail(a.anomalies[a.cursor]))
	}

	b.WriteString("\n")
	b.WriteString(styles.Muted.Render("  [enter] Detail  [f] Filter  [i/c/o/x] Investigate/Confirm/Resolve/False positive  [r] Refresh"))

	if !a.lastUpdate.IsZero() {
		b.WriteString(styles.Muted.Render(fmt.Sprintf("  |  Updated: %s", a.lastUpdate.Format("15:04:05"))))
	}

	return b.String()
}

func (a *AnomaliesScene) renderRow(rec api.Anomaly, selected bool) string {
	detected := rec.DetectedAt.Format("01-02 15:04")
	severity := formatSeverity(rec.Severity)
	anomalyType := truncate(rec.AnomalyType, 16)
	status := truncate(rec.Status, 15)
	title := truncate(rec.Title, 50)

	row := fmt.Sprintf("  %-12s %s %-16s %-15s %s", detected, severity, anomalyType, status, title)

	if selected {
		return lipgloss.NewStyle().
			Background(styles.Primary).
			Foreground(styles.White).
			Render(row)
	}

	return row
}

func (a *AnomaliesScene) renderDetail(rec api.Anomaly) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s\n", rec.Title)
	fmt.Fprintf(&b, "%s\n\n", rec.Description)
	fmt.Fprintf(&b, "Score: %.0f  Confidence: %.0f%%  Window: %s to %s\n",
		rec.DeviationScore, rec.Confidence,
		rec.TimeWindowStart.Format("Jan 2 15:04"), rec.TimeWindowEnd.Format("Jan 2 15:04"))
	fmt.Fprintf(&b, "Related events: %d", len(rec.RelatedEventIDs))

	if rec.AIExplanation != "" {
		fmt.Fprintf(&b, "\n\nAnalysis: %s", rec.AIExplanation)
		for _, r := range rec.AIRecommendations {
			fmt.Fprintf(&b, "\n  - %s", r)
		}
	}

	if rec.ResolutionNotes != "" {
		fmt.Fprintf(&b, "\n\nNotes: %s", rec.ResolutionNotes)
	}

	return styles.DetailBox.Render(b.String())
}

func formatSeverity(sev string) string {
	width := 10
	var style lipgloss.Style

	switch sev {
	case "critical":
		style = styles.StatusError
	case "high":
		style = styles.StatusError
	case "medium":
		style = styles.StatusWarning
	default:
		style = styles.Muted
	}

	padded := fmt.Sprintf("%-*s", width, strings.ToUpper(sev))
	return style.Render(padded)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
