// Package api provides the HTTP client the review TUI uses to talk to the
// commsentry backend.
package api

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client handles API communication with the commsentry backend.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Anomaly mirrors the anomaly record the API serves.
type Anomaly struct {
	ID                string     `json:"id"`
	TenantID          string     `json:"tenant_id"`
	AnomalyType       string     `json:"anomaly_type"`
	Severity          string     `json:"severity"`
	Status            string     `json:"status"`
	Title             string     `json:"title"`
	Description       string     `json:"description"`
	DeviationScore    float64    `json:"deviation_score"`
	Confidence        float64    `json:"confidence"`
	DetectedAt        time.Time  `json:"detected_at"`
	TimeWindowStart   time.Time  `json:"time_window_start"`
	TimeWindowEnd     time.Time  `json:"time_window_end"`
	RelatedEventIDs   []string   `json:"related_event_ids,omitempty"`
	AIExplanation     string     `json:"ai_explanation,omitempty"`
	AIRecommendations []string   `json:"ai_recommendations,omitempty"`
	ResolutionNotes   string     `json:"resolution_notes,omitempty"`
	ResolvedAt        *time.Time `json:"resolved_at,omitempty"`
}

// AnomalyList is the response of GET /v1/anomalies.
type AnomalyList struct {
	Anomalies []Anomaly `json:"anomalies"`
	Count     int       `json:"count"`
}

// Stats is the response of GET /v1/anomalies/stats.
type Stats struct {
	Total      int            `json:"total"`
	BySeverity map[string]int `json:"by_severity"`
	ByType     map[string]int `json:"by_type"`
	ByStatus   map[string]int `json:"by_status"`
}

// Health is the response of GET /health.
type Health struct {
	Status        string `json:"status"`
	UptimeSeconds int    `json:"uptime_seconds"`
}

// System combines health and counter metrics for the system scene.
type System struct {
	Healthy           bool
	Status            string
	Uptime            string
	EventsIngested    int64
	DetectionRuns     int64
	AnomaliesDetected int64
}

// NewClient creates a new API client. The key may be empty when the backend
// runs without authentication.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

func (c *Client) do(method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequest(method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("connection failed: %w", err)
	}
	return resp, nil
}

func decodeInto(resp *http.Response, v any) error {
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s", apiErr.Error)
		}
		return fmt.Errorf("backend returned %s", resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// ListAnomalies fetches anomalies, optionally filtered by status.
func (c *Client) ListAnomalies(status string, limit int) (*AnomalyList, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	path := "/v1/anomalies"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var list AnomalyList
	if err := decodeInto(resp, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// UpdateStatus moves an anomaly through the review workflow.
func (c *Client) UpdateStatus(id, status, notes string) (*Anomaly, error) {
	payload, err := json.Marshal(map[string]string{
		"status":           status,
		"resolution_notes": notes,
	})
	if err != nil {
		return nil, err
	}

	resp, err := c.do(http.MethodPost, "/v1/anomalies/"+id+"/status", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}

	var rec Anomaly
	if err := decodeInto(resp, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// GetStats fetches anomaly aggregates.
func (c *Client) GetStats() (*Stats, error) {
	resp, err := c.do(http.MethodGet, "/v1/anomalies/stats", nil)
	if err != nil {
		return nil, err
	}

	var stats Stats
	if err := decodeInto(resp, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// GetHealth fetches health status.
func (c *Client) GetHealth() (*Health, error) {
	resp, err := c.do(http.MethodGet, "/health", nil)
	if err != nil {
		return nil, err
	}

	var health Health
	if err := decodeInto(resp, &health); err != nil {
		return nil, err
	}
	return &health, nil
}

// GetSystem combines health and counter metrics.
func (c *Client) GetSystem() (*System, error) {
	health, err := c.GetHealth()
	if err != nil {
		return nil, err
	}

	sys := &System{
		Status:  health.Status,
		Healthy: health.Status == "healthy",
		Uptime:  formatUptime(health.UptimeSeconds),
	}

	resp, err := c.do(http.MethodGet, "/metrics", nil)
	if err != nil {
		// Health sufficed; counters stay zero.
		return sys, nil
	}
	defer resp.Body.Close()

	metrics := parseMetrics(resp.Body)
	if v, ok := metrics["commsentry_events_ingested_total"]; ok {
		sys.EventsIngested = int64(v)
	}
	if v, ok := metrics["commsentry_detection_runs_total"]; ok {
		sys.DetectionRuns = int64(v)
	}
	if v, ok := metrics["commsentry_anomalies_detected_total"]; ok {
		sys.AnomaliesDetected = int64(v)
	}

	return sys, nil
}

// parseMetrics parses Prometheus text-format metrics into a name-value map.
func parseMetrics(r io.Reader) map[string]float64 {
	metrics := make(map[string]float64)
	scanner := bufio.NewScanner(r)

	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "#") || line == "" {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) >= 2 {
			if val, err := strconv.ParseFloat(parts[1], 64); err == nil {
				metrics[parts[0]] = val
			}
		}
	}
	return metrics
}

func formatUptime(seconds int) string {
	d := time.Duration(seconds) * time.Second
	hours := int(d.Hours())
	mins := int(d.Minutes()) % 60
	secs := int(d.Seconds()) % 60

	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, mins, secs)
	}
	if mins > 0 {
		return fmt.Sprintf("%dm %ds", mins, secs)
	}
	return fmt.Sprintf("%ds", secs)
}
