// Package enrich calls an external language-model service to attach
// explanations and recommendations to detected anomalies. Enrichment is
// strictly best effort: a run never fails because this service is down.
package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"commsentry/internal/anomaly"
)

// Config holds enrichment service settings.
type Config struct {
	Endpoint      string        `yaml:"endpoint"`
	APIKey        string        `yaml:"api_key"`
	Model         string        `yaml:"model"`
	Timeout       time.Duration `yaml:"timeout"`
	MaxCandidates int           `yaml:"max_candidates"`
}

// DefaultConfig returns the default enrichment configuration. The endpoint
// and key are empty, which leaves enrichment disabled.
func DefaultConfig() Config {
	return Config{
		Model:         "analyst-v1",
		Timeout:       30 * time.Second,
		MaxCandidates: 5,
	}
}

// Enricher annotates a batch of candidates in place.
type Enricher interface {
	Enrich(ctx context.Context, candidates []anomaly.Candidate) error
}

// Client is an HTTP Enricher. Requests are a single attempt with a hard
// timeout; the caller decides what a failure means.
type Client struct {
	cfg    Config
	client *http.Client
}

// NewClient creates an enrichment client.
func NewClient(cfg Config) *Client {
	if cfg.MaxCandidates <= 0 {
		cfg.MaxCandidates = DefaultConfig().MaxCandidates
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	return &Client{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Enabled reports whether the client has enough configuration to call out.
func (c *Client) Enabled() bool {
	return c.cfg.Endpoint != "" && c.cfg.APIKey != ""
}

type requestCandidate struct {
	Index          int            `json:"index"`
	AnomalyType    string         `json:"anomaly_type"`
	Severity       string         `json:"severity"`
	Title          string         `json:"title"`
	Description    string         `json:"description"`
	PatternData    map[string]any `json:"pattern_data,omitempty"`
	DeviationScore float64        `json:"deviation_score"`
	Confidence     float64        `json:"confidence"`
}

type enrichRequest struct {
	Model      string             `json:"model"`
	Candidates []requestCandidate `json:"candidates"`
}

type enrichResult struct {
	Index            int      `json:"index"`
	Explanation      string   `json:"explanation"`
	Recommendations  []string `json:"recommendations,omitempty"`
	SeverityOverride string   `json:"severity_override,omitempty"`
}

type enrichResponse struct {
	Results []enrichResult `json:"results"`
}

// Enrich annotates up to MaxCandidates of the highest-priority candidates.
// The slice is mutated in place; candidates past the cap are left as they
// are. Any transport, status, or decode failure returns an error with the
// input untouched beyond annotations already applied.
func (c *Client) Enrich(ctx context.Context, candidates []anomaly.Candidate) error {
	if len(candidates) == 0 {
		return nil
	}

	limit := len(candidates)
	if limit > c.cfg.MaxCandidates {
		limit = c.cfg.MaxCandidates
	}

	req := enrichRequest{Model: c.cfg.Model}
	for i := 0; i < limit; i++ {
		cand := &candidates[i]
		req.Candidates = append(req.Candidates, requestCandidate{
			Index:          i,
			AnomalyType:    string(cand.AnomalyType),
			Severity:       string(cand.Severity),
			Title:          cand.Title,
			Description:    cand.Description,
			PatternData:    cand.PatternData,
			DeviationScore: cand.DeviationScore,
			Confidence:     cand.Confidence,
		})
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal enrichment request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("enrichment request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("enrichment service returned %d: %s", resp.StatusCode, string(body))
	}

	var decoded enrichResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return fmt.Errorf("failed to decode enrichment response: %w", err)
	}

	for _, result := range decoded.Results {
		if result.Index < 0 || result.Index >= limit {
			continue
		}
		cand := &candidates[result.Index]
		cand.AIExplanation = result.Explanation
		cand.AIRecommendations = result.Recommendations

		if override := anomaly.Severity(result.SeverityOverride); result.SeverityOverride != "" && override.IsValid() {
			cand.Severity = override
		}
	}

	return nil
}
