// Package anomaly defines the detection result model: transient candidates
// emitted by detectors and persisted records with a review workflow.
package anomaly

import (
	"time"

	"github.com/google/uuid"
)

// Type identifies which detector produced an anomaly.
type Type string

const (
	TypeFrequencySpike Type = "frequency_spike"
	TypeTimingAnomaly  Type = "timing_anomaly"
	TypeSentimentShift Type = "sentiment_shift"
	TypeBehaviorChange Type = "behavior_change"
)

// IsValid checks if the anomaly type is a known value.
func (t Type) IsValid() bool {
	switch t {
	case TypeFrequencySpike, TypeTimingAnomaly, TypeSentimentShift, TypeBehaviorChange:
		return true
	}
	return false
}

// Severity is the coarse classification assigned by the emitting detector.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// IsValid checks if the severity is a known value.
func (s Severity) IsValid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// Status represents the review state of a persisted anomaly.
type Status string

const (
	StatusNew           Status = "new"
	StatusInvestigating Status = "investigating"
	StatusConfirmed     Status = "confirmed"
	StatusResolved      Status = "resolved"
	StatusFalsePositive Status = "false_positive"
)

// IsValid checks if the status is a known value. The store accepts any
// transition between valid statuses; only unknown values are rejected.
func (s Status) IsValid() bool {
	switch s {
	case StatusNew, StatusInvestigating, StatusConfirmed, StatusResolved, StatusFalsePositive:
		return true
	}
	return false
}

// IsTerminal reports whether the status is terminal for default dashboards.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusConfirmed, StatusResolved, StatusFalsePositive:
		return true
	}
	return false
}

// MaxRelatedEvents bounds the event references stored per anomaly.
const MaxRelatedEvents = 10

// Candidate is a detector's transient output before enrichment and
// persistence. Scores are heuristic magnitudes, not probabilities.
type Candidate struct {
	AnomalyType     Type           `json:"anomaly_type"`
	Severity        Severity       `json:"severity"`
	Title           string         `json:"title"`
	Description     string         `json:"description"`
	RelatedEventIDs []uuid.UUID    `json:"related_event_ids,omitempty"`
	PatternData     map[string]any `json:"pattern_data,omitempty"`
	BaselineData    map[string]any `json:"baseline_data,omitempty"`
	DeviationScore  float64        `json:"deviation_score"`
	Confidence      float64        `json:"confidence"`
	TimeWindowStart time.Time      `json:"time_window_start"`
	TimeWindowEnd   time.Time      `json:"time_window_end"`

	// Set by enrichment, empty otherwise.
	AIExplanation     string   `json:"ai_explanation,omitempty"`
	AIRecommendations []string `json:"ai_recommendations,omitempty"`
}

// Normalize clamps scores into [0, 100] and truncates the related event
// list to MaxRelatedEvents. Called once before a candidate leaves the
// detector pipeline.
func (c *Candidate) Normalize() {
	c.DeviationScore = Clamp(c.DeviationScore)
	c.Confidence = Clamp(c.Confidence)
	if len(c.RelatedEventIDs) > MaxRelatedEvents {
		c.RelatedEventIDs = c.RelatedEventIDs[:MaxRelatedEvents]
	}
}

// Clamp bounds a score to [0, 100].
func Clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// Record is a persisted anomaly with its review workflow state.
// Created only by a detection run; mutated only by status transitions.
type Record struct {
	Candidate

	ID              uuid.UUID  `json:"id"`
	TenantID        string     `json:"tenant_id"`
	DetectedAt      time.Time  `json:"detected_at"`
	Status          Status     `json:"status"`
	ResolutionNotes string     `json:"resolution_notes,omitempty"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`
}

// NewRecord wraps a candidate as a fresh reviewable record.
func NewRecord(tenantID string, c Candidate, now time.Time) *Record {
	return &Record{
		Candidate:  c,
		ID:         uuid.New(),
		TenantID:   tenantID,
		DetectedAt: now,
		Status:     StatusNew,
	}
}

// Stats aggregates anomaly counts for reporting.
type Stats struct {
	Total      int            `json:"total"`
	BySeverity map[string]int `json:"by_severity"`
	ByType     map[string]int `json:"by_type"`
	ByStatus   map[string]int `json:"by_status"`
}
