// Package detect implements the anomaly detector pipeline. Every detector
// is a pure function of an immutable input snapshot: no shared state, safe
// to run in any order or in parallel, and stable output order for a given
// input.
package detect

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"commsentry/internal/anomaly"
	"commsentry/internal/baseline"
	"commsentry/internal/schema"
)

// Config holds detector tuning parameters. The defaults encode the tuned
// sensitivity of the reference behavior; tests pin the boundaries.
type Config struct {
	HistoricalWindowDays int     `yaml:"historical_window_days"`
	RecentWindowDays     int     `yaml:"recent_window_days"`
	FrequencyMinRecent   int     `yaml:"frequency_min_recent"`
	FrequencyMinRatio    float64 `yaml:"frequency_min_ratio"`
	OffHoursStart        int     `yaml:"off_hours_start"` // hour >= this is off-hours
	OffHoursEnd          int     `yaml:"off_hours_end"`   // hour < this is off-hours
	OffHoursMinCount     int     `yaml:"off_hours_min_count"`
	WeekendMinCount      int     `yaml:"weekend_min_count"`
	SentimentMinOld      int     `yaml:"sentiment_min_old"`
	SentimentMinRecent   int     `yaml:"sentiment_min_recent"`
	SentimentShift       float64 `yaml:"sentiment_shift"` // flag when shift < this (negative)
	TrustScoreFloor      int     `yaml:"trust_score_floor"`
	NewSenderMaxAgeDays  int     `yaml:"new_sender_max_age_days"`
	NewSenderMinEvents   int     `yaml:"new_sender_min_events"`
}

// DefaultConfig returns the reference tuning.
func DefaultConfig() Config {
	return Config{
		HistoricalWindowDays: 30,
		RecentWindowDays:     7,
		FrequencyMinRecent:   5,
		FrequencyMinRatio:    2,
		OffHoursStart:        22,
		OffHoursEnd:          7,
		OffHoursMinCount:     3,
		WeekendMinCount:      5,
		SentimentMinOld:      3,
		SentimentMinRecent:   2,
		SentimentShift:       -0.3,
		TrustScoreFloor:      30,
		NewSenderMaxAgeDays:  7,
		NewSenderMinEvents:   5,
	}
}

// Input is the immutable snapshot all detectors scan. Baselines are keyed
// by baseline.Key; an absent entry means no expectation for that entity.
type Input struct {
	Events            []*schema.CommunicationEvent
	Baselines         map[string]*baseline.Baseline
	TrustRecords      []*schema.TrustRecord
	RecentWindowStart time.Time
	Now               time.Time
}

// Detector scans the snapshot and emits zero or more anomaly candidates.
type Detector interface {
	Name() string
	Detect(in Input) []anomaly.Candidate
}

// Pipeline runs a fixed set of detectors against one snapshot.
type Pipeline struct {
	detectors []Detector
}

// NewPipeline creates the standard four-detector pipeline.
func NewPipeline(cfg Config) *Pipeline {
	return &Pipeline{
		detectors: []Detector{
			NewFrequencySpikeDetector(cfg),
			NewTimingAnomalyDetector(cfg),
			NewSentimentShiftDetector(cfg),
			NewBehaviorChangeDetector(cfg),
		},
	}
}

// Detectors returns the pipeline's detectors in execution order.
func (p *Pipeline) Detectors() []Detector {
	return p.detectors
}

// Run executes all detectors in parallel and concatenates their output in
// fixed detector order. Each candidate is normalized (score clamping,
// related-event truncation) before it leaves the pipeline.
func (p *Pipeline) Run(in Input) []anomaly.Candidate {
	results := make([][]anomaly.Candidate, len(p.detectors))

	var wg sync.WaitGroup
	for i, d := range p.detectors {
		wg.Add(1)
		go func(i int, d Detector) {
			defer wg.Done()
			results[i] = d.Detect(in)
		}(i, d)
	}
	wg.Wait()

	var candidates []anomaly.Candidate
	for _, batch := range results {
		candidates = append(candidates, batch...)
	}

	for i := range candidates {
		candidates[i].Normalize()
	}

	return candidates
}

// groupBySender buckets events by normalized sender identity and returns
// the sender keys in sorted order for deterministic iteration.
func groupBySender(events []*schema.CommunicationEvent) (map[string][]*schema.CommunicationEvent, []string) {
	bySender := make(map[string][]*schema.CommunicationEvent)
	for _, event := range events {
		sender := schema.NormalizeIdentity(event.Sender)
		bySender[sender] = append(bySender[sender], event)
	}

	senders := make([]string, 0, len(bySender))
	for sender := range bySender {
		senders = append(senders, sender)
	}
	sort.Strings(senders)

	return bySender, senders
}

// eventIDs extracts event ids ordered newest first. The candidate
// normalization pass caps the slice at the storage bound.
func eventIDs(events []*schema.CommunicationEvent) []uuid.UUID {
	sorted := make([]*schema.CommunicationEvent, len(events))
	copy(sorted, events)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.After(sorted[j].Timestamp)
	})

	ids := make([]uuid.UUID, 0, len(sorted))
	for _, event := range sorted {
		ids = append(ids, event.EventID)
	}
	return ids
}
