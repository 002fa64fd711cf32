package detect

import (
	"fmt"
	"math"

	"commsentry/internal/anomaly"
	"commsentry/internal/baseline"
	"commsentry/internal/schema"
)

// FrequencySpikeDetector flags senders whose recent message volume is a
// multiple of their expected volume for the same span.
type FrequencySpikeDetector struct {
	cfg Config
}

// NewFrequencySpikeDetector creates a frequency detector with the given
// tuning.
func NewFrequencySpikeDetector(cfg Config) *FrequencySpikeDetector {
	return &FrequencySpikeDetector{cfg: cfg}
}

func (d *FrequencySpikeDetector) Name() string { return "frequency_spike" }

// Detect compares each sender's recent-window count against the count the
// full window predicts for a span of the same length. The expected count
// is total/historicalDays*recentDays; deviation is the excess relative to
// max(expected, 1) so senders with near-zero history still get a finite
// ratio.
func (d *FrequencySpikeDetector) Detect(in Input) []anomaly.Candidate {
	bySender, senders := groupBySender(in.Events)

	var out []anomaly.Candidate
	for _, sender := range senders {
		events := bySender[sender]

		var recent []*schema.CommunicationEvent
		for _, event := range events {
			if !event.Timestamp.Before(in.RecentWindowStart) {
				recent = append(recent, event)
			}
		}

		total := len(events)
		recentCount := len(recent)
		expected := float64(total) / float64(d.cfg.HistoricalWindowDays) * float64(d.cfg.RecentWindowDays)
		deviation := (float64(recentCount) - expected) / math.Max(expected, 1)

		if recentCount <= d.cfg.FrequencyMinRecent || deviation <= d.cfg.FrequencyMinRatio {
			continue
		}

		severity := anomaly.SeverityLow
		switch {
		case deviation > 5:
			severity = anomaly.SeverityHigh
		case deviation > 3:
			severity = anomaly.SeverityMedium
		}

		c := anomaly.Candidate{
			AnomalyType: anomaly.TypeFrequencySpike,
			Severity:    severity,
			Title:       fmt.Sprintf("Communication spike from %s", sender),
			Description: fmt.Sprintf("%d messages in the last %d days against an expected %.1f (%.1fx above normal)",
				recentCount, d.cfg.RecentWindowDays, expected, deviation),
			RelatedEventIDs: eventIDs(recent),
			PatternData: map[string]any{
				"sender":       sender,
				"recent_count": recentCount,
				"total_count":  total,
				"deviation":    deviation,
			},
			DeviationScore:  deviation * 20,
			Confidence:      math.Min(70+float64(recentCount)*2, 95),
			TimeWindowStart: in.RecentWindowStart,
			TimeWindowEnd:   in.Now,
		}

		if b, ok := in.Baselines[baseline.Key(schema.EntitySender, sender)]; ok {
			c.BaselineData = map[string]any{
				"average_events_per_day": b.AverageEventsPerDay,
				"sample_size":            b.SampleSize,
			}
		}

		out = append(out, c)
	}

	return out
}
