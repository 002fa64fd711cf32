package detect

import (
	"fmt"
	"math"

	"commsentry/internal/anomaly"
	"commsentry/internal/baseline"
	"commsentry/internal/schema"
)

// SentimentShiftDetector flags senders whose recent average sentiment has
// dropped sharply against their own earlier average. Only negative shifts
// are flagged; improving sentiment is never an anomaly.
type SentimentShiftDetector struct {
	cfg Config
}

// NewSentimentShiftDetector creates a sentiment detector with the given
// tuning.
func NewSentimentShiftDetector(cfg Config) *SentimentShiftDetector {
	return &SentimentShiftDetector{cfg: cfg}
}

func (d *SentimentShiftDetector) Name() string { return "sentiment_shift" }

// Detect splits each sender's sentiment-bearing events at the recent
// window boundary and compares the two means. Senders without enough
// samples on both sides are skipped so a single angry message cannot
// dominate a thin history.
func (d *SentimentShiftDetector) Detect(in Input) []anomaly.Candidate {
	bySender, senders := groupBySender(in.Events)

	var out []anomaly.Candidate
	for _, sender := range senders {
		var oldSum, recentSum float64
		var oldCount, recentCount int
		var recent []*schema.CommunicationEvent

		for _, event := range bySender[sender] {
			if !event.HasSentiment() {
				continue
			}
			if event.Timestamp.Before(in.RecentWindowStart) {
				oldSum += event.SentimentValue()
				oldCount++
			} else {
				recentSum += event.SentimentValue()
				recentCount++
				recent = append(recent, event)
			}
		}

		if oldCount < d.cfg.SentimentMinOld || recentCount < d.cfg.SentimentMinRecent {
			continue
		}

		oldAvg := oldSum / float64(oldCount)
		recentAvg := recentSum / float64(recentCount)
		shift := recentAvg - oldAvg

		if shift >= d.cfg.SentimentShift {
			continue
		}

		severity := anomaly.SeverityMedium
		if shift < -0.5 {
			severity = anomaly.SeverityHigh
		}

		c := anomaly.Candidate{
			AnomalyType: anomaly.TypeSentimentShift,
			Severity:    severity,
			Title:       fmt.Sprintf("Sentiment drop from %s", sender),
			Description: fmt.Sprintf("Average sentiment moved from %.2f to %.2f over the last %d days",
				oldAvg, recentAvg, d.cfg.RecentWindowDays),
			RelatedEventIDs: eventIDs(recent),
			PatternData: map[string]any{
				"sender":       sender,
				"old_average":  oldAvg,
				"new_average":  recentAvg,
				"shift":        shift,
				"old_count":    oldCount,
				"recent_count": recentCount,
			},
			DeviationScore:  math.Abs(shift) * 100,
			Confidence:      math.Min(60+float64(recentCount)*5, 90),
			TimeWindowStart: in.RecentWindowStart,
			TimeWindowEnd:   in.Now,
		}

		if b, ok := in.Baselines[baseline.Key(schema.EntitySender, sender)]; ok {
			c.BaselineData = map[string]any{
				"typical_sentiment": b.TypicalSentiment,
				"sample_size":       b.SampleSize,
			}
		}

		out = append(out, c)
	}

	return out
}
