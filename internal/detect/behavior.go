package detect

import (
	"fmt"
	"math"
	"sort"
	"time"

	"commsentry/internal/anomaly"
	"commsentry/internal/schema"
)

// BehaviorChangeDetector flags correspondents whose trust profile has
// degraded and senders with no prior history ramping up quickly.
type BehaviorChangeDetector struct {
	cfg Config
}

// NewBehaviorChangeDetector creates a behavior detector with the given
// tuning.
func NewBehaviorChangeDetector(cfg Config) *BehaviorChangeDetector {
	return &BehaviorChangeDetector{cfg: cfg}
}

func (d *BehaviorChangeDetector) Name() string { return "behavior_change" }

// Detect runs two independent checks. Trust degradation requires both a
// low score and concrete incidents (contradictions or broken promises), so
// an unpopular but consistent correspondent is not flagged. The new-sender
// check catches accounts whose first message is inside the ramp window and
// which are already sending in volume.
func (d *BehaviorChangeDetector) Detect(in Input) []anomaly.Candidate {
	var out []anomaly.Candidate
	out = append(out, d.trustDegradation(in)...)
	out = append(out, d.newSenders(in)...)
	return out
}

func (d *BehaviorChangeDetector) trustDegradation(in Input) []anomaly.Candidate {
	records := make([]*schema.TrustRecord, len(in.TrustRecords))
	copy(records, in.TrustRecords)
	sort.Slice(records, func(i, j int) bool {
		return records[i].Correspondent < records[j].Correspondent
	})

	var out []anomaly.Candidate
	for _, r := range records {
		if r.TrustScore >= d.cfg.TrustScoreFloor {
			continue
		}
		if r.Contradictions <= 2 && r.BrokenPromises <= 1 {
			continue
		}

		severity := anomaly.SeverityHigh
		if r.TrustScore < 20 {
			severity = anomaly.SeverityCritical
		}

		out = append(out, anomaly.Candidate{
			AnomalyType: anomaly.TypeBehaviorChange,
			Severity:    severity,
			Title:       fmt.Sprintf("Degraded trust profile for %s", r.Correspondent),
			Description: fmt.Sprintf("Trust score %d with %d contradictions and %d broken promises",
				r.TrustScore, r.Contradictions, r.BrokenPromises),
			PatternData: map[string]any{
				"pattern":         "trust_degradation",
				"correspondent":   schema.NormalizeIdentity(r.Correspondent),
				"trust_score":     r.TrustScore,
				"contradictions":  r.Contradictions,
				"broken_promises": r.BrokenPromises,
			},
			DeviationScore:  float64(100 - r.TrustScore),
			Confidence:      85,
			TimeWindowStart: in.RecentWindowStart,
			TimeWindowEnd:   in.Now,
		})
	}

	return out
}

func (d *BehaviorChangeDetector) newSenders(in Input) []anomaly.Candidate {
	bySender, senders := groupBySender(in.Events)

	var out []anomaly.Candidate
	for _, sender := range senders {
		events := bySender[sender]

		firstSeen := events[0].Timestamp
		for _, event := range events[1:] {
			if event.Timestamp.Before(firstSeen) {
				firstSeen = event.Timestamp
			}
		}

		age := in.Now.Sub(firstSeen)
		count := len(events)
		if age >= time.Duration(d.cfg.NewSenderMaxAgeDays)*24*time.Hour || count < d.cfg.NewSenderMinEvents {
			continue
		}

		severity := anomaly.SeverityMedium
		if count > 10 {
			severity = anomaly.SeverityHigh
		}

		out = append(out, anomaly.Candidate{
			AnomalyType: anomaly.TypeBehaviorChange,
			Severity:    severity,
			Title:       fmt.Sprintf("New sender %s ramping up", sender),
			Description: fmt.Sprintf("First seen %.1f days ago, already %d messages",
				age.Hours()/24, count),
			RelatedEventIDs: eventIDs(events),
			PatternData: map[string]any{
				"pattern":     "new_sender",
				"sender":      sender,
				"first_seen":  firstSeen,
				"event_count": count,
			},
			DeviationScore:  math.Min(float64(count)*10, 100),
			Confidence:      75,
			TimeWindowStart: firstSeen,
			TimeWindowEnd:   in.Now,
		})
	}

	return out
}
