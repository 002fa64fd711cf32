package detect

import (
	"fmt"
	"math"
	"time"

	"commsentry/internal/anomaly"
	"commsentry/internal/schema"
)

// TimingAnomalyDetector flags clusters of recent activity at unusual times:
// late-night hours and weekends.
type TimingAnomalyDetector struct {
	cfg Config
}

// NewTimingAnomalyDetector creates a timing detector with the given tuning.
func NewTimingAnomalyDetector(cfg Config) *TimingAnomalyDetector {
	return &TimingAnomalyDetector{cfg: cfg}
}

func (d *TimingAnomalyDetector) Name() string { return "timing_anomaly" }

func (d *TimingAnomalyDetector) offHours(t time.Time) bool {
	hour := t.Hour()
	return hour < d.cfg.OffHoursEnd || hour >= d.cfg.OffHoursStart
}

func weekend(t time.Time) bool {
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return true
	}
	return false
}

// Detect scans the recent window for off-hours and weekend clusters. The
// two checks are independent; a weekend 2am burst can emit both.
func (d *TimingAnomalyDetector) Detect(in Input) []anomaly.Candidate {
	var offHours, weekends []*schema.CommunicationEvent
	for _, event := range in.Events {
		if event.Timestamp.Before(in.RecentWindowStart) {
			continue
		}
		if d.offHours(event.Timestamp) {
			offHours = append(offHours, event)
		}
		if weekend(event.Timestamp) {
			weekends = append(weekends, event)
		}
	}

	var out []anomaly.Candidate

	if count := len(offHours); count >= d.cfg.OffHoursMinCount {
		severity := anomaly.SeverityMedium
		if count > 10 {
			severity = anomaly.SeverityHigh
		}
		out = append(out, anomaly.Candidate{
			AnomalyType: anomaly.TypeTimingAnomaly,
			Severity:    severity,
			Title:       "Off-hours communication cluster",
			Description: fmt.Sprintf("%d messages between %02d:00 and %02d:00 in the last %d days",
				count, d.cfg.OffHoursStart, d.cfg.OffHoursEnd, d.cfg.RecentWindowDays),
			RelatedEventIDs: eventIDs(offHours),
			PatternData: map[string]any{
				"pattern":         "off_hours",
				"off_hours_count": count,
			},
			DeviationScore:  math.Min(float64(count)*10, 100),
			Confidence:      75,
			TimeWindowStart: in.RecentWindowStart,
			TimeWindowEnd:   in.Now,
		})
	}

	if count := len(weekends); count >= d.cfg.WeekendMinCount {
		severity := anomaly.SeverityMedium
		if count > 15 {
			severity = anomaly.SeverityHigh
		}
		out = append(out, anomaly.Candidate{
			AnomalyType: anomaly.TypeTimingAnomaly,
			Severity:    severity,
			Title:       "Weekend communication cluster",
			Description: fmt.Sprintf("%d messages on weekends in the last %d days",
				count, d.cfg.RecentWindowDays),
			RelatedEventIDs: eventIDs(weekends),
			PatternData: map[string]any{
				"pattern":       "weekend",
				"weekend_count": count,
			},
			DeviationScore:  math.Min(float64(count)*5, 100),
			Confidence:      70,
			TimeWindowStart: in.RecentWindowStart,
			TimeWindowEnd:   in.Now,
		})
	}

	return out
}
