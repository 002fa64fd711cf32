package detect

import (
	"math"
	"testing"
	"time"

	"commsentry/internal/anomaly"
	"commsentry/internal/schema"
)

// sentimentFixture builds oldVals before the recent boundary and recentVals
// after it, all for one sender.
func sentimentFixture(sender string, oldVals, recentVals []float64) []*schema.CommunicationEvent {
	var events []*schema.CommunicationEvent
	for i, v := range oldVals {
		ts := testNow.AddDate(0, 0, -14).Add(time.Duration(i) * time.Hour)
		events = append(events, sentimentEvent(sender, ts, v))
	}
	for i, v := range recentVals {
		ts := testNow.AddDate(0, 0, -2).Add(time.Duration(i) * time.Hour)
		events = append(events, sentimentEvent(sender, ts, v))
	}
	return events
}

func TestSentimentShift_NegativeShiftFlagged(t *testing.T) {
	d := NewSentimentShiftDetector(DefaultConfig())

	// Old mean 0.5, recent mean -0.1: shift -0.6.
	events := sentimentFixture("alice@x.com",
		[]float64{0.4, 0.5, 0.6},
		[]float64{-0.2, 0.0})

	got := d.Detect(testInput(events))
	if len(got) != 1 {
		t.Fatalf("Detect() = %d candidates, want 1", len(got))
	}

	c := got[0]
	if c.AnomalyType != anomaly.TypeSentimentShift {
		t.Errorf("AnomalyType = %s", c.AnomalyType)
	}
	if c.Severity != anomaly.SeverityHigh {
		t.Errorf("Severity = %s, want high for shift < -0.5", c.Severity)
	}
	if math.Abs(c.DeviationScore-60) > 1e-9 {
		t.Errorf("DeviationScore = %v, want 60 (|shift| * 100)", c.DeviationScore)
	}
	if c.Confidence != 70 {
		t.Errorf("Confidence = %v, want 70 (60 + 2*5)", c.Confidence)
	}
	// Only the recent sentiment-bearing events are referenced.
	if len(c.RelatedEventIDs) != 2 {
		t.Errorf("RelatedEventIDs = %d, want 2", len(c.RelatedEventIDs))
	}
}

func TestSentimentShift_ExactThresholdNotFlagged(t *testing.T) {
	d := NewSentimentShiftDetector(DefaultConfig())

	// Shift of exactly -0.3 stays under the strict comparison.
	events := sentimentFixture("bob@x.com",
		[]float64{0.3, 0.3, 0.3},
		[]float64{0.0, 0.0})

	if got := d.Detect(testInput(events)); len(got) != 0 {
		t.Fatalf("Detect() = %d candidates, want 0 at the exact threshold", len(got))
	}
}

func TestSentimentShift_ModerateShiftMediumSeverity(t *testing.T) {
	d := NewSentimentShiftDetector(DefaultConfig())

	// Shift -0.4: flagged, but not past the high-severity bound.
	events := sentimentFixture("carol@x.com",
		[]float64{0.2, 0.2, 0.2},
		[]float64{-0.2, -0.2})

	got := d.Detect(testInput(events))
	if len(got) != 1 {
		t.Fatalf("Detect() = %d candidates, want 1", len(got))
	}
	if got[0].Severity != anomaly.SeverityMedium {
		t.Errorf("Severity = %s, want medium", got[0].Severity)
	}
}

func TestSentimentShift_PositiveShiftIgnored(t *testing.T) {
	d := NewSentimentShiftDetector(DefaultConfig())

	events := sentimentFixture("dave@x.com",
		[]float64{-0.5, -0.5, -0.5},
		[]float64{0.5, 0.5})

	if got := d.Detect(testInput(events)); len(got) != 0 {
		t.Fatalf("Detect() = %d candidates, want 0 for improving sentiment", len(got))
	}
}

func TestSentimentShift_InsufficientSamples(t *testing.T) {
	d := NewSentimentShiftDetector(DefaultConfig())

	tests := []struct {
		name       string
		oldVals    []float64
		recentVals []float64
	}{
		{"two old samples", []float64{0.5, 0.5}, []float64{-0.5, -0.5}},
		{"one recent sample", []float64{0.5, 0.5, 0.5}, []float64{-0.5}},
		{"no samples", nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events := sentimentFixture("eve@x.com", tt.oldVals, tt.recentVals)
			if got := d.Detect(testInput(events)); len(got) != 0 {
				t.Fatalf("Detect() = %d candidates, want 0", len(got))
			}
		})
	}
}

func TestSentimentShift_EventsWithoutSentimentExcluded(t *testing.T) {
	d := NewSentimentShiftDetector(DefaultConfig())

	events := sentimentFixture("frank@x.com",
		[]float64{0.5, 0.5, 0.5},
		[]float64{-0.2, -0.2})
	// Sentiment-free events on both sides must not move either mean.
	events = append(events,
		event("frank@x.com", testNow.AddDate(0, 0, -14)),
		event("frank@x.com", testNow.AddDate(0, 0, -1)),
	)

	got := d.Detect(testInput(events))
	if len(got) != 1 {
		t.Fatalf("Detect() = %d candidates, want 1", len(got))
	}
	if math.Abs(got[0].DeviationScore-70) > 1e-9 {
		t.Errorf("DeviationScore = %v, want 70 (shift -0.7 unchanged by bare events)", got[0].DeviationScore)
	}
}
