package baseline

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"commsentry/internal/schema"
)

// Computer recomputes baselines from a full event window and upserts them
// into a Store. A failed write for one entity does not abort the others;
// the recompute reports how many baselines were written.
type Computer struct {
	store      Store
	windowDays int
}

// NewComputer creates a Computer writing to the given store.
// windowDays is the length of the historical window the events cover.
func NewComputer(store Store, windowDays int) *Computer {
	if windowDays <= 0 {
		windowDays = 30
	}
	return &Computer{store: store, windowDays: windowDays}
}

// Recompute groups events by sender and overwrites the baseline for every
// sender with at least MinSampleSize events. Returns the number of
// baselines written.
func (c *Computer) Recompute(ctx context.Context, tenantID string, events []*schema.CommunicationEvent) (int, error) {
	bySender := make(map[string][]*schema.CommunicationEvent)
	for _, event := range events {
		sender := schema.NormalizeIdentity(event.Sender)
		bySender[sender] = append(bySender[sender], event)
	}

	now := time.Now().UTC()
	written := 0

	// Stable iteration keeps logs and partial-failure behavior reproducible.
	senders := make([]string, 0, len(bySender))
	for sender := range bySender {
		senders = append(senders, sender)
	}
	sort.Strings(senders)

	for _, sender := range senders {
		senderEvents := bySender[sender]
		if len(senderEvents) < MinSampleSize {
			continue
		}

		b := compute(sender, senderEvents, c.windowDays, now)
		if err := c.store.Put(ctx, tenantID, b); err != nil {
			slog.Warn("baseline write failed, continuing",
				"tenant_id", tenantID,
				"entity_id", sender,
				"error", err,
			)
			continue
		}
		written++
	}

	slog.Info("baselines recomputed",
		"tenant_id", tenantID,
		"senders", len(bySender),
		"written", written,
	)

	return written, nil
}

// compute derives one sender's profile from its events.
func compute(sender string, events []*schema.CommunicationEvent, windowDays int, now time.Time) *Baseline {
	hourSet := make(map[int]bool)
	daySet := make(map[int]bool)

	var sentimentSum float64
	sentimentCount := 0

	for _, event := range events {
		ts := event.Timestamp
		hourSet[ts.Hour()] = true
		daySet[int(ts.Weekday())] = true

		if event.HasSentiment() {
			sentimentSum += event.SentimentValue()
			sentimentCount++
		}
	}

	typicalSentiment := 0.0
	if sentimentCount > 0 {
		typicalSentiment = sentimentSum / float64(sentimentCount)
	}

	return &Baseline{
		EntityType:          schema.EntitySender,
		EntityID:            sender,
		AverageEventsPerDay: float64(len(events)) / float64(windowDays),
		TypicalSentiment:    typicalSentiment,
		TypicalHours:        sortedKeys(hourSet),
		TypicalDays:         sortedKeys(daySet),
		SampleSize:          len(events),
		CalculatedAt:        now,
	}
}

func sortedKeys(set map[int]bool) []int {
	keys := make([]int, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
