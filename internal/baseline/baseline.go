// Package baseline maintains rolling statistical profiles per correspondent.
// Profiles are recomputed in batch from the event window and read by the
// detector pipeline; an absent baseline means "no expectation", never zero.
package baseline

import (
	"context"
	"errors"
	"time"

	"commsentry/internal/schema"
)

// MinSampleSize is the floor below which a baseline is not materialized.
// Senders with fewer events in the window simply have no baseline.
const MinSampleSize = 3

// Baseline is the rolling statistical profile of one entity.
type Baseline struct {
	EntityType         schema.EntityType `json:"entity_type"`
	EntityID           string            `json:"entity_id"`
	AverageEventsPerDay float64          `json:"average_events_per_day"`
	TypicalSentiment   float64           `json:"typical_sentiment"`
	TypicalHours       []int             `json:"typical_hours"`
	TypicalDays        []int             `json:"typical_days"`
	SampleSize         int               `json:"sample_size"`
	CalculatedAt       time.Time         `json:"calculated_at"`
}

// HasHour reports whether the given hour-of-day was ever observed.
func (b *Baseline) HasHour(hour int) bool {
	for _, h := range b.TypicalHours {
		if h == hour {
			return true
		}
	}
	return false
}

// HasDay reports whether the given day-of-week was ever observed.
func (b *Baseline) HasDay(day int) bool {
	for _, d := range b.TypicalDays {
		if d == day {
			return true
		}
	}
	return false
}

// ErrNotFound indicates no baseline exists for the requested entity.
var ErrNotFound = errors.New("baseline: not found")

// Store reads and writes baselines keyed by (tenant, entityType, entityID).
// Put is an idempotent upsert; Get returns ErrNotFound for absent entities.
type Store interface {
	Get(ctx context.Context, tenantID string, entityType schema.EntityType, entityID string) (*Baseline, error)
	Put(ctx context.Context, tenantID string, b *Baseline) error
	All(ctx context.Context, tenantID string) (map[string]*Baseline, error)
}

// Key builds the canonical lookup key for an entity. Detectors construct
// the same key used at recompute time, so both sides normalize identically.
func Key(entityType schema.EntityType, entityID string) string {
	return string(entityType) + ":" + schema.NormalizeIdentity(entityID)
}
