// Package schema defines the canonical record types consumed by the
// CommSentry detection engine. All communication records are normalized to
// this structure before analysis.
package schema

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// CommunicationEvent represents a single communication record within the
// analysis window. Events are immutable inputs sourced externally per run.
type CommunicationEvent struct {
	// Required fields
	EventID   uuid.UUID `json:"event_id" validate:"required"`
	Sender    string    `json:"sender" validate:"required,max=256"`
	Recipient string    `json:"recipient" validate:"required,max=256"`
	Timestamp time.Time `json:"timestamp" validate:"required"`

	// Optional fields
	Subject   string   `json:"subject,omitempty" validate:"max=1024"`
	Sentiment *float64 `json:"sentiment,omitempty" validate:"omitempty,min=-1,max=1"`

	// Internal fields (set by system)
	TenantID string `json:"tenant_id"`
}

// HasSentiment reports whether the event carries a sentiment score.
func (e *CommunicationEvent) HasSentiment() bool {
	return e.Sentiment != nil
}

// SentimentValue returns the sentiment score, or 0 when absent.
func (e *CommunicationEvent) SentimentValue() float64 {
	if e.Sentiment == nil {
		return 0
	}
	return *e.Sentiment
}

// TrustRecord holds per-correspondent trust metadata sourced from the
// actor registry. Consumed read-only by the behavior-change detector.
type TrustRecord struct {
	Correspondent  string `json:"correspondent" validate:"required,max=256"`
	TrustScore     int    `json:"trust_score" validate:"min=0,max=100"`
	Contradictions int    `json:"contradictions" validate:"min=0"`
	BrokenPromises int    `json:"broken_promises" validate:"min=0"`
	TenantID       string `json:"tenant_id"`
}

// EntityType identifies the subject kind of a behavior baseline.
// Currently only senders are profiled; the type exists so future entity
// kinds (recipients, threads) can share the same keying scheme.
type EntityType string

const (
	EntitySender EntityType = "sender"
)

// IsValid checks if the entity type is a known value.
func (t EntityType) IsValid() bool {
	return t == EntitySender
}

// NormalizeIdentity canonicalizes a correspondent identity string.
// Baseline keys and detector grouping both depend on this form, so every
// read path must apply it before comparison.
func NormalizeIdentity(identity string) string {
	return strings.ToLower(strings.TrimSpace(identity))
}
