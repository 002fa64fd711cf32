package storage

import (
	"context"
	"time"

	"commsentry/internal/schema"
)

// MaxWindowEvents bounds how many events a single detection run reads.
// The newest events win when the window holds more.
const MaxWindowEvents = 500

// EventStore reads and writes communication events.
type EventStore struct {
	client *ClickHouseClient
}

// NewEventStore creates an event store.
func NewEventStore(client *ClickHouseClient) *EventStore {
	return &EventStore{client: client}
}

// InsertBatch writes a batch of events in one insert.
func (s *EventStore) InsertBatch(ctx context.Context, events []*schema.CommunicationEvent) error {
	if len(events) == 0 {
		return nil
	}

	batch, err := s.client.PrepareBatch(ctx, `
		INSERT INTO communication_events (
			event_id, tenant_id, sender, recipient, subject,
			sentiment, has_sentiment, timestamp
		)
	`)
	if err != nil {
		return WrapBatchError("InsertBatch", "communication_events", err)
	}

	for _, event := range events {
		tenantID := event.TenantID
		if tenantID == "" {
			tenantID = "default"
		}

		hasSentiment := uint8(0)
		if event.HasSentiment() {
			hasSentiment = 1
		}

		if err := batch.Append(
			event.EventID,
			tenantID,
			event.Sender,
			event.Recipient,
			event.Subject,
			event.SentimentValue(),
			hasSentiment,
			event.Timestamp,
		); err != nil {
			return WrapBatchError("InsertBatch", "communication_events", err)
		}
	}

	if err := batch.Send(); err != nil {
		return WrapBatchError("InsertBatch", "communication_events", err)
	}

	return nil
}

// Window returns events at or after since, newest first, capped at limit.
// A limit of zero or less falls back to MaxWindowEvents.
func (s *EventStore) Window(ctx context.Context, tenantID string, since time.Time, limit int) ([]*schema.CommunicationEvent, error) {
	if limit <= 0 {
		limit = MaxWindowEvents
	}

	rows, err := s.client.Query(ctx, `
		SELECT event_id, tenant_id, sender, recipient, subject,
		       sentiment, has_sentiment, timestamp
		FROM communication_events
		WHERE tenant_id = ? AND timestamp >= ?
		ORDER BY timestamp DESC
		LIMIT ?
	`, tenantID, since, uint64(limit))
	if err != nil {
		return nil, WrapQueryError("Window", "communication_events", err)
	}
	defer rows.Close()

	var events []*schema.CommunicationEvent
	for rows.Next() {
		var (
			event        schema.CommunicationEvent
			sentiment    float64
			hasSentiment uint8
		)
		if err := rows.Scan(
			&event.EventID,
			&event.TenantID,
			&event.Sender,
			&event.Recipient,
			&event.Subject,
			&sentiment,
			&hasSentiment,
			&event.Timestamp,
		); err != nil {
			return nil, WrapQueryError("Window", "communication_events", err)
		}
		if hasSentiment == 1 {
			event.Sentiment = &sentiment
		}
		events = append(events, &event)
	}
	if err := rows.Err(); err != nil {
		return nil, WrapQueryError("Window", "communication_events", err)
	}

	return events, nil
}

// TrustStore reads and writes per-correspondent trust records.
type TrustStore struct {
	client *ClickHouseClient
}

// NewTrustStore creates a trust store.
func NewTrustStore(client *ClickHouseClient) *TrustStore {
	return &TrustStore{client: client}
}

// List returns all trust records for a tenant.
func (s *TrustStore) List(ctx context.Context, tenantID string) ([]*schema.TrustRecord, error) {
	rows, err := s.client.Query(ctx, `
		SELECT correspondent, trust_score, contradictions, broken_promises
		FROM trust_records FINAL
		WHERE tenant_id = ?
		ORDER BY correspondent
	`, tenantID)
	if err != nil {
		return nil, WrapQueryError("List", "trust_records", err)
	}
	defer rows.Close()

	var records []*schema.TrustRecord
	for rows.Next() {
		var (
			record         schema.TrustRecord
			trustScore     uint8
			contradictions uint32
			promises       uint32
		)
		if err := rows.Scan(&record.Correspondent, &trustScore, &contradictions, &promises); err != nil {
			return nil, WrapQueryError("List", "trust_records", err)
		}
		record.TrustScore = int(trustScore)
		record.Contradictions = int(contradictions)
		record.BrokenPromises = int(promises)
		record.TenantID = tenantID
		records = append(records, &record)
	}
	if err := rows.Err(); err != nil {
		return nil, WrapQueryError("List", "trust_records", err)
	}

	return records, nil
}

// Upsert writes trust records; the newest version per correspondent wins.
func (s *TrustStore) Upsert(ctx context.Context, tenantID string, records []*schema.TrustRecord) error {
	if len(records) == 0 {
		return nil
	}

	batch, err := s.client.PrepareBatch(ctx, `
		INSERT INTO trust_records (
			tenant_id, correspondent, trust_score, contradictions,
			broken_promises, updated_at
		)
	`)
	if err != nil {
		return WrapBatchError("Upsert", "trust_records", err)
	}

	now := time.Now().UTC()
	for _, record := range records {
		if err := batch.Append(
			tenantID,
			schema.NormalizeIdentity(record.Correspondent),
			uint8(record.TrustScore),
			uint32(record.Contradictions),
			uint32(record.BrokenPromises),
			now,
		); err != nil {
			return WrapBatchError("Upsert", "trust_records", err)
		}
	}

	if err := batch.Send(); err != nil {
		return WrapBatchError("Upsert", "trust_records", err)
	}

	return nil
}
