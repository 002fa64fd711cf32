package storage

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"commsentry/internal/anomaly"
)

// AnomalyStore persists detected anomalies and their review state.
type AnomalyStore struct {
	client *ClickHouseClient
}

// NewAnomalyStore creates an anomaly store.
func NewAnomalyStore(client *ClickHouseClient) *AnomalyStore {
	return &AnomalyStore{client: client}
}

// ListFilter narrows List results. Zero values mean no filtering.
type ListFilter struct {
	Status   anomaly.Status
	Type     anomaly.Type
	Severity anomaly.Severity
	Limit    int
	Offset   int
}

const defaultListLimit = 100

// Save persists one anomaly record.
func (s *AnomalyStore) Save(ctx context.Context, rec *anomaly.Record) error {
	return s.insertVersion(ctx, "Save", rec, rec.DetectedAt)
}

// insertVersion writes a full row version; ReplacingMergeTree keeps the
// newest updated_at per id.
func (s *AnomalyStore) insertVersion(ctx context.Context, op string, rec *anomaly.Record, updatedAt time.Time) error {
	patternData, err := json.Marshal(rec.PatternData)
	if err != nil {
		return WrapQueryError(op, "anomalies", err)
	}
	baselineData, err := json.Marshal(rec.BaselineData)
	if err != nil {
		return WrapQueryError(op, "anomalies", err)
	}

	recommendations := rec.AIRecommendations
	if recommendations == nil {
		recommendations = []string{}
	}
	relatedIDs := rec.RelatedEventIDs
	if relatedIDs == nil {
		relatedIDs = []uuid.UUID{}
	}

	err = s.client.Exec(ctx, `
		INSERT INTO anomalies (
			id, tenant_id, anomaly_type, severity, status,
			title, description, related_event_ids,
			pattern_data, baseline_data, deviation_score, confidence,
			time_window_start, time_window_end,
			ai_explanation, ai_recommendations,
			detected_at, resolution_notes, resolved_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.ID,
		rec.TenantID,
		string(rec.AnomalyType),
		string(rec.Severity),
		string(rec.Status),
		rec.Title,
		rec.Description,
		relatedIDs,
		string(patternData),
		string(baselineData),
		rec.DeviationScore,
		rec.Confidence,
		rec.TimeWindowStart,
		rec.TimeWindowEnd,
		rec.AIExplanation,
		recommendations,
		rec.DetectedAt,
		rec.ResolutionNotes,
		rec.ResolvedAt,
		updatedAt,
	)
	if err != nil {
		return WrapQueryError(op, "anomalies", err)
	}
	return nil
}

const anomalyColumns = `
	id, tenant_id, anomaly_type, severity, status,
	title, description, related_event_ids,
	pattern_data, baseline_data, deviation_score, confidence,
	time_window_start, time_window_end,
	ai_explanation, ai_recommendations,
	detected_at, resolution_notes, resolved_at
`

// List returns anomalies for a tenant, newest detections first.
func (s *AnomalyStore) List(ctx context.Context, tenantID string, filter ListFilter) ([]*anomaly.Record, error) {
	conditions := []string{"tenant_id = ?"}
	args := []any{tenantID}

	if filter.Status != "" {
		if !filter.Status.IsValid() {
			return nil, &StorageError{Op: "List", Table: "anomalies", Err: ErrInvalidStatus}
		}
		conditions = append(conditions, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Type != "" {
		conditions = append(conditions, "anomaly_type = ?")
		args = append(args, string(filter.Type))
	}
	if filter.Severity != "" {
		conditions = append(conditions, "severity = ?")
		args = append(args, string(filter.Severity))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	args = append(args, uint64(limit), uint64(filter.Offset))

	query := "SELECT " + anomalyColumns + `
		FROM anomalies FINAL
		WHERE ` + strings.Join(conditions, " AND ") + `
		ORDER BY detected_at DESC, id
		LIMIT ? OFFSET ?`

	rows, err := s.client.Query(ctx, query, args...)
	if err != nil {
		return nil, WrapQueryError("List", "anomalies", err)
	}
	defer rows.Close()

	var records []*anomaly.Record
	for rows.Next() {
		rec, err := scanAnomaly(rows)
		if err != nil {
			return nil, WrapQueryError("List", "anomalies", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, WrapQueryError("List", "anomalies", err)
	}

	return records, nil
}

// Get returns one anomaly by id, or ErrNotFound.
func (s *AnomalyStore) Get(ctx context.Context, tenantID string, id uuid.UUID) (*anomaly.Record, error) {
	rows, err := s.client.Query(ctx, "SELECT "+anomalyColumns+`
		FROM anomalies FINAL
		WHERE tenant_id = ? AND id = ?
	`, tenantID, id)
	if err != nil {
		return nil, WrapQueryError("Get", "anomalies", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, WrapQueryError("Get", "anomalies", err)
		}
		return nil, WrapNotFoundError("Get", "anomalies", id.String())
	}

	rec, err := scanAnomaly(rows)
	if err != nil {
		return nil, WrapQueryError("Get", "anomalies", err)
	}
	return rec, nil
}

// UpdateStatus transitions an anomaly to a new review status and returns
// the updated record. Any transition between known statuses is accepted;
// unknown status values fail with ErrInvalidStatus. Resolution notes
// replace the previous notes when non-empty. Entering resolved or
// false_positive stamps ResolvedAt; leaving them clears it.
func (s *AnomalyStore) UpdateStatus(ctx context.Context, tenantID string, id uuid.UUID, status anomaly.Status, notes string) (*anomaly.Record, error) {
	if !status.IsValid() {
		return nil, &StorageError{Op: "UpdateStatus", Table: "anomalies", Err: ErrInvalidStatus}
	}

	rec, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	rec.Status = status
	if notes != "" {
		rec.ResolutionNotes = notes
	}
	switch status {
	case anomaly.StatusResolved, anomaly.StatusFalsePositive:
		rec.ResolvedAt = &now
	default:
		rec.ResolvedAt = nil
	}

	if err := s.insertVersion(ctx, "UpdateStatus", rec, now); err != nil {
		return nil, err
	}
	return rec, nil
}

// Stats aggregates anomaly counts for a tenant.
func (s *AnomalyStore) Stats(ctx context.Context, tenantID string) (*anomaly.Stats, error) {
	rows, err := s.client.Query(ctx, `
		SELECT severity, anomaly_type, status, count() AS total
		FROM anomalies FINAL
		WHERE tenant_id = ?
		GROUP BY severity, anomaly_type, status
	`, tenantID)
	if err != nil {
		return nil, WrapQueryError("Stats", "anomalies", err)
	}
	defer rows.Close()

	stats := &anomaly.Stats{
		BySeverity: make(map[string]int),
		ByType:     make(map[string]int),
		ByStatus:   make(map[string]int),
	}
	for rows.Next() {
		var severity, anomalyType, status string
		var total uint64
		if err := rows.Scan(&severity, &anomalyType, &status, &total); err != nil {
			return nil, WrapQueryError("Stats", "anomalies", err)
		}
		stats.Total += int(total)
		stats.BySeverity[severity] += int(total)
		stats.ByType[anomalyType] += int(total)
		stats.ByStatus[status] += int(total)
	}
	if err := rows.Err(); err != nil {
		return nil, WrapQueryError("Stats", "anomalies", err)
	}

	return stats, nil
}

// rowScanner is the subset of driver.Rows scanAnomaly needs.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanAnomaly(rows rowScanner) (*anomaly.Record, error) {
	var (
		rec             anomaly.Record
		anomalyType     string
		severity        string
		status          string
		patternData     string
		baselineData    string
		relatedIDs      []uuid.UUID
		recommendations []string
		resolvedAt      *time.Time
	)

	if err := rows.Scan(
		&rec.ID,
		&rec.TenantID,
		&anomalyType,
		&severity,
		&status,
		&rec.Title,
		&rec.Description,
		&relatedIDs,
		&patternData,
		&baselineData,
		&rec.DeviationScore,
		&rec.Confidence,
		&rec.TimeWindowStart,
		&rec.TimeWindowEnd,
		&rec.AIExplanation,
		&recommendations,
		&rec.DetectedAt,
		&rec.ResolutionNotes,
		&resolvedAt,
	); err != nil {
		return nil, err
	}

	rec.AnomalyType = anomaly.Type(anomalyType)
	rec.Severity = anomaly.Severity(severity)
	rec.Status = anomaly.Status(status)
	rec.ResolvedAt = resolvedAt
	if len(relatedIDs) > 0 {
		rec.RelatedEventIDs = relatedIDs
	}
	if len(recommendations) > 0 {
		rec.AIRecommendations = recommendations
	}
	if patternData != "" && patternData != "{}" {
		if err := json.Unmarshal([]byte(patternData), &rec.PatternData); err != nil {
			return nil, err
		}
	}
	if baselineData != "" && baselineData != "{}" {
		if err := json.Unmarshal([]byte(baselineData), &rec.BaselineData); err != nil {
			return nil, err
		}
	}

	return &rec, nil
}
