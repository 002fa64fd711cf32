// Package api exposes the detection engine over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"commsentry/internal/anomaly"
	"commsentry/internal/engine"
	"commsentry/internal/schema"
	"commsentry/internal/storage"
)

// DetectionRunner executes detection runs and baseline maintenance.
type DetectionRunner interface {
	RunDetection(ctx context.Context, tenantID string) (*engine.RunSummary, error)
	RecomputeBaselines(ctx context.Context, tenantID string) (*engine.RecomputeSummary, error)
}

// EventWriter accepts validated event batches.
type EventWriter interface {
	InsertBatch(ctx context.Context, events []*schema.CommunicationEvent) error
}

// AnomalyReader serves the anomaly review workflow.
type AnomalyReader interface {
	List(ctx context.Context, tenantID string, filter storage.ListFilter) ([]*anomaly.Record, error)
	Get(ctx context.Context, tenantID string, id uuid.UUID) (*anomaly.Record, error)
	Stats(ctx context.Context, tenantID string) (*anomaly.Stats, error)
	UpdateStatus(ctx context.Context, tenantID string, id uuid.UUID, status anomaly.Status, notes string) (*anomaly.Record, error)
}

// Handler holds the HTTP surface of the service.
type Handler struct {
	runner    DetectionRunner
	events    EventWriter
	anomalies AnomalyReader
	validator *schema.Validator

	maxPayload int
	maxBatch   int
	startTime  time.Time

	eventsIngested    atomic.Uint64
	runsTotal         atomic.Uint64
	anomaliesDetected atomic.Uint64
}

// NewHandler creates an API handler.
func NewHandler(runner DetectionRunner, events EventWriter, anomalies AnomalyReader, validator *schema.Validator) *Handler {
	return &Handler{
		runner:     runner,
		events:     events,
		anomalies:  anomalies,
		validator:  validator,
		maxPayload: 10 * 1024 * 1024,
		maxBatch:   1000,
		startTime:  time.Now(),
	}
}

// Routes registers all endpoints on a fresh mux.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/events", h.handleIngest)
	mux.HandleFunc("POST /v1/detection/run", h.handleRunDetection)
	mux.HandleFunc("POST /v1/baselines/recompute", h.handleRecompute)
	mux.HandleFunc("GET /v1/anomalies", h.handleListAnomalies)
	mux.HandleFunc("GET /v1/anomalies/stats", h.handleStats)
	mux.HandleFunc("GET /v1/anomalies/{id}", h.handleGetAnomaly)
	mux.HandleFunc("POST /v1/anomalies/{id}/status", h.handleUpdateStatus)
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /metrics", h.handleMetrics)
	return mux
}

func tenantID(r *http.Request) string {
	if tenant := r.Header.Get("X-Tenant-ID"); tenant != "" {
		return tenant
	}
	return "default"
}

// IngestRequest is the request body for event ingestion.
type IngestRequest struct {
	Events []EventInput `json:"events"`
}

// EventInput is the wire format for one event.
type EventInput struct {
	EventID   *uuid.UUID `json:"event_id,omitempty"`
	Sender    string     `json:"sender"`
	Recipient string     `json:"recipient"`
	Subject   string     `json:"subject,omitempty"`
	Sentiment *float64   `json:"sentiment,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// IngestResponse reports per-batch acceptance.
type IngestResponse struct {
	Success   bool     `json:"success"`
	Accepted  int      `json:"accepted"`
	Rejected  int      `json:"rejected"`
	Errors    []string `json:"errors,omitempty"`
	RequestID string   `json:"request_id"`
}

// handleIngest handles POST /v1/events.
func (h *Handler) handleIngest(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.New().String()

	r.Body = http.MaxBytesReader(w, r.Body, int64(h.maxPayload))
	body, err := io.ReadAll(r.Body)
	if err != nil {
		if err.Error() == "http: request body too large" {
			respondError(w, http.StatusRequestEntityTooLarge, "payload too large", requestID)
			return
		}
		respondError(w, http.StatusBadRequest, "failed to read request body", requestID)
		return
	}

	var req IngestRequest
	if err := json.Unmarshal(body, &req); err != nil {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err), requestID)
		return
	}
	if len(req.Events) == 0 {
		respondError(w, http.StatusBadRequest, "no events provided", requestID)
		return
	}
	if len(req.Events) > h.maxBatch {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("batch size exceeds maximum of %d", h.maxBatch), requestID)
		return
	}

	tenant := tenantID(r)
	var accepted []*schema.CommunicationEvent
	var rejectedErrors []string

	for i, input := range req.Events {
		event := &schema.CommunicationEvent{
			Sender:    schema.NormalizeIdentity(input.Sender),
			Recipient: schema.NormalizeIdentity(input.Recipient),
			Subject:   input.Subject,
			Sentiment: input.Sentiment,
			Timestamp: input.Timestamp,
			TenantID:  tenant,
		}
		if input.EventID != nil {
			event.EventID = *input.EventID
		} else {
			event.EventID = uuid.New()
		}

		if err := h.validator.Validate(event); err != nil {
			rejectedErrors = append(rejectedErrors, fmt.Sprintf("event[%d]: %s", i, err.Error()))
			continue
		}
		accepted = append(accepted, event)
	}

	if len(accepted) > 0 {
		if err := h.events.InsertBatch(r.Context(), accepted); err != nil {
			respondError(w, http.StatusInternalServerError, "failed to store events", requestID)
			return
		}
		h.eventsIngested.Add(uint64(len(accepted)))
	}

	resp := IngestResponse{
		Success:   len(rejectedErrors) == 0,
		Accepted:  len(accepted),
		Rejected:  len(rejectedErrors),
		Errors:    rejectedErrors,
		RequestID: requestID,
	}

	status := http.StatusOK
	if len(accepted) == 0 {
		status = http.StatusBadRequest
	} else if len(rejectedErrors) > 0 {
		status = http.StatusMultiStatus
	}
	respondJSON(w, status, resp)
}

// handleRunDetection handles POST /v1/detection/run.
func (h *Handler) handleRunDetection(w http.ResponseWriter, r *http.Request) {
	summary, err := h.runner.RunDetection(r.Context(), tenantID(r))
	if err != nil {
		if errors.Is(err, engine.ErrUpstreamRead) {
			respondError(w, http.StatusBadGateway, err.Error(), "")
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error(), "")
		return
	}

	h.runsTotal.Add(1)
	h.anomaliesDetected.Add(uint64(summary.AnomaliesDetected))
	respondJSON(w, http.StatusOK, summary)
}

// handleRecompute handles POST /v1/baselines/recompute.
func (h *Handler) handleRecompute(w http.ResponseWriter, r *http.Request) {
	summary, err := h.runner.RecomputeBaselines(r.Context(), tenantID(r))
	if err != nil {
		if errors.Is(err, engine.ErrUpstreamRead) {
			respondError(w, http.StatusBadGateway, err.Error(), "")
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error(), "")
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

// handleListAnomalies handles GET /v1/anomalies.
func (h *Handler) handleListAnomalies(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := storage.ListFilter{
		Status:   anomaly.Status(query.Get("status")),
		Type:     anomaly.Type(query.Get("type")),
		Severity: anomaly.Severity(query.Get("severity")),
	}
	fmt.Sscanf(query.Get("limit"), "%d", &filter.Limit)
	fmt.Sscanf(query.Get("offset"), "%d", &filter.Offset)

	records, err := h.anomalies.List(r.Context(), tenantID(r), filter)
	if err != nil {
		if storage.IsInvalidStatus(err) {
			respondError(w, http.StatusBadRequest, err.Error(), "")
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error(), "")
		return
	}
	if records == nil {
		records = []*anomaly.Record{}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"anomalies": records,
		"count":     len(records),
	})
}

// handleGetAnomaly handles GET /v1/anomalies/{id}.
func (h *Handler) handleGetAnomaly(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid anomaly id", "")
		return
	}

	rec, err := h.anomalies.Get(r.Context(), tenantID(r), id)
	if err != nil {
		if storage.IsNotFound(err) {
			respondError(w, http.StatusNotFound, "anomaly not found", "")
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error(), "")
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

// StatusUpdateRequest is the request body for status transitions.
type StatusUpdateRequest struct {
	Status          string `json:"status"`
	ResolutionNotes string `json:"resolution_notes,omitempty"`
}

// handleUpdateStatus handles POST /v1/anomalies/{id}/status.
func (h *Handler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid anomaly id", "")
		return
	}

	var req StatusUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err), "")
		return
	}

	rec, err := h.anomalies.UpdateStatus(r.Context(), tenantID(r), id, anomaly.Status(req.Status), req.ResolutionNotes)
	if err != nil {
		switch {
		case storage.IsInvalidStatus(err):
			respondError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", req.Status), "")
		case storage.IsNotFound(err):
			respondError(w, http.StatusNotFound, "anomaly not found", "")
		default:
			respondError(w, http.StatusInternalServerError, err.Error(), "")
		}
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

// handleStats handles GET /v1/anomalies/stats.
func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.anomalies.Stats(r.Context(), tenantID(r))
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error(), "")
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

// handleHealth handles GET /health.
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":         "healthy",
		"uptime_seconds": int(time.Since(h.startTime).Seconds()),
	})
}

// handleMetrics handles GET /metrics in Prometheus text format.
func (h *Handler) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	fmt.Fprintf(w, "# HELP commsentry_events_ingested_total Total events accepted for analysis\n")
	fmt.Fprintf(w, "# TYPE commsentry_events_ingested_total counter\n")
	fmt.Fprintf(w, "commsentry_events_ingested_total %d\n\n", h.eventsIngested.Load())

	fmt.Fprintf(w, "# HELP commsentry_detection_runs_total Total completed detection runs\n")
	fmt.Fprintf(w, "# TYPE commsentry_detection_runs_total counter\n")
	fmt.Fprintf(w, "commsentry_detection_runs_total %d\n\n", h.runsTotal.Load())

	fmt.Fprintf(w, "# HELP commsentry_anomalies_detected_total Total anomalies detected across runs\n")
	fmt.Fprintf(w, "# TYPE commsentry_anomalies_detected_total counter\n")
	fmt.Fprintf(w, "commsentry_anomalies_detected_total %d\n\n", h.anomaliesDetected.Load())

	fmt.Fprintf(w, "# HELP commsentry_uptime_seconds Uptime in seconds\n")
	fmt.Fprintf(w, "# TYPE commsentry_uptime_seconds gauge\n")
	fmt.Fprintf(w, "commsentry_uptime_seconds %d\n", int(time.Since(h.startTime).Seconds()))
}

// respondJSON writes a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError writes a JSON error response.
func respondError(w http.ResponseWriter, status int, message, requestID string) {
	resp := map[string]any{
		"success": false,
		"error":   message,
	}
	if requestID != "" {
		resp["request_id"] = requestID
	}
	respondJSON(w, status, resp)
}
