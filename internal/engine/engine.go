// Package engine orchestrates detection runs: it reads the analysis
// window, executes the detector pipeline, enriches the leading candidates,
// and persists the results.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"commsentry/internal/anomaly"
	"commsentry/internal/baseline"
	"commsentry/internal/detect"
	"commsentry/internal/schema"
)

// ErrUpstreamRead indicates the run could not read its inputs. Nothing is
// detected or persisted when this is returned.
var ErrUpstreamRead = errors.New("engine: upstream read failed")

// MinEventsForDetection is the floor below which a run reports rather
// than detects. Too few events make every ratio unstable.
const MinEventsForDetection = 10

// Config holds engine tuning.
type Config struct {
	WindowDays int           `yaml:"window_days"`
	MaxEvents  int           `yaml:"max_events"`
	Detectors  detect.Config `yaml:"detectors"`
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		WindowDays: 30,
		MaxEvents:  500,
		Detectors:  detect.DefaultConfig(),
	}
}

// EventSource reads the event window for a tenant, newest first.
type EventSource interface {
	Window(ctx context.Context, tenantID string, since time.Time, limit int) ([]*schema.CommunicationEvent, error)
}

// TrustSource reads trust records for a tenant.
type TrustSource interface {
	List(ctx context.Context, tenantID string) ([]*schema.TrustRecord, error)
}

// AnomalySink persists one anomaly record.
type AnomalySink interface {
	Save(ctx context.Context, rec *anomaly.Record) error
}

// Enricher annotates candidates in place.
type Enricher interface {
	Enrich(ctx context.Context, candidates []anomaly.Candidate) error
}

// Publisher forwards saved anomalies downstream.
type Publisher interface {
	PublishAnomalies(ctx context.Context, records []*anomaly.Record) error
}

// Archiver stores the run report.
type Archiver interface {
	ArchiveRun(ctx context.Context, report *RunReport) error
}

// RunSummary is the caller-facing result of one detection run.
type RunSummary struct {
	EventsAnalyzed    int            `json:"events_analyzed"`
	AnomaliesDetected int            `json:"anomalies_detected"`
	AnomaliesSaved    int            `json:"anomalies_saved"`
	CountsByType      map[string]int `json:"counts_by_type"`
	Message           string         `json:"message,omitempty"`
}

// RunReport is the archived artifact for one run.
type RunReport struct {
	RunID       uuid.UUID         `json:"run_id"`
	TenantID    string            `json:"tenant_id"`
	StartedAt   time.Time         `json:"started_at"`
	CompletedAt time.Time         `json:"completed_at"`
	Summary     RunSummary        `json:"summary"`
	Anomalies   []*anomaly.Record `json:"anomalies"`
}

// RecomputeSummary is the result of a baseline recompute.
type RecomputeSummary struct {
	EventsAnalyzed   int `json:"events_analyzed"`
	BaselinesWritten int `json:"baselines_written"`
}

// Engine runs detection and baseline maintenance for one deployment.
// Publisher and Archiver are optional; a nil Enricher disables enrichment.
type Engine struct {
	cfg       Config
	events    EventSource
	trust     TrustSource
	baselines baseline.Store
	sink      AnomalySink
	enricher  Enricher
	publisher Publisher
	archiver  Archiver
	pipeline  *detect.Pipeline
	computer  *baseline.Computer
	logger    *slog.Logger
	now       func() time.Time
}

// Options carries the engine's collaborators.
type Options struct {
	Events    EventSource
	Trust     TrustSource
	Baselines baseline.Store
	Sink      AnomalySink
	Enricher  Enricher
	Publisher Publisher
	Archiver  Archiver
	Logger    *slog.Logger
}

// New creates an engine.
func New(cfg Config, opts Options) *Engine {
	if cfg.WindowDays <= 0 {
		cfg.WindowDays = DefaultConfig().WindowDays
	}
	if cfg.MaxEvents <= 0 {
		cfg.MaxEvents = DefaultConfig().MaxEvents
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		cfg:       cfg,
		events:    opts.Events,
		trust:     opts.Trust,
		baselines: opts.Baselines,
		sink:      opts.Sink,
		enricher:  opts.Enricher,
		publisher: opts.Publisher,
		archiver:  opts.Archiver,
		pipeline:  detect.NewPipeline(cfg.Detectors),
		computer:  baseline.NewComputer(opts.Baselines, cfg.WindowDays),
		logger:    logger,
		now:       time.Now,
	}
}

// RunDetection executes one full detection run for a tenant.
//
// Input reads run concurrently and any failure aborts the run with
// ErrUpstreamRead. Below the event floor the run returns an explanatory
// summary and no error. Enrichment and downstream publication failures
// are logged and absorbed; persistence failures skip the failing record
// and continue, reflected in AnomaliesSaved.
func (e *Engine) RunDetection(ctx context.Context, tenantID string) (*RunSummary, error) {
	startedAt := e.now().UTC()
	windowStart := startedAt.AddDate(0, 0, -e.cfg.WindowDays)
	recentStart := startedAt.AddDate(0, 0, -e.cfg.Detectors.RecentWindowDays)

	var (
		wg        sync.WaitGroup
		events    []*schema.CommunicationEvent
		trust     []*schema.TrustRecord
		baselines map[string]*baseline.Baseline

		eventsErr, trustErr, baselinesErr error
	)

	wg.Add(3)
	go func() {
		defer wg.Done()
		events, eventsErr = e.events.Window(ctx, tenantID, windowStart, e.cfg.MaxEvents)
	}()
	go func() {
		defer wg.Done()
		trust, trustErr = e.trust.List(ctx, tenantID)
	}()
	go func() {
		defer wg.Done()
		baselines, baselinesErr = e.baselines.All(ctx, tenantID)
	}()
	wg.Wait()

	for _, err := range []error{eventsErr, trustErr, baselinesErr} {
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUpstreamRead, err)
		}
	}

	summary := &RunSummary{
		EventsAnalyzed: len(events),
		CountsByType:   make(map[string]int),
	}

	if len(events) < MinEventsForDetection {
		summary.Message = fmt.Sprintf("insufficient events for detection: %d of %d required",
			len(events), MinEventsForDetection)
		e.logger.Info("detection skipped",
			"tenant_id", tenantID,
			"events", len(events),
		)
		return summary, nil
	}

	candidates := e.pipeline.Run(detect.Input{
		Events:            events,
		Baselines:         baselines,
		TrustRecords:      trust,
		RecentWindowStart: recentStart,
		Now:               startedAt,
	})
	summary.AnomaliesDetected = len(candidates)

	if e.enricher != nil && len(candidates) > 0 {
		if err := e.enricher.Enrich(ctx, candidates); err != nil {
			e.logger.Warn("enrichment failed, continuing without annotations",
				"tenant_id", tenantID,
				"error", err,
			)
		}
	}

	saved := make([]*anomaly.Record, 0, len(candidates))
	for _, candidate := range candidates {
		rec := anomaly.NewRecord(tenantID, candidate, startedAt)
		if err := e.sink.Save(ctx, rec); err != nil {
			e.logger.Error("failed to persist anomaly",
				"tenant_id", tenantID,
				"anomaly_type", candidate.AnomalyType,
				"error", err,
			)
			continue
		}
		saved = append(saved, rec)
		summary.CountsByType[string(candidate.AnomalyType)]++
	}
	summary.AnomaliesSaved = len(saved)

	if e.publisher != nil && len(saved) > 0 {
		if err := e.publisher.PublishAnomalies(ctx, saved); err != nil {
			e.logger.Warn("failed to publish anomalies", "tenant_id", tenantID, "error", err)
		}
	}

	if e.archiver != nil {
		report := &RunReport{
			RunID:       uuid.New(),
			TenantID:    tenantID,
			StartedAt:   startedAt,
			CompletedAt: e.now().UTC(),
			Summary:     *summary,
			Anomalies:   saved,
		}
		if err := e.archiver.ArchiveRun(ctx, report); err != nil {
			e.logger.Warn("failed to archive run report", "tenant_id", tenantID, "error", err)
		}
	}

	e.logger.Info("detection run complete",
		"tenant_id", tenantID,
		"events", summary.EventsAnalyzed,
		"detected", summary.AnomaliesDetected,
		"saved", summary.AnomaliesSaved,
	)

	return summary, nil
}

// RecomputeBaselines rebuilds per-sender baselines from the current
// analysis window.
func (e *Engine) RecomputeBaselines(ctx context.Context, tenantID string) (*RecomputeSummary, error) {
	windowStart := e.now().UTC().AddDate(0, 0, -e.cfg.WindowDays)

	events, err := e.events.Window(ctx, tenantID, windowStart, e.cfg.MaxEvents)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamRead, err)
	}

	written, err := e.computer.Recompute(ctx, tenantID, events)
	if err != nil {
		return nil, err
	}

	e.logger.Info("baselines recomputed",
		"tenant_id", tenantID,
		"events", len(events),
		"written", written,
	)

	return &RecomputeSummary{
		EventsAnalyzed:   len(events),
		BaselinesWritten: written,
	}, nil
}
