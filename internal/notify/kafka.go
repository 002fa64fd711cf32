// Package notify publishes persisted anomalies to downstream consumers
// over Kafka. Publishing is best effort: a broker outage never fails a
// detection run.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"commsentry/internal/anomaly"
)

// ErrPublisherClosed is returned when publishing after Close.
var ErrPublisherClosed = errors.New("notify: publisher closed")

// Config holds Kafka publisher settings.
type Config struct {
	Enabled      bool          `yaml:"enabled"`
	Brokers      []string      `yaml:"brokers"`
	Topic        string        `yaml:"topic"`
	BatchTimeout time.Duration `yaml:"batch_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	RequiredAcks int           `yaml:"required_acks"`
	MaxAttempts  int           `yaml:"max_attempts"`
}

// DefaultConfig returns the default publisher configuration, disabled.
func DefaultConfig() Config {
	return Config{
		Brokers:      []string{"localhost:9092"},
		Topic:        "commsentry.anomalies",
		BatchTimeout: 100 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: -1,
		MaxAttempts:  3,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if len(c.Brokers) == 0 {
		return errors.New("notify: at least one broker is required")
	}
	if c.Topic == "" {
		return errors.New("notify: topic is required")
	}
	return nil
}

// messageWriter is the kafka.Writer surface the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher sends anomaly records to a Kafka topic, keyed by anomaly id
// so all versions of one anomaly land in the same partition.
type Publisher struct {
	writer    messageWriter
	logger    *slog.Logger
	closed    atomic.Bool
	published atomic.Int64
	failed    atomic.Int64
}

// NewPublisher creates a Kafka publisher from configuration.
func NewPublisher(cfg Config, logger *slog.Logger) (*Publisher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: cfg.BatchTimeout,
		WriteTimeout: cfg.WriteTimeout,
		RequiredAcks: kafka.RequiredAcks(cfg.RequiredAcks),
		MaxAttempts:  cfg.MaxAttempts,
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Error(fmt.Sprintf(msg, args...), "component", "kafka-writer")
		}),
	}

	logger.Info("anomaly publisher initialized", "brokers", cfg.Brokers, "topic", cfg.Topic)

	return &Publisher{writer: writer, logger: logger}, nil
}

// PublishAnomalies sends one message per record.
func (p *Publisher) PublishAnomalies(ctx context.Context, records []*anomaly.Record) error {
	if p.closed.Load() {
		return ErrPublisherClosed
	}
	if len(records) == 0 {
		return nil
	}

	messages := make([]kafka.Message, 0, len(records))
	for _, rec := range records {
		value, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("notify: failed to marshal anomaly %s: %w", rec.ID, err)
		}
		messages = append(messages, kafka.Message{
			Key:   []byte(rec.ID.String()),
			Value: value,
			Time:  time.Now(),
		})
	}

	if err := p.writer.WriteMessages(ctx, messages...); err != nil {
		p.failed.Add(int64(len(messages)))
		return fmt.Errorf("notify: failed to publish anomalies: %w", err)
	}

	p.published.Add(int64(len(messages)))
	p.logger.Debug("anomalies published", "count", len(messages))
	return nil
}

// Metrics returns publish counters.
func (p *Publisher) Metrics() (published, failed int64) {
	return p.published.Load(), p.failed.Load()
}

// Close shuts the publisher down.
func (p *Publisher) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	return p.writer.Close()
}
