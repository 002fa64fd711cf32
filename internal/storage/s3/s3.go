// Package s3 archives detection run reports to S3-compatible object
// storage. Archival is best effort and never fails a run.
package s3

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"commsentry/internal/engine"
)

// Config holds S3 connection settings.
type Config struct {
	Enabled         bool          `yaml:"enabled"`
	Region          string        `yaml:"region"`
	Bucket          string        `yaml:"bucket"`
	Prefix          string        `yaml:"prefix"`
	Endpoint        string        `yaml:"endpoint,omitempty"`
	AccessKeyID     string        `yaml:"access_key_id,omitempty"`
	SecretAccessKey string        `yaml:"secret_access_key,omitempty"`
	UsePathStyle    bool          `yaml:"use_path_style"`
	Timeout         time.Duration `yaml:"timeout"`
}

// DefaultConfig returns the default archival configuration, disabled.
func DefaultConfig() Config {
	return Config{
		Region:  "us-east-1",
		Prefix:  "reports/",
		Timeout: time.Minute,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Region == "" {
		return errors.New("s3: region is required")
	}
	if c.Bucket == "" {
		return errors.New("s3: bucket is required")
	}
	return nil
}

// putObjectAPI is the S3 surface the archiver uses.
type putObjectAPI interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// RunArchiver uploads one gzip-compressed JSON report per detection run.
type RunArchiver struct {
	client putObjectAPI
	cfg    Config
	logger *slog.Logger
}

// NewRunArchiver creates an archiver from configuration.
func NewRunArchiver(ctx context.Context, cfg Config, logger *slog.Logger) (*RunArchiver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("s3: failed to load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}
	if cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	logger.Info("s3 archiver initialized", "bucket", cfg.Bucket, "region", cfg.Region)

	return &RunArchiver{
		client: s3.NewFromConfig(awsCfg, s3Opts...),
		cfg:    cfg,
		logger: logger,
	}, nil
}

// ArchiveRun uploads the report under prefix/date/run_id.json.gz.
func (a *RunArchiver) ArchiveRun(ctx context.Context, report *engine.RunReport) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("s3: failed to marshal run report: %w", err)
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(payload); err != nil {
		return fmt.Errorf("s3: failed to compress run report: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("s3: failed to compress run report: %w", err)
	}

	key := fmt.Sprintf("%s%s/%s.json.gz",
		a.cfg.Prefix,
		report.CompletedAt.UTC().Format("2006/01/02"),
		report.RunID,
	)

	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:          aws.String(a.cfg.Bucket),
		Key:             aws.String(key),
		Body:            bytes.NewReader(buf.Bytes()),
		ContentType:     aws.String("application/json"),
		ContentEncoding: aws.String("gzip"),
	})
	if err != nil {
		return fmt.Errorf("s3: upload failed: %w", err)
	}

	a.logger.Debug("run report archived",
		"key", key,
		"anomalies", len(report.Anomalies),
		"bytes", buf.Len(),
	)
	return nil
}
