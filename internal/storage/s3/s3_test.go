package s3

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"commsentry/internal/engine"
)

type fakePutObject struct {
	input *awss3.PutObjectInput
	err   error
}

func (f *fakePutObject) PutObject(ctx context.Context, input *awss3.PutObjectInput, opts ...func(*awss3.Options)) (*awss3.PutObjectOutput, error) {
	f.input = input
	if f.err != nil {
		return nil, f.err
	}
	return &awss3.PutObjectOutput{}, nil
}

func testArchiver(client putObjectAPI) *RunArchiver {
	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.Bucket = "commsentry-reports"
	return &RunArchiver{client: client, cfg: cfg, logger: slog.Default()}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "disabled skips checks",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name: "enabled with bucket",
			modify: func(c *Config) {
				c.Enabled = true
				c.Bucket = "reports"
			},
			wantErr: false,
		},
		{
			name: "enabled without bucket",
			modify: func(c *Config) {
				c.Enabled = true
			},
			wantErr: true,
		},
		{
			name: "enabled without region",
			modify: func(c *Config) {
				c.Enabled = true
				c.Bucket = "reports"
				c.Region = ""
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestArchiveRun(t *testing.T) {
	client := &fakePutObject{}
	archiver := testArchiver(client)

	report := &engine.RunReport{
		RunID:       uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8"),
		TenantID:    "acme",
		StartedAt:   time.Date(2026, 8, 3, 15, 0, 0, 0, time.UTC),
		CompletedAt: time.Date(2026, 8, 3, 15, 0, 12, 0, time.UTC),
		Summary:     engine.RunSummary{EventsAnalyzed: 42, AnomaliesDetected: 2, AnomaliesSaved: 2},
	}

	if err := archiver.ArchiveRun(context.Background(), report); err != nil {
		t.Fatalf("ArchiveRun() error = %v", err)
	}

	if client.input == nil {
		t.Fatal("PutObject was not called")
	}
	if got := *client.input.Bucket; got != "commsentry-reports" {
		t.Errorf("bucket = %q", got)
	}

	wantKey := "reports/2026/08/03/6ba7b810-9dad-11d1-80b4-00c04fd430c8.json.gz"
	if got := *client.input.Key; got != wantKey {
		t.Errorf("key = %q, want %q", got, wantKey)
	}
	if got := *client.input.ContentEncoding; got != "gzip" {
		t.Errorf("content encoding = %q", got)
	}

	// The body must round-trip back to the report.
	gz, err := gzip.NewReader(client.input.Body)
	if err != nil {
		t.Fatalf("body is not gzip: %v", err)
	}
	payload, err := io.ReadAll(gz)
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}

	var decoded engine.RunReport
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.TenantID != "acme" || decoded.Summary.EventsAnalyzed != 42 {
		t.Errorf("decoded report mismatch: %+v", decoded)
	}
}

func TestArchiveRun_UploadFailure(t *testing.T) {
	client := &fakePutObject{err: context.DeadlineExceeded}
	archiver := testArchiver(client)

	report := &engine.RunReport{
		RunID:       uuid.New(),
		CompletedAt: time.Now(),
	}

	if err := archiver.ArchiveRun(context.Background(), report); err == nil {
		t.Error("ArchiveRun() = nil, want error on upload failure")
	}
}
