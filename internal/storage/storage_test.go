package storage

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/column"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/google/uuid"

	"commsentry/internal/anomaly"
	"commsentry/internal/schema"
)

// mockConn implements driver.Conn for unit testing without a real
// ClickHouse connection.
type mockConn struct {
	execFunc         func(ctx context.Context, query string, args ...any) error
	queryFunc        func(ctx context.Context, query string, args ...any) (driver.Rows, error)
	prepareBatchFunc func(ctx context.Context, query string, opts ...driver.PrepareBatchOption) (driver.Batch, error)
}

func (m *mockConn) Contributors() []string                                    { return nil }
func (m *mockConn) ServerVersion() (*driver.ServerVersion, error)             { return nil, nil }
func (m *mockConn) Select(_ context.Context, _ any, _ string, _ ...any) error { return nil }
func (m *mockConn) QueryRow(_ context.Context, _ string, _ ...any) driver.Row { return nil }
func (m *mockConn) AsyncInsert(_ context.Context, _ string, _ bool, _ ...any) error {
	return nil
}
func (m *mockConn) Ping(_ context.Context) error { return nil }
func (m *mockConn) Stats() driver.Stats          { return driver.Stats{} }
func (m *mockConn) Close() error                 { return nil }

func (m *mockConn) Exec(ctx context.Context, query string, args ...any) error {
	if m.execFunc != nil {
		return m.execFunc(ctx, query, args...)
	}
	return nil
}

func (m *mockConn) Query(ctx context.Context, query string, args ...any) (driver.Rows, error) {
	if m.queryFunc != nil {
		return m.queryFunc(ctx, query, args...)
	}
	return nil, errors.New("unexpected query")
}

func (m *mockConn) PrepareBatch(ctx context.Context, query string, opts ...driver.PrepareBatchOption) (driver.Batch, error) {
	if m.prepareBatchFunc != nil {
		return m.prepareBatchFunc(ctx, query, opts...)
	}
	return &mockBatch{}, nil
}

type mockBatch struct {
	mu          sync.Mutex
	appendCount int
	sent        bool
	sendFunc    func() error
}

func (m *mockBatch) Abort() error { return nil }
func (m *mockBatch) Append(_ ...any) error {
	m.mu.Lock()
	m.appendCount++
	m.mu.Unlock()
	return nil
}
func (m *mockBatch) AppendStruct(_ any) error        { return nil }
func (m *mockBatch) Column(_ int) driver.BatchColumn { return nil }
func (m *mockBatch) Flush() error                    { return nil }
func (m *mockBatch) Send() error {
	m.sent = true
	if m.sendFunc != nil {
		return m.sendFunc()
	}
	return nil
}
func (m *mockBatch) IsSent() bool                { return m.sent }
func (m *mockBatch) Rows() int                   { return m.appendCount }
func (m *mockBatch) Columns() []column.Interface { return nil }
func (m *mockBatch) Close() error                { return nil }

func newMockClient(conn driver.Conn) *ClickHouseClient {
	return &ClickHouseClient{
		conn:   conn,
		config: DefaultClickHouseConfig(),
	}
}

func TestLoadMigrations(t *testing.T) {
	migrations, err := loadMigrations()
	if err != nil {
		t.Fatalf("loadMigrations() error = %v", err)
	}
	if len(migrations) != 3 {
		t.Fatalf("loaded %d migrations, want 3", len(migrations))
	}

	for i, migration := range migrations {
		if migration.Version != i+1 {
			t.Errorf("migration %d: version = %d, want %d", i, migration.Version, i+1)
		}
		if migration.SQL == "" {
			t.Errorf("migration %d has empty SQL", i)
		}
	}
	if migrations[0].Name != "create_communication_events" {
		t.Errorf("first migration name = %q", migrations[0].Name)
	}
}

func TestSplitStatements(t *testing.T) {
	tests := []struct {
		name string
		sql  string
		want int
	}{
		{"single statement", "CREATE TABLE t (x String)", 1},
		{"two statements", "CREATE TABLE a (x String);\nCREATE TABLE b (y String);", 2},
		{"comments and blanks", "-- header\n\nCREATE TABLE t (x String);\n-- trailer\n", 1},
		{"empty", "", 0},
		{"only comments", "-- nothing here\n-- at all", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := splitStatements(tt.sql)
			if len(got) != tt.want {
				t.Errorf("splitStatements() = %d statements, want %d", len(got), tt.want)
			}
			for _, stmt := range got {
				if strings.TrimSpace(stmt) == "" {
					t.Error("empty statement survived splitting")
				}
			}
		})
	}
}

func TestEventStore_InsertBatch(t *testing.T) {
	batch := &mockBatch{}
	var capturedQuery string
	conn := &mockConn{
		prepareBatchFunc: func(_ context.Context, query string, _ ...driver.PrepareBatchOption) (driver.Batch, error) {
			capturedQuery = query
			return batch, nil
		},
	}
	store := NewEventStore(newMockClient(conn))

	sentiment := 0.4
	events := []*schema.CommunicationEvent{
		{EventID: uuid.New(), Sender: "a@x.com", Recipient: "me@x.com", Timestamp: time.Now(), TenantID: "default"},
		{EventID: uuid.New(), Sender: "b@x.com", Recipient: "me@x.com", Timestamp: time.Now(), Sentiment: &sentiment},
	}

	if err := store.InsertBatch(context.Background(), events); err != nil {
		t.Fatalf("InsertBatch() error = %v", err)
	}
	if batch.appendCount != 2 {
		t.Errorf("appended %d rows, want 2", batch.appendCount)
	}
	if !batch.sent {
		t.Error("batch never sent")
	}
	if !strings.Contains(capturedQuery, "communication_events") {
		t.Errorf("unexpected insert target: %s", capturedQuery)
	}
}

func TestEventStore_InsertBatchEmpty(t *testing.T) {
	conn := &mockConn{
		prepareBatchFunc: func(_ context.Context, _ string, _ ...driver.PrepareBatchOption) (driver.Batch, error) {
			t.Fatal("batch prepared for empty input")
			return nil, nil
		},
	}
	store := NewEventStore(newMockClient(conn))

	if err := store.InsertBatch(context.Background(), nil); err != nil {
		t.Fatalf("InsertBatch() error = %v", err)
	}
}

func TestEventStore_InsertBatchSendFailure(t *testing.T) {
	batch := &mockBatch{sendFunc: func() error { return errors.New("broken pipe") }}
	conn := &mockConn{
		prepareBatchFunc: func(_ context.Context, _ string, _ ...driver.PrepareBatchOption) (driver.Batch, error) {
			return batch, nil
		},
	}
	store := NewEventStore(newMockClient(conn))

	err := store.InsertBatch(context.Background(), []*schema.CommunicationEvent{
		{EventID: uuid.New(), Sender: "a@x.com", Recipient: "me@x.com", Timestamp: time.Now()},
	})
	if !errors.Is(err, ErrBatchInsertFailed) {
		t.Fatalf("InsertBatch() error = %v, want ErrBatchInsertFailed", err)
	}

	var storageErr *StorageError
	if !errors.As(err, &storageErr) || storageErr.Table != "communication_events" {
		t.Errorf("error not wrapped with table context: %v", err)
	}
}

func TestAnomalyStore_UpdateStatusRejectsUnknown(t *testing.T) {
	conn := &mockConn{
		queryFunc: func(_ context.Context, _ string, _ ...any) (driver.Rows, error) {
			t.Fatal("store queried before status validation")
			return nil, nil
		},
	}
	store := NewAnomalyStore(newMockClient(conn))

	_, err := store.UpdateStatus(context.Background(), "default", uuid.New(), anomaly.Status("archived"), "")
	if !IsInvalidStatus(err) {
		t.Fatalf("UpdateStatus() error = %v, want ErrInvalidStatus", err)
	}
}

func TestAnomalyStore_ListRejectsUnknownStatusFilter(t *testing.T) {
	store := NewAnomalyStore(newMockClient(&mockConn{}))

	_, err := store.List(context.Background(), "default", ListFilter{Status: "bogus"})
	if !IsInvalidStatus(err) {
		t.Fatalf("List() error = %v, want ErrInvalidStatus", err)
	}
}

func TestAnomalyStore_SaveSerializesPatternData(t *testing.T) {
	var capturedArgs []any
	conn := &mockConn{
		execFunc: func(_ context.Context, _ string, args ...any) error {
			capturedArgs = args
			return nil
		},
	}
	store := NewAnomalyStore(newMockClient(conn))

	rec := anomaly.NewRecord("default", anomaly.Candidate{
		AnomalyType:    anomaly.TypeFrequencySpike,
		Severity:       anomaly.SeverityHigh,
		Title:          "spike",
		PatternData:    map[string]any{"recent_count": 9},
		DeviationScore: 80,
		Confidence:     88,
	}, time.Now().UTC())

	if err := store.Save(context.Background(), rec); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if len(capturedArgs) != 20 {
		t.Fatalf("insert carried %d args, want 20", len(capturedArgs))
	}
	if patternData, _ := capturedArgs[8].(string); !strings.Contains(patternData, "recent_count") {
		t.Errorf("pattern_data = %v, want serialized JSON", capturedArgs[8])
	}
	// Absent baseline data serializes as null, not a decode hazard.
	if baselineData, _ := capturedArgs[9].(string); baselineData != "null" {
		t.Errorf("baseline_data = %v, want null for absent map", capturedArgs[9])
	}
}

func TestStorageErrorFormatting(t *testing.T) {
	err := WrapQueryError("Window", "communication_events", errors.New("boom"))
	if got := err.Error(); !strings.Contains(got, "Window") || !strings.Contains(got, "communication_events") {
		t.Errorf("Error() = %q, want op and table context", got)
	}
	if !errors.Is(err, ErrQueryFailed) {
		t.Error("wrapped error lost its category")
	}
}
