package baseline

import (
	"context"
	"path"
	"sync"
	"testing"
	"time"

	"commsentry/internal/schema"
)

// fakeRedis is an in-memory RedisClient for exercising RedisStore.
type fakeRedis struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: make(map[string][]byte)}
}

func (f *fakeRedis) Set(ctx context.Context, key string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = value
	return nil
}

func (f *fakeRedis) Get(ctx context.Context, key string) ([]byte, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	val, ok := f.data[key]
	if !ok {
		return nil, errKeyNotFound
	}
	return val, nil
}

func (f *fakeRedis) Keys(ctx context.Context, pattern string) ([]string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	var keys []string
	for k := range f.data {
		if ok, _ := path.Match(pattern, k); ok {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (f *fakeRedis) Close() error { return nil }

func TestRedisStore_PutGet(t *testing.T) {
	store := NewRedisStore(newFakeRedis())
	ctx := context.Background()

	b := &Baseline{
		EntityType:          schema.EntitySender,
		EntityID:            "alice@x.com",
		AverageEventsPerDay: 1.5,
		TypicalSentiment:    0.3,
		TypicalHours:        []int{9, 14},
		TypicalDays:         []int{1, 2, 3},
		SampleSize:          45,
		CalculatedAt:        time.Now().UTC().Truncate(time.Second),
	}

	if err := store.Put(ctx, "default", b); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, err := store.Get(ctx, "default", schema.EntitySender, "alice@x.com")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.AverageEventsPerDay != b.AverageEventsPerDay || got.SampleSize != b.SampleSize {
		t.Errorf("Get() = %+v, want %+v", got, b)
	}
	if !got.HasHour(9) || got.HasHour(3) {
		t.Errorf("TypicalHours = %v, want {9, 14}", got.TypicalHours)
	}
}

func TestRedisStore_GetAbsent(t *testing.T) {
	store := NewRedisStore(newFakeRedis())

	_, err := store.Get(context.Background(), "default", schema.EntitySender, "nobody@x.com")
	if err != ErrNotFound {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestRedisStore_LookupIsCaseInsensitive(t *testing.T) {
	store := NewRedisStore(newFakeRedis())
	ctx := context.Background()

	b := &Baseline{EntityType: schema.EntitySender, EntityID: "alice@x.com", SampleSize: 5}
	if err := store.Put(ctx, "default", b); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	if _, err := store.Get(ctx, "default", schema.EntitySender, "Alice@X.com"); err != nil {
		t.Errorf("mixed-case lookup failed: %v", err)
	}
}

func TestRedisStore_All(t *testing.T) {
	store := NewRedisStore(newFakeRedis())
	ctx := context.Background()

	for _, id := range []string{"alice@x.com", "bob@x.com"} {
		b := &Baseline{EntityType: schema.EntitySender, EntityID: id, SampleSize: 4}
		if err := store.Put(ctx, "default", b); err != nil {
			t.Fatalf("Put(%s) error = %v", id, err)
		}
	}
	// Different tenant must not leak in.
	other := &Baseline{EntityType: schema.EntitySender, EntityID: "mallory@x.com", SampleSize: 9}
	if err := store.Put(ctx, "other", other); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	all, err := store.All(ctx, "default")
	if err != nil {
		t.Fatalf("All() error = %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("All() returned %d baselines, want 2", len(all))
	}
	if _, ok := all[Key(schema.EntitySender, "alice@x.com")]; !ok {
		t.Error("alice baseline missing from All()")
	}
}
