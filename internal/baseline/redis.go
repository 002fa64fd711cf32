package baseline

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"commsentry/internal/schema"
)

// RedisConfig holds Redis connection settings for the baseline store.
type RedisConfig struct {
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	PoolSize     int           `yaml:"pool_size"`
	MaxRetries   int           `yaml:"max_retries"`
	TLSEnabled   bool          `yaml:"tls_enabled"`
}

// DefaultRedisConfig returns the default Redis configuration.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		DB:           0,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MaxRetries:   3,
	}
}

// RedisClient is the narrow Redis surface the baseline store needs.
// Kept as an interface so tests run against an in-memory implementation.
type RedisClient interface {
	Set(ctx context.Context, key string, value []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Keys(ctx context.Context, pattern string) ([]string, error)
	Close() error
}

var errKeyNotFound = errors.New("key not found")

// GoRedisClient wraps the go-redis client to implement RedisClient.
type GoRedisClient struct {
	client *redis.Client
}

// NewGoRedisClient creates a new Redis client from configuration.
func NewGoRedisClient(cfg RedisConfig) (*GoRedisClient, error) {
	opts := &redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolSize:     cfg.PoolSize,
		MaxRetries:   cfg.MaxRetries,
	}

	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &GoRedisClient{client: client}, nil
}

// Set stores a value. Baselines have no TTL; they live until overwritten
// by the next recompute.
func (g *GoRedisClient) Set(ctx context.Context, key string, value []byte) error {
	return g.client.Set(ctx, key, value, 0).Err()
}

// Get retrieves a value.
func (g *GoRedisClient) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := g.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, errKeyNotFound
		}
		return nil, err
	}
	return []byte(val), nil
}

// Keys returns all keys matching the pattern using incremental SCAN.
func (g *GoRedisClient) Keys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	iter := g.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return keys, nil
}

// Close closes the Redis connection.
func (g *GoRedisClient) Close() error {
	return g.client.Close()
}

// RedisStore persists baselines as JSON blobs keyed by entity.
type RedisStore struct {
	client RedisClient
}

// NewRedisStore creates a baseline store backed by the given client.
func NewRedisStore(client RedisClient) *RedisStore {
	return &RedisStore{client: client}
}

func baselineKey(tenantID string, entityType schema.EntityType, entityID string) string {
	return fmt.Sprintf("baseline:%s:%s:%s", tenantID, entityType, schema.NormalizeIdentity(entityID))
}

// Get returns the baseline for an entity, or ErrNotFound.
func (s *RedisStore) Get(ctx context.Context, tenantID string, entityType schema.EntityType, entityID string) (*Baseline, error) {
	data, err := s.client.Get(ctx, baselineKey(tenantID, entityType, entityID))
	if err != nil {
		if errors.Is(err, errKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("baseline get failed: %w", err)
	}

	var b Baseline
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("baseline decode failed: %w", err)
	}
	return &b, nil
}

// Put upserts the baseline for an entity.
func (s *RedisStore) Put(ctx context.Context, tenantID string, b *Baseline) error {
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("baseline encode failed: %w", err)
	}
	return s.client.Set(ctx, baselineKey(tenantID, b.EntityType, b.EntityID), data)
}

// All returns every baseline for a tenant keyed by Key(entityType, entityID).
func (s *RedisStore) All(ctx context.Context, tenantID string) (map[string]*Baseline, error) {
	keys, err := s.client.Keys(ctx, fmt.Sprintf("baseline:%s:*", tenantID))
	if err != nil {
		return nil, fmt.Errorf("baseline scan failed: %w", err)
	}

	result := make(map[string]*Baseline, len(keys))
	for _, key := range keys {
		data, err := s.client.Get(ctx, key)
		if err != nil {
			if errors.Is(err, errKeyNotFound) {
				continue // expired between scan and read
			}
			return nil, fmt.Errorf("baseline get failed: %w", err)
		}

		var b Baseline
		if err := json.Unmarshal(data, &b); err != nil {
			// Skip corrupt entries rather than failing the whole read.
			continue
		}
		result[Key(b.EntityType, b.EntityID)] = &b
	}

	return result, nil
}
