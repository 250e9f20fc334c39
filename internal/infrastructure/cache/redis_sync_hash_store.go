package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ecdemo/backend/internal/application/usersync"
	"github.com/redis/go-redis/v9"
)

// RedisSyncHashStore persists differential-sync export hashes in Redis so
// exports stay incremental across restarts and across instances.
type RedisSyncHashStore struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// NewRedisSyncHashStore creates a new Redis-backed hash store
func NewRedisSyncHashStore(cfg RedisConfig, keyPrefix string, ttl time.Duration) (*RedisSyncHashStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisSyncHashStoreWithClient(client, keyPrefix, ttl), nil
}

// NewRedisSyncHashStoreWithClient creates a store with an existing Redis client
// This is useful for testing or when sharing a client across components
func NewRedisSyncHashStoreWithClient(client *redis.Client, keyPrefix string, ttl time.Duration) *RedisSyncHashStore {
	if keyPrefix == "" {
		keyPrefix = "usersync:hash:"
	}
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &RedisSyncHashStore{
		client:    client,
		keyPrefix: keyPrefix,
		ttl:       ttl,
	}
}

// Get returns the stored hash for key, or "" when none exists
func (s *RedisSyncHashStore) Get(ctx context.Context, key string) (string, error) {
	val, err := s.client.Get(ctx, s.keyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read sync hash: %w", err)
	}
	return val, nil
}

// Set stores the hash with the configured TTL
func (s *RedisSyncHashStore) Set(ctx context.Context, key, hash string) error {
	if err := s.client.Set(ctx, s.keyPrefix+key, hash, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store sync hash: %w", err)
	}
	return nil
}

// Close closes the Redis client
func (s *RedisSyncHashStore) Close() error {
	return s.client.Close()
}

// Ensure RedisSyncHashStore implements the sync HashStore
var _ usersync.HashStore = (*RedisSyncHashStore)(nil)
