package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisPersister stores the snapshot under the namespace key in Redis
type RedisPersister struct {
	client    *redis.Client
	namespace string
	ttl       time.Duration
}

// NewRedisPersister connects to redisURL and pings it
func NewRedisPersister(ctx context.Context, redisURL, namespace string, ttl time.Duration) (*RedisPersister, error) {
	if redisURL == "" {
		return nil, fmt.Errorf("redis URL is required")
	}
	if namespace == "" {
		return nil, errEmptyNamespace
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	if _, err := client.Ping(ctx).Result(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisPersister{client: client, namespace: namespace, ttl: ttl}, nil
}

// Save stores the snapshot with the configured TTL
func (r *RedisPersister) Save(ctx context.Context, snap Snapshot) error {
	data, err := encodeSnapshot(snap)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.namespace, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set snapshot: %w", err)
	}
	return nil
}

// Load returns the stored snapshot, or nil when the key is missing or expired
func (r *RedisPersister) Load(ctx context.Context) (*Snapshot, error) {
	data, err := r.client.Get(ctx, r.namespace).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}
	return decodeSnapshot(data)
}

// Clear deletes the key
func (r *RedisPersister) Clear(ctx context.Context) error {
	if err := r.client.Del(ctx, r.namespace).Err(); err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	return nil
}

// TTL returns the remaining lifetime of the stored snapshot
func (r *RedisPersister) TTL(ctx context.Context) (time.Duration, error) {
	ttl, err := r.client.TTL(ctx, r.namespace).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get TTL: %w", err)
	}
	return ttl, nil
}

// Ping tests the Redis connection
func (r *RedisPersister) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (r *RedisPersister) Close() error {
	return r.client.Close()
}
