package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore backs the history contract with a Redis list per user, so
// multiple pipeline instances can share state. Records are stored newest
// first and trimmed to capacity on every append.
type RedisStore struct {
	client    *redis.Client
	capacity  int
	keyPrefix string
}

// NewRedisStore creates a Redis-backed store with the given per-user capacity.
func NewRedisStore(client *redis.Client, capacity int) *RedisStore {
	if capacity <= 0 {
		capacity = 30
	}
	return &RedisStore{
		client:    client,
		capacity:  capacity,
		keyPrefix: "triage:history:",
	}
}

// NewRedisStoreFromURL connects to Redis and verifies the connection.
func NewRedisStoreFromURL(ctx context.Context, redisURL string, capacity int) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return NewRedisStore(client, capacity), nil
}

func (s *RedisStore) key(userID string) string {
	return s.keyPrefix + userID
}

// Append pushes the record and trims the user's list to capacity.
func (s *RedisStore) Append(ctx context.Context, userID string, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal history record: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, s.key(userID), data)
	pipe.LTrim(ctx, s.key(userID), 0, int64(s.capacity-1))
	_, err = pipe.Exec(ctx)
	return err
}

// Recent returns the user's records with Timestamp >= since, oldest first.
func (s *RedisStore) Recent(ctx context.Context, userID string, since time.Time) ([]Record, error) {
	raw, err := s.client.LRange(ctx, s.key(userID), 0, int64(s.capacity-1)).Result()
	if err != nil {
		return nil, err
	}

	// List is newest first; reverse while filtering
	var out []Record
	for i := len(raw) - 1; i >= 0; i-- {
		var rec Record
		if err := json.Unmarshal([]byte(raw[i]), &rec); err != nil {
			continue // skip records written by an incompatible version
		}
		if !rec.Timestamp.Before(since) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Clear drops all history keys written by this store.
func (s *RedisStore) Clear(ctx context.Context) error {
	iter := s.client.Scan(ctx, 0, s.keyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}
