package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mohitverma010602/just-chat/internal/metrics"
)

// RedisStore handles Redis operations for session and rate-limit state:
// refresh-token allowlisting, per-user send counters, and last-seen stamps.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis store.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Client exposes the underlying client for middleware that shares the pool.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

// refreshTokenKey returns the key for a single refresh-token session.
func refreshTokenKey(userID, tokenID string) string {
	return fmt.Sprintf("refresh:%s:%s", userID, tokenID)
}

// lastSeenKey returns the key for a user's last-seen timestamp.
func lastSeenKey(userID string) string {
	return fmt.Sprintf("lastseen:%s", userID)
}

// sendRateKey returns the key for a user's send counter.
func sendRateKey(userID string) string {
	return fmt.Sprintf("sendrate:%s", userID)
}

// StoreRefreshToken allowlists a refresh token. Each session gets its own
// entry so one device logging out does not invalidate the others.
func (s *RedisStore) StoreRefreshToken(ctx context.Context, userID, tokenID string, ttl time.Duration) error {
	return s.client.Set(ctx, refreshTokenKey(userID, tokenID), "1", ttl).Err()
}

// IsRefreshTokenValid reports whether a refresh token is still allowlisted.
func (s *RedisStore) IsRefreshTokenValid(ctx context.Context, userID, tokenID string) bool {
	exists, _ := s.client.Exists(ctx, refreshTokenKey(userID, tokenID)).Result()
	return exists > 0
}

// RevokeRefreshToken removes a refresh token from the allowlist.
func (s *RedisStore) RevokeRefreshToken(ctx context.Context, userID, tokenID string) error {
	return s.client.Del(ctx, refreshTokenKey(userID, tokenID)).Err()
}

// SetLastSeen records when a user's last connection closed.
func (s *RedisStore) SetLastSeen(ctx context.Context, userID string, t time.Time) error {
	start := time.Now()
	err := s.client.Set(ctx, lastSeenKey(userID), t.UTC().Format(time.RFC3339), 0).Err()
	metrics.RedisLatency.Observe(time.Since(start).Seconds())
	return err
}

// LastSeen returns a user's last-seen timestamp; the zero time when unknown.
func (s *RedisStore) LastSeen(ctx context.Context, userID string) (time.Time, error) {
	val, err := s.client.Get(ctx, lastSeenKey(userID)).Result()
	if err != nil {
		if err == redis.Nil {
			return time.Time{}, nil
		}
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339, val)
}

// AllowSend checks and increments the per-user send counter. Returns false
// when the user has exhausted the window's budget.
func (s *RedisStore) AllowSend(ctx context.Context, userID string, limit int, window time.Duration) (bool, error) {
	key := sendRateKey(userID)

	start := time.Now()
	pipe := s.client.Pipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, window)
	_, err := pipe.Exec(ctx)
	metrics.RedisLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		return false, err
	}

	return incr.Val() <= int64(limit), nil
}
