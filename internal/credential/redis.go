package credential

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKey is the key the token is stored under.
const DefaultRedisKey = "kurosadmin:token"

// RedisStore keeps the token in a single Redis string key, for consoles that
// share a Redis instance as durable storage.
type RedisStore struct {
	client *redis.Client
	key    string
	logger *slog.Logger
}

// NewRedisStore creates a RedisStore. An empty key selects DefaultRedisKey.
func NewRedisStore(client *redis.Client, key string, logger *slog.Logger) *RedisStore {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisStore{client: client, key: key, logger: logger}
}

// Save stores the token without expiry; the server decides when it expires.
func (s *RedisStore) Save(ctx context.Context, token string) error {
	if err := s.client.Set(ctx, s.key, token, 0).Err(); err != nil {
		return fmt.Errorf("redis set token: %w", err)
	}
	return nil
}

// Load returns the stored token. Redis errors are logged and reported as
// absence.
func (s *RedisStore) Load(ctx context.Context) (string, bool) {
	token, err := s.client.Get(ctx, s.key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.WarnContext(ctx, "failed to load token from redis",
				slog.String("key", s.key),
				slog.String("error", err.Error()),
			)
		}
		return "", false
	}
	return token, token != ""
}

// Clear deletes the token key.
func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("redis del token: %w", err)
	}
	return nil
}

// Ping reports whether Redis is reachable, for readiness checks.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
