package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/smukkama/helmet-monitor/internal/reading"
)

// RedisStore keeps readings in a Redis list, one JSON document per element
type RedisStore struct {
	redis  *redis.Client
	key    string
	logger *zap.Logger
}

// NewRedis creates a store on the list at key
func NewRedis(client *redis.Client, key string, logger *zap.Logger) *RedisStore {
	return &RedisStore{redis: client, key: key, logger: logger}
}

// Append pushes r onto the tail of the list
func (s *RedisStore) Append(ctx context.Context, r reading.Reading) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("%w: encode reading: %w", ErrWrite, err)
	}

	if err := s.redis.RPush(ctx, s.key, payload).Err(); err != nil {
		return fmt.Errorf("%w: rpush: %w", ErrWrite, err)
	}
	return nil
}

// ReadAll returns the whole list in push order
func (s *RedisStore) ReadAll(ctx context.Context) ([]reading.Reading, error) {
	values, err := s.redis.LRange(ctx, s.key, 0, -1).Result()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		s.logger.Warn("failed to read readings list, treating as empty", zap.String("key", s.key), zap.Error(err))
		return []reading.Reading{}, nil
	}

	payloads := make([][]byte, len(values))
	for i, v := range values {
		payloads[i] = []byte(v)
	}
	return decodePayloads(payloads, s.logger), nil
}

// Close closes the Redis client
func (s *RedisStore) Close() error {
	return s.redis.Close()
}
