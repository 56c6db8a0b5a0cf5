package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-attempt/internal/config"
	"github.com/stemsi/exstem-attempt/internal/model"
)

// RedisStore keeps last attempts as JSON strings in Redis, without TTL.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore creates a new RedisStore.
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

// Get returns the last attempt of a student.
func (s *RedisStore) Get(ctx context.Context, studentID int) (*model.LastAttempt, error) {
	raw, err := s.rdb.Get(ctx, config.CacheKey.StudentLastAttemptKey(studentID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get last attempt: %w", err)
	}

	var attempt model.LastAttempt
	if err := json.Unmarshal(raw, &attempt); err != nil {
		return nil, fmt.Errorf("decode last attempt: %w", err)
	}
	return &attempt, nil
}

// Put overwrites the last attempt of a student.
func (s *RedisStore) Put(ctx context.Context, studentID int, attempt *model.LastAttempt) error {
	raw, err := json.Marshal(attempt)
	if err != nil {
		return fmt.Errorf("encode last attempt: %w", err)
	}
	if err := s.rdb.Set(ctx, config.CacheKey.StudentLastAttemptKey(studentID), raw, 0).Err(); err != nil {
		return fmt.Errorf("set last attempt: %w", err)
	}
	return nil
}
