package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"prompt-decoder-server/modules/common/logger"
	"prompt-decoder-server/modules/common/model"
)

const (
	redisKeyPrefix = "history:"
	redisTTL       = 30 * 24 * time.Hour
	maxWatchRetry  = 5
)

// RedisStore - history as a redis list per session, newest at index 0
type RedisStore struct {
	rdb   redis.UniversalClient
	limit int
}

// NewRedisStore - limit <= 0 uses DefaultLimit
func NewRedisStore(rdb redis.UniversalClient, limit int) *RedisStore {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &RedisStore{rdb: rdb, limit: limit}
}

func redisKey(session string) string {
	return redisKeyPrefix + session
}

// Add - LPUSH + LTRIM in one MULTI so the list never exceeds the limit
func (s *RedisStore) Add(ctx context.Context, session string, entry model.HistoryEntry) error {
	data, err := json.Marshal(normalizeEntry(entry))
	if err != nil {
		return fmt.Errorf("failed to marshal history entry: %w", err)
	}

	key := redisKey(session)
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, key, data)
		pipe.LTrim(ctx, key, 0, int64(s.limit-1))
		pipe.Expire(ctx, key, redisTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to add history entry: %w", err)
	}
	return nil
}

func (s *RedisStore) List(ctx context.Context, session string, offset, limit int) ([]model.HistoryEntry, error) {
	if offset < 0 {
		offset = 0
	}
	stop := int64(-1)
	if limit > 0 {
		stop = int64(offset + limit - 1)
	}

	items, err := s.rdb.LRange(ctx, redisKey(session), int64(offset), stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}

	entries := make([]model.HistoryEntry, 0, len(items))
	for _, item := range items {
		var entry model.HistoryEntry
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			logger.WithField("session", session).Warnf("⚠️  [History] Skipping unreadable entry: %v", err)
			continue
		}
		entries = append(entries, normalizeEntry(entry))
	}
	return entries, nil
}

// ReplaceLatest - optimistic WATCH on the list, retried on concurrent writes
func (s *RedisStore) ReplaceLatest(ctx context.Context, session string, result model.AnalysisResult) (bool, error) {
	key := redisKey(session)
	replaced := false

	txf := func(tx *redis.Tx) error {
		replaced = false
		head, err := tx.LIndex(ctx, key, 0).Result()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}

		var latest model.HistoryEntry
		if err := json.Unmarshal([]byte(head), &latest); err != nil {
			return fmt.Errorf("failed to parse latest entry: %w", err)
		}
		if !canReplace(latest, result) {
			return nil
		}

		latest.Result = result.Normalized()
		data, err := json.Marshal(latest)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.LSet(ctx, key, 0, data)
			return nil
		})
		if err == nil {
			replaced = true
		}
		return err
	}

	for i := 0; i < maxWatchRetry; i++ {
		err := s.rdb.Watch(ctx, txf, key)
		if err == nil {
			return replaced, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return false, fmt.Errorf("failed to replace latest history entry: %w", err)
	}
	return false, fmt.Errorf("failed to replace latest history entry: too much contention")
}

func (s *RedisStore) Clear(ctx context.Context, session string) error {
	if err := s.rdb.Del(ctx, redisKey(session)).Err(); err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}
	return nil
}
