package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/LeventeLantos/drama-notifier/internal/model"
)

type RedisRunStore struct {
	rdb *redis.Client
	ttl time.Duration
}

var _ RunStore = (*RedisRunStore)(nil)

func NewRedisRunStore(rdb *redis.Client, ttl time.Duration) *RedisRunStore {
	return &RedisRunStore{rdb: rdb, ttl: ttl}
}

func runKey(trigger model.Trigger) string {
	return fmt.Sprintf("dispatch:last:%s", trigger)
}

func (c *RedisRunStore) SaveRun(ctx context.Context, s model.RunSummary) error {
	s.StartedAt = s.StartedAt.UTC()
	s.FinishedAt = s.FinishedAt.UTC()

	b, err := json.Marshal(s)
	if err != nil {
		return err
	}

	return c.rdb.Set(ctx, runKey(s.Trigger), b, c.ttl).Err()
}

func (c *RedisRunStore) LastRun(ctx context.Context, trigger model.Trigger) (model.RunSummary, bool, error) {
	raw, err := c.rdb.Get(ctx, runKey(trigger)).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.RunSummary{}, false, nil
	}
	if err != nil {
		return model.RunSummary{}, false, err
	}

	var s model.RunSummary
	if err := json.Unmarshal(raw, &s); err != nil {
		return model.RunSummary{}, false, fmt.Errorf("decode run summary: %w", err)
	}
	return s, true, nil
}
