package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// maxHistory caps the per-key change list kept in Redis.
const maxHistory = 100

// RedisStore keeps preferences in a single Redis hash and the change history
// in one capped list per key. It suits deployments where several daemons
// share one preference set.
type RedisStore struct {
	client    *redis.Client
	namespace string
}

// NewRedisStore connects to addr and verifies the connection.
func NewRedisStore(ctx context.Context, addr, namespace string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", addr, err)
	}
	return NewRedisStoreWithClient(client, namespace), nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client *redis.Client, namespace string) *RedisStore {
	if namespace == "" {
		namespace = "notesprefs"
	}
	return &RedisStore{client: client, namespace: namespace}
}

func (s *RedisStore) prefsKey() string {
	return s.namespace + ":preferences"
}

func (s *RedisStore) historyKey(key string) string {
	return s.namespace + ":history:" + key
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) SetPreference(ctx context.Context, key, value string) error {
	return s.client.HSet(ctx, s.prefsKey(), key, value).Err()
}

func (s *RedisStore) GetPreference(ctx context.Context, key string) (string, error) {
	v, err := s.client.HGet(ctx, s.prefsKey(), key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	return v, err
}

func (s *RedisStore) DeletePreference(ctx context.Context, key string) error {
	return s.client.HDel(ctx, s.prefsKey(), key).Err()
}

func (s *RedisStore) AllPreferences(ctx context.Context) (map[string]string, error) {
	return s.client.HGetAll(ctx, s.prefsKey()).Result()
}

type redisChange struct {
	ID        string `json:"id"`
	OldValue  string `json:"old_value"`
	NewValue  string `json:"new_value"`
	ChangedAt string `json:"changed_at"`
}

func (s *RedisStore) RecordChange(ctx context.Context, c Change) error {
	b, err := json.Marshal(redisChange{
		ID:        c.ID,
		OldValue:  c.OldValue,
		NewValue:  c.NewValue,
		ChangedAt: c.ChangedAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("marshalling change: %w", err)
	}

	hk := s.historyKey(c.Key)
	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, hk, b)
	pipe.LTrim(ctx, hk, 0, maxHistory-1)
	_, err = pipe.Exec(ctx)
	return err
}

// ListChanges returns up to limit changes of key, newest first.
func (s *RedisStore) ListChanges(ctx context.Context, key string, limit int) ([]Change, error) {
	if limit <= 0 {
		return nil, nil
	}
	raw, err := s.client.LRange(ctx, s.historyKey(key), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}

	results := make([]Change, 0, len(raw))
	for _, r := range raw {
		var rc redisChange
		if err := json.Unmarshal([]byte(r), &rc); err != nil {
			return nil, fmt.Errorf("decoding change for %s: %w", key, err)
		}
		t, err := time.Parse(time.RFC3339, rc.ChangedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing changed_at: %w", err)
		}
		results = append(results, Change{
			ID:        rc.ID,
			Key:       key,
			OldValue:  rc.OldValue,
			NewValue:  rc.NewValue,
			ChangedAt: t,
		})
	}
	return results, nil
}
