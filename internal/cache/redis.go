package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps each entry in a hash with payload and updated_at fields.
type RedisStore struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// NewRedisStore creates a store whose keys live under prefix.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix + ":", now: time.Now}
}

func (s *RedisStore) redisKey(key string) string {
	return s.prefix + key
}

func (s *RedisStore) Get(ctx context.Context, key string) (*Entry, error) {
	vals, err := s.client.HMGet(ctx, s.redisKey(key), "payload", "updated_at").Result()
	if err != nil {
		return nil, fmt.Errorf("get cache entry: %w", err)
	}
	return entryFromFields(key, vals)
}

func (s *RedisStore) Put(ctx context.Context, key string, payload []byte) error {
	err := s.client.HSet(ctx, s.redisKey(key),
		"payload", payload,
		"updated_at", s.now().UTC().UnixNano(),
	).Err()
	if err != nil {
		return fmt.Errorf("put cache entry: %w", err)
	}
	return nil
}

func (s *RedisStore) DeleteByPrefix(ctx context.Context, prefix string) (int, error) {
	keys, err := s.scan(ctx, prefix)
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}
	n, err := s.client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("delete cache entries: %w", err)
	}
	return int(n), nil
}

func (s *RedisStore) Latest(ctx context.Context, prefix string) (*Entry, error) {
	keys, err := s.scan(ctx, prefix)
	if err != nil {
		return nil, err
	}
	var latest *Entry
	for _, rk := range keys {
		vals, err := s.client.HMGet(ctx, rk, "payload", "updated_at").Result()
		if err != nil {
			return nil, fmt.Errorf("latest cache entry: %w", err)
		}
		e, err := entryFromFields(strings.TrimPrefix(rk, s.prefix), vals)
		if err != nil {
			return nil, err
		}
		if e != nil && (latest == nil || newer(*e, *latest)) {
			latest = e
		}
	}
	return latest, nil
}

func (s *RedisStore) scan(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, escapeGlob(s.redisKey(prefix))+"*", 500).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan cache keys: %w", err)
	}
	return keys, nil
}

func entryFromFields(key string, vals []interface{}) (*Entry, error) {
	if len(vals) != 2 || vals[0] == nil {
		return nil, nil
	}
	payload, ok := vals[0].(string)
	if !ok {
		return nil, errors.New("cache: unexpected payload type")
	}
	e := &Entry{Key: key, Payload: []byte(payload)}
	if ts, ok := vals[1].(string); ok {
		if n, err := strconv.ParseInt(ts, 10, 64); err == nil {
			e.UpdatedAt = time.Unix(0, n).UTC()
		}
	}
	return e, nil
}

var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

func escapeGlob(s string) string {
	return globEscaper.Replace(s)
}
