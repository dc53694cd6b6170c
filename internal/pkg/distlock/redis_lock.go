package distlock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisKeyPrefix namespaces lock keys away from cached report payloads that
// may live in the same Redis database.
const redisKeyPrefix = "lock:"

// ErrLeaseLost is returned by Extend when the key expired or now belongs to
// another worker.
var ErrLeaseLost = errors.New("distlock: lease lost")

// Both scripts compare the stored owner token first, so a worker whose lease
// ran out cannot delete or renew the lease of whoever took the key next.
var (
	unlockIfOwner = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)
	renewIfOwner = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0
`)
)

// RedisLock guards one report cache key, or the scheduler's refresh walk,
// across API and worker processes sharing a Redis instance.
type RedisLock struct {
	rdb   *redis.Client
	key   string
	owner string
	lease time.Duration
}

// NewRedisLock returns a lock on name, e.g. "cache:stats:<digest>" while a
// run writes its payload or "scheduler:refresh" for the periodic walk. The
// lease bounds how long a crashed holder can block others.
func NewRedisLock(rdb *redis.Client, name string, lease time.Duration) *RedisLock {
	return &RedisLock{
		rdb:   rdb,
		key:   redisKeyPrefix + name,
		owner: ownerToken(),
		lease: lease,
	}
}

func ownerToken() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return strconv.FormatInt(time.Now().UnixNano(), 36)
	}
	return hex.EncodeToString(b)
}

// Acquire takes the key with SET NX. A false result means another run holds it.
func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	ok, err := l.rdb.SetNX(ctx, l.key, l.owner, l.lease).Result()
	if err != nil {
		return false, fmt.Errorf("acquire %s: %w", l.key, err)
	}
	return ok, nil
}

// Release frees the key if this instance still owns it.
func (l *RedisLock) Release(ctx context.Context) error {
	if err := unlockIfOwner.Run(ctx, l.rdb, []string{l.key}, l.owner).Err(); err != nil {
		return fmt.Errorf("release %s: %w", l.key, err)
	}
	return nil
}

// Extend renews the lease between refresh periods.
func (l *RedisLock) Extend(ctx context.Context, lease time.Duration) error {
	n, err := renewIfOwner.Run(ctx, l.rdb, []string{l.key}, l.owner, lease.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("extend %s: %w", l.key, err)
	}
	if n == 0 {
		return fmt.Errorf("extend %s: %w", l.key, ErrLeaseLost)
	}
	return nil
}
