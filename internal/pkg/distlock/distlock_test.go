package distlock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return mr, rdb
}

func TestRedisLock_ExclusiveAndRelease(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newRedis(t)

	a := NewRedisLock(rdb, "stats:last10", time.Minute)
	b := NewRedisLock(rdb, "stats:last10", time.Minute)

	ok, err := a.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, mr.Exists("lock:stats:last10"))

	ok, err = b.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	// b does not own the lock, so its release must not free it.
	require.NoError(t, b.Release(ctx))
	assert.True(t, mr.Exists("lock:stats:last10"))

	require.NoError(t, a.Release(ctx))
	assert.False(t, mr.Exists("lock:stats:last10"))

	ok, err = b.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLock_Extend(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newRedis(t)

	l := NewRedisLock(rdb, "refresh", time.Second)
	ok, err := l.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, l.Extend(ctx, time.Hour))
	assert.Greater(t, mr.TTL("lock:refresh"), time.Minute)
}

func TestRedisLock_ExpiredHolderCannotTouchNewOwner(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newRedis(t)

	stale := NewRedisLock(rdb, "cache:stats:abc", time.Second)
	ok, err := stale.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)

	fresh := NewRedisLock(rdb, "cache:stats:abc", time.Minute)
	ok, err = fresh.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	assert.ErrorIs(t, stale.Extend(ctx, time.Hour), ErrLeaseLost)
	require.NoError(t, stale.Release(ctx))
	assert.True(t, mr.Exists("lock:cache:stats:abc"))
	assert.LessOrEqual(t, mr.TTL("lock:cache:stats:abc"), time.Minute)

	require.NoError(t, fresh.Extend(ctx, time.Hour))
	require.NoError(t, fresh.Release(ctx))
	assert.False(t, mr.Exists("lock:cache:stats:abc"))
}

func TestLocal_KeysAreIndependent(t *testing.T) {
	ctx := context.Background()
	table := NewLocal()

	a := table.Lock("k1")
	b := table.Lock("k1")
	c := table.Lock("k2")

	ok, _ := a.Acquire(ctx)
	assert.True(t, ok)
	ok, _ = b.Acquire(ctx)
	assert.False(t, ok)
	ok, _ = c.Acquire(ctx)
	assert.True(t, ok)

	require.NoError(t, a.Release(ctx))
	ok, _ = b.Acquire(ctx)
	assert.True(t, ok)
}

func TestWithLock(t *testing.T) {
	ctx := context.Background()
	table := NewLocal()

	ran := false
	err := WithLock(ctx, table.Lock("k"), 0, time.Millisecond, func(context.Context) error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)

	holder := table.Lock("k")
	ok, _ := holder.Acquire(ctx)
	require.True(t, ok)

	err = WithLock(ctx, table.Lock("k"), 5*time.Millisecond, time.Millisecond, func(context.Context) error {
		t.Fatal("must not run while held")
		return nil
	})
	assert.True(t, errors.Is(err, ErrNotAcquired))
}

func TestWithLock_ReleasesAfterError(t *testing.T) {
	ctx := context.Background()
	table := NewLocal()
	boom := errors.New("boom")

	err := WithLock(ctx, table.Lock("k"), 0, 0, func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)

	ok, _ := table.Lock("k").Acquire(ctx)
	assert.True(t, ok)
}

func TestPGAdvisoryLock(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	id := advisoryID("cache:stats")
	mock.ExpectQuery("SELECT pg_try_advisory_lock").
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(true))
	mock.ExpectExec("SELECT pg_advisory_unlock").
		WithArgs(id).
		WillReturnResult(sqlmock.NewResult(0, 0))

	l := NewPGAdvisoryLock(db, "cache:stats")
	ok, err := l.Acquire(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, l.Release(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewFactory_FallsBackToLocal(t *testing.T) {
	f := NewFactory(nil, nil, time.Minute)
	_, isLocal := f("x").(*localLock)
	assert.True(t, isLocal)
}
