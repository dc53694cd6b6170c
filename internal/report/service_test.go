package report

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/attribution-monitor/internal/appsflyer"
	"github.com/ignite/attribution-monitor/internal/cache"
	"github.com/ignite/attribution-monitor/internal/pkg/distlock"
	"github.com/ignite/attribution-monitor/internal/pkg/metrics"
)

func TestStatsKey_IgnoresAppOrder(t *testing.T) {
	selected := map[string][]string{
		"com.a": {" purchase", "signup"},
		"com.b": {"level_up"},
	}
	ab := StatsKey("last30", []appsflyer.App{{AppID: "com.a"}, {AppID: "com.b"}}, selected)
	ba := StatsKey("last30", []appsflyer.App{{AppID: "com.b"}, {AppID: "com.a"}}, selected)

	assert.Equal(t, "last30:purchase:signup:com.a-com.b", ab)
	assert.Equal(t, ab, ba)
}

func TestStatsKey_Defaults(t *testing.T) {
	apps := []appsflyer.App{{AppID: "x"}}
	assert.Equal(t, "last10:::x", StatsKey("", apps, nil))
	assert.Equal(t, "last10:::x", StatsKey("fortnight", apps, nil))
	assert.Equal(t, "mtd:only::x", StatsKey(" MTD ", apps, map[string][]string{"x": {"only"}}))
}

func TestFraudKey(t *testing.T) {
	apps := []appsflyer.App{{AppID: "b"}, {AppID: "a"}, {AppID: "b"}}
	assert.Equal(t, "lastmonth:a-b", FraudKey("lastmonth", apps))
	assert.Equal(t, "lastmonth:", PeriodPrefix("LastMonth"))
}

func TestRun_CacheHitServesStoredBytes(t *testing.T) {
	ctx := context.Background()
	f := newFakeFetcher()
	f.set("app1", appsflyer.DailyReport, csvOK(dailyCSV))
	m := metrics.New()
	svc := newTestService(f, cache.NewMemory(), Options{Metrics: m})

	first, err := svc.RunStats(ctx, statsRequest("app1"))
	require.NoError(t, err)
	calls := f.callCount()

	second, err := svc.RunStats(ctx, statsRequest("app1"))
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
	assert.False(t, second.Cached)
	assert.Equal(t, first.Key, second.Key)
	assert.Equal(t, first.Payload, second.Payload)
	assert.Equal(t, calls, f.callCount(), "a hit downloads nothing")
	assert.NotEqual(t, first.RunID, second.RunID)
}

func TestRun_ForceBypassesCache(t *testing.T) {
	ctx := context.Background()
	f := newFakeFetcher()
	f.set("app1", appsflyer.DailyReport, csvOK(dailyCSV))
	svc := newTestService(f, cache.NewMemory(), Options{})

	_, err := svc.RunStats(ctx, statsRequest("app1"))
	require.NoError(t, err)
	calls := f.callCount()

	req := statsRequest("app1")
	req.Force = true
	res, err := svc.RunStats(ctx, req)
	require.NoError(t, err)
	assert.False(t, res.CacheHit)
	assert.True(t, res.Cached)
	assert.Equal(t, 2*calls, f.callCount())
}

func TestRun_CachedEmptyAppListIsMiss(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemory()
	key := StatsKey("last10", []appsflyer.App{{AppID: "app1"}}, nil)
	require.NoError(t, store.Put(ctx, "stats|"+key, []byte(`{"period":"last10","apps":[]}`)))

	f := newFakeFetcher()
	f.set("app1", appsflyer.DailyReport, csvOK(dailyCSV))
	svc := newTestService(f, store, Options{})

	res, err := svc.RunStats(ctx, statsRequest("app1"))
	require.NoError(t, err)
	assert.False(t, res.CacheHit)
	assert.True(t, res.Cached)
	assert.True(t, f.called("app1", appsflyer.DailyReport))

	entry, err := store.Get(ctx, "stats|"+key)
	require.NoError(t, err)
	assert.Equal(t, res.Payload, entry.Payload)
}

func TestRun_HeldLockSkipsWrite(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemory()
	f := newFakeFetcher()
	f.set("app1", appsflyer.DailyReport, csvOK(dailyCSV))
	svc := newTestService(f, store, Options{
		Locks:    func(string) distlock.DistLock { return heldLock{} },
		LockWait: time.Millisecond,
	})

	res, err := svc.RunStats(ctx, statsRequest("app1"))
	require.NoError(t, err)
	assert.False(t, res.Cached)
	assert.NotEmpty(t, decodeStats(t, res).Apps, "the caller still gets the fresh payload")
	assert.Empty(t, store.Keys())
}

func TestRun_StoreFailureIsHardError(t *testing.T) {
	ctx := context.Background()
	f := newFakeFetcher()
	f.set("app1", appsflyer.DailyReport, csvOK(dailyCSV))
	svc := newTestService(f, failingStore{}, Options{})

	_, err := svc.RunStats(ctx, statsRequest("app1"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errStoreDown))
	assert.Zero(t, f.callCount(), "a broken cache read stops the run")

	req := statsRequest("app1")
	req.Force = true
	_, err = svc.RunStats(ctx, req)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errStoreDown))
	assert.Contains(t, err.Error(), "write stats cache")
}

func TestRun_StatsAndFraudDoNotShareEntries(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemory()
	f := newFakeFetcher()
	f.set("app1", appsflyer.DailyReport, csvOK(dailyCSV))
	f.set("app1", appsflyer.BlockedInstallsRT, csvOK("Install Time,Media Source\n2024-05-01 10:00:00,google_ads\n"))
	svc := newTestService(f, store, Options{})

	_, err := svc.RunStats(ctx, statsRequest("app1"))
	require.NoError(t, err)
	fraud, err := svc.RunFraud(ctx, statsRequest("app1"))
	require.NoError(t, err)
	assert.False(t, fraud.CacheHit)

	assert.ElementsMatch(t, []string{"stats|last10:::app1", "fraud|last10:app1"}, store.Keys())
}

func TestRunRequest_AppsDropsBlanksAndRepeats(t *testing.T) {
	req := RunRequest{Apps: []appsflyer.App{{AppID: "b"}, {AppID: ""}, {AppID: "a"}, {AppID: "b", AppName: "dup"}}}
	assert.Equal(t, []appsflyer.App{{AppID: "b"}, {AppID: "a"}}, req.apps())
}

func TestIsPlaceholderEvent(t *testing.T) {
	for _, name := range []string{
		"",
		"   ",
		"Maximum number of events reached",
		"Your current subscription package doesn't include raw data",
		"error",
		"Fetch FAILED",
	} {
		assert.True(t, IsPlaceholderEvent(name), name)
	}
	assert.False(t, IsPlaceholderEvent("af_purchase"))
}
