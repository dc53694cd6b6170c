package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/attribution-monitor/internal/appsflyer"
	"github.com/ignite/attribution-monitor/internal/cache"
	"github.com/ignite/attribution-monitor/internal/inventory"
	"github.com/ignite/attribution-monitor/internal/pkg/metrics"
	"github.com/ignite/attribution-monitor/internal/report"
	"github.com/ignite/attribution-monitor/internal/selections"
)

const dailyCSV = "Date,Media Source (pid),Impressions,Clicks,Installs\n2024-05-01,google_ads,100,10,3\n"

// platformStub serves the daily report for every app and empty exports for
// everything else.
func platformStub(t *testing.T, hits *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		if r.Header.Get("Authorization") != "Bearer test-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if strings.Contains(r.URL.Path, "/daily_report/") {
			io.WriteString(w, dailyCSV)
			return
		}
		if strings.Contains(r.URL.Path, "/in_app_events_report/") {
			io.WriteString(w, "Event Time,Event Name\n2024-05-09 10:00:00,purchase\n")
			return
		}
		io.WriteString(w, "")
	}))
	t.Cleanup(srv.Close)
	return srv
}

type testEnv struct {
	router http.Handler
	hits   *int32
	sel    *selections.MemoryStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	var hits int32
	srv := platformStub(t, &hits)

	client := appsflyer.NewClient(appsflyer.Config{
		BaseURL:    srv.URL,
		APIToken:   "test-token",
		Timeout:    5 * time.Second,
		MaxRetries: 1,
		RetryDelay: time.Millisecond,
	})
	m := metrics.New()
	client.SetMetrics(m)

	svc := report.NewService(client, cache.NewMemory(), report.Options{
		Metrics: m,
		Now:     func() time.Time { return time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC) },
	})
	sel := selections.NewMemoryStore()
	inv := inventory.Static{{AppID: "com.a", AppName: "Alpha"}, {AppID: "com.b", AppName: "Beta"}}

	h := NewHandlers(svc, inv, sel)
	h.SetMetrics(m)
	h.SetHealthChecker(NewHealthChecker(nil, nil, nil, ""))
	return &testEnv{router: SetupRoutes(h), hits: &hits, sel: sel}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func TestHealthCheck(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.Equal(t, "attribution-monitor", rec.Header().Get("X-Server-Identity"))

	rec = env.do(t, http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadiness_RedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	hc := NewHealthChecker(nil, client, nil, "")
	rec := httptest.NewRecorder()
	hc.HandleReadiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	mr.Close()
	rec = httptest.NewRecorder()
	hc.HandleReadiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"redis"`)
}

func TestRunStats_MissThenHit(t *testing.T) {
	env := newTestEnv(t)
	body := map[string]interface{}{
		"apps":   []map[string]string{{"app_id": "com.a", "app_name": "Alpha"}},
		"period": "last10",
	}

	first := env.do(t, http.MethodPost, "/api/stats", body)
	require.Equal(t, http.StatusOK, first.Code, first.Body.String())
	assert.Equal(t, "miss", first.Header().Get("X-Cache"))
	assert.NotEmpty(t, first.Header().Get("X-Run-Id"))
	hits := atomic.LoadInt32(env.hits)
	assert.Equal(t, int32(3), hits)

	var p report.StatsPayload
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &p))
	require.Len(t, p.Apps, 1)
	assert.Equal(t, int64(110), p.Apps[0].Traffic)

	second := env.do(t, http.MethodPost, "/api/stats", body)
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "hit", second.Header().Get("X-Cache"))
	assert.Equal(t, first.Body.Bytes(), second.Body.Bytes())
	assert.Equal(t, hits, atomic.LoadInt32(env.hits))

	forced := env.do(t, http.MethodPost, "/api/stats?force=true", body)
	assert.Equal(t, "miss", forced.Header().Get("X-Cache"))
	assert.Equal(t, 2*hits, atomic.LoadInt32(env.hits))
}

func TestRunFraud(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/api/fraud", map[string]interface{}{
		"apps": []map[string]string{{"app_id": "com.a"}},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var p report.FraudPayload
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.Equal(t, "last10", p.Period)
	require.Len(t, p.Apps, 1)
	assert.Empty(t, p.Apps[0].Table)
}

func TestRunReport_Validation(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/stats", map[string]interface{}{"apps": []string{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/fraud", strings.NewReader("{not json"))
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestOverviewAndClear(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/api/stats", map[string]interface{}{
		"apps": []map[string]string{{"app_id": "com.a"}}, "period": "last30",
	})

	rec := env.do(t, http.MethodGet, "/api/overview", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var ov report.Overview
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ov))
	assert.Equal(t, "last30", ov.Period)
	assert.Equal(t, 1, ov.Apps)
	assert.Equal(t, int64(100), ov.Totals.Impressions)

	rec = env.do(t, http.MethodPost, "/api/cache/clear/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"cleared":"stats","entries":1}`, rec.Body.String())

	rec = env.do(t, http.MethodPost, "/api/cache/clear/installs", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/cache/clear", nil)
	assert.JSONEq(t, `{"cleared":"all","entries":0}`, rec.Body.String())
}

func TestAppsAndSelections(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/apps/com.b/active", map[string]bool{"active": false})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/apps", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var apps struct {
		Apps  []appsflyer.App `json:"apps"`
		Count int             `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apps))
	assert.Equal(t, 1, apps.Count)
	assert.Equal(t, "com.a", apps.Apps[0].AppID)

	rec = env.do(t, http.MethodPost, "/api/event-selections", map[string]interface{}{
		"selections": []map[string]string{{"app_id": "com.b", "event1": "purchase"}},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	sel, err := env.sel.Get(context.Background(), "com.b")
	require.NoError(t, err)
	assert.Equal(t, "purchase", sel.Event1)
	assert.False(t, sel.IsActive, "omitted is_active keeps the saved flag")

	rec = env.do(t, http.MethodGet, "/api/event-selections", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"event1":"purchase"`)

	rec = env.do(t, http.MethodPost, "/api/event-selections", map[string]interface{}{
		"selections": []map[string]string{{"event1": "purchase"}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/apps/com.a/active", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetAppEvents(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/apps/com.a/events", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list report.EventList
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, []string{"purchase"}, list.Events)
	assert.False(t, list.Cached)

	rec = env.do(t, http.MethodGet, "/api/apps/com.a/events", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.True(t, list.Cached)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/api/stats", map[string]interface{}{
		"apps": []map[string]string{{"app_id": "com.a"}},
	})

	rec := env.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "attribution_fetch_outcomes_total")
}

type failingReports struct{ Reports }

func (failingReports) RunStats(context.Context, report.RunRequest) (*report.RunResult, error) {
	return nil, errors.New("pq: connection refused")
}

func TestRunStats_StoreFailureIsSanitized(t *testing.T) {
	h := NewHandlers(failingReports{}, inventory.Static{}, nil)
	router := SetupRoutes(h)

	req := httptest.NewRequest(http.MethodPost, "/api/stats", strings.NewReader(`{"apps":[{"app_id":"x"}]}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "pq:")
}

type skippingReports struct{ Reports }

func (skippingReports) RunStats(context.Context, report.RunRequest) (*report.RunResult, error) {
	return &report.RunResult{
		RunID:   "run-1",
		Kind:    report.KindStats,
		Payload: []byte(`{"apps":[]}`),
		Skipped: []report.Skipped{{AppID: "com.b", Reason: "daily_report: missing required columns: clicks"}},
	}, nil
}

func TestRunStats_ReportsSkipReasons(t *testing.T) {
	router := SetupRoutes(NewHandlers(skippingReports{}, inventory.Static{}, nil))

	req := httptest.NewRequest(http.MethodPost, "/api/stats", strings.NewReader(`{"apps":[{"app_id":"com.b"}]}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "com.b", rec.Header().Get("X-Skipped-Apps"))

	var skipped []report.Skipped
	require.NoError(t, json.Unmarshal([]byte(rec.Header().Get("X-Skipped-Reasons")), &skipped))
	require.Len(t, skipped, 1)
	assert.Equal(t, "com.b", skipped[0].AppID)
	assert.Contains(t, skipped[0].Reason, "missing required columns")
}
