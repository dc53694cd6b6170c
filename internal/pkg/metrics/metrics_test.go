package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveFetch(t *testing.T) {
	m := New()
	m.ObserveFetch("daily_report", "success", 1)
	m.ObserveFetch("daily_report", "success", 2)
	m.ObserveFetch("blocked_clicks", "limited", 1)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.FetchOutcomes.WithLabelValues("daily_report", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FetchOutcomes.WithLabelValues("blocked_clicks", "limited")))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveFetch("x", "timeout", 1)
	m.ObserveRun("stats", time.Now())
	m.ObserveCache("stats", "hit")
	m.ObserveAbandoned("fraud")
	m.ObserveArchive(true)
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveCache("fraud", "miss")

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `attribution_cache_lookups_total{kind="fraud",result="miss"} 1`)
}
