package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/ignite/attribution-monitor/internal/pkg/httputil"
	"github.com/ignite/attribution-monitor/internal/report"
)

type runFunc func(ctx context.Context, req report.RunRequest) (*report.RunResult, error)

// RunStats handles POST /api/stats. The response body is the cached or
// freshly built stats payload, byte for byte.
func (h *Handlers) RunStats(w http.ResponseWriter, r *http.Request) {
	h.runReport(w, r, h.reports.RunStats)
}

// RunFraud handles POST /api/fraud.
func (h *Handlers) RunFraud(w http.ResponseWriter, r *http.Request) {
	h.runReport(w, r, h.reports.RunFraud)
}

func (h *Handlers) runReport(w http.ResponseWriter, r *http.Request, run runFunc) {
	var req report.RunRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if len(req.Apps) == 0 {
		httputil.BadRequest(w, "apps must list at least one app")
		return
	}
	if r.URL.Query().Get("force") == "true" {
		req.Force = true
	}

	res, err := run(r.Context(), req)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}

	cacheState := "miss"
	if res.CacheHit {
		cacheState = "hit"
	}
	w.Header().Set("X-Cache", cacheState)
	w.Header().Set("X-Run-Id", res.RunID)
	if len(res.Skipped) > 0 {
		ids := make([]string, len(res.Skipped))
		for i, s := range res.Skipped {
			ids[i] = s.AppID
		}
		w.Header().Set("X-Skipped-Apps", strings.Join(ids, ","))
		if reasons, err := json.Marshal(res.Skipped); err == nil {
			w.Header().Set("X-Skipped-Reasons", string(reasons))
		}
	}
	httputil.RawJSON(w, http.StatusOK, res.Payload)
}

// GetOverview handles GET /api/overview?period=.
func (h *Handlers) GetOverview(w http.ResponseWriter, r *http.Request) {
	period := r.URL.Query().Get("period")
	if period == "" {
		period = h.overviewPeriod()
	}
	ov, err := h.reports.Overview(r.Context(), period)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, ov)
}

// ClearCache handles POST /api/cache/clear and /api/cache/clear/{kind}.
func (h *Handlers) ClearCache(w http.ResponseWriter, r *http.Request) {
	kind := urlParam(r, "kind")
	if kind == "" {
		kind = r.URL.Query().Get("kind")
	}
	switch report.Kind(kind) {
	case report.KindStats, report.KindFraud, report.KindEvents, "", "all":
	default:
		httputil.BadRequest(w, "kind must be stats, fraud, events or all")
		return
	}

	n, err := h.reports.Clear(r.Context(), kind)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if kind == "" {
		kind = "all"
	}
	httputil.OK(w, map[string]interface{}{"cleared": kind, "entries": n})
}
