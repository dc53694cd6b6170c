package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/attribution-monitor/internal/inventory"
	"github.com/ignite/attribution-monitor/internal/pkg/httputil"
	"github.com/ignite/attribution-monitor/internal/selections"
)

func urlParam(r *http.Request, name string) string {
	return strings.TrimSpace(chi.URLParam(r, name))
}

// ListApps handles GET /api/apps. Apps switched off in the selections store
// are left out.
func (h *Handlers) ListApps(w http.ResponseWriter, r *http.Request) {
	apps, err := inventory.ActiveApps(r.Context(), h.apps, h.selections)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]interface{}{"apps": apps, "count": len(apps)})
}

// GetAppEvents handles GET /api/apps/{appID}/events?force=.
func (h *Handlers) GetAppEvents(w http.ResponseWriter, r *http.Request) {
	appID := urlParam(r, "appID")
	if appID == "" {
		httputil.BadRequest(w, "app id is required")
		return
	}
	list, err := h.reports.Events(r.Context(), appID, r.URL.Query().Get("force") == "true")
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, list)
}

// ListSelections handles GET /api/event-selections.
func (h *Handlers) ListSelections(w http.ResponseWriter, r *http.Request) {
	if h.selections == nil {
		httputil.OK(w, map[string]interface{}{"selections": []selections.Selection{}})
		return
	}
	list, err := h.selections.List(r.Context())
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if list == nil {
		list = []selections.Selection{}
	}
	httputil.OK(w, map[string]interface{}{"selections": list})
}

// selectionInput leaves the active flag alone when is_active is omitted.
type selectionInput struct {
	AppID    string `json:"app_id"`
	Event1   string `json:"event1"`
	Event2   string `json:"event2"`
	IsActive *bool  `json:"is_active"`
}

// SaveSelections handles POST /api/event-selections with
// {"selections":[{app_id, event1, event2, is_active?}]}.
func (h *Handlers) SaveSelections(w http.ResponseWriter, r *http.Request) {
	if h.selections == nil {
		httputil.Error(w, http.StatusServiceUnavailable, "selection store not configured")
		return
	}
	var body struct {
		Selections []selectionInput `json:"selections"`
	}
	if !httputil.Decode(w, r, &body) {
		return
	}
	if len(body.Selections) == 0 {
		httputil.BadRequest(w, "selections must not be empty")
		return
	}
	for _, in := range body.Selections {
		if strings.TrimSpace(in.AppID) == "" {
			httputil.BadRequest(w, "every selection needs an app_id")
			return
		}
	}

	ctx := r.Context()
	saved := make([]selections.Selection, 0, len(body.Selections))
	for _, in := range body.Selections {
		sel := selections.Selection{AppID: strings.TrimSpace(in.AppID), Event1: in.Event1, Event2: in.Event2, IsActive: true}
		if in.IsActive != nil {
			sel.IsActive = *in.IsActive
		} else {
			existing, err := h.selections.Get(ctx, sel.AppID)
			switch {
			case err == nil:
				sel.IsActive = existing.IsActive
			case !errors.Is(err, selections.ErrNotFound):
				httputil.InternalError(w, err)
				return
			}
		}
		if err := h.selections.Save(ctx, sel); err != nil {
			httputil.InternalError(w, err)
			return
		}
		saved = append(saved, sel)
	}
	httputil.OK(w, map[string]interface{}{"saved": len(saved), "selections": saved})
}

// SetAppActive handles POST /api/apps/{appID}/active with {"active": bool}.
func (h *Handlers) SetAppActive(w http.ResponseWriter, r *http.Request) {
	if h.selections == nil {
		httputil.Error(w, http.StatusServiceUnavailable, "selection store not configured")
		return
	}
	appID := urlParam(r, "appID")
	var body struct {
		Active *bool `json:"active"`
	}
	if !httputil.Decode(w, r, &body) {
		return
	}
	if body.Active == nil {
		httputil.BadRequest(w, "active is required")
		return
	}
	if err := h.selections.SetActive(r.Context(), appID, *body.Active); err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]interface{}{"app_id": appID, "is_active": *body.Active})
}
