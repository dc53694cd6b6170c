package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/ignite/attribution-monitor/internal/appsflyer"
	"github.com/ignite/attribution-monitor/internal/pkg/httpretry"
)

var (
	// ErrAppAbandoned marks an app excluded from a run because its
	// mandatory downloads timed out.
	ErrAppAbandoned = errors.New("app abandoned")
	// ErrMissingColumns marks a daily report that lacks a required column.
	ErrMissingColumns = errors.New("missing required columns")
)

// Fetcher downloads one report export.
type Fetcher interface {
	Fetch(ctx context.Context, ep appsflyer.Endpoint, appID string, rng appsflyer.DateRange) httpretry.Result
}

// Kind names a report family.
type Kind string

const (
	KindStats  Kind = "stats"
	KindFraud  Kind = "fraud"
	KindEvents Kind = "events"
)

// DailyStatRow is one date of an app's traffic and fraud summary. Selected
// event counters are serialized as top-level keys named after the event.
type DailyStatRow struct {
	Date              string
	Impressions       int64
	Clicks            int64
	Installs          int64
	BlockedInstallsRT int64
	BlockedInstallsPA int64
	ImpToClick        float64
	ClickToInstall    float64
	BlockedRTRate     float64
	BlockedPARate     float64
	Events            map[string]int64
}

var dailyStatFields = map[string]bool{
	"date": true, "impressions": true, "clicks": true, "installs": true,
	"blocked_installs_rt": true, "blocked_installs_pa": true,
	"imp_to_click": true, "click_to_install": true,
	"blocked_rt_rate": true, "blocked_pa_rate": true,
}

// MarshalJSON flattens Events into the row object. Keys are emitted in
// sorted order, so equal rows encode to equal bytes.
func (r DailyStatRow) MarshalJSON() ([]byte, error) {
	m := map[string]interface{}{
		"date":                r.Date,
		"impressions":         r.Impressions,
		"clicks":              r.Clicks,
		"installs":            r.Installs,
		"blocked_installs_rt": r.BlockedInstallsRT,
		"blocked_installs_pa": r.BlockedInstallsPA,
		"imp_to_click":        r.ImpToClick,
		"click_to_install":    r.ClickToInstall,
		"blocked_rt_rate":     r.BlockedRTRate,
		"blocked_pa_rate":     r.BlockedPARate,
	}
	for name, n := range r.Events {
		if dailyStatFields[name] {
			continue
		}
		m[name] = n
	}
	return json.Marshal(m)
}

// UnmarshalJSON reverses MarshalJSON. Unknown numeric keys become events.
func (r *DailyStatRow) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var row DailyStatRow
	targets := map[string]interface{}{
		"date":                &row.Date,
		"impressions":         &row.Impressions,
		"clicks":              &row.Clicks,
		"installs":            &row.Installs,
		"blocked_installs_rt": &row.BlockedInstallsRT,
		"blocked_installs_pa": &row.BlockedInstallsPA,
		"imp_to_click":        &row.ImpToClick,
		"click_to_install":    &row.ClickToInstall,
		"blocked_rt_rate":     &row.BlockedRTRate,
		"blocked_pa_rate":     &row.BlockedPARate,
	}
	for k, v := range raw {
		if dst, ok := targets[k]; ok {
			if err := json.Unmarshal(v, dst); err != nil {
				return fmt.Errorf("field %s: %w", k, err)
			}
			continue
		}
		var n int64
		if err := json.Unmarshal(v, &n); err != nil {
			continue
		}
		if row.Events == nil {
			row.Events = make(map[string]int64)
		}
		row.Events[k] = n
	}
	*r = row
	return nil
}

// FraudRow is one (date, media source) of an app's fraud breakdown.
type FraudRow struct {
	Date                    string `json:"date"`
	MediaSource             string `json:"media_source"`
	BlockedInstallsRT       int64  `json:"blocked_installs_rt"`
	BlockedInstallsPA       int64  `json:"blocked_installs_pa"`
	BlockedInAppEvents      int64  `json:"blocked_in_app_events"`
	FraudPostInApps         int64  `json:"fraud_post_inapps"`
	BlockedClicks           int64  `json:"blocked_clicks"`
	BlockedInstallPostbacks int64  `json:"blocked_install_postbacks"`
	Event1                  int64  `json:"event1"`
	Event2                  int64  `json:"event2"`
}

// Blocked is blocked RT plus PA installs.
func (r FraudRow) Blocked() int64 {
	return r.BlockedInstallsRT + r.BlockedInstallsPA
}

// StatsAppReport is one app's entry in a stats payload.
type StatsAppReport struct {
	AppID          string         `json:"app_id"`
	AppName        string         `json:"app_name"`
	Table          []DailyStatRow `json:"table"`
	SelectedEvents []string       `json:"selected_events"`
	Traffic        int64          `json:"traffic"`
	Errors         []string       `json:"errors"`
}

// FraudAppReport is one app's entry in a fraud payload.
type FraudAppReport struct {
	AppID      string     `json:"app_id"`
	AppName    string     `json:"app_name"`
	Table      []FraudRow `json:"table"`
	Errors     []string   `json:"errors"`
	Event1Name string     `json:"event1_name"`
	Event2Name string     `json:"event2_name"`
}

// StatsPayload is what the stats cache stores and the API returns.
type StatsPayload struct {
	Period string           `json:"period"`
	From   string           `json:"from"`
	To     string           `json:"to"`
	Apps   []StatsAppReport `json:"apps"`
}

// FraudPayload is what the fraud cache stores and the API returns.
type FraudPayload struct {
	Period string           `json:"period"`
	From   string           `json:"from"`
	To     string           `json:"to"`
	Apps   []FraudAppReport `json:"apps"`
}

// RunRequest asks for one report over an app set.
type RunRequest struct {
	Apps           []appsflyer.App     `json:"apps"`
	Period         string              `json:"period"`
	SelectedEvents map[string][]string `json:"selected_events"`
	Force          bool                `json:"force"`
}

// apps returns the request's apps with blank and repeated IDs removed,
// keeping first occurrence order.
func (r RunRequest) apps() []appsflyer.App {
	seen := make(map[string]bool, len(r.Apps))
	out := make([]appsflyer.App, 0, len(r.Apps))
	for _, a := range r.Apps {
		if a.AppID == "" || seen[a.AppID] {
			continue
		}
		seen[a.AppID] = true
		out = append(out, a)
	}
	return out
}

// Skipped records an app left out of a run.
type Skipped struct {
	AppID  string `json:"app_id"`
	Reason string `json:"reason"`
}

// RunResult is the outcome of one orchestrator call. Payload is the exact
// JSON stored in (or served from) the cache.
type RunResult struct {
	RunID     string    `json:"run_id"`
	Kind      Kind      `json:"kind"`
	Key       string    `json:"key"`
	Payload   []byte    `json:"-"`
	CacheHit  bool      `json:"cache_hit"`
	Cached    bool      `json:"cached"`
	UpdatedAt time.Time `json:"updated_at"`
	Skipped   []Skipped `json:"skipped,omitempty"`
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
