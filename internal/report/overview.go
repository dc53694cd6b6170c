package report

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/ignite/attribution-monitor/internal/appsflyer"
)

const overviewTopN = 5

// Totals sums the stats table of every app.
type Totals struct {
	Impressions       int64 `json:"impressions"`
	Clicks            int64 `json:"clicks"`
	Installs          int64 `json:"installs"`
	BlockedInstallsRT int64 `json:"blocked_installs_rt"`
	BlockedInstallsPA int64 `json:"blocked_installs_pa"`
}

// TrendPoint is Totals for one date.
type TrendPoint struct {
	Date string `json:"date"`
	Totals
}

// SourceCount is one media source's blocked installs.
type SourceCount struct {
	MediaSource string `json:"media_source"`
	Blocked     int64  `json:"blocked"`
}

// AppFraud summarizes one app's blocked installs.
type AppFraud struct {
	AppID      string        `json:"app_id"`
	AppName    string        `json:"app_name"`
	Blocked    int64         `json:"blocked"`
	TopSources []SourceCount `json:"top_sources"`
}

// Overview is the dashboard summary built from the latest cached payloads.
type Overview struct {
	Period         string       `json:"period"`
	StatsUpdatedAt *time.Time   `json:"stats_updated_at,omitempty"`
	FraudUpdatedAt *time.Time   `json:"fraud_updated_at,omitempty"`
	Apps           int          `json:"apps"`
	Totals         Totals       `json:"totals"`
	Trend          []TrendPoint `json:"trend"`
	TopFraudApps   []AppFraud   `json:"top_fraud_apps"`
}

// Overview summarizes the most recently written stats and fraud entries of
// period. It never triggers downloads.
func (s *Service) Overview(ctx context.Context, period string) (*Overview, error) {
	period = appsflyer.NormalizePeriod(period)
	ov := &Overview{Period: period, Trend: []TrendPoint{}, TopFraudApps: []AppFraud{}}

	statsEntry, err := s.stats.Latest(ctx, PeriodPrefix(period))
	if err != nil {
		return nil, fmt.Errorf("read stats cache: %w", err)
	}
	if statsEntry != nil {
		var p StatsPayload
		if err := json.Unmarshal(statsEntry.Payload, &p); err != nil {
			return nil, fmt.Errorf("decode stats payload %s: %w", statsEntry.Key, err)
		}
		t := statsEntry.UpdatedAt
		ov.StatsUpdatedAt = &t
		ov.Apps = len(p.Apps)
		ov.Totals, ov.Trend = summarizeStats(p.Apps)
	}

	fraudEntry, err := s.fraud.Latest(ctx, PeriodPrefix(period))
	if err != nil {
		return nil, fmt.Errorf("read fraud cache: %w", err)
	}
	if fraudEntry != nil {
		var p FraudPayload
		if err := json.Unmarshal(fraudEntry.Payload, &p); err != nil {
			return nil, fmt.Errorf("decode fraud payload %s: %w", fraudEntry.Key, err)
		}
		t := fraudEntry.UpdatedAt
		ov.FraudUpdatedAt = &t
		ov.TopFraudApps = topFraudApps(p.Apps)
	}
	return ov, nil
}

func summarizeStats(apps []StatsAppReport) (Totals, []TrendPoint) {
	var total Totals
	byDate := make(map[string]*Totals)
	for _, app := range apps {
		for _, row := range app.Table {
			d, ok := byDate[row.Date]
			if !ok {
				d = &Totals{}
				byDate[row.Date] = d
			}
			for _, t := range []*Totals{&total, d} {
				t.Impressions += row.Impressions
				t.Clicks += row.Clicks
				t.Installs += row.Installs
				t.BlockedInstallsRT += row.BlockedInstallsRT
				t.BlockedInstallsPA += row.BlockedInstallsPA
			}
		}
	}

	trend := make([]TrendPoint, 0, len(byDate))
	for date, t := range byDate {
		trend = append(trend, TrendPoint{Date: date, Totals: *t})
	}
	sort.Slice(trend, func(i, j int) bool { return trend[i].Date < trend[j].Date })
	return total, trend
}

func topFraudApps(apps []FraudAppReport) []AppFraud {
	out := make([]AppFraud, 0, len(apps))
	for _, app := range apps {
		bySource := make(map[string]int64)
		var blocked int64
		for _, row := range app.Table {
			bySource[row.MediaSource] += row.Blocked()
			blocked += row.Blocked()
		}
		if blocked == 0 {
			continue
		}
		sources := make([]SourceCount, 0, len(bySource))
		for src, n := range bySource {
			if n > 0 {
				sources = append(sources, SourceCount{MediaSource: src, Blocked: n})
			}
		}
		sort.Slice(sources, func(i, j int) bool {
			if sources[i].Blocked != sources[j].Blocked {
				return sources[i].Blocked > sources[j].Blocked
			}
			return sources[i].MediaSource < sources[j].MediaSource
		})
		if len(sources) > overviewTopN {
			sources = sources[:overviewTopN]
		}
		out = append(out, AppFraud{AppID: app.AppID, AppName: app.AppName, Blocked: blocked, TopSources: sources})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Blocked > out[j].Blocked })
	if len(out) > overviewTopN {
		out = out[:overviewTopN]
	}
	return out
}
