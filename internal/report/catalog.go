package report

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ignite/attribution-monitor/internal/appsflyer"
	"github.com/ignite/attribution-monitor/internal/pkg/logger"
	"github.com/ignite/attribution-monitor/internal/reportcsv"
)

// EventList is the set of in-app event names seen for an app recently.
type EventList struct {
	AppID  string   `json:"app_id"`
	Events []string `json:"events"`
	From   string   `json:"from"`
	To     string   `json:"to"`
	Cached bool     `json:"cached"`
	Error  string   `json:"error,omitempty"`
}

// Events lists the distinct event names in appID's in-app events export
// over the lookback window. Successful lookups are cached per app; failed
// ones are reported in Error and not cached.
func (s *Service) Events(ctx context.Context, appID string, force bool) (*EventList, error) {
	if !force {
		entry, err := s.events.Get(ctx, appID)
		if err != nil {
			return nil, fmt.Errorf("read events cache: %w", err)
		}
		if entry != nil {
			var list EventList
			if err := json.Unmarshal(entry.Payload, &list); err == nil {
				s.metrics.ObserveCache(string(KindEvents), "hit")
				list.Cached = true
				return &list, nil
			}
		}
		s.metrics.ObserveCache(string(KindEvents), "miss")
	}

	rng := appsflyer.LookbackRange(s.eventDays, s.now(), s.loc)
	list := &EventList{AppID: appID, Events: []string{}, From: rng.From, To: rng.To}

	res := s.fetcher.Fetch(ctx, appsflyer.InAppEvents, appID, rng)
	if !res.OK() {
		list.Error = res.Describe()
		logger.Warn("event discovery failed", "app_id", appID, "outcome", res.Kind.String())
		return list, nil
	}

	tbl, err := reportcsv.Parse(res.Body)
	if err != nil {
		list.Error = fmt.Sprintf("unreadable CSV: %v", err)
		return list, nil
	}
	if !tbl.Empty() {
		idx := reportcsv.ResolveField(tbl.Header, reportcsv.FieldEventName)
		if idx < 0 {
			list.Error = "event name column not found"
			return list, nil
		}
		names := make(map[string]bool)
		for _, row := range tbl.Rows {
			if name, ok := reportcsv.Cell(row, idx); ok && name != "" {
				names[name] = true
			}
		}
		list.Events = sortedKeys(names)
	}

	body, err := json.Marshal(list)
	if err != nil {
		return nil, err
	}
	if err := s.events.Put(ctx, appID, body); err != nil {
		return nil, fmt.Errorf("write events cache: %w", err)
	}
	return list, nil
}
