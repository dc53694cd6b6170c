package report

import (
	"sort"
	"strings"

	"github.com/ignite/attribution-monitor/internal/appsflyer"
)

// appIDs returns the sorted, de-duplicated app IDs.
func appIDs(apps []appsflyer.App) []string {
	seen := make(map[string]bool, len(apps))
	for _, a := range apps {
		if a.AppID != "" {
			seen[a.AppID] = true
		}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// StatsKey is "{period}:{event1}:{event2}:{ids}". The events are the first
// two selections of the lowest app ID, so the key does not depend on the
// order apps were listed in.
func StatsKey(period string, apps []appsflyer.App, selected map[string][]string) string {
	ids := appIDs(apps)
	var e1, e2 string
	if len(ids) > 0 {
		ev := selected[ids[0]]
		if len(ev) > 0 {
			e1 = strings.TrimSpace(ev[0])
		}
		if len(ev) > 1 {
			e2 = strings.TrimSpace(ev[1])
		}
	}
	return strings.Join([]string{appsflyer.NormalizePeriod(period), e1, e2, strings.Join(ids, "-")}, ":")
}

// FraudKey is "{period}:{ids}".
func FraudKey(period string, apps []appsflyer.App) string {
	return appsflyer.NormalizePeriod(period) + ":" + strings.Join(appIDs(apps), "-")
}

// PeriodPrefix matches every key of period in either namespace.
func PeriodPrefix(period string) string {
	return appsflyer.NormalizePeriod(period) + ":"
}
