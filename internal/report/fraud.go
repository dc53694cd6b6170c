package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ignite/attribution-monitor/internal/appsflyer"
	"github.com/ignite/attribution-monitor/internal/reportcsv"
)

type fraudKey struct {
	date   string
	source string
}

// fraudFeed binds a raw export to the counter it feeds. A nil counter means
// the export is downloaded for the archive only.
type fraudFeed struct {
	endpoint appsflyer.Endpoint
	counter  func(*FraudRow) *int64
}

// fraudFeeds is the fixed download order.
var fraudFeeds = []fraudFeed{
	{appsflyer.Installs, nil},
	{appsflyer.BlockedInstallsRT, func(r *FraudRow) *int64 { return &r.BlockedInstallsRT }},
	{appsflyer.BlockedInstallsPA, func(r *FraudRow) *int64 { return &r.BlockedInstallsPA }},
	{appsflyer.BlockedInAppEvents, func(r *FraudRow) *int64 { return &r.BlockedInAppEvents }},
	{appsflyer.FraudPostInApps, func(r *FraudRow) *int64 { return &r.FraudPostInApps }},
	{appsflyer.BlockedClicks, func(r *FraudRow) *int64 { return &r.BlockedClicks }},
	{appsflyer.BlockedInstallPostbacks, func(r *FraudRow) *int64 { return &r.BlockedInstallPostbacks }},
}

// fraudAccumulator holds one row per (date, media source).
type fraudAccumulator map[fraudKey]*FraudRow

func (acc fraudAccumulator) row(date, source string) *FraudRow {
	k := fraudKey{date: date, source: source}
	row, ok := acc[k]
	if !ok {
		row = &FraudRow{Date: date, MediaSource: source}
		acc[k] = row
	}
	return row
}

func (acc fraudAccumulator) rows() []FraudRow {
	out := make([]FraudRow, 0, len(acc))
	for _, row := range acc {
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].MediaSource < out[j].MediaSource
	})
	return out
}

// aggregateFraud builds one app's (date, source) fraud table. The app is
// abandoned only when every attempted download timed out.
func aggregateFraud(r *appRun, selected []string) (FraudAppReport, error) {
	var event1, event2 string
	if len(selected) > 0 {
		event1 = strings.TrimSpace(selected[0])
	}
	if len(selected) > 1 {
		event2 = strings.TrimSpace(selected[1])
	}
	rep := FraudAppReport{
		AppID:      r.app.AppID,
		AppName:    r.app.AppName,
		Event1Name: event1,
		Event2Name: event2,
		Table:      []FraudRow{},
	}

	acc := make(fraudAccumulator)

	for _, feed := range fraudFeeds {
		tbl, ok := r.fetch(feed.endpoint)
		if !ok || feed.counter == nil || tbl.Empty() {
			continue
		}
		r.tallySources(feed.endpoint, tbl, func(date, source string, _ []string) {
			*feed.counter(acc.row(date, source))++
		})
	}

	use1 := !IsPlaceholderEvent(event1)
	use2 := !IsPlaceholderEvent(event2)
	if use1 || use2 {
		if tbl, ok := r.fetch(appsflyer.InAppEvents); ok && !tbl.Empty() {
			nameIdx := reportcsv.ResolveField(tbl.Header, reportcsv.FieldEventName)
			if nameIdx < 0 {
				r.fail("%s: column %q not found", appsflyer.InAppEvents.Name, "Event Name")
			} else {
				r.tallySources(appsflyer.InAppEvents, tbl, func(date, source string, row []string) {
					name, _ := reportcsv.Cell(row, nameIdx)
					hit1 := use1 && name == event1
					hit2 := use2 && name == event2
					if !hit1 && !hit2 {
						return
					}
					fr := acc.row(date, source)
					if hit1 {
						fr.Event1++
					}
					if hit2 {
						fr.Event2++
					}
				})
			}
		}
	}

	if r.attempted > 0 && r.timeouts == r.attempted {
		return rep, fmt.Errorf("%w: all %d downloads timed out", ErrAppAbandoned, r.attempted)
	}

	rep.Table = acc.rows()
	rep.Errors = dedupe(r.errors)
	return rep, nil
}

// tallySources calls add for every row of tbl that has a date and a media
// source column. Short rows and unparseable dates are skipped.
func (r *appRun) tallySources(ep appsflyer.Endpoint, tbl *reportcsv.Table, add func(date, source string, row []string)) {
	timeIdx := reportcsv.ResolveTime(tbl.Header, ep.TimeField)
	srcIdx := reportcsv.ResolveField(tbl.Header, reportcsv.FieldMediaSource)
	if timeIdx < 0 || srcIdx < 0 {
		var missing []string
		if timeIdx < 0 {
			missing = append(missing, ep.TimeField)
		}
		if srcIdx < 0 {
			missing = append(missing, "Media Source")
		}
		r.fail("%s: columns not found: %s", ep.Name, strings.Join(missing, ", "))
		return
	}

	for _, row := range tbl.Rows {
		ts, ok := reportcsv.Cell(row, timeIdx)
		if !ok {
			continue
		}
		source, ok := reportcsv.Cell(row, srcIdx)
		if !ok {
			continue
		}
		date, ok := reportcsv.DatePart(ts)
		if !ok {
			continue
		}
		add(date, source, row)
	}
}
