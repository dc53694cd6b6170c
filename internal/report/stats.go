package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ignite/attribution-monitor/internal/appsflyer"
	"github.com/ignite/attribution-monitor/internal/reportcsv"
)

// mandatoryStatsTimeouts is how many of the daily report and the two
// blocked-install feeds must time out before an app is dropped.
const mandatoryStatsTimeouts = 3

// dayStats accumulates one date before rates are derived.
type dayStats struct {
	impressions     int64
	clicks          int64
	totalInstalls   int64
	organicInstalls int64
	blockedRT       int64
	blockedPA       int64
}

func (d *dayStats) installs() int64 {
	if n := d.totalInstalls - d.organicInstalls; n > 0 {
		return n
	}
	return 0
}

func (d *dayStats) empty() bool {
	return d.impressions == 0 && d.clicks == 0 && d.installs() == 0 && d.blockedRT == 0 && d.blockedPA == 0
}

// aggregateStats builds one app's daily table. It returns ErrAppAbandoned or
// ErrMissingColumns when the app must be left out of the run.
func aggregateStats(r *appRun, selected []string) (StatsAppReport, error) {
	selected = cleanSelections(selected)
	rep := StatsAppReport{
		AppID:          r.app.AppID,
		AppName:        r.app.AppName,
		SelectedEvents: selected,
		Table:          []DailyStatRow{},
	}

	days := make(map[string]*dayStats)
	day := func(date string) *dayStats {
		d, ok := days[date]
		if !ok {
			d = &dayStats{}
			days[date] = d
		}
		return d
	}

	if tbl, ok := r.fetch(appsflyer.DailyReport); ok {
		if err := addDailyReport(r, tbl, day); err != nil {
			return rep, err
		}
	}

	if tbl, ok := r.fetch(appsflyer.BlockedInstallsRT); ok {
		r.countByDate(appsflyer.BlockedInstallsRT, tbl, func(date string) { day(date).blockedRT++ })
	}
	if tbl, ok := r.fetch(appsflyer.BlockedInstallsPA); ok {
		r.countByDate(appsflyer.BlockedInstallsPA, tbl, func(date string) { day(date).blockedPA++ })
	}

	if r.timeouts >= mandatoryStatsTimeouts {
		return rep, fmt.Errorf("%w: %d of 3 mandatory downloads timed out", ErrAppAbandoned, r.timeouts)
	}

	events := countSelectedEvents(r, selected)

	dates := make([]string, 0, len(days))
	for date, d := range days {
		if !d.empty() {
			dates = append(dates, date)
		}
	}
	sort.Strings(dates)

	for _, date := range dates {
		row := finalizeDay(date, days[date])
		if len(selected) > 0 {
			row.Events = make(map[string]int64, len(selected))
			for _, name := range selected {
				row.Events[name] = events[date][name]
			}
		}
		rep.Table = append(rep.Table, row)
		rep.Traffic += row.Impressions + row.Clicks
	}

	r.errors = dedupe(r.errors)
	rep.Errors = r.errors
	return rep, nil
}

// addDailyReport folds the aggregate daily report into days.
func addDailyReport(r *appRun, tbl *reportcsv.Table, day func(string) *dayStats) error {
	if tbl.Empty() {
		r.fail("%s: no data returned", appsflyer.DailyReport.Name)
		return nil
	}

	cols, missing := reportcsv.Columns(tbl.Header,
		reportcsv.FieldImpressions,
		reportcsv.FieldClicks,
		reportcsv.FieldInstalls,
		reportcsv.FieldDate,
		reportcsv.FieldMediaSource,
	)
	if len(missing) > 0 {
		names := make([]string, len(missing))
		for i, f := range missing {
			names[i] = string(f)
		}
		return fmt.Errorf("%w in %s: %s", ErrMissingColumns, appsflyer.DailyReport.Name, strings.Join(names, ", "))
	}

	for _, row := range tbl.Rows {
		dateCell, ok := reportcsv.Cell(row, cols[reportcsv.FieldDate])
		if !ok {
			continue
		}
		date, ok := reportcsv.DatePart(dateCell)
		if !ok {
			continue
		}
		d := day(date)

		imp, _ := reportcsv.Cell(row, cols[reportcsv.FieldImpressions])
		clk, _ := reportcsv.Cell(row, cols[reportcsv.FieldClicks])
		ins, _ := reportcsv.Cell(row, cols[reportcsv.FieldInstalls])
		src, _ := reportcsv.Cell(row, cols[reportcsv.FieldMediaSource])

		installs := reportcsv.Int(ins)
		d.impressions += reportcsv.Int(imp)
		d.clicks += reportcsv.Int(clk)
		d.totalInstalls += installs
		if strings.ToLower(src) == "organic" {
			d.organicInstalls += installs
		}
	}
	return nil
}

// countSelectedEvents fetches the in-app events export once when at least
// one selection is a real event name and tallies matches per date.
func countSelectedEvents(r *appRun, selected []string) map[string]map[string]int64 {
	wanted := realEvents(selected)
	if len(wanted) == 0 {
		return nil
	}
	tbl, ok := r.fetch(appsflyer.InAppEvents)
	if !ok || tbl.Empty() {
		return nil
	}

	nameIdx := reportcsv.ResolveField(tbl.Header, reportcsv.FieldEventName)
	timeIdx := reportcsv.ResolveTime(tbl.Header, appsflyer.InAppEvents.TimeField)
	if nameIdx < 0 || timeIdx < 0 {
		r.fail("%s: event name or time column not found", appsflyer.InAppEvents.Name)
		return nil
	}

	counts := make(map[string]map[string]int64)
	for _, row := range tbl.Rows {
		name, ok := reportcsv.Cell(row, nameIdx)
		if !ok || !wanted[name] {
			continue
		}
		ts, ok := reportcsv.Cell(row, timeIdx)
		if !ok {
			continue
		}
		date, ok := reportcsv.DatePart(ts)
		if !ok {
			continue
		}
		if counts[date] == nil {
			counts[date] = make(map[string]int64)
		}
		counts[date][name]++
	}
	return counts
}

func finalizeDay(date string, d *dayStats) DailyStatRow {
	installs := d.installs()
	return DailyStatRow{
		Date:              date,
		Impressions:       d.impressions,
		Clicks:            d.clicks,
		Installs:          installs,
		BlockedInstallsRT: d.blockedRT,
		BlockedInstallsPA: d.blockedPA,
		ImpToClick:        ratio(d.clicks, d.impressions),
		ClickToInstall:    ratio(installs, d.clicks),
		BlockedRTRate:     ratio(d.blockedRT, installs),
		BlockedPARate:     ratio(d.blockedPA, installs),
	}
}

// ratio is num/den rounded half-up to 2 decimals, or 0 when den is 0.
func ratio(num, den int64) float64 {
	if den == 0 {
		return 0
	}
	f, _ := decimal.NewFromInt(num).DivRound(decimal.NewFromInt(den), 2).Float64()
	return f
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
