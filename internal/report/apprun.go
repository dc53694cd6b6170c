package report

import (
	"context"
	"fmt"
	"time"

	"github.com/ignite/attribution-monitor/internal/appsflyer"
	"github.com/ignite/attribution-monitor/internal/archive"
	"github.com/ignite/attribution-monitor/internal/pkg/httpretry"
	"github.com/ignite/attribution-monitor/internal/pkg/logger"
	"github.com/ignite/attribution-monitor/internal/reportcsv"
)

// appRun carries one app's downloads through a run. Its counters and error
// list belong to that app alone.
type appRun struct {
	ctx      context.Context
	fetcher  Fetcher
	archiver archive.Archiver
	log      *logger.Logger

	app    appsflyer.App
	period string
	rng    appsflyer.DateRange

	errors    []string
	attempted int
	timeouts  int
}

func newAppRun(ctx context.Context, s *Service, log *logger.Logger, app appsflyer.App, period string, rng appsflyer.DateRange) *appRun {
	return &appRun{
		ctx:      ctx,
		fetcher:  s.fetcher,
		archiver: s.archiver,
		log:      log.With("app_id", app.AppID),
		app:      app,
		period:   period,
		rng:      rng,
		errors:   []string{},
	}
}

func (r *appRun) fail(format string, args ...interface{}) {
	r.errors = append(r.errors, fmt.Sprintf(format, args...))
}

// fetch downloads ep and parses it. ok is false when the download failed or
// the body was not CSV; the failure is already recorded.
func (r *appRun) fetch(ep appsflyer.Endpoint) (*reportcsv.Table, bool) {
	r.attempted++
	res := r.fetcher.Fetch(r.ctx, ep, r.app.AppID, r.rng)
	if !res.OK() {
		if res.Kind == httpretry.KindTimeout {
			r.timeouts++
		}
		r.fail("%s: %s", ep.Name, res.Describe())
		r.log.Warn("report download failed", "endpoint", ep.Name, "outcome", res.Kind.String(), "detail", res.Describe())
		return nil, false
	}

	r.archive(ep, res.Body)

	tbl, err := reportcsv.Parse(res.Body)
	if err != nil {
		r.fail("%s: unreadable CSV: %v", ep.Name, err)
		r.log.Warn("report parse failed", "endpoint", ep.Name, "error", err)
		return nil, false
	}
	return tbl, true
}

func (r *appRun) archive(ep appsflyer.Endpoint, body []byte) {
	if r.archiver == nil || len(body) == 0 {
		return
	}
	err := r.archiver.Archive(r.ctx, archive.Export{
		AppID:     r.app.AppID,
		Endpoint:  ep.Name,
		Period:    r.period,
		From:      r.rng.From,
		To:        r.rng.To,
		Body:      body,
		FetchedAt: time.Now().UTC(),
	})
	if err != nil {
		r.log.Warn("raw export not archived", "endpoint", ep.Name, "error", err)
	}
}

// countByDate tallies rows of tbl per date of its time column. Rows that are
// too short or carry no parseable date are skipped.
func (r *appRun) countByDate(ep appsflyer.Endpoint, tbl *reportcsv.Table, add func(date string)) {
	if tbl.Empty() {
		return
	}
	timeIdx := reportcsv.ResolveTime(tbl.Header, ep.TimeField)
	if timeIdx < 0 {
		r.fail("%s: column %q not found", ep.Name, ep.TimeField)
		return
	}
	for _, row := range tbl.Rows {
		cell, ok := reportcsv.Cell(row, timeIdx)
		if !ok {
			continue
		}
		if date, ok := reportcsv.DatePart(cell); ok {
			add(date)
		}
	}
}
