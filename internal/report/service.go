// Package report turns raw attribution exports into per-app daily stats and
// fraud tables and caches the results under deterministic keys.
package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ignite/attribution-monitor/internal/appsflyer"
	"github.com/ignite/attribution-monitor/internal/archive"
	"github.com/ignite/attribution-monitor/internal/cache"
	"github.com/ignite/attribution-monitor/internal/pkg/distlock"
	"github.com/ignite/attribution-monitor/internal/pkg/logger"
	"github.com/ignite/attribution-monitor/internal/pkg/metrics"
)

// Options tunes a Service. Zero values get defaults.
type Options struct {
	// Concurrency is how many apps of one run are processed at once.
	Concurrency int
	// Location is the reference timezone for period ranges.
	Location *time.Location
	// Locks serializes cache writes per key. Defaults to process-local.
	Locks distlock.Factory
	// LockWait bounds how long a write waits for another writer of the
	// same key.
	LockWait time.Duration
	// Archiver receives successful raw downloads. Nil disables archiving.
	Archiver archive.Archiver
	Metrics  *metrics.Metrics
	// EventLookbackDays is the window used for event discovery.
	EventLookbackDays int
	// Now overrides the clock (tests).
	Now func() time.Time
}

// Service is the report orchestrator.
type Service struct {
	fetcher  Fetcher
	stats    cache.Store
	fraud    cache.Store
	events   cache.Store
	archiver archive.Archiver
	metrics  *metrics.Metrics
	locks    distlock.Factory

	concurrency int
	loc         *time.Location
	lockWait    time.Duration
	eventDays   int
	now         func() time.Time
}

// NewService wires the orchestrator over store. Stats, fraud and event
// payloads live in separate namespaces of the same store.
func NewService(fetcher Fetcher, store cache.Store, opts Options) *Service {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Locks == nil {
		opts.Locks = distlock.NewLocal().Lock
	}
	if opts.LockWait <= 0 {
		opts.LockWait = 30 * time.Second
	}
	if opts.EventLookbackDays <= 0 {
		opts.EventLookbackDays = 10
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		fetcher:     fetcher,
		stats:       cache.WithNamespace(store, string(KindStats)),
		fraud:       cache.WithNamespace(store, string(KindFraud)),
		events:      cache.WithNamespace(store, string(KindEvents)),
		archiver:    opts.Archiver,
		metrics:     opts.Metrics,
		locks:       opts.Locks,
		concurrency: opts.Concurrency,
		loc:         opts.Location,
		lockWait:    opts.LockWait,
		eventDays:   opts.EventLookbackDays,
		now:         opts.Now,
	}
}

// appOutcome is one app's slot in a run; slots keep input order.
type appOutcome[T any] struct {
	report T
	err    error
}

// RunStats returns the daily stats payload for req, from cache unless
// req.Force is set or the cached payload lists no apps.
func (s *Service) RunStats(ctx context.Context, req RunRequest) (*RunResult, error) {
	apps := req.apps()
	period := appsflyer.NormalizePeriod(req.Period)
	key := StatsKey(period, apps, req.SelectedEvents)

	return s.run(ctx, KindStats, s.stats, key, req.Force, func(ctx context.Context, log *logger.Logger) ([]byte, bool, []Skipped, error) {
		rng := appsflyer.PeriodRange(period, s.now(), s.loc)
		outcomes := runApps(ctx, s, log, KindStats, apps, period, rng, req.SelectedEvents, aggregateStats)

		payload := StatsPayload{Period: period, From: rng.From, To: rng.To, Apps: []StatsAppReport{}}
		var skipped []Skipped
		worth := false
		for i, o := range outcomes {
			if o.err != nil {
				skipped = append(skipped, Skipped{AppID: apps[i].AppID, Reason: o.err.Error()})
				continue
			}
			payload.Apps = append(payload.Apps, o.report)
			worth = worth || len(o.report.Table) > 0
		}
		sort.SliceStable(payload.Apps, func(i, j int) bool {
			return payload.Apps[i].Traffic > payload.Apps[j].Traffic
		})

		body, err := json.Marshal(payload)
		return body, worth, skipped, err
	})
}

// RunFraud returns the fraud payload for req. Apps keep request order.
func (s *Service) RunFraud(ctx context.Context, req RunRequest) (*RunResult, error) {
	apps := req.apps()
	period := appsflyer.NormalizePeriod(req.Period)
	key := FraudKey(period, apps)

	return s.run(ctx, KindFraud, s.fraud, key, req.Force, func(ctx context.Context, log *logger.Logger) ([]byte, bool, []Skipped, error) {
		rng := appsflyer.PeriodRange(period, s.now(), s.loc)
		outcomes := runApps(ctx, s, log, KindFraud, apps, period, rng, req.SelectedEvents, aggregateFraud)

		payload := FraudPayload{Period: period, From: rng.From, To: rng.To, Apps: []FraudAppReport{}}
		var skipped []Skipped
		worth := false
		for i, o := range outcomes {
			if o.err != nil {
				skipped = append(skipped, Skipped{AppID: apps[i].AppID, Reason: o.err.Error()})
				continue
			}
			payload.Apps = append(payload.Apps, o.report)
			worth = worth || len(o.report.Table) > 0
		}

		body, err := json.Marshal(payload)
		return body, worth, skipped, err
	})
}

type buildFunc func(ctx context.Context, log *logger.Logger) (payload []byte, worthCaching bool, skipped []Skipped, err error)

// run is the cache discipline shared by both report kinds.
func (s *Service) run(ctx context.Context, kind Kind, store cache.Store, key string, force bool, build buildFunc) (*RunResult, error) {
	res := &RunResult{RunID: uuid.New().String(), Kind: kind, Key: key}
	log := logger.With("run_id", res.RunID, "kind", string(kind), "key", key)

	if !force {
		entry, err := store.Get(ctx, key)
		if err != nil {
			s.metrics.ObserveCache(string(kind), "error")
			return nil, fmt.Errorf("read %s cache: %w", kind, err)
		}
		if entry != nil && hasApps(entry.Payload) {
			s.metrics.ObserveCache(string(kind), "hit")
			log.Debug("serving cached report", "updated_at", entry.UpdatedAt)
			res.Payload = entry.Payload
			res.CacheHit = true
			res.UpdatedAt = entry.UpdatedAt
			return res, nil
		}
		s.metrics.ObserveCache(string(kind), "miss")
	}

	started := time.Now()
	log.Info("report run started", "force", force)

	payload, worth, skipped, err := build(ctx, log)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", kind, err)
	}
	s.metrics.ObserveRun(string(kind), started)
	res.Payload = payload
	res.Skipped = skipped
	res.UpdatedAt = s.now().UTC()

	if !worth {
		log.Warn("no app produced rows, keeping previous cache entry", "skipped", len(skipped))
		return res, nil
	}

	err = distlock.WithLock(ctx, s.locks("cache:"+string(kind)+":"+key), s.lockWait, 0, func(ctx context.Context) error {
		return store.Put(ctx, key, payload)
	})
	switch {
	case errors.Is(err, distlock.ErrNotAcquired):
		log.Warn("cache write skipped, another writer holds the key")
	case err != nil:
		return nil, fmt.Errorf("write %s cache: %w", kind, err)
	default:
		res.Cached = true
	}

	log.Info("report run complete",
		"skipped", len(skipped),
		"cached", res.Cached,
		"bytes", len(payload),
		"elapsed", time.Since(started).String(),
	)
	return res, nil
}

// runApps processes apps with bounded concurrency. Outcomes are indexed by
// input position so completion order never leaks into the result.
func runApps[T any](
	ctx context.Context,
	s *Service,
	log *logger.Logger,
	kind Kind,
	apps []appsflyer.App,
	period string,
	rng appsflyer.DateRange,
	selected map[string][]string,
	aggregate func(*appRun, []string) (T, error),
) []appOutcome[T] {
	outcomes := make([]appOutcome[T], len(apps))

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, app := range apps {
		g.Go(func() error {
			r := newAppRun(ctx, s, log, app, period, rng)
			rep, err := aggregate(r, selected[app.AppID])
			if err != nil {
				r.log.Warn("app left out of run", "reason", err.Error())
				if errors.Is(err, ErrAppAbandoned) {
					s.metrics.ObserveAbandoned(string(kind))
				}
			}
			outcomes[i] = appOutcome[T]{report: rep, err: err}
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

// hasApps reports whether a cached payload lists at least one app.
func hasApps(payload []byte) bool {
	var probe struct {
		Apps []json.RawMessage `json:"apps"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil {
		return false
	}
	return len(probe.Apps) > 0
}
