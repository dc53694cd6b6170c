// Package scheduler refreshes every cached report on a cron schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ignite/attribution-monitor/internal/inventory"
	"github.com/ignite/attribution-monitor/internal/pkg/distlock"
	"github.com/ignite/attribution-monitor/internal/pkg/logger"
	"github.com/ignite/attribution-monitor/internal/report"
	"github.com/ignite/attribution-monitor/internal/selections"
)

// =============================================================================
// REPORT REFRESHER: keeps every period's stats and fraud entries warm
// =============================================================================
// One refresh walks the configured periods. For each it forces a stats run
// over the active apps, waits, then forces a fraud run. A distributed lock
// keeps a second worker from starting the same walk.

const refreshLockKey = "scheduler:refresh"

// Runner is the part of the report service the refresher drives.
type Runner interface {
	RunStats(ctx context.Context, req report.RunRequest) (*report.RunResult, error)
	RunFraud(ctx context.Context, req report.RunRequest) (*report.RunResult, error)
}

// extender is implemented by locks whose lease can be renewed.
type extender interface {
	Extend(ctx context.Context, ttl time.Duration) error
}

// Options configures a Refresher.
type Options struct {
	Periods []string
	// Pause separates the stats and fraud runs of one period.
	Pause time.Duration
	// LockTTL bounds one refresh; the lease is renewed after each period.
	LockTTL time.Duration
}

// Refresher runs scheduled refreshes.
type Refresher struct {
	runner     Runner
	apps       inventory.Provider
	selections selections.Store
	locks      distlock.Factory
	opts       Options

	cron  *cron.Cron
	stop  context.CancelFunc
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Refresher. selStore may be nil when no selections are kept.
func New(runner Runner, apps inventory.Provider, selStore selections.Store, locks distlock.Factory, opts Options) *Refresher {
	if locks == nil {
		locks = distlock.NewLocal().Lock
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 3 * time.Hour
	}
	return &Refresher{
		runner:     runner,
		apps:       apps,
		selections: selStore,
		locks:      locks,
		opts:       opts,
		sleep:      sleepContext,
	}
}

// Start schedules RefreshAll (standard cron syntax or descriptors such
// as "@every 6h"). A tick that fires while the previous refresh is still
// running is skipped. Jobs run under a context derived from ctx.
func (r *Refresher) Start(ctx context.Context, schedule string) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	jobCtx, cancel := context.WithCancel(ctx)

	_, err := c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(jobCtx, r.opts.LockTTL)
		defer cancel()
		if err := r.RefreshAll(ctx); err != nil {
			logger.Error("scheduled refresh failed", "error", err)
		}
	})
	if err != nil {
		cancel()
		return fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}

	r.cron, r.stop = c, cancel
	c.Start()
	logger.Info("report refresher scheduled", "schedule", schedule, "periods", r.opts.Periods)
	return nil
}

// Stop cancels a running refresh and waits for it to return.
func (r *Refresher) Stop() {
	if r.cron == nil {
		return
	}
	r.stop()
	<-r.cron.Stop().Done()
}

// RefreshAll refreshes every configured period once. It returns
// distlock.ErrNotAcquired when another refresher holds the lock, and the
// joined run errors otherwise.
func (r *Refresher) RefreshAll(ctx context.Context) error {
	lock := r.locks(refreshLockKey)
	ok, err := lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire refresh lock: %w", err)
	}
	if !ok {
		logger.Info("refresh already running elsewhere, skipping")
		return distlock.ErrNotAcquired
	}
	defer lock.Release(context.WithoutCancel(ctx))

	apps, err := inventory.ActiveApps(ctx, r.apps, r.selections)
	if err != nil {
		return err
	}
	if len(apps) == 0 {
		logger.Warn("no active apps to refresh")
		return nil
	}

	var selected map[string][]string
	if r.selections != nil {
		list, err := r.selections.List(ctx)
		if err != nil {
			return fmt.Errorf("load event selections: %w", err)
		}
		selected = selections.SelectedEvents(list)
	}

	started := time.Now()
	logger.Info("refresh started", "apps", len(apps), "periods", len(r.opts.Periods))

	var errs []error
	for i, period := range r.opts.Periods {
		req := report.RunRequest{Apps: apps, Period: period, SelectedEvents: selected, Force: true}

		if res, err := r.runner.RunStats(ctx, req); err != nil {
			errs = append(errs, fmt.Errorf("stats %s: %w", period, err))
		} else {
			logRun(period, res)
		}

		if err := r.sleep(ctx, r.opts.Pause); err != nil {
			return errors.Join(append(errs, err)...)
		}

		if res, err := r.runner.RunFraud(ctx, req); err != nil {
			errs = append(errs, fmt.Errorf("fraud %s: %w", period, err))
		} else {
			logRun(period, res)
		}

		if ext, ok := lock.(extender); ok && i < len(r.opts.Periods)-1 {
			if err := ext.Extend(ctx, r.opts.LockTTL); err != nil {
				logger.Warn("refresh lock not extended", "error", err)
			}
		}
	}

	logger.Info("refresh complete", "failures", len(errs), "elapsed", time.Since(started).String())
	return errors.Join(errs...)
}

func logRun(period string, res *report.RunResult) {
	logger.Info("period refreshed",
		"period", period,
		"kind", string(res.Kind),
		"run_id", res.RunID,
		"cached", res.Cached,
		"skipped", len(res.Skipped),
	)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
