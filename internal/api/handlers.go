package api

import (
	"context"

	"github.com/ignite/attribution-monitor/internal/config"
	"github.com/ignite/attribution-monitor/internal/inventory"
	"github.com/ignite/attribution-monitor/internal/pkg/metrics"
	"github.com/ignite/attribution-monitor/internal/report"
	"github.com/ignite/attribution-monitor/internal/selections"
)

// Reports is the slice of the report service the HTTP surface calls.
type Reports interface {
	RunStats(ctx context.Context, req report.RunRequest) (*report.RunResult, error)
	RunFraud(ctx context.Context, req report.RunRequest) (*report.RunResult, error)
	Overview(ctx context.Context, period string) (*report.Overview, error)
	Events(ctx context.Context, appID string, force bool) (*report.EventList, error)
	Clear(ctx context.Context, kind string) (int, error)
}

// Handlers contains all HTTP handlers
type Handlers struct {
	reports    Reports
	apps       inventory.Provider
	selections selections.Store
	health     *HealthChecker
	metrics    *metrics.Metrics
	config     *config.Config
}

// NewHandlers creates a new Handlers instance
func NewHandlers(reports Reports, apps inventory.Provider, sel selections.Store) *Handlers {
	return &Handlers{
		reports:    reports,
		apps:       apps,
		selections: sel,
	}
}

// SetConfig sets the application config
func (h *Handlers) SetConfig(cfg *config.Config) {
	h.config = cfg
}

// SetHealthChecker enables the dependency readiness probe.
func (h *Handlers) SetHealthChecker(hc *HealthChecker) {
	h.health = hc
}

// SetMetrics exposes m on /metrics.
func (h *Handlers) SetMetrics(m *metrics.Metrics) {
	h.metrics = m
}

func (h *Handlers) overviewPeriod() string {
	if h.config != nil && h.config.Report.OverviewPeriod != "" {
		return h.config.Report.OverviewPeriod
	}
	return "last30"
}
