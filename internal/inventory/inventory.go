// Package inventory supplies the set of apps reports run over.
package inventory

import (
	"context"
	"fmt"
	"sort"

	"github.com/ignite/attribution-monitor/internal/appsflyer"
	"github.com/ignite/attribution-monitor/internal/config"
	"github.com/ignite/attribution-monitor/internal/selections"
)

// Provider lists known apps.
type Provider interface {
	Apps(ctx context.Context) ([]appsflyer.App, error)
}

// Static is a fixed inventory, usually read from config.
type Static []appsflyer.App

// FromConfig builds a Static inventory, dropping blank and repeated IDs.
// An app without a name is named after its ID.
func FromConfig(apps []config.AppConfig) Static {
	seen := make(map[string]bool, len(apps))
	out := make(Static, 0, len(apps))
	for _, a := range apps {
		if a.AppID == "" || seen[a.AppID] {
			continue
		}
		seen[a.AppID] = true
		name := a.AppName
		if name == "" {
			name = a.AppID
		}
		out = append(out, appsflyer.App{AppID: a.AppID, AppName: name})
	}
	return out
}

func (s Static) Apps(ctx context.Context) ([]appsflyer.App, error) {
	out := make([]appsflyer.App, len(s))
	copy(out, s)
	return out, nil
}

// ActiveApps returns the provider's apps minus those flagged inactive in
// store, sorted by name. Apps with no saved selection count as active.
func ActiveApps(ctx context.Context, p Provider, store selections.Store) ([]appsflyer.App, error) {
	apps, err := p.Apps(ctx)
	if err != nil {
		return nil, fmt.Errorf("list apps: %w", err)
	}
	flags := map[string]bool{}
	if store != nil {
		if flags, err = store.ActiveAppIDs(ctx); err != nil {
			return nil, fmt.Errorf("load active flags: %w", err)
		}
	}

	out := make([]appsflyer.App, 0, len(apps))
	for _, a := range apps {
		if active, known := flags[a.AppID]; known && !active {
			continue
		}
		out = append(out, a)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].AppName < out[j].AppName })
	return out, nil
}
