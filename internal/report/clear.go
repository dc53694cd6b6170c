package report

import (
	"context"
	"fmt"

	"github.com/ignite/attribution-monitor/internal/cache"
	"github.com/ignite/attribution-monitor/internal/pkg/logger"
)

// Clear drops cached payloads of kind. An empty kind or "all" clears stats,
// fraud and events. It returns how many entries were removed.
func (s *Service) Clear(ctx context.Context, kind string) (int, error) {
	var stores []cache.Store
	switch Kind(kind) {
	case KindStats:
		stores = []cache.Store{s.stats}
	case KindFraud:
		stores = []cache.Store{s.fraud}
	case KindEvents:
		stores = []cache.Store{s.events}
	case "", "all":
		stores = []cache.Store{s.stats, s.fraud, s.events}
	default:
		return 0, fmt.Errorf("unknown cache kind %q", kind)
	}

	total := 0
	for _, st := range stores {
		n, err := st.DeleteByPrefix(ctx, "")
		if err != nil {
			return total, fmt.Errorf("clear %s cache: %w", kind, err)
		}
		total += n
	}
	logger.Info("report cache cleared", "kind", kind, "entries", total)
	return total, nil
}
