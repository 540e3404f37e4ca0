package maintenance

import (
	"context"
	"log/slog"
	"time"
)

// Pruner is the subset of the store maintenance needs.
type Pruner interface {
	PruneQueries(ctx context.Context, olderThan time.Duration) (int64, error)
	PruneCache(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Run prunes query history and cached elevations older than retain.
// Failures are logged; Run itself never fails startup.
func Run(ctx context.Context, p Pruner, retain time.Duration) {
	if retain <= 0 {
		return
	}
	slog.Info("Starting database maintenance...", "retain", retain)

	if n, err := p.PruneQueries(ctx, retain); err != nil {
		slog.Error("Query history pruning failed", "error", err)
	} else {
		slog.Info("Query history pruning completed", "removed", n)
	}

	if n, err := p.PruneCache(ctx, retain); err != nil {
		slog.Error("Elevation cache pruning failed", "error", err)
	} else {
		slog.Info("Elevation cache pruning completed", "removed", n)
	}
}

// Schedule runs Run immediately and then every interval until ctx is done.
func Schedule(ctx context.Context, p Pruner, retain, interval time.Duration) {
	Run(ctx, p, retain)
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			Run(ctx, p, retain)
		}
	}
}
