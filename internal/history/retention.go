package history

import (
	"context"
	"log/slog"
	"time"

	"github.com/ashureev/agentdesk/internal/observability"
)

const retentionInterval = 10 * time.Minute

// Pruner deletes turns older than a cutoff.
type Pruner interface {
	PruneTurns(ctx context.Context, cutoff time.Time) (int64, error)
}

// StartRetentionWorker periodically removes turns older than retention.
// A non-positive retention disables the worker.
func StartRetentionWorker(ctx context.Context, store Pruner, retention time.Duration) {
	startRetentionWorker(ctx, store, retention, retentionInterval)
}

func startRetentionWorker(ctx context.Context, store Pruner, retention, interval time.Duration) {
	if retention <= 0 {
		slog.Info("History retention disabled")
		return
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("Retention worker started", "interval", interval, "retention", retention)

		for {
			select {
			case <-ticker.C:
				pruneExpired(ctx, store, retention)
			case <-ctx.Done():
				slog.Info("Retention worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

func pruneExpired(ctx context.Context, store Pruner, retention time.Duration) {
	n, err := store.PruneTurns(ctx, time.Now().Add(-retention))
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		slog.Error("Retention worker failed to prune turns", "error", err)
		return
	}
	if n > 0 {
		slog.Info("Retention worker pruned turns", "count", n)
		observability.RecordHistoryPruned(n)
	}
}
