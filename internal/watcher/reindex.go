package watcher

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// IndexFunc runs one incremental indexing pass.
type IndexFunc func(ctx context.Context) error

// Reindex runs index once for every batch received on batches until ctx is
// done or the channel closes. Batches that arrive while a pass is running are
// folded into a single follow-up pass. Pass errors are logged and watching
// continues; only cancellation ends the loop.
func Reindex(ctx context.Context, batches <-chan []FileEvent, index IndexFunc) error {
	for {
		var batch []FileEvent
		select {
		case <-ctx.Done():
			return ctx.Err()
		case b, ok := <-batches:
			if !ok {
				return nil
			}
			batch = b
		}

		// Drain whatever queued up behind this batch.
		changed := len(batch)
	drain:
		for {
			select {
			case b, ok := <-batches:
				if !ok {
					break drain
				}
				changed += len(b)
			default:
				break drain
			}
		}

		start := time.Now()
		err := index(ctx)
		switch {
		case err == nil:
			slog.Info("watch_reindex",
				slog.Int("events", changed),
				slog.Duration("duration", time.Since(start)))
		case errors.Is(err, context.Canceled) && ctx.Err() != nil:
			return ctx.Err()
		default:
			slog.Warn("watch_reindex_failed",
				slog.Int("events", changed),
				slog.String("error", err.Error()))
		}
	}
}
