package services

import (
	"context"
	"time"

	"github.com/pterm/pterm"
)

const statsRetryInterval = 30 * time.Second

// RefreshStats recomputes the stats and writes them to the cache, skipping
// any cached copy. Counting hundreds of millions of rows is slow, so the
// server keeps the cached value warm instead of counting per request.
func (q *QueryService) RefreshStats(ctx context.Context) error {
	s, err := q.store.Stats(ctx)
	if err != nil {
		return err
	}
	return q.cache.SetStats(ctx, s)
}

// FetchStats refreshes the stats cache every interval in the background
// until ctx ends. Failures are retried after statsRetryInterval at most.
func FetchStats(ctx context.Context, q *QueryService, interval time.Duration) {
	retry := statsRetryInterval
	if interval < retry {
		retry = interval
	}
	go func() {
		for {
			wait := interval
			if err := q.RefreshStats(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				pterm.Warning.Printf("stats refresh failed: %v\n", err)
				wait = retry
			}

			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
		}
	}()
}
