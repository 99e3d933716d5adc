package services

import (
	"context"
	"sort"
	"sync"
	"time"
)

// withTimeout bounds a single collaborator call
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// uniqueIDs drops blanks and duplicates while keeping first-seen order
func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// runBatch applies fn to every id with at most concurrency calls in flight.
// Each id succeeds or fails on its own; ids not started before ctx is done
// are reported with the context error. Ids already committed stay committed.
func runBatch(ctx context.Context, ids []string, concurrency int, fn func(ctx context.Context, id string) error) *PartialFailure {
	report := newPartialFailure()
	ids = uniqueIDs(ids)
	if concurrency <= 0 {
		concurrency = 1
	}

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, concurrency)
	)

	record := func(id string, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			report.Failed[id] = err
			return
		}
		report.Succeeded = append(report.Succeeded, id)
	}

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			record(id, classify(err, id))
			continue
		}
		select {
		case <-ctx.Done():
			record(id, classify(ctx.Err(), id))
			continue
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			defer func() { <-sem }()
			record(id, classify(fn(ctx, id), id))
		}(id)
	}
	wg.Wait()

	sort.Strings(report.Succeeded)
	return report
}
