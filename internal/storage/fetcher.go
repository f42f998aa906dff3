package storage

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// BatchFetcher retrieves multiple chunk objects in parallel with bounded
// concurrency. Retrieval streams read chunks page by page; fetching the
// next page's objects concurrently hides per-object latency.
type BatchFetcher struct {
	storage     ObjectStorage
	concurrency int
}

// BatchResult contains the outcome of one batch fetch.
type BatchResult struct {
	Objects map[string][]byte
	Errors  map[string]error
}

// NewBatchFetcher creates a fetcher with the given parallelism.
func NewBatchFetcher(storage ObjectStorage, concurrency int) *BatchFetcher {
	if concurrency < 1 {
		concurrency = 1
	}
	return &BatchFetcher{storage: storage, concurrency: concurrency}
}

// Fetch retrieves every path. Per-object failures land in Errors rather
// than aborting the batch; the caller decides whether a partial result
// is usable.
func (b *BatchFetcher) Fetch(ctx context.Context, objectPaths []string) (*BatchResult, error) {
	result := &BatchResult{
		Objects: make(map[string][]byte, len(objectPaths)),
		Errors:  make(map[string]error),
	}
	if len(objectPaths) == 0 {
		return result, nil
	}

	sem := semaphore.NewWeighted(int64(b.concurrency))
	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, path := range objectPaths {
		if err := sem.Acquire(ctx, 1); err != nil {
			mu.Lock()
			result.Errors[path] = err
			mu.Unlock()
			continue
		}

		wg.Add(1)
		go func(path string) {
			defer sem.Release(1)
			defer wg.Done()

			data, err := b.storage.Get(ctx, path)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Errors[path] = err
				return
			}
			result.Objects[path] = data
		}(path)
	}

	wg.Wait()
	return result, nil
}
