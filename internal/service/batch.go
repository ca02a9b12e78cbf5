package service

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// maxBatchWorkers caps batch indexing concurrency. Embedding calls
// dominate batch cost and the provider saturates quickly, so a small
// pool is enough.
const maxBatchWorkers = 4

// newBatchGroup returns an errgroup bounded for batch indexing.
func newBatchGroup(ctx context.Context) *errgroup.Group {
	g, _ := errgroup.WithContext(ctx)
	workers := maxBatchWorkers
	if n := runtime.NumCPU(); n < workers {
		workers = n
	}
	g.SetLimit(workers)
	return g
}
