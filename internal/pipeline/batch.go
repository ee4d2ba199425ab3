package pipeline

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/ragaeeb/beltane-pipeline/internal/apperr"
	"github.com/ragaeeb/beltane-pipeline/internal/config"
	"github.com/ragaeeb/beltane-pipeline/internal/log"
)

// ItemResult records the outcome of one processed item.
type ItemResult struct {
	Item    Item
	VideoID string
	Err     error
}

// BatchResult is the aggregate outcome of RunBatch.
type BatchResult struct {
	Results []ItemResult
	Aborted bool
}

// RunBatch drives items through the engine with min(max(1,jobs), N)
// cooperative workers sharing a next-index counter. abort, when
// closed, stops workers from claiming new items; in-flight items run
// to completion. An empty items list fails with NoInputs.
func (e *Engine) RunBatch(ctx context.Context, items []Item, cfg config.RunConfig, force bool, abort <-chan struct{}) (BatchResult, error) {
	if len(items) == 0 {
		return BatchResult{}, apperr.New(apperr.NoInputs, "no inputs to process")
	}

	workerCount := cfg.Jobs
	if workerCount < 1 {
		workerCount = 1
	}
	if workerCount > len(items) {
		workerCount = len(items)
	}

	var nextIndex int64 = -1
	results := make([]ItemResult, len(items))
	var aborted atomic.Bool

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workerCount)

	for w := 0; w < workerCount; w++ {
		g.Go(func() error {
			for {
				select {
				case <-abort:
					aborted.Store(true)
					return nil
				default:
				}

				idx := atomic.AddInt64(&nextIndex, 1)
				if idx >= int64(len(items)) {
					return nil
				}

				videoID, err := e.ProcessItem(gctx, items[idx], cfg, force)
				results[idx] = ItemResult{Item: items[idx], VideoID: videoID, Err: err}
			}
		})
	}
	_ = g.Wait() // per-item errors are captured in results, not propagated

	batchLogger := log.WithComponent("pipeline")
	batchLogger.Info().Int("items", len(items)).Int("workers", workerCount).
		Msg("batch processing complete")

	return BatchResult{Results: results, Aborted: aborted.Load()}, nil
}
