package transform

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/banshee-data/trdcalib/internal/trd"
)

// TransformBatch calibrates tracklets on a pool of workers. The result has
// the input order. The first failing tracklet stops the batch and its error
// is returned with the tracklet index; ctx cancellation stops it as well.
// workers <= 0 uses GOMAXPROCS.
func (t *Transformer) TransformBatch(ctx context.Context, tracklets []trd.RawTracklet, trackingFrame bool, workers int) ([]trd.CalibratedTracklet, error) {
	if !t.initialized {
		return nil, trd.ErrNotInitialized
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > len(tracklets) {
		workers = len(tracklets)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	out := make([]trd.CalibratedTracklet, len(tracklets))
	indices := make(chan int)

	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	fail := func(err error) {
		errOnce.Do(func() {
			firstErr = err
			cancel()
		})
	}

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indices {
				ct, err := t.TransformTracklet(tracklets[i], trackingFrame)
				if err != nil {
					fail(fmt.Errorf("tracklet %d: %w", i, err))
					continue
				}
				out[i] = ct
			}
		}()
	}

feed:
	for i := range tracklets {
		select {
		case indices <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(indices)
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
