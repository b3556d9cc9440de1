package tonal

import (
	"context"
	"runtime"
	"sync"

	"github.com/RyanBlaney/sonido-key/algorithms/chroma"
	"github.com/RyanBlaney/sonido-key/logging"
)

// BatchResult is the key estimate of one fragment in a batch
type BatchResult struct {
	Index     int           `json:"index"`
	Best      KeyCandidate  `json:"best"`
	Secondary *KeyCandidate `json:"secondary,omitempty"`
	Err       error         `json:"-"`
}

// EstimateBatch runs KeyWithContext over many fragments concurrently. Fragments are
// independent, so results come back in input order and a failing fragment only
// sets its own Err. Fragments not yet started when ctx is cancelled get ctx.Err().
func (ke *KeyEstimator) EstimateBatch(ctx context.Context, vectors []chroma.PitchClassVector, workers int) []BatchResult {
	results := make([]BatchResult, len(vectors))
	if len(vectors) == 0 {
		return results
	}

	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	workers = min(workers, len(vectors))

	jobs := make(chan int, len(vectors))
	for i := range vectors {
		jobs <- i
	}
	close(jobs)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for idx := range jobs {
				results[idx].Index = idx

				if err := ctx.Err(); err != nil {
					results[idx].Err = err
					continue
				}

				best, secondary, err := ke.KeyWithContext(vectors[idx])
				results[idx].Best = best
				results[idx].Secondary = secondary
				results[idx].Err = err
			}
		}()
	}

	wg.Wait()

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}

	ke.logger.Debug("Batch estimation completed", logging.Fields{
		"fragments": len(vectors),
		"failed":    failed,
		"workers":   workers,
	})

	return results
}
