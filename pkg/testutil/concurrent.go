package testutil

import (
	"errors"
	"sync"

	dErrors "ekyc/pkg/domain-errors"
	"ekyc/pkg/platform/sentinel"
)

// ConcurrentResult counts outcomes of a RunConcurrent call.
type ConcurrentResult struct {
	Successes int32
	Errors    int32
	Conflicts int32
	NotFounds int32
	// First holds the first uncategorised error, for failure messages.
	First error
}

func (r *ConcurrentResult) Total() int32 {
	return r.Successes + r.Errors + r.Conflicts + r.NotFounds
}

// RunConcurrent starts goroutines copies of fn, releases them together and
// waits for all of them. Store sentinels and domain error codes both count
// as conflict or not-found.
func RunConcurrent(goroutines int, fn func(idx int) error) *ConcurrentResult {
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		result ConcurrentResult
		start  = make(chan struct{})
	)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			<-start
			err := fn(idx)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				result.Successes++
			case errors.Is(err, sentinel.ErrConflict) || dErrors.HasCode(err, dErrors.CodeConflict):
				result.Conflicts++
			case errors.Is(err, sentinel.ErrNotFound) || dErrors.HasCode(err, dErrors.CodeNotFound):
				result.NotFounds++
			default:
				result.Errors++
				if result.First == nil {
					result.First = err
				}
			}
		}(i)
	}
	close(start)
	wg.Wait()
	return &result
}
