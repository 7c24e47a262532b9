package utils

import (
	"context"
	"sync"
)

// Result holds either a value or the error that prevented producing it.
type Result[T any] struct {
	Value T
	Err   error
}

// OK reports whether the result carries a value.
func (r Result[T]) OK() bool { return r.Err == nil }

// Worker represents a worker function that processes items from a channel
type Worker[T any, R any] func(ctx context.Context, item T) (R, error)

// WorkerPool manages a pool of workers processing items concurrently.
//
// Goroutine Lifecycle:
// - Worker goroutines are created when Process is called
// - Workers read from an internal items channel until it's closed
// - All workers terminate when:
//   - The items channel is exhausted and closed
//   - The context is cancelled
//
// - Process blocks until all workers complete via WaitGroup
// - Panics in workers are recovered and converted to PanicError
// - Items never picked up because the context ended carry ctx.Err()
//
// Example:
//
//	pool := NewWorkerPool(4, func(ctx context.Context, item string) (int, error) {
//	    return len(item), nil
//	})
//	results := pool.Process(ctx, []string{"a", "bb", "ccc"})
type WorkerPool[T any, R any] struct {
	numWorkers int
	worker     Worker[T, R]
}

// NewWorkerPool creates a new worker pool
func NewWorkerPool[T any, R any](numWorkers int, worker Worker[T, R]) *WorkerPool[T, R] {
	if numWorkers <= 0 {
		numWorkers = GetSemaphoreLimit()
	}
	return &WorkerPool[T, R]{
		numWorkers: numWorkers,
		worker:     worker,
	}
}

// Workers returns the pool size.
func (wp *WorkerPool[T, R]) Workers() int { return wp.numWorkers }

type indexedItem[T any] struct {
	item  T
	index int
}

// Process runs every item through the worker and returns one Result per
// item, in input order.
func (wp *WorkerPool[T, R]) Process(ctx context.Context, items []T) []Result[R] {
	if len(items) == 0 {
		return nil
	}

	itemsChan := make(chan indexedItem[T], len(items))
	for i, item := range items {
		itemsChan <- indexedItem[T]{item: item, index: i}
	}
	close(itemsChan)

	results := make([]Result[R], len(items))
	done := make([]bool, len(items))
	var wg sync.WaitGroup

	workers := wp.numWorkers
	if workers > len(items) {
		workers = len(items)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				default:
				}
				select {
				case it, ok := <-itemsChan:
					if !ok {
						return
					}
					results[it.index] = wp.run(ctx, it.item)
					done[it.index] = true
				case <-ctx.Done():
					return
				}
			}
		}()
	}
	wg.Wait()

	for i := range results {
		if !done[i] {
			results[i].Err = ctx.Err()
		}
	}
	return results
}

func (wp *WorkerPool[T, R]) run(ctx context.Context, item T) (res Result[R]) {
	defer RecoverWithCallback(func(err error) {
		res = Result[R]{Err: err}
	})
	v, err := wp.worker(ctx, item)
	return Result[R]{Value: v, Err: err}
}
