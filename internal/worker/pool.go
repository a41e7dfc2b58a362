// Package worker provides a generic bounded worker pool for concurrent task processing.
package worker

import (
	"context"
	"sync"
)

// Job represents a unit of work with an index for ordering.
type Job[T any] struct {
	Index int
	Data  T
}

// Result represents the outcome of processing a Job.
type Result[T any] struct {
	Index int
	Value T
	Err   error
}

// ProcessFunc processes a job and returns a result.
type ProcessFunc[I, O any] func(ctx context.Context, job Job[I]) (O, error)

// ProgressFunc is called after each job completes.
type ProgressFunc func(completed, total int)

// Pool runs jobs on a fixed number of workers.
type Pool[I, O any] struct {
	workers    int
	process    ProcessFunc[I, O]
	onProgress ProgressFunc
}

// NewPool creates a new worker pool. Workers below one are raised to one.
func NewPool[I, O any](workers int, process ProcessFunc[I, O]) *Pool[I, O] {
	if workers <= 0 {
		workers = 1
	}
	return &Pool[I, O]{workers: workers, process: process}
}

// SetProgressCallback sets a callback to be called after each job completes.
func (p *Pool[I, O]) SetProgressCallback(fn ProgressFunc) {
	p.onProgress = fn
}

// Run starts every job, waits for all of them and returns results in job
// order. A failing job never prevents the remaining jobs from running.
func (p *Pool[I, O]) Run(ctx context.Context, jobs []Job[I]) []Result[O] {
	total := len(jobs)
	results := make([]Result[O], total)
	if total == 0 {
		return results
	}

	workers := p.workers
	if workers > total {
		workers = total
	}

	jobChan := make(chan Job[I], total)
	resultChan := make(chan Result[O], total)
	for _, job := range jobs {
		jobChan <- job
	}
	close(jobChan)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobChan {
				if err := ctx.Err(); err != nil {
					resultChan <- Result[O]{Index: job.Index, Err: err}
					continue
				}
				value, err := p.process(ctx, job)
				resultChan <- Result[O]{Index: job.Index, Value: value, Err: err}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	completed := 0
	for result := range resultChan {
		if result.Index >= 0 && result.Index < total {
			results[result.Index] = result
		}
		completed++
		if p.onProgress != nil {
			p.onProgress(completed, total)
		}
	}
	return results
}

// Process runs process over items with at most workers concurrent calls and
// returns the first error in item order, if any.
func Process[I, O any](ctx context.Context, items []I, workers int, process ProcessFunc[I, O], onProgress ProgressFunc) ([]O, error) {
	output, errs := ProcessWithErrors(ctx, items, workers, process, onProgress)
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return output, nil
}

// ProcessWithErrors is like Process but returns every value together with a
// per-item error slice aligned to items.
func ProcessWithErrors[I, O any](ctx context.Context, items []I, workers int, process ProcessFunc[I, O], onProgress ProgressFunc) ([]O, []error) {
	if len(items) == 0 {
		return nil, nil
	}

	jobs := make([]Job[I], len(items))
	for i, item := range items {
		jobs[i] = Job[I]{Index: i, Data: item}
	}

	pool := NewPool(workers, process)
	pool.SetProgressCallback(onProgress)
	results := pool.Run(ctx, jobs)

	output := make([]O, len(results))
	errs := make([]error, len(results))
	for i, result := range results {
		output[i] = result.Value
		errs[i] = result.Err
	}
	return output, errs
}
