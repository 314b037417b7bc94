package executor

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Task is a single unit of concurrent work. Implementations must respect ctx
// cancellation and return promptly once it is done.
type Task func(ctx context.Context) error

// Executor runs a batch of tasks concurrently and returns once all complete.
// If any task fails, the first error encountered is returned and the derived
// context handed to the remaining tasks is cancelled. Implementations must be
// safe for concurrent submission from multiple goroutines.
type Executor interface {
	Execute(ctx context.Context, tasks ...Task) error
}

// Options configures the default concurrent executor.
type Options struct {
	// MaxConcurrency limits how many tasks run simultaneously.
	// Zero or negative means no limit.
	MaxConcurrency int
}

// concurrentExecutor is the default errgroup-backed implementation.
type concurrentExecutor struct {
	opts Options
}

// New constructs the default executor.
func New(optFns ...func(o *Options)) Executor {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &concurrentExecutor{opts: opts}
}

// Execute implements Executor. Tasks are spawned into an errgroup whose
// derived context is cancelled on the first failure; Execute returns only
// after every spawned task has finished (join barrier).
func (e *concurrentExecutor) Execute(ctx context.Context, tasks ...Task) error {
	if len(tasks) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	if e.opts.MaxConcurrency > 0 {
		g.SetLimit(e.opts.MaxConcurrency)
	}

	for _, task := range tasks {
		task := task
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return task(gctx)
		})
	}

	return g.Wait()
}

// Sequential returns an executor that runs tasks one after another in
// submission order, stopping at the first failure. Intended for tests that
// need deterministic interleaving; workflows default to the concurrent
// executor because sectioning and voting only pay off in parallel.
func Sequential() Executor { return sequentialExecutor{} }

type sequentialExecutor struct{}

// Execute implements Executor.
func (sequentialExecutor) Execute(ctx context.Context, tasks ...Task) error {
	for _, task := range tasks {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := task(ctx); err != nil {
			return err
		}
	}
	return nil
}
