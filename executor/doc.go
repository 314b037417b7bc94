// Package executor provides the execution substrate consumed by FanFlow
// workflows: a small interface that accepts zero-argument tasks, runs them
// concurrently and joins on completion, propagating the first failure.
//
// The default implementation builds on golang.org/x/sync/errgroup so the
// join barrier and fail-fast semantics are mechanically enforced rather than
// hand-rolled. Custom substrates (worker pools, distributed runners) only
// need to satisfy the Executor interface and guarantee safe concurrent
// submission when shared across workflows.
package executor
