// Package fanflow provides a high-level façade over the fan-out/fan-in
// workflow machinery, wiring shared defaults (executor, logger, generation
// parameters) into the units and workflows it constructs. Most applications
// interact with this package by:
//  1. Creating a FanFlow via New() (optionally overriding the executor,
//     logger or default generation parameters)
//  2. Building agents over a provider model and composing them into a
//     parallel workflow with an aggregator unit or a reduction function
//  3. Calling the workflow like any single generation unit
//
// All defaults are safe for local development and testing; production
// deployments typically supply a structured logger and a concurrency limit.
package fanflow

import (
	"context"

	"github.com/hupe1980/fanflow/classifier"
	"github.com/hupe1980/fanflow/core"
	"github.com/hupe1980/fanflow/executor"
	"github.com/hupe1980/fanflow/llm"
	"github.com/hupe1980/fanflow/logging"
	"github.com/hupe1980/fanflow/model"
	"github.com/hupe1980/fanflow/parallel"
)

// Options configures the FanFlow instance.
type Options struct {
	// MaxConcurrency limits how many generation units run simultaneously
	// across one dispatch. Zero means unlimited.
	MaxConcurrency int

	// Executor overrides the dispatch substrate. When nil, an executor with
	// MaxConcurrency is created.
	Executor executor.Executor

	// DefaultParams are the generation parameters applied when a call passes
	// zero-valued params.
	DefaultParams core.GenerateParams

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// FanFlow is the high-level façade carrying shared construction defaults.
type FanFlow struct {
	opts Options
	exec executor.Executor
}

// New creates a new FanFlow instance with optional overrides.
func New(optFns ...func(o *Options)) *FanFlow {
	opts := Options{
		Logger: logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	exec := opts.Executor
	if exec == nil {
		exec = executor.New(func(o *executor.Options) {
			o.MaxConcurrency = opts.MaxConcurrency
		})
	}

	return &FanFlow{opts: opts, exec: exec}
}

// NewAgent builds an LLM-backed generation unit over the given model, wired
// to the façade's logger.
func (f *FanFlow) NewAgent(name string, m model.Model, optFns ...func(o *llm.AgentOptions)) *llm.Agent {
	merged := append([]func(o *llm.AgentOptions){func(o *llm.AgentOptions) {
		o.Logger = f.opts.Logger
	}}, optFns...)

	return llm.NewAgent(name, m, merged...)
}

// NewParallel builds a fan-out/fan-in workflow over the given units, wired to
// the façade's executor and logger. The fan-in side is supplied via
// parallel.WithAggregator or parallel.WithReducer.
func (f *FanFlow) NewParallel(units []llm.Unit, optFns ...func(o *parallel.Options)) (*parallel.Workflow, error) {
	merged := append([]func(o *parallel.Options){func(o *parallel.Options) {
		o.Executor = f.exec
		o.Logger = f.opts.Logger
	}}, optFns...)

	return parallel.New(units, merged...)
}

// NewClassifier builds an intent classifier around the given unit, wired to
// the façade's logger.
func (f *FanFlow) NewClassifier(unit llm.Unit, intents []classifier.Intent, optFns ...func(o *classifier.Options)) (*classifier.Classifier, error) {
	merged := append([]func(o *classifier.Options){func(o *classifier.Options) {
		o.Logger = f.opts.Logger
	}}, optFns...)

	return classifier.New(unit, intents, merged...)
}

// Generate runs one unit with the façade's default generation parameters.
func (f *FanFlow) Generate(ctx context.Context, unit llm.Unit, msg core.Message) ([]core.Content, error) {
	return unit.Generate(ctx, msg, f.opts.DefaultParams)
}

// GenerateText runs one unit in text mode with the façade's default
// generation parameters.
func (f *FanFlow) GenerateText(ctx context.Context, unit llm.Unit, msg core.Message) (string, error) {
	return unit.GenerateText(ctx, msg, f.opts.DefaultParams)
}

// GenerateStructured runs one unit in structured mode with the façade's
// default generation parameters, decoding into the pointer out.
func (f *FanFlow) GenerateStructured(ctx context.Context, unit llm.Unit, msg core.Message, out any) error {
	return unit.GenerateStructured(ctx, msg, f.opts.DefaultParams, out)
}
