package parallel

import (
	"context"

	"github.com/hupe1980/fanflow/core"
	"github.com/hupe1980/fanflow/executor"
	"github.com/hupe1980/fanflow/llm"
	"github.com/hupe1980/fanflow/logging"
)

// ReduceFunc is the function-reduction alternative to an aggregator unit.
// It receives the ordered fan-out results and returns the combined value.
// For the text mode a non-string return value is coerced to its textual
// representation; for the structured mode the function must itself produce a
// value conforming to the requested shape.
type ReduceFunc func(ctx context.Context, results []Result) (any, error)

// Options configures a Workflow. Exactly one of Aggregator and Reducer must
// be set; the choice is fixed for the workflow's lifetime.
type Options struct {
	// Name identifies the workflow in logs and when nested as a unit.
	Name string

	// Aggregator combines fan-out results via an LLM-backed (or any) unit.
	Aggregator llm.Unit

	// Reducer combines fan-out results via a plain function.
	Reducer ReduceFunc

	// Executor is the substrate running the concurrent dispatch.
	Executor executor.Executor

	// Logger receives dispatch/combine diagnostics. Defaults to NoOp.
	Logger logging.Logger
}

// fanInStrategy is the tagged combine-phase variant selected at construction:
// exactly one field is non-nil for a workflow's lifetime.
type fanInStrategy struct {
	llm    *FanIn
	reduce ReduceFunc
}

// Workflow coordinates one fan-out stage and one combine strategy. Every
// generation call is an atomic two-phase pipeline: dispatch the message to
// all fan-out units, join, then combine the ordered results. The workflow
// keeps no conversation history and no cross-call state; concurrent calls on
// one instance are independent.
//
// Workflow implements llm.Unit, so a workflow can itself serve as a fan-out
// or fan-in element of another workflow.
type Workflow struct {
	name    string
	fanOut  *FanOut
	combine fanInStrategy
	logger  logging.Logger
}

var _ llm.Unit = (*Workflow)(nil)

// New creates a workflow over the given fan-out units. The fan-in side is
// supplied via WithAggregator or WithReducer; configuring both or neither is
// a configuration error, detected here rather than on first use.
func New(units []llm.Unit, optFns ...func(o *Options)) (*Workflow, error) {
	opts := Options{
		Name:     "parallel",
		Executor: executor.New(),
		Logger:   logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Aggregator != nil && opts.Reducer != nil {
		return nil, core.NewConfigError("aggregator unit and reduction function are mutually exclusive")
	}
	if opts.Aggregator == nil && opts.Reducer == nil {
		return nil, core.NewConfigError("either an aggregator unit or a reduction function is required")
	}

	fanOut, err := NewFanOut(units, func(o *FanOutOptions) {
		o.Executor = opts.Executor
		o.Logger = opts.Logger
	})
	if err != nil {
		return nil, err
	}

	w := &Workflow{name: opts.Name, fanOut: fanOut, logger: opts.Logger}

	if opts.Reducer != nil {
		w.combine = fanInStrategy{reduce: opts.Reducer}
		return w, nil
	}

	fanIn, err := NewFanIn(opts.Aggregator, func(o *FanInOptions) { o.Logger = opts.Logger })
	if err != nil {
		return nil, err
	}
	w.combine = fanInStrategy{llm: fanIn}
	return w, nil
}

// WithAggregator selects LLM aggregation as the combine strategy.
func WithAggregator(unit llm.Unit) func(o *Options) {
	return func(o *Options) { o.Aggregator = unit }
}

// WithReducer selects function reduction as the combine strategy.
func WithReducer(fn ReduceFunc) func(o *Options) {
	return func(o *Options) { o.Reducer = fn }
}

// Name implements llm.Unit.
func (w *Workflow) Name() string { return w.name }

// Generate implements llm.Unit: dispatch, join, then combine into the raw
// content result. A dispatch failure aborts the call before the combine
// phase runs.
func (w *Workflow) Generate(ctx context.Context, msg core.Message, params core.GenerateParams) ([]core.Content, error) {
	results, err := w.fanOut.Generate(ctx, msg, params)
	if err != nil {
		return nil, err
	}

	if w.combine.reduce != nil {
		v, err := w.combine.reduce(ctx, results)
		if err != nil {
			return nil, err
		}
		return core.NormalizeOutput(v), nil
	}
	return w.combine.llm.Generate(ctx, results, params)
}

// GenerateText implements llm.Unit. The result is always a string: in the
// reduction path a non-string return value is coerced to its textual
// representation.
func (w *Workflow) GenerateText(ctx context.Context, msg core.Message, params core.GenerateParams) (string, error) {
	results, err := w.fanOut.Generate(ctx, msg, params)
	if err != nil {
		return "", err
	}

	if w.combine.reduce != nil {
		v, err := w.combine.reduce(ctx, results)
		if err != nil {
			return "", err
		}
		if s, ok := v.(string); ok {
			return s, nil
		}
		return core.ContentsText(core.NormalizeOutput(v)), nil
	}
	return w.combine.llm.GenerateText(ctx, results, params)
}

// GenerateStructured implements llm.Unit, decoding the combined result into
// the pointer out. In the reduction path the function must itself produce a
// conforming value; no validation is layered here.
func (w *Workflow) GenerateStructured(ctx context.Context, msg core.Message, params core.GenerateParams, out any) error {
	results, err := w.fanOut.Generate(ctx, msg, params)
	if err != nil {
		return err
	}

	if w.combine.reduce != nil {
		v, err := w.combine.reduce(ctx, results)
		if err != nil {
			return err
		}
		return llm.DecodeValue(v, out)
	}
	return w.combine.llm.GenerateStructured(ctx, results, params, out)
}

// FanOut exposes the workflow's dispatch stage.
func (w *Workflow) FanOut() *FanOut { return w.fanOut }
