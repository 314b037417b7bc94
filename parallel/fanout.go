package parallel

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/fanflow/core"
	"github.com/hupe1980/fanflow/executor"
	"github.com/hupe1980/fanflow/llm"
	"github.com/hupe1980/fanflow/logging"
)

// Result pairs a fan-out unit's name with its raw generation output.
// A fan-out call produces one Result per configured unit, in configuration
// order, regardless of completion order.
type Result struct {
	Unit     string         // Name of the producing unit
	Contents []core.Content // The unit's raw output
}

// FanOutOptions configures a FanOut stage.
type FanOutOptions struct {
	Executor executor.Executor
	Logger   logging.Logger
}

// FanOut dispatches the same message to a fixed collection of generation
// units concurrently and collects their outputs in configuration order.
// The unit list is immutable after construction and shared read-only across
// calls, so one FanOut can serve concurrent workflow invocations.
type FanOut struct {
	units  []llm.Unit
	exec   executor.Executor
	logger logging.Logger
}

// NewFanOut creates a fan-out stage over the given units. Configuring zero
// units is a configuration error: an empty dispatch would make sectioning
// and voting meaningless.
func NewFanOut(units []llm.Unit, optFns ...func(o *FanOutOptions)) (*FanOut, error) {
	if len(units) == 0 {
		return nil, core.NewConfigError("at least one fan-out unit is required")
	}

	opts := FanOutOptions{
		Executor: executor.New(),
		Logger:   logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	cloned := make([]llm.Unit, len(units))
	copy(cloned, units)

	return &FanOut{units: cloned, exec: opts.Executor, logger: opts.Logger}, nil
}

// Units returns a copy of the configured unit list.
func (f *FanOut) Units() []llm.Unit {
	units := make([]llm.Unit, len(f.units))
	copy(units, f.units)
	return units
}

// Generate dispatches msg to every unit concurrently and returns their raw
// outputs in configuration order. If any unit fails the whole dispatch fails:
// silently dropping a voter would corrupt voting semantics and dropping a
// section would corrupt sectioning semantics.
func (f *FanOut) Generate(ctx context.Context, msg core.Message, params core.GenerateParams) ([]Result, error) {
	results := make([]Result, len(f.units))

	tasks := make([]executor.Task, len(f.units))
	for i, unit := range f.units {
		i, unit := i, unit
		tasks[i] = func(ctx context.Context) error {
			contents, err := unit.Generate(ctx, msg, params)
			if err != nil {
				return &core.UnitError{Unit: unit.Name(), Err: err}
			}
			results[i] = Result{Unit: unit.Name(), Contents: contents}
			return nil
		}
	}

	start := time.Now()
	err := f.exec.Execute(ctx, tasks...)
	f.logDispatch(time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("fan-out dispatch: %w", err)
	}
	return results, nil
}

// GenerateText mirrors Generate for the text mode, returning one string per
// unit in configuration order.
func (f *FanOut) GenerateText(ctx context.Context, msg core.Message, params core.GenerateParams) ([]string, error) {
	results := make([]string, len(f.units))

	tasks := make([]executor.Task, len(f.units))
	for i, unit := range f.units {
		i, unit := i, unit
		tasks[i] = func(ctx context.Context) error {
			text, err := unit.GenerateText(ctx, msg, params)
			if err != nil {
				return &core.UnitError{Unit: unit.Name(), Err: err}
			}
			results[i] = text
			return nil
		}
	}

	start := time.Now()
	err := f.exec.Execute(ctx, tasks...)
	f.logDispatch(time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("fan-out dispatch: %w", err)
	}
	return results, nil
}

// GenerateStructured mirrors Generate for the structured mode. outs supplies
// one decoding target pointer per configured unit, in configuration order.
func (f *FanOut) GenerateStructured(ctx context.Context, msg core.Message, params core.GenerateParams, outs []any) error {
	if len(outs) != len(f.units) {
		return fmt.Errorf("structured fan-out requires one target per unit: got %d targets for %d units", len(outs), len(f.units))
	}

	tasks := make([]executor.Task, len(f.units))
	for i, unit := range f.units {
		i, unit := i, unit
		tasks[i] = func(ctx context.Context) error {
			if err := unit.GenerateStructured(ctx, msg, params, outs[i]); err != nil {
				return &core.UnitError{Unit: unit.Name(), Err: err}
			}
			return nil
		}
	}

	start := time.Now()
	err := f.exec.Execute(ctx, tasks...)
	f.logDispatch(time.Since(start), err)
	if err != nil {
		return fmt.Errorf("fan-out dispatch: %w", err)
	}
	return nil
}

func (f *FanOut) logDispatch(dur time.Duration, err error) {
	if ffl, ok := f.logger.(*logging.FanFlowLogger); ok {
		ffl.LogDispatch(len(f.units), dur, err == nil, err)
		return
	}
	if err != nil {
		f.logger.Error("fan-out dispatch failed", "units", len(f.units), "duration_ms", dur.Milliseconds(), "error", err.Error())
		return
	}
	f.logger.Debug("fan-out dispatch completed", "units", len(f.units), "duration_ms", dur.Milliseconds())
}
