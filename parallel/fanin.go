package parallel

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/fanflow/core"
	"github.com/hupe1980/fanflow/llm"
	"github.com/hupe1980/fanflow/logging"
)

// FanInOptions configures a FanIn stage.
type FanInOptions struct {
	Logger logging.Logger
}

// FanIn combines the ordered fan-out outputs into one result by delegating
// to a single aggregating generation unit. The aggregator's own instruction
// decides how to combine (synthesize, vote-count, merge); FanIn only renders
// the ordered results into the aggregation input message.
type FanIn struct {
	aggregator llm.Unit
	logger     logging.Logger
}

// NewFanIn creates a fan-in stage around the given aggregator unit.
func NewFanIn(aggregator llm.Unit, optFns ...func(o *FanInOptions)) (*FanIn, error) {
	if aggregator == nil {
		return nil, core.NewConfigError("fan-in aggregator unit must not be nil")
	}

	opts := FanInOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &FanIn{aggregator: aggregator, logger: opts.Logger}, nil
}

// Aggregator returns the configured aggregating unit.
func (f *FanIn) Aggregator() llm.Unit { return f.aggregator }

// Generate combines the ordered results into one raw content response.
// Aggregator failure fails the whole call; there is no fallback strategy.
func (f *FanIn) Generate(ctx context.Context, results []Result, params core.GenerateParams) ([]core.Content, error) {
	start := time.Now()
	out, err := f.aggregator.Generate(ctx, AggregationMessage(results), params)
	f.logCombine("raw", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("fan-in combine: %w", &core.UnitError{Unit: f.aggregator.Name(), Err: err})
	}
	return out, nil
}

// GenerateText combines the ordered results into one string.
func (f *FanIn) GenerateText(ctx context.Context, results []Result, params core.GenerateParams) (string, error) {
	start := time.Now()
	out, err := f.aggregator.GenerateText(ctx, AggregationMessage(results), params)
	f.logCombine("text", time.Since(start), err)
	if err != nil {
		return "", fmt.Errorf("fan-in combine: %w", &core.UnitError{Unit: f.aggregator.Name(), Err: err})
	}
	return out, nil
}

// GenerateStructured combines the ordered results into the value pointed to by out.
func (f *FanIn) GenerateStructured(ctx context.Context, results []Result, params core.GenerateParams, out any) error {
	start := time.Now()
	err := f.aggregator.GenerateStructured(ctx, AggregationMessage(results), params, out)
	f.logCombine("structured", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("fan-in combine: %w", &core.UnitError{Unit: f.aggregator.Name(), Err: err})
	}
	return nil
}

func (f *FanIn) logCombine(mode string, dur time.Duration, err error) {
	if ffl, ok := f.logger.(*logging.FanFlowLogger); ok {
		ffl.LogCombine(mode, dur, err == nil, err)
		return
	}
	if err != nil {
		f.logger.Error("fan-in combine failed", "mode", mode, "duration_ms", dur.Milliseconds(), "error", err.Error())
		return
	}
	f.logger.Debug("fan-in combine completed", "mode", mode, "duration_ms", dur.Milliseconds())
}

// AggregationMessage renders the ordered fan-out results into the input
// message handed to the aggregator unit. Responses keep their configuration
// order and unit attribution so position-sensitive strategies (voting by
// position, sectioning) stay deterministic.
func AggregationMessage(results []Result) core.Message {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Combine the following %d responses produced in parallel for the same request.\n\n", len(results))
	for i, r := range results {
		fmt.Fprintf(&sb, "--- Response %d (%s) ---\n%s\n\n", i+1, r.Unit, core.ContentsText(r.Contents))
	}
	return core.Text(strings.TrimRight(sb.String(), "\n"))
}
