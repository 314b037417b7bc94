package parallel

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hupe1980/fanflow/core"
	"github.com/hupe1980/fanflow/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RejectsBothStrategies(t *testing.T) {
	units := []llm.Unit{&stubUnit{name: "u0", reply: "r0"}}
	agg := &spyUnit{name: "agg", reply: "x"}

	_, err := New(units, WithAggregator(agg), WithReducer(func(ctx context.Context, results []Result) (any, error) {
		return nil, nil
	}))
	require.Error(t, err)
	assert.True(t, core.IsConfigError(err))
	assert.Contains(t, err.Error(), "mutually exclusive")
}

func TestNew_RejectsNeitherStrategy(t *testing.T) {
	_, err := New([]llm.Unit{&stubUnit{name: "u0", reply: "r0"}})
	require.Error(t, err)
	assert.True(t, core.IsConfigError(err))
}

func TestNew_RejectsZeroUnits(t *testing.T) {
	_, err := New(nil, WithAggregator(&spyUnit{name: "agg"}))
	require.Error(t, err)
	assert.True(t, core.IsConfigError(err))
}

// Sectioning: three units each handle one fragment, a reducer joins their
// outputs with "|" in configuration order even though completion order is
// scrambled by staggered delays.
func TestWorkflow_SectioningWithReducer(t *testing.T) {
	units := []llm.Unit{
		&stubUnit{name: "sectionA", reply: "A", delay: 20 * time.Millisecond},
		&stubUnit{name: "sectionB", reply: "B", delay: 5 * time.Millisecond},
		&stubUnit{name: "sectionC", reply: "C"},
	}

	w, err := New(units, WithReducer(func(ctx context.Context, results []Result) (any, error) {
		parts := make([]string, len(results))
		for i, r := range results {
			parts[i] = core.ContentsText(r.Contents)
		}
		return strings.Join(parts, "|"), nil
	}))
	require.NoError(t, err)

	out, err := w.GenerateText(context.Background(), core.Text("translate"), core.GenerateParams{})
	require.NoError(t, err)
	assert.Equal(t, "A|B|C", out)
}

// Voting: several verifier units answer the same question and an aggregator
// unit decides by majority.
func TestWorkflow_VotingWithAggregator(t *testing.T) {
	units := []llm.Unit{
		&stubUnit{name: "voter0", reply: "valid"},
		&stubUnit{name: "voter1", reply: "valid"},
		&stubUnit{name: "voter2", reply: "invalid"},
	}

	tally := llm.NewFunc("majority", func(ctx context.Context, msg core.Message) (any, error) {
		text := msg.Text()
		invalid := strings.Count(text, "invalid")
		valid := strings.Count(text, "valid") - invalid // "invalid" contains "valid"
		if valid > invalid {
			return "valid", nil
		}
		return "invalid", nil
	})

	w, err := New(units, WithAggregator(tally))
	require.NoError(t, err)

	out, err := w.GenerateText(context.Background(), core.Text("is this proof correct?"), core.GenerateParams{})
	require.NoError(t, err)
	assert.Equal(t, "valid", out)
}

// A fan-out failure aborts the call before the combine phase: the aggregator
// must never observe a partial result set.
func TestWorkflow_FanOutFailureSkipsAggregation(t *testing.T) {
	sentinel := errors.New("unit exploded")
	units := []llm.Unit{
		&stubUnit{name: "ok", reply: "fine"},
		&stubUnit{name: "bad", err: sentinel},
	}
	agg := &spyUnit{name: "agg", reply: "should not run"}

	w, err := New(units, WithAggregator(agg))
	require.NoError(t, err)

	_, err = w.GenerateText(context.Background(), core.Text("X"), core.GenerateParams{})
	require.Error(t, err)
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, int32(0), agg.calls.Load(), "aggregator must not be invoked after a dispatch failure")
}

func TestWorkflow_ReducerFailureFailsCall(t *testing.T) {
	sentinel := errors.New("reduce failed")
	w, err := New([]llm.Unit{&stubUnit{name: "u0", reply: "r0"}}, WithReducer(func(ctx context.Context, results []Result) (any, error) {
		return nil, sentinel
	}))
	require.NoError(t, err)

	_, err = w.Generate(context.Background(), core.Text("X"), core.GenerateParams{})
	require.Error(t, err)
	assert.ErrorIs(t, err, sentinel)
}

// Calls on a workflow are independent: no conversation history leaks between
// requests, so a unit that echoes its input sees only the current message.
func TestWorkflow_CallsAreIndependent(t *testing.T) {
	echo := llm.NewFunc("echo", func(ctx context.Context, msg core.Message) (any, error) {
		return msg.Text(), nil
	})

	w, err := New([]llm.Unit{echo}, WithReducer(func(ctx context.Context, results []Result) (any, error) {
		return core.ContentsText(results[0].Contents), nil
	}))
	require.NoError(t, err)

	first, err := w.GenerateText(context.Background(), core.Text("first"), core.GenerateParams{})
	require.NoError(t, err)
	assert.Equal(t, "first", first)

	second, err := w.GenerateText(context.Background(), core.Text("second"), core.GenerateParams{})
	require.NoError(t, err)
	assert.Equal(t, "second", second, "prior calls must not influence later ones")
}

// Non-string reducer values are coerced to text in the text mode.
func TestWorkflow_GenerateText_CoercesReducerValue(t *testing.T) {
	w, err := New([]llm.Unit{&stubUnit{name: "u0", reply: "r0"}}, WithReducer(func(ctx context.Context, results []Result) (any, error) {
		return map[string]any{"count": 1}, nil
	}))
	require.NoError(t, err)

	out, err := w.GenerateText(context.Background(), core.Text("X"), core.GenerateParams{})
	require.NoError(t, err)
	assert.Contains(t, out, `"count"`)
}

func TestWorkflow_GenerateStructured_WithAggregator(t *testing.T) {
	type Consensus struct {
		Answer     string  `json:"answer"`
		Confidence float64 `json:"confidence"`
	}

	units := []llm.Unit{
		&stubUnit{name: "u0", reply: "blue"},
		&stubUnit{name: "u1", reply: "blue"},
	}
	agg := &spyUnit{name: "agg", reply: `{"answer": "blue", "confidence": 1.0}`}

	w, err := New(units, WithAggregator(agg))
	require.NoError(t, err)

	var c Consensus
	err = w.GenerateStructured(context.Background(), core.Text("color?"), core.GenerateParams{}, &c)
	require.NoError(t, err)
	assert.Equal(t, "blue", c.Answer)
	assert.InDelta(t, 1.0, c.Confidence, 0.001)
}

func TestWorkflow_GenerateStructured_WithReducer(t *testing.T) {
	type Tally struct {
		Votes int `json:"votes"`
	}

	units := []llm.Unit{
		&stubUnit{name: "u0", reply: "yes"},
		&stubUnit{name: "u1", reply: "yes"},
		&stubUnit{name: "u2", reply: "no"},
	}

	w, err := New(units, WithReducer(func(ctx context.Context, results []Result) (any, error) {
		n := 0
		for _, r := range results {
			if core.ContentsText(r.Contents) == "yes" {
				n++
			}
		}
		return Tally{Votes: n}, nil
	}))
	require.NoError(t, err)

	var tally Tally
	err = w.GenerateStructured(context.Background(), core.Text("vote"), core.GenerateParams{}, &tally)
	require.NoError(t, err)
	assert.Equal(t, 2, tally.Votes)
}

// A workflow is itself a generation unit, so workflows nest: the inner
// workflow serves as one fan-out element of the outer one.
func TestWorkflow_NestsAsUnit(t *testing.T) {
	inner, err := New(
		[]llm.Unit{&stubUnit{name: "i0", reply: "x"}, &stubUnit{name: "i1", reply: "y"}},
		func(o *Options) { o.Name = "inner" },
		WithReducer(func(ctx context.Context, results []Result) (any, error) {
			return core.ContentsText(results[0].Contents) + core.ContentsText(results[1].Contents), nil
		}),
	)
	require.NoError(t, err)

	outer, err := New(
		[]llm.Unit{inner, &stubUnit{name: "o1", reply: "z"}},
		WithReducer(func(ctx context.Context, results []Result) (any, error) {
			return core.ContentsText(results[0].Contents) + core.ContentsText(results[1].Contents), nil
		}),
	)
	require.NoError(t, err)

	out, err := outer.GenerateText(context.Background(), core.Text("go"), core.GenerateParams{})
	require.NoError(t, err)
	assert.Equal(t, "xyz", out)
	assert.Equal(t, "inner", inner.Name())
}

func TestWorkflow_DefaultName(t *testing.T) {
	w, err := New([]llm.Unit{&stubUnit{name: "u0", reply: "r0"}}, WithAggregator(&spyUnit{name: "agg", reply: "x"}))
	require.NoError(t, err)
	assert.Equal(t, "parallel", w.Name())
	assert.Len(t, w.FanOut().Units(), 1)
}

// Swapping the combine strategy leaves the dispatch phase untouched: the same
// fan-out units feed either an aggregator unit or a reduction function.
func TestWorkflow_StrategySwap(t *testing.T) {
	units := []llm.Unit{
		&stubUnit{name: "u0", reply: "alpha"},
		&stubUnit{name: "u1", reply: "beta"},
	}

	reduced, err := New(units, WithReducer(func(ctx context.Context, results []Result) (any, error) {
		return core.ContentsText(results[0].Contents) + "+" + core.ContentsText(results[1].Contents), nil
	}))
	require.NoError(t, err)

	agg := &spyUnit{name: "agg", reply: "combined"}
	aggregated, err := New(units, WithAggregator(agg))
	require.NoError(t, err)

	out, err := reduced.GenerateText(context.Background(), core.Text("X"), core.GenerateParams{})
	require.NoError(t, err)
	assert.Equal(t, "alpha+beta", out)

	out, err = aggregated.GenerateText(context.Background(), core.Text("X"), core.GenerateParams{})
	require.NoError(t, err)
	assert.Equal(t, "combined", out)

	// Both strategies consumed the same fan-out outputs.
	assert.Contains(t, agg.lastText, "alpha")
	assert.Contains(t, agg.lastText, "beta")
}
