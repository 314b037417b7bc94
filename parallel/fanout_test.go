package parallel

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hupe1980/fanflow/core"
	"github.com/hupe1980/fanflow/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubUnit is a deterministic generation unit for coordination tests. It can
// delay completion to simulate jitter, fail on demand and counts invocations
// per mode.
type stubUnit struct {
	name      string
	reply     string
	delay     time.Duration
	err       error
	calls     atomic.Int32
	textCalls atomic.Int32
}

func (u *stubUnit) Name() string { return u.name }

func (u *stubUnit) wait(ctx context.Context) error {
	if u.delay == 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(u.delay):
		return nil
	}
}

func (u *stubUnit) Generate(ctx context.Context, msg core.Message, params core.GenerateParams) ([]core.Content, error) {
	u.calls.Add(1)
	if err := u.wait(ctx); err != nil {
		return nil, err
	}
	if u.err != nil {
		return nil, u.err
	}
	return []core.Content{core.AssistantText(u.reply)}, nil
}

func (u *stubUnit) GenerateText(ctx context.Context, msg core.Message, params core.GenerateParams) (string, error) {
	u.textCalls.Add(1)
	if err := u.wait(ctx); err != nil {
		return "", err
	}
	if u.err != nil {
		return "", u.err
	}
	return u.reply, nil
}

func (u *stubUnit) GenerateStructured(ctx context.Context, msg core.Message, params core.GenerateParams, out any) error {
	if err := u.wait(ctx); err != nil {
		return err
	}
	if u.err != nil {
		return u.err
	}
	return llm.DecodeValue(u.reply, out)
}

func TestNewFanOut_RequiresUnits(t *testing.T) {
	_, err := NewFanOut(nil)
	require.Error(t, err)
	assert.True(t, core.IsConfigError(err))
}

func TestFanOut_PreservesConfigurationOrder(t *testing.T) {
	// Completion order is reversed relative to configuration order: the
	// first unit is the slowest. The result sequence must still follow
	// configuration order.
	units := []llm.Unit{
		&stubUnit{name: "u0", reply: "r0", delay: 30 * time.Millisecond},
		&stubUnit{name: "u1", reply: "r1", delay: 15 * time.Millisecond},
		&stubUnit{name: "u2", reply: "r2"},
	}

	f, err := NewFanOut(units)
	require.NoError(t, err)

	results, err := f.Generate(context.Background(), core.Text("X"), core.GenerateParams{})
	require.NoError(t, err)
	require.Len(t, results, 3)

	for i, r := range results {
		assert.Equal(t, fmt.Sprintf("u%d", i), r.Unit)
		assert.Equal(t, fmt.Sprintf("r%d", i), core.ContentsText(r.Contents))
	}
}

func TestFanOut_SingleUnit(t *testing.T) {
	f, err := NewFanOut([]llm.Unit{&stubUnit{name: "only", reply: "solo"}})
	require.NoError(t, err)

	results, err := f.Generate(context.Background(), core.Text("X"), core.GenerateParams{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "only", results[0].Unit)
}

func TestFanOut_UnitFailureFailsDispatch(t *testing.T) {
	sentinel := errors.New("provider error")
	units := []llm.Unit{
		&stubUnit{name: "ok", reply: "fine"},
		&stubUnit{name: "broken", err: sentinel},
	}

	f, err := NewFanOut(units)
	require.NoError(t, err)

	_, err = f.Generate(context.Background(), core.Text("X"), core.GenerateParams{})
	require.Error(t, err)
	assert.ErrorIs(t, err, sentinel)

	var ue *core.UnitError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, "broken", ue.Unit)
}

func TestFanOut_GenerateText(t *testing.T) {
	units := []llm.Unit{
		&stubUnit{name: "a", reply: "A", delay: 10 * time.Millisecond},
		&stubUnit{name: "b", reply: "B"},
	}

	f, err := NewFanOut(units)
	require.NoError(t, err)

	texts, err := f.GenerateText(context.Background(), core.Text("X"), core.GenerateParams{})
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, texts)
}

func TestFanOut_GenerateStructured(t *testing.T) {
	type Verdict struct {
		Safe bool `json:"safe"`
	}

	units := []llm.Unit{
		&stubUnit{name: "a", reply: `{"safe": true}`},
		&stubUnit{name: "b", reply: `{"safe": false}`},
	}

	f, err := NewFanOut(units)
	require.NoError(t, err)

	var v0, v1 Verdict
	err = f.GenerateStructured(context.Background(), core.Text("X"), core.GenerateParams{}, []any{&v0, &v1})
	require.NoError(t, err)
	assert.True(t, v0.Safe)
	assert.False(t, v1.Safe)
}

func TestFanOut_GenerateStructured_TargetCountMismatch(t *testing.T) {
	f, err := NewFanOut([]llm.Unit{&stubUnit{name: "a", reply: "{}"}})
	require.NoError(t, err)

	var out map[string]any
	err = f.GenerateStructured(context.Background(), core.Text("X"), core.GenerateParams{}, []any{&out, &out})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "one target per unit")
}

func TestFanOut_AllUnitsReceiveSameMessage(t *testing.T) {
	var seen [2]string
	mk := func(i int) llm.Unit {
		return llm.NewFunc(fmt.Sprintf("f%d", i), func(ctx context.Context, msg core.Message) (any, error) {
			seen[i] = msg.Text()
			return "ok", nil
		})
	}

	f, err := NewFanOut([]llm.Unit{mk(0), mk(1)})
	require.NoError(t, err)

	_, err = f.Generate(context.Background(), core.Text("identical"), core.GenerateParams{})
	require.NoError(t, err)
	assert.Equal(t, "identical", seen[0])
	assert.Equal(t, "identical", seen[1])
}
