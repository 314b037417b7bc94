package llm

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/hupe1980/fanflow/core"
	"github.com/hupe1980/fanflow/model"
	"github.com/hupe1980/fanflow/tool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedModel replays a fixed sequence of responses, one per Generate call.
// It records every request for assertions on transcript construction.
type scriptedModel struct {
	mu        sync.Mutex
	responses []model.Response
	calls     []model.Request
}

func (m *scriptedModel) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	respCh := make(chan model.Response, 1)
	errCh := make(chan error, 1)

	m.mu.Lock()
	m.calls = append(m.calls, req)
	var resp model.Response
	if len(m.responses) > 0 {
		resp = m.responses[0]
		m.responses = m.responses[1:]
	} else {
		resp = model.Response{Content: core.AssistantText("out of script"), FinishReason: "stop"}
	}
	m.mu.Unlock()

	respCh <- resp
	close(respCh)
	close(errCh)
	return respCh, errCh
}

func (m *scriptedModel) Info() model.Info {
	return model.Info{Name: "scripted", Provider: "test", SupportsTools: true}
}

func (m *scriptedModel) requests() []model.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	calls := make([]model.Request, len(m.calls))
	copy(calls, m.calls)
	return calls
}

func finalText(text string) model.Response {
	return model.Response{Content: core.AssistantText(text), FinishReason: "stop"}
}

func toolCallResponse(id, name, args string) model.Response {
	return model.Response{
		Content: core.Content{Role: "assistant", Parts: []core.Part{
			core.FunctionCallPart{FunctionCall: core.FunctionCall{ID: id, Name: name, Arguments: args}},
		}},
		FinishReason: "tool_calls",
	}
}

func TestAgent_GenerateText(t *testing.T) {
	mock := model.NewMockModel("mock", "test")
	mock.AddResponse("hello", "hi there")

	a := NewAgent("assistant", mock)

	text, err := a.GenerateText(context.Background(), core.Text("hello"), core.GenerateParams{})
	require.NoError(t, err)
	assert.Equal(t, "hi there", text)
}

func TestAgent_HistoryAccumulates(t *testing.T) {
	mock := model.NewMockModel("mock", "test")
	a := NewAgent("assistant", mock)

	_, err := a.Generate(context.Background(), core.Text("first"), core.GenerateParams{})
	require.NoError(t, err)
	assert.Equal(t, 2, a.History().Len()) // user turn + assistant turn

	_, err = a.Generate(context.Background(), core.Text("second"), core.GenerateParams{})
	require.NoError(t, err)
	assert.Equal(t, 4, a.History().Len())

	// The second request must include the first exchange.
	calls := mock.Calls()
	require.Len(t, calls, 2)
	assert.Len(t, calls[0].Contents, 1)
	assert.Len(t, calls[1].Contents, 3)
}

func TestAgent_HistoryDisabled(t *testing.T) {
	mock := model.NewMockModel("mock", "test")
	a := NewAgent("assistant", mock)

	params := core.GenerateParams{UseHistory: core.Bool(false)}

	_, err := a.Generate(context.Background(), core.Text("first"), params)
	require.NoError(t, err)
	_, err = a.Generate(context.Background(), core.Text("second"), params)
	require.NoError(t, err)

	assert.Equal(t, 0, a.History().Len())
	calls := mock.Calls()
	require.Len(t, calls, 2)
	assert.Len(t, calls[1].Contents, 1)
}

func TestAgent_ParamsForwardedToModel(t *testing.T) {
	mock := model.NewMockModel("mock", "test")
	a := NewAgent("assistant", mock)

	params := core.GenerateParams{
		Model:         "custom-model",
		MaxTokens:     256,
		StopSequences: []string{"END"},
	}

	_, err := a.Generate(context.Background(), core.Text("hi"), params)
	require.NoError(t, err)

	calls := mock.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "custom-model", calls[0].Model)
	assert.Equal(t, 256, calls[0].MaxTokens)
	assert.Equal(t, []string{"END"}, calls[0].StopSequences)
}

func TestAgent_ToolLoop(t *testing.T) {
	m := &scriptedModel{responses: []model.Response{
		toolCallResponse("call-1", "lookup", `{"key":"answer"}`),
		finalText("the answer is 42"),
	}}

	lookup := tool.NewFunctionTool(
		"lookup",
		"Look up a value",
		map[string]any{
			"type":       "object",
			"properties": map[string]any{"key": map[string]any{"type": "string"}},
			"required":   []string{"key"},
		},
		func(ctx context.Context, args map[string]any) (any, error) {
			return "42", nil
		},
	)

	a := NewAgent("assistant", m, func(o *AgentOptions) {
		o.Tools = []tool.Tool{lookup}
	})

	text, err := a.GenerateText(context.Background(), core.Text("what is the answer?"), core.GenerateParams{})
	require.NoError(t, err)
	assert.Equal(t, "the answer is 42", text)

	// Second request must carry the tool exchange: user msg, assistant tool
	// call, tool response.
	reqs := m.requests()
	require.Len(t, reqs, 2)
	assert.Len(t, reqs[1].Contents, 3)
	assert.Equal(t, "tool", reqs[1].Contents[2].Role)
}

func TestAgent_ToolFailureFedBackToModel(t *testing.T) {
	m := &scriptedModel{responses: []model.Response{
		toolCallResponse("call-1", "unknown_tool", `{}`),
		finalText("could not look that up"),
	}}

	noop := tool.NewFunctionTool("noop", "Do nothing",
		map[string]any{"type": "object", "properties": map[string]any{}},
		func(ctx context.Context, args map[string]any) (any, error) { return nil, nil },
	)

	a := NewAgent("assistant", m, func(o *AgentOptions) { o.Tools = []tool.Tool{noop} })

	text, err := a.GenerateText(context.Background(), core.Text("hi"), core.GenerateParams{})
	require.NoError(t, err)
	assert.Equal(t, "could not look that up", text)

	reqs := m.requests()
	require.Len(t, reqs, 2)
	toolContent := reqs[1].Contents[2]
	fr, ok := toolContent.Parts[0].(core.FunctionResponsePart)
	require.True(t, ok)
	assert.Contains(t, fr.FunctionResponse.Error, "not found")
}

func TestAgent_MaxIterationsExceeded(t *testing.T) {
	// The model keeps asking for tools and never produces a final answer.
	m := &scriptedModel{responses: []model.Response{
		toolCallResponse("c1", "noop", `{}`),
		toolCallResponse("c2", "noop", `{}`),
		toolCallResponse("c3", "noop", `{}`),
	}}

	noop := tool.NewFunctionTool("noop", "Do nothing",
		map[string]any{"type": "object", "properties": map[string]any{}},
		func(ctx context.Context, args map[string]any) (any, error) { return "ok", nil },
	)

	a := NewAgent("assistant", m, func(o *AgentOptions) { o.Tools = []tool.Tool{noop} })

	_, err := a.Generate(context.Background(), core.Text("hi"), core.GenerateParams{MaxIterations: 2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max iterations")
}

func TestAgent_GenerateStructured(t *testing.T) {
	type Verdict struct {
		Safe       bool    `json:"safe"`
		Confidence float64 `json:"confidence"`
	}

	m := &scriptedModel{responses: []model.Response{
		finalText("```json\n{\"safe\": true, \"confidence\": 0.9}\n```"),
	}}

	a := NewAgent("judge", m)

	var v Verdict
	err := a.GenerateStructured(context.Background(), core.Text("judge this"), core.GenerateParams{}, &v)
	require.NoError(t, err)
	assert.True(t, v.Safe)
	assert.InDelta(t, 0.9, v.Confidence, 1e-9)

	// The request prompt must carry the derived schema.
	reqs := m.requests()
	require.Len(t, reqs, 1)
	prompt := reqs[0].Contents[0].Text()
	assert.Contains(t, prompt, `"safe"`)
	assert.Contains(t, prompt, `"confidence"`)
}

func TestAgent_ModelErrorPropagates(t *testing.T) {
	mock := model.NewMockModel("mock", "test")
	sentinel := errors.New("provider down")
	mock.FailWith(sentinel)

	a := NewAgent("assistant", mock)

	_, err := a.Generate(context.Background(), core.Text("hi"), core.GenerateParams{})
	assert.ErrorIs(t, err, sentinel)
}

func TestAgent_TemplatedInstruction(t *testing.T) {
	m := &scriptedModel{responses: []model.Response{finalText("ok")}}

	a := NewAgent("assistant", m, func(o *AgentOptions) {
		o.Instruction = "You are a {{.role}} answering in {{.lang | upper}}."
		o.InstructionVars = map[string]any{"role": "translator", "lang": "fr"}
	})

	_, err := a.GenerateText(context.Background(), core.Text("hi"), core.GenerateParams{})
	require.NoError(t, err)

	reqs := m.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "You are a translator answering in FR.", reqs[0].Instructions)
}
