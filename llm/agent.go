package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/fanflow/core"
	"github.com/hupe1980/fanflow/history"
	"github.com/hupe1980/fanflow/internal/util"
	"github.com/hupe1980/fanflow/logging"
	"github.com/hupe1980/fanflow/model"
	"github.com/hupe1980/fanflow/tool"
)

// AgentOptions configures an Agent instance.
//
// Use functional options with NewAgent to override defaults.
type AgentOptions struct {
	// Instruction is the system instruction. It may contain text/template
	// markers resolved against InstructionVars at construction time.
	Instruction string

	// InstructionVars supplies values for template markers in Instruction.
	InstructionVars map[string]any

	Tools             []tool.Tool
	History           history.Store
	MaxHistoryRecords int
	Logger            logging.Logger
}

// Agent is an LLM-backed generation unit. It wraps a model.Model with a
// system instruction, registered tools for function calling and a private
// conversation history consulted when the per-call UseHistory flag allows.
//
// Each Generate call runs a bounded reasoning loop: the model response is
// inspected for function calls, matching tools are executed (in parallel if
// the call's ParallelToolCalls flag allows) and the results are fed back
// until the model produces a plain response or the iteration limit is hit.
type Agent struct {
	name        string
	model       model.Model
	instruction string
	tools       map[string]tool.Tool
	history     history.Store
	logger      logging.Logger
}

// NewAgent creates an LLM-backed generation unit with sensible defaults:
// an identity instruction, no tools, a volatile in-memory history capped at
// 20 records and no-op logging.
func NewAgent(name string, m model.Model, optFns ...func(o *AgentOptions)) *Agent {
	opts := AgentOptions{
		Instruction:       fmt.Sprintf("You are %s, a helpful AI assistant.", name),
		MaxHistoryRecords: 20,
		Logger:            logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.History == nil {
		opts.History = history.NewInMemory(opts.MaxHistoryRecords)
	}

	instruction, err := util.RenderTemplate(opts.Instruction, opts.InstructionVars)
	if err != nil {
		opts.Logger.Warn("instruction template rendering failed, using raw text", "unit", name, "error", err.Error())
		instruction = opts.Instruction
	}

	tools := make(map[string]tool.Tool, len(opts.Tools))
	for _, t := range opts.Tools {
		tools[t.Name()] = t
	}

	return &Agent{
		name:        name,
		model:       m,
		instruction: instruction,
		tools:       tools,
		history:     opts.History,
		logger:      opts.Logger,
	}
}

// Name implements Unit.
func (a *Agent) Name() string { return a.name }

// History exposes the agent's conversation store.
func (a *Agent) History() history.Store { return a.history }

// RegisterTool adds a function tool to the agent's capability set.
func (a *Agent) RegisterTool(t tool.Tool) { a.tools[t.Name()] = t }

// Generate implements Unit by driving the model through the tool-call loop
// and returning the final assistant content.
func (a *Agent) Generate(ctx context.Context, msg core.Message, params core.GenerateParams) ([]core.Content, error) {
	final, err := a.run(ctx, msg.Contents(), params)
	if err != nil {
		return nil, err
	}

	if params.HistoryEnabled() {
		a.history.Append(msg.Contents()...)
		a.history.Append(final)
	}

	return []core.Content{final}, nil
}

// GenerateText implements Unit, returning the text of the final response.
func (a *Agent) GenerateText(ctx context.Context, msg core.Message, params core.GenerateParams) (string, error) {
	contents, err := a.Generate(ctx, msg, params)
	if err != nil {
		return "", err
	}
	return core.ContentsText(contents), nil
}

// GenerateStructured implements Unit. The expected shape is derived from out
// via reflection and appended to the request as a JSON-only instruction; the
// model's response is decoded into out.
func (a *Agent) GenerateStructured(ctx context.Context, msg core.Message, params core.GenerateParams, out any) error {
	schema := util.StructSchema(out)
	schemaJSON, err := json.Marshal(schema)
	if err != nil {
		return fmt.Errorf("marshal response schema: %w", err)
	}

	prompt := fmt.Sprintf(
		"%s\n\nRespond only with a single JSON object conforming to this schema, without code fences or commentary:\n%s",
		msg.Text(), schemaJSON,
	)

	text, err := a.GenerateText(ctx, core.Text(prompt), params)
	if err != nil {
		return err
	}

	if err := json.Unmarshal([]byte(ExtractJSON(text)), out); err != nil {
		return fmt.Errorf("decode structured response into %T: %w", out, err)
	}
	return nil
}

// run executes the bounded model/tool loop and returns the final assistant content.
func (a *Agent) run(ctx context.Context, contents []core.Content, params core.GenerateParams) (core.Content, error) {
	transcript := make([]core.Content, 0, len(contents)+4)
	if params.HistoryEnabled() {
		transcript = append(transcript, a.history.Contents()...)
	}
	transcript = append(transcript, contents...)

	limit := params.IterationLimit()
	for i := 0; i < limit; i++ {
		req := model.Request{
			Instructions:  a.instruction,
			Contents:      transcript,
			Tools:         a.toolDefinitions(),
			Model:         params.Model,
			MaxTokens:     params.TokenLimit(),
			StopSequences: params.StopSequences,
		}

		start := time.Now()
		respCh, errCh := a.model.Generate(ctx, req)
		resp, err := model.Collect(ctx, respCh, errCh)
		if err != nil {
			a.logger.Error("model generation failed", "unit", a.name, "model", a.model.Info().Name, "error", err.Error())
			return core.Content{}, fmt.Errorf("model generation: %w", err)
		}

		a.logger.Debug("model generation completed",
			"unit", a.name,
			"iteration", i,
			"duration_ms", time.Since(start).Milliseconds(),
			"finish_reason", resp.FinishReason,
		)

		calls := resp.Content.FunctionCalls()
		if len(calls) == 0 || len(a.tools) == 0 {
			return resp.Content, nil
		}

		transcript = append(transcript, resp.Content)
		toolContent := a.executeCalls(ctx, calls, params.ParallelToolCallsEnabled())
		transcript = append(transcript, toolContent)
	}

	return core.Content{}, fmt.Errorf("unit %q exceeded max iterations (%d) without a final response", a.name, limit)
}

// executeCalls runs the requested tool calls and collects their responses as
// a single tool-role content in call order. Tool failures are embedded in the
// response so the model can react to them on the next iteration.
func (a *Agent) executeCalls(ctx context.Context, calls []core.FunctionCall, parallel bool) core.Content {
	parts := make([]core.Part, len(calls))

	runOne := func(idx int, fc core.FunctionCall) {
		result, err := a.callTool(ctx, fc)
		fr := core.FunctionResponse{ID: fc.ID, Name: fc.Name, Response: result}
		if err != nil {
			fr.Error = err.Error()
			a.logger.Warn("tool call failed", "unit", a.name, "tool", fc.Name, "error", err.Error())
		}
		parts[idx] = core.FunctionResponsePart{FunctionResponse: fr}
	}

	if parallel && len(calls) > 1 {
		var wg sync.WaitGroup
		for i, fc := range calls {
			wg.Add(1)
			go func(idx int, fc core.FunctionCall) {
				defer wg.Done()
				runOne(idx, fc)
			}(i, fc)
		}
		wg.Wait()
	} else {
		for i, fc := range calls {
			runOne(i, fc)
		}
	}

	return core.Content{Role: "tool", Parts: parts}
}

// callTool resolves and invokes a single tool with decoded arguments.
func (a *Agent) callTool(ctx context.Context, fc core.FunctionCall) (any, error) {
	impl, ok := a.tools[fc.Name]
	if !ok {
		return nil, fmt.Errorf("tool %s not found", fc.Name)
	}

	args := map[string]any{}
	if fc.Arguments != "" {
		if err := json.Unmarshal([]byte(fc.Arguments), &args); err != nil {
			return nil, fmt.Errorf("failed to unmarshal args: %w", err)
		}
	}

	return impl.Call(ctx, args)
}

// toolDefinitions exposes registered tools in the normalized request format.
func (a *Agent) toolDefinitions() []model.ToolDefinition {
	if len(a.tools) == 0 {
		return nil
	}
	defs := make([]model.ToolDefinition, 0, len(a.tools))
	for _, t := range a.tools {
		defs = append(defs, model.ToolDefinition{
			Type: "function",
			Function: model.FunctionDefinition{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		})
	}
	return defs
}
