package core

// Default bounds applied when the corresponding GenerateParams field is unset.
const (
	DefaultMaxIterations = 10
	DefaultMaxTokens     = 2048
)

// GenerateParams is the per-call parameter bundle recognized by every
// generation call. A workflow passes it through unchanged to each fan-out
// unit and to the fan-in unit. Pointer fields use nil to mean "not set" so
// their documented defaults (true) survive the zero value; use Bool to set
// them explicitly.
type GenerateParams struct {
	// UseHistory controls whether a unit's own prior turns are considered.
	// Defaults to true when nil. Workflows themselves never keep history.
	UseHistory *bool

	// MaxIterations bounds a unit's internal tool-call/reasoning loop.
	// Zero means DefaultMaxIterations. It bounds iterations, not wall-clock
	// time; cancellation is the caller's context.
	MaxIterations int

	// Model optionally overrides the unit's configured model id.
	Model string

	// StopSequences are forwarded to the provider verbatim.
	StopSequences []string

	// MaxTokens caps the completion size. Zero means DefaultMaxTokens.
	MaxTokens int

	// ParallelToolCalls controls whether a unit may execute multiple tool
	// calls concurrently within one iteration. Defaults to true when nil.
	ParallelToolCalls *bool
}

// Bool returns a pointer to b for optional boolean params.
func Bool(b bool) *bool { return &b }

// HistoryEnabled resolves the UseHistory field against its default.
func (p GenerateParams) HistoryEnabled() bool {
	return p.UseHistory == nil || *p.UseHistory
}

// ParallelToolCallsEnabled resolves the ParallelToolCalls field against its default.
func (p GenerateParams) ParallelToolCallsEnabled() bool {
	return p.ParallelToolCalls == nil || *p.ParallelToolCalls
}

// IterationLimit resolves MaxIterations against its default.
func (p GenerateParams) IterationLimit() int {
	if p.MaxIterations > 0 {
		return p.MaxIterations
	}
	return DefaultMaxIterations
}

// TokenLimit resolves MaxTokens against its default.
func (p GenerateParams) TokenLimit() int {
	if p.MaxTokens > 0 {
		return p.MaxTokens
	}
	return DefaultMaxTokens
}
