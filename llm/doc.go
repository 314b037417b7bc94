// Package llm defines the generation unit surface consumed by FanFlow
// workflows and its two concrete shapes:
//
//   - Agent: an LLM-backed unit wrapping a model.Model with an instruction,
//     optional per-agent conversation history and a bounded tool-call loop.
//   - Func: an adapter exposing a plain Go function as a unit, so function
//     workers and LLM workers mix freely in one fan-out without type
//     branching in the coordinator.
//
// Anything implementing Unit is a valid fan-out or fan-in element.
package llm
