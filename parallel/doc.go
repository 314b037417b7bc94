// Package parallel implements the fan-out/fan-in workflow: one input is
// dispatched to several generation units concurrently (sectioning for speed,
// voting for confidence) and their ordered outputs are combined into a single
// result, either by an aggregating LLM unit or by a caller-supplied reduction
// function.
//
// From the caller's perspective a Workflow behaves like a single generation
// unit: it implements llm.Unit, so workflows can nest inside other workflows.
// Each call is a strict two-phase pipeline, dispatch then combine, with a
// join barrier in between; any unit failure aborts the whole call.
package parallel
