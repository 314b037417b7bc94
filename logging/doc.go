// Package logging provides a tiny abstraction over slog so downstream code
// can depend on a minimal interface (Logger) while allowing users to plug any
// structured logger. It also offers a richer FanFlowLogger with contextual
// helpers (workflow, unit) and domain specific logging helpers for model
// calls and fan-out/fan-in phases.
package logging
