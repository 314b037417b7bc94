// Package core provides the foundational domain types shared by every FanFlow
// package. It defines:
//
//   - Content / Part (role-based, heterogeneous message segments)
//   - Message (the normalized input accepted by all generation calls)
//   - GenerateParams (the per-call parameter bundle passed through workflows)
//   - The error kinds surfaced by workflow construction and unit execution
//
// The package intentionally carries no behavior beyond construction and
// normalization helpers; model adapters, generation units and workflow
// coordination live in their respective packages to avoid cyclic deps.
package core
