// Package model defines the normalized request/response surface between
// generation units and concrete LLM providers. Provider adapters live in
// subpackages (anthropic, openai); a deterministic MockModel supports tests
// and examples without network access.
package model
