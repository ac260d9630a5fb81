// Package llm provides the text-generation capability for Echo.
//
// The model is a black box: a compiled prompt goes in, raw text comes out.
// Transport, quota, and auth failures are all surfaced as plain errors —
// the orchestrator treats every failure category identically and degrades
// to a fixed fallback message, so no caller ever needs to branch on the
// failure kind.
package llm

import "context"

// DefaultTemperature is the sampling temperature used when a caller passes
// a non-positive value.
const DefaultTemperature = 0.7

// Provider generates raw text for a single prompt.
//
// Implementations must be safe for concurrent use from multiple goroutines.
// The generation call is the only high-latency operation in a turn and the
// sole suspension point; no cancellation is attempted beyond honoring ctx.
type Provider interface {
	// Generate sends the prompt to the underlying model and returns its raw
	// text output. temperature <= 0 selects DefaultTemperature.
	Generate(ctx context.Context, prompt string, temperature float64) (string, error)
}
