// Package llm defines the provider-facing value types and the failure taxonomy
// used by the enrichment engine. Classification is pure: it maps a raw provider
// failure to a category, retryability, and pause policy without any I/O.
package llm

import (
	"encoding/json"
	"fmt"
	"time"
)

// Request is a single provider invocation: one prompt filled against one row.
type Request struct {
	Provider   string
	Model      string
	SystemText string
	UserText   string

	Temperature *float64
	MaxTokens   *int
	TopP        *float64
}

// Response is the adapter's normalized result. Content is always plain text;
// any structured response parts are flattened inside the adapter boundary (see
// internal/llm), never by callers.
type Response struct {
	Content string
	// Raw preserves the provider's structured payload for diagnostics.
	Raw json.RawMessage
}

// CallError is the raw failure surfaced by a provider transport. Wire adapters
// populate whichever fields the provider exposes; classification tolerates any
// subset being set.
type CallError struct {
	StatusCode int
	Code       string
	Message    string
	// RetryAfter is the provider-declared backoff hint, zero when absent.
	RetryAfter time.Duration
	// Blocked is set when the call succeeded at the transport level but the
	// response's own metadata reports a safety block.
	Blocked     bool
	BlockReason string
}

// Error implements the error interface.
func (e *CallError) Error() string {
	switch {
	case e.Blocked:
		return fmt.Sprintf("provider blocked response: %s", e.BlockReason)
	case e.Code != "":
		return fmt.Sprintf("provider error %s (status %d): %s", e.Code, e.StatusCode, e.Message)
	default:
		return fmt.Sprintf("provider error (status %d): %s", e.StatusCode, e.Message)
	}
}
