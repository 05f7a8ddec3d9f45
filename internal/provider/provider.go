// Package provider defines the LLM provider abstraction and core data types.
package provider

import "context"

// LLMProvider defines the interface for LLM communication.
// Any model service can be used by implementing this interface.
type LLMProvider interface {
	// Generate sends a non-streaming request to the LLM and returns the
	// response. The request includes messages, optional tools, and an
	// optional system prompt.
	Generate(ctx context.Context, req GenerateRequest) (*LLMResponse, error)

	// Name returns the name of the provider (e.g., "anthropic").
	Name() string
}
