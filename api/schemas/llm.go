// api/schemas/llm.go
package schemas

import "context"

// GenerationRequest is a provider-agnostic text generation request.
type GenerationRequest struct {
	SystemPrompt string
	UserPrompt   string
	// ForceJSONFormat asks the provider to constrain output to a single
	// JSON document when it supports that natively.
	ForceJSONFormat bool
	Temperature     float32
}

// LLMClient is the reasoning oracle boundary. Implementations are treated
// as untrusted text generators: callers must validate everything that
// comes back.
type LLMClient interface {
	Generate(ctx context.Context, req GenerationRequest) (string, error)
}
