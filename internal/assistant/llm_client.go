package assistant

import "context"

// LLMRequest is a single-turn completion request: one system instruction
// plus one user message, low temperature for deterministic answers.
type LLMRequest struct {
	System      string
	UserMessage string
	MaxTokens   int32
	Temperature float32
}

// LLMResponse carries the raw model text and token accounting.
type LLMResponse struct {
	Text  string
	Usage TokenUsage
}

// TokenUsage mirrors the provider's token counters.
type TokenUsage struct {
	InputTokens  int32
	OutputTokens int32
	TotalTokens  int32
}

// LLMClient abstracts the generative model provider. Implementations must
// honor ctx cancellation so the invoker's per-call timeout is effective.
type LLMClient interface {
	Complete(ctx context.Context, req LLMRequest) (LLMResponse, error)
	// ModelID identifies the underlying model for telemetry.
	ModelID() string
}
