package llm

import (
	"context"
)

// Provider defines the interface for LLM text-generation providers.
// Different providers (Z.ai, OpenAI-compatible gateways, mocks) must implement
// this interface. The agent core recovers all structure from the returned text
// itself; providers make no structured-output guarantee.
type Provider interface {
	// Generate sends a single-prompt completion request to the provider.
	// It takes a context for cancellation/timeout and a GenerateRequest with the
	// prompt and sampling parameters, and returns the model's text response.
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)

	// GetDefaultModel returns the default model identifier for this provider.
	// Used when no specific model is requested.
	GetDefaultModel() string
}

// Usage tracks token usage information for the request.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`     // Number of tokens in the prompt
	CompletionTokens int `json:"completion_tokens"` // Number of tokens in the completion
	TotalTokens      int `json:"total_tokens"`      // Total number of tokens used
}

// GenerateRequest represents a text-generation request.
type GenerateRequest struct {
	Prompt      string  `json:"prompt"`      // The prompt to complete
	Model       string  `json:"model"`       // The model to use (empty = provider default)
	Temperature float64 `json:"temperature"` // Sampling temperature (0.0-2.0)
	MaxTokens   int     `json:"max_tokens"`  // Maximum tokens to generate
}

// GenerateResponse represents a provider response.
type GenerateResponse struct {
	Text  string `json:"text"`  // The model's text response
	Model string `json:"model"` // The actual model used
	Usage Usage  `json:"usage"` // Token usage information
}
