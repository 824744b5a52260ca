// Package llm provides the completion and embedding client used by the
// planner, documenter, and indexer. A provider is selected by model-name
// pattern; calls are wrapped with retry, backoff, and a one-shot fallback
// provider.
package llm

import (
	"context"
	"os"
)

// Environment variables recognized by FromEnv.
const (
	EnvPrimaryModel    = "LLM_PRIMARY_MODEL"
	EnvFallbackModel   = "LLM_FALLBACK_MODEL"
	EnvFallbackEnabled = "LLM_FALLBACK_ENABLED"
	EnvOpenAIKey       = "OPENAI_API_KEY"
	EnvAnthropicKey    = "ANTHROPIC_API_KEY"

	// DefaultFallbackModel is used when LLM_FALLBACK_MODEL is unset.
	DefaultFallbackModel = "gpt-4o"
)

// CompletionRequest is one prompt sent to a provider.
type CompletionRequest struct {
	Model       string
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64
}

// TokenUsage reports token counts for a completion.
type TokenUsage struct {
	Prompt     int `json:"prompt"`
	Completion int `json:"completion"`
	Total      int `json:"total"`
}

// CompletionResult is the outcome of a completion, including whether the
// fallback provider produced it.
type CompletionResult struct {
	Content      string     `json:"content"`
	Tokens       TokenUsage `json:"tokens"`
	UsedFallback bool       `json:"used_fallback"`
	ActualModel  string     `json:"actual_model"`
}

// Provider is a single LLM endpoint. Providers return *APIError for
// transport/API failures so the retry layer can classify them.
type Provider interface {
	// Complete generates text for a prompt.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResult, error)

	// Embed returns one vector per input text, order-preserving 1:1.
	// Providers without an embedding surface return ErrEmbeddingUnsupported.
	Embed(ctx context.Context, texts []string, model string) ([][]float32, error)
}

// Client is the interface the pipeline stages consume. The retrying client
// is the canonical implementation.
type Client interface {
	Provider
}

// FallbackEnabled reports whether fallback routing is on: default true
// unless the env var is literally "false".
func FallbackEnabled() bool {
	return os.Getenv(EnvFallbackEnabled) != "false"
}

// PrimaryModel returns the configured primary model, or empty.
func PrimaryModel() string { return os.Getenv(EnvPrimaryModel) }

// FallbackModel returns the configured fallback model or the default.
func FallbackModel() string {
	if m := os.Getenv(EnvFallbackModel); m != "" {
		return m
	}
	return DefaultFallbackModel
}
