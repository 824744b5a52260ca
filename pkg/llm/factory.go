package llm

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/hashicorp/go-hclog"
)

// ProviderFactory creates providers based on model name.
type ProviderFactory struct {
	openaiAPIKey    string
	anthropicAPIKey string
	bedrockRegion   string
	logger          hclog.Logger
}

// ProviderFactoryConfig holds configuration for the provider factory.
type ProviderFactoryConfig struct {
	OpenAIAPIKey    string       // OpenAI API key
	AnthropicAPIKey string       // Anthropic API key
	BedrockRegion   string       // AWS Bedrock region (default: us-east-1)
	Logger          hclog.Logger // Logger (optional)
}

// NewProviderFactory creates a new provider factory.
func NewProviderFactory(config ProviderFactoryConfig) *ProviderFactory {
	if config.Logger == nil {
		config.Logger = hclog.NewNullLogger()
	}

	return &ProviderFactory{
		openaiAPIKey:    config.OpenAIAPIKey,
		anthropicAPIKey: config.AnthropicAPIKey,
		bedrockRegion:   config.BedrockRegion,
		logger:          config.Logger.Named("llm-factory"),
	}
}

// GetProvider returns a provider based on the model name.
// Automatically detects provider from model name:
// - "gpt-*", "o1-*", "o3-*", "text-embedding-*" → OpenAI
// - "claude*" → Anthropic
// - "anthropic.*", "us.*", "*titan*" → AWS Bedrock
func (f *ProviderFactory) GetProvider(ctx context.Context, model string) (Provider, error) {
	provider := f.detectProvider(model)

	f.logger.Debug("selecting llm provider",
		"model", model,
		"provider", provider,
	)

	switch provider {
	case "openai":
		return f.GetOpenAIProvider()
	case "anthropic":
		return f.GetAnthropicProvider()
	case "bedrock":
		return f.GetBedrockProvider(ctx)
	default:
		return nil, fmt.Errorf("unsupported model: %s (unknown provider)", model)
	}
}

// GetOpenAIProvider creates an OpenAI provider.
func (f *ProviderFactory) GetOpenAIProvider() (*OpenAIProvider, error) {
	if f.openaiAPIKey == "" {
		return nil, fmt.Errorf("OpenAI API key not configured")
	}

	return NewOpenAIProvider(OpenAIConfig{
		APIKey: f.openaiAPIKey,
		Logger: f.logger,
	})
}

// GetAnthropicProvider creates an Anthropic provider.
func (f *ProviderFactory) GetAnthropicProvider() (*AnthropicProvider, error) {
	if f.anthropicAPIKey == "" {
		return nil, fmt.Errorf("Anthropic API key not configured")
	}

	return NewAnthropicProvider(AnthropicConfig{
		APIKey: f.anthropicAPIKey,
		Logger: f.logger,
	})
}

// GetBedrockProvider creates an AWS Bedrock provider.
func (f *ProviderFactory) GetBedrockProvider(ctx context.Context) (*BedrockProvider, error) {
	config := BedrockConfig{
		Logger: f.logger,
	}

	if f.bedrockRegion != "" {
		config.Region = f.bedrockRegion
	}

	return NewBedrockProvider(ctx, config)
}

// detectProvider detects the provider from the model name.
func (f *ProviderFactory) detectProvider(model string) string {
	modelLower := strings.ToLower(model)

	// Bedrock ARN-style identifiers first; they can embed "claude".
	if strings.HasPrefix(modelLower, "anthropic.") || strings.HasPrefix(modelLower, "us.") {
		return "bedrock"
	}
	if strings.Contains(modelLower, "titan") {
		return "bedrock"
	}

	if strings.Contains(modelLower, "claude") {
		return "anthropic"
	}

	if strings.HasPrefix(modelLower, "gpt-") ||
		strings.HasPrefix(modelLower, "o1-") ||
		strings.HasPrefix(modelLower, "o3-") ||
		strings.HasPrefix(modelLower, "text-embedding-") {
		return "openai"
	}

	f.logger.Warn("unknown model, defaulting to OpenAI",
		"model", model,
	)
	return "openai"
}

// ValidateConfig checks whether the factory can serve a given model.
func (f *ProviderFactory) ValidateConfig(model string) error {
	switch f.detectProvider(model) {
	case "openai":
		if f.openaiAPIKey == "" {
			return fmt.Errorf("OpenAI API key required for model %s", model)
		}
	case "anthropic":
		if f.anthropicAPIKey == "" {
			return fmt.Errorf("Anthropic API key required for model %s", model)
		}
	case "bedrock":
		// Bedrock uses AWS credentials from environment/IAM.
	}

	return nil
}

// FromEnv builds the full client for a primary model: provider selection by
// model name, retry with backoff, and a fallback provider when
// LLM_FALLBACK_ENABLED is not "false".
func FromEnv(ctx context.Context, primaryModel string, logger hclog.Logger) (*RetryingClient, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if primaryModel == "" {
		primaryModel = PrimaryModel()
	}
	if primaryModel == "" {
		return nil, fmt.Errorf("no primary model configured (set %s)", EnvPrimaryModel)
	}

	factory := NewProviderFactory(ProviderFactoryConfig{
		OpenAIAPIKey:    os.Getenv(EnvOpenAIKey),
		AnthropicAPIKey: os.Getenv(EnvAnthropicKey),
		BedrockRegion:   os.Getenv("AWS_REGION"),
		Logger:          logger,
	})

	primary, err := factory.GetProvider(ctx, primaryModel)
	if err != nil {
		return nil, fmt.Errorf("failed to build primary provider: %w", err)
	}

	cfg := RetryingClientConfig{
		Primary: primary,
		Logger:  logger,
	}

	if FallbackEnabled() {
		fallbackModel := FallbackModel()
		fallback, err := factory.GetProvider(ctx, fallbackModel)
		if err != nil {
			logger.Warn("fallback provider unavailable, continuing without it",
				"fallback_model", fallbackModel,
				"error", err,
			)
		} else {
			cfg.Fallback = fallback
			cfg.FallbackModel = fallbackModel
		}
	}

	return NewRetryingClient(cfg)
}
