package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/hashicorp/go-hclog"
)

// BedrockAPI is the subset of the Bedrock runtime used here; narrowed for
// mocking in tests.
type BedrockAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// BedrockProvider serves Bedrock model ARNs: completions via the Converse
// API, embeddings via Titan InvokeModel.
type BedrockProvider struct {
	client         BedrockAPI
	embeddingModel string
	logger         hclog.Logger
}

// BedrockConfig holds configuration for the Bedrock provider.
type BedrockConfig struct {
	Region         string       // AWS region (default: us-east-1)
	EmbeddingModel string       // Titan embedding model (default: amazon.titan-embed-text-v2:0)
	Logger         hclog.Logger // Logger (optional)
}

// NewBedrockProvider creates a provider backed by AWS credentials from the
// environment.
func NewBedrockProvider(ctx context.Context, cfg BedrockConfig) (*BedrockProvider, error) {
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = "amazon.titan-embed-text-v2:0"
	}
	if cfg.Logger == nil {
		cfg.Logger = hclog.NewNullLogger()
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &BedrockProvider{
		client:         bedrockruntime.NewFromConfig(awsCfg),
		embeddingModel: cfg.EmbeddingModel,
		logger:         cfg.Logger.Named("bedrock-provider"),
	}, nil
}

// Complete generates text via the Converse API.
func (p *BedrockProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResult, error) {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 1024
	}

	input := &bedrockruntime.ConverseInput{
		ModelId: aws.String(req.Model),
		Messages: []types.Message{
			{
				Role: types.ConversationRoleUser,
				Content: []types.ContentBlock{
					&types.ContentBlockMemberText{Value: req.Prompt},
				},
			},
		},
		InferenceConfig: &types.InferenceConfiguration{
			MaxTokens:   aws.Int32(int32(maxTokens)),
			Temperature: aws.Float32(float32(req.Temperature)),
		},
	}
	if req.System != "" {
		input.System = []types.SystemContentBlock{
			&types.SystemContentBlockMemberText{Value: req.System},
		}
	}

	resp, err := p.client.Converse(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to call Bedrock Converse API: %w", err)
	}
	if resp.Output == nil {
		return nil, NewParseError("no output in Bedrock response")
	}

	message, ok := resp.Output.(*types.ConverseOutputMemberMessage)
	if !ok || len(message.Value.Content) == 0 {
		return nil, NewParseError("no message content in Bedrock response")
	}

	var responseText string
	for _, block := range message.Value.Content {
		if textBlock, ok := block.(*types.ContentBlockMemberText); ok {
			responseText = textBlock.Value
			break
		}
	}
	if responseText == "" {
		return nil, NewParseError("empty response from Bedrock")
	}

	result := &CompletionResult{
		Content:     responseText,
		ActualModel: req.Model,
	}
	if resp.Usage != nil {
		result.Tokens = TokenUsage{
			Prompt:     int(aws.ToInt32(resp.Usage.InputTokens)),
			Completion: int(aws.ToInt32(resp.Usage.OutputTokens)),
			Total:      int(aws.ToInt32(resp.Usage.TotalTokens)),
		}
	}
	return result, nil
}

// Embed generates Titan embeddings one input at a time; the Titan endpoint
// has no batch surface.
func (p *BedrockProvider) Embed(ctx context.Context, texts []string, model string) ([][]float32, error) {
	if model == "" {
		model = p.embeddingModel
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		body, err := json.Marshal(map[string]string{"inputText": text})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal embedding request: %w", err)
		}

		resp, err := p.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
			ModelId:     aws.String(model),
			ContentType: aws.String("application/json"),
			Body:        body,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to invoke embedding model: %w", err)
		}

		var parsed struct {
			Embedding []float32 `json:"embedding"`
		}
		if err := json.Unmarshal(resp.Body, &parsed); err != nil {
			return nil, fmt.Errorf("failed to parse embedding response: %w", err)
		}
		if len(parsed.Embedding) == 0 {
			return nil, NewParseError("empty embedding from Bedrock")
		}
		out[i] = parsed.Embedding
	}
	return out, nil
}
