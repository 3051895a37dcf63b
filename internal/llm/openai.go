package llm

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const jsonSystemPrompt = "Respond with a single JSON object and nothing else."

// OpenAIClient implements Client over the Chat Completions API.
type OpenAIClient struct {
	client openai.Client
	config *Config
}

// NewOpenAIClient builds a client authenticated with apiKey.
func NewOpenAIClient(config *Config, apiKey string) *OpenAIClient {
	return &OpenAIClient{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		config: config,
	}
}

func (c *OpenAIClient) GenerateContent(ctx context.Context, prompt string, tier ModelTier) (string, error) {
	return c.complete(ctx, []openai.ChatCompletionMessageParamUnion{openai.UserMessage(prompt)}, tier)
}

func (c *OpenAIClient) GenerateJSON(ctx context.Context, prompt string, tier ModelTier) (string, error) {
	text, err := c.complete(ctx, []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(jsonSystemPrompt),
		openai.UserMessage(prompt),
	}, tier)
	if err != nil {
		return "", err
	}
	return CleanJSONBlock(text), nil
}

func (c *OpenAIClient) complete(ctx context.Context, msgs []openai.ChatCompletionMessageParamUnion, tier ModelTier) (string, error) {
	name, err := resolveModel(c.config, tier)
	if err != nil {
		return "", err
	}

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:               openai.ChatModel(name),
		Messages:            msgs,
		Temperature:         openai.Float(float64(c.config.Temperature)),
		MaxCompletionTokens: openai.Int(int64(c.config.MaxTokens)),
	})
	if err != nil {
		return "", fmt.Errorf("openai API error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *OpenAIClient) GetModel(tier ModelTier) string {
	return c.config.GetModel(tier)
}

func (c *OpenAIClient) Close() error { return nil }
