package provider

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/chatvault/chatvault/internal/models"
)

type OpenAIProvider struct {
	config Config
	logger *zap.Logger
}

func NewOpenAIProvider(config Config, logger *zap.Logger) *OpenAIProvider {
	return &OpenAIProvider{config: config, logger: logger}
}

func (p *OpenAIProvider) Platform() models.Platform {
	return models.PlatformOpenAI
}

func (p *OpenAIProvider) Models() []string {
	return []string{"gpt-4-turbo-preview", "gpt-4", "gpt-3.5-turbo"}
}

func (p *OpenAIProvider) Send(ctx context.Context, secret, model string, history []*models.Message) (*Reply, error) {
	cfg := openai.DefaultConfig(secret)
	if p.config.BaseURL != "" {
		cfg.BaseURL = p.config.BaseURL
	}
	client := openai.NewClientWithConfig(cfg)

	messages := make([]openai.ChatCompletionMessage, 0, len(history))
	for _, m := range history {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}

	ctx, cancel := context.WithTimeout(ctx, p.config.timeout())
	defer cancel()

	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: float32(p.config.Temperature),
	})
	if err != nil {
		return nil, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai returned no choices")
	}
	content := resp.Choices[0].Message.Content
	if content == "" {
		return nil, fmt.Errorf("openai returned an empty response")
	}

	return &Reply{
		Content: content,
		Tokens:  int64(resp.Usage.TotalTokens),
		Metadata: map[string]any{
			"model":         model,
			"finish_reason": string(resp.Choices[0].FinishReason),
		},
	}, nil
}
