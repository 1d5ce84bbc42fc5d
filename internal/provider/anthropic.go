package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/chatvault/chatvault/internal/models"
)

const (
	anthropicBaseURL = "https://api.anthropic.com/v1"
	anthropicVersion = "2023-06-01"

	defaultMaxTokens = 4096
)

type AnthropicProvider struct {
	config Config
	client *http.Client
	logger *zap.Logger
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature,omitempty"`
	System      string             `json:"system,omitempty"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int64 `json:"input_tokens"`
		OutputTokens int64 `json:"output_tokens"`
	} `json:"usage"`
}

func NewAnthropicProvider(config Config, logger *zap.Logger) *AnthropicProvider {
	if config.BaseURL == "" {
		config.BaseURL = anthropicBaseURL
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = defaultMaxTokens
	}
	return &AnthropicProvider{
		config: config,
		client: &http.Client{Timeout: config.timeout()},
		logger: logger,
	}
}

func (p *AnthropicProvider) Platform() models.Platform {
	return models.PlatformAnthropic
}

func (p *AnthropicProvider) Models() []string {
	return []string{"claude-3-opus-20240229", "claude-3-sonnet-20240229", "claude-3-haiku-20240307"}
}

func (p *AnthropicProvider) Send(ctx context.Context, secret, model string, history []*models.Message) (*Reply, error) {
	// Anthropic takes the system prompt as a top-level field, not a
	// message role.
	req := anthropicRequest{Model: model, MaxTokens: p.config.MaxTokens, Temperature: p.config.Temperature}
	for _, m := range history {
		if m.Role == models.RoleSystem {
			req.System = m.Content
			continue
		}
		req.Messages = append(req.Messages, anthropicMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.config.BaseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", secret)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("calling anthropic: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apiError("anthropic", resp)
	}

	var parsed anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decoding anthropic response: %w", err)
	}
	if len(parsed.Content) == 0 {
		return nil, fmt.Errorf("anthropic returned no content")
	}

	return &Reply{
		Content: parsed.Content[0].Text,
		Tokens:  parsed.Usage.InputTokens + parsed.Usage.OutputTokens,
		Metadata: map[string]any{
			"model":       model,
			"stop_reason": parsed.StopReason,
		},
	}, nil
}

// apiError renders a non-2xx response with a bounded body excerpt. The
// secret never appears in headers echoed here.
func apiError(name string, resp *http.Response) error {
	excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("%s api returned status %d: %s", name, resp.StatusCode, bytes.TrimSpace(excerpt))
}
