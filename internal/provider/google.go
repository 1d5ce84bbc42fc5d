package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/chatvault/chatvault/internal/models"
)

const googleBaseURL = "https://generativelanguage.googleapis.com/v1beta"

type GoogleProvider struct {
	config Config
	client *http.Client
	logger *zap.Logger
}

type googlePart struct {
	Text string `json:"text"`
}

type googleContent struct {
	Role  string       `json:"role"`
	Parts []googlePart `json:"parts"`
}

type googleGenerationConfig struct {
	Temperature     float64 `json:"temperature,omitempty"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type googleRequest struct {
	Contents         []googleContent         `json:"contents"`
	GenerationConfig *googleGenerationConfig `json:"generationConfig,omitempty"`
}

type googleResponse struct {
	Candidates []struct {
		Content struct {
			Parts []googlePart `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		TotalTokenCount int64 `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

func NewGoogleProvider(config Config, logger *zap.Logger) *GoogleProvider {
	if config.BaseURL == "" {
		config.BaseURL = googleBaseURL
	}
	return &GoogleProvider{
		config: config,
		client: &http.Client{Timeout: config.timeout()},
		logger: logger,
	}
}

func (p *GoogleProvider) Platform() models.Platform {
	return models.PlatformGoogle
}

func (p *GoogleProvider) Models() []string {
	return []string{"gemini-pro", "gemini-1.5-pro", "gemini-1.5-flash"}
}

func (p *GoogleProvider) Send(ctx context.Context, secret, model string, history []*models.Message) (*Reply, error) {
	// Gemini knows the roles "user" and "model"; system turns are
	// folded into the user side.
	req := googleRequest{}
	if p.config.Temperature > 0 || p.config.MaxTokens > 0 {
		req.GenerationConfig = &googleGenerationConfig{
			Temperature:     p.config.Temperature,
			MaxOutputTokens: p.config.MaxTokens,
		}
	}
	for _, m := range history {
		role := "user"
		if m.Role == models.RoleAssistant {
			role = "model"
		}
		req.Contents = append(req.Contents, googleContent{
			Role:  role,
			Parts: []googlePart{{Text: m.Content}},
		})
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", p.config.BaseURL, model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", secret)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("calling google: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apiError("google", resp)
	}

	var parsed googleResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decoding google response: %w", err)
	}
	if len(parsed.Candidates) == 0 {
		return nil, fmt.Errorf("google returned no candidates")
	}

	var text strings.Builder
	for _, part := range parsed.Candidates[0].Content.Parts {
		text.WriteString(part.Text)
	}
	if text.Len() == 0 {
		return nil, fmt.Errorf("google returned an empty response")
	}

	return &Reply{
		Content: text.String(),
		Tokens:  parsed.UsageMetadata.TotalTokenCount,
		Metadata: map[string]any{
			"model":         model,
			"finish_reason": parsed.Candidates[0].FinishReason,
		},
	}, nil
}
