package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aatumaykin/feedpilot/internal/logger"
)

const (
	// ZAIDefaultBaseURL is the base URL for the Z.ai Coding API
	ZAIDefaultBaseURL = "https://api.z.ai/api/coding/paas/v4"
	// ZAIRequestTimeout is the default timeout for API requests
	ZAIRequestTimeout = 60 * time.Second
)

// ZAIConfig contains configuration for the Z.ai provider.
type ZAIConfig struct {
	APIKey         string // API key for authentication
	BaseURL        string // API base URL (optional)
	Model          string // Default model (optional, defaults to glm-4.7)
	TimeoutSeconds int    // HTTP request timeout in seconds
}

// ZAIProvider implements the Provider interface for the Z.ai Coding API.
// Prompts are sent as a single-message chat completion.
type ZAIProvider struct {
	client  *http.Client
	config  ZAIConfig
	apiURL  string
	limiter *TokenBucketRateLimiter
	logger  *logger.Logger
}

// zaiRequest represents the request format for the Z.ai API.
type zaiRequest struct {
	Messages    []zaiMessage `json:"messages"`
	Model       string       `json:"model"`
	Temperature float64      `json:"temperature,omitempty"`
	MaxTokens   int          `json:"max_tokens,omitempty"`
}

// zaiMessage represents a message in Z.ai API format.
type zaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// zaiResponse represents the response format from the Z.ai API.
type zaiResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []zaiChoice  `json:"choices"`
	Usage   zaiUsage     `json:"usage"`
	Error   *zaiAPIError `json:"error,omitempty"`
}

type zaiChoice struct {
	Index        int        `json:"index"`
	Message      zaiMessage `json:"message"`
	FinishReason string     `json:"finish_reason,omitempty"`
}

type zaiUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type zaiAPIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

// NewZAIProvider creates a new ZAIProvider instance. The limiter is optional;
// when nil, requests are not rate limited.
func NewZAIProvider(cfg ZAIConfig, limiter *TokenBucketRateLimiter, log *logger.Logger) *ZAIProvider {
	if cfg.Model == "" {
		cfg.Model = "glm-4.7"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = ZAIDefaultBaseURL
	}

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout == 0 {
		timeout = ZAIRequestTimeout
	}

	return &ZAIProvider{
		client: &http.Client{
			Timeout: timeout,
		},
		config:  cfg,
		apiURL:  cfg.BaseURL + "/chat/completions",
		limiter: limiter,
		logger:  log,
	}
}

// Generate implements the Provider interface.
func (p *ZAIProvider) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	if p.limiter != nil {
		if ok, retryAfter := p.limiter.TryAcquire(); !ok {
			return nil, &RateLimitExceededError{RetryAfter: retryAfter}
		}
	}

	model := req.Model
	if model == "" {
		model = p.config.Model
	}

	body, err := json.Marshal(zaiRequest{
		Messages:    []zaiMessage{{Role: "user", Content: req.Prompt}},
		Model:       model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.config.APIKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var apiResp zaiResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if apiResp.Error != nil {
		return nil, fmt.Errorf("API error %s: %s", apiResp.Error.Code, apiResp.Error.Message)
	}
	if len(apiResp.Choices) == 0 {
		return nil, fmt.Errorf("API returned no choices")
	}

	p.logger.DebugCtx(ctx, "LLM response received",
		logger.Field{Key: "model", Value: apiResp.Model},
		logger.Field{Key: "total_tokens", Value: apiResp.Usage.TotalTokens})

	return &GenerateResponse{
		Text:  apiResp.Choices[0].Message.Content,
		Model: apiResp.Model,
		Usage: Usage{
			PromptTokens:     apiResp.Usage.PromptTokens,
			CompletionTokens: apiResp.Usage.CompletionTokens,
			TotalTokens:      apiResp.Usage.TotalTokens,
		},
	}, nil
}

// GetDefaultModel implements the Provider interface.
func (p *ZAIProvider) GetDefaultModel() string {
	return p.config.Model
}
