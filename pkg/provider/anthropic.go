package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/anp-network/node/internal/logger"
)

const (
	defaultModel      = "claude-sonnet-4-6"
	defaultBaseURL    = "https://api.anthropic.com"
	defaultAPIVersion = "2023-06-01"
)

// AnthropicProvider calls the Anthropic Messages API over HTTPS.
type AnthropicProvider struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

// AnthropicConfig configures an AnthropicProvider. Model and BaseURL default
// when empty; Timeout defaults to 30s when zero.
type AnthropicConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// NewAnthropicProvider returns a provider bound to cfg.
func NewAnthropicProvider(cfg AnthropicConfig) *AnthropicProvider {
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &AnthropicProvider{
		apiKey:  cfg.APIKey,
		model:   model,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type messagesRequest struct {
	Model     string     `json:"model"`
	System    string     `json:"system,omitempty"`
	Messages  []wireTurn `json:"messages"`
	MaxTokens int        `json:"max_tokens"`
}

type wireTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Complete sends system + history to the Messages API and returns the
// model's reply.
func (p *AnthropicProvider) Complete(ctx context.Context, system string, history []Turn, maxTokens int) (Response, error) {
	turns := make([]wireTurn, len(history))
	for i, t := range history {
		turns[i] = wireTurn{Role: t.Role, Content: t.Content}
	}

	body, err := json.Marshal(messagesRequest{
		Model:     p.model,
		System:    system,
		Messages:  turns,
		MaxTokens: maxTokens,
	})
	if err != nil {
		return Response{}, logger.New(logger.ErrCodeInternal, "failed to marshal provider request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return Response{}, logger.New(logger.ErrCodeInternal, "failed to build provider request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", p.apiKey)
	req.Header.Set("anthropic-version", defaultAPIVersion)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return Response{}, logger.New(logger.ErrCodeNetworkError, "provider request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, logger.New(logger.ErrCodeNetworkError, "failed to read provider response", err)
	}

	var wireResp messagesResponse
	if err := json.Unmarshal(raw, &wireResp); err != nil {
		return Response{}, logger.New(logger.ErrCodeInternal, "failed to parse provider response", err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := fmt.Sprintf("provider returned HTTP %d", resp.StatusCode)
		if wireResp.Error != nil {
			msg = wireResp.Error.Message
		}
		return Response{}, logger.New(logger.ErrCodeNetworkError, msg, nil)
	}

	text := ""
	if len(wireResp.Content) > 0 {
		text = wireResp.Content[0].Text
	}

	return Response{
		Text:         text,
		InputTokens:  wireResp.Usage.InputTokens,
		OutputTokens: wireResp.Usage.OutputTokens,
	}, nil
}

// Name identifies this provider instance, including its model, for logging.
func (p *AnthropicProvider) Name() string {
	return "anthropic/" + p.model
}

var _ Provider = (*AnthropicProvider)(nil)
