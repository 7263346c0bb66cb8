package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/polisai/gatekeeper/internal/governance"
	"github.com/polisai/gatekeeper/pkg/domain"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	// DefaultBaseURL is the OpenAI API root.
	DefaultBaseURL = "https://api.openai.com/v1"
	// DefaultModel is used when no model is configured.
	DefaultModel = "gpt-4o"

	maxErrorBody = 4096
)

// OpenAIConfig configures an OpenAI-compatible chat completion client.
type OpenAIConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	// JSONMode asks the server for a JSON object response.
	JSONMode bool
	Retry    governance.RetryConfig
	// HTTPClient overrides the instrumented default client.
	HTTPClient *http.Client
}

// OpenAIClient calls POST {base_url}/chat/completions.
type OpenAIClient struct {
	cfg        OpenAIConfig
	endpoint   string
	httpClient *http.Client
	retry      *governance.RetryPolicy
	logger     *slog.Logger
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// NewOpenAIClient creates a client. The API key is sent as a bearer token.
func NewOpenAIClient(cfg OpenAIConfig, logger *slog.Logger) *OpenAIClient {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}

	return &OpenAIClient{
		cfg:        cfg,
		endpoint:   strings.TrimRight(cfg.BaseURL, "/") + "/chat/completions",
		httpClient: httpClient,
		retry:      governance.NewRetryPolicy(cfg.Retry),
		logger:     logger,
	}
}

// Model returns the configured model name.
func (c *OpenAIClient) Model() string {
	return c.cfg.Model
}

// Complete sends the prompt and returns the content of the first choice.
// Transient failures are retried according to the retry policy; ctx bounds the whole call.
func (c *OpenAIClient) Complete(ctx context.Context, prompt Prompt) (string, error) {
	payload := chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: prompt.System},
			{Role: "user", Content: prompt.User},
		},
		Temperature: c.cfg.Temperature,
	}
	if c.cfg.JSONMode {
		payload.ResponseFormat = map[string]string{"type": "json_object"}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode chat request: %w", err)
	}

	var content string
	var lastBody string
	_, err = c.retry.Execute(ctx, func(ctx context.Context, attempt int) (int, error) {
		if attempt > 0 {
			c.logger.Debug("retrying reasoning engine call", "attempt", attempt, "model", c.cfg.Model)
		}

		status, text, errBody, callErr := c.do(ctx, body)
		content, lastBody = text, errBody
		return status, callErr
	})
	if err != nil {
		if lastBody != "" {
			return "", fmt.Errorf("%w: %v: %s", domain.ErrEngineFailed, err, lastBody)
		}
		return "", fmt.Errorf("%w: %v", domain.ErrEngineFailed, err)
	}

	return content, nil
}

// do performs one attempt. On a non-2xx status it returns the status and the error body.
func (c *OpenAIClient) do(ctx context.Context, body []byte) (int, string, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, "", "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, "", "", err
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Warn("failed to close response body", "error", closeErr)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return resp.StatusCode, "", strings.TrimSpace(string(errBody)), nil
	}

	var completion chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return resp.StatusCode, "", "", governance.Permanent(fmt.Errorf("failed to decode response: %w", err))
	}
	if len(completion.Choices) == 0 {
		return resp.StatusCode, "", "", governance.Permanent(errors.New("no completion choices returned"))
	}

	return resp.StatusCode, completion.Choices[0].Message.Content, "", nil
}
