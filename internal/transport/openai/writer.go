package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/agentpay/internal/domain"
	"github.com/kailas-cloud/agentpay/internal/metrics"
)

const operation = "report_writer"

const systemPrompt = "You are a research analyst. Write a concise markdown report body " +
	"(no top-level heading) about the given theme using only the provided notes."

// Writer drafts report bodies with an OpenAI-compatible chat model.
type Writer struct {
	client    *openai.Client
	model     string
	maxTokens int
	logger    *zap.Logger
}

// Config holds the chat model settings.
type Config struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
	Logger    *zap.Logger
}

// NewWriter creates an OpenAI-compatible report writer.
func NewWriter(cfg *Config) *Writer {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &Writer{
		client:    openai.NewClientWithConfig(clientCfg),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		logger:    cfg.Logger,
	}
}

// Write asks the model for a report body about theme grounded on notes.
func (w *Writer) Write(ctx context.Context, theme, notes string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: w.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: "Theme: " + theme + "\n\nNotes:\n" + notes},
		},
	}
	if w.maxTokens > 0 {
		req.MaxTokens = w.maxTokens
	}

	start := time.Now()
	resp, err := w.client.CreateChatCompletion(ctx, req)
	duration := time.Since(start)

	if err != nil {
		metrics.UpstreamRequestDuration.WithLabelValues(operation, "error").Observe(duration.Seconds())
		return "", parseAPIError(err)
	}
	metrics.UpstreamRequestDuration.WithLabelValues(operation, "ok").Observe(duration.Seconds())

	if len(resp.Choices) == 0 {
		return "", errors.New("empty chat completion response")
	}

	w.logger.Debug("Report body drafted",
		zap.String("model", w.model),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
	)
	return resp.Choices[0].Message.Content, nil
}

// HealthCheck verifies API availability via ListModels (free endpoint).
func (w *Writer) HealthCheck(ctx context.Context) error {
	if _, err := w.client.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

// parseAPIError extracts a human-readable error from the API response.
// Rate limits and server errors are reported as an unavailable upstream.
func parseAPIError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("chat completion: %w", domain.ErrUpstreamTimeout)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		detail := extractDetail(reqErr.Body)
		if detail == "" {
			detail = string(reqErr.Body)
		}
		return statusError(reqErr.HTTPStatusCode, detail)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return statusError(apiErr.HTTPStatusCode, apiErr.Message)
	}

	return fmt.Errorf("chat completion failed: %v: %w", err, domain.ErrUpstreamUnavailable)
}

func statusError(status int, detail string) error {
	if status == http.StatusTooManyRequests || status >= http.StatusInternalServerError {
		return fmt.Errorf("chat API error %d: %s: %w", status, detail, domain.ErrUpstreamUnavailable)
	}
	return fmt.Errorf("chat API error %d: %s", status, detail)
}

// extractDetail extracts the "detail" field from a JSON error body.
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return ""
}
