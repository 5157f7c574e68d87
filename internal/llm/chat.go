package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/avelichko/defect-classifier/internal/common"
)

// Config holds settings for the chat-completions endpoint. The API is
// OpenAI-compatible (we run against Deepseek); only the base URL, key and
// model differ between providers.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float32
	Timeout     time.Duration
}

// ChatClient implements Client over a JSON chat-completions API.
type ChatClient struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
}

func NewChatClient(cfg Config, logger *slog.Logger) (*ChatClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, common.ConfigurationError("LLM_API_KEY is not configured", nil)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}, nil
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string    `json:"model"`
	Messages       []message `json:"messages"`
	Temperature    float32   `json:"temperature"`
	ResponseFormat struct {
		Type string `json:"type"`
	} `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *ChatClient) Split(ctx context.Context, comments []string) ([]SplitResult, error) {
	if len(comments) == 0 {
		return nil, nil
	}
	content, err := c.call(ctx, buildSplitMessages(comments), len(comments))
	if err != nil {
		return nil, err
	}
	return parseSplitResponse(c.logger, content, len(comments))
}

func (c *ChatClient) Classify(ctx context.Context, items []ClassifyItem) ([]ClassifyResult, error) {
	if len(items) == 0 {
		return nil, nil
	}
	content, err := c.call(ctx, buildClassifyMessages(items), len(items))
	if err != nil {
		return nil, err
	}
	return parseClassifyResponse(c.logger, content, len(items))
}

// call posts one chat-completions request and returns the assistant content.
// Transport and non-2xx failures come back as external-service errors so the
// caller's retry policy can tell them apart from parse failures.
func (c *ChatClient) call(ctx context.Context, messages []message, batchLen int) (string, error) {
	reqID := uuid.New().String()
	start := time.Now()

	payload := chatRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		Temperature: c.cfg.Temperature,
	}
	payload.ResponseFormat.Type = "json_object"

	b, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(b))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	c.logger.Info("llm.request",
		"req_id", reqID,
		"model", c.cfg.Model,
		"batch_len", batchLen,
		"content_length", len(b),
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("llm.request.send_error", "req_id", reqID, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds())
		return "", common.ExternalServiceError("llm request failed", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.Warn("llm.response.body_close_error", "req_id", reqID, "error", err)
		}
	}()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		c.logger.Error("llm.response.read_error", "req_id", reqID, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds())
		return "", common.ExternalServiceError("reading llm response body", err)
	}

	c.logger.Info("llm.response",
		"req_id", reqID,
		"status", resp.StatusCode,
		"bytes", len(raw),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode/100 != 2 {
		return "", common.ExternalServiceError(
			fmt.Sprintf("llm returned status %d", resp.StatusCode), nil)
	}

	var cc chatResponse
	if err := json.Unmarshal(raw, &cc); err != nil {
		return "", common.ExternalServiceError("decoding llm transport envelope", err)
	}
	if len(cc.Choices) == 0 {
		return "", common.ExternalServiceError("no choices in llm response", nil)
	}
	return strings.TrimSpace(cc.Choices[0].Message.Content), nil
}
