// Package providerhttp implements the wire-level provider client against an
// OpenAI-compatible chat-completions gateway (LiteLLM, OpenRouter, or a direct
// provider endpoint). Responses are returned raw; the invoker's profile layer
// extracts content. Failures surface as llm.CallError for the classifier.
package providerhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rowmill/rowmill/internal/domain/llm"
)

// Config holds the gateway connection settings.
type Config struct {
	// BaseURL is the gateway root, e.g. "https://gateway.internal/v1".
	BaseURL string
	APIKey  string
	// Timeout bounds one request; the invoker's retry layer sits above this.
	Timeout time.Duration
}

// Client posts chat-completion requests to the gateway.
type Client struct {
	cfg  Config
	http *http.Client
}

// New creates a gateway client.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: timeout},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
	TopP        *float64      `json:"top_p,omitempty"`
}

type gatewayError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Invoke performs one chat-completion call. The model is namespaced with the
// provider ("provider/model"), the convention gateways use for routing.
func (c *Client) Invoke(ctx context.Context, req llm.Request) (*llm.Response, error) {
	messages := make([]chatMessage, 0, 2)
	if req.SystemText != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.SystemText})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.UserText})

	payload, err := json.Marshal(chatRequest{
		Model:       req.Provider + "/" + req.Model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		TopP:        req.TopP,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		// Timeouts and connection failures pass through for classification.
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, callErrorFrom(resp, body)
	}
	return &llm.Response{Raw: body}, nil
}

func callErrorFrom(resp *http.Response, body []byte) *llm.CallError {
	callErr := &llm.CallError{
		StatusCode: resp.StatusCode,
		Message:    strings.TrimSpace(string(body)),
	}

	var ge gatewayError
	if err := json.Unmarshal(body, &ge); err == nil && ge.Error.Message != "" {
		callErr.Message = ge.Error.Message
		callErr.Code = ge.Error.Code
		if callErr.Code == "" {
			callErr.Code = ge.Error.Type
		}
	}

	if ra := resp.Header.Get("Retry-After"); ra != "" {
		if secs, err := strconv.Atoi(ra); err == nil && secs > 0 {
			callErr.RetryAfter = time.Duration(secs) * time.Second
		}
	}
	return callErr
}
