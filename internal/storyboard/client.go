package storyboard

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"storyreel/internal/domain"
)

// Completer is the language-model dependency of the generator. Implementations
// return the raw assistant message content.
type Completer interface {
	Complete(ctx context.Context, p Prompt) (string, error)
}

// Prompt is one chat completion request.
type Prompt struct {
	System      string
	User        string
	Temperature float64
	MaxTokens   int
}

// ChatClient talks to an OpenAI-compatible chat completion endpoint with a
// JSON-object response format.
type ChatClient struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

// ChatOptions configures a ChatClient.
type ChatOptions struct {
	APIKey     string
	Model      string
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// NewChatClient creates a chat completion client.
func NewChatClient(opts ChatOptions) *ChatClient {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &ChatClient{
		apiKey:     opts.APIKey,
		model:      opts.Model,
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		httpClient: httpClient,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float64       `json:"temperature,omitempty"`
	MaxTokens      int           `json:"max_tokens,omitempty"`
	ResponseFormat *struct {
		Type string `json:"type"`
	} `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete sends one chat completion request and returns the assistant
// message. Errors are classified as transient or permanent so the caller's
// retry policy can decide without inspecting transport details.
func (c *ChatClient) Complete(ctx context.Context, p Prompt) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("storyboard: chat api key not configured: %w", domain.ErrUpstreamPermanent)
	}
	body := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: p.System},
			{Role: "user", Content: p.User},
		},
		Temperature: p.Temperature,
		MaxTokens:   p.MaxTokens,
		ResponseFormat: &struct {
			Type string `json:"type"`
		}{Type: "json_object"},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("storyboard: encode chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("storyboard: build chat request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("storyboard: chat call: %v: %w", err, domain.ClassifyTransportError(err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("storyboard: read chat response: %w", domain.ErrUpstreamTransient)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("storyboard: chat status %d: %s: %w", resp.StatusCode, strings.TrimSpace(string(raw)), domain.ClassifyHTTPStatus(resp.StatusCode))
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("storyboard: decode chat response: %w", domain.ErrParseFailed)
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("storyboard: chat response has no content: %w", domain.ErrParseFailed)
	}
	return parsed.Choices[0].Message.Content, nil
}
