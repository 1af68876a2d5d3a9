// Package imagegen renders scene prompts into candidate image sets through a
// rate-limited image API. Scenes are processed in small concurrent batches
// with cooldowns in between, failed scenes degrade to placeholder sets, and
// results are scored and sorted before being returned.
package imagegen

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

const (
	// ImageWidth and ImageHeight are the fixed vertical output dimensions.
	ImageWidth  = 576
	ImageHeight = 1024

	// CandidatesPerScene is how many images one scene call requests.
	CandidatesPerScene = 4

	imageSize    = "576x1024"
	imageQuality = "standard"
)

// Caller issues one image-generation call and returns the candidate URLs.
type Caller interface {
	Generate(ctx context.Context, prompt string) ([]string, error)
}

// Client talks to an OpenAI-compatible image generation endpoint.
type Client struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

// ClientOptions configures a Client.
type ClientOptions struct {
	APIKey     string
	Model      string
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// NewClient creates an image generation client.
func NewClient(opts ClientOptions) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		apiKey:     opts.APIKey,
		model:      opts.Model,
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		httpClient: httpClient,
	}
}

type generationRequest struct {
	Model   string `json:"model"`
	Prompt  string `json:"prompt"`
	Size    string `json:"size"`
	N       int    `json:"n"`
	Quality string `json:"quality"`
}

type generationResponse struct {
	Data []struct {
		URL string `json:"url"`
	} `json:"data"`
}

// Generate requests CandidatesPerScene images for the prompt and returns
// their URLs. Errors carry the transient/permanent classification for the
// caller's retry policy.
func (c *Client) Generate(ctx context.Context, prompt string) ([]string, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("imagegen: api key not configured: %w", domain.ErrUpstreamPermanent)
	}
	payload, err := json.Marshal(generationRequest{
		Model:   c.model,
		Prompt:  prompt,
		Size:    imageSize,
		N:       CandidatesPerScene,
		Quality: imageQuality,
	})
	if err != nil {
		return nil, fmt.Errorf("imagegen: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/images/generations", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("imagegen: build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("imagegen: call: %v: %w", err, domain.ClassifyTransportError(err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("imagegen: read response: %w", domain.ErrUpstreamTransient)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("imagegen: status %d: %s: %w", resp.StatusCode, strings.TrimSpace(string(raw)), domain.ClassifyHTTPStatus(resp.StatusCode))
	}

	var parsed generationResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("imagegen: decode response: %w", domain.ErrParseFailed)
	}
	urls := make([]string, 0, len(parsed.Data))
	for _, d := range parsed.Data {
		if d.URL != "" {
			urls = append(urls, d.URL)
		}
	}
	if len(urls) == 0 {
		return nil, fmt.Errorf("imagegen: response carries no images: %w", domain.ErrParseFailed)
	}
	return urls, nil
}
