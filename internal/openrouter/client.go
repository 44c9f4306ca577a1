// Package openrouter talks to the OpenRouter chat completions API.
package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kalambet/xreply/internal/retry"
)

const (
	defaultBaseURL = "https://openrouter.ai/api/v1"
	defaultTimeout = 60 * time.Second
)

// Client communicates with the OpenRouter API.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	retry      *retry.Executor
	referer    string
	title      string
}

// NewClient creates an OpenRouter client with the given API key.
func NewClient(apiKey string) *Client {
	return &Client{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		retry:   retry.New(retry.DefaultConfig()),
		referer: "https://github.com/kalambet/xreply",
		title:   "xreply",
	}
}

// NewClientWithBaseURL creates a client pointing at a custom base URL (for testing).
func NewClientWithBaseURL(apiKey, baseURL string, rc retry.Config) *Client {
	c := NewClient(apiKey)
	c.baseURL = strings.TrimRight(baseURL, "/")
	c.retry = retry.New(rc)
	return c
}

// Chat sends a non-streaming chat completion request. 429 and 5xx responses
// are retried with backoff.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	if c.apiKey == "" {
		return ChatResponse{}, errors.New("openrouter: no API key configured")
	}
	body, err := json.Marshal(req)
	if err != nil {
		return ChatResponse{}, fmt.Errorf("marshaling request: %w", err)
	}

	resp, err := c.retry.Do(ctx, c.httpClient, func(ctx context.Context) (*http.Request, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}
		c.setHeaders(httpReq)
		return httpReq, nil
	})
	if err != nil {
		if retry.IsRateLimit(err) {
			return ChatResponse{}, fmt.Errorf("rate limited: %w", err)
		}
		return ChatResponse{}, err
	}
	defer resp.Body.Close()

	var out ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return ChatResponse{}, fmt.Errorf("decoding chat response: %w", err)
	}
	return out, nil
}

// Completer binds a model to a Client so it can serve single-prompt
// completions.
type Completer struct {
	client *Client
	model  string
}

// NewCompleter returns a Completer for model.
func NewCompleter(client *Client, model string) *Completer {
	return &Completer{client: client, model: model}
}

// Complete sends prompt as one user message and returns the first choice.
func (c *Completer) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	msgs, err := json.Marshal([]Message{{Role: "user", Content: prompt}})
	if err != nil {
		return "", err
	}
	req := ChatRequest{Model: c.model, Messages: msgs}
	if maxTokens > 0 {
		req.Extra = map[string]json.RawMessage{"max_tokens": json.RawMessage(fmt.Sprint(maxTokens))}
	}

	resp, err := c.client.Chat(ctx, req)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openrouter: response has no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// HasModel reports whether model is listed by /models.
func (c *Completer) HasModel(ctx context.Context) (bool, error) {
	models, err := c.client.ListModels(ctx)
	if err != nil {
		return false, err
	}
	for _, m := range models {
		if m.ID == c.model {
			return true, nil
		}
	}
	return false, nil
}

// ListModels returns the list of available models from OpenRouter.
func (c *Client) ListModels(ctx context.Context) ([]Model, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting models: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var list ModelList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("decoding models: %w", err)
	}

	if list.Data == nil {
		return []Model{}, nil
	}
	return list.Data, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("HTTP-Referer", c.referer)
	req.Header.Set("X-Title", c.title)
}
