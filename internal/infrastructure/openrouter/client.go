// Package openrouter talks to the OpenRouter chat-completions API through the
// OpenAI-compatible go-openai client.
package openrouter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/personaops/backend/internal/domain"
)

// Config holds OpenRouter connection settings.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
	// Referer and Title are sent as OpenRouter attribution headers.
	Referer string
	Title   string
}

// Client implements domain.LLM.
type Client struct {
	client *openai.Client
	model  string
}

// NewClient builds a client; it fails when no API key is configured.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("OpenRouter API key is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	oc.HTTPClient = &http.Client{
		Timeout: cfg.Timeout,
		Transport: &attributionTransport{
			base:    otelhttp.NewTransport(http.DefaultTransport),
			referer: cfg.Referer,
			title:   cfg.Title,
		},
	}

	return &Client{client: openai.NewClientWithConfig(oc), model: cfg.Model}, nil
}

// Name identifies the provider in logs and metrics.
func (c *Client) Name() string { return "openrouter" }

// Complete sends a system and user message and returns the first choice.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if system != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: user})

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: 0.7,
	})
	if err != nil {
		return "", fmt.Errorf("%w: openrouter completion: %w", domain.ErrUpstreamProvider, err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", fmt.Errorf("%w: openrouter returned no content", domain.ErrUpstreamProvider)
	}
	return resp.Choices[0].Message.Content, nil
}

// CompleteJSON is Complete with the reply parsed as JSON. Markdown code
// fences around the payload are tolerated.
func (c *Client) CompleteJSON(ctx context.Context, system, user string) (json.RawMessage, error) {
	text, err := c.Complete(ctx, system, user)
	if err != nil {
		return nil, err
	}
	raw, err := ExtractJSON(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrUpstreamProvider, err)
	}
	return raw, nil
}

// ExtractJSON pulls the JSON object out of an LLM reply. Arrays, scalars and
// prose without an object are rejected.
func ExtractJSON(text string) (json.RawMessage, error) {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
		s = strings.TrimSpace(s)
	}
	if !isObject(s) {
		start := strings.Index(s, "{")
		end := strings.LastIndex(s, "}")
		if start < 0 || end <= start || !isObject(s[start:end+1]) {
			return nil, errors.New("model reply is not a JSON object")
		}
		s = s[start : end+1]
	}
	return json.RawMessage(s), nil
}

func isObject(s string) bool {
	return strings.HasPrefix(s, "{") && json.Valid([]byte(s))
}

type attributionTransport struct {
	base    http.RoundTripper
	referer string
	title   string
}

func (t *attributionTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.referer == "" && t.title == "" {
		return t.base.RoundTrip(req)
	}
	req = req.Clone(req.Context())
	if t.referer != "" {
		req.Header.Set("HTTP-Referer", t.referer)
	}
	if t.title != "" {
		req.Header.Set("X-Title", t.title)
	}
	return t.base.RoundTrip(req)
}
