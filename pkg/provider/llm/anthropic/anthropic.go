// Package anthropic provides an LLM provider backed by the Anthropic Messages
// API (POST /v1/messages).
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/MrWong99/twinvoice/pkg/provider/llm"
)

const (
	defaultBaseURL   = "https://api.anthropic.com"
	defaultModel     = "claude-3-5-haiku-latest"
	defaultMaxTokens = 256
	defaultTimeout   = 15 * time.Second
	apiVersion       = "2023-06-01"
)

var _ llm.Provider = (*Provider)(nil)

// Option is a functional option for Provider.
type Option func(*Provider)

// WithBaseURL overrides the API base URL.
func WithBaseURL(url string) Option {
	return func(p *Provider) {
		p.baseURL = strings.TrimRight(url, "/")
	}
}

// WithTimeout sets the per-request HTTP timeout. Default: 15s.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.httpClient.Timeout = d
	}
}

// WithName overrides the provider ID. Default: "anthropic".
func WithName(name string) Option {
	return func(p *Provider) {
		p.name = name
	}
}

// Provider implements llm.Provider for Anthropic.
type Provider struct {
	name       string
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

// New creates an Anthropic provider. An empty apiKey yields
// [llm.ErrNoCredentials].
func New(apiKey, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic: %w", llm.ErrNoCredentials)
	}
	if model == "" {
		model = defaultModel
	}
	p := &Provider{
		name:       "anthropic",
		apiKey:     apiKey,
		model:      model,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Name implements llm.Provider.
func (p *Provider) Name() string { return p.name }

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature *float64  `json:"temperature,omitempty"`
	Messages    []message `json:"messages"`
}

// Ask implements llm.Provider.
func (p *Provider) Ask(ctx context.Context, req llm.Request) llm.Result {
	body := messagesRequest{
		Model:     p.model,
		MaxTokens: req.MaxOutputTokens,
		Messages:  []message{{Role: "user", Content: req.Prompt}},
	}
	if body.MaxTokens <= 0 {
		body.MaxTokens = defaultMaxTokens
	}
	if req.Temperature != 0 {
		t := req.Temperature
		body.Temperature = &t
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return llm.Failed(p.name, llm.SchemaMismatch, "encode request: %v", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return llm.TransportFailed(p.name, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", apiVersion)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return llm.TransportFailed(p.name, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return llm.TransportFailed(p.name, err)
	}
	return p.classify(resp.StatusCode, raw)
}

// classify maps a raw Messages API response to a Result.
func (p *Provider) classify(status int, raw []byte) llm.Result {
	errType := gjson.GetBytes(raw, "error.type").String()
	errMsg := gjson.GetBytes(raw, "error.message").String()

	if status == http.StatusTooManyRequests || errType == "rate_limit_error" {
		return llm.Failed(p.name, llm.RateLimited, "status %d: %s", status, errMsg)
	}
	if status < 200 || status > 299 {
		return llm.Failed(p.name, llm.TransportFailure, "status %d: %s %s", status, errType, errMsg)
	}

	if !gjson.ValidBytes(raw) {
		return llm.Failed(p.name, llm.SchemaMismatch, "response is not valid JSON")
	}
	root := gjson.ParseBytes(raw)
	if root.Get("type").String() == "error" {
		return llm.Failed(p.name, llm.TransportFailure, "provider error: %s %s", errType, errMsg)
	}
	if root.Get("stop_reason").String() == "refusal" {
		return llm.Failed(p.name, llm.Blocked, "model refused")
	}

	blocks := root.Get("content")
	if !blocks.IsArray() || len(blocks.Array()) == 0 {
		return llm.Failed(p.name, llm.SchemaMismatch, "no content blocks in response")
	}
	var sb strings.Builder
	for _, b := range blocks.Array() {
		if b.Get("type").String() == "text" {
			sb.WriteString(b.Get("text").String())
		}
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return llm.Failed(p.name, llm.SchemaMismatch, "no text content (stop_reason=%q)", root.Get("stop_reason").String())
	}
	return llm.Succeeded(p.name, text)
}
