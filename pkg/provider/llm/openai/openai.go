// Package openai provides an LLM provider backed by the OpenAI Chat
// Completions API. Any OpenAI-compatible endpoint can be used via
// [WithBaseURL].
package openai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/MrWong99/twinvoice/pkg/provider/llm"
)

const defaultModel = "gpt-4o-mini"

var _ llm.Provider = (*Provider)(nil)

// Provider implements llm.Provider using the OpenAI API.
type Provider struct {
	name   string
	client oai.Client
	model  string
}

// config holds optional configuration for the provider.
type config struct {
	name         string
	baseURL      string
	organization string
	timeout      time.Duration
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithOrganization sets the OpenAI organization ID on all requests.
func WithOrganization(org string) Option {
	return func(c *config) {
		c.organization = org
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithName overrides the provider ID. Default: "openai".
func WithName(name string) Option {
	return func(c *config) {
		c.name = name
	}
}

// New constructs a new OpenAI provider. An empty apiKey yields
// [llm.ErrNoCredentials]; an empty model selects gpt-4o-mini.
//
// SDK-level retries are disabled: the router makes exactly one attempt per
// provider and moves on.
func New(apiKey string, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: %w", llm.ErrNoCredentials)
	}
	if model == "" {
		model = defaultModel
	}

	cfg := &config{name: "openai"}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.organization != "" {
		reqOpts = append(reqOpts, option.WithOrganization(cfg.organization))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	client := oai.NewClient(reqOpts...)
	return &Provider{name: cfg.name, client: client, model: model}, nil
}

// Name implements llm.Provider.
func (p *Provider) Name() string { return p.name }

// Ask implements llm.Provider.
func (p *Provider) Ask(ctx context.Context, req llm.Request) llm.Result {
	resp, err := p.client.Chat.Completions.New(ctx, p.buildParams(req))
	if err != nil {
		return p.classifyError(err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return llm.Failed(p.name, llm.SchemaMismatch, "empty choices in response")
	}

	choice := resp.Choices[0]
	if choice.Message.Refusal != "" {
		return llm.Failed(p.name, llm.Blocked, "refusal: %s", choice.Message.Refusal)
	}
	text := strings.TrimSpace(choice.Message.Content)
	if text == "" && choice.FinishReason == "content_filter" {
		return llm.Failed(p.name, llm.Blocked, "content filtered")
	}
	if text == "" {
		return llm.Failed(p.name, llm.SchemaMismatch, "choice has no content (finish_reason=%q)", choice.FinishReason)
	}
	return llm.Succeeded(p.name, text)
}

// classifyError maps an SDK error to a Result. API errors carry the HTTP
// status; network and context errors are transport failures; anything else
// means the response arrived but could not be decoded.
func (p *Provider) classifyError(err error) llm.Result {
	var apiErr *oai.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusTooManyRequests || apiErr.Code == "insufficient_quota" {
			return llm.Failed(p.name, llm.RateLimited, "status %d: %s", apiErr.StatusCode, apiErr.Message)
		}
		return llm.Failed(p.name, llm.TransportFailure, "status %d: %s", apiErr.StatusCode, apiErr.Message)
	}

	var (
		urlErr *url.Error
		netErr net.Error
	)
	if errors.As(err, &urlErr) || errors.As(err, &netErr) ||
		errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return llm.TransportFailed(p.name, err)
	}
	return llm.Failed(p.name, llm.SchemaMismatch, "decode response: %v", err)
}

// buildParams converts a Request into OpenAI SDK params.
func (p *Provider) buildParams(req llm.Request) oai.ChatCompletionNewParams {
	params := oai.ChatCompletionNewParams{
		Model: shared.ChatModel(p.model),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.UserMessage(req.Prompt),
		},
	}
	if req.Temperature != 0 {
		params.Temperature = param.NewOpt(req.Temperature)
	}
	if req.MaxOutputTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(req.MaxOutputTokens))
	}
	return params
}
