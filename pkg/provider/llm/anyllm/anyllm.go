// Package anyllm provides a universal LLM provider backed by
// github.com/mozilla-ai/any-llm-go, a unified multi-provider interface that
// supports Ollama, DeepSeek, Mistral, Groq, llama.cpp and more.
//
// The dedicated gemini, openai and anthropic packages give finer-grained
// failure classification for those backends; this adapter covers the long
// tail with coarser classification based on the returned error.
//
// Usage:
//
//	p, err := anyllm.New("groq", "llama-3.1-8b-instant", anyllmlib.WithAPIKey("gsk-..."))
//	p, err := anyllm.NewOllama("llama3")
package anyllm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	anyllmconfig "github.com/mozilla-ai/any-llm-go/config"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/deepseek"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/llamacpp"
	"github.com/mozilla-ai/any-llm-go/providers/llamafile"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/MrWong99/twinvoice/pkg/provider/llm"
)

var _ llm.Provider = (*Provider)(nil)

// Provider implements llm.Provider by wrapping github.com/mozilla-ai/any-llm-go.
type Provider struct {
	name    string
	backend anyllmlib.Provider
	model   string
}

// Backends lists the provider names accepted by [New].
var Backends = []string{"openai", "anthropic", "gemini", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile"}

// localBackends run without credentials.
var localBackends = map[string]bool{
	"ollama":    true,
	"llamacpp":  true,
	"llamafile": true,
}

// RequiresAPIKey reports whether the named backend needs a credential.
func RequiresAPIKey(providerName string) bool {
	return !localBackends[strings.ToLower(providerName)]
}

// New creates a new Provider backed by the given LLM provider name.
//
// providerName is one of [Backends]. model is the specific model to use.
// opts are any-llm-go configuration options (e.g., anyllmlib.WithAPIKey,
// anyllmlib.WithBaseURL). If no API key option is provided, the backend falls
// back to its environment variable (e.g., GROQ_API_KEY).
//
// Every request is sent once: the HTTP client resolved from opts is wrapped so
// that the SDK clients underneath never retry.
func New(providerName string, model string, opts ...anyllmlib.Option) (*Provider, error) {
	if providerName == "" {
		return nil, fmt.Errorf("anyllm: providerName must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("anyllm: model must not be empty")
	}

	client, err := singleAttemptClient(opts)
	if err != nil {
		return nil, fmt.Errorf("anyllm: %w", err)
	}
	opts = append(opts[:len(opts):len(opts)], anyllmlib.WithHTTPClient(client))

	backend, err := createBackend(providerName, opts...)
	if err != nil {
		return nil, fmt.Errorf("anyllm: create %q backend: %w", providerName, err)
	}

	return &Provider{name: strings.ToLower(providerName), backend: backend, model: model}, nil
}

// NewOllama creates a Provider backed by Ollama (local inference).
// Without options, it connects to http://localhost:11434.
func NewOllama(model string, opts ...anyllmlib.Option) (*Provider, error) {
	return New("ollama", model, opts...)
}

// NewGroq creates a Provider backed by Groq.
// Without options, it reads the GROQ_API_KEY environment variable.
func NewGroq(model string, opts ...anyllmlib.Option) (*Provider, error) {
	return New("groq", model, opts...)
}

// NewMistral creates a Provider backed by Mistral AI.
// Without options, it reads the MISTRAL_API_KEY environment variable.
func NewMistral(model string, opts ...anyllmlib.Option) (*Provider, error) {
	return New("mistral", model, opts...)
}

// NewDeepSeek creates a Provider backed by DeepSeek.
// Without options, it reads the DEEPSEEK_API_KEY environment variable.
func NewDeepSeek(model string, opts ...anyllmlib.Option) (*Provider, error) {
	return New("deepseek", model, opts...)
}

// createBackend creates the underlying any-llm-go provider for the given provider name.
func createBackend(providerName string, opts ...anyllmlib.Option) (anyllmlib.Provider, error) {
	switch strings.ToLower(providerName) {
	case "openai":
		return anyllmoai.New(opts...)
	case "anthropic":
		return anthropic.New(opts...)
	case "gemini":
		return gemini.New(opts...)
	case "ollama":
		return ollama.New(opts...)
	case "deepseek":
		return deepseek.New(opts...)
	case "mistral":
		return mistral.New(opts...)
	case "groq":
		return groq.New(opts...)
	case "llamacpp":
		return llamacpp.New(opts...)
	case "llamafile":
		return llamafile.New(opts...)
	default:
		return nil, fmt.Errorf("unsupported provider %q; supported: %s", providerName, strings.Join(Backends, ", "))
	}
}

// Name implements llm.Provider.
func (p *Provider) Name() string { return p.name }

// Ask implements llm.Provider.
func (p *Provider) Ask(ctx context.Context, req llm.Request) llm.Result {
	resp, err := p.backend.Completion(ctx, p.buildParams(req))
	if err != nil {
		return classifyError(p.name, err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return llm.Failed(p.name, llm.SchemaMismatch, "empty choices in response")
	}

	choice := resp.Choices[0]
	text := strings.TrimSpace(choice.Message.ContentString())
	if text == "" && string(choice.FinishReason) == "content_filter" {
		return llm.Failed(p.name, llm.Blocked, "content filtered")
	}
	if text == "" {
		return llm.Failed(p.name, llm.SchemaMismatch, "choice has no content (finish_reason=%q)", string(choice.FinishReason))
	}
	return llm.Succeeded(p.name, text)
}

// classifyError maps a backend error to a Result. Not every any-llm-go
// backend converts its errors, so rate limiting is also recognised by message.
func classifyError(name string, err error) llm.Result {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return llm.TransportFailed(name, err)
	case errors.Is(err, anyllmlib.ErrRateLimit):
		return llm.Failed(name, llm.RateLimited, "%v", err)
	case errors.Is(err, anyllmlib.ErrContentFilter):
		return llm.Failed(name, llm.Blocked, "%v", err)
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"rate limit", "rate_limit", "429", "quota", "too many requests"} {
		if strings.Contains(msg, marker) {
			return llm.Failed(name, llm.RateLimited, "%v", err)
		}
	}
	return llm.Failed(name, llm.TransportFailure, "%v", err)
}

// buildParams converts a Request into anyllm CompletionParams.
func (p *Provider) buildParams(req llm.Request) anyllmlib.CompletionParams {
	params := anyllmlib.CompletionParams{
		Model: p.model,
		Messages: []anyllmlib.Message{
			{Role: anyllmlib.RoleUser, Content: req.Prompt},
		},
	}
	if req.Temperature != 0 {
		t := req.Temperature
		params.Temperature = &t
	}
	if req.MaxOutputTokens > 0 {
		mt := req.MaxOutputTokens
		params.MaxTokens = &mt
	}
	return params
}

// ---- single attempt transport ----

// singleAttemptClient returns a copy of the HTTP client configured by opts
// whose transport is wrapped in [singleAttempt]. The configured timeout is
// kept.
func singleAttemptClient(opts []anyllmlib.Option) (*http.Client, error) {
	cfg, err := anyllmconfig.New(opts...)
	if err != nil {
		return nil, err
	}
	base := cfg.HTTPClient()
	next := base.Transport
	if next == nil {
		next = http.DefaultTransport
	}
	if _, ok := next.(singleAttempt); ok {
		return base, nil
	}
	client := *base
	client.Transport = singleAttempt{next: next}
	return &client, nil
}

// singleAttempt marks every response as not retryable. The OpenAI-compatible
// backends retry 408, 409, 429, 5xx and connection errors by default; they
// honour x-should-retry over the status code. Transport errors, including the
// client timeout, become a 502 response carrying the same header, with the
// error text as the message. A cancelled caller context still wins: the SDK
// checks it before looking at the response.
type singleAttempt struct {
	next http.RoundTripper
}

func (s singleAttempt) RoundTrip(req *http.Request) (*http.Response, error) {
	res, err := s.next.RoundTrip(req)
	if err != nil {
		return unreachable(req, err), nil
	}
	res.Header.Set("X-Should-Retry", "false")
	return res, nil
}

func unreachable(req *http.Request, err error) *http.Response {
	body, _ := json.Marshal(map[string]any{
		"error": map[string]string{"message": err.Error(), "type": "connection_error"},
	})
	h := make(http.Header)
	h.Set("Content-Type", "application/json")
	h.Set("X-Should-Retry", "false")
	return &http.Response{
		Status:        "502 Bad Gateway",
		StatusCode:    http.StatusBadGateway,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        h,
		Body:          io.NopCloser(strings.NewReader(string(body))),
		ContentLength: int64(len(body)),
		Request:       req,
	}
}
