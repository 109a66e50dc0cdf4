// Package gemini provides an LLM provider backed by the Google Gemini REST API.
//
// The adapter calls models/{model}:generateContent directly and reads the
// response with path queries rather than fixed structs, so a payload missing
// any expected field is classified instead of failing to decode.
package gemini

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
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	defaultModel   = "gemini-1.5-flash"
	defaultTimeout = 15 * time.Second
)

// Safety thresholds accepted by [WithSafetyThreshold].
const (
	BlockNone           = "BLOCK_NONE"
	BlockOnlyHigh       = "BLOCK_ONLY_HIGH"
	BlockMediumAndAbove = "BLOCK_MEDIUM_AND_ABOVE"
	BlockLowAndAbove    = "BLOCK_LOW_AND_ABOVE"
)

var harmCategories = []string{
	"HARM_CATEGORY_HARASSMENT",
	"HARM_CATEGORY_HATE_SPEECH",
	"HARM_CATEGORY_SEXUALLY_EXPLICIT",
	"HARM_CATEGORY_DANGEROUS_CONTENT",
}

// blockingFinishReasons end a candidate early on policy grounds.
var blockingFinishReasons = map[string]bool{
	"SAFETY":             true,
	"PROHIBITED_CONTENT": true,
	"BLOCKLIST":          true,
	"SPII":               true,
}

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

// WithSafetyThreshold applies threshold to every harm category. An empty
// threshold leaves the API defaults in place.
func WithSafetyThreshold(threshold string) Option {
	return func(p *Provider) {
		p.safetyThreshold = threshold
	}
}

// WithName overrides the provider ID. Default: "gemini".
func WithName(name string) Option {
	return func(p *Provider) {
		p.name = name
	}
}

// Provider implements llm.Provider for Gemini.
type Provider struct {
	name            string
	apiKey          string
	model           string
	baseURL         string
	safetyThreshold string
	httpClient      *http.Client
}

// New creates a Gemini provider. An empty apiKey yields [llm.ErrNoCredentials].
// An empty model selects gemini-1.5-flash.
func New(apiKey, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: %w", llm.ErrNoCredentials)
	}
	if model == "" {
		model = defaultModel
	}
	p := &Provider{
		name:       "gemini",
		apiKey:     apiKey,
		model:      model,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	switch p.safetyThreshold {
	case "", BlockNone, BlockOnlyHigh, BlockMediumAndAbove, BlockLowAndAbove:
	default:
		return nil, fmt.Errorf("gemini: unknown safety threshold %q", p.safetyThreshold)
	}
	return p, nil
}

// Name implements llm.Provider.
func (p *Provider) Name() string { return p.name }

// ---- wire format (request) ----

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role"`
	Parts []part `json:"parts"`
}

type safetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

type generationConfig struct {
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
	Temperature     *float64 `json:"temperature,omitempty"`
}

type generateRequest struct {
	Contents         []content         `json:"contents"`
	SafetySettings   []safetySetting   `json:"safetySettings,omitempty"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

func (p *Provider) buildRequest(req llm.Request) generateRequest {
	body := generateRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: req.Prompt}}}},
	}
	if p.safetyThreshold != "" {
		for _, c := range harmCategories {
			body.SafetySettings = append(body.SafetySettings, safetySetting{Category: c, Threshold: p.safetyThreshold})
		}
	}
	if req.MaxOutputTokens > 0 || req.Temperature != 0 {
		gc := &generationConfig{MaxOutputTokens: req.MaxOutputTokens}
		if req.Temperature != 0 {
			t := req.Temperature
			gc.Temperature = &t
		}
		body.GenerationConfig = gc
	}
	return body
}

// Ask implements llm.Provider.
func (p *Provider) Ask(ctx context.Context, req llm.Request) llm.Result {
	payload, err := json.Marshal(p.buildRequest(req))
	if err != nil {
		return llm.Failed(p.name, llm.SchemaMismatch, "encode request: %v", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", p.baseURL, p.model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return llm.TransportFailed(p.name, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", p.apiKey)

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

// classify maps a raw Gemini response to a Result. Checks run in order and
// the first matching one decides the outcome.
func (p *Provider) classify(status int, raw []byte) llm.Result {
	if status == http.StatusTooManyRequests {
		return llm.Failed(p.name, llm.RateLimited, "status 429: %s", errorMessage(raw))
	}
	if status < 200 || status > 299 {
		if gjson.GetBytes(raw, "error.status").String() == "RESOURCE_EXHAUSTED" {
			return llm.Failed(p.name, llm.RateLimited, "status %d: %s", status, errorMessage(raw))
		}
		return llm.Failed(p.name, llm.TransportFailure, "status %d: %s", status, errorMessage(raw))
	}

	if !gjson.ValidBytes(raw) {
		return llm.Failed(p.name, llm.SchemaMismatch, "response is not valid JSON")
	}
	root := gjson.ParseBytes(raw)
	if !root.IsObject() {
		return llm.Failed(p.name, llm.SchemaMismatch, "response is not a JSON object")
	}

	if e := root.Get("error"); e.Exists() {
		if e.Get("status").String() == "RESOURCE_EXHAUSTED" || e.Get("code").Int() == http.StatusTooManyRequests {
			return llm.Failed(p.name, llm.RateLimited, "%s", errorMessage(raw))
		}
		return llm.Failed(p.name, llm.TransportFailure, "provider error: %s", errorMessage(raw))
	}

	if reason := root.Get("promptFeedback.blockReason").String(); reason != "" {
		return llm.Failed(p.name, llm.Blocked, "prompt blocked: %s", reason)
	}

	candidates := root.Get("candidates")
	if !candidates.IsArray() || len(candidates.Array()) == 0 {
		return llm.Failed(p.name, llm.SchemaMismatch, "no candidates in response")
	}
	first := candidates.Array()[0]

	var sb strings.Builder
	for _, pt := range first.Get("content.parts").Array() {
		sb.WriteString(pt.Get("text").String())
	}
	text := strings.TrimSpace(sb.String())

	finish := first.Get("finishReason").String()
	if text == "" && blockingFinishReasons[finish] {
		return llm.Failed(p.name, llm.Blocked, "candidate blocked: %s", finish)
	}
	if text == "" {
		return llm.Failed(p.name, llm.SchemaMismatch, "candidate has no text (finishReason=%q)", finish)
	}
	return llm.Succeeded(p.name, text)
}

// errorMessage extracts error.message from a Gemini error body, falling back
// to a truncated raw body.
func errorMessage(raw []byte) string {
	if msg := gjson.GetBytes(raw, "error.message").String(); msg != "" {
		return msg
	}
	s := strings.TrimSpace(string(raw))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
