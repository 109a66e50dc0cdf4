package anyllm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/twinvoice/pkg/provider/llm"
)

// ── Constructor ───────────────────────────────────────────────────────────────

// TestNew_EmptyProviderName checks that an empty provider name returns an error.
func TestNew_EmptyProviderName(t *testing.T) {
	if _, err := New("", "llama3"); err == nil {
		t.Fatal("expected error for empty providerName")
	}
}

// TestNew_EmptyModel checks that an empty model name returns an error.
func TestNew_EmptyModel(t *testing.T) {
	if _, err := New("ollama", ""); err == nil {
		t.Fatal("expected error for empty model")
	}
}

// TestNew_UnsupportedProvider checks that an unsupported provider returns an error.
func TestNew_UnsupportedProvider(t *testing.T) {
	if _, err := New("fakecloud", "some-model", anyllmlib.WithAPIKey("dummy")); err == nil {
		t.Fatal("expected error for unsupported provider")
	}
}

// TestNew_Ollama_NoAPIKey checks that Ollama works without an API key and
// reports its lower-case name.
func TestNew_Ollama_NoAPIKey(t *testing.T) {
	p, err := New("Ollama", "llama3")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Name() != "ollama" {
		t.Errorf("name: got %q, want ollama", p.Name())
	}
}

// TestConvenienceConstructors checks all convenience constructors delegate correctly.
func TestConvenienceConstructors(t *testing.T) {
	tests := []struct {
		name string
		want string
		fn   func() (*Provider, error)
	}{
		{"NewOllama", "ollama", func() (*Provider, error) { return NewOllama("llama3") }},
		{"NewGroq", "groq", func() (*Provider, error) { return NewGroq("llama-3.1-8b-instant", anyllmlib.WithAPIKey("gsk-test")) }},
		{"NewMistral", "mistral", func() (*Provider, error) { return NewMistral("mistral-small", anyllmlib.WithAPIKey("m-test")) }},
		{"NewDeepSeek", "deepseek", func() (*Provider, error) { return NewDeepSeek("deepseek-chat", anyllmlib.WithAPIKey("d-test")) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := tt.fn()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if p.Name() != tt.want {
				t.Errorf("name: got %q, want %q", p.Name(), tt.want)
			}
		})
	}
}

func TestRequiresAPIKey(t *testing.T) {
	for name, want := range map[string]bool{"ollama": false, "LlamaCpp": false, "groq": true, "mistral": true} {
		if got := RequiresAPIKey(name); got != want {
			t.Errorf("RequiresAPIKey(%q) = %v, want %v", name, got, want)
		}
	}
}

// ── Classification ────────────────────────────────────────────────────────────

func completionBody(content, finish string) string {
	return `{"id":"chatcmpl-1","object":"chat.completion","created":1,"model":"local",` +
		`"choices":[{"index":0,"finish_reason":"` + finish + `","message":{"role":"assistant","content":"` +
		content + `"}}]}`
}

// newLlamaCpp returns a llamacpp-backed Provider talking to a server that
// always answers with status and body, counting requests in calls.
func newLlamaCpp(t *testing.T, status int, body string, calls *atomic.Int32, opts ...anyllmlib.Option) *Provider {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)

	p, err := New("llamacpp", "local", append([]anyllmlib.Option{anyllmlib.WithBaseURL(srv.URL + "/v1")}, opts...)...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func TestAsk_Classification(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantKind llm.Kind
		wantText string
	}{
		{"success", 200, completionBody("I enjoy distributed systems.", "stop"), llm.Success, "I enjoy distributed systems."},
		{"empty choices", 200, `{"id":"x","object":"chat.completion","created":1,"model":"local","choices":[]}`, llm.SchemaMismatch, ""},
		{"empty content", 200, completionBody("", "stop"), llm.SchemaMismatch, ""},
		{"content filter finish", 200, completionBody("", "content_filter"), llm.Blocked, ""},
		{"content filter error", 400, `{"error":{"message":"filtered","type":"invalid_request_error","code":"content_filter"}}`, llm.Blocked, ""},
		{"rate limited", 429, `{"error":{"message":"slow down","type":"requests","code":"rate_limit_exceeded"}}`, llm.RateLimited, ""},
		{"unavailable", 503, `{"error":{"message":"loading model","type":"server_error"}}`, llm.TransportFailure, ""},
		{"server error", 500, `{"error":{"message":"boom","type":"server_error"}}`, llm.TransportFailure, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			p := newLlamaCpp(t, tt.status, tt.body, &calls)
			res := p.Ask(context.Background(), llm.Request{Prompt: "q"})
			if res.Kind != tt.wantKind {
				t.Fatalf("kind: got %s, want %s (detail %q)", res.Kind, tt.wantKind, res.Detail)
			}
			if res.Text != tt.wantText {
				t.Errorf("text: got %q, want %q", res.Text, tt.wantText)
			}
			if res.Provider != "llamacpp" {
				t.Errorf("provider: got %q", res.Provider)
			}
			if calls.Load() != 1 {
				t.Errorf("expected exactly one request, got %d", calls.Load())
			}
		})
	}
}

func TestAsk_TimeoutIsSingleAttempt(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	p, err := New("llamacpp", "local",
		anyllmlib.WithBaseURL(srv.URL+"/v1"),
		anyllmlib.WithTimeout(100*time.Millisecond),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	start := time.Now()
	res := p.Ask(context.Background(), llm.Request{Prompt: "q"})
	if res.Kind != llm.TransportFailure {
		t.Fatalf("kind: got %s, want transport_failure", res.Kind)
	}
	if calls.Load() != 1 {
		t.Errorf("expected exactly one request, got %d", calls.Load())
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Ask took %s, timeout not honoured", elapsed)
	}
}

func TestAsk_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL + "/v1"
	srv.Close()

	p, err := New("llamacpp", "local", anyllmlib.WithBaseURL(base))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	start := time.Now()
	res := p.Ask(context.Background(), llm.Request{Prompt: "q"})
	if res.Kind != llm.TransportFailure {
		t.Fatalf("kind: got %s, want transport_failure", res.Kind)
	}
	if elapsed := time.Since(start); elapsed > 400*time.Millisecond {
		t.Errorf("Ask took %s, connection error was retried", elapsed)
	}
}

func TestAsk_CancelledContext(t *testing.T) {
	var calls atomic.Int32
	p := newLlamaCpp(t, 200, completionBody("late", "stop"), &calls)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if res := p.Ask(ctx, llm.Request{Prompt: "q"}); res.Kind != llm.TransportFailure {
		t.Fatalf("kind: got %s, want transport_failure", res.Kind)
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		err  error
		want llm.Kind
	}{
		{context.DeadlineExceeded, llm.TransportFailure},
		{fmt.Errorf("wrapped: %w", context.Canceled), llm.TransportFailure},
		{errors.New("groq: status 429: Rate limit reached"), llm.RateLimited},
		{errors.New("insufficient quota"), llm.RateLimited},
		{errors.New("dial tcp: connection refused"), llm.TransportFailure},
		{fmt.Errorf("groq: %w", anyllmlib.ErrRateLimit), llm.RateLimited},
		{fmt.Errorf("mistral: %w", anyllmlib.ErrContentFilter), llm.Blocked},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			res := classifyError("groq", tt.err)
			if res.Kind != tt.want {
				t.Errorf("kind: got %s, want %s", res.Kind, tt.want)
			}
			if res.Provider != "groq" || res.Detail == "" {
				t.Errorf("result not populated: %+v", res)
			}
		})
	}
}

func TestBuildParams(t *testing.T) {
	p, err := NewOllama("llama3")
	if err != nil {
		t.Fatalf("NewOllama: %v", err)
	}
	params := p.buildParams(llm.Request{Prompt: "hello", MaxOutputTokens: 50, Temperature: 0.4})
	if params.Model != "llama3" {
		t.Errorf("model: got %q", params.Model)
	}
	if len(params.Messages) != 1 || params.Messages[0].ContentString() != "hello" {
		t.Fatalf("messages: %+v", params.Messages)
	}
	if params.MaxTokens == nil || *params.MaxTokens != 50 {
		t.Errorf("max tokens: %v", params.MaxTokens)
	}
	if params.Temperature == nil || *params.Temperature != 0.4 {
		t.Errorf("temperature: %v", params.Temperature)
	}
}
