package openai

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/MrWong99/twinvoice/pkg/provider/llm"
)

func completionBody(content, finish, refusal string) string {
	return `{"id":"chatcmpl-1","object":"chat.completion","created":1,"model":"gpt-4o-mini",` +
		`"choices":[{"index":0,"finish_reason":"` + finish + `","message":{"role":"assistant","content":"` +
		content + `","refusal":"` + refusal + `"}}]}`
}

func newTestProvider(t *testing.T, status int, body string, calls *atomic.Int32) *Provider {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls != nil {
			calls.Add(1)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)

	p, err := New("test-key", "", WithBaseURL(srv.URL+"/"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func TestNew_NoCredentials(t *testing.T) {
	if _, err := New("", "gpt-4o"); !errors.Is(err, llm.ErrNoCredentials) {
		t.Fatalf("expected ErrNoCredentials, got %v", err)
	}
}

func TestBuildParams(t *testing.T) {
	p, _ := New("k", "gpt-4o")
	params := p.buildParams(llm.Request{Prompt: "hi", MaxOutputTokens: 64, Temperature: 0.5})
	if string(params.Model) != "gpt-4o" {
		t.Errorf("model: got %q", params.Model)
	}
	if len(params.Messages) != 1 || params.Messages[0].OfUser == nil {
		t.Fatalf("expected a single user message, got %+v", params.Messages)
	}
	if params.MaxCompletionTokens.Value != 64 {
		t.Errorf("max tokens: got %d", params.MaxCompletionTokens.Value)
	}
	if params.Temperature.Value != 0.5 {
		t.Errorf("temperature: got %v", params.Temperature.Value)
	}
}

func TestAsk_Classification(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantKind llm.Kind
		wantText string
	}{
		{"success", 200, completionBody("I love logic.", "stop", ""), llm.Success, "I love logic."},
		{"empty choices", 200, `{"id":"x","object":"chat.completion","created":1,"model":"m","choices":[]}`, llm.SchemaMismatch, ""},
		{"empty content", 200, completionBody("", "stop", ""), llm.SchemaMismatch, ""},
		{"content filter", 200, completionBody("", "content_filter", ""), llm.Blocked, ""},
		{"refusal", 200, completionBody("", "stop", "I can't help with that."), llm.Blocked, ""},
		{"malformed json", 200, `{"choices":[`, llm.SchemaMismatch, ""},
		{"rate limited", 429, `{"error":{"message":"slow down","type":"requests","code":"rate_limit_exceeded"}}`, llm.RateLimited, ""},
		{"server error", 500, `{"error":{"message":"boom","type":"server_error"}}`, llm.TransportFailure, ""},
		{"bad key", 401, `{"error":{"message":"bad key","type":"invalid_request_error","code":"invalid_api_key"}}`, llm.TransportFailure, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			p := newTestProvider(t, tt.status, tt.body, &calls)
			res := p.Ask(context.Background(), llm.Request{Prompt: "q"})
			if res.Kind != tt.wantKind {
				t.Fatalf("kind: got %s, want %s (detail %q)", res.Kind, tt.wantKind, res.Detail)
			}
			if res.Text != tt.wantText {
				t.Errorf("text: got %q, want %q", res.Text, tt.wantText)
			}
			if calls.Load() != 1 {
				t.Errorf("expected exactly one attempt, got %d", calls.Load())
			}
		})
	}
}

func TestAsk_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL + "/"
	srv.Close()

	p, _ := New("k", "", WithBaseURL(base))
	res := p.Ask(context.Background(), llm.Request{Prompt: "q"})
	if res.Kind != llm.TransportFailure {
		t.Fatalf("kind: got %s, want transport_failure", res.Kind)
	}
}
