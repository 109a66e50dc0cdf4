package anthropic_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MrWong99/twinvoice/pkg/provider/llm"
	"github.com/MrWong99/twinvoice/pkg/provider/llm/anthropic"
)

func TestNew_NoCredentials(t *testing.T) {
	if _, err := anthropic.New("", ""); !errors.Is(err, llm.ErrNoCredentials) {
		t.Fatalf("expected ErrNoCredentials, got %v", err)
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
		{"success", 200, `{"type":"message","content":[{"type":"text","text":"Hi, I'm a fresher."}],"stop_reason":"end_turn"}`, llm.Success, "Hi, I'm a fresher."},
		{"skips non-text blocks", 200, `{"type":"message","content":[{"type":"thinking","thinking":"x"},{"type":"text","text":"Answer"}]}`, llm.Success, "Answer"},
		{"empty content", 200, `{"type":"message","content":[]}`, llm.SchemaMismatch, ""},
		{"missing content", 200, `{"type":"message"}`, llm.SchemaMismatch, ""},
		{"malformed", 200, `{"type":"message","content":[{`, llm.SchemaMismatch, ""},
		{"refusal", 200, `{"type":"message","content":[],"stop_reason":"refusal"}`, llm.Blocked, ""},
		{"overloaded", 529, `{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`, llm.TransportFailure, ""},
		{"rate limit", 429, `{"type":"error","error":{"type":"rate_limit_error","message":"slow"}}`, llm.RateLimited, ""},
		{"error in 200", 200, `{"type":"error","error":{"type":"api_error","message":"x"}}`, llm.TransportFailure, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			p, _ := anthropic.New("k", "", anthropic.WithBaseURL(srv.URL))
			res := p.Ask(context.Background(), llm.Request{Prompt: "q"})
			if res.Kind != tt.wantKind {
				t.Fatalf("kind: got %s, want %s (detail %q)", res.Kind, tt.wantKind, res.Detail)
			}
			if res.Text != tt.wantText {
				t.Errorf("text: got %q, want %q", res.Text, tt.wantText)
			}
		})
	}
}

func TestAsk_Headers(t *testing.T) {
	var (
		hdr  http.Header
		body map[string]any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hdr = r.Header.Clone()
		_ = json.NewDecoder(r.Body).Decode(&body)
		_, _ = io.WriteString(w, `{"type":"message","content":[{"type":"text","text":"ok"}]}`)
	}))
	defer srv.Close()

	p, _ := anthropic.New("secret", "claude-x", anthropic.WithBaseURL(srv.URL))
	if res := p.Ask(context.Background(), llm.Request{Prompt: "q"}); !res.OK() {
		t.Fatalf("unexpected failure: %+v", res)
	}
	if hdr.Get("x-api-key") != "secret" || hdr.Get("anthropic-version") == "" {
		t.Errorf("headers: %v", hdr)
	}
	if body["model"] != "claude-x" || body["max_tokens"] != float64(256) {
		t.Errorf("body: %v", body)
	}
}
