package config_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrWong99/twinvoice/internal/config"
	"github.com/MrWong99/twinvoice/internal/resilience"
	"github.com/MrWong99/twinvoice/pkg/provider/llm"
	llmmock "github.com/MrWong99/twinvoice/pkg/provider/llm/mock"
	"github.com/MrWong99/twinvoice/pkg/provider/stt"
	sttmock "github.com/MrWong99/twinvoice/pkg/provider/stt/mock"
	"github.com/MrWong99/twinvoice/pkg/provider/tts"
	ttsmock "github.com/MrWong99/twinvoice/pkg/provider/tts/mock"
)

func TestRegistry_Unknown(t *testing.T) {
	reg := config.NewRegistry()
	entry := config.ProviderEntry{Name: "nonexistent"}

	if _, err := reg.CreateLLM(entry); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateLLM: expected ErrProviderNotRegistered, got %v", err)
	}
	if _, err := reg.CreateSTT(entry); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateSTT: expected ErrProviderNotRegistered, got %v", err)
	}
	if _, err := reg.CreateTTS(entry); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateTTS: expected ErrProviderNotRegistered, got %v", err)
	}
}

func TestRegistry_CreateLLMUsesKey(t *testing.T) {
	reg := config.NewRegistry()
	reg.RegisterLLM("fake", func(e config.ProviderEntry) (llm.Provider, error) {
		return &llmmock.Provider{ID: e.Name, Result: llm.Succeeded(e.Name, "hello")}, nil
	})

	p, err := reg.CreateLLM(config.ProviderEntry{Name: "fake", ID: "fake-large"})
	if err != nil {
		t.Fatalf("CreateLLM: %v", err)
	}
	if p.Name() != "fake-large" {
		t.Errorf("Name: got %q, want fake-large", p.Name())
	}
	if res := p.Ask(context.Background(), llm.Request{Prompt: "q"}); res.Provider != "fake-large" {
		t.Errorf("Result.Provider: got %q, want fake-large", res.Provider)
	}
}

func TestRegistry_FactoryError(t *testing.T) {
	reg := config.NewRegistry()
	reg.RegisterSTT("broken", func(config.ProviderEntry) (stt.Provider, error) {
		return nil, errors.New("boom")
	})
	if _, err := reg.CreateSTT(config.ProviderEntry{Name: "broken"}); err == nil {
		t.Fatal("expected factory error")
	}
}

func TestIsUnconfigured(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{fmt.Errorf("gemini: %w", llm.ErrNoCredentials), true},
		{fmt.Errorf("deepgram: %w", config.ErrMissingCredential), true},
		{errors.New("model is required"), false},
		{nil, false},
	}
	for _, tt := range tests {
		if got := config.IsUnconfigured(tt.err); got != tt.want {
			t.Errorf("IsUnconfigured(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestBuildRouter(t *testing.T) {
	reg := config.NewRegistry()
	reg.RegisterLLM("ok", func(e config.ProviderEntry) (llm.Provider, error) {
		return &llmmock.Provider{ID: e.Key()}, nil
	})
	reg.RegisterLLM("nokey", func(config.ProviderEntry) (llm.Provider, error) {
		return nil, fmt.Errorf("nokey: %w", llm.ErrNoCredentials)
	})

	router := resilience.NewRouter(resilience.BreakerConfig{})
	err := reg.BuildRouter([]config.ProviderEntry{{Name: "nokey"}, {Name: "ok"}}, router)
	if err != nil {
		t.Fatalf("BuildRouter: %v", err)
	}
	if got, want := router.Order(), []string{"nokey", "ok"}; !slices.Equal(got, want) {
		t.Errorf("Order = %v, want %v", got, want)
	}
	if router.Configured("nokey") || !router.Configured("ok") {
		t.Error("nokey should be unconfigured and ok configured")
	}

	err = reg.BuildRouter([]config.ProviderEntry{{Name: "missing"}}, router)
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("expected ErrProviderNotRegistered, got %v", err)
	}
}

func TestBuildSTTAndTTS(t *testing.T) {
	reg := config.NewRegistry()
	reg.RegisterSTT("ok", func(config.ProviderEntry) (stt.Provider, error) { return &sttmock.Provider{}, nil })
	reg.RegisterSTT("nokey", func(config.ProviderEntry) (stt.Provider, error) {
		return nil, config.ErrMissingCredential
	})
	reg.RegisterTTS("ok", func(config.ProviderEntry) (tts.Provider, error) { return &ttsmock.Provider{}, nil })

	sttGroup := resilience.NewSTTFallback(resilience.BreakerConfig{})
	if err := reg.BuildSTT([]config.ProviderEntry{{Name: "nokey"}, {Name: "ok"}}, sttGroup); err != nil {
		t.Fatalf("BuildSTT: %v", err)
	}
	if sttGroup.Len() != 1 {
		t.Errorf("stt backends: got %d, want 1", sttGroup.Len())
	}

	ttsGroup := resilience.NewTTSFallback(resilience.BreakerConfig{})
	if err := reg.BuildTTS([]config.ProviderEntry{{Name: "ok"}}, ttsGroup); err != nil {
		t.Fatalf("BuildTTS: %v", err)
	}
	if ttsGroup.Len() != 1 {
		t.Errorf("tts backends: got %d, want 1", ttsGroup.Len())
	}
}

func TestDefaultRegistry_Credentials(t *testing.T) {
	reg := config.DefaultRegistry()

	tests := []struct {
		name   string
		create func() error
		want   bool // unconfigured
	}{
		{"gemini without key", func() error { _, err := reg.CreateLLM(config.ProviderEntry{Name: "gemini"}); return err }, true},
		{"openai without key", func() error { _, err := reg.CreateLLM(config.ProviderEntry{Name: "openai"}); return err }, true},
		{"anthropic without key", func() error { _, err := reg.CreateLLM(config.ProviderEntry{Name: "anthropic"}); return err }, true},
		{"groq without key", func() error { _, err := reg.CreateLLM(config.ProviderEntry{Name: "groq", Model: "llama-3.1-8b-instant"}); return err }, true},
		{"whisper without url", func() error { _, err := reg.CreateSTT(config.ProviderEntry{Name: "whisper"}); return err }, true},
		{"deepgram without key", func() error { _, err := reg.CreateSTT(config.ProviderEntry{Name: "deepgram"}); return err }, true},
		{"elevenlabs without key", func() error { _, err := reg.CreateTTS(config.ProviderEntry{Name: "elevenlabs"}); return err }, true},
		{"coqui without url", func() error { _, err := reg.CreateTTS(config.ProviderEntry{Name: "coqui"}); return err }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.create()
			if err == nil {
				t.Fatal("expected error")
			}
			if got := config.IsUnconfigured(err); got != tt.want {
				t.Errorf("IsUnconfigured = %v, want %v (err %v)", got, tt.want, err)
			}
		})
	}
}

func TestDefaultRegistry_Configured(t *testing.T) {
	reg := config.DefaultRegistry()

	p, err := reg.CreateLLM(config.ProviderEntry{Name: "gemini", ID: "gemini-safe", APIKey: "k", Options: map[string]any{"safety_threshold": "BLOCK_NONE"}})
	if err != nil {
		t.Fatalf("CreateLLM(gemini): %v", err)
	}
	if p.Name() != "gemini-safe" {
		t.Errorf("Name: got %q", p.Name())
	}
	if _, err := reg.CreateSTT(config.ProviderEntry{Name: "whisper", BaseURL: "http://localhost:8080"}); err != nil {
		t.Errorf("CreateSTT(whisper): %v", err)
	}
	if _, err := reg.CreateTTS(config.ProviderEntry{Name: "coqui", BaseURL: "http://localhost:5002"}); err != nil {
		t.Errorf("CreateTTS(coqui): %v", err)
	}
	if _, err := reg.CreateLLM(config.ProviderEntry{Name: "ollama"}); err == nil || config.IsUnconfigured(err) {
		t.Errorf("ollama without model: want plain error, got %v", err)
	}
}

func TestDefaultRegistry_AnyLLMSingleAttemptWithTimeout(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) > 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)

	p, err := config.DefaultRegistry().CreateLLM(config.ProviderEntry{
		Name:    "llamacpp",
		BaseURL: srv.URL + "/v1",
		Model:   "local",
		Timeout: 100 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("CreateLLM(llamacpp): %v", err)
	}

	start := time.Now()
	res := p.Ask(context.Background(), llm.Request{Prompt: "q"})
	if res.Kind != llm.TransportFailure {
		t.Fatalf("kind: got %s, want transport_failure", res.Kind)
	}
	if calls.Load() != 1 {
		t.Errorf("expected exactly one request, got %d", calls.Load())
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Ask took %s, entry timeout not applied", elapsed)
	}
}
