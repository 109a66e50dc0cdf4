package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/MrWong99/twinvoice/internal/resilience"
	"github.com/MrWong99/twinvoice/pkg/provider/llm"
	"github.com/MrWong99/twinvoice/pkg/provider/stt"
	"github.com/MrWong99/twinvoice/pkg/provider/tts"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// ErrMissingCredential is returned by factories when an entry lacks the
// api_key or base_url its backend needs.
var ErrMissingCredential = errors.New("config: missing credential")

// IsUnconfigured reports whether err means the provider has no usable
// credential. Such providers are skipped rather than treated as failing.
func IsUnconfigured(err error) bool {
	return errors.Is(err, ErrMissingCredential) || errors.Is(err, llm.ErrNoCredentials)
}

// Registry maps provider names to their constructor functions for each
// provider kind. It is safe for concurrent use.
type Registry struct {
	mu  sync.RWMutex
	llm map[string]func(ProviderEntry) (llm.Provider, error)
	stt map[string]func(ProviderEntry) (stt.Provider, error)
	tts map[string]func(ProviderEntry) (tts.Provider, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		llm: make(map[string]func(ProviderEntry) (llm.Provider, error)),
		stt: make(map[string]func(ProviderEntry) (stt.Provider, error)),
		tts: make(map[string]func(ProviderEntry) (tts.Provider, error)),
	}
}

// RegisterLLM registers a completion provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterLLM(name string, factory func(ProviderEntry) (llm.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm[name] = factory
}

// RegisterSTT registers an STT provider factory under name.
func (r *Registry) RegisterSTT(name string, factory func(ProviderEntry) (stt.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stt[name] = factory
}

// RegisterTTS registers a TTS provider factory under name.
func (r *Registry) RegisterTTS(name string, factory func(ProviderEntry) (tts.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tts[name] = factory
}

// CreateLLM instantiates a completion provider using the factory registered
// under entry.Name. The provider reports entry.Key() as its name.
// Returns [ErrProviderNotRegistered] if no factory has been registered for that name.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	r.mu.RLock()
	factory, ok := r.llm[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: llm/%q", ErrProviderNotRegistered, entry.Name)
	}
	p, err := factory(entry)
	if err != nil {
		return nil, err
	}
	if p.Name() != entry.Key() {
		p = renamed{Provider: p, id: entry.Key()}
	}
	return p, nil
}

// CreateSTT instantiates an STT provider using the factory registered under entry.Name.
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Provider, error) {
	r.mu.RLock()
	factory, ok := r.stt[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: stt/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateTTS instantiates a TTS provider using the factory registered under entry.Name.
func (r *Registry) CreateTTS(entry ProviderEntry) (tts.Provider, error) {
	r.mu.RLock()
	factory, ok := r.tts[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: tts/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// ---- assembly ----

// BuildRouter registers every entry with router in list order. Entries whose
// factory reports a missing credential are registered as unconfigured so
// they keep their place in the priority order. Any other factory failure is
// returned; all failures are reported together.
func (r *Registry) BuildRouter(entries []ProviderEntry, router *resilience.Router) error {
	var errs []error
	for _, e := range entries {
		p, err := r.CreateLLM(e)
		switch {
		case err == nil:
			router.Register(p)
		case IsUnconfigured(err):
			slog.Info("completion provider not configured", "provider", e.Key(), "reason", err)
			router.RegisterUnconfigured(e.Key(), "missing credential")
		default:
			errs = append(errs, fmt.Errorf("providers.llm %q: %w", e.Key(), err))
		}
	}
	return errors.Join(errs...)
}

// BuildSTT adds every usable entry to group in list order. Entries without a
// credential are skipped.
func (r *Registry) BuildSTT(entries []ProviderEntry, group *resilience.STTFallback) error {
	var errs []error
	for _, e := range entries {
		p, err := r.CreateSTT(e)
		switch {
		case err == nil:
			group.Add(e.Key(), p)
		case IsUnconfigured(err):
			slog.Info("transcription provider not configured", "provider", e.Key(), "reason", err)
		default:
			errs = append(errs, fmt.Errorf("providers.stt %q: %w", e.Key(), err))
		}
	}
	return errors.Join(errs...)
}

// BuildTTS adds every usable entry to group in list order. Entries without a
// credential are skipped.
func (r *Registry) BuildTTS(entries []ProviderEntry, group *resilience.TTSFallback) error {
	var errs []error
	for _, e := range entries {
		p, err := r.CreateTTS(e)
		switch {
		case err == nil:
			group.Add(e.Key(), p)
		case IsUnconfigured(err):
			slog.Info("speech provider not configured", "provider", e.Key(), "reason", err)
		default:
			errs = append(errs, fmt.Errorf("providers.tts %q: %w", e.Key(), err))
		}
	}
	return errors.Join(errs...)
}

// renamed reports a configured ID in place of the adapter's own name.
type renamed struct {
	llm.Provider
	id string
}

func (p renamed) Name() string { return p.id }

func (p renamed) Ask(ctx context.Context, req llm.Request) llm.Result {
	res := p.Provider.Ask(ctx, req)
	res.Provider = p.id
	return res
}
