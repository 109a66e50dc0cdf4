package config

import (
	"fmt"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/twinvoice/pkg/provider/llm"
	"github.com/MrWong99/twinvoice/pkg/provider/llm/anthropic"
	"github.com/MrWong99/twinvoice/pkg/provider/llm/anyllm"
	"github.com/MrWong99/twinvoice/pkg/provider/llm/gemini"
	"github.com/MrWong99/twinvoice/pkg/provider/llm/openai"
	"github.com/MrWong99/twinvoice/pkg/provider/stt"
	"github.com/MrWong99/twinvoice/pkg/provider/stt/deepgram"
	"github.com/MrWong99/twinvoice/pkg/provider/stt/whisper"
	"github.com/MrWong99/twinvoice/pkg/provider/tts"
	"github.com/MrWong99/twinvoice/pkg/provider/tts/coqui"
	"github.com/MrWong99/twinvoice/pkg/provider/tts/elevenlabs"
)

// DefaultRegistry returns a [Registry] with every built-in adapter
// registered under the names in [ValidProviderNames].
func DefaultRegistry() *Registry {
	r := NewRegistry()

	r.RegisterLLM("gemini", newGemini)
	r.RegisterLLM("openai", newOpenAI)
	r.RegisterLLM("anthropic", newAnthropic)
	for _, name := range []string{"ollama", "groq", "mistral", "deepseek", "llamacpp", "llamafile"} {
		r.RegisterLLM(name, newAnyLLM)
	}

	r.RegisterSTT("whisper", newWhisper)
	r.RegisterSTT("deepgram", newDeepgram)

	r.RegisterTTS("elevenlabs", newElevenLabs)
	r.RegisterTTS("coqui", newCoqui)
	return r
}

// ---- completion ----

func newGemini(e ProviderEntry) (llm.Provider, error) {
	opts := []gemini.Option{gemini.WithName(e.Key())}
	if e.BaseURL != "" {
		opts = append(opts, gemini.WithBaseURL(e.BaseURL))
	}
	if e.Timeout > 0 {
		opts = append(opts, gemini.WithTimeout(e.Timeout))
	}
	if s := e.Option("safety_threshold"); s != "" {
		opts = append(opts, gemini.WithSafetyThreshold(s))
	}
	return gemini.New(e.APIKey, e.Model, opts...)
}

func newOpenAI(e ProviderEntry) (llm.Provider, error) {
	opts := []openai.Option{openai.WithName(e.Key())}
	if e.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(e.BaseURL))
	}
	if e.Timeout > 0 {
		opts = append(opts, openai.WithTimeout(e.Timeout))
	}
	if org := e.Option("organization"); org != "" {
		opts = append(opts, openai.WithOrganization(org))
	}
	return openai.New(e.APIKey, e.Model, opts...)
}

func newAnthropic(e ProviderEntry) (llm.Provider, error) {
	opts := []anthropic.Option{anthropic.WithName(e.Key())}
	if e.BaseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(e.BaseURL))
	}
	if e.Timeout > 0 {
		opts = append(opts, anthropic.WithTimeout(e.Timeout))
	}
	return anthropic.New(e.APIKey, e.Model, opts...)
}

// newAnyLLM covers the backends served through any-llm-go. Hosted backends
// without an api_key are unconfigured; the library's own environment lookup
// is not used so that configuration stays the single source of credentials.
func newAnyLLM(e ProviderEntry) (llm.Provider, error) {
	if anyllm.RequiresAPIKey(e.Name) && e.APIKey == "" {
		return nil, fmt.Errorf("%s: %w", e.Name, llm.ErrNoCredentials)
	}
	if e.Model == "" {
		return nil, fmt.Errorf("%s: model is required", e.Name)
	}
	var opts []anyllmlib.Option
	if e.APIKey != "" {
		opts = append(opts, anyllmlib.WithAPIKey(e.APIKey))
	}
	if e.BaseURL != "" {
		opts = append(opts, anyllmlib.WithBaseURL(e.BaseURL))
	}
	if e.Timeout > 0 {
		opts = append(opts, anyllmlib.WithTimeout(e.Timeout))
	}
	return anyllm.New(e.Name, e.Model, opts...)
}

// ---- transcription ----

func newWhisper(e ProviderEntry) (stt.Provider, error) {
	if e.BaseURL == "" {
		return nil, fmt.Errorf("whisper: base_url: %w", ErrMissingCredential)
	}
	var opts []whisper.Option
	if e.Model != "" {
		opts = append(opts, whisper.WithModel(e.Model))
	}
	if lang := e.Option("language"); lang != "" {
		opts = append(opts, whisper.WithLanguage(lang))
	}
	if e.Timeout > 0 {
		opts = append(opts, whisper.WithTimeout(e.Timeout))
	}
	return whisper.New(e.BaseURL, opts...)
}

func newDeepgram(e ProviderEntry) (stt.Provider, error) {
	if e.APIKey == "" {
		return nil, fmt.Errorf("deepgram: api_key: %w", ErrMissingCredential)
	}
	var opts []deepgram.Option
	if e.Model != "" {
		opts = append(opts, deepgram.WithModel(e.Model))
	}
	if lang := e.Option("language"); lang != "" {
		opts = append(opts, deepgram.WithLanguage(lang))
	}
	if e.BaseURL != "" {
		opts = append(opts, deepgram.WithEndpoint(e.BaseURL))
	}
	return deepgram.New(e.APIKey, opts...)
}

// ---- speech ----

func newElevenLabs(e ProviderEntry) (tts.Provider, error) {
	if e.APIKey == "" {
		return nil, fmt.Errorf("elevenlabs: api_key: %w", ErrMissingCredential)
	}
	var opts []elevenlabs.Option
	if e.Model != "" {
		opts = append(opts, elevenlabs.WithModel(e.Model))
	}
	if v := e.Option("voice_id"); v != "" {
		opts = append(opts, elevenlabs.WithVoice(v))
	}
	if e.BaseURL != "" {
		opts = append(opts, elevenlabs.WithBaseURL(e.BaseURL))
	}
	if e.Timeout > 0 {
		opts = append(opts, elevenlabs.WithTimeout(e.Timeout))
	}
	return elevenlabs.New(e.APIKey, opts...)
}

func newCoqui(e ProviderEntry) (tts.Provider, error) {
	if e.BaseURL == "" {
		return nil, fmt.Errorf("coqui: base_url: %w", ErrMissingCredential)
	}
	var opts []coqui.Option
	if lang := e.Option("language"); lang != "" {
		opts = append(opts, coqui.WithLanguage(lang))
	}
	if s := e.Option("speaker_id"); s != "" {
		opts = append(opts, coqui.WithSpeaker(s))
	}
	if e.Timeout > 0 {
		opts = append(opts, coqui.WithTimeout(e.Timeout))
	}
	return coqui.New(e.BaseURL, opts...)
}
