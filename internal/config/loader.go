package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/twinvoice/internal/fallback"
	"github.com/MrWong99/twinvoice/internal/persona"
	"github.com/MrWong99/twinvoice/pkg/types"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm": {"gemini", "openai", "anthropic", "ollama", "groq", "mistral", "deepseek", "llamacpp", "llamafile"},
	"stt": {"whisper", "deepgram"},
	"tts": {"elevenlabs", "coqui"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// A relative persona_file is resolved against the directory of path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	if cfg.PersonaFile != "" && !filepath.IsAbs(cfg.PersonaFile) {
		cfg.PersonaFile = filepath.Join(filepath.Dir(path), cfg.PersonaFile)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, expands environment references
// in provider credentials and validates the result. An empty document yields
// the zero [Config], which is valid.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ExpandEnv(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ExpandEnv replaces $NAME and ${NAME} references in the api_key and base_url
// of every provider entry with the value of the environment variable.
// Undefined variables expand to "", which leaves the provider unconfigured.
func ExpandEnv(cfg *Config) {
	for _, list := range [][]ProviderEntry{cfg.Providers.LLM, cfg.Providers.STT, cfg.Providers.TTS} {
		for i := range list {
			list[i].APIKey = os.ExpandEnv(list[i].APIKey)
			list[i].BaseURL = os.ExpandEnv(list[i].BaseURL)
		}
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.LogFormat != "" && !cfg.Server.LogFormat.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_format %q is invalid; valid values: text, json", cfg.Server.LogFormat))
	}

	// Audio
	if cfg.Audio.SampleRate != 0 && (cfg.Audio.SampleRate < 8000 || cfg.Audio.SampleRate > 48000) {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d is out of range [8000, 48000]", cfg.Audio.SampleRate))
	}
	if cfg.Audio.Decoder != "" && !cfg.Audio.Decoder.IsValid() {
		errs = append(errs, fmt.Errorf("audio.decoder %q is invalid; valid values: auto, ffmpeg, wav", cfg.Audio.Decoder))
	}

	// Transcription
	if cfg.Transcription.MinChars < 0 {
		errs = append(errs, fmt.Errorf("transcription.min_chars %d must not be negative", cfg.Transcription.MinChars))
	}
	if cfg.Transcription.SilenceRMS > math.MaxInt16 {
		errs = append(errs, fmt.Errorf("transcription.silence_rms %.1f exceeds the 16-bit range", cfg.Transcription.SilenceRMS))
	}

	// Providers
	errs = append(errs, validateProviders("llm", cfg.Providers.LLM)...)
	errs = append(errs, validateProviders("stt", cfg.Providers.STT)...)
	errs = append(errs, validateProviders("tts", cfg.Providers.TTS)...)
	if len(cfg.Providers.LLM) == 0 {
		slog.Warn("no completion provider configured; every question will get a rule-based answer")
	}
	if len(cfg.Providers.STT) == 0 {
		slog.Warn("no transcription provider configured; recorded questions cannot be understood")
	}

	// Speech
	if cfg.Speech.MaxChars < 0 {
		errs = append(errs, fmt.Errorf("speech.max_chars %d must not be negative", cfg.Speech.MaxChars))
	}

	// Session
	if cfg.Session.MaxTurns < 0 {
		errs = append(errs, fmt.Errorf("session.max_turns %d must not be negative", cfg.Session.MaxTurns))
	}
	if cfg.Session.MaxTurns > 0 && cfg.Session.HistoryWindow > cfg.Session.MaxTurns {
		errs = append(errs, fmt.Errorf("session.history_window %d exceeds session.max_turns %d", cfg.Session.HistoryWindow, cfg.Session.MaxTurns))
	}

	// Answer
	if cfg.Answer.MaxSentences < 0 {
		errs = append(errs, fmt.Errorf("answer.max_sentences %d must not be negative", cfg.Answer.MaxSentences))
	}
	if cfg.Answer.MaxOutputTokens < 0 {
		errs = append(errs, fmt.Errorf("answer.max_output_tokens %d must not be negative", cfg.Answer.MaxOutputTokens))
	}
	if cfg.Answer.Temperature < 0 || cfg.Answer.Temperature > 2 {
		errs = append(errs, fmt.Errorf("answer.temperature %.2f is out of range [0, 2]", cfg.Answer.Temperature))
	}

	if cfg.Timeout < 0 {
		errs = append(errs, fmt.Errorf("timeout %s must not be negative", cfg.Timeout))
	}

	// Persona
	if cfg.Persona != nil && cfg.PersonaFile != "" {
		errs = append(errs, errors.New("persona and persona_file are mutually exclusive"))
	}
	if cfg.Persona != nil {
		if err := persona.Validate(*cfg.Persona); err != nil {
			errs = append(errs, err)
		}
	}

	// Fallback
	if len(cfg.Fallback.Rules) > 0 {
		if err := fallback.ValidateRules(cfg.Fallback.Rules); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// Profile returns the persona configured in cfg: the inline persona, the
// profile loaded from persona_file, or [persona.Default] when neither is set.
func (cfg *Config) Profile() (types.PersonaProfile, error) {
	switch {
	case cfg.Persona != nil:
		return *cfg.Persona, nil
	case cfg.PersonaFile != "":
		return persona.Load(cfg.PersonaFile)
	default:
		return persona.Default(), nil
	}
}

// FallbackRules returns the configured rule table, or [fallback.DefaultRules].
func (cfg *Config) FallbackRules() []fallback.Rule {
	if len(cfg.Fallback.Rules) > 0 {
		return cfg.Fallback.Rules
	}
	return fallback.DefaultRules()
}

// validateProviders checks one ordered provider list. Every entry needs a
// name and a key that is unique within the list.
func validateProviders(kind string, entries []ProviderEntry) []error {
	var errs []error
	seen := make(map[string]int, len(entries))
	for i, e := range entries {
		prefix := fmt.Sprintf("providers.%s[%d]", kind, i)
		if e.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
			continue
		}
		validateProviderName(kind, e.Name)
		if prev, ok := seen[e.Key()]; ok {
			errs = append(errs, fmt.Errorf("%s: provider %q is a duplicate of providers.%s[%d]; set id to register it twice", prefix, e.Key(), kind, prev))
		}
		seen[e.Key()] = i
		if e.Timeout < 0 {
			errs = append(errs, fmt.Errorf("%s.timeout %s must not be negative", prefix, e.Timeout))
		}
	}
	return errs
}

// validateProviderName logs a warning if name is not found in the
// [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	known, ok := ValidProviderNames[kind]
	if !ok || slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or a provider registered at runtime",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
