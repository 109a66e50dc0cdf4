// Package config defines the configuration schema for twinvoice and the
// provider registry used to turn configured provider entries into adapters.
//
// A configuration file is YAML. Provider lists are ordered: the position of an
// entry is its priority. Credential fields may reference environment variables
// as ${NAME}; references are expanded at load time.
package config

import (
	"time"

	"github.com/MrWong99/twinvoice/internal/fallback"
	"github.com/MrWong99/twinvoice/pkg/types"
)

// LogLevel controls the verbosity of the application logger.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// LogFormat selects the slog handler.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// IsValid reports whether f is a recognised log format.
func (f LogFormat) IsValid() bool {
	return f == LogFormatText || f == LogFormatJSON
}

// Decoder selects how non-WAV audio is decoded.
type Decoder string

const (
	// DecoderAuto uses the built-in WAV reader for WAV input and ffmpeg for
	// everything else.
	DecoderAuto Decoder = "auto"

	// DecoderFFmpeg sends every clip through ffmpeg.
	DecoderFFmpeg Decoder = "ffmpeg"

	// DecoderWAV accepts WAV input only.
	DecoderWAV Decoder = "wav"
)

// IsValid reports whether d is a recognised decoder.
func (d Decoder) IsValid() bool {
	switch d {
	case DecoderAuto, DecoderFFmpeg, DecoderWAV:
		return true
	}
	return false
}

// Config is the root configuration structure.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Audio         AudioConfig         `yaml:"audio"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Providers     ProvidersConfig     `yaml:"providers"`
	Speech        SpeechConfig        `yaml:"speech"`
	Session       SessionConfig       `yaml:"session"`
	Answer        AnswerConfig        `yaml:"answer"`

	// Timeout bounds every external call. Zero selects the orchestrator default.
	Timeout time.Duration `yaml:"timeout"`

	// Persona is the inline persona profile. Mutually exclusive with PersonaFile.
	Persona *types.PersonaProfile `yaml:"persona"`

	// PersonaFile points to a YAML persona profile. Relative paths are
	// resolved against the directory of the config file.
	PersonaFile string `yaml:"persona_file"`

	Fallback FallbackConfig `yaml:"fallback"`
}

// ServerConfig holds process-level settings.
type ServerConfig struct {
	LogLevel  LogLevel  `yaml:"log_level"`
	LogFormat LogFormat `yaml:"log_format"`

	// MetricsAddr enables the /metrics, /healthz and /readyz endpoints when
	// non-empty, e.g. ":9090".
	MetricsAddr string `yaml:"metrics_addr"`
}

// AudioConfig controls input normalisation.
type AudioConfig struct {
	// SampleRate is the target rate in Hz. Zero selects 16000.
	SampleRate int `yaml:"sample_rate"`

	Decoder Decoder `yaml:"decoder"`

	// FFmpegPath is the ffmpeg binary. Empty resolves "ffmpeg" via $PATH.
	FFmpegPath string `yaml:"ffmpeg_path"`
}

// TranscriptionConfig controls transcript acceptance.
type TranscriptionConfig struct {
	MinChars int `yaml:"min_chars"`

	// SilenceRMS is the level below which a clip counts as silence. Zero
	// keeps the default; a negative value disables the check.
	SilenceRMS float64 `yaml:"silence_rms"`

	Language string `yaml:"language"`
}

// ProvidersConfig lists the adapters per kind in priority order.
type ProvidersConfig struct {
	LLM []ProviderEntry `yaml:"llm"`
	STT []ProviderEntry `yaml:"stt"`
	TTS []ProviderEntry `yaml:"tts"`
}

// ProviderEntry is the configuration for a single provider.
type ProviderEntry struct {
	// Name selects the factory, e.g. "gemini" or "deepgram".
	Name string `yaml:"name"`

	// ID overrides the identifier the provider is registered under. Empty
	// means Name. Use it to configure one backend twice with different models.
	ID string `yaml:"id"`

	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`

	// Timeout overrides the adapter's HTTP timeout.
	Timeout time.Duration `yaml:"timeout"`

	// Options holds provider-specific settings, e.g. safety_threshold for
	// gemini or organization for openai.
	Options map[string]any `yaml:"options"`
}

// Key returns the identifier the provider is registered under.
func (e ProviderEntry) Key() string {
	if e.ID != "" {
		return e.ID
	}
	return e.Name
}

// Option returns the string value of a provider-specific option, or "".
func (e ProviderEntry) Option(key string) string {
	v, ok := e.Options[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// SpeechConfig controls answer synthesis and playback.
type SpeechConfig struct {
	Language string `yaml:"language"`
	VoiceID  string `yaml:"voice_id"`
	MaxChars int    `yaml:"max_chars"`

	// Player is a command used to play synthesised speech, e.g. "ffplay".
	// Empty disables playback unless the command line asks for it.
	Player string `yaml:"player"`
}

// SessionConfig controls the conversation log.
type SessionConfig struct {
	// HistoryWindow is the number of prior turns included in prompts. Zero
	// selects the default; a negative value disables history.
	HistoryWindow int `yaml:"history_window"`

	MaxTurns int `yaml:"max_turns"`
}

// AnswerConfig carries the answer constraints sent to providers.
type AnswerConfig struct {
	MaxSentences    int     `yaml:"max_sentences"`
	MaxOutputTokens int     `yaml:"max_output_tokens"`
	Temperature     float64 `yaml:"temperature"`
}

// FallbackConfig overrides the keyword rules of the rule-based answerer.
type FallbackConfig struct {
	Rules []fallback.Rule `yaml:"rules"`
}
