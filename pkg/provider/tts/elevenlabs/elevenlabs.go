// Package elevenlabs provides an ElevenLabs-backed TTS provider using the
// ElevenLabs REST text-to-speech endpoint. It implements the tts.Provider
// interface.
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MrWong99/twinvoice/pkg/provider/tts"
	"github.com/MrWong99/twinvoice/pkg/types"
)

const (
	defaultBaseURL   = "https://api.elevenlabs.io"
	defaultModel     = "eleven_flash_v2_5"
	defaultOutputFmt = "mp3_44100_128"
	// defaultVoice is the stock "Rachel" voice.
	defaultVoice   = "21m00Tcm4TlvDq8ikWAM"
	defaultTimeout = 30 * time.Second
)

var _ tts.Provider = (*Provider)(nil)

// Option is a functional option for configuring the ElevenLabs Provider.
type Option func(*Provider)

// WithModel sets the ElevenLabs model ID (e.g., "eleven_flash_v2_5").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithVoice sets the default voice ID.
func WithVoice(voiceID string) Option {
	return func(p *Provider) {
		p.voice = voiceID
	}
}

// WithBaseURL overrides the API base URL.
func WithBaseURL(u string) Option {
	return func(p *Provider) {
		p.baseURL = strings.TrimRight(u, "/")
	}
}

// WithTimeout sets the HTTP client timeout. Default: 30s.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.httpClient.Timeout = d
	}
}

// Provider implements tts.Provider backed by the ElevenLabs API.
type Provider struct {
	apiKey     string
	model      string
	voice      string
	baseURL    string
	httpClient *http.Client
}

// New creates a new ElevenLabs Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		model:      defaultModel,
		voice:      defaultVoice,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// synthesisRequest is the JSON body of POST /v1/text-to-speech/{voice}.
type synthesisRequest struct {
	Text         string `json:"text"`
	ModelID      string `json:"model_id"`
	LanguageCode string `json:"language_code,omitempty"`
}

// Synthesize implements tts.Provider. The result is MP3.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (types.SpeechAudio, error) {
	voice := req.VoiceID
	if voice == "" {
		voice = p.voice
	}
	body, err := json.Marshal(synthesisRequest{
		Text:         req.Text,
		ModelID:      p.model,
		LanguageCode: shortLanguage(req.Language),
	})
	if err != nil {
		return types.SpeechAudio{}, fmt.Errorf("elevenlabs: encode request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1/text-to-speech/%s?output_format=%s",
		p.baseURL, url.PathEscape(voice), defaultOutputFmt)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return types.SpeechAudio{}, fmt.Errorf("elevenlabs: create request: %w", err)
	}
	httpReq.Header.Set("xi-api-key", p.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "audio/mpeg")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return types.SpeechAudio{}, fmt.Errorf("elevenlabs: synthesize: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return types.SpeechAudio{}, fmt.Errorf("elevenlabs: read audio: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return types.SpeechAudio{}, fmt.Errorf("elevenlabs: synthesize returned status %d: %s",
			resp.StatusCode, bytes.TrimSpace(data))
	}
	if len(data) == 0 {
		return types.SpeechAudio{}, errors.New("elevenlabs: empty audio response")
	}
	return types.SpeechAudio{Data: data, Format: "mp3"}, nil
}

// shortLanguage reduces a BCP-47 tag to the ISO 639-1 code ElevenLabs expects.
func shortLanguage(tag string) string {
	if i := strings.IndexAny(tag, "-_"); i > 0 {
		return strings.ToLower(tag[:i])
	}
	return strings.ToLower(tag)
}
