// Package coqui provides a TTS provider backed by a self-hosted Coqui TTS
// server (ghcr.io/coqui-ai/tts-cpu). Synthesis is performed via GET /api/tts
// with URL query parameters and returns a WAV file.
//
// Usage:
//
//	p, err := coqui.New("http://localhost:5002", coqui.WithLanguage("en"))
//	speech, err := p.Synthesize(ctx, tts.Request{Text: "Hello"})
package coqui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MrWong99/twinvoice/pkg/audio"
	"github.com/MrWong99/twinvoice/pkg/provider/tts"
	"github.com/MrWong99/twinvoice/pkg/types"
)

const (
	apiTTSEndpoint = "/api/tts"
	defaultTimeout = 60 * time.Second
)

var _ tts.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Coqui Provider.
type Option func(*Provider)

// WithLanguage sets the language_id sent to multi-lingual models. Empty means
// the server default. A per-request language overrides it.
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		p.language = lang
	}
}

// WithSpeaker sets the default speaker_id for multi-speaker models.
func WithSpeaker(id string) Option {
	return func(p *Provider) {
		p.speaker = id
	}
}

// WithTimeout sets the HTTP client timeout. Default: 60s; CPU synthesis is slow.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.httpClient.Timeout = d
	}
}

// Provider implements tts.Provider for a Coqui TTS server.
type Provider struct {
	serverURL  string
	language   string
	speaker    string
	httpClient *http.Client
}

// New creates a Coqui provider for the server at serverURL.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("coqui: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:  strings.TrimRight(serverURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Synthesize implements tts.Provider. The result is WAV.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (types.SpeechAudio, error) {
	params := url.Values{}
	params.Set("text", req.Text)
	if speaker := firstNonEmpty(req.VoiceID, p.speaker); speaker != "" {
		params.Set("speaker_id", speaker)
	}
	if lang := firstNonEmpty(req.Language, p.language); lang != "" {
		params.Set("language_id", lang)
	}

	reqURL := p.serverURL + apiTTSEndpoint + "?" + params.Encode()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return types.SpeechAudio{}, fmt.Errorf("coqui: create tts request: %w", err)
	}
	httpReq.Header.Set("Accept", "audio/wav")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return types.SpeechAudio{}, fmt.Errorf("coqui: GET %s: %w", apiTTSEndpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return types.SpeechAudio{}, fmt.Errorf("coqui: GET %s returned status %d", apiTTSEndpoint, resp.StatusCode)
	}

	wav, err := io.ReadAll(resp.Body)
	if err != nil {
		return types.SpeechAudio{}, fmt.Errorf("coqui: read WAV response: %w", err)
	}
	if _, _, err := audio.DecodeWAV(wav); err != nil {
		return types.SpeechAudio{}, fmt.Errorf("coqui: invalid WAV response: %w", err)
	}
	return types.SpeechAudio{Data: wav, Format: "wav"}, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
