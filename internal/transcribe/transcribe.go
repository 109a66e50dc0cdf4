// Package transcribe turns a normalised waveform into an accepted question.
//
// The [Transcriber] wraps an [stt.Provider] and adds the acceptance checks
// that the speech service itself does not make: silent input is rejected
// before any network call, and recognised text that is too short to be a
// question is rejected after it.
package transcribe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/MrWong99/twinvoice/pkg/audio"
	"github.com/MrWong99/twinvoice/pkg/provider/stt"
	"github.com/MrWong99/twinvoice/pkg/types"
)

var (
	// ErrUnintelligible is returned when the waveform holds no recognisable
	// speech, either because it is silent or because the service produced no
	// hypothesis.
	ErrUnintelligible = errors.New("transcribe: no intelligible speech")

	// ErrTooShort is returned when the recognised text has fewer than
	// MinChars non-whitespace characters.
	ErrTooShort = errors.New("transcribe: question too short")

	// ErrServiceUnavailable is returned when no speech service could be
	// reached.
	ErrServiceUnavailable = errors.New("transcribe: speech service unavailable")
)

const (
	// DefaultMinChars is the shortest accepted question in non-whitespace
	// characters.
	DefaultMinChars = 4

	// DefaultSilenceRMS is the RMS level of 16-bit PCM below which a waveform
	// is treated as silence.
	DefaultSilenceRMS = 300.0
)

// Option is a functional option for [New].
type Option func(*Transcriber)

// WithMinChars sets the minimum accepted question length. Default: 4.
func WithMinChars(n int) Option {
	return func(t *Transcriber) { t.minChars = n }
}

// WithSilenceRMS sets the silence threshold. A negative value disables the
// silence check. Default: 300.
func WithSilenceRMS(rms float64) Option {
	return func(t *Transcriber) { t.silenceRMS = rms }
}

// WithLanguage sets the recognition language passed to the provider.
func WithLanguage(lang string) Option {
	return func(t *Transcriber) { t.language = lang }
}

// Transcriber validates recognised speech. It is safe for concurrent use.
type Transcriber struct {
	provider   stt.Provider
	minChars   int
	silenceRMS float64
	language   string
}

// New creates a [Transcriber] backed by p.
func New(p stt.Provider, opts ...Option) (*Transcriber, error) {
	if p == nil {
		return nil, errors.New("transcribe: provider must not be nil")
	}
	t := &Transcriber{
		provider:   p,
		minChars:   DefaultMinChars,
		silenceRMS: DefaultSilenceRMS,
	}
	for _, o := range opts {
		o(t)
	}
	return t, nil
}

// Transcribe recognises the question in w.
//
// It returns [ErrUnintelligible] for silent or empty audio without calling
// the provider, [ErrUnintelligible] when the provider hears nothing,
// [ErrServiceUnavailable] when the provider cannot be reached and
// [ErrTooShort] for text shorter than the configured minimum.
func (t *Transcriber) Transcribe(ctx context.Context, w types.Waveform) (types.Transcript, error) {
	if len(w.PCM) < 2 {
		return types.Transcript{}, fmt.Errorf("%w: empty audio", ErrUnintelligible)
	}
	if t.silenceRMS >= 0 {
		if rms := audio.RMS(w.PCM); rms < t.silenceRMS {
			return types.Transcript{}, fmt.Errorf("%w: silent audio (rms %.0f)", ErrUnintelligible, rms)
		}
	}

	text, err := t.provider.Transcribe(ctx, w, stt.Config{Language: t.language})
	switch {
	case errors.Is(err, stt.ErrNoSpeech):
		return types.Transcript{}, fmt.Errorf("%w: %w", ErrUnintelligible, err)
	case err != nil:
		return types.Transcript{}, fmt.Errorf("%w: %w", ErrServiceUnavailable, err)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return types.Transcript{}, ErrUnintelligible
	}
	if n := visibleChars(text); n < t.minChars {
		return types.Transcript{}, fmt.Errorf("%w: %q has %d characters", ErrTooShort, text, n)
	}
	return types.Transcript{Text: text}, nil
}

func visibleChars(s string) int {
	n := 0
	for _, r := range s {
		if !unicode.IsSpace(r) {
			n++
		}
	}
	return n
}
