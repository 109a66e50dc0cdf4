package resilience

import (
	"context"
	"errors"

	"github.com/MrWong99/twinvoice/pkg/provider/stt"
	"github.com/MrWong99/twinvoice/pkg/types"
)

// STTFallback implements [stt.Provider] with automatic failover across
// several STT backends. Only [stt.ErrUnavailable]-style failures move on to
// the next backend; a backend that answered "no speech" ends the chain.
type STTFallback struct {
	group *Group[stt.Provider]
}

var _ stt.Provider = (*STTFallback)(nil)

// NewSTTFallback creates an empty [STTFallback].
func NewSTTFallback(breaker BreakerConfig) *STTFallback {
	return &STTFallback{
		group: NewGroup[stt.Provider](GroupConfig{
			Breaker: breaker,
			Terminal: func(err error) bool {
				return errors.Is(err, stt.ErrNoSpeech)
			},
		}),
	}
}

// Add registers a backend. Backends are tried in the order they are added.
func (f *STTFallback) Add(name string, p stt.Provider) { f.group.Add(name, p) }

// Len returns the number of registered backends.
func (f *STTFallback) Len() int { return f.group.Len() }

// Transcribe tries each backend in order. When every backend is down the
// returned error wraps both [ErrAllFailed] and [stt.ErrUnavailable].
func (f *STTFallback) Transcribe(ctx context.Context, w types.Waveform, cfg stt.Config) (string, error) {
	text, _, err := Do(f.group, func(p stt.Provider) (string, error) {
		return p.Transcribe(ctx, w, cfg)
	})
	if err != nil && !errors.Is(err, stt.ErrNoSpeech) && !errors.Is(err, stt.ErrUnavailable) {
		err = errors.Join(stt.ErrUnavailable, err)
	}
	return text, err
}
