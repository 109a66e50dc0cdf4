package resilience

import (
	"context"

	"github.com/MrWong99/twinvoice/pkg/provider/tts"
	"github.com/MrWong99/twinvoice/pkg/types"
)

// TTSFallback implements [tts.Provider] with automatic failover across
// several TTS backends. Each backend has its own circuit breaker.
type TTSFallback struct {
	group *Group[tts.Provider]
}

var _ tts.Provider = (*TTSFallback)(nil)

// NewTTSFallback creates an empty [TTSFallback].
func NewTTSFallback(breaker BreakerConfig) *TTSFallback {
	return &TTSFallback{group: NewGroup[tts.Provider](GroupConfig{Breaker: breaker})}
}

// Add registers a backend. Backends are tried in the order they are added.
func (f *TTSFallback) Add(name string, p tts.Provider) { f.group.Add(name, p) }

// Len returns the number of registered backends.
func (f *TTSFallback) Len() int { return f.group.Len() }

// Synthesize tries each backend in order and returns the first audio produced.
func (f *TTSFallback) Synthesize(ctx context.Context, req tts.Request) (types.SpeechAudio, error) {
	audio, _, err := Do(f.group, func(p tts.Provider) (types.SpeechAudio, error) {
		return p.Synthesize(ctx, req)
	})
	return audio, err
}
