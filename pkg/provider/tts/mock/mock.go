// Package mock provides a test double for the tts.Provider interface.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/twinvoice/pkg/provider/tts"
	"github.com/MrWong99/twinvoice/pkg/types"
)

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// Audio is returned by Synthesize when Err is nil.
	Audio types.SpeechAudio

	// Err, if non-nil, is returned by Synthesize.
	Err error

	// Requests records every request passed to Synthesize in order.
	Requests []tts.Request
}

var _ tts.Provider = (*Provider)(nil)

// Synthesize records the call and returns the configured response.
func (p *Provider) Synthesize(_ context.Context, req tts.Request) (types.SpeechAudio, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Requests = append(p.Requests, req)
	if p.Err != nil {
		return types.SpeechAudio{}, p.Err
	}
	return p.Audio, nil
}

// CallCount returns the number of Synthesize calls made so far.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Requests)
}
