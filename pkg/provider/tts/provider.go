// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service (e.g., ElevenLabs or a local
// Coqui server) and turns one complete answer into an encoded audio file.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"

	"github.com/MrWong99/twinvoice/pkg/types"
)

// Request describes a single synthesis call.
type Request struct {
	// Text is the answer to speak.
	Text string

	// Language is a BCP-47 language tag such as "en". Empty means the provider
	// default.
	Language string

	// VoiceID selects a provider-specific voice. Empty means the provider
	// default.
	VoiceID string
}

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize converts req.Text into speech. The returned audio carries its
	// container format.
	//
	// Returns an error if the service cannot be reached, rejects the request or
	// returns an empty payload.
	Synthesize(ctx context.Context, req Request) (types.SpeechAudio, error)
}
