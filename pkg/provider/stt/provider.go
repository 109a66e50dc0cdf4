// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider takes one complete, already-normalised utterance and
// returns the recognised text. Providers do not validate the result beyond
// the transport level; length and content checks belong to the caller.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"

	"github.com/MrWong99/twinvoice/pkg/types"
)

// ErrNoSpeech is returned when the backend answered but produced no
// hypothesis for the audio.
var ErrNoSpeech = errors.New("stt: no speech recognised")

// ErrUnavailable is returned when the backend could not be reached, timed out
// or returned a transport-level failure. Callers may retry against another
// backend.
var ErrUnavailable = errors.New("stt: service unavailable")

// Config carries per-request recognition hints.
type Config struct {
	// Language is a BCP-47 language code such as "en" or "en-IN". Empty means
	// the provider default.
	Language string
}

// Provider is the abstraction over any STT backend.
type Provider interface {
	// Transcribe recognises the speech in w. w is mono 16-bit PCM.
	//
	// Returns ErrNoSpeech (wrapped) when the service produced no text and
	// ErrUnavailable (wrapped) on transport failures.
	Transcribe(ctx context.Context, w types.Waveform, cfg Config) (string, error)
}
