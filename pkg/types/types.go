// Package types defines the shared data types that flow through the voice
// query pipeline.
//
// Everything in this package is a plain value type. None of the types carry
// behaviour beyond small, pure accessors, so they can be passed freely between
// the audio, transcription, answering and speech stages without coupling those
// stages to one another.
package types

import (
	"strings"
	"time"
)

// AudioClip is a raw capture exactly as it was recorded, before any decoding.
// It is treated as immutable once created.
type AudioClip struct {
	// Data is the encoded byte payload (a WAV file, a WebM/Opus blob, ...).
	Data []byte

	// Encoding is the declared MIME type of Data, e.g. "audio/wav" or
	// "audio/webm". It may be empty, in which case the normaliser infers the
	// codec from the payload itself.
	Encoding string
}

// Waveform is decoded audio in the canonical form expected by speech
// recognition: signed 16-bit little-endian PCM.
//
// A Waveform produced by the audio normaliser always has Channels == 1 and
// SampleRate equal to the configured target rate.
type Waveform struct {
	// PCM holds interleaved 16-bit little-endian samples.
	PCM []byte

	// SampleRate is the number of samples per second per channel.
	SampleRate int

	// Channels is the number of interleaved channels in PCM.
	Channels int
}

// Samples returns the number of sample frames in w.
func (w Waveform) Samples() int {
	if w.Channels <= 0 {
		return 0
	}
	return len(w.PCM) / (2 * w.Channels)
}

// Duration returns the playback length of w.
func (w Waveform) Duration() time.Duration {
	if w.SampleRate <= 0 {
		return 0
	}
	return time.Duration(w.Samples()) * time.Second / time.Duration(w.SampleRate)
}

// Transcript is the accepted text recognised from a Waveform.
// Rejected recognitions are reported as errors by the transcriber, never as a
// Transcript value.
type Transcript struct {
	// Text is the recognised question, trimmed of surrounding whitespace.
	Text string
}

// Fact is one topic-keyed statement in a persona profile.
type Fact struct {
	// Topic is the lookup key, e.g. "skills" or "life_story".
	Topic string `yaml:"topic"`

	// Statement is the first-person sentence the persona would say about Topic.
	Statement string `yaml:"statement"`
}

// PersonaProfile is the identity the answering model impersonates.
// It is loaded once at startup and never mutated afterwards.
type PersonaProfile struct {
	// Name is the persona's display name.
	Name string `yaml:"name"`

	// Institution is where the persona studies or works.
	Institution string `yaml:"institution"`

	// Role is a short self-description, e.g. "final-year computer science student".
	Role string `yaml:"role"`

	// Setting describes the situation the persona is in, e.g. an interview.
	Setting string `yaml:"setting"`

	// Facts are the topic-keyed statements in configuration order.
	Facts []Fact `yaml:"facts"`

	// Rules are additional behavioural instructions appended to every prompt.
	Rules []string `yaml:"rules"`
}

// Statement returns the statement for topic and whether it exists.
// Topic comparison is case-insensitive.
func (p PersonaProfile) Statement(topic string) (string, bool) {
	for _, f := range p.Facts {
		if strings.EqualFold(f.Topic, topic) {
			return f.Statement, true
		}
	}
	return "", false
}

// ConversationTurn is one completed question/answer exchange.
type ConversationTurn struct {
	// Question is the transcribed user question.
	Question string

	// Answer is the text that was spoken back.
	Answer string

	// Provider names the source of Answer: a completion provider ID or
	// "fallback" for a rule-based answer.
	Provider string

	// At is when the turn was recorded.
	At time.Time
}

// SpeechAudio is a synthesised spoken answer.
type SpeechAudio struct {
	// Data is the encoded audio payload.
	Data []byte

	// Format is the container of Data, e.g. "mp3" or "wav".
	Format string
}
