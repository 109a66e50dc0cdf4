package orchestrator

import (
	"time"

	"github.com/MrWong99/twinvoice/pkg/provider/llm"
	"github.com/MrWong99/twinvoice/pkg/types"
)

// Status is the user-visible outcome of one handled clip.
type Status int

const (
	// Answered means a completion provider produced the answer.
	Answered Status = iota

	// FallbackAnswered means the rule-based answerer produced the answer
	// because no provider was configured or every configured one failed.
	FallbackAnswered

	// ReRecord means the recording could not be decoded.
	ReRecord

	// ReAsk means the recording held no usable question.
	ReAsk

	// TranscriptionUnavailable means the speech service could not be reached.
	TranscriptionUnavailable
)

// String returns the snake_case name used in logs and metrics.
func (s Status) String() string {
	switch s {
	case Answered:
		return "answered"
	case FallbackAnswered:
		return "fallback_answered"
	case ReRecord:
		return "re_record"
	case ReAsk:
		return "re_ask"
	case TranscriptionUnavailable:
		return "transcription_unavailable"
	default:
		return "unknown"
	}
}

// User-visible notices for interactions that end before an answer.
const (
	NoticeDecodeError        = "I hit a small technical glitch while reading your recording. Please try recording again!"
	NoticeUnintelligible     = "I couldn't make out any speech. Please try asking again."
	NoticeTooShort           = "Please ask a complete question."
	NoticeServiceUnavailable = "Speech recognition is unavailable right now. Please try again in a moment."
)

// FallbackProvider is the provider name recorded for rule-based answers.
const FallbackProvider = "fallback"

// Attempt records what happened to one provider in priority order.
type Attempt struct {
	// Provider is the provider ID.
	Provider string

	// Skipped is set for providers without credentials. Skipped providers
	// are not failures.
	Skipped bool

	// Reason explains a skip.
	Reason string

	// Kind and Detail classify the outcome of a call that was made.
	Kind   llm.Kind
	Detail string

	// Duration is how long the call took.
	Duration time.Duration
}

// Reply is the outcome of [Orchestrator.Handle]. Exactly one of Notice (for
// ReRecord, ReAsk and TranscriptionUnavailable) or Answer is set.
type Reply struct {
	Status Status

	// Notice is the message to show or say when no answer was produced.
	Notice string

	// Transcript is the recognised question, if transcription succeeded.
	Transcript string

	// Answer is the text answer.
	Answer string

	// Provider names the source of Answer, or [FallbackProvider].
	Provider string

	// Attempts lists every provider considered, in priority order.
	Attempts []Attempt

	// Speech is the synthesised answer. Nil when synthesis was not
	// configured or failed.
	Speech *types.SpeechAudio

	// SpeechErr is the synthesis failure, if any.
	SpeechErr error

	// Played reports whether Speech was handed to the player successfully.
	Played bool
}

// HasAnswer reports whether the reply carries an answer.
func (r *Reply) HasAnswer() bool {
	return r.Status == Answered || r.Status == FallbackAnswered
}

// TextOnly reports whether the reply has an answer but no audio for it.
func (r *Reply) TextOnly() bool {
	return r.HasAnswer() && r.Speech == nil
}

// Text returns the answer or, when there is none, the notice.
func (r *Reply) Text() string {
	if r.HasAnswer() {
		return r.Answer
	}
	return r.Notice
}
