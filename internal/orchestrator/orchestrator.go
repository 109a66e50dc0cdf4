// Package orchestrator runs one voice question through the answer pipeline:
// normalise the recording, transcribe it, build a persona prompt, ask the
// completion providers in priority order, fall back to a rule-based answer
// when none succeeds, record the turn and synthesise the spoken reply.
//
// [Orchestrator.Handle] never returns an error and never panics. Every
// failure is scoped to the interaction and converted into a [Reply] status.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrWong99/twinvoice/internal/fallback"
	"github.com/MrWong99/twinvoice/internal/observe"
	"github.com/MrWong99/twinvoice/internal/persona"
	"github.com/MrWong99/twinvoice/internal/resilience"
	"github.com/MrWong99/twinvoice/internal/session"
	"github.com/MrWong99/twinvoice/internal/transcribe"
	"github.com/MrWong99/twinvoice/pkg/provider/llm"
	"github.com/MrWong99/twinvoice/pkg/types"
)

// DefaultTimeout bounds every external call made while handling a clip.
const DefaultTimeout = 15 * time.Second

// Normalizer decodes a recording into the canonical waveform.
type Normalizer interface {
	Normalize(ctx context.Context, clip types.AudioClip) (types.Waveform, error)
}

// Transcriber recognises the question in a waveform.
type Transcriber interface {
	Transcribe(ctx context.Context, w types.Waveform) (types.Transcript, error)
}

// Router dispatches prompts to named completion providers.
type Router interface {
	Order() []string
	Configured(id string) bool
	Reason(id string) string
	Ask(ctx context.Context, req llm.Request, id string) (llm.Result, error)
}

// Speaker synthesises and plays answers.
type Speaker interface {
	Synthesize(ctx context.Context, text string) (types.SpeechAudio, error)
	CanPlay() bool
	Play(ctx context.Context, speech types.SpeechAudio) error
}

// Answerer produces rule-based answers.
type Answerer interface {
	Resolve(question string, profile types.PersonaProfile) fallback.Match
	Answer(question string, profile types.PersonaProfile) string
}

// Config wires an [Orchestrator].
type Config struct {
	// Normalizer, Transcriber and Router are required.
	Normalizer  Normalizer
	Transcriber Transcriber
	Router      Router

	// Speaker is optional. Without one every reply is text only.
	Speaker Speaker

	// Fallback defaults to [fallback.New].
	Fallback Answerer

	// Profile is the persona answering questions.
	Profile types.PersonaProfile

	// Prompt carries the answer constraints.
	Prompt persona.Builder

	// Window is the number of prior turns included in prompts. Zero means
	// [persona.DefaultWindow]; a negative value disables history.
	Window int

	// Timeout bounds each external call. Default: [DefaultTimeout].
	Timeout time.Duration

	// Play hands synthesised speech to the speaker's player.
	Play bool

	// Metrics defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics
}

// Orchestrator handles recorded questions. It holds no per-session state and
// is safe for concurrent use; history lives in the [session.Log] passed to
// each call.
type Orchestrator struct {
	cfg Config
}

// New validates cfg and creates an [Orchestrator].
func New(cfg Config) (*Orchestrator, error) {
	var errs []error
	if cfg.Normalizer == nil {
		errs = append(errs, errors.New("orchestrator: Normalizer is required"))
	}
	if cfg.Transcriber == nil {
		errs = append(errs, errors.New("orchestrator: Transcriber is required"))
	}
	if cfg.Router == nil {
		errs = append(errs, errors.New("orchestrator: Router is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	if cfg.Fallback == nil {
		cfg.Fallback = fallback.New()
	}
	switch {
	case cfg.Window == 0:
		cfg.Window = persona.DefaultWindow
	case cfg.Window < 0:
		cfg.Window = 0
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	return &Orchestrator{cfg: cfg}, nil
}

// Handle answers the question recorded in clip within sess. A nil sess
// answers without history and records nothing.
func (o *Orchestrator) Handle(ctx context.Context, clip types.AudioClip, sess *session.Log) (reply *Reply) {
	start := time.Now()
	if sess != nil {
		ctx = observe.WithSessionID(ctx, sess.ID())
	}
	ctx, span := observe.StartSpan(ctx, "orchestrator.handle")
	log := observe.Logger(ctx)

	reply = &Reply{}
	defer func() {
		if p := recover(); p != nil {
			log.Error("interaction panicked", "panic", p)
			o.recoverReply(reply, p)
		}
		o.cfg.Metrics.RecordInteraction(ctx, reply.Status.String(), time.Since(start).Seconds())
		log.Info("interaction finished",
			"status", reply.Status.String(),
			"provider", reply.Provider,
			"text_only", reply.TextOnly(),
			"duration", time.Since(start),
		)
		span.End()
	}()

	w, ok := o.normalize(ctx, log, clip, reply)
	if !ok {
		return reply
	}
	if !o.transcribe(ctx, log, w, reply) {
		return reply
	}

	var history []types.ConversationTurn
	if sess != nil {
		history = sess.Recent(o.cfg.Window)
	}
	req := o.cfg.Prompt.Build(reply.Transcript, o.cfg.Profile, history, o.cfg.Window)

	o.ask(ctx, log, req, reply)
	if !reply.HasAnswer() {
		o.fallback(ctx, log, reply)
	}

	if sess != nil {
		sess.Append(types.ConversationTurn{
			Question: reply.Transcript,
			Answer:   reply.Answer,
			Provider: reply.Provider,
		})
	}

	o.speak(ctx, log, reply)
	return reply
}

// ---- stages ----

func (o *Orchestrator) normalize(ctx context.Context, log *slog.Logger, clip types.AudioClip, reply *Reply) (types.Waveform, bool) {
	ctx, span := observe.StartSpan(ctx, "orchestrator.normalize")
	cctx, cancel := context.WithTimeout(ctx, o.cfg.Timeout)
	defer cancel()

	t0 := time.Now()
	w, err := o.cfg.Normalizer.Normalize(cctx, clip)
	o.cfg.Metrics.NormalizeDuration.Record(ctx, time.Since(t0).Seconds())
	observe.EndSpan(span, err)
	if err != nil {
		log.Warn("audio decode failed", "encoding", clip.Encoding, "bytes", len(clip.Data), "err", err)
		reply.Status = ReRecord
		reply.Notice = NoticeDecodeError
		return types.Waveform{}, false
	}
	return w, true
}

func (o *Orchestrator) transcribe(ctx context.Context, log *slog.Logger, w types.Waveform, reply *Reply) bool {
	ctx, span := observe.StartSpan(ctx, "orchestrator.transcribe")
	cctx, cancel := context.WithTimeout(ctx, o.cfg.Timeout)
	defer cancel()

	t0 := time.Now()
	tr, err := o.cfg.Transcriber.Transcribe(cctx, w)
	o.cfg.Metrics.STTDuration.Record(ctx, time.Since(t0).Seconds())
	observe.EndSpan(span, err)

	switch {
	case err == nil:
		reply.Transcript = tr.Text
		log.Info("question transcribed", "text", tr.Text, "audio", w.Duration())
		return true
	case errors.Is(err, transcribe.ErrTooShort):
		reply.Status, reply.Notice = ReAsk, NoticeTooShort
	case errors.Is(err, transcribe.ErrUnintelligible):
		reply.Status, reply.Notice = ReAsk, NoticeUnintelligible
	default:
		reply.Status, reply.Notice = TranscriptionUnavailable, NoticeServiceUnavailable
	}
	log.Warn("transcription rejected", "status", reply.Status.String(), "err", err)
	return false
}

// ask tries each provider in priority order until one succeeds.
func (o *Orchestrator) ask(ctx context.Context, log *slog.Logger, req llm.Request, reply *Reply) {
	for _, id := range o.cfg.Router.Order() {
		if !o.cfg.Router.Configured(id) {
			reply.Attempts = append(reply.Attempts, Attempt{Provider: id, Skipped: true, Reason: o.cfg.Router.Reason(id)})
			log.Debug("provider skipped", "provider", id, "reason", o.cfg.Router.Reason(id))
			continue
		}

		res, d, err := o.askOne(ctx, req, id)
		if errors.Is(err, resilience.ErrNotConfigured) {
			reply.Attempts = append(reply.Attempts, Attempt{Provider: id, Skipped: true, Reason: err.Error()})
			continue
		}
		o.cfg.Metrics.RecordProviderResult(ctx, id, res.Kind.String(), d.Seconds())
		reply.Attempts = append(reply.Attempts, Attempt{Provider: id, Kind: res.Kind, Detail: res.Detail, Duration: d})

		if res.OK() {
			reply.Status = Answered
			reply.Answer = res.Text
			reply.Provider = id
			log.Info("provider answered", "provider", id, "duration", d)
			return
		}
		log.Warn("provider failed", "provider", id, "kind", res.Kind.String(), "detail", res.Detail, "duration", d)
	}
}

func (o *Orchestrator) askOne(ctx context.Context, req llm.Request, id string) (llm.Result, time.Duration, error) {
	ctx, span := observe.StartSpan(ctx, "orchestrator.ask")
	span.SetAttributes(observe.Attr("provider", id))
	cctx, cancel := context.WithTimeout(ctx, o.cfg.Timeout)
	defer cancel()

	t0 := time.Now()
	res, err := o.cfg.Router.Ask(cctx, req, id)
	if err == nil && !res.OK() {
		observe.EndSpan(span, fmt.Errorf("%s: %s", res.Kind, res.Detail))
	} else {
		observe.EndSpan(span, err)
	}
	return res, time.Since(t0), err
}

func (o *Orchestrator) fallback(ctx context.Context, log *slog.Logger, reply *Reply) {
	reason := "no_providers"
	for _, a := range reply.Attempts {
		if !a.Skipped {
			reason = "all_failed"
			break
		}
	}
	m := o.cfg.Fallback.Resolve(reply.Transcript, o.cfg.Profile)
	reply.Status = FallbackAnswered
	reply.Answer = o.cfg.Fallback.Answer(reply.Transcript, o.cfg.Profile)
	reply.Provider = FallbackProvider

	o.cfg.Metrics.RecordFallback(ctx, reason, string(m.Method))
	log.Info("answered from fallback rules", "reason", reason, "topic", m.Topic, "method", string(m.Method))
}

func (o *Orchestrator) speak(ctx context.Context, log *slog.Logger, reply *Reply) {
	if o.cfg.Speaker == nil {
		return
	}
	speech, err := o.synthesize(ctx, reply.Answer)
	if err != nil {
		reply.SpeechErr = err
		log.Warn("speech synthesis failed, replying with text only", "err", err)
		return
	}
	reply.Speech = &speech

	if !o.cfg.Play || !o.cfg.Speaker.CanPlay() {
		return
	}
	if err := o.cfg.Speaker.Play(ctx, speech); err != nil {
		log.Warn("playback failed", "err", err)
		return
	}
	reply.Played = true
}

func (o *Orchestrator) synthesize(ctx context.Context, text string) (speech types.SpeechAudio, err error) {
	ctx, span := observe.StartSpan(ctx, "orchestrator.synthesize")
	cctx, cancel := context.WithTimeout(ctx, o.cfg.Timeout)
	t0 := time.Now()
	defer func() {
		cancel()
		o.cfg.Metrics.TTSDuration.Record(ctx, time.Since(t0).Seconds())
		observe.EndSpan(span, err)
	}()
	return o.cfg.Speaker.Synthesize(cctx, text)
}

// recoverReply turns a panic into the most useful reply still possible.
func (o *Orchestrator) recoverReply(reply *Reply, p any) {
	if reply.Transcript == "" {
		reply.Status = ReRecord
		reply.Notice = NoticeDecodeError
		reply.Answer = ""
		return
	}
	if !reply.HasAnswer() {
		reply.Status = FallbackAnswered
		reply.Provider = FallbackProvider
		reply.Answer = fallback.Generic(o.cfg.Profile)
	}
	if reply.SpeechErr == nil && reply.Speech == nil {
		reply.SpeechErr = fmt.Errorf("orchestrator: panic: %v", p)
	}
}
