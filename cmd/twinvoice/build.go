package main

import (
	"context"
	"errors"
	"fmt"
	"os/exec"

	"github.com/MrWong99/twinvoice/internal/config"
	"github.com/MrWong99/twinvoice/internal/fallback"
	"github.com/MrWong99/twinvoice/internal/health"
	"github.com/MrWong99/twinvoice/internal/orchestrator"
	"github.com/MrWong99/twinvoice/internal/persona"
	"github.com/MrWong99/twinvoice/internal/resilience"
	"github.com/MrWong99/twinvoice/internal/speaker"
	"github.com/MrWong99/twinvoice/internal/transcribe"
	"github.com/MrWong99/twinvoice/pkg/audio"
	"github.com/MrWong99/twinvoice/pkg/types"
)

// pipeline is the assembled answer pipeline plus the parts the command
// reports on.
type pipeline struct {
	orch     *orchestrator.Orchestrator
	router   *resilience.Router
	stt      *resilience.STTFallback
	speaker  *speaker.Speaker
	profile  types.PersonaProfile
	checkers []health.Checker
}

// build assembles the pipeline described by cfg. Providers are created from
// reg. play enables playback through speech.player, or ffplay when unset.
func build(cfg *config.Config, reg *config.Registry, play bool) (*pipeline, error) {
	profile, err := cfg.Profile()
	if err != nil {
		return nil, err
	}

	// Providers
	router := resilience.NewRouter(resilience.BreakerConfig{})
	sttGroup := resilience.NewSTTFallback(resilience.BreakerConfig{})
	ttsGroup := resilience.NewTTSFallback(resilience.BreakerConfig{})
	if err := errors.Join(
		reg.BuildRouter(cfg.Providers.LLM, router),
		reg.BuildSTT(cfg.Providers.STT, sttGroup),
		reg.BuildTTS(cfg.Providers.TTS, ttsGroup),
	); err != nil {
		return nil, err
	}

	// Stages
	norm, err := newNormalizer(cfg.Audio)
	if err != nil {
		return nil, err
	}

	var topts []transcribe.Option
	if cfg.Transcription.MinChars > 0 {
		topts = append(topts, transcribe.WithMinChars(cfg.Transcription.MinChars))
	}
	if cfg.Transcription.SilenceRMS != 0 {
		topts = append(topts, transcribe.WithSilenceRMS(cfg.Transcription.SilenceRMS))
	}
	if cfg.Transcription.Language != "" {
		topts = append(topts, transcribe.WithLanguage(cfg.Transcription.Language))
	}
	tr, err := transcribe.New(sttGroup, topts...)
	if err != nil {
		return nil, err
	}

	var spk *speaker.Speaker
	if ttsGroup.Len() > 0 {
		if spk, err = newSpeaker(cfg.Speech, ttsGroup, play); err != nil {
			return nil, err
		}
	}

	ocfg := orchestrator.Config{
		Normalizer:  norm,
		Transcriber: tr,
		Router:      router,
		Fallback:    fallback.New(fallback.WithRules(cfg.FallbackRules())),
		Profile:     profile,
		Prompt: persona.Builder{
			MaxSentences:    cfg.Answer.MaxSentences,
			MaxOutputTokens: cfg.Answer.MaxOutputTokens,
			Temperature:     cfg.Answer.Temperature,
		},
		Window:  cfg.Session.HistoryWindow,
		Timeout: cfg.Timeout,
		Play:    play,
	}
	if spk != nil {
		ocfg.Speaker = spk
	}
	orch, err := orchestrator.New(ocfg)
	if err != nil {
		return nil, err
	}

	return &pipeline{
		orch:     orch,
		router:   router,
		stt:      sttGroup,
		speaker:  spk,
		profile:  profile,
		checkers: checkers(cfg, sttGroup),
	}, nil
}

func newNormalizer(cfg config.AudioConfig) (*audio.Normalizer, error) {
	var opts []audio.Option
	if cfg.SampleRate > 0 {
		opts = append(opts, audio.WithTargetRate(cfg.SampleRate))
	}
	ffmpeg := audio.FFmpegDecoder{Path: cfg.FFmpegPath}
	switch cfg.Decoder {
	case config.DecoderWAV:
	case config.DecoderFFmpeg:
		opts = append(opts, audio.WithForcedDecoder(ffmpeg))
	default:
		opts = append(opts, audio.WithDecoder(ffmpeg))
	}
	return audio.NewNormalizer(opts...)
}

func newSpeaker(cfg config.SpeechConfig, p *resilience.TTSFallback, play bool) (*speaker.Speaker, error) {
	var opts []speaker.Option
	if cfg.Language != "" {
		opts = append(opts, speaker.WithLanguage(cfg.Language))
	}
	if cfg.VoiceID != "" {
		opts = append(opts, speaker.WithVoice(cfg.VoiceID))
	}
	if cfg.MaxChars > 0 {
		opts = append(opts, speaker.WithMaxChars(cfg.MaxChars))
	}
	if play {
		opts = append(opts, speaker.WithPlayer(speaker.CommandPlayer{Path: cfg.Player}))
	}
	return speaker.New(p, opts...)
}

// checkers returns the readiness probes for the operator server.
func checkers(cfg *config.Config, sttGroup *resilience.STTFallback) []health.Checker {
	out := []health.Checker{{
		Name: "transcription",
		Check: func(context.Context) error {
			if sttGroup.Len() == 0 {
				return errors.New("no transcription provider configured")
			}
			return nil
		},
	}}
	if cfg.Audio.Decoder != config.DecoderWAV {
		bin := cfg.Audio.FFmpegPath
		if bin == "" {
			bin = "ffmpeg"
		}
		out = append(out, health.Checker{
			Name: "decoder",
			Check: func(context.Context) error {
				if _, err := exec.LookPath(bin); err != nil {
					return fmt.Errorf("%s not found: %w", bin, err)
				}
				return nil
			},
		})
	}
	return out
}
