// Package speaker turns answer text into playable audio and hands it to a
// playback collaborator.
package speaker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/MrWong99/twinvoice/pkg/provider/tts"
	"github.com/MrWong99/twinvoice/pkg/types"
)

// ErrSynthesis is returned when text cannot be turned into speech, either
// because the text is unsupported or because the synthesis backend failed.
var ErrSynthesis = errors.New("speaker: synthesis failed")

// DefaultMaxChars is the longest text accepted for synthesis.
const DefaultMaxChars = 5000

// Option is a functional option for [New].
type Option func(*Speaker)

// WithLanguage sets the language tag passed to the backend.
func WithLanguage(lang string) Option {
	return func(s *Speaker) { s.language = lang }
}

// WithVoice sets the backend voice ID.
func WithVoice(id string) Option {
	return func(s *Speaker) { s.voiceID = id }
}

// WithMaxChars sets the longest accepted text in runes. Default: 5000.
func WithMaxChars(n int) Option {
	return func(s *Speaker) { s.maxChars = n }
}

// WithPlayer sets the playback collaborator used by [Speaker.Play].
func WithPlayer(p Player) Option {
	return func(s *Speaker) { s.player = p }
}

// WithTempDir sets the directory playback files are staged in.
// Default: [os.TempDir].
func WithTempDir(dir string) Option {
	return func(s *Speaker) { s.tempDir = dir }
}

// Speaker synthesises answers and plays them back. It is safe for concurrent
// use.
type Speaker struct {
	provider tts.Provider
	language string
	voiceID  string
	maxChars int
	player   Player
	tempDir  string
}

// New creates a [Speaker] backed by p.
func New(p tts.Provider, opts ...Option) (*Speaker, error) {
	if p == nil {
		return nil, errors.New("speaker: provider must not be nil")
	}
	s := &Speaker{provider: p, maxChars: DefaultMaxChars}
	for _, o := range opts {
		o(s)
	}
	if s.maxChars <= 0 {
		return nil, fmt.Errorf("speaker: max chars must be positive, got %d", s.maxChars)
	}
	return s, nil
}

// CanPlay reports whether a [Player] is configured.
func (s *Speaker) CanPlay() bool { return s.player != nil }

// Synthesize converts text to speech. It fails with [ErrSynthesis] for empty
// text, text without any letter or digit, text longer than the configured
// limit and backend failures.
func (s *Speaker) Synthesize(ctx context.Context, text string) (types.SpeechAudio, error) {
	text = strings.TrimSpace(text)
	if err := s.check(text); err != nil {
		return types.SpeechAudio{}, err
	}

	speech, err := s.provider.Synthesize(ctx, tts.Request{
		Text:     text,
		Language: s.language,
		VoiceID:  s.voiceID,
	})
	if err != nil {
		return types.SpeechAudio{}, fmt.Errorf("%w: %w", ErrSynthesis, err)
	}
	if len(speech.Data) == 0 {
		return types.SpeechAudio{}, fmt.Errorf("%w: backend returned no audio", ErrSynthesis)
	}
	return speech, nil
}

// Play stages speech in a temporary file and hands the file to the
// configured [Player]. The file is removed before Play returns.
func (s *Speaker) Play(ctx context.Context, speech types.SpeechAudio) error {
	if s.player == nil {
		return errors.New("speaker: no player configured")
	}
	if len(speech.Data) == 0 {
		return errors.New("speaker: nothing to play")
	}

	f, err := os.CreateTemp(s.tempDir, "answer-*."+extension(speech.Format))
	if err != nil {
		return fmt.Errorf("speaker: create temp file: %w", err)
	}
	path := f.Name()
	defer func() {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Warn("speaker: remove temp audio", "path", path, "err", err)
		}
	}()

	_, werr := f.Write(speech.Data)
	if err := errors.Join(werr, f.Close()); err != nil {
		return fmt.Errorf("speaker: write temp file: %w", err)
	}

	if err := s.player.Play(ctx, path); err != nil {
		return fmt.Errorf("speaker: play: %w", err)
	}
	return nil
}

// ---- helpers ----

func (s *Speaker) check(text string) error {
	if text == "" {
		return fmt.Errorf("%w: empty text", ErrSynthesis)
	}
	if !strings.ContainsFunc(text, func(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) }) {
		return fmt.Errorf("%w: text has nothing to speak", ErrSynthesis)
	}
	if n := utf8.RuneCountInString(text); n > s.maxChars {
		return fmt.Errorf("%w: text is %d characters, limit %d", ErrSynthesis, n, s.maxChars)
	}
	return nil
}

func extension(format string) string {
	format = strings.ToLower(strings.TrimPrefix(format, "."))
	if format == "" {
		return "bin"
	}
	return format
}
