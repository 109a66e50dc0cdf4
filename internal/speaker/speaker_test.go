package speaker_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MrWong99/twinvoice/internal/speaker"
	ttsmock "github.com/MrWong99/twinvoice/pkg/provider/tts/mock"
	"github.com/MrWong99/twinvoice/pkg/types"
)

var mp3 = types.SpeechAudio{Data: []byte("ID3fake"), Format: "mp3"}

// recordingPlayer captures the staged file while it still exists.
type recordingPlayer struct {
	path string
	data []byte
	err  error
}

func (p *recordingPlayer) Play(_ context.Context, path string) error {
	p.path = path
	p.data, _ = os.ReadFile(path)
	return p.err
}

func TestNew_Validation(t *testing.T) {
	if _, err := speaker.New(nil); err == nil {
		t.Error("expected error for nil provider")
	}
	if _, err := speaker.New(&ttsmock.Provider{}, speaker.WithMaxChars(0)); err == nil {
		t.Error("expected error for zero max chars")
	}
}

func TestSynthesize(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		provider  *ttsmock.Provider
		maxChars  int
		wantErr   bool
		wantCalls int
	}{
		{"ok", "I build things until they work.", &ttsmock.Provider{Audio: mp3}, 40, false, 1},
		{"empty", "", &ttsmock.Provider{Audio: mp3}, 40, true, 0},
		{"whitespace", " \n\t ", &ttsmock.Provider{Audio: mp3}, 40, true, 0},
		{"punctuation only", "... !? —", &ttsmock.Provider{Audio: mp3}, 40, true, 0},
		{"too long", strings.Repeat("a", 11), &ttsmock.Provider{Audio: mp3}, 10, true, 0},
		{"backend error", "hello there", &ttsmock.Provider{Err: errors.New("quota")}, 40, true, 1},
		{"backend empty audio", "hello there", &ttsmock.Provider{}, 40, true, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := speaker.New(tt.provider, speaker.WithMaxChars(tt.maxChars), speaker.WithLanguage("en"), speaker.WithVoice("v1"))
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			got, err := s.Synthesize(context.Background(), tt.text)
			if tt.wantErr {
				if !errors.Is(err, speaker.ErrSynthesis) {
					t.Fatalf("err = %v, want ErrSynthesis", err)
				}
			} else {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if got.Format != "mp3" {
					t.Errorf("format = %q", got.Format)
				}
				req := tt.provider.Requests[0]
				if req.Language != "en" || req.VoiceID != "v1" || req.Text != tt.text {
					t.Errorf("request = %+v", req)
				}
			}
			if n := tt.provider.CallCount(); n != tt.wantCalls {
				t.Errorf("calls = %d, want %d", n, tt.wantCalls)
			}
		})
	}
}

func TestPlay_RemovesTempFile(t *testing.T) {
	for _, playErr := range []error{nil, errors.New("device busy")} {
		dir := t.TempDir()
		p := &recordingPlayer{err: playErr}
		s, _ := speaker.New(&ttsmock.Provider{}, speaker.WithPlayer(p), speaker.WithTempDir(dir))

		err := s.Play(context.Background(), mp3)
		if (err != nil) != (playErr != nil) {
			t.Fatalf("err = %v, want %v", err, playErr)
		}
		if !bytes.Equal(p.data, mp3.Data) {
			t.Errorf("player saw %q", p.data)
		}
		if filepath.Ext(p.path) != ".mp3" {
			t.Errorf("staged file %q lacks .mp3 extension", p.path)
		}
		entries, _ := os.ReadDir(dir)
		if len(entries) != 0 {
			t.Errorf("temp dir not empty: %v", entries)
		}
	}
}

func TestPlay_Errors(t *testing.T) {
	s, _ := speaker.New(&ttsmock.Provider{})
	if s.CanPlay() {
		t.Fatal("CanPlay without player")
	}
	if err := s.Play(context.Background(), mp3); err == nil {
		t.Error("expected error without player")
	}
	s, _ = speaker.New(&ttsmock.Provider{}, speaker.WithPlayer(&recordingPlayer{}))
	if err := s.Play(context.Background(), types.SpeechAudio{}); err == nil {
		t.Error("expected error for empty audio")
	}
}

func TestFilePlayer(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "out.mp3")
	s, _ := speaker.New(&ttsmock.Provider{}, speaker.WithPlayer(speaker.FilePlayer{Dest: dest}), speaker.WithTempDir(dir))

	if err := s.Play(context.Background(), mp3); err != nil {
		t.Fatalf("Play: %v", err)
	}
	got, err := os.ReadFile(dest)
	if err != nil || !bytes.Equal(got, mp3.Data) {
		t.Fatalf("dest = %q, %v", got, err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Fatalf("expected only the destination file, got %v", entries)
	}
}

func TestCommandPlayer(t *testing.T) {
	if _, err := exec.LookPath("cat"); err != nil {
		t.Skip("cat not available")
	}
	ok := speaker.CommandPlayer{Path: "cat", Args: []string{}}
	path := filepath.Join(t.TempDir(), "a.mp3")
	if err := os.WriteFile(path, mp3.Data, 0o600); err != nil {
		t.Fatal(err)
	}
	if err := ok.Play(context.Background(), path); err != nil {
		t.Fatalf("Play: %v", err)
	}
	if err := ok.Play(context.Background(), filepath.Join(t.TempDir(), "missing.mp3")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
