package speaker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
)

// Player plays an audio file. Implementations must not retain path after
// Play returns.
type Player interface {
	Play(ctx context.Context, path string) error
}

// FilePlayer copies each played file to a destination, for callers that
// hand audio on to something else.
type FilePlayer struct {
	// Dest is the destination path. It is overwritten on every Play.
	Dest string
}

var _ Player = FilePlayer{}

// Play implements [Player].
func (p FilePlayer) Play(_ context.Context, path string) error {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(p.Dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		return err
	}
	return dst.Close()
}

// CommandPlayer plays files with an external program such as ffplay.
type CommandPlayer struct {
	// Path is the program. Empty means "ffplay".
	Path string

	// Args are passed before the file path. Nil means the ffplay defaults
	// "-nodisp -autoexit -loglevel error".
	Args []string
}

var _ Player = CommandPlayer{}

// Play implements [Player]. It blocks until the program exits.
func (p CommandPlayer) Play(ctx context.Context, path string) error {
	bin := p.Path
	if bin == "" {
		bin = "ffplay"
	}
	args := p.Args
	if args == nil {
		args = []string{"-nodisp", "-autoexit", "-loglevel", "error"}
	}
	cmd := exec.CommandContext(ctx, bin, append(append([]string(nil), args...), path)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%s: %w: %s", bin, err, strings.TrimSpace(stderr.String()))
	}
	return nil
}
