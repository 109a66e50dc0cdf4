// Package audio turns recorded clips into the canonical waveform consumed by
// speech recognition.
//
// [Normalizer] is the entry point: it writes the clip to a scoped temporary
// file, decodes it with the decoder matching its encoding, downmixes to mono
// and resamples to the target rate. Decoding itself is delegated to a
// [Decoder]; a built-in RIFF/WAV reader handles the canonical container and
// [FFmpegDecoder] handles everything else a browser or phone might record.
package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/MrWong99/twinvoice/pkg/types"
)

// ErrDecode is returned when a clip cannot be parsed by its declared or
// inferred codec. Empty clips are reported with the same error.
var ErrDecode = errors.New("audio: cannot decode clip")

// DefaultSampleRate is the rate speech recognisers expect.
const DefaultSampleRate = 16000

// DefaultMaxDuration bounds the length of a decoded clip.
const DefaultMaxDuration = 10 * time.Minute

// Decoder reads an encoded audio file and returns its samples as 16-bit
// little-endian PCM in whatever format the file carries.
//
// Implementations must wrap parse failures with [ErrDecode].
type Decoder interface {
	Decode(ctx context.Context, path string) ([]byte, Format, error)
}

// WAVDecoder decodes RIFF/WAVE files without external tools.
type WAVDecoder struct{}

var _ Decoder = WAVDecoder{}

// Decode implements [Decoder].
func (WAVDecoder) Decode(_ context.Context, path string) ([]byte, Format, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, Format{}, fmt.Errorf("audio: read clip: %w", err)
	}
	return DecodeWAV(data)
}

// FFmpegDecoder shells out to ffmpeg to transcode any supported container to
// 16-bit PCM WAV on stdout, which is then parsed with [DecodeWAV].
type FFmpegDecoder struct {
	// Path is the ffmpeg binary. Empty means "ffmpeg" resolved via $PATH.
	Path string
}

var _ Decoder = FFmpegDecoder{}

// Decode implements [Decoder].
func (d FFmpegDecoder) Decode(ctx context.Context, path string) ([]byte, Format, error) {
	bin := d.Path
	if bin == "" {
		bin = "ffmpeg"
	}
	cmd := exec.CommandContext(ctx, bin,
		"-nostdin", "-hide_banner", "-loglevel", "error",
		"-i", path,
		"-f", "wav", "-acodec", "pcm_s16le",
		"-",
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, Format{}, fmt.Errorf("audio: ffmpeg: %w", ctx.Err())
		}
		return nil, Format{}, fmt.Errorf("%w: ffmpeg: %v: %s", ErrDecode, err, strings.TrimSpace(stderr.String()))
	}
	return DecodeWAV(stdout.Bytes())
}

// Option is a functional option for [NewNormalizer].
type Option func(*Normalizer)

// WithTargetRate sets the output sample rate. Default: [DefaultSampleRate].
func WithTargetRate(rate int) Option {
	return func(n *Normalizer) { n.targetRate = rate }
}

// WithDecoder sets the decoder used for every non-WAV encoding. Without one,
// only WAV clips can be decoded.
func WithDecoder(d Decoder) Option {
	return func(n *Normalizer) { n.fallback = d }
}

// WithForcedDecoder routes every clip, WAV included, through d.
func WithForcedDecoder(d Decoder) Option {
	return func(n *Normalizer) {
		n.fallback = d
		n.forced = true
	}
}

// WithMaxDuration sets the longest clip Normalize accepts. Default:
// [DefaultMaxDuration].
func WithMaxDuration(d time.Duration) Option {
	return func(n *Normalizer) { n.maxDuration = d }
}

// WithTempDir sets the directory scoped clip files are created in.
// Default: [os.TempDir].
func WithTempDir(dir string) Option {
	return func(n *Normalizer) { n.tempDir = dir }
}

// Normalizer converts [types.AudioClip] values into mono [types.Waveform]
// values at a fixed sample rate. It is safe for concurrent use.
type Normalizer struct {
	targetRate  int
	wav         Decoder
	fallback    Decoder
	forced      bool
	tempDir     string
	maxDuration time.Duration
}

// NewNormalizer creates a [Normalizer].
func NewNormalizer(opts ...Option) (*Normalizer, error) {
	n := &Normalizer{
		targetRate:  DefaultSampleRate,
		wav:         WAVDecoder{},
		maxDuration: DefaultMaxDuration,
	}
	for _, o := range opts {
		o(n)
	}
	if n.targetRate <= 0 {
		return nil, fmt.Errorf("audio: target sample rate must be positive, got %d", n.targetRate)
	}
	if n.maxDuration <= 0 {
		return nil, fmt.Errorf("audio: max duration must be positive, got %s", n.maxDuration)
	}
	return n, nil
}

// TargetRate returns the output sample rate.
func (n *Normalizer) TargetRate() int { return n.targetRate }

// Normalize decodes clip and returns it as mono PCM at the target rate.
// Downmixing and resampling are applied to every clip, including clips that
// are already mono at the target rate.
//
// The clip is staged in a temporary file that is removed before Normalize
// returns, on every path.
func (n *Normalizer) Normalize(ctx context.Context, clip types.AudioClip) (types.Waveform, error) {
	if len(clip.Data) == 0 {
		return types.Waveform{}, fmt.Errorf("%w: empty clip", ErrDecode)
	}

	encoding, ext := n.resolveEncoding(clip)
	dec := n.decoderFor(encoding)
	if dec == nil {
		return types.Waveform{}, fmt.Errorf("%w: no decoder for %q", ErrDecode, encoding)
	}

	path, cleanup, err := n.stage(clip.Data, ext)
	if err != nil {
		return types.Waveform{}, err
	}
	defer cleanup()

	pcm, src, err := dec.Decode(ctx, path)
	if err != nil {
		return types.Waveform{}, err
	}
	if len(pcm) == 0 {
		return types.Waveform{}, fmt.Errorf("%w: clip has no samples", ErrDecode)
	}
	if src.Channels <= 0 || src.SampleRate < MinSampleRate || src.SampleRate > MaxSampleRate {
		return types.Waveform{}, fmt.Errorf("%w: invalid format %s", ErrDecode, src.String())
	}
	frames := len(pcm) / 2 / src.Channels
	if d := time.Duration(float64(frames) / float64(src.SampleRate) * float64(time.Second)); d > n.maxDuration {
		return types.Waveform{}, fmt.Errorf("%w: clip is %s long, limit %s", ErrDecode, d.Round(time.Second), n.maxDuration)
	}

	mono := Downmix(pcm, src.Channels)
	out := Resample(mono, src.SampleRate, n.targetRate)

	slog.Debug("audio normalized",
		"encoding", encoding,
		"from", src.String(),
		"to", formatString(n.targetRate, 1),
		"bytes", len(out),
	)
	return types.Waveform{PCM: out, SampleRate: n.targetRate, Channels: 1}, nil
}

// resolveEncoding returns the clip's MIME type, sniffing the payload when no
// usable type was declared, and the file extension to stage it with.
func (n *Normalizer) resolveEncoding(clip types.AudioClip) (string, string) {
	declared := strings.ToLower(strings.TrimSpace(clip.Encoding))
	if i := strings.IndexByte(declared, ';'); i >= 0 {
		declared = strings.TrimSpace(declared[:i])
	}
	detected := mimetype.Detect(clip.Data)
	if declared == "" || declared == "application/octet-stream" {
		return detected.String(), detected.Extension()
	}
	if ext, ok := extensions[declared]; ok {
		return declared, ext
	}
	return declared, detected.Extension()
}

func (n *Normalizer) decoderFor(encoding string) Decoder {
	if n.forced {
		return n.fallback
	}
	if isWAV(encoding) {
		return n.wav
	}
	return n.fallback
}

// stage writes data to a fresh temporary file and returns its path together
// with a cleanup func that removes it.
func (n *Normalizer) stage(data []byte, ext string) (string, func(), error) {
	f, err := os.CreateTemp(n.tempDir, "clip-*"+ext)
	if err != nil {
		return "", nil, fmt.Errorf("audio: create temp file: %w", err)
	}
	path := f.Name()
	cleanup := func() {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Warn("audio: remove temp clip", "path", path, "err", err)
		}
	}
	_, werr := f.Write(data)
	cerr := f.Close()
	if err := errors.Join(werr, cerr); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("audio: write temp file: %w", err)
	}
	return path, cleanup, nil
}

var extensions = map[string]string{
	"audio/wav":   ".wav",
	"audio/x-wav": ".wav",
	"audio/wave":  ".wav",
	"audio/webm":  ".webm",
	"video/webm":  ".webm",
	"audio/ogg":   ".ogg",
	"audio/mpeg":  ".mp3",
	"audio/mp4":   ".m4a",
	"audio/flac":  ".flac",
}

func isWAV(encoding string) bool {
	switch encoding {
	case "audio/wav", "audio/x-wav", "audio/wave", "audio/vnd.wave":
		return true
	}
	return false
}
