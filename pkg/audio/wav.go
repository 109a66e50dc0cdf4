package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

const (
	wavFormatPCM        = 0x0001
	wavFormatFloat      = 0x0003
	wavFormatExtensible = 0xFFFE
)

// wavHeader is the canonical 44-byte header of a PCM WAV file.
type wavHeader struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32  // file size - 8
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32  // 16 for PCM
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32
}

// EncodeWAV wraps 16-bit little-endian PCM in a WAV container.
func EncodeWAV(pcm []byte, sampleRate, channels int) ([]byte, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("audio: sample rate must be positive, got %d", sampleRate)
	}
	if channels <= 0 {
		return nil, fmt.Errorf("audio: channel count must be positive, got %d", channels)
	}
	dataSize := uint32(len(pcm))
	header := wavHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + dataSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   wavFormatPCM,
		NumChannels:   uint16(channels),
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate * channels * 2),
		BlockAlign:    uint16(channels * 2),
		BitsPerSample: 16,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}

	buf := bytes.NewBuffer(make([]byte, 0, 44+len(pcm)))
	if err := binary.Write(buf, binary.LittleEndian, header); err != nil {
		return nil, fmt.Errorf("audio: write wav header: %w", err)
	}
	buf.Write(pcm)
	return buf.Bytes(), nil
}

// wavFormat is the subset of the "fmt " chunk needed to decode samples.
type wavFormat struct {
	audioFormat   uint16
	channels      int
	sampleRate    int
	bitsPerSample int
}

// DecodeWAV parses a RIFF/WAVE payload and returns its samples converted to
// 16-bit little-endian PCM together with the source format. Integer PCM of 8,
// 16, 24 and 32 bits, 32-bit IEEE float and WAVE_FORMAT_EXTENSIBLE wrappers of
// either are supported. Unknown chunks are skipped. A data chunk whose declared
// size exceeds the payload (as written by streaming encoders) is clamped to the
// bytes actually present.
//
// All failures wrap [ErrDecode].
func DecodeWAV(data []byte) ([]byte, Format, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, Format{}, fmt.Errorf("%w: not a RIFF/WAVE payload", ErrDecode)
	}

	var (
		fmtChunk *wavFormat
		payload  []byte
		found    bool
	)
	pos := 12
	for pos+8 <= len(data) {
		id := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := pos + 8
		if size < 0 || body+size > len(data) {
			size = len(data) - body
		}

		switch id {
		case "fmt ":
			f, err := parseFmtChunk(data[body : body+size])
			if err != nil {
				return nil, Format{}, err
			}
			fmtChunk = f
		case "data":
			payload = data[body : body+size]
			found = true
		}
		if found && fmtChunk != nil {
			break
		}
		pos = body + size + size%2
	}

	if fmtChunk == nil {
		return nil, Format{}, fmt.Errorf("%w: missing fmt chunk", ErrDecode)
	}
	if !found {
		return nil, Format{}, fmt.Errorf("%w: missing data chunk", ErrDecode)
	}

	pcm, err := toPCM16(payload, fmtChunk)
	if err != nil {
		return nil, Format{}, err
	}
	return pcm, Format{SampleRate: fmtChunk.sampleRate, Channels: fmtChunk.channels}, nil
}

// Sample rates outside [MinSampleRate, MaxSampleRate] are rejected as corrupt.
const (
	MinSampleRate = 1000
	MaxSampleRate = 384000
)

func parseFmtChunk(b []byte) (*wavFormat, error) {
	if len(b) < 16 {
		return nil, fmt.Errorf("%w: fmt chunk too short (%d bytes)", ErrDecode, len(b))
	}
	f := &wavFormat{
		audioFormat:   binary.LittleEndian.Uint16(b[0:2]),
		channels:      int(binary.LittleEndian.Uint16(b[2:4])),
		sampleRate:    int(binary.LittleEndian.Uint32(b[4:8])),
		bitsPerSample: int(binary.LittleEndian.Uint16(b[14:16])),
	}
	if f.audioFormat == wavFormatExtensible {
		// cbSize(2) validBits(2) channelMask(4) then the sub-format GUID whose
		// first two bytes carry the real format tag.
		if len(b) < 26 {
			return nil, fmt.Errorf("%w: truncated extensible fmt chunk", ErrDecode)
		}
		f.audioFormat = binary.LittleEndian.Uint16(b[24:26])
	}
	if f.channels <= 0 || f.sampleRate < MinSampleRate || f.sampleRate > MaxSampleRate {
		return nil, fmt.Errorf("%w: invalid format %s", ErrDecode, formatString(f.sampleRate, f.channels))
	}
	return f, nil
}

func toPCM16(payload []byte, f *wavFormat) ([]byte, error) {
	width := f.bitsPerSample / 8
	switch {
	case f.audioFormat == wavFormatPCM && (width >= 1 && width <= 4):
	case f.audioFormat == wavFormatFloat && width == 4:
	default:
		return nil, fmt.Errorf("%w: unsupported wav encoding (format 0x%04x, %d bits)",
			ErrDecode, f.audioFormat, f.bitsPerSample)
	}

	n := len(payload) / width
	// Drop a trailing partial frame.
	n -= n % f.channels
	out := make([]byte, n*2)
	for i := range n {
		s := payload[i*width : (i+1)*width]
		var v int16
		switch {
		case f.audioFormat == wavFormatFloat:
			fv := math.Float32frombits(binary.LittleEndian.Uint32(s))
			v = clamp16(int32(math.Round(float64(fv) * 32767)))
		case width == 1:
			v = int16(int(s[0])-128) << 8
		default:
			// Keep the two most significant bytes of wider samples.
			v = int16(s[width-2]) | int16(s[width-1])<<8
		}
		putSample(out, i, v)
	}
	return out, nil
}
