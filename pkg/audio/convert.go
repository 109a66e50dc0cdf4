package audio

import (
	"fmt"
	"math"
)

// Format describes the sample rate and channel count of a PCM buffer.
type Format struct {
	SampleRate int
	Channels   int
}

func (f Format) String() string {
	return formatString(f.SampleRate, f.Channels)
}

// Downmix averages every interleaved frame of 16-bit little-endian PCM with the
// given channel count into a single mono sample. The result is always a new
// buffer, even for mono input. Trailing bytes that do not form a full frame are
// dropped.
func Downmix(pcm []byte, channels int) []byte {
	if channels <= 0 {
		return nil
	}
	frameBytes := 2 * channels
	frames := len(pcm) / frameBytes
	out := make([]byte, frames*2)
	for i := range frames {
		var sum int32
		base := i * frameBytes
		for c := range channels {
			off := base + c*2
			sum += int32(int16(pcm[off]) | int16(pcm[off+1])<<8)
		}
		putSample(out, i, clamp16(sum/int32(channels)))
	}
	return out
}

// Resample converts 16-bit mono PCM from srcRate to dstRate using linear
// interpolation. Unlike a pass-through converter it always produces a fresh
// buffer, so callers can rely on the output never aliasing the input.
func Resample(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 {
		return nil
	}
	srcSamples := len(pcm) / 2
	if srcSamples == 0 {
		return []byte{}
	}
	if srcRate == dstRate {
		out := make([]byte, srcSamples*2)
		copy(out, pcm)
		return out
	}

	dstSamples := int(int64(srcSamples) * int64(dstRate) / int64(srcRate))
	out := make([]byte, dstSamples*2)
	ratio := float64(srcRate) / float64(dstRate)

	for i := range dstSamples {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		s0 := sampleAt(pcm, srcIdx)
		s1 := s0
		if srcIdx+1 < srcSamples {
			s1 = sampleAt(pcm, srcIdx+1)
		}
		putSample(out, i, int16(float64(s0)*(1-frac)+float64(s1)*frac))
	}
	return out
}

// RMS returns the root-mean-square amplitude of 16-bit little-endian PCM.
// An empty buffer has an RMS of zero.
func RMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := range n {
		s := float64(sampleAt(pcm, i))
		sum += s * s
	}
	return math.Sqrt(sum / float64(n))
}

// ---- helpers ----

func sampleAt(pcm []byte, i int) int16 {
	return int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
}

func putSample(out []byte, i int, s int16) {
	out[i*2] = byte(s)
	out[i*2+1] = byte(s >> 8)
}

func clamp16(v int32) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}

// formatString returns a human-readable string for a sample rate and channel count,
// e.g. "48000Hz stereo".
func formatString(rate, channels int) string {
	ch := "mono"
	if channels == 2 {
		ch = "stereo"
	} else if channels > 2 {
		ch = fmt.Sprintf("%dch", channels)
	}
	return fmt.Sprintf("%dHz %s", rate, ch)
}
