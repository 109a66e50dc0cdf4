package audio_test

import (
	"encoding/binary"
	"testing"

	"github.com/MrWong99/twinvoice/pkg/audio"
)

// samplesToBytes converts a slice of int16 samples to little-endian byte representation.
func samplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

// bytesToSamples converts a little-endian byte slice to int16 samples.
func bytesToSamples(b []byte) []int16 {
	samples := make([]int16, len(b)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return samples
}

func equalSamples(t *testing.T, got, want []int16) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestDownmix(t *testing.T) {
	tests := []struct {
		name     string
		in       []int16
		channels int
		want     []int16
	}{
		{"mono copy", []int16{1, -2, 3}, 1, []int16{1, -2, 3}},
		{"stereo", []int16{100, 200, -100, -200}, 2, []int16{150, -150}},
		{"stereo max", []int16{32767, 32767}, 2, []int16{32767}},
		{"three channels", []int16{30, 60, 90}, 3, []int16{60}},
		{"partial frame dropped", []int16{10, 20, 30}, 2, []int16{15}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			equalSamples(t, bytesToSamples(audio.Downmix(samplesToBytes(tt.in), tt.channels)), tt.want)
		})
	}
}

func TestDownmix_DoesNotAlias(t *testing.T) {
	in := samplesToBytes([]int16{5, 6})
	out := audio.Downmix(in, 1)
	out[0] = 0xFF
	if in[0] == 0xFF {
		t.Error("mono downmix must return a new buffer")
	}
}

func TestResample_SameRateCopies(t *testing.T) {
	in := samplesToBytes([]int16{100, 200, 300})
	out := audio.Resample(in, 16000, 16000)
	equalSamples(t, bytesToSamples(out), []int16{100, 200, 300})
	out[0] = 0
	if bytesToSamples(in)[0] != 100 {
		t.Error("same-rate resample must not alias input")
	}
}

func TestResample_Downsample(t *testing.T) {
	in := make([]int16, 48000)
	out := audio.Resample(samplesToBytes(in), 48000, 16000)
	if got := len(out) / 2; got != 16000 {
		t.Errorf("sample count: got %d, want 16000", got)
	}
}

func TestResample_Upsample_Interpolates(t *testing.T) {
	out := bytesToSamples(audio.Resample(samplesToBytes([]int16{0, 100}), 8000, 16000))
	equalSamples(t, out, []int16{0, 50, 100, 100})
}

func TestResample_InvalidRate(t *testing.T) {
	if out := audio.Resample(samplesToBytes([]int16{1}), 0, 16000); out != nil {
		t.Errorf("expected nil for invalid rate, got %v", out)
	}
}

func TestRMS(t *testing.T) {
	if got := audio.RMS(nil); got != 0 {
		t.Errorf("RMS(nil) = %v, want 0", got)
	}
	if got := audio.RMS(samplesToBytes([]int16{300, -300, 300, -300})); got != 300 {
		t.Errorf("RMS = %v, want 300", got)
	}
}
