package audio_test

import (
	"encoding/binary"
	"testing"

	"github.com/penumbralworks/narvox/pkg/audio"
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

func TestResampleMono16_SameRate(t *testing.T) {
	pcm := samplesToBytes([]int16{100, 200, 300})
	out := audio.ResampleMono16(pcm, 16000, 16000)
	if len(out) != len(pcm) {
		t.Fatalf("length mismatch: got %d, want %d", len(out), len(pcm))
	}
}

func TestResampleMono16_Upsample(t *testing.T) {
	// 2 samples at 16kHz → 6 samples at 48kHz (3x)
	pcm := samplesToBytes([]int16{1000, 2000})
	out := audio.ResampleMono16(pcm, 16000, 48000)
	got := bytesToSamples(out)
	if len(got) != 6 {
		t.Fatalf("expected 6 samples, got %d", len(got))
	}
	// First output sample should equal first source sample.
	if got[0] != 1000 {
		t.Errorf("first sample: got %d, want 1000", got[0])
	}
	// Last output sample should be close to last source sample.
	last := got[len(got)-1]
	if last < 1800 || last > 2200 {
		t.Errorf("last sample: got %d, want close to 2000", last)
	}
}

func TestResampleMono16_Downsample(t *testing.T) {
	// 6 samples at 48kHz → 2 samples at 16kHz (1/3x)
	pcm := samplesToBytes([]int16{100, 200, 300, 400, 500, 600})
	out := audio.ResampleMono16(pcm, 48000, 16000)
	got := bytesToSamples(out)
	if len(got) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(got))
	}
}

func TestResampleMono16_ZeroRate(t *testing.T) {
	pcm := samplesToBytes([]int16{100, 200})
	if out := audio.ResampleMono16(pcm, 0, 16000); len(out) != len(pcm) {
		t.Errorf("zero src rate: got %d bytes, want input returned", len(out))
	}
	if out := audio.ResampleMono16(pcm, 16000, 0); len(out) != len(pcm) {
		t.Errorf("zero dst rate: got %d bytes, want input returned", len(out))
	}
}

func TestNormalize_DownsamplesToPipelineRate(t *testing.T) {
	// 24kHz source (3 samples) → 16kHz (2 samples).
	pcm := samplesToBytes([]int16{300, 600, 900})
	out := audio.Normalize(pcm, 24000)
	if got := len(out) / 2; got != 2 {
		t.Fatalf("expected 2 samples, got %d", got)
	}
}

func TestNormalize_PassThrough(t *testing.T) {
	pcm := samplesToBytes([]int16{1, 2, 3})
	if out := audio.Normalize(pcm, audio.DefaultSampleRate); &out[0] != &pcm[0] {
		t.Error("matching rate should return the input slice")
	}
	if out := audio.Normalize(pcm, 0); &out[0] != &pcm[0] {
		t.Error("unknown rate should return the input slice")
	}
}
