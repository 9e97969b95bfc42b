package audio

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// writeWAVFixture encodes a short stereo sine tone to a 16-bit PCM WAV
// file and returns its path, for tests that want to exercise the
// resampler against a decoded file rather than a hand-built slice.
func writeWAVFixture(t *testing.T, sampleRate, numFrames int) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "fixture.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("creating fixture file: %v", err)
	}
	defer f.Close()

	enc := wav.NewEncoder(f, sampleRate, 16, 2, 1)
	buf := &goaudio.IntBuffer{
		Format: &goaudio.Format{NumChannels: 2, SampleRate: sampleRate},
		Data:   make([]int, numFrames*2),
	}
	for i := 0; i < numFrames; i++ {
		s := math.Sin(2 * math.Pi * 440 * float64(i) / float64(sampleRate))
		v := int(s * 0.5 * 32767)
		buf.Data[2*i] = v
		buf.Data[2*i+1] = v
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("encoding fixture: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("closing encoder: %v", err)
	}
	return path
}

// readWAVFixture decodes path back into StereoFrames for feeding
// through the resampler.
func readWAVFixture(t *testing.T, path string) []StereoFrame {
	t.Helper()

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("opening fixture file: %v", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	pcm, err := dec.FullPCMBuffer()
	if err != nil {
		t.Fatalf("decoding fixture: %v", err)
	}

	frames := make([]StereoFrame, len(pcm.Data)/2)
	for i := range frames {
		frames[i] = StereoFrame{
			L: float32(pcm.Data[2*i]) / 32768,
			R: float32(pcm.Data[2*i+1]) / 32768,
		}
	}
	return frames
}

func TestResamplerPassthroughWhenRatesEqual(t *testing.T) {
	r := New(48000, 48000)
	in := []StereoFrame{{L: 0.1, R: -0.2}, {L: 0.3, R: 0.4}}
	out := r.Process(in, nil)
	if len(out) != len(in) {
		t.Fatalf("got %d frames, want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("frame %d: got %+v want %+v", i, out[i], in[i])
		}
	}
}

func TestResamplerPreservesDCInput(t *testing.T) {
	r := New(44100, 48000)
	in := make([]StereoFrame, 2000)
	for i := range in {
		in[i] = StereoFrame{L: 0.5, R: -0.5}
	}

	var out []StereoFrame
	out = r.Process(in, out)

	if len(out) < 1000 {
		t.Fatalf("expected a substantial number of output frames, got %d", len(out))
	}

	// Skip the first few frames, which carry interpolation warm-up and
	// the anti-alias filter's settling transient.
	for i := 50; i < len(out); i++ {
		if math.Abs(float64(out[i].L-0.5)) > 0.02 {
			t.Fatalf("frame %d L=%v drifted from steady DC input", i, out[i].L)
		}
		if math.Abs(float64(out[i].R+0.5)) > 0.02 {
			t.Fatalf("frame %d R=%v drifted from steady DC input", i, out[i].R)
		}
	}
}

func TestResamplerUpsampleProducesMoreFrames(t *testing.T) {
	r := New(44100, 48000)
	in := make([]StereoFrame, 4410)
	for i := range in {
		in[i] = StereoFrame{L: float32(math.Sin(float64(i))), R: float32(math.Cos(float64(i)))}
	}
	out := r.Process(in, nil)
	if len(out) <= len(in) {
		t.Fatalf("upsampling 44100->48000 should yield more frames: got %d from %d in", len(out), len(in))
	}
}

func TestResamplerDownsampleProducesFewerFrames(t *testing.T) {
	r := New(48000, 44100)
	in := make([]StereoFrame, 4800)
	for i := range in {
		in[i] = StereoFrame{L: float32(math.Sin(float64(i))), R: float32(math.Cos(float64(i)))}
	}
	out := r.Process(in, nil)
	if len(out) >= len(in) {
		t.Fatalf("downsampling 48000->44100 should yield fewer frames: got %d from %d in", len(out), len(in))
	}
}

func TestResamplerUpsamplesDecodedWAVFixture(t *testing.T) {
	path := writeWAVFixture(t, 44100, 4410)
	in := readWAVFixture(t, path)

	r := New(44100, 48000)
	out := r.Process(in, nil)

	if len(out) <= len(in) {
		t.Fatalf("upsampling decoded fixture should yield more frames: got %d from %d in", len(out), len(in))
	}
	for i, fr := range out {
		if math.Abs(float64(fr.L)) > 1.1 || math.Abs(float64(fr.R)) > 1.1 {
			t.Fatalf("frame %d exceeds expected amplitude range: %+v", i, fr)
		}
	}
}

func TestResamplerResetClearsHistory(t *testing.T) {
	r := New(44100, 48000)
	r.Process(make([]StereoFrame, 100), nil)
	r.Reset()
	if r.hasFrame != [4]bool{} {
		t.Fatalf("Reset did not clear frame history")
	}
	if r.pos != 0 {
		t.Fatalf("Reset did not clear position, got %v", r.pos)
	}
}
