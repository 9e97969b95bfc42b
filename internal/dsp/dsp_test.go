package dsp

import "testing"

func TestDelayLineHoldsOutputUntilDelayElapses(t *testing.T) {
	d := NewDelayLine(1000)
	d.SetDelaySamples(10)

	for i := 0; i < 10; i++ {
		if got := d.Process(1.0); got != 0.0 {
			t.Fatalf("sample %d: got %v, want 0 before delay elapses", i, got)
		}
	}
	if got := d.Process(1.0); got != 1.0 {
		t.Fatalf("got %v, want 1.0 once delay elapses", got)
	}
}

func TestDelayLineZeroDelayIsPassthrough(t *testing.T) {
	d := NewDelayLine(1000)
	if got := d.Process(0.42); got != 0.42 {
		t.Fatalf("got %v, want 0.42 passthrough", got)
	}
}

func TestDelayLineClampsToCapacity(t *testing.T) {
	d := NewDelayLine(1000) // 200 samples capacity
	d.SetDelaySamples(10000)
	if d.delaySamples != len(d.buf) {
		t.Fatalf("delaySamples=%d, want clamp to capacity %d", d.delaySamples, len(d.buf))
	}
}

func TestLevelMeterTracksKnownAmplitude(t *testing.T) {
	m := NewLevelMeter()
	for i := 0; i < 1000; i++ {
		m.Process(0.5, 0.5)
	}
	l, r := m.RMSDB()
	// 0.5 amplitude is approximately -6 dBFS.
	if l < -10 || l > -4 {
		t.Fatalf("left RMS = %v dB, want roughly -6 dB", l)
	}
	if r < -10 || r > -4 {
		t.Fatalf("right RMS = %v dB, want roughly -6 dB", r)
	}
}

func TestLevelMeterSilenceFloorsAtMeterFloor(t *testing.T) {
	m := NewLevelMeter()
	for i := 0; i < 100; i++ {
		m.Process(0, 0)
	}
	l, r := m.RMSDB()
	if l != meterFloorDB || r != meterFloorDB {
		t.Fatalf("got l=%v r=%v, want floor %v", l, r, meterFloorDB)
	}
}

func TestSharedLevelsRoundTripsWithinResolution(t *testing.T) {
	s := NewSharedLevels()
	s.Update(-12.3, -45.6)
	l, r := s.Get()
	if absDiff(l, -12.3) > 0.15 {
		t.Fatalf("left got %v, want near -12.3", l)
	}
	if absDiff(r, -45.6) > 0.15 {
		t.Fatalf("right got %v, want near -45.6", r)
	}
}

func absDiff(a, b float64) float64 {
	if a > b {
		return a - b
	}
	return b - a
}

func TestFlatBiquadIsIdentity(t *testing.T) {
	var s BiquadState
	for _, in := range []float64{0.1, -0.3, 0.9, -1.0, 0.0} {
		out := s.Process(FlatCoeffs, in)
		if out != in {
			t.Fatalf("flat biquad changed %v to %v", in, out)
		}
	}
}

func TestThreeBandEQFlatIsIdentity(t *testing.T) {
	eq := NewThreeBandEQ()
	for _, in := range []float64{0.1, -0.3, 0.9, -1.0, 0.0, 0.25} {
		out := eq.Process(in)
		if absDiff(out, in) > 1e-9 {
			t.Fatalf("flat EQ changed %v to %v", in, out)
		}
	}
}

func TestMuteRampMutesToZeroOverRampDuration(t *testing.T) {
	sampleRate := 48000
	r := NewMuteRamp(sampleRate)
	r.SetMuted(true)

	rampSamples := int(float64(sampleRate) * MuteRampMs / 1000.0)

	var last float64 = 1.0
	for i := 0; i < rampSamples; i++ {
		out := r.Process(1.0)
		if out > last+1e-9 {
			t.Fatalf("sample %d: gain increased during mute ramp (%v -> %v)", i, last, out)
		}
		last = out
	}
	if r.Gain() > 1e-6 {
		t.Fatalf("gain after ramp duration = %v, want ~0", r.Gain())
	}
}

func TestMuteRampUnmutesBackToFullGain(t *testing.T) {
	sampleRate := 48000
	r := NewMuteRamp(sampleRate)
	r.SetMuted(true)
	for i := 0; i < sampleRate; i++ {
		r.Process(1.0)
	}
	r.SetMuted(false)
	for i := 0; i < sampleRate; i++ {
		r.Process(1.0)
	}
	if absDiff(r.Gain(), 1.0) > 1e-6 {
		t.Fatalf("gain after unmute = %v, want 1.0", r.Gain())
	}
}

func TestUpmixAtZeroAmountIsPassthrough(t *testing.T) {
	if got := Upmix(0.3, 0.9, 0.0); got != 0.3 {
		t.Fatalf("got %v, want 0.3 passthrough at amount=0", got)
	}
}

func TestUpmixBlendsHalfOfFrontScaledByAmount(t *testing.T) {
	got := Upmix(0.0, 1.0, 1.0)
	want := 0.5
	if absDiff(got, want) > 1e-9 {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestChannelProcessPassesThroughWhenFlatAndUndelayed(t *testing.T) {
	c := NewChannel(48000)
	for _, in := range []float64{0.1, -0.2, 0.3} {
		out := c.Process(in)
		if absDiff(out, in) > 1e-9 {
			t.Fatalf("got %v, want %v through a flat unconfigured chain", out, in)
		}
	}
}
