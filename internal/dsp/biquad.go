// =================================================================================
//
//			split51 - rear-channel loopback router
//
//			Licensed under the Apache License, Version 2.0 (the "License");
//			you may not use this file except in compliance with the License.
//			You may obtain a copy of the License at
//
//			     http://www.apache.org/licenses/LICENSE-2.0
//
//			Unless required by applicable law or agreed to in writing, software
//			distributed under the License is distributed on an "AS IS" BASIS,
//			WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//			See the License for the specific language governing permissions and
//			limitations under the License.
//
// =================================================================================

// Package dsp implements the per-channel signal chain applied between
// capture and playback: a delay line, a 3-band equalizer, a mute ramp,
// stereo-to-rear upmixing, and RMS/peak level metering.
//
// Coefficients are computed on the control thread and published to the
// audio thread through an atomic pointer swap (ThreeBandEQ.SetBands
// stores an EQBands block that ThreeBandEQ.Process loads); filter memory (x1, x2, y1, y2) belongs exclusively to the
// audio thread and is never touched by the control thread, so the
// audio callback never blocks on a lock.
package dsp

import "math"

// BiquadCoeffs holds the five feedforward/feedback coefficients of an
// RBJ cookbook biquad section. It carries no history, so it is safe to
// publish from the control thread and consume from the audio thread
// without synchronization beyond the atomic pointer swap that carries
// it.
type BiquadCoeffs struct {
	B0, B1, B2 float64
	A1, A2     float64
}

// FlatCoeffs is the identity biquad: output equals input.
var FlatCoeffs = BiquadCoeffs{B0: 1}

// LowShelfCoeffs computes an RBJ low-shelf section at freq with gainDB
// boost/cut, using a fixed shelf slope S = 1 (the classic cookbook
// case, for which alpha = sin(w0)/2 * sqrt(2)).
func LowShelfCoeffs(freq, gainDB, sampleRate float64) BiquadCoeffs {
	a := math.Pow(10, gainDB/40)
	w0 := 2 * math.Pi * freq / sampleRate
	cosW0, sinW0 := math.Cos(w0), math.Sin(w0)
	alpha := sinW0 / 2 * math.Sqrt2

	a0 := (a + 1) + (a-1)*cosW0 + 2*math.Sqrt(a)*alpha
	a1 := -2 * ((a - 1) + (a+1)*cosW0)
	a2 := (a + 1) + (a-1)*cosW0 - 2*math.Sqrt(a)*alpha
	b0 := a * ((a + 1) - (a-1)*cosW0 + 2*math.Sqrt(a)*alpha)
	b1 := 2 * a * ((a - 1) - (a+1)*cosW0)
	b2 := a * ((a + 1) - (a-1)*cosW0 - 2*math.Sqrt(a)*alpha)

	return BiquadCoeffs{B0: b0 / a0, B1: b1 / a0, B2: b2 / a0, A1: a1 / a0, A2: a2 / a0}
}

// HighShelfCoeffs computes an RBJ high-shelf section, mirroring
// LowShelfCoeffs's slope convention.
func HighShelfCoeffs(freq, gainDB, sampleRate float64) BiquadCoeffs {
	a := math.Pow(10, gainDB/40)
	w0 := 2 * math.Pi * freq / sampleRate
	cosW0, sinW0 := math.Cos(w0), math.Sin(w0)
	alpha := sinW0 / 2 * math.Sqrt2

	a0 := (a + 1) - (a-1)*cosW0 + 2*math.Sqrt(a)*alpha
	a1 := 2 * ((a - 1) - (a+1)*cosW0)
	a2 := (a + 1) - (a-1)*cosW0 - 2*math.Sqrt(a)*alpha
	b0 := a * ((a + 1) + (a-1)*cosW0 + 2*math.Sqrt(a)*alpha)
	b1 := -2 * a * ((a - 1) + (a+1)*cosW0)
	b2 := a * ((a + 1) + (a-1)*cosW0 - 2*math.Sqrt(a)*alpha)

	return BiquadCoeffs{B0: b0 / a0, B1: b1 / a0, B2: b2 / a0, A1: a1 / a0, A2: a2 / a0}
}

// PeakingCoeffs computes an RBJ peaking EQ section at freq with Q and
// gainDB boost/cut.
func PeakingCoeffs(freq, gainDB, q, sampleRate float64) BiquadCoeffs {
	a := math.Pow(10, gainDB/40)
	w0 := 2 * math.Pi * freq / sampleRate
	cosW0, sinW0 := math.Cos(w0), math.Sin(w0)
	alpha := sinW0 / (2 * q)

	a0 := 1 + alpha/a
	a1 := -2 * cosW0
	a2 := 1 - alpha/a
	b0 := 1 + alpha*a
	b1 := -2 * cosW0
	b2 := 1 - alpha*a

	return BiquadCoeffs{B0: b0 / a0, B1: b1 / a0, B2: b2 / a0, A1: a1 / a0, A2: a2 / a0}
}

// BiquadState is the per-instance filter memory, owned and mutated only
// by the audio thread that calls Process.
type BiquadState struct {
	x1, x2, y1, y2 float64
}

// Process applies one sample through coeffs, updating state in place.
func (s *BiquadState) Process(coeffs BiquadCoeffs, input float64) float64 {
	output := coeffs.B0*input + coeffs.B1*s.x1 + coeffs.B2*s.x2 - coeffs.A1*s.y1 - coeffs.A2*s.y2
	s.x2 = s.x1
	s.x1 = input
	s.y2 = s.y1
	s.y1 = output
	return output
}

// Reset clears filter memory.
func (s *BiquadState) Reset() {
	*s = BiquadState{}
}
