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
package dsp

import "sync/atomic"

// EQBands is the three sets of RBJ coefficients making up one channel's
// equalizer, published as a single unit so the audio thread always sees
// a consistent low/mid/high triple even mid-update.
type EQBands struct {
	Low, Mid, High BiquadCoeffs
}

// FlatEQBands is the identity EQ: all three sections pass through
// unchanged.
var FlatEQBands = EQBands{Low: FlatCoeffs, Mid: FlatCoeffs, High: FlatCoeffs}

// ComputeEQBands derives the three RBJ sections from an EQConfig-shaped
// set of parameters, at the documented band centers: a low shelf, a
// peaking mid band, and a high shelf.
func ComputeEQBands(lowFreq, lowGainDB, midFreq, midGainDB, midQ, highFreq, highGainDB, sampleRate float64) EQBands {
	return EQBands{
		Low:  LowShelfCoeffs(lowFreq, lowGainDB, sampleRate),
		Mid:  PeakingCoeffs(midFreq, midGainDB, midQ, sampleRate),
		High: HighShelfCoeffs(highFreq, highGainDB, sampleRate),
	}
}

// ThreeBandEQ is one channel's cascade of low-shelf, mid-peak, and
// high-shelf biquads. State lives here and is owned by the audio
// thread; coefficients are read from an atomic.Pointer published by
// the control thread.
type ThreeBandEQ struct {
	coeffs atomic.Pointer[EQBands]
	low    BiquadState
	mid    BiquadState
	high   BiquadState
}

// NewThreeBandEQ returns an EQ initialized flat.
func NewThreeBandEQ() *ThreeBandEQ {
	eq := &ThreeBandEQ{}
	flat := FlatEQBands
	eq.coeffs.Store(&flat)
	return eq
}

// SetBands publishes new coefficients for the audio thread to pick up
// on its next Process call. Safe to call from the control thread
// concurrently with Process running on the audio thread.
func (eq *ThreeBandEQ) SetBands(bands EQBands) {
	eq.coeffs.Store(&bands)
}

// Process runs one sample through the low-shelf -> mid-peak -> high-shelf
// cascade using whichever coefficient set is currently published.
func (eq *ThreeBandEQ) Process(sample float64) float64 {
	bands := eq.coeffs.Load()
	s := eq.low.Process(bands.Low, sample)
	s = eq.mid.Process(bands.Mid, s)
	return eq.high.Process(bands.High, s)
}

// Reset clears all three sections' filter memory.
func (eq *ThreeBandEQ) Reset() {
	eq.low.Reset()
	eq.mid.Reset()
	eq.high.Reset()
}
