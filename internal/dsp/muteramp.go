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

// MuteRampMs is the duration of the linear fade applied whenever a
// channel's mute state changes, avoiding an audible click.
const MuteRampMs = 10.0

// MuteRamp applies a linear gain ramp toward 0.0 (muted) or 1.0
// (unmuted) over MuteRampMs. The target is published atomically by the
// control thread; the current gain and step size are audio-thread-only
// state.
type MuteRamp struct {
	target atomic.Bool // true = muted (ramping toward 0)
	step   float64
	gain   float64
}

// NewMuteRamp builds an unmuted ramp sized for sampleRate.
func NewMuteRamp(sampleRate int) *MuteRamp {
	r := &MuteRamp{gain: 1.0}
	r.setStep(sampleRate)
	return r
}

func (r *MuteRamp) setStep(sampleRate int) {
	rampSamples := float64(sampleRate) * MuteRampMs / 1000.0
	if rampSamples < 1 {
		rampSamples = 1
	}
	r.step = 1.0 / rampSamples
}

// SetMuted publishes the desired mute state; the audio thread ramps
// toward it gradually rather than snapping.
func (r *MuteRamp) SetMuted(muted bool) {
	r.target.Store(muted)
}

// Process advances the ramp by one sample and returns sample scaled by
// the current gain.
func (r *MuteRamp) Process(sample float64) float64 {
	if r.target.Load() {
		r.gain -= r.step
		if r.gain < 0 {
			r.gain = 0
		}
	} else {
		r.gain += r.step
		if r.gain > 1 {
			r.gain = 1
		}
	}
	return sample * r.gain
}

// Gain reports the current ramp position, mostly useful for tests.
func (r *MuteRamp) Gain() float64 {
	return r.gain
}
