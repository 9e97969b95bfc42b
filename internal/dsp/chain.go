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

// meterUpdatePeriod is how often, in samples, the shared level readout
// is refreshed: often enough to feel live, rarely enough to cost
// nothing.
const meterUpdatePeriod = 256

// Channel is one output side's full processing chain: delay, EQ, mute
// ramp, and level metering, applied in that order to match the signal
// flow described for ChannelConfig.
type Channel struct {
	EQ    *ThreeBandEQ
	Delay *DelayLine
	Mute  *MuteRamp
	Meter *LevelMeter

	Levels *SharedLevels

	eqEnabled bool
	counter   int
}

// NewChannel builds one side's chain sized for sampleRate.
func NewChannel(sampleRate int) *Channel {
	return &Channel{
		EQ:     NewThreeBandEQ(),
		Delay:  NewDelayLine(sampleRate),
		Mute:   NewMuteRamp(sampleRate),
		Meter:  NewLevelMeter(),
		Levels: NewSharedLevels(),
	}
}

// SetEQEnabled toggles whether the EQ stage runs. When disabled the
// signal passes through untouched, saving the cascade's cost entirely
// rather than running it at flat gains.
func (c *Channel) SetEQEnabled(enabled bool) {
	c.eqEnabled = enabled
}

// Process runs one already-extracted, already-resampled sample through
// delay, EQ, and mute, in that order. Per-channel volume, master volume,
// and balance are applied by the caller afterward. Call UpdateMeter
// separately once both channels' output for the frame is known.
func (c *Channel) Process(sample float64) float64 {
	s := sample
	s = c.Delay.Process(s)
	if c.eqEnabled {
		s = c.EQ.Process(s)
	}
	s = c.Mute.Process(s)
	return s
}

// UpdateMeter folds one stereo sample pair (already processed) into the
// level meter and, every meterUpdatePeriod samples, republishes the
// smoothed RMS reading to Levels.
func (c *Channel) UpdateMeter(left, right float64) {
	c.Meter.Process(left, right)
	c.counter++
	if c.counter >= meterUpdatePeriod {
		c.counter = 0
		l, r := c.Meter.RMSDB()
		c.Levels.Update(l, r)
	}
}

// Reset clears the EQ and delay-line history and the meter update
// counter. The mute ramp position and the meter readings are kept.
func (c *Channel) Reset() {
	c.EQ.Reset()
	c.Delay.Reset()
	c.counter = 0
}
