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
package engine

import "github.com/tatsu-t/split51/internal/audio"

// overflowLogEvery and underflowLogEvery bound how often ring buffer
// overflow/underflow is logged, per spec.md §7: every occurrence would
// flood the log during a sustained glitch, so only every 100th is
// reported.
const (
	overflowLogEvery  = 100
	underflowLogEvery = 100
)

// resampleMargin pads each popResampled source-rate pull so the
// resampler's 4-frame interpolation window always has enough lookahead
// to produce every output frame requested.
const resampleMargin = 4

// onPlayback is invoked on the playback device's own callback thread to
// fill dst with the next block of interleaved stereo samples. Queued
// configuration changes are drained here, at the start of the playback
// callback, since this is the thread that owns the DSP chain. When the
// test tone generator is active it takes priority over routed audio,
// matching how a diagnostic signal should be heard in isolation. When
// the ring buffer underruns, the remainder of dst is left at silence
// rather than repeating stale samples.
func (e *Engine) onPlayback(dst []float32) {
	e.drainCommands()

	if e.testTone != nil && e.testTone.active.Load() {
		e.testTone.fill(dst)
		return
	}

	if e.ring == nil || e.resampler == nil || e.left == nil || e.right == nil {
		for i := range dst {
			dst[i] = 0
		}
		return
	}

	cfg := e.Config()
	outFrames := len(dst) / 2
	frames := e.popResampled(outFrames)

	leftMult, rightMult := balanceMultipliers(cfg.Balance)

	n := len(frames)
	if n > outFrames {
		n = outFrames
	}
	for i := 0; i < n; i++ {
		left := e.left.Process(float64(frames[i].L))
		right := e.right.Process(float64(frames[i].R))
		e.left.UpdateMeter(left, right)
		e.right.UpdateMeter(left, right)

		outL := clamp1(left * cfg.Left.Volume * cfg.Volume * leftMult)
		outR := clamp1(right * cfg.Right.Volume * cfg.Volume * rightMult)

		dst[i*2] = float32(outL)
		dst[i*2+1] = float32(outR)
	}
	for i := n; i < outFrames; i++ {
		dst[i*2] = 0
		dst[i*2+1] = 0
	}

	if n < outFrames {
		total := e.underflowCount.Add(1)
		if total%underflowLogEvery == 0 {
			e.logger.Warn("engine: playback underrun", "occurrences", total)
		}
	}
}

// popResampled returns up to outFrames stereo frames at the target
// sample rate, pulling raw source-rate samples from the ring and
// running them through the resampler; it returns fewer when the ring
// runs dry. Any frames the resampler
// produces beyond outFrames are carried over for the next callback,
// since the resampler's output count per call does not line up evenly
// with a fixed playback period.
func (e *Engine) popResampled(outFrames int) []audio.StereoFrame {
	out := e.carry
	e.carry = nil

	ratio := float64(e.sourceFormat.SampleRate) / float64(e.targetFormat.SampleRate)
	if ratio <= 0 {
		ratio = 1
	}

	for len(out) < outFrames {
		need := outFrames - len(out)
		srcFrames := int(float64(need)*ratio) + resampleMargin

		raw := make([]float32, srcFrames*2)
		n := e.ring.PopSlice(raw)
		if n == 0 {
			break
		}

		stereo := make([]audio.StereoFrame, n/2)
		for i := range stereo {
			stereo[i] = audio.StereoFrame{L: raw[i*2], R: raw[i*2+1]}
		}
		out = e.resampler.Process(stereo, out)

		if n < len(raw) {
			break
		}
	}

	if len(out) > outFrames {
		e.carry = append(e.carry, out[outFrames:]...)
		out = out[:outFrames]
	}
	return out
}
