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

import (
	"github.com/tatsu-t/split51/internal/audio"
	"github.com/tatsu-t/split51/internal/config"
	"github.com/tatsu-t/split51/internal/dsp"
)

// onCapture is invoked on the capture device's own callback thread for
// every block of interleaved samples read from the loopback source. It
// only extracts the configured rear pair, upmixes, and swaps: rate
// conversion, the DSP chain, and gain live on the playback thread so
// they run at the target sample rate rather than the source rate. It
// allocates one interleaved output slice per call; it never blocks and
// never takes a contended lock: configuration reads come from an
// atomic.Pointer snapshot.
func (e *Engine) onCapture(samples []float32, format audio.Format) {
	if e.ring == nil {
		return
	}

	cfg := e.Config()
	if !cfg.Enabled {
		return
	}

	channels := format.Channels
	if channels == 0 {
		return
	}
	frames := len(samples) / channels

	interleaved := make([]float32, frames*2)

	for i := 0; i < frames; i++ {
		base := i * channels
		frame := samples[base : base+channels]

		fl := sampleAt(frame, 0)
		fr := sampleAt(frame, 1)

		left := extractChannel(frame, cfg.Left, channels)
		right := extractChannel(frame, cfg.Right, channels)

		if cfg.UpmixAmount > 0 {
			left = dsp.Upmix(left, float64(fl), cfg.UpmixAmount)
			right = dsp.Upmix(right, float64(fr), cfg.UpmixAmount)
		}

		if cfg.SwapChannels {
			left, right = right, left
		}

		interleaved[i*2] = float32(left)
		interleaved[i*2+1] = float32(right)
	}

	if dropped := e.ring.PushSlice(interleaved); dropped > 0 {
		total := e.overflowCount.Add(1)
		if total%overflowLogEvery == 0 {
			e.logger.Warn("engine: ring buffer overflow, dropping oldest samples", "dropped", dropped, "occurrences", total)
		}
	}
}

// extractChannel reads the configured source channel, honoring the
// frame's actual channel count so a source requesting SL/SR on a 5.1
// stream degrades to 0 rather than indexing out of bounds. Mute (in the
// DSP chain) and per-channel volume are applied downstream on the
// playback thread, since they must run on resampled target-rate samples.
func extractChannel(frame []float32, ch config.ChannelConfig, channels int) float64 {
	var value float32
	switch ch.Source {
	case config.SourceMix:
		value = (sampleAt(frame, 0) + sampleAt(frame, 1)) / 2
	case config.SourceSilence:
		value = 0
	default:
		idx, ok := ch.Source.Index(channels)
		if !ok {
			idx = -1 // sampleAt yields 0 for an out-of-range index
		}
		value = sampleAt(frame, idx)
	}

	return float64(value)
}

func sampleAt(frame []float32, idx int) float32 {
	if idx < 0 || idx >= len(frame) {
		return 0
	}
	return frame[idx]
}

// balanceMultipliers mirrors a conventional pan law: positive balance
// attenuates the left channel, negative balance attenuates the right.
func balanceMultipliers(balance float64) (left, right float64) {
	left, right = 1.0, 1.0
	if balance > 0 {
		left = 1.0 - balance
	} else if balance < 0 {
		right = 1.0 + balance
	}
	return left, right
}

func clamp1(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}
