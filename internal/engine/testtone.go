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
	"math"
	"sync/atomic"
)

const (
	defaultTestToneFreqHz     = 440.0
	defaultTestToneDurationMs = 500.0
)

// testToneGenerator plays a short sine burst on one output channel at
// a time, used to verify that a given side of the rear pair is wired
// to the output the user thinks it is.
type testToneGenerator struct {
	sampleRate int
	active     atomic.Bool
	left       atomic.Bool // which channel the tone plays on
	freqHz     float64
	phase      float64
	step       float64
	remaining  int
}

func newTestTone(sampleRate int) *testToneGenerator {
	return &testToneGenerator{sampleRate: sampleRate}
}

// Play starts (or restarts) a tone burst of freqHz on the given
// channel for durationMs milliseconds. Non-positive values fall back
// to the documented defaults.
func (t *testToneGenerator) Play(left bool, freqHz float64, durationMs float64) {
	if freqHz <= 0 {
		freqHz = defaultTestToneFreqHz
	}
	if durationMs <= 0 {
		durationMs = defaultTestToneDurationMs
	}

	t.left.Store(left)
	t.freqHz = freqHz
	t.phase = 0
	t.step = 2 * math.Pi * freqHz / float64(t.sampleRate)
	t.remaining = int(float64(t.sampleRate) * durationMs / 1000.0)
	t.active.Store(true)
}

// fill writes the tone into dst (interleaved stereo), silencing the
// other channel, and deactivates once the burst duration has elapsed.
func (t *testToneGenerator) fill(dst []float32) {
	left := t.left.Load()
	step := t.step

	for i := 0; i+1 < len(dst); i += 2 {
		if t.remaining <= 0 {
			dst[i] = 0
			dst[i+1] = 0
			continue
		}
		sample := float32(math.Sin(t.phase))
		t.phase += step
		t.remaining--

		if left {
			dst[i] = sample
			dst[i+1] = 0
		} else {
			dst[i] = 0
			dst[i+1] = sample
		}
	}

	if t.remaining <= 0 {
		t.active.Store(false)
	}
}

// PlayTestTone queues a diagnostic tone burst of freqHz for
// durationMs on the given output channel. A no-op if the engine is
// not running, since there is no playback stream to carry it.
func (e *Engine) PlayTestTone(left bool, freqHz float64, durationMs float64) {
	if e.testTone == nil {
		return
	}
	e.testTone.Play(left, freqHz, durationMs)
}
