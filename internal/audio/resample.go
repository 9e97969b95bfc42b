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
package audio

// StereoFrame is one interleaved left/right sample pair.
type StereoFrame struct {
	L, R float32
}

// Resampler converts a stream of stereo frames from one sample rate to
// another using Catmull-Rom cubic interpolation over a 4-frame history
// window, with a one-pole low-pass filter applied on the input side when
// downsampling to reduce aliasing.
//
// It is stateful and processes fixed-size chunks: feed it whatever the
// capture callback produced, and it returns however many output frames
// that much input is worth, carrying fractional position across calls.
type Resampler struct {
	ratio float64 // inputRate / outputRate

	frames   [4]StereoFrame
	hasFrame [4]bool
	pos      float64

	useFilter   bool
	filterAlpha float32
	filterState StereoFrame

	passthrough bool

	pending []StereoFrame // frames awaiting interpolation, fed by Process
	cursor  int
	eof     bool
}

// New builds a resampler converting from inputRate to outputRate. When
// the two rates are equal, Process is a pass-through copy and no
// filtering or interpolation state is allocated.
func New(inputRate, outputRate int) *Resampler {
	r := &Resampler{
		ratio:       float64(inputRate) / float64(outputRate),
		passthrough: inputRate == outputRate,
	}
	r.useFilter = r.ratio > 1.0
	if r.useFilter {
		r.filterAlpha = 0.5
	}
	return r
}

// Reset clears interpolation history and the fractional position.
func (r *Resampler) Reset() {
	r.hasFrame = [4]bool{}
	r.pos = 0
	r.filterState = StereoFrame{}
	r.pending = nil
	r.cursor = 0
	r.eof = false
}

func (r *Resampler) fetchNext() (StereoFrame, bool) {
	if r.cursor >= len(r.pending) {
		return StereoFrame{}, false
	}
	f := r.pending[r.cursor]
	r.cursor++
	return f, true
}

func (r *Resampler) shiftIn(f StereoFrame, ok bool) {
	r.frames[0] = r.frames[1]
	r.frames[1] = r.frames[2]
	r.frames[2] = r.frames[3]
	r.hasFrame[0] = r.hasFrame[1]
	r.hasFrame[1] = r.hasFrame[2]
	r.hasFrame[2] = r.hasFrame[3]

	if !ok {
		r.hasFrame[3] = false
		return
	}

	if r.useFilter {
		f.L = r.filterAlpha*f.L + (1-r.filterAlpha)*r.filterState.L
		f.R = r.filterAlpha*f.R + (1-r.filterAlpha)*r.filterState.R
		r.filterState = f
	}

	r.frames[3] = f
	r.hasFrame[3] = true
}

// Process converts in to the output rate, appending to out (which may
// be nil) and returning the extended slice. Pass-through mode simply
// copies in. Any input frames left over after the last full output
// frame are retained internally and consumed on the next call.
func (r *Resampler) Process(in []StereoFrame, out []StereoFrame) []StereoFrame {
	if r.passthrough {
		return append(out, in...)
	}
	if len(in) == 0 {
		return out
	}

	r.pending = in
	r.cursor = 0

	if !r.hasFrame[1] {
		for i := 0; i < 4; i++ {
			f, ok := r.fetchNext()
			if !ok {
				if i == 0 {
					return out
				}
				for j := i; j < 4; j++ {
					r.frames[j] = r.frames[i-1]
					r.hasFrame[j] = true
				}
				break
			}
			if i == 0 && r.useFilter {
				r.filterState = f
			}
			r.frames[i] = f
			r.hasFrame[i] = true
		}
	}

	for {
		ranOut := false
		for r.pos >= 1.0 {
			r.pos -= 1.0
			f, ok := r.fetchNext()
			if !ok {
				// Keep the step pending so the next call shifts in its
				// first frame before interpolating again.
				r.pos += 1.0
				ranOut = true
				break
			}
			r.shiftIn(f, true)
		}
		if ranOut || !r.hasFrame[1] || !r.hasFrame[2] {
			break
		}

		alpha := float32(r.pos)
		out = append(out, StereoFrame{
			L: cubic(y(r.frames[0].L, r.hasFrame[0], r.frames[1].L), r.frames[1].L, r.frames[2].L, y(r.frames[3].L, r.hasFrame[3], r.frames[2].L), alpha),
			R: cubic(y(r.frames[0].R, r.hasFrame[0], r.frames[1].R), r.frames[1].R, r.frames[2].R, y(r.frames[3].R, r.hasFrame[3], r.frames[2].R), alpha),
		})
		r.pos += r.ratio
	}

	return out
}

func y(v float32, has bool, fallback float32) float32 {
	if has {
		return v
	}
	return fallback
}

// cubic is a Catmull-Rom spline evaluated at fractional position x
// between y1 and y2, given neighbors y0 and y3.
func cubic(y0, y1, y2, y3, x float32) float32 {
	a0 := -0.5*y0 + 1.5*y1 - 1.5*y2 + 0.5*y3
	a1 := y0 - 2.5*y1 + 2*y2 - 0.5*y3
	a2 := -0.5*y0 + 0.5*y2
	a3 := y1
	return a0*x*x*x + a1*x*x + a2*x + a3
}
