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

// Upmix blends a fraction of the front stereo signal into a rear
// channel, giving the rear pair some presence even on material with
// little discrete surround content. amount is expected in [0, 1].
//
// rearOut = rearIn + amount * front * 0.5
func Upmix(rearIn, front, amount float64) float64 {
	return rearIn + amount*front*0.5
}
