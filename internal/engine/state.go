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

// Package engine owns the routing pipeline's state machine, the
// capture and playback callback bodies, per-channel signal extraction,
// and the control command queue.
package engine

import "fmt"

// PipelineState is the routing engine's lifecycle state.
type PipelineState int

const (
	StateStopped PipelineState = iota
	StateStarting
	StateRunning
	StateReconfiguring
	StateFaulted
)

func (s PipelineState) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateReconfiguring:
		return "reconfiguring"
	case StateFaulted:
		return "faulted"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}
