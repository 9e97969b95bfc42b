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
	"context"

	"github.com/tatsu-t/split51/internal/config"
)

// Control is the seam an external UI (a tray icon, out of scope here)
// would call through. It is implemented by *Engine and touches the
// engine only from the control thread; every method below is safe to
// call concurrently with the audio callbacks because it either reads an
// atomic snapshot or enqueues a command for the playback thread to apply.
type Control interface {
	Enable(ctx context.Context) error
	Disable()
	State() PipelineState

	SetSourceDevice(name string)
	SetTargetDevice(name string)
	SetMasterVolume(volume float64)
	SetBalance(balance float64)
	SetSwap(swap bool)
	SetChannel(left bool, ch config.ChannelConfig)
	PlayTestTone(left bool, freqHz float64, durationMs float64)

	Snapshot() Snapshot
}

// Snapshot is the observable state a UI polls to render status: no
// method on it touches the audio thread, it is built entirely from
// atomics and the last-published config.
type Snapshot struct {
	State       PipelineState
	FaultReason error
	Config      config.GlobalConfig
	LeftRMSDB   float64
	RightRMSDB  float64
	Overflows   uint64
	Underflows  uint64
	RingQueued  int
	RingFree    int
}

// Snapshot reports the engine's current observable state without
// blocking on or otherwise disturbing the audio threads.
func (e *Engine) Snapshot() Snapshot {
	s := Snapshot{
		State:  e.State(),
		Config: e.Config(),
	}
	s.FaultReason = e.FaultReason()
	s.Overflows = e.overflowCount.Load()
	s.Underflows = e.underflowCount.Load()

	if e.left != nil {
		s.LeftRMSDB, s.RightRMSDB = e.left.Levels.Get()
	}
	if e.ring != nil {
		s.RingQueued = e.ring.AvailableRead()
		s.RingFree = e.ring.AvailableWrite()
	}
	return s
}

// SetSourceDevice changes which endpoint is captured in loopback. Takes
// effect the next time the engine transitions through Disable/Enable;
// it does not hot-swap a running capture stream.
func (e *Engine) SetSourceDevice(name string) {
	cfg := e.Config()
	cfg.SourceDevice = name
	e.SetConfig(cfg)
}

// SetTargetDevice changes which endpoint playback renders to. Like
// SetSourceDevice, it takes effect on the next Enable.
func (e *Engine) SetTargetDevice(name string) {
	cfg := e.Config()
	cfg.TargetDevice = name
	e.SetConfig(cfg)
}

// SetMasterVolume sets the engine's own output gain. Syncing this with
// the OS mixer's hardware volume, if wanted, is a job for the external
// caller driving this control surface, not the engine itself.
func (e *Engine) SetMasterVolume(volume float64) {
	cfg := e.Config()
	cfg.Volume = volume
	e.SetConfig(cfg)
}

func (e *Engine) SetBalance(balance float64) {
	cfg := e.Config()
	cfg.Balance = balance
	e.SetConfig(cfg)
}

func (e *Engine) SetSwap(swap bool) {
	cfg := e.Config()
	cfg.SwapChannels = swap
	e.SetConfig(cfg)
}

// SetChannel replaces one side's full per-channel configuration
// (source, volume, mute, delay, EQ) in a single atomic update.
func (e *Engine) SetChannel(left bool, ch config.ChannelConfig) {
	cfg := e.Config()
	if left {
		cfg.Left = ch
	} else {
		cfg.Right = ch
	}
	e.SetConfig(cfg)
}
