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

import "github.com/tatsu-t/split51/internal/config"

// command is a control-thread request applied on the audio thread's own
// time, between blocks, via a non-blocking queue drained with select
// default at the top of the playback callback. This keeps every write to
// shared DSP state off any path that could block the real-time thread.
type command struct {
	apply func(e *Engine)
}

// commandQueueSize bounds the number of pending commands; the control
// thread issues these one user action at a time, so a deep backlog
// would only mean a stuck audio thread, not a legitimate burst.
const commandQueueSize = 32

func (e *Engine) enqueue(apply func(e *Engine)) {
	select {
	case e.commands <- command{apply: apply}:
	default:
		e.logger.Warn("engine: command queue full, dropping command")
	}
}

// drainCommands applies every pending command without blocking. Called
// once at the top of each playback callback invocation.
func (e *Engine) drainCommands() {
	for {
		select {
		case cmd := <-e.commands:
			cmd.apply(e)
		default:
			return
		}
	}
}

// SetConfig replaces the engine's routing configuration. Values are
// clamped to their documented ranges and published at once, so Config
// and the next setter see them; the DSP chain picks them up when the
// playback callback next drains the command queue.
func (e *Engine) SetConfig(cfg config.GlobalConfig) {
	cfg.Clamp()
	e.config.Store(&cfg)
	e.enqueue(func(e *Engine) {
		e.applyConfig(e.Config())
	})
}

// Config returns the most recently published configuration.
func (e *Engine) Config() config.GlobalConfig {
	return *e.config.Load()
}
