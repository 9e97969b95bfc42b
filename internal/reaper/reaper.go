// =================================================================================
//
//			split51 - rear-channel loopback router
//
//		 split51 captures the rear surround pair from a primary playback
//	  device and routes it to a second physical stereo output.
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

// Package reaper coordinates graceful shutdown of the audio threads.
//
// The control thread Registers a name for the capture and playback
// streams as it opens them, and Done is called for each name once that
// stream's callback goroutine has exited. The control thread calls Wait with a
// timeout when it wants to stop the pipeline; if the audio threads have
// not drained within the timeout, Wait returns false and the caller is
// expected to force-close the underlying device streams.
package reaper

import (
	"log/slog"
	"slices"
	"sync"
	"time"
)

type Reaper struct {
	mu            sync.Mutex
	registrations []string
	done          chan struct{}
}

func New() *Reaper {
	return &Reaper{
		registrations: make([]string, 0, 2),
		done:          make(chan struct{}),
	}
}

// Register marks name as a thread that must call Done before a Wait can
// succeed. Called from the control thread before the stream it names is
// opened.
func (r *Reaper) Register(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if slices.Contains(r.registrations, name) {
		slog.Warn("reaper: already registered", "name", name)
		return
	}

	r.registrations = append(r.registrations, name)
	slog.Debug("reaper: registered", "name", name)
}

// Done marks name as drained. Once every registration has called Done,
// any pending Wait unblocks.
func (r *Reaper) Done(name string) {
	r.mu.Lock()

	if !slices.Contains(r.registrations, name) {
		r.mu.Unlock()
		slog.Warn("reaper: already done or never registered", "name", name)
		return
	}

	r.registrations = slices.DeleteFunc(r.registrations, func(test string) bool {
		return test == name
	})
	empty := len(r.registrations) == 0
	r.mu.Unlock()

	slog.Debug("reaper: done", "name", name)

	if empty {
		close(r.done)
	}
}

// Wait blocks until every registered name has called Done, or timeout
// elapses. Returns false on timeout, meaning at least one audio thread
// did not drain in time and must be force-closed by the caller.
func (r *Reaper) Wait(timeout time.Duration) bool {
	select {
	case <-r.done:
		return true
	case <-time.After(timeout):
		return false
	}
}
