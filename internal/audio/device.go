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

import (
	"context"
	"errors"
	"strings"
)

// ErrDeviceRemoved wraps every error a backend reports through
// StreamErrorCallback when the underlying device was physically removed
// or otherwise invalidated by the OS, as opposed to a transient I/O
// failure on an otherwise-healthy device. The routing engine checks for
// it with errors.Is to decide between its two failure policies in
// spec.md §4.5/§7: log-and-ignore with a consecutive-error counter for
// ordinary failures, versus an immediate Reconfiguring transition for a
// removed device.
var ErrDeviceRemoved = errors.New("audio: device removed")

// Endpoint describes one render-capable audio device as seen through
// WASAPI device enumeration.
type Endpoint struct {
	ID         string
	Name       string
	Channels   int
	SampleRate int
	IsDefault  bool
}

// Format is the negotiated shared-mode stream format split51 will
// capture or render at.
type Format struct {
	SampleRate int
	Channels   int
	BitDepth   int // 16, 24, or 32 (float)
	Float      bool
}

// CaptureCallback receives one block of interleaved samples captured
// from a render-endpoint loopback stream, decoded to float32 in [-1,1]
// regardless of the endpoint's native bit depth.
type CaptureCallback func(samples []float32, format Format)

// StreamErrorCallback reports a single capture- or playback-thread I/O
// failure, per spec.md §4.5's callback error contract. Wrap the error in
// ErrDeviceRemoved when the failure means the device itself is gone
// rather than a transient glitch on a still-present device.
type StreamErrorCallback func(err error)

// Backend abstracts WASAPI device I/O so the routing engine can be
// tested without real hardware. The production implementation lives in
// wasapi_windows.go; tests substitute a fake.
type Backend interface {
	// Enumerate lists active render endpoints.
	Enumerate(ctx context.Context) ([]Endpoint, error)

	// DefaultRenderEndpoint returns the system default playback device.
	DefaultRenderEndpoint(ctx context.Context) (Endpoint, error)

	// OpenLoopbackCapture starts capturing the given render endpoint's
	// output mix and invokes onSamples from a dedicated OS thread until
	// ctx is cancelled or Close is called on the returned Stream. Any
	// per-callback I/O failure is reported through onError rather than
	// onSamples, since a failed callback has no samples to deliver.
	OpenLoopbackCapture(ctx context.Context, endpoint Endpoint, onSamples CaptureCallback, onError StreamErrorCallback) (Stream, error)

	// OpenPlayback starts a shared-mode render stream to the given
	// endpoint; pull is called from the device's callback thread to
	// fetch the next block of interleaved float32 samples to render.
	// Any per-callback I/O failure is reported through onError.
	OpenPlayback(ctx context.Context, endpoint Endpoint, format Format, pull func(dst []float32), onError StreamErrorCallback) (Stream, error)
}

// Stream is a running capture or playback stream.
type Stream interface {
	Format() Format
	Close() error

	// Done closes once the stream's underlying callback goroutine has
	// actually exited, which may happen some time after Close returns.
	// Callers that need to know the device is fully released (the
	// reaper shutdown path) wait on this rather than on Close.
	Done() <-chan struct{}

	// PeriodFrames reports the device's negotiated callback period, in
	// frames, as returned by the backend's buffer-size negotiation. The
	// routing engine uses the playback stream's period to size the ring
	// buffer per spec.md §3.
	PeriodFrames() int
}

// ResolveByName picks the endpoint whose friendly name or device ID
// best matches name. Matching degrades through four tiers exactly as
// encountered in practice: an exact (case-insensitive) name match, a
// word of name (longer than two characters) found in the device ID, a
// substring match in either direction between name and the friendly
// name, and finally the first available endpoint as a last resort. An empty endpoints slice or
// empty name is always a failed resolution.
func ResolveByName(endpoints []Endpoint, name string) (Endpoint, bool) {
	if name == "" || len(endpoints) == 0 {
		return Endpoint{}, false
	}

	target := strings.ToLower(name)

	for _, ep := range endpoints {
		if strings.ToLower(ep.Name) == target {
			return ep, true
		}
	}

	parts := splitNameParts(target)
	for _, ep := range endpoints {
		id := strings.ToLower(ep.ID)
		for _, part := range parts {
			if len(part) > 2 && strings.Contains(id, part) {
				return ep, true
			}
		}
	}

	for _, ep := range endpoints {
		if strings.Contains(strings.ToLower(ep.Name), target) || strings.Contains(target, strings.ToLower(ep.Name)) {
			return ep, true
		}
	}

	return endpoints[0], true
}

func splitNameParts(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		switch r {
		case ' ', '(', ')', '-':
			return true
		default:
			return false
		}
	})
}
