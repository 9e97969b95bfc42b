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
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tatsu-t/split51/internal/audio"
	"github.com/tatsu-t/split51/internal/config"
	"github.com/tatsu-t/split51/internal/dsp"
	"github.com/tatsu-t/split51/internal/reaper"
)

// disableTimeout bounds how long Disable waits for the capture and
// playback threads to drain before force-closing their streams.
const disableTimeout = 500 * time.Millisecond

// playbackChannels is the fixed stereo output width split51 renders,
// regardless of how many channels the source endpoint exposes.
const playbackChannels = 2

// Engine owns one full capture -> route -> playback pipeline: a single
// source endpoint read in loopback, routed through per-channel DSP
// chains, and rendered to a single target endpoint.
type Engine struct {
	backend audio.Backend
	logger  *slog.Logger

	config atomic.Pointer[config.GlobalConfig]

	state   atomic.Int32 // PipelineState
	faultMu sync.Mutex
	fault   error

	commands chan command

	left  *dsp.Channel
	right *dsp.Channel

	resampler *audio.Resampler
	ring      *audio.RingBuffer
	carry     []audio.StereoFrame

	sourceFormat audio.Format
	targetFormat audio.Format

	reaper *reaper.Reaper
	cancel context.CancelFunc

	// parentCtx is the caller's original context passed to Enable,
	// retained so a reconfigure triggered by a removed device can reopen
	// the pipeline under the same lifetime rather than one scoped to the
	// run that just failed.
	parentCtx context.Context

	captureStream  audio.Stream
	playbackStream audio.Stream

	testTone *testToneGenerator

	overflowCount  atomic.Uint64
	underflowCount atomic.Uint64

	captureErrors  errorWindow
	playbackErrors errorWindow
}

// streamKind distinguishes which audio thread reported a callback
// error, since the capture and playback streams fail and recover
// independently.
type streamKind int

const (
	streamCapture streamKind = iota
	streamPlayback
)

func (k streamKind) String() string {
	if k == streamPlayback {
		return "playback"
	}
	return "capture"
}

// consecutiveErrorFaultThreshold and consecutiveErrorWindow implement
// spec.md §4.5's "ten consecutive errors within one second transition
// to Faulted" callback failure policy.
const (
	consecutiveErrorFaultThreshold = 10
	consecutiveErrorWindow         = time.Second
)

// errorWindow counts callback errors within a one-second window that
// opens at the first error and restarts with the first error after it
// expires; successful callbacks are not seen and do not reset the
// count. Only the audio thread that owns it ever calls tick, so it
// needs no synchronization of its own.
type errorWindow struct {
	count      int
	windowFrom time.Time
}

func (w *errorWindow) tick() int {
	now := time.Now()
	if w.count == 0 || now.Sub(w.windowFrom) > consecutiveErrorWindow {
		w.count = 1
		w.windowFrom = now
	} else {
		w.count++
	}
	return w.count
}

func (w *errorWindow) reset() {
	*w = errorWindow{}
}

// deviceRetryDelay is how long Enable waits before retrying a single
// transient device-open failure before giving up and faulting, per
// spec.md §7's "transient device errors are retried once" policy.
const deviceRetryDelay = 250 * time.Millisecond

// openWithRetry calls open once and, on failure, waits deviceRetryDelay
// and tries exactly once more. A persistent failure after the retry is
// returned to the caller to fault the engine.
func openWithRetry(open func() (audio.Stream, error)) (audio.Stream, error) {
	stream, err := open()
	if err == nil {
		return stream, nil
	}
	time.Sleep(deviceRetryDelay)
	return open()
}

// New constructs an Engine bound to backend, starting in the Stopped
// state with the given initial configuration.
func New(backend audio.Backend, logger *slog.Logger, initial config.GlobalConfig) *Engine {
	initial.Clamp()
	e := &Engine{
		backend:  backend,
		logger:   logger,
		commands: make(chan command, commandQueueSize),
	}
	e.config.Store(&initial)
	e.state.Store(int32(StateStopped))
	return e
}

// State returns the engine's current lifecycle state.
func (e *Engine) State() PipelineState {
	return PipelineState(e.state.Load())
}

// FaultReason returns the error that moved the engine into Faulted, or
// nil if the engine is not faulted.
func (e *Engine) FaultReason() error {
	e.faultMu.Lock()
	defer e.faultMu.Unlock()
	return e.fault
}

func (e *Engine) fail(err error) {
	e.faultMu.Lock()
	e.fault = err
	e.faultMu.Unlock()
	e.state.Store(int32(StateFaulted))
	e.logger.Error("engine: faulted", "error", err)
}

// Enable resolves the configured source and target endpoints, opens
// the capture and playback streams, and starts routing. It is a no-op
// if the engine is already Running or Starting.
func (e *Engine) Enable(ctx context.Context) error {
	switch e.State() {
	case StateRunning, StateStarting:
		return nil
	}

	e.state.Store(int32(StateStarting))
	cfg := e.Config()

	e.parentCtx = ctx
	e.captureErrors.reset()
	e.playbackErrors.reset()

	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.reaper = reaper.New()

	endpoints, err := e.backend.Enumerate(runCtx)
	if err != nil {
		cancel()
		e.fail(errFatal("enumerating endpoints", err))
		return e.FaultReason()
	}

	sourceEp, ok := resolveSource(endpoints, cfg.SourceDevice)
	if !ok {
		cancel()
		err := errDeviceNotFound(cfg.SourceDevice)
		e.fail(err)
		return err
	}
	if sourceEp.Channels < 4 {
		cancel()
		err := errUnsupportedFormat("source endpoint exposes fewer than 4 channels, rear pair unavailable")
		e.fail(err)
		return err
	}

	targetEp, ok := audio.ResolveByName(endpoints, cfg.TargetDevice)
	if !ok {
		cancel()
		err := errDeviceNotFound(cfg.TargetDevice)
		e.fail(err)
		return err
	}

	targetFormat := audio.Format{SampleRate: targetEp.SampleRate, Channels: playbackChannels, BitDepth: 32, Float: true}

	e.reaper.Register("capture")
	captureStream, err := openWithRetry(func() (audio.Stream, error) {
		return e.backend.OpenLoopbackCapture(runCtx, sourceEp, e.onCapture, e.onCaptureError)
	})
	if err != nil {
		cancel()
		e.reaper.Done("capture")
		err := errDeviceBusy(sourceEp.Name, err)
		e.fail(err)
		return err
	}
	e.captureStream = captureStream
	e.sourceFormat = captureStream.Format()
	go func() { <-captureStream.Done(); e.reaper.Done("capture") }()

	e.left = dsp.NewChannel(targetFormat.SampleRate)
	e.right = dsp.NewChannel(targetFormat.SampleRate)
	e.resampler = audio.New(e.sourceFormat.SampleRate, targetFormat.SampleRate)
	e.carry = nil
	e.targetFormat = targetFormat
	e.applyConfig(cfg)

	e.reaper.Register("playback")
	playbackStream, err := openWithRetry(func() (audio.Stream, error) {
		return e.backend.OpenPlayback(runCtx, targetEp, targetFormat, e.onPlayback, e.onPlaybackError)
	})
	if err != nil {
		e.captureStream.Close()
		e.reaper.Done("playback")
		cancel()
		err := errDeviceBusy(targetEp.Name, err)
		e.fail(err)
		return err
	}
	e.playbackStream = playbackStream
	e.testTone = newTestTone(targetFormat.SampleRate)

	// The ring buffer is sized from the playback device's negotiated
	// period, per spec.md §3, so it is only created once that period is
	// known; onCapture nil-guards against the brief window beforehand.
	e.ring = audio.NewRingBuffer(ringCapacitySamples(playbackStream.PeriodFrames()))

	go func() { <-playbackStream.Done(); e.reaper.Done("playback") }()

	e.state.Store(int32(StateRunning))
	e.logger.Info("engine: running", "source", sourceEp.Name, "target", targetEp.Name,
		"source_rate", e.sourceFormat.SampleRate, "target_rate", targetFormat.SampleRate)
	return nil
}

// Disable stops routing and closes both streams. It waits up to
// disableTimeout for the capture and playback threads to register as
// drained through the reaper; on timeout it force-closes the streams
// rather than waiting indefinitely, since split51 must never hang on
// shutdown.
func (e *Engine) Disable() {
	if e.State() == StateStopped {
		return
	}

	if e.cancel != nil {
		e.cancel()
	}

	if e.reaper != nil && !e.reaper.Wait(disableTimeout) {
		e.logger.Warn("engine: audio threads did not drain in time, forcing stream close")
	}

	if e.captureStream != nil {
		e.captureStream.Close()
		e.captureStream = nil
	}
	if e.playbackStream != nil {
		e.playbackStream.Close()
		e.playbackStream = nil
	}

	e.state.Store(int32(StateStopped))
	e.logger.Info("engine: stopped")
}

func resolveSource(endpoints []audio.Endpoint, name string) (audio.Endpoint, bool) {
	if name == "" {
		for _, ep := range endpoints {
			if ep.IsDefault {
				return ep, true
			}
		}
	}
	return audio.ResolveByName(endpoints, name)
}

func (e *Engine) applyConfig(cfg config.GlobalConfig) {
	e.config.Store(&cfg)

	// Before the first Enable, left/right don't exist yet: the config
	// update still lands (the next Enable reads it via Config()), there
	// is just no running DSP chain to push it into.
	if e.left == nil || e.right == nil {
		return
	}

	e.left.SetEQEnabled(hasNonZeroGain(cfg.Left.EQ))
	e.right.SetEQEnabled(hasNonZeroGain(cfg.Right.EQ))

	if e.sourceFormat.SampleRate == 0 {
		return
	}
	sampleRate := e.targetFormat.SampleRate
	if sampleRate == 0 {
		sampleRate = e.sourceFormat.SampleRate
	}

	e.left.EQ.SetBands(dsp.ComputeEQBands(
		cfg.Left.EQ.LowFreq, cfg.Left.EQ.LowGainDB,
		cfg.Left.EQ.MidFreq, cfg.Left.EQ.MidGainDB, cfg.Left.EQ.MidQ,
		cfg.Left.EQ.HighFreq, cfg.Left.EQ.HighGainDB, float64(sampleRate)))
	e.right.EQ.SetBands(dsp.ComputeEQBands(
		cfg.Right.EQ.LowFreq, cfg.Right.EQ.LowGainDB,
		cfg.Right.EQ.MidFreq, cfg.Right.EQ.MidGainDB, cfg.Right.EQ.MidQ,
		cfg.Right.EQ.HighFreq, cfg.Right.EQ.HighGainDB, float64(sampleRate)))

	e.left.Delay.SetDelayMs(cfg.Left.DelayMs, sampleRate)
	e.right.Delay.SetDelayMs(cfg.Right.DelayMs, sampleRate)

	e.left.Mute.SetMuted(cfg.Left.Muted)
	e.right.Mute.SetMuted(cfg.Right.Muted)
}

func hasNonZeroGain(eq config.EQConfig) bool {
	return eq.LowGainDB != 0 || eq.MidGainDB != 0 || eq.HighGainDB != 0
}

// minRingCapacitySamples is the floor on ring buffer size, per spec.md
// §3, so a very short playback period never leaves too little headroom
// for the capture thread to write into between playback pops.
const minRingCapacitySamples = 8192

// ringCapacitySamples computes the ring buffer capacity, in samples,
// from the playback device's negotiated period: 4 periods of stereo
// headroom, or minRingCapacitySamples, whichever is larger.
func ringCapacitySamples(periodFrames int) int {
	capacity := periodFrames * 4 * playbackChannels
	if capacity < minRingCapacitySamples {
		capacity = minRingCapacitySamples
	}
	return capacity
}

func (e *Engine) onCaptureError(err error) {
	e.onStreamError(streamCapture, err)
}

func (e *Engine) onPlaybackError(err error) {
	e.onStreamError(streamPlayback, err)
}

// onStreamError implements spec.md §4.5/§7's callback failure policy. A
// device-removed error skips the consecutive-error count entirely and
// goes straight to Reconfiguring; any other callback error is logged
// and otherwise ignored unless it is the tenth in a row within one
// second, at which point the engine faults.
func (e *Engine) onStreamError(kind streamKind, err error) {
	if errors.Is(err, audio.ErrDeviceRemoved) {
		e.handleDeviceRemoved(kind, err)
		return
	}

	e.logger.Warn("engine: audio callback error", "stream", kind.String(), "error", err)

	var window *errorWindow
	switch kind {
	case streamCapture:
		window = &e.captureErrors
	case streamPlayback:
		window = &e.playbackErrors
	}
	if window.tick() >= consecutiveErrorFaultThreshold {
		e.fail(errFatal("too many consecutive audio callback errors on "+kind.String(), err))
	}
}

// handleDeviceRemoved moves the engine from Running to Reconfiguring and
// hands off to reconfigure on a separate goroutine, since reopening a
// device means enumeration and I/O the audio callback thread must never
// perform directly. The CompareAndSwap guards against both streams
// reporting removal at once and against an error arriving after the
// engine already left Running for some other reason.
func (e *Engine) handleDeviceRemoved(kind streamKind, err error) {
	if !e.state.CompareAndSwap(int32(StateRunning), int32(StateReconfiguring)) {
		return
	}
	e.logger.Warn("engine: device removed, reconfiguring with default endpoint", "stream", kind.String(), "error", err)
	go e.reconfigure(kind)
}

// reconfigure tears down the current streams and re-enables the engine
// with the removed side's device replaced by the current system default
// render endpoint, per spec.md §4.5's "Reconfiguring with the default
// endpoint as fallback" and §8 scenario 4. A failure at any point here
// leaves the engine Faulted, since Enable itself calls fail on every one
// of its own error paths.
func (e *Engine) reconfigure(kind streamKind) {
	if e.cancel != nil {
		e.cancel()
	}
	if e.reaper != nil {
		e.reaper.Wait(disableTimeout)
	}
	if e.captureStream != nil {
		e.captureStream.Close()
		e.captureStream = nil
	}
	if e.playbackStream != nil {
		e.playbackStream.Close()
		e.playbackStream = nil
	}

	ctx := e.parentCtx
	if ctx == nil {
		ctx = context.Background()
	}

	fallback, err := e.backend.DefaultRenderEndpoint(ctx)
	if err != nil {
		e.fail(errDeviceRemoved("default render endpoint"))
		return
	}

	cfg := e.Config()
	switch kind {
	case streamCapture:
		cfg.SourceDevice = fallback.Name
	case streamPlayback:
		cfg.TargetDevice = fallback.Name
	}
	cfg.Clamp()
	e.config.Store(&cfg)

	e.state.Store(int32(StateStopped))
	if err := e.Enable(ctx); err != nil {
		e.logger.Error("engine: reconfigure failed to come back up", "stream", kind.String(), "error", err)
	}
}
