package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/tatsu-t/split51/internal/audio"
	"github.com/tatsu-t/split51/internal/config"
)

// fakePeriodFrames is the period reported by fakeStream for a playback
// stream, standing in for a real device's negotiated buffer size.
const fakePeriodFrames = 480

type fakeStream struct {
	format       audio.Format
	periodFrames int
	done         chan struct{}
}

func newFakeStream(format audio.Format) *fakeStream {
	return &fakeStream{format: format, periodFrames: fakePeriodFrames, done: make(chan struct{})}
}

func (s *fakeStream) Format() audio.Format  { return s.format }
func (s *fakeStream) Done() <-chan struct{} { return s.done }
func (s *fakeStream) PeriodFrames() int     { return s.periodFrames }
func (s *fakeStream) Close() error {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
	return nil
}

// fakeBackend is a deterministic, in-memory stand-in for WASAPI used to
// exercise the routing engine's state machine and channel math without
// real hardware.
type fakeBackend struct {
	endpoints     []audio.Endpoint
	onSamples     audio.CaptureCallback
	onCaptureErr  audio.StreamErrorCallback
	onPlaybackErr audio.StreamErrorCallback
	sourceFmt     audio.Format
	targetFmt     audio.Format
	enumErr       error
	captureErr    error
	playbackErr   error

	// captureOpen, if set, is consulted on every OpenLoopbackCapture
	// call instead of the fixed captureErr, letting a test simulate a
	// transient failure that clears on retry.
	captureOpen func() error
}

func (b *fakeBackend) Enumerate(ctx context.Context) ([]audio.Endpoint, error) {
	if b.enumErr != nil {
		return nil, b.enumErr
	}
	return b.endpoints, nil
}

func (b *fakeBackend) DefaultRenderEndpoint(ctx context.Context) (audio.Endpoint, error) {
	for _, ep := range b.endpoints {
		if ep.IsDefault {
			return ep, nil
		}
	}
	return audio.Endpoint{}, io.EOF
}

func (b *fakeBackend) OpenLoopbackCapture(ctx context.Context, endpoint audio.Endpoint, onSamples audio.CaptureCallback, onError audio.StreamErrorCallback) (audio.Stream, error) {
	if b.captureOpen != nil {
		if err := b.captureOpen(); err != nil {
			return nil, err
		}
	}
	if b.captureErr != nil {
		return nil, b.captureErr
	}
	b.onSamples = onSamples
	b.onCaptureErr = onError
	fmtOut := audio.Format{SampleRate: endpoint.SampleRate, Channels: endpoint.Channels, BitDepth: 32, Float: true}
	b.sourceFmt = fmtOut
	stream := newFakeStream(fmtOut)
	go func() { <-ctx.Done(); stream.Close() }()
	return stream, nil
}

func (b *fakeBackend) OpenPlayback(ctx context.Context, endpoint audio.Endpoint, format audio.Format, pull func(dst []float32), onError audio.StreamErrorCallback) (audio.Stream, error) {
	if b.playbackErr != nil {
		return nil, b.playbackErr
	}
	b.targetFmt = format
	b.onPlaybackErr = onError
	stream := newFakeStream(format)
	go func() { <-ctx.Done(); stream.Close() }()
	return stream, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEngine(t *testing.T, endpoints []audio.Endpoint) (*Engine, *fakeBackend) {
	t.Helper()
	backend := &fakeBackend{endpoints: endpoints}
	cfg := config.Default()
	cfg.Enabled = true
	cfg.SourceDevice = "Speakers"
	cfg.TargetDevice = "Rear Zone"
	e := New(backend, testLogger(), cfg)
	return e, backend
}

func fourChannelEndpoints() []audio.Endpoint {
	return []audio.Endpoint{
		{ID: "{0.0.0.00000000}.{speakers}", Name: "Speakers", Channels: 4, SampleRate: 48000, IsDefault: true},
		{ID: "{0.0.0.00000000}.{rearzone}", Name: "Rear Zone", Channels: 2, SampleRate: 44100},
	}
}

func TestEngineStartsStoppedAndTransitionsToRunning(t *testing.T) {
	e, _ := newTestEngine(t, fourChannelEndpoints())
	if e.State() != StateStopped {
		t.Fatalf("got initial state %v, want Stopped", e.State())
	}

	if err := e.Enable(context.Background()); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	if e.State() != StateRunning {
		t.Fatalf("got state %v after Enable, want Running", e.State())
	}

	e.Disable()
	if e.State() != StateStopped {
		t.Fatalf("got state %v after Disable, want Stopped", e.State())
	}
}

func TestEngineFailsWithDeviceNotFoundWhenNoEndpointsExist(t *testing.T) {
	// ResolveByName always falls back to the first endpoint as a last
	// resort (mirroring WASAPI's own forgiving lookup), so the only
	// genuinely unresolvable case is no endpoints at all.
	e, _ := newTestEngine(t, nil)
	err := e.Enable(context.Background())
	if err == nil {
		t.Fatalf("expected an error with no endpoints available")
	}
	if e.State() != StateFaulted {
		t.Fatalf("got state %v, want Faulted", e.State())
	}
}

func TestEngineRejectsSourceWithFewerThanFourChannels(t *testing.T) {
	endpoints := []audio.Endpoint{
		{ID: "{stereo-only}", Name: "Speakers", Channels: 2, SampleRate: 48000, IsDefault: true},
		{ID: "{rear}", Name: "Rear Zone", Channels: 2, SampleRate: 44100},
	}
	e, _ := newTestEngine(t, endpoints)
	err := e.Enable(context.Background())
	if err == nil {
		t.Fatalf("expected UnsupportedFormat error for a 2-channel source")
	}
	var perr *Error
	if castErr, ok := err.(*Error); ok {
		perr = castErr
	}
	if perr == nil || perr.Kind != KindUnsupportedFormat {
		t.Fatalf("got error %v, want KindUnsupportedFormat", err)
	}
}

func TestCaptureExtractsConfiguredRearChannelsToStereoOutput(t *testing.T) {
	e, backend := newTestEngine(t, fourChannelEndpoints())
	if err := e.Enable(context.Background()); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	defer e.Disable()

	// 4-channel frame: FL=0.1 FR=0.2 RL=0.3 RR=0.4
	frame := []float32{0.1, 0.2, 0.3, 0.4}
	backend.onSamples(frame, backend.sourceFmt)

	dst := make([]float32, 2)
	n := e.ring.PopSlice(dst)
	if n != 2 {
		t.Fatalf("got %d samples in ring buffer, want 2 (one stereo frame)", n)
	}
	if absDiff(float64(dst[0]), 0.3) > 1e-4 {
		t.Fatalf("left channel got %v, want ~0.3 (RL)", dst[0])
	}
	if absDiff(float64(dst[1]), 0.4) > 1e-4 {
		t.Fatalf("right channel got %v, want ~0.4 (RR)", dst[1])
	}
}

func TestCaptureSwapChannelsReversesLeftAndRight(t *testing.T) {
	e, backend := newTestEngine(t, fourChannelEndpoints())
	cfg := e.Config()
	cfg.SwapChannels = true
	e.SetConfig(cfg)

	if err := e.Enable(context.Background()); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	defer e.Disable()

	frame := []float32{0.1, 0.2, 0.3, 0.4}
	backend.onSamples(frame, backend.sourceFmt)

	dst := make([]float32, 2)
	e.ring.PopSlice(dst)
	if absDiff(float64(dst[0]), 0.4) > 1e-4 {
		t.Fatalf("left channel got %v, want ~0.4 (swapped RR)", dst[0])
	}
	if absDiff(float64(dst[1]), 0.3) > 1e-4 {
		t.Fatalf("right channel got %v, want ~0.3 (swapped RL)", dst[1])
	}
}

func TestCaptureMutedChannelProducesSilence(t *testing.T) {
	e, backend := newTestEngine(t, fourChannelEndpoints())
	cfg := e.Config()
	cfg.Left.Muted = true
	e.SetConfig(cfg)

	if err := e.Enable(context.Background()); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	defer e.Disable()
	e.drainCommandsForTest()

	// Feed enough source frames that, after resampling, the playback
	// thread has far more than the mute ramp's duration to fully settle
	// toward silence.
	frames := make([]float32, 4*2000)
	for i := 0; i < 2000; i++ {
		frames[i*4+0] = 0.1
		frames[i*4+1] = 0.2
		frames[i*4+2] = 0.3
		frames[i*4+3] = 0.4
	}
	backend.onSamples(frames, backend.sourceFmt)

	dst := make([]float32, 2*1800)
	e.onPlayback(dst)

	last := dst[len(dst)-2]
	if absDiff(float64(last), 0) > 1e-3 {
		t.Fatalf("left channel got %v, want ~0 once the mute ramp settles", last)
	}
}

func TestCaptureDisabledEngineSkipsProcessing(t *testing.T) {
	e, backend := newTestEngine(t, fourChannelEndpoints())
	if err := e.Enable(context.Background()); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	defer e.Disable()

	cfg := e.Config()
	cfg.Enabled = false
	e.SetConfig(cfg)
	e.drainCommandsForTest()

	frame := []float32{0.1, 0.2, 0.3, 0.4}
	backend.onSamples(frame, backend.sourceFmt)

	if e.ring.AvailableRead() != 0 {
		t.Fatalf("expected no samples queued while disabled, got %d", e.ring.AvailableRead())
	}
}

func TestEngineRetriesOnceOnTransientDeviceBusyThenSucceeds(t *testing.T) {
	backend := &fakeBackend{endpoints: fourChannelEndpoints()}
	attempts := 0
	backend.captureOpen = func() error {
		attempts++
		if attempts == 1 {
			return errDeviceBusy("Speakers", nil)
		}
		return nil
	}

	cfg := config.Default()
	cfg.SourceDevice = "Speakers"
	cfg.TargetDevice = "Rear Zone"
	e := New(backend, testLogger(), cfg)

	if err := e.Enable(context.Background()); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	defer e.Disable()

	if attempts != 2 {
		t.Fatalf("got %d capture-open attempts, want 2 (one failure, one retry)", attempts)
	}
}

func TestConsecutiveCallbackErrorsFaultEngine(t *testing.T) {
	e, backend := newTestEngine(t, fourChannelEndpoints())
	if err := e.Enable(context.Background()); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	defer e.Disable()

	for i := 0; i < consecutiveErrorFaultThreshold-1; i++ {
		backend.onCaptureErr(fmt.Errorf("GetBuffer: %w", io.ErrUnexpectedEOF))
	}
	if e.State() != StateRunning {
		t.Fatalf("got state %v after %d callback errors, want still Running", e.State(), consecutiveErrorFaultThreshold-1)
	}

	backend.onCaptureErr(fmt.Errorf("GetBuffer: %w", io.ErrUnexpectedEOF))
	if e.State() != StateFaulted {
		t.Fatalf("got state %v after %d consecutive callback errors, want Faulted", e.State(), consecutiveErrorFaultThreshold)
	}
}

func TestDeviceRemovedReconfiguresToDefaultEndpointAndReturnsToRunning(t *testing.T) {
	e, backend := newTestEngine(t, fourChannelEndpoints())
	if err := e.Enable(context.Background()); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	defer e.Disable()

	if got := e.Config().TargetDevice; got != "Rear Zone" {
		t.Fatalf("got initial target device %q, want %q", got, "Rear Zone")
	}

	backend.onPlaybackErr(fmt.Errorf("GetBuffer: %w", audio.ErrDeviceRemoved))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s := e.State(); s == StateRunning || s == StateFaulted {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	if e.State() != StateRunning {
		t.Fatalf("got state %v after device-removed reconfigure, want Running", e.State())
	}
	if got := e.Config().TargetDevice; got != "Speakers" {
		t.Fatalf("got target device %q after reconfigure, want fallback default %q", got, "Speakers")
	}
}

func TestSnapshotReportsStateAndOverflowCounters(t *testing.T) {
	e, backend := newTestEngine(t, fourChannelEndpoints())
	if err := e.Enable(context.Background()); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	defer e.Disable()

	snap := e.Snapshot()
	if snap.State != StateRunning {
		t.Fatalf("got Snapshot().State=%v, want Running", snap.State)
	}

	// A ring buffer too small to hold one block forces an overflow on
	// the very first capture callback.
	e.ring = audio.NewRingBuffer(1)
	frame := []float32{0.1, 0.2, 0.3, 0.4, 0.1, 0.2, 0.3, 0.4}
	for i := 0; i < 100; i++ {
		backend.onSamples(frame, backend.sourceFmt)
	}

	snap = e.Snapshot()
	if snap.Overflows == 0 {
		t.Fatalf("expected Snapshot().Overflows > 0 after forcing ring buffer overflow")
	}
	if snap.RingQueued+snap.RingFree != e.ring.Capacity() {
		t.Fatalf("got RingQueued=%d RingFree=%d summing to %d, want capacity %d",
			snap.RingQueued, snap.RingFree, snap.RingQueued+snap.RingFree, e.ring.Capacity())
	}
}

func TestControlSettersUpdateConfig(t *testing.T) {
	e, _ := newTestEngine(t, fourChannelEndpoints())

	e.SetBalance(0.5)
	e.SetSwap(true)
	e.SetMasterVolume(0.75)
	e.drainCommandsForTest()

	cfg := e.Config()
	if absDiff(cfg.Balance, 0.5) > 1e-9 || !cfg.SwapChannels || absDiff(cfg.Volume, 0.75) > 1e-9 {
		t.Fatalf("got cfg=%+v, want balance=0.5 swap=true volume=0.75", cfg)
	}
}

// drainCommandsForTest exposes the command queue drain to tests, since
// in production it only runs implicitly inside the playback callback.
func (e *Engine) drainCommandsForTest() {
	e.drainCommands()
}

func absDiff(a, b float64) float64 {
	if a > b {
		return a - b
	}
	return b - a
}
