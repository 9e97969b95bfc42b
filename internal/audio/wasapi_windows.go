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

//go:build windows

package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"unsafe"

	"github.com/go-ole/go-ole"
	"github.com/moutend/go-wca/pkg/wca"
	"golang.org/x/sys/windows"
)

// audclntErrDeviceInvalidated is AUDCLNT_E_DEVICE_INVALIDATED, returned
// by WASAPI calls once the endpoint they were issued against has been
// removed, disabled, or reconfigured by the OS.
const audclntErrDeviceInvalidated = 0x88890004

// isDeviceInvalidated reports whether err is the COM HRESULT WASAPI
// returns once a device it was streaming against is gone, as opposed to
// an ordinary transient call failure.
func isDeviceInvalidated(err error) bool {
	var oleErr *ole.OleError
	if errors.As(err, &oleErr) {
		return oleErr.Code() == audclntErrDeviceInvalidated
	}
	return false
}

// bufferDuration is the WASAPI buffer size requested for both capture
// and playback streams: 20ms, in 100ns units.
const bufferDuration = 200_000

// WASAPIBackend is the production Backend, talking to Windows Core
// Audio through go-wca's COM bindings.
type WASAPIBackend struct{}

// NewWASAPIBackend constructs the Windows device backend. COM is
// initialized per-thread inside each stream's dedicated goroutine,
// since IAudioClient instances are not thread-safe across apartments.
func NewWASAPIBackend() *WASAPIBackend {
	return &WASAPIBackend{}
}

func withEnumerator(fn func(*wca.IMMDeviceEnumerator) error) error {
	if err := wca.CoInitializeEx(0, wca.COINIT_MULTITHREADED); err != nil {
		return fmt.Errorf("CoInitializeEx: %w", err)
	}
	defer wca.CoUninitialize()

	var enumerator *wca.IMMDeviceEnumerator
	if err := wca.CoCreateInstance(
		wca.CLSID_MMDeviceEnumerator,
		0,
		wca.CLSCTX_ALL,
		wca.IID_IMMDeviceEnumerator,
		&enumerator,
	); err != nil {
		return fmt.Errorf("CoCreateInstance(MMDeviceEnumerator): %w", err)
	}
	defer enumerator.Release()

	return fn(enumerator)
}

func describeDevice(device *wca.IMMDevice, defaultID string) (Endpoint, error) {
	idPtr, err := device.GetId()
	if err != nil {
		return Endpoint{}, fmt.Errorf("GetId: %w", err)
	}
	id := windows.UTF16PtrToString((*uint16)(unsafe.Pointer(idPtr)))

	var props *wca.IPropertyStore
	if err := device.OpenPropertyStore(wca.STGM_READ, &props); err != nil {
		return Endpoint{}, fmt.Errorf("OpenPropertyStore: %w", err)
	}
	defer props.Release()

	var nameVariant wca.PROPVARIANT
	if err := props.GetValue(&wca.PKEY_Device_FriendlyName, &nameVariant); err != nil {
		return Endpoint{}, fmt.Errorf("GetValue(FriendlyName): %w", err)
	}
	name := nameVariant.GetString()

	var client *wca.IAudioClient
	if err := device.Activate(wca.IID_IAudioClient, wca.CLSCTX_ALL, nil, &client); err != nil {
		return Endpoint{}, fmt.Errorf("Activate(IAudioClient): %w", err)
	}
	defer client.Release()

	var format *wca.WAVEFORMATEX
	if err := client.GetMixFormat(&format); err != nil {
		return Endpoint{}, fmt.Errorf("GetMixFormat: %w", err)
	}

	return Endpoint{
		ID:         id,
		Name:       name,
		Channels:   int(format.NChannels),
		SampleRate: int(format.NSamplesPerSec),
		IsDefault:  id == defaultID,
	}, nil
}

func (b *WASAPIBackend) Enumerate(ctx context.Context) ([]Endpoint, error) {
	var endpoints []Endpoint

	err := withEnumerator(func(enum *wca.IMMDeviceEnumerator) error {
		var defaultDevice *wca.IMMDevice
		defaultID := ""
		if err := enum.GetDefaultAudioEndpoint(wca.ERender, wca.EConsole, &defaultDevice); err == nil {
			if idPtr, err := defaultDevice.GetId(); err == nil {
				defaultID = windows.UTF16PtrToString((*uint16)(unsafe.Pointer(idPtr)))
			}
			defaultDevice.Release()
		}

		var collection *wca.IMMDeviceCollection
		if err := enum.EnumAudioEndpoints(wca.ERender, wca.DEVICE_STATE_ACTIVE, &collection); err != nil {
			return fmt.Errorf("EnumAudioEndpoints: %w", err)
		}
		defer collection.Release()

		var count uint32
		if err := collection.GetCount(&count); err != nil {
			return fmt.Errorf("GetCount: %w", err)
		}

		for i := uint32(0); i < count; i++ {
			var device *wca.IMMDevice
			if err := collection.Item(i, &device); err != nil {
				slog.Warn("audio: skipping unreadable endpoint", "index", i, "error", err)
				continue
			}
			ep, err := describeDevice(device, defaultID)
			device.Release()
			if err != nil {
				slog.Warn("audio: skipping endpoint with unreadable properties", "index", i, "error", err)
				continue
			}
			endpoints = append(endpoints, ep)
		}
		return nil
	})

	return endpoints, err
}

func (b *WASAPIBackend) DefaultRenderEndpoint(ctx context.Context) (Endpoint, error) {
	endpoints, err := b.Enumerate(ctx)
	if err != nil {
		return Endpoint{}, err
	}
	for _, ep := range endpoints {
		if ep.IsDefault {
			return ep, nil
		}
	}
	if len(endpoints) > 0 {
		return endpoints[0], nil
	}
	return Endpoint{}, fmt.Errorf("no active render endpoints found")
}

func openDeviceByID(enum *wca.IMMDeviceEnumerator, id string) (*wca.IMMDevice, error) {
	var device *wca.IMMDevice
	idPtr, err := windows.UTF16PtrFromString(id)
	if err != nil {
		return nil, fmt.Errorf("encoding device id: %w", err)
	}
	if err := enum.GetDevice(idPtr, &device); err != nil {
		return nil, fmt.Errorf("GetDevice(%s): %w", id, err)
	}
	return device, nil
}

type wasapiStream struct {
	format       Format
	periodFrames int
	stop         chan struct{}
	done         chan struct{}
	client       *wca.IAudioClient
}

func newWasapiStream() *wasapiStream {
	return &wasapiStream{stop: make(chan struct{}), done: make(chan struct{})}
}

func (s *wasapiStream) Format() Format        { return s.format }
func (s *wasapiStream) Done() <-chan struct{} { return s.done }
func (s *wasapiStream) PeriodFrames() int     { return s.periodFrames }

func (s *wasapiStream) Close() error {
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
	return nil
}

// OpenLoopbackCapture opens the given render endpoint in shared-mode
// loopback with event-driven callbacks, decodes every delivered block
// to float32, and invokes onSamples on the dedicated capture goroutine.
func (b *WASAPIBackend) OpenLoopbackCapture(ctx context.Context, endpoint Endpoint, onSamples CaptureCallback, onError StreamErrorCallback) (Stream, error) {
	stream := newWasapiStream()
	ready := make(chan error, 1)

	go func() {
		defer close(stream.done)
		if err := wca.CoInitializeEx(0, wca.COINIT_MULTITHREADED); err != nil {
			ready <- fmt.Errorf("CoInitializeEx: %w", err)
			return
		}
		defer wca.CoUninitialize()

		var enumerator *wca.IMMDeviceEnumerator
		if err := wca.CoCreateInstance(wca.CLSID_MMDeviceEnumerator, 0, wca.CLSCTX_ALL, wca.IID_IMMDeviceEnumerator, &enumerator); err != nil {
			ready <- fmt.Errorf("CoCreateInstance: %w", err)
			return
		}
		defer enumerator.Release()

		device, err := openDeviceByID(enumerator, endpoint.ID)
		if err != nil {
			ready <- err
			return
		}
		defer device.Release()

		var client *wca.IAudioClient
		if err := device.Activate(wca.IID_IAudioClient, wca.CLSCTX_ALL, nil, &client); err != nil {
			ready <- fmt.Errorf("Activate(IAudioClient): %w", err)
			return
		}
		defer client.Release()
		stream.client = client

		var mixFormat *wca.WAVEFORMATEX
		if err := client.GetMixFormat(&mixFormat); err != nil {
			ready <- fmt.Errorf("GetMixFormat: %w", err)
			return
		}

		format := Format{
			SampleRate: int(mixFormat.NSamplesPerSec),
			Channels:   int(mixFormat.NChannels),
			BitDepth:   int(mixFormat.WBitsPerSample),
			Float:      mixFormat.WFormatTag == wca.WAVE_FORMAT_EXTENSIBLE || mixFormat.WBitsPerSample == 32,
		}
		stream.format = format

		const loopbackFlag = 0x00020000
		const eventCallbackFlag = 0x00040000
		if err := client.Initialize(wca.AUDCLNT_SHAREMODE_SHARED, loopbackFlag|eventCallbackFlag, bufferDuration, 0, mixFormat, nil); err != nil {
			ready <- fmt.Errorf("Initialize(loopback): %w", err)
			return
		}

		event, err := windows.CreateEvent(nil, 0, 0, nil)
		if err != nil {
			ready <- fmt.Errorf("CreateEvent: %w", err)
			return
		}
		defer windows.CloseHandle(event)

		if err := client.SetEventHandle(event); err != nil {
			ready <- fmt.Errorf("SetEventHandle: %w", err)
			return
		}

		var captureClient *wca.IAudioCaptureClient
		if err := client.GetService(wca.IID_IAudioCaptureClient, &captureClient); err != nil {
			ready <- fmt.Errorf("GetService(IAudioCaptureClient): %w", err)
			return
		}
		defer captureClient.Release()

		var bufferFrameCount uint32
		if err := client.GetBufferSize(&bufferFrameCount); err != nil {
			ready <- fmt.Errorf("GetBufferSize: %w", err)
			return
		}
		stream.periodFrames = int(bufferFrameCount)

		if err := client.Start(); err != nil {
			ready <- fmt.Errorf("Start: %w", err)
			return
		}
		defer client.Stop()

		ready <- nil

		for {
			select {
			case <-stream.stop:
				return
			case <-ctx.Done():
				return
			default:
			}

			result, _ := windows.WaitForSingleObject(event, 200)
			if result != windows.WAIT_OBJECT_0 {
				continue
			}

			for {
				var packetLength uint32
				if err := captureClient.GetNextPacketSize(&packetLength); err != nil {
					if isDeviceInvalidated(err) {
						onError(fmt.Errorf("GetNextPacketSize: %w", ErrDeviceRemoved))
						return
					}
					onError(fmt.Errorf("GetNextPacketSize: %w", err))
					break
				}
				if packetLength == 0 {
					break
				}

				var data *byte
				var numFrames uint32
				var flags uint32
				if err := captureClient.GetBuffer(&data, &numFrames, &flags, nil, nil); err != nil {
					if isDeviceInvalidated(err) {
						onError(fmt.Errorf("GetBuffer: %w", ErrDeviceRemoved))
						return
					}
					onError(fmt.Errorf("GetBuffer: %w", err))
					break
				}

				samples := decodeSamples(data, numFrames, format)
				onSamples(samples, format)

				if err := captureClient.ReleaseBuffer(numFrames); err != nil {
					onError(fmt.Errorf("ReleaseBuffer: %w", err))
				}
			}
		}
	}()

	if err := <-ready; err != nil {
		return nil, err
	}
	return stream, nil
}

// decodeSamples converts a raw WASAPI buffer to interleaved float32,
// handling the three native formats Windows shared-mode streams may
// hand back: 32-bit float, 16-bit and 24-bit signed PCM.
func decodeSamples(data *byte, numFrames uint32, format Format) []float32 {
	bytesPerSample := format.BitDepth / 8
	total := int(numFrames) * format.Channels
	raw := unsafe.Slice(data, total*bytesPerSample)
	out := make([]float32, total)

	switch bytesPerSample {
	case 4:
		for i := 0; i < total; i++ {
			bits := uint32(raw[i*4]) | uint32(raw[i*4+1])<<8 | uint32(raw[i*4+2])<<16 | uint32(raw[i*4+3])<<24
			out[i] = *(*float32)(unsafe.Pointer(&bits))
		}
	case 2:
		for i := 0; i < total; i++ {
			v := int16(uint16(raw[i*2]) | uint16(raw[i*2+1])<<8)
			out[i] = float32(v) / 32768.0
		}
	case 3:
		for i := 0; i < total; i++ {
			b0, b1, b2 := raw[i*3], raw[i*3+1], raw[i*3+2]
			v := int32(b0) | int32(b1)<<8 | int32(b2)<<16
			v = (v << 8) >> 8 // sign-extend from 24 to 32 bits
			out[i] = float32(v) / 8388608.0
		}
	}
	return out
}

// OpenPlayback opens the given endpoint in shared-mode render, pulling
// interleaved float32 from the caller on every buffer-empty event and
// writing it to the device buffer as 32-bit float samples. No
// conversion to other sample formats is done.
func (b *WASAPIBackend) OpenPlayback(ctx context.Context, endpoint Endpoint, format Format, pull func(dst []float32), onError StreamErrorCallback) (Stream, error) {
	stream := newWasapiStream()
	stream.format = format
	ready := make(chan error, 1)

	go func() {
		defer close(stream.done)
		if err := wca.CoInitializeEx(0, wca.COINIT_MULTITHREADED); err != nil {
			ready <- fmt.Errorf("CoInitializeEx: %w", err)
			return
		}
		defer wca.CoUninitialize()

		var enumerator *wca.IMMDeviceEnumerator
		if err := wca.CoCreateInstance(wca.CLSID_MMDeviceEnumerator, 0, wca.CLSCTX_ALL, wca.IID_IMMDeviceEnumerator, &enumerator); err != nil {
			ready <- fmt.Errorf("CoCreateInstance: %w", err)
			return
		}
		defer enumerator.Release()

		device, err := openDeviceByID(enumerator, endpoint.ID)
		if err != nil {
			ready <- err
			return
		}
		defer device.Release()

		var client *wca.IAudioClient
		if err := device.Activate(wca.IID_IAudioClient, wca.CLSCTX_ALL, nil, &client); err != nil {
			ready <- fmt.Errorf("Activate(IAudioClient): %w", err)
			return
		}
		defer client.Release()
		stream.client = client

		var mixFormat *wca.WAVEFORMATEX
		if err := client.GetMixFormat(&mixFormat); err != nil {
			ready <- fmt.Errorf("GetMixFormat: %w", err)
			return
		}
		mixFormat.NSamplesPerSec = uint32(format.SampleRate)
		mixFormat.NChannels = uint16(format.Channels)

		const eventCallbackFlag = 0x00040000
		if err := client.Initialize(wca.AUDCLNT_SHAREMODE_SHARED, eventCallbackFlag, bufferDuration, 0, mixFormat, nil); err != nil {
			ready <- fmt.Errorf("Initialize(render): %w", err)
			return
		}

		event, err := windows.CreateEvent(nil, 0, 0, nil)
		if err != nil {
			ready <- fmt.Errorf("CreateEvent: %w", err)
			return
		}
		defer windows.CloseHandle(event)

		if err := client.SetEventHandle(event); err != nil {
			ready <- fmt.Errorf("SetEventHandle: %w", err)
			return
		}

		var bufferFrameCount uint32
		if err := client.GetBufferSize(&bufferFrameCount); err != nil {
			ready <- fmt.Errorf("GetBufferSize: %w", err)
			return
		}
		stream.periodFrames = int(bufferFrameCount)

		var renderClient *wca.IAudioRenderClient
		if err := client.GetService(wca.IID_IAudioRenderClient, &renderClient); err != nil {
			ready <- fmt.Errorf("GetService(IAudioRenderClient): %w", err)
			return
		}
		defer renderClient.Release()

		scratch := make([]float32, int(bufferFrameCount)*format.Channels)

		if err := client.Start(); err != nil {
			ready <- fmt.Errorf("Start: %w", err)
			return
		}
		defer client.Stop()

		ready <- nil

		for {
			select {
			case <-stream.stop:
				return
			case <-ctx.Done():
				return
			default:
			}

			result, _ := windows.WaitForSingleObject(event, 200)
			if result != windows.WAIT_OBJECT_0 {
				continue
			}

			var padding uint32
			if err := client.GetCurrentPadding(&padding); err != nil {
				if isDeviceInvalidated(err) {
					onError(fmt.Errorf("GetCurrentPadding: %w", ErrDeviceRemoved))
					return
				}
				onError(fmt.Errorf("GetCurrentPadding: %w", err))
				continue
			}
			available := bufferFrameCount - padding
			if available == 0 {
				continue
			}

			var bufferPtr *byte
			if err := renderClient.GetBuffer(available, &bufferPtr); err != nil {
				if isDeviceInvalidated(err) {
					onError(fmt.Errorf("GetBuffer: %w", ErrDeviceRemoved))
					return
				}
				onError(fmt.Errorf("GetBuffer: %w", err))
				continue
			}

			need := int(available) * format.Channels
			pull(scratch[:need])
			encodeSamples(bufferPtr, scratch[:need])

			if err := renderClient.ReleaseBuffer(available, 0); err != nil {
				onError(fmt.Errorf("ReleaseBuffer: %w", err))
			}
		}
	}()

	if err := <-ready; err != nil {
		return nil, err
	}
	return stream, nil
}

func encodeSamples(dst *byte, samples []float32) {
	out := unsafe.Slice(dst, len(samples)*4)
	for i, s := range samples {
		bits := *(*uint32)(unsafe.Pointer(&s))
		out[i*4] = byte(bits)
		out[i*4+1] = byte(bits >> 8)
		out[i*4+2] = byte(bits >> 16)
		out[i*4+3] = byte(bits >> 24)
	}
}
