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

import "fmt"

// Kind classifies a pipeline error for callers that need to branch on
// category (retry, surface to the user, exit) rather than message text.
type Kind int

const (
	KindDeviceNotFound Kind = iota
	KindUnsupportedFormat
	KindDeviceBusy
	KindDeviceRemoved
	KindBufferOverflow
	KindBufferUnderflow
	KindCoefficientOutOfRange
	KindConfigParseError
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindDeviceNotFound:
		return "device_not_found"
	case KindUnsupportedFormat:
		return "unsupported_format"
	case KindDeviceBusy:
		return "device_busy"
	case KindDeviceRemoved:
		return "device_removed"
	case KindBufferOverflow:
		return "buffer_overflow"
	case KindBufferUnderflow:
		return "buffer_underflow"
	case KindCoefficientOutOfRange:
		return "coefficient_out_of_range"
	case KindConfigParseError:
		return "config_parse_error"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error is split51's pipeline error taxonomy. Every error raised by the
// engine carries a Kind so the CLI and control interface can map it to
// an exit code or a remediation hint without parsing message text.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func errDeviceNotFound(name string) *Error {
	return newError(KindDeviceNotFound, fmt.Sprintf("no endpoint matching %q", name), nil)
}

func errUnsupportedFormat(reason string) *Error {
	return newError(KindUnsupportedFormat, reason, nil)
}

func errDeviceBusy(name string, err error) *Error {
	return newError(KindDeviceBusy, fmt.Sprintf("endpoint %q is in use", name), err)
}

func errDeviceRemoved(name string) *Error {
	return newError(KindDeviceRemoved, fmt.Sprintf("endpoint %q was removed", name), nil)
}

func errCoefficientOutOfRange(field string, value float64) *Error {
	return newError(KindCoefficientOutOfRange, fmt.Sprintf("%s=%v out of range", field, value), nil)
}

func errFatal(message string, err error) *Error {
	return newError(KindFatal, message, err)
}

// ErrConfigParseError wraps a config load/parse failure for callers
// outside this package (the CLI entry point) that need to map it to
// spec.md §6's exit code 1.
func ErrConfigParseError(err error) *Error {
	return newError(KindConfigParseError, "failed to parse config.toml", err)
}
