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

// Package audio holds the device-facing half of split51: endpoint
// enumeration, the capture/playback backend abstraction, the SPSC ring
// buffer that bridges the two callback threads, and the rate converter
// that sits between them.
package audio

import "sync/atomic"

// RingBuffer is a single-producer/single-consumer lock-free queue of
// float32 samples, sized to a power of two. The capture callback is the
// only producer, the playback callback the only consumer; no lock is
// ever taken on either side.
//
// When the producer outruns the consumer, RingBuffer drops the oldest
// unread samples rather than blocking, since the capture thread must
// never stall waiting on playback.
type RingBuffer struct {
	buf  []float32
	mask uint64

	head atomic.Uint64 // next write position
	tail atomic.Uint64 // next read position

	dropped atomic.Uint64
}

// NewRingBuffer allocates a buffer holding capacity samples, rounded up
// to the next power of two.
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity <= 0 {
		capacity = 1
	}
	size := 1
	for size < capacity {
		size <<= 1
	}
	return &RingBuffer{
		buf:  make([]float32, size),
		mask: uint64(size - 1),
	}
}

// Capacity returns the number of samples the buffer can hold.
func (r *RingBuffer) Capacity() int {
	return len(r.buf)
}

// Dropped returns the total number of samples discarded to overflow so
// far, for BufferOverflow diagnostics.
func (r *RingBuffer) Dropped() uint64 {
	return r.dropped.Load()
}

// AvailableRead returns how many samples are currently queued for the
// consumer. Safe to call from the consumer only.
func (r *RingBuffer) AvailableRead() int {
	head := r.head.Load()
	tail := r.tail.Load()
	return int(head - tail)
}

// AvailableWrite returns how much free space is left for the producer
// before a push would start dropping the oldest queued samples. Safe to
// call from the producer only.
func (r *RingBuffer) AvailableWrite() int {
	head := r.head.Load()
	tail := r.tail.Load()
	return len(r.buf) - int(head-tail)
}

// PushSlice writes src into the buffer, dropping the oldest queued
// samples to make room when src would overflow capacity. Called only
// from the producer (capture) thread. Returns the number of samples
// dropped by this call.
func (r *RingBuffer) PushSlice(src []float32) (dropped int) {
	head := r.head.Load()
	tail := r.tail.Load()
	cap64 := uint64(len(r.buf))

	occupied := head - tail
	free := cap64 - occupied
	if uint64(len(src)) > free {
		need := uint64(len(src)) - free
		tail += need
		r.tail.Store(tail)
		dropped = int(need)
		r.dropped.Add(need)
	}

	for _, s := range src {
		r.buf[head&r.mask] = s
		head++
	}
	r.head.Store(head)
	return dropped
}

// PopSlice drains up to len(dst) queued samples into dst, returning the
// count actually read. Called only from the consumer (playback) thread.
func (r *RingBuffer) PopSlice(dst []float32) int {
	head := r.head.Load()
	tail := r.tail.Load()

	available := int(head - tail)
	n := len(dst)
	if n > available {
		n = available
	}

	for i := 0; i < n; i++ {
		dst[i] = r.buf[tail&r.mask]
		tail++
	}
	r.tail.Store(tail)
	return n
}
