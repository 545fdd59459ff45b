// Package buffer provides the output ring buffer used for session hot restore.
package buffer

import "sync"

// RingBuffer is a thread-safe circular byte buffer that retains the most
// recent writes up to a fixed capacity. Once full, the oldest bytes are
// overwritten. It backs reconnect replay: a client attaching to a running
// session receives the buffer contents before live output.
type RingBuffer struct {
	mu    sync.RWMutex
	data  []byte
	start int // index of the oldest byte
	size  int // number of valid bytes
}

// NewRingBuffer creates a RingBuffer with the given capacity.
// A capacity below 1 is clamped to 1.
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &RingBuffer{data: make([]byte, capacity)}
}

// Write appends p, discarding the oldest bytes when capacity is exceeded.
// It implements io.Writer and never fails.
func (rb *RingBuffer) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	rb.mu.Lock()
	defer rb.mu.Unlock()

	capacity := len(rb.data)

	// A write at least as large as the capacity replaces everything;
	// only the trailing bytes survive.
	if len(p) >= capacity {
		copy(rb.data, p[len(p)-capacity:])
		rb.start = 0
		rb.size = capacity
		return len(p), nil
	}

	writeAt := (rb.start + rb.size) % capacity
	n := copy(rb.data[writeAt:], p)
	if n < len(p) {
		copy(rb.data, p[n:])
	}

	rb.size += len(p)
	if rb.size > capacity {
		rb.start = (rb.start + rb.size - capacity) % capacity
		rb.size = capacity
	}

	return len(p), nil
}

// ReadAll returns a copy of the buffered bytes in write order.
func (rb *RingBuffer) ReadAll() []byte {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	if rb.size == 0 {
		return nil
	}

	out := make([]byte, rb.size)
	n := copy(out, rb.data[rb.start:min(rb.start+rb.size, len(rb.data))])
	if n < rb.size {
		copy(out[n:], rb.data[:rb.size-n])
	}
	return out
}

// Clear discards all buffered data.
func (rb *RingBuffer) Clear() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.start = 0
	rb.size = 0
}

// Len returns the number of buffered bytes.
func (rb *RingBuffer) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.size
}

// Cap returns the buffer capacity.
func (rb *RingBuffer) Cap() int {
	return len(rb.data)
}
