package device

import (
	"sync/atomic"
)

// Counter is a device-wide integer updated only through atomic operations.
type Counter struct {
	v atomic.Int64
}

// FetchAdd adds delta and returns the previous value.
func (c *Counter) FetchAdd(delta int64) int64 {
	return c.v.Add(delta) - delta
}

// Load reads the counter back to the host.
func (c *Counter) Load() int64 {
	return c.v.Load()
}

// Reset sets the counter to zero. Never call it while a launch is running.
func (c *Counter) Reset() {
	c.v.Store(0)
}

// IndexBuffer is a fixed-capacity device buffer of row indices.
type IndexBuffer struct {
	data  []int32
	freed atomic.Bool
}

func newIndexBuffer(n int) *IndexBuffer {
	return &IndexBuffer{data: make([]int32, n)}
}

// Cap returns the capacity in indices.
func (b *IndexBuffer) Cap() int {
	return len(b.data)
}

// Store writes v at slot i. Distinct blocks must write distinct slots.
func (b *IndexBuffer) Store(i int, v int32) {
	b.data[i] = v
}

// Load reads slot i.
func (b *IndexBuffer) Load(i int) int32 {
	return b.data[i]
}

// CopyToHost returns a fresh host slice holding the first n indices.
func (b *IndexBuffer) CopyToHost(n int) []int32 {
	if n > len(b.data) {
		n = len(b.data)
	}
	out := make([]int32, n)
	copy(out, b.data[:n])
	return out
}

func (b *IndexBuffer) bytes() int64 {
	return int64(len(b.data)) * 4
}
