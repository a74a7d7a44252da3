// Package frame builds and classifies the 802.11 frames the station exchanges
// with its access point.
package frame

import (
	"github.com/google/gopacket"

	"github.com/lcalzada-xor/wsta/internal/core/domain"
)

// DefaultPoolSize is the number of transmit buffers when none is configured.
const DefaultPoolSize = 32

// Pool is a fixed set of reusable serialize buffers. Get never allocates a
// new buffer once the pool is drained.
type Pool struct {
	free chan gopacket.SerializeBuffer
	size int
}

// NewPool creates a pool with n buffers.
func NewPool(n int) *Pool {
	if n <= 0 {
		n = DefaultPoolSize
	}
	p := &Pool{free: make(chan gopacket.SerializeBuffer, n), size: n}
	for i := 0; i < n; i++ {
		p.free <- gopacket.NewSerializeBuffer()
	}
	return p
}

// Get takes a buffer from the pool.
func (p *Pool) Get() (*Buffer, error) {
	select {
	case b := <-p.free:
		return &Buffer{buf: b, pool: p}, nil
	default:
		return nil, domain.ErrResourceExhausted
	}
}

// Available returns how many buffers are free.
func (p *Pool) Available() int { return len(p.free) }

// Size returns the capacity of the pool.
func (p *Pool) Size() int { return p.size }

// Buffer is a frame under construction or ready to send.
type Buffer struct {
	buf  gopacket.SerializeBuffer
	pool *Pool
}

// Bytes returns the encoded frame. The slice is only valid until Release.
func (b *Buffer) Bytes() []byte {
	return b.buf.Bytes()
}

// Len returns the encoded length.
func (b *Buffer) Len() int { return len(b.buf.Bytes()) }

// Release returns the buffer to its pool. Calling Release twice is a no-op.
func (b *Buffer) Release() {
	if b == nil || b.pool == nil {
		return
	}
	_ = b.buf.Clear()
	b.pool.free <- b.buf
	b.pool = nil
}
