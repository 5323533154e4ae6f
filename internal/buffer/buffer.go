// Package buffer implements the fixed-slot, reference-counted packet buffer
// pool of spec §3/§4.4: a single worker-owned registry of 1536-byte slots
// shared (by reference, never by copy) across every client's egress queue.
//
// Grounded on the pooling shape of ion-sfu's buffer.Factory
// (other_examples/.../pkg-buffer-factory.go.go): a sync.Pool-backed
// allocator handed out through a small owning type, refcounted via an
// explicit acquire/retain/release trio rather than Go's GC, because a
// buffer's lifetime here is dictated by kernel zero-copy completion
// notifications (§4.5), not by the last Go-level reference going out of
// scope.
package buffer

import "sync/atomic"

// PacketSize is the fixed slot size: one Ethernet-MTU-sized datagram plus a
// small header scratch area (spec §3 PacketBuffer).
const PacketSize = 1536

// PacketBuffer is a fixed-capacity byte slot with an atomic reference count.
// Invariant (spec §3): a buffer whose count is nonzero is never overwritten;
// a buffer with count zero is either on the free list or under exclusive
// ownership of a receive/decode operation.
type PacketBuffer struct {
	data []byte
	n    int // valid length within data
	refs atomic.Int32
	pool *Pool
}

// Bytes returns the valid portion of the buffer (data[:n]).
func (b *PacketBuffer) Bytes() []byte {
	return b.data[:b.n]
}

// SetLen sets the valid length after a receive; len must be <= PacketSize.
func (b *PacketBuffer) SetLen(n int) {
	if n < 0 {
		n = 0
	}
	if n > PacketSize {
		n = PacketSize
	}
	b.n = n
}

// Len returns the valid length.
func (b *PacketBuffer) Len() int { return b.n }

// Cap returns the full slot capacity (always PacketSize).
func (b *PacketBuffer) Cap() int { return len(b.data) }

// Retain increments the reference count. Call once per additional owner
// (e.g. once per client an ingested packet fans out to).
func (b *PacketBuffer) Retain() {
	b.refs.Add(1)
}

// Release decrements the reference count and returns the buffer to its pool
// free list once it reaches zero. Safe to call from the zero-copy
// completion reaper (§4.5) or from an ingress drop path.
func (b *PacketBuffer) Release() {
	if b.refs.Add(-1) == 0 {
		b.pool.put(b)
	}
}

// RefCount reports the current reference count, for tests and the
// exhaustion/high-water-mark invariants of spec §8.
func (b *PacketBuffer) RefCount() int32 {
	return b.refs.Load()
}
