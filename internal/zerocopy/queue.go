// Package zerocopy implements the per-client egress queue and the
// kernel zero-copy send path of spec §4.5/§9: batched MSG_ZEROCOPY
// submissions, asynchronous completion reaping via the socket error queue,
// and a copying-send fallback on ENOBUFS.
package zerocopy

import (
	"sync"

	"github.com/stackia/rtp2httpd/internal/buffer"
)

// descriptor is one pending-or-submitted send: a buffer reference plus the
// byte range within it still to be (or already) handed to the kernel.
type descriptor struct {
	buf    *buffer.PacketBuffer
	offset int
	length int
	subID  uint32 // zero-copy completion correlation id (SO_EE_DATA)
}

// Queue is the per-client EgressQueue of spec §3: an ordered sequence of
// descriptors pending kernel send, plus the subset already submitted and
// awaiting completion. One byte cap (limitBytes) gates it: reaching it marks
// the client slow and drops further enqueues, and staying there triggers
// disconnect. The descriptor count is tracked, with its high-water mark,
// but not capped.
type Queue struct {
	mu sync.Mutex

	pending   []descriptor // not yet submitted to the kernel
	inFlight  map[uint32]descriptor // submitted, awaiting completion
	nextSubID uint32

	queueBytes    int64
	queueBuffers  int64
	hwBytes       int64
	hwBuffers     int64
	limitBytes    int64
	slow          bool
	backpressure  int64
	droppedBytes  int64
	droppedPkts   int64
	saturatedSince int64 // unix nano; 0 = not currently saturated
}

// NewQueue creates an egress queue with the given soft/hard byte cap
// (spec §3 EgressQueue: "a byte cap... used as a termination trigger if
// sustained").
func NewQueue(limitBytes int64) *Queue {
	return &Queue{
		inFlight:   make(map[uint32]descriptor, 64),
		limitBytes: limitBytes,
	}
}

// Enqueue retains buf (the caller still owns its own reference) and appends
// a descriptor for [offset:offset+length). Returns false if the hard limit
// is already reached, in which case the packet must be dropped at the
// ingress point and the buffer not retained (spec §4.5).
func (q *Queue) Enqueue(buf *buffer.PacketBuffer, offset, length int) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.queueBytes >= q.limitBytes {
		q.droppedBytes += int64(length)
		q.droppedPkts++
		return false
	}

	buf.Retain()
	q.pending = append(q.pending, descriptor{buf: buf, offset: offset, length: length})

	q.queueBytes += int64(length)
	q.queueBuffers++

	if q.queueBytes > q.hwBytes {
		q.hwBytes = q.queueBytes
	}
	if q.queueBuffers > q.hwBuffers {
		q.hwBuffers = q.queueBuffers
	}

	if q.queueBytes >= q.limitBytes && !q.slow {
		q.slow = true
		q.backpressure++
	}

	return true
}

// Drain releases every pending and in-flight descriptor's buffer reference
// without submitting them, used when a client is torn down (spec §4.1:
// "drains and releases its egress queue... in the same reactor tick").
func (q *Queue) Drain() {
	q.mu.Lock()
	pending := q.pending
	q.pending = nil
	inFlight := q.inFlight
	q.inFlight = make(map[uint32]descriptor)
	q.queueBytes = 0
	q.queueBuffers = 0
	q.mu.Unlock()

	for _, d := range pending {
		d.buf.Release()
	}
	for _, d := range inFlight {
		d.buf.Release()
	}
}

// Slow reports whether the queue has crossed its soft watermark.
func (q *Queue) Slow() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.slow
}

// QueueStats is a point-in-time snapshot for the status endpoint.
type QueueStats struct {
	QueueBytes       int64
	QueueBuffers     int64
	HighWaterBytes   int64
	HighWaterBuffers int64
	Slow             bool
	Backpressure     int64
	DroppedBytes     int64
	DroppedPackets   int64
}

func (q *Queue) Stats() QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return QueueStats{
		QueueBytes:       q.queueBytes,
		QueueBuffers:     q.queueBuffers,
		HighWaterBytes:   q.hwBytes,
		HighWaterBuffers: q.hwBuffers,
		Slow:             q.slow,
		Backpressure:     q.backpressure,
		DroppedBytes:     q.droppedBytes,
		DroppedPackets:   q.droppedPkts,
	}
}

// Saturated reports whether the queue has been continuously at/above its
// hard limit for at least window, the sustained-saturation disconnect
// trigger of spec §4.5/§8 scenario 4. The open question of the exact window
// is resolved in SPEC_FULL.md §12 as a configurable default of 15s.
func (q *Queue) Saturated(window int64, nowNano int64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.queueBytes < q.limitBytes {
		q.saturatedSince = 0
		return false
	}
	if q.saturatedSince == 0 {
		q.saturatedSince = nowNano
		return false
	}
	return nowNano-q.saturatedSince >= window
}
