package buffer

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/stackia/rtp2httpd/internal/rerror"
)

// expansionChunk is the lazy-growth granularity of spec §4.4.
const expansionChunk = 256

// Pool is the process-wide-per-worker buffer registry of spec §3 BufferPool.
// A mutex guards the free list on every acquire, release and shrink, so the
// pool is safe for the reactor goroutine and the per-connection goroutines
// that share it; the counters alongside it are atomics.
type Pool struct {
	mu   sync.Mutex
	free []*PacketBuffer

	maxSize int
	total   atomic.Int64

	highWater  atomic.Int64
	expansions atomic.Int64
	exhaustion atomic.Int64

	lowUtilSince atomic.Int64 // unix nano; 0 = not currently low
}

// NewPool allocates the initial chunk and caps growth at maxSize slots.
func NewPool(initial, maxSize int) (*Pool, error) {
	if maxSize <= 0 {
		return nil, rerror.New(rerror.CodePoolAllocFailed, "buffer-pool-max-size must be > 0")
	}
	if initial > maxSize {
		initial = maxSize
	}

	p := &Pool{maxSize: maxSize}
	p.grow(initial)
	return p, nil
}

func (p *Pool) grow(n int) {
	if n <= 0 {
		return
	}
	if int(p.total.Load())+n > p.maxSize {
		n = p.maxSize - int(p.total.Load())
	}
	if n <= 0 {
		return
	}

	p.mu.Lock()
	for i := 0; i < n; i++ {
		p.free = append(p.free, &PacketBuffer{data: make([]byte, PacketSize), pool: p})
	}
	p.mu.Unlock()

	p.total.Add(int64(n))
	p.expansions.Add(1)
}

// Acquire returns a slot with refcount 1, lazily expanding in chunks of
// expansionChunk up to maxSize (spec §4.4). Returns CodeBufferExhausted at
// the configured maximum, which ingress callers treat as a drop-and-count
// signal (spec §7), never a panic or blocking wait.
func (p *Pool) Acquire() (*PacketBuffer, error) {
	p.mu.Lock()
	n := len(p.free)
	if n == 0 {
		p.mu.Unlock()
		p.grow(expansionChunk)
		p.mu.Lock()
		n = len(p.free)
	}

	if n == 0 {
		p.mu.Unlock()
		p.exhaustion.Add(1)
		return nil, rerror.New(rerror.CodeBufferExhausted, "buffer pool exhausted at max size")
	}

	b := p.free[n-1]
	p.free = p.free[:n-1]
	p.mu.Unlock()

	b.refs.Store(1)
	b.n = 0

	if used := p.total.Load() - int64(len(p.free)); used > p.highWater.Load() {
		p.highWater.Store(used)
	}

	return b, nil
}

func (p *Pool) put(b *PacketBuffer) {
	p.mu.Lock()
	p.free = append(p.free, b)
	p.mu.Unlock()
}

// Stats is a point-in-time snapshot for the status endpoint (spec §6.4).
type Stats struct {
	Total      int
	Free       int
	Used       int
	HighWater  int
	Expansions int
	Exhaustion int
}

func (p *Pool) Stats() Stats {
	p.mu.Lock()
	free := len(p.free)
	p.mu.Unlock()

	total := int(p.total.Load())
	return Stats{
		Total:      total,
		Free:       free,
		Used:       total - free,
		HighWater:  int(p.highWater.Load()),
		Expansions: int(p.expansions.Load()),
		Exhaustion: int(p.exhaustion.Load()),
	}
}

// MaybeShrink releases one expansion chunk if the free list has stayed
// above half of total for at least sustainedFor, and total still exceeds
// initial. Intended to be called from the reactor's periodic tick (spec
// §4.4's "opportunistic" shrink); it is not itself a timer.
func (p *Pool) MaybeShrink(initial int, sustainedFor time.Duration, now time.Time) {
	p.mu.Lock()
	total := int(p.total.Load())
	free := len(p.free)
	lowUtil := free*2 > total && total > initial
	p.mu.Unlock()

	if !lowUtil {
		p.lowUtilSince.Store(0)
		return
	}

	since := p.lowUtilSince.Load()
	if since == 0 {
		p.lowUtilSince.Store(now.UnixNano())
		return
	}

	if now.Sub(time.Unix(0, since)) < sustainedFor {
		return
	}

	p.mu.Lock()
	n := expansionChunk
	if n > len(p.free) {
		n = len(p.free)
	}
	if total-n < initial {
		n = total - initial
	}
	if n > 0 {
		p.free = p.free[:len(p.free)-n]
	}
	p.mu.Unlock()

	if n > 0 {
		p.total.Add(int64(-n))
	}
	p.lowUtilSince.Store(0)
}
