// Package client implements spec §3's Client: the per-HTTP-connection
// record carrying its parsed request, upstream binding, egress queue,
// bandwidth/traffic counters, and position in whichever protocol state
// machine (FCC or RTSP) its service requires.
package client

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/VividCortex/ewma"

	"github.com/stackia/rtp2httpd/internal/service"
	"github.com/stackia/rtp2httpd/internal/zerocopy"
)

// State is a protocol-engine-agnostic state tag. The FCC and RTSP packages
// define their own concrete state enums and store them here as a uint32 so
// the reactor and status page can report "current state" without importing
// either engine package (spec §9: "global mutable state... becomes explicit
// worker context").
type State uint32

// Client is exclusively owned by one Worker (spec §3 Ownership); no field
// is accessed from more than one goroutine except via the atomics/queue
// documented below, so the reactor never needs a per-client lock on its hot
// path.
type Client struct {
	ID        uint64
	WorkerPID int
	Remote    net.Addr

	Svc   *service.Service
	Queue *zerocopy.Queue

	state      atomic.Uint32
	stateSince atomic.Int64 // unix nano

	bytesSent atomic.Int64

	mu        sync.Mutex // guards bw, only touched by the 1s sample tick + reads
	bw        ewma.MovingAverage
	lastBytes int64
	lastSampl time.Time

	slow       atomic.Bool
	tombstoned atomic.Bool
}

// New constructs a Client in the zero state (INIT for whichever engine owns
// it); svc and queue must already be fully constructed.
func New(id uint64, workerPID int, remote net.Addr, svc *service.Service, queue *zerocopy.Queue) *Client {
	c := &Client{
		ID:        id,
		WorkerPID: workerPID,
		Remote:    remote,
		Svc:       svc,
		Queue:     queue,
		bw:        ewma.NewMovingAverage(1), // 1s window per spec §3
		lastSampl: time.Now(),
	}
	// Set ends the library's 10-sample warm-up, during which Value()
	// reports 0, so the first 1s sample is already visible.
	c.bw.Set(0)
	return c
}

// SetState records a protocol state transition (spec §4.2/§4.3's state
// machines call this on every arrow in their diagrams).
func (c *Client) SetState(s State, now time.Time) {
	c.state.Store(uint32(s))
	c.stateSince.Store(now.UnixNano())
}

func (c *Client) State() State { return State(c.state.Load()) }

// StateSince reports how long the client has been in its current state.
func (c *Client) StateSince(now time.Time) time.Duration {
	return now.Sub(time.Unix(0, c.stateSince.Load()))
}

// RecordSent adds n bytes to the running total; called by the zero-copy
// sender after each successful submission/copy-fallback.
func (c *Client) RecordSent(n int) {
	c.bytesSent.Add(int64(n))
}

func (c *Client) BytesSent() int64 { return c.bytesSent.Load() }

// SampleBandwidth folds the bytes sent since the last sample into the 1s
// EWMA (spec §3: "instantaneous bandwidth (EWMA over a 1 s window)"),
// driven by the reactor's bandwidth-sample timer (spec §4.1).
func (c *Client) SampleBandwidth(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elapsed := now.Sub(c.lastSampl).Seconds()
	if elapsed <= 0 {
		return
	}

	total := c.bytesSent.Load()
	delta := total - c.lastBytes
	bitsPerSec := float64(delta*8) / elapsed

	c.bw.Add(bitsPerSec)
	c.lastBytes = total
	c.lastSampl = now
}

// BandwidthBitsPerSec returns the current EWMA bandwidth estimate.
func (c *Client) BandwidthBitsPerSec() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bw.Value()
}

// RefreshSlow mirrors the egress queue's slow flag onto the client, and
// reports whether the sustained-saturation disconnect window (spec
// §4.5/§8) has elapsed.
func (c *Client) RefreshSlow(saturatedWindow int64, nowNano int64) (saturated bool) {
	st := c.Queue.Stats()
	c.slow.Store(st.Slow)
	return c.Queue.Saturated(saturatedWindow, nowNano)
}

func (c *Client) Slow() bool { return c.slow.Load() }

// Tombstone marks the client for removal; the reactor checks this once per
// tick and finalizes teardown (drain queue, cancel timers, unregister
// descriptors) in the same tick it is observed (spec §4.1).
func (c *Client) Tombstone() {
	c.tombstoned.Store(true)
}

func (c *Client) Tombstoned() bool { return c.tombstoned.Load() }
