package fcc

import (
	"net"
	"sync"
	"time"

	"github.com/stackia/rtp2httpd/internal/buffer"
	"github.com/stackia/rtp2httpd/internal/logger"
	"github.com/stackia/rtp2httpd/internal/rerror"
	"github.com/stackia/rtp2httpd/internal/rtpheader"
	"github.com/stackia/rtp2httpd/internal/service"
)

// ResponseTimeout is the 80 ms deadline of spec §4.2/§5 between the FCC
// join acknowledgment and the first unicast media packet.
const ResponseTimeout = 80 * time.Millisecond

// Forward is one packet the engine has released from its reorder buffer
// for the caller to hand to the client's egress queue. Buf is still
// retained on the engine's behalf; the caller must release it after
// enqueueing (the queue takes its own reference).
type Forward struct {
	Buf    *buffer.PacketBuffer
	Offset int
	Length int
}

// Sender abstracts the control-packet transport so the engine is testable
// without a real socket.
type Sender func(payload []byte, addr *net.UDPAddr) error

// Engine drives one client's FCC negotiation and hand-off, per spec §4.2.
// It is exclusively owned by the worker that created it; every method
// takes an internal mutex, so the HTTP goroutine, the reactor's socket
// callbacks and its timer ticks may all call into the same Engine.
type Engine struct {
	mu sync.Mutex

	svc    *service.Service
	send   Sender
	log    *logger.Entry
	merger *merger

	state      State
	stateSince time.Time
	deadline   time.Time

	closeUnicast bool
}

// NewEngine constructs an engine for svc, which must have UsesFCC() true.
func NewEngine(svc *service.Service, send Sender, log *logger.Entry) *Engine {
	return &Engine{
		svc:    svc,
		send:   send,
		log:    log,
		merger: newMerger(reorderWindow),
		state:  StateInit,
	}
}

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) setState(s State, now time.Time) {
	e.state = s
	e.stateSince = now
}

// Start sends the FCC join request and moves INIT -> REQUESTED (spec
// §4.2: "engine sends the FCC join control packet").
func (e *Engine) Start(now time.Time) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateInit {
		return rerror.New(rerror.CodeFCCRefused, "fcc: start called outside INIT state")
	}

	payload := buildJoin(e.svc.FCCVariant, e.svc.MulticastAddr, e.svc.MulticastPort)
	if err := e.send(payload, e.svc.FCCServer); err != nil {
		return rerror.Wrap(rerror.CodeFCCRefused, "fcc: join send failed", err)
	}

	e.setState(StateRequested, now)
	return nil
}

// OnControlPacket processes a packet arriving from the FCC server's
// address. It returns true if the packet was an acknowledgment (REQUESTED
// -> UNICAST_PENDING, arming the 80 ms response timer).
func (e *Engine) OnControlPacket(pkt []byte, now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateRequested || !isAck(e.svc.FCCVariant, pkt) {
		return false
	}

	e.setState(StateUnicastPending, now)
	e.deadline = now.Add(ResponseTimeout)
	return true
}

// CheckTimeout evaluates the 80 ms response timer (spec §4.2: "80 ms timer
// fires without a media packet"). It returns true exactly once, the tick
// the fallback transition happens, so the caller knows to issue the
// multicast join immediately.
func (e *Engine) CheckTimeout(now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateUnicastPending || now.Before(e.deadline) {
		return false
	}

	if e.log != nil {
		e.log.Warnf("FCC: Server response timeout (%s), falling back to multicast", ResponseTimeout)
	}
	e.setState(StateMcastFallback, now)
	return true
}

// OnUnicastPacket feeds one unicast media packet through the engine. buf
// is retained by the caller on entry; ownership of any items returned in
// Forward passes to the caller (still retained, to be released after
// enqueue), and any packet the engine decides not to forward is released
// here.
func (e *Engine) OnUnicastPacket(buf *buffer.PacketBuffer, hdr rtpheader.Header, now time.Time) []Forward {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case StateUnicastPending:
		e.setState(StateUnicastActive, now)
		e.merger.seed(hdr.SequenceNumber)
	case StateUnicastActive, StateMcastRequested:
		// fall through to merge below
	default:
		buf.Release()
		return nil
	}

	p := pending{src: sourceUnicast, buf: buf, offset: hdr.PayloadOffset, length: len(buf.Bytes()) - hdr.PayloadOffset}
	return toForward(e.merger.push(hdr.SequenceNumber, p))
}

// ReadyForMulticastJoin reports whether the engine has just entered
// UNICAST_ACTIVE and the caller should now issue the steady-state
// multicast join and advance the engine to MCAST_REQUESTED (spec §4.2:
// "continuing to forward unicast" while the join is in flight).
func (e *Engine) ReadyForMulticastJoin() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state == StateUnicastActive
}

// RequestMulticastJoin records that the multicast join has been issued.
func (e *Engine) RequestMulticastJoin(now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateUnicastActive {
		e.setState(StateMcastRequested, now)
	}
}

// OnMulticastPacket feeds one multicast media packet through the engine.
// Once in MCAST_FALLBACK it forwards directly on first arrival; while
// MCAST_REQUESTED it performs the sequence-ordered hand-off of spec §4.2
// and §9; once MCAST_ACTIVE it forwards directly, deduplicating against
// the last emitted sequence.
func (e *Engine) OnMulticastPacket(buf *buffer.PacketBuffer, hdr rtpheader.Header, now time.Time) []Forward {
	e.mu.Lock()
	defer e.mu.Unlock()

	length := len(buf.Bytes()) - hdr.PayloadOffset

	switch e.state {
	case StateMcastFallback:
		e.setState(StateMcastActive, now)
		e.merger.seed(hdr.SequenceNumber)
		return toForward(e.merger.push(hdr.SequenceNumber, pending{src: sourceMulticast, buf: buf, offset: hdr.PayloadOffset, length: length}))

	case StateMcastRequested:
		caughtUp := !e.merger.haveEmitted || !rtpheader.SeqGreater(e.merger.lastEmitted, hdr.SequenceNumber)
		out := toForward(e.merger.push(hdr.SequenceNumber, pending{src: sourceMulticast, buf: buf, offset: hdr.PayloadOffset, length: length}))
		if caughtUp {
			e.setState(StateMcastActive, now)
			e.closeUnicast = true
			e.merger.drop() // discard any still-buffered unicast-only stragglers
		}
		return out

	case StateMcastActive:
		return toForward(e.merger.push(hdr.SequenceNumber, pending{src: sourceMulticast, buf: buf, offset: hdr.PayloadOffset, length: length}))

	default:
		buf.Release()
		return nil
	}
}

// ShouldCloseUnicast reports whether the hand-off to multicast has
// completed and the caller should close the unicast socket (spec §4.2:
// "unicast packets are dropped... and the unicast socket closed").
func (e *Engine) ShouldCloseUnicast() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closeUnicast
}

// Close sends the clean-up control packet and releases any still-buffered
// packets, moving the engine to its terminal state (spec §4.2:
// "responsible for the clean-up control packet").
func (e *Engine) Close(now time.Time) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.merger.drop()
	e.setState(StateTerminal, now)

	if e.svc.FCCServer == nil {
		return nil
	}
	payload := buildTeardown(e.svc.FCCVariant, e.svc.MulticastAddr, e.svc.MulticastPort)
	return e.send(payload, e.svc.FCCServer)
}

func toForward(items []pending) []Forward {
	if len(items) == 0 {
		return nil
	}
	out := make([]Forward, len(items))
	for i, p := range items {
		out[i] = Forward{Buf: p.buf, Offset: p.offset, Length: p.length}
	}
	return out
}
