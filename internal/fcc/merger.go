package fcc

import (
	"github.com/stackia/rtp2httpd/internal/buffer"
	"github.com/stackia/rtp2httpd/internal/rtpheader"
)

// source tags which upstream socket a buffered packet arrived on, purely
// for the engine's own bookkeeping; the merger itself only cares about
// sequence order.
type source uint8

const (
	sourceUnicast source = iota
	sourceMulticast
)

// pending is one packet held in the merger's reorder window: a retained
// buffer reference plus the payload sub-range (RTP header already
// stripped, spec §1 Non-goals: "opaque byte-forwarding").
type pending struct {
	src    source
	buf    *buffer.PacketBuffer
	offset int
	length int
}

func (p pending) release() {
	p.buf.Release()
}

// reorderWindow is the bound from spec §4.2: "a small reorder window (64
// packets)".
const reorderWindow = 64

// merger implements spec §9's "single merge stage that accepts packets
// tagged with source..., buffers up to one reorder window, emits in
// sequence order". It is shared by the unicast-active and mcast-handoff
// phases of the engine so both go through identical ordering logic.
type merger struct {
	window      int
	buffered    map[uint16]pending
	lastEmitted uint16
	haveEmitted bool
}

func newMerger(window int) *merger {
	if window <= 0 {
		window = reorderWindow
	}
	return &merger{window: window, buffered: make(map[uint16]pending, window)}
}

// seed primes the merger so the next accepted sequence number is seq,
// called once when the first unicast media packet establishes the
// running sequence (spec §4.2: "record the RTP sequence number of the
// first unicast packet").
func (m *merger) seed(seq uint16) {
	m.lastEmitted = seq - 1
	m.haveEmitted = true
}

// push inserts one packet and returns any now-contiguous run ready to
// forward, in order. Late duplicates (at or behind the last emitted
// sequence) are released immediately and dropped (spec §4.2: "discarding
// duplicates").
func (m *merger) push(seq uint16, p pending) []pending {
	if m.haveEmitted && !rtpheader.SeqGreater(seq, m.lastEmitted) {
		p.release()
		return nil
	}

	if existing, ok := m.buffered[seq]; ok {
		existing.release()
	}
	m.buffered[seq] = p

	if len(m.buffered) > m.window {
		m.forceAdvance()
	}

	return m.drain()
}

// drain emits every contiguous packet starting at lastEmitted+1.
func (m *merger) drain() []pending {
	var out []pending
	for {
		next := m.lastEmitted + 1
		e, ok := m.buffered[next]
		if !ok {
			break
		}
		delete(m.buffered, next)
		out = append(out, e)
		m.lastEmitted = next
		m.haveEmitted = true
	}
	return out
}

// forceAdvance is called when the window is full and the gap at
// lastEmitted+1 is never going to be filled (the sender has moved on);
// it jumps lastEmitted to just before the earliest buffered sequence so
// drain() can make progress, treating the skipped range as permanently
// lost.
func (m *merger) forceAdvance() {
	if len(m.buffered) == 0 {
		return
	}
	min := uint16(0)
	first := true
	for seq := range m.buffered {
		if first || rtpheader.SeqGreater(min, seq) {
			min = seq
			first = false
		}
	}
	m.lastEmitted = min - 1
	m.haveEmitted = true
}

// drop releases every still-buffered packet without emitting it, used
// when the engine discards a source wholesale (e.g. the unicast side
// once the multicast hand-off completes).
func (m *merger) drop() {
	for seq, p := range m.buffered {
		p.release()
		delete(m.buffered, seq)
	}
}
