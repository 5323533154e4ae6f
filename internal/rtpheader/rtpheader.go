// Package rtpheader parses just enough of an RFC 3550 RTP header for
// spec §4.2/§4.6/§6.2: sequence number (for ordering and the FCC hand-off
// merge), payload type, marker bit, and timestamp. The payload itself is
// forwarded opaquely (spec §1 Non-goals: "no transcoding of media payload").
//
// Grounded on the field layout used by room732-gortp's RTP transport
// package (other_examples/.../transportMCast.go.go and its iana sibling),
// re-expressed as a zero-allocation header-only parser since this gateway
// never needs to construct full RTP packets, only read header fields.
package rtpheader

import (
	"encoding/binary"
	"errors"
)

// MinHeaderLen is the fixed RTP header size before any CSRC list or
// extension header.
const MinHeaderLen = 12

var ErrShort = errors.New("rtp: packet shorter than fixed header")

// Header is the subset of RFC 3550's fixed header this gateway inspects.
type Header struct {
	Version        uint8
	Padding        bool
	Extension      bool
	CSRCCount      uint8
	Marker         bool
	PayloadType    uint8
	SequenceNumber uint16
	Timestamp      uint32
	SSRC           uint32
	// PayloadOffset is the byte offset into the original packet where the
	// payload begins, i.e. past the fixed header, any CSRC identifiers, and
	// any extension header.
	PayloadOffset int
}

// Parse reads an RTP header from pkt without copying the payload.
func Parse(pkt []byte) (Header, error) {
	if len(pkt) < MinHeaderLen {
		return Header{}, ErrShort
	}

	h := Header{
		Version:        pkt[0] >> 6,
		Padding:        pkt[0]&0x20 != 0,
		Extension:      pkt[0]&0x10 != 0,
		CSRCCount:      pkt[0] & 0x0f,
		Marker:         pkt[1]&0x80 != 0,
		PayloadType:    pkt[1] & 0x7f,
		SequenceNumber: binary.BigEndian.Uint16(pkt[2:4]),
		Timestamp:      binary.BigEndian.Uint32(pkt[4:8]),
		SSRC:           binary.BigEndian.Uint32(pkt[8:12]),
	}

	off := MinHeaderLen + int(h.CSRCCount)*4
	if len(pkt) < off {
		return Header{}, ErrShort
	}

	if h.Extension {
		if len(pkt) < off+4 {
			return Header{}, ErrShort
		}
		extLen := int(binary.BigEndian.Uint16(pkt[off+2 : off+4]))
		off += 4 + extLen*4
		if len(pkt) < off {
			return Header{}, ErrShort
		}
	}

	h.PayloadOffset = off
	return h, nil
}

// SeqGreater reports whether a is "after" b in RFC 1982 serial-number-space
// ordering, i.e. correctly handles the 16-bit wraparound spec §4.2/§8 call
// for ("strictly monotonic modulo 2^16 wraparound").
func SeqGreater(a, b uint16) bool {
	return int16(a-b) > 0
}

// SeqDistance returns a-b as a signed wraparound-aware distance: positive
// when a is ahead of b, negative when behind.
func SeqDistance(a, b uint16) int16 {
	return int16(a - b)
}
