package rtpheader_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stackia/rtp2httpd/internal/rtpheader"
)

func buildBasicHeader(seq uint16, pt uint8) []byte {
	p := make([]byte, 12+4)
	p[0] = 0x80 // version 2, no padding/extension/csrc
	p[1] = pt
	p[2] = byte(seq >> 8)
	p[3] = byte(seq)
	p[8], p[9], p[10], p[11] = 1, 2, 3, 4
	return p
}

func TestParseBasicHeader(t *testing.T) {
	pkt := buildBasicHeader(1000, 33)
	h, err := rtpheader.Parse(pkt)
	require.NoError(t, err)
	require.Equal(t, uint8(2), h.Version)
	require.Equal(t, uint16(1000), h.SequenceNumber)
	require.Equal(t, uint8(33), h.PayloadType)
	require.Equal(t, 12, h.PayloadOffset)
}

func TestParseTooShort(t *testing.T) {
	_, err := rtpheader.Parse(make([]byte, 4))
	require.ErrorIs(t, err, rtpheader.ErrShort)
}

func TestParseWithCSRCAndExtension(t *testing.T) {
	pkt := make([]byte, 0, 64)
	pkt = append(pkt, 0x92, 0x60, 0x00, 0x01) // V2, CC=2, X=1, marker=1, pt=0x60
	pkt = append(pkt, 0, 0, 0, 100)           // timestamp
	pkt = append(pkt, 0, 0, 0, 1)             // ssrc
	pkt = append(pkt, 0, 0, 0, 2)             // csrc 1
	pkt = append(pkt, 0, 0, 0, 3)             // csrc 2
	pkt = append(pkt, 0xBE, 0xDE, 0x00, 0x01) // ext header, 1 word
	pkt = append(pkt, 0, 0, 0, 0)             // ext word
	pkt = append(pkt, 0xAA, 0xBB)             // payload

	h, err := rtpheader.Parse(pkt)
	require.NoError(t, err)
	require.True(t, h.Marker)
	require.True(t, h.Extension)
	require.Equal(t, uint8(2), h.CSRCCount)
	require.Equal(t, len(pkt)-2, h.PayloadOffset)
}

func TestSeqGreaterWraparound(t *testing.T) {
	require.True(t, rtpheader.SeqGreater(1, 0))
	require.True(t, rtpheader.SeqGreater(0, 65535), "wraps forward across 16-bit boundary")
	require.False(t, rtpheader.SeqGreater(65535, 0))
}
