package fcc

import (
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stackia/rtp2httpd/internal/buffer"
	"github.com/stackia/rtp2httpd/internal/rtpheader"
	"github.com/stackia/rtp2httpd/internal/service"
)

func rtpPacket(t *testing.T, pool *buffer.Pool, seq uint16) (*buffer.PacketBuffer, rtpheader.Header) {
	t.Helper()
	buf, err := pool.Acquire()
	require.NoError(t, err)

	pkt := buf.Bytes()[:16]
	pkt[0] = 0x80
	pkt[1] = 33 // MP2T payload type
	binary.BigEndian.PutUint16(pkt[2:4], seq)
	binary.BigEndian.PutUint32(pkt[4:8], 0)
	binary.BigEndian.PutUint32(pkt[8:12], 0xabcd)
	buf.SetLen(16)

	hdr, err := rtpheader.Parse(buf.Bytes())
	require.NoError(t, err)
	return buf, hdr
}

func testService(t *testing.T) *service.Service {
	t.Helper()
	svc, err := service.NewMulticastRTP("ch1", net.IPv4(239, 253, 64, 120), 5140, "10.255.14.152:15970", service.FCCTelecom, 0)
	require.NoError(t, err)
	return svc
}

func TestEngineHappyPathToUnicastActive(t *testing.T) {
	pool, err := buffer.NewPool(8, 8)
	require.NoError(t, err)

	var sent [][]byte
	e := NewEngine(testService(t), func(p []byte, addr *net.UDPAddr) error {
		sent = append(sent, p)
		return nil
	}, nil)

	now := time.Now()
	require.NoError(t, e.Start(now))
	require.Equal(t, StateRequested, e.State())
	require.Len(t, sent, 1)

	ack := buildTelecom(telecomCmdJoin, net.IPv4(239, 253, 64, 120), 5140)
	require.True(t, e.OnControlPacket(ack, now))
	require.Equal(t, StateUnicastPending, e.State())

	buf, hdr := rtpPacket(t, pool, 1000)
	out := e.OnUnicastPacket(buf, hdr, now)
	require.Len(t, out, 1)
	require.Equal(t, StateUnicastActive, e.State())
	require.True(t, e.ReadyForMulticastJoin())
}

func TestEngineFallsBackOnTimeout(t *testing.T) {
	e := NewEngine(testService(t), func(p []byte, addr *net.UDPAddr) error { return nil }, nil)

	now := time.Now()
	require.NoError(t, e.Start(now))
	e.OnControlPacket(buildTelecom(telecomCmdJoin, net.IPv4(239, 253, 64, 120), 5140), now)

	require.False(t, e.CheckTimeout(now))
	require.True(t, e.CheckTimeout(now.Add(ResponseTimeout+time.Millisecond)))
	require.Equal(t, StateMcastFallback, e.State())
}

func TestEngineHandoffSwitchesToMulticast(t *testing.T) {
	pool, err := buffer.NewPool(16, 16)
	require.NoError(t, err)

	e := NewEngine(testService(t), func(p []byte, addr *net.UDPAddr) error { return nil }, nil)
	now := time.Now()
	e.Start(now)
	e.OnControlPacket(buildTelecom(telecomCmdJoin, net.IPv4(239, 253, 64, 120), 5140), now)

	buf, hdr := rtpPacket(t, pool, 1000)
	e.OnUnicastPacket(buf, hdr, now)
	e.RequestMulticastJoin(now)
	require.Equal(t, StateMcastRequested, e.State())

	// Multicast catches up at seq 1001 (contiguous with last unicast 1000).
	mbuf, mhdr := rtpPacket(t, pool, 1001)
	out := e.OnMulticastPacket(mbuf, mhdr, now)
	require.Len(t, out, 1)
	require.Equal(t, StateMcastActive, e.State())
	require.True(t, e.ShouldCloseUnicast())

	// Further unicast arrivals are now dropped.
	ubuf, uhdr := rtpPacket(t, pool, 1002)
	out = e.OnUnicastPacket(ubuf, uhdr, now)
	require.Nil(t, out)
}
