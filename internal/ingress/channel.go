package ingress

import (
	"net"

	"golang.org/x/sys/unix"

	"github.com/stackia/rtp2httpd/internal/buffer"
	"github.com/stackia/rtp2httpd/internal/fec"
	"github.com/stackia/rtp2httpd/internal/logger"
	"github.com/stackia/rtp2httpd/internal/rerror"
	"github.com/stackia/rtp2httpd/internal/rtpheader"
	"github.com/stackia/rtp2httpd/internal/zerocopy"
)

// DrainBatch bounds how many packets one socket-readable event processes
// before yielding back to the reactor (spec §4.6: "drained in a bounded
// batch (e.g., up to 64 packets per tick) to avoid starving other
// sockets").
const DrainBatch = 64

// Sink receives a fully resolved media packet (RTP header already parsed,
// payload located) for fan-out to every attached client.
type Sink func(hdr rtpheader.Header, buf *buffer.PacketBuffer)

// MediaReader drains up to DrainBatch datagrams from conn into pool-backed
// buffers, parses each as RTP, and invokes sink. Packets too short to be a
// valid RTP header are dropped and logged at debug (spec §1: "only RTP
// headers are parsed for sequencing").
func MediaReader(conn *net.UDPConn, pool *buffer.Pool, log *logger.Entry, sink Sink) error {
	// Reads go to the fd with MSG_DONTWAIT, so an already-buffered datagram
	// is returned at once and a drained socket reports EAGAIN instead of
	// parking this call (the reactor's single goroutine) inside the kernel.
	raw, err := conn.SyscallConn()
	if err != nil {
		return rerror.Wrap(rerror.CodeRTSPUpstream, "ingress: raw conn failed", err)
	}

	for i := 0; i < DrainBatch; i++ {
		buf, err := pool.Acquire()
		if err != nil {
			if rerror.HasCode(err, rerror.CodeBufferExhausted) {
				if log != nil {
					log.Warnf("ingress: buffer pool exhausted, dropping packet")
				}
				return nil
			}
			return err
		}

		var n int
		if rerr := raw.Read(func(fd uintptr) bool {
			n, _, err = unix.Recvfrom(int(fd), buf.Bytes()[:buf.Cap()], unix.MSG_DONTWAIT)
			return true
		}); rerr != nil {
			err = rerr
		}
		if err != nil {
			buf.Release()
			if isWouldBlock(err) {
				return nil
			}
			return rerror.Wrap(rerror.CodeRTSPUpstream, "ingress: read failed", err)
		}
		buf.SetLen(n)

		hdr, err := rtpheader.Parse(buf.Bytes())
		if err != nil {
			if log != nil {
				log.Debugf("ingress: dropping short packet (%d bytes): %v", n, err)
			}
			buf.Release()
			continue
		}

		sink(hdr, buf)

		if n == 0 {
			break
		}
	}
	return nil
}

func isWouldBlock(err error) bool {
	type timeout interface{ Timeout() bool }
	if t, ok := err.(timeout); ok {
		return t.Timeout()
	}
	return false
}

// FanOut enqueues one resolved media packet's payload (RTP header
// stripped) to every attached client's egress queue; a client whose
// Enqueue returns false has hit its hard cap and the packet is simply
// skipped for that client (spec §4.5: "new packets are dropped at the
// ingress point... and counted").
func FanOut(hdr rtpheader.Header, buf *buffer.PacketBuffer, queues []*zerocopy.Queue) {
	offset := hdr.PayloadOffset
	length := len(buf.Bytes()) - offset
	for _, q := range queues {
		q.Enqueue(buf, offset, length)
	}
}

// FECRecover applies one FEC (parity) packet to block and, when that
// recovers a media packet, returns it as a buffer holding the full RTP
// datagram plus its parsed header, ready for FanOut (which strips the
// header); ok is false when nothing was recovered. The pool-backed buffer for a
// recovered packet is newly acquired here (spec §4.4: FEC recovery, like
// every other ingress path, goes through the shared pool, never a raw
// allocation).
func FECRecover(block *fec.Block, col int, parityPayload []byte, pool *buffer.Pool) (*buffer.PacketBuffer, rtpheader.Header, bool) {
	block.PutParity(col, parityPayload)
	recovered := block.Recover(col)
	if recovered == nil {
		return nil, rtpheader.Header{}, false
	}

	hdr, err := rtpheader.Parse(recovered)
	if err != nil {
		return nil, rtpheader.Header{}, false
	}

	buf, err := pool.Acquire()
	if err != nil {
		return nil, rtpheader.Header{}, false
	}
	n := copy(buf.Bytes()[:buf.Cap()], recovered)
	buf.SetLen(n)

	return buf, hdr, true
}
