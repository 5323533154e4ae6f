package worker

import (
	"net"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/stackia/rtp2httpd/internal/fcc"
	"github.com/stackia/rtp2httpd/internal/ingress"
	"github.com/stackia/rtp2httpd/internal/rtpheader"
	"github.com/stackia/rtp2httpd/internal/service"
	"github.com/stackia/rtp2httpd/internal/zerocopy"
)

// fccUnicast bundles a live FCC client's persistent unicast socket with
// the reactor registration needed to tear it down once the hand-off to
// multicast completes or the client disconnects.
type fccUnicast struct {
	conn      *net.UDPConn
	fd        int
	tag       int32
	closeOnce sync.Once
}

// startFCC opens the one persistent unicast socket an FCC-accelerated
// client's join request is sent from and its ACK/burst is received on
// (spec §4.2). The server replies to the 5-tuple the join came from, so
// request and burst must share this socket rather than a throwaway dial
// that's closed before any reply could arrive.
func (w *Worker) startFCC(svc *service.Service, queue *zerocopy.Queue) (*fcc.Engine, *fccUnicast, error) {
	lo, hi, err := w.cfg.Global.FCCPortRange()
	if err != nil {
		return nil, nil, err
	}
	conn, err := ingress.OpenUnicast(lo, hi)
	if err != nil {
		return nil, nil, err
	}

	rawConn, err := conn.SyscallConn()
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	var fd int
	_ = rawConn.Control(func(sysfd uintptr) { fd = int(sysfd) })

	sender := func(payload []byte, addr *net.UDPAddr) error {
		_, err := conn.WriteToUDP(payload, addr)
		return err
	}
	engine := fcc.NewEngine(svc, sender, w.log)
	uc := &fccUnicast{conn: conn, fd: fd}

	tag, err := w.registerFd(fd, func(events uint32) {
		w.onFCCUnicastReadable(engine, conn, queue, uc)
	})
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	uc.tag = tag

	return engine, uc, nil
}

// onFCCUnicastReadable drains one socket-readable event on a client's FCC
// unicast socket. Every datagram is first tried as a control reply
// (OnControlPacket already internally gates on REQUESTED state, so it's
// always safe to try first); anything it doesn't consume is parsed as RTP
// and handed to the engine's unicast path. Forwards from the engine are
// enqueued (each retains its own reference) then released once, matching
// the ingress.FanOut pattern.
func (w *Worker) onFCCUnicastReadable(engine *fcc.Engine, conn *net.UDPConn, queue *zerocopy.Queue, uc *fccUnicast) {
	for i := 0; i < ingress.DrainBatch; i++ {
		buf, err := w.pool.Acquire()
		if err != nil {
			return
		}

		// MSG_DONTWAIT: a drained socket reports EAGAIN at once instead of
		// parking the reactor goroutine inside the kernel.
		n, _, err := unix.Recvfrom(uc.fd, buf.Bytes()[:buf.Cap()], unix.MSG_DONTWAIT)
		if err != nil {
			buf.Release()
			return
		}
		if n == 0 {
			buf.Release()
			return
		}
		buf.SetLen(n)
		now := time.Now()

		if engine.OnControlPacket(buf.Bytes(), now) {
			buf.Release()
			continue
		}

		hdr, perr := rtpheader.Parse(buf.Bytes())
		if perr != nil {
			buf.Release()
			continue
		}

		// OnUnicastPacket takes ownership of this reference: it either
		// buffers buf in the reorder merger (still retained) or releases
		// it itself when the packet is dropped.
		forwards := engine.OnUnicastPacket(buf, hdr, now)
		for _, f := range forwards {
			queue.Enqueue(f.Buf, f.Offset, f.Length)
			f.Buf.Release()
		}

		if engine.ReadyForMulticastJoin() {
			engine.RequestMulticastJoin(now)
		}
	}
}

// closeFCC tears down a client's FCC unicast socket once the hand-off to
// multicast completes (fcc.Engine.ShouldCloseUnicast) or the client
// disconnects; idempotent since ShouldCloseUnicast stays true forever
// once set and the dispatch path calls this on every subsequent packet.
func (w *Worker) closeFCC(uc *fccUnicast) {
	if uc == nil {
		return
	}
	uc.closeOnce.Do(func() {
		_ = w.reactor.Unregister(uc.fd, uc.tag)
		_ = uc.conn.Close()
	})
}
