// Package worker wires every other internal package into one running
// process: the reactor drives upstream multicast/unicast sockets and
// timers (spec §4.1), while each accepted HTTP connection resolves a
// Route (internal/httpfront), attaches to or creates the Service's
// ingress socket, and streams media out through a per-client Queue and
// zero-copy Sender driven by that connection's own send goroutine
// (runSendLoop), not by the reactor.
//
// Grounded on nabbar-golib/httpserver's handler-by-key lookup
// (httpserver/handler.go) for the service registry shape, re-scoped from a
// pool of independently configured http.Handler to this gateway's fixed
// route kinds.
package worker

import (
	"sync"
	"time"

	"github.com/stackia/rtp2httpd/internal/buffer"
	"github.com/stackia/rtp2httpd/internal/fcc"
	"github.com/stackia/rtp2httpd/internal/fec"
	"github.com/stackia/rtp2httpd/internal/ingress"
	"github.com/stackia/rtp2httpd/internal/logger"
	"github.com/stackia/rtp2httpd/internal/rtpheader"
	"github.com/stackia/rtp2httpd/internal/service"
	"github.com/stackia/rtp2httpd/internal/zerocopy"
)

// subscriber is one client's stake in a multicastSession. Exactly one of
// its three payload paths applies to a given client:
//   - onPacket set: a snapshot request accumulating frames (internal/ingress
//     Accumulator), never touches queue/fcc.
//   - fcc set: an FCC-accelerated client; multicast packets are routed
//     through the engine's hand-off merge before reaching queue.
//   - neither set: a plain client; packets go straight to queue via FanOut.
type subscriber struct {
	queue        *zerocopy.Queue
	fcc          *fcc.Engine
	onPacket     func(hdr rtpheader.Header, buf *buffer.PacketBuffer)
	closeUnicast func() // non-nil alongside fcc; called once the hand-off to multicast completes
}

// multicastSession is the one ingress socket backing a multicast service,
// shared by every client currently watching it (spec §3: "the buffer pool
// is the one resource shared within a worker" — multicast sockets are the
// other natural sharing point, one socket regardless of client count).
type multicastSession struct {
	sock *ingress.MulticastSocket
	tag  int32

	fecSock    *ingress.MulticastSocket // nil when no client uses FEC for this service
	fecTag     int32
	fec        *fec.Block
	fecColumns int
	fecRows    int

	mu      sync.Mutex
	clients map[uint64]subscriber
}

// Registry tracks live multicast ingress sessions and named services, so a
// second client joining an already-open channel reuses the existing socket
// instead of re-joining the multicast group.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*multicastSession // keyed by service name

	pool *buffer.Pool
	log  *logger.Entry

	fecColumns int
	fecRows    int
}

func NewRegistry(pool *buffer.Pool, log *logger.Entry) *Registry {
	return &Registry{sessions: make(map[string]*multicastSession), pool: pool, log: log, fecColumns: 4, fecRows: 10}
}

// SetFECMatrix overrides the default L x D FEC matrix dimensions (spec
// §12); called once at startup from the configured global.fec_columns/
// global.fec_rows.
func (r *Registry) SetFECMatrix(columns, rows int) {
	if columns > 0 {
		r.fecColumns = columns
	}
	if rows > 0 {
		r.fecRows = rows
	}
}

// register opens an fd with the reactor under a caller-supplied callback;
// passed down from Worker so the registry never reaches into reactor
// internals directly.
type registerFunc func(fd int, cb func(events uint32)) (int32, error)

// joinMulticast attaches sub to svc's ingress session, opening the
// multicast socket (and, the first time any client needs it, the sibling
// FEC socket) and registering both with the reactor on first join.
func (r *Registry) joinMulticast(svc *service.Service, clientID uint64, sub subscriber, register registerFunc) error {
	r.mu.Lock()
	sess, ok := r.sessions[svc.Name]
	r.mu.Unlock()

	if ok {
		sess.mu.Lock()
		sess.clients[clientID] = sub
		sess.mu.Unlock()
		if svc.FECPort != 0 {
			r.ensureFEC(sess, svc, register)
		}
		return nil
	}

	sock, err := ingress.OpenMulticast(svc.MulticastAddr, svc.MulticastPort, svc.MulticastInterface)
	if err != nil {
		return err
	}

	sess = &multicastSession{sock: sock, clients: map[uint64]subscriber{clientID: sub}}

	tag, err := register(sock.Fd(), func(events uint32) { sess.onReadable(r.pool, r.log) })
	if err != nil {
		sock.Close()
		return err
	}
	sess.tag = tag

	if svc.FECPort != 0 {
		r.ensureFEC(sess, svc, register)
	}

	r.mu.Lock()
	r.sessions[svc.Name] = sess
	r.mu.Unlock()
	return nil
}

// ensureFEC opens the sibling FEC ingress socket (spec §4.6/§12: "FEC
// packets on a sibling UDP port") the first time it's needed; a failure
// here is non-fatal, the session just keeps streaming without recovery.
func (r *Registry) ensureFEC(sess *multicastSession, svc *service.Service, register registerFunc) {
	sess.mu.Lock()
	alreadyOpen := sess.fecSock != nil
	sess.mu.Unlock()
	if alreadyOpen {
		return
	}

	fecSock, err := ingress.OpenMulticast(svc.MulticastAddr, svc.FECPort, svc.MulticastInterface)
	if err != nil {
		if r.log != nil {
			r.log.Warnf("registry: opening FEC socket for %s: %v", svc.Name, err)
		}
		return
	}

	fecTag, err := register(fecSock.Fd(), func(events uint32) { sess.onFECReadable(r.pool, r.log) })
	if err != nil {
		fecSock.Close()
		if r.log != nil {
			r.log.Warnf("registry: registering FEC socket for %s: %v", svc.Name, err)
		}
		return
	}

	sess.mu.Lock()
	sess.fecSock = fecSock
	sess.fecTag = fecTag
	sess.fecColumns = r.fecColumns
	sess.fecRows = r.fecRows
	sess.fec = fec.NewBlock(r.fecColumns, r.fecRows)
	sess.mu.Unlock()
}

// leaveMulticast detaches clientID; the caller closes the socket once no
// sessions remain interested (left to the worker's idle sweep so a
// fast reconnect doesn't pay the rejoin cost).
func (r *Registry) leaveMulticast(svc *service.Service, clientID uint64) {
	r.mu.Lock()
	sess, ok := r.sessions[svc.Name]
	r.mu.Unlock()
	if !ok {
		return
	}
	sess.mu.Lock()
	delete(sess.clients, clientID)
	empty := len(sess.clients) == 0
	sess.mu.Unlock()
	if empty {
		r.mu.Lock()
		delete(r.sessions, svc.Name)
		r.mu.Unlock()
	}
}

// onReadable is the reactor callback for a multicast session's primary
// socket: it drains the bounded batch, feeds every packet through the FEC
// block (when this session has one), and dispatches it to every attached
// subscriber.
func (sess *multicastSession) onReadable(pool *buffer.Pool, log *logger.Entry) {
	_ = ingress.MediaReader(sess.sock.UDPConn(), pool, log, func(hdr rtpheader.Header, buf *buffer.PacketBuffer) {
		sess.dispatch(hdr, buf)
	})
}

// onFECReadable is the reactor callback for a session's sibling FEC
// socket: each parity packet may recover exactly one missing media packet
// per spec §4.6, which is then dispatched exactly like an ordinary
// arrival.
func (sess *multicastSession) onFECReadable(pool *buffer.Pool, log *logger.Entry) {
	_ = ingress.MediaReader(sess.fecSock.UDPConn(), pool, log, func(hdr rtpheader.Header, buf *buffer.PacketBuffer) {
		sess.mu.Lock()
		block := sess.fec
		cols := sess.fecColumns
		sess.mu.Unlock()
		parity := buf.Bytes()[hdr.PayloadOffset:]
		col := int(hdr.SequenceNumber) % cols
		recoveredBuf, recoveredHdr, ok := ingress.FECRecover(block, col, parity, pool)
		buf.Release()
		if !ok {
			return
		}
		sess.dispatch(recoveredHdr, recoveredBuf)
	})
}

// dispatch fans one resolved media packet (ordinary arrival or FEC
// recovery) out to every subscriber, records it into the FEC block for
// future recovery, and releases the caller's reference.
func (sess *multicastSession) dispatch(hdr rtpheader.Header, buf *buffer.PacketBuffer) {
	sess.mu.Lock()
	block := sess.fec
	cols := sess.fecColumns
	rows := sess.fecRows
	subs := make([]subscriber, 0, len(sess.clients))
	for _, s := range sess.clients {
		subs = append(subs, s)
	}
	sess.mu.Unlock()

	if block != nil && cols > 0 && rows > 0 {
		seq := int(hdr.SequenceNumber)
		col, row := seq%cols, (seq/cols)%rows
		// PutMedia retains the slice by reference, but buf is released
		// (and may be recycled by the pool) before that row is ever
		// needed for recovery, so the FEC block gets its own copy. The
		// stored packet is the full RTP datagram (header included): the
		// parity XOR must reconstruct a parseable RTP packet, not just a
		// payload, since FECRecover re-derives the sequence number from it.
		pkt := append([]byte(nil), buf.Bytes()...)
		block.PutMedia(col, row, pkt)
	}

	now := time.Now()
	var direct []*zerocopy.Queue
	for _, s := range subs {
		switch {
		case s.onPacket != nil:
			buf.Retain()
			s.onPacket(hdr, buf)
		case s.fcc != nil:
			buf.Retain()
			forwards := s.fcc.OnMulticastPacket(buf, hdr, now)
			for _, f := range forwards {
				s.queue.Enqueue(f.Buf, f.Offset, f.Length)
				f.Buf.Release()
			}
			if s.fcc.ShouldCloseUnicast() && s.closeUnicast != nil {
				s.closeUnicast()
			}
		default:
			direct = append(direct, s.queue)
		}
	}
	ingress.FanOut(hdr, buf, direct)
	buf.Release()
}
