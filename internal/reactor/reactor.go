// Package reactor implements spec §4.1's single-threaded readiness loop:
// one epoll instance multiplexing the upstream sockets that have genuine
// N:1 fan-out contention — multicast ingress, FCC unicast bursts, and FEC
// parity sockets — with a min-heap of timers bounding the poll wait.
// HTTP client sockets, RTSP upstream sockets, and the http-proxy path run
// on net/http's own per-connection goroutines instead (see internal/worker's
// package doc): each of those is one-socket-to-one-client regardless of
// scheduling model, so registering them here would add epoll bookkeeping
// without removing any contention.
//
// Grounded on the single-loop, tagged-dispatch shape of jacobsa-fuse's
// Connection (other_examples/.../connection.go.go reads kernel requests
// and dispatches by opcode on one goroutine) and the readiness-then-drain
// pattern of tailscale's io_uring completion loop
// (other_examples/.../net-uring-io_uring_linux.go.go), re-expressed over
// golang.org/x/sys/unix epoll since Linux epoll, not io_uring, is this
// gateway's target per spec §4.5's MSG_ZEROCOPY/MSG_ERRQUEUE reliance.
package reactor

import (
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/stackia/rtp2httpd/internal/rerror"
	"github.com/stackia/rtp2httpd/internal/timerheap"
)

// EventHandler is invoked with the readiness bitmask (unix.EPOLLIN etc.)
// for its registered descriptor. Spec §9: "the poller's opaque event
// payload is an index or a small tagged record, never a raw pointer" — a
// handler is looked up by tag, not carried through the kernel event.
type EventHandler func(events uint32)

// maxEvents bounds one epoll_wait batch; spec §4.6 applies an analogous
// per-tick cap ("up to 64 packets per tick") to avoid starving other
// sockets, and the reactor applies the same discipline to its own event
// batch.
const maxEvents = 256

// Reactor is the worker's single readiness loop. Its timer heap and the
// dispatch itself run on exactly one OS thread per spec §5, but Register/
// Unregister are called from the HTTP goroutines that open FCC/FEC
// sockets mid-session, so handlersMu guards just the handlers map and tag
// counter against that one point of concurrent access; unix.EpollCtl is
// safe to call concurrently on its own.
type Reactor struct {
	epfd int

	handlersMu sync.Mutex
	handlers   map[int32]EventHandler
	nextTag    int32

	timers *timerheap.Heap
}

// New creates an epoll instance. Callers must Close it.
func New() (*Reactor, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, rerror.Wrap(rerror.CodeBindFailed, "reactor: epoll_create1 failed", err)
	}
	return &Reactor{
		epfd:     fd,
		handlers: make(map[int32]EventHandler, 256),
		timers:   timerheap.New(),
	}, nil
}

func (r *Reactor) Close() error {
	return unix.Close(r.epfd)
}

// Timers exposes the timer heap so callers can Schedule deadlines (FCC
// 80ms response, RTSP keepalive, bandwidth sample tick, send-batch flush,
// multicast rejoin) alongside registering sockets.
func (r *Reactor) Timers() *timerheap.Heap { return r.timers }

// Register adds fd to the poller with the given event mask and assigns it
// a small integer tag, returned for later Modify/Unregister calls.
func (r *Reactor) Register(fd int, events uint32, cb EventHandler) (int32, error) {
	r.handlersMu.Lock()
	tag := r.nextTag
	r.nextTag++
	r.handlers[tag] = cb
	r.handlersMu.Unlock()

	ev := unix.EpollEvent{Events: events, Fd: tag}
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		r.handlersMu.Lock()
		delete(r.handlers, tag)
		r.handlersMu.Unlock()
		return 0, rerror.Wrap(rerror.CodeBindFailed, "reactor: epoll_ctl add failed", err)
	}

	return tag, nil
}

// Modify changes the registered event mask for fd/tag.
func (r *Reactor) Modify(fd int, tag int32, events uint32) error {
	ev := unix.EpollEvent{Events: events, Fd: tag}
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_MOD, fd, &ev); err != nil {
		return rerror.Wrap(rerror.CodeBindFailed, "reactor: epoll_ctl mod failed", err)
	}
	return nil
}

// Unregister removes fd from the poller and drops its handler. Spec
// §4.1: "unregisters its descriptors in the same reactor tick" a client
// is torn down.
func (r *Reactor) Unregister(fd int, tag int32) error {
	r.handlersMu.Lock()
	delete(r.handlers, tag)
	r.handlersMu.Unlock()
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		return rerror.Wrap(rerror.CodeBindFailed, "reactor: epoll_ctl del failed", err)
	}
	return nil
}

// RunOnce drains one batch of ready events (after first firing any due
// timers) and returns the number of events dispatched. The wait is capped
// by the earliest timer deadline, never longer, so no handler can starve
// a pending timer (spec §4.1: "the poll wait is capped by the earliest
// timer").
func (r *Reactor) RunOnce(now time.Time) (int, error) {
	r.timers.FireDue(now)

	timeoutMs := -1
	if deadline, ok := r.timers.NextDeadline(); ok {
		if d := deadline.Sub(now); d > 0 {
			timeoutMs = int(d.Milliseconds())
			if timeoutMs == 0 {
				timeoutMs = 1
			}
		} else {
			timeoutMs = 0
		}
	}

	var events [maxEvents]unix.EpollEvent
	n, err := unix.EpollWait(r.epfd, events[:], timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, rerror.Wrap(rerror.CodeBindFailed, "reactor: epoll_wait failed", err)
	}

	for i := 0; i < n; i++ {
		tag := events[i].Fd
		r.handlersMu.Lock()
		cb, ok := r.handlers[tag]
		r.handlersMu.Unlock()
		if ok {
			cb(events[i].Events)
		}
	}

	return n, nil
}

// Run loops RunOnce until stop is closed.
func (r *Reactor) Run(stop <-chan struct{}) error {
	for {
		select {
		case <-stop:
			return nil
		default:
		}
		if _, err := r.RunOnce(time.Now()); err != nil {
			return err
		}
	}
}
