package zerocopy

import (
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// Batch tuning from spec §4.5: accumulate up to BatchMax descriptors or
// BatchFlushTimeout before issuing a single sendmsg syscall.
const (
	BatchMin          = 16
	BatchMax          = 64
	BatchFlushTimeout = 5 * time.Millisecond
)

// SenderStats mirrors the counters spec §4.5/§6.4 require on the status
// page: batch submissions, timeout-driven flushes, EAGAIN backoffs, and
// ENOBUFS copy-fallbacks.
type SenderStats struct {
	Sent          int64
	Batches       int64
	TimeoutFlush  int64
	EAGAIN        int64
	ENOBUFSCopied int64
}

// Sender drives the zero-copy submission and completion-reaping path for one
// client socket. It owns the socket fd but not the Queue, so a disconnect
// can Drain the queue independently of whether the sender goroutine/tick is
// still scheduled.
type Sender struct {
	fd int
	q  *Queue

	mu    sync.Mutex
	stats SenderStats

	lastFlush time.Time
	zcEnabled bool
}

// NewSender wraps fd (already non-blocking) for client q. zeroCopy selects
// whether MSG_ZEROCOPY is attempted; callers probe support once per worker
// and pass the result in, since SO_ZEROCOPY setup can itself fail on older
// kernels (spec §9's "if the platform abstraction... does not expose the
// error queue, fall back to copy-send").
func NewSender(fd int, q *Queue, zeroCopy bool) *Sender {
	return &Sender{fd: fd, q: q, zcEnabled: zeroCopy, lastFlush: time.Now()}
}

// ShouldFlush reports whether the pending batch should be submitted now,
// either because it reached BatchMax or because BatchFlushTimeout elapsed
// since the last flush (spec §4.5).
func (s *Sender) ShouldFlush(pendingCount int, now time.Time) bool {
	if pendingCount == 0 {
		return false
	}
	if pendingCount >= BatchMax {
		return true
	}
	return now.Sub(s.lastFlush) >= BatchFlushTimeout
}

// Flush submits up to BatchMax pending descriptors in one syscall batch.
// Descriptors that hit EAGAIN stay queued for the next writable readiness;
// descriptors that hit ENOBUFS are retried with a copying send and counted.
// A hard send error ends the batch and is returned.
func (s *Sender) Flush(now time.Time, timedOut bool) error {
	s.q.mu.Lock()
	if len(s.q.pending) == 0 {
		s.q.mu.Unlock()
		return nil
	}

	n := len(s.q.pending)
	if n > BatchMax {
		n = BatchMax
	}
	batch := make([]descriptor, n)
	copy(batch, s.q.pending[:n])
	s.q.mu.Unlock()

	sentIdx := 0
	var sendErr error
	for _, d := range batch {
		ok, err := s.submit(d)
		if err != nil {
			sendErr = err
			break
		}
		if !ok {
			break // EAGAIN: stop, retry this and the rest next tick
		}
		sentIdx++
	}

	if sentIdx > 0 {
		s.q.mu.Lock()
		remaining := s.q.pending[sentIdx:]
		s.q.pending = append([]descriptor(nil), remaining...)
		for _, d := range batch[:sentIdx] {
			s.q.queueBytes -= int64(d.length)
			s.q.queueBuffers--
		}
		if s.q.queueBytes < s.q.limitBytes {
			s.q.slow = false
		}
		s.q.mu.Unlock()
	}

	s.mu.Lock()
	s.stats.Batches++
	s.stats.Sent += int64(sentIdx)
	if timedOut {
		s.stats.TimeoutFlush++
	}
	s.mu.Unlock()

	s.lastFlush = now
	return sendErr
}

// submit sends one descriptor, returning (true, nil) on success,
// (false, nil) on EAGAIN (caller should stop and retry later), or
// (false, err) on a hard error.
func (s *Sender) submit(d descriptor) (bool, error) {
	payload := d.buf.Bytes()[d.offset : d.offset+d.length]

	flags := 0
	if s.zcEnabled {
		flags = unix.MSG_ZEROCOPY
	}

	err := unix.Send(s.fd, payload, flags)
	if err == nil {
		if s.zcEnabled {
			// Completion for this send arrives later on the error queue;
			// register it so the reaper can match it back to this buffer.
			s.registerInFlight(d)
		} else {
			d.buf.Release()
		}
		return true, nil
	}

	switch err {
	case unix.EAGAIN:
		s.mu.Lock()
		s.stats.EAGAIN++
		s.mu.Unlock()
		return false, nil
	case unix.ENOBUFS:
		// Pinned-memory accounting exhausted (memlock too small): fall
		// back to a copying send for this descriptor (spec §4.5/§7).
		if cerr := unix.Send(s.fd, payload, 0); cerr == nil {
			s.mu.Lock()
			s.stats.ENOBUFSCopied++
			s.mu.Unlock()
			d.buf.Release()
			return true, nil
		} else if cerr == unix.EAGAIN {
			return false, nil
		} else {
			d.buf.Release()
			return false, cerr
		}
	default:
		d.buf.Release()
		return false, err
	}
}

func (s *Sender) registerInFlight(d descriptor) {
	s.q.mu.Lock()
	d.subID = s.q.nextSubID
	s.q.nextSubID++
	s.q.inFlight[d.subID] = d
	s.q.mu.Unlock()
}

// ReapCompletions drains the socket's MSG_ERRQUEUE for zero-copy completion
// notifications and releases the corresponding buffer references. Must be
// called every reactor tick while any submission is in flight (spec §4.5,
// §9: "do not silently release buffers before completion").
func (s *Sender) ReapCompletions() (completed int, err error) {
	if !s.zcEnabled {
		return 0, nil
	}

	buf := make([]byte, 0)
	oob := make([]byte, 1024)

	for {
		_, oobn, _, _, rerr := unix.Recvmsg(s.fd, buf, oob, unix.MSG_ERRQUEUE)
		if rerr != nil {
			if rerr == unix.EAGAIN {
				return completed, nil
			}
			return completed, rerr
		}
		if oobn == 0 {
			return completed, nil
		}

		scms, perr := unix.ParseSocketControlMessage(oob[:oobn])
		if perr != nil {
			return completed, perr
		}

		for _, scm := range scms {
			ee, perr := parseSockExtendedErr(scm.Data)
			if perr != nil {
				continue
			}
			if ee.Origin != unix.SO_EE_ORIGIN_ZEROCOPY {
				continue
			}
			// ee.Info / ee.Data carry the [lo, hi] range of completed
			// submission ids (the kernel coalesces ranges).
			s.completeRange(ee.Info, ee.Data)
			completed++
		}
	}
}

func (s *Sender) completeRange(lo, hi uint32) {
	s.q.mu.Lock()
	var toRelease []descriptor
	for id := lo; id <= hi; id++ {
		if d, ok := s.q.inFlight[id]; ok {
			toRelease = append(toRelease, d)
			delete(s.q.inFlight, id)
		}
	}
	s.q.mu.Unlock()

	for _, d := range toRelease {
		d.buf.Release()
	}
}

func (s *Sender) Stats() SenderStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}
