// Package timerheap implements the reactor's timer min-heap (spec §4.1:
// "Timers... are implemented as a min-heap; the poll wait is capped by the
// earliest timer"). It is a plain container/heap.Interface user, not a
// ticking clock itself — the reactor drives it with wall-clock time it
// already has from the poller.
package timerheap

import (
	"container/heap"
	"time"
)

// Callback runs when a timer fires. now is the time the reactor observed
// at the point it drained due timers, not necessarily the exact deadline.
type Callback func(now time.Time)

// entry is one scheduled timer.
type entry struct {
	deadline time.Time
	cb       Callback
	index    int // heap.Interface bookkeeping; -1 once removed
	canceled bool
}

// Handle lets a caller cancel a timer it previously scheduled.
type Handle struct {
	e *entry
}

type innerHeap []*entry

func (h innerHeap) Len() int            { return len(h) }
func (h innerHeap) Less(i, j int) bool  { return h[i].deadline.Before(h[j].deadline) }
func (h innerHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index, h[j].index = i, j }
func (h *innerHeap) Push(x interface{}) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *innerHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// Heap is the reactor's timer wheel. Not safe for concurrent use; the
// reactor is single-threaded per spec §5.
type Heap struct {
	h innerHeap
}

func New() *Heap {
	return &Heap{}
}

// Schedule arms a timer to fire at deadline.
func (t *Heap) Schedule(deadline time.Time, cb Callback) *Handle {
	e := &entry{deadline: deadline, cb: cb}
	heap.Push(&t.h, e)
	return &Handle{e: e}
}

// Cancel marks a timer canceled; it is skipped (and lazily dropped) when
// it would otherwise fire, rather than searched for and removed eagerly
// (spec §4.1: "cancellation is cooperative").
func (h *Handle) Cancel() {
	if h == nil || h.e == nil {
		return
	}
	h.e.canceled = true
}

// NextDeadline returns the earliest still-armed deadline, used to bound
// the poller's wait (spec §4.1). ok is false when no timers are pending.
func (t *Heap) NextDeadline() (deadline time.Time, ok bool) {
	for len(t.h) > 0 {
		top := t.h[0]
		if top.canceled {
			heap.Pop(&t.h)
			continue
		}
		return top.deadline, true
	}
	return time.Time{}, false
}

// FireDue pops and invokes every timer whose deadline is <= now, skipping
// canceled ones, and returns how many callbacks actually ran.
func (t *Heap) FireDue(now time.Time) int {
	fired := 0
	for len(t.h) > 0 {
		top := t.h[0]
		if top.canceled {
			heap.Pop(&t.h)
			continue
		}
		if top.deadline.After(now) {
			break
		}
		heap.Pop(&t.h)
		top.cb(now)
		fired++
	}
	return fired
}

// Len reports the number of still-armed (including lazily-uncollected
// canceled) timers.
func (t *Heap) Len() int { return len(t.h) }
