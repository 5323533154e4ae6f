package timerheap_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stackia/rtp2httpd/internal/timerheap"
)

func TestFireDueInDeadlineOrder(t *testing.T) {
	h := timerheap.New()
	base := time.Now()

	var order []int
	h.Schedule(base.Add(30*time.Millisecond), func(time.Time) { order = append(order, 3) })
	h.Schedule(base.Add(10*time.Millisecond), func(time.Time) { order = append(order, 1) })
	h.Schedule(base.Add(20*time.Millisecond), func(time.Time) { order = append(order, 2) })

	fired := h.FireDue(base.Add(25 * time.Millisecond))
	require.Equal(t, 2, fired)
	require.Equal(t, []int{1, 2}, order)
}

func TestCancelSkipsFire(t *testing.T) {
	h := timerheap.New()
	base := time.Now()

	called := false
	handle := h.Schedule(base.Add(time.Millisecond), func(time.Time) { called = true })
	handle.Cancel()

	h.FireDue(base.Add(time.Second))
	require.False(t, called)
}

func TestNextDeadlineSkipsCanceled(t *testing.T) {
	h := timerheap.New()
	base := time.Now()

	handle := h.Schedule(base.Add(time.Millisecond), func(time.Time) {})
	h.Schedule(base.Add(5*time.Millisecond), func(time.Time) {})
	handle.Cancel()

	d, ok := h.NextDeadline()
	require.True(t, ok)
	require.Equal(t, base.Add(5*time.Millisecond), d)
}
