package buffer_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stackia/rtp2httpd/internal/buffer"
	"github.com/stackia/rtp2httpd/internal/rerror"
)

func TestAcquireReleaseBalance(t *testing.T) {
	p, err := buffer.NewPool(4, 8)
	require.NoError(t, err)

	b, err := p.Acquire()
	require.NoError(t, err)
	require.EqualValues(t, 1, b.RefCount())

	st := p.Stats()
	require.Equal(t, st.Used+st.Free, st.Total)

	b.Release()
	st = p.Stats()
	require.Equal(t, 0, st.Used)
	require.Equal(t, st.Total, st.Free)
}

// TestFanOutRefCounting exercises spec §8's core invariant: one ingested
// packet forwarded to N clients increments the refcount N times and only
// returns to the free list after N releases.
func TestFanOutRefCounting(t *testing.T) {
	p, err := buffer.NewPool(2, 4)
	require.NoError(t, err)

	b, err := p.Acquire()
	require.NoError(t, err)

	const fanout = 5
	for i := 0; i < fanout-1; i++ {
		b.Retain()
	}
	require.EqualValues(t, fanout, b.RefCount())

	for i := 0; i < fanout-1; i++ {
		b.Release()
		require.Equal(t, 1, p.Stats().Free, "must not be freed before all references drop")
	}

	b.Release()
	require.Equal(t, p.Stats().Total, p.Stats().Free)
}

func TestExhaustionAtMax(t *testing.T) {
	p, err := buffer.NewPool(1, 1)
	require.NoError(t, err)

	b1, err := p.Acquire()
	require.NoError(t, err)

	_, err = p.Acquire()
	require.Error(t, err)
	require.Equal(t, rerror.CodeBufferExhausted, rerror.GetCode(err))
	require.Equal(t, 1, p.Stats().Exhaustion)

	b1.Release()
	b2, err := p.Acquire()
	require.NoError(t, err)
	require.NotNil(t, b2)
}

func TestLazyExpansionUpToMax(t *testing.T) {
	p, err := buffer.NewPool(0, 10)
	require.NoError(t, err)

	bufs := make([]*buffer.PacketBuffer, 0, 10)
	for i := 0; i < 10; i++ {
		b, err := p.Acquire()
		require.NoError(t, err)
		bufs = append(bufs, b)
	}

	_, err = p.Acquire()
	require.Error(t, err)

	st := p.Stats()
	require.Equal(t, 10, st.Total)
	require.Equal(t, 10, st.Used)
	require.GreaterOrEqual(t, st.Expansions, 1)
}

func TestMaybeShrinkReleasesIdleChunk(t *testing.T) {
	p, err := buffer.NewPool(0, 512)
	require.NoError(t, err)

	// Force growth past the initial allocation, then release everything so
	// utilization is low.
	bufs := make([]*buffer.PacketBuffer, 0, 256)
	for i := 0; i < 256; i++ {
		b, err := p.Acquire()
		require.NoError(t, err)
		bufs = append(bufs, b)
	}
	for _, b := range bufs {
		b.Release()
	}

	totalBefore := p.Stats().Total
	now := time.Now()

	p.MaybeShrink(0, 10*time.Second, now)
	require.Equal(t, totalBefore, p.Stats().Total, "shrink should not fire before sustained window elapses")

	p.MaybeShrink(0, 10*time.Second, now.Add(11*time.Second))
	require.Less(t, p.Stats().Total, totalBefore)
}
