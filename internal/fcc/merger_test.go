package fcc

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stackia/rtp2httpd/internal/buffer"
)

func newPending(t *testing.T, pool *buffer.Pool, src source) pending {
	t.Helper()
	buf, err := pool.Acquire()
	require.NoError(t, err)
	return pending{src: src, buf: buf, offset: 0, length: 1}
}

func TestMergerEmitsInOrder(t *testing.T) {
	pool, err := buffer.NewPool(8, 8)
	require.NoError(t, err)

	m := newMerger(8)
	m.seed(101)

	out := m.push(101, newPending(t, pool, sourceUnicast))
	require.Len(t, out, 1)

	out = m.push(103, newPending(t, pool, sourceUnicast))
	require.Len(t, out, 0) // 102 missing, buffered

	out = m.push(102, newPending(t, pool, sourceUnicast))
	require.Len(t, out, 2) // 102 then 103 released together
}

func TestMergerDropsDuplicates(t *testing.T) {
	pool, err := buffer.NewPool(8, 8)
	require.NoError(t, err)

	m := newMerger(8)
	m.seed(101)
	m.push(101, newPending(t, pool, sourceUnicast))

	out := m.push(101, newPending(t, pool, sourceUnicast))
	require.Len(t, out, 0)
	// The duplicate's buffer was released; only the first, emitted copy
	// is still held (by this test, as the caller of push).
	require.Equal(t, 1, pool.Stats().Used)
}

func TestMergerForceAdvancesWhenWindowFull(t *testing.T) {
	pool, err := buffer.NewPool(16, 16)
	require.NoError(t, err)

	m := newMerger(4)
	m.seed(100)

	// 102..106 arrive but 100 and 101 never do; once the window fills the gap
	// is skipped and buffered packets drain.
	for seq := uint16(102); seq <= 106; seq++ {
		m.push(seq, newPending(t, pool, sourceUnicast))
	}

	require.True(t, rtpGreaterHelper(m.lastEmitted, 100))
}

func rtpGreaterHelper(a, b uint16) bool { return int16(a-b) > 0 }
