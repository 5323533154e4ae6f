package fec_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stackia/rtp2httpd/internal/fec"
)

func xor(a, b []byte) []byte {
	out := make([]byte, len(a))
	for i := range a {
		v := a[i]
		if i < len(b) {
			v ^= b[i]
		}
		out[i] = v
	}
	return out
}

func TestRecoverSingleDrop(t *testing.T) {
	b := fec.NewBlock(4, 4)

	col := 1
	rows := [][]byte{
		{0x01, 0x02, 0x03},
		{0xAA, 0xBB, 0xCC},
		{0x11, 0x22, 0x33},
		{0x55, 0x66, 0x77}, // this one will be "dropped"
	}

	parity := []byte{0, 0, 0}
	for _, r := range rows {
		parity = xor(parity, r)
	}

	for row := 0; row < 3; row++ {
		b.PutMedia(col, row, rows[row])
	}
	b.PutParity(col, parity)

	missingRow, ok := b.Recoverable(col)
	require.True(t, ok)
	require.Equal(t, 3, missingRow)

	recovered := b.Recover(col)
	require.Equal(t, rows[3], recovered)
}

func TestRecoverableFalseWhenNothingMissing(t *testing.T) {
	b := fec.NewBlock(2, 2)
	b.PutMedia(0, 0, []byte{1})
	b.PutMedia(0, 1, []byte{2})
	b.PutParity(0, []byte{3})

	_, ok := b.Recoverable(0)
	require.False(t, ok)
}

func TestRecoverableFalseWithTwoGaps(t *testing.T) {
	b := fec.NewBlock(2, 3)
	b.PutMedia(0, 0, []byte{1})
	b.PutParity(0, []byte{9})

	_, ok := b.Recoverable(0)
	require.False(t, ok, "column parity cannot recover two simultaneous drops")
}

func TestRecoverableFalseWithoutParity(t *testing.T) {
	b := fec.NewBlock(2, 2)
	b.PutMedia(0, 0, []byte{1})

	_, ok := b.Recoverable(0)
	require.False(t, ok)
}
