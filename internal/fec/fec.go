// Package fec implements SMPTE 2022-1 column-based XOR forward error
// correction (spec §4.6/§6.2/§12): FEC packets on a sibling UDP port let the
// ingress recover a single dropped media packet per column without
// retransmission.
//
// The open question in spec §9 ("row+column vs column-only") is resolved in
// SPEC_FULL.md §12 as column-only, the normative default; Block implements
// only column parity and has no row-parity recovery.
package fec

import (
	"github.com/bits-and-blooms/bitset"
)

// Block tracks one FEC matrix: L columns by D rows of media packets plus one
// XOR parity packet per column, grounded on SMPTE 2022-1's L×D FEC matrix
// parameters.
type Block struct {
	L, D int

	media  [][]byte // L*D slots, row-major; nil until received
	parity [][]byte // L parity packets, one per column

	received *bitset.BitSet // L*D bits: which media slots have arrived
	parityOK *bitset.BitSet // L bits: which parity packets have arrived
}

// NewBlock allocates tracking state for an L-column, D-row FEC matrix.
func NewBlock(l, d int) *Block {
	return &Block{
		L:        l,
		D:        d,
		media:    make([][]byte, l*d),
		parity:   make([][]byte, l),
		received: bitset.New(uint(l * d)),
		parityOK: bitset.New(uint(l)),
	}
}

// slot returns the row-major index for (column, row).
func (b *Block) slot(col, row int) int { return row*b.L + col }

// PutMedia records a received media packet at (column, row) within the
// block. payload is retained by reference; callers must not mutate it
// afterwards.
func (b *Block) PutMedia(col, row int, payload []byte) {
	idx := b.slot(col, row)
	if idx < 0 || idx >= len(b.media) {
		return
	}
	b.media[idx] = payload
	b.received.Set(uint(idx))
}

// PutParity records the XOR parity packet for column col.
func (b *Block) PutParity(col int, payload []byte) {
	if col < 0 || col >= b.L {
		return
	}
	b.parity[col] = payload
	b.parityOK.Set(uint(col))
}

// Recoverable reports whether column col is missing exactly one media
// packet and has its parity packet, i.e. XOR recovery is possible.
func (b *Block) Recoverable(col int) (missingRow int, ok bool) {
	if !b.parityOK.Test(uint(col)) {
		return 0, false
	}

	missing := -1
	for row := 0; row < b.D; row++ {
		if !b.received.Test(uint(b.slot(col, row))) {
			if missing != -1 {
				return 0, false // more than one gap: unrecoverable by column parity
			}
			missing = row
		}
	}
	if missing == -1 {
		return 0, false // nothing missing
	}
	return missing, true
}

// Recover reconstructs the missing packet in column col by XOR-ing every
// present packet in that column (media and parity) together. The result is
// sized to the longest input in the column, matching SMPTE 2022-1's
// implicit zero-padding of shorter payloads before XOR.
func (b *Block) Recover(col int) []byte {
	row, ok := b.Recoverable(col)
	if !ok {
		return nil
	}

	maxLen := len(b.parity[col])
	for r := 0; r < b.D; r++ {
		if r == row {
			continue
		}
		if p := b.media[b.slot(col, r)]; len(p) > maxLen {
			maxLen = len(p)
		}
	}

	out := make([]byte, maxLen)
	xorInto(out, b.parity[col])
	for r := 0; r < b.D; r++ {
		if r == row {
			continue
		}
		xorInto(out, b.media[b.slot(col, r)])
	}

	b.PutMedia(col, row, out)
	return out
}

func xorInto(dst, src []byte) {
	for i := range src {
		dst[i] ^= src[i]
	}
}

// Reset clears all tracking state for block reuse (blocks are small and
// short-lived, but the ingress pool reuses them per spec §4.4's general
// no-per-packet-allocation stance).
func (b *Block) Reset() {
	for i := range b.media {
		b.media[i] = nil
	}
	for i := range b.parity {
		b.parity[i] = nil
	}
	b.received.ClearAll()
	b.parityOK.ClearAll()
}
