package ccitt

import (
	"mit.edu/dsg/pagedio/common"
)

// PackedBits is a fixed-length bit row packed MSB first, eight pixels per byte, as in a PBM raster
// or a PDF image sample stream with one bit per component.
type PackedBits struct {
	data    []byte
	numBits int
}

// NewPackedBits returns a row of numBits cleared bits.
func NewPackedBits(numBits int) *PackedBits {
	common.Assert(numBits >= 0, "negative row length %d", numBits)
	return &PackedBits{data: make([]byte, (numBits+7)/8), numBits: numBits}
}

func (p *PackedBits) Len() int {
	return p.numBits
}

// Set sets bit i.
func (p *PackedBits) Set(i int) {
	common.Assert(i >= 0 && i < p.numBits, "bit %d out of range [0, %d)", i, p.numBits)
	p.data[i/8] |= 0x80 >> (i % 8)
}

// Get returns bit i.
func (p *PackedBits) Get(i int) bool {
	common.Assert(i >= 0 && i < p.numBits, "bit %d out of range [0, %d)", i, p.numBits)
	return p.data[i/8]&(0x80>>(i%8)) != 0
}

// SetRange sets bits [from, to).
func (p *PackedBits) SetRange(from, to int) {
	common.Assert(from >= 0 && from <= to && to <= p.numBits, "invalid range [%d, %d)", from, to)
	for i := from; i < to; {
		if i%8 == 0 && to-i >= 8 {
			p.data[i/8] = 0xFF
			i += 8
			continue
		}
		p.data[i/8] |= 0x80 >> (i % 8)
		i++
	}
}

// Clear resets every bit to 0.
func (p *PackedBits) Clear() {
	clear(p.data)
}

// Bytes returns the packed row. The slice is owned by p.
func (p *PackedBits) Bytes() []byte {
	return p.data
}
