package storage

import (
	"math/bits"

	"mit.edu/dsg/pagedio/common"
)

// pageMap tracks which pages of a scratch file are leased: bit i is set while page i belongs to a
// buffer. Allocation always takes the lowest free index, so the in-memory pages at the front of
// the pool are used before any page of the temp file.
type pageMap struct {
	words []uint64
	size  int
	used  int
}

func newPageMap(size int) pageMap {
	common.Assert(size >= 0, "negative page map size %d", size)
	return pageMap{words: make([]uint64, (size+63)/64), size: size}
}

// Len returns the number of pages the map covers.
func (m *pageMap) Len() int {
	return m.size
}

// Used returns the number of leased pages.
func (m *pageMap) Used() int {
	return m.used
}

// Grow extends the map to size pages. The new pages are free.
func (m *pageMap) Grow(size int) {
	common.Assert(size >= m.size, "page map cannot shrink from %d to %d", m.size, size)
	if need := (size + 63) / 64; need > len(m.words) {
		words := make([]uint64, need)
		copy(words, m.words)
		m.words = words
	}
	m.size = size
}

// InUse reports whether page idx is leased. Indices outside the map are never in use.
func (m *pageMap) InUse(idx int) bool {
	if idx < 0 || idx >= m.size {
		return false
	}
	return m.words[idx/64]&(1<<(idx%64)) != 0
}

// Lease marks the lowest free page as used and returns it, or -1 if every page is leased.
func (m *pageMap) Lease() int {
	for w, word := range m.words {
		if word == ^uint64(0) {
			continue
		}
		idx := w*64 + bits.TrailingZeros64(^word)
		if idx >= m.size {
			break
		}
		m.words[w] |= 1 << (idx % 64)
		m.used++
		return idx
	}
	return -1
}

// Release frees page idx. It reports false if idx was not leased.
func (m *pageMap) Release(idx int) bool {
	if !m.InUse(idx) {
		return false
	}
	m.words[idx/64] &^= 1 << (idx % 64)
	m.used--
	return true
}

// Reset drops every page.
func (m *pageMap) Reset() {
	*m = pageMap{}
}
