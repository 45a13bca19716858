package storage

import (
	"io"

	"mit.edu/dsg/pagedio/common"
	"mit.edu/dsg/pagedio/randomaccess"
)

// ScratchBuffer is a growable byte buffer whose content is kept in pages of a ScratchFile. The
// buffer remembers the pool index of each of its pages; logical page i covers bytes
// [i*PageSize, (i+1)*PageSize).
//
// Only the current page is held by the buffer. It is written back to the pool when it was modified
// and the cursor leaves it.
type ScratchBuffer struct {
	pool *ScratchFile
	id   uint64

	pageIndexes []int
	// currentPagePos is the logical number of the current page; currentPageOffset its first byte.
	currentPagePos    int
	currentPageOffset int64
	currentPage       []byte
	positionInPage    int
	pageDirty         bool
	size              int64
}

var _ randomaccess.RandomAccess = (*ScratchBuffer)(nil)

func newScratchBuffer(pool *ScratchFile) (*ScratchBuffer, error) {
	if err := pool.checkClosed(); err != nil {
		return nil, err
	}
	b := &ScratchBuffer{pool: pool}
	if err := b.addPage(); err != nil {
		return nil, err
	}
	b.id = pool.registerBuffer(b)
	return b, nil
}

func (b *ScratchBuffer) checkClosed() error {
	if b.pool == nil {
		return common.NewError(common.ClosedError, "scratch buffer already closed")
	}
	if b.pool.IsClosed() {
		return common.NewError(common.ClosedError, "scratch file of this buffer already closed")
	}
	return nil
}

func (b *ScratchBuffer) addPage() error {
	if len(b.pageIndexes) >= common.MaxPageIndex {
		return common.NewError(common.CapacityExceededError, "maximum buffer size reached")
	}
	idx, err := b.pool.AllocatePage()
	if err != nil {
		return err
	}
	b.pageIndexes = append(b.pageIndexes, idx)
	b.currentPagePos = len(b.pageIndexes) - 1
	b.currentPageOffset = int64(b.currentPagePos) * int64(common.PageSize)
	b.currentPage = make([]byte, common.PageSize)
	b.positionInPage = 0
	return nil
}

func (b *ScratchBuffer) flush() error {
	if !b.pageDirty {
		return nil
	}
	if err := b.pool.WritePage(b.pageIndexes[b.currentPagePos], b.currentPage); err != nil {
		return err
	}
	b.pageDirty = false
	return nil
}

// ensureAvailableBytesInPage moves to the next page when the current one is exhausted. It returns
// false if there is no next page and addNew is not set.
func (b *ScratchBuffer) ensureAvailableBytesInPage(addNew bool) (bool, error) {
	if b.positionInPage < common.PageSize {
		return true, nil
	}
	if err := b.flush(); err != nil {
		return false, err
	}
	if b.currentPagePos+1 < len(b.pageIndexes) {
		page, err := b.pool.ReadPage(b.pageIndexes[b.currentPagePos+1])
		if err != nil {
			return false, err
		}
		b.currentPagePos++
		b.currentPage = page
		b.currentPageOffset = int64(b.currentPagePos) * int64(common.PageSize)
		b.positionInPage = 0
		return true, nil
	}
	if !addNew {
		return false, nil
	}
	if err := b.addPage(); err != nil {
		return false, err
	}
	return true, nil
}

func (b *ScratchBuffer) position() int64 {
	return b.currentPageOffset + int64(b.positionInPage)
}

func (b *ScratchBuffer) Length() (int64, error) {
	if err := b.checkClosed(); err != nil {
		return 0, err
	}
	return b.size, nil
}

func (b *ScratchBuffer) Position() (int64, error) {
	if err := b.checkClosed(); err != nil {
		return 0, err
	}
	return b.position(), nil
}

// SeekTo moves the cursor. Positions beyond the current length are a ProtocolError: a scratch buffer
// never has holes.
func (b *ScratchBuffer) SeekTo(pos int64) error {
	if err := b.checkClosed(); err != nil {
		return err
	}
	if pos < 0 {
		return common.NewError(common.InvalidArgumentError, "negative seek offset %d", pos)
	}
	if pos > b.size {
		return common.NewError(common.ProtocolError, "cannot seek to %d beyond the end of a %d byte buffer", pos, b.size)
	}

	if pos >= b.currentPageOffset && pos <= b.currentPageOffset+int64(common.PageSize) {
		b.positionInPage = int(pos - b.currentPageOffset)
		return nil
	}

	if err := b.flush(); err != nil {
		return err
	}
	newPagePos := int(pos / int64(common.PageSize))
	// The end of a buffer that exactly fills its pages lies at the end of the last page.
	if pos%int64(common.PageSize) == 0 && pos == b.size && newPagePos > 0 {
		newPagePos--
	}
	page, err := b.pool.ReadPage(b.pageIndexes[newPagePos])
	if err != nil {
		return err
	}
	b.currentPage = page
	b.currentPagePos = newPagePos
	b.currentPageOffset = int64(newPagePos) * int64(common.PageSize)
	b.positionInPage = int(pos - b.currentPageOffset)
	return nil
}

func (b *ScratchBuffer) Read(p []byte) (int, error) {
	if err := b.checkClosed(); err != nil {
		return 0, err
	}
	if len(p) == 0 {
		return 0, nil
	}
	remain := b.size - b.position()
	if remain <= 0 {
		return 0, io.EOF
	}

	toRead := int(min(int64(len(p)), remain))
	read := 0
	for read < toRead {
		ok, err := b.ensureAvailableBytesInPage(false)
		if err != nil {
			return read, err
		}
		common.Assert(ok, "scratch buffer ran out of pages %d bytes before its end", toRead-read)
		n := copy(p[read:toRead], b.currentPage[b.positionInPage:])
		b.positionInPage += n
		read += n
	}
	return read, nil
}

func (b *ScratchBuffer) ReadByte() (byte, error) {
	if err := b.checkClosed(); err != nil {
		return 0, err
	}
	if b.position() >= b.size {
		return 0, io.EOF
	}
	ok, err := b.ensureAvailableBytesInPage(false)
	if err != nil {
		return 0, err
	}
	common.Assert(ok, "scratch buffer ran out of pages before its end")
	c := b.currentPage[b.positionInPage]
	b.positionInPage++
	return c, nil
}

// Write overwrites and extends the buffer at the cursor, allocating pages as needed. If the pool
// runs out of space the bytes written so far are kept and counted.
func (b *ScratchBuffer) Write(p []byte) (int, error) {
	if err := b.checkClosed(); err != nil {
		return 0, err
	}
	written := 0
	var err error
	for written < len(p) {
		if _, err = b.ensureAvailableBytesInPage(true); err != nil {
			break
		}
		n := copy(b.currentPage[b.positionInPage:], p[written:])
		b.positionInPage += n
		b.pageDirty = true
		written += n
	}
	if end := b.position(); end > b.size {
		b.size = end
	}
	return written, err
}

func (b *ScratchBuffer) WriteByte(c byte) error {
	if err := b.checkClosed(); err != nil {
		return err
	}
	if _, err := b.ensureAvailableBytesInPage(true); err != nil {
		return err
	}
	b.currentPage[b.positionInPage] = c
	b.positionInPage++
	b.pageDirty = true
	if end := b.position(); end > b.size {
		b.size = end
	}
	return nil
}

func (b *ScratchBuffer) Peek() (byte, error) {
	return randomaccess.PeekByte(b)
}

func (b *ScratchBuffer) Rewind(n int) error {
	return randomaccess.RewindBy(b, n)
}

func (b *ScratchBuffer) IsEOF() (bool, error) {
	if err := b.checkClosed(); err != nil {
		return false, err
	}
	return b.position() >= b.size, nil
}

func (b *ScratchBuffer) Available() (int64, error) {
	if err := b.checkClosed(); err != nil {
		return 0, err
	}
	return b.size - b.position(), nil
}

// Clear empties the buffer and returns every page but the first to the pool.
func (b *ScratchBuffer) Clear() error {
	if err := b.checkClosed(); err != nil {
		return err
	}
	b.pool.FreePages(b.pageIndexes[1:]...)
	b.pageIndexes = b.pageIndexes[:1]
	if b.currentPagePos > 0 {
		b.currentPage = make([]byte, common.PageSize)
		b.currentPagePos = 0
		b.currentPageOffset = 0
	}
	b.positionInPage = 0
	b.size = 0
	b.pageDirty = false
	return nil
}

func (b *ScratchBuffer) IsClosed() bool {
	return b.pool == nil
}

// Close returns all pages to the pool. A buffer whose pool is already closed just drops its state.
func (b *ScratchBuffer) Close() error {
	if b.pool == nil {
		return nil
	}
	if !b.pool.IsClosed() {
		b.pool.FreePages(b.pageIndexes...)
	}
	b.pool.unregisterBuffer(b.id)
	b.pool = nil
	b.pageIndexes = nil
	b.currentPage = nil
	b.currentPagePos = 0
	b.currentPageOffset = 0
	b.positionInPage = 0
	b.size = 0
	b.pageDirty = false
	return nil
}
