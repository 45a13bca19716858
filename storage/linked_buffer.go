package storage

import (
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
	"mit.edu/dsg/pagedio/common"
	"mit.edu/dsg/pagedio/randomaccess"
)

// LinkedScratchFile is a file-only page store whose buffers chain their pages together on disk.
// Every page is laid out as
//
//	[previous page: int64 LE][payload: LinkedPagePayloadSize bytes][next page: int64 LE]
//
// with common.NoPage marking the ends of a chain. The store never reuses pages; the temp file is
// deleted as a whole when the store is closed.
type LinkedScratchFile struct {
	id        uuid.UUID
	setting   MemoryUsageSetting
	logger    *slog.Logger
	tempFiles TempFileFactory
	wrapFile  func(PageFile) PageFile

	maxPageCount int

	// mu guards the file and the allocation counter. Page transfers also happen under mu.
	mu        sync.Mutex
	file      PageFile
	filePath  string
	allocated int

	closed       atomic.Bool
	buffers      *xsync.MapOf[uint64, *LinkedScratchBuffer]
	nextBufferID atomic.Uint64
}

// NewLinkedScratchFile creates a linked page store. Only the storage limit and temp directory of
// setting apply; pages are never kept in main memory.
func NewLinkedScratchFile(setting MemoryUsageSetting, opts ...ScratchFileOption) *LinkedScratchFile {
	cfg := newScratchConfig(opts)
	id := uuid.New()
	s := &LinkedScratchFile{
		id:           id,
		setting:      setting,
		logger:       cfg.logger.With("pool", id.String()),
		tempFiles:    cfg.tempFiles,
		wrapFile:     cfg.wrapFile,
		maxPageCount: common.MaxPageIndex,
		buffers:      xsync.NewMapOf[uint64, *LinkedScratchBuffer](),
	}
	if setting.IsStorageRestricted() {
		s.maxPageCount = pagesFor(setting.MaxStorageBytes())
	}
	return s
}

func (s *LinkedScratchFile) ID() uuid.UUID {
	return s.id
}

func (s *LinkedScratchFile) IsClosed() bool {
	return s.closed.Load()
}

// PageCount returns the number of pages handed out so far.
func (s *LinkedScratchFile) PageCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.allocated
}

func (s *LinkedScratchFile) OpenBuffers() int {
	return s.buffers.Size()
}

func (s *LinkedScratchFile) checkClosed() error {
	if s.closed.Load() {
		return common.NewError(common.ClosedError, "linked scratch file already closed")
	}
	return nil
}

// newPage hands out a page whose header links back to prev and has no successor.
func (s *LinkedScratchFile) newPage(prev int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkClosed(); err != nil {
		return 0, err
	}

	if s.file == nil {
		file, path, err := openTempPageFile(s.tempFiles, s.setting.TempDir())
		if err != nil {
			return 0, err
		}
		if s.wrapFile != nil {
			file = s.wrapFile(file)
		}
		s.file, s.filePath = file, path
		s.logger.Debug("created linked scratch file", "path", path)
	}

	filePages := s.file.Pages()
	if s.allocated == filePages {
		if s.allocated >= s.maxPageCount {
			return 0, common.NewError(common.CapacityExceededError, "maximum allowed scratch file memory exceeded")
		}
		grow := min(enlargePageCount, s.maxPageCount-s.allocated)
		if _, err := s.file.Grow(grow); err != nil {
			return 0, err
		}
		s.logger.Debug("enlarged linked scratch file", "path", s.filePath, "pages", filePages+grow)
	}

	page := int64(s.allocated)
	frame := make([]byte, common.PageSize)
	setPrevLink(frame, prev)
	setNextLink(frame, common.NoPage)
	if err := s.file.Write(int(page), frame); err != nil {
		return 0, err
	}
	s.allocated++
	return page, nil
}

func (s *LinkedScratchFile) readPage(page int64, frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkClosed(); err != nil {
		return err
	}
	common.Assert(page >= 0 && page < int64(s.allocated), "linked page %d was never allocated", page)
	return s.file.Read(int(page), frame)
}

func (s *LinkedScratchFile) writePage(page int64, frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkClosed(); err != nil {
		return err
	}
	common.Assert(page >= 0 && page < int64(s.allocated), "linked page %d was never allocated", page)
	return s.file.Write(int(page), frame)
}

// CreateBuffer returns a new, empty buffer backed by a fresh page chain.
func (s *LinkedScratchFile) CreateBuffer() (*LinkedScratchBuffer, error) {
	first, err := s.newPage(common.NoPage)
	if err != nil {
		return nil, err
	}
	b := &LinkedScratchBuffer{
		store:     s,
		frame:     make([]byte, common.PageSize),
		firstPage: first,
		lastPage:  first,
		pageCount: 1,
		current:   first,
	}
	setPrevLink(b.frame, common.NoPage)
	setNextLink(b.frame, common.NoPage)
	b.id = s.nextBufferID.Add(1)
	s.buffers.Store(b.id, b)
	return b, nil
}

// Close closes and deletes the temp file. Buffers still open become unusable.
func (s *LinkedScratchFile) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	var errs []error
	if s.file != nil {
		errs = append(errs, s.file.Close())
		if err := removeTempFile(s.filePath); err != nil {
			s.logger.Error("failed to delete linked scratch file", "path", s.filePath, "error", err)
			errs = append(errs, err)
		}
		s.file = nil
	}
	s.allocated = 0
	if open := s.buffers.Size(); open > 0 {
		s.logger.Warn("closing linked scratch file with open buffers", "buffers", open)
	}
	s.buffers.Clear()
	return errors.Join(errs...)
}

func prevLink(frame []byte) int64 {
	return int64(binary.LittleEndian.Uint64(frame[:common.PageLinkSize]))
}

func nextLink(frame []byte) int64 {
	return int64(binary.LittleEndian.Uint64(frame[common.PageSize-common.PageLinkSize:]))
}

func setPrevLink(frame []byte, page int64) {
	binary.LittleEndian.PutUint64(frame[:common.PageLinkSize], uint64(page))
}

func setNextLink(frame []byte, page int64) {
	binary.LittleEndian.PutUint64(frame[common.PageSize-common.PageLinkSize:], uint64(page))
}

// LinkedScratchBuffer is a growable byte buffer stored as a doubly linked chain of pages in a
// LinkedScratchFile. It holds one page frame; seeking walks the chain from whichever end is closer.
type LinkedScratchBuffer struct {
	store *LinkedScratchFile
	id    uint64

	frame     []byte
	firstPage int64
	lastPage  int64
	pageCount int

	// current is the file page in frame, currentNumber its position in the chain.
	current       int64
	currentNumber int
	posInPage     int
	dirty         bool
	length        int64
}

var _ randomaccess.RandomAccess = (*LinkedScratchBuffer)(nil)

func (b *LinkedScratchBuffer) checkClosed() error {
	if b.store == nil {
		return common.NewError(common.ClosedError, "linked scratch buffer already closed")
	}
	return b.store.checkClosed()
}

func (b *LinkedScratchBuffer) payload() []byte {
	return b.frame[common.PageLinkSize : common.PageSize-common.PageLinkSize]
}

func (b *LinkedScratchBuffer) position() int64 {
	return int64(b.currentNumber)*int64(common.LinkedPagePayloadSize) + int64(b.posInPage)
}

func (b *LinkedScratchBuffer) flush() error {
	if !b.dirty {
		return nil
	}
	if err := b.store.writePage(b.current, b.frame); err != nil {
		return err
	}
	b.dirty = false
	return nil
}

func (b *LinkedScratchBuffer) load(page int64, number int) error {
	if err := b.flush(); err != nil {
		return err
	}
	if err := b.store.readPage(page, b.frame); err != nil {
		return err
	}
	b.current = page
	b.currentNumber = number
	return nil
}

// moveTo loads chain page number, starting from the current page or from the first page,
// whichever is closer.
func (b *LinkedScratchBuffer) moveTo(number int) error {
	common.Assert(number >= 0 && number < b.pageCount, "chain page %d out of range [0, %d)", number, b.pageCount)
	if number < b.currentNumber && number < b.currentNumber-number {
		if err := b.load(b.firstPage, 0); err != nil {
			return err
		}
	}
	for b.currentNumber < number {
		next := nextLink(b.frame)
		common.Assert(next != common.NoPage, "page chain ends at %d before page %d", b.currentNumber, number)
		if err := b.load(next, b.currentNumber+1); err != nil {
			return err
		}
	}
	for b.currentNumber > number {
		prev := prevLink(b.frame)
		common.Assert(prev != common.NoPage, "page chain starts at %d after page %d", b.currentNumber, number)
		if err := b.load(prev, b.currentNumber-1); err != nil {
			return err
		}
	}
	return nil
}

// nextPage moves to the start of the following page, appending one to the chain if grow is set.
// It returns false at the end of the chain when grow is not set.
func (b *LinkedScratchBuffer) nextPage(grow bool) (bool, error) {
	if next := nextLink(b.frame); next != common.NoPage {
		if err := b.load(next, b.currentNumber+1); err != nil {
			return false, err
		}
		b.posInPage = 0
		return true, nil
	}
	if !grow {
		return false, nil
	}
	if b.pageCount >= common.MaxPageIndex {
		return false, common.NewError(common.CapacityExceededError, "maximum buffer size reached")
	}

	page, err := b.store.newPage(b.current)
	if err != nil {
		return false, err
	}
	setNextLink(b.frame, page)
	b.dirty = true
	if err := b.flush(); err != nil {
		return false, err
	}
	clear(b.frame)
	setPrevLink(b.frame, b.current)
	setNextLink(b.frame, common.NoPage)
	b.current = page
	b.currentNumber++
	b.lastPage = page
	b.pageCount++
	b.posInPage = 0
	return true, nil
}

func (b *LinkedScratchBuffer) Length() (int64, error) {
	if err := b.checkClosed(); err != nil {
		return 0, err
	}
	return b.length, nil
}

func (b *LinkedScratchBuffer) Position() (int64, error) {
	if err := b.checkClosed(); err != nil {
		return 0, err
	}
	return b.position(), nil
}

// SeekTo moves the cursor. Positions beyond the current length are a ProtocolError.
func (b *LinkedScratchBuffer) SeekTo(pos int64) error {
	if err := b.checkClosed(); err != nil {
		return err
	}
	if pos < 0 {
		return common.NewError(common.InvalidArgumentError, "negative seek offset %d", pos)
	}
	if pos > b.length {
		return common.NewError(common.ProtocolError, "cannot seek to %d beyond the end of a %d byte buffer", pos, b.length)
	}

	payload := int64(common.LinkedPagePayloadSize)
	number, offset := int(pos/payload), int(pos%payload)
	if number >= b.pageCount {
		// pos is the end of a chain whose last page is full.
		number, offset = b.pageCount-1, common.LinkedPagePayloadSize
	}
	if err := b.moveTo(number); err != nil {
		return err
	}
	b.posInPage = offset
	return nil
}

func (b *LinkedScratchBuffer) Read(p []byte) (int, error) {
	if err := b.checkClosed(); err != nil {
		return 0, err
	}
	if len(p) == 0 {
		return 0, nil
	}
	remain := b.length - b.position()
	if remain <= 0 {
		return 0, io.EOF
	}
	toRead := int(min(int64(len(p)), remain))
	read := 0
	for read < toRead {
		if b.posInPage == common.LinkedPagePayloadSize {
			ok, err := b.nextPage(false)
			if err != nil {
				return read, err
			}
			common.Assert(ok, "page chain ended %d bytes before its length", toRead-read)
		}
		n := copy(p[read:toRead], b.payload()[b.posInPage:])
		b.posInPage += n
		read += n
	}
	return read, nil
}

func (b *LinkedScratchBuffer) ReadByte() (byte, error) {
	var one [1]byte
	if _, err := b.Read(one[:]); err != nil {
		return 0, err
	}
	return one[0], nil
}

func (b *LinkedScratchBuffer) Write(p []byte) (int, error) {
	if err := b.checkClosed(); err != nil {
		return 0, err
	}
	written := 0
	var err error
	for written < len(p) {
		if b.posInPage == common.LinkedPagePayloadSize {
			if _, err = b.nextPage(true); err != nil {
				break
			}
		}
		n := copy(b.payload()[b.posInPage:], p[written:])
		b.posInPage += n
		b.dirty = true
		written += n
	}
	if end := b.position(); end > b.length {
		b.length = end
	}
	return written, err
}

func (b *LinkedScratchBuffer) WriteByte(c byte) error {
	_, err := b.Write([]byte{c})
	return err
}

func (b *LinkedScratchBuffer) Peek() (byte, error) {
	return randomaccess.PeekByte(b)
}

func (b *LinkedScratchBuffer) Rewind(n int) error {
	return randomaccess.RewindBy(b, n)
}

func (b *LinkedScratchBuffer) IsEOF() (bool, error) {
	if err := b.checkClosed(); err != nil {
		return false, err
	}
	return b.position() >= b.length, nil
}

func (b *LinkedScratchBuffer) Available() (int64, error) {
	if err := b.checkClosed(); err != nil {
		return 0, err
	}
	return b.length - b.position(), nil
}

// PageCount returns the length of the buffer's page chain.
func (b *LinkedScratchBuffer) PageCount() int {
	return b.pageCount
}

func (b *LinkedScratchBuffer) IsClosed() bool {
	return b.store == nil
}

// Close drops the buffer's state. Its pages stay in the file until the store is closed.
func (b *LinkedScratchBuffer) Close() error {
	if b.store == nil {
		return nil
	}
	b.store.buffers.Delete(b.id)
	b.store = nil
	b.frame = nil
	b.length = 0
	b.dirty = false
	return nil
}
