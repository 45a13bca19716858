// Package storage implements the page pool ("scratch file") that backs large temporary byte
// buffers, and the buffers built on top of it.
//
// A ScratchFile hands out fixed-size pages. Depending on its MemoryUsageSetting the pages live in
// main memory, in a temp file, or in memory up to a limit and in the temp file after that. The temp
// file is created lazily on first overflow and deleted when the pool is closed.
package storage

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
	"mit.edu/dsg/pagedio/common"
)

const (
	// enlargePageCount is the number of pages the temp file grows by at a time.
	enlargePageCount = 16
	// initUnrestrictedPageSlots caps the initial number of in-memory page slots. The slot table
	// doubles whenever it runs full, up to the main memory limit.
	initUnrestrictedPageSlots = 1024
)

type scratchConfig struct {
	logger    *slog.Logger
	tempFiles TempFileFactory
	// wrapFile, if set, wraps the temp page file right after it is created.
	wrapFile func(PageFile) PageFile
}

// ScratchFileOption configures a ScratchFile (and a LinkedScratchFile).
type ScratchFileOption func(*scratchConfig)

// WithLogger sets the logger used for pool lifecycle events. The default is slog.Default().
func WithLogger(logger *slog.Logger) ScratchFileOption {
	return func(c *scratchConfig) {
		c.logger = logger
	}
}

// WithTempFileFactory replaces DefaultTempFiles as the source of temp files.
func WithTempFileFactory(factory TempFileFactory) ScratchFileOption {
	return func(c *scratchConfig) {
		c.tempFiles = factory
	}
}

func newScratchConfig(opts []ScratchFileOption) scratchConfig {
	cfg := scratchConfig{logger: slog.Default(), tempFiles: DefaultTempFiles}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// ScratchFile is a pool of common.PageSize pages, addressed by index. Indices below the in-memory
// page count refer to memory slots; higher indices refer to pages of the temp file, in order.
//
// All methods are safe for concurrent use. Lock order is mu before ioMu.
type ScratchFile struct {
	id        uuid.UUID
	setting   MemoryUsageSetting
	logger    *slog.Logger
	tempFiles TempFileFactory
	wrapFile  func(PageFile) PageFile

	useScratchFile            bool
	maxMainMemoryIsRestricted bool
	inMemoryMaxPageCount      int
	maxPageCount              int

	// mu guards leases. pageCount mirrors leases.Len() and is only written under mu, so it can be
	// read without the lock.
	mu        sync.Mutex
	leases    pageMap
	pageCount atomic.Int32

	inMemoryPages atomic.Pointer[[][]byte]

	// ioMu guards the temp file and the replacement of the in-memory slot table.
	ioMu     sync.Mutex
	file     PageFile
	filePath string

	closed       atomic.Bool
	buffers      *xsync.MapOf[uint64, *ScratchBuffer]
	nextBufferID atomic.Uint64
}

// NewScratchFile creates a page pool governed by setting. No file is created until a page has to be
// stored outside main memory.
func NewScratchFile(setting MemoryUsageSetting, opts ...ScratchFileOption) *ScratchFile {
	cfg := newScratchConfig(opts)
	id := uuid.New()

	s := &ScratchFile{
		id:        id,
		setting:   setting,
		logger:    cfg.logger.With("pool", id.String()),
		tempFiles: cfg.tempFiles,
		wrapFile:  cfg.wrapFile,
		buffers:   xsync.NewMapOf[uint64, *ScratchBuffer](),
	}

	s.maxMainMemoryIsRestricted = !setting.UseMainMemory() || setting.IsMainMemoryRestricted()
	s.useScratchFile = s.maxMainMemoryIsRestricted && setting.UseTempFile()

	switch {
	case !setting.UseMainMemory():
		s.inMemoryMaxPageCount = 0
	case setting.IsMainMemoryRestricted():
		s.inMemoryMaxPageCount = pagesFor(setting.MaxMainMemoryBytes())
	default:
		s.inMemoryMaxPageCount = common.MaxPageIndex
	}
	s.maxPageCount = common.MaxPageIndex
	if setting.IsStorageRestricted() {
		s.maxPageCount = pagesFor(setting.MaxStorageBytes())
	}

	// The slot table starts small and doubles up to inMemoryMaxPageCount as pages are needed.
	slots := min(initUnrestrictedPageSlots, s.inMemoryMaxPageCount, s.maxPageCount)
	pages := make([][]byte, slots)
	s.inMemoryPages.Store(&pages)
	s.leases = newPageMap(slots)
	s.pageCount.Store(int32(slots))
	return s
}

// NewMainMemoryScratchFile is shorthand for a pool with unrestricted main memory and no temp file.
func NewMainMemoryScratchFile(opts ...ScratchFileOption) *ScratchFile {
	return NewScratchFile(SetupMainMemoryOnly(Unrestricted), opts...)
}

func pagesFor(bytes int64) int {
	pages := bytes / int64(common.PageSize)
	if pages > int64(common.MaxPageIndex) {
		return common.MaxPageIndex
	}
	return int(pages)
}

// ID identifies the pool in log output.
func (s *ScratchFile) ID() uuid.UUID {
	return s.id
}

// Setting returns the memory setting the pool was created with.
func (s *ScratchFile) Setting() MemoryUsageSetting {
	return s.setting
}

// PageCount returns the number of page slots that currently exist, used or not.
func (s *ScratchFile) PageCount() int {
	return int(s.pageCount.Load())
}

// LeasedPages returns the number of pages currently held by buffers.
func (s *ScratchFile) LeasedPages() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.leases.Used()
}

// OpenBuffers returns the number of buffers created by this pool that have not been closed.
func (s *ScratchFile) OpenBuffers() int {
	return s.buffers.Size()
}

func (s *ScratchFile) IsClosed() bool {
	return s.closed.Load()
}

func (s *ScratchFile) checkClosed() error {
	if s.closed.Load() {
		return common.NewError(common.ClosedError, "scratch file already closed")
	}
	return nil
}

// AllocatePage returns the index of a page nobody else is using. If all existing pages are taken the
// pool is enlarged; if it cannot be enlarged a CapacityExceededError is returned.
func (s *ScratchFile) AllocatePage() (int, error) {
	if err := s.checkClosed(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.leases.Lease()
	if idx < 0 {
		if err := s.enlarge(); err != nil {
			return 0, err
		}
		if idx = s.leases.Lease(); idx < 0 {
			return 0, common.NewError(common.CapacityExceededError, "maximum allowed scratch file memory exceeded")
		}
	}
	return idx, nil
}

// enlarge adds page slots. The in-memory slot table doubles until it covers inMemoryMaxPageCount;
// after that the temp file grows. It does nothing once the storage limit is reached. Must be
// called with mu held.
func (s *ScratchFile) enlarge() error {
	s.ioMu.Lock()
	defer s.ioMu.Unlock()

	if err := s.checkClosed(); err != nil {
		return err
	}
	total := s.leases.Len()
	if total >= s.maxPageCount {
		return nil
	}

	if oldPages := *s.inMemoryPages.Load(); len(oldPages) < s.inMemoryMaxPageCount {
		newSize := int(min(2*int64(len(oldPages)), int64(s.inMemoryMaxPageCount), int64(s.maxPageCount)))
		grown := make([][]byte, newSize)
		copy(grown, oldPages)
		s.inMemoryPages.Store(&grown)
		s.leases.Grow(newSize)
		s.pageCount.Store(int32(newSize))
		s.logger.Debug("enlarged in-memory page table", "slots", newSize)
		return nil
	}
	if !s.useScratchFile {
		return nil
	}

	created := false
	if s.file == nil {
		file, path, err := openTempPageFile(s.tempFiles, s.setting.TempDir())
		if err != nil {
			return err
		}
		if s.wrapFile != nil {
			file = s.wrapFile(file)
		}
		s.file, s.filePath, created = file, path, true
		s.logger.Debug("created scratch file", "path", path)
	}
	filePages := s.file.Pages()
	if expected := total - s.inMemoryMaxPageCount; filePages != expected {
		return common.NewError(common.CapacityExceededError,
			"expected scratch file size of %d pages but found %d", expected, filePages)
	}
	grow := min(enlargePageCount, s.maxPageCount-total)
	if _, err := s.file.Grow(grow); err != nil {
		if created {
			s.discardFile()
		}
		return err
	}
	s.leases.Grow(total + grow)
	s.pageCount.Store(int32(total + grow))
	s.logger.Debug("enlarged scratch file", "path", s.filePath, "pages", filePages+grow)
	return nil
}

// discardFile closes and deletes a temp file that never held a page. Must be called with ioMu held.
func (s *ScratchFile) discardFile() {
	_ = s.file.Close()
	if err := removeTempFile(s.filePath); err != nil {
		s.logger.Error("failed to delete scratch file", "path", s.filePath, "error", err)
	}
	s.file, s.filePath = nil, ""
}

func (s *ScratchFile) checkPageIndex(pageIdx int) error {
	if pageIdx < 0 || pageIdx >= int(s.pageCount.Load()) {
		if err := s.checkClosed(); err != nil {
			return err
		}
		return common.NewError(common.InvalidArgumentError,
			"page index %d out of range [0, %d)", pageIdx, s.pageCount.Load())
	}
	return nil
}

// ReadPage returns the content of page pageIdx. An in-memory page is returned by reference; a file
// page is read into a fresh slice. Reading an in-memory page that was never written is a
// ProtocolError.
func (s *ScratchFile) ReadPage(pageIdx int) ([]byte, error) {
	if err := s.checkPageIndex(pageIdx); err != nil {
		return nil, err
	}

	if pageIdx < s.inMemoryMaxPageCount {
		pages := *s.inMemoryPages.Load()
		var page []byte
		if pageIdx < len(pages) {
			page = pages[pageIdx]
		}
		if page == nil {
			if err := s.checkClosed(); err != nil {
				return nil, err
			}
			return nil, common.NewError(common.ProtocolError, "requested page with index %d was not written before", pageIdx)
		}
		return page, nil
	}

	s.ioMu.Lock()
	defer s.ioMu.Unlock()
	if s.file == nil {
		if err := s.checkClosed(); err != nil {
			return nil, err
		}
		return nil, common.NewError(common.ProtocolError, "missing scratch file to read page with index %d from", pageIdx)
	}
	page := make([]byte, common.PageSize)
	if err := s.file.Read(pageIdx-s.inMemoryMaxPageCount, page); err != nil {
		return nil, err
	}
	return page, nil
}

// WritePage stores page as the content of page pageIdx. In-memory pages keep a reference to page,
// so the caller must not reuse the slice for another page afterwards.
func (s *ScratchFile) WritePage(pageIdx int, page []byte) error {
	if err := s.checkPageIndex(pageIdx); err != nil {
		return err
	}
	if len(page) != common.PageSize {
		return common.NewError(common.InvalidArgumentError,
			"wrong page size to write: %d; expected %d", len(page), common.PageSize)
	}

	if pageIdx < s.inMemoryMaxPageCount {
		if len(*s.inMemoryPages.Load()) < s.inMemoryMaxPageCount {
			// The slot table may still be swapped by enlarge, which holds ioMu.
			s.ioMu.Lock()
			defer s.ioMu.Unlock()
		}
		if pages := *s.inMemoryPages.Load(); pageIdx < len(pages) {
			pages[pageIdx] = page
		}
		return s.checkClosed()
	}

	s.ioMu.Lock()
	defer s.ioMu.Unlock()
	if err := s.checkClosed(); err != nil {
		return err
	}
	if s.file == nil {
		return common.NewError(common.ProtocolError, "missing scratch file to write page with index %d to", pageIdx)
	}
	return s.file.Write(pageIdx-s.inMemoryMaxPageCount, page)
}

// FreePages returns pages to the pool. Indices that are out of range or already free are ignored.
func (s *ScratchFile) FreePages(pageIndexes ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pages := *s.inMemoryPages.Load()
	for _, idx := range pageIndexes {
		if !s.leases.Release(idx) {
			continue
		}
		if idx < s.inMemoryMaxPageCount {
			pages[idx] = nil
		}
	}
}

// CreateBuffer returns a new, empty buffer whose pages come from this pool. The first page is
// allocated immediately.
func (s *ScratchFile) CreateBuffer() (*ScratchBuffer, error) {
	return newScratchBuffer(s)
}

// CreateBufferFrom creates a buffer holding everything r produces, positioned at 0.
func (s *ScratchFile) CreateBufferFrom(r io.Reader) (*ScratchBuffer, error) {
	buf, err := s.CreateBuffer()
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(buf, r); err != nil {
		_ = buf.Close()
		return nil, err
	}
	if err := buf.SeekTo(0); err != nil {
		_ = buf.Close()
		return nil, err
	}
	return buf, nil
}

func (s *ScratchFile) registerBuffer(b *ScratchBuffer) uint64 {
	id := s.nextBufferID.Add(1)
	s.buffers.Store(id, b)
	return id
}

func (s *ScratchFile) unregisterBuffer(id uint64) {
	s.buffers.Delete(id)
}

// Close releases all pages, closes and deletes the temp file. Buffers still open become unusable.
// Calling Close again is a no-op.
func (s *ScratchFile) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ioMu.Lock()
	defer s.ioMu.Unlock()

	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	var errs []error
	if s.file != nil {
		errs = append(errs, s.file.Close())
		if err := removeTempFile(s.filePath); err != nil {
			s.logger.Error("failed to delete scratch file", "path", s.filePath, "error", err)
			errs = append(errs, err)
		} else {
			s.logger.Debug("deleted scratch file", "path", s.filePath)
		}
		s.file = nil
	}

	s.leases.Reset()
	s.pageCount.Store(0)
	empty := make([][]byte, 0)
	s.inMemoryPages.Store(&empty)

	if open := s.buffers.Size(); open > 0 {
		s.logger.Warn("closing scratch file with open buffers", "buffers", open)
	}
	s.buffers.Clear()
	return errors.Join(errs...)
}
