package storage

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"mit.edu/dsg/pagedio/common"
)

// PageFile is the on-disk half of a scratch file: a flat array of common.PageSize pages, numbered
// from zero, that only ever grows.
//
// Read and Write of different pages may run concurrently, and Grow is atomic with respect to
// other calls to Grow.
type PageFile interface {
	// Grow appends n zero-filled pages and returns the number of the first one.
	Grow(n int) (int, error)
	// Pages returns the current number of pages.
	Pages() int
	// Read fills frame, which must be exactly one page long, with page pageNum.
	Read(pageNum int, frame []byte) error
	// Write stores frame as page pageNum. The page must exist.
	Write(pageNum int, frame []byte) error
	Close() error
	// Name returns the path of the file.
	Name() string
}

// DiskPageFile is a PageFile over an *os.File. Transfers use ReadAt/WriteAt, so there is no shared
// cursor to protect.
type DiskPageFile struct {
	file *os.File
	// pages caches the file length in pages. It only changes under growMu.
	pages  atomic.Int32
	growMu sync.Mutex
}

var _ PageFile = (*DiskPageFile)(nil)

// NewDiskPageFile adopts an open file. Its size must be a whole number of pages.
func NewDiskPageFile(file *os.File) (*DiskPageFile, error) {
	info, err := file.Stat()
	if err != nil {
		return nil, common.WrapError(common.IOError, err, "stat %s", file.Name())
	}
	size := info.Size()
	if size%int64(common.PageSize) != 0 {
		return nil, common.NewError(common.CapacityExceededError,
			"file %s has size %d, not a multiple of the page size", file.Name(), size)
	}
	if size/int64(common.PageSize) > int64(common.MaxPageIndex) {
		return nil, common.NewError(common.CapacityExceededError, "file %s holds too many pages", file.Name())
	}

	pf := &DiskPageFile{file: file}
	pf.pages.Store(int32(size / int64(common.PageSize)))
	return pf, nil
}

func (f *DiskPageFile) Grow(n int) (int, error) {
	common.Assert(n > 0, "page file must grow by at least one page, got %d", n)
	f.growMu.Lock()
	defer f.growMu.Unlock()

	first := int(f.pages.Load())
	if first+n > common.MaxPageIndex {
		return 0, common.NewError(common.CapacityExceededError,
			"cannot grow %s beyond %d pages", f.file.Name(), common.MaxPageIndex)
	}
	// Truncate extends the file sparsely; the new range reads as zeros.
	if err := f.file.Truncate(int64(first+n) * int64(common.PageSize)); err != nil {
		return 0, common.WrapError(common.IOError, err, "grow %s by %d pages", f.file.Name(), n)
	}
	f.pages.Store(int32(first + n))
	return first, nil
}

func (f *DiskPageFile) Pages() int {
	return int(f.pages.Load())
}

// checkFrame validates a transfer of frame to or from pageNum.
func (f *DiskPageFile) checkFrame(op string, pageNum int, frame []byte) error {
	if len(frame) != common.PageSize {
		return common.NewError(common.InvalidArgumentError, "%s of %d bytes, want one page", op, len(frame))
	}
	if pages := f.Pages(); pageNum < 0 || pageNum >= pages {
		return common.NewError(common.InvalidArgumentError,
			"%s of page %d, but %s has %d pages", op, pageNum, f.file.Name(), pages)
	}
	return nil
}

func (f *DiskPageFile) Read(pageNum int, frame []byte) error {
	if err := f.checkFrame("read", pageNum, frame); err != nil {
		return err
	}
	if _, err := f.file.ReadAt(frame, int64(pageNum)*int64(common.PageSize)); err != nil {
		return common.WrapError(common.IOError, err, "read page %d of %s", pageNum, f.file.Name())
	}
	return nil
}

func (f *DiskPageFile) Write(pageNum int, frame []byte) error {
	if err := f.checkFrame("write", pageNum, frame); err != nil {
		return err
	}
	if _, err := f.file.WriteAt(frame, int64(pageNum)*int64(common.PageSize)); err != nil {
		return common.WrapError(common.IOError, err, "write page %d of %s", pageNum, f.file.Name())
	}
	return nil
}

func (f *DiskPageFile) Close() error {
	return common.WrapError(common.IOError, f.file.Close(), "close %s", f.file.Name())
}

func (f *DiskPageFile) Name() string {
	return f.file.Name()
}

func (f *DiskPageFile) String() string {
	return fmt.Sprintf("DiskPageFile(%s, %d pages)", f.file.Name(), f.Pages())
}
