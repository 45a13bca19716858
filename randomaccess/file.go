package randomaccess

import (
	"errors"
	"io"
	"os"

	"mit.edu/dsg/pagedio/common"
)

// File is a RandomAccess over an operating system file. It keeps its own cursor and transfers
// bytes with positional reads and writes, so no paging or buffering happens in between.
//
// The file length is cached at open time and maintained on writes; File assumes it is the only
// writer of the underlying file.
type File struct {
	file     *os.File
	readOnly bool
	length   int64
	pos      int64
	one      [1]byte
}

var _ RandomAccess = (*File)(nil)

// OpenFile opens path for reading.
func OpenFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, common.WrapError(common.IOError, err, "open %s", path)
	}
	raf, err := NewFile(f, true)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return raf, nil
}

// OpenFileReadWrite opens path for reading and writing, creating it if needed.
func OpenFileReadWrite(path string) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0666)
	if err != nil {
		return nil, common.WrapError(common.IOError, err, "open %s", path)
	}
	raf, err := NewFile(f, false)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return raf, nil
}

// NewFile wraps an already open file, taking ownership of it.
func NewFile(f *os.File, readOnly bool) (*File, error) {
	stat, err := f.Stat()
	if err != nil {
		return nil, common.WrapError(common.IOError, err, "stat %s", f.Name())
	}
	return &File{file: f, readOnly: readOnly, length: stat.Size()}, nil
}

// Name returns the name of the underlying file.
func (f *File) Name() string {
	if f.file == nil {
		return ""
	}
	return f.file.Name()
}

func (f *File) Read(p []byte) (int, error) {
	if f.file == nil {
		return 0, errClosed("file")
	}
	if len(p) == 0 {
		return 0, nil
	}
	if f.pos >= f.length {
		return 0, io.EOF
	}
	if rest := f.length - f.pos; int64(len(p)) > rest {
		p = p[:rest]
	}
	n, err := f.file.ReadAt(p, f.pos)
	f.pos += int64(n)
	if err != nil && !errors.Is(err, io.EOF) {
		return n, common.WrapError(common.IOError, err, "read %s at %d", f.file.Name(), f.pos)
	}
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

func (f *File) ReadByte() (byte, error) {
	n, err := f.Read(f.one[:])
	if err != nil {
		return 0, err
	}
	common.Assert(n == 1, "short single byte read")
	return f.one[0], nil
}

func (f *File) Write(p []byte) (int, error) {
	if f.file == nil {
		return 0, errClosed("file")
	}
	if f.readOnly {
		return 0, errReadOnly(f.file.Name())
	}
	n, err := f.file.WriteAt(p, f.pos)
	f.pos += int64(n)
	if f.pos > f.length {
		f.length = f.pos
	}
	if err != nil {
		return n, common.WrapError(common.IOError, err, "write %s at %d", f.file.Name(), f.pos)
	}
	return n, nil
}

func (f *File) WriteByte(c byte) error {
	f.one[0] = c
	_, err := f.Write(f.one[:])
	return err
}

// SeekTo moves the cursor to pos, or to the end of the file if pos lies beyond it.
func (f *File) SeekTo(pos int64) error {
	if f.file == nil {
		return errClosed("file")
	}
	if pos < 0 {
		return errNegativeSeek(pos)
	}
	if pos > f.length {
		pos = f.length
	}
	f.pos = pos
	return nil
}

func (f *File) Position() (int64, error) {
	if f.file == nil {
		return 0, errClosed("file")
	}
	return f.pos, nil
}

func (f *File) Length() (int64, error) {
	if f.file == nil {
		return 0, errClosed("file")
	}
	return f.length, nil
}

func (f *File) Peek() (byte, error) {
	return PeekByte(f)
}

func (f *File) Rewind(n int) error {
	return RewindBy(f, n)
}

func (f *File) IsEOF() (bool, error) {
	if f.file == nil {
		return false, errClosed("file")
	}
	return f.pos >= f.length, nil
}

func (f *File) Available() (int64, error) {
	if f.file == nil {
		return 0, errClosed("file")
	}
	return f.length - f.pos, nil
}

// Sync flushes writes to stable storage.
func (f *File) Sync() error {
	if f.file == nil {
		return errClosed("file")
	}
	return common.WrapError(common.IOError, f.file.Sync(), "sync %s", f.file.Name())
}

func (f *File) IsClosed() bool {
	return f.file == nil
}

// Close closes the underlying file. Closing twice is a no-op.
func (f *File) Close() error {
	if f.file == nil {
		return nil
	}
	file := f.file
	f.file = nil
	return common.WrapError(common.IOError, file.Close(), "close %s", file.Name())
}
