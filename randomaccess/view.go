package randomaccess

import (
	"io"

	"mit.edu/dsg/pagedio/common"
)

// View is a read-only window [start, start+length) over a shared source with its own position in
// [0, length]. Nothing outside the window is ever observed, and closing the view leaves the
// source open.
type View struct {
	shared   *Shared
	start    int64
	length   int64
	position int64
}

var _ RandomAccess = (*View)(nil)

func (v *View) checkOpen() error {
	if v.shared == nil || v.shared.isSourceClosed() {
		return errClosed("view")
	}
	return nil
}

func (v *View) ReadByte() (byte, error) {
	if err := v.checkOpen(); err != nil {
		return 0, err
	}
	if v.position >= v.length {
		return 0, io.EOF
	}

	v.shared.mu.Lock()
	defer v.shared.mu.Unlock()
	if err := v.shared.restore(v.start + v.position); err != nil {
		return 0, err
	}
	b, err := v.shared.src.ReadByte()
	if err != nil {
		return 0, err
	}
	v.position++
	return b, nil
}

// Read reads at most up to the right edge of the window.
func (v *View) Read(p []byte) (int, error) {
	if err := v.checkOpen(); err != nil {
		return 0, err
	}
	if len(p) == 0 {
		return 0, nil
	}
	if v.position >= v.length {
		return 0, io.EOF
	}
	if rest := v.length - v.position; int64(len(p)) > rest {
		p = p[:rest]
	}

	v.shared.mu.Lock()
	defer v.shared.mu.Unlock()
	if err := v.shared.restore(v.start + v.position); err != nil {
		return 0, err
	}
	n, err := v.shared.src.Read(p)
	v.position += int64(n)
	return n, err
}

func (v *View) Write([]byte) (int, error) {
	if err := v.checkOpen(); err != nil {
		return 0, err
	}
	return 0, errReadOnly("view")
}

func (v *View) WriteByte(byte) error {
	if err := v.checkOpen(); err != nil {
		return err
	}
	return errReadOnly("view")
}

// SeekTo moves the view position, clamping it to the window length.
func (v *View) SeekTo(pos int64) error {
	if err := v.checkOpen(); err != nil {
		return err
	}
	if pos < 0 {
		return errNegativeSeek(pos)
	}
	if pos > v.length {
		pos = v.length
	}
	v.position = pos
	return nil
}

func (v *View) Position() (int64, error) {
	if err := v.checkOpen(); err != nil {
		return 0, err
	}
	return v.position, nil
}

func (v *View) Length() (int64, error) {
	if err := v.checkOpen(); err != nil {
		return 0, err
	}
	return v.length, nil
}

func (v *View) Peek() (byte, error) {
	return PeekByte(v)
}

func (v *View) Rewind(n int) error {
	return RewindBy(v, n)
}

func (v *View) IsEOF() (bool, error) {
	if err := v.checkOpen(); err != nil {
		return false, err
	}
	return v.position >= v.length, nil
}

func (v *View) Available() (int64, error) {
	if err := v.checkOpen(); err != nil {
		return 0, err
	}
	return v.length - v.position, nil
}

// CreateView returns a window relative to this one. The new view borrows the same source.
func (v *View) CreateView(start, length int64) (*View, error) {
	if err := v.checkOpen(); err != nil {
		return nil, err
	}
	end, ok := common.CheckedAdd(start, length)
	if !ok || end > v.length {
		return nil, common.NewError(common.InvalidArgumentError,
			"view [%d, +%d) exceeds enclosing view of length %d", start, length, v.length)
	}
	return v.shared.View(v.start+start, length)
}

func (v *View) IsClosed() bool {
	return v.shared == nil || v.shared.isSourceClosed()
}

// Close drops the reference to the source without closing it.
func (v *View) Close() error {
	v.shared = nil
	return nil
}
