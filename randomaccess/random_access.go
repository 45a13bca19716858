// Package randomaccess defines the seekable byte-addressable contract shared by every storage
// variant in this module, together with the variants that need no page pool: a chunked
// in-memory buffer, a file wrapper, range views, a concatenating sequence and stream adapters.
package randomaccess

import (
	"io"

	"mit.edu/dsg/pagedio/common"
)

// RandomAccess is a seekable byte store with a single cursor.
//
// Read returns io.EOF only when no byte could be produced because the position was already at
// the end; a read that crosses the end returns the partial count with a nil error. Every method
// of a closed instance fails with a ClosedError, except IsClosed and a repeated Close.
//
// Implementations are not safe for concurrent use. Share a source between several cursors with
// Shared.
type RandomAccess interface {
	io.Reader
	io.ByteReader
	io.Writer
	io.ByteWriter
	io.Closer

	// SeekTo moves the cursor to pos. Negative positions fail with an InvalidArgumentError;
	// behaviour past the end depends on the implementation.
	SeekTo(pos int64) error
	// Position returns the current cursor position.
	Position() (int64, error)
	// Length returns the number of bytes stored.
	Length() (int64, error)
	// Peek returns the next byte without consuming it.
	Peek() (byte, error)
	// Rewind moves the cursor back n bytes.
	Rewind(n int) error
	// IsEOF reports whether the cursor is at or beyond the end.
	IsEOF() (bool, error)
	// Available returns the number of bytes between the cursor and the end.
	Available() (int64, error)
	// IsClosed reports whether Close has been called.
	IsClosed() bool
}

// ReadFully reads exactly len(p) bytes, failing with io.ErrUnexpectedEOF if the source ends first
// (or io.EOF if it was already at the end).
func ReadFully(r RandomAccess, p []byte) error {
	_, err := io.ReadFull(r, p)
	return err
}

// PeekByte implements Peek for any RandomAccess in terms of ReadByte followed by Rewind(1). At the
// end of the source it returns io.EOF and leaves the position untouched.
func PeekByte(r RandomAccess) (byte, error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, err
	}
	if err := r.Rewind(1); err != nil {
		return 0, err
	}
	return b, nil
}

// RewindBy implements Rewind for any RandomAccess in terms of Position and SeekTo.
func RewindBy(r RandomAccess, n int) error {
	if n < 0 {
		return common.NewError(common.InvalidArgumentError, "negative rewind of %d bytes", n)
	}
	pos, err := r.Position()
	if err != nil {
		return err
	}
	if int64(n) > pos {
		return common.NewError(common.InvalidArgumentError, "cannot rewind %d bytes from position %d", n, pos)
	}
	return r.SeekTo(pos - int64(n))
}

func errClosed(what string) error {
	return common.NewError(common.ClosedError, "%s already closed", what)
}

func errNegativeSeek(pos int64) error {
	return common.NewError(common.InvalidArgumentError, "invalid seek position %d", pos)
}

func errReadOnly(what string) error {
	return common.NewError(common.ProtocolError, "%s is read-only", what)
}
