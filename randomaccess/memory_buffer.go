package randomaccess

import (
	"io"

	"mit.edu/dsg/pagedio/common"
)

// DefaultChunkSize is the chunk size of a MemoryBuffer created without an explicit one.
const DefaultChunkSize = 1024

// MemoryBuffer is a growable in-memory RandomAccess backed by a list of equally sized chunks.
// Growing appends a chunk instead of reallocating and copying the whole content.
//
// The cursor and the size both decompose into (chunk index, offset in chunk) by dividing by the
// chunk size. Seeking past the end moves the cursor to the end, so the position never exceeds
// the length.
type MemoryBuffer struct {
	chunks    [][]byte
	chunkSize int
	size      int64
	pointer   int64
	closed    bool
}

var _ RandomAccess = (*MemoryBuffer)(nil)

// NewMemoryBuffer creates an empty buffer with DefaultChunkSize chunks.
func NewMemoryBuffer() *MemoryBuffer {
	return NewMemoryBufferWithChunkSize(DefaultChunkSize)
}

// NewMemoryBufferWithChunkSize creates an empty buffer whose chunks hold chunkSize bytes each.
func NewMemoryBufferWithChunkSize(chunkSize int) *MemoryBuffer {
	common.Assert(chunkSize > 0, "chunk size must be positive, got %d", chunkSize)
	return &MemoryBuffer{
		chunks:    [][]byte{make([]byte, chunkSize)},
		chunkSize: chunkSize,
	}
}

// WrapBytes exposes data as a buffer without copying it: data becomes the only chunk and the chunk
// size equals its length. Writes go straight into data; growing beyond it appends new chunks.
func WrapBytes(data []byte) *MemoryBuffer {
	if len(data) == 0 {
		return NewMemoryBuffer()
	}
	return &MemoryBuffer{
		chunks:    [][]byte{data},
		chunkSize: len(data),
		size:      int64(len(data)),
	}
}

// NewMemoryBufferFromReader copies r to its end into a new buffer positioned at 0.
func NewMemoryBufferFromReader(r io.Reader) (*MemoryBuffer, error) {
	buf := NewMemoryBuffer()
	if _, err := io.Copy(buf, r); err != nil {
		return nil, common.WrapError(common.IOError, err, "copy input into memory buffer")
	}
	buf.pointer = 0
	return buf, nil
}

func (b *MemoryBuffer) maxSize() int64 {
	return int64(common.MaxPageIndex) * int64(b.chunkSize)
}

func (b *MemoryBuffer) locate(pos int64) (int, int) {
	return int(pos / int64(b.chunkSize)), int(pos % int64(b.chunkSize))
}

// Clone returns an independent deep copy sharing no mutable state with b, including the cursor
// position.
func (b *MemoryBuffer) Clone() (*MemoryBuffer, error) {
	if b.closed {
		return nil, errClosed("memory buffer")
	}
	chunks := make([][]byte, len(b.chunks))
	for i, c := range b.chunks {
		chunks[i] = make([]byte, b.chunkSize)
		copy(chunks[i], c)
	}
	return &MemoryBuffer{
		chunks:    chunks,
		chunkSize: b.chunkSize,
		size:      b.size,
		pointer:   b.pointer,
	}, nil
}

// Bytes returns a contiguous copy of the content.
func (b *MemoryBuffer) Bytes() ([]byte, error) {
	if b.closed {
		return nil, errClosed("memory buffer")
	}
	out := make([]byte, 0, b.size)
	remaining := b.size
	for _, c := range b.chunks {
		if remaining == 0 {
			break
		}
		n := int64(len(c))
		if n > remaining {
			n = remaining
		}
		out = append(out, c[:n]...)
		remaining -= n
	}
	return out, nil
}

// Truncate empties the buffer and moves the cursor to 0. Allocated chunks are kept for reuse.
func (b *MemoryBuffer) Truncate() error {
	if b.closed {
		return errClosed("memory buffer")
	}
	b.size = 0
	b.pointer = 0
	return nil
}

func (b *MemoryBuffer) Write(p []byte) (int, error) {
	if b.closed {
		return 0, errClosed("memory buffer")
	}
	if len(p) == 0 {
		return 0, nil
	}
	end, ok := common.CheckedAdd(b.pointer, int64(len(p)))
	if !ok || end > b.maxSize() {
		return 0, common.NewError(common.CapacityExceededError,
			"memory buffer cannot grow beyond %d bytes", b.maxSize())
	}

	written := 0
	for written < len(p) {
		idx, off := b.locate(b.pointer)
		for idx >= len(b.chunks) {
			b.chunks = append(b.chunks, make([]byte, b.chunkSize))
		}
		n := copy(b.chunks[idx][off:], p[written:])
		written += n
		b.pointer += int64(n)
	}
	if b.pointer > b.size {
		b.size = b.pointer
	}
	return written, nil
}

func (b *MemoryBuffer) WriteByte(c byte) error {
	if b.closed {
		return errClosed("memory buffer")
	}
	if b.pointer >= b.maxSize() {
		return common.NewError(common.CapacityExceededError,
			"memory buffer cannot grow beyond %d bytes", b.maxSize())
	}
	idx, off := b.locate(b.pointer)
	for idx >= len(b.chunks) {
		b.chunks = append(b.chunks, make([]byte, b.chunkSize))
	}
	b.chunks[idx][off] = c
	b.pointer++
	if b.pointer > b.size {
		b.size = b.pointer
	}
	return nil
}

func (b *MemoryBuffer) Read(p []byte) (int, error) {
	if b.closed {
		return 0, errClosed("memory buffer")
	}
	if len(p) == 0 {
		return 0, nil
	}
	if b.pointer >= b.size {
		return 0, io.EOF
	}
	want := int64(len(p))
	if rest := b.size - b.pointer; want > rest {
		want = rest
	}
	read := 0
	for int64(read) < want {
		idx, off := b.locate(b.pointer)
		n := copy(p[read:want], b.chunks[idx][off:])
		read += n
		b.pointer += int64(n)
	}
	return read, nil
}

func (b *MemoryBuffer) ReadByte() (byte, error) {
	if b.closed {
		return 0, errClosed("memory buffer")
	}
	if b.pointer >= b.size {
		return 0, io.EOF
	}
	idx, off := b.locate(b.pointer)
	b.pointer++
	return b.chunks[idx][off], nil
}

// SeekTo moves the cursor to pos, or to the end of the content if pos lies beyond it.
func (b *MemoryBuffer) SeekTo(pos int64) error {
	if b.closed {
		return errClosed("memory buffer")
	}
	if pos < 0 {
		return errNegativeSeek(pos)
	}
	if pos > b.size {
		pos = b.size
	}
	b.pointer = pos
	return nil
}

func (b *MemoryBuffer) Position() (int64, error) {
	if b.closed {
		return 0, errClosed("memory buffer")
	}
	return b.pointer, nil
}

func (b *MemoryBuffer) Length() (int64, error) {
	if b.closed {
		return 0, errClosed("memory buffer")
	}
	return b.size, nil
}

func (b *MemoryBuffer) Peek() (byte, error) {
	return PeekByte(b)
}

func (b *MemoryBuffer) Rewind(n int) error {
	return RewindBy(b, n)
}

func (b *MemoryBuffer) IsEOF() (bool, error) {
	if b.closed {
		return false, errClosed("memory buffer")
	}
	return b.pointer >= b.size, nil
}

func (b *MemoryBuffer) Available() (int64, error) {
	if b.closed {
		return 0, errClosed("memory buffer")
	}
	return b.size - b.pointer, nil
}

func (b *MemoryBuffer) IsClosed() bool {
	return b.closed
}

// Close releases the chunks. Closing twice is a no-op.
func (b *MemoryBuffer) Close() error {
	b.closed = true
	b.chunks = nil
	b.size = 0
	b.pointer = 0
	return nil
}
