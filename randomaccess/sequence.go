package randomaccess

import (
	"errors"
	"io"

	"github.com/tidwall/btree"
	"mit.edu/dsg/pagedio/common"
)

// Sequence is a read-only concatenation of several sources. Source lengths are captured when the
// sequence is built; the sources must not change size afterwards. Sequence owns its sources and
// closes them on Close.
type Sequence struct {
	sources []RandomAccess
	starts  []int64
	lengths []int64
	// byStart maps the start offset of every non-empty source to its index. Empty sources share
	// their start with the next source and never own a position, so they are left out.
	byStart  *btree.Map[int64, int]
	total    int64
	current  int
	position int64
	closed   bool
}

var _ RandomAccess = (*Sequence)(nil)

// NewSequence concatenates sources in order. At least one source is required.
func NewSequence(sources ...RandomAccess) (*Sequence, error) {
	if len(sources) == 0 {
		return nil, common.NewError(common.InvalidArgumentError, "sequence needs at least one source")
	}
	s := &Sequence{
		sources: sources,
		starts:  make([]int64, len(sources)),
		lengths: make([]int64, len(sources)),
		byStart: new(btree.Map[int64, int]),
	}
	for i, src := range sources {
		n, err := src.Length()
		if err != nil {
			return nil, err
		}
		total, ok := common.CheckedAdd(s.total, n)
		if !ok {
			return nil, common.NewError(common.CapacityExceededError, "sequence length overflows")
		}
		s.starts[i] = s.total
		s.lengths[i] = n
		if n > 0 {
			s.byStart.Set(s.total, i)
		}
		s.total = total
	}
	if err := s.SeekTo(0); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Sequence) last() int {
	return len(s.sources) - 1
}

// currentSource returns the source holding the next byte, moving past exhausted and empty
// sources.
func (s *Sequence) currentSource() (RandomAccess, error) {
	for s.current < s.last() {
		eof, err := s.sources[s.current].IsEOF()
		if err != nil {
			return nil, err
		}
		if !eof {
			break
		}
		s.current++
		if err := s.sources[s.current].SeekTo(0); err != nil {
			return nil, err
		}
	}
	return s.sources[s.current], nil
}

func (s *Sequence) Read(p []byte) (int, error) {
	if s.closed {
		return 0, errClosed("sequence")
	}
	if len(p) == 0 {
		return 0, nil
	}
	if s.position >= s.total {
		return 0, io.EOF
	}
	want := int64(len(p))
	if rest := s.total - s.position; want > rest {
		want = rest
	}

	read := 0
	for int64(read) < want {
		src, err := s.currentSource()
		if err != nil {
			return read, err
		}
		n, err := src.Read(p[read:want])
		read += n
		s.position += int64(n)
		if err != nil && !errors.Is(err, io.EOF) {
			return read, err
		}
		if n == 0 && s.current == s.last() {
			break
		}
	}
	if read == 0 {
		return 0, io.EOF
	}
	return read, nil
}

func (s *Sequence) ReadByte() (byte, error) {
	if s.closed {
		return 0, errClosed("sequence")
	}
	if s.position >= s.total {
		return 0, io.EOF
	}
	src, err := s.currentSource()
	if err != nil {
		return 0, err
	}
	b, err := src.ReadByte()
	if err != nil {
		return 0, err
	}
	s.position++
	return b, nil
}

func (s *Sequence) Write([]byte) (int, error) {
	if s.closed {
		return 0, errClosed("sequence")
	}
	return 0, errReadOnly("sequence")
}

func (s *Sequence) WriteByte(byte) error {
	if s.closed {
		return errClosed("sequence")
	}
	return errReadOnly("sequence")
}

// SeekTo positions the sequence. Positions at or past the end leave the cursor at the end of the
// last source.
func (s *Sequence) SeekTo(pos int64) error {
	if s.closed {
		return errClosed("sequence")
	}
	if pos < 0 {
		return errNegativeSeek(pos)
	}
	if pos >= s.total {
		s.current = s.last()
		s.position = s.total
		return s.sources[s.current].SeekTo(s.lengths[s.current])
	}

	idx := -1
	s.byStart.Descend(pos, func(_ int64, i int) bool {
		idx = i
		return false
	})
	common.Assert(idx >= 0, "no source owns position %d", pos)
	s.current = idx
	s.position = pos
	return s.sources[idx].SeekTo(pos - s.starts[idx])
}

func (s *Sequence) Position() (int64, error) {
	if s.closed {
		return 0, errClosed("sequence")
	}
	return s.position, nil
}

func (s *Sequence) Length() (int64, error) {
	if s.closed {
		return 0, errClosed("sequence")
	}
	return s.total, nil
}

func (s *Sequence) Peek() (byte, error) {
	return PeekByte(s)
}

func (s *Sequence) Rewind(n int) error {
	return RewindBy(s, n)
}

func (s *Sequence) IsEOF() (bool, error) {
	if s.closed {
		return false, errClosed("sequence")
	}
	return s.position >= s.total, nil
}

func (s *Sequence) Available() (int64, error) {
	if s.closed {
		return 0, errClosed("sequence")
	}
	return s.total - s.position, nil
}

func (s *Sequence) IsClosed() bool {
	return s.closed
}

// Close closes every source and reports the failures together. Closing twice is a no-op.
func (s *Sequence) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	var errs []error
	for _, src := range s.sources {
		if err := src.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.sources = nil
	s.byStart = nil
	return errors.Join(errs...)
}
