package randomaccess

import (
	"sync"

	"mit.edu/dsg/pagedio/common"
)

// Shared guards a RandomAccess whose single cursor is used by several views, wrappers or streams.
//
// None of those adapters own a cursor on the source. Each of them keeps a private position and,
// holding the Shared lock, restores the source to it before every read, write or seek. Code that
// also uses the source directly must go through Do.
type Shared struct {
	mu  sync.Mutex
	src RandomAccess
}

// Share wraps src so it can back several independent cursors.
func Share(src RandomAccess) *Shared {
	common.Assert(src != nil, "cannot share a nil source")
	return &Shared{src: src}
}

// Do runs fn against the source while holding the lock.
func (s *Shared) Do(fn func(src RandomAccess) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.src)
}

// View returns a read-only window over [start, start+length) of the source.
func (s *Shared) View(start, length int64) (*View, error) {
	if start < 0 || length < 0 {
		return nil, common.NewError(common.InvalidArgumentError, "invalid view [%d, +%d)", start, length)
	}
	if _, ok := common.CheckedAdd(start, length); !ok {
		return nil, common.NewError(common.InvalidArgumentError, "view [%d, +%d) overflows", start, length)
	}
	return &View{shared: s, start: start, length: length}, nil
}

// Wrap returns a read-write adapter exposing the source from start onwards.
func (s *Shared) Wrap(start int64) (*Wrapper, error) {
	if start < 0 {
		return nil, common.NewError(common.InvalidArgumentError, "invalid wrapper start %d", start)
	}
	return &Wrapper{shared: s, start: start}, nil
}

// NewInputStream returns a reader over the source starting at pos.
func (s *Shared) NewInputStream(pos int64) *InputStream {
	return &InputStream{shared: s, pos: pos}
}

// NewOutputStream returns a writer into the source starting at pos.
func (s *Shared) NewOutputStream(pos int64) *OutputStream {
	return &OutputStream{shared: s, pos: pos}
}

// Close closes the source itself. Adapters created from s fail afterwards.
func (s *Shared) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.src.Close()
}

// restore positions the source at pos. The caller holds s.mu.
func (s *Shared) restore(pos int64) error {
	return s.src.SeekTo(pos)
}

func (s *Shared) isSourceClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.src.IsClosed()
}
