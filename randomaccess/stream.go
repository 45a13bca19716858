package randomaccess

import (
	"io"

	"mit.edu/dsg/pagedio/common"
)

// InputStream reads a shared source front to back with its own cursor, so several streams and
// views can consume the same source without disturbing each other.
type InputStream struct {
	shared *Shared
	pos    int64
}

var (
	_ io.Reader     = (*InputStream)(nil)
	_ io.ByteReader = (*InputStream)(nil)
)

func (s *InputStream) checkOpen() error {
	if s.shared == nil {
		return errClosed("input stream")
	}
	return nil
}

func (s *InputStream) Read(p []byte) (int, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	s.shared.mu.Lock()
	defer s.shared.mu.Unlock()
	if err := s.shared.restore(s.pos); err != nil {
		return 0, err
	}
	n, err := s.shared.src.Read(p)
	s.pos += int64(n)
	return n, err
}

func (s *InputStream) ReadByte() (byte, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	s.shared.mu.Lock()
	defer s.shared.mu.Unlock()
	if err := s.shared.restore(s.pos); err != nil {
		return 0, err
	}
	b, err := s.shared.src.ReadByte()
	if err != nil {
		return 0, err
	}
	s.pos++
	return b, nil
}

// Available returns the number of bytes left before the end of the source.
func (s *InputStream) Available() (int64, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	s.shared.mu.Lock()
	defer s.shared.mu.Unlock()
	n, err := s.shared.src.Length()
	if err != nil {
		return 0, err
	}
	if s.pos >= n {
		return 0, nil
	}
	return n - s.pos, nil
}

// Skip advances the cursor by up to n bytes and returns how far it moved.
func (s *InputStream) Skip(n int64) (int64, error) {
	if n < 0 {
		return 0, common.NewError(common.InvalidArgumentError, "negative skip of %d bytes", n)
	}
	avail, err := s.Available()
	if err != nil {
		return 0, err
	}
	if n > avail {
		n = avail
	}
	s.pos += n
	return n, nil
}

// Close detaches the stream. The source stays open.
func (s *InputStream) Close() error {
	s.shared = nil
	return nil
}

// OutputStream writes into a shared source with its own monotonic cursor.
type OutputStream struct {
	shared *Shared
	pos    int64
}

var (
	_ io.Writer     = (*OutputStream)(nil)
	_ io.ByteWriter = (*OutputStream)(nil)
)

func (s *OutputStream) Write(p []byte) (int, error) {
	if s.shared == nil {
		return 0, errClosed("output stream")
	}
	s.shared.mu.Lock()
	defer s.shared.mu.Unlock()
	if err := s.shared.restore(s.pos); err != nil {
		return 0, err
	}
	n, err := s.shared.src.Write(p)
	s.pos += int64(n)
	return n, err
}

func (s *OutputStream) WriteByte(c byte) error {
	if s.shared == nil {
		return errClosed("output stream")
	}
	s.shared.mu.Lock()
	defer s.shared.mu.Unlock()
	if err := s.shared.restore(s.pos); err != nil {
		return err
	}
	if err := s.shared.src.WriteByte(c); err != nil {
		return err
	}
	s.pos++
	return nil
}

// Close detaches the stream. The source stays open.
func (s *OutputStream) Close() error {
	s.shared = nil
	return nil
}
