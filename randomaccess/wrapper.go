package randomaccess

// Wrapper exposes the suffix of a shared source that begins at a fixed start offset. Positions are
// reported relative to start; unlike View there is no right boundary, and writes go through to
// the source. Closing the wrapper leaves the source open.
type Wrapper struct {
	shared   *Shared
	start    int64
	position int64
}

var _ RandomAccess = (*Wrapper)(nil)

func (w *Wrapper) checkOpen() error {
	if w.shared == nil || w.shared.isSourceClosed() {
		return errClosed("wrapper")
	}
	return nil
}

// lockAndRestore takes the source lock and positions the source. On success the caller must
// unlock.
func (w *Wrapper) lockAndRestore() error {
	w.shared.mu.Lock()
	if err := w.shared.restore(w.start + w.position); err != nil {
		w.shared.mu.Unlock()
		return err
	}
	return nil
}

func (w *Wrapper) Read(p []byte) (int, error) {
	if err := w.checkOpen(); err != nil {
		return 0, err
	}
	if len(p) == 0 {
		return 0, nil
	}
	if err := w.lockAndRestore(); err != nil {
		return 0, err
	}
	defer w.shared.mu.Unlock()
	n, err := w.shared.src.Read(p)
	w.position += int64(n)
	return n, err
}

func (w *Wrapper) ReadByte() (byte, error) {
	if err := w.checkOpen(); err != nil {
		return 0, err
	}
	if err := w.lockAndRestore(); err != nil {
		return 0, err
	}
	defer w.shared.mu.Unlock()
	b, err := w.shared.src.ReadByte()
	if err != nil {
		return 0, err
	}
	w.position++
	return b, nil
}

func (w *Wrapper) Write(p []byte) (int, error) {
	if err := w.checkOpen(); err != nil {
		return 0, err
	}
	if err := w.lockAndRestore(); err != nil {
		return 0, err
	}
	defer w.shared.mu.Unlock()
	n, err := w.shared.src.Write(p)
	w.position += int64(n)
	return n, err
}

func (w *Wrapper) WriteByte(c byte) error {
	if err := w.checkOpen(); err != nil {
		return err
	}
	if err := w.lockAndRestore(); err != nil {
		return err
	}
	defer w.shared.mu.Unlock()
	if err := w.shared.src.WriteByte(c); err != nil {
		return err
	}
	w.position++
	return nil
}

// SeekTo positions the wrapper. The source decides what a position past its end means; the
// wrapper adopts whatever position the source ends up at.
func (w *Wrapper) SeekTo(pos int64) error {
	if err := w.checkOpen(); err != nil {
		return err
	}
	if pos < 0 {
		return errNegativeSeek(pos)
	}
	w.shared.mu.Lock()
	defer w.shared.mu.Unlock()
	if err := w.shared.src.SeekTo(w.start + pos); err != nil {
		return err
	}
	actual, err := w.shared.src.Position()
	if err != nil {
		return err
	}
	if actual < w.start {
		actual = w.start
	}
	w.position = actual - w.start
	return nil
}

func (w *Wrapper) Position() (int64, error) {
	if err := w.checkOpen(); err != nil {
		return 0, err
	}
	return w.position, nil
}

// Length returns the source length minus the start offset, or 0 if the source is shorter.
func (w *Wrapper) Length() (int64, error) {
	if err := w.checkOpen(); err != nil {
		return 0, err
	}
	w.shared.mu.Lock()
	defer w.shared.mu.Unlock()
	n, err := w.shared.src.Length()
	if err != nil {
		return 0, err
	}
	if n < w.start {
		return 0, nil
	}
	return n - w.start, nil
}

func (w *Wrapper) Peek() (byte, error) {
	b, err := w.ReadByte()
	if err != nil {
		return 0, err
	}
	// The next operation restores the source anyway, so only the private position moves back.
	w.position--
	return b, nil
}

func (w *Wrapper) Rewind(n int) error {
	return RewindBy(w, n)
}

func (w *Wrapper) IsEOF() (bool, error) {
	n, err := w.Length()
	if err != nil {
		return false, err
	}
	return w.position >= n, nil
}

func (w *Wrapper) Available() (int64, error) {
	n, err := w.Length()
	if err != nil {
		return 0, err
	}
	if w.position >= n {
		return 0, nil
	}
	return n - w.position, nil
}

func (w *Wrapper) IsClosed() bool {
	return w.shared == nil || w.shared.isSourceClosed()
}

// Close drops the reference to the source without closing it.
func (w *Wrapper) Close() error {
	w.shared = nil
	return nil
}
