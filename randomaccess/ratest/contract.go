// Package ratest holds the behavioural checks every read-write randomaccess.RandomAccess
// implementation must pass. Storage packages call RunContract from their own tests.
package ratest

import (
	"bytes"
	"io"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"mit.edu/dsg/pagedio/common"
	"mit.edu/dsg/pagedio/randomaccess"
)

// Factory creates a fresh, empty, writable RandomAccess. Cleanup is the test's business.
type Factory func(t *testing.T) randomaccess.RandomAccess

// RunContract runs the shared checks as subtests of t.
func RunContract(t *testing.T, factory Factory) {
	t.Run("RoundTrip", func(t *testing.T) { testRoundTrip(t, factory) })
	t.Run("EOFConvention", func(t *testing.T) { testEOFConvention(t, factory) })
	t.Run("Peek", func(t *testing.T) { testPeek(t, factory) })
	t.Run("NegativeSeek", func(t *testing.T) { testNegativeSeek(t, factory) })
	t.Run("Closed", func(t *testing.T) { testClosed(t, factory) })
	t.Run("Randomized", func(t *testing.T) { testRandomized(t, factory, 7411) })
}

// Payload returns n deterministic pseudo-random bytes.
func Payload(n int, seed int64) []byte {
	r := rand.New(rand.NewSource(seed))
	data := make([]byte, n)
	r.Read(data)
	return data
}

func testRoundTrip(t *testing.T, factory Factory) {
	for _, size := range []int{0, 1, 1023, 1024, 1025, 4096, 4097, 10000, 3*4096 + 17} {
		ra := factory(t)
		data := Payload(size, int64(size))
		n, err := ra.Write(data)
		require.NoError(t, err)
		require.Equal(t, size, n)

		length, err := ra.Length()
		require.NoError(t, err)
		assert.Equal(t, int64(size), length, "length after writing %d bytes", size)

		require.NoError(t, ra.SeekTo(0))
		got := make([]byte, size)
		if size > 0 {
			require.NoError(t, randomaccess.ReadFully(ra, got))
		}
		assert.True(t, bytes.Equal(data, got), "round trip mismatch for %d bytes", size)
		eof, err := ra.IsEOF()
		require.NoError(t, err)
		assert.True(t, eof)
		require.NoError(t, ra.Close())
	}
}

func testEOFConvention(t *testing.T, factory Factory) {
	ra := factory(t)
	defer ra.Close()

	_, err := ra.Write([]byte("hello"))
	require.NoError(t, err)

	// Already at the end: nothing can be produced.
	buf := make([]byte, 8)
	n, err := ra.Read(buf)
	assert.Equal(t, 0, n)
	assert.ErrorIs(t, err, io.EOF)
	n, err = ra.Read(nil)
	assert.Equal(t, 0, n)
	assert.NoError(t, err, "an empty read is not an end of data")
	_, err = ra.ReadByte()
	assert.ErrorIs(t, err, io.EOF)

	// Crossing the end: the partial count comes back without an error.
	require.NoError(t, ra.SeekTo(2))
	n, err = ra.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []byte("llo"), buf[:n])

	avail, err := ra.Available()
	require.NoError(t, err)
	assert.Equal(t, int64(0), avail)
}

func testPeek(t *testing.T, factory Factory) {
	ra := factory(t)
	defer ra.Close()

	_, err := ra.Write([]byte{7, 8, 9})
	require.NoError(t, err)
	require.NoError(t, ra.SeekTo(1))

	b, err := ra.Peek()
	require.NoError(t, err)
	assert.Equal(t, byte(8), b)
	pos, err := ra.Position()
	require.NoError(t, err)
	assert.Equal(t, int64(1), pos, "peek must not advance")

	b2, err := ra.ReadByte()
	require.NoError(t, err)
	assert.Equal(t, b, b2)

	require.NoError(t, ra.SeekTo(3))
	_, err = ra.Peek()
	assert.ErrorIs(t, err, io.EOF)
	pos, err = ra.Position()
	require.NoError(t, err)
	assert.Equal(t, int64(3), pos, "peek at the end is a no-op")

	require.NoError(t, ra.Rewind(2))
	pos, err = ra.Position()
	require.NoError(t, err)
	assert.Equal(t, int64(1), pos)
	assert.Error(t, ra.Rewind(5))
}

func testNegativeSeek(t *testing.T, factory Factory) {
	ra := factory(t)
	defer ra.Close()
	err := ra.SeekTo(-1)
	require.Error(t, err)
	assert.True(t, common.IsCode(err, common.InvalidArgumentError), "got %v", err)
}

func testClosed(t *testing.T, factory Factory) {
	ra := factory(t)
	_, err := ra.Write([]byte("abc"))
	require.NoError(t, err)
	require.NoError(t, ra.Close())
	assert.True(t, ra.IsClosed())

	checkClosed := func(err error) {
		t.Helper()
		require.Error(t, err)
		assert.True(t, common.IsCode(err, common.ClosedError), "got %v", err)
	}
	_, err = ra.Read(make([]byte, 1))
	checkClosed(err)
	_, err = ra.ReadByte()
	checkClosed(err)
	_, err = ra.Write([]byte("x"))
	checkClosed(err)
	checkClosed(ra.WriteByte('x'))
	checkClosed(ra.SeekTo(0))
	_, err = ra.Position()
	checkClosed(err)
	_, err = ra.Length()
	checkClosed(err)
	_, err = ra.IsEOF()
	checkClosed(err)
	_, err = ra.Available()
	checkClosed(err)

	assert.NoError(t, ra.Close(), "double close is a no-op")
}

// testRandomized drives the implementation and a plain []byte model with the same operations and
// checks that they agree, including 0 <= position <= length and IsEOF == (position >= length).
func testRandomized(t *testing.T, factory Factory, seed int64) {
	r := rand.New(rand.NewSource(seed))
	ra := factory(t)
	defer ra.Close()

	var model []byte
	var pos int64

	for i := 0; i < 2000; i++ {
		switch r.Intn(5) {
		case 0, 1:
			data := Payload(r.Intn(6000)+1, r.Int63())
			n, err := ra.Write(data)
			require.NoError(t, err, "iter %d", i)
			require.Equal(t, len(data), n)
			end := pos + int64(len(data))
			if end > int64(len(model)) {
				model = append(model, make([]byte, end-int64(len(model)))...)
			}
			copy(model[pos:], data)
			pos = end
		case 2:
			target := int64(0)
			if len(model) > 0 {
				target = r.Int63n(int64(len(model)) + 1)
			}
			require.NoError(t, ra.SeekTo(target), "iter %d", i)
			pos = target
		case 3:
			buf := make([]byte, r.Intn(9000)+1)
			n, err := ra.Read(buf)
			if pos >= int64(len(model)) {
				assert.ErrorIs(t, err, io.EOF, "iter %d", i)
				assert.Equal(t, 0, n)
				break
			}
			require.NoError(t, err, "iter %d", i)
			expected := model[pos:]
			if len(expected) > len(buf) {
				expected = expected[:len(buf)]
			}
			require.Equal(t, len(expected), n, "iter %d", i)
			require.True(t, bytes.Equal(expected, buf[:n]), "content mismatch at iter %d", i)
			pos += int64(n)
		case 4:
			b, err := ra.Peek()
			if pos >= int64(len(model)) {
				assert.ErrorIs(t, err, io.EOF)
			} else {
				require.NoError(t, err)
				assert.Equal(t, model[pos], b, "iter %d", i)
			}
		}

		actualPos, err := ra.Position()
		require.NoError(t, err)
		length, err := ra.Length()
		require.NoError(t, err)
		eof, err := ra.IsEOF()
		require.NoError(t, err)
		require.Equal(t, pos, actualPos, "position mismatch at iter %d", i)
		require.Equal(t, int64(len(model)), length, "length mismatch at iter %d", i)
		require.True(t, actualPos >= 0 && actualPos <= length)
		require.Equal(t, actualPos >= length, eof)
	}
}
