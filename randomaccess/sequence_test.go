package randomaccess_test

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"mit.edu/dsg/pagedio/common"
	"mit.edu/dsg/pagedio/randomaccess"
)

func newSequence(t *testing.T, parts ...string) *randomaccess.Sequence {
	sources := make([]randomaccess.RandomAccess, len(parts))
	for i, p := range parts {
		sources[i] = randomaccess.WrapBytes([]byte(p))
	}
	seq, err := randomaccess.NewSequence(sources...)
	require.NoError(t, err)
	return seq
}

func TestSequence_SkipsEmptySources(t *testing.T) {
	seq := newSequence(t, "abcde", "", "fghijkl")
	defer seq.Close()

	length, err := seq.Length()
	require.NoError(t, err)
	assert.Equal(t, int64(12), length)

	require.NoError(t, seq.SeekTo(5))
	b, err := seq.ReadByte()
	require.NoError(t, err)
	assert.Equal(t, byte('f'), b, "the empty middle source is skipped")
}

func TestSequence_ReadsAcrossBoundaries(t *testing.T) {
	seq := newSequence(t, "ab", "", "", "cde", "f")
	defer seq.Close()

	buf := make([]byte, 4)
	n, err := seq.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "abcd", string(buf[:n]), "no short read at a source boundary")

	n, err = seq.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "ef", string(buf[:n]))

	n, err = seq.Read(buf)
	assert.Equal(t, 0, n)
	assert.ErrorIs(t, err, io.EOF)

	require.NoError(t, seq.SeekTo(0))
	all, err := io.ReadAll(seq)
	require.NoError(t, err)
	assert.Equal(t, "abcdef", string(all))
}

func TestSequence_SeekAndPeek(t *testing.T) {
	seq := newSequence(t, "0123", "4567", "89")
	defer seq.Close()

	for pos, want := range "0123456789" {
		require.NoError(t, seq.SeekTo(int64(pos)))
		b, err := seq.Peek()
		require.NoError(t, err)
		assert.Equal(t, byte(want), b, "peek at %d", pos)
		p, _ := seq.Position()
		assert.Equal(t, int64(pos), p)
	}

	// Seeking to or beyond the end parks the cursor at the end of the last source.
	require.NoError(t, seq.SeekTo(50))
	pos, _ := seq.Position()
	assert.Equal(t, int64(10), pos)
	eof, _ := seq.IsEOF()
	assert.True(t, eof)

	require.NoError(t, seq.Rewind(3))
	b, err := seq.ReadByte()
	require.NoError(t, err)
	assert.Equal(t, byte('7'), b)
	avail, _ := seq.Available()
	assert.Equal(t, int64(2), avail)

	assert.True(t, common.IsCode(seq.SeekTo(-1), common.InvalidArgumentError))
	_, err = seq.Write([]byte("x"))
	assert.True(t, common.IsCode(err, common.ProtocolError))
}

func TestSequence_CloseClosesSources(t *testing.T) {
	a := randomaccess.WrapBytes([]byte("a"))
	b := randomaccess.NewMemoryBuffer()
	seq, err := randomaccess.NewSequence(a, b)
	require.NoError(t, err)

	require.NoError(t, seq.Close())
	assert.True(t, a.IsClosed())
	assert.True(t, b.IsClosed())
	assert.NoError(t, seq.Close())
	_, err = seq.ReadByte()
	assert.True(t, common.IsCode(err, common.ClosedError))

	_, err = randomaccess.NewSequence()
	assert.True(t, common.IsCode(err, common.InvalidArgumentError))
}

func TestSequence_AllEmpty(t *testing.T) {
	seq := newSequence(t, "", "")
	defer seq.Close()
	_, err := seq.ReadByte()
	assert.ErrorIs(t, err, io.EOF)
	n, err := seq.Read(make([]byte, 3))
	assert.Equal(t, 0, n)
	assert.ErrorIs(t, err, io.EOF)
}
