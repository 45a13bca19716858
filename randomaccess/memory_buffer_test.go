package randomaccess_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"mit.edu/dsg/pagedio/randomaccess"
	"mit.edu/dsg/pagedio/randomaccess/ratest"
)

func TestMemoryBuffer_Contract(t *testing.T) {
	ratest.RunContract(t, func(t *testing.T) randomaccess.RandomAccess {
		return randomaccess.NewMemoryBuffer()
	})
}

func TestMemoryBuffer_TinyChunksContract(t *testing.T) {
	ratest.RunContract(t, func(t *testing.T) randomaccess.RandomAccess {
		return randomaccess.NewMemoryBufferWithChunkSize(7)
	})
}

func TestMemoryBuffer_SeekPastEndJumpsToEnd(t *testing.T) {
	buf := randomaccess.NewMemoryBufferWithChunkSize(4)
	_, err := buf.Write([]byte("12345678"))
	require.NoError(t, err)

	// Exactly at a chunk boundary that equals the size.
	require.NoError(t, buf.SeekTo(8))
	pos, _ := buf.Position()
	assert.Equal(t, int64(8), pos)

	require.NoError(t, buf.SeekTo(100))
	pos, _ = buf.Position()
	assert.Equal(t, int64(8), pos, "seeking beyond the end lands on the end")
	_, err = buf.ReadByte()
	assert.Error(t, err)

	// Appending continues right after the existing content.
	_, err = buf.Write([]byte("9"))
	require.NoError(t, err)
	all, err := buf.Bytes()
	require.NoError(t, err)
	assert.Equal(t, []byte("123456789"), all)
}

func TestMemoryBuffer_WrapBytesIsZeroCopy(t *testing.T) {
	data := []byte("abcdef")
	buf := randomaccess.WrapBytes(data)
	length, _ := buf.Length()
	assert.Equal(t, int64(6), length)

	require.NoError(t, buf.SeekTo(2))
	require.NoError(t, buf.WriteByte('X'))
	assert.Equal(t, []byte("abXdef"), data, "writes land in the wrapped slice")

	// Growing past the wrapped slice appends a chunk of the same size.
	require.NoError(t, buf.SeekTo(6))
	_, err := buf.Write([]byte("ghij"))
	require.NoError(t, err)
	all, _ := buf.Bytes()
	assert.Equal(t, []byte("abXdefghij"), all)
}

func TestMemoryBuffer_CloneIsIndependent(t *testing.T) {
	buf := randomaccess.NewMemoryBufferWithChunkSize(16)
	payload := ratest.Payload(100, 1)
	_, err := buf.Write(payload)
	require.NoError(t, err)
	require.NoError(t, buf.SeekTo(10))

	clone, err := buf.Clone()
	require.NoError(t, err)
	pos, _ := clone.Position()
	assert.Equal(t, int64(10), pos)

	require.NoError(t, clone.SeekTo(0))
	_, err = clone.Write([]byte("changed"))
	require.NoError(t, err)

	original, _ := buf.Bytes()
	assert.True(t, bytes.Equal(payload, original), "clone writes must not leak into the original")
	require.NoError(t, buf.Close())

	cloned, err := clone.Bytes()
	require.NoError(t, err)
	assert.Equal(t, []byte("changed"), cloned[:7])
}

func TestMemoryBuffer_FromReaderAndTruncate(t *testing.T) {
	payload := ratest.Payload(5000, 2)
	buf, err := randomaccess.NewMemoryBufferFromReader(bytes.NewReader(payload))
	require.NoError(t, err)
	pos, _ := buf.Position()
	assert.Equal(t, int64(0), pos)
	got, _ := buf.Bytes()
	assert.True(t, bytes.Equal(payload, got))

	require.NoError(t, buf.Truncate())
	length, _ := buf.Length()
	assert.Equal(t, int64(0), length)
	eof, _ := buf.IsEOF()
	assert.True(t, eof)

	_, err = buf.Write([]byte("again"))
	require.NoError(t, err)
	got, _ = buf.Bytes()
	assert.Equal(t, []byte("again"), got)
}
