package randomaccess_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"mit.edu/dsg/pagedio/common"
	"mit.edu/dsg/pagedio/randomaccess"
	"mit.edu/dsg/pagedio/randomaccess/ratest"
)

func TestFile_Contract(t *testing.T) {
	ratest.RunContract(t, func(t *testing.T) randomaccess.RandomAccess {
		f, err := randomaccess.OpenFileReadWrite(filepath.Join(t.TempDir(), "contract.dat"))
		require.NoError(t, err)
		t.Cleanup(func() { _ = f.Close() })
		return f
	})
}

func TestFile_ReadExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "existing.dat")
	payload := ratest.Payload(9000, 3)
	require.NoError(t, os.WriteFile(path, payload, 0666))

	f, err := randomaccess.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	length, err := f.Length()
	require.NoError(t, err)
	assert.Equal(t, int64(9000), length)

	require.NoError(t, f.SeekTo(8000))
	got := make([]byte, 1000)
	require.NoError(t, randomaccess.ReadFully(f, got))
	assert.True(t, bytes.Equal(payload[8000:], got))

	_, err = f.Write([]byte("nope"))
	require.Error(t, err)
	assert.True(t, common.IsCode(err, common.ProtocolError), "read-only file must reject writes")
}

func TestFile_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "persist.dat")
	{
		f, err := randomaccess.OpenFileReadWrite(path)
		require.NoError(t, err)
		_, err = f.Write([]byte("Persistent Data"))
		require.NoError(t, err)
		require.NoError(t, f.Sync())
		require.NoError(t, f.Close())
	}
	{
		f, err := randomaccess.OpenFile(path)
		require.NoError(t, err)
		defer f.Close()
		got := make([]byte, 15)
		require.NoError(t, randomaccess.ReadFully(f, got))
		assert.Equal(t, "Persistent Data", string(got))
	}
}

func TestFile_OpenMissing(t *testing.T) {
	_, err := randomaccess.OpenFile(filepath.Join(t.TempDir(), "missing.dat"))
	require.Error(t, err)
	assert.True(t, common.IsCode(err, common.IOError))
}
