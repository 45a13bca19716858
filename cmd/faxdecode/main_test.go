package main

import (
	"bytes"
	"encoding/hex"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeebo/blake3"
	"mit.edu/dsg/pagedio/common"
)

func writeInput(t *testing.T, dir string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, "input.g3")
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDecode_WritesPBM(t *testing.T) {
	dir := t.TempDir()
	// Two rows of 16 pixels: 4 white, 8 black, 4 white.
	cmd := &DecodeCmd{
		Input:     writeInput(t, dir, []byte{0xB1, 0x6E, 0xC5, 0xB0}),
		Output:    filepath.Join(dir, "out.pbm"),
		Columns:   16,
		MaxMemory: "64KiB",
		TempDir:   dir,
		Digest:    true,
	}

	var stdout bytes.Buffer
	result, err := cmd.decode(quietLogger(), &stdout)
	require.NoError(t, err)
	assert.Equal(t, 2, result.rows)
	assert.Equal(t, int64(4), result.bytes)

	raster := []byte{0x0F, 0xF0, 0x0F, 0xF0}
	got, err := os.ReadFile(cmd.Output)
	require.NoError(t, err)
	assert.Equal(t, append([]byte("P4\n16 2\n"), raster...), got)

	sum := blake3.Sum256(raster)
	assert.Equal(t, hex.EncodeToString(sum[:]), result.digest)
	assert.Equal(t, result.digest+"  "+cmd.Output+"\n", stdout.String())
}

func TestDecode_SpillsToTempFile(t *testing.T) {
	dir := t.TempDir()
	tempDir := filepath.Join(dir, "scratch")
	require.NoError(t, os.Mkdir(tempDir, 0755))

	// 40 all-white rows of 1728 columns (makeup 1728 + terminating 0), 216 bytes each, so the
	// raster needs three pages with only one allowed in memory.
	row := "010011011" + "00110101"
	bits := strings.Repeat(row, 40)
	data := make([]byte, (len(bits)+7)/8)
	for i := 0; i < len(bits); i++ {
		if bits[i] == '1' {
			data[i/8] |= 0x80 >> (i % 8)
		}
	}

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	cmd := &DecodeCmd{
		Input:     writeInput(t, dir, data),
		Output:    filepath.Join(dir, "out.pbm"),
		Columns:   1728,
		MaxMemory: "4KiB",
		TempDir:   tempDir,
	}
	result, err := cmd.decode(logger, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, 40, result.rows)
	assert.Equal(t, int64(40*216), result.bytes)
	assert.Contains(t, logs.String(), "created scratch file")

	entries, err := os.ReadDir(tempDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "the temp file is deleted when decoding finishes")

	got, err := os.ReadFile(cmd.Output)
	require.NoError(t, err)
	header := "P4\n1728 40\n"
	require.Len(t, got, len(header)+40*216)
	assert.Equal(t, header, string(got[:len(header)]))
	assert.Equal(t, make([]byte, 40*216), got[len(header):])
}

func TestDecode_Errors(t *testing.T) {
	dir := t.TempDir()
	input := writeInput(t, dir, []byte{0x00, 0x80})

	cmd := &DecodeCmd{Input: input, Output: filepath.Join(dir, "out.pbm"), Columns: 8, MaxMemory: "lots"}
	_, err := cmd.decode(quietLogger(), io.Discard)
	assert.ErrorContains(t, err, "--max-memory")

	cmd.MaxMemory = "1MiB"
	_, err = cmd.decode(quietLogger(), io.Discard)
	require.Error(t, err)
	assert.True(t, common.IsCode(err, common.CorruptDataError), "got %v", err)
	_, statErr := os.Stat(cmd.Output)
	assert.True(t, os.IsNotExist(statErr), "no output for undecodable input")

	cmd.Input = filepath.Join(dir, "missing.g3")
	_, err = cmd.decode(quietLogger(), io.Discard)
	assert.True(t, common.IsCode(err, common.IOError), "got %v", err)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger("warn", "json", &buf)
	logger.Info("hidden")
	logger.Warn("shown", "pool", "p1")
	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)
	assert.Contains(t, out, `"pool":"p1"`)
}
