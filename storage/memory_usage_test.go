package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMemoryUsageSetting_Normalization(t *testing.T) {
	tests := []struct {
		name              string
		setting           MemoryUsageSetting
		useMain, useTemp  bool
		maxMain, maxStore int64
	}{
		{"main memory unrestricted", SetupMainMemoryOnly(Unrestricted), true, false, -1, -1},
		{"main memory restricted", SetupMainMemoryOnly(1 << 20), true, false, 1 << 20, 1 << 20},
		{"temp file unrestricted", SetupTempFileOnly(Unrestricted), false, true, -1, -1},
		{"temp file restricted", SetupTempFileOnly(1 << 20), false, true, -1, 1 << 20},
		{"mixed", SetupMixed(1<<20, 1<<22), true, true, 1 << 20, 1 << 22},
		{"mixed storage below memory", SetupMixed(1<<22, 1<<20), true, true, 1 << 22, 1 << 22},
		{"mixed unrestricted memory", SetupMixed(Unrestricted, 1<<20), true, true, -1, -1},
		{"mixed without memory", SetupMixed(0, 1<<20), false, true, 0, 1 << 20},
		{"neither", newMemoryUsageSetting(false, false, 0, 0), true, false, -1, -1},
		{"negative storage", SetupMixed(1<<20, -42), true, true, 1 << 20, -1},
		{"main memory zero", SetupMainMemoryOnly(0), true, false, -1, -1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := tc.setting
			assert.Equal(t, tc.useMain, s.UseMainMemory(), "useMainMemory")
			assert.Equal(t, tc.useTemp, s.UseTempFile(), "useTempFile")
			assert.Equal(t, tc.maxMain, s.MaxMainMemoryBytes(), "maxMainMemoryBytes")
			assert.Equal(t, tc.maxStore, s.MaxStorageBytes(), "maxStorageBytes")
			if s.UseMainMemory() && s.IsStorageRestricted() {
				assert.GreaterOrEqual(t, s.MaxStorageBytes(), s.MaxMainMemoryBytes())
			}
		})
	}
}

func TestMemoryUsageSetting_Partition(t *testing.T) {
	s := SetupMixed(1<<20, 1<<22).WithTempDir("/scratch").Partition(4)
	assert.Equal(t, int64(1<<18), s.MaxMainMemoryBytes())
	assert.Equal(t, int64(1<<20), s.MaxStorageBytes())
	assert.Equal(t, "/scratch", s.TempDir())

	u := SetupMainMemoryOnly(Unrestricted).Partition(8)
	assert.False(t, u.IsMainMemoryRestricted())
	assert.Equal(t, SetupTempFileOnly(100), SetupTempFileOnly(100).Partition(1))
}

func TestMemoryUsageSetting_String(t *testing.T) {
	assert.Equal(t, "Main memory only with no size restriction", SetupMainMemoryOnly(Unrestricted).String())
	assert.Equal(t, "Main memory only with max. of 1.0 MiB", SetupMainMemoryOnly(1<<20).String())
	assert.Equal(t, "Temp file only with no size restriction", SetupTempFileOnly(Unrestricted).String())
	assert.Equal(t, "Temp file only with max. of 64 KiB", SetupTempFileOnly(64<<10).String())
	assert.Equal(t, "Mixed mode with max. of 8.0 KiB main memory and unrestricted file storage",
		SetupMixed(8<<10, Unrestricted).String())
}

func TestScratchFile_PageCountsFromSetting(t *testing.T) {
	mixed := NewScratchFile(SetupMixed(3*4096+100, 10*4096))
	defer mixed.Close()
	assert.Equal(t, 3, mixed.inMemoryMaxPageCount)
	assert.Equal(t, 10, mixed.maxPageCount)
	assert.True(t, mixed.useScratchFile)
	assert.Equal(t, 3, mixed.PageCount())

	unrestricted := NewMainMemoryScratchFile()
	defer unrestricted.Close()
	assert.False(t, unrestricted.useScratchFile)
	assert.False(t, unrestricted.maxMainMemoryIsRestricted)
	assert.Equal(t, initUnrestrictedPageSlots, unrestricted.PageCount())

	fileOnly := NewScratchFile(SetupTempFileOnly(Unrestricted))
	defer fileOnly.Close()
	assert.Equal(t, 0, fileOnly.inMemoryMaxPageCount)
	assert.Equal(t, 0, fileOnly.PageCount())
}
