package storage

import (
	"fmt"

	"github.com/dustin/go-humanize"
)

// Unrestricted is the byte limit meaning "no limit".
const Unrestricted int64 = -1

// MemoryUsageSetting describes how much main memory and how much temp-file storage a scratch file
// may use. It is an immutable value; the With/Partition methods return modified copies.
//
// Construction normalises the inputs: if neither main memory nor a temp file is requested, main
// memory is used without limit; the storage limit is raised to the main-memory limit when it is
// smaller, since memory counts towards total storage.
type MemoryUsageSetting struct {
	useMainMemory      bool
	useTempFile        bool
	maxMainMemoryBytes int64
	maxStorageBytes    int64
	tempDir            string
}

func newMemoryUsageSetting(useMainMemory, useTempFile bool, maxMainMemoryBytes, maxStorageBytes int64) MemoryUsageSetting {
	locUseMainMemory := useMainMemory || !useTempFile
	locMaxMainMemoryBytes := Unrestricted
	if useMainMemory {
		locMaxMainMemoryBytes = maxMainMemoryBytes
	}
	locMaxStorageBytes := Unrestricted
	if maxStorageBytes > 0 {
		locMaxStorageBytes = maxStorageBytes
	}
	if locMaxMainMemoryBytes < Unrestricted {
		locMaxMainMemoryBytes = Unrestricted
	}

	if locUseMainMemory && locMaxMainMemoryBytes == 0 {
		if useTempFile {
			locUseMainMemory = false
		} else {
			locMaxMainMemoryBytes = locMaxStorageBytes
		}
	}
	if locUseMainMemory && locMaxStorageBytes > Unrestricted &&
		(locMaxMainMemoryBytes == Unrestricted || locMaxMainMemoryBytes > locMaxStorageBytes) {
		locMaxStorageBytes = locMaxMainMemoryBytes
	}

	return MemoryUsageSetting{
		useMainMemory:      locUseMainMemory,
		useTempFile:        useTempFile,
		maxMainMemoryBytes: locMaxMainMemoryBytes,
		maxStorageBytes:    locMaxStorageBytes,
	}
}

// SetupMainMemoryOnly keeps every page in memory, up to maxMainMemoryBytes (or Unrestricted).
func SetupMainMemoryOnly(maxMainMemoryBytes int64) MemoryUsageSetting {
	return newMemoryUsageSetting(true, false, maxMainMemoryBytes, maxMainMemoryBytes)
}

// SetupTempFileOnly keeps every page in a temp file, up to maxStorageBytes (or Unrestricted).
func SetupTempFileOnly(maxStorageBytes int64) MemoryUsageSetting {
	return newMemoryUsageSetting(false, true, 0, maxStorageBytes)
}

// SetupMixed keeps the first maxMainMemoryBytes worth of pages in memory and the rest in a temp
// file, up to maxStorageBytes in total (or Unrestricted).
func SetupMixed(maxMainMemoryBytes, maxStorageBytes int64) MemoryUsageSetting {
	return newMemoryUsageSetting(true, true, maxMainMemoryBytes, maxStorageBytes)
}

// WithTempDir returns a copy that creates temp files in dir instead of the system default.
func (s MemoryUsageSetting) WithTempDir(dir string) MemoryUsageSetting {
	s.tempDir = dir
	return s
}

// Partition returns a copy whose limits are divided between n parallel users.
func (s MemoryUsageSetting) Partition(n int) MemoryUsageSetting {
	if n <= 1 {
		return s
	}
	maxMain := s.maxMainMemoryBytes
	if maxMain > 0 {
		maxMain /= int64(n)
	}
	maxStorage := s.maxStorageBytes
	if maxStorage > 0 {
		maxStorage /= int64(n)
	}
	copied := newMemoryUsageSetting(s.useMainMemory, s.useTempFile, maxMain, maxStorage)
	copied.tempDir = s.tempDir
	return copied
}

func (s MemoryUsageSetting) UseMainMemory() bool { return s.useMainMemory }

func (s MemoryUsageSetting) UseTempFile() bool { return s.useTempFile }

func (s MemoryUsageSetting) IsMainMemoryRestricted() bool { return s.maxMainMemoryBytes >= 0 }

func (s MemoryUsageSetting) IsStorageRestricted() bool { return s.maxStorageBytes > 0 }

func (s MemoryUsageSetting) MaxMainMemoryBytes() int64 { return s.maxMainMemoryBytes }

func (s MemoryUsageSetting) MaxStorageBytes() int64 { return s.maxStorageBytes }

// TempDir returns the temp-file directory; empty means the system default.
func (s MemoryUsageSetting) TempDir() string { return s.tempDir }

func (s MemoryUsageSetting) String() string {
	switch {
	case s.useMainMemory && s.useTempFile:
		storage := "unrestricted file storage"
		if s.IsStorageRestricted() {
			storage = fmt.Sprintf("max. of %s storage", humanize.IBytes(uint64(s.maxStorageBytes)))
		}
		memory := "unrestricted main memory"
		if s.IsMainMemoryRestricted() {
			memory = fmt.Sprintf("max. of %s main memory", humanize.IBytes(uint64(s.maxMainMemoryBytes)))
		}
		return fmt.Sprintf("Mixed mode with %s and %s", memory, storage)
	case s.useMainMemory && s.IsMainMemoryRestricted():
		return fmt.Sprintf("Main memory only with max. of %s", humanize.IBytes(uint64(s.maxMainMemoryBytes)))
	case s.useMainMemory:
		return "Main memory only with no size restriction"
	case s.IsStorageRestricted():
		return fmt.Sprintf("Temp file only with max. of %s", humanize.IBytes(uint64(s.maxStorageBytes)))
	default:
		return "Temp file only with no size restriction"
	}
}
