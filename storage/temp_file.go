package storage

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"mit.edu/dsg/pagedio/common"
)

// TempFileFactory creates the uniquely named file a scratch file spills its pages into. The file
// must be new and opened for exclusive read-write access.
type TempFileFactory interface {
	CreateTempFile(dir string) (*os.File, error)
}

// UUIDTempFiles names temp files <Prefix><uuid><Suffix> and creates them with O_EXCL.
type UUIDTempFiles struct {
	Prefix string
	Suffix string
}

// DefaultTempFiles is the factory scratch files use unless told otherwise.
var DefaultTempFiles TempFileFactory = UUIDTempFiles{Prefix: "pagedio-", Suffix: ".tmp"}

// CreateTempFile creates a new file in dir, or in os.TempDir() when dir is empty.
func (u UUIDTempFiles) CreateTempFile(dir string) (*os.File, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	for attempt := 0; attempt < 3; attempt++ {
		path := filepath.Join(dir, u.Prefix+uuid.NewString()+u.Suffix)
		f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0600)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return nil, common.WrapError(common.IOError, err, "create temp file in %s", dir)
		}
		return f, nil
	}
	return nil, common.NewError(common.IOError, "could not find an unused temp file name in %s", dir)
}

// openTempPageFile creates a temp file through factory and wraps it as a page file. If wrapping
// fails the half-created file is closed and deleted.
func openTempPageFile(factory TempFileFactory, dir string) (PageFile, string, error) {
	f, err := factory.CreateTempFile(dir)
	if err != nil {
		return nil, "", err
	}
	path := f.Name()
	pageFile, err := NewDiskPageFile(f)
	if err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return nil, "", err
	}
	return pageFile, path, nil
}

// removeTempFile deletes path. A failure is reported only if the file is still there afterwards.
func removeTempFile(path string) error {
	err := os.Remove(path)
	if err == nil {
		return nil
	}
	if _, statErr := os.Stat(path); errors.Is(statErr, fs.ErrNotExist) {
		return nil
	}
	return common.WrapError(common.IOError, err, "error deleting scratch file %s", path)
}
