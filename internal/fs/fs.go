package fs

import (
	"io"
	"os"
)

// File is the part of *os.File the manifest log touches.
type File interface {
	io.ReadWriteCloser
	io.ReaderAt
	io.Seeker
	Sync() error
	Stat() (os.FileInfo, error)
}

// FileSystem opens log files. The manifest never renames or removes the log,
// so opening is the whole surface.
type FileSystem interface {
	OpenFile(name string, flag int, perm os.FileMode) (File, error)
}

// LocalFS opens files on the local disk.
type LocalFS struct{}

// OpenFile calls os.OpenFile.
func (LocalFS) OpenFile(name string, flag int, perm os.FileMode) (File, error) {
	f, err := os.OpenFile(name, flag, perm)
	if err != nil {
		// Avoid returning a typed nil inside the interface.
		return nil, err
	}
	return f, nil
}

// Default is used whenever a caller passes a nil FileSystem.
var Default FileSystem = LocalFS{}

// Or returns fsys, or Default when fsys is nil.
func Or(fsys FileSystem) FileSystem {
	if fsys == nil {
		return Default
	}
	return fsys
}
