// Package diskfs provides a disk-based filesystem implementation.
// It wraps the standard library's os functions to provide a VFS-compatible
// interface rooted at a host directory.
package diskfs

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	vfs "kernsim/pkg/vfs"
)

// FS represents a disk-based filesystem.
type FS struct {
	root string
}

// New creates a new disk-based filesystem rooted at the given directory.
func New(root string) *FS {
	return &FS{root: filepath.Clean(root)}
}

// OpenFile implements vfs.FileSystem.OpenFile.
func (fs *FS) OpenFile(path string, flags int, perm os.FileMode) (vfs.File, error) {
	if err := vfs.ValidatePath(path); err != nil {
		return nil, err
	}

	file, err := os.OpenFile(fs.fullPath(path), flags, perm)
	if err != nil {
		return nil, translate(err)
	}
	return &diskFile{file: file, path: path}, nil
}

// Stat implements vfs.FileSystem.Stat.
func (fs *FS) Stat(path string) (vfs.FileInfo, error) {
	info, err := os.Stat(fs.fullPath(path))
	if err != nil {
		return vfs.FileInfo{}, translate(err)
	}
	return fileInfoFromOS(info), nil
}

// Remove implements vfs.FileSystem.Remove.
func (fs *FS) Remove(path string) error {
	if err := vfs.ValidatePath(path); err != nil {
		return err
	}
	return translate(os.Remove(fs.fullPath(path)))
}

// MkdirAll implements vfs.FileSystem.MkdirAll.
func (fs *FS) MkdirAll(path string, perm os.FileMode) error {
	return translate(os.MkdirAll(fs.fullPath(path), perm))
}

// fullPath converts a VFS path to a path below the root directory.
func (fs *FS) fullPath(path string) string {
	cleanPath := vfs.Clean(path)
	if cleanPath == "/" {
		return fs.root
	}
	return filepath.Join(fs.root, cleanPath[1:])
}

// translate maps host errors onto vfs errors where one exists.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, fs.ErrNotExist):
		return vfs.ErrNotFound
	case errors.Is(err, fs.ErrPermission):
		return vfs.ErrPermissionDenied
	default:
		return err
	}
}

// fileInfoFromOS converts an os.FileInfo to a vfs.FileInfo.
func fileInfoFromOS(info os.FileInfo) vfs.FileInfo {
	return vfs.FileInfo{
		Name:    info.Name(),
		Size:    info.Size(),
		Mode:    info.Mode(),
		ModTime: info.ModTime(),
		IsDir:   info.IsDir(),
	}
}

// diskFile wraps an os.File to implement vfs.File.
type diskFile struct {
	file *os.File
	path string
}

func (f *diskFile) Read(b []byte) (int, error) {
	n, err := f.file.Read(b)
	if errors.Is(err, os.ErrClosed) {
		return n, vfs.ErrClosedFile
	}
	return n, err
}

func (f *diskFile) Write(b []byte) (int, error) {
	n, err := f.file.Write(b)
	if errors.Is(err, os.ErrClosed) {
		return n, vfs.ErrClosedFile
	}
	return n, err
}

func (f *diskFile) Close() error {
	if err := f.file.Close(); errors.Is(err, os.ErrClosed) {
		return vfs.ErrClosedFile
	} else if err != nil {
		return err
	}
	return nil
}

func (f *diskFile) Stat() (vfs.FileInfo, error) {
	info, err := f.file.Stat()
	if err != nil {
		return vfs.FileInfo{}, err
	}
	return fileInfoFromOS(info), nil
}
