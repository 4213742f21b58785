package vfs

import (
	"errors"
	"io"
	"os"
	"time"
)

// Common file errors.
var (
	ErrClosedFile       = errors.New("vfs: file is closed")
	ErrPermissionDenied = errors.New("vfs: permission denied")
	ErrNotFound         = errors.New("vfs: file not found")
)

// FileSystem is the storage interface used by the file registry.
type FileSystem interface {
	// OpenFile opens a file with the specified flags and permissions.
	// flags can be a combination of O_RDONLY, O_WRONLY, O_RDWR, O_CREATE,
	// O_EXCL, O_TRUNC and O_APPEND.
	OpenFile(name string, flags int, perm os.FileMode) (File, error)

	// Remove removes the named file. Files already open stay usable.
	Remove(name string) error

	// Stat returns a FileInfo describing the named file.
	Stat(name string) (FileInfo, error)

	// MkdirAll creates a directory and any missing parents.
	MkdirAll(name string, perm os.FileMode) error
}

// File is an open file. Reads and writes advance a single position.
type File interface {
	io.Reader
	io.Writer

	// Close closes the file, making it unusable for further I/O.
	Close() error

	// Stat returns a FileInfo describing the file.
	Stat() (FileInfo, error)
}

// FileInfo describes a file and is returned by Stat.
type FileInfo struct {
	Name    string      // Base name of the file
	Size    int64       // Length in bytes
	Mode    os.FileMode // File mode bits
	ModTime time.Time   // Modification time
	IsDir   bool        // True if path is a directory
}

// Flags for OpenFile operations, matching os package constants.
const (
	O_RDONLY = os.O_RDONLY // Open file read-only.
	O_WRONLY = os.O_WRONLY // Open file write-only.
	O_RDWR   = os.O_RDWR   // Open file read-write.
	O_CREATE = os.O_CREATE // Create file if it does not exist.
	O_EXCL   = os.O_EXCL   // Used with O_CREATE: file must not exist.
	O_TRUNC  = os.O_TRUNC  // Truncate file to zero length if it exists.
	O_APPEND = os.O_APPEND // Append to the file on each write.
)

// ModeConsole marks character-device files such as the console.
const ModeConsole = os.ModeDevice | os.ModeCharDevice
