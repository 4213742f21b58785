// Package console exposes the machine console as a pair of files, one for
// reading and one for writing, that every process starts with.
package console

import (
	"io"
	"sync"
	"time"

	vfs "kernsim/pkg/vfs"
)

// File names of the console ends. They are file registry keys only and
// never reach the filesystem.
const (
	ReaderName = "console:in"
	WriterName = "console:out"
)

// Console is the machine console.
type Console struct {
	mu  sync.Mutex
	in  io.Reader
	out io.Writer
}

// New creates a console reading from in and writing to out.
func New(in io.Reader, out io.Writer) *Console {
	return &Console{in: in, out: out}
}

// OpenForReading returns a read-only file for console input.
func (c *Console) OpenForReading() vfs.File {
	return &consoleFile{console: c, name: ReaderName, readable: true}
}

// OpenForWriting returns a write-only file for console output.
func (c *Console) OpenForWriting() vfs.File {
	return &consoleFile{console: c, name: WriterName}
}

type consoleFile struct {
	console  *Console
	name     string
	readable bool
	closed   bool
}

func (f *consoleFile) Read(b []byte) (int, error) {
	if f.closed {
		return 0, vfs.ErrClosedFile
	}
	if !f.readable {
		return 0, vfs.ErrPermissionDenied
	}

	f.console.mu.Lock()
	defer f.console.mu.Unlock()

	if f.console.in == nil {
		return 0, nil
	}
	n, err := f.console.in.Read(b)
	if err == io.EOF {
		// End of input reads as zero bytes
		return n, nil
	}
	return n, err
}

func (f *consoleFile) Write(b []byte) (int, error) {
	if f.closed {
		return 0, vfs.ErrClosedFile
	}
	if f.readable {
		return 0, vfs.ErrPermissionDenied
	}

	f.console.mu.Lock()
	defer f.console.mu.Unlock()

	if f.console.out == nil {
		return len(b), nil
	}
	return f.console.out.Write(b)
}

func (f *consoleFile) Close() error {
	if f.closed {
		return vfs.ErrClosedFile
	}
	f.closed = true
	return nil
}

func (f *consoleFile) Stat() (vfs.FileInfo, error) {
	return vfs.FileInfo{Name: f.name, Mode: vfs.ModeConsole | 0600, ModTime: time.Now()}, nil
}
