// Package memfs provides an in-memory filesystem implementation.
// It backs the simulated machine's storage and is used throughout tests.
package memfs

import (
	"errors"
	"os"
	"strings"
	"sync"
	"time"

	vfs "kernsim/pkg/vfs"
)

// ErrFileNotFound is returned when a file is not found.
var ErrFileNotFound = vfs.ErrNotFound

// ErrFileExists is returned when a file already exists.
var ErrFileExists = errors.New("memfs: file already exists")

// ErrNotDirectory is returned when a path is not a directory.
var ErrNotDirectory = errors.New("memfs: not a directory")

// ErrIsDirectory is returned when an operation requires a non-directory.
var ErrIsDirectory = errors.New("memfs: is a directory")


// ErrNotEmpty is returned when removing a directory that has children.
var ErrNotEmpty = errors.New("memfs: directory not empty")

// memNode represents a node in the filesystem (file or directory).
type memNode struct {
	mu       sync.RWMutex
	data     []byte
	isDir    bool
	children map[string]*memNode
	mode     os.FileMode
	mtime    time.Time
}

// newMemNode creates a new memory node.
func newMemNode(isDir bool, mode os.FileMode) *memNode {
	return &memNode{
		isDir:    isDir,
		children: make(map[string]*memNode),
		mode:     mode,
		mtime:    time.Now(),
	}
}

// FS represents an in-memory filesystem.
type FS struct {
	mu   sync.RWMutex
	root *memNode
}

// New creates a new in-memory filesystem.
func New() *FS {
	return &FS{root: newMemNode(true, 0755)}
}

// nodeFromPath walks the filesystem and returns the node at the given path.
// The caller holds fs.mu.
func (fs *FS) nodeFromPath(path string) (*memNode, error) {
	node := fs.root
	for _, part := range splitPath(path) {
		child, ok := node.children[part]
		if !ok {
			return nil, ErrFileNotFound
		}
		node = child
	}
	return node, nil
}

// OpenFile implements vfs.FileSystem.OpenFile.
func (fs *FS) OpenFile(path string, flags int, perm os.FileMode) (vfs.File, error) {
	if err := vfs.ValidatePath(path); err != nil {
		return nil, err
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	path = vfs.Clean(path)
	writable := (flags & (vfs.O_WRONLY | vfs.O_RDWR)) != 0

	node, err := fs.nodeFromPath(path)
	if err == nil {
		if flags&vfs.O_CREATE != 0 && flags&vfs.O_EXCL != 0 {
			return nil, ErrFileExists
		}
		if node.isDir {
			return nil, ErrIsDirectory
		}
		if flags&vfs.O_TRUNC != 0 && writable {
			node.mu.Lock()
			node.data = nil
			node.mtime = time.Now()
			node.mu.Unlock()
		}
		return newMemFile(path, node, flags), nil
	}

	if flags&vfs.O_CREATE == 0 {
		return nil, ErrFileNotFound
	}

	dirNode, err := fs.nodeFromPath(vfs.Dir(path))
	if err != nil {
		return nil, err
	}
	if !dirNode.isDir {
		return nil, ErrNotDirectory
	}

	node = newMemNode(false, perm&0777)
	dirNode.children[vfs.Base(path)] = node

	return newMemFile(path, node, flags), nil
}

// Stat implements vfs.FileSystem.Stat.
func (fs *FS) Stat(path string) (vfs.FileInfo, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	path = vfs.Clean(path)
	node, err := fs.nodeFromPath(path)
	if err != nil {
		return vfs.FileInfo{}, err
	}

	return nodeToFileInfo(path, node), nil
}

// MkdirAll implements vfs.FileSystem.MkdirAll.
func (fs *FS) MkdirAll(path string, perm os.FileMode) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	current := fs.root
	for _, part := range splitPath(path) {
		child, ok := current.children[part]
		if !ok {
			child = newMemNode(true, perm&0777)
			current.children[part] = child
		}
		if !child.isDir {
			return ErrNotDirectory
		}
		current = child
	}

	return nil
}

// Remove implements vfs.FileSystem.Remove. The node is only unlinked from
// its directory; files opened earlier keep a reference to it.
func (fs *FS) Remove(path string) error {
	if err := vfs.ValidatePath(path); err != nil {
		return err
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	path = vfs.Clean(path)
	parent, err := fs.nodeFromPath(vfs.Dir(path))
	if err != nil {
		return err
	}

	name := vfs.Base(path)
	child, ok := parent.children[name]
	if !ok {
		return ErrFileNotFound
	}

	if child.isDir && len(child.children) > 0 {
		return ErrNotEmpty
	}

	delete(parent.children, name)
	return nil
}

// nodeToFileInfo converts a memNode to a FileInfo.
func nodeToFileInfo(path string, node *memNode) vfs.FileInfo {
	node.mu.RLock()
	defer node.mu.RUnlock()

	return vfs.FileInfo{
		Name:    vfs.Base(path),
		Size:    int64(len(node.data)),
		Mode:    node.mode,
		ModTime: node.mtime,
		IsDir:   node.isDir,
	}
}

// memFile is a file backed by a memNode.
type memFile struct {
	mu       sync.Mutex
	path     string
	node     *memNode
	readable bool
	writable bool
	append   bool
	offset   int64
	closed   bool
}

func newMemFile(path string, node *memNode, flags int) *memFile {
	access := flags & (vfs.O_RDONLY | vfs.O_WRONLY | vfs.O_RDWR)
	return &memFile{
		path:     path,
		node:     node,
		readable: access != vfs.O_WRONLY,
		writable: access == vfs.O_WRONLY || access == vfs.O_RDWR,
		append:   flags&vfs.O_APPEND != 0,
	}
}

func (f *memFile) Read(b []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return 0, vfs.ErrClosedFile
	}
	if !f.readable {
		return 0, vfs.ErrPermissionDenied
	}

	f.node.mu.RLock()
	defer f.node.mu.RUnlock()

	if len(b) == 0 || f.offset >= int64(len(f.node.data)) {
		return 0, nil
	}

	n := copy(b, f.node.data[f.offset:])
	f.offset += int64(n)
	return n, nil
}

func (f *memFile) Write(b []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return 0, vfs.ErrClosedFile
	}
	if !f.writable {
		return 0, vfs.ErrPermissionDenied
	}

	f.node.mu.Lock()
	defer f.node.mu.Unlock()

	if f.append {
		f.offset = int64(len(f.node.data))
	}

	needed := f.offset + int64(len(b))
	if needed > int64(len(f.node.data)) {
		newData := make([]byte, needed)
		copy(newData, f.node.data)
		f.node.data = newData
	}

	n := copy(f.node.data[f.offset:], b)
	f.offset += int64(n)
	f.node.mtime = time.Now()
	return n, nil
}

func (f *memFile) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return vfs.ErrClosedFile
	}
	f.closed = true
	return nil
}

func (f *memFile) Stat() (vfs.FileInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return vfs.FileInfo{}, vfs.ErrClosedFile
	}
	return nodeToFileInfo(f.path, f.node), nil
}

// splitPath splits a path into components.
func splitPath(p string) []string {
	p = vfs.Clean(p)
	if p == "/" {
		return nil
	}
	return strings.Split(p[1:], "/")
}
