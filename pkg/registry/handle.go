package registry

import (
	"sync"

	vfs "kernsim/pkg/vfs"
)

// Handle is the shared state of one open file.
type Handle struct {
	reg    *Registry
	name   string
	device bool

	// guarded by reg.mu
	refs    int
	pending bool

	io   sync.Mutex
	file vfs.File
}

// Name returns the canonical name the handle is registered under.
func (h *Handle) Name() string {
	return h.name
}

// Refs returns the current reference count.
func (h *Handle) Refs() int {
	h.reg.mu.Lock()
	defer h.reg.mu.Unlock()
	return h.refs
}

// PendingDeletion reports whether the file has been unlinked while open.
func (h *Handle) PendingDeletion() bool {
	h.reg.mu.Lock()
	defer h.reg.mu.Unlock()
	return h.pending
}

// Acquire adds a reference for a caller that already holds one. It works
// on handles pending deletion, but not on released ones.
func (h *Handle) Acquire() error {
	h.reg.mu.Lock()
	defer h.reg.mu.Unlock()

	if h.refs <= 0 {
		return ErrReleased
	}
	h.refs++
	return nil
}

// Release drops one reference. The last release closes the file and, if
// the handle is pending deletion, removes it from storage.
func (h *Handle) Release() error {
	h.reg.mu.Lock()
	defer h.reg.mu.Unlock()

	if h.refs <= 0 {
		return ErrReleased
	}

	h.refs--
	if h.refs > 0 {
		return nil
	}
	return h.reg.destroy(h)
}

// Read reads from the underlying file at the shared position.
func (h *Handle) Read(p []byte) (int, error) {
	h.io.Lock()
	defer h.io.Unlock()
	return h.file.Read(p)
}

// Write writes to the underlying file at the shared position.
func (h *Handle) Write(p []byte) (int, error) {
	h.io.Lock()
	defer h.io.Unlock()
	return h.file.Write(p)
}
