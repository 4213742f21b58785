package registry

import (
	"errors"
	"fmt"
	"sync"

	"github.com/hashicorp/go-hclog"

	vfs "kernsim/pkg/vfs"
)

// Registry errors.
var (
	ErrPendingDeletion = errors.New("registry: file is pending deletion")
	ErrFileNotFound    = errors.New("registry: file not found")
	ErrOpenFailed      = errors.New("registry: open failed")
	ErrInvalidName     = errors.New("registry: invalid file name")
	ErrReleased        = errors.New("registry: handle already released")
	ErrClosed          = errors.New("registry: registry is shut down")
)

// Registry maps canonical file names to shared handles.
type Registry struct {
	mu      sync.Mutex
	fs      vfs.FileSystem
	handles map[string]*Handle
	closed  bool
	logger  hclog.Logger
}

// New creates a registry over the given filesystem.
func New(fs vfs.FileSystem, logger hclog.Logger) *Registry {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	return &Registry{
		fs:      fs,
		handles: make(map[string]*Handle),
		logger:  logger,
	}
}

// Canonical returns the registry key for a file name.
func Canonical(name string) string {
	return vfs.Clean(name)
}

// Open returns the handle for name with one more reference. If create is
// set the file is created when it does not exist. A handle pending deletion
// accepts no new openers.
func (r *Registry) Open(name string, create bool) (*Handle, error) {
	if err := vfs.ValidatePath(name); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidName, err)
	}
	key := Canonical(name)

	return r.acquire(key, func() (vfs.File, error) {
		flags := vfs.O_RDWR
		if create {
			flags |= vfs.O_CREATE
		}

		f, err := r.fs.OpenFile(key, flags, 0666)
		switch {
		case errors.Is(err, vfs.ErrNotFound):
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, key)
		case err != nil:
			return nil, fmt.Errorf("%w: %s: %v", ErrOpenFailed, key, err)
		}
		return f, nil
	}, false)
}

// Attach returns the handle for a device that lives outside the filesystem,
// calling open only when no handle for name exists yet.
func (r *Registry) Attach(name string, open func() vfs.File) (*Handle, error) {
	return r.acquire(name, func() (vfs.File, error) {
		return open(), nil
	}, true)
}

func (r *Registry) acquire(key string, open func() (vfs.File, error), device bool) (*Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrClosed
	}

	if h, ok := r.handles[key]; ok {
		if h.pending {
			r.logger.Debug("open refused, pending deletion", "name", key)
			return nil, ErrPendingDeletion
		}
		h.refs++
		return h, nil
	}

	f, err := open()
	if err != nil {
		return nil, err
	}

	h := &Handle{
		reg:    r,
		name:   key,
		file:   f,
		device: device,
		refs:   1,
	}
	r.handles[key] = h
	r.logger.Trace("handle created", "name", key)
	return h, nil
}

// Unlink removes name. If the file is open it is only marked pending
// deletion and removed by the last Release. Removing a name that does not
// exist succeeds.
func (r *Registry) Unlink(name string) error {
	if err := vfs.ValidatePath(name); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidName, err)
	}
	key := Canonical(name)

	r.mu.Lock()
	defer r.mu.Unlock()

	if h, ok := r.handles[key]; ok && h.refs > 0 {
		h.pending = true
		r.logger.Debug("deletion deferred", "name", key, "refs", h.refs)
		return nil
	}

	err := r.fs.Remove(key)
	if err != nil && !errors.Is(err, vfs.ErrNotFound) {
		return fmt.Errorf("registry: unlink %s: %w", key, err)
	}
	return nil
}

// Lookup returns the live handle for name, if any.
func (r *Registry) Lookup(name string) (*Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.handles[name]
	if !ok {
		h, ok = r.handles[Canonical(name)]
	}
	return h, ok
}

// Len returns the number of live handles.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}

// Shutdown closes every remaining handle, completing pending deletions.
// Later opens fail with ErrClosed.
func (r *Registry) Shutdown() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true

	handles := make([]*Handle, 0, len(r.handles))
	for key, h := range r.handles {
		r.logger.Debug("closing leftover handle", "name", key, "refs", h.refs)
		h.refs = 0
		handles = append(handles, h)
	}
	clear(r.handles)
	r.mu.Unlock()

	// No name can be reopened once closed is set, so files are closed and
	// removed without r.mu. Close waits for any transfer still in flight.
	var errs []error
	for _, h := range handles {
		errs = append(errs, r.closeFile(h))
	}
	return errors.Join(errs...)
}

// destroy unregisters a handle whose last reference is gone, closes its
// file and removes its storage when pending. The caller holds r.mu, which
// keeps the name from being reopened before a pending removal completes.
func (r *Registry) destroy(h *Handle) error {
	if r.handles[h.name] == h {
		delete(r.handles, h.name)
	}
	return r.closeFile(h)
}

// closeFile closes the handle's file and completes a pending deletion.
func (r *Registry) closeFile(h *Handle) error {
	h.io.Lock()
	err := h.file.Close()
	h.io.Unlock()
	if errors.Is(err, vfs.ErrClosedFile) {
		err = nil
	}

	if h.pending && !h.device {
		if rmErr := r.fs.Remove(h.name); rmErr != nil && !errors.Is(rmErr, vfs.ErrNotFound) {
			err = errors.Join(err, rmErr)
		}
		r.logger.Debug("deferred deletion completed", "name", h.name)
	}
	return err
}
