// Package fd implements the fixed-size per-process descriptor table.
package fd

import (
	"errors"
	"sync"

	"kernsim/pkg/registry"
)

// Capacity is the number of descriptors a process can hold.
const Capacity = 16

// Standard descriptors bound at process start.
const (
	Stdin  = 0
	Stdout = 1
)

// Descriptor table errors.
var (
	ErrTableFull     = errors.New("fd: descriptor table full")
	ErrBadDescriptor = errors.New("fd: bad file descriptor")
)

type slot struct {
	handle   *registry.Handle
	reserved bool
}

// Table maps small integers to file registry handles.
type Table struct {
	mu    sync.Mutex
	slots [Capacity]slot
}

// New creates an empty table.
func New() *Table {
	return &Table{}
}

func valid(fd int) bool {
	return fd >= 0 && fd < Capacity
}

// Reserve claims the lowest free slot so that it can be bound once the
// file is open. A reserved slot is not visible to Get.
func (t *Table) Reserve() (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := range t.slots {
		if !t.slots[i].reserved {
			t.slots[i].reserved = true
			return i, nil
		}
	}
	return -1, ErrTableFull
}

// Unreserve gives back a slot returned by Reserve that was never bound.
func (t *Table) Unreserve(fd int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if valid(fd) && t.slots[fd].handle == nil {
		t.slots[fd].reserved = false
	}
}

// Bind attaches h to a reserved slot. The table takes over the caller's
// reference.
func (t *Table) Bind(fd int, h *registry.Handle) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !valid(fd) || !t.slots[fd].reserved || t.slots[fd].handle != nil {
		return ErrBadDescriptor
	}
	t.slots[fd].handle = h
	return nil
}

// Get returns the handle bound to fd.
func (t *Table) Get(fd int) (*registry.Handle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !valid(fd) || t.slots[fd].handle == nil {
		return nil, ErrBadDescriptor
	}
	return t.slots[fd].handle, nil
}

// Pin returns the handle bound to fd with an extra reference, so a
// concurrent close of fd cannot destroy it mid-transfer. The caller must
// Release it.
func (t *Table) Pin(fd int) (*registry.Handle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !valid(fd) || t.slots[fd].handle == nil {
		return nil, ErrBadDescriptor
	}

	h := t.slots[fd].handle
	if err := h.Acquire(); err != nil {
		return nil, err
	}
	return h, nil
}

// Remove unbinds fd and returns its handle. The caller owns the table's
// reference and must Release it.
func (t *Table) Remove(fd int) (*registry.Handle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !valid(fd) || t.slots[fd].handle == nil {
		return nil, ErrBadDescriptor
	}

	h := t.slots[fd].handle
	t.slots[fd] = slot{}
	return h, nil
}

// Len returns the number of bound descriptors.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for _, s := range t.slots {
		if s.handle != nil {
			n++
		}
	}
	return n
}

// CloseAll unbinds and releases every descriptor.
func (t *Table) CloseAll() error {
	t.mu.Lock()
	var handles []*registry.Handle
	for i := range t.slots {
		if h := t.slots[i].handle; h != nil {
			handles = append(handles, h)
		}
		t.slots[i] = slot{}
	}
	t.mu.Unlock()

	var errs []error
	for _, h := range handles {
		errs = append(errs, h.Release())
	}
	return errors.Join(errs...)
}
