// Package vm implements per-process address spaces: a page table mapping
// virtual pages onto physical frames, and the routines that move bytes
// between a process's virtual memory and kernel buffers.
//
// Transfers never fault. An address that is out of range or unmapped simply
// ends the transfer, and the caller receives the number of bytes actually
// moved.
package vm

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/hashicorp/go-hclog"

	"kernsim/pkg/frame"
	"kernsim/pkg/loader"
)

// Address space errors.
var (
	ErrInvalidAddress  = errors.New("vm: invalid virtual address")
	ErrNoTerminator    = errors.New("vm: no string terminator within bound")
	ErrInvalidLength   = errors.New("vm: invalid length")
	ErrFragmented      = errors.New("vm: fragmented executable")
	ErrArgsTooLong     = errors.New("vm: arguments do not fit in one page")
	ErrAlreadyLoaded   = errors.New("vm: address space already loaded")
	ErrReleased        = errors.New("vm: address space released")
	ErrInvalidGeometry = errors.New("vm: page size does not divide memory")
)

// TranslationEntry maps one virtual page to a physical frame.
type TranslationEntry struct {
	VPN      int
	PPN      int
	Valid    bool
	ReadOnly bool
	Used     bool
	Dirty    bool
}

// Layout describes where a loaded program starts.
type Layout struct {
	InitialPC int32
	InitialSP int32
	Argc      int32
	Argv      int32
	NumPages  int
}

// AddressSpace is the virtual memory of one process.
type AddressSpace struct {
	mu       sync.Mutex
	mem      []byte
	pageSize int
	frames   *frame.Allocator
	table    []TranslationEntry
	identity bool
	released bool
	logger   hclog.Logger
}

// New creates an empty address space whose pages are backed by frames taken
// from the allocator.
func New(mem []byte, pageSize int, frames *frame.Allocator, logger hclog.Logger) (*AddressSpace, error) {
	if pageSize <= 0 || len(mem)%pageSize != 0 {
		return nil, ErrInvalidGeometry
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	return &AddressSpace{
		mem:      mem,
		pageSize: pageSize,
		frames:   frames,
		logger:   logger,
	}, nil
}

// NewIdentity creates an address space that maps every virtual page i onto
// physical frame i. Its frames do not come from an allocator and are never
// released to one.
func NewIdentity(mem []byte, pageSize int, logger hclog.Logger) (*AddressSpace, error) {
	as, err := New(mem, pageSize, nil, logger)
	if err != nil {
		return nil, err
	}

	as.identity = true
	as.table = make([]TranslationEntry, len(mem)/pageSize)
	for i := range as.table {
		as.table[i] = TranslationEntry{VPN: i, PPN: i, Valid: true}
	}
	return as, nil
}

// PageSize returns the page size in bytes.
func (as *AddressSpace) PageSize() int {
	return as.pageSize
}

// NumPages returns the number of virtual pages in the address space.
func (as *AddressSpace) NumPages() int {
	as.mu.Lock()
	defer as.mu.Unlock()
	return len(as.table)
}

// Entries returns a copy of the page table.
func (as *AddressSpace) Entries() []TranslationEntry {
	as.mu.Lock()
	defer as.mu.Unlock()
	return append([]TranslationEntry(nil), as.table...)
}

// Grow appends n pages backed by newly allocated frames.
func (as *AddressSpace) Grow(n int, readOnly bool) error {
	as.mu.Lock()
	defer as.mu.Unlock()

	if as.released {
		return ErrReleased
	}
	if as.identity {
		return frame.ErrResourceExhausted
	}

	frames, err := as.frames.Allocate(n)
	if err != nil {
		return err
	}
	for _, ppn := range frames {
		as.table = append(as.table, TranslationEntry{
			VPN:      len(as.table),
			PPN:      ppn,
			Valid:    true,
			ReadOnly: readOnly,
		})
	}
	return nil
}

// Load copies the image's sections into the address space, reserves
// stackPages of stack and one page for the argument vector, and returns the
// initial register layout. Sections must be contiguous from page 0.
func (as *AddressSpace) Load(img loader.Image, args []string, stackPages int) (Layout, error) {
	if stackPages < 0 {
		return Layout{}, ErrInvalidLength
	}

	sections := img.Sections()

	numPages := 0
	for _, s := range sections {
		if s.FirstVPN() != numPages {
			return Layout{}, ErrFragmented
		}
		numPages += s.Length()
	}

	// 4 bytes for each argv pointer, then the string and its terminator
	argsSize := 0
	for _, arg := range args {
		argsSize += 4 + len(arg) + 1
	}
	if argsSize > as.pageSize {
		return Layout{}, ErrArgsTooLong
	}

	as.mu.Lock()
	defer as.mu.Unlock()

	if as.released {
		return Layout{}, ErrReleased
	}

	total := numPages + stackPages + 1
	if err := as.mapPages(total); err != nil {
		return Layout{}, err
	}

	for _, s := range sections {
		as.logger.Debug("loading section", "section", s.Name(), "pages", s.Length())
		for i := 0; i < s.Length(); i++ {
			e := &as.table[s.FirstVPN()+i]
			e.ReadOnly = s.ReadOnly()
			if err := s.LoadPage(i, as.frameBytes(e.PPN)); err != nil {
				if !as.identity {
					as.unmapLocked()
				}
				return Layout{}, fmt.Errorf("vm: load section %s: %w", s.Name(), err)
			}
		}
	}

	entryOffset := (total - 1) * as.pageSize
	stringOffset := entryOffset + 4*len(args)
	layout := Layout{
		InitialPC: img.EntryPoint(),
		InitialSP: int32((numPages + stackPages) * as.pageSize),
		Argc:      int32(len(args)),
		Argv:      int32(entryOffset),
		NumPages:  total,
	}

	var ptr [4]byte
	for _, arg := range args {
		binary.LittleEndian.PutUint32(ptr[:], uint32(stringOffset))
		as.transfer(entryOffset, ptr[:], true)
		entryOffset += 4
		stringOffset += as.transfer(stringOffset, append([]byte(arg), 0), true)
	}

	return layout, nil
}

// mapPages makes the first n virtual pages valid. The caller holds as.mu.
func (as *AddressSpace) mapPages(n int) error {
	if as.identity {
		if n > len(as.table) {
			return frame.ErrResourceExhausted
		}
		return nil
	}

	if len(as.table) > 0 {
		return ErrAlreadyLoaded
	}

	frames, err := as.frames.Allocate(n)
	if err != nil {
		as.logger.Debug("insufficient physical memory", "pages", n)
		return err
	}

	as.table = make([]TranslationEntry, n)
	for vpn, ppn := range frames {
		as.table[vpn] = TranslationEntry{VPN: vpn, PPN: ppn, Valid: true}
	}
	return nil
}

// frameBytes returns the physical memory of frame ppn.
func (as *AddressSpace) frameBytes(ppn int) []byte {
	return as.mem[ppn*as.pageSize : (ppn+1)*as.pageSize]
}

// ReadBytes copies virtual memory starting at vaddr into buf and returns
// the number of bytes copied.
func (as *AddressSpace) ReadBytes(vaddr int, buf []byte) int {
	as.mu.Lock()
	defer as.mu.Unlock()
	return as.transfer(vaddr, buf, false)
}

// WriteBytes copies data into virtual memory starting at vaddr and returns
// the number of bytes copied. Read-only pages end the transfer.
func (as *AddressSpace) WriteBytes(vaddr int, data []byte) int {
	as.mu.Lock()
	defer as.mu.Unlock()
	return as.transfer(vaddr, data, true)
}

// transfer moves bytes page by page until the buffer is exhausted or a page
// cannot be used. The caller holds as.mu.
func (as *AddressSpace) transfer(vaddr int, buf []byte, write bool) int {
	if vaddr < 0 {
		return 0
	}

	done := 0
	for done < len(buf) {
		addr := vaddr + done
		vpn, offset := addr/as.pageSize, addr%as.pageSize
		if vpn >= len(as.table) {
			break
		}

		e := &as.table[vpn]
		if !e.Valid || (write && e.ReadOnly) {
			break
		}
		if e.PPN < 0 || (e.PPN+1)*as.pageSize > len(as.mem) {
			break
		}

		n := min(as.pageSize-offset, len(buf)-done)
		paddr := e.PPN*as.pageSize + offset
		if write {
			copy(as.mem[paddr:paddr+n], buf[done:done+n])
			e.Dirty = true
		} else {
			copy(buf[done:done+n], as.mem[paddr:paddr+n])
		}
		e.Used = true
		done += n
	}

	return done
}

// ReadString reads a NUL-terminated string of at most maxLength bytes,
// excluding the terminator, from vaddr.
func (as *AddressSpace) ReadString(vaddr, maxLength int) (string, error) {
	if maxLength < 0 {
		return "", ErrInvalidLength
	}

	buf := make([]byte, maxLength+1)
	n := as.ReadBytes(vaddr, buf)
	if n == 0 {
		return "", ErrInvalidAddress
	}

	if i := bytes.IndexByte(buf[:n], 0); i >= 0 {
		return string(buf[:i]), nil
	}
	return "", ErrNoTerminator
}

// Release unmaps every page and returns owned frames to the allocator.
// Calling it more than once is harmless.
func (as *AddressSpace) Release() {
	as.mu.Lock()
	defer as.mu.Unlock()

	if as.released {
		return
	}
	as.unmapLocked()
	as.released = true
}

// unmapLocked drops the page table. The caller holds as.mu.
func (as *AddressSpace) unmapLocked() {
	if !as.identity {
		for _, e := range as.table {
			if !e.Valid {
				continue
			}
			clear(as.frameBytes(e.PPN))
			as.frames.Release(e.PPN)
		}
		as.logger.Debug("address space released", "frames", len(as.table))
	}
	as.table = nil
}
