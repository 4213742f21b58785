// Package loader describes executable images as ordered sections of pages
// and provides an in-memory image table for the simulated machine.
package loader

import (
	"errors"
	"fmt"
	"sync"

	vfs "kernsim/pkg/vfs"
)

// Loader errors.
var (
	ErrNotExecutable = errors.New("loader: not an executable")
	ErrBadPage       = errors.New("loader: section page out of range")
)

// Section is one loadable section of an executable.
type Section interface {
	Name() string
	// FirstVPN is the virtual page the section starts at.
	FirstVPN() int
	// Length is the number of pages in the section.
	Length() int
	ReadOnly() bool
	// LoadPage copies page spn of the section into dst, which is exactly one
	// physical page.
	LoadPage(spn int, dst []byte) error
}

// Image is a parsed executable.
type Image interface {
	Sections() []Section
	EntryPoint() int32
	Close() error
}

// Loader resolves a program name to an Image.
type Loader interface {
	Load(fs vfs.FileSystem, name string) (Image, error)
}

// StaticSection is a section whose contents are held in memory.
type StaticSection struct {
	SectionName string
	VPN         int
	Pages       int
	RO          bool
	Data        []byte
}

// Name implements Section.
func (s *StaticSection) Name() string { return s.SectionName }

// FirstVPN implements Section.
func (s *StaticSection) FirstVPN() int { return s.VPN }

// Length implements Section.
func (s *StaticSection) Length() int { return s.Pages }

// ReadOnly implements Section.
func (s *StaticSection) ReadOnly() bool { return s.RO }

// LoadPage implements Section. Bytes past the end of Data are zero filled.
func (s *StaticSection) LoadPage(spn int, dst []byte) error {
	if spn < 0 || spn >= s.Pages {
		return ErrBadPage
	}

	clear(dst)
	start := spn * len(dst)
	if start < len(s.Data) {
		copy(dst, s.Data[start:])
	}
	return nil
}

// Static is an Image held entirely in memory.
type Static struct {
	Entry    int32
	Segments []*StaticSection
}

// Sections implements Image.
func (s *Static) Sections() []Section {
	sections := make([]Section, len(s.Segments))
	for i, seg := range s.Segments {
		sections[i] = seg
	}
	return sections
}

// EntryPoint implements Image.
func (s *Static) EntryPoint() int32 { return s.Entry }

// Close implements Image.
func (s *Static) Close() error { return nil }

// Table is a Loader serving registered in-memory images. A program must
// also exist in the filesystem under the same name to be loadable.
type Table struct {
	mu     sync.RWMutex
	images map[string]Image
}

// NewTable creates an empty image table.
func NewTable() *Table {
	return &Table{images: make(map[string]Image)}
}

// Register makes img loadable under name.
func (t *Table) Register(name string, img Image) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.images[vfs.Clean(name)] = img
}

// Load implements Loader.
func (t *Table) Load(fs vfs.FileSystem, name string) (Image, error) {
	name = vfs.Clean(name)

	if fs != nil {
		if _, err := fs.Stat(name); err != nil {
			return nil, fmt.Errorf("loader: open %s: %w", name, err)
		}
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	img, ok := t.images[name]
	if !ok {
		return nil, ErrNotExecutable
	}
	return img, nil
}
