package registry

import (
	"bytes"
	"errors"
	"sync"
	"testing"
	"time"

	"kernsim/pkg/console"
	vfs "kernsim/pkg/vfs"
	"kernsim/pkg/vfs/memfs"
)

func newTestRegistry(t *testing.T) (*Registry, *memfs.FS) {
	t.Helper()
	fs := memfs.New()
	return New(fs, nil), fs
}

func TestOpenSharesHandle(t *testing.T) {
	reg, _ := newTestRegistry(t)

	h1, err := reg.Open("a.txt", true)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	h2, err := reg.Open("/a.txt", false)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	if h1 != h2 {
		t.Fatal("two opens of the same canonical name returned different handles")
	}
	if h1.Refs() != 2 {
		t.Errorf("Refs() = %d, want 2", h1.Refs())
	}
	if h1.Name() != "/a.txt" {
		t.Errorf("Name() = %q, want /a.txt", h1.Name())
	}

	if err := h1.Release(); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if h2.Refs() != 1 {
		t.Errorf("Refs() after one release = %d, want 1", h2.Refs())
	}
	if _, err := h2.Write([]byte("ok")); err != nil {
		t.Errorf("Write() on remaining opener error = %v", err)
	}

	h2.Release()
	if reg.Len() != 0 {
		t.Errorf("Len() after last release = %d, want 0", reg.Len())
	}
}

func TestOpenErrors(t *testing.T) {
	reg, _ := newTestRegistry(t)

	tests := []struct {
		name   string
		file   string
		create bool
		want   error
	}{
		{"missing", "missing.txt", false, ErrFileNotFound},
		{"empty name", "", true, ErrInvalidName},
		{"missing dir", "nodir/a.txt", true, ErrFileNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := reg.Open(tt.file, tt.create); !errors.Is(err, tt.want) {
				t.Errorf("Open() error = %v, want %v", err, tt.want)
			}
			if reg.Len() != 0 {
				t.Errorf("failed Open() left %d handles", reg.Len())
			}
		})
	}
}

func TestUnlinkClosedFile(t *testing.T) {
	reg, fs := newTestRegistry(t)

	h, _ := reg.Open("a.txt", true)
	h.Release()

	if err := reg.Unlink("a.txt"); err != nil {
		t.Fatalf("Unlink() error = %v", err)
	}
	if _, err := fs.Stat("a.txt"); err != vfs.ErrNotFound {
		t.Errorf("Stat() after Unlink error = %v, want %v", err, vfs.ErrNotFound)
	}

	if err := reg.Unlink("a.txt"); err != nil {
		t.Errorf("Unlink() of missing file error = %v, want nil", err)
	}
}

func TestUnlinkDeferred(t *testing.T) {
	reg, fs := newTestRegistry(t)

	h1, _ := reg.Open("a.txt", true)
	h2, _ := reg.Open("a.txt", false)

	if err := reg.Unlink("a.txt"); err != nil {
		t.Fatalf("Unlink() error = %v", err)
	}
	if !h1.PendingDeletion() {
		t.Error("PendingDeletion() = false after Unlink of open file")
	}
	if _, err := fs.Stat("a.txt"); err != nil {
		t.Errorf("file removed while still open: %v", err)
	}

	if _, err := reg.Open("a.txt", true); err != ErrPendingDeletion {
		t.Errorf("Open() of pending file error = %v, want %v", err, ErrPendingDeletion)
	}
	if h1.Refs() != 2 {
		t.Errorf("refused Open() changed Refs() to %d", h1.Refs())
	}

	if _, err := h1.Write([]byte("data")); err != nil {
		t.Errorf("Write() after Unlink error = %v", err)
	}

	h1.Release()
	if _, err := fs.Stat("a.txt"); err != nil {
		t.Errorf("file removed before last close: %v", err)
	}

	h2.Release()
	if _, err := fs.Stat("a.txt"); err != vfs.ErrNotFound {
		t.Errorf("Stat() after last close error = %v, want %v", err, vfs.ErrNotFound)
	}

	h3, err := reg.Open("a.txt", true)
	if err != nil {
		t.Fatalf("Open() after deletion error = %v", err)
	}
	if h3 == h1 || h3.PendingDeletion() {
		t.Error("new open after deletion reused the deleted handle")
	}
}

func TestReleaseTwice(t *testing.T) {
	reg, _ := newTestRegistry(t)

	h, _ := reg.Open("a.txt", true)
	if err := h.Release(); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if err := h.Release(); err != ErrReleased {
		t.Errorf("second Release() error = %v, want %v", err, ErrReleased)
	}
	if err := h.Acquire(); err != ErrReleased {
		t.Errorf("Acquire() after release error = %v, want %v", err, ErrReleased)
	}
}

func TestAcquirePendingHandle(t *testing.T) {
	reg, _ := newTestRegistry(t)

	h, _ := reg.Open("a.txt", true)
	reg.Unlink("a.txt")

	if err := h.Acquire(); err != nil {
		t.Fatalf("Acquire() on pending handle error = %v", err)
	}
	if h.Refs() != 2 {
		t.Errorf("Refs() = %d, want 2", h.Refs())
	}
	h.Release()
	h.Release()
}

func TestReadWriteThroughHandle(t *testing.T) {
	reg, _ := newTestRegistry(t)

	h, _ := reg.Open("a.txt", true)
	h.Write([]byte("hello"))
	h.Release()

	h, err := reg.Open("a.txt", false)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer h.Release()

	buf := make([]byte, 5)
	n, err := h.Read(buf)
	if err != nil || string(buf[:n]) != "hello" {
		t.Errorf("Read() = %q, %v; want hello, nil", buf[:n], err)
	}
}

func TestAttachDevice(t *testing.T) {
	reg, _ := newTestRegistry(t)
	var out bytes.Buffer
	con := console.New(nil, &out)

	calls := 0
	open := func() vfs.File {
		calls++
		return con.OpenForWriting()
	}

	h1, err := reg.Attach(console.WriterName, open)
	if err != nil {
		t.Fatalf("Attach() error = %v", err)
	}
	h2, _ := reg.Attach(console.WriterName, open)

	if h1 != h2 || calls != 1 || h1.Refs() != 2 {
		t.Errorf("Attach() shared=%v calls=%d refs=%d; want true 1 2", h1 == h2, calls, h1.Refs())
	}

	h1.Write([]byte("hi"))
	if out.String() != "hi" {
		t.Errorf("console output = %q, want hi", out.String())
	}

	if _, ok := reg.Lookup(console.WriterName); !ok {
		t.Error("Lookup() did not find the device handle")
	}
}

func TestConcurrentOpenCreatesOneHandle(t *testing.T) {
	reg, _ := newTestRegistry(t)

	const n = 32
	handles := make([]*Handle, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h, err := reg.Open("race.txt", true)
			if err != nil {
				t.Errorf("Open() error = %v", err)
				return
			}
			handles[i] = h
		}(i)
	}
	wg.Wait()

	for _, h := range handles[1:] {
		if h != handles[0] {
			t.Fatal("concurrent opens created distinct handles")
		}
	}
	if handles[0].Refs() != n {
		t.Errorf("Refs() = %d, want %d", handles[0].Refs(), n)
	}
}

func TestShutdown(t *testing.T) {
	reg, fs := newTestRegistry(t)

	h, _ := reg.Open("a.txt", true)
	reg.Open("b.txt", true)
	reg.Unlink("a.txt")

	if err := reg.Shutdown(); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if reg.Len() != 0 {
		t.Errorf("Len() after Shutdown = %d, want 0", reg.Len())
	}
	if _, err := fs.Stat("a.txt"); err != vfs.ErrNotFound {
		t.Errorf("pending file survived Shutdown: %v", err)
	}
	if _, err := fs.Stat("b.txt"); err != nil {
		t.Errorf("Stat(b.txt) error = %v", err)
	}
	if _, err := reg.Open("b.txt", false); err != ErrClosed {
		t.Errorf("Open() after Shutdown error = %v, want %v", err, ErrClosed)
	}
	if err := h.Release(); err != ErrReleased {
		t.Errorf("Release() after Shutdown error = %v, want %v", err, ErrReleased)
	}
}

// blockingFile is a device whose reads wait until unblock is closed.
type blockingFile struct {
	started chan struct{}
	unblock chan struct{}
}

func (f *blockingFile) Read(p []byte) (int, error) {
	close(f.started)
	<-f.unblock
	return 0, nil
}

func (f *blockingFile) Write(p []byte) (int, error) { return len(p), nil }
func (f *blockingFile) Close() error                { return nil }
func (f *blockingFile) Stat() (vfs.FileInfo, error) { return vfs.FileInfo{}, nil }

func TestShutdownWithBlockedReader(t *testing.T) {
	reg, _ := newTestRegistry(t)
	dev := &blockingFile{started: make(chan struct{}), unblock: make(chan struct{})}

	h, err := reg.Attach(console.ReaderName, func() vfs.File { return dev })
	if err != nil {
		t.Fatalf("Attach() error = %v", err)
	}

	readDone := make(chan struct{})
	go func() {
		h.Read(make([]byte, 1))
		close(readDone)
	}()
	<-dev.started

	shutdownDone := make(chan error, 1)
	go func() { shutdownDone <- reg.Shutdown() }()

	cleared := make(chan struct{})
	go func() {
		for reg.Len() != 0 {
			time.Sleep(time.Millisecond)
		}
		close(cleared)
	}()

	select {
	case <-cleared:
	case <-time.After(2 * time.Second):
		t.Fatal("registry stayed locked while a reader was blocked")
	}
	if _, err := reg.Open("a.txt", true); err != ErrClosed {
		t.Errorf("Open() during Shutdown error = %v, want %v", err, ErrClosed)
	}

	close(dev.unblock)
	<-readDone
	if err := <-shutdownDone; err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}
