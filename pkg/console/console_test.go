package console

import (
	"bytes"
	"strings"
	"testing"

	vfs "kernsim/pkg/vfs"
)

func TestConsoleReadWrite(t *testing.T) {
	var out bytes.Buffer
	c := New(strings.NewReader("input"), &out)

	r := c.OpenForReading()
	w := c.OpenForWriting()

	buf := make([]byte, 16)
	n, err := r.Read(buf)
	if err != nil || string(buf[:n]) != "input" {
		t.Errorf("Read() = %q, %v; want input, nil", buf[:n], err)
	}
	n, err = r.Read(buf)
	if err != nil || n != 0 {
		t.Errorf("Read() at EOF = %d, %v; want 0, nil", n, err)
	}

	if _, err := w.Write([]byte("output")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if out.String() != "output" {
		t.Errorf("console output = %q, want output", out.String())
	}
}

func TestConsoleDirections(t *testing.T) {
	c := New(strings.NewReader("x"), &bytes.Buffer{})

	if _, err := c.OpenForReading().Write([]byte("x")); err != vfs.ErrPermissionDenied {
		t.Errorf("Write() on input error = %v, want %v", err, vfs.ErrPermissionDenied)
	}
	if _, err := c.OpenForWriting().Read(make([]byte, 1)); err != vfs.ErrPermissionDenied {
		t.Errorf("Read() on output error = %v, want %v", err, vfs.ErrPermissionDenied)
	}
}

func TestConsoleClose(t *testing.T) {
	f := New(nil, nil).OpenForWriting()
	if err := f.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, err := f.Write([]byte("x")); err != vfs.ErrClosedFile {
		t.Errorf("Write() after Close error = %v, want %v", err, vfs.ErrClosedFile)
	}
}
