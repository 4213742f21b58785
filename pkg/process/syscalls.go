package process

import (
	"errors"
	"io"

	"kernsim/pkg/syscall"
)

// maxNameLength bounds file names read from user memory, excluding the
// terminator.
const maxNameLength = 255

// Argument errors.
var (
	ErrEmptyName   = errors.New("empty file name")
	ErrInvalidSize = errors.New("negative transfer size")
)

var _ syscall.Handlers = (*Process)(nil)

func (p *Process) fail(n syscall.Number, err error, args ...interface{}) int32 {
	p.logger.Debug("syscall failed", append([]interface{}{"syscall", n.String(), "error", err}, args...)...)
	return -1
}

// Halt stops the machine. Only the first process may halt it.
func (p *Process) Halt() int32 {
	if p.PID != 0 {
		p.logger.Warn("halt refused for non-root process")
		return -1
	}

	p.logger.Info("machine halted")
	p.mgr.cfg.Processor.Halt()
	return 0
}

// Exit is not implemented and reports 0.
func (p *Process) Exit(status int32) int32 {
	p.logger.Debug("exit not implemented", "status", status)
	return 0
}

// Exec is not implemented and reports 0.
func (p *Process) Exec(name, argc, argv int32) int32 {
	p.logger.Debug("exec not implemented")
	return 0
}

// Join is not implemented and reports 0.
func (p *Process) Join(pid, status int32) int32 {
	p.logger.Debug("join not implemented", "child", pid)
	return 0
}

// Create opens the named file for reading and writing, creating it if it
// does not exist, and returns a new descriptor.
func (p *Process) Create(name int32) int32 {
	return p.open(syscall.Create, name, true)
}

// Open opens an existing file and returns a new descriptor.
func (p *Process) Open(name int32) int32 {
	return p.open(syscall.Open, name, false)
}

func (p *Process) readName(addr int32) (string, error) {
	name, err := p.space.ReadString(int(addr), maxNameLength)
	if err != nil {
		return "", err
	}
	if name == "" {
		return "", ErrEmptyName
	}
	return name, nil
}

func (p *Process) open(n syscall.Number, addr int32, create bool) int32 {
	name, err := p.readName(addr)
	if err != nil {
		return p.fail(n, err)
	}

	slot, err := p.files.Reserve()
	if err != nil {
		return p.fail(n, err, "name", name)
	}

	h, err := p.mgr.cfg.Registry.Open(name, create)
	if err != nil {
		p.files.Unreserve(slot)
		return p.fail(n, err, "name", name)
	}

	if err := p.files.Bind(slot, h); err != nil {
		p.release(h)
		p.files.Unreserve(slot)
		return p.fail(n, err, "name", name)
	}

	p.logger.Trace("file opened", "name", h.Name(), "fd", slot)
	return int32(slot)
}

// Read reads up to size bytes from fd into user memory at buf and returns
// the number of bytes read.
func (p *Process) Read(fd, buf, size int32) int32 {
	if size < 0 {
		return p.fail(syscall.Read, ErrInvalidSize, "size", size)
	}

	h, err := p.files.Pin(int(fd))
	if err != nil {
		return p.fail(syscall.Read, err, "fd", fd)
	}
	defer p.release(h)

	chunk := make([]byte, min(int(size), p.space.PageSize()))
	total := 0
	for total < int(size) {
		want := min(len(chunk), int(size)-total)
		n, err := h.Read(chunk[:want])
		if n > 0 {
			copied := p.space.WriteBytes(int(buf)+total, chunk[:n])
			total += copied
			if copied < n {
				break
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) || total > 0 {
				break
			}
			return p.fail(syscall.Read, err, "fd", fd)
		}
		if n < want {
			break
		}
	}

	return int32(total)
}

// Write writes size bytes from user memory at buf to fd and returns the
// number of bytes written.
func (p *Process) Write(fd, buf, size int32) int32 {
	if size < 0 {
		return p.fail(syscall.Write, ErrInvalidSize, "size", size)
	}

	h, err := p.files.Pin(int(fd))
	if err != nil {
		return p.fail(syscall.Write, err, "fd", fd)
	}
	defer p.release(h)

	chunk := make([]byte, min(int(size), p.space.PageSize()))
	total := 0
	for total < int(size) {
		want := min(len(chunk), int(size)-total)
		got := p.space.ReadBytes(int(buf)+total, chunk[:want])
		if got == 0 {
			break
		}

		n, err := h.Write(chunk[:got])
		total += n
		if err != nil {
			if total > 0 {
				break
			}
			return p.fail(syscall.Write, err, "fd", fd)
		}
		if got < want {
			break
		}
	}

	return int32(total)
}

// Close releases fd.
func (p *Process) Close(fd int32) int32 {
	h, err := p.files.Remove(int(fd))
	if err != nil {
		return p.fail(syscall.Close, err, "fd", fd)
	}

	if err := h.Release(); err != nil {
		return p.fail(syscall.Close, err, "fd", fd)
	}
	return 0
}

// Unlink removes the named file. If it is open anywhere, removal is
// deferred until the last descriptor is closed.
func (p *Process) Unlink(name int32) int32 {
	path, err := p.readName(name)
	if err != nil {
		return p.fail(syscall.Unlink, err)
	}

	if err := p.mgr.cfg.Registry.Unlink(path); err != nil {
		return p.fail(syscall.Unlink, err, "name", path)
	}
	return 0
}
