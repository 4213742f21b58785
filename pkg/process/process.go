package process

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"

	"kernsim/pkg/fd"
	"kernsim/pkg/machine"
	"kernsim/pkg/registry"
	vfs "kernsim/pkg/vfs"
	"kernsim/pkg/vm"
)

// Program loading errors.
var (
	ErrAlreadyLoaded = errors.New("process already has a program loaded")
	ErrNotLoaded     = errors.New("process has no program loaded")
)

// Process represents a user process.
type Process struct {
	// PID is the unique process identifier.
	PID int
	// Command is the program the process runs.
	Command string
	// Args is the argument vector passed to the program.
	Args []string
	// State is the current process state.
	State ProcessState
	// CreatedAt is when the process was created.
	CreatedAt time.Time
	// StartedAt is when the process started running.
	StartedAt time.Time
	// FinishedAt is when the process terminated.
	FinishedAt time.Time

	mgr    *Manager
	space  *vm.AddressSpace
	files  *fd.Table
	layout vm.Layout
	loaded bool
	logger hclog.Logger

	mu sync.Mutex
}

func newProcess(pid int, m *Manager, space *vm.AddressSpace, logger hclog.Logger) *Process {
	return &Process{
		PID:       pid,
		State:     StateReady,
		CreatedAt: time.Now(),
		mgr:       m,
		space:     space,
		files:     fd.New(),
		logger:    logger,
	}
}

// AddressSpace returns the process memory.
func (p *Process) AddressSpace() *vm.AddressSpace {
	return p.space
}

// Files returns the descriptor table.
func (p *Process) Files() *fd.Table {
	return p.files
}

// Layout returns the register layout of the loaded program.
func (p *Process) Layout() vm.Layout {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.layout
}

// bindDevice binds a console device to a specific descriptor.
func (p *Process) bindDevice(want int, name string, open func() vfs.File) error {
	slot, err := p.files.Reserve()
	if err != nil {
		return err
	}
	if slot != want {
		p.files.Unreserve(slot)
		return fd.ErrBadDescriptor
	}

	h, err := p.mgr.cfg.Registry.Attach(name, open)
	if err != nil {
		p.files.Unreserve(slot)
		return err
	}
	if err := p.files.Bind(slot, h); err != nil {
		p.release(h)
		p.files.Unreserve(slot)
		return err
	}
	return nil
}

// release drops a reference whose failure the caller cannot report.
func (p *Process) release(h *registry.Handle) {
	if err := h.Release(); err != nil {
		p.logger.Debug("handle release failed", "name", h.Name(), "error", err)
	}
}

// Execute loads the named program into the address space.
func (p *Process) Execute(name string, args []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.State == StateTerminated {
		return ErrInvalidTransition
	}
	if p.loaded {
		return ErrAlreadyLoaded
	}

	img, err := p.mgr.cfg.Loader.Load(p.mgr.cfg.FileSystem, name)
	if err != nil {
		return err
	}
	defer img.Close()

	layout, err := p.space.Load(img, args, p.mgr.cfg.StackPages)
	if err != nil {
		return fmt.Errorf("process %d: load %s: %w", p.PID, name, err)
	}

	p.Command = name
	p.Args = args
	p.layout = layout
	p.loaded = true
	p.logger.Info("program loaded", "program", name, "pages", layout.NumPages)
	return nil
}

// InitRegisters clears the processor registers, points them at the loaded
// program and moves the process to Running.
func (p *Process) InitRegisters() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.loaded {
		return ErrNotLoaded
	}
	if !IsValidTransition(p.State, StateRunning) {
		return ErrInvalidTransition
	}

	cpu := p.mgr.cfg.Processor
	for r := 0; r < machine.NumUserRegisters; r++ {
		cpu.WriteRegister(r, 0)
	}

	regs := []struct {
		reg   int
		value int32
	}{
		{machine.RegPC, p.layout.InitialPC},
		{machine.RegNextPC, p.layout.InitialPC + 4},
		{machine.RegSP, p.layout.InitialSP},
		{machine.RegA0, p.layout.Argc},
		{machine.RegA1, p.layout.Argv},
	}
	for _, r := range regs {
		if err := cpu.WriteRegister(r.reg, r.value); err != nil {
			return err
		}
	}

	return p.transitionLocked(StateRunning)
}

// Teardown closes every descriptor, returns the process memory and moves
// the process to Terminated. Calling it again is a no-op.
func (p *Process) Teardown() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.State == StateTerminated {
		return nil
	}

	err := p.files.CloseAll()
	p.space.Release()
	if terr := p.transitionLocked(StateTerminated); terr != nil {
		return errors.Join(err, terr)
	}

	p.logger.Debug("process terminated", "lifetime", p.lifetimeLocked())
	return err
}
