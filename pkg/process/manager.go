package process

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/hashicorp/go-hclog"

	"kernsim/pkg/console"
	"kernsim/pkg/fd"
	"kernsim/pkg/frame"
	"kernsim/pkg/loader"
	"kernsim/pkg/machine"
	"kernsim/pkg/registry"
	vfs "kernsim/pkg/vfs"
	"kernsim/pkg/vm"
)

// Process creation errors.
var (
	ErrInvalidPID    = errors.New("invalid PID")
	ErrManagerClosed = errors.New("process manager is shut down")
)

// ManagerConfig contains the shared services a Manager hands to processes.
type ManagerConfig struct {
	// Processor is the machine the processes run on.
	Processor *machine.Processor
	// Frames backs process memory. Nil selects identity paging.
	Frames *frame.Allocator
	// Registry is the kernel-wide open file table.
	Registry *registry.Registry
	// Loader resolves program names to images.
	Loader loader.Loader
	// FileSystem holds programs and user files.
	FileSystem vfs.FileSystem
	// Console backs descriptors 0 and 1.
	Console *console.Console
	// StackPages is the stack size given to each loaded program.
	StackPages int
	// Logger is the parent logger. Nil disables logging.
	Logger hclog.Logger
}

// Manager creates and tracks processes.
type Manager struct {
	cfg    ManagerConfig
	logger hclog.Logger

	// processes holds all live processes by PID.
	processes sync.Map

	pidMu   sync.Mutex
	nextPID int

	mu     sync.Mutex
	closed bool
}

// NewManager creates a process manager over the given services.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Logger == nil {
		cfg.Logger = hclog.NewNullLogger()
	}

	return &Manager{
		cfg:    cfg,
		logger: cfg.Logger.Named("process"),
	}
}

// allocatePID allocates a new unique PID. PIDs start at 0 and are never
// reused.
func (m *Manager) allocatePID() int {
	m.pidMu.Lock()
	defer m.pidMu.Unlock()

	pid := m.nextPID
	m.nextPID++
	return pid
}

// CreateProcess creates a Ready process with an empty address space and
// the console bound to descriptors 0 and 1.
func (m *Manager) CreateProcess() (*Process, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrManagerClosed
	}

	pid := m.allocatePID()
	logger := m.logger.With("pid", pid)

	space, err := m.newAddressSpace(logger)
	if err != nil {
		return nil, err
	}

	p := newProcess(pid, m, space, logger)

	consoles := []struct {
		fd   int
		name string
		open func() vfs.File
	}{
		{fd.Stdin, console.ReaderName, m.cfg.Console.OpenForReading},
		{fd.Stdout, console.WriterName, m.cfg.Console.OpenForWriting},
	}
	for _, c := range consoles {
		if err := p.bindDevice(c.fd, c.name, c.open); err != nil {
			p.Teardown()
			return nil, fmt.Errorf("process %d: bind %s: %w", pid, c.name, err)
		}
	}

	m.processes.Store(pid, p)
	logger.Debug("process created")
	return p, nil
}

func (m *Manager) newAddressSpace(logger hclog.Logger) (*vm.AddressSpace, error) {
	cpu := m.cfg.Processor
	if m.cfg.Frames == nil {
		return vm.NewIdentity(cpu.Memory(), cpu.PageSize(), logger)
	}
	return vm.New(cpu.Memory(), cpu.PageSize(), m.cfg.Frames, logger)
}

// GetProcess retrieves a process by PID.
func (m *Manager) GetProcess(pid int) (*Process, error) {
	if pid < 0 {
		return nil, ErrInvalidPID
	}

	p, ok := m.processes.Load(pid)
	if !ok {
		return nil, ErrProcessNotFound
	}
	return p.(*Process), nil
}

// GetProcesses returns all live processes ordered by PID.
func (m *Manager) GetProcesses() []*Process {
	processes := make([]*Process, 0)

	m.processes.Range(func(key, value interface{}) bool {
		processes = append(processes, value.(*Process))
		return true
	})

	slices.SortFunc(processes, func(a, b *Process) int {
		return a.PID - b.PID
	})
	return processes
}

// CountProcesses returns the number of live processes.
func (m *Manager) CountProcesses() int {
	count := 0
	m.processes.Range(func(key, value interface{}) bool {
		count++
		return true
	})
	return count
}

// Terminate tears down a process and forgets it.
func (m *Manager) Terminate(pid int) error {
	p, err := m.GetProcess(pid)
	if err != nil {
		return err
	}

	m.processes.Delete(pid)
	return p.Teardown()
}

// Shutdown terminates every process. No process can be created afterwards.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	var errs []error
	for _, p := range m.GetProcesses() {
		errs = append(errs, m.Terminate(p.PID))
	}
	return errors.Join(errs...)
}
