// Package kernel wires the simulated machine, memory, file services and
// process manager into a bootable kernel.
package kernel

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/hashicorp/go-hclog"

	"kernsim/pkg/config"
	"kernsim/pkg/console"
	"kernsim/pkg/frame"
	"kernsim/pkg/loader"
	"kernsim/pkg/machine"
	"kernsim/pkg/process"
	"kernsim/pkg/registry"
	"kernsim/pkg/syscall"
	vfs "kernsim/pkg/vfs"
	"kernsim/pkg/vfs/diskfs"
	"kernsim/pkg/vfs/memfs"
)

// ErrTooManyArgs is returned by Invoke for more than four arguments.
var ErrTooManyArgs = errors.New("kernel: too many system call arguments")

type options struct {
	logger hclog.Logger
	fs     vfs.FileSystem
	loader loader.Loader
	in     io.Reader
	out    io.Writer
}

// Option configures Boot.
type Option func(*options)

// WithLogger sets the root logger instead of building one from the config.
func WithLogger(l hclog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithFileSystem sets the filesystem instead of the configured backend.
func WithFileSystem(fs vfs.FileSystem) Option {
	return func(o *options) { o.fs = fs }
}

// WithLoader sets the program loader. The default is an empty loader.Table.
func WithLoader(l loader.Loader) Option {
	return func(o *options) { o.loader = l }
}

// WithConsole connects the machine console. The default is stdin and
// stdout.
func WithConsole(in io.Reader, out io.Writer) Option {
	return func(o *options) {
		o.in = in
		o.out = out
	}
}

// Kernel owns every kernel-wide service.
type Kernel struct {
	cfg       config.Config
	cpu       *machine.Processor
	frames    *frame.Allocator
	fs        vfs.FileSystem
	registry  *registry.Registry
	loader    loader.Loader
	processes *process.Manager
	logger    hclog.Logger
}

// Boot builds a kernel from cfg.
func Boot(cfg config.Config, opts ...Option) (*Kernel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := options{in: os.Stdin, out: os.Stdout}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = cfg.Logger(os.Stderr)
	}
	if o.loader == nil {
		o.loader = loader.NewTable()
	}

	cpu, err := machine.NewProcessor(cfg.NumPhysPages, cfg.PageSize)
	if err != nil {
		return nil, err
	}

	fs := o.fs
	if fs == nil {
		switch cfg.FileSystem {
		case config.FileSystemDisk:
			if err := os.MkdirAll(cfg.FSRoot, 0o755); err != nil {
				return nil, fmt.Errorf("kernel: filesystem root: %w", err)
			}
			fs = diskfs.New(cfg.FSRoot)
		default:
			fs = memfs.New()
		}
	}

	var frames *frame.Allocator
	if cfg.Paging == config.PagingAllocated {
		frames = frame.New(cfg.NumPhysPages, o.logger.Named("frames"))
	}

	k := &Kernel{
		cfg:      cfg,
		cpu:      cpu,
		frames:   frames,
		fs:       fs,
		registry: registry.New(fs, o.logger.Named("registry")),
		loader:   o.loader,
		logger:   o.logger,
	}
	k.processes = process.NewManager(process.ManagerConfig{
		Processor:  cpu,
		Frames:     frames,
		Registry:   k.registry,
		Loader:     o.loader,
		FileSystem: fs,
		Console:    console.New(o.in, o.out),
		StackPages: cfg.StackPages,
		Logger:     o.logger,
	})

	k.logger.Info("kernel booted",
		"pages", cfg.NumPhysPages,
		"page_size", cfg.PageSize,
		"paging", cfg.Paging,
		"fs", cfg.FileSystem)
	return k, nil
}

// Processor returns the machine.
func (k *Kernel) Processor() *machine.Processor { return k.cpu }

// Frames returns the frame allocator, or nil under identity paging.
func (k *Kernel) Frames() *frame.Allocator { return k.frames }

// FileSystem returns the kernel filesystem.
func (k *Kernel) FileSystem() vfs.FileSystem { return k.fs }

// Registry returns the open file registry.
func (k *Kernel) Registry() *registry.Registry { return k.registry }

// Processes returns the process manager.
func (k *Kernel) Processes() *process.Manager { return k.processes }

// Run creates a process, loads the named program into it and initializes
// the processor registers.
func (k *Kernel) Run(name string, args []string) (*process.Process, error) {
	p, err := k.processes.CreateProcess()
	if err != nil {
		return nil, err
	}

	if err := p.Execute(name, args); err != nil {
		k.terminate(p)
		return nil, err
	}
	if err := p.InitRegisters(); err != nil {
		k.terminate(p)
		return nil, err
	}
	return p, nil
}

// terminate cleans up a process that failed to start.
func (k *Kernel) terminate(p *process.Process) {
	if err := k.processes.Terminate(p.PID); err != nil {
		k.logger.Debug("process cleanup failed", "pid", p.PID, "error", err)
	}
}

// Trap delivers an exception raised while p was running.
func (k *Kernel) Trap(p *process.Process, cause machine.Exception) error {
	err := syscall.HandleException(k.cpu, p, cause)
	if err != nil {
		k.logger.Error("machine halted", "pid", p.PID, "cause", cause, "error", err)
	}
	return err
}

// Invoke performs system call n on behalf of p through the processor
// registers, as a trapping user instruction would, and returns V0.
func (k *Kernel) Invoke(p *process.Process, n syscall.Number, args ...int32) (int32, error) {
	var a syscall.Args
	if len(args) > len(a) {
		return 0, ErrTooManyArgs
	}
	copy(a[:], args)

	if err := k.cpu.WriteRegister(machine.RegV0, int32(n)); err != nil {
		return 0, err
	}
	for i, v := range a {
		if err := k.cpu.WriteRegister(machine.RegA0+i, v); err != nil {
			return 0, err
		}
	}

	if err := k.Trap(p, machine.ExceptionSyscall); err != nil {
		return 0, err
	}
	return k.cpu.ReadRegister(machine.RegV0)
}

// Shutdown terminates every process and closes the registry.
func (k *Kernel) Shutdown() error {
	err := errors.Join(k.processes.Shutdown(), k.registry.Shutdown())
	k.logger.Info("kernel shut down")
	return err
}
