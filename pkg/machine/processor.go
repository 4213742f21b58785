// Package machine provides the simulated hardware surface the kernel runs on:
// a word-sized register file, a flat physical memory array and the exception
// causes delivered when user code traps into the kernel.
package machine

import (
	"errors"
	"sync"
)

// ErrInvalidRegister is returned when a register number is out of range.
var ErrInvalidRegister = errors.New("machine: invalid register")

// ErrInvalidGeometry is returned when the memory geometry is not usable.
var ErrInvalidGeometry = errors.New("machine: invalid memory geometry")

// Register numbers, following the MIPS convention.
const (
	RegV0       = 2
	RegV1       = 3
	RegA0       = 4
	RegA1       = 5
	RegA2       = 6
	RegA3       = 7
	RegSP       = 29
	RegRA       = 31
	RegHi       = 32
	RegLo       = 33
	RegPC       = 34
	RegNextPC   = 35
	RegCause    = 36
	RegBadVAddr = 37

	// NumUserRegisters is the size of the register file visible to user code.
	NumUserRegisters = 38
)

// Processor is a simulated CPU together with its physical memory.
type Processor struct {
	mu        sync.Mutex
	registers [NumUserRegisters]int32
	memory    []byte
	pageSize  int
	numPages  int
	halted    bool
}

// NewProcessor creates a processor with numPages physical pages of pageSize
// bytes each.
func NewProcessor(numPages, pageSize int) (*Processor, error) {
	if numPages <= 0 || pageSize <= 0 {
		return nil, ErrInvalidGeometry
	}

	return &Processor{
		memory:   make([]byte, numPages*pageSize),
		pageSize: pageSize,
		numPages: numPages,
	}, nil
}

// Memory returns the physical memory array. Frames are owned by address
// spaces; the processor does not arbitrate access to it.
func (p *Processor) Memory() []byte {
	return p.memory
}

// PageSize returns the size of one page in bytes.
func (p *Processor) PageSize() int {
	return p.pageSize
}

// NumPhysPages returns the number of physical frames.
func (p *Processor) NumPhysPages() int {
	return p.numPages
}

// ReadRegister returns the value of register r.
func (p *Processor) ReadRegister(r int) (int32, error) {
	if r < 0 || r >= NumUserRegisters {
		return 0, ErrInvalidRegister
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.registers[r], nil
}

// WriteRegister sets register r to value.
func (p *Processor) WriteRegister(r int, value int32) error {
	if r < 0 || r >= NumUserRegisters {
		return ErrInvalidRegister
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.registers[r] = value
	return nil
}

// AdvancePC moves the program counter past the current instruction.
func (p *Processor) AdvancePC() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.registers[RegPC] = p.registers[RegNextPC]
	p.registers[RegNextPC] += 4
}

// Halt stops the machine.
func (p *Processor) Halt() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.halted = true
}

// Halted reports whether Halt has been called.
func (p *Processor) Halted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.halted
}
