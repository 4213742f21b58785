// Package syscall maps system call numbers to kernel handlers and routes
// processor exceptions into them.
package syscall

import (
	"errors"
	"fmt"

	"kernsim/pkg/machine"
)

// Number identifies a system call.
type Number int32

// System call numbers.
const (
	Halt Number = iota
	Exit
	Exec
	Join
	Create
	Open
	Read
	Write
	Close
	Unlink
)

var numberNames = map[Number]string{
	Halt:   "halt",
	Exit:   "exit",
	Exec:   "exec",
	Join:   "join",
	Create: "create",
	Open:   "open",
	Read:   "read",
	Write:  "write",
	Close:  "close",
	Unlink: "unlink",
}

func (n Number) String() string {
	name, ok := numberNames[n]
	if ok {
		return name
	}
	return fmt.Sprintf("{Number %d}", n)
}

// IsValid reports whether n is a known system call.
func (n Number) IsValid() bool {
	_, ok := numberNames[n]
	return ok
}

// Dispatch errors.
var (
	ErrUnknownSyscall     = errors.New("syscall: unknown system call")
	ErrUnhandledException = errors.New("syscall: unhandled exception")
)

// Args holds the raw argument registers of a call.
type Args [4]int32

// Handlers implements the system calls for one process. Handlers report
// failures through their return value; they never fail the machine.
type Handlers interface {
	Halt() int32
	Exit(status int32) int32
	Exec(name, argc, argv int32) int32
	Join(pid, status int32) int32
	Create(name int32) int32
	Open(name int32) int32
	Read(fd, buf, size int32) int32
	Write(fd, buf, size int32) int32
	Close(fd int32) int32
	Unlink(name int32) int32
}

// Dispatch invokes the handler for n. Argument semantics are left to the
// handler.
func Dispatch(h Handlers, n Number, a Args) (int32, error) {
	switch n {
	case Halt:
		return h.Halt(), nil
	case Exit:
		return h.Exit(a[0]), nil
	case Exec:
		return h.Exec(a[0], a[1], a[2]), nil
	case Join:
		return h.Join(a[0], a[1]), nil
	case Create:
		return h.Create(a[0]), nil
	case Open:
		return h.Open(a[0]), nil
	case Read:
		return h.Read(a[0], a[1], a[2]), nil
	case Write:
		return h.Write(a[0], a[1], a[2]), nil
	case Close:
		return h.Close(a[0]), nil
	case Unlink:
		return h.Unlink(a[0]), nil
	default:
		return 0, fmt.Errorf("%w: %d", ErrUnknownSyscall, int32(n))
	}
}

// HandleException services a trap raised by the processor. For a system
// call it reads the call number from V0 and arguments from A0..A3, stores
// the result in V0 and advances the program counter. An unknown call or any
// other exception halts the machine.
func HandleException(cpu *machine.Processor, h Handlers, cause machine.Exception) error {
	if cause != machine.ExceptionSyscall {
		cpu.Halt()
		return fmt.Errorf("%w: %s", ErrUnhandledException, cause)
	}

	n, err := cpu.ReadRegister(machine.RegV0)
	if err != nil {
		return err
	}

	var a Args
	for i := range a {
		if a[i], err = cpu.ReadRegister(machine.RegA0 + i); err != nil {
			return err
		}
	}

	result, err := Dispatch(h, Number(n), a)
	if err != nil {
		cpu.Halt()
		return err
	}

	if err := cpu.WriteRegister(machine.RegV0, result); err != nil {
		return err
	}
	cpu.AdvancePC()
	return nil
}
