package syscall

import (
	"errors"
	"testing"

	"kernsim/pkg/machine"
)

type call struct {
	n    Number
	args []int32
}

// recorder records every call and returns 100+number.
type recorder struct {
	calls []call
}

func (r *recorder) record(n Number, args ...int32) int32 {
	r.calls = append(r.calls, call{n, args})
	return 100 + int32(n)
}

func (r *recorder) Halt() int32                       { return r.record(Halt) }
func (r *recorder) Exit(status int32) int32           { return r.record(Exit, status) }
func (r *recorder) Exec(name, argc, argv int32) int32 { return r.record(Exec, name, argc, argv) }
func (r *recorder) Join(pid, status int32) int32      { return r.record(Join, pid, status) }
func (r *recorder) Create(name int32) int32           { return r.record(Create, name) }
func (r *recorder) Open(name int32) int32             { return r.record(Open, name) }
func (r *recorder) Read(fd, buf, size int32) int32    { return r.record(Read, fd, buf, size) }
func (r *recorder) Write(fd, buf, size int32) int32   { return r.record(Write, fd, buf, size) }
func (r *recorder) Close(fd int32) int32              { return r.record(Close, fd) }
func (r *recorder) Unlink(name int32) int32           { return r.record(Unlink, name) }

func TestNumberString(t *testing.T) {
	tests := []struct {
		n    Number
		want string
	}{
		{Halt, "halt"},
		{Create, "create"},
		{Unlink, "unlink"},
		{Number(42), "{Number 42}"},
	}

	for _, tt := range tests {
		if got := tt.n.String(); got != tt.want {
			t.Errorf("Number(%d).String() = %q, want %q", int32(tt.n), got, tt.want)
		}
	}

	if !Unlink.IsValid() || Number(10).IsValid() || Number(-1).IsValid() {
		t.Error("IsValid() does not match the known call set")
	}
}

func TestDispatch(t *testing.T) {
	args := Args{1, 2, 3, 4}
	tests := []struct {
		n    Number
		want []int32
	}{
		{Halt, nil},
		{Exit, []int32{1}},
		{Exec, []int32{1, 2, 3}},
		{Join, []int32{1, 2}},
		{Create, []int32{1}},
		{Open, []int32{1}},
		{Read, []int32{1, 2, 3}},
		{Write, []int32{1, 2, 3}},
		{Close, []int32{1}},
		{Unlink, []int32{1}},
	}

	for _, tt := range tests {
		t.Run(tt.n.String(), func(t *testing.T) {
			r := &recorder{}
			got, err := Dispatch(r, tt.n, args)
			if err != nil {
				t.Fatalf("Dispatch() error = %v", err)
			}
			if got != 100+int32(tt.n) {
				t.Errorf("Dispatch() = %d, want %d", got, 100+int32(tt.n))
			}
			if len(r.calls) != 1 || r.calls[0].n != tt.n {
				t.Fatalf("calls = %v, want one %s", r.calls, tt.n)
			}
			if len(r.calls[0].args) != len(tt.want) {
				t.Fatalf("args = %v, want %v", r.calls[0].args, tt.want)
			}
			for i := range tt.want {
				if r.calls[0].args[i] != tt.want[i] {
					t.Errorf("args = %v, want %v", r.calls[0].args, tt.want)
				}
			}
		})
	}
}

func TestDispatchUnknown(t *testing.T) {
	r := &recorder{}
	for _, n := range []Number{-1, 10, 255} {
		if _, err := Dispatch(r, n, Args{}); !errors.Is(err, ErrUnknownSyscall) {
			t.Errorf("Dispatch(%d) error = %v, want %v", int32(n), err, ErrUnknownSyscall)
		}
	}
	if len(r.calls) != 0 {
		t.Errorf("unknown numbers reached handlers: %v", r.calls)
	}
}

func newCPU(t *testing.T) *machine.Processor {
	t.Helper()
	cpu, err := machine.NewProcessor(4, 128)
	if err != nil {
		t.Fatalf("NewProcessor() error = %v", err)
	}
	cpu.WriteRegister(machine.RegPC, 0x100)
	cpu.WriteRegister(machine.RegNextPC, 0x104)
	return cpu
}

func TestHandleExceptionSyscall(t *testing.T) {
	cpu := newCPU(t)
	cpu.WriteRegister(machine.RegV0, int32(Write))
	cpu.WriteRegister(machine.RegA0, 1)
	cpu.WriteRegister(machine.RegA1, 0x40)
	cpu.WriteRegister(machine.RegA2, 5)

	r := &recorder{}
	if err := HandleException(cpu, r, machine.ExceptionSyscall); err != nil {
		t.Fatalf("HandleException() error = %v", err)
	}

	if v0, _ := cpu.ReadRegister(machine.RegV0); v0 != 100+int32(Write) {
		t.Errorf("V0 = %d, want %d", v0, 100+int32(Write))
	}
	if pc, _ := cpu.ReadRegister(machine.RegPC); pc != 0x104 {
		t.Errorf("PC = %#x, want 0x104", pc)
	}
	if next, _ := cpu.ReadRegister(machine.RegNextPC); next != 0x108 {
		t.Errorf("NextPC = %#x, want 0x108", next)
	}
	if got := r.calls[0].args; got[0] != 1 || got[1] != 0x40 || got[2] != 5 {
		t.Errorf("write args = %v, want [1 64 5]", got)
	}
	if cpu.Halted() {
		t.Error("machine halted after a valid call")
	}
}

func TestHandleExceptionFatal(t *testing.T) {
	tests := []struct {
		name  string
		v0    int32
		cause machine.Exception
		want  error
	}{
		{"unknown syscall", 77, machine.ExceptionSyscall, ErrUnknownSyscall},
		{"page fault", int32(Open), machine.ExceptionPageFault, ErrUnhandledException},
		{"illegal instruction", 0, machine.ExceptionIllegalInstruction, ErrUnhandledException},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cpu := newCPU(t)
			cpu.WriteRegister(machine.RegV0, tt.v0)

			r := &recorder{}
			err := HandleException(cpu, r, tt.cause)
			if !errors.Is(err, tt.want) {
				t.Fatalf("HandleException() error = %v, want %v", err, tt.want)
			}
			if !cpu.Halted() {
				t.Error("machine not halted")
			}
			if pc, _ := cpu.ReadRegister(machine.RegPC); pc != 0x100 {
				t.Errorf("PC = %#x, want unchanged 0x100", pc)
			}
			if len(r.calls) != 0 {
				t.Errorf("handlers called: %v", r.calls)
			}
		})
	}
}
