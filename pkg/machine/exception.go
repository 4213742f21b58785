package machine

// Exception identifies why user code trapped into the kernel.
type Exception int

// Exception causes.
const (
	ExceptionSyscall Exception = iota
	ExceptionPageFault
	ExceptionTLBMiss
	ExceptionReadOnly
	ExceptionBusError
	ExceptionAddressError
	ExceptionOverflow
	ExceptionIllegalInstruction
)

// String returns the string representation of the exception.
func (e Exception) String() string {
	switch e {
	case ExceptionSyscall:
		return "syscall"
	case ExceptionPageFault:
		return "page fault"
	case ExceptionTLBMiss:
		return "TLB miss"
	case ExceptionReadOnly:
		return "read-only"
	case ExceptionBusError:
		return "bus error"
	case ExceptionAddressError:
		return "address error"
	case ExceptionOverflow:
		return "overflow"
	case ExceptionIllegalInstruction:
		return "illegal instruction"
	default:
		return "unknown"
	}
}
