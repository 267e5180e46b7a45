// Package target resolves fully-specified code generation configurations
// for the two backend modes: in-process (JIT) and ahead-of-time object
// emission.
package target

// ISA identifies the instruction set a configuration generates code for.
type ISA uint8

const (
	ISAInvalid ISA = iota
	ISAX8664
	ISAAArch64
)

func (i ISA) String() string {
	switch i {
	case ISAX8664:
		return "x86_64"
	case ISAAArch64:
		return "aarch64"
	default:
		return "invalid"
	}
}

// PointerBytes returns the native pointer width of the instruction set.
func (i ISA) PointerBytes() uint32 {
	switch i {
	case ISAX8664, ISAAArch64:
		return 8
	default:
		return 0
	}
}

// OptLevel selects the optimization tier requested from the code
// generation engine.
type OptLevel uint8

const (
	// OptNone minimises compile time by disabling most optimizations.
	OptNone OptLevel = iota
	// OptSpeed generates the fastest possible code.
	OptSpeed
	// OptSpeedAndSize is like OptSpeed but also reduces code size.
	OptSpeedAndSize
)

func (o OptLevel) String() string {
	switch o {
	case OptNone:
		return "none"
	case OptSpeed:
		return "speed"
	case OptSpeedAndSize:
		return "speed_and_size"
	default:
		return "unknown"
	}
}

// TLSModel is the addressing scheme used for thread-local data symbols.
type TLSModel uint8

const (
	// TLSNone disables thread-local addressing. JIT configurations use
	// this: no TLS relocation is meaningful inside resident memory.
	TLSNone TLSModel = iota
	// TLSELFGeneralDynamic is the general-dynamic ELF model.
	TLSELFGeneralDynamic
	// TLSMachO is the Mach-O model.
	TLSMachO
	// TLSCOFF is the COFF model.
	TLSCOFF
)

func (m TLSModel) String() string {
	switch m {
	case TLSNone:
		return "none"
	case TLSELFGeneralDynamic:
		return "elf_gd"
	case TLSMachO:
		return "macho"
	case TLSCOFF:
		return "coff"
	default:
		return "unknown"
	}
}

// Mode distinguishes the two artifact lifecycles a configuration serves.
type Mode uint8

const (
	ModeJIT Mode = iota
	ModeObject
)

func (m Mode) String() string {
	if m == ModeJIT {
		return "jit"
	}
	return "object"
}

// Config is a fully-specified target configuration. It is immutable once
// resolved; a Module built on top of it keeps it for its whole lifetime.
//
// PIC, PreserveFramePointers, EnableAtomics and ColocatedCalls carry the
// fixed policy shared by both modes: position-independent code is required,
// frame pointers are kept so stack walkers need no side tables, atomics are
// always available, and same-unit call addressing is disabled to keep
// generated references uniform.
type Config struct {
	Mode   Mode
	ISA    ISA
	Triple string

	PIC                   bool
	Opt                   OptLevel
	TLS                   TLSModel
	EnableAtomics         bool
	PreserveFramePointers bool
	ColocatedCalls        bool
}
