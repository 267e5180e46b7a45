// Package ir holds the function-body vocabulary shared between the
// instruction-emission front end and the code generation engine: typed
// values, basic blocks with block parameters, stack slots, and the
// reusable builder scratch state owned by a generation module.
//
// The package intentionally defines no lowering. Instruction selection
// and register allocation belong to the engine consuming these bodies.
package ir

// Type is the type of an SSA value.
type Type uint8

const (
	TypeInvalid Type = iota
	I8
	I16
	I32
	I64
	F32
	F64
	// Ptr is the native pointer type of the target configuration. All
	// supported ISAs are 64-bit, so it occupies eight bytes.
	Ptr
)

// Bytes returns the storage size of the type.
func (t Type) Bytes() uint32 {
	switch t {
	case I8:
		return 1
	case I16:
		return 2
	case I32, F32:
		return 4
	case I64, F64, Ptr:
		return 8
	default:
		return 0
	}
}

func (t Type) String() string {
	switch t {
	case I8:
		return "i8"
	case I16:
		return "i16"
	case I32:
		return "i32"
	case I64:
		return "i64"
	case F32:
		return "f32"
	case F64:
		return "f64"
	case Ptr:
		return "ptr"
	default:
		return "invalid"
	}
}

// CallConv selects the calling convention of a signature.
type CallConv uint8

const (
	// CallConvSystemV is the System V convention used on the supported
	// platforms. It is the default for a zero Signature.
	CallConvSystemV CallConv = iota
)

// Signature describes ordered parameter and result types plus the calling
// convention of a function.
type Signature struct {
	Params  []Type
	Results []Type
	Conv    CallConv
}

// Equal reports whether two signatures are interchangeable.
func (s Signature) Equal(o Signature) bool {
	if s.Conv != o.Conv || len(s.Params) != len(o.Params) || len(s.Results) != len(o.Results) {
		return false
	}
	for i, p := range s.Params {
		if o.Params[i] != p {
			return false
		}
	}
	for i, r := range s.Results {
		if o.Results[i] != r {
			return false
		}
	}
	return true
}

// Cond is an integer comparison condition.
type Cond uint8

const (
	CondEqual Cond = iota
	CondNotEqual
	CondSignedLess
	CondSignedGreater
	CondSignedLessOrEqual
	CondSignedGreaterOrEqual
)
