// Package codegen defines the contract with the code generation engine:
// given a completed function body and a target configuration, the engine
// returns machine code bytes plus the relocations the module backends
// must resolve. Instruction selection and register allocation live
// entirely behind this interface.
package codegen

import (
	"fmt"

	"anvil/internal/ir"
	"anvil/internal/target"
)

// RelocKind identifies how a relocation site is patched.
type RelocKind uint8

const (
	// RelocCallPC32 is a 32-bit PC-relative call displacement. The
	// patched value is target - (site + 4) + addend.
	RelocCallPC32 RelocKind = iota
	// RelocPC32 is a 32-bit PC-relative data reference (RIP-relative
	// addressing on x86-64).
	RelocPC32
	// RelocAbs64 is a 64-bit absolute address.
	RelocAbs64
	// RelocTLSGD is a general-dynamic TLS reference. Only meaningful for
	// object-mode configurations; JIT configurations never request it.
	RelocTLSGD
)

func (k RelocKind) String() string {
	switch k {
	case RelocCallPC32:
		return "call_pc32"
	case RelocPC32:
		return "pc32"
	case RelocAbs64:
		return "abs64"
	case RelocTLSGD:
		return "tls_gd"
	default:
		return "unknown"
	}
}

// Reloc is one patch site inside compiled code, keyed by symbol name.
type Reloc struct {
	Kind   RelocKind
	Offset uint32
	Symbol string
	Addend int64
}

// Compiled is the machine code of one function.
type Compiled struct {
	Code   []byte
	Align  uint32
	Relocs []Reloc
}

// Engine performs instruction selection, register allocation and code
// emission for one target configuration. Implementations must be safe for
// sequential reuse across functions; they are not required to be safe for
// concurrent use.
type Engine interface {
	Compile(fn *ir.Function, cfg *target.Config) (*Compiled, error)
}

// Error wraps a failure reported by the engine for one function. It is
// non-recoverable for that function; the module propagates it unchanged.
type Error struct {
	Func string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("codegen failed for %q: %v", e.Func, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
