package emit

import (
	"anvil/internal/codegen"
	"anvil/internal/ir"
)

// Linkage is the visibility and resolution policy of a symbol.
type Linkage uint8

const (
	// LinkageLocal symbols are visible only within the module.
	LinkageLocal Linkage = iota
	// LinkageExport symbols are visible to the external linker and to
	// artifact queries.
	LinkageExport
	// LinkageImport symbols are defined externally and resolved at link
	// time (object mode) or from the module's symbol table (JIT mode).
	LinkageImport
)

func (l Linkage) String() string {
	switch l {
	case LinkageLocal:
		return "local"
	case LinkageExport:
		return "export"
	case LinkageImport:
		return "import"
	default:
		return "unknown"
	}
}

// compatible reports whether re-declaring a symbol with linkage n is
// acceptable for a symbol first declared with linkage l. Only an exact
// match is accepted: the upstream behavior for linkage merges is
// unspecified, so anything else is treated as a fatal incompatibility.
func (l Linkage) compatible(n Linkage) bool { return l == n }

// FuncSymbol is a function in the module's symbol table. Identity is the
// pointer: idempotent re-declaration returns the same *FuncSymbol.
// Immutable after definition.
type FuncSymbol struct {
	ID      uint32
	Name    string
	Linkage Linkage
	Sig     ir.Signature

	defined  bool
	compiled *codegen.Compiled
}

// Defined reports whether a body has been attached.
func (f *FuncSymbol) Defined() bool { return f.defined }

// DataSymbol is a data object in the module's symbol table. Import
// symbols carry no content; zero-initialized symbols carry a size only.
type DataSymbol struct {
	ID          uint32
	Name        string
	Linkage     Linkage
	Writable    bool
	ThreadLocal bool

	defined bool
	init    []byte // nil for zero-initialized definitions
	size    uint64
	align   uint64
}

// Defined reports whether content (or a zero-initialized extent) has
// been attached.
func (d *DataSymbol) Defined() bool { return d.defined }

// Size returns the defined byte extent.
func (d *DataSymbol) Size() uint64 { return d.size }

// Align returns the defined alignment.
func (d *DataSymbol) Align() uint64 { return d.align }
