package emit

import "errors"

// Declaration and definition failures are returned to the caller and do
// not poison the module: a corrected call may be retried. Finalization
// and configuration failures are terminal for the module.
var (
	// ErrDuplicateIncompatible means a name was re-declared with a
	// different signature or an incompatible linkage.
	ErrDuplicateIncompatible = errors.New("symbol already declared with incompatible signature or linkage")

	// ErrUndeclared means a definition referenced a symbol that was
	// never declared on this module.
	ErrUndeclared = errors.New("symbol was not declared on this module")

	// ErrRedefinition means a symbol was defined twice.
	ErrRedefinition = errors.New("symbol is already defined")

	// ErrDefiningImport means a definition was attempted for an
	// import-linkage symbol. Imports resolve to an external provider at
	// link time and are never defined locally.
	ErrDefiningImport = errors.New("import symbols cannot be defined locally")

	// ErrInvalidDataLayout means a data definition had zero size or a
	// non-power-of-two alignment.
	ErrInvalidDataLayout = errors.New("invalid data size or alignment")

	// ErrAlreadyFinalized means the module was finalized and accepts no
	// further declarations, definitions, or finalize calls.
	ErrAlreadyFinalized = errors.New("module is already finalized")

	// ErrUnresolvedImport means a JIT finalize found an import symbol
	// with no address in the module's external symbol table.
	ErrUnresolvedImport = errors.New("import symbol has no registered address")
)
