package emit

import (
	"fmt"

	"anvil/internal/execmem"
	"anvil/internal/target"
)

// SymbolKind distinguishes functions from data objects in artifact
// queries.
type SymbolKind uint8

const (
	SymbolFunc SymbolKind = iota
	SymbolData
)

func (k SymbolKind) String() string {
	if k == SymbolFunc {
		return "func"
	}
	return "data"
}

// SymbolInfo describes one symbol of a finalized artifact.
type SymbolInfo struct {
	Name    string
	Kind    SymbolKind
	Linkage Linkage
}

// Artifact is the finalized output of one module. In JIT mode it exposes
// callable and readable addresses backed by mapped memory; in object
// mode it exposes the relocatable object bytes and the import symbols
// the external linker must satisfy.
type Artifact struct {
	mode    target.Mode
	name    string
	triple  string
	symbols []SymbolInfo

	// JIT mode.
	text      *execmem.Mapping
	rwData    *execmem.Mapping
	roData    *execmem.Mapping
	funcAddrs map[string]uintptr
	dataAddrs map[string]uintptr
	dataViews map[string][]byte

	// Object mode.
	object     []byte
	unresolved []string
}

// Mode reports which lifecycle produced the artifact.
func (a *Artifact) Mode() target.Mode { return a.mode }

// Name returns the module name the artifact was finalized from.
func (a *Artifact) Name() string { return a.name }

// Triple returns the target triple of the artifact.
func (a *Artifact) Triple() string { return a.triple }

// Symbols lists the artifact's symbols in layout order.
func (a *Artifact) Symbols() []SymbolInfo { return a.symbols }

// FunctionAddr resolves a defined Local/Export function to its
// executable address. Valid only for JIT artifacts.
func (a *Artifact) FunctionAddr(name string) (uintptr, error) {
	if a.mode != target.ModeJIT {
		return 0, fmt.Errorf("function address of %q: artifact is not executable in-process", name)
	}
	addr, ok := a.funcAddrs[name]
	if !ok {
		return 0, fmt.Errorf("function address: %q: %w", name, ErrUndeclared)
	}
	return addr, nil
}

// DataAddr resolves a defined data symbol to its mapped address. Valid
// only for JIT artifacts.
func (a *Artifact) DataAddr(name string) (uintptr, error) {
	if a.mode != target.ModeJIT {
		return 0, fmt.Errorf("data address of %q: artifact is not resident in-process", name)
	}
	addr, ok := a.dataAddrs[name]
	if !ok {
		return 0, fmt.Errorf("data address: %q: %w", name, ErrUndeclared)
	}
	return addr, nil
}

// DataBytes returns the live mapped content of a defined data symbol.
// Writable symbols reflect in-body stores; read-only symbols are backed
// by pages the artifact has sealed against writes.
func (a *Artifact) DataBytes(name string) ([]byte, error) {
	if a.mode != target.ModeJIT {
		return nil, fmt.Errorf("data bytes of %q: artifact is not resident in-process", name)
	}
	view, ok := a.dataViews[name]
	if !ok {
		return nil, fmt.Errorf("data bytes: %q: %w", name, ErrUndeclared)
	}
	return view, nil
}

// Object returns the relocatable object bytes of an object-mode
// artifact.
func (a *Artifact) Object() ([]byte, error) {
	if a.mode != target.ModeObject {
		return nil, fmt.Errorf("artifact %q has no object representation", a.name)
	}
	return a.object, nil
}

// Unresolved lists the import symbols the external linker must provide,
// sorted by name. Empty for self-contained objects.
func (a *Artifact) Unresolved() []string { return a.unresolved }

// Close releases the executable and data mappings of a JIT artifact.
// Addresses obtained from the artifact are invalid afterwards. Object
// artifacts hold no resources and Close is a no-op for them.
func (a *Artifact) Close() error {
	var first error
	for _, m := range []*execmem.Mapping{a.text, a.rwData, a.roData} {
		if m == nil {
			continue
		}
		if err := m.Close(); err != nil && first == nil {
			first = err
		}
	}
	a.text, a.rwData, a.roData = nil, nil, nil
	return first
}
