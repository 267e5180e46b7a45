package artifact

import (
	"anvil/internal/emit"
)

// FromFinalized wraps a finalized object-mode artifact into an on-disk
// envelope. JIT artifacts have no object payload and are rejected.
func FromFinalized(a *emit.Artifact) (*File, error) {
	object, err := a.Object()
	if err != nil {
		return nil, err
	}
	var exports, locals, imports []string
	for _, sym := range a.Symbols() {
		switch sym.Linkage {
		case emit.LinkageExport:
			exports = append(exports, sym.Name)
		case emit.LinkageLocal:
			locals = append(locals, sym.Name)
		case emit.LinkageImport:
			imports = append(imports, sym.Name)
		}
	}
	imports = append(imports, missing(imports, a.Unresolved())...)
	return New(a.Name(), a.Triple(), object, exports, locals, imports), nil
}

func missing(have, want []string) []string {
	seen := make(map[string]bool, len(have))
	for _, name := range have {
		seen[name] = true
	}
	var out []string
	for _, name := range want {
		if !seen[name] {
			out = append(out, name)
		}
	}
	return out
}
