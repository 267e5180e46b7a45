package emit

import (
	"anvil/internal/elfobj"
	"anvil/internal/target"
)

// objectBackend finalizes a module into a relocatable ELF object for
// the configured cross target. Imports stay unresolved and are
// reported alongside the bytes for the link step.
type objectBackend struct{}

func (objectBackend) finalize(m *Module) (*Artifact, error) {
	file := elfobj.File{
		ISA:     m.cfg.ISA,
		Imports: m.imports(),
	}

	art := &Artifact{
		mode:       target.ModeObject,
		name:       m.name,
		triple:     m.cfg.Triple,
		unresolved: file.Imports,
	}
	for _, f := range m.sortedFuncs() {
		file.Funcs = append(file.Funcs, elfobj.Func{
			Name:   f.Name,
			Global: f.Linkage == LinkageExport,
			Code:   f.compiled.Code,
			Align:  f.compiled.Align,
			Relocs: f.compiled.Relocs,
		})
		art.symbols = append(art.symbols, SymbolInfo{Name: f.Name, Kind: SymbolFunc, Linkage: f.Linkage})
	}
	for _, d := range m.sortedData() {
		file.Data = append(file.Data, elfobj.Data{
			Name:        d.Name,
			Global:      d.Linkage == LinkageExport,
			Writable:    d.Writable,
			ThreadLocal: d.ThreadLocal,
			Init:        d.init,
			Size:        d.size,
			Align:       d.align,
		})
		art.symbols = append(art.symbols, SymbolInfo{Name: d.Name, Kind: SymbolData, Linkage: d.Linkage})
	}

	obj, err := file.Encode()
	if err != nil {
		return nil, err
	}
	art.object = obj
	return art, nil
}
