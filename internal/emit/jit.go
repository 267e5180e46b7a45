package emit

import (
	"encoding/binary"
	"fmt"

	"fortio.org/safecast"

	"anvil/internal/codegen"
	"anvil/internal/execmem"
	"anvil/internal/target"
)

// jitBackend finalizes a module into resident executable memory. Import
// symbols resolve against the address table supplied at construction;
// the JIT configuration disables the TLS model, so thread-local symbols
// are laid out as ordinary process data.
type jitBackend struct {
	symbols map[string]uintptr
}

func (b *jitBackend) finalize(m *Module) (*Artifact, error) {
	funcs := m.sortedFuncs()
	data := m.sortedData()

	funcOff := make(map[string]int, len(funcs))
	textSize := 0
	for _, f := range funcs {
		align := int(f.compiled.Align)
		if align < 16 {
			align = 16
		}
		textSize = alignUpInt(textSize, align)
		funcOff[f.Name] = textSize
		textSize += len(f.compiled.Code)
	}

	rwOff := make(map[string]int)
	roOff := make(map[string]int)
	rwSize, roSize := 0, 0
	for _, d := range data {
		align, err := safecast.Conv[int](d.align)
		if err != nil {
			return nil, fmt.Errorf("data %q: %w", d.Name, ErrInvalidDataLayout)
		}
		size, err := safecast.Conv[int](d.size)
		if err != nil {
			return nil, fmt.Errorf("data %q: %w", d.Name, ErrInvalidDataLayout)
		}
		if d.Writable {
			rwSize = alignUpInt(rwSize, align)
			rwOff[d.Name] = rwSize
			rwSize += size
		} else {
			roSize = alignUpInt(roSize, align)
			roOff[d.Name] = roSize
			roSize += size
		}
	}

	art := &Artifact{
		mode:      target.ModeJIT,
		name:      m.name,
		triple:    m.cfg.Triple,
		funcAddrs: make(map[string]uintptr, len(funcs)),
		dataAddrs: make(map[string]uintptr, len(data)),
		dataViews: make(map[string][]byte, len(data)),
	}
	fail := func(err error) (*Artifact, error) {
		_ = art.Close()
		return nil, err
	}

	var err error
	if textSize > 0 {
		if art.text, err = execmem.Alloc(textSize); err != nil {
			return fail(err)
		}
	}
	if rwSize > 0 {
		if art.rwData, err = execmem.Alloc(rwSize); err != nil {
			return fail(err)
		}
	}
	if roSize > 0 {
		if art.roData, err = execmem.Alloc(roSize); err != nil {
			return fail(err)
		}
	}

	for _, d := range data {
		var base *execmem.Mapping
		var off int
		if d.Writable {
			base, off = art.rwData, rwOff[d.Name]
		} else {
			base, off = art.roData, roOff[d.Name]
		}
		view := base.Bytes()[off : off+int(d.size)]
		copy(view, d.init)
		art.dataAddrs[d.Name] = base.Addr() + uintptr(off)
		art.dataViews[d.Name] = view
		art.symbols = append(art.symbols, SymbolInfo{Name: d.Name, Kind: SymbolData, Linkage: d.Linkage})
	}

	resolve := func(name string) (uintptr, error) {
		if off, ok := funcOff[name]; ok {
			return art.text.Addr() + uintptr(off), nil
		}
		if addr, ok := art.dataAddrs[name]; ok {
			return addr, nil
		}
		if addr, ok := b.symbols[name]; ok {
			return addr, nil
		}
		return 0, fmt.Errorf("%q: %w", name, ErrUnresolvedImport)
	}

	for _, f := range funcs {
		off := funcOff[f.Name]
		code := art.text.Bytes()[off : off+len(f.compiled.Code)]
		copy(code, f.compiled.Code)
		addr := art.text.Addr() + uintptr(off)
		for _, rel := range f.compiled.Relocs {
			if err := applyReloc(code, addr, rel, resolve); err != nil {
				return fail(fmt.Errorf("function %q: %w", f.Name, err))
			}
		}
		art.funcAddrs[f.Name] = addr
		art.symbols = append(art.symbols, SymbolInfo{Name: f.Name, Kind: SymbolFunc, Linkage: f.Linkage})
	}

	if art.text != nil {
		if err := art.text.SealExecutable(); err != nil {
			return fail(err)
		}
	}
	if art.roData != nil {
		if err := art.roData.SealReadOnly(); err != nil {
			return fail(err)
		}
	}
	return art, nil
}

// applyReloc patches one site in place. PC-relative kinds follow ELF
// semantics: value = S + A - P, where P is the address of the patched
// field itself.
func applyReloc(code []byte, base uintptr, rel codegen.Reloc, resolve func(string) (uintptr, error)) error {
	s, err := resolve(rel.Symbol)
	if err != nil {
		return err
	}
	site := int(rel.Offset)
	switch rel.Kind {
	case codegen.RelocCallPC32, codegen.RelocPC32:
		if site+4 > len(code) {
			return fmt.Errorf("relocation site %d out of range", site)
		}
		p := base + uintptr(site)
		delta, err := safecast.Conv[int32](int64(s) + rel.Addend - int64(p))
		if err != nil {
			return fmt.Errorf("relocation for %q out of 32-bit range", rel.Symbol)
		}
		binary.LittleEndian.PutUint32(code[site:], uint32(delta))
	case codegen.RelocAbs64:
		if site+8 > len(code) {
			return fmt.Errorf("relocation site %d out of range", site)
		}
		binary.LittleEndian.PutUint64(code[site:], uint64(int64(s)+rel.Addend))
	case codegen.RelocTLSGD:
		return fmt.Errorf("TLS relocation for %q is not meaningful in-process", rel.Symbol)
	default:
		return fmt.Errorf("unknown relocation kind %v", rel.Kind)
	}
	return nil
}

func alignUpInt(x, align int) int {
	if align <= 1 {
		return x
	}
	return (x + align - 1) &^ (align - 1)
}
