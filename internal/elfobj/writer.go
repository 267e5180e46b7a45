// Package elfobj serializes compiled functions and data definitions
// into an ELF relocatable object (ET_REL) suitable for a system linker.
package elfobj

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"fmt"

	"fortio.org/safecast"

	"anvil/internal/codegen"
	"anvil/internal/target"
)

// Func is one defined function body.
type Func struct {
	Name   string
	Global bool
	Code   []byte
	Align  uint32
	Relocs []codegen.Reloc
}

// Data is one defined data symbol. A nil Init places the symbol in a
// NOBITS section (.bss or .tbss).
type Data struct {
	Name        string
	Global      bool
	Writable    bool
	ThreadLocal bool
	Init        []byte
	Size        uint64
	Align       uint64
}

// File describes a full object. Imports lists symbols the object
// references but does not define; they become undefined globals.
type File struct {
	ISA     target.ISA
	Funcs   []Func
	Data    []Data
	Imports []string
}

type symPlace struct {
	section string
	off     uint64
	size    uint64
}

type section struct {
	name    string
	typ     elf.SectionType
	flags   elf.SectionFlag
	body    []byte
	size    uint64 // NOBITS size when body is nil
	align   uint64
	link    uint32
	info    uint32
	entsize uint64
}

// Encode produces the object bytes. Output is deterministic for a
// given File; callers sort symbols before calling if they need
// declaration-order independence.
func (f *File) Encode() ([]byte, error) {
	machine, err := machineFor(f.ISA)
	if err != nil {
		return nil, err
	}

	place := make(map[string]symPlace, len(f.Funcs)+len(f.Data))

	var text bytes.Buffer
	textAlign := uint64(16)
	for i := range f.Funcs {
		fn := &f.Funcs[i]
		align := uint64(fn.Align)
		if align < 16 {
			align = 16
		}
		if align > textAlign {
			textAlign = align
		}
		padTo(&text, align)
		place[fn.Name] = symPlace{".text", uint64(text.Len()), uint64(len(fn.Code))}
		text.Write(fn.Code)
	}

	progbits := map[string]*bytes.Buffer{
		".rodata": new(bytes.Buffer),
		".data":   new(bytes.Buffer),
		".tdata":  new(bytes.Buffer),
	}
	nobits := map[string]uint64{".bss": 0, ".tbss": 0}
	sectAlign := map[string]uint64{".text": textAlign}
	for i := range f.Data {
		d := &f.Data[i]
		name := dataSection(d)
		align := d.Align
		if align == 0 {
			align = 1
		}
		if align > sectAlign[name] {
			sectAlign[name] = align
		}
		if buf, ok := progbits[name]; ok {
			padTo(buf, align)
			place[d.Name] = symPlace{name, uint64(buf.Len()), d.Size}
			n := buf.Len()
			buf.Write(d.Init)
			for uint64(buf.Len()-n) < d.Size {
				buf.WriteByte(0)
			}
		} else {
			off := alignUp(nobits[name], align)
			place[d.Name] = symPlace{name, off, d.Size}
			nobits[name] = off + d.Size
		}
	}

	// Symbol table: null entry, then defined locals, then defined
	// globals, then undefined imports. sh_info marks the first
	// non-local entry.
	strs := newStringTable()
	var syms []elf.Sym64
	symIndex := make(map[string]uint32)
	syms = append(syms, elf.Sym64{}) // index 0 reserved

	// Shndx cannot be filled in yet because section indices depend on
	// which sections end up non-empty; symSect carries the section
	// name per entry until assembly.
	symSect := []string{""}
	appendSym := func(name string, bind elf.SymBind, typ elf.SymType, pl symPlace) {
		symIndex[name] = uint32(len(syms))
		syms = append(syms, elf.Sym64{
			Name:  strs.add(name),
			Info:  stInfo(bind, typ),
			Value: pl.off,
			Size:  pl.size,
		})
		symSect = append(symSect, pl.section)
	}

	for pass := 0; pass < 2; pass++ {
		global := pass == 1
		for i := range f.Funcs {
			fn := &f.Funcs[i]
			if fn.Global != global {
				continue
			}
			appendSym(fn.Name, bindFor(global), elf.STT_FUNC, place[fn.Name])
		}
		for i := range f.Data {
			d := &f.Data[i]
			if d.Global != global {
				continue
			}
			typ := elf.STT_OBJECT
			if d.ThreadLocal {
				typ = elf.STT_TLS
			}
			appendSym(d.Name, bindFor(global), typ, place[d.Name])
		}
	}
	firstGlobal := uint32(1)
	for i := 1; i < len(syms); i++ {
		if elf.ST_BIND(syms[i].Info) != elf.STB_LOCAL {
			firstGlobal = uint32(i)
			break
		}
		firstGlobal = uint32(i + 1)
	}
	for _, name := range f.Imports {
		if _, ok := symIndex[name]; ok {
			continue
		}
		appendSym(name, elf.STB_GLOBAL, elf.STT_NOTYPE, symPlace{})
	}

	var relas []elf.Rela64
	for i := range f.Funcs {
		fn := &f.Funcs[i]
		base := place[fn.Name].off
		for _, rel := range fn.Relocs {
			idx, ok := symIndex[rel.Symbol]
			if !ok {
				// Referenced but neither defined nor declared.
				appendSym(rel.Symbol, elf.STB_GLOBAL, elf.STT_NOTYPE, symPlace{})
				idx = symIndex[rel.Symbol]
			}
			rtype, err := relocType(machine, rel.Kind)
			if err != nil {
				return nil, fmt.Errorf("function %q: %w", fn.Name, err)
			}
			relas = append(relas, elf.Rela64{
				Off:    base + uint64(rel.Offset),
				Info:   elf.R_INFO(idx, rtype),
				Addend: rel.Addend,
			})
		}
	}

	return assemble(machine, text.Bytes(), progbits, nobits, sectAlign, syms, symSect, firstGlobal, relas, strs)
}

func assemble(machine elf.Machine, text []byte, progbits map[string]*bytes.Buffer, nobits map[string]uint64, sectAlign map[string]uint64, syms []elf.Sym64, symSect []string, firstGlobal uint32, relas []elf.Rela64, strs *stringTable) ([]byte, error) {
	sections := []section{
		{}, // SHN_UNDEF
		{name: ".text", typ: elf.SHT_PROGBITS, flags: elf.SHF_ALLOC | elf.SHF_EXECINSTR, body: text, align: maxU64(sectAlign[".text"], 16)},
	}
	addProg := func(name string, flags elf.SectionFlag) {
		if buf := progbits[name]; buf.Len() > 0 {
			sections = append(sections, section{
				name: name, typ: elf.SHT_PROGBITS, flags: flags,
				body: buf.Bytes(), align: maxU64(sectAlign[name], 1),
			})
		}
	}
	addProg(".rodata", elf.SHF_ALLOC)
	addProg(".data", elf.SHF_ALLOC|elf.SHF_WRITE)
	addProg(".tdata", elf.SHF_ALLOC|elf.SHF_WRITE|elf.SHF_TLS)
	for _, name := range []string{".bss", ".tbss"} {
		if nobits[name] == 0 {
			continue
		}
		flags := elf.SHF_ALLOC | elf.SHF_WRITE
		if name == ".tbss" {
			flags |= elf.SHF_TLS
		}
		sections = append(sections, section{
			name: name, typ: elf.SHT_NOBITS, flags: flags,
			size: nobits[name], align: maxU64(sectAlign[name], 1),
		})
	}

	sectIndex := make(map[string]uint16, len(sections))
	for i, s := range sections {
		if s.name != "" {
			sectIndex[s.name] = uint16(i)
		}
	}
	for i := range syms {
		if name := symSect[i]; name != "" {
			syms[i].Shndx = sectIndex[name]
		}
	}

	var symtab bytes.Buffer
	for _, s := range syms {
		if err := binary.Write(&symtab, binary.LittleEndian, s); err != nil {
			return nil, err
		}
	}
	symtabIdx := uint32(len(sections))
	sections = append(sections, section{
		name: ".symtab", typ: elf.SHT_SYMTAB,
		body: symtab.Bytes(), align: 8,
		link: symtabIdx + 1, info: firstGlobal,
		entsize: uint64(binary.Size(elf.Sym64{})),
	})
	sections = append(sections, section{
		name: ".strtab", typ: elf.SHT_STRTAB, body: strs.bytes(), align: 1,
	})
	if len(relas) > 0 {
		var rela bytes.Buffer
		for _, r := range relas {
			if err := binary.Write(&rela, binary.LittleEndian, r); err != nil {
				return nil, err
			}
		}
		sections = append(sections, section{
			name: ".rela.text", typ: elf.SHT_RELA,
			body: rela.Bytes(), align: 8,
			link: symtabIdx, info: uint32(sectIndex[".text"]),
			entsize: uint64(binary.Size(elf.Rela64{})),
		})
	}

	shstr := newStringTable()
	nameOffs := make([]uint32, len(sections))
	for i, s := range sections {
		if s.name != "" {
			nameOffs[i] = shstr.add(s.name)
		}
	}
	shstrndx := len(sections)
	nameOffs = append(nameOffs, shstr.add(".shstrtab"))
	sections = append(sections, section{
		name: ".shstrtab", typ: elf.SHT_STRTAB, body: shstr.bytes(), align: 1,
	})

	hdrSize := uint64(binary.Size(elf.Header64{}))
	offs := make([]uint64, len(sections))
	cur := hdrSize
	for i, s := range sections {
		if s.typ == elf.SHT_NULL {
			continue
		}
		// NOBITS sections occupy no file bytes and must not disturb
		// the offsets of the sections after them.
		if s.body == nil {
			offs[i] = cur
			continue
		}
		cur = alignUp(cur, maxU64(s.align, 1))
		offs[i] = cur
		cur += uint64(len(s.body))
	}
	shoff := alignUp(cur, 8)

	shnum, err := safecast.Conv[uint16](len(sections))
	if err != nil {
		return nil, fmt.Errorf("too many sections: %d", len(sections))
	}
	hdr := elf.Header64{
		Ident: [16]byte{
			0x7f, 'E', 'L', 'F',
			byte(elf.ELFCLASS64), byte(elf.ELFDATA2LSB), byte(elf.EV_CURRENT),
		},
		Type:      uint16(elf.ET_REL),
		Machine:   uint16(machine),
		Version:   uint32(elf.EV_CURRENT),
		Shoff:     shoff,
		Ehsize:    uint16(hdrSize),
		Shentsize: uint16(binary.Size(elf.Section64{})),
		Shnum:     shnum,
		Shstrndx:  uint16(shstrndx),
	}

	var out bytes.Buffer
	if err := binary.Write(&out, binary.LittleEndian, hdr); err != nil {
		return nil, err
	}
	for i, s := range sections {
		if s.typ == elf.SHT_NULL || s.body == nil {
			continue
		}
		padTo(&out, maxU64(s.align, 1))
		if uint64(out.Len()) != offs[i] {
			return nil, fmt.Errorf("section %q: layout drift at %d, expected %d", s.name, out.Len(), offs[i])
		}
		out.Write(s.body)
	}
	padTo(&out, 8)
	for i, s := range sections {
		size := s.size
		if s.body != nil {
			size = uint64(len(s.body))
		}
		shdr := elf.Section64{
			Name:      nameOffs[i],
			Type:      uint32(s.typ),
			Flags:     uint64(s.flags),
			Off:       offs[i],
			Size:      size,
			Link:      s.link,
			Info:      s.info,
			Addralign: s.align,
			Entsize:   s.entsize,
		}
		if s.typ == elf.SHT_NULL {
			shdr = elf.Section64{}
		}
		if err := binary.Write(&out, binary.LittleEndian, shdr); err != nil {
			return nil, err
		}
	}
	return out.Bytes(), nil
}

func dataSection(d *Data) string {
	switch {
	case d.ThreadLocal && d.Init == nil:
		return ".tbss"
	case d.ThreadLocal:
		return ".tdata"
	case !d.Writable:
		return ".rodata"
	case d.Init == nil:
		return ".bss"
	default:
		return ".data"
	}
}

func machineFor(isa target.ISA) (elf.Machine, error) {
	switch isa {
	case target.ISAX8664:
		return elf.EM_X86_64, nil
	case target.ISAAArch64:
		return elf.EM_AARCH64, nil
	default:
		return elf.EM_NONE, fmt.Errorf("no ELF machine for ISA %v", isa)
	}
}

func relocType(machine elf.Machine, kind codegen.RelocKind) (uint32, error) {
	switch machine {
	case elf.EM_X86_64:
		switch kind {
		case codegen.RelocCallPC32:
			return uint32(elf.R_X86_64_PLT32), nil
		case codegen.RelocPC32:
			return uint32(elf.R_X86_64_PC32), nil
		case codegen.RelocAbs64:
			return uint32(elf.R_X86_64_64), nil
		case codegen.RelocTLSGD:
			return uint32(elf.R_X86_64_TLSGD), nil
		}
	case elf.EM_AARCH64:
		switch kind {
		case codegen.RelocCallPC32:
			return uint32(elf.R_AARCH64_CALL26), nil
		case codegen.RelocPC32:
			return uint32(elf.R_AARCH64_PREL32), nil
		case codegen.RelocAbs64:
			return uint32(elf.R_AARCH64_ABS64), nil
		case codegen.RelocTLSGD:
			return uint32(elf.R_AARCH64_TLSGD_ADR_PAGE21), nil
		}
	}
	return 0, fmt.Errorf("no relocation type for kind %v on %v", kind, machine)
}

func bindFor(global bool) elf.SymBind {
	if global {
		return elf.STB_GLOBAL
	}
	return elf.STB_LOCAL
}

func stInfo(bind elf.SymBind, typ elf.SymType) byte {
	return byte(bind)<<4 | byte(typ)&0xf
}

func alignUp(x, align uint64) uint64 {
	if align <= 1 {
		return x
	}
	return (x + align - 1) &^ (align - 1)
}

func maxU64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}

func padTo(buf *bytes.Buffer, align uint64) {
	for align > 1 && uint64(buf.Len())%align != 0 {
		buf.WriteByte(0)
	}
}
