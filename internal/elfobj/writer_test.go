package elfobj

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"testing"

	"anvil/internal/codegen"
	"anvil/internal/target"
)

func sampleFile() *File {
	return &File{
		ISA: target.ISAX8664,
		Funcs: []Func{
			{
				Name:   "helper",
				Global: false,
				Code:   []byte{0x8d, 0x87, 0x0b, 0x00, 0x00, 0x00, 0xc3},
				Align:  16,
			},
			{
				Name:   "main",
				Global: true,
				Code:   []byte{0xbf, 0x0d, 0, 0, 0, 0xe8, 0, 0, 0, 0, 0xc3},
				Align:  16,
				Relocs: []codegen.Reloc{
					{Kind: codegen.RelocCallPC32, Offset: 6, Symbol: "add", Addend: -4},
				},
			},
		},
		Data: []Data{
			{Name: "number0", Global: false, Init: []byte{11, 0, 0, 0}, Size: 4, Align: 4},
			{Name: "number1", Global: true, Writable: true, Init: []byte{13, 0, 0, 0}, Size: 4, Align: 4},
			{Name: "scratch", Global: false, Writable: true, Size: 16, Align: 8},
			{Name: "counter", Global: true, Writable: true, ThreadLocal: true, Init: []byte{1, 0, 0, 0}, Size: 4, Align: 4},
		},
		Imports: []string{"add"},
	}
}

func parse(t *testing.T, obj []byte) *elf.File {
	t.Helper()
	f, err := elf.NewFile(bytes.NewReader(obj))
	if err != nil {
		t.Fatalf("emitted object does not parse: %v", err)
	}
	return f
}

func TestEncodeParses(t *testing.T) {
	obj, err := sampleFile().Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	f := parse(t, obj)
	defer func() {
		_ = f.Close()
	}()

	if f.Type != elf.ET_REL {
		t.Fatalf("type = %v, want ET_REL", f.Type)
	}
	if f.Machine != elf.EM_X86_64 {
		t.Fatalf("machine = %v, want EM_X86_64", f.Machine)
	}
	if f.Class != elf.ELFCLASS64 || f.Data != elf.ELFDATA2LSB {
		t.Fatalf("class/data = %v/%v, want 64-bit little-endian", f.Class, f.Data)
	}

	for _, name := range []string{".text", ".rodata", ".data", ".bss", ".tdata", ".rela.text", ".symtab", ".strtab"} {
		if f.Section(name) == nil {
			t.Errorf("missing section %s", name)
		}
	}
	if sec := f.Section(".tdata"); sec != nil && sec.Flags&elf.SHF_TLS == 0 {
		t.Errorf(".tdata lacks SHF_TLS")
	}
	if sec := f.Section(".bss"); sec != nil {
		if sec.Type != elf.SHT_NOBITS {
			t.Errorf(".bss type = %v, want SHT_NOBITS", sec.Type)
		}
		if sec.Size != 16 {
			t.Errorf(".bss size = %d, want 16", sec.Size)
		}
	}
}

func TestEncodeSymbols(t *testing.T) {
	obj, err := sampleFile().Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	f := parse(t, obj)
	defer func() {
		_ = f.Close()
	}()

	syms, err := f.Symbols()
	if err != nil {
		t.Fatalf("Symbols: %v", err)
	}
	byName := make(map[string]elf.Symbol, len(syms))
	sawGlobal := false
	for _, s := range syms {
		byName[s.Name] = s
		bind := elf.ST_BIND(s.Info)
		if bind == elf.STB_LOCAL && sawGlobal {
			t.Errorf("local symbol %q after a global one", s.Name)
		}
		if bind == elf.STB_GLOBAL {
			sawGlobal = true
		}
	}

	mainSym, ok := byName["main"]
	if !ok {
		t.Fatalf("main symbol missing")
	}
	if elf.ST_BIND(mainSym.Info) != elf.STB_GLOBAL || elf.ST_TYPE(mainSym.Info) != elf.STT_FUNC {
		t.Errorf("main info = %#x", mainSym.Info)
	}
	if mainSym.Size != 11 {
		t.Errorf("main size = %d, want 11", mainSym.Size)
	}

	helper, ok := byName["helper"]
	if !ok {
		t.Fatalf("helper symbol missing")
	}
	if elf.ST_BIND(helper.Info) != elf.STB_LOCAL {
		t.Errorf("helper should be local, info = %#x", helper.Info)
	}

	counter, ok := byName["counter"]
	if !ok {
		t.Fatalf("counter symbol missing")
	}
	if elf.ST_TYPE(counter.Info) != elf.STT_TLS {
		t.Errorf("counter should be STT_TLS, info = %#x", counter.Info)
	}

	add, ok := byName["add"]
	if !ok {
		t.Fatalf("add import missing")
	}
	if add.Section != elf.SHN_UNDEF {
		t.Errorf("add should be undefined, section = %v", add.Section)
	}
}

func TestEncodeRelocations(t *testing.T) {
	obj, err := sampleFile().Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	f := parse(t, obj)
	defer func() {
		_ = f.Close()
	}()

	sec := f.Section(".rela.text")
	if sec == nil {
		t.Fatalf(".rela.text missing")
	}
	raw, err := sec.Data()
	if err != nil {
		t.Fatalf("read .rela.text: %v", err)
	}
	entsize := binary.Size(elf.Rela64{})
	if len(raw) != entsize {
		t.Fatalf(".rela.text holds %d bytes, want one %d-byte entry", len(raw), entsize)
	}
	var rela elf.Rela64
	if err := binary.Read(bytes.NewReader(raw), binary.LittleEndian, &rela); err != nil {
		t.Fatalf("decode rela: %v", err)
	}

	if got := elf.R_X86_64(elf.R_TYPE64(rela.Info)); got != elf.R_X86_64_PLT32 {
		t.Errorf("reloc type = %v, want R_X86_64_PLT32", got)
	}
	if rela.Addend != -4 {
		t.Errorf("addend = %d, want -4", rela.Addend)
	}
	// helper occupies the first 7 bytes of .text; main starts at the
	// next 16-byte boundary, so the call displacement sits at 16+6.
	if rela.Off != 22 {
		t.Errorf("reloc offset = %d, want 22", rela.Off)
	}

	syms, err := f.Symbols()
	if err != nil {
		t.Fatalf("Symbols: %v", err)
	}
	// debug/elf drops the null entry, so table indices are one-based
	// against this slice.
	idx := elf.R_SYM64(rela.Info)
	if idx == 0 || int(idx) > len(syms) {
		t.Fatalf("reloc symbol index %d out of range", idx)
	}
	if name := syms[idx-1].Name; name != "add" {
		t.Errorf("reloc target = %q, want add", name)
	}
}

func TestEncodeDeterministic(t *testing.T) {
	a, err := sampleFile().Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	b, err := sampleFile().Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Fatalf("two encodings of the same file differ")
	}
}

func TestRelocTypeMapping(t *testing.T) {
	cases := []struct {
		machine elf.Machine
		kind    codegen.RelocKind
		want    uint32
	}{
		{elf.EM_X86_64, codegen.RelocCallPC32, uint32(elf.R_X86_64_PLT32)},
		{elf.EM_X86_64, codegen.RelocPC32, uint32(elf.R_X86_64_PC32)},
		{elf.EM_X86_64, codegen.RelocAbs64, uint32(elf.R_X86_64_64)},
		{elf.EM_X86_64, codegen.RelocTLSGD, uint32(elf.R_X86_64_TLSGD)},
		{elf.EM_AARCH64, codegen.RelocCallPC32, uint32(elf.R_AARCH64_CALL26)},
		{elf.EM_AARCH64, codegen.RelocPC32, uint32(elf.R_AARCH64_PREL32)},
		{elf.EM_AARCH64, codegen.RelocAbs64, uint32(elf.R_AARCH64_ABS64)},
		{elf.EM_AARCH64, codegen.RelocTLSGD, uint32(elf.R_AARCH64_TLSGD_ADR_PAGE21)},
	}
	for _, tc := range cases {
		got, err := relocType(tc.machine, tc.kind)
		if err != nil {
			t.Errorf("relocType(%v, %v): %v", tc.machine, tc.kind, err)
			continue
		}
		if got != tc.want {
			t.Errorf("relocType(%v, %v) = %d, want %d", tc.machine, tc.kind, got, tc.want)
		}
	}
}

func TestEncodeZeroDataLargeAlignment(t *testing.T) {
	f := &File{
		ISA: target.ISAX8664,
		Funcs: []Func{
			{Name: "main", Global: true, Code: []byte{0x31, 0xc0, 0xc3}, Align: 16},
		},
		Data: []Data{
			{Name: "number", Global: false, Init: []byte{11, 0, 0, 0}, Size: 4, Align: 4},
			{Name: "arena", Global: true, Writable: true, Size: 4, Align: 16},
		},
	}
	obj, err := f.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	ef := parse(t, obj)
	defer func() {
		_ = ef.Close()
	}()

	sec := ef.Section(".bss")
	if sec == nil {
		t.Fatal("missing .bss section")
	}
	if sec.Type != elf.SHT_NOBITS {
		t.Errorf(".bss type = %v, want SHT_NOBITS", sec.Type)
	}
	if sec.Size != 4 || sec.Addralign != 16 {
		t.Errorf(".bss size/align = %d/%d, want 4/16", sec.Size, sec.Addralign)
	}

	// Sections after .bss must still be readable at their recorded
	// offsets: a NOBITS section occupies no file bytes.
	syms, err := ef.Symbols()
	if err != nil {
		t.Fatalf("symbol table unreadable: %v", err)
	}
	found := false
	for _, s := range syms {
		if s.Name == "arena" {
			found = true
			if s.Size != 4 {
				t.Errorf("arena size = %d, want 4", s.Size)
			}
		}
	}
	if !found {
		t.Fatal("arena not present in symbol table")
	}
}

func TestEncodeTextAlignment(t *testing.T) {
	f := &File{
		ISA: target.ISAX8664,
		Funcs: []Func{
			{Name: "first", Global: true, Code: []byte{0xc3}, Align: 16},
			{Name: "second", Global: true, Code: []byte{0x31, 0xc0, 0xc3}, Align: 64},
		},
	}
	obj, err := f.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	ef := parse(t, obj)
	defer func() {
		_ = ef.Close()
	}()

	sec := ef.Section(".text")
	if sec == nil {
		t.Fatal("missing .text section")
	}
	if sec.Addralign != 64 {
		t.Errorf(".text align = %d, want 64", sec.Addralign)
	}
	syms, err := ef.Symbols()
	if err != nil {
		t.Fatalf("symbols: %v", err)
	}
	for _, s := range syms {
		if s.Name == "second" && s.Value != 64 {
			t.Errorf("second placed at %d, want 64", s.Value)
		}
	}
}
