package testkit

import (
	"encoding/binary"

	"anvil/internal/codegen"
)

// Hand-assembled x86-64 fragments used by module and link tests. All
// follow the System V calling convention: first argument in edi,
// second in esi, result in eax.

// ReturnConst32 is `mov eax, v; ret`.
func ReturnConst32(v int32) []byte {
	code := []byte{0xb8, 0, 0, 0, 0, 0xc3}
	binary.LittleEndian.PutUint32(code[1:], uint32(v))
	return code
}

// AddImm32 is `lea eax, [rdi + v]; ret`, an i32 -> i32 function adding
// a constant to its argument.
func AddImm32(v int32) []byte {
	code := []byte{0x8d, 0x87, 0, 0, 0, 0, 0xc3}
	binary.LittleEndian.PutUint32(code[2:], uint32(v))
	return code
}

// CallUnary builds `mov edi, arg; call callee; ret` with the call
// displacement left for relocation.
func CallUnary(callee string, arg int32) ([]byte, codegen.Reloc) {
	code := []byte{
		0xbf, 0, 0, 0, 0, // mov edi, arg
		0xe8, 0, 0, 0, 0, // call rel32
		0xc3,
	}
	binary.LittleEndian.PutUint32(code[1:], uint32(arg))
	return code, codegen.Reloc{Kind: codegen.RelocCallPC32, Offset: 6, Symbol: callee, Addend: -4}
}

// CallBinary builds `mov edi, a; mov esi, b; call callee; ret`.
func CallBinary(callee string, a, b int32) ([]byte, codegen.Reloc) {
	code := []byte{
		0xbf, 0, 0, 0, 0, // mov edi, a
		0xbe, 0, 0, 0, 0, // mov esi, b
		0xe8, 0, 0, 0, 0, // call rel32
		0xc3,
	}
	binary.LittleEndian.PutUint32(code[1:], uint32(a))
	binary.LittleEndian.PutUint32(code[6:], uint32(b))
	return code, codegen.Reloc{Kind: codegen.RelocCallPC32, Offset: 11, Symbol: callee, Addend: -4}
}

// DataCheckProgram builds a main body that verifies roSym holds
// roWant, then stores rwStore into rwSym and verifies the readback.
// Exit code 0 on success, 1 when the read-only check fails, 2 when the
// readback check fails. All data references are RIP-relative loads and
// stores against 32-bit values.
func DataCheckProgram(roSym string, roWant int32, rwSym string, rwStore int32) ([]byte, []codegen.Reloc) {
	code := []byte{
		0x8b, 0x05, 0, 0, 0, 0, // 0: mov eax, [rip+roSym]
		0x83, 0xf8, 0, // 6: cmp eax, roWant (imm8)
		0x75, 0x18, // 9: jne fail1
		0xc7, 0x05, 0, 0, 0, 0, 0, 0, 0, 0, // 11: mov dword [rip+rwSym], rwStore
		0x8b, 0x05, 0, 0, 0, 0, // 21: mov eax, [rip+rwSym]
		0x83, 0xf8, 0, // 27: cmp eax, rwStore (imm8)
		0x75, 0x09, // 30: jne fail2
		0x31, 0xc0, // 32: xor eax, eax
		0xc3,                         // 34: ret
		0xb8, 0x01, 0, 0, 0, 0xc3, // 35: fail1: mov eax, 1; ret
		0xb8, 0x02, 0, 0, 0, 0xc3, // 41: fail2: mov eax, 2; ret
	}
	code[8] = byte(roWant)
	binary.LittleEndian.PutUint32(code[17:], uint32(rwStore))
	code[29] = byte(rwStore)
	relocs := []codegen.Reloc{
		{Kind: codegen.RelocPC32, Offset: 2, Symbol: roSym, Addend: -4},
		{Kind: codegen.RelocPC32, Offset: 13, Symbol: rwSym, Addend: -8},
		{Kind: codegen.RelocPC32, Offset: 23, Symbol: rwSym, Addend: -4},
	}
	return code, relocs
}

// LE32 encodes a 32-bit little-endian constant as data bytes.
func LE32(v int32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(v))
	return b[:]
}

// TLSAdd adds the first argument to a thread-local 32-bit counter and
// returns the new value. The counter address comes from the canonical
// general-dynamic sequence (data16 lea; data16 data16 rex64 call
// __tls_get_addr), which system linkers recognize and may relax.
func TLSAdd(counter, tlsGetAddr string) ([]byte, []codegen.Reloc) {
	code := []byte{
		0x53,       // 0: push rbx
		0x89, 0xfb, // 1: mov ebx, edi
		0x66, 0x48, 0x8d, 0x3d, 0, 0, 0, 0, // 3: data16 lea rdi, [rip+counter@tlsgd]
		0x66, 0x66, 0x48, 0xe8, 0, 0, 0, 0, // 11: data16 data16 rex64 call __tls_get_addr
		0x01, 0x18, // 19: add [rax], ebx
		0x8b, 0x00, // 21: mov eax, [rax]
		0x5b, // 23: pop rbx
		0xc3, // 24: ret
	}
	relocs := []codegen.Reloc{
		{Kind: codegen.RelocTLSGD, Offset: 7, Symbol: counter, Addend: -4},
		{Kind: codegen.RelocCallPC32, Offset: 15, Symbol: tlsGetAddr, Addend: -4},
	}
	return code, relocs
}

// CallViaAddress loads the callee's absolute address into a register
// and calls through it, passing arg. Exercises 64-bit absolute
// relocation followed by an indirect call.
func CallViaAddress(callee string, arg int32) ([]byte, codegen.Reloc) {
	code := []byte{
		0x48, 0xb8, 0, 0, 0, 0, 0, 0, 0, 0, // 0: movabs rax, callee
		0xbf, 0, 0, 0, 0, // 10: mov edi, arg
		0xff, 0xd0, // 15: call rax
		0xc3, // 17: ret
	}
	binary.LittleEndian.PutUint32(code[11:], uint32(arg))
	return code, codegen.Reloc{Kind: codegen.RelocAbs64, Offset: 2, Symbol: callee, Addend: 0}
}

// LoadI32 reads a 32-bit data symbol RIP-relative and returns it.
func LoadI32(sym string) ([]byte, codegen.Reloc) {
	code := []byte{
		0x8b, 0x05, 0, 0, 0, 0, // mov eax, [rip+sym]
		0xc3,
	}
	return code, codegen.Reloc{Kind: codegen.RelocPC32, Offset: 2, Symbol: sym, Addend: -4}
}

// LoopSum computes 1+2+...+10 with a backward branch and returns 55.
// No relocations; the body exists to run emitted control flow.
func LoopSum() []byte {
	return []byte{
		0x31, 0xc0, // 0: xor eax, eax
		0xba, 0x01, 0, 0, 0, // 2: mov edx, 1
		0x83, 0xfa, 0x0a, // 7: cmp edx, 10
		0x7f, 0x06, // 10: jg done
		0x01, 0xd0, // 12: add eax, edx
		0xff, 0xc2, // 14: inc edx
		0xeb, 0xf5, // 16: jmp cmp
		0xc3, // 18: done: ret
	}
}
