package ir

import "fmt"

// Builder appends instructions to one function body. A Builder instance
// is reusable: Attach rebinds it to the next body without reallocating.
//
// Handle scoping is enforced at runtime: passing a FuncRef or DataRef
// created for a different body panics, since that is a front-end bug no
// caller can recover from.
type Builder struct {
	fn  *Function
	cur BlockID
}

// Attach rebinds the builder to fn and resets its cursor.
func (b *Builder) Attach(fn *Function) {
	b.fn = fn
	b.cur = -1
}

// Func returns the body under construction.
func (b *Builder) Func() *Function { return b.fn }

// CreateBlock appends an empty basic block.
func (b *Builder) CreateBlock() BlockID {
	b.fn.Blocks = append(b.fn.Blocks, Block{})
	return BlockID(len(b.fn.Blocks) - 1)
}

// SwitchTo makes blk the insertion point for subsequent instructions.
func (b *Builder) SwitchTo(blk BlockID) { b.cur = blk }

// AppendBlockParam adds one typed parameter to blk and returns its value.
func (b *Builder) AppendBlockParam(blk BlockID, t Type) Value {
	v := b.fn.newValue(t)
	blockOf(b.fn, blk).Params = append(blockOf(b.fn, blk).Params, v)
	blockOf(b.fn, blk).ParamTypes = append(blockOf(b.fn, blk).ParamTypes, t)
	return v
}

// AppendParamsForSignature adds one block parameter per function
// parameter, in order. Used on entry blocks.
func (b *Builder) AppendParamsForSignature(blk BlockID) {
	for _, t := range b.fn.Sig.Params {
		b.AppendBlockParam(blk, t)
	}
}

// AppendParamsForResults adds one block parameter per function result.
// Used on merge blocks that feed the return value.
func (b *Builder) AppendParamsForResults(blk BlockID) {
	for _, t := range b.fn.Sig.Results {
		b.AppendBlockParam(blk, t)
	}
}

// BlockParams returns the parameter values of blk.
func (b *Builder) BlockParams(blk BlockID) []Value {
	return blockOf(b.fn, blk).Params
}

// ImportSignature registers a signature for indirect calls from this body.
func (b *Builder) ImportSignature(sig Signature) SigID {
	b.fn.Sigs = append(b.fn.Sigs, sig)
	return SigID(len(b.fn.Sigs) - 1)
}

// Iconst materializes an integer constant.
func (b *Builder) Iconst(t Type, imm int64) Value {
	v := b.fn.newValue(t)
	b.emit(Instr{Op: OpIconst, Type: t, Imm: imm, Results: []Value{v}})
	return v
}

// Iadd adds two values of the same type.
func (b *Builder) Iadd(x, y Value) Value {
	t := b.fn.ValueType(x)
	v := b.fn.newValue(t)
	b.emit(Instr{Op: OpIadd, Type: t, Args: []Value{x, y}, Results: []Value{v}})
	return v
}

// IaddImm adds an immediate to a value.
func (b *Builder) IaddImm(x Value, imm int64) Value {
	t := b.fn.ValueType(x)
	v := b.fn.newValue(t)
	b.emit(Instr{Op: OpIaddImm, Type: t, Imm: imm, Args: []Value{x}, Results: []Value{v}})
	return v
}

// IcmpImm compares a value against an immediate, producing a boolean.
func (b *Builder) IcmpImm(cond Cond, x Value, imm int64) Value {
	v := b.fn.newValue(I8)
	b.emit(Instr{Op: OpIcmpImm, Type: I8, Cond: cond, Imm: imm, Args: []Value{x}, Results: []Value{v}})
	return v
}

// Jump transfers control to blk, passing block arguments.
func (b *Builder) Jump(blk BlockID, args []Value) {
	b.emit(Instr{Op: OpJump, Then: blk, ThenArgs: cloneValues(args)})
}

// Brif branches to then/else depending on cond, passing block arguments
// to whichever target is taken.
func (b *Builder) Brif(cond Value, then BlockID, thenArgs []Value, els BlockID, elsArgs []Value) {
	b.emit(Instr{
		Op:       OpBrif,
		Args:     []Value{cond},
		Then:     then,
		ThenArgs: cloneValues(thenArgs),
		Else:     els,
		ElseArgs: cloneValues(elsArgs),
	})
}

// Call emits a direct call through an in-body function handle and returns
// the result values in signature order.
func (b *Builder) Call(ref FuncRef, args []Value) []Value {
	if ref.fn != b.fn {
		panic("ir: function handle used outside the body it was created for")
	}
	sig := b.fn.FuncRefs[ref.index].Sig
	results := b.resultValues(sig)
	b.emit(Instr{Op: OpCall, Func: ref, Args: cloneValues(args), Results: results})
	return results
}

// CallIndirect emits a call through a code address with an imported
// signature.
func (b *Builder) CallIndirect(sig SigID, callee Value, args []Value) []Value {
	if int(sig) < 0 || int(sig) >= len(b.fn.Sigs) {
		panic(fmt.Sprintf("ir: signature %d not imported into this body", sig))
	}
	results := b.resultValues(b.fn.Sigs[sig])
	all := make([]Value, 0, len(args)+1)
	all = append(all, callee)
	all = append(all, args...)
	b.emit(Instr{Op: OpCallIndirect, Sig: sig, Args: all, Results: results})
	return results
}

// Load reads a typed value from addr+offset.
func (b *Builder) Load(t Type, addr Value, offset int32) Value {
	v := b.fn.newValue(t)
	b.emit(Instr{Op: OpLoad, Type: t, Offset: offset, Args: []Value{addr}, Results: []Value{v}})
	return v
}

// Store writes a value to addr+offset.
func (b *Builder) Store(val, addr Value, offset int32) {
	b.emit(Instr{Op: OpStore, Type: b.fn.ValueType(val), Offset: offset, Args: []Value{val, addr}})
}

// StackLoad reads a typed value from a stack slot.
func (b *Builder) StackLoad(t Type, slot StackSlotID, offset int32) Value {
	v := b.fn.newValue(t)
	b.emit(Instr{Op: OpStackLoad, Type: t, Slot: slot, Offset: offset, Results: []Value{v}})
	return v
}

// StackStore writes a value into a stack slot.
func (b *Builder) StackStore(val Value, slot StackSlotID, offset int32) {
	b.emit(Instr{Op: OpStackStore, Type: b.fn.ValueType(val), Slot: slot, Offset: offset, Args: []Value{val}})
}

// StackAddr produces the address of a stack slot.
func (b *Builder) StackAddr(slot StackSlotID, offset int32) Value {
	v := b.fn.newValue(Ptr)
	b.emit(Instr{Op: OpStackAddr, Type: Ptr, Slot: slot, Offset: offset, Results: []Value{v}})
	return v
}

// SymbolAddr produces the address of a data symbol through an in-body
// handle. For thread-local symbols the engine lowers this to the TLS
// model of the target configuration.
func (b *Builder) SymbolAddr(ref DataRef) Value {
	if ref.fn != b.fn {
		panic("ir: data handle used outside the body it was created for")
	}
	v := b.fn.newValue(Ptr)
	b.emit(Instr{Op: OpSymbolAddr, Type: Ptr, Data: ref, Results: []Value{v}})
	return v
}

// Return ends the current block returning the given values.
func (b *Builder) Return(args []Value) {
	b.emit(Instr{Op: OpReturn, Args: cloneValues(args)})
}

func (b *Builder) resultValues(sig Signature) []Value {
	if len(sig.Results) == 0 {
		return nil
	}
	out := make([]Value, len(sig.Results))
	for i, t := range sig.Results {
		out[i] = b.fn.newValue(t)
	}
	return out
}

func (b *Builder) emit(in Instr) {
	if b.cur < 0 || int(b.cur) >= len(b.fn.Blocks) {
		panic("ir: no current block; call SwitchTo first")
	}
	blk := &b.fn.Blocks[b.cur]
	blk.Instrs = append(blk.Instrs, in)
}

// RefIndex exposes the table index behind a handle for engines walking
// instruction streams.
func (r FuncRef) RefIndex() int32 { return r.index }

// RefIndex exposes the table index behind a handle.
func (r DataRef) RefIndex() int32 { return r.index }

func blockOf(fn *Function, blk BlockID) *Block {
	return &fn.Blocks[blk]
}

func cloneValues(vs []Value) []Value {
	if len(vs) == 0 {
		return nil
	}
	out := make([]Value, len(vs))
	copy(out, vs)
	return out
}
