package ir

// Value names an SSA value inside one function body.
type Value int32

// BlockID names a basic block inside one function body.
type BlockID int32

// StackSlotID names a function-scoped stack slot.
type StackSlotID int32

// SigID names a signature imported into a function for indirect calls.
type SigID int32

// FuncRef is an opaque in-body handle to a function symbol. It is valid
// only within the function body it was created for; the builder rejects
// handles created against another body.
type FuncRef struct {
	fn    *Function
	index int32
}

// DataRef is an opaque in-body handle to a data symbol, usable to take
// the address of ordinary or thread-local data.
type DataRef struct {
	fn    *Function
	index int32
}

// StackSlotData describes a fixed-size, fixed-alignment stack slot.
type StackSlotData struct {
	Size  uint32
	Align uint32
}

// Op is an instruction opcode.
type Op uint8

const (
	OpInvalid Op = iota
	OpIconst
	OpIadd
	OpIaddImm
	OpIcmpImm
	OpJump
	OpBrif
	OpCall
	OpCallIndirect
	OpLoad
	OpStore
	OpStackLoad
	OpStackStore
	OpStackAddr
	OpSymbolAddr
	OpReturn
)

// Instr is one instruction. Branch targets and their block arguments sit
// in Then/Else; everything else flows through Args and Results.
type Instr struct {
	Op      Op
	Type    Type
	Imm     int64
	Cond    Cond
	Offset  int32
	Args    []Value
	Results []Value

	Then     BlockID
	Else     BlockID
	ThenArgs []Value
	ElseArgs []Value

	Func FuncRef
	Data DataRef
	Sig  SigID
	Slot StackSlotID
}

// Block is a basic block: ordered parameters and an instruction list.
type Block struct {
	Params     []Value
	ParamTypes []Type
	Instrs     []Instr
}

// ExternFunc records a function symbol referenced from this body.
type ExternFunc struct {
	Name string
	Sig  Signature
}

// ExternData records a data symbol referenced from this body.
type ExternData struct {
	Name        string
	ThreadLocal bool
	Writable    bool
}

// Function is one completed (or in-progress) function body.
type Function struct {
	Name string
	Sig  Signature

	Blocks     []Block
	Slots      []StackSlotData
	Sigs       []Signature
	FuncRefs   []ExternFunc
	DataRefs   []ExternData
	valueTypes []Type
}

// NumValues reports how many SSA values the body defines.
func (f *Function) NumValues() int { return len(f.valueTypes) }

// ValueType returns the type of a value, or TypeInvalid for an unknown one.
func (f *Function) ValueType(v Value) Type {
	if int(v) < 0 || int(v) >= len(f.valueTypes) {
		return TypeInvalid
	}
	return f.valueTypes[v]
}

// AddStackSlot registers a stack slot and returns its id. Slot storage is
// function-scoped raw memory, addressable and independently loadable.
func (f *Function) AddStackSlot(size, align uint32) StackSlotID {
	f.Slots = append(f.Slots, StackSlotData{Size: size, Align: align})
	return StackSlotID(len(f.Slots) - 1)
}

// ImportFunc records a referenced function symbol and returns the in-body
// handle. Generation modules call this on behalf of declared symbols.
func (f *Function) ImportFunc(name string, sig Signature) FuncRef {
	f.FuncRefs = append(f.FuncRefs, ExternFunc{Name: name, Sig: sig})
	return FuncRef{fn: f, index: int32(len(f.FuncRefs) - 1)}
}

// ImportData records a referenced data symbol and returns the in-body
// handle.
func (f *Function) ImportData(name string, threadLocal, writable bool) DataRef {
	f.DataRefs = append(f.DataRefs, ExternData{Name: name, ThreadLocal: threadLocal, Writable: writable})
	return DataRef{fn: f, index: int32(len(f.DataRefs) - 1)}
}

// FuncRefName resolves the symbol name behind an instruction's function
// reference index.
func (f *Function) FuncRefName(i int32) string { return f.FuncRefs[i].Name }

// DataRefName resolves the symbol name behind an instruction's data
// reference index.
func (f *Function) DataRefName(i int32) string { return f.DataRefs[i].Name }

func (f *Function) newValue(t Type) Value {
	f.valueTypes = append(f.valueTypes, t)
	return Value(len(f.valueTypes) - 1)
}

// reset clears the body for reuse without releasing its allocations.
func (f *Function) reset() {
	f.Name = ""
	f.Sig = Signature{}
	f.Blocks = f.Blocks[:0]
	f.Slots = f.Slots[:0]
	f.Sigs = f.Sigs[:0]
	f.FuncRefs = f.FuncRefs[:0]
	f.DataRefs = f.DataRefs[:0]
	f.valueTypes = f.valueTypes[:0]
}
