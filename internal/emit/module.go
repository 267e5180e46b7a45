// Package emit owns the unit of compilation: a symbol table of functions
// and data objects under a uniform linkage model, a reusable generation
// context, and a finalize step that either links everything into
// executable memory (JIT mode) or serializes it into a relocatable
// object (object mode).
//
// A Module belongs to one compilation session and must not be mutated
// from more than one thread: the generation context and builder scratch
// are reused in place between definitions. Independent modules may be
// built concurrently.
package emit

import (
	"fmt"
	"sort"

	"anvil/internal/codegen"
	"anvil/internal/ir"
	"anvil/internal/target"
)

// Module collects declared and defined symbols against one target
// configuration and produces a single artifact on Finalize.
type Module struct {
	cfg    target.Config
	engine codegen.Engine
	name   string

	ctx ir.Context

	funcs      []*FuncSymbol
	data       []*DataSymbol
	funcByName map[string]*FuncSymbol
	dataByName map[string]*DataSymbol

	backend   backend
	finalized bool
}

// Option configures module construction.
type Option func(*options)

type options struct {
	symbols map[string]uintptr
}

// WithSymbol registers the address of an external symbol for JIT
// resolution. Import-linkage symbols resolve against this table at
// finalize time.
func WithSymbol(name string, addr uintptr) Option {
	return func(o *options) {
		if o.symbols == nil {
			o.symbols = make(map[string]uintptr)
		}
		o.symbols[name] = addr
	}
}

// NewJITModule builds a module that finalizes into executable memory on
// the host machine. Fails when the host is unsupported; that condition
// is fatal for the process, there is no fallback.
func NewJITModule(engine codegen.Engine, opts ...Option) (*Module, error) {
	cfg, err := target.ResolveJIT()
	if err != nil {
		return nil, err
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	m := newModule("jit", cfg, engine)
	m.backend = &jitBackend{symbols: o.symbols}
	return m, nil
}

// NewObjectModule builds a module that finalizes into a relocatable
// object for the named target triple (empty selects the default).
func NewObjectModule(name, triple string, engine codegen.Engine) (*Module, error) {
	cfg, err := target.ResolveObject(triple)
	if err != nil {
		return nil, err
	}
	m := newModule(name, cfg, engine)
	m.backend = &objectBackend{}
	return m, nil
}

func newModule(name string, cfg target.Config, engine codegen.Engine) *Module {
	return &Module{
		cfg:        cfg,
		engine:     engine,
		name:       name,
		funcByName: make(map[string]*FuncSymbol),
		dataByName: make(map[string]*DataSymbol),
	}
}

// Config returns the module's immutable target configuration.
func (m *Module) Config() *target.Config { return &m.cfg }

// Name returns the module name used for artifact identification.
func (m *Module) Name() string { return m.name }

// DeclareFunction registers a function symbol. Declaring the same name
// with an equal signature and the same linkage is idempotent and returns
// the identical symbol; anything else fails with
// ErrDuplicateIncompatible.
func (m *Module) DeclareFunction(name string, linkage Linkage, sig ir.Signature) (*FuncSymbol, error) {
	if m.finalized {
		return nil, fmt.Errorf("declare function %q: %w", name, ErrAlreadyFinalized)
	}
	if existing, ok := m.funcByName[name]; ok {
		if !existing.Sig.Equal(sig) || !existing.Linkage.compatible(linkage) {
			return nil, fmt.Errorf("declare function %q: %w", name, ErrDuplicateIncompatible)
		}
		return existing, nil
	}
	if _, ok := m.dataByName[name]; ok {
		return nil, fmt.Errorf("declare function %q: name is a data symbol: %w", name, ErrDuplicateIncompatible)
	}
	sym := &FuncSymbol{
		ID:      uint32(len(m.funcs)),
		Name:    name,
		Linkage: linkage,
		Sig:     sig,
	}
	m.funcs = append(m.funcs, sym)
	m.funcByName[name] = sym
	return sym, nil
}

// DeclareData registers a data symbol with the given mutability and
// storage class. The same idempotency rules as DeclareFunction apply;
// mutability and storage class are part of the compatibility check.
func (m *Module) DeclareData(name string, linkage Linkage, writable, threadLocal bool) (*DataSymbol, error) {
	if m.finalized {
		return nil, fmt.Errorf("declare data %q: %w", name, ErrAlreadyFinalized)
	}
	if existing, ok := m.dataByName[name]; ok {
		if existing.Writable != writable || existing.ThreadLocal != threadLocal || !existing.Linkage.compatible(linkage) {
			return nil, fmt.Errorf("declare data %q: %w", name, ErrDuplicateIncompatible)
		}
		return existing, nil
	}
	if _, ok := m.funcByName[name]; ok {
		return nil, fmt.Errorf("declare data %q: name is a function symbol: %w", name, ErrDuplicateIncompatible)
	}
	sym := &DataSymbol{
		ID:          uint32(len(m.data)),
		Name:        name,
		Linkage:     linkage,
		Writable:    writable,
		ThreadLocal: threadLocal,
	}
	m.data = append(m.data, sym)
	m.dataByName[name] = sym
	return sym, nil
}

// BeginFunction binds the module's reusable generation context to a
// declared symbol and returns the builder for its body. The previous
// scratch content is cleared, not reallocated.
func (m *Module) BeginFunction(sym *FuncSymbol) (*ir.Builder, error) {
	if m.finalized {
		return nil, fmt.Errorf("begin function %q: %w", sym.Name, ErrAlreadyFinalized)
	}
	if m.funcByName[sym.Name] != sym {
		return nil, fmt.Errorf("begin function %q: %w", sym.Name, ErrUndeclared)
	}
	return m.ctx.Begin(sym.Name, sym.Sig), nil
}

// FuncInBody produces an in-body handle for calling a declared function
// from the body under construction. Handles are scoped to that body and
// must not be reused across functions.
func (m *Module) FuncInBody(sym *FuncSymbol, fn *ir.Function) (ir.FuncRef, error) {
	if m.funcByName[sym.Name] != sym {
		return ir.FuncRef{}, fmt.Errorf("reference function %q: %w", sym.Name, ErrUndeclared)
	}
	return fn.ImportFunc(sym.Name, sym.Sig), nil
}

// DataInBody produces an in-body handle for addressing a declared data
// symbol (ordinary or thread-local) from the body under construction.
func (m *Module) DataInBody(sym *DataSymbol, fn *ir.Function) (ir.DataRef, error) {
	if m.dataByName[sym.Name] != sym {
		return ir.DataRef{}, fmt.Errorf("reference data %q: %w", sym.Name, ErrUndeclared)
	}
	return fn.ImportData(sym.Name, sym.ThreadLocal, sym.Writable), nil
}

// DefineFunction attaches a completed body to a declared, not yet
// defined Local or Export symbol, compiles it through the engine, and
// resets the generation scratch for reuse. Engine failures propagate as
// *codegen.Error and are non-recoverable for this function.
func (m *Module) DefineFunction(sym *FuncSymbol, fn *ir.Function) error {
	if m.finalized {
		return fmt.Errorf("define function %q: %w", sym.Name, ErrAlreadyFinalized)
	}
	if m.funcByName[sym.Name] != sym {
		return fmt.Errorf("define function %q: %w", sym.Name, ErrUndeclared)
	}
	if sym.Linkage == LinkageImport {
		return fmt.Errorf("define function %q: %w", sym.Name, ErrDefiningImport)
	}
	if sym.defined {
		return fmt.Errorf("define function %q: %w", sym.Name, ErrRedefinition)
	}
	compiled, err := m.engine.Compile(fn, &m.cfg)
	if err != nil {
		return &codegen.Error{Func: sym.Name, Err: err}
	}
	sym.compiled = compiled
	sym.defined = true
	if fn == m.ctx.Func() {
		m.ctx.Clear()
	}
	return nil
}

// DefineData attaches initial byte content to a declared data symbol.
func (m *Module) DefineData(sym *DataSymbol, content []byte, align uint64) error {
	if err := m.checkDataDefine(sym, uint64(len(content)), align); err != nil {
		return err
	}
	sym.init = append([]byte(nil), content...)
	sym.size = uint64(len(content))
	sym.align = align
	sym.defined = true
	return nil
}

// DefineZeroData attaches a zero-initialized extent to a declared data
// symbol.
func (m *Module) DefineZeroData(sym *DataSymbol, size, align uint64) error {
	if err := m.checkDataDefine(sym, size, align); err != nil {
		return err
	}
	sym.init = nil
	sym.size = size
	sym.align = align
	sym.defined = true
	return nil
}

func (m *Module) checkDataDefine(sym *DataSymbol, size, align uint64) error {
	if m.finalized {
		return fmt.Errorf("define data %q: %w", sym.Name, ErrAlreadyFinalized)
	}
	if m.dataByName[sym.Name] != sym {
		return fmt.Errorf("define data %q: %w", sym.Name, ErrUndeclared)
	}
	if sym.Linkage == LinkageImport {
		return fmt.Errorf("define data %q: %w", sym.Name, ErrDefiningImport)
	}
	if sym.defined {
		return fmt.Errorf("define data %q: %w", sym.Name, ErrRedefinition)
	}
	if size == 0 || align == 0 || align&(align-1) != 0 {
		return fmt.Errorf("define data %q (size=%d align=%d): %w", sym.Name, size, align, ErrInvalidDataLayout)
	}
	return nil
}

// NewInitializedData declares and defines a data symbol in one call.
func (m *Module) NewInitializedData(name string, linkage Linkage, content []byte, align uint64, writable, threadLocal bool) (*DataSymbol, error) {
	sym, err := m.DeclareData(name, linkage, writable, threadLocal)
	if err != nil {
		return nil, err
	}
	if err := m.DefineData(sym, content, align); err != nil {
		return nil, err
	}
	return sym, nil
}

// NewZeroData declares and defines a zero-initialized data symbol in one
// call. Zero-initialized data is always writable.
func (m *Module) NewZeroData(name string, linkage Linkage, size, align uint64, threadLocal bool) (*DataSymbol, error) {
	sym, err := m.DeclareData(name, linkage, true, threadLocal)
	if err != nil {
		return nil, err
	}
	if err := m.DefineZeroData(sym, size, align); err != nil {
		return nil, err
	}
	return sym, nil
}

// Finalize locks the module and produces its artifact: executable memory
// accessors in JIT mode, relocatable object bytes plus unresolved import
// names in object mode. The symbol set it observes is exactly the set
// declared before this call. A second call fails with
// ErrAlreadyFinalized.
func (m *Module) Finalize() (*Artifact, error) {
	if m.finalized {
		return nil, fmt.Errorf("finalize %q: %w", m.name, ErrAlreadyFinalized)
	}
	m.finalized = true
	art, err := m.backend.finalize(m)
	if err != nil {
		return nil, fmt.Errorf("finalize %q: %w", m.name, err)
	}
	return art, nil
}

// sortedFuncs returns defined functions ordered by name, so generated
// output does not depend on declaration order.
func (m *Module) sortedFuncs() []*FuncSymbol {
	out := make([]*FuncSymbol, 0, len(m.funcs))
	for _, f := range m.funcs {
		if f.defined {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// sortedData returns defined data symbols ordered by name.
func (m *Module) sortedData() []*DataSymbol {
	out := make([]*DataSymbol, 0, len(m.data))
	for _, d := range m.data {
		if d.defined {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// imports returns the names of import-linkage symbols, sorted.
func (m *Module) imports() []string {
	var out []string
	for _, f := range m.funcs {
		if f.Linkage == LinkageImport {
			out = append(out, f.Name)
		}
	}
	for _, d := range m.data {
		if d.Linkage == LinkageImport {
			out = append(out, d.Name)
		}
	}
	sort.Strings(out)
	return out
}
