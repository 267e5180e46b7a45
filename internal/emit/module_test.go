package emit

import (
	"bytes"
	"errors"
	"testing"

	"anvil/internal/codegen"
	"anvil/internal/ir"
	"anvil/internal/testkit"
)

func sigOf(params, results []ir.Type) ir.Signature {
	return ir.Signature{Params: params, Results: results, Conv: ir.CallConvSystemV}
}

func newObjectModuleT(t *testing.T, engine codegen.Engine) *Module {
	t.Helper()
	m, err := NewObjectModule("test", "", engine)
	if err != nil {
		t.Fatalf("NewObjectModule: %v", err)
	}
	return m
}

func defineTrivial(t *testing.T, m *Module, sym *FuncSymbol) {
	t.Helper()
	b, err := m.BeginFunction(sym)
	if err != nil {
		t.Fatalf("BeginFunction(%s): %v", sym.Name, err)
	}
	blk := b.CreateBlock()
	b.AppendParamsForSignature(blk)
	b.SwitchTo(blk)
	v := b.Iconst(ir.I32, 0)
	b.Return([]ir.Value{v})
	if err := m.DefineFunction(sym, b.Func()); err != nil {
		t.Fatalf("DefineFunction(%s): %v", sym.Name, err)
	}
}

func TestDeclareFunctionIdempotent(t *testing.T) {
	engine := testkit.NewEngine()
	m := newObjectModuleT(t, engine)
	sig := sigOf(nil, []ir.Type{ir.I32})

	first, err := m.DeclareFunction("main", LinkageExport, sig)
	if err != nil {
		t.Fatalf("first declare: %v", err)
	}
	second, err := m.DeclareFunction("main", LinkageExport, sig)
	if err != nil {
		t.Fatalf("second declare: %v", err)
	}
	if first != second {
		t.Fatalf("redeclaration produced a new symbol")
	}
}

func TestDeclareFunctionIncompatible(t *testing.T) {
	engine := testkit.NewEngine()
	sig := sigOf(nil, []ir.Type{ir.I32})

	t.Run("different signature", func(t *testing.T) {
		m := newObjectModuleT(t, engine)
		if _, err := m.DeclareFunction("main", LinkageExport, sig); err != nil {
			t.Fatalf("declare: %v", err)
		}
		_, err := m.DeclareFunction("main", LinkageExport, sigOf([]ir.Type{ir.I32}, []ir.Type{ir.I32}))
		if !errors.Is(err, ErrDuplicateIncompatible) {
			t.Fatalf("got %v, want ErrDuplicateIncompatible", err)
		}
	})
	t.Run("different linkage", func(t *testing.T) {
		m := newObjectModuleT(t, engine)
		if _, err := m.DeclareFunction("main", LinkageImport, sig); err != nil {
			t.Fatalf("declare: %v", err)
		}
		_, err := m.DeclareFunction("main", LinkageLocal, sig)
		if !errors.Is(err, ErrDuplicateIncompatible) {
			t.Fatalf("got %v, want ErrDuplicateIncompatible", err)
		}
	})
	t.Run("name held by data", func(t *testing.T) {
		m := newObjectModuleT(t, engine)
		if _, err := m.DeclareData("main", LinkageExport, false, false); err != nil {
			t.Fatalf("declare data: %v", err)
		}
		_, err := m.DeclareFunction("main", LinkageExport, sig)
		if !errors.Is(err, ErrDuplicateIncompatible) {
			t.Fatalf("got %v, want ErrDuplicateIncompatible", err)
		}
	})
}

func TestDeclareDataCompatibility(t *testing.T) {
	engine := testkit.NewEngine()
	m := newObjectModuleT(t, engine)

	first, err := m.DeclareData("blob", LinkageLocal, true, false)
	if err != nil {
		t.Fatalf("declare: %v", err)
	}
	second, err := m.DeclareData("blob", LinkageLocal, true, false)
	if err != nil {
		t.Fatalf("redeclare: %v", err)
	}
	if first != second {
		t.Fatalf("redeclaration produced a new symbol")
	}
	if _, err := m.DeclareData("blob", LinkageLocal, false, false); !errors.Is(err, ErrDuplicateIncompatible) {
		t.Fatalf("mutability change: got %v, want ErrDuplicateIncompatible", err)
	}
	if _, err := m.DeclareData("blob", LinkageLocal, true, true); !errors.Is(err, ErrDuplicateIncompatible) {
		t.Fatalf("storage class change: got %v, want ErrDuplicateIncompatible", err)
	}
}

func TestDefineRules(t *testing.T) {
	engine := testkit.NewEngine()
	engine.Put("f", testkit.ReturnConst32(0))
	sig := sigOf(nil, []ir.Type{ir.I32})

	t.Run("undeclared", func(t *testing.T) {
		m := newObjectModuleT(t, engine)
		other := newObjectModuleT(t, engine)
		sym, err := other.DeclareFunction("f", LinkageExport, sig)
		if err != nil {
			t.Fatalf("declare: %v", err)
		}
		if _, err := m.BeginFunction(sym); !errors.Is(err, ErrUndeclared) {
			t.Fatalf("got %v, want ErrUndeclared", err)
		}
	})
	t.Run("import", func(t *testing.T) {
		m := newObjectModuleT(t, engine)
		sym, err := m.DeclareFunction("f", LinkageImport, sig)
		if err != nil {
			t.Fatalf("declare: %v", err)
		}
		b := m.ctx.Begin(sym.Name, sym.Sig)
		if err := m.DefineFunction(sym, b.Func()); !errors.Is(err, ErrDefiningImport) {
			t.Fatalf("got %v, want ErrDefiningImport", err)
		}
	})
	t.Run("redefinition", func(t *testing.T) {
		m := newObjectModuleT(t, engine)
		sym, err := m.DeclareFunction("f", LinkageExport, sig)
		if err != nil {
			t.Fatalf("declare: %v", err)
		}
		defineTrivial(t, m, sym)
		b, err := m.BeginFunction(sym)
		if err != nil {
			t.Fatalf("begin: %v", err)
		}
		if err := m.DefineFunction(sym, b.Func()); !errors.Is(err, ErrRedefinition) {
			t.Fatalf("got %v, want ErrRedefinition", err)
		}
	})
}

func TestDefineDataValidation(t *testing.T) {
	engine := testkit.NewEngine()
	cases := []struct {
		name  string
		size  uint64
		align uint64
	}{
		{"zero size", 0, 4},
		{"zero align", 4, 0},
		{"align not power of two", 4, 3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := newObjectModuleT(t, engine)
			sym, err := m.DeclareData("blob", LinkageLocal, true, false)
			if err != nil {
				t.Fatalf("declare: %v", err)
			}
			if err := m.DefineZeroData(sym, tc.size, tc.align); !errors.Is(err, ErrInvalidDataLayout) {
				t.Fatalf("got %v, want ErrInvalidDataLayout", err)
			}
		})
	}

	t.Run("retry after failure", func(t *testing.T) {
		m := newObjectModuleT(t, engine)
		sym, err := m.DeclareData("blob", LinkageLocal, true, false)
		if err != nil {
			t.Fatalf("declare: %v", err)
		}
		if err := m.DefineZeroData(sym, 0, 4); !errors.Is(err, ErrInvalidDataLayout) {
			t.Fatalf("got %v, want ErrInvalidDataLayout", err)
		}
		if err := m.DefineZeroData(sym, 8, 4); err != nil {
			t.Fatalf("corrected define failed: %v", err)
		}
	})
}

func TestFinalizeLocksModule(t *testing.T) {
	engine := testkit.NewEngine()
	engine.Put("main", testkit.ReturnConst32(0))
	m := newObjectModuleT(t, engine)
	sig := sigOf(nil, []ir.Type{ir.I32})

	sym, err := m.DeclareFunction("main", LinkageExport, sig)
	if err != nil {
		t.Fatalf("declare: %v", err)
	}
	defineTrivial(t, m, sym)

	if _, err := m.Finalize(); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if _, err := m.Finalize(); !errors.Is(err, ErrAlreadyFinalized) {
		t.Fatalf("second finalize: got %v, want ErrAlreadyFinalized", err)
	}
	if _, err := m.DeclareFunction("late", LinkageLocal, sig); !errors.Is(err, ErrAlreadyFinalized) {
		t.Fatalf("declare after finalize: got %v, want ErrAlreadyFinalized", err)
	}
	if _, err := m.DeclareData("late", LinkageLocal, true, false); !errors.Is(err, ErrAlreadyFinalized) {
		t.Fatalf("declare data after finalize: got %v, want ErrAlreadyFinalized", err)
	}
}

func TestCodegenFailurePropagates(t *testing.T) {
	engine := testkit.NewEngine()
	cause := errors.New("register pressure")
	engine.Fail["bad"] = cause
	m := newObjectModuleT(t, engine)

	sym, err := m.DeclareFunction("bad", LinkageLocal, sigOf(nil, nil))
	if err != nil {
		t.Fatalf("declare: %v", err)
	}
	b, err := m.BeginFunction(sym)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	blk := b.CreateBlock()
	b.SwitchTo(blk)
	b.Return(nil)

	err = m.DefineFunction(sym, b.Func())
	var cerr *codegen.Error
	if !errors.As(err, &cerr) {
		t.Fatalf("got %T, want *codegen.Error", err)
	}
	if cerr.Func != "bad" || !errors.Is(err, cause) {
		t.Fatalf("error lost context: %v", err)
	}
}

// buildScenarioModule declares two functions and two data symbols in
// the order given by names.
func buildScenarioModule(t *testing.T, engine *testkit.Engine, order []string) *Module {
	t.Helper()
	m := newObjectModuleT(t, engine)
	sig := sigOf([]ir.Type{ir.I32}, []ir.Type{ir.I32})
	for _, name := range order {
		switch name {
		case "alpha", "omega":
			sym, err := m.DeclareFunction(name, LinkageExport, sig)
			if err != nil {
				t.Fatalf("declare %s: %v", name, err)
			}
			defineTrivial(t, m, sym)
		case "number0":
			if _, err := m.NewInitializedData(name, LinkageExport, testkit.LE32(11), 4, false, false); err != nil {
				t.Fatalf("define %s: %v", name, err)
			}
		case "number1":
			if _, err := m.NewInitializedData(name, LinkageExport, testkit.LE32(13), 4, true, false); err != nil {
				t.Fatalf("define %s: %v", name, err)
			}
		}
	}
	return m
}

func TestObjectOutputOrderIndependent(t *testing.T) {
	engine := testkit.NewEngine()
	engine.Put("alpha", testkit.ReturnConst32(1))
	engine.Put("omega", testkit.ReturnConst32(2))

	forward := buildScenarioModule(t, engine, []string{"alpha", "omega", "number0", "number1"})
	backward := buildScenarioModule(t, engine, []string{"number1", "number0", "omega", "alpha"})

	a1, err := forward.Finalize()
	if err != nil {
		t.Fatalf("finalize forward: %v", err)
	}
	a2, err := backward.Finalize()
	if err != nil {
		t.Fatalf("finalize backward: %v", err)
	}
	o1, err := a1.Object()
	if err != nil {
		t.Fatalf("object forward: %v", err)
	}
	o2, err := a2.Object()
	if err != nil {
		t.Fatalf("object backward: %v", err)
	}
	if !bytes.Equal(o1, o2) {
		t.Fatalf("object bytes depend on declaration order")
	}
}

func TestObjectUnresolvedImports(t *testing.T) {
	engine := testkit.NewEngine()
	m := newObjectModuleT(t, engine)
	sig := sigOf([]ir.Type{ir.I32, ir.I32}, []ir.Type{ir.I32})

	if _, err := m.DeclareFunction("sub", LinkageImport, sig); err != nil {
		t.Fatalf("declare sub: %v", err)
	}
	if _, err := m.DeclareFunction("add", LinkageImport, sig); err != nil {
		t.Fatalf("declare add: %v", err)
	}
	if _, err := m.DeclareData("table", LinkageImport, false, false); err != nil {
		t.Fatalf("declare table: %v", err)
	}

	art, err := m.Finalize()
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	got := art.Unresolved()
	want := []string{"add", "sub", "table"}
	if len(got) != len(want) {
		t.Fatalf("unresolved = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("unresolved = %v, want %v", got, want)
		}
	}
}

func TestGenerationContextReuse(t *testing.T) {
	engine := testkit.NewEngine()
	engine.Put("first", testkit.ReturnConst32(1))
	engine.Put("second", testkit.ReturnConst32(2))
	m := newObjectModuleT(t, engine)
	sig := sigOf(nil, []ir.Type{ir.I32})

	a, err := m.DeclareFunction("first", LinkageLocal, sig)
	if err != nil {
		t.Fatalf("declare: %v", err)
	}
	defineTrivial(t, m, a)

	b, err := m.DeclareFunction("second", LinkageLocal, sig)
	if err != nil {
		t.Fatalf("declare: %v", err)
	}
	builder, err := m.BeginFunction(b)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if got := len(builder.Func().Blocks); got != 0 {
		t.Fatalf("scratch not cleared between definitions: %d blocks", got)
	}
	blk := builder.CreateBlock()
	builder.SwitchTo(blk)
	v := builder.Iconst(ir.I32, 2)
	builder.Return([]ir.Value{v})
	if err := m.DefineFunction(b, builder.Func()); err != nil {
		t.Fatalf("define: %v", err)
	}
}
