// Package testkit provides a code-generation engine with canned
// machine code, keyed by function name. Tests exercise module and
// linking semantics against real x86-64 bytes without depending on an
// instruction selector.
package testkit

import (
	"fmt"

	"anvil/internal/codegen"
	"anvil/internal/ir"
	"anvil/internal/target"
)

// Engine returns pre-assembled bodies by function name.
type Engine struct {
	Bodies map[string]*codegen.Compiled
	// Fail forces a compilation error for the named functions.
	Fail map[string]error
}

// NewEngine builds an empty engine; add bodies with Put.
func NewEngine() *Engine {
	return &Engine{
		Bodies: make(map[string]*codegen.Compiled),
		Fail:   make(map[string]error),
	}
}

// Put registers a body for a function name.
func (e *Engine) Put(name string, code []byte, relocs ...codegen.Reloc) {
	e.Bodies[name] = &codegen.Compiled{Code: code, Align: 16, Relocs: relocs}
}

// Compile hands back the canned body for fn's name.
func (e *Engine) Compile(fn *ir.Function, cfg *target.Config) (*codegen.Compiled, error) {
	if err, ok := e.Fail[fn.Name]; ok {
		return nil, err
	}
	c, ok := e.Bodies[fn.Name]
	if !ok {
		return nil, fmt.Errorf("no canned body for %q", fn.Name)
	}
	return c, nil
}

var _ codegen.Engine = (*Engine)(nil)
