package ir

// Context is the reusable generation scratch a module keeps across
// function definitions. Clearing it between definitions reuses the
// underlying allocations instead of dropping them; recreating this state
// per function is the main cost the reuse avoids.
type Context struct {
	fn      Function
	builder Builder
}

// Begin clears the scratch body, binds it to the given name and
// signature, and returns the builder positioned on it. Only one body can
// be under construction per Context at a time.
func (c *Context) Begin(name string, sig Signature) *Builder {
	c.fn.reset()
	c.fn.Name = name
	c.fn.Sig = sig
	c.builder.Attach(&c.fn)
	return &c.builder
}

// Func returns the body currently held by the scratch.
func (c *Context) Func() *Function { return &c.fn }

// Clear resets the scratch body, keeping allocations for the next Begin.
func (c *Context) Clear() { c.fn.reset() }
