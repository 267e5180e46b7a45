// Package execmem maps anonymous memory for holding generated machine
// code and data, and exposes raw-call entry points into it. Only hosts
// the JIT configuration resolver accepts are supported; everywhere else
// Alloc fails with ErrUnsupported.
package execmem

import "errors"

// ErrUnsupported means the host platform cannot map executable memory
// or call into it from this process.
var ErrUnsupported = errors.New("executable memory is not supported on this host")

// Mapping is one anonymous memory region. It starts readable and
// writable; Seal transitions it to its final protection.
type Mapping struct {
	buf []byte
}

// Bytes returns the writable view of the region. The slice aliases the
// mapped pages; it must not be used after Close.
func (m *Mapping) Bytes() []byte { return m.buf }

// Len returns the mapped size in bytes.
func (m *Mapping) Len() int { return len(m.buf) }
