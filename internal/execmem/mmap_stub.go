//go:build !linux

package execmem

// Alloc fails on unsupported hosts. The JIT configuration resolver
// rejects these hosts earlier; this guard covers direct package use.
func Alloc(size int) (*Mapping, error) { return nil, ErrUnsupported }

// Addr returns the base address of the region.
func (m *Mapping) Addr() uintptr { return 0 }

// SealExecutable removes write access and makes the region executable.
func (m *Mapping) SealExecutable() error { return ErrUnsupported }

// SealReadOnly removes write access.
func (m *Mapping) SealReadOnly() error { return ErrUnsupported }

// Close unmaps the region.
func (m *Mapping) Close() error { return nil }
