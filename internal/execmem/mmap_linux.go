//go:build linux

package execmem

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Alloc maps a read-write anonymous region of at least size bytes,
// rounded up to whole pages.
func Alloc(size int) (*Mapping, error) {
	if size <= 0 {
		return nil, fmt.Errorf("execmem: invalid mapping size %d", size)
	}
	page := unix.Getpagesize()
	size = (size + page - 1) &^ (page - 1)
	buf, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("execmem: mmap %d bytes: %w", size, err)
	}
	return &Mapping{buf: buf}, nil
}

// Addr returns the base address of the region.
func (m *Mapping) Addr() uintptr {
	if len(m.buf) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&m.buf[0]))
}

// SealExecutable removes write access and makes the region executable.
func (m *Mapping) SealExecutable() error {
	if err := unix.Mprotect(m.buf, unix.PROT_READ|unix.PROT_EXEC); err != nil {
		return fmt.Errorf("execmem: mprotect rx: %w", err)
	}
	return nil
}

// SealReadOnly removes write access.
func (m *Mapping) SealReadOnly() error {
	if err := unix.Mprotect(m.buf, unix.PROT_READ); err != nil {
		return fmt.Errorf("execmem: mprotect r: %w", err)
	}
	return nil
}

// Close unmaps the region. Addresses into it are invalid afterwards.
func (m *Mapping) Close() error {
	if m.buf == nil {
		return nil
	}
	buf := m.buf
	m.buf = nil
	if err := unix.Munmap(buf); err != nil {
		return fmt.Errorf("execmem: munmap: %w", err)
	}
	return nil
}
