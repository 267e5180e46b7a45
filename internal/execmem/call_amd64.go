//go:build linux && amd64

package execmem

// The raw calls jump straight into generated System V code without a
// stack switch. Generated functions must therefore stay within the
// caller's stack headroom; the bodies this toolchain emits are leaf-like
// and qualify.

func rawcall0(entry uintptr) int64
func rawcall1(entry uintptr, a0 int64) int64

// Call0 invokes a finalized no-argument function returning an integer.
func Call0(entry uintptr) (int64, error) {
	return rawcall0(entry), nil
}

// Call1 invokes a finalized one-integer-argument function.
func Call1(entry uintptr, a0 int64) (int64, error) {
	return rawcall1(entry, a0), nil
}
