//go:build !(linux && amd64)

package execmem

// Call0 invokes a finalized no-argument function returning an integer.
func Call0(entry uintptr) (int64, error) { return 0, ErrUnsupported }

// Call1 invokes a finalized one-integer-argument function.
func Call1(entry uintptr, a0 int64) (int64, error) { return 0, ErrUnsupported }
