package target

import (
	"errors"
	"fmt"
	"runtime"
	"sort"
)

// DefaultTriple is assumed by ResolveObject when no triple is given.
const DefaultTriple = "x86_64-unknown-linux-gnu"

var (
	// ErrUnsupportedHost means the host machine cannot run JIT-generated
	// code. Checked once at configuration time; there is no fallback.
	ErrUnsupportedHost = errors.New("host platform is not supported for in-process code generation")

	// ErrUnsupportedTarget means the requested target triple is unknown.
	ErrUnsupportedTarget = errors.New("target triple is not supported")
)

// knownTriples maps the triples the object backend accepts to their
// instruction sets.
var knownTriples = map[string]ISA{
	"x86_64-unknown-linux-gnu":  ISAX8664,
	"x86_64-linux-gnu":          ISAX8664,
	"aarch64-unknown-linux-gnu": ISAAArch64,
	"aarch64-linux-gnu":         ISAAArch64,
}

// hostISA resolves the ISA of the machine the process runs on, or
// ISAInvalid when in-process execution is not supported there.
func hostISA() ISA {
	if runtime.GOOS != "linux" {
		return ISAInvalid
	}
	switch runtime.GOARCH {
	case "amd64":
		return ISAX8664
	case "arm64":
		return ISAAArch64
	default:
		return ISAInvalid
	}
}

// HostTriple returns the triple matching the host machine, or "" when the
// host is unsupported.
func HostTriple() string {
	switch hostISA() {
	case ISAX8664:
		return "x86_64-unknown-linux-gnu"
	case ISAAArch64:
		return "aarch64-unknown-linux-gnu"
	default:
		return ""
	}
}

// ResolveJIT produces the configuration for in-process code generation.
// The host architecture decides the ISA; an unsupported host is a fatal,
// non-recoverable condition for the process.
//
// JIT code favors maximum-speed optimization and disables the TLS model.
func ResolveJIT() (Config, error) {
	isa := hostISA()
	if isa == ISAInvalid {
		return Config{}, fmt.Errorf("%w: %s/%s", ErrUnsupportedHost, runtime.GOOS, runtime.GOARCH)
	}
	return Config{
		Mode:                  ModeJIT,
		ISA:                   isa,
		Triple:                HostTriple(),
		PIC:                   true,
		Opt:                   OptSpeed,
		TLS:                   TLSNone,
		EnableAtomics:         true,
		PreserveFramePointers: true,
		ColocatedCalls:        false,
	}, nil
}

// ResolveObject produces the configuration for ahead-of-time object
// emission. An empty triple selects DefaultTriple.
//
// Object code favors minimal optimization (fast compilation for tooling)
// and the general-dynamic ELF TLS model.
func ResolveObject(triple string) (Config, error) {
	if triple == "" {
		triple = DefaultTriple
	}
	isa, ok := knownTriples[triple]
	if !ok {
		return Config{}, fmt.Errorf("%w: %q", ErrUnsupportedTarget, triple)
	}
	return Config{
		Mode:                  ModeObject,
		ISA:                   isa,
		Triple:                triple,
		PIC:                   true,
		Opt:                   OptNone,
		TLS:                   TLSELFGeneralDynamic,
		EnableAtomics:         true,
		PreserveFramePointers: true,
		ColocatedCalls:        false,
	}, nil
}

// Triples lists the triples ResolveObject accepts, sorted.
func Triples() []string {
	out := make([]string, 0, len(knownTriples))
	for t := range knownTriples {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
