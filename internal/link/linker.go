package link

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Error is a failed linker invocation. It carries the subprocess's
// standard-error text verbatim; linker messages are authoritative and
// are not reclassified here.
type Error struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *Error) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" {
		return fmt.Sprintf("link failed: %v", e.Err)
	}
	return fmt.Sprintf("link failed: %s", msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Args assembles the linker argument list for a plan. The returned
// order must be passed to the linker unchanged.
func Args(cfg *Config, plan *Plan) ([]string, error) {
	if err := plan.validate(); err != nil {
		return nil, err
	}

	var args []string
	switch plan.Strategy {
	case StrategyDynamicPIE:
		start, err := cfg.findCRT("Scrt1.o")
		if err != nil {
			return nil, err
		}
		prolog, err := cfg.findCRT("crti.o")
		if err != nil {
			return nil, err
		}
		args = append(args, "--dynamic-linker", cfg.DynamicLinker, "-pie")
		args = append(args, "-o", plan.OutputPath)
		args = append(args, start, prolog)
	case StrategyStatic:
		start, err := cfg.findCRT("crt1.o")
		if err != nil {
			return nil, err
		}
		prolog, err := cfg.findCRT("crti.o")
		if err != nil {
			return nil, err
		}
		args = append(args, "-nostdlib", "-static")
		args = append(args, "-o", plan.OutputPath)
		args = append(args, start, prolog)
	default:
		return nil, fmt.Errorf("unknown link strategy %v", plan.Strategy)
	}

	for _, dir := range cfg.SearchPaths {
		args = append(args, "-L"+dir)
	}
	if plan.ExtraSearchPath != "" {
		args = append(args, "-L", plan.ExtraSearchPath)
	}

	args = append(args, plan.ObjectPath)
	args = append(args, plan.ExtraObjects...)

	if plan.ExtraLibrary != "" {
		args = append(args, "-l", plan.ExtraLibrary)
	}
	args = append(args, "-lc")

	epilog, err := cfg.findCRT("crtn.o")
	if err != nil {
		return nil, err
	}
	args = append(args, epilog)
	return args, nil
}

// Link invokes the system linker and returns the executable path. On a
// nonzero exit, the returned error is an *Error carrying the linker's
// stderr; the object file is retained so the caller can inspect it.
// Cancellation kills the subprocess through ctx.
func Link(ctx context.Context, cfg *Config, plan *Plan) (string, error) {
	args, err := Args(cfg, plan)
	if err != nil {
		return "", err
	}
	// #nosec G204 -- linker binary and arguments come from trusted configuration
	cmd := exec.CommandContext(ctx, cfg.Linker, args...)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", &Error{Args: args, Stderr: stderr.String(), Err: err}
	}
	return plan.OutputPath, nil
}
