// Package harness runs linked executables and manages the temp files a
// link session produces. The only output channel a produced executable
// has is its process exit code.
package harness

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Session owns the temp files of one object-to-executable round trip.
// The caller cleans up with Close; on link failure the object file is
// deliberately left behind for inspection, so Close is opt-in.
type Session struct {
	Name       string
	ObjectPath string
	ExePath    string
}

// NewSession reserves collision-resistant temp paths derived from the
// artifact name. Concurrent sessions may share the temp directory.
func NewSession(name string) (*Session, error) {
	obj, err := tempPath(name, ".o")
	if err != nil {
		return nil, err
	}
	exe, err := tempPath(name, ".elf")
	if err != nil {
		return nil, err
	}
	return &Session{Name: name, ObjectPath: obj, ExePath: exe}, nil
}

func tempPath(name, suffix string) (string, error) {
	f, err := os.CreateTemp("", name+"-*"+suffix)
	if err != nil {
		return "", fmt.Errorf("failed to reserve temp file for %q: %w", name, err)
	}
	path := f.Name()
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to close temp file %q: %w", path, err)
	}
	return path, nil
}

// WriteObject persists the relocatable object bytes.
func (s *Session) WriteObject(object []byte) error {
	if err := os.WriteFile(s.ObjectPath, object, 0o600); err != nil {
		return fmt.Errorf("failed to write object %q: %w", s.ObjectPath, err)
	}
	return nil
}

// Close removes both temp files. Missing files are not an error.
func (s *Session) Close() error {
	var first error
	for _, path := range []string{s.ObjectPath, s.ExePath} {
		if path == "" {
			continue
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			if first == nil {
				first = err
			}
		}
	}
	return first
}

// Run executes a produced binary and returns its exit code. extraEnv
// entries ("KEY=value") are appended to the inherited environment; a
// shared-library scenario passes LD_LIBRARY_PATH here.
func Run(ctx context.Context, exePath string, extraEnv ...string) (int, error) {
	abs, err := filepath.Abs(exePath)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve %q: %w", exePath, err)
	}
	// #nosec G204 -- the executable is a build product of this session
	cmd := exec.CommandContext(ctx, abs)
	if len(extraEnv) > 0 {
		cmd.Env = append(os.Environ(), extraEnv...)
	}
	var stderr strings.Builder
	cmd.Stderr = &stderr
	err = cmd.Run()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() >= 0 {
		return exitErr.ExitCode(), nil
	}
	msg := strings.TrimSpace(stderr.String())
	if msg != "" {
		return 0, fmt.Errorf("%s: %s", exePath, msg)
	}
	return 0, fmt.Errorf("%s: %w", exePath, err)
}
