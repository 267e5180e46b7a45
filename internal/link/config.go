// Package link drives the system linker to turn a relocatable object
// into a standalone executable. Argument order is load-bearing:
// startup objects come before the user object, the user object before
// the C library closure, and the init epilog object last. A wrong
// order produces a binary that crashes before reaching the entry
// point.
package link

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// ManifestName is the project manifest the [linker] section lives in.
const ManifestName = "anvil.toml"

// Config carries the host linker toolchain layout. The zero value is
// not usable; start from DefaultConfig.
type Config struct {
	// Linker is the linker binary, resolved through PATH when not
	// absolute.
	Linker string `toml:"linker"`
	// DynamicLinker is the interpreter path embedded into dynamic-PIE
	// executables.
	DynamicLinker string `toml:"dynamic_linker"`
	// CRTDirs are searched, in order, for C runtime startup objects
	// (Scrt1.o, crt1.o, crti.o, crtn.o).
	CRTDirs []string `toml:"crt_dirs"`
	// SearchPaths become -L directories, in order.
	SearchPaths []string `toml:"search_paths"`
}

type manifest struct {
	Linker Config `toml:"linker"`
}

// DefaultConfig returns the glibc x86-64 Linux layout.
func DefaultConfig() Config {
	return Config{
		Linker:        "ld",
		DynamicLinker: "/lib64/ld-linux-x86-64.so.2",
		CRTDirs: []string{
			"/usr/lib",
			"/usr/lib/x86_64-linux-gnu",
			"/usr/lib64",
			"/lib/x86_64-linux-gnu",
		},
		SearchPaths: []string{
			"/lib",
			"/usr/lib",
			"/usr/lib/x86_64-linux-gnu",
			"/usr/lib64",
		},
	}
}

// LoadConfig parses the [linker] section of an anvil.toml. Fields the
// manifest leaves out keep their defaults.
func LoadConfig(path string) (Config, error) {
	cfg := manifest{Linker: DefaultConfig()}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	return cfg.Linker, nil
}

// FindManifest walks up from startDir to locate anvil.toml.
func FindManifest(startDir string) (path string, ok bool, err error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, ManifestName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false, nil
}

// ResolveConfig loads the nearest manifest's [linker] section, or the
// defaults when no manifest exists.
func ResolveConfig(startDir string) (Config, error) {
	path, ok, err := FindManifest(startDir)
	if err != nil {
		return Config{}, err
	}
	if !ok {
		return DefaultConfig(), nil
	}
	return LoadConfig(path)
}

// findCRT locates one startup object across CRTDirs.
func (c *Config) findCRT(name string) (string, error) {
	for _, dir := range c.CRTDirs {
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("startup object %q not found in %v", name, c.CRTDirs)
}
