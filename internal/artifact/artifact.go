// Package artifact persists finalized object-mode output as .anvo
// files: a msgpack envelope carrying the object bytes together with
// the symbol surface a later link step needs.
package artifact

import (
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vmihailenco/msgpack/v5"
)

// Ext is the artifact file extension.
const Ext = ".anvo"

// Current schema version - increment when File format changes.
const schemaVersion uint16 = 1

// Digest is a sha256 content hash.
type Digest [sha256.Size]byte

// File is the on-disk artifact envelope.
type File struct {
	// Schema version for safe invalidation when format changes
	Schema uint16

	Name   string
	Triple string

	// Object is the relocatable ELF payload.
	Object []byte

	// Exports and Locals name the defined symbols; Imports name the
	// symbols left for the external linker.
	Exports []string
	Locals  []string
	Imports []string

	// ObjectHash validates the payload on load.
	ObjectHash Digest
}

// New builds an envelope over object bytes, stamping the schema and
// payload hash.
func New(name, triple string, object []byte, exports, locals, imports []string) *File {
	return &File{
		Schema:     schemaVersion,
		Name:       name,
		Triple:     triple,
		Object:     object,
		Exports:    exports,
		Locals:     locals,
		Imports:    imports,
		ObjectHash: sha256.Sum256(object),
	}
}

// Save writes the envelope atomically: encode into a temp file in the
// target directory, then rename over the destination.
func Save(path string, f *File) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create artifact dir %q: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp artifact: %w", err)
	}
	defer func() {
		_ = os.Remove(tmp.Name())
	}()

	enc := msgpack.NewEncoder(tmp)
	if err := enc.Encode(f); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to encode artifact %q: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp artifact: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to place artifact %q: %w", path, err)
	}
	return nil
}

// Load reads and validates an envelope. A schema or hash mismatch is
// an error, not a silent fallback.
func Load(path string) (*File, error) {
	r, err := os.Open(path) // #nosec G304 -- artifact path comes from the caller
	if err != nil {
		return nil, fmt.Errorf("failed to open artifact %q: %w", path, err)
	}
	defer func() {
		_ = r.Close()
	}()

	var f File
	dec := msgpack.NewDecoder(r)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to decode artifact %q: %w", path, err)
	}
	if f.Schema != schemaVersion {
		return nil, fmt.Errorf("artifact %q: schema %d, want %d", path, f.Schema, schemaVersion)
	}
	if f.ObjectHash != sha256.Sum256(f.Object) {
		return nil, fmt.Errorf("artifact %q: object hash mismatch", path)
	}
	return &f, nil
}
