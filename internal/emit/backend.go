package emit

// backend isolates the mode-specific half of a module: how finalized
// symbols turn into an artifact. The declaration/definition logic above
// it is shared by both modes.
type backend interface {
	finalize(m *Module) (*Artifact, error)
}
