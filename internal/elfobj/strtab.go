package elfobj

import "bytes"

// stringTable builds an ELF string table. Offset 0 is the empty
// string; identical names share one entry.
type stringTable struct {
	buf  bytes.Buffer
	offs map[string]uint32
}

func newStringTable() *stringTable {
	t := &stringTable{offs: make(map[string]uint32)}
	t.buf.WriteByte(0)
	return t
}

func (t *stringTable) add(s string) uint32 {
	if s == "" {
		return 0
	}
	if off, ok := t.offs[s]; ok {
		return off
	}
	off := uint32(t.buf.Len())
	t.offs[s] = off
	t.buf.WriteString(s)
	t.buf.WriteByte(0)
	return off
}

func (t *stringTable) bytes() []byte { return t.buf.Bytes() }
