// Package elfsniff classifies file contents as native ELF binaries by
// inspecting the leading identification bytes.
package elfsniff

import "io"

// IdentLen is the length of the ELF identification block (e_ident).
const IdentLen = 16

// elfMagic identifies an ELF file.
const elfMagic = "\x7fELF"

// Result is the outcome of sniffing a reader.
type Result int

const (
	// Undecidable means the reader could not supply enough bytes to classify
	// the content, or the read itself failed.
	Undecidable Result = iota
	// Binary means the content starts with the ELF magic sequence.
	Binary
	// NotBinary means the content was readable but is not an ELF binary.
	NotBinary
)

func (r Result) String() string {
	switch r {
	case Binary:
		return "binary"
	case NotBinary:
		return "not-binary"
	default:
		return "undecidable"
	}
}

// Sniff reads exactly IdentLen bytes from r and classifies them. It never
// seeks and never closes r; the caller owns the reader, whose position is
// advanced only by the single read.
func Sniff(r io.Reader) Result {
	var ident [IdentLen]byte
	if _, err := io.ReadFull(r, ident[:]); err != nil {
		return Undecidable
	}
	if string(ident[:len(elfMagic)]) == elfMagic {
		return Binary
	}
	return NotBinary
}
