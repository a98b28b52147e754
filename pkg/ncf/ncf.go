// Package ncf implements the NPU Command-stream Format: the binary
// container the compiler emits for firmware consumption (SPEC_FULL.md
// §4.6 / C7), its XML mirror for tests and offline debugging, and the
// CMM extractor used to recover a command stream and binding table
// from a raw hex-dump capture.
//
// The container shape (magic + header + section directory + aligned
// section payloads, validated bounds on open) is the same one
// pkg/mcf used for model containers; this package is that structure
// retargeted at a single section kind.
package ncf

import "fmt"

const (
	// MagicNCF is the file magic for all NCF containers, encoded "NCF\0".
	MagicNCF = "NCF\x00"

	CurrentMajor uint16 = 1
	CurrentMinor uint16 = 0
)

// Header is the fixed-size file header.
type Header struct {
	Magic            [4]byte
	Major            uint16
	Minor            uint16
	HeaderSize       uint32
	SectionCount     uint32
	SectionDirOffset uint64
	FileSize         uint64
}

const headerSize = 4 + 2 + 2 + 4 + 4 + 8 + 8

func (h *Header) Valid() bool {
	return string(h.Magic[:]) == MagicNCF && h.SectionCount > 0
}

func (h *Header) Compatible() bool {
	return h.Major == CurrentMajor
}

func (h *Header) String() string {
	return fmt.Sprintf("NCF v%d.%d (%d sections, %d bytes)", h.Major, h.Minor, h.SectionCount, h.FileSize)
}

// SectionType identifies a section's payload kind.
type SectionType uint32

const (
	SectionCascade SectionType = 0x0001
)

// SectionDirEntry is one fixed-size section-directory record.
type SectionDirEntry struct {
	Kind         uint32
	PayloadBytes uint32
	Offset       uint64
}

const sectionDirEntrySize = 4 + 4 + 8

const sectionAlign = 8
