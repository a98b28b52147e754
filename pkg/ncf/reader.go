package ncf

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// File is an opened, validated NCF container, backed by an mmap when
// available and falling back to a plain read otherwise, exactly as
// pkg/mcf's reader does for model containers.
type File struct {
	Data     []byte
	Header   Header
	Sections []SectionDirEntry
	mmapped  bool
}

// Open maps path read-only, validates its header and section
// directory, and returns the resulting File. The caller must Close it.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size64 := stat.Size()
	if size64 < headerSize {
		return nil, ErrCorruptFile
	}
	size := int(size64)

	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ, unix.MAP_SHARED)
	if err == nil {
		nf, parseErr := parseFileData(data, true)
		if parseErr != nil {
			_ = unix.Munmap(data)
			return nil, parseErr
		}
		return nf, nil
	}

	data, err = readAllAt(f, size)
	if err != nil {
		return nil, err
	}
	return parseFileData(data, false)
}

// OpenBytes validates an in-memory NCF buffer without requiring a file
// handle or mmap; used to parse a stream already extracted (e.g. by the
// CMM extractor).
func OpenBytes(data []byte) (*File, error) {
	return parseFileData(data, false)
}

func readAllAt(r io.ReaderAt, size int) ([]byte, error) {
	if size == 0 {
		return []byte{}, nil
	}
	out := make([]byte, size)
	var off int64
	for off < int64(size) {
		n, err := r.ReadAt(out[off:], off)
		off += int64(n)
		if err == nil {
			continue
		}
		if err == io.EOF && off == int64(size) {
			break
		}
		return nil, err
	}
	return out, nil
}

func parseFileData(data []byte, mmapped bool) (*File, error) {
	if len(data) < headerSize {
		return nil, ErrCorruptFile
	}
	hdr, err := decodeHeader(data[:headerSize])
	if err != nil {
		return nil, err
	}
	if !hdr.Valid() {
		return nil, ErrInvalidMagic
	}
	if !hdr.Compatible() {
		return nil, ErrUnsupportedMajor
	}
	if hdr.FileSize != uint64(len(data)) {
		return nil, ErrCorruptFile
	}

	dirStart := hdr.SectionDirOffset
	dirSize := uint64(hdr.SectionCount) * sectionDirEntrySize
	dirEnd := dirStart + dirSize
	if dirStart < headerSize || dirEnd < dirStart || dirEnd > uint64(len(data)) {
		return nil, ErrCorruptFile
	}

	sections := make([]SectionDirEntry, hdr.SectionCount)
	for i := range sections {
		start := int(dirStart) + i*sectionDirEntrySize
		end := start + sectionDirEntrySize
		entry, err := decodeSectionDirEntry(data[start:end])
		if err != nil {
			return nil, fmt.Errorf("ncf: section %d: %w", i, err)
		}
		sections[i] = entry

		secEnd := entry.Offset + uint64(entry.PayloadBytes)
		if secEnd < entry.Offset || secEnd > uint64(len(data)) {
			return nil, fmt.Errorf("%w: section %d out of bounds", ErrCorruptFile, i)
		}
		if entry.Offset%sectionAlign != 0 {
			return nil, fmt.Errorf("%w: section %d not %d-byte aligned", ErrCorruptFile, i, sectionAlign)
		}
	}

	return &File{Data: data, Header: hdr, Sections: sections, mmapped: mmapped}, nil
}

// Close releases any mmap backing the file.
func (f *File) Close() error {
	if f == nil || f.Data == nil {
		return nil
	}
	var err error
	if f.mmapped {
		err = unix.Munmap(f.Data)
	}
	f.Data = nil
	return err
}

// Section returns the first directory entry of the given kind, or nil.
func (f *File) Section(kind SectionType) *SectionDirEntry {
	for i := range f.Sections {
		if SectionType(f.Sections[i].Kind) == kind {
			return &f.Sections[i]
		}
	}
	return nil
}

// SectionData returns a zero-copy view of a section's payload. The
// slice must not be retained past Close.
func (f *File) SectionData(s *SectionDirEntry) []byte {
	if f == nil || s == nil || f.Data == nil {
		return nil
	}
	start, end := s.Offset, s.Offset+uint64(s.PayloadBytes)
	if end < start || end > uint64(len(f.Data)) {
		return nil
	}
	return f.Data[start:end]
}

// Cascade decodes the container's sole Cascade section.
func (f *File) Cascade() (*CommandStream, error) {
	s := f.Section(SectionCascade)
	if s == nil {
		return nil, ErrSectionNotFound
	}
	return DecodeCascade(f.SectionData(s))
}
