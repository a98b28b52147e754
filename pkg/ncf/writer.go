package ncf

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
)

// WriteCascadeFile builds a single-section NCF container holding cs's
// encoded Cascade payload and writes it to path.
func WriteCascadeFile(path string, cs *CommandStream) error {
	data, err := MarshalCascadeFile(cs)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// MarshalCascadeFile builds the full container bytes for cs: header,
// single section-directory entry, and the Cascade payload, aligned and
// laid out per §4.6.
func MarshalCascadeFile(cs *CommandStream) ([]byte, error) {
	payload, err := EncodeCascade(cs)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.Write(make([]byte, headerSize))
	alignTo(&buf, sectionAlign)

	dirOffset := buf.Len()
	buf.Write(make([]byte, sectionDirEntrySize))
	alignTo(&buf, sectionAlign)

	payloadOffset := buf.Len()
	buf.Write(payload)

	out := buf.Bytes()

	hdr := Header{
		Major:            CurrentMajor,
		Minor:            CurrentMinor,
		HeaderSize:       headerSize,
		SectionCount:     1,
		SectionDirOffset: uint64(dirOffset),
		FileSize:         uint64(len(out)),
	}
	copy(hdr.Magic[:], MagicNCF)
	if err := encodeHeaderInto(out[:headerSize], &hdr); err != nil {
		return nil, err
	}

	entry := SectionDirEntry{Kind: uint32(SectionCascade), PayloadBytes: uint32(len(payload)), Offset: uint64(payloadOffset)}
	if err := encodeSectionDirEntryInto(out[dirOffset:dirOffset+sectionDirEntrySize], &entry); err != nil {
		return nil, err
	}

	return out, nil
}

func alignTo(buf *bytes.Buffer, align int) {
	for buf.Len()%align != 0 {
		buf.WriteByte(0)
	}
}

func decodeHeader(b []byte) (Header, error) {
	if len(b) < headerSize {
		return Header{}, ErrCorruptFile
	}
	var h Header
	copy(h.Magic[:], b[0:4])
	h.Major = binary.LittleEndian.Uint16(b[4:6])
	h.Minor = binary.LittleEndian.Uint16(b[6:8])
	h.HeaderSize = binary.LittleEndian.Uint32(b[8:12])
	h.SectionCount = binary.LittleEndian.Uint32(b[12:16])
	h.SectionDirOffset = binary.LittleEndian.Uint64(b[16:24])
	h.FileSize = binary.LittleEndian.Uint64(b[24:32])
	return h, nil
}

func encodeHeaderInto(b []byte, h *Header) error {
	if len(b) < headerSize {
		return fmt.Errorf("ncf: header buffer too small")
	}
	copy(b[0:4], h.Magic[:])
	binary.LittleEndian.PutUint16(b[4:6], h.Major)
	binary.LittleEndian.PutUint16(b[6:8], h.Minor)
	binary.LittleEndian.PutUint32(b[8:12], h.HeaderSize)
	binary.LittleEndian.PutUint32(b[12:16], h.SectionCount)
	binary.LittleEndian.PutUint64(b[16:24], h.SectionDirOffset)
	binary.LittleEndian.PutUint64(b[24:32], h.FileSize)
	return nil
}

func decodeSectionDirEntry(b []byte) (SectionDirEntry, error) {
	if len(b) < sectionDirEntrySize {
		return SectionDirEntry{}, ErrCorruptFile
	}
	var e SectionDirEntry
	e.Kind = binary.LittleEndian.Uint32(b[0:4])
	e.PayloadBytes = binary.LittleEndian.Uint32(b[4:8])
	e.Offset = binary.LittleEndian.Uint64(b[8:16])
	return e, nil
}

func encodeSectionDirEntryInto(b []byte, e *SectionDirEntry) error {
	if len(b) < sectionDirEntrySize {
		return fmt.Errorf("ncf: section directory buffer too small")
	}
	binary.LittleEndian.PutUint32(b[0:4], e.Kind)
	binary.LittleEndian.PutUint32(b[4:8], e.PayloadBytes)
	binary.LittleEndian.PutUint64(b[8:16], e.Offset)
	return nil
}
