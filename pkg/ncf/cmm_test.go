package ncf

import (
	"encoding/binary"
	"fmt"
	"strings"
	"testing"
)

func TestExtractCMMFindsBindingTableAndStream(t *testing.T) {
	cs := sampleStream()
	stream, err := MarshalCascadeFile(cs)
	if err != nil {
		t.Fatalf("MarshalCascadeFile: %v", err)
	}

	const (
		bindingTableAddr = 0x1000
		streamBufferAddr = 0x2000
	)

	var mem []byte
	write32 := func(v uint32) { mem = binary.LittleEndian.AppendUint32(mem, v) }
	write64 := func(v uint64) { mem = binary.LittleEndian.AppendUint64(mem, v) }

	write32(1) // numBuffers
	write32(7) // buffer id
	write64(streamBufferAddr)
	write64(uint64(len(stream)))
	write32(uint32(BufferConstant))

	dump := hexDumpFrom(bindingTableAddr, mem)
	dump += hexDumpFrom(streamBufferAddr, stream)

	entries, extracted, err := ExtractCMM([]byte(dump))
	if err != nil {
		t.Fatalf("ExtractCMM: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != 7 {
		t.Fatalf("binding table = %+v, want one entry with id 7", entries)
	}
	if string(extracted[:4]) != MagicNCF {
		t.Fatalf("extracted stream does not start with the NCF magic")
	}
}

// hexDumpFrom renders data as one "<addr>: <word>" line per 4-byte
// little-endian word, the inverse of parseHexDump.
func hexDumpFrom(base int64, data []byte) string {
	var b strings.Builder
	for i := 0; i < len(data); i += 4 {
		end := i + 4
		for end > len(data) {
			data = append(data, 0)
		}
		word := binary.LittleEndian.Uint32(data[i:end])
		fmt.Fprintf(&b, "%x: %08x\n", base+int64(i), word)
	}
	return b.String()
}
