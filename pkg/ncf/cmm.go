package ncf

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
)

// BufferKind classifies one entry of a binding table extracted from a
// CMM capture.
type BufferKind int

const (
	BufferInput BufferKind = iota
	BufferOutput
	BufferIntermediate
	BufferConstant
)

func (k BufferKind) String() string {
	names := [...]string{"Input", "Output", "Intermediate", "Constant"}
	if int(k) < len(names) {
		return names[k]
	}
	return "Unknown"
}

// BindingTableEntry maps one buffer id to its address, size and kind.
type BindingTableEntry struct {
	ID      uint32
	Address uint64
	Size    uint64
	Kind    BufferKind
}

// bindingEntrySize is the fixed-width record CMM captures use
// for both the inference table and the per-buffer binding table: an
// id/address/size/kind quadruple, matching EncodeCascade's own
// little-endian, unpadded style.
const bindingEntrySize = 4 + 8 + 8 + 4

// ExtractCMM scans a hex-dump capture (lines of the form
// "<addr>: w0 w1 w2 w3 ...", one 32-bit little-endian word per field)
// for the inference-table entry, follows its buffer list, and returns
// the binding table plus the raw command-stream bytes.
func ExtractCMM(hexDump []byte) ([]BindingTableEntry, []byte, error) {
	mem, base, err := parseHexDump(hexDump)
	if err != nil {
		return nil, nil, err
	}

	inferenceOff, ok := findInferenceTable(mem)
	if !ok {
		return nil, nil, fmt.Errorf("ncf: inference table not found in capture")
	}

	numBuffers := binary.LittleEndian.Uint32(mem[inferenceOff:])
	bindingOff := inferenceOff + 4
	entries := make([]BindingTableEntry, 0, numBuffers)
	for i := uint32(0); i < numBuffers; i++ {
		start := bindingOff + int(i)*bindingEntrySize
		if start+bindingEntrySize > len(mem) {
			return nil, nil, fmt.Errorf("ncf: binding table entry %d out of bounds", i)
		}
		e := BindingTableEntry{
			ID:      binary.LittleEndian.Uint32(mem[start:]),
			Address: binary.LittleEndian.Uint64(mem[start+4:]),
			Size:    binary.LittleEndian.Uint64(mem[start+12:]),
			Kind:    BufferKind(binary.LittleEndian.Uint32(mem[start+20:])),
		}
		entries = append(entries, e)
	}

	var cmdStream []byte
	// The command stream is the first binding-table buffer, of any
	// kind, whose address range lies inside the capture and whose bytes
	// start with MagicNCF.
	for _, e := range entries {
		relOff := int64(e.Address) - base
		if relOff < 0 || relOff+int64(e.Size) > int64(len(mem)) {
			continue
		}
		candidate := mem[relOff : relOff+int64(e.Size)]
		if len(candidate) >= 4 && string(candidate[:4]) == MagicNCF {
			cmdStream = candidate
			break
		}
	}
	if cmdStream == nil {
		return nil, nil, fmt.Errorf("ncf: no buffer in the binding table starts with the NCF magic")
	}

	return entries, cmdStream, nil
}

// findInferenceTable locates the inference-table entry. It always
// returns offset 0, the lowest address in the capture, without
// validating the records found there; it fails only when the capture
// holds fewer than four bytes.
func findInferenceTable(mem []byte) (int, bool) {
	if len(mem) < 4 {
		return 0, false
	}
	return 0, true
}

// parseHexDump parses lines of the form "<addr>: w0 w1 w2 w3" (one
// 32-bit little-endian word per field) into a contiguous byte buffer
// starting at the lowest address seen, returning that base address.
func parseHexDump(dump []byte) ([]byte, int64, error) {
	type word struct {
		addr int64
		val  uint32
	}
	var words []word
	minAddr := int64(-1)

	scanner := bufio.NewScanner(bytes.NewReader(dump))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		addr, err := strconv.ParseInt(strings.TrimSpace(parts[0]), 16, 64)
		if err != nil {
			continue
		}
		fields := strings.Fields(parts[1])
		for i, f := range fields {
			v, err := strconv.ParseUint(f, 16, 32)
			if err != nil {
				return nil, 0, fmt.Errorf("ncf: malformed hex word %q: %w", f, err)
			}
			wordAddr := addr + int64(i)*4
			words = append(words, word{addr: wordAddr, val: uint32(v)})
			if minAddr < 0 || wordAddr < minAddr {
				minAddr = wordAddr
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, err
	}
	if len(words) == 0 {
		return nil, 0, fmt.Errorf("ncf: empty or unparseable hex dump")
	}

	maxAddr := minAddr
	for _, w := range words {
		if w.addr > maxAddr {
			maxAddr = w.addr
		}
	}
	buf := make([]byte, maxAddr-minAddr+4)
	for _, w := range words {
		binary.LittleEndian.PutUint32(buf[w.addr-minAddr:], w.val)
	}
	return buf, minAddr, nil
}
