// Package weightenc is the memoising cache in front of the external
// weight-encoder algorithm (SPEC_FULL.md §4.3 / C3). The encoder
// itself is an out-of-scope collaborator, modelled here as a pure
// function value so the cache can be tested without it.
package weightenc

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/ethosn/cascadec/pkg/npu"
)

// Operation identifies which MCE operation the weights belong to.
type Operation int

const (
	OpConvolution Operation = iota
	OpDepthwise
	OpFullyConnected
	OpTransposeConvolution
)

// Algorithm identifies the weight-compression algorithm variant.
type Algorithm int

const (
	AlgoDefault Algorithm = iota
	AlgoWinograd
)

// Layout identifies the on-disk axis order of Params.WeightsData, as
// produced by the framework the network was imported from. The MCE
// only ever consumes HWIO; any other layout is swizzled into HWIO
// before the underlying encoder ever sees it, per §4.3/§8.
type Layout int

const (
	LayoutHWIO Layout = iota
	LayoutOHWI
	LayoutOIHW
)

// Params is every field that feeds the external encoder and therefore
// every field the cache key must cover, per §4.3.
type Params struct {
	WeightsData []byte
	WeightsInfo npu.TensorInfo
	BiasData    []byte
	BiasInfo    npu.TensorInfo
	InputQuant  npu.QuantInfo
	OutputQuant npu.QuantInfo

	// Layout is the axis order WeightsData/WeightsInfo.Shape are given
	// in; WeightsInfo.Shape's (N,H,W,C) fields alias whatever four axes
	// Layout names (e.g. under LayoutOIHW, N holds O, H holds I).
	Layout Layout

	StripeDepth   int
	StrideH       int
	StrideW       int
	PadTop        int
	PadLeft       int
	PadBottom     int
	PadRight      int
	IterationSize int
	Operation     Operation
	Algorithm     Algorithm
}

// SwizzleOHWIToHWIO reorders weight data from OHWI axis order (o,h,w,i)
// into the MCE's HWIO order, an O-major to O-minor transpose over an
// otherwise unchanged (H,W,I) traversal.
func SwizzleOHWIToHWIO(data []byte, o, h, w, i, elemSize int) []byte {
	out := make([]byte, len(data))
	for oo := 0; oo < o; oo++ {
		for hh := 0; hh < h; hh++ {
			for ww := 0; ww < w; ww++ {
				for ii := 0; ii < i; ii++ {
					src := (((oo*h+hh)*w+ww)*i + ii) * elemSize
					dst := (((hh*w+ww)*i+ii)*o + oo) * elemSize
					copy(out[dst:dst+elemSize], data[src:src+elemSize])
				}
			}
		}
	}
	return out
}

// SwizzleOIHWToHWIO reorders weight data from OIHW axis order (o,i,h,w)
// into the MCE's HWIO order.
func SwizzleOIHWToHWIO(data []byte, o, i, h, w, elemSize int) []byte {
	out := make([]byte, len(data))
	for oo := 0; oo < o; oo++ {
		for ii := 0; ii < i; ii++ {
			for hh := 0; hh < h; hh++ {
				for ww := 0; ww < w; ww++ {
					src := (((oo*i+ii)*h+hh)*w + ww) * elemSize
					dst := (((hh*w+ww)*i+ii)*o + oo) * elemSize
					copy(out[dst:dst+elemSize], data[src:src+elemSize])
				}
			}
		}
	}
	return out
}

// swizzleToHWIO returns p.WeightsData reordered into HWIO according to
// p.Layout, passing LayoutHWIO data through unchanged. WeightsInfo.Shape
// is read positionally: its (N,H,W,C) fields hold whatever four axes
// Layout names, in that order.
func swizzleToHWIO(p Params) []byte {
	s := p.WeightsInfo.Shape
	elemSize := p.WeightsInfo.Type.ElemSize()
	switch p.Layout {
	case LayoutOHWI:
		return SwizzleOHWIToHWIO(p.WeightsData, s.N, s.H, s.W, s.C, elemSize)
	case LayoutOIHW:
		return SwizzleOIHWToHWIO(p.WeightsData, s.N, s.H, s.W, s.C, elemSize)
	default:
		return p.WeightsData
	}
}

// EncodedWeights is the external encoder's output: the encoded byte
// stream plus the maximum slot size any single weight stripe occupies.
type EncodedWeights struct {
	Data        []byte
	MaxSlotSize int
}

// EncodeFunc is the external collaborator's pure-function contract:
// encode(params) -> EncodedWeights. Two calls with equal Params must
// return byte-identical results.
type EncodeFunc func(Params) (EncodedWeights, error)

// key is the memoisation key: a fingerprint of every field of Params
// that affects the encoder's output, per §4.3. Byte slices are hashed
// rather than compared/stored verbatim, the same way the teacher's
// pkg/mcf/dedup.go fingerprints tensor payloads before deduplicating.
type key struct {
	weightsHash [32]byte
	biasHash    [32]byte
	weightsInfo npu.TensorInfo
	biasInfo    npu.TensorInfo
	inputQuant  npu.QuantInfo
	outputQuant npu.QuantInfo
	stripeDepth int
	stride      [2]int
	padding     [4]int
	iterSize    int
	operation   Operation
	algorithm   Algorithm
}

func fingerprint(p Params) key {
	return key{
		weightsHash: sha256.Sum256(p.WeightsData),
		biasHash:    sha256.Sum256(p.BiasData),
		weightsInfo: p.WeightsInfo,
		biasInfo:    p.BiasInfo,
		inputQuant:  p.InputQuant,
		outputQuant: p.OutputQuant,
		stripeDepth: p.StripeDepth,
		stride:      [2]int{p.StrideH, p.StrideW},
		padding:     [4]int{p.PadTop, p.PadLeft, p.PadBottom, p.PadRight},
		iterSize:    p.IterationSize,
		operation:   p.Operation,
		algorithm:   p.Algorithm,
	}
}

// Cache is a memoising adapter over an external encoder. A Cache is not
// safe for sharing across goroutines (per §5, the compiler core itself
// runs single-threaded) but does guard its own map with a mutex so that
// callers from a single-threaded compiler plus concurrent test helpers
// behave predictably.
type Cache struct {
	encode EncodeFunc

	mu      sync.Mutex
	entries map[key]EncodedWeights
	calls   int // number of times the underlying encoder actually ran
}

// New creates a Cache wrapping encode. The cache never evicts entries
// used during a single compilation, per §4.3's contract.
func New(encode EncodeFunc) *Cache {
	return &Cache{encode: encode, entries: make(map[key]EncodedWeights)}
}

// Encode returns the cached result for p if one exists, otherwise calls
// the underlying encoder, stores the result, and returns it. Non-HWIO
// weight data is swizzled into HWIO first, per §4.3.
func (c *Cache) Encode(p Params) (EncodedWeights, error) {
	p.WeightsData = swizzleToHWIO(p)
	p.Layout = LayoutHWIO

	k := fingerprint(p)

	c.mu.Lock()
	if cached, ok := c.entries[k]; ok {
		c.mu.Unlock()
		return cached, nil
	}
	c.mu.Unlock()

	out, err := c.encode(p)
	if err != nil {
		return EncodedWeights{}, fmt.Errorf("weightenc: encode failed: %w", err)
	}

	c.mu.Lock()
	c.entries[k] = out
	c.calls++
	c.mu.Unlock()
	return out, nil
}

// CallCount returns the number of times the underlying encoder actually
// ran, for tests that assert memoisation took effect.
func (c *Cache) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// Len returns the number of distinct cache entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// fingerprintDigest is a small helper used by tests to sanity-check that
// two Params with equal fields hash identically regardless of slice
// backing-array identity.
func fingerprintDigest(p Params) []byte {
	k := fingerprint(p)
	buf := make([]byte, 0, 64)
	buf = append(buf, k.weightsHash[:]...)
	buf = append(buf, k.biasHash[:]...)
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], uint64(k.stripeDepth))
	buf = append(buf, tmp[:]...)
	return buf
}
