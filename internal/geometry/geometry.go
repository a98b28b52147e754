// Package geometry implements the pure tensor and stripe shape
// arithmetic of SPEC_FULL.md §4.2 (C2): rounding helpers, byte-count
// helpers per buffer format, stripe synthesis, and tile-size
// calculation. Every function here is pure and stateless.
package geometry

import (
	"github.com/ethosn/cascadec/internal/hwcaps"
	"github.com/ethosn/cascadec/pkg/npu"
)

// Format is a buffer's memory layout.
type Format int

const (
	NHWC Format = iota
	NCHW
	NHWCB
	FcafWide
	FcafDeep
	WeightFormat
)

// RoundUp rounds x up to the nearest multiple of m. m must be positive.
func RoundUp(x, m int) int {
	if m <= 0 {
		return x
	}
	if x%m == 0 {
		return x
	}
	return x + (m - x%m)
}

// DivRoundUp returns ceil(x/m).
func DivRoundUp(x, m int) int {
	if m <= 0 {
		return 0
	}
	return (x + m - 1) / m
}

// RoundUpHWToBrickGroup rounds the H and W dimensions of shape up to the
// brick-group multiple; N and C are left untouched by this helper (C's
// own rounding is a separate, channel-rounding-specific concern).
func RoundUpHWToBrickGroup(shape npu.Shape) npu.Shape {
	shape.H = RoundUp(shape.H, hwcaps.BrickGroup[1])
	shape.W = RoundUp(shape.W, hwcaps.BrickGroup[2])
	return shape
}

// RoundUpChannels rounds C up to the SRAM-count multiple, the invariant
// every SRAM-resident tensor must satisfy per §3.
func RoundUpChannels(shape npu.Shape, channelRounding int) npu.Shape {
	shape.C = RoundUp(shape.C, channelRounding)
	return shape
}

// BytesPerElement returns the per-element byte width implied by a
// format; formats other than the packed ones use the data type's own
// width.
func BytesPerElement(dt npu.DataType) int { return dt.ElemSize() }

// ByteCount returns the number of bytes a tensor of the given shape
// occupies in the given format. NHWCB is the canonical brick-packed
// format: it rounds H and W up to the brick group and C up to the
// brick-group channel count before computing the flat byte count. NHWC/
// NCHW are unpacked and need no rounding. FCAF variants round H, W and C
// up to their respective cell shapes.
func ByteCount(shape npu.Shape, format Format, dt npu.DataType, caps hwcaps.Caps) int64 {
	elem := int64(BytesPerElement(dt))
	switch format {
	case NHWC, NCHW:
		return shape.N64() * shape.H64() * shape.W64() * shape.C64() * elem
	case NHWCB:
		s := RoundUpHWToBrickGroup(shape)
		s = RoundUpChannels(s, hwcaps.BrickGroup[3])
		return s.N64() * s.H64() * s.W64() * s.C64() * elem
	case FcafDeep:
		return fcafByteCount(shape, caps.FcafDeepCell, elem)
	case FcafWide:
		return fcafByteCount(shape, caps.FcafWideCell, elem)
	case WeightFormat:
		return shape.N64() * shape.H64() * shape.W64() * shape.C64() * elem
	default:
		return 0
	}
}

func fcafByteCount(shape npu.Shape, cell hwcaps.CellShape, elem int64) int64 {
	h := RoundUp(shape.H, cell.H)
	w := RoundUp(shape.W, cell.W)
	c := RoundUp(shape.C, cell.C)
	return int64(shape.N) * int64(h) * int64(w) * int64(c) * elem
}

// CreateStripe synthesises a stripe shape from a tensor shape and an
// encoding. encoding[i] == 0 means "full length in dimension i";
// otherwise the encoded length is clamped to the tensor size, then H/W
// are rounded up to the brick group and C is rounded up to
// channelRounding, per §4.2.
func CreateStripe(tensor npu.Shape, encoding npu.Shape, channelRounding int) npu.Shape {
	clamp := func(enc, full int) int {
		if enc == 0 {
			return full
		}
		if enc > full {
			return full
		}
		return enc
	}

	stripe := npu.Shape{
		N: clamp(encoding.N, tensor.N),
		H: clamp(encoding.H, tensor.H),
		W: clamp(encoding.W, tensor.W),
		C: clamp(encoding.C, tensor.C),
	}
	stripe.H = RoundUp(stripe.H, hwcaps.BrickGroup[1])
	if stripe.H > tensor.H {
		stripe.H = RoundUp(tensor.H, hwcaps.BrickGroup[1])
	}
	stripe.W = RoundUp(stripe.W, hwcaps.BrickGroup[2])
	if stripe.W > tensor.W {
		stripe.W = RoundUp(tensor.W, hwcaps.BrickGroup[2])
	}
	stripe.C = RoundUp(stripe.C, channelRounding)
	if stripe.C > tensor.C {
		stripe.C = RoundUp(tensor.C, channelRounding)
	}
	return stripe
}

// PackedBoundary describes extra halo thickness baked into a stripe's
// tile on each side, to avoid reloading neighbour data.
type PackedBoundary struct {
	Before, After int // pixels, applies to both H and W symmetrically per plan
}

// TileSize is the result of CalculateTileSize.
type TileSize struct {
	SlotSizeBytes  int64
	SizeBytes      int64
	ForbidFcafWide bool
}

// CalculateTileSize computes the SRAM tile size for one buffer, given
// its tensor shape, chosen stripe shape, packed-boundary thickness,
// slot count, and whether the producing buffer could plausibly be FCAF
// compressed. See §4.2 for the five-step algorithm.
func CalculateTileSize(caps hwcaps.Caps, tensor npu.Shape, stripe npu.Shape, boundary PackedBoundary, numSlots int, dt npu.DataType, couldSourceBeFcaf bool) TileSize {
	withBoundary := stripe
	withBoundary.H += boundary.Before + boundary.After
	withBoundary.W += boundary.Before + boundary.After

	forbidFcafWide := false
	roundedForSlot := withBoundary
	if couldSourceBeFcaf {
		deep := RoundUp(roundedForSlot.H, caps.FcafDeepCell.H)
		deepW := RoundUp(roundedForSlot.W, caps.FcafDeepCell.W)
		wideW := RoundUp(roundedForSlot.W, caps.FcafWideCell.W)
		wideH := RoundUp(roundedForSlot.H, caps.FcafWideCell.H)
		if wideW != deepW || wideH != deep {
			// Wide and deep cells disagree on the rounded shape for this
			// stripe: a wide-compressed source would not tile evenly, so
			// the combiner must not choose FCAF_WIDE for this buffer.
			forbidFcafWide = true
		}
		roundedForSlot.H = deep
		roundedForSlot.W = deepW
	}

	slotSize := ByteCount(roundedForSlot, NHWCB, dt, caps)

	hasBoundary := boundary.Before != 0 || boundary.After != 0
	if hasBoundary {
		return TileSize{SlotSizeBytes: slotSize, SizeBytes: slotSize * int64(numSlots), ForbidFcafWide: forbidFcafWide}
	}

	maxTileShape := tensor
	if couldSourceBeFcaf {
		maxTileShape.H = RoundUp(maxTileShape.H, caps.FcafDeepCell.H)
		maxTileShape.W = RoundUp(maxTileShape.W, caps.FcafDeepCell.W)
	}
	maxTile := ByteCount(maxTileShape, NHWCB, dt, caps)

	sized := slotSize * int64(numSlots)
	if maxTile < sized {
		sized = maxTile
	}
	return TileSize{SlotSizeBytes: slotSize, SizeBytes: sized, ForbidFcafWide: forbidFcafWide}
}

// BoundaryRequirements reports which sides of a dimension need packed
// boundary halo, given padding, tensor extent, the input/output stripe
// split, and the kernel size in that dimension.
func BoundaryRequirements(padBefore, size, stripeIn, stripeOut, kernel int) (before, after bool) {
	if kernel <= 1 {
		return false, false
	}
	splitIn := stripeIn > 0 && stripeIn < size
	splitOut := stripeOut > 0 && stripeOut < size
	if !splitIn && !splitOut {
		return false, false
	}
	before = padBefore > 0 || splitIn || splitOut
	after = true
	return before, after
}
