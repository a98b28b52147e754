// Package planner implements the per-part plan generators of
// SPEC_FULL.md §4.4 (C5): for each part variant, enumerate the
// candidate stripe/block-config splits the combiner (C6) may pick
// between, filter out any that violate a hardware or SRAM-capacity
// invariant, and cache the result per query key.
package planner

import (
	"fmt"
	"sort"

	"github.com/ethosn/cascadec/internal/geometry"
	"github.com/ethosn/cascadec/internal/graph"
	"github.com/ethosn/cascadec/internal/hwcaps"
	"github.com/ethosn/cascadec/pkg/npu"
)

// CascadeType constrains which stripe splits a plan may use, depending
// on where in a section the part sits.
type CascadeType int

const (
	Lonely CascadeType = iota
	Beginning
	Middle
	End
)

func (c CascadeType) String() string {
	switch c {
	case Lonely:
		return "Lonely"
	case Beginning:
		return "Beginning"
	case Middle:
		return "Middle"
	case End:
		return "End"
	default:
		return "Unknown"
	}
}

// BlockConfig is one of the six MCE block sizes enabled for stripe
// search.
type BlockConfig struct{ H, W int }

// BlockConfigs lists every block size the combiner may choose between.
var BlockConfigs = []BlockConfig{
	{H: 8, W: 8}, {H: 8, W: 16}, {H: 16, W: 8},
	{H: 16, W: 16}, {H: 8, W: 32}, {H: 32, W: 8},
}

// SplitKind enumerates the stripe-split strategies of §4.4.
type SplitKind int

const (
	SplitNone SplitKind = iota
	SplitWidthOnly
	SplitMceAndPleOutputHeight
	SplitMceOutputHeightOnly
	SplitWidthHeight
	SplitWidthHeightOutputDepth
	SplitWidthHeightOutputDepthInputDepth
	SplitOutputDepthInputDepth
	SplitMceOutputDepthOnly
	SplitMceAndPleOutputDepth
	SplitInputDepthOnly
)

// AllSplits lists every split kind enabled for stripe search.
var AllSplits = []SplitKind{
	SplitNone, SplitWidthOnly, SplitMceAndPleOutputHeight, SplitMceOutputHeightOnly,
	SplitWidthHeight, SplitWidthHeightOutputDepth, SplitWidthHeightOutputDepthInputDepth,
	SplitOutputDepthInputDepth, SplitMceOutputDepthOnly, SplitMceAndPleOutputDepth, SplitInputDepthOnly,
}

// splitsH reports whether kind splits the height dimension anywhere in
// the plan (MCE output, PLE output, or both).
func (k SplitKind) splitsH() bool {
	switch k {
	case SplitMceAndPleOutputHeight, SplitMceOutputHeightOnly, SplitWidthHeight,
		SplitWidthHeightOutputDepth, SplitWidthHeightOutputDepthInputDepth:
		return true
	default:
		return false
	}
}

func (k SplitKind) splitsW() bool {
	switch k {
	case SplitWidthOnly, SplitWidthHeight, SplitWidthHeightOutputDepth, SplitWidthHeightOutputDepthInputDepth:
		return true
	default:
		return false
	}
}

func (k SplitKind) splitsOutputDepth() bool {
	switch k {
	case SplitWidthHeightOutputDepth, SplitWidthHeightOutputDepthInputDepth,
		SplitOutputDepthInputDepth, SplitMceOutputDepthOnly, SplitMceAndPleOutputDepth:
		return true
	default:
		return false
	}
}

func (k SplitKind) splitsInputDepth() bool {
	switch k {
	case SplitWidthHeightOutputDepthInputDepth, SplitOutputDepthInputDepth, SplitInputDepthOnly:
		return true
	default:
		return false
	}
}

// Buffer describes one SRAM-resident (or PLE-input) buffer of a plan:
// its full tensor shape, the chosen stripe shape, packed-boundary
// thickness, and number of slots.
type Buffer struct {
	Tensor   npu.Shape
	Stripe   npu.Shape
	Boundary geometry.PackedBoundary
	NumSlots int
	Format   geometry.Format
}

// Plan is one candidate implementation of a part: a block config, a
// buffer per role, and the derived reload counts and tile sizes the
// combiner needs to evaluate compatibility and cost.
type Plan struct {
	PartID graph.PartID
	Block  BlockConfig
	Split  SplitKind

	MceInput  Buffer
	MceOutput Buffer
	PleInput  Buffer
	PleOutput Buffer
	Weight    Buffer

	// Input1 is the buffer for a part's second input slot (Addition,
	// Addition_Rescale), populated only when the part has one; the zero
	// Buffer otherwise.
	Input1 Buffer

	NumWeightStripes int
	ReloadsIfm       bool
	ReloadsWeights   bool

	SramBytes int64
}

// Restriction narrows the plan search space under a caller-supplied
// compilation configuration (A2's stripe/block-config enablement), kept
// native to this package so planner need not import internal/config
// (which already imports planner for its SplitKind/BlockConfig types).
type Restriction struct {
	// Splits restricts which SplitKind values are considered; nil means
	// unrestricted. A false entry (rather than a missing one) also
	// disables that split.
	Splits map[SplitKind]bool
	// Blocks restricts which BlockConfig values are considered; nil
	// means unrestricted.
	Blocks map[BlockConfig]bool

	AllowLonely, AllowBeginning, AllowMiddle, AllowEnd bool

	DisableWinograd bool
}

// NoRestriction returns a Restriction that excludes nothing.
func NoRestriction() Restriction {
	return Restriction{AllowLonely: true, AllowBeginning: true, AllowMiddle: true, AllowEnd: true}
}

func (r Restriction) splitAllowed(k SplitKind) bool {
	if r.Splits == nil {
		return true
	}
	return r.Splits[k]
}

func (r Restriction) blockAllowed(b BlockConfig) bool {
	if r.Blocks == nil {
		return true
	}
	return r.Blocks[b]
}

func (r Restriction) cascadeAllowed(c CascadeType) bool {
	switch c {
	case Lonely:
		return r.AllowLonely
	case Beginning:
		return r.AllowBeginning
	case Middle:
		return r.AllowMiddle
	case End:
		return r.AllowEnd
	default:
		return false
	}
}

// cacheKey returns a deterministic string identity for use in planKey,
// since Restriction's maps make it non-comparable.
func (r Restriction) cacheKey() string {
	splitKeys := make([]int, 0, len(r.Splits))
	for k, v := range r.Splits {
		if v {
			splitKeys = append(splitKeys, int(k))
		}
	}
	sort.Ints(splitKeys)
	blockKeys := make([]string, 0, len(r.Blocks))
	for b, v := range r.Blocks {
		if v {
			blockKeys = append(blockKeys, fmt.Sprintf("%d,%d", b.H, b.W))
		}
	}
	sort.Strings(blockKeys)
	return fmt.Sprintf("s%v|b%v|%t%t%t%t|%t", splitKeys, blockKeys,
		r.AllowLonely, r.AllowBeginning, r.AllowMiddle, r.AllowEnd, r.DisableWinograd)
}

// planKey is the C5 plan-cache key of §4.4.
type planKey struct {
	partID             graph.PartID
	cascadeType        CascadeType
	block              BlockConfig
	prevBufferIdentity string
	numWeightStripes   int
	restriction        string
}

// PlanCache memoises GetPlans results, hit on repeated queries from the
// combiner's section search.
type PlanCache struct {
	entries map[planKey][]Plan
}

// NewPlanCache returns an empty plan cache.
func NewPlanCache() *PlanCache {
	return &PlanCache{entries: make(map[planKey][]Plan)}
}

// GetPlans returns every valid plan for part, under the given cascade
// type, block config, predecessor buffer identity (used only as a cache
// key, opaque to this package), weight-stripe count, and restriction
// (A2's stripe/block-config enablement), computing and caching the
// result on first query.
func (pc *PlanCache) GetPlans(part *graph.Part, caps hwcaps.Caps, cascadeType CascadeType, block BlockConfig, prevBufferIdentity string, numWeightStripes int, restrict Restriction) ([]Plan, error) {
	key := planKey{part.ID, cascadeType, block, prevBufferIdentity, numWeightStripes, restrict.cacheKey()}
	if plans, ok := pc.entries[key]; ok {
		return plans, nil
	}

	if !restrict.cascadeAllowed(cascadeType) || !restrict.blockAllowed(block) {
		pc.entries[key] = nil
		return nil, nil
	}

	plans, err := generatePlans(part, caps, cascadeType, block, numWeightStripes, restrict)
	if err != nil {
		return nil, err
	}
	pc.entries[key] = plans
	return plans, nil
}

func generatePlans(part *graph.Part, caps hwcaps.Caps, cascadeType CascadeType, block BlockConfig, numWeightStripes int, restrict Restriction) ([]Plan, error) {
	switch part.Kind {
	case graph.KindInput, graph.KindOutput:
		return []Plan{passthroughPlan(part, block)}, nil
	case graph.KindReshape, graph.KindConcat:
		return []Plan{passthroughPlan(part, block)}, nil
	case graph.KindEstimateOnly:
		return []Plan{passthroughPlan(part, block)}, nil
	case graph.KindMce, graph.KindFusedPle, graph.KindStandalonePle:
		return generateComputePlans(part, caps, cascadeType, block, numWeightStripes, restrict)
	default:
		return nil, fmt.Errorf("planner: unknown part kind %v", part.Kind)
	}
}

// passthroughPlan covers part kinds with no MCE/PLE stripe search:
// they carry their tensor's full shape as a single stripe.
func passthroughPlan(part *graph.Part, block BlockConfig) Plan {
	var tensor npu.Shape
	if len(part.OutputInfo) > 0 {
		tensor = part.OutputInfo[0].Shape
	} else if len(part.InputInfo) > 0 {
		tensor = part.InputInfo[0].Shape
	}
	buf := Buffer{Tensor: tensor, Stripe: tensor, NumSlots: 1, Format: geometry.NHWCB}
	return Plan{PartID: part.ID, Block: block, Split: SplitNone, MceOutput: buf, PleOutput: buf}
}

func generateComputePlans(part *graph.Part, caps hwcaps.Caps, cascadeType CascadeType, block BlockConfig, numWeightStripes int, restrict Restriction) ([]Plan, error) {
	if len(part.InputInfo) == 0 || len(part.OutputInfo) == 0 {
		return nil, fmt.Errorf("planner: compute part %d missing input/output tensor info", part.ID)
	}
	inTensor := part.InputInfo[0].Shape
	outTensor := part.OutputInfo[0].Shape
	dt := part.OutputInfo[0].Type
	multiInput := len(part.InputInfo) >= 2

	isDepthwise := false
	filterH, filterW := 1, 1
	if part.Kind == graph.KindMce {
		if info, ok := part.Sub.(*graph.MceInfo); ok {
			isDepthwise = info.Operation == graph.MceDepthwise
			filterH, filterW = info.FilterH, info.FilterW
		}
	} else if part.Kind == graph.KindFusedPle {
		if info, ok := part.Sub.(*graph.FusedPleInfo); ok {
			isDepthwise = info.Mce.Operation == graph.MceDepthwise
			filterH, filterW = info.Mce.FilterH, info.Mce.FilterW
		}
	}

	var plans []Plan
	for _, split := range allowedSplits(cascadeType, multiInput, restrict) {
		enc := encodingForSplit(split, block, outTensor)
		mceOutStripe := geometry.CreateStripe(outTensor, enc, hwcaps.BrickGroup[3])
		mceInEnc := enc
		if !split.splitsInputDepth() {
			mceInEnc.C = 0
		} else {
			mceInEnc.C = mceOutStripe.C
		}
		mceInStripe := geometry.CreateStripe(inTensor, mceInEnc, hwcaps.BrickGroup[3])

		numInStripes := stripeCount(inTensor, mceInStripe)
		numOutStripes := stripeCount(outTensor, mceOutStripe)

		// Stripes-vs-tensor: both sides claim to allow more than one
		// stripe yet the stripe covers the whole tensor in every dim —
		// a contradiction, discard.
		if numInStripes.total() > 1 && numOutStripes.total() > 1 &&
			mceInStripe == inTensor && mceOutStripe == outTensor {
			continue
		}

		pleInStripe := mceOutStripe
		pleOutStripe := mceOutStripe
		numPleInStripes := numOutStripes

		// Max MCE-stripes-per-PLE.
		mceStripesPerPle := geometry.DivRoundUp(pleInStripe.C, mceOutStripe.C) *
			geometry.DivRoundUp(inTensor.C, max1(mceInStripe.C))
		if mceStripesPerPle > caps.MaxMceStripesPerPle {
			continue
		}

		// Max IFM+weight-stripes-per-PLE.
		ifmStripesPerMce := numInStripes.total()
		if (ifmStripesPerMce+1)*mceStripesPerPle > caps.MaxIfmWgtStripesPerPle {
			continue
		}

		weightStripes := numWeightStripes
		outChannelsSplit := split.splitsOutputDepth()
		inChannelsSplit := split.splitsInputDepth()
		// Weight-stripe collapse: a memory weight stripe covering every
		// output channel (or, for depthwise, every IFM channel) can only
		// ever need one copy resident.
		if (!isDepthwise && !outChannelsSplit) || (isDepthwise && !inChannelsSplit) {
			if weightStripes > 1 {
				weightStripes = 1
			}
		}
		if weightStripes < 1 {
			weightStripes = 1
		}

		reloadsIfm := outChannelsSplit && !isDepthwise
		reloadsWeights := inChannelsSplit && !isDepthwise

		boundaryHBefore, boundaryHAfter := geometry.BoundaryRequirements(0, inTensor.H, mceInStripe.H, mceOutStripe.H, filterH)
		boundaryWBefore, boundaryWAfter := geometry.BoundaryRequirements(0, inTensor.W, mceInStripe.W, mceOutStripe.W, filterW)
		boundary := geometry.PackedBoundary{}
		if boundaryHBefore || boundaryWBefore {
			boundary.Before = hwcaps.BrickGroup[1]
		}
		if boundaryHAfter || boundaryWAfter {
			boundary.After = hwcaps.BrickGroup[1]
		}

		mceInBuf := Buffer{Tensor: inTensor, Stripe: mceInStripe, Boundary: boundary, NumSlots: minInt(numInStripes.total(), 2), Format: geometry.NHWCB}
		mceOutBuf := Buffer{Tensor: outTensor, Stripe: mceOutStripe, NumSlots: minInt(numOutStripes.total(), 2), Format: geometry.NHWCB}
		pleInBuf := Buffer{Tensor: outTensor, Stripe: pleInStripe, NumSlots: 1, Format: geometry.NHWCB}
		pleOutBuf := Buffer{Tensor: outTensor, Stripe: pleOutStripe, NumSlots: minInt(numPleInStripes.total(), 2), Format: geometry.NHWCB}
		wgtBuf := Buffer{Tensor: inTensor, Stripe: mceInStripe, NumSlots: weightStripes, Format: geometry.WeightFormat}

		inBytes := geometry.CalculateTileSize(caps, inTensor, mceInStripe, boundary, mceInBuf.NumSlots, dt, false)
		outBytes := geometry.CalculateTileSize(caps, outTensor, mceOutStripe, geometry.PackedBoundary{}, mceOutBuf.NumSlots, dt, false)
		wgtBytes := geometry.ByteCount(wgtBuf.Stripe, geometry.WeightFormat, dt, caps) * int64(weightStripes)

		total := inBytes.SizeBytes + outBytes.SizeBytes + wgtBytes

		// A second input slot (Addition, Addition_Rescale) needs its own
		// tile, sized and stripe-encoded the same way as the first: the
		// two operands share output shape and split, per §4.5.
		var input1Buf Buffer
		if multiInput {
			in1Tensor := part.InputInfo[1].Shape
			in1Stripe := geometry.CreateStripe(in1Tensor, mceInEnc, hwcaps.BrickGroup[3])
			num1Stripes := stripeCount(in1Tensor, in1Stripe)
			input1Buf = Buffer{Tensor: in1Tensor, Stripe: in1Stripe, NumSlots: minInt(num1Stripes.total(), 2), Format: geometry.NHWCB}
			in1Bytes := geometry.CalculateTileSize(caps, in1Tensor, in1Stripe, geometry.PackedBoundary{}, input1Buf.NumSlots, dt, false)
			total += in1Bytes.SizeBytes
		}

		if total > caps.TotalSramBytes {
			continue
		}

		plans = append(plans, Plan{
			PartID:           part.ID,
			Block:            block,
			Split:            split,
			MceInput:         mceInBuf,
			MceOutput:        mceOutBuf,
			PleInput:         pleInBuf,
			PleOutput:        pleOutBuf,
			Weight:           wgtBuf,
			Input1:           input1Buf,
			NumWeightStripes: weightStripes,
			ReloadsIfm:       reloadsIfm,
			ReloadsWeights:   reloadsWeights,
			SramBytes:        total,
		})
	}
	return plans, nil
}

// allowedSplits restricts the split space by cascade type and, for
// multi-input parts (Addition, Addition_Rescale), forbids cascading
// altogether: a standalone PLE part with two inputs can only ever sit
// alone in a section (SISO-only sectioning), so any cascade type other
// than Lonely yields no plans at all.
//
// For single-input parts, a Lonely part (one not cascaded with any
// neighbour) may use every enabled split since nothing constrains its
// boundary; the others are unconstrained in this compiler's simplified
// search too, since the compatibility check that matters (shared stripe
// shape at the section boundary) is enforced by the combiner, not the
// generator, rather than the finer per-cascade-type/per-PLE-kernel
// restriction tables of a full stripe generator. Kept as a seam for a
// future, tighter per-cascade-type restriction.
func allowedSplits(cascadeType CascadeType, multiInput bool, restrict Restriction) []SplitKind {
	if multiInput && cascadeType != Lonely {
		return nil
	}
	splits := make([]SplitKind, 0, len(AllSplits))
	for _, s := range AllSplits {
		if restrict.splitAllowed(s) {
			splits = append(splits, s)
		}
	}
	return splits
}

type stripeCounts struct{ h, w, c int }

func (s stripeCounts) total() int { return s.h * s.w * s.c }

func stripeCount(tensor, stripe npu.Shape) stripeCounts {
	return stripeCounts{
		h: geometry.DivRoundUp(tensor.H, max1(stripe.H)),
		w: geometry.DivRoundUp(tensor.W, max1(stripe.W)),
		c: geometry.DivRoundUp(tensor.C, max1(stripe.C)),
	}
}

// encodingForSplit turns a split kind and block config into the
// CreateStripe encoding (0 means "full extent in that dimension").
func encodingForSplit(split SplitKind, block BlockConfig, tensor npu.Shape) npu.Shape {
	enc := npu.Shape{}
	if split.splitsH() {
		enc.H = block.H
	}
	if split.splitsW() {
		enc.W = block.W
	}
	if split.splitsOutputDepth() {
		enc.C = hwcaps.BrickGroup[3]
	}
	return enc
}

func max1(x int) int {
	if x < 1 {
		return 1
	}
	return x
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
