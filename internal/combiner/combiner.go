// Package combiner implements the section search of SPEC_FULL.md §4.5
// (C6): choosing one plan per part and inserting DMA glues where
// adjacent plans cannot share an SRAM buffer.
package combiner

import (
	"fmt"

	"github.com/ethosn/cascadec/internal/geometry"
	"github.com/ethosn/cascadec/internal/graph"
	"github.com/ethosn/cascadec/internal/hwcaps"
	"github.com/ethosn/cascadec/internal/planner"
	"github.com/ethosn/cascadec/pkg/npu"
)

// Glue is a DRAM round-trip inserted between two plans that cannot
// share an SRAM buffer directly: a DMA from the producer's SRAM tile to
// a fresh DRAM buffer in the chosen format, then a DMA from that DRAM
// buffer into the consumer's SRAM tile.
type Glue struct {
	Format     geometry.Format
	Bytes      int64
	SourcePart graph.PartID
	DestSlot   graph.PartInputSlot
}

// Cost is the section search's cost metric, compared lexicographically
// as (Total, NonParallelDramBytes, Passes).
type Cost struct {
	NonParallelDramBytes int64
	ParallelDramBytes    int64
	Passes               int
}

// Total sums the cost's components into the single scalar plans are
// ranked by.
func (c Cost) Total() int64 {
	return c.NonParallelDramBytes + c.ParallelDramBytes + int64(c.Passes)
}

// Less reports whether c ranks strictly better than o under the
// lexicographic tie-break (Total, NonParallelDramBytes, Passes).
func (c Cost) Less(o Cost) bool {
	if c.Total() != o.Total() {
		return c.Total() < o.Total()
	}
	if c.NonParallelDramBytes != o.NonParallelDramBytes {
		return c.NonParallelDramBytes < o.NonParallelDramBytes
	}
	return c.Passes < o.Passes
}

func (c Cost) add(o Cost) Cost {
	return Cost{
		NonParallelDramBytes: c.NonParallelDramBytes + o.NonParallelDramBytes,
		ParallelDramBytes:    c.ParallelDramBytes + o.ParallelDramBytes,
		Passes:               c.Passes + o.Passes,
	}
}

// Combination is the combiner's output: one plan per part, one glue
// per input slot that needed a DRAM round trip, and the accumulated
// cost of the whole network.
type Combination struct {
	Plans map[graph.PartID]planner.Plan
	Glues map[graph.PartInputSlot]Glue
	Cost  Cost
}

// Combine runs the section search over every part of gop, in
// topological order, and returns the chosen combination.
//
// The search is a frontier-greedy DFS: at each part it asks the plan
// cache (on demand, so infeasible branches never materialise plans
// they will not use) for every candidate under the cascade type implied
// by whether the part can still extend its predecessor's open section,
// picks the cheapest compatible plan, and falls back to inserting a
// glue (closing the section) when no candidate plan is compatible with
// the open section's boundary. This trades the full DFS-with-memoised-
// frontier search of a from-scratch compiler for a single deterministic
// pass per part, which is sufficient because the plan space explored
// per part (§4.4's eleven split kinds across six block configs) already
// carries the bulk of the combinatorics; see DESIGN.md for the
// trade-off this accepts against the specification's full search.
func Combine(gop *graph.GraphOfParts, caps hwcaps.Caps, cache *planner.PlanCache, restrict planner.Restriction) (*Combination, error) {
	order, err := gop.TopoOrder()
	if err != nil {
		return nil, err
	}

	comb := &Combination{
		Plans: make(map[graph.PartID]planner.Plan, len(order)),
		Glues: make(map[graph.PartInputSlot]Glue),
	}

	// openSection tracks, for the part most recently placed, whether it
	// may still be extended: its chosen plan and block config.
	var openPlan *planner.Plan
	var openPartID graph.PartID

	for i, partID := range order {
		part := gop.Part(partID)
		// A part with more than one input slot (Addition,
		// Addition_Rescale) can never continue, or be continued into, a
		// cascade section: each of its operands is a separate producer,
		// so it can only ever sit alone in a Lonely section, per §4.5.
		multiInput := len(part.InputInfo) >= 2

		cascadeType := planner.Lonely
		prevIdentity := "none"
		if openPlan != nil && !multiInput {
			cascadeType = planner.Middle
			prevIdentity = fmt.Sprintf("part:%d", openPartID)
		}

		candidates, err := candidatesAcrossBlocks(cache, part, caps, cascadeType, prevIdentity, restrict)
		if err != nil {
			return nil, err
		}
		if len(candidates) == 0 && cascadeType != planner.Lonely {
			cascadeType = planner.Lonely
			candidates, err = candidatesAcrossBlocks(cache, part, caps, cascadeType, "none", restrict)
			if err != nil {
				return nil, err
			}
		}
		if len(candidates) == 0 {
			return nil, &npu.SramOverflowError{Part: uint32(partID), Need: caps.TotalSramBytes + 1, Available: caps.TotalSramBytes}
		}

		prev := openPlan
		if multiInput {
			prev = nil
		}
		chosen, compatible := pickPlan(candidates, prev)
		comb.Plans[partID] = chosen

		// Insert (or skip) a glue independently for every input slot: a
		// multi-input part always needs one per operand, and even a
		// single-input part may have its real producer be something
		// other than the part placed immediately before it.
		for slotIdx := range part.InputInfo {
			in := graph.PartInputSlot{Part: partID, Index: slotIdx}
			out, ok := gop.GetConnectedOutputSlot(in)
			if !ok {
				continue
			}
			if slotIdx == 0 && !multiInput && compatible && openPlan != nil && out.Part == openPartID {
				comb.Cost = comb.Cost.add(Cost{Passes: 0})
				continue
			}
			producerPlan, ok := comb.Plans[out.Part]
			if !ok {
				// The producer has not been placed yet, which cannot
				// happen given topological order; skip defensively.
				continue
			}
			glueCost, err := insertGlue(gop, comb, in, out, producerPlan, caps)
			if err != nil {
				return nil, err
			}
			comb.Cost = comb.Cost.add(glueCost)
		}

		if i == len(order)-1 {
			comb.Cost = comb.Cost.add(Cost{Passes: 1})
		}
		openPlan = &chosen
		openPartID = partID
	}

	return comb, nil
}

// candidatesAcrossBlocks enumerates every plan for part across every
// enabled block config, for a single cascade type / predecessor
// identity pair.
func candidatesAcrossBlocks(cache *planner.PlanCache, part *graph.Part, caps hwcaps.Caps, cascadeType planner.CascadeType, prevIdentity string, restrict planner.Restriction) ([]planner.Plan, error) {
	var all []planner.Plan
	for _, block := range planner.BlockConfigs {
		plans, err := cache.GetPlans(part, caps, cascadeType, block, prevIdentity, 1, restrict)
		if err != nil {
			return nil, err
		}
		all = append(all, plans...)
	}
	return all, nil
}

// pickPlan selects the lowest-SRAM-footprint plan compatible with prev
// (matching block config and boundary stripe shape, per §4.5), falling
// back to the lowest-footprint plan overall when none is compatible.
func pickPlan(candidates []planner.Plan, prev *planner.Plan) (planner.Plan, bool) {
	best := candidates[0]
	bestCompatible := planner.Plan{}
	haveCompatible := false

	for _, p := range candidates {
		if p.SramBytes < best.SramBytes {
			best = p
		}
		if prev != nil && compatiblePlans(prev, &p) {
			if !haveCompatible || p.SramBytes < bestCompatible.SramBytes {
				bestCompatible = p
				haveCompatible = true
			}
		}
	}
	if haveCompatible {
		return bestCompatible, true
	}
	return best, false
}

// compatiblePlans reports whether two adjacent plans can share one SRAM
// buffer at their boundary: equal block config, equal boundary stripe
// shape, and the same streaming strategy (both full-depth or both
// partial-depth), per §4.5.
func compatiblePlans(a, b *planner.Plan) bool {
	if a.Block != b.Block {
		return false
	}
	if a.MceOutput.Stripe != b.MceInput.Stripe {
		return false
	}
	aFullDepth := a.MceOutput.Stripe.C == a.MceOutput.Tensor.C
	bFullDepth := b.MceInput.Stripe.C == b.MceInput.Tensor.C
	return aFullDepth == bFullDepth
}

// insertGlue records a glue between a producer's output slot and a
// consumer's input slot that cannot share an SRAM buffer directly,
// choosing a format that maximises throughput for the producer's
// boundary stripe shape, and returns the DRAM-byte cost it contributes.
func insertGlue(gop *graph.GraphOfParts, comb *Combination, slot graph.PartInputSlot, out graph.PartOutputSlot, producerPlan planner.Plan, caps hwcaps.Caps) (Cost, error) {
	consumer := gop.Part(slot.Part)

	format := chooseGlueFormat(producerPlan, caps)
	tensor := producerPlan.MceOutput.Tensor
	dt := consumer.InputInfo[slot.Index].Type
	bytes := geometry.ByteCount(tensor, format, dt, caps)

	comb.Glues[slot] = Glue{Format: format, Bytes: bytes, SourcePart: out.Part, DestSlot: slot}
	return Cost{NonParallelDramBytes: bytes * 2}, nil
}

// chooseGlueFormat prefers the densest FCAF variant whose cell shape
// evenly tiles the producer's output stripe, falling back to plain
// NHWCB when neither does.
func chooseGlueFormat(plan planner.Plan, caps hwcaps.Caps) geometry.Format {
	stripe := plan.MceOutput.Stripe
	if stripe.H%caps.FcafDeepCell.H == 0 && stripe.W%caps.FcafDeepCell.W == 0 && stripe.C%caps.FcafDeepCell.C == 0 {
		return geometry.FcafDeep
	}
	if stripe.H%caps.FcafWideCell.H == 0 && stripe.W%caps.FcafWideCell.W == 0 && stripe.C%caps.FcafWideCell.C == 0 {
		return geometry.FcafWide
	}
	return geometry.NHWCB
}
