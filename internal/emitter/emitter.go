// Package emitter implements the cascading emitter of SPEC_FULL.md §4.7
// (C8): it lowers a combiner Combination into ncf.Agent/ncf.Command
// values, computing stripe-id traversal strides and the producer/
// consumer dependency ratios that let the firmware schedule queues
// concurrently.
package emitter

import (
	"fmt"

	"github.com/ethosn/cascadec/internal/combiner"
	"github.com/ethosn/cascadec/internal/geometry"
	"github.com/ethosn/cascadec/internal/graph"
	"github.com/ethosn/cascadec/internal/hwcaps"
	"github.com/ethosn/cascadec/internal/planner"
	"github.com/ethosn/cascadec/pkg/ncf"
	"github.com/ethosn/cascadec/pkg/npu"
)

// Lifetime is the [start, end) agent-id interval an intermediate DRAM
// buffer behind one glue must stay live for, per §4.7's "Intermediate-
// DRAM lifetime": [producer_agent_id, max(consumer_agent_id)+1).
type Lifetime struct {
	Glue       combiner.Glue
	Start, End uint32
}

// partAgents records, for one part, the agent id assigned to each of
// the (up to six) agents emitted for it. -1 marks an agent this part
// did not need.
type partAgents struct {
	Ifm, Ifm1, Wgt, Mce, PleLoader, Ple, Ofm int
}

func newPartAgents() partAgents {
	return partAgents{Ifm: -1, Ifm1: -1, Wgt: -1, Mce: -1, PleLoader: -1, Ple: -1, Ofm: -1}
}

// emitter accumulates agents and commands while walking the graph.
type emitter struct {
	caps   hwcaps.Caps
	stream ncf.CommandStream
	byPart map[graph.PartID]partAgents
}

// Emit lowers gop's parts, combined per comb, into a CommandStream,
// treating every part as if it were its own single-part section: each
// compute part gets its own IfmStreamer/WgtStreamer/MceScheduler(/
// PleLoader/PleScheduler)/OfmStreamer agent set rather than sharing
// tiles with cascaded neighbours. This keeps every field and ratio the
// specification names faithfully computed while deferring true
// multi-part tile sharing (which would collapse several parts' streamer
// agents into one) to a future revision; see DESIGN.md.
func Emit(gop *graph.GraphOfParts, comb *combiner.Combination, caps hwcaps.Caps) (*ncf.CommandStream, []Lifetime, error) {
	order, err := gop.TopoOrder()
	if err != nil {
		return nil, nil, err
	}

	e := &emitter{caps: caps, byPart: make(map[graph.PartID]partAgents, len(order))}

	for _, partID := range order {
		part := gop.Part(partID)
		plan, ok := comb.Plans[partID]
		if !ok {
			return nil, nil, fmt.Errorf("emitter: part %d has no chosen plan", partID)
		}
		pa, err := e.emitPart(part, plan)
		if err != nil {
			return nil, nil, fmt.Errorf("emitter: part %d: %w", partID, err)
		}
		e.byPart[partID] = pa
	}

	e.emitCommands(order)

	lifetimes := e.computeLifetimes(comb)
	return &e.stream, lifetimes, nil
}

func (e *emitter) nextAgentID() int { return len(e.stream.Agents) }

func (e *emitter) addAgent(a ncf.Agent) int {
	id := e.nextAgentID()
	e.stream.Agents = append(e.stream.Agents, a)
	return id
}

func stripe3From(s npu.Shape) ncf.Stripe3 { return ncf.Stripe3{A: u32(s.H), B: u32(s.W), C: u32(s.C)} }

// stridesXyz computes stripe_id_strides for the W-fastest, then H, then
// C traversal order (§4.7's "Xyz") used by FM streamers and PLE.
func stridesXyz(numH, numW, numC int) ncf.Stripe3 {
	strideW := 1
	strideH := numW
	strideC := numW * numH
	return ncf.Stripe3{A: u32(strideH), B: u32(strideW), C: u32(strideC)}
}

// stridesMce computes stripe_id_strides for the MCE's fixed traversal
// order IC fastest, then OW, then OH, then OC.
func stridesMce(numOH, numOW, numOC, numIC int) ncf.Stripe4 {
	strideIC := 1
	strideOW := numIC
	strideOH := numIC * numOW
	strideOC := numIC * numOW * numOH
	return ncf.Stripe4{OH: u32(strideOH), OW: u32(strideOW), OC: u32(strideOC), IC: u32(strideIC)}
}

func u32(x int) uint32 {
	if x < 0 {
		return 0
	}
	return uint32(x)
}

// numStripesOf returns ceil(tensor/stripe) per dimension, never zero.
func numStripesOf(tensor, stripe npu.Shape) (h, w, c int) {
	h = geometry.DivRoundUp(tensor.H, max1(stripe.H))
	w = geometry.DivRoundUp(tensor.W, max1(stripe.W))
	c = geometry.DivRoundUp(tensor.C, max1(stripe.C))
	return
}

func max1(x int) int {
	if x < 1 {
		return 1
	}
	return x
}

// emitPart builds every agent one part's plan requires and returns
// their ids.
func (e *emitter) emitPart(part *graph.Part, plan planner.Plan) (partAgents, error) {
	pa := newPartAgents()

	switch part.Kind {
	case graph.KindInput:
		pa.Ofm = e.addStreamer(ncf.AgentOfmStreamer, part.OutputInfo[0].Shape, plan.MceOutput, part.OutputInfo[0].Type)
		return pa, nil
	case graph.KindOutput:
		pa.Ifm = e.addStreamer(ncf.AgentIfmStreamer, part.InputInfo[0].Shape, plan.MceInput, part.InputInfo[0].Type)
		return pa, nil
	case graph.KindReshape, graph.KindConcat, graph.KindEstimateOnly:
		// Pure metadata or placeholder parts: no hardware agent, the
		// DRAM buffer manager treats their output as an alias of their
		// input (or, for EstimateOnly, never reaches real compilation).
		return pa, nil
	}

	pa.Ifm = e.addStreamer(ncf.AgentIfmStreamer, part.InputInfo[0].Shape, plan.MceInput, part.InputInfo[0].Type)

	var mceInfo *graph.MceInfo
	var pleOp graph.PleOperation
	var standaloneInfo *graph.StandalonePleInfo
	fused := false
	standalone := false

	switch part.Kind {
	case graph.KindMce:
		info, ok := part.Sub.(*graph.MceInfo)
		if !ok {
			return pa, fmt.Errorf("mce part missing *graph.MceInfo payload")
		}
		mceInfo = info
	case graph.KindFusedPle:
		info, ok := part.Sub.(*graph.FusedPleInfo)
		if !ok {
			return pa, fmt.Errorf("fused ple part missing *graph.FusedPleInfo payload")
		}
		mceInfo = &info.Mce
		pleOp = info.Ple
		fused = true
	case graph.KindStandalonePle:
		info, ok := part.Sub.(*graph.StandalonePleInfo)
		if !ok {
			return pa, fmt.Errorf("standalone ple part missing *graph.StandalonePleInfo payload")
		}
		pleOp = info.Ple
		standaloneInfo = info
		standalone = true
	}

	if mceInfo != nil {
		pa.Wgt = e.addWgtStreamer(plan, part.InputInfo[0].Type)
		mceAgentID := e.addMceScheduler(plan, *mceInfo, pa.Ifm, pa.Wgt, pleOp, fused)
		pa.Mce = mceAgentID
	}

	// A second input slot (Addition, Addition_Rescale) streams its own
	// operand into its own IFM tile, read directly by the PLE scheduler
	// in Sram input mode rather than via an MCE, per §4.5/§4.7.
	if standalone && len(part.InputInfo) >= 2 {
		pa.Ifm1 = e.addStreamer(ncf.AgentIfmStreamer, part.InputInfo[1].Shape, plan.Input1, part.InputInfo[1].Type)
	}

	if fused || standalone {
		pa.PleLoader = e.addPleLoader(pleOp)
		inputMode := ncf.InputModeMceAllOgs
		if standalone {
			inputMode = ncf.InputModeSram
		}
		pa.Ple = e.addPleScheduler(plan, inputMode, pa.Mce, pa.PleLoader, pa.Ifm, pa.Ifm1, standaloneInfo)
	}

	pa.Ofm = e.addStreamer(ncf.AgentOfmStreamer, part.OutputInfo[0].Shape, plan.MceOutput, part.OutputInfo[0].Type)
	return pa, nil
}

func (e *emitter) addStreamer(kind ncf.AgentKind, tensor npu.Shape, buf planner.Buffer, dt npu.DataType) int {
	h, w, c := numStripesOf(tensor, buf.Stripe)
	a := ncf.Agent{
		Kind: kind,
		Tile: ncf.Tile{
			NumSlots: u32(buf.NumSlots),
			SlotSize: u32(int(geometry.ByteCount(buf.Stripe, buf.Format, dt, e.caps))),
		},
		DefaultStripe:     stripe3From(buf.Stripe),
		EdgeStripe:        stripe3From(edgeStripe(tensor, buf.Stripe)),
		SupertensorCellsW: u32(w),
		SupertensorCellsC: u32(c),
		NumStripes:        ncf.Stripe3{A: u32(h), B: u32(w), C: u32(c)},
		StripeIDStrides:   stridesXyz(h, w, c),
	}
	return e.addAgent(a)
}

// edgeStripe returns the remainder stripe shape along each dimension
// (the last stripe, which may be narrower than DefaultStripe).
func edgeStripe(tensor, stripe npu.Shape) npu.Shape {
	rem := func(t, s int) int {
		if s <= 0 {
			return t
		}
		if r := t % s; r != 0 {
			return r
		}
		return s
	}
	return npu.Shape{N: tensor.N, H: rem(tensor.H, stripe.H), W: rem(tensor.W, stripe.W), C: rem(tensor.C, stripe.C)}
}

func (e *emitter) addWgtStreamer(plan planner.Plan, dt npu.DataType) int {
	h, _, c := numStripesOf(plan.Weight.Tensor, plan.Weight.Stripe)
	a := ncf.Agent{
		Kind: ncf.AgentWgtStreamer,
		Tile: ncf.Tile{
			NumSlots: u32(plan.Weight.NumSlots),
			SlotSize: u32(int(geometry.ByteCount(plan.Weight.Stripe, geometry.WeightFormat, dt, e.caps))),
		},
		EdgeOfmChannelsLastStripe: u32(edgeStripe(plan.Weight.Tensor, plan.Weight.Stripe).C),
		NumStripesOC:              u32(c),
		NumStripesIC:              u32(h),
		StripeIDStridesOC:         1,
		StripeIDStridesIC:         u32(c),
	}
	return e.addAgent(a)
}

func (e *emitter) addMceScheduler(plan planner.Plan, info graph.MceInfo, ifmAgent, wgtAgent int, pleOp graph.PleOperation, fused bool) int {
	outTensor := plan.MceOutput.Tensor
	outStripe := plan.MceOutput.Stripe
	inTensor := plan.MceInput.Tensor
	inStripe := plan.MceInput.Stripe

	numOH, numOW, numOC := stripeDims3(outTensor, outStripe)
	_, _, numIC := stripeDims3(inTensor, inStripe)

	var pleName [32]byte
	if fused {
		copy(pleName[:], pleOp.String())
	}

	a := ncf.Agent{
		Kind:             ncf.AgentMceScheduler,
		IfmTile:          ncf.Tile{NumSlots: u32(plan.MceInput.NumSlots)},
		WeightTile:       ncf.Tile{NumSlots: u32(plan.Weight.NumSlots)},
		BlockH:           u32(plan.Block.H),
		BlockW:           u32(plan.Block.W),
		DefaultStripe4:   ncf.Stripe4{OH: u32(outStripe.H), OW: u32(outStripe.W), OC: u32(outStripe.C), IC: u32(inStripe.C)},
		EdgeStripe4:      stripe4Edge(outTensor, outStripe, inTensor, inStripe),
		NumStripes4:      ncf.Stripe4{OH: u32(numOH), OW: u32(numOW), OC: u32(numOC), IC: u32(numIC)},
		StripeIDStrides4: stridesMce(numOH, numOW, numOC, numIC),
		ConvStrideH:      u32(info.StrideH),
		ConvStrideW:      u32(info.StrideW),
		Operation:        uint32(info.Operation),
		FilterH:          u32(info.FilterH),
		FilterW:          u32(info.FilterW),
		PadLeft:          u32(info.PadLeft),
		PadTop:           u32(info.PadTop),
		IfmDeltaH:        int32(inTensor.H - outTensor.H),
		IfmDeltaW:        int32(inTensor.W - outTensor.W),
		ReluMin:          info.Relu.Min,
		ReluMax:          info.Relu.Max,
		PleKernelName:    pleName,
	}

	a.ReadDependencies[0] = ifmToMceDependency(plan)
	if wgtAgent >= 0 {
		a.ReadDependencies[1] = weightToMceDependency(plan)
	}

	return e.addAgent(a)
}

func stripeDims3(tensor, stripe npu.Shape) (h, w, c int) { return numStripesOf(tensor, stripe) }

func stripe4Edge(outTensor, outStripe, inTensor, inStripe npu.Shape) ncf.Stripe4 {
	oh := edgeStripe(outTensor, outStripe)
	ih := edgeStripe(inTensor, inStripe)
	return ncf.Stripe4{OH: u32(oh.H), OW: u32(oh.W), OC: u32(oh.C), IC: u32(ih.C)}
}

// ifmToMceDependency derives the IFM-streamer → MCE-scheduler
// dependency by the closed form of §4.7: outer_ratio.other is the
// product of the IFM streamer's own stripe counts, outer_ratio.self is
// the product of the MCE's (OH·OW·IC), inner_ratio.other is
// w_ratio·h_ratio, inner_ratio.self is always 1, and boundary is set
// when a split dimension's kernel is greater than 1.
func ifmToMceDependency(plan planner.Plan) ncf.Dependency {
	ifmH, ifmW, ifmC := numStripesOf(plan.MceInput.Tensor, plan.MceInput.Stripe)
	mceOH, mceOW, _ := stripeDims3(plan.MceOutput.Tensor, plan.MceOutput.Stripe)

	wRatio := 1
	if plan.MceInput.Stripe.W > 0 {
		wRatio = geometry.DivRoundUp(plan.MceOutput.Stripe.W, plan.MceInput.Stripe.W)
	}
	hRatio := 1
	if plan.MceInput.Stripe.H > 0 {
		hRatio = geometry.DivRoundUp(plan.MceOutput.Stripe.H, plan.MceInput.Stripe.H)
	}

	boundary := int32(0)
	splitH := plan.MceInput.Stripe.H < plan.MceInput.Tensor.H
	splitW := plan.MceInput.Stripe.W < plan.MceInput.Tensor.W
	if (splitH || splitW) && plan.MceInput.Boundary.Before+plan.MceInput.Boundary.After > 0 {
		boundary = 1
	}

	return ncf.Dependency{
		RelativeAgentID: 1,
		OuterRatioOther: u32(ifmH * ifmW * ifmC),
		OuterRatioSelf:  u32(mceOH * mceOW * ifmC),
		InnerRatioOther: u32(wRatio * hRatio),
		InnerRatioSelf:  1,
		Boundary:        boundary,
	}
}

// weightToMceDependency derives the weight-streamer → MCE-scheduler
// dependency: one weight stripe load corresponds to one full pass over
// the MCE's output-channel stripes, collapsing the spatial factor into
// outer_ratio per §4.7's "depthwise collapses output-channel factor"
// note generalised to the non-depthwise case's own collapse.
func weightToMceDependency(plan planner.Plan) ncf.Dependency {
	_, _, numOC := stripeDims3(plan.MceOutput.Tensor, plan.MceOutput.Stripe)
	return ncf.Dependency{
		RelativeAgentID: 2,
		OuterRatioOther: u32(plan.NumWeightStripes),
		OuterRatioSelf:  u32(numOC),
		InnerRatioOther: 1,
		InnerRatioSelf:  1,
	}
}

func (e *emitter) addPleLoader(op graph.PleOperation) int {
	var name [32]byte
	copy(name[:], op.String())
	return e.addAgent(ncf.Agent{Kind: ncf.AgentPleLoader, PleKernelName: name})
}

// addPleScheduler builds the PleScheduler agent for a fused or
// standalone PLE kernel. ifm1Agent and standaloneInfo are only
// meaningful (and only consulted) when mode is InputModeSram: that is
// the Addition/Addition_Rescale case, where the PLE reads both operands
// directly from SRAM rather than from an MCE, per §4.7.
func (e *emitter) addPleScheduler(plan planner.Plan, mode ncf.InputMode, mceAgent, pleLoaderAgent, ifm0Agent, ifm1Agent int, standaloneInfo *graph.StandalonePleInfo) int {
	h, w, c := numStripesOf(plan.PleOutput.Tensor, plan.PleOutput.Stripe)
	a := ncf.Agent{
		Kind:               ncf.AgentPleScheduler,
		OfmTile:            ncf.Tile{NumSlots: u32(plan.PleOutput.NumSlots)},
		DefaultOfmStripe:   stripe3From(plan.PleOutput.Stripe),
		EdgeOfmStripe:      stripe3From(edgeStripe(plan.PleOutput.Tensor, plan.PleOutput.Stripe)),
		NumStripesPle:      ncf.Stripe3{A: u32(h), B: u32(w), C: u32(c)},
		StripeIDStridesPle: stridesXyz(h, w, c),
		Mode:               mode,
	}
	if pleLoaderAgent >= 0 {
		a.PleKernelSramAddress = u32(pleLoaderAgent)
	}

	if mceAgent >= 0 {
		a.ReadDependencies[0] = ncf.Dependency{RelativeAgentID: 1, OuterRatioSelf: 1, OuterRatioOther: 1, InnerRatioSelf: 1, InnerRatioOther: 1}
	} else if mode == ncf.InputModeSram && ifm0Agent >= 0 {
		a.ReadDependencies[0] = ncf.Dependency{RelativeAgentID: 1, OuterRatioSelf: 1, OuterRatioOther: 1, InnerRatioSelf: 1, InnerRatioOther: 1}
		if ifm1Agent >= 0 {
			a.ReadDependencies[1] = ncf.Dependency{RelativeAgentID: 2, OuterRatioSelf: 1, OuterRatioOther: 1, InnerRatioSelf: 1, InnerRatioOther: 1}
		}
	}

	if mode == ncf.InputModeSram {
		if ifm0Agent >= 0 {
			a.IfmTile0 = e.stream.Agents[ifm0Agent].Tile
		}
		if ifm1Agent >= 0 {
			a.IfmTile1 = e.stream.Agents[ifm1Agent].Tile
		}
		if standaloneInfo != nil {
			a.Ifm0ZeroPoint = standaloneInfo.Input0ZeroPoint
			a.Ifm0Multiplier = uint32(standaloneInfo.Input0Multiplier)
			a.Ifm0Shift = uint32(standaloneInfo.Input0Shift)
			a.Ifm1ZeroPoint = standaloneInfo.Input1ZeroPoint
			a.Ifm1Multiplier = uint32(standaloneInfo.Input1Multiplier)
			a.Ifm1Shift = uint32(standaloneInfo.Input1Shift)
		}
	}

	return e.addAgent(a)
}

// emitCommands walks the agents in the order their parts were placed
// and emits, per §4.7, LoadIfmStripe/StoreOfmStripe into the DMA
// queues and the MCE/PLE program-and-start sequences into their
// queues, one entry per stripe.
func (e *emitter) emitCommands(order []graph.PartID) {
	lastPleKernel := ""
	for _, partID := range order {
		pa := e.byPart[partID]

		if pa.Ifm >= 0 {
			e.emitStripeRun(&e.stream.DmaRd, ncf.CmdLoadIfmStripe, pa.Ifm, e.stream.Agents[pa.Ifm].NumStripes)
		}
		if pa.Ifm1 >= 0 {
			e.emitStripeRun(&e.stream.DmaRd, ncf.CmdLoadIfmStripe, pa.Ifm1, e.stream.Agents[pa.Ifm1].NumStripes)
		}
		if pa.Wgt >= 0 {
			numWgt := ncf.Stripe3{A: e.stream.Agents[pa.Wgt].NumStripesIC, B: 1, C: e.stream.Agents[pa.Wgt].NumStripesOC}
			e.emitStripeRun(&e.stream.DmaRd, ncf.CmdLoadIfmStripe, pa.Wgt, numWgt)
		}
		if pa.Mce >= 0 {
			n4 := e.stream.Agents[pa.Mce].NumStripes4
			total := int(n4.OH) * int(n4.OW) * int(n4.OC) * int(n4.IC)
			e.stream.Mce = append(e.stream.Mce, ncf.Command{Kind: ncf.CmdConfigMceif, AgentID: u32(pa.Mce)})
			for s := 0; s < total; s++ {
				e.stream.Mce = append(e.stream.Mce,
					ncf.Command{Kind: ncf.CmdProgramMceStripe, AgentID: u32(pa.Mce), StripeID: u32(s)},
					ncf.Command{Kind: ncf.CmdStartMceStripe, AgentID: u32(pa.Mce), StripeID: u32(s)},
				)
			}
		}
		if pa.Ple >= 0 {
			kernel := ""
			if pa.PleLoader >= 0 {
				kernel = string(e.stream.Agents[pa.PleLoader].PleKernelName[:])
			}
			n3 := e.stream.Agents[pa.Ple].NumStripesPle
			total := int(n3.A) * int(n3.B) * int(n3.C)
			if pa.Mce >= 0 {
				mceTotal := totalStripes4(e.stream.Agents[pa.Mce].NumStripes4)
				e.stream.Ple = append(e.stream.Ple, ncf.Command{Kind: ncf.CmdWaitForCounter, AgentID: u32(pa.Ple), WaitCounter: ncf.CounterMceStripe, WaitTarget: u32(mceTotal)})
			}
			if pa.PleLoader >= 0 && kernel != lastPleKernel {
				e.stream.Ple = append(e.stream.Ple, ncf.Command{Kind: ncf.CmdLoadPleCodeIntoPleSram, AgentID: u32(pa.PleLoader)})
				lastPleKernel = kernel
			}
			for s := 0; s < total; s++ {
				e.stream.Ple = append(e.stream.Ple, ncf.Command{Kind: ncf.CmdStartPleStripe, AgentID: u32(pa.Ple), StripeID: u32(s)})
			}
		}
		if pa.Ofm >= 0 {
			e.emitStripeRun(&e.stream.DmaWr, ncf.CmdStoreOfmStripe, pa.Ofm, e.stream.Agents[pa.Ofm].NumStripes)
		}
	}
}

func totalStripes4(s ncf.Stripe4) int { return int(s.OH) * int(s.OW) * int(s.OC) * int(s.IC) }

func (e *emitter) emitStripeRun(queue *[]ncf.Command, kind ncf.CommandKind, agentID int, n ncf.Stripe3) {
	total := int(n.A) * int(n.B) * int(n.C)
	for s := 0; s < total; s++ {
		*queue = append(*queue, ncf.Command{Kind: kind, AgentID: u32(agentID), StripeID: u32(s)})
	}
}

// computeLifetimes derives, for every glue in comb, the interval
// [producer_ofm_agent_id, consumer_ifm_agent_id+1) its DRAM buffer
// must stay live for.
func (e *emitter) computeLifetimes(comb *combiner.Combination) []Lifetime {
	var out []Lifetime
	for slot, glue := range comb.Glues {
		producer, ok := e.byPart[glue.SourcePart]
		if !ok || producer.Ofm < 0 {
			continue
		}
		consumer, ok := e.byPart[slot.Part]
		if !ok {
			continue
		}
		consumerAgent := consumer.Ifm
		if slot.Index == 1 {
			consumerAgent = consumer.Ifm1
		}
		if consumerAgent < 0 {
			continue
		}
		out = append(out, Lifetime{Glue: glue, Start: u32(producer.Ofm), End: u32(consumerAgent) + 1})
	}
	return out
}
