package frontend

import (
	"fmt"

	"github.com/ethosn/cascadec/internal/graph"
	"github.com/ethosn/cascadec/internal/hwcaps"
	"github.com/ethosn/cascadec/internal/planner"
	"github.com/ethosn/cascadec/pkg/npu"
)

// outputRef names one Part's output slot, recorded by the OperationID
// that produced it so later ops can resolve their InputSrcs against it.
type outputRef struct {
	part  graph.PartID
	index int
}

// Lower converts an OperatorGraph into a Graph of Parts, fusing
// eligible MCE+PLE pairs and rejecting operator/attribute combinations
// real compilation cannot realise (falling back to KindEstimateOnly
// when estimationMode is set, per §4.4/§7).
//
// Lower does not use Accept/Visitor dispatch: the FusedPle rule
// requires one op of lookahead (an MCE op only fuses with an
// immediately following, single-consumer, fusable PLE op), which a
// pure per-op callback cannot decide on its own. Visitor remains the
// contract other consumers (e.g. a description/debug walk) use.
func Lower(g *OperatorGraph, caps hwcaps.Caps, estimationMode bool) (*graph.GraphOfParts, error) {
	fusedInto, fusedAway := findFusions(g)

	gop := graph.New()
	outputs := make(map[uint64][]outputRef, len(g.Ops))

	// inputTargets records, for every lowered op (keyed like outputs),
	// the part that owns its external input slots: normally the part
	// lowered for it, but for the stride>1 interleave decomposition below
	// the interleave part rather than the one producing its declared
	// output.
	inputTargets := make(map[uint64]graph.PartID)

	for i, op := range g.Ops {
		if fusedAway[op.OperationID] {
			continue
		}

		var (
			id  graph.PartID
			err error
		)
		if target, ok := fusedInto[op.OperationID]; ok {
			id, err = lowerFusedPle(gop, op, g.Ops[target], caps)
		} else if isStridedConv(op) {
			var inputID graph.PartID
			inputID, id, err = lowerStridedConv(gop, op, caps)
			if err == nil {
				inputTargets[op.OperationID] = inputID
			}
		} else {
			id, err = lowerOne(gop, op, caps, estimationMode)
		}
		if err != nil {
			return nil, fmt.Errorf("frontend: lowering op %d (kind %v, position %d): %w", op.OperationID, op.Kind, i, err)
		}

		// A fused part produces the PLE op's declared output, so it is
		// recorded under the PLE op's id.
		outKey := op.OperationID
		if target, ok := fusedInto[op.OperationID]; ok {
			outKey = g.Ops[target].OperationID
		}
		if _, ok := inputTargets[outKey]; !ok {
			inputTargets[outKey] = id
		}
		part := gop.Part(id)
		for idx := range part.OutputInfo {
			outputs[outKey] = append(outputs[outKey], outputRef{part: id, index: idx})
		}
	}

	for _, op := range g.Ops {
		if fusedAway[op.OperationID] {
			continue
		}
		target := op.OperationID
		if t, ok := fusedInto[op.OperationID]; ok {
			target = g.Ops[t].OperationID
		}
		consumerID := inputTargets[target]

		for slot, src := range op.InputSrcs {
			producerOutputs, ok := outputs[src.OperationID]
			if !ok {
				return nil, fmt.Errorf("frontend: op %d references unresolved producer %d", op.OperationID, src.OperationID)
			}
			if src.OutputIndex >= len(producerOutputs) {
				return nil, fmt.Errorf("frontend: op %d references out-of-range output %d of producer %d", op.OperationID, src.OutputIndex, src.OperationID)
			}
			producer := producerOutputs[src.OutputIndex]
			in := graph.PartInputSlot{Part: consumerID, Index: slot}
			out := graph.PartOutputSlot{Part: producer.part, Index: producer.index}
			if err := gop.Connect(out, in); err != nil {
				return nil, fmt.Errorf("frontend: connecting op %d input %d: %w", op.OperationID, slot, err)
			}
		}
	}

	if err := gop.Freeze(); err != nil {
		return nil, fmt.Errorf("frontend: %w", err)
	}
	return gop, nil
}

// findFusions scans the graph for Mce ops immediately followed, in
// program order, by their single consumer running a fusable PLE
// kernel, and returns the fusion pairing in both directions:
// fusedInto maps an MCE op's id to the index of the PLE op it fuses
// with; fusedAway marks the PLE op's id so the main pass skips
// lowering it standalone.
func findFusions(g *OperatorGraph) (fusedInto map[uint64]int, fusedAway map[uint64]bool) {
	fusedInto = make(map[uint64]int)
	fusedAway = make(map[uint64]bool)

	consumerCount := make(map[OperandRef]int)
	for _, op := range g.Ops {
		for _, src := range op.InputSrcs {
			consumerCount[src]++
		}
	}

	isMce := func(k OpKind) bool {
		switch k {
		case OpConvolution, OpDepthwiseConvolution, OpFullyConnected:
			return true
		default:
			return false
		}
	}
	for i := 0; i+1 < len(g.Ops); i++ {
		mceOp := g.Ops[i]
		if !isMce(mceOp.Kind) {
			continue
		}
		pleOp := g.Ops[i+1]
		if _, ok := plePleOperation(pleOp.Kind); !ok {
			continue
		}
		if len(pleOp.InputSrcs) != 1 {
			continue
		}
		src := pleOp.InputSrcs[0]
		if src.OperationID != mceOp.OperationID {
			continue
		}
		if consumerCount[src] != 1 {
			continue
		}
		fusedInto[mceOp.OperationID] = i + 1
		fusedAway[pleOp.OperationID] = true
	}
	return fusedInto, fusedAway
}

// plePleOperation maps an operator kind onto the PLE kernel it runs
// when fused or standalone, if any.
func plePleOperation(k OpKind) (graph.PleOperation, bool) {
	switch k {
	case OpLeakyRelu:
		return graph.PleLeakyRelu, true
	case OpSigmoid:
		return graph.PleSigmoid, true
	case OpTanh:
		return graph.PleTanh, true
	case OpPooling:
		return graph.PleMaxPool, true
	case OpMeanXy:
		return graph.PleMeanXy8x8, true
	case OpAddition:
		return graph.PleAddition, true
	default:
		return 0, false
	}
}

func lowerFusedPle(gop *graph.GraphOfParts, mceOp, pleOp Op, caps hwcaps.Caps) (graph.PartID, error) {
	mceInfo, err := buildMceInfo(mceOp, caps)
	if err != nil {
		return 0, err
	}

	pleKind, _ := plePleOperation(pleOp.Kind)
	info := &graph.FusedPleInfo{
		Mce: mceInfo,
		Ple: pleKind,
	}

	switch pleOp.Kind {
	case OpLeakyRelu:
		info.LeakyReluAlpha = float32(pleOp.Attrs.LeakyReluAlpha)
	case OpPooling, OpMeanXy:
		info.PoolSizeH = pleOp.Attrs.FilterH
		info.PoolSizeW = pleOp.Attrs.FilterW
		info.PoolStrideH = pleOp.Attrs.StrideH
		info.PoolStrideW = pleOp.Attrs.StrideW
	}

	if mceOp.Outputs[0].Quant.Scale != pleOp.Outputs[0].Quant.Scale {
		m, s := planner.RescaleMultiplierShift(mceOp.Outputs[0].Quant.Scale, pleOp.Outputs[0].Quant.Scale)
		info.RescaleMultiplier = m
		info.RescaleShift = s
	}

	return gop.AddPart(graph.KindFusedPle, info, mceOp.Inputs, pleOp.Outputs,
		[]uint64{mceOp.OperationID, pleOp.OperationID})
}

func lowerOne(gop *graph.GraphOfParts, op Op, caps hwcaps.Caps, estimationMode bool) (graph.PartID, error) {
	switch op.Kind {
	case OpInput:
		return gop.AddPart(graph.KindInput, &graph.InputOutputInfo{DramBufferID: op.Attrs.DramBufferID},
			nil, op.Outputs, []uint64{op.OperationID})

	case OpOutput:
		return gop.AddPart(graph.KindOutput, &graph.InputOutputInfo{DramBufferID: op.Attrs.DramBufferID},
			op.Inputs, nil, []uint64{op.OperationID})

	case OpConvolution, OpDepthwiseConvolution, OpFullyConnected:
		info, err := buildMceInfo(op, caps)
		if err != nil {
			return 0, err
		}
		return gop.AddPart(graph.KindMce, &info, op.Inputs, op.Outputs, []uint64{op.OperationID})

	case OpTransposeConvolution:
		return lowerTransposeConvolution(gop, op, caps)

	case OpResize:
		info := graph.MceInfo{
			Operation: graph.MceResize,
			Upscale:   2,
		}
		return gop.AddPart(graph.KindMce, &info, op.Inputs, op.Outputs, []uint64{op.OperationID})

	case OpLeakyRelu, OpSigmoid, OpTanh, OpPooling, OpMeanXy:
		// These PLE kernels only ever run fused to an MCE (per the Part
		// taxonomy: FusedPle covers LeakyRelu/Sigmoid/Tanh/MaxPool/
		// Interleave/MeanXy). An op reaching lowerOne here was not
		// naturally fused with its producer (Op.InputSrcs points at a
		// non-Mce op, or the producer had other consumers), so it is
		// wrapped in its own identity 1x1 stride-1 Mce.
		return lowerUnfusedPle(gop, op, caps)

	case OpAddition:
		info := &graph.StandalonePleInfo{Ple: graph.PleAddition, Input0ZeroPoint: op.Inputs[0].Quant.ZeroPoint}
		info.Input0Multiplier, info.Input0Shift = planner.RescaleMultiplierShift(op.Inputs[0].Quant.Scale, op.Outputs[0].Quant.Scale)
		if len(op.Inputs) > 1 {
			// Addition/Addition_Rescale: the second input is rescaled to
			// the output scale independently of the first, per §4.7.
			info.Input1ZeroPoint = op.Inputs[1].Quant.ZeroPoint
			info.Input1Multiplier, info.Input1Shift = planner.RescaleMultiplierShift(op.Inputs[1].Quant.Scale, op.Outputs[0].Quant.Scale)
		}
		return gop.AddPart(graph.KindStandalonePle, info, op.Inputs, op.Outputs, []uint64{op.OperationID})

	case OpRelu:
		// findFusions never pairs a Relu op with its producer, so every
		// Relu op reaches this case and is expressed as an EstimateOnly
		// part: the hardware only applies ReLU as an MCE op's own output
		// clamp, never as an independent stage.
		return estimateOnly(gop, op, "Relu", "standalone Relu has no non-fused hardware realisation", estimationMode)

	case OpReshape:
		info := &graph.ReshapeInfo{NewShape: op.Attrs.NewShape}
		return gop.AddPart(graph.KindReshape, info, op.Inputs, op.Outputs, []uint64{op.OperationID})

	case OpConcatenation:
		info := &graph.ConcatInfo{Axis: op.Attrs.Axis}
		return gop.AddPart(graph.KindConcat, info, op.Inputs, op.Outputs, []uint64{op.OperationID})

	case OpReinterpretQuantization:
		// No data movement changes shape or value; lowered as a
		// passthrough Reshape to the identical shape.
		info := &graph.ReshapeInfo{NewShape: op.Outputs[0].Shape}
		return gop.AddPart(graph.KindReshape, info, op.Inputs, op.Outputs, []uint64{op.OperationID})

	case OpSoftmax:
		return estimateOnly(gop, op, "Softmax", "Softmax has no MCE/PLE realisation", estimationMode)
	case OpDepthToSpace:
		return estimateOnly(gop, op, "DepthToSpace", "DepthToSpace has no MCE/PLE realisation", estimationMode)
	case OpSplit:
		return estimateOnly(gop, op, "Split", "Split has no Part-level realisation; use multiple Output parts", estimationMode)
	case OpTranspose:
		return estimateOnly(gop, op, "Transpose", "arbitrary axis permutation has no MCE/PLE realisation", estimationMode)
	case OpSpaceToDepth:
		return estimateOnly(gop, op, "SpaceToDepth", "SpaceToDepth has no MCE/PLE realisation", estimationMode)
	case OpRequantize:
		return estimateOnly(gop, op, "Requantize", "standalone requantisation has no non-fused hardware realisation", estimationMode)
	case OpEstimateOnly:
		return estimateOnly(gop, op, "EstimateOnly", op.Attrs.UnsupportedReason, estimationMode)

	default:
		return 0, fmt.Errorf("frontend: unhandled op kind %v", op.Kind)
	}
}

func estimateOnly(gop *graph.GraphOfParts, op Op, name, reason string, estimationMode bool) (graph.PartID, error) {
	if !estimationMode {
		return 0, &npu.NotSupportedError{Reason: fmt.Sprintf("%s: %s", name, reason)}
	}
	info := &graph.EstimateOnlyInfo{OriginalOperator: name, Reason: reason}
	return gop.AddPart(graph.KindEstimateOnly, info, op.Inputs, op.Outputs, []uint64{op.OperationID})
}

func buildMceInfo(op Op, caps hwcaps.Caps) (graph.MceInfo, error) {
	var operation graph.MceOperation
	switch op.Kind {
	case OpConvolution:
		operation = graph.MceConv
	case OpDepthwiseConvolution:
		operation = graph.MceDepthwise
		// A single-channel depthwise with a channel multiplier is
		// numerically identical to an ordinary convolution; lower it
		// as one rather than rejecting a multiplier the MCE's
		// depthwise mode itself cannot express.
		if op.Attrs.ChannelMultiplier > 1 && op.Inputs[0].Shape.C == 1 {
			operation = graph.MceConv
		}
	case OpFullyConnected:
		operation = graph.MceFullyConnected
	default:
		return graph.MceInfo{}, fmt.Errorf("frontend: %v is not an MCE-bearing op kind", op.Kind)
	}

	if operation == graph.MceDepthwise && op.Attrs.ChannelMultiplier > 1 && op.Inputs[0].Shape.C > 1 {
		// A channel multiplier above 1 with more than one IFM channel
		// has no MCE realisation; with exactly one IFM channel it is
		// equivalent to an ordinary convolution and is lowered as one
		// by the caller instead of reaching this path.
		return graph.MceInfo{}, &npu.NotSupportedError{
			Reason: fmt.Sprintf("DepthwiseConvolution: channel multiplier %d with %d input channels is not supported", op.Attrs.ChannelMultiplier, op.Inputs[0].Shape.C),
		}
	}

	var relu graph.ReluInfo
	if op.Attrs.ReluUnbounded || op.Attrs.ReluMin != 0 || op.Attrs.ReluMax != 0 {
		relu = planner.BuildReluInfo(op.Attrs.ReluMin, op.Attrs.ReluMax, op.Attrs.ReluUnbounded,
			op.Outputs[0].Type, op.Outputs[0].Quant)
	} else {
		lo, hi := op.Outputs[0].Type.Range()
		relu = graph.ReluInfo{Min: lo, Max: hi}
	}

	info := graph.MceInfo{
		Operation:         operation,
		FilterH:           op.Attrs.FilterH,
		FilterW:           op.Attrs.FilterW,
		StrideH:           op.Attrs.StrideH,
		StrideW:           op.Attrs.StrideW,
		PadTop:            op.Attrs.PadTop,
		PadLeft:           op.Attrs.PadLeft,
		PadBottom:         op.Attrs.PadBottom,
		PadRight:          op.Attrs.PadRight,
		ChannelMultiplier: op.Attrs.ChannelMultiplier,
		Upsample:          graph.UpsampleNone,
		Relu:              relu,
	}
	if len(op.Inputs) > 1 {
		info.Weights = op.Inputs[1]
	}
	if len(op.Inputs) > 2 {
		info.Bias = op.Inputs[2]
	}
	return info, nil
}

// lowerUnfusedPle wraps a fusable PLE kernel that was not fused with a
// preceding MCE (findFusions only pairs an MCE with an immediately
// following, single-consumer PLE op) in its own identity 1x1 stride-1
// MCE, since FusedPle is these kernels' only hardware realisation.
func lowerUnfusedPle(gop *graph.GraphOfParts, op Op, caps hwcaps.Caps) (graph.PartID, error) {
	pleKind, _ := plePleOperation(op.Kind)
	lo, hi := op.Outputs[0].Type.Range()
	info := &graph.FusedPleInfo{
		Mce: graph.MceInfo{
			Operation: graph.MceConv,
			FilterH:   1,
			FilterW:   1,
			StrideH:   1,
			StrideW:   1,
			Upsample:  graph.UpsampleNone,
			Relu:      graph.ReluInfo{Min: lo, Max: hi},
		},
		Ple: pleKind,
	}

	switch op.Kind {
	case OpLeakyRelu:
		info.LeakyReluAlpha = float32(op.Attrs.LeakyReluAlpha)
	case OpPooling, OpMeanXy:
		info.PoolSizeH = op.Attrs.FilterH
		info.PoolSizeW = op.Attrs.FilterW
		info.PoolStrideH = op.Attrs.StrideH
		info.PoolStrideW = op.Attrs.StrideW
	}

	if op.Inputs[0].Quant.Scale != op.Outputs[0].Quant.Scale {
		m, s := planner.RescaleMultiplierShift(op.Inputs[0].Quant.Scale, op.Outputs[0].Quant.Scale)
		info.RescaleMultiplier = m
		info.RescaleShift = s
	}

	return gop.AddPart(graph.KindFusedPle, info, op.Inputs, op.Outputs, []uint64{op.OperationID})
}

// isStridedConv reports whether op is a Convolution/DepthwiseConvolution
// with a stride greater than 1 in either dimension, the trigger for the
// interleave decomposition below.
func isStridedConv(op Op) bool {
	switch op.Kind {
	case OpConvolution, OpDepthwiseConvolution:
		return op.Attrs.StrideH > 1 || op.Attrs.StrideW > 1
	default:
		return false
	}
}

// lowerStridedConv realises a stride>1 convolution as a stride-1
// "interleave" FusedPlePart — an identity 1x1 MCE fused with
// graph.PleInterleave, which folds each stride-sized block of spatial
// positions into extra channels — followed by an ordinary McePart
// running the original filter at stride 1 over the interleaved tensor,
// per §8 scenario 5's expected FusedPlePart(stride2-interleave) +
// McePart pair.
//
// inputPart owns the operation's external input slot; outputPart owns
// its declared output and is what downstream consumers connect to. The
// two are wired together here directly rather than through the usual
// producer/consumer resolution in Lower's second pass, since both slots
// belong to the same original op.
//
// This only reproduces the pair's topology (part kinds, count, and
// wiring), not the interleave kernel's exact channel-packing arithmetic
// or the filter reshaping a real implementation would need to apply to
// the downstream McePart's weights; no original-source implementation of
// this particular decomposition was available to ground the numeric
// behaviour against.
func lowerStridedConv(gop *graph.GraphOfParts, op Op, caps hwcaps.Caps) (inputPart, outputPart graph.PartID, err error) {
	strideH, strideW := op.Attrs.StrideH, op.Attrs.StrideW

	interleaved := op.Inputs[0]
	interleaved.Shape.H /= strideH
	interleaved.Shape.W /= strideW
	interleaved.Shape.C *= strideH * strideW

	lo, hi := interleaved.Type.Range()
	interleaveInfo := &graph.FusedPleInfo{
		Mce: graph.MceInfo{
			Operation: graph.MceConv,
			FilterH:   1,
			FilterW:   1,
			StrideH:   1,
			StrideW:   1,
			Upsample:  graph.UpsampleNone,
			Relu:      graph.ReluInfo{Min: lo, Max: hi},
		},
		Ple: graph.PleInterleave,
		PoolSizeH: strideH,
		PoolSizeW: strideW,
	}

	inputPart, err = gop.AddPart(graph.KindFusedPle, interleaveInfo, []npu.TensorInfo{op.Inputs[0]}, []npu.TensorInfo{interleaved}, []uint64{op.OperationID})
	if err != nil {
		return 0, 0, fmt.Errorf("interleave decomposition: %w", err)
	}

	finalOp := op
	finalOp.Inputs = append([]npu.TensorInfo{interleaved}, op.Inputs[1:]...)
	finalOp.Attrs.StrideH, finalOp.Attrs.StrideW = 1, 1

	mceInfo, err := buildMceInfo(finalOp, caps)
	if err != nil {
		return 0, 0, err
	}
	outputPart, err = gop.AddPart(graph.KindMce, &mceInfo, finalOp.Inputs, op.Outputs, []uint64{op.OperationID})
	if err != nil {
		return 0, 0, fmt.Errorf("interleave decomposition: %w", err)
	}

	out := graph.PartOutputSlot{Part: inputPart, Index: 0}
	in := graph.PartInputSlot{Part: outputPart, Index: 0}
	if err := gop.Connect(out, in); err != nil {
		return 0, 0, fmt.Errorf("interleave decomposition: connecting interleave to mce: %w", err)
	}

	return inputPart, outputPart, nil
}

// lowerTransposeConvolution realises a transpose convolution as a
// single MCE part (MceTransposeConv, UpsampleTranspose) running in the
// hardware's input-upsampling mode, whatever the kernel size; no
// transpose convolution is split into more than one part.
func lowerTransposeConvolution(gop *graph.GraphOfParts, op Op, caps hwcaps.Caps) (graph.PartID, error) {
	info, err := buildMceInfo(Op{
		Kind:    OpConvolution,
		Inputs:  op.Inputs,
		Outputs: op.Outputs,
		Attrs:   op.Attrs,
	}, caps)
	if err != nil {
		return 0, err
	}
	info.Operation = graph.MceTransposeConv
	info.Upsample = graph.UpsampleTranspose

	return gop.AddPart(graph.KindMce, &info, op.Inputs, op.Outputs, []uint64{op.OperationID})
}
