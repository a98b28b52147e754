package frontend

import (
	"testing"

	"github.com/ethosn/cascadec/internal/graph"
	"github.com/ethosn/cascadec/internal/hwcaps"
	"github.com/ethosn/cascadec/pkg/npu"
)

func testShape(t *testing.T, h, w, c int) npu.TensorInfo {
	t.Helper()
	s, err := npu.BuildShape([]int{1, h, w, c})
	if err != nil {
		t.Fatalf("BuildShape: %v", err)
	}
	return npu.TensorInfo{Shape: s, Quant: npu.QuantInfo{ZeroPoint: 0, Scale: 1.0}, Type: npu.QAsymmU8}
}

// newStridedNetwork builds the network of §8 scenario 5:
// Input(128,128,16) -> Conv(3x3,s1) -> Reshape(126,126,16) ->
// MaxPool(2x2,s2) -> Conv(3x3,s2) -> Output.
func newStridedNetwork(t *testing.T) *OperatorGraph {
	t.Helper()

	in := testShape(t, 128, 128, 16)
	convOut := testShape(t, 126, 126, 16)
	reshapeOut := testShape(t, 126, 126, 16)
	poolOut := testShape(t, 63, 63, 16)
	finalOut := testShape(t, 31, 31, 16)

	return &OperatorGraph{
		Ops: []Op{
			{Kind: OpInput, OperationID: 1, Outputs: []npu.TensorInfo{in}},
			{
				Kind:        OpConvolution,
				OperationID: 2,
				Inputs:      []npu.TensorInfo{in},
				InputSrcs:   []OperandRef{{OperationID: 1, OutputIndex: 0}},
				Outputs:     []npu.TensorInfo{convOut},
				Attrs:       Attrs{FilterH: 3, FilterW: 3, StrideH: 1, StrideW: 1},
			},
			{
				Kind:        OpReshape,
				OperationID: 3,
				Inputs:      []npu.TensorInfo{convOut},
				InputSrcs:   []OperandRef{{OperationID: 2, OutputIndex: 0}},
				Outputs:     []npu.TensorInfo{reshapeOut},
				Attrs:       Attrs{NewShape: reshapeOut.Shape},
			},
			{
				Kind:        OpPooling,
				OperationID: 4,
				Inputs:      []npu.TensorInfo{reshapeOut},
				InputSrcs:   []OperandRef{{OperationID: 3, OutputIndex: 0}},
				Outputs:     []npu.TensorInfo{poolOut},
				Attrs:       Attrs{FilterH: 2, FilterW: 2, StrideH: 2, StrideW: 2, PoolIsMax: true},
			},
			{
				Kind:        OpConvolution,
				OperationID: 5,
				Inputs:      []npu.TensorInfo{poolOut},
				InputSrcs:   []OperandRef{{OperationID: 4, OutputIndex: 0}},
				Outputs:     []npu.TensorInfo{finalOut},
				Attrs:       Attrs{FilterH: 3, FilterW: 3, StrideH: 2, StrideW: 2},
			},
			{
				Kind:        OpOutput,
				OperationID: 6,
				Inputs:      []npu.TensorInfo{finalOut},
				InputSrcs:   []OperandRef{{OperationID: 5, OutputIndex: 0}},
			},
		},
	}
}

func TestLowerStridedNetworkProducesSevenPartsInOrder(t *testing.T) {
	og := newStridedNetwork(t)
	caps := hwcaps.Ethos78_4Tops_4PleRatio()

	gop, err := Lower(og, caps, false)
	if err != nil {
		t.Fatalf("Lower: %v", err)
	}

	if gop.NumParts() != 7 {
		t.Fatalf("NumParts() = %d, want 7", gop.NumParts())
	}

	wantKinds := []graph.Kind{
		graph.KindInput,
		graph.KindMce,
		graph.KindReshape,
		graph.KindFusedPle,
		graph.KindFusedPle,
		graph.KindMce,
		graph.KindOutput,
	}
	for id, want := range wantKinds {
		part := gop.Part(graph.PartID(id))
		if part == nil {
			t.Fatalf("part %d missing", id)
		}
		if part.Kind != want {
			t.Errorf("part %d kind = %v, want %v", id, part.Kind, want)
		}
	}

	maxPoolPart := gop.Part(3)
	info, ok := maxPoolPart.Sub.(*graph.FusedPleInfo)
	if !ok {
		t.Fatalf("part 3 sub = %T, want *graph.FusedPleInfo", maxPoolPart.Sub)
	}
	if info.Ple != graph.PleMaxPool {
		t.Errorf("part 3 Ple = %v, want PleMaxPool", info.Ple)
	}

	interleavePart := gop.Part(4)
	interleaveInfo, ok := interleavePart.Sub.(*graph.FusedPleInfo)
	if !ok {
		t.Fatalf("part 4 sub = %T, want *graph.FusedPleInfo", interleavePart.Sub)
	}
	if interleaveInfo.Ple != graph.PleInterleave {
		t.Errorf("part 4 Ple = %v, want PleInterleave", interleaveInfo.Ple)
	}

	for k := 0; k < 6; k++ {
		in := graph.PartInputSlot{Part: graph.PartID(k + 1), Index: 0}
		out, ok := gop.GetConnectedOutputSlot(in)
		if !ok {
			t.Fatalf("part %d input slot 0 has no producer", k+1)
		}
		if out.Part != graph.PartID(k) {
			t.Errorf("part %d input slot 0 fed by part %d, want part %d", k+1, out.Part, k)
		}
	}
}

func newAdditionNetwork(t *testing.T) *OperatorGraph {
	t.Helper()

	a := testShape(t, 8, 8, 4)
	b := testShape(t, 8, 8, 4)
	b.Quant.Scale = 2.0
	out := testShape(t, 8, 8, 4)
	out.Quant.Scale = 1.5

	return &OperatorGraph{
		Ops: []Op{
			{Kind: OpInput, OperationID: 1, Outputs: []npu.TensorInfo{a}},
			{Kind: OpInput, OperationID: 2, Outputs: []npu.TensorInfo{b}},
			{
				Kind:        OpAddition,
				OperationID: 3,
				Inputs:      []npu.TensorInfo{a, b},
				InputSrcs:   []OperandRef{{OperationID: 1, OutputIndex: 0}, {OperationID: 2, OutputIndex: 0}},
				Outputs:     []npu.TensorInfo{out},
			},
			{
				Kind:        OpOutput,
				OperationID: 4,
				Inputs:      []npu.TensorInfo{out},
				InputSrcs:   []OperandRef{{OperationID: 3, OutputIndex: 0}},
			},
		},
	}
}

func TestLowerAdditionPopulatesPerInputRescale(t *testing.T) {
	og := newAdditionNetwork(t)
	caps := hwcaps.Ethos78_4Tops_4PleRatio()

	gop, err := Lower(og, caps, false)
	if err != nil {
		t.Fatalf("Lower: %v", err)
	}

	var additionPart *graph.Part
	for _, p := range gop.Parts() {
		if p.Kind == graph.KindStandalonePle {
			additionPart = p
		}
	}
	if additionPart == nil {
		t.Fatalf("no KindStandalonePle part found")
	}

	info, ok := additionPart.Sub.(*graph.StandalonePleInfo)
	if !ok {
		t.Fatalf("addition part sub = %T, want *graph.StandalonePleInfo", additionPart.Sub)
	}
	if info.Ple != graph.PleAddition {
		t.Errorf("Ple = %v, want PleAddition", info.Ple)
	}
	if info.Input0Multiplier == 0 {
		t.Errorf("Input0Multiplier is zero, want a rescale factor for a 1.0 -> 1.5 scale change")
	}
	if info.Input1Multiplier == 0 {
		t.Errorf("Input1Multiplier is zero, want a rescale factor for a 2.0 -> 1.5 scale change")
	}
	if info.Input0Multiplier == info.Input1Multiplier && info.Input0Shift == info.Input1Shift {
		t.Errorf("Input0/Input1 rescale factors are identical despite different input scales (1.0 vs 2.0)")
	}

	if len(additionPart.InputInfo) != 2 {
		t.Fatalf("addition part has %d input slots, want 2", len(additionPart.InputInfo))
	}
	for slot := 0; slot < 2; slot++ {
		in := graph.PartInputSlot{Part: additionPart.ID, Index: slot}
		if _, ok := gop.GetConnectedOutputSlot(in); !ok {
			t.Errorf("addition input slot %d has no connected producer", slot)
		}
	}
}

func TestLowerRejectsUnsupportedOperatorOutsideEstimationMode(t *testing.T) {
	in := testShape(t, 16, 16, 4)
	out := testShape(t, 16, 16, 4)
	og := &OperatorGraph{
		Ops: []Op{
			{Kind: OpInput, OperationID: 1, Outputs: []npu.TensorInfo{in}},
			{
				Kind:        OpSoftmax,
				OperationID: 2,
				Inputs:      []npu.TensorInfo{in},
				InputSrcs:   []OperandRef{{OperationID: 1, OutputIndex: 0}},
				Outputs:     []npu.TensorInfo{out},
			},
			{
				Kind:        OpOutput,
				OperationID: 3,
				Inputs:      []npu.TensorInfo{out},
				InputSrcs:   []OperandRef{{OperationID: 2, OutputIndex: 0}},
			},
		},
	}
	caps := hwcaps.Ethos78_4Tops_4PleRatio()

	if _, err := Lower(og, caps, false); err == nil {
		t.Fatalf("expected an error lowering Softmax outside estimation mode")
	}

	gop, err := Lower(og, caps, true)
	if err != nil {
		t.Fatalf("Lower with estimation mode on: %v", err)
	}
	found := false
	for _, p := range gop.Parts() {
		if p.Kind == graph.KindEstimateOnly {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a KindEstimateOnly part for Softmax under estimation mode")
	}
}
