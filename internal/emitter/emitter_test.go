package emitter

import (
	"testing"

	"github.com/ethosn/cascadec/internal/combiner"
	"github.com/ethosn/cascadec/internal/graph"
	"github.com/ethosn/cascadec/internal/hwcaps"
	"github.com/ethosn/cascadec/internal/planner"
	"github.com/ethosn/cascadec/pkg/ncf"
	"github.com/ethosn/cascadec/pkg/npu"
)

func newSingleMceGraph(t *testing.T) (*graph.GraphOfParts, hwcaps.Caps) {
	t.Helper()
	quant := npu.QuantInfo{ZeroPoint: 0, Scale: 1.0}
	shape := func(h, w, c int) npu.TensorInfo {
		s, err := npu.BuildShape([]int{1, h, w, c})
		if err != nil {
			t.Fatalf("BuildShape: %v", err)
		}
		return npu.TensorInfo{Shape: s, Quant: quant, Type: npu.QAsymmU8}
	}

	g := graph.New()
	mceInfo := &graph.MceInfo{Operation: graph.MceConv, FilterH: 1, FilterW: 1}
	_, err := g.AddPart(graph.KindMce, mceInfo, []npu.TensorInfo{shape(16, 16, 8)}, []npu.TensorInfo{shape(16, 16, 8)}, []uint64{1})
	if err != nil {
		t.Fatalf("AddPart: %v", err)
	}
	if err := g.Freeze(); err != nil {
		t.Fatalf("Freeze: %v", err)
	}
	return g, hwcaps.Ethos78_4Tops_4PleRatio()
}

func TestEmitProducesIfmWgtMceOfmAgentsInOrder(t *testing.T) {
	g, caps := newSingleMceGraph(t)
	comb, err := combiner.Combine(g, caps, planner.NewPlanCache(), planner.NoRestriction())
	if err != nil {
		t.Fatalf("Combine: %v", err)
	}

	stream, lifetimes, err := Emit(g, comb, caps)
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if len(lifetimes) != 0 {
		t.Fatalf("expected no glues for a single-part graph, got %d", len(lifetimes))
	}

	wantKinds := []ncf.AgentKind{ncf.AgentIfmStreamer, ncf.AgentWgtStreamer, ncf.AgentMceScheduler, ncf.AgentOfmStreamer}
	if len(stream.Agents) != len(wantKinds) {
		t.Fatalf("agents = %d, want %d: %+v", len(stream.Agents), len(wantKinds), stream.Agents)
	}
	for i, k := range wantKinds {
		if stream.Agents[i].Kind != k {
			t.Fatalf("agent %d kind = %v, want %v", i, stream.Agents[i].Kind, k)
		}
	}

	mce := stream.Agents[2]
	if mce.ReadDependencies[0].RelativeAgentID != 1 {
		t.Fatalf("mce read-dependency 0 relative id = %d, want 1 (the ifm streamer)", mce.ReadDependencies[0].RelativeAgentID)
	}
	if mce.ReadDependencies[1].RelativeAgentID != 2 {
		t.Fatalf("mce read-dependency 1 relative id = %d, want 2 (the weight streamer)", mce.ReadDependencies[1].RelativeAgentID)
	}

	if len(stream.Mce) == 0 {
		t.Fatalf("expected at least one mce command")
	}
	if stream.Mce[0].Kind != ncf.CmdConfigMceif {
		t.Fatalf("first mce command = %v, want CmdConfigMceif", stream.Mce[0].Kind)
	}
}

func newMceThenAdditionGraph(t *testing.T) (*graph.GraphOfParts, hwcaps.Caps) {
	t.Helper()
	quant := npu.QuantInfo{ZeroPoint: 0, Scale: 1.0}
	shape := func(h, w, c int) npu.TensorInfo {
		s, err := npu.BuildShape([]int{1, h, w, c})
		if err != nil {
			t.Fatalf("BuildShape: %v", err)
		}
		return npu.TensorInfo{Shape: s, Quant: quant, Type: npu.QAsymmU8}
	}

	g := graph.New()
	mceInfo := &graph.MceInfo{Operation: graph.MceConv, FilterH: 1, FilterW: 1}
	p0, err := g.AddPart(graph.KindMce, mceInfo, []npu.TensorInfo{shape(16, 16, 8)}, []npu.TensorInfo{shape(16, 16, 8)}, []uint64{1})
	if err != nil {
		t.Fatalf("AddPart p0: %v", err)
	}
	p1, err := g.AddPart(graph.KindMce, mceInfo, []npu.TensorInfo{shape(16, 16, 8)}, []npu.TensorInfo{shape(16, 16, 8)}, []uint64{2})
	if err != nil {
		t.Fatalf("AddPart p1: %v", err)
	}
	addInfo := &graph.StandalonePleInfo{Ple: graph.PleAddition}
	p2, err := g.AddPart(graph.KindStandalonePle, addInfo, []npu.TensorInfo{shape(16, 16, 8), shape(16, 16, 8)}, []npu.TensorInfo{shape(16, 16, 8)}, []uint64{3})
	if err != nil {
		t.Fatalf("AddPart p2: %v", err)
	}
	if err := g.Connect(graph.PartOutputSlot{Part: p0, Index: 0}, graph.PartInputSlot{Part: p2, Index: 0}); err != nil {
		t.Fatalf("Connect slot 0: %v", err)
	}
	if err := g.Connect(graph.PartOutputSlot{Part: p1, Index: 0}, graph.PartInputSlot{Part: p2, Index: 1}); err != nil {
		t.Fatalf("Connect slot 1: %v", err)
	}
	if err := g.Freeze(); err != nil {
		t.Fatalf("Freeze: %v", err)
	}
	return g, hwcaps.Ethos78_4Tops_4PleRatio()
}

func TestEmitAdditionStreamsBothIfmOperands(t *testing.T) {
	g, caps := newMceThenAdditionGraph(t)
	comb, err := combiner.Combine(g, caps, planner.NewPlanCache(), planner.NoRestriction())
	if err != nil {
		t.Fatalf("Combine: %v", err)
	}

	stream, lifetimes, err := Emit(g, comb, caps)
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if len(lifetimes) != 2 {
		t.Fatalf("expected 2 glue lifetimes (one per Addition operand), got %d", len(lifetimes))
	}

	var pleAgent *ncf.Agent
	ifmCount := 0
	for i := range stream.Agents {
		a := &stream.Agents[i]
		if a.Kind == ncf.AgentIfmStreamer {
			ifmCount++
		}
		if a.Kind == ncf.AgentPleScheduler {
			pleAgent = a
		}
	}
	if ifmCount != 4 {
		t.Fatalf("expected 4 ifm streamers (one per mce part's input, plus one per addition operand), got %d", ifmCount)
	}
	if pleAgent == nil {
		t.Fatalf("expected a PleScheduler agent")
	}
	if pleAgent.Mode != ncf.InputModeSram {
		t.Fatalf("addition ple scheduler mode = %v, want InputModeSram", pleAgent.Mode)
	}
	if pleAgent.IfmTile0.NumSlots == 0 || pleAgent.IfmTile1.NumSlots == 0 {
		t.Fatalf("expected both IfmTile0 and IfmTile1 to be populated, got %+v / %+v", pleAgent.IfmTile0, pleAgent.IfmTile1)
	}
	if pleAgent.ReadDependencies[1].RelativeAgentID != 2 {
		t.Fatalf("expected a second read-dependency for the addition's 2nd operand, got %+v", pleAgent.ReadDependencies[1])
	}
}

func TestEmitRoundTripsThroughCodec(t *testing.T) {
	g, caps := newSingleMceGraph(t)
	comb, err := combiner.Combine(g, caps, planner.NewPlanCache(), planner.NoRestriction())
	if err != nil {
		t.Fatalf("Combine: %v", err)
	}
	stream, _, err := Emit(g, comb, caps)
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}

	payload, err := ncf.EncodeCascade(stream)
	if err != nil {
		t.Fatalf("EncodeCascade: %v", err)
	}
	decoded, err := ncf.DecodeCascade(payload)
	if err != nil {
		t.Fatalf("DecodeCascade: %v", err)
	}
	if len(decoded.Agents) != len(stream.Agents) {
		t.Fatalf("decoded agent count = %d, want %d", len(decoded.Agents), len(stream.Agents))
	}
}
