package combiner

import (
	"testing"

	"github.com/ethosn/cascadec/internal/graph"
	"github.com/ethosn/cascadec/internal/hwcaps"
	"github.com/ethosn/cascadec/internal/planner"
	"github.com/ethosn/cascadec/pkg/npu"
)

func newTwoMceChain(t *testing.T) *graph.GraphOfParts {
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
	in := shape(16, 16, 8)
	mid := shape(16, 16, 8)
	out := shape(16, 16, 8)

	mceInfo := &graph.MceInfo{Operation: graph.MceConv, FilterH: 1, FilterW: 1}
	p0, err := g.AddPart(graph.KindMce, mceInfo, []npu.TensorInfo{in}, []npu.TensorInfo{mid}, []uint64{1})
	if err != nil {
		t.Fatalf("AddPart p0: %v", err)
	}
	p1, err := g.AddPart(graph.KindMce, mceInfo, []npu.TensorInfo{mid}, []npu.TensorInfo{out}, []uint64{2})
	if err != nil {
		t.Fatalf("AddPart p1: %v", err)
	}
	if err := g.Connect(graph.PartOutputSlot{Part: p0, Index: 0}, graph.PartInputSlot{Part: p1, Index: 0}); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := g.Freeze(); err != nil {
		t.Fatalf("Freeze: %v", err)
	}
	return g
}

func TestCombineProducesOnePlanPerPart(t *testing.T) {
	g := newTwoMceChain(t)
	caps := hwcaps.Ethos78_4Tops_4PleRatio()
	cache := planner.NewPlanCache()

	comb, err := Combine(g, caps, cache, planner.NoRestriction())
	if err != nil {
		t.Fatalf("Combine: %v", err)
	}
	if len(comb.Plans) != g.NumParts() {
		t.Fatalf("plans = %d, want %d", len(comb.Plans), g.NumParts())
	}
	for _, p := range g.Parts() {
		if _, ok := comb.Plans[p.ID]; !ok {
			t.Fatalf("part %d has no chosen plan", p.ID)
		}
	}
}

func TestCombineRejectsWhenNoPlanFitsSram(t *testing.T) {
	g := newTwoMceChain(t)
	caps := hwcaps.Ethos78_4Tops_4PleRatio()
	caps.TotalSramBytes = 1
	cache := planner.NewPlanCache()

	if _, err := Combine(g, caps, cache, planner.NoRestriction()); err == nil {
		t.Fatalf("Combine: expected an error when no plan fits the SRAM budget")
	}
}

// newMceThenAddition builds a 3-part graph: two independent Mce
// producers feeding both operands of a standalone Addition part, so
// Combine must glue in both of Addition's input slots rather than only
// slot 0.
func newMceThenAddition(t *testing.T) *graph.GraphOfParts {
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
	in := shape(16, 16, 8)
	mid := shape(16, 16, 8)
	out := shape(16, 16, 8)

	mceInfo := &graph.MceInfo{Operation: graph.MceConv, FilterH: 1, FilterW: 1}
	p0, err := g.AddPart(graph.KindMce, mceInfo, []npu.TensorInfo{in}, []npu.TensorInfo{mid}, []uint64{1})
	if err != nil {
		t.Fatalf("AddPart p0: %v", err)
	}
	p1, err := g.AddPart(graph.KindMce, mceInfo, []npu.TensorInfo{in}, []npu.TensorInfo{mid}, []uint64{2})
	if err != nil {
		t.Fatalf("AddPart p1: %v", err)
	}
	addInfo := &graph.StandalonePleInfo{Ple: graph.PleAddition}
	p2, err := g.AddPart(graph.KindStandalonePle, addInfo, []npu.TensorInfo{mid, mid}, []npu.TensorInfo{out}, []uint64{3})
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
	return g
}

func TestCombineGluesBothAdditionInputs(t *testing.T) {
	g := newMceThenAddition(t)
	caps := hwcaps.Ethos78_4Tops_4PleRatio()
	cache := planner.NewPlanCache()

	comb, err := Combine(g, caps, cache, planner.NoRestriction())
	if err != nil {
		t.Fatalf("Combine: %v", err)
	}
	if len(comb.Plans) != g.NumParts() {
		t.Fatalf("plans = %d, want %d", len(comb.Plans), g.NumParts())
	}

	var additionID graph.PartID
	for _, p := range g.Parts() {
		if p.Kind == graph.KindStandalonePle {
			additionID = p.ID
		}
	}
	for slot := 0; slot < 2; slot++ {
		key := graph.PartInputSlot{Part: additionID, Index: slot}
		if _, ok := comb.Glues[key]; !ok {
			t.Fatalf("expected a glue for Addition input slot %d, got none (glues: %+v)", slot, comb.Glues)
		}
	}
}

func TestCostLessOrdersByTotalThenNonParallelThenPasses(t *testing.T) {
	cheap := Cost{NonParallelDramBytes: 10, Passes: 1}
	expensive := Cost{NonParallelDramBytes: 20, Passes: 1}
	if !cheap.Less(expensive) {
		t.Fatalf("expected cheap < expensive by total bytes")
	}

	tie1 := Cost{NonParallelDramBytes: 10, ParallelDramBytes: 0, Passes: 2}
	tie2 := Cost{NonParallelDramBytes: 5, ParallelDramBytes: 5, Passes: 2}
	if tie1.Total() != tie2.Total() {
		t.Fatalf("test setup: totals should tie, got %d and %d", tie1.Total(), tie2.Total())
	}
	if !tie2.Less(tie1) {
		t.Fatalf("expected the lower NonParallelDramBytes to win the tie-break")
	}
}
