package graph

import (
	"testing"

	"github.com/ethosn/cascadec/pkg/npu"
)

func tensorInfo(h, w, c int) npu.TensorInfo {
	return npu.TensorInfo{Shape: npu.Shape{N: 1, H: h, W: w, C: c}, Type: npu.QAsymmU8}
}

func TestConnectAndQuery(t *testing.T) {
	g := New()
	in, _ := g.AddPart(KindInput, &InputOutputInfo{}, nil, []npu.TensorInfo{tensorInfo(8, 8, 4)}, nil)
	out, _ := g.AddPart(KindOutput, &InputOutputInfo{}, []npu.TensorInfo{tensorInfo(8, 8, 4)}, nil, nil)

	if err := g.Connect(PartOutputSlot{Part: in, Index: 0}, PartInputSlot{Part: out, Index: 0}); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	outSlot, ok := g.GetConnectedOutputSlot(PartInputSlot{Part: out, Index: 0})
	if !ok || outSlot.Part != in {
		t.Fatalf("GetConnectedOutputSlot = %+v, %v", outSlot, ok)
	}

	consumers := g.GetConnectedInputSlots(PartOutputSlot{Part: in, Index: 0})
	if len(consumers) != 1 || consumers[0].Part != out {
		t.Fatalf("GetConnectedInputSlots = %+v", consumers)
	}
}

func TestConnectRejectsShapeMismatch(t *testing.T) {
	g := New()
	in, _ := g.AddPart(KindInput, &InputOutputInfo{}, nil, []npu.TensorInfo{tensorInfo(8, 8, 4)}, nil)
	out, _ := g.AddPart(KindOutput, &InputOutputInfo{}, []npu.TensorInfo{tensorInfo(4, 4, 4)}, nil, nil)

	if err := g.Connect(PartOutputSlot{Part: in, Index: 0}, PartInputSlot{Part: out, Index: 0}); err == nil {
		t.Fatal("expected shape mismatch error")
	}
}

func TestConnectRejectsDoubleOccupancy(t *testing.T) {
	g := New()
	a, _ := g.AddPart(KindInput, &InputOutputInfo{}, nil, []npu.TensorInfo{tensorInfo(8, 8, 4)}, nil)
	b, _ := g.AddPart(KindInput, &InputOutputInfo{}, nil, []npu.TensorInfo{tensorInfo(8, 8, 4)}, nil)
	out, _ := g.AddPart(KindOutput, &InputOutputInfo{}, []npu.TensorInfo{tensorInfo(8, 8, 4)}, nil, nil)

	if err := g.Connect(PartOutputSlot{Part: a, Index: 0}, PartInputSlot{Part: out, Index: 0}); err != nil {
		t.Fatalf("first connect: %v", err)
	}
	if err := g.Connect(PartOutputSlot{Part: b, Index: 0}, PartInputSlot{Part: out, Index: 0}); err == nil {
		t.Fatal("expected error connecting an already-occupied input slot")
	}
}

func TestFreezeDetectsCycle(t *testing.T) {
	g := New()
	a, _ := g.AddPart(KindReshape, &ReshapeInfo{}, []npu.TensorInfo{tensorInfo(8, 8, 4)}, []npu.TensorInfo{tensorInfo(8, 8, 4)}, nil)
	b, _ := g.AddPart(KindReshape, &ReshapeInfo{}, []npu.TensorInfo{tensorInfo(8, 8, 4)}, []npu.TensorInfo{tensorInfo(8, 8, 4)}, nil)

	if err := g.Connect(PartOutputSlot{Part: a, Index: 0}, PartInputSlot{Part: b, Index: 0}); err != nil {
		t.Fatal(err)
	}
	if err := g.Connect(PartOutputSlot{Part: b, Index: 0}, PartInputSlot{Part: a, Index: 0}); err != nil {
		t.Fatal(err)
	}
	if err := g.Freeze(); err == nil {
		t.Fatal("expected cycle to be detected")
	}
}

func TestTopoOrderLinearChain(t *testing.T) {
	g := New()
	ids := make([]PartID, 3)
	ids[0], _ = g.AddPart(KindInput, &InputOutputInfo{}, nil, []npu.TensorInfo{tensorInfo(8, 8, 4)}, nil)
	ids[1], _ = g.AddPart(KindReshape, &ReshapeInfo{}, []npu.TensorInfo{tensorInfo(8, 8, 4)}, []npu.TensorInfo{tensorInfo(8, 8, 4)}, nil)
	ids[2], _ = g.AddPart(KindOutput, &InputOutputInfo{}, []npu.TensorInfo{tensorInfo(8, 8, 4)}, nil, nil)

	for i := 0; i < 2; i++ {
		if err := g.Connect(PartOutputSlot{Part: ids[i], Index: 0}, PartInputSlot{Part: ids[i+1], Index: 0}); err != nil {
			t.Fatal(err)
		}
	}

	order, err := g.TopoOrder()
	if err != nil {
		t.Fatal(err)
	}
	for i, id := range order {
		if id != ids[i] {
			t.Fatalf("TopoOrder = %v, want %v", order, ids)
		}
	}
}
