package graph

import (
	"fmt"

	"github.com/ethosn/cascadec/pkg/npu"
)

// GraphOfParts is the immutable DAG of parts described in §3/§4.8: a
// mapping PartInputSlot -> PartOutputSlot, built once by the front-end
// converter and never mutated again once compilation begins.
//
// Ownership follows §3: the graph owns its parts. Plans generated for a
// part (C5) are owned by the part or shared via a reference-counted
// handle, modelled elsewhere as the planner's own cache.
type GraphOfParts struct {
	parts []*Part
	byID  map[PartID]*Part

	// producer maps an input slot to the output slot that feeds it.
	producer map[PartInputSlot]PartOutputSlot
	// consumers maps an output slot to every input slot it feeds.
	consumers map[PartOutputSlot][]PartInputSlot

	frozen bool
}

// New creates an empty, mutable Graph of Parts.
func New() *GraphOfParts {
	return &GraphOfParts{
		byID:      make(map[PartID]*Part),
		producer:  make(map[PartInputSlot]PartOutputSlot),
		consumers: make(map[PartOutputSlot][]PartInputSlot),
	}
}

// AddPart registers a new part and returns its assigned PartID. IDs are
// assigned densely in insertion order.
func (g *GraphOfParts) AddPart(kind Kind, sub any, inputs, outputs []npu.TensorInfo, opIDs []uint64) (PartID, error) {
	if g.frozen {
		return 0, fmt.Errorf("graph: cannot add part to a frozen graph")
	}
	id := PartID(len(g.parts))
	p := &Part{
		ID:           id,
		Kind:         kind,
		Sub:          sub,
		InputInfo:    append([]npu.TensorInfo{}, inputs...),
		OutputInfo:   append([]npu.TensorInfo{}, outputs...),
		OperationIDs: append([]uint64{}, opIDs...),
	}
	g.parts = append(g.parts, p)
	g.byID[id] = p
	return id, nil
}

// Connect wires an output slot to an input slot, checking the
// invariants of §4.8: the output slot must exist, the input slot must
// be unoccupied, and the shapes must be compatible (equal, unless the
// consuming or producing part is a Reshape, which is explicitly allowed
// to change shape at its boundary).
func (g *GraphOfParts) Connect(out PartOutputSlot, in PartInputSlot) error {
	if g.frozen {
		return fmt.Errorf("graph: cannot connect a frozen graph")
	}

	outPart, ok := g.byID[out.Part]
	if !ok {
		return fmt.Errorf("graph: output slot references unknown part %d", out.Part)
	}
	if out.Index < 0 || out.Index >= outPart.NumOutputs() {
		return fmt.Errorf("graph: output slot %d.%d out of range (part has %d outputs)", out.Part, out.Index, outPart.NumOutputs())
	}

	inPart, ok := g.byID[in.Part]
	if !ok {
		return fmt.Errorf("graph: input slot references unknown part %d", in.Part)
	}
	if in.Index < 0 || in.Index >= inPart.NumInputs() {
		return fmt.Errorf("graph: input slot %d.%d out of range (part has %d inputs)", in.Part, in.Index, inPart.NumInputs())
	}

	if _, occupied := g.producer[in]; occupied {
		return fmt.Errorf("graph: input slot %d.%d already connected", in.Part, in.Index)
	}

	outShape := outPart.OutputInfo[out.Index].Shape
	inShape := inPart.InputInfo[in.Index].Shape
	if outShape != inShape && inPart.Kind != KindReshape && outPart.Kind != KindReshape {
		return fmt.Errorf("graph: shape mismatch connecting %d.%d (%v) to %d.%d (%v)",
			out.Part, out.Index, outShape, in.Part, in.Index, inShape)
	}

	g.producer[in] = out
	g.consumers[out] = append(g.consumers[out], in)
	return nil
}

// GetConnectedOutputSlot returns the output slot feeding in, if any.
func (g *GraphOfParts) GetConnectedOutputSlot(in PartInputSlot) (PartOutputSlot, bool) {
	out, ok := g.producer[in]
	return out, ok
}

// GetConnectedInputSlots returns every input slot fed by out.
func (g *GraphOfParts) GetConnectedInputSlots(out PartOutputSlot) []PartInputSlot {
	return append([]PartInputSlot{}, g.consumers[out]...)
}

// NumParts returns the number of parts in the graph.
func (g *GraphOfParts) NumParts() int { return len(g.parts) }

// Part returns the part with the given id, or nil if it does not exist.
func (g *GraphOfParts) Part(id PartID) *Part { return g.byID[id] }

// Parts returns every part, in insertion (PartID) order.
func (g *GraphOfParts) Parts() []*Part {
	return append([]*Part{}, g.parts...)
}

// Freeze marks the graph as immutable. Compilation may begin only after
// Freeze validates that the graph is acyclic; it does not check input
// slots, so an input slot with no producer is accepted.
func (g *GraphOfParts) Freeze() error {
	if g.frozen {
		return nil
	}
	if err := g.checkAcyclic(); err != nil {
		return err
	}
	g.frozen = true
	return nil
}

func (g *GraphOfParts) checkAcyclic() error {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[PartID]int, len(g.parts))

	var visit func(id PartID) error
	visit = func(id PartID) error {
		switch color[id] {
		case black:
			return nil
		case gray:
			return fmt.Errorf("graph: cycle detected at part %d", id)
		}
		color[id] = gray
		p := g.byID[id]
		for outIdx := range p.OutputInfo {
			for _, in := range g.consumers[PartOutputSlot{Part: id, Index: outIdx}] {
				if err := visit(in.Part); err != nil {
					return err
				}
			}
		}
		color[id] = black
		return nil
	}

	for _, p := range g.parts {
		if err := visit(p.ID); err != nil {
			return err
		}
	}
	return nil
}

// TopoOrder returns a topological ordering of part ids, valid to call
// on both frozen and (acyclic) unfrozen graphs.
func (g *GraphOfParts) TopoOrder() ([]PartID, error) {
	inDegree := make(map[PartID]int, len(g.parts))
	for _, p := range g.parts {
		inDegree[p.ID] = 0
	}
	for in := range g.producer {
		inDegree[in.Part]++
	}

	var queue []PartID
	for _, p := range g.parts {
		if inDegree[p.ID] == 0 {
			queue = append(queue, p.ID)
		}
	}

	var order []PartID
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)
		p := g.byID[id]
		for outIdx := range p.OutputInfo {
			for _, in := range g.consumers[PartOutputSlot{Part: id, Index: outIdx}] {
				inDegree[in.Part]--
				if inDegree[in.Part] == 0 {
					queue = append(queue, in.Part)
				}
			}
		}
	}

	if len(order) != len(g.parts) {
		return nil, fmt.Errorf("graph: cycle prevents topological ordering")
	}
	return order, nil
}
