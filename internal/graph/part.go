// Package graph implements the Graph of Parts: the immutable DAG IR
// that the rest of the cascading compiler operates on (SPEC_FULL.md
// §4.8 / C4).
package graph

import "github.com/ethosn/cascadec/pkg/npu"

// PartID is a dense, stable identifier for a Part.
type PartID uint32

// Kind is the tagged-union discriminant for a Part, replacing the
// deep inheritance hierarchy of the original C++ source (§9): pattern
// matching on Kind stands in for dynamic_cast.
type Kind int

const (
	KindInput Kind = iota
	KindOutput
	KindMce
	KindFusedPle
	KindStandalonePle
	KindReshape
	KindConcat
	KindEstimateOnly
)

func (k Kind) String() string {
	switch k {
	case KindInput:
		return "Input"
	case KindOutput:
		return "Output"
	case KindMce:
		return "Mce"
	case KindFusedPle:
		return "FusedPle"
	case KindStandalonePle:
		return "StandalonePle"
	case KindReshape:
		return "Reshape"
	case KindConcat:
		return "Concat"
	case KindEstimateOnly:
		return "EstimateOnly"
	default:
		return "Unknown"
	}
}

// PartInputSlot identifies one input slot of one part.
type PartInputSlot struct {
	Part  PartID
	Index int
}

// PartOutputSlot identifies one output slot of one part.
type PartOutputSlot struct {
	Part  PartID
	Index int
}

// Part is the unit of compilation: a stable id, a kind, a set of input
// and output slots with their tensor info, and the opaque front-end
// operation ids it traces back to.
type Part struct {
	ID   PartID
	Kind Kind

	// Sub is the kind-specific payload. It is one of *MceInfo,
	// *FusedPleInfo, *StandalonePleInfo, *ReshapeInfo, *ConcatInfo,
	// *InputOutputInfo, or *EstimateOnlyInfo, matching Kind.
	Sub any

	InputInfo  []npu.TensorInfo
	OutputInfo []npu.TensorInfo

	OperationIDs []uint64
}

// NumInputs returns the number of input slots this part exposes.
func (p *Part) NumInputs() int { return len(p.InputInfo) }

// NumOutputs returns the number of output slots this part exposes.
func (p *Part) NumOutputs() int { return len(p.OutputInfo) }
