// Package frontend models the boundary to the (out-of-scope, frozen)
// public operator-construction API: a visitor interface with one method
// per operator kind, and the lowering of an operator graph built
// through that interface into a Graph of Parts (SPEC_FULL.md §4.9,
// §6).
package frontend

import (
	"fmt"

	"github.com/ethosn/cascadec/pkg/npu"
)

// OpKind enumerates every operator kind the visitor interface exposes,
// per §6.
type OpKind int

const (
	OpInput OpKind = iota
	OpOutput
	OpConvolution
	OpDepthwiseConvolution
	OpFullyConnected
	OpPooling
	OpReshape
	OpConcatenation
	OpLeakyRelu
	OpSigmoid
	OpTanh
	OpMeanXy
	OpEstimateOnly
	OpAddition
	OpResize
	OpRelu
	OpTransposeConvolution
	OpReinterpretQuantization
	OpSoftmax
	OpDepthToSpace
	OpSplit
	OpTranspose
	OpSpaceToDepth
	OpRequantize
)

var opKindNames = [...]string{
	"Input", "Output", "Convolution", "DepthwiseConvolution",
	"FullyConnected", "Pooling", "Reshape", "Concatenation",
	"LeakyRelu", "Sigmoid", "Tanh", "MeanXy", "EstimateOnly",
	"Addition", "Resize", "Relu", "TransposeConvolution",
	"ReinterpretQuantization", "Softmax", "DepthToSpace", "Split",
	"Transpose", "SpaceToDepth", "Requantize",
}

func (k OpKind) String() string {
	if int(k) >= 0 && int(k) < len(opKindNames) {
		return opKindNames[k]
	}
	return "Unknown"
}

// MarshalJSON renders an OpKind by name, so a hand-written network
// description reads "Convolution" rather than a bare enum ordinal.
func (k OpKind) MarshalJSON() ([]byte, error) {
	return []byte(`"` + k.String() + `"`), nil
}

// UnmarshalJSON parses an OpKind from the same names String returns.
func (k *OpKind) UnmarshalJSON(data []byte) error {
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return fmt.Errorf("frontend: OpKind must be a JSON string, got %s", data)
	}
	name := string(data[1 : len(data)-1])
	for i, n := range opKindNames {
		if n == name {
			*k = OpKind(i)
			return nil
		}
	}
	return fmt.Errorf("frontend: unknown operator kind %q", name)
}

// Attrs bundles every operator-specific parameter the lowering pass
// might need. Most fields are unused for most kinds, the same way the
// teacher's hfConfig bundles every architecture's config fields into a
// single flat struct and each lowering path reads only what applies to
// it.
type Attrs struct {
	FilterH, FilterW int
	StrideH, StrideW int
	PadTop, PadLeft  int
	PadBottom        int
	PadRight         int

	ChannelMultiplier int
	PoolIsMax         bool

	NewShape npu.Shape
	Axis     int

	LeakyReluAlpha float64
	ReluMin        float64
	ReluMax        float64
	ReluUnbounded  bool

	// UnsupportedReason, when non-empty, marks an operator/parameter
	// combination the lowering pass cannot realise on real hardware.
	// Only OpEstimateOnly reads it: it becomes the EstimateOnly part's
	// Reason in estimation mode and the NotSupported error text otherwise.
	UnsupportedReason string

	DramBufferID uint64
}

// OperandRef names the producer of one operand: the operation id that
// produced it and which of that operation's outputs to take (0 except
// for multi-output operators such as Split).
type OperandRef struct {
	OperationID uint64
	OutputIndex int
}

// Op is one node of the external operator graph: a kind, its resolved
// operand shapes/quantisation, its attributes, and the stable
// operation id used to trace results back to the front end.
type Op struct {
	Kind        OpKind
	OperationID uint64
	Inputs      []npu.TensorInfo
	InputSrcs   []OperandRef
	Outputs     []npu.TensorInfo
	Attrs       Attrs
}

// Visitor is the one-method-per-operator-kind interface of §6. The
// frozen front-end drives a Visitor to describe a network. Lower (in
// lower.go) does not implement Visitor: it walks the OperatorGraph
// directly, because fusing an MCE op with its PLE consumer needs one op
// of lookahead.
type Visitor interface {
	Input(op Op) error
	Output(op Op) error
	Convolution(op Op) error
	DepthwiseConvolution(op Op) error
	FullyConnected(op Op) error
	Pooling(op Op) error
	Reshape(op Op) error
	Concatenation(op Op) error
	LeakyRelu(op Op) error
	Sigmoid(op Op) error
	Tanh(op Op) error
	MeanXy(op Op) error
	EstimateOnly(op Op) error
	Addition(op Op) error
	Resize(op Op) error
	Relu(op Op) error
	TransposeConvolution(op Op) error
	ReinterpretQuantization(op Op) error
	Softmax(op Op) error
	DepthToSpace(op Op) error
	Split(op Op) error
	Transpose(op Op) error
	SpaceToDepth(op Op) error
	Requantize(op Op) error
}

// OperatorGraph is an ordered operator list, already a valid
// topological linearisation (the front end guarantees this; Lower does
// not re-sort it).
type OperatorGraph struct {
	Ops []Op
}

// Accept dispatches every op in the graph to v, in order, stopping at
// the first error.
func (g *OperatorGraph) Accept(v Visitor) error {
	for _, op := range g.Ops {
		if err := dispatch(v, op); err != nil {
			return err
		}
	}
	return nil
}

func dispatch(v Visitor, op Op) error {
	switch op.Kind {
	case OpInput:
		return v.Input(op)
	case OpOutput:
		return v.Output(op)
	case OpConvolution:
		return v.Convolution(op)
	case OpDepthwiseConvolution:
		return v.DepthwiseConvolution(op)
	case OpFullyConnected:
		return v.FullyConnected(op)
	case OpPooling:
		return v.Pooling(op)
	case OpReshape:
		return v.Reshape(op)
	case OpConcatenation:
		return v.Concatenation(op)
	case OpLeakyRelu:
		return v.LeakyRelu(op)
	case OpSigmoid:
		return v.Sigmoid(op)
	case OpTanh:
		return v.Tanh(op)
	case OpMeanXy:
		return v.MeanXy(op)
	case OpEstimateOnly:
		return v.EstimateOnly(op)
	case OpAddition:
		return v.Addition(op)
	case OpResize:
		return v.Resize(op)
	case OpRelu:
		return v.Relu(op)
	case OpTransposeConvolution:
		return v.TransposeConvolution(op)
	case OpReinterpretQuantization:
		return v.ReinterpretQuantization(op)
	case OpSoftmax:
		return v.Softmax(op)
	case OpDepthToSpace:
		return v.DepthToSpace(op)
	case OpSplit:
		return v.Split(op)
	case OpTranspose:
		return v.Transpose(op)
	case OpSpaceToDepth:
		return v.SpaceToDepth(op)
	case OpRequantize:
		return v.Requantize(op)
	default:
		panic("frontend: unreachable op kind")
	}
}
