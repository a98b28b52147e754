package graph

import "github.com/ethosn/cascadec/pkg/npu"

// MceOperation identifies which MCE computation a Part performs.
type MceOperation int

const (
	MceConv MceOperation = iota
	MceDepthwise
	MceFullyConnected
	MceTransposeConv
	MceResize
)

func (o MceOperation) String() string {
	switch o {
	case MceConv:
		return "Conv"
	case MceDepthwise:
		return "Depthwise"
	case MceFullyConnected:
		return "Fc"
	case MceTransposeConv:
		return "TransposeConv"
	case MceResize:
		return "Resize"
	default:
		return "Unknown"
	}
}

// ReluInfo is the quantised ReLU clamp applied at an MCE part's output,
// per §4.4's numeric semantics.
type ReluInfo struct {
	Min, Max int32
}

// Upsample identifies the MCE input-upsampling mode used for
// transpose-convolution lowering.
type Upsample int

const (
	UpsampleNone Upsample = iota
	UpsampleTranspose
)

// MceInfo is the Kind-specific payload for KindMce (and the embedded
// MCE half of KindFusedPle).
type MceInfo struct {
	Operation MceOperation

	Weights npu.TensorInfo
	Bias    npu.TensorInfo

	FilterH, FilterW int
	StrideH, StrideW int
	PadTop, PadLeft  int
	PadBottom        int
	PadRight         int

	ChannelMultiplier int

	Upscale  int
	Upsample Upsample

	Relu ReluInfo
}

// PleOperation identifies which PLE kernel a fused or standalone PLE
// part runs.
type PleOperation int

const (
	PleLeakyRelu PleOperation = iota
	PleSigmoid
	PleTanh
	PleMaxPool
	PleInterleave
	PleMeanXy7x7
	PleMeanXy8x8
	PleAddition
	PleAdditionRescale
	PleAvgPool3x3_1_1
)

func (o PleOperation) String() string {
	names := [...]string{"LeakyRelu", "Sigmoid", "Tanh", "MaxPool", "Interleave",
		"MeanXy7x7", "MeanXy8x8", "Addition", "Addition_Rescale", "AvgPool3x3_1_1"}
	if int(o) < len(names) {
		return names[o]
	}
	return "Unknown"
}

// IsFusable reports whether o may follow an MCE in the same part
// (KindFusedPle) as opposed to only running standalone.
func (o PleOperation) IsFusable() bool {
	switch o {
	case PleLeakyRelu, PleSigmoid, PleTanh, PleMaxPool, PleInterleave, PleMeanXy7x7, PleMeanXy8x8:
		return true
	default:
		return false
	}
}

// FusedPleInfo is the Kind-specific payload for KindFusedPle: an MCE
// immediately followed by a PLE kernel.
type FusedPleInfo struct {
	Mce MceInfo
	Ple PleOperation

	LeakyReluAlpha float32
	PoolSizeH      int
	PoolSizeW      int
	PoolStrideH    int
	PoolStrideW    int

	// RescaleMultiplier/RescaleShift hold the quantised rescale factor
	// (per §4.4) when the fused kernel's input and output scale differ.
	RescaleMultiplier uint16
	RescaleShift      uint8
}

// StandalonePleInfo is the Kind-specific payload for KindStandalonePle.
// Input0Multiplier/Input0Shift rescale the first input to the output
// scale; Input1Multiplier/Input1Shift/Input1ZeroPoint are only
// meaningful when the part has a second input slot (Addition,
// Addition_Rescale), per §4.7's Sram-input-mode fields.
type StandalonePleInfo struct {
	Ple PleOperation

	Input0ZeroPoint  int32
	Input0Multiplier uint16
	Input0Shift      uint8

	Input1ZeroPoint  int32
	Input1Multiplier uint16
	Input1Shift      uint8
}

// ReshapeInfo is the Kind-specific payload for KindReshape.
type ReshapeInfo struct {
	NewShape npu.Shape
}

// ConcatInfo is the Kind-specific payload for KindConcat.
type ConcatInfo struct {
	Axis int
}

// InputOutputInfo is the Kind-specific payload for KindInput/KindOutput.
type InputOutputInfo struct {
	// DramBufferID names the external DRAM buffer this part binds to,
	// resolved by the external buffer manager.
	DramBufferID uint64
}

// EstimateOnlyInfo is the Kind-specific payload for KindEstimateOnly: a
// placeholder for an operator whose lowering is not supported for real
// compilation, only for estimation, per §4.4/§7.
type EstimateOnlyInfo struct {
	OriginalOperator string
	Reason           string
}
