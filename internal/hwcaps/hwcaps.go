// Package hwcaps holds the frozen hardware capability descriptor: the
// set of constants every other compiler component treats as a
// read-only, shared value. See SPEC_FULL.md §4.1.
package hwcaps

// BrickGroup is the fixed (N,H,W,C) hardware alignment unit for
// NHWCB-packed tensors.
var BrickGroup = [4]int{1, 8, 8, 16}

// CellShape describes an FCAF compression cell's (H,W,C) geometry.
type CellShape struct {
	H, W, C int
}

// PleKernelID is an opaque handle into the fixed PLE-kernel table; the
// compiler only ever selects from this enum, never synthesises one.
type PleKernelID string

// Caps is the immutable hardware capability descriptor. A Caps value is
// read once at start-up (from a named variant or a capabilities blob)
// and never mutated; every other component takes it by shared read-only
// reference, per §5.
type Caps struct {
	Name string

	TotalSramBytes int64
	SramsPerEngine int
	Engines        int
	OgsPerEngine   int
	IgsPerEngine   int
	PleLanes       int

	BrickGroup          [4]int
	FcafDeepCell        CellShape
	FcafWideCell        CellShape
	BoundaryStripeH     int
	MaxMceStripesPerPle int
	MaxIfmWgtStripesPerPle int

	PleKernels map[PleKernelID]PleKernelInfo

	MinVersion Version
	MaxVersion Version
}

// Version mirrors npu.Version without importing pkg/npu, keeping this
// package a true leaf with zero compiler-internal dependencies.
type Version struct {
	Major, Minor, Patch uint16
}

// PleKernelInfo captures what a PLE-kernel identifier implies: block
// size, data type, and variant, per §6.
type PleKernelInfo struct {
	BlockH, BlockW int
	BlockMultiplier int
	DataTypeWidth   int // in bits: 8 or 16
	Variant         string
}

// OgCount returns the total number of output groups across all engines.
func (c Caps) OgCount() int { return c.Engines * c.OgsPerEngine }

// IgCount returns the total number of input groups across all engines.
func (c Caps) IgCount() int { return c.Engines * c.IgsPerEngine }

// Ethos78_4Tops_4PleRatio is a hard-coded capability variant matching a
// mid-range configuration: 4 TOPS of MCE throughput, 4 PLE lanes per
// engine ratio.
func Ethos78_4Tops_4PleRatio() Caps {
	return Caps{
		Name:                   "Ethos78_4Tops_4PleRatio",
		TotalSramBytes:         1024 * 1024,
		SramsPerEngine:         2,
		Engines:                8,
		OgsPerEngine:           2,
		IgsPerEngine:           4,
		PleLanes:               4,
		BrickGroup:             [4]int{1, 8, 8, 16},
		FcafDeepCell:           CellShape{H: 8, W: 8, C: 32},
		FcafWideCell:           CellShape{H: 8, W: 16, C: 16},
		BoundaryStripeH:        8,
		MaxMceStripesPerPle:    8,
		MaxIfmWgtStripesPerPle: 8,
		PleKernels:             defaultPleKernels(),
		MinVersion:             Version{1, 0, 0},
		MaxVersion:             Version{3, 0, 0},
	}
}

// Ethos78_1Tops_2PleRatio is a smaller capability variant.
func Ethos78_1Tops_2PleRatio() Caps {
	c := Ethos78_4Tops_4PleRatio()
	c.Name = "Ethos78_1Tops_2PleRatio"
	c.TotalSramBytes = 256 * 1024
	c.Engines = 2
	c.PleLanes = 2
	c.MaxMceStripesPerPle = 4
	c.MaxIfmWgtStripesPerPle = 4
	return c
}

// ByName resolves a named capability variant, analogous to how the
// runtime may instead supply a capabilities blob directly.
func ByName(name string) (Caps, bool) {
	switch name {
	case "Ethos78_4Tops_4PleRatio":
		return Ethos78_4Tops_4PleRatio(), true
	case "Ethos78_1Tops_2PleRatio":
		return Ethos78_1Tops_2PleRatio(), true
	default:
		return Caps{}, false
	}
}

func defaultPleKernels() map[PleKernelID]PleKernelInfo {
	kernels := map[PleKernelID]PleKernelInfo{}
	register := func(id PleKernelID, bw, bh, bm, width int, variant string) {
		kernels[id] = PleKernelInfo{BlockW: bw, BlockH: bh, BlockMultiplier: bm, DataTypeWidth: width, Variant: variant}
	}
	register("V2442_Sigmoid_bw16_bh16_bm1_s8", 16, 16, 1, 8, "Sigmoid")
	register("V2442_Tanh_bw16_bh16_bm1_s8", 16, 16, 1, 8, "Tanh")
	register("V2442_LeakyRelu_bw16_bh16_bm1_s8", 16, 16, 1, 8, "LeakyRelu")
	register("V2442_MaxPool_bw8_bh8_bm1_s8", 8, 8, 1, 8, "MaxPool")
	register("V2442_Downsample_2x2_bw16_bh16_bm1", 16, 16, 1, 8, "Interleave")
	register("V2442_MeanXy7x7_bw8_bh8_bm1_s8", 8, 8, 1, 8, "MeanXy7x7")
	register("V2442_MeanXy8x8_bw8_bh8_bm1_s8", 8, 8, 1, 8, "MeanXy8x8")
	register("V2442_Addition_bw16_bh16_bm1_s8", 16, 16, 1, 8, "Addition")
	register("V2442_AdditionRescale_bw16_bh16_bm1_s8", 16, 16, 1, 8, "Addition_Rescale")
	register("V2442_AvgPool3x3_1_1_bw8_bh8_bm1_s8", 8, 8, 1, 8, "AvgPool3x3_1_1")
	return kernels
}

// Lookup returns the info for a PLE-kernel identifier, never
// synthesising one that is not already in the table.
func (c Caps) Lookup(id PleKernelID) (PleKernelInfo, bool) {
	info, ok := c.PleKernels[id]
	return info, ok
}
