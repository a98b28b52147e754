package ncf

import "encoding/xml"

// The XML mirror exists solely for tests and offline debugging (§4.6):
// it is never consumed by the firmware, and its schema is the
// authoritative enumeration of every command-stream field. Round
// trip binary -> IR -> XML -> IR -> binary must be byte-identical for
// the binary halves, which MarshalXML/UnmarshalXML preserve by naming
// every Agent/Command field explicitly rather than relying on
// reflection over the flattened union struct.

type xmlStream struct {
	XMLName xml.Name      `xml:"STREAM"`
	Cascade xmlCascade    `xml:"CASCADE"`
}

type xmlCascade struct {
	XMLName xml.Name    `xml:"CASCADE"`
	Agents  xmlAgents   `xml:"AGENTS"`
	DmaRd   xmlCmdGroup `xml:"DMA_RD_COMMANDS"`
	DmaWr   xmlCmdGroup `xml:"DMA_WR_COMMANDS"`
	Mce     xmlCmdGroup `xml:"MCE_COMMANDS"`
	Ple     xmlCmdGroup `xml:"PLE_COMMANDS"`
}

type xmlAgents struct {
	Agent []xmlAgent `xml:"AGENT"`
}

type xmlCmdGroup struct {
	Command []xmlCommand `xml:"COMMAND"`
}

type xmlAgent struct {
	Kind AgentKind `xml:"KIND,attr"`

	DramOffset        uint64 `xml:"DRAM_OFFSET"`
	BufferID          uint32 `xml:"BUFFER_ID"`
	TileBase          uint32 `xml:"TILE_BASE"`
	TileNumSlots      uint32 `xml:"TILE_NUM_SLOTS"`
	TileSlotSize      uint32 `xml:"TILE_SLOT_SIZE"`
	DefaultStripeA    uint32 `xml:"DEFAULT_STRIPE_A"`
	DefaultStripeB    uint32 `xml:"DEFAULT_STRIPE_B"`
	DefaultStripeC    uint32 `xml:"DEFAULT_STRIPE_C"`
	EdgeStripeA       uint32 `xml:"EDGE_STRIPE_A"`
	EdgeStripeB       uint32 `xml:"EDGE_STRIPE_B"`
	EdgeStripeC       uint32 `xml:"EDGE_STRIPE_C"`
	SupertensorCellsW uint32 `xml:"SUPERTENSOR_CELLS_W"`
	SupertensorCellsC uint32 `xml:"SUPERTENSOR_CELLS_C"`
	NumStripesA       uint32 `xml:"NUM_STRIPES_A"`
	NumStripesB       uint32 `xml:"NUM_STRIPES_B"`
	NumStripesC       uint32 `xml:"NUM_STRIPES_C"`
	StrideA           uint32 `xml:"STRIPE_ID_STRIDE_A"`
	StrideB           uint32 `xml:"STRIPE_ID_STRIDE_B"`
	StrideC           uint32 `xml:"STRIPE_ID_STRIDE_C"`

	WeightsBufferID           uint32 `xml:"WEIGHTS_BUFFER_ID"`
	WeightsMetadataBufferID   uint32 `xml:"WEIGHTS_METADATA_BUFFER_ID"`
	EdgeOfmChannelsLastStripe uint32 `xml:"EDGE_OFM_CHANNELS_LAST_STRIPE"`
	NumStripesOC              uint32 `xml:"NUM_STRIPES_OC"`
	NumStripesIC              uint32 `xml:"NUM_STRIPES_IC"`
	StrideOC                  uint32 `xml:"STRIPE_ID_STRIDE_OC"`
	StrideIC                  uint32 `xml:"STRIPE_ID_STRIDE_IC"`

	IfmTileBase     uint32 `xml:"IFM_TILE_BASE"`
	IfmTileSlots    uint32 `xml:"IFM_TILE_NUM_SLOTS"`
	IfmTileSlotSize uint32 `xml:"IFM_TILE_SLOT_SIZE"`
	WgtTileBase     uint32 `xml:"WGT_TILE_BASE"`
	WgtTileSlots    uint32 `xml:"WGT_TILE_NUM_SLOTS"`
	WgtTileSlotSize uint32 `xml:"WGT_TILE_SLOT_SIZE"`
	BlockH          uint32 `xml:"BLOCK_H"`
	BlockW          uint32 `xml:"BLOCK_W"`
	DefaultOH       uint32 `xml:"DEFAULT_OH"`
	DefaultOW       uint32 `xml:"DEFAULT_OW"`
	DefaultOC       uint32 `xml:"DEFAULT_OC"`
	DefaultIC       uint32 `xml:"DEFAULT_IC"`
	EdgeOH          uint32 `xml:"EDGE_OH"`
	EdgeOW          uint32 `xml:"EDGE_OW"`
	EdgeOC          uint32 `xml:"EDGE_OC"`
	EdgeIC          uint32 `xml:"EDGE_IC"`
	NumOH           uint32 `xml:"NUM_OH"`
	NumOW           uint32 `xml:"NUM_OW"`
	NumOC           uint32 `xml:"NUM_OC"`
	NumIC           uint32 `xml:"NUM_IC"`
	StrideOH        uint32 `xml:"STRIDE_OH"`
	StrideOW        uint32 `xml:"STRIDE_OW"`
	StrideOC2       uint32 `xml:"STRIDE_OC"`
	StrideIC2       uint32 `xml:"STRIDE_IC"`
	ConvStrideH     uint32 `xml:"CONV_STRIDE_H"`
	ConvStrideW     uint32 `xml:"CONV_STRIDE_W"`
	IfmZeroPoint    int32  `xml:"IFM_ZERO_POINT"`
	Operation       uint32 `xml:"OPERATION"`
	FilterH         uint32 `xml:"FILTER_H"`
	FilterW         uint32 `xml:"FILTER_W"`
	PadLeft         uint32 `xml:"PAD_LEFT"`
	PadTop          uint32 `xml:"PAD_TOP"`
	IfmDeltaH       int32  `xml:"IFM_DELTA_H"`
	IfmDeltaW       int32  `xml:"IFM_DELTA_W"`
	ReluMin         int32  `xml:"RELU_MIN"`
	ReluMax         int32  `xml:"RELU_MAX"`
	PleKernelName   string `xml:"PLE_KERNEL_NAME"`

	DestSramAddress uint32 `xml:"DEST_SRAM_ADDRESS"`

	OfmTileBase          uint32 `xml:"OFM_TILE_BASE"`
	OfmTileSlots         uint32 `xml:"OFM_TILE_NUM_SLOTS"`
	OfmTileSlotSize      uint32 `xml:"OFM_TILE_SLOT_SIZE"`
	OfmZeroPoint         int32  `xml:"OFM_ZERO_POINT"`
	DefaultOfmA          uint32 `xml:"DEFAULT_OFM_A"`
	DefaultOfmB          uint32 `xml:"DEFAULT_OFM_B"`
	DefaultOfmC          uint32 `xml:"DEFAULT_OFM_C"`
	EdgeOfmA             uint32 `xml:"EDGE_OFM_A"`
	EdgeOfmB             uint32 `xml:"EDGE_OFM_B"`
	EdgeOfmC             uint32 `xml:"EDGE_OFM_C"`
	NumStripesPleA       uint32 `xml:"NUM_STRIPES_PLE_A"`
	NumStripesPleB       uint32 `xml:"NUM_STRIPES_PLE_B"`
	NumStripesPleC       uint32 `xml:"NUM_STRIPES_PLE_C"`
	StridePleA           uint32 `xml:"STRIDE_PLE_A"`
	StridePleB           uint32 `xml:"STRIDE_PLE_B"`
	StridePleC           uint32 `xml:"STRIDE_PLE_C"`
	InputMode            uint32 `xml:"INPUT_MODE"`
	PleKernelSramAddress uint32 `xml:"PLE_KERNEL_SRAM_ADDRESS"`
	Ifm0TileBase         uint32 `xml:"IFM0_TILE_BASE"`
	Ifm0TileSlots        uint32 `xml:"IFM0_TILE_NUM_SLOTS"`
	Ifm0TileSlotSize     uint32 `xml:"IFM0_TILE_SLOT_SIZE"`
	Ifm1TileBase         uint32 `xml:"IFM1_TILE_BASE"`
	Ifm1TileSlots        uint32 `xml:"IFM1_TILE_NUM_SLOTS"`
	Ifm1TileSlotSize     uint32 `xml:"IFM1_TILE_SLOT_SIZE"`
	Ifm0ZeroPoint        int32  `xml:"IFM0_ZERO_POINT"`
	Ifm1ZeroPoint        int32  `xml:"IFM1_ZERO_POINT"`
	Ifm0Multiplier       uint32 `xml:"IFM0_MULTIPLIER"`
	Ifm1Multiplier       uint32 `xml:"IFM1_MULTIPLIER"`
	Ifm0Shift            uint32 `xml:"IFM0_SHIFT"`
	Ifm1Shift            uint32 `xml:"IFM1_SHIFT"`

	ReadDependencies     []xmlDependency `xml:"READ_DEPENDENCY"`
	WriteDependencies    []xmlDependency `xml:"WRITE_DEPENDENCY"`
	ScheduleDependencies []xmlDependency `xml:"SCHEDULE_DEPENDENCY"`
}

type xmlDependency struct {
	RelativeAgentID uint32 `xml:"RELATIVE_AGENT_ID,attr"`
	OuterRatioSelf  uint32 `xml:"OUTER_RATIO_SELF,attr"`
	OuterRatioOther uint32 `xml:"OUTER_RATIO_OTHER,attr"`
	InnerRatioSelf  uint32 `xml:"INNER_RATIO_SELF,attr"`
	InnerRatioOther uint32 `xml:"INNER_RATIO_OTHER,attr"`
	Boundary        int32  `xml:"BOUNDARY,attr"`
}

type xmlCommand struct {
	Kind        CommandKind `xml:"KIND,attr"`
	AgentID     uint32      `xml:"AGENT_ID,attr"`
	StripeID    uint32      `xml:"STRIPE_ID,attr"`
	WaitCounter CounterKind `xml:"WAIT_COUNTER,attr"`
	WaitTarget  uint32      `xml:"WAIT_TARGET,attr"`
}

// MarshalXML renders cs in the debug XML form of §4.6.
func MarshalXML(cs *CommandStream) ([]byte, error) {
	doc := xmlStream{Cascade: xmlCascade{
		Agents: xmlAgents{Agent: make([]xmlAgent, len(cs.Agents))},
		DmaRd:  toXMLCmdGroup(cs.DmaRd),
		DmaWr:  toXMLCmdGroup(cs.DmaWr),
		Mce:    toXMLCmdGroup(cs.Mce),
		Ple:    toXMLCmdGroup(cs.Ple),
	}}
	for i, a := range cs.Agents {
		doc.Cascade.Agents.Agent[i] = toXMLAgent(a)
	}
	return xml.MarshalIndent(doc, "", "  ")
}

// UnmarshalXML parses the debug XML form back into a CommandStream.
func UnmarshalXML(data []byte) (*CommandStream, error) {
	var doc xmlStream
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	cs := &CommandStream{
		Agents: make([]Agent, len(doc.Cascade.Agents.Agent)),
		DmaRd:  fromXMLCmdGroup(doc.Cascade.DmaRd),
		DmaWr:  fromXMLCmdGroup(doc.Cascade.DmaWr),
		Mce:    fromXMLCmdGroup(doc.Cascade.Mce),
		Ple:    fromXMLCmdGroup(doc.Cascade.Ple),
	}
	for i, a := range doc.Cascade.Agents.Agent {
		cs.Agents[i] = fromXMLAgent(a)
	}
	return cs, nil
}

func toXMLCmdGroup(cmds []Command) xmlCmdGroup {
	g := xmlCmdGroup{Command: make([]xmlCommand, len(cmds))}
	for i, c := range cmds {
		g.Command[i] = xmlCommand{Kind: c.Kind, AgentID: c.AgentID, StripeID: c.StripeID, WaitCounter: c.WaitCounter, WaitTarget: c.WaitTarget}
	}
	return g
}

func fromXMLCmdGroup(g xmlCmdGroup) []Command {
	cmds := make([]Command, len(g.Command))
	for i, c := range g.Command {
		cmds[i] = Command{Kind: c.Kind, AgentID: c.AgentID, StripeID: c.StripeID, WaitCounter: c.WaitCounter, WaitTarget: c.WaitTarget}
	}
	return cmds
}

func toXMLDeps(deps []Dependency) []xmlDependency {
	out := make([]xmlDependency, len(deps))
	for i, d := range deps {
		out[i] = xmlDependency{
			RelativeAgentID: d.RelativeAgentID,
			OuterRatioSelf:  d.OuterRatioSelf,
			OuterRatioOther: d.OuterRatioOther,
			InnerRatioSelf:  d.InnerRatioSelf,
			InnerRatioOther: d.InnerRatioOther,
			Boundary:        d.Boundary,
		}
	}
	return out
}

func fromXMLDep(d xmlDependency) Dependency {
	return Dependency{
		RelativeAgentID: d.RelativeAgentID,
		OuterRatioSelf:  d.OuterRatioSelf,
		OuterRatioOther: d.OuterRatioOther,
		InnerRatioSelf:  d.InnerRatioSelf,
		InnerRatioOther: d.InnerRatioOther,
		Boundary:        d.Boundary,
	}
}

func toXMLAgent(a Agent) xmlAgent {
	x := xmlAgent{
		Kind: a.Kind,

		DramOffset: a.DramOffset, BufferID: a.BufferID,
		TileBase: a.Tile.Base, TileNumSlots: a.Tile.NumSlots, TileSlotSize: a.Tile.SlotSize,
		DefaultStripeA: a.DefaultStripe.A, DefaultStripeB: a.DefaultStripe.B, DefaultStripeC: a.DefaultStripe.C,
		EdgeStripeA: a.EdgeStripe.A, EdgeStripeB: a.EdgeStripe.B, EdgeStripeC: a.EdgeStripe.C,
		SupertensorCellsW: a.SupertensorCellsW, SupertensorCellsC: a.SupertensorCellsC,
		NumStripesA: a.NumStripes.A, NumStripesB: a.NumStripes.B, NumStripesC: a.NumStripes.C,
		StrideA: a.StripeIDStrides.A, StrideB: a.StripeIDStrides.B, StrideC: a.StripeIDStrides.C,

		WeightsBufferID: a.WeightsBufferID, WeightsMetadataBufferID: a.WeightsMetadataBufferID,
		EdgeOfmChannelsLastStripe: a.EdgeOfmChannelsLastStripe,
		NumStripesOC:              a.NumStripesOC, NumStripesIC: a.NumStripesIC,
		StrideOC: a.StripeIDStridesOC, StrideIC: a.StripeIDStridesIC,

		IfmTileBase: a.IfmTile.Base, IfmTileSlots: a.IfmTile.NumSlots, IfmTileSlotSize: a.IfmTile.SlotSize,
		WgtTileBase: a.WeightTile.Base, WgtTileSlots: a.WeightTile.NumSlots, WgtTileSlotSize: a.WeightTile.SlotSize,
		BlockH: a.BlockH, BlockW: a.BlockW,
		DefaultOH: a.DefaultStripe4.OH, DefaultOW: a.DefaultStripe4.OW, DefaultOC: a.DefaultStripe4.OC, DefaultIC: a.DefaultStripe4.IC,
		EdgeOH: a.EdgeStripe4.OH, EdgeOW: a.EdgeStripe4.OW, EdgeOC: a.EdgeStripe4.OC, EdgeIC: a.EdgeStripe4.IC,
		NumOH: a.NumStripes4.OH, NumOW: a.NumStripes4.OW, NumOC: a.NumStripes4.OC, NumIC: a.NumStripes4.IC,
		StrideOH: a.StripeIDStrides4.OH, StrideOW: a.StripeIDStrides4.OW, StrideOC2: a.StripeIDStrides4.OC, StrideIC2: a.StripeIDStrides4.IC,
		ConvStrideH: a.ConvStrideH, ConvStrideW: a.ConvStrideW,
		IfmZeroPoint: a.IfmZeroPoint, Operation: a.Operation,
		FilterH: a.FilterH, FilterW: a.FilterW, PadLeft: a.PadLeft, PadTop: a.PadTop,
		IfmDeltaH: a.IfmDeltaH, IfmDeltaW: a.IfmDeltaW, ReluMin: a.ReluMin, ReluMax: a.ReluMax,
		PleKernelName: cstring(a.PleKernelName[:]),

		DestSramAddress: a.DestSramAddress,

		OfmTileBase: a.OfmTile.Base, OfmTileSlots: a.OfmTile.NumSlots, OfmTileSlotSize: a.OfmTile.SlotSize,
		OfmZeroPoint: a.OfmZeroPoint,
		DefaultOfmA:  a.DefaultOfmStripe.A, DefaultOfmB: a.DefaultOfmStripe.B, DefaultOfmC: a.DefaultOfmStripe.C,
		EdgeOfmA: a.EdgeOfmStripe.A, EdgeOfmB: a.EdgeOfmStripe.B, EdgeOfmC: a.EdgeOfmStripe.C,
		NumStripesPleA: a.NumStripesPle.A, NumStripesPleB: a.NumStripesPle.B, NumStripesPleC: a.NumStripesPle.C,
		StridePleA: a.StripeIDStridesPle.A, StridePleB: a.StripeIDStridesPle.B, StridePleC: a.StripeIDStridesPle.C,
		InputMode: uint32(a.Mode), PleKernelSramAddress: a.PleKernelSramAddress,
		Ifm0TileBase: a.IfmTile0.Base, Ifm0TileSlots: a.IfmTile0.NumSlots, Ifm0TileSlotSize: a.IfmTile0.SlotSize,
		Ifm1TileBase: a.IfmTile1.Base, Ifm1TileSlots: a.IfmTile1.NumSlots, Ifm1TileSlotSize: a.IfmTile1.SlotSize,
		Ifm0ZeroPoint: a.Ifm0ZeroPoint, Ifm1ZeroPoint: a.Ifm1ZeroPoint,
		Ifm0Multiplier: a.Ifm0Multiplier, Ifm1Multiplier: a.Ifm1Multiplier,
		Ifm0Shift: a.Ifm0Shift, Ifm1Shift: a.Ifm1Shift,
	}
	x.ReadDependencies = toXMLDeps(a.ReadDependencies[:])
	x.WriteDependencies = toXMLDeps(a.WriteDependencies[:])
	x.ScheduleDependencies = toXMLDeps(a.ScheduleDependencies[:])
	return x
}

func fromXMLAgent(x xmlAgent) Agent {
	a := Agent{
		Kind:       x.Kind,
		DramOffset: x.DramOffset, BufferID: x.BufferID,
		Tile:              Tile{Base: x.TileBase, NumSlots: x.TileNumSlots, SlotSize: x.TileSlotSize},
		DefaultStripe:     Stripe3{A: x.DefaultStripeA, B: x.DefaultStripeB, C: x.DefaultStripeC},
		EdgeStripe:        Stripe3{A: x.EdgeStripeA, B: x.EdgeStripeB, C: x.EdgeStripeC},
		SupertensorCellsW: x.SupertensorCellsW, SupertensorCellsC: x.SupertensorCellsC,
		NumStripes:      Stripe3{A: x.NumStripesA, B: x.NumStripesB, C: x.NumStripesC},
		StripeIDStrides: Stripe3{A: x.StrideA, B: x.StrideB, C: x.StrideC},

		WeightsBufferID: x.WeightsBufferID, WeightsMetadataBufferID: x.WeightsMetadataBufferID,
		EdgeOfmChannelsLastStripe: x.EdgeOfmChannelsLastStripe,
		NumStripesOC:              x.NumStripesOC, NumStripesIC: x.NumStripesIC,
		StripeIDStridesOC: x.StrideOC, StripeIDStridesIC: x.StrideIC,

		IfmTile:    Tile{Base: x.IfmTileBase, NumSlots: x.IfmTileSlots, SlotSize: x.IfmTileSlotSize},
		WeightTile: Tile{Base: x.WgtTileBase, NumSlots: x.WgtTileSlots, SlotSize: x.WgtTileSlotSize},
		BlockH:     x.BlockH, BlockW: x.BlockW,
		DefaultStripe4:   Stripe4{OH: x.DefaultOH, OW: x.DefaultOW, OC: x.DefaultOC, IC: x.DefaultIC},
		EdgeStripe4:      Stripe4{OH: x.EdgeOH, OW: x.EdgeOW, OC: x.EdgeOC, IC: x.EdgeIC},
		NumStripes4:      Stripe4{OH: x.NumOH, OW: x.NumOW, OC: x.NumOC, IC: x.NumIC},
		StripeIDStrides4: Stripe4{OH: x.StrideOH, OW: x.StrideOW, OC: x.StrideOC2, IC: x.StrideIC2},
		ConvStrideH:      x.ConvStrideH, ConvStrideW: x.ConvStrideW,
		IfmZeroPoint: x.IfmZeroPoint, Operation: x.Operation,
		FilterH: x.FilterH, FilterW: x.FilterW, PadLeft: x.PadLeft, PadTop: x.PadTop,
		IfmDeltaH: x.IfmDeltaH, IfmDeltaW: x.IfmDeltaW, ReluMin: x.ReluMin, ReluMax: x.ReluMax,

		DestSramAddress: x.DestSramAddress,

		OfmTile:      Tile{Base: x.OfmTileBase, NumSlots: x.OfmTileSlots, SlotSize: x.OfmTileSlotSize},
		OfmZeroPoint: x.OfmZeroPoint,
		DefaultOfmStripe:   Stripe3{A: x.DefaultOfmA, B: x.DefaultOfmB, C: x.DefaultOfmC},
		EdgeOfmStripe:      Stripe3{A: x.EdgeOfmA, B: x.EdgeOfmB, C: x.EdgeOfmC},
		NumStripesPle:      Stripe3{A: x.NumStripesPleA, B: x.NumStripesPleB, C: x.NumStripesPleC},
		StripeIDStridesPle: Stripe3{A: x.StridePleA, B: x.StridePleB, C: x.StridePleC},
		Mode:                 InputMode(x.InputMode),
		PleKernelSramAddress: x.PleKernelSramAddress,
		IfmTile0:             Tile{Base: x.Ifm0TileBase, NumSlots: x.Ifm0TileSlots, SlotSize: x.Ifm0TileSlotSize},
		IfmTile1:             Tile{Base: x.Ifm1TileBase, NumSlots: x.Ifm1TileSlots, SlotSize: x.Ifm1TileSlotSize},
		Ifm0ZeroPoint:        x.Ifm0ZeroPoint, Ifm1ZeroPoint: x.Ifm1ZeroPoint,
		Ifm0Multiplier: x.Ifm0Multiplier, Ifm1Multiplier: x.Ifm1Multiplier,
		Ifm0Shift:      x.Ifm0Shift, Ifm1Shift: x.Ifm1Shift,
	}
	copy(a.PleKernelName[:], []byte(x.PleKernelName))
	for i, d := range x.ReadDependencies[:min(len(x.ReadDependencies), len(a.ReadDependencies))] {
		a.ReadDependencies[i] = fromXMLDep(d)
	}
	for i, d := range x.WriteDependencies[:min(len(x.WriteDependencies), len(a.WriteDependencies))] {
		a.WriteDependencies[i] = fromXMLDep(d)
	}
	for i, d := range x.ScheduleDependencies[:min(len(x.ScheduleDependencies), len(a.ScheduleDependencies))] {
		a.ScheduleDependencies[i] = fromXMLDep(d)
	}
	return a
}

// cstring trims a fixed-size NUL-padded byte array down to its string
// content.
func cstring(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
