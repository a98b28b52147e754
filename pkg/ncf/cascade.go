package ncf

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// AgentKind discriminates the six schedulable hardware-unit work units
// of §4.7.
type AgentKind uint32

const (
	AgentIfmStreamer AgentKind = iota
	AgentWgtStreamer
	AgentMceScheduler
	AgentPleLoader
	AgentPleScheduler
	AgentOfmStreamer
)

func (k AgentKind) String() string {
	names := [...]string{"IfmStreamer", "WgtStreamer", "MceScheduler", "PleLoader", "PleScheduler", "OfmStreamer"}
	if int(k) < len(names) {
		return names[k]
	}
	return "Unknown"
}

// Tile describes one SRAM tile: base address, slot count, slot size.
type Tile struct {
	Base     uint32
	NumSlots uint32
	SlotSize uint32
}

// Stripe3 is an (H,W,C) or (W,H,C) triple, depending on the agent's
// traversal order.
type Stripe3 struct{ A, B, C uint32 }

// Stripe4 is an (OH,OW,OC,IC) quadruple.
type Stripe4 struct{ OH, OW, OC, IC uint32 }

// InputMode selects a PleScheduler's data source.
type InputMode uint32

const (
	InputModeMceAllOgs InputMode = iota
	InputModeMceOneOg
	InputModeSram
)

// Dependency is one entry of an agent's read/write/schedule dependency
// array, per §4.7.
type Dependency struct {
	RelativeAgentID uint32
	OuterRatioSelf  uint32
	OuterRatioOther uint32
	InnerRatioSelf  uint32
	InnerRatioOther uint32
	Boundary        int32
}

// NoDependency is the zero-value sentinel meaning "no dependency in
// this slot": RelativeAgentID 0 with zero ratios never resolves to a
// real predecessor because agent 0 cannot depend on itself.
var NoDependency = Dependency{}

// Agent is the union of every agent kind's fields, flattened into one
// record the same way frontend.Attrs flattens every operator's
// parameters: Kind selects which fields are meaningful.
type Agent struct {
	Kind AgentKind

	// IfmStreamer / OfmStreamer
	DramOffset          uint64
	BufferID            uint32
	Tile                Tile
	DefaultStripe       Stripe3
	EdgeStripe          Stripe3
	SupertensorCellsW   uint32
	SupertensorCellsC   uint32
	NumStripes          Stripe3
	StripeIDStrides     Stripe3

	// WgtStreamer
	WeightsBufferID           uint32
	WeightsMetadataBufferID   uint32
	EdgeOfmChannelsLastStripe uint32
	NumStripesOC              uint32
	NumStripesIC              uint32
	StripeIDStridesOC         uint32
	StripeIDStridesIC         uint32

	// MceScheduler
	IfmTile          Tile
	WeightTile       Tile
	BlockH, BlockW   uint32
	DefaultStripe4   Stripe4
	EdgeStripe4      Stripe4
	NumStripes4      Stripe4
	StripeIDStrides4 Stripe4
	ConvStrideH      uint32
	ConvStrideW      uint32
	IfmZeroPoint     int32
	Operation        uint32
	FilterH, FilterW uint32
	PadLeft, PadTop  uint32
	IfmDeltaH        int32
	IfmDeltaW        int32
	ReluMin          int32
	ReluMax          int32
	PleKernelName    [32]byte

	// PleLoader
	DestSramAddress uint32

	// PleScheduler
	OfmTile              Tile
	OfmZeroPoint         int32
	DefaultOfmStripe     Stripe3
	EdgeOfmStripe        Stripe3
	NumStripesPle        Stripe3
	StripeIDStridesPle   Stripe3
	Mode                 InputMode
	PleKernelSramAddress uint32
	IfmTile0             Tile
	IfmTile1             Tile
	Ifm0ZeroPoint        int32
	Ifm1ZeroPoint        int32
	Ifm0Multiplier       uint32
	Ifm1Multiplier       uint32
	Ifm0Shift            uint32
	Ifm1Shift            uint32

	ReadDependencies     [3]Dependency
	WriteDependencies    [1]Dependency
	ScheduleDependencies [1]Dependency
}

// CounterKind identifies one of the four hardware counters a
// WaitForCounter command observes.
type CounterKind uint32

const (
	CounterDmaRd CounterKind = iota
	CounterDmaWr
	CounterMceStripe
	CounterPleStripe
)

// CommandKind enumerates the command opcodes of §4.7.
type CommandKind uint32

const (
	CmdLoadIfmStripe CommandKind = iota
	CmdStoreOfmStripe
	CmdProgramMceStripe
	CmdConfigMceif
	CmdStartMceStripe
	CmdWaitForCounter
	CmdLoadPleCodeIntoPleSram
	CmdStartPleStripe
)

// Command is one queue entry: an opcode, the agent/stripe it concerns,
// and (for CmdWaitForCounter) the counter and target it blocks on.
type Command struct {
	Kind        CommandKind
	AgentID     uint32
	StripeID    uint32
	WaitCounter CounterKind
	WaitTarget  uint32
}

// CommandStream is the Go-native IR for one Cascade section: the full
// agent list plus the four command queues, in the order the firmware
// must execute them.
type CommandStream struct {
	Agents []Agent
	DmaRd  []Command
	DmaWr  []Command
	Mce    []Command
	Ple    []Command
}

const cascadeHeaderSize = 11 * 4 // 3 + 4*2 uint32 fields

// EncodeCascade serialises a CommandStream into the Cascade section
// payload layout of §4.6: a fixed header of offsets/counts, the agent
// array, then the four command-queue arrays back to back.
func EncodeCascade(cs *CommandStream) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := buf.Write(make([]byte, cascadeHeaderSize)); err != nil {
		return nil, err
	}

	agentsOffset := buf.Len()
	for i := range cs.Agents {
		if err := binary.Write(&buf, binary.LittleEndian, &cs.Agents[i]); err != nil {
			return nil, fmt.Errorf("ncf: encoding agent %d: %w", i, err)
		}
	}

	dmaRdOffset := buf.Len()
	if err := writeCommands(&buf, cs.DmaRd); err != nil {
		return nil, err
	}
	dmaWrOffset := buf.Len()
	if err := writeCommands(&buf, cs.DmaWr); err != nil {
		return nil, err
	}
	mceOffset := buf.Len()
	if err := writeCommands(&buf, cs.Mce); err != nil {
		return nil, err
	}
	pleOffset := buf.Len()
	if err := writeCommands(&buf, cs.Ple); err != nil {
		return nil, err
	}

	out := buf.Bytes()
	putU32 := func(off int, v uint32) { binary.LittleEndian.PutUint32(out[off:], v) }
	putU32(0, uint32(len(out)))
	putU32(4, uint32(agentsOffset))
	putU32(8, uint32(len(cs.Agents)))
	putU32(12, uint32(dmaRdOffset))
	putU32(16, uint32(len(cs.DmaRd)))
	putU32(20, uint32(dmaWrOffset))
	putU32(24, uint32(len(cs.DmaWr)))
	putU32(28, uint32(mceOffset))
	putU32(32, uint32(len(cs.Mce)))
	putU32(36, uint32(pleOffset))
	putU32(40, uint32(len(cs.Ple)))

	return out, nil
}

func writeCommands(buf *bytes.Buffer, cmds []Command) error {
	for i := range cmds {
		if err := binary.Write(buf, binary.LittleEndian, &cmds[i]); err != nil {
			return fmt.Errorf("ncf: encoding command %d: %w", i, err)
		}
	}
	return nil
}

// DecodeCascade parses a Cascade section payload produced by
// EncodeCascade back into a CommandStream.
func DecodeCascade(payload []byte) (*CommandStream, error) {
	if len(payload) < cascadeHeaderSize {
		return nil, fmt.Errorf("ncf: cascade payload too short: %d bytes", len(payload))
	}
	getU32 := func(off int) uint32 { return binary.LittleEndian.Uint32(payload[off:]) }

	totalSize := getU32(0)
	if int(totalSize) != len(payload) {
		return nil, fmt.Errorf("ncf: cascade total_size %d does not match payload length %d", totalSize, len(payload))
	}

	agentsOffset, numAgents := getU32(4), getU32(8)
	dmaRdOffset, numDmaRd := getU32(12), getU32(16)
	dmaWrOffset, numDmaWr := getU32(20), getU32(24)
	mceOffset, numMce := getU32(28), getU32(32)
	pleOffset, numPle := getU32(36), getU32(40)

	cs := &CommandStream{}

	agentSize := binary.Size(Agent{})
	cmdSize := binary.Size(Command{})

	var err error
	if cs.Agents, err = readAgents(payload, int(agentsOffset), int(numAgents), agentSize); err != nil {
		return nil, err
	}
	if cs.DmaRd, err = readCommands(payload, int(dmaRdOffset), int(numDmaRd), cmdSize); err != nil {
		return nil, err
	}
	if cs.DmaWr, err = readCommands(payload, int(dmaWrOffset), int(numDmaWr), cmdSize); err != nil {
		return nil, err
	}
	if cs.Mce, err = readCommands(payload, int(mceOffset), int(numMce), cmdSize); err != nil {
		return nil, err
	}
	if cs.Ple, err = readCommands(payload, int(pleOffset), int(numPle), cmdSize); err != nil {
		return nil, err
	}
	return cs, nil
}

func readAgents(payload []byte, offset, count, elemSize int) ([]Agent, error) {
	agents := make([]Agent, count)
	end := offset + count*elemSize
	if offset < 0 || end > len(payload) || end < offset {
		return nil, fmt.Errorf("ncf: agent array out of bounds")
	}
	r := bytes.NewReader(payload[offset:end])
	for i := range agents {
		if err := binary.Read(r, binary.LittleEndian, &agents[i]); err != nil {
			return nil, fmt.Errorf("ncf: decoding agent %d: %w", i, err)
		}
	}
	return agents, nil
}

func readCommands(payload []byte, offset, count, elemSize int) ([]Command, error) {
	cmds := make([]Command, count)
	end := offset + count*elemSize
	if offset < 0 || end > len(payload) || end < offset {
		return nil, fmt.Errorf("ncf: command array out of bounds")
	}
	r := bytes.NewReader(payload[offset:end])
	for i := range cmds {
		if err := binary.Read(r, binary.LittleEndian, &cmds[i]); err != nil {
			return nil, fmt.Errorf("ncf: decoding command %d: %w", i, err)
		}
	}
	return cmds, nil
}
