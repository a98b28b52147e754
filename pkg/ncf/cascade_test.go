package ncf

import (
	"bytes"
	"path/filepath"
	"testing"
)

func sampleStream() *CommandStream {
	agent := Agent{
		Kind:          AgentMceScheduler,
		BlockH:        16,
		BlockW:        16,
		FilterH:       3,
		FilterW:       3,
		ReluMin:       0,
		ReluMax:       255,
		Operation:     0,
		PleKernelName: [32]byte{'V', '2', '4', '4', '2'},
	}
	agent.ReadDependencies[0] = Dependency{RelativeAgentID: 1, OuterRatioSelf: 1, OuterRatioOther: 2, InnerRatioSelf: 1, InnerRatioOther: 1}

	return &CommandStream{
		Agents: []Agent{agent},
		DmaRd:  []Command{{Kind: CmdLoadIfmStripe, AgentID: 0, StripeID: 0}},
		DmaWr:  []Command{{Kind: CmdStoreOfmStripe, AgentID: 0, StripeID: 0}},
		Mce:    []Command{{Kind: CmdProgramMceStripe, AgentID: 0}, {Kind: CmdStartMceStripe, AgentID: 0}},
		Ple:    []Command{{Kind: CmdWaitForCounter, WaitCounter: CounterMceStripe, WaitTarget: 1}},
	}
}

func TestEncodeDecodeCascadeRoundTrips(t *testing.T) {
	cs := sampleStream()
	payload, err := EncodeCascade(cs)
	if err != nil {
		t.Fatalf("EncodeCascade: %v", err)
	}
	decoded, err := DecodeCascade(payload)
	if err != nil {
		t.Fatalf("DecodeCascade: %v", err)
	}
	if len(decoded.Agents) != 1 || decoded.Agents[0].BlockH != 16 {
		t.Fatalf("decoded agent mismatch: %+v", decoded.Agents)
	}
	if len(decoded.Mce) != 2 || decoded.Mce[1].Kind != CmdStartMceStripe {
		t.Fatalf("decoded mce commands mismatch: %+v", decoded.Mce)
	}
}

func TestMarshalCascadeFileRoundTripsThroughOpen(t *testing.T) {
	cs := sampleStream()
	path := filepath.Join(t.TempDir(), "stream.ncf")
	if err := WriteCascadeFile(path, cs); err != nil {
		t.Fatalf("WriteCascadeFile: %v", err)
	}

	f, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = f.Close() }()

	got, err := f.Cascade()
	if err != nil {
		t.Fatalf("Cascade: %v", err)
	}
	if len(got.Agents) != len(cs.Agents) {
		t.Fatalf("agent count = %d, want %d", len(got.Agents), len(cs.Agents))
	}
}

func TestXMLRoundTripIsByteIdenticalOnReencode(t *testing.T) {
	cs := sampleStream()
	first, err := EncodeCascade(cs)
	if err != nil {
		t.Fatalf("EncodeCascade: %v", err)
	}

	xmlBytes, err := MarshalXML(cs)
	if err != nil {
		t.Fatalf("MarshalXML: %v", err)
	}
	roundTripped, err := UnmarshalXML(xmlBytes)
	if err != nil {
		t.Fatalf("UnmarshalXML: %v", err)
	}
	second, err := EncodeCascade(roundTripped)
	if err != nil {
		t.Fatalf("EncodeCascade (round-tripped): %v", err)
	}

	if !bytes.Equal(first, second) {
		t.Fatalf("binary -> IR -> XML -> IR -> binary did not round-trip byte-identically")
	}
}
