package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ethosn/cascadec/internal/frontend"
)

func writeNetworkFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "network.json")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write network file: %v", err)
	}
	return path
}

func TestLoadNetworkParsesNamedOperatorKinds(t *testing.T) {
	path := writeNetworkFile(t, `{
		"ops": [
			{"kind": "Input", "operationId": 1, "outputs": [{"shape": {"N":1,"H":4,"W":4,"C":1}, "quant": {"zeroPoint":0,"scale":1}, "type": "QAsymmU8"}]},
			{"kind": "Output", "operationId": 2, "inputs": [{"shape": {"N":1,"H":4,"W":4,"C":1}, "quant": {"zeroPoint":0,"scale":1}, "type": "QAsymmU8"}], "inputSrcs": [{"operationId": 1, "outputIndex": 0}]}
		]
	}`)

	og, err := loadNetwork(path)
	if err != nil {
		t.Fatalf("loadNetwork: %v", err)
	}
	if len(og.Ops) != 2 {
		t.Fatalf("expected 2 ops, got %d", len(og.Ops))
	}
	if og.Ops[0].Kind != frontend.OpInput {
		t.Fatalf("ops[0].Kind = %v, want OpInput", og.Ops[0].Kind)
	}
	if og.Ops[1].Kind != frontend.OpOutput {
		t.Fatalf("ops[1].Kind = %v, want OpOutput", og.Ops[1].Kind)
	}
}

func TestLoadNetworkRejectsUnknownKindName(t *testing.T) {
	path := writeNetworkFile(t, `{"ops": [{"kind": "NotAnOperator", "operationId": 1}]}`)

	if _, err := loadNetwork(path); err == nil {
		t.Fatalf("expected an error for an unknown operator kind name")
	}
}

func TestLoadNetworkRejectsMissingFile(t *testing.T) {
	if _, err := loadNetwork(filepath.Join(t.TempDir(), "does-not-exist.json")); err == nil {
		t.Fatalf("expected an error for a missing network file")
	}
}
