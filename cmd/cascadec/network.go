package main

import (
	"fmt"
	"os"

	"github.com/goccy/go-json"

	"github.com/ethosn/cascadec/internal/frontend"
)

// networkFile is the on-disk JSON shape of an operator graph: a flat
// list of operators in the order the frozen visitor API would have
// emitted them. OpKind and npu.DataType marshal by name so a
// hand-written network.json stays readable.
type networkFile struct {
	Ops []frontend.Op `json:"ops"`
}

// loadNetwork reads a network.json file into an OperatorGraph.
func loadNetwork(path string) (*frontend.OperatorGraph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read network file: %w", err)
	}
	var nf networkFile
	if err := json.Unmarshal(data, &nf); err != nil {
		return nil, fmt.Errorf("parse network file: %w", err)
	}
	return &frontend.OperatorGraph{Ops: nf.Ops}, nil
}
