// Package model holds the immutable semantic trees for topology and contract
// documents. A model is built once, from a validated ledger input or through
// the contract Builder, and only read afterwards; derived ids are computed
// here so they never depend on authoring order.
package model

import (
	"sort"

	"sdslc/internal/canon"
	"sdslc/internal/ledger"
	"sdslc/internal/ref"
)

// Node is one topology node, copied verbatim from validated ledger input.
type Node struct {
	RelID string
	Kind  string
	Bind  *ref.InternalRef
}

// Edge is one topology edge. EdgeID is derived from the primary key
// (from, to, direction, sorted contract refs) and never supplied.
type Edge struct {
	EdgeID       string
	From         string
	To           string
	Direction    ref.Direction
	ContractRefs []ref.ContractRef
}

// TopologyModel is the compiled topology document.
type TopologyModel struct {
	IDPrefix string
	Stage    string
	Nodes    []Node
	Edges    []Edge
}

// EdgeID derives the content-addressed id for an edge primary key. Contract
// refs are sorted before hashing so declaration order cannot influence the id.
func EdgeID(from, to string, direction ref.Direction, contractRefs []ref.ContractRef) string {
	refs := make([]string, len(contractRefs))
	for i, c := range contractRefs {
		refs[i] = string(c)
	}
	sort.Strings(refs)
	return canon.ContentID("E", map[string]any{
		"from":          from,
		"to":            to,
		"direction":     string(direction),
		"contract_refs": refs,
	})
}

// DepID derives the content-addressed id for a dependency (from, to) pair.
func DepID(from, to string) string {
	return canon.ContentID("D", map[string]any{"from": from, "to": to})
}

// BuildTopology compiles a validated TopologyInput into a TopologyModel.
// The input is already reference-checked, so this is a pure, total function:
// it only computes edge ids and copies data.
func BuildTopology(input *ledger.TopologyInput) *TopologyModel {
	m := &TopologyModel{
		IDPrefix: input.FileHeader.IDPrefix,
		Nodes:    make([]Node, 0, len(input.Nodes)),
		Edges:    make([]Edge, 0, len(input.Edges)),
	}
	for _, n := range input.Nodes {
		node := Node{RelID: n.ID, Kind: n.Kind}
		if n.Bind != nil {
			bind := *n.Bind
			node.Bind = &bind
		}
		m.Nodes = append(m.Nodes, node)
	}
	for _, e := range input.Edges {
		refs := append([]ref.ContractRef(nil), e.ContractRefs...)
		m.Edges = append(m.Edges, Edge{
			EdgeID:       EdgeID(e.From, e.To, e.Direction, refs),
			From:         e.From,
			To:           e.To,
			Direction:    e.Direction,
			ContractRefs: refs,
		})
	}
	return m
}
