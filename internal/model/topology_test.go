package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sdslc/internal/canon"
	"sdslc/internal/ledger"
	"sdslc/internal/ref"
)

func TestBuildTopology_EdgeIDMatchesContentID(t *testing.T) {
	input := &ledger.TopologyInput{
		Version:        ledger.Version,
		SchemaRevision: 1,
		FileHeader:     ledger.FileHeader{Profile: ref.ProfileTopology, IDPrefix: "TOPO_MAIN"},
		Nodes: []ledger.NodeInput{
			{ID: "NODE_A", Kind: "component"},
			{ID: "NODE_B", Kind: "component"},
		},
		Edges: []ledger.EdgeInput{
			{From: "NODE_A", To: "NODE_B", Direction: ref.DirectionPub, ContractRefs: []ref.ContractRef{"CONTRACT.X"}},
		},
	}

	m := BuildTopology(input)
	require.Len(t, m.Nodes, 2)
	require.Len(t, m.Edges, 1)

	want := canon.ContentID("E", map[string]any{
		"from":          "NODE_A",
		"to":            "NODE_B",
		"direction":     "pub",
		"contract_refs": []string{"CONTRACT.X"},
	})
	assert.Equal(t, want, m.Edges[0].EdgeID)
}

func TestEdgeID_IgnoresContractRefOrder(t *testing.T) {
	a := EdgeID("NODE_A", "NODE_B", ref.DirectionPub, []ref.ContractRef{"CONTRACT.X", "CONTRACT.Y"})
	b := EdgeID("NODE_A", "NODE_B", ref.DirectionPub, []ref.ContractRef{"CONTRACT.Y", "CONTRACT.X"})
	assert.Equal(t, a, b)

	c := EdgeID("NODE_A", "NODE_B", ref.DirectionSub, []ref.ContractRef{"CONTRACT.X", "CONTRACT.Y"})
	assert.NotEqual(t, a, c)
}

func TestBuildTopology_CopiesInput(t *testing.T) {
	bind := ref.InternalRef{Kind: ref.KindStructure, RelID: "STATE_STORE"}
	input := &ledger.TopologyInput{
		FileHeader: ledger.FileHeader{IDPrefix: "TOPO_MAIN"},
		Nodes:      []ledger.NodeInput{{ID: "NODE_A", Kind: "component", Bind: &bind}},
	}

	m := BuildTopology(input)
	require.NotNil(t, m.Nodes[0].Bind)

	// Mutating the input afterwards must not leak into the model.
	bind.RelID = "CHANGED"
	assert.Equal(t, "STATE_STORE", m.Nodes[0].Bind.RelID)
}
