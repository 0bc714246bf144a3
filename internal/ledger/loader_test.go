package ledger

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sdslc/internal/diag"
	"sdslc/internal/ref"
)

const validLedger = `version: "topology-ledger-v0.1"
schema_revision: 3
file_header:
  profile: topology
  id_prefix: TOPO_MAIN
nodes:
  - id: NODE_A
    kind: component
  - id: NODE_B
    kind: component
    bind: "@Structure.STATE_STORE"
edges:
  - from: NODE_A
    to: NODE_B
    direction: pub
    contract_refs:
      - CONTRACT.X
`

func codes(recs []diag.Record) []diag.Code {
	var out []diag.Code
	for _, r := range recs {
		out = append(out, r.Code)
	}
	return out
}

func countCode(recs []diag.Record, code diag.Code) int {
	n := 0
	for _, r := range recs {
		if r.Code == code {
			n++
		}
	}
	return n
}

func TestLoadTopology_Valid(t *testing.T) {
	input, recs := LoadTopology(validLedger)
	require.Empty(t, recs)
	require.NotNil(t, input)

	assert.Equal(t, Version, input.Version)
	assert.Equal(t, int64(3), input.SchemaRevision)
	assert.Equal(t, ref.ProfileTopology, input.FileHeader.Profile)
	assert.Equal(t, "TOPO_MAIN", input.FileHeader.IDPrefix)

	require.Len(t, input.Nodes, 2)
	assert.Equal(t, "NODE_A", input.Nodes[0].ID)
	require.NotNil(t, input.Nodes[1].Bind)
	assert.Equal(t, ref.KindStructure, input.Nodes[1].Bind.Kind)
	assert.Equal(t, "STATE_STORE", input.Nodes[1].Bind.RelID)

	require.Len(t, input.Edges, 1)
	assert.Equal(t, ref.DirectionPub, input.Edges[0].Direction)
	assert.Equal(t, []ref.ContractRef{"CONTRACT.X"}, input.Edges[0].ContractRefs)
}

func TestLoadTopology_AccumulatesAllViolations(t *testing.T) {
	text := `version: "topology-ledger-v0.2"
file_header:
  profile: contract
  id_prefix: bad_prefix
nodes:
  - id: NODE_A
    kind: component
  - id: node_b
    kind: component
edges:
  - from: NODE_A
    to: NODE_MISSING
    direction: push
    contract_refs: []
`
	input, recs := LoadTopology(text)
	assert.Nil(t, input)

	// One run surfaces the wrong version literal, the missing schema_revision,
	// the contract profile, both malformed ids, the unresolved edge endpoint,
	// the unknown direction and the empty contract_refs together.
	got := codes(recs)
	assert.Contains(t, got, diag.CodeVersion)
	assert.Contains(t, got, diag.CodeSchema)
	assert.Contains(t, got, diag.CodeIDFormat)
	assert.Contains(t, got, diag.CodeRefUnresolved)
	assert.Contains(t, got, diag.CodeDirection)
	assert.Contains(t, got, diag.CodeEdgeContractsEmpty)
}

func TestLoadTopology_DuplicateNodeID(t *testing.T) {
	text := strings.Replace(validLedger, "id: NODE_B", "id: NODE_A", 1)
	input, recs := LoadTopology(text)
	assert.Nil(t, input)
	assert.Equal(t, 1, countCode(recs, diag.CodeIDDuplicate))
}

func TestLoadTopology_DuplicateEdge(t *testing.T) {
	text := validLedger + `  - from: NODE_A
    to: NODE_B
    direction: pub
    contract_refs:
      - CONTRACT.X
`
	input, recs := LoadTopology(text)
	assert.Nil(t, input)
	assert.Equal(t, 1, countCode(recs, diag.CodeEdgeDuplicate))
}

func TestLoadTopology_DuplicateEdgeIgnoresRefOrder(t *testing.T) {
	text := `version: "topology-ledger-v0.1"
schema_revision: 1
file_header:
  profile: topology
  id_prefix: TOPO_MAIN
nodes:
  - id: NODE_A
    kind: component
  - id: NODE_B
    kind: component
edges:
  - from: NODE_A
    to: NODE_B
    direction: pub
    contract_refs:
      - CONTRACT.X
      - CONTRACT.Y
  - from: NODE_A
    to: NODE_B
    direction: pub
    contract_refs:
      - CONTRACT.Y
      - CONTRACT.X
`
	input, recs := LoadTopology(text)
	assert.Nil(t, input)
	assert.Equal(t, 1, countCode(recs, diag.CodeEdgeDuplicate))
}

func TestLoadTopology_ContractRefDeduplicated(t *testing.T) {
	text := strings.Replace(validLedger,
		"      - CONTRACT.X\n",
		"      - CONTRACT.X\n      - CONTRACT.X\n", 1)
	input, recs := LoadTopology(text)
	require.Empty(t, recs)
	require.NotNil(t, input)
	assert.Equal(t, []ref.ContractRef{"CONTRACT.X"}, input.Edges[0].ContractRefs)
}

func TestLoadTopology_ParseFailureIsFatal(t *testing.T) {
	input, recs := LoadTopology("nodes:\n      - over indented")
	assert.Nil(t, input)
	require.Len(t, recs, 1)
	assert.Equal(t, diag.CodeParseIndent, recs[0].Code)
}

func TestLoadTopology_OutputPathCarriedVerbatim(t *testing.T) {
	text := validLedger + `output:
  topology_v2_path: out/topology_v2.sdsl2
`
	input, recs := LoadTopology(text)
	require.Empty(t, recs)
	require.NotNil(t, input)
	assert.Equal(t, "out/topology_v2.sdsl2", input.OutputPath)
}

func TestLoadTopology_UnknownTopLevelKey(t *testing.T) {
	input, recs := LoadTopology(validLedger + "extra: 1\n")
	assert.Nil(t, input)
	assert.Equal(t, 1, countCode(recs, diag.CodeSchema))
}
