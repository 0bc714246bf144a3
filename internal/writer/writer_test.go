package writer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sdslc/internal/model"
	"sdslc/internal/ref"
)

func topo() *model.TopologyModel {
	return &model.TopologyModel{
		IDPrefix: "TOPO_MAIN",
		Nodes: []model.Node{
			{RelID: "NODE_B", Kind: "component"},
			{RelID: "NODE_A", Kind: "component"},
		},
		Edges: []model.Edge{
			{
				EdgeID:       model.EdgeID("NODE_A", "NODE_B", ref.DirectionPub, []ref.ContractRef{"CONTRACT.X"}),
				From:         "NODE_A",
				To:           "NODE_B",
				Direction:    ref.DirectionPub,
				ContractRefs: []ref.ContractRef{"CONTRACT.X"},
			},
		},
	}
}

func TestWriteTopology_Layout(t *testing.T) {
	out := WriteTopology(topo())
	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")

	assert.Equal(t, "@File { profile:topology, id_prefix:TOPO_MAIN }", lines[0])
	// Nodes sorted by rel_id even though NODE_B was supplied first.
	assert.Equal(t, `@Node { id:NODE_A, kind:"component" }`, lines[1])
	assert.Equal(t, `@Node { id:NODE_B, kind:"component" }`, lines[2])
	// Edge has five pairs, so it renders one pair per line.
	assert.Equal(t, "@Edge {", lines[3])
	assert.Contains(t, out, "  from:NODE_A,\n")
	assert.Contains(t, out, `  contract_refs:["CONTRACT.X"]`)
	assert.True(t, strings.HasSuffix(out, "}\n"))
}

func TestWriteTopology_SingleTrailingNewline(t *testing.T) {
	out := WriteTopology(topo())
	assert.True(t, strings.HasSuffix(out, "\n"))
	assert.False(t, strings.HasSuffix(out, "\n\n"))
}

func TestWriteTopology_OrderIndependent(t *testing.T) {
	a := topo()

	b := topo()
	b.Nodes[0], b.Nodes[1] = b.Nodes[1], b.Nodes[0]

	assert.Equal(t, WriteTopology(a), WriteTopology(b))
}

func TestWriteTopology_EdgeOrderIsContentDerived(t *testing.T) {
	m := topo()
	extra := model.Edge{
		EdgeID:       model.EdgeID("NODE_A", "NODE_A", ref.DirectionCall, []ref.ContractRef{"CONTRACT.Y"}),
		From:         "NODE_A",
		To:           "NODE_A",
		Direction:    ref.DirectionCall,
		ContractRefs: []ref.ContractRef{"CONTRACT.Y"},
	}
	m.Edges = append(m.Edges, extra)
	out1 := WriteTopology(m)

	m.Edges[0], m.Edges[1] = m.Edges[1], m.Edges[0]
	out2 := WriteTopology(m)

	assert.Equal(t, out1, out2)
	// (NODE_A, NODE_A) sorts before (NODE_A, NODE_B).
	assert.Less(t, strings.Index(out1, "to:NODE_A"), strings.Index(out1, "to:NODE_B"))
}

func TestWriteContract_Layout(t *testing.T) {
	m, err := model.NewBuilder().
		File("CONTRACT_CORE").
		DocMeta("Core", `title with "quotes" and \slash`).
		TypeAlias("Z_ALIAS", "type Z = int", model.DeclOpts{}).
		Structure("MSG_HEADER", "struct MsgHeader {}", model.DeclOpts{
			Refs: []ref.InternalRef{
				{Kind: ref.KindInterface, RelID: "CODEC_IFACE"},
				{Kind: ref.KindConst, RelID: "MAX_LEN"},
			},
		}).
		Interface("CODEC_IFACE", "", model.DeclOpts{}).
		Const("MAX_LEN", "const MaxLen = 64", model.DeclOpts{}).
		Build()
	require.NoError(t, err)

	out := WriteContract(m)
	lines := strings.Split(out, "\n")

	assert.Equal(t, "@File { profile:contract, id_prefix:CONTRACT_CORE }", lines[0])
	assert.Equal(t, `@DocMeta { title:"Core", desc:"title with \"quotes\" and \\slash" }`, lines[1])

	// Kind rank ordering: Structure < Interface < Const < Type.
	idx := func(s string) int { return strings.Index(out, s) }
	assert.Less(t, idx("id:MSG_HEADER"), idx("id:CODEC_IFACE"))
	assert.Less(t, idx("id:CODEC_IFACE"), idx("id:MAX_LEN"))
	assert.Less(t, idx("id:MAX_LEN"), idx("id:Z_ALIAS"))

	// Ref lists carry no spaces and are sorted.
	assert.Contains(t, out, "refs:[@Const.MAX_LEN,@Interface.CODEC_IFACE]")

	// Declaration blobs follow their annotations.
	assert.Less(t, idx("id:MSG_HEADER"), idx("struct MsgHeader {}"))
	assert.Less(t, idx("struct MsgHeader {}"), idx("id:CODEC_IFACE"))
}

func TestWriteContract_DepsSortedByDepID(t *testing.T) {
	s1 := ref.InternalRef{Kind: ref.KindStructure, RelID: "A_STRUCT"}
	s2 := ref.InternalRef{Kind: ref.KindStructure, RelID: "B_STRUCT"}

	build := func(flip bool) string {
		b := model.NewBuilder().
			File("CONTRACT_CORE").
			Structure("A_STRUCT", "", model.DeclOpts{}).
			Structure("B_STRUCT", "", model.DeclOpts{})
		deps := []func(){
			func() { b.Dep(s1, s1, model.TargetContract("CONTRACT.X"), nil) },
			func() { b.Dep(s2, s2, model.TargetContract("CONTRACT.Y"), nil) },
		}
		if flip {
			deps[1]()
			deps[0]()
		} else {
			deps[0]()
			deps[1]()
		}
		m, err := b.Build()
		require.NoError(t, err)
		return WriteContract(m)
	}

	assert.Equal(t, build(false), build(true))
}
