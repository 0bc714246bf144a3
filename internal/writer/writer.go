// Package writer emits canonical SDSL2 text for topology and contract models.
// Emission order is a function of content, never of authoring order, so two
// semantically identical models always serialize to byte-identical text.
package writer

import (
	"sort"
	"strings"

	"sdslc/internal/model"
	"sdslc/internal/ref"
)

// inlinePairLimit is the largest pair count rendered on one line; larger
// annotations switch to one pair per line.
const inlinePairLimit = 2

type pair struct {
	key   string
	value string
}

// annotation renders "@Kind { ... }" with the inline/multi-line threshold.
func annotation(sb *strings.Builder, kind ref.Kind, pairs []pair) {
	sb.WriteString("@")
	sb.WriteString(string(kind))
	if len(pairs) == 0 {
		sb.WriteString(" {}\n")
		return
	}
	if len(pairs) <= inlinePairLimit {
		sb.WriteString(" { ")
		for i, p := range pairs {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(p.key)
			sb.WriteString(":")
			sb.WriteString(p.value)
		}
		sb.WriteString(" }\n")
		return
	}
	sb.WriteString(" {\n")
	for i, p := range pairs {
		sb.WriteString("  ")
		sb.WriteString(p.key)
		sb.WriteString(":")
		sb.WriteString(p.value)
		if i < len(pairs)-1 {
			sb.WriteString(",")
		}
		sb.WriteString("\n")
	}
	sb.WriteString("}\n")
}

// quote renders a free string value: backslashes doubled first, then quotes
// escaped.
func quote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}

// refList renders internal refs as [@Kind.ID,@Kind.ID] without spaces.
func refList(refs []ref.InternalRef) string {
	parts := make([]string, len(refs))
	for i, r := range refs {
		parts[i] = r.String()
	}
	sort.Strings(parts)
	return "[" + strings.Join(parts, ",") + "]"
}

// tokenList renders opaque tokens as ["TOKEN","TOKEN"].
func tokenList(tokens []string) string {
	sorted := append([]string(nil), tokens...)
	sort.Strings(sorted)
	quoted := make([]string, len(sorted))
	for i, tok := range sorted {
		quoted[i] = quote(tok)
	}
	return "[" + strings.Join(quoted, ",") + "]"
}

func contractTokens(refs []ref.ContractRef) []string {
	out := make([]string, len(refs))
	for i, r := range refs {
		out[i] = string(r)
	}
	return out
}

func ssotTokens(refs []ref.SSOTRef) []string {
	out := make([]string, len(refs))
	for i, r := range refs {
		out[i] = string(r)
	}
	return out
}

// WriteTopology serializes a topology model: header, nodes by rel_id, edges
// by (from, to, direction, contract refs). Output ends with exactly one
// trailing newline.
func WriteTopology(m *model.TopologyModel) string {
	var sb strings.Builder

	header := []pair{
		{"profile", string(ref.ProfileTopology)},
		{"id_prefix", m.IDPrefix},
	}
	if m.Stage != "" {
		header = append(header, pair{"stage", quote(m.Stage)})
	}
	annotation(&sb, ref.KindFile, header)

	nodes := append([]model.Node(nil), m.Nodes...)
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].RelID < nodes[j].RelID })
	for _, n := range nodes {
		pairs := []pair{
			{"id", n.RelID},
			{"kind", quote(n.Kind)},
		}
		if n.Bind != nil {
			pairs = append(pairs, pair{"bind", n.Bind.String()})
		}
		annotation(&sb, ref.KindNode, pairs)
	}

	edges := append([]model.Edge(nil), m.Edges...)
	sort.Slice(edges, func(i, j int) bool { return edgeSortKey(edges[i]) < edgeSortKey(edges[j]) })
	for _, e := range edges {
		annotation(&sb, ref.KindEdge, []pair{
			{"id", e.EdgeID},
			{"from", e.From},
			{"to", e.To},
			{"direction", string(e.Direction)},
			{"contract_refs", tokenList(contractTokens(e.ContractRefs))},
		})
	}
	return sb.String()
}

func edgeSortKey(e model.Edge) string {
	refs := contractTokens(e.ContractRefs)
	sort.Strings(refs)
	return strings.Join(append([]string{e.From, e.To, string(e.Direction)}, refs...), "\x00")
}

// WriteContract serializes a contract model: header, optional doc meta, decls
// by (kind rank, rel_id), deps by dep_id, rules by rel_id. A declaration's
// raw text blob follows its annotation verbatim.
func WriteContract(m *model.ContractModel) string {
	var sb strings.Builder

	annotation(&sb, ref.KindFile, []pair{
		{"profile", string(ref.ProfileContract)},
		{"id_prefix", m.IDPrefix},
	})

	if m.DocMeta != nil {
		var pairs []pair
		if m.DocMeta.Title != "" {
			pairs = append(pairs, pair{"title", quote(m.DocMeta.Title)})
		}
		if m.DocMeta.Desc != "" {
			pairs = append(pairs, pair{"desc", quote(m.DocMeta.Desc)})
		}
		annotation(&sb, ref.KindDocMeta, pairs)
	}

	decls := append([]model.Decl(nil), m.Decls...)
	sort.Slice(decls, func(i, j int) bool {
		if decls[i].Kind.DeclRank() != decls[j].Kind.DeclRank() {
			return decls[i].Kind.DeclRank() < decls[j].Kind.DeclRank()
		}
		return decls[i].RelID < decls[j].RelID
	})
	for _, d := range decls {
		pairs := []pair{{"id", d.RelID}}
		if d.Bind != nil {
			pairs = append(pairs, pair{"bind", d.Bind.String()})
		}
		if d.Title != "" {
			pairs = append(pairs, pair{"title", quote(d.Title)})
		}
		if d.Desc != "" {
			pairs = append(pairs, pair{"desc", quote(d.Desc)})
		}
		if len(d.Refs) > 0 {
			pairs = append(pairs, pair{"refs", refList(d.Refs)})
		}
		if len(d.Contract) > 0 {
			pairs = append(pairs, pair{"contract", tokenList(contractTokens(d.Contract))})
		}
		if len(d.SSOT) > 0 {
			pairs = append(pairs, pair{"ssot", tokenList(ssotTokens(d.SSOT))})
		}
		annotation(&sb, d.Kind, pairs)
		if blob := strings.TrimRight(d.Decl, "\n"); blob != "" {
			sb.WriteString(blob)
			sb.WriteString("\n")
		}
	}

	deps := append([]model.Dep(nil), m.Deps...)
	sort.Slice(deps, func(i, j int) bool { return deps[i].DepID < deps[j].DepID })
	for _, d := range deps {
		pairs := []pair{
			{"id", d.DepID},
			{"bind", d.Bind.String()},
			{"from", d.From.String()},
			{"to", d.To.String()},
		}
		if len(d.SSOT) > 0 {
			pairs = append(pairs, pair{"ssot", tokenList(ssotTokens(d.SSOT))})
		}
		annotation(&sb, ref.KindDep, pairs)
	}

	rules := append([]model.Rule(nil), m.Rules...)
	sort.Slice(rules, func(i, j int) bool { return rules[i].RelID < rules[j].RelID })
	for _, r := range rules {
		pairs := []pair{
			{"id", r.RelID},
			{"bind", r.Bind.String()},
		}
		if len(r.Refs) > 0 {
			pairs = append(pairs, pair{"refs", refList(r.Refs)})
		}
		if len(r.Contract) > 0 {
			pairs = append(pairs, pair{"contract", tokenList(contractTokens(r.Contract))})
		}
		if len(r.SSOT) > 0 {
			pairs = append(pairs, pair{"ssot", tokenList(ssotTokens(r.SSOT))})
		}
		annotation(&sb, ref.KindRule, pairs)
	}
	return sb.String()
}
