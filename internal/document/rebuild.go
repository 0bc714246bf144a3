package document

import (
	"errors"
	"sort"
	"strings"

	"sdslc/internal/diag"
	"sdslc/internal/model"
	"sdslc/internal/ref"
	"sdslc/internal/scanner"
)

// RebuildTopology compiles a parsed topology document back into its model,
// running the same structural checks a ledger load performs: node id
// uniqueness, edge endpoint resolution, non-empty contract refs and duplicate
// edge primary keys. Supplied ids are recomputed and compared, never trusted;
// a mismatch means the text was edited without going through the writer.
func RebuildTopology(doc *Document) (*model.TopologyModel, []diag.Record) {
	var recs []diag.Record
	if doc.Profile != ref.ProfileTopology {
		return nil, append(recs, diag.Errorf(diag.CodeSchema, "/file_header/profile",
			string(ref.ProfileTopology), string(doc.Profile), "document is not a topology"))
	}
	m := &model.TopologyModel{IDPrefix: doc.IDPrefix, Stage: doc.Stage}

	// Nodes first so edges can resolve against the full id set regardless of
	// statement order.
	nodeIDs := make(map[string]bool)
	for _, ann := range doc.Annotations {
		if ann.Kind != ref.KindNode {
			continue
		}
		fields := fieldReader{ann: &ann}
		node := model.Node{
			RelID: fields.relID("id"),
			Kind:  fields.quoted("kind"),
		}
		if bind, ok := fields.optionalRef("bind"); ok {
			node.Bind = &bind
		}
		if node.RelID != "" {
			if nodeIDs[node.RelID] {
				fields.recs = append(fields.recs, diag.Errorf(diag.CodeIDDuplicate, fields.path("id"),
					"", node.RelID, "duplicate node id %s", node.RelID))
			} else {
				nodeIDs[node.RelID] = true
				m.Nodes = append(m.Nodes, node)
			}
		}
		recs = append(recs, fields.recs...)
	}

	seenEdges := make(map[string]bool)
	for _, ann := range doc.Annotations {
		if ann.Kind != ref.KindEdge {
			continue
		}
		fields := fieldReader{ann: &ann}
		edge := model.Edge{
			From:         fields.endpoint("from", nodeIDs),
			To:           fields.endpoint("to", nodeIDs),
			Direction:    fields.direction("direction"),
			ContractRefs: fields.edgeContractRefs("contract_refs"),
		}
		if edge.From != "" && edge.To != "" && edge.Direction != "" && len(edge.ContractRefs) > 0 {
			key := edgeKey(edge)
			if seenEdges[key] {
				fields.recs = append(fields.recs, diag.Errorf(diag.CodeEdgeDuplicate, pathAt(ann.Line),
					"", "", "duplicate edge %s -> %s (%s)", edge.From, edge.To, edge.Direction))
			} else {
				seenEdges[key] = true
				edge.EdgeID = model.EdgeID(edge.From, edge.To, edge.Direction, edge.ContractRefs)
				if supplied, ok := fields.optional("id"); ok && supplied != edge.EdgeID {
					fields.recs = append(fields.recs, diag.Errorf(diag.CodeSchema, fields.path("id"),
						edge.EdgeID, supplied, "edge id does not match its content"))
				}
				m.Edges = append(m.Edges, edge)
			}
		}
		recs = append(recs, fields.recs...)
	}

	if diag.HasErrors(recs) {
		return nil, recs
	}
	return m, recs
}

func edgeKey(e model.Edge) string {
	sorted := make([]string, len(e.ContractRefs))
	for i, r := range e.ContractRefs {
		sorted[i] = string(r)
	}
	sort.Strings(sorted)
	return strings.Join(append([]string{e.From, e.To, string(e.Direction)}, sorted...), "\x00")
}

// RebuildContract compiles a parsed contract document back into its model.
// Field decoding accumulates; the model invariants themselves run through the
// fail-fast Builder, whose first violation lands as the final record.
func RebuildContract(doc *Document) (*model.ContractModel, []diag.Record) {
	var recs []diag.Record
	if doc.Profile != ref.ProfileContract {
		return nil, append(recs, diag.Errorf(diag.CodeSchema, "/file_header/profile",
			string(ref.ProfileContract), string(doc.Profile), "document is not a contract"))
	}

	b := model.NewBuilder().File(doc.IDPrefix)
	for _, ann := range doc.Annotations {
		fields := fieldReader{ann: &ann}
		switch ann.Kind {
		case ref.KindDocMeta:
			b.DocMeta(fields.quoted("title"), fields.quoted("desc"))
		case ref.KindStructure, ref.KindInterface, ref.KindFunction, ref.KindConst, ref.KindType:
			relID := fields.relID("id")
			opts := model.DeclOpts{
				Title:    fields.quoted("title"),
				Desc:     fields.quoted("desc"),
				Refs:     fields.internalRefs("refs"),
				Contract: fields.contractRefs("contract"),
				SSOT:     fields.ssotRefs("ssot"),
			}
			if bind, ok := fields.optionalRef("bind"); ok {
				opts.Bind = &bind
			}
			addDecl(b, ann.Kind, relID, ann.Blob, opts)
		case ref.KindDep:
			bind := fields.internalRef("bind")
			from := fields.internalRef("from")
			b.Dep(bind, from, fields.depTarget("to"), fields.ssotRefs("ssot"))
		case ref.KindRule:
			b.Rule(fields.relID("id"), fields.internalRef("bind"),
				fields.internalRefs("refs"), fields.contractRefs("contract"), fields.ssotRefs("ssot"))
		}
		recs = append(recs, fields.recs...)
	}

	m, err := b.Build()
	if err != nil {
		var dErr *diag.Error
		if errors.As(err, &dErr) {
			recs = append(recs, dErr.Record)
		} else {
			recs = append(recs, diag.Errorf(diag.CodeSchema, "", "", "", "%s", err.Error()))
		}
	}
	if diag.HasErrors(recs) {
		return nil, recs
	}
	return m, recs
}

func addDecl(b *model.Builder, kind ref.Kind, relID, blob string, opts model.DeclOpts) {
	switch kind {
	case ref.KindStructure:
		b.Structure(relID, blob, opts)
	case ref.KindInterface:
		b.Interface(relID, blob, opts)
	case ref.KindFunction:
		b.Function(relID, blob, opts)
	case ref.KindConst:
		b.Const(relID, blob, opts)
	case ref.KindType:
		b.TypeAlias(relID, blob, opts)
	}
}

// fieldReader decodes the metadata pairs of one annotation. Each accessor
// records a diagnostic on failure and returns a zero value so decoding can
// continue through the rest of the block.
type fieldReader struct {
	ann  *Annotation
	recs []diag.Record
}

func (f *fieldReader) path(key string) string {
	return pathAt(f.ann.Line) + "/" + key
}

func (f *fieldReader) lookup(key string) (string, bool) {
	for _, p := range f.ann.Pairs {
		if p.Key == key {
			return p.Value, true
		}
	}
	return "", false
}

func (f *fieldReader) missing(key, expected string) string {
	f.recs = append(f.recs, diag.Errorf(diag.CodeSchema, f.path(key), expected, "absent",
		"@%s is missing %s", f.ann.Kind, key))
	return ""
}

func (f *fieldReader) optional(key string) (string, bool) {
	return f.lookup(key)
}

func (f *fieldReader) relID(key string) string {
	v, ok := f.lookup(key)
	if !ok {
		return f.missing(key, "RELID")
	}
	if !ref.ValidRelID(v) {
		f.recs = append(f.recs, diag.Errorf(diag.CodeIDFormat, f.path(key), "RELID", v,
			"%s is not a valid RELID", key))
		return ""
	}
	return v
}

func (f *fieldReader) quoted(key string) string {
	v, ok := f.lookup(key)
	if !ok {
		return ""
	}
	s, ok := unquoteValue(v)
	if !ok {
		f.recs = append(f.recs, diag.Errorf(diag.CodeParseScalar, f.path(key), `"..."`, v,
			"%s must be a quoted string", key))
		return ""
	}
	return s
}

func (f *fieldReader) direction(key string) ref.Direction {
	v, ok := f.lookup(key)
	if !ok {
		f.missing(key, "direction token")
		return ""
	}
	d, ok := ref.ParseDirection(v)
	if !ok {
		f.recs = append(f.recs, diag.Errorf(diag.CodeDirection, f.path(key),
			"pub|sub|req|rep|rw|call", v, "unknown direction"))
		return ""
	}
	return d
}

func (f *fieldReader) internalRef(key string) ref.InternalRef {
	v, ok := f.lookup(key)
	if !ok {
		f.missing(key, "@Kind.RELID")
		return ref.InternalRef{}
	}
	r, ok := ref.ParseInternalRef(v)
	if !ok {
		f.recs = append(f.recs, diag.Errorf(diag.CodeIDFormat, f.path(key), "@Kind.RELID", v,
			"%s is not an internal ref", key))
		return ref.InternalRef{}
	}
	return r
}

func (f *fieldReader) optionalRef(key string) (ref.InternalRef, bool) {
	v, ok := f.lookup(key)
	if !ok {
		return ref.InternalRef{}, false
	}
	r, ok := ref.ParseInternalRef(v)
	if !ok {
		f.recs = append(f.recs, diag.Errorf(diag.CodeIDFormat, f.path(key), "@Kind.RELID", v,
			"%s is not an internal ref", key))
		return ref.InternalRef{}, false
	}
	return r, true
}

func (f *fieldReader) depTarget(key string) model.DepTarget {
	v, ok := f.lookup(key)
	if !ok {
		f.missing(key, "@Kind.RELID or CONTRACT.*")
		return model.DepTarget{}
	}
	if strings.HasPrefix(v, "@") {
		r, ok := ref.ParseInternalRef(v)
		if !ok {
			f.recs = append(f.recs, diag.Errorf(diag.CodeIDFormat, f.path(key), "@Kind.RELID", v,
				"malformed internal ref"))
			return model.DepTarget{}
		}
		return model.TargetInternal(r)
	}
	c, ok := ref.ParseContractRef(v)
	if !ok {
		f.recs = append(f.recs, diag.Errorf(diag.CodeIDFormat, f.path(key),
			"@Kind.RELID or CONTRACT.*", v, "malformed dep target"))
		return model.DepTarget{}
	}
	return model.TargetContract(c)
}

func (f *fieldReader) internalRefs(key string) []ref.InternalRef {
	v, ok := f.lookup(key)
	if !ok {
		return nil
	}
	items, ok := splitList(v)
	if !ok {
		f.recs = append(f.recs, diag.Errorf(diag.CodeSchema, f.path(key), "[@Kind.RELID,...]", v,
			"%s is not a list", key))
		return nil
	}
	out := make([]ref.InternalRef, 0, len(items))
	for _, item := range items {
		r, ok := ref.ParseInternalRef(item)
		if !ok {
			f.recs = append(f.recs, diag.Errorf(diag.CodeIDFormat, f.path(key), "@Kind.RELID", item,
				"malformed internal ref in %s", key))
			continue
		}
		out = append(out, r)
	}
	return out
}

func (f *fieldReader) contractRefs(key string) []ref.ContractRef {
	tokens := f.tokenList(key)
	if tokens == nil {
		return nil
	}
	out := make([]ref.ContractRef, 0, len(tokens))
	for _, tok := range tokens {
		c, ok := ref.ParseContractRef(tok)
		if !ok {
			f.recs = append(f.recs, diag.Errorf(diag.CodeIDFormat, f.path(key), "CONTRACT.*", tok,
				"malformed contract ref in %s", key))
			continue
		}
		out = append(out, c)
	}
	return out
}

// endpoint reads an edge endpoint and resolves it against the declared
// node id set.
func (f *fieldReader) endpoint(key string, nodeIDs map[string]bool) string {
	v := f.relID(key)
	if v == "" {
		return ""
	}
	if !nodeIDs[v] {
		f.recs = append(f.recs, diag.Errorf(diag.CodeRefUnresolved, f.path(key),
			"declared node id", v, "edge %s references unknown node %s", key, v))
		return ""
	}
	return v
}

// edgeContractRefs reads the mandatory contract_refs list of an edge,
// dropping repeats while keeping first occurrences.
func (f *fieldReader) edgeContractRefs(key string) []ref.ContractRef {
	if _, ok := f.lookup(key); !ok {
		f.recs = append(f.recs, diag.Errorf(diag.CodeSchema, f.path(key), "list", "absent",
			"missing required key %s", key))
		return nil
	}
	before := len(f.recs)
	parsed := f.contractRefs(key)
	seen := make(map[ref.ContractRef]bool, len(parsed))
	out := make([]ref.ContractRef, 0, len(parsed))
	for _, c := range parsed {
		if seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	if len(out) == 0 {
		if len(f.recs) == before {
			f.recs = append(f.recs, diag.Errorf(diag.CodeEdgeContractsEmpty, f.path(key),
				"at least one CONTRACT.* ref", "[]", "edge contract_refs must not be empty"))
		}
		return nil
	}
	return out
}

func (f *fieldReader) ssotRefs(key string) []ref.SSOTRef {
	tokens := f.tokenList(key)
	if tokens == nil {
		return nil
	}
	out := make([]ref.SSOTRef, 0, len(tokens))
	for _, tok := range tokens {
		s, ok := ref.ParseSSOTRef(tok)
		if !ok {
			f.recs = append(f.recs, diag.Errorf(diag.CodeIDFormat, f.path(key), "SSOT.*", tok,
				"malformed ssot ref in %s", key))
			continue
		}
		out = append(out, s)
	}
	return out
}

// tokenList decodes a ["TOK","TOK"] value into its unquoted tokens.
func (f *fieldReader) tokenList(key string) []string {
	v, ok := f.lookup(key)
	if !ok {
		return nil
	}
	items, ok := splitList(v)
	if !ok {
		f.recs = append(f.recs, diag.Errorf(diag.CodeSchema, f.path(key), `["TOKEN",...]`, v,
			"%s is not a list", key))
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		tok, ok := unquoteValue(item)
		if !ok {
			f.recs = append(f.recs, diag.Errorf(diag.CodeParseScalar, f.path(key), `"TOKEN"`, item,
				"list element in %s must be quoted", key))
			continue
		}
		out = append(out, tok)
	}
	return out
}

// splitList strips the surrounding brackets and splits on element commas.
// The element splitter is the scanner's, so quoted elements containing commas
// survive intact.
func splitList(v string) ([]string, bool) {
	if len(v) < 2 || v[0] != '[' || v[len(v)-1] != ']' {
		return nil, false
	}
	inner := strings.TrimSpace(v[1 : len(v)-1])
	if inner == "" {
		return nil, true
	}
	pairs := scanner.SplitPairs("{" + inner + "}")
	items := make([]string, 0, len(pairs))
	for _, p := range pairs {
		item := p.Key
		if p.Value != "" {
			item = p.Key + ":" + p.Value
		}
		items = append(items, strings.TrimSpace(item))
	}
	return items, true
}

// unquoteValue undoes the writer's escaping: the value must be wrapped in
// double quotes, with backslash escaping backslash and quote.
func unquoteValue(v string) (string, bool) {
	if len(v) < 2 || v[0] != '"' || v[len(v)-1] != '"' {
		return "", false
	}
	var sb strings.Builder
	body := v[1 : len(v)-1]
	for i := 0; i < len(body); i++ {
		if body[i] == '\\' {
			if i+1 >= len(body) {
				return "", false
			}
			i++
		}
		sb.WriteByte(body[i])
	}
	return sb.String(), true
}
