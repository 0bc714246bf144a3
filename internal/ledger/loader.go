package ledger

import (
	"fmt"
	"sort"
	"strings"

	"sdslc/internal/diag"
	"sdslc/internal/ref"
)

// Version is the only accepted ledger version literal.
const Version = "topology-ledger-v0.1"

// FileHeader carries the @File annotation data for the compiled document.
type FileHeader struct {
	Profile  ref.Profile
	IDPrefix string
}

// NodeInput is one validated ledger node.
type NodeInput struct {
	ID   string
	Kind string
	Bind *ref.InternalRef
}

// EdgeInput is one validated ledger edge. ContractRefs is ordered-unique.
type EdgeInput struct {
	From         string
	To           string
	Direction    ref.Direction
	ContractRefs []ref.ContractRef
}

// TopologyInput is a fully validated ledger, ready for model building.
// OutputPath is carried verbatim; containment under the output root is the
// caller's concern (the core does no path resolution).
type TopologyInput struct {
	Version        string
	SchemaRevision int64
	Source         string
	FileHeader     FileHeader
	Nodes          []NodeInput
	Edges          []EdgeInput
	OutputPath     string
}

// LoadTopology parses and validates ledger text. Every independent violation
// is accumulated; the typed result is nil whenever any error-severity record
// was produced. A parse failure is fatal and yields exactly one record.
func LoadTopology(text string) (*TopologyInput, []diag.Record) {
	tree, err := Parse(text)
	if err != nil {
		if de, ok := err.(*diag.Error); ok {
			return nil, []diag.Record{de.Record}
		}
		return nil, []diag.Record{diag.Errorf(diag.CodeSchema, "", "", "", "%v", err)}
	}

	l := &loader{}
	input := l.load(tree)
	if diag.HasErrors(l.recs) {
		return nil, l.recs
	}
	return input, l.recs
}

type loader struct {
	recs []diag.Record
}

func (l *loader) report(r diag.Record) {
	l.recs = append(l.recs, r)
}

var topLevelKeys = map[string]bool{
	"version":         true,
	"schema_revision": true,
	"source":          true,
	"file_header":     true,
	"nodes":           true,
	"edges":           true,
	"output":          true,
}

func (l *loader) load(tree any) *TopologyInput {
	root, ok := tree.(map[string]any)
	if !ok {
		l.report(diag.Errorf(diag.CodeSchema, "", "mapping", typeName(tree), "ledger root must be a mapping"))
		return nil
	}

	for key := range root {
		if !topLevelKeys[key] {
			l.report(diag.Errorf(diag.CodeSchema, "/"+key, "", key, "unknown top-level key %q", key))
		}
	}

	input := &TopologyInput{}

	if v, ok := l.requireString(root, "version"); ok {
		input.Version = v
		if v != Version {
			l.report(diag.Errorf(diag.CodeVersion, "/version", Version, v, "unsupported ledger version"))
		}
	}
	if v, ok := l.requireInt(root, "schema_revision"); ok {
		input.SchemaRevision = v
	}
	if raw, ok := root["source"]; ok {
		if s, ok := raw.(string); ok {
			input.Source = s
		} else {
			l.report(diag.Errorf(diag.CodeSchema, "/source", "string", typeName(raw), "source must be a string"))
		}
	}

	input.FileHeader = l.loadFileHeader(root)
	input.Nodes = l.loadNodes(root)
	nodeIDs := make(map[string]bool, len(input.Nodes))
	for _, n := range input.Nodes {
		nodeIDs[n.ID] = true
	}
	input.Edges = l.loadEdges(root, nodeIDs)
	input.OutputPath = l.loadOutput(root)
	return input
}

func (l *loader) loadFileHeader(root map[string]any) FileHeader {
	raw, ok := root["file_header"]
	if !ok {
		l.report(diag.Errorf(diag.CodeSchema, "/file_header", "mapping", "absent", "missing required key file_header"))
		return FileHeader{}
	}
	m, ok := raw.(map[string]any)
	if !ok {
		l.report(diag.Errorf(diag.CodeSchema, "/file_header", "mapping", typeName(raw), "file_header must be a mapping"))
		return FileHeader{}
	}

	var header FileHeader
	if v, ok := l.requireStringAt(m, "profile", "/file_header/profile"); ok {
		profile, ok := ref.ParseProfile(v)
		if !ok || profile != ref.ProfileTopology {
			l.report(diag.Errorf(diag.CodeSchema, "/file_header/profile", string(ref.ProfileTopology), v, "ledger profile must be topology"))
		} else {
			header.Profile = profile
		}
	}
	if v, ok := l.requireStringAt(m, "id_prefix", "/file_header/id_prefix"); ok {
		if !ref.ValidRelID(v) {
			l.report(diag.Errorf(diag.CodeIDFormat, "/file_header/id_prefix", "RELID", v, "id_prefix is not a valid RELID"))
		} else {
			header.IDPrefix = v
		}
	}
	return header
}

func (l *loader) loadNodes(root map[string]any) []NodeInput {
	items, ok := l.requireList(root, "nodes")
	if !ok {
		return nil
	}

	var nodes []NodeInput
	seen := make(map[string]bool)
	for i, raw := range items {
		path := fmt.Sprintf("/nodes/%d", i)
		m, ok := raw.(map[string]any)
		if !ok {
			l.report(diag.Errorf(diag.CodeSchema, path, "mapping", typeName(raw), "node must be a mapping"))
			continue
		}

		var node NodeInput
		if v, ok := l.requireStringAt(m, "id", path+"/id"); ok {
			if !ref.ValidRelID(v) {
				l.report(diag.Errorf(diag.CodeIDFormat, path+"/id", "RELID", v, "node id is not a valid RELID"))
			} else if seen[v] {
				l.report(diag.Errorf(diag.CodeIDDuplicate, path+"/id", "", v, "duplicate node id %s", v))
			} else {
				seen[v] = true
				node.ID = v
			}
		}
		if v, ok := l.requireStringAt(m, "kind", path+"/kind"); ok {
			if v == "" {
				l.report(diag.Errorf(diag.CodeSchema, path+"/kind", "non-empty string", `""`, "node kind must not be empty"))
			}
			node.Kind = v
		}
		if raw, ok := m["bind"]; ok {
			s, isStr := raw.(string)
			if !isStr {
				l.report(diag.Errorf(diag.CodeSchema, path+"/bind", "string", typeName(raw), "bind must be a string"))
			} else if r, ok := ref.ParseInternalRef(s); ok {
				node.Bind = &r
			} else {
				l.report(diag.Errorf(diag.CodeIDFormat, path+"/bind", "@Kind.RELID", s, "bind is not a valid internal ref"))
			}
		}
		for key := range m {
			if key != "id" && key != "kind" && key != "bind" {
				l.report(diag.Errorf(diag.CodeSchema, path+"/"+key, "", key, "unknown node key %q", key))
			}
		}
		if node.ID != "" {
			nodes = append(nodes, node)
		}
	}
	return nodes
}

func (l *loader) loadEdges(root map[string]any, nodeIDs map[string]bool) []EdgeInput {
	items, ok := l.requireList(root, "edges")
	if !ok {
		return nil
	}

	var edges []EdgeInput
	seenKeys := make(map[string]bool)
	for i, raw := range items {
		path := fmt.Sprintf("/edges/%d", i)
		m, ok := raw.(map[string]any)
		if !ok {
			l.report(diag.Errorf(diag.CodeSchema, path, "mapping", typeName(raw), "edge must be a mapping"))
			continue
		}

		var edge EdgeInput
		valid := true
		edge.From, ok = l.loadEndpoint(m, "from", path, nodeIDs)
		valid = valid && ok
		edge.To, ok = l.loadEndpoint(m, "to", path, nodeIDs)
		valid = valid && ok

		if v, ok := l.requireStringAt(m, "direction", path+"/direction"); ok {
			if d, ok := ref.ParseDirection(v); ok {
				edge.Direction = d
			} else {
				l.report(diag.Errorf(diag.CodeDirection, path+"/direction", "pub|sub|req|rep|rw|call", v, "unknown edge direction"))
				valid = false
			}
		} else {
			valid = false
		}

		refs, refsOK := l.loadContractRefs(m, path)
		edge.ContractRefs = refs
		valid = valid && refsOK

		for key := range m {
			switch key {
			case "from", "to", "direction", "contract_refs":
			default:
				l.report(diag.Errorf(diag.CodeSchema, path+"/"+key, "", key, "unknown edge key %q", key))
			}
		}
		if !valid {
			continue
		}

		// Primary key: (from, to, direction, sorted contract refs). The same
		// key supplied twice is a duplicate regardless of declaration order.
		sorted := make([]string, len(refs))
		for j, r := range refs {
			sorted[j] = string(r)
		}
		sort.Strings(sorted)
		key := strings.Join(append([]string{edge.From, edge.To, string(edge.Direction)}, sorted...), "\x00")
		if seenKeys[key] {
			l.report(diag.Errorf(diag.CodeEdgeDuplicate, path, "", "", "duplicate edge %s -> %s (%s)", edge.From, edge.To, edge.Direction))
			continue
		}
		seenKeys[key] = true
		edges = append(edges, edge)
	}
	return edges
}

func (l *loader) loadEndpoint(m map[string]any, field, path string, nodeIDs map[string]bool) (string, bool) {
	v, ok := l.requireStringAt(m, field, path+"/"+field)
	if !ok {
		return "", false
	}
	if !ref.ValidRelID(v) {
		l.report(diag.Errorf(diag.CodeIDFormat, path+"/"+field, "RELID", v, "edge %s is not a valid RELID", field))
		return "", false
	}
	if !nodeIDs[v] {
		l.report(diag.Errorf(diag.CodeRefUnresolved, path+"/"+field, "declared node id", v, "edge %s references unknown node %s", field, v))
		return "", false
	}
	return v, true
}

// loadContractRefs validates and de-duplicates contract refs, preserving
// first-occurrence order.
func (l *loader) loadContractRefs(m map[string]any, path string) ([]ref.ContractRef, bool) {
	raw, ok := m["contract_refs"]
	if !ok {
		l.report(diag.Errorf(diag.CodeSchema, path+"/contract_refs", "list", "absent", "missing required key contract_refs"))
		return nil, false
	}
	items, ok := raw.([]any)
	if !ok {
		l.report(diag.Errorf(diag.CodeSchema, path+"/contract_refs", "list", typeName(raw), "contract_refs must be a list"))
		return nil, false
	}

	valid := true
	var refs []ref.ContractRef
	seen := make(map[ref.ContractRef]bool)
	for i, item := range items {
		itemPath := fmt.Sprintf("%s/contract_refs/%d", path, i)
		s, isStr := item.(string)
		if !isStr {
			l.report(diag.Errorf(diag.CodeSchema, itemPath, "string", typeName(item), "contract ref must be a string"))
			valid = false
			continue
		}
		c, ok := ref.ParseContractRef(s)
		if !ok {
			l.report(diag.Errorf(diag.CodeIDFormat, itemPath, "CONTRACT.*", s, "not a valid contract ref"))
			valid = false
			continue
		}
		if seen[c] {
			continue
		}
		seen[c] = true
		refs = append(refs, c)
	}
	if len(refs) == 0 && valid {
		l.report(diag.Errorf(diag.CodeEdgeContractsEmpty, path+"/contract_refs", "at least one CONTRACT.* ref", "[]", "edge contract_refs must not be empty"))
		return nil, false
	}
	return refs, valid
}

func (l *loader) loadOutput(root map[string]any) string {
	raw, ok := root["output"]
	if !ok {
		return ""
	}
	m, ok := raw.(map[string]any)
	if !ok {
		l.report(diag.Errorf(diag.CodeSchema, "/output", "mapping", typeName(raw), "output must be a mapping"))
		return ""
	}
	pathRaw, ok := m["topology_v2_path"]
	if !ok {
		return ""
	}
	s, isStr := pathRaw.(string)
	if !isStr {
		l.report(diag.Errorf(diag.CodeSchema, "/output/topology_v2_path", "string", typeName(pathRaw), "topology_v2_path must be a string"))
		return ""
	}
	return s
}

func (l *loader) requireString(m map[string]any, key string) (string, bool) {
	return l.requireStringAt(m, key, "/"+key)
}

func (l *loader) requireStringAt(m map[string]any, key, path string) (string, bool) {
	raw, ok := m[key]
	if !ok {
		l.report(diag.Errorf(diag.CodeSchema, path, "string", "absent", "missing required key %s", key))
		return "", false
	}
	s, ok := raw.(string)
	if !ok {
		l.report(diag.Errorf(diag.CodeSchema, path, "string", typeName(raw), "%s must be a string", key))
		return "", false
	}
	return s, true
}

func (l *loader) requireInt(m map[string]any, key string) (int64, bool) {
	raw, ok := m[key]
	if !ok {
		l.report(diag.Errorf(diag.CodeSchema, "/"+key, "integer", "absent", "missing required key %s", key))
		return 0, false
	}
	v, ok := raw.(int64)
	if !ok {
		l.report(diag.Errorf(diag.CodeSchema, "/"+key, "integer", typeName(raw), "%s must be an integer", key))
		return 0, false
	}
	return v, true
}

func (l *loader) requireList(m map[string]any, key string) ([]any, bool) {
	raw, ok := m[key]
	if !ok {
		l.report(diag.Errorf(diag.CodeSchema, "/"+key, "list", "absent", "missing required key %s", key))
		return nil, false
	}
	items, ok := raw.([]any)
	if !ok {
		l.report(diag.Errorf(diag.CodeSchema, "/"+key, "list", typeName(raw), "%s must be a list", key))
		return nil, false
	}
	return items, true
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "bool"
	case int64:
		return "integer"
	case float64:
		return "float"
	case string:
		return "string"
	case []any:
		return "list"
	case map[string]any:
		return "mapping"
	}
	return fmt.Sprintf("%T", v)
}
