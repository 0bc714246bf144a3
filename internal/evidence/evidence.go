// Package evidence harvests dependency evidence from Go source. A declaration
// participates only when its doc comment carries an @Kind.RELID identity
// token; everything else the comment mentions becomes that site's reference
// evidence. Code bodies are never inspected, so the dependency graph reflects
// exactly what authors wrote down.
package evidence

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"

	"sdslc/internal/depgraph"
	"sdslc/internal/diag"
	"sdslc/internal/ref"
)

// declQuery captures every commentable declaration form.
const declQuery = `
	(function_declaration) @decl
	(method_declaration) @decl
	(type_spec) @decl
	(const_spec) @decl
`

var (
	internalTokenRe = regexp.MustCompile(`@[A-Za-z]+\.[A-Z][A-Z0-9_]{2,63}`)
	contractTokenRe = regexp.MustCompile(`CONTRACT\.[\w.-]+`)
	ssotTokenRe     = regexp.MustCompile(`SSOT\.[\w.-]+`)
)

// Harvester extracts annotated declaration sites from Go files.
type Harvester struct {
	lang *sitter.Language
}

// NewHarvester returns a harvester for Go source.
func NewHarvester() *Harvester {
	return &Harvester{lang: golang.GetLanguage()}
}

// HarvestFile reads and harvests one Go source file.
func (h *Harvester) HarvestFile(path string) ([]depgraph.Site, []diag.Record, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read file %s: %w", path, err)
	}
	return h.HarvestSource(src, path)
}

// HarvestFiles harvests a set of files in order, concatenating their sites.
func (h *Harvester) HarvestFiles(paths []string) ([]depgraph.Site, []diag.Record, error) {
	var sites []depgraph.Site
	var recs []diag.Record
	for _, path := range paths {
		fileSites, fileRecs, err := h.HarvestFile(path)
		if err != nil {
			return nil, nil, err
		}
		sites = append(sites, fileSites...)
		recs = append(recs, fileRecs...)
	}
	return sites, recs, nil
}

// HarvestSource harvests sites from in-memory source. Declarations whose
// identity token disagrees with their syntactic form are dropped with a
// warning; unannotated declarations are skipped silently.
func (h *Harvester) HarvestSource(src []byte, path string) ([]depgraph.Site, []diag.Record, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(h.lang)
	tree, err := parser.ParseCtx(context.Background(), nil, src)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	query, err := sitter.NewQuery([]byte(declQuery), h.lang)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to compile declaration query: %w", err)
	}
	qc := sitter.NewQueryCursor()
	qc.Exec(query, tree.RootNode())

	var sites []depgraph.Site
	var recs []diag.Record
	for {
		m, ok := qc.NextMatch()
		if !ok {
			break
		}
		for _, c := range m.Captures {
			site, rec := h.harvestDecl(c.Node, src, path)
			if rec != nil {
				recs = append(recs, *rec)
			}
			if site != nil {
				sites = append(sites, *site)
			}
		}
	}
	return sites, recs, nil
}

func (h *Harvester) harvestDecl(node *sitter.Node, src []byte, path string) (*depgraph.Site, *diag.Record) {
	doc := docComment(node, src)
	if doc == "" {
		return nil, nil
	}

	tokens := internalTokenRe.FindAllString(doc, -1)
	var identity *ref.InternalRef
	var evidence []ref.InternalRef
	for _, tok := range tokens {
		r, ok := ref.ParseInternalRef(tok)
		if !ok || !r.Kind.DeclKind() {
			continue
		}
		if identity == nil {
			identity = &r
			continue
		}
		evidence = append(evidence, r)
	}
	if identity == nil {
		return nil, nil
	}

	declKind := syntacticKind(node, src)
	if declKind != "" && declKind != identity.Kind {
		rec := diag.Warnf(diag.CodeRefKind, path, "identity token %s on a %s declaration at line %d",
			identity.String(), declKind, node.StartPoint().Row+1)
		return nil, &rec
	}

	site := depgraph.Site{
		Kind:         identity.Kind,
		RelID:        identity.RelID,
		InternalRefs: evidence,
	}
	for _, tok := range contractTokenRe.FindAllString(doc, -1) {
		if c, ok := ref.ParseContractRef(trimProse(tok)); ok {
			site.ContractRefs = append(site.ContractRefs, c)
		}
	}
	for _, tok := range ssotTokenRe.FindAllString(doc, -1) {
		if s, ok := ref.ParseSSOTRef(trimProse(tok)); ok {
			site.SSOTRefs = append(site.SSOTRefs, s)
		}
	}
	return &site, nil
}

// trimProse drops sentence punctuation that the token pattern would
// otherwise absorb when a token ends a comment sentence.
func trimProse(tok string) string {
	return strings.TrimRight(tok, ".-")
}

// syntacticKind maps a declaration node to the annotation kind it should
// carry. An empty result means the form carries no constraint.
func syntacticKind(node *sitter.Node, src []byte) ref.Kind {
	switch node.Type() {
	case "function_declaration", "method_declaration":
		return ref.KindFunction
	case "const_spec":
		return ref.KindConst
	case "type_spec":
		typeNode := node.ChildByFieldName("type")
		if typeNode == nil {
			return ""
		}
		switch typeNode.Type() {
		case "struct_type":
			return ref.KindStructure
		case "interface_type":
			return ref.KindInterface
		}
		return ref.KindType
	}
	return ""
}

// docComment collects the contiguous comment block immediately above a
// declaration. Grouped type and const specs look at the enclosing
// declaration first, then fall back to the spec itself.
func docComment(node *sitter.Node, src []byte) string {
	target := node
	if parent := node.Parent(); parent != nil {
		switch parent.Type() {
		case "type_declaration", "const_declaration":
			target = parent
		}
	}
	doc := commentAbove(target, src)
	if doc == "" && target != node {
		doc = commentAbove(node, src)
	}
	return doc
}

func commentAbove(node *sitter.Node, src []byte) string {
	var lines []string
	current := node
	for {
		prev := current.PrevSibling()
		if prev == nil || current.StartPoint().Row-prev.EndPoint().Row > 1 {
			break
		}
		if prev.Type() != "comment" {
			break
		}
		lines = append([]string{prev.Content(src)}, lines...)
		current = prev
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
