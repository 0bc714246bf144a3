package model

import (
	"fmt"

	"sdslc/internal/diag"
	"sdslc/internal/ref"
)

// Builder accumulates a ContractModel through a fluent API. Unlike ledger
// loading, which batch-validates for a human fixing a file, the Builder is
// driven by other programs and fails fast: the first invariant violation
// sticks, later calls become no-ops, and Build returns the violation as a
// structured *diag.Error.
type Builder struct {
	model ContractModel
	err   *diag.Error

	declKeys map[string]bool
}

// NewBuilder returns an empty contract builder.
func NewBuilder() *Builder {
	return &Builder{declKeys: make(map[string]bool)}
}

// fail records the first violation; subsequent failures are ignored.
func (b *Builder) fail(code diag.Code, path, expected, got, format string, args ...any) *Builder {
	if b.err == nil {
		b.err = diag.NewError(diag.Errorf(code, path, expected, got, format, args...))
	}
	return b
}

// File sets the document id prefix. Must be called exactly once before Build.
func (b *Builder) File(idPrefix string) *Builder {
	if b.err != nil {
		return b
	}
	if !ref.ValidRelID(idPrefix) {
		return b.fail(diag.CodeIDFormat, "/file_header/id_prefix", "RELID", idPrefix, "id prefix is not a valid RELID")
	}
	if b.model.IDPrefix != "" {
		return b.fail(diag.CodeFileHeader, "/file_header", "one @File", "two", "file header set twice")
	}
	b.model.IDPrefix = idPrefix
	return b
}

// DocMeta sets the optional document metadata. Last call wins is not allowed;
// a second call is a violation like a second @File.
func (b *Builder) DocMeta(title, desc string) *Builder {
	if b.err != nil {
		return b
	}
	if b.model.DocMeta != nil {
		return b.fail(diag.CodeFileHeader, "/doc_meta", "one @DocMeta", "two", "doc meta set twice")
	}
	b.model.DocMeta = &DocMeta{Title: title, Desc: desc}
	return b
}

// DeclOpts carries the optional parts of a declaration.
type DeclOpts struct {
	Bind     *ref.InternalRef
	Title    string
	Desc     string
	Refs     []ref.InternalRef
	Contract []ref.ContractRef
	SSOT     []ref.SSOTRef
}

// Structure adds a Structure declaration.
func (b *Builder) Structure(relID, declText string, opts DeclOpts) *Builder {
	return b.addDecl(ref.KindStructure, relID, declText, opts)
}

// Interface adds an Interface declaration.
func (b *Builder) Interface(relID, declText string, opts DeclOpts) *Builder {
	return b.addDecl(ref.KindInterface, relID, declText, opts)
}

// Function adds a Function declaration.
func (b *Builder) Function(relID, declText string, opts DeclOpts) *Builder {
	return b.addDecl(ref.KindFunction, relID, declText, opts)
}

// Const adds a Const declaration.
func (b *Builder) Const(relID, declText string, opts DeclOpts) *Builder {
	return b.addDecl(ref.KindConst, relID, declText, opts)
}

// TypeAlias adds a Type declaration.
func (b *Builder) TypeAlias(relID, declText string, opts DeclOpts) *Builder {
	return b.addDecl(ref.KindType, relID, declText, opts)
}

func (b *Builder) addDecl(kind ref.Kind, relID, declText string, opts DeclOpts) *Builder {
	if b.err != nil {
		return b
	}
	path := fmt.Sprintf("/decls/%d", len(b.model.Decls))
	if !kind.DeclKind() {
		return b.fail(diag.CodeSchema, path+"/kind", "Structure|Interface|Function|Const|Type", string(kind), "not a declaration kind")
	}
	if !ref.ValidRelID(relID) {
		return b.fail(diag.CodeIDFormat, path+"/id", "RELID", relID, "declaration id is not a valid RELID")
	}
	key := string(kind) + "." + relID
	if b.declKeys[key] {
		return b.fail(diag.CodeIDDuplicate, path+"/id", "", relID, "duplicate declaration %s", key)
	}
	b.declKeys[key] = true

	b.model.Decls = append(b.model.Decls, Decl{
		Kind:     kind,
		RelID:    relID,
		Decl:     declText,
		Bind:     copyRef(opts.Bind),
		Title:    opts.Title,
		Desc:     opts.Desc,
		Refs:     append([]ref.InternalRef(nil), opts.Refs...),
		Contract: append([]ref.ContractRef(nil), opts.Contract...),
		SSOT:     append([]ref.SSOTRef(nil), opts.SSOT...),
	})
	return b
}

// Dep adds a dependency. Bind is carried separately from From so the
// bind-equals-from invariant stays observable in emitted text; Build rejects
// any mismatch rather than substituting one field for the other.
func (b *Builder) Dep(bind, from ref.InternalRef, to DepTarget, ssot []ref.SSOTRef) *Builder {
	if b.err != nil {
		return b
	}
	path := fmt.Sprintf("/deps/%d", len(b.model.Deps))
	if !from.Kind.DeclKind() {
		return b.fail(diag.CodeRefKind, path+"/from", "declaration kind ref", from.String(), "dep from must reference a declaration")
	}
	if to.Internal != nil && !to.Internal.Kind.DeclKind() {
		return b.fail(diag.CodeRefKind, path+"/to", "declaration kind ref or CONTRACT.*", to.String(), "dep to must reference a declaration or contract")
	}
	if to.Internal == nil && to.Contract == "" {
		return b.fail(diag.CodeSchema, path+"/to", "target", "empty", "dep target is empty")
	}
	b.model.Deps = append(b.model.Deps, Dep{
		Bind: bind,
		From: from,
		To:   to,
		SSOT: append([]ref.SSOTRef(nil), ssot...),
	})
	return b
}

// Rule adds a rule annotation. Bind is required.
func (b *Builder) Rule(relID string, bind ref.InternalRef, refs []ref.InternalRef, contract []ref.ContractRef, ssot []ref.SSOTRef) *Builder {
	if b.err != nil {
		return b
	}
	path := fmt.Sprintf("/rules/%d", len(b.model.Rules))
	if !ref.ValidRelID(relID) {
		return b.fail(diag.CodeIDFormat, path+"/id", "RELID", relID, "rule id is not a valid RELID")
	}
	if bind == (ref.InternalRef{}) {
		return b.fail(diag.CodeSchema, path+"/bind", "@Kind.RELID", "absent", "rule bind is required")
	}
	b.model.Rules = append(b.model.Rules, Rule{
		RelID:    relID,
		Bind:     bind,
		Refs:     append([]ref.InternalRef(nil), refs...),
		Contract: append([]ref.ContractRef(nil), contract...),
		SSOT:     append([]ref.SSOTRef(nil), ssot...),
	})
	return b
}

// Build runs the whole-model invariants, computes dep ids, and returns the
// finished model. The builder must not be reused afterwards.
func (b *Builder) Build() (*ContractModel, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.model.IDPrefix == "" {
		return nil, diag.NewError(diag.Errorf(diag.CodeFileHeader, "/file_header", "@File", "absent", "file header was never set"))
	}
	for i := range b.model.Deps {
		d := &b.model.Deps[i]
		path := fmt.Sprintf("/deps/%d", i)
		if d.Bind != d.From {
			return nil, diag.NewError(diag.Errorf(diag.CodeDepBindMustEqualFrom, path+"/bind",
				d.From.String(), d.Bind.String(), "dep bind must equal dep from"))
		}
		d.DepID = DepID(d.From.String(), d.To.String())
	}
	m := b.model
	return &m, nil
}

func copyRef(r *ref.InternalRef) *ref.InternalRef {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}
