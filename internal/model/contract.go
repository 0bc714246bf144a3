package model

import "sdslc/internal/ref"

// DocMeta is the optional document-level metadata annotation.
type DocMeta struct {
	Title string
	Desc  string
}

// Decl is one typed declaration. The declaration body is an opaque text blob;
// the core never interprets it.
type Decl struct {
	Kind     ref.Kind
	RelID    string
	Decl     string
	Bind     *ref.InternalRef
	Title    string
	Desc     string
	Refs     []ref.InternalRef
	Contract []ref.ContractRef
	SSOT     []ref.SSOTRef
}

// DepTarget is the destination of a dependency: either an internal ref or an
// opaque contract token. Exactly one side is set.
type DepTarget struct {
	Internal *ref.InternalRef
	Contract ref.ContractRef
}

// TargetInternal wraps an internal ref as a dep target.
func TargetInternal(r ref.InternalRef) DepTarget {
	return DepTarget{Internal: &r}
}

// TargetContract wraps a contract token as a dep target.
func TargetContract(c ref.ContractRef) DepTarget {
	return DepTarget{Contract: c}
}

// String renders the token form used both in output and in dep-id hashing.
func (t DepTarget) String() string {
	if t.Internal != nil {
		return t.Internal.String()
	}
	return string(t.Contract)
}

// Dep is one dependency edge between declarations. Bind always equals From;
// both are emitted, and the redundancy is enforced rather than collapsed
// because downstream consumers read either field.
type Dep struct {
	DepID string
	Bind  ref.InternalRef
	From  ref.InternalRef
	To    DepTarget
	SSOT  []ref.SSOTRef
}

// Rule is one named rule annotation. Bind is required.
type Rule struct {
	RelID    string
	Bind     ref.InternalRef
	Refs     []ref.InternalRef
	Contract []ref.ContractRef
	SSOT     []ref.SSOTRef
}

// ContractModel is the compiled contract document.
type ContractModel struct {
	IDPrefix string
	DocMeta  *DocMeta
	Decls    []Decl
	Deps     []Dep
	Rules    []Rule
}
