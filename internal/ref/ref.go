// Package ref implements the closed reference grammar shared by every SDSL2
// tool: internal references (@Kind.RELID), contract tokens (CONTRACT.*) and
// SSOT tokens (SSOT.*). Parse functions are pure and never error; a failed
// match is a valid "not this token kind" result that callers turn into a
// diagnostic with whatever locator they have.
package ref

import "regexp"

// Kind is the closed annotation-kind vocabulary. Anything outside this set
// parses to no Kind even when it matches the @Word.ID shape.
type Kind string

const (
	KindFile      Kind = "File"
	KindDocMeta   Kind = "DocMeta"
	KindStructure Kind = "Structure"
	KindInterface Kind = "Interface"
	KindFunction  Kind = "Function"
	KindConst     Kind = "Const"
	KindType      Kind = "Type"
	KindDep       Kind = "Dep"
	KindRule      Kind = "Rule"
	KindNode      Kind = "Node"
	KindEdge      Kind = "Edge"
)

// Kinds lists the full vocabulary in declaration order.
func Kinds() []Kind {
	return []Kind{
		KindFile, KindDocMeta, KindStructure, KindInterface, KindFunction,
		KindConst, KindType, KindDep, KindRule, KindNode, KindEdge,
	}
}

// ParseKind is the single entry point for the Kind vocabulary.
func ParseKind(s string) (Kind, bool) {
	switch Kind(s) {
	case KindFile, KindDocMeta, KindStructure, KindInterface, KindFunction,
		KindConst, KindType, KindDep, KindRule, KindNode, KindEdge:
		return Kind(s), true
	}
	return "", false
}

// Profile selects the Kind vocabulary allowed after a @File header.
type Profile string

const (
	ProfileContract Profile = "contract"
	ProfileTopology Profile = "topology"
)

// ParseProfile validates a @File profile value.
func ParseProfile(s string) (Profile, bool) {
	switch Profile(s) {
	case ProfileContract, ProfileTopology:
		return Profile(s), true
	}
	return "", false
}

// Allows reports whether k may appear in a document with profile p.
func (p Profile) Allows(k Kind) bool {
	switch p {
	case ProfileContract:
		switch k {
		case KindFile, KindDocMeta, KindStructure, KindInterface, KindFunction,
			KindConst, KindType, KindDep, KindRule:
			return true
		}
	case ProfileTopology:
		switch k {
		case KindFile, KindDocMeta, KindNode, KindEdge, KindRule:
			return true
		}
	}
	return false
}

// DeclKind reports whether k is one of the contract declaration kinds
// (the kinds that carry a raw declaration text blob).
func (k Kind) DeclKind() bool {
	switch k {
	case KindStructure, KindInterface, KindFunction, KindConst, KindType:
		return true
	}
	return false
}

// DeclRank orders contract declaration kinds for canonical emission:
// Structure < Interface < Function < Const < Type.
func (k Kind) DeclRank() int {
	switch k {
	case KindStructure:
		return 0
	case KindInterface:
		return 1
	case KindFunction:
		return 2
	case KindConst:
		return 3
	case KindType:
		return 4
	}
	return 5
}

var (
	relIDRe       = regexp.MustCompile(`^[A-Z][A-Z0-9_]{2,63}$`)
	internalRefRe = regexp.MustCompile(`^@([A-Za-z]+)\.([A-Z][A-Z0-9_]{2,63})$`)
	contractRefRe = regexp.MustCompile(`^CONTRACT\.[\w.-]+$`)
	ssotRefRe     = regexp.MustCompile(`^SSOT\.[\w.-]+$`)
)

// ValidRelID reports whether s is a well-formed repo-local identifier
// (first char uppercase letter, rest upper-snake, 3..64 chars total).
func ValidRelID(s string) bool {
	return relIDRe.MatchString(s)
}

// InternalRef is a cross-reference within an SDSL2 document set.
// Serialized form is "@Kind.RELID".
type InternalRef struct {
	Kind  Kind
	RelID string
}

// String renders the canonical token form.
func (r InternalRef) String() string {
	return "@" + string(r.Kind) + "." + r.RelID
}

// ParseInternalRef parses "@Kind.RELID". Tokens whose Kind is outside the
// closed vocabulary do not parse, even if they match the shape.
func ParseInternalRef(s string) (InternalRef, bool) {
	m := internalRefRe.FindStringSubmatch(s)
	if m == nil {
		return InternalRef{}, false
	}
	kind, ok := ParseKind(m[1])
	if !ok {
		return InternalRef{}, false
	}
	return InternalRef{Kind: kind, RelID: m[2]}, true
}

// ContractRef is an opaque external contract anchor. The core carries it
// verbatim and never decomposes it.
type ContractRef string

// ParseContractRef parses a "CONTRACT.*" token.
func ParseContractRef(s string) (ContractRef, bool) {
	if !contractRefRe.MatchString(s) {
		return "", false
	}
	return ContractRef(s), true
}

// SSOTRef is an opaque external spec anchor, carried verbatim.
type SSOTRef string

// ParseSSOTRef parses an "SSOT.*" token.
func ParseSSOTRef(s string) (SSOTRef, bool) {
	if !ssotRefRe.MatchString(s) {
		return "", false
	}
	return SSOTRef(s), true
}

// Direction is the closed edge-direction vocabulary.
type Direction string

const (
	DirectionPub  Direction = "pub"
	DirectionSub  Direction = "sub"
	DirectionReq  Direction = "req"
	DirectionRep  Direction = "rep"
	DirectionRW   Direction = "rw"
	DirectionCall Direction = "call"
)

// ParseDirection validates an edge direction value.
func ParseDirection(s string) (Direction, bool) {
	switch Direction(s) {
	case DirectionPub, DirectionSub, DirectionReq, DirectionRep, DirectionRW, DirectionCall:
		return Direction(s), true
	}
	return "", false
}
