// Package diag defines the uniform diagnostic record produced by every
// validation layer. The core never prints or logs; it returns Records
// (accumulate-all paths) or a single *Error (fail-fast paths) and leaves
// presentation to the caller.
package diag

import "fmt"

// Code is a stable symbolic error code. Codes are part of the output
// contract: downstream gates match on them, so they never change meaning.
type Code string

const (
	CodeSchema               Code = "E_SCHEMA"
	CodeIDFormat             Code = "E_ID_FORMAT"
	CodeIDDuplicate          Code = "E_ID_DUPLICATE"
	CodeRefUnresolved        Code = "E_REF_UNRESOLVED"
	CodeRefKind              Code = "E_REF_KIND"
	CodeRefSelf              Code = "E_REF_SELF"
	CodeRefDuplicate         Code = "E_REF_DUPLICATE"
	CodeEdgeDuplicate        Code = "E_EDGE_DUPLICATE"
	CodeEdgeContractsEmpty   Code = "E_EDGE_CONTRACTS_EMPTY"
	CodeDepBindMustEqualFrom Code = "E_DEP_BIND_MUST_EQUAL_FROM"
	CodeDirection            Code = "E_DIRECTION"
	CodeVersion              Code = "E_VERSION"
	CodeDupKey               Code = "E_DUP_KEY"
	CodeParseMetadata        Code = "E_PARSE_METADATA"
	CodeParseIndent          Code = "E_PARSE_INDENT"
	CodeParseScalar          Code = "E_PARSE_SCALAR"
	CodeFileHeader           Code = "E_FILE_HEADER"
	CodeProfileKind          Code = "E_PROFILE_KIND"
	CodeCycle                Code = "E_CYCLE"
)

// Severity classifies a diagnostic for policy layering. The core emits
// SeverityError for everything except cycle reports, which are emitted at
// SeverityWarn and promoted (or not) by caller policy.
type Severity string

const (
	SeverityError Severity = "error"
	SeverityWarn  Severity = "warn"
)

// Record is one diagnostic. Path is a JSON-Pointer-shaped locator into the
// logical document, e.g. "/nodes/2/id" or "/edges/0/contract_refs".
type Record struct {
	Code     Code     `json:"code"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	Expected string   `json:"expected,omitempty"`
	Got      string   `json:"got,omitempty"`
	Path     string   `json:"path,omitempty"`
}

// Errorf builds an error-severity Record at path.
func Errorf(code Code, path, expected, got, format string, args ...any) Record {
	return Record{
		Code:     code,
		Severity: SeverityError,
		Message:  fmt.Sprintf(format, args...),
		Expected: expected,
		Got:      got,
		Path:     path,
	}
}

// Warnf builds a warn-severity Record at path.
func Warnf(code Code, path, format string, args ...any) Record {
	return Record{
		Code:     code,
		Severity: SeverityWarn,
		Message:  fmt.Sprintf(format, args...),
		Path:     path,
	}
}

// Error wraps a single Record as a Go error for the fail-fast paths
// (Builder API, codec misuse surfaced by callers).
type Error struct {
	Record Record
}

func (e *Error) Error() string {
	r := e.Record
	if r.Expected != "" || r.Got != "" {
		return fmt.Sprintf("%s at %s: %s (expected %s, got %s)", r.Code, r.Path, r.Message, r.Expected, r.Got)
	}
	return fmt.Sprintf("%s at %s: %s", r.Code, r.Path, r.Message)
}

// NewError wraps a Record in an *Error.
func NewError(r Record) *Error {
	return &Error{Record: r}
}

// HasErrors reports whether any record in recs carries error severity.
func HasErrors(recs []Record) bool {
	for _, r := range recs {
		if r.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Counts returns the number of records per severity.
func Counts(recs []Record) map[Severity]int {
	counts := make(map[Severity]int)
	for _, r := range recs {
		counts[r.Severity]++
	}
	return counts
}
