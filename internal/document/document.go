// Package document reads canonical or hand-written .sdsl2 text back into an
// annotation stream and rebuilds the semantic models. It layers the profile
// rules (@File first and exactly once, Kind vocabulary per profile) on top of
// the metadata scanner, accumulating every violation it finds.
package document

import (
	"fmt"
	"strings"

	"sdslc/internal/diag"
	"sdslc/internal/ref"
	"sdslc/internal/scanner"
)

// Annotation is one parsed @Kind{...} statement. Blob carries the raw
// declaration text that follows a contract declaration annotation.
type Annotation struct {
	Kind  ref.Kind
	Pairs []scanner.Pair
	Line  int
	Blob  string
}

// Document is the parsed statement stream of one .sdsl2 file. Annotations
// holds every statement after the @File header, in source order.
type Document struct {
	Profile     ref.Profile
	IDPrefix    string
	Stage       string
	Annotations []Annotation
}

// Parse scans text into a Document. Metadata parse failures are fatal (nil
// document, one record); all other violations accumulate and the document is
// nil whenever any record carries error severity.
func Parse(text string) (*Document, []diag.Record) {
	lines := strings.Split(text, "\n")
	var recs []diag.Record
	doc := &Document{}
	sawFile := false

	for i := 0; i < len(lines); i++ {
		trimmed := strings.TrimSpace(lines[i])
		if trimmed == "" || strings.HasPrefix(trimmed, "//") {
			continue
		}
		if !strings.HasPrefix(lines[i], "@") {
			// Anything that is not an annotation is declaration text; it is
			// owned by the preceding declaration annotation.
			recs = append(recs, diag.Errorf(diag.CodeSchema, pathAt(i), "@Kind { ... }", firstWord(trimmed),
				"statement outside any declaration"))
			continue
		}

		ann, stop, annRecs := parseAnnotation(lines, i)
		recs = append(recs, annRecs...)
		if ann == nil {
			if stop < i {
				return nil, recs
			}
			i = stop
			continue
		}

		if !sawFile {
			if ann.Kind != ref.KindFile {
				recs = append(recs, diag.Errorf(diag.CodeFileHeader, pathAt(i), "@File", "@"+string(ann.Kind),
					"@File must be the first statement"))
				return nil, recs
			}
			sawFile = true
			recs = append(recs, applyFileHeader(doc, ann)...)
			i = stop
			continue
		}
		if ann.Kind == ref.KindFile {
			recs = append(recs, diag.Errorf(diag.CodeFileHeader, pathAt(i), "one @File", "two",
				"@File must appear exactly once"))
			i = stop
			continue
		}
		if !doc.Profile.Allows(ann.Kind) {
			recs = append(recs, diag.Errorf(diag.CodeProfileKind, pathAt(i),
				fmt.Sprintf("kind allowed by profile %s", doc.Profile), string(ann.Kind),
				"annotation kind not allowed by profile"))
			i = stop
			continue
		}

		i = stop
		if ann.Kind.DeclKind() {
			blob, last := collectBlob(lines, i+1)
			ann.Blob = blob
			i = last
		}
		doc.Annotations = append(doc.Annotations, *ann)
	}

	if !sawFile {
		recs = append(recs, diag.Errorf(diag.CodeFileHeader, "", "@File", "absent", "missing @File header"))
	}
	if diag.HasErrors(recs) {
		return nil, recs
	}
	return doc, recs
}

// parseAnnotation scans one @Kind{...} statement starting at line i. It
// returns the annotation (nil on failure), the index of the statement's last
// line, and any diagnostics. A failed metadata scan returns stop < i to
// signal a fatal parse error.
func parseAnnotation(lines []string, i int) (*Annotation, int, []diag.Record) {
	line := lines[i]
	braceCol := strings.IndexByte(line, '{')
	if braceCol < 0 {
		return nil, i, []diag.Record{diag.Errorf(diag.CodeParseMetadata, pathAt(i),
			"@Kind { ... }", strings.TrimSpace(line), "annotation has no metadata block")}
	}
	kindTok := strings.TrimSpace(line[1:braceCol])
	kind, ok := ref.ParseKind(kindTok)
	res := scanner.ScanBlock(lines, i, braceCol)
	if !ok {
		// Consume the whole block so its interior lines are not re-read as
		// stray statements.
		stop := res.EndLine
		if !res.Terminated {
			stop = len(lines) - 1
		}
		return nil, stop, []diag.Record{diag.Errorf(diag.CodeProfileKind, pathAt(i),
			"known annotation kind", kindTok, "unknown annotation kind")}
	}
	if !res.Terminated {
		return nil, i - 1, []diag.Record{diag.Errorf(diag.CodeParseMetadata, pathAt(i),
			"matching }", "end of input", "unterminated metadata block for @%s", kind)}
	}

	pairs := scanner.SplitPairs(res.Text)
	recs := duplicateKeyRecords(pairs, i)
	return &Annotation{Kind: kind, Pairs: pairs, Line: i}, res.EndLine, recs
}

// duplicateKeyRecords reports every repeated key in one metadata block; the
// scanner itself surfaces occurrences in order and leaves detection here.
func duplicateKeyRecords(pairs []scanner.Pair, line int) []diag.Record {
	var recs []diag.Record
	seen := make(map[string]bool, len(pairs))
	for _, p := range pairs {
		if seen[p.Key] {
			recs = append(recs, diag.Errorf(diag.CodeDupKey, pathAt(line), "", p.Key,
				"duplicate metadata key %q", p.Key))
		}
		seen[p.Key] = true
	}
	return recs
}

func applyFileHeader(doc *Document, ann *Annotation) []diag.Record {
	var recs []diag.Record
	for _, p := range ann.Pairs {
		switch p.Key {
		case "profile":
			profile, ok := ref.ParseProfile(p.Value)
			if !ok {
				recs = append(recs, diag.Errorf(diag.CodeSchema, "/file_header/profile",
					"contract|topology", p.Value, "unknown profile"))
				continue
			}
			doc.Profile = profile
		case "id_prefix":
			if !ref.ValidRelID(p.Value) {
				recs = append(recs, diag.Errorf(diag.CodeIDFormat, "/file_header/id_prefix",
					"RELID", p.Value, "id_prefix is not a valid RELID"))
				continue
			}
			doc.IDPrefix = p.Value
		case "stage":
			if s, ok := unquoteValue(p.Value); ok {
				doc.Stage = s
			} else {
				doc.Stage = p.Value
			}
		default:
			recs = append(recs, diag.Errorf(diag.CodeSchema, "/file_header/"+p.Key, "", p.Key,
				"unknown @File key %q", p.Key))
		}
	}
	if doc.Profile == "" {
		recs = append(recs, diag.Errorf(diag.CodeSchema, "/file_header/profile", "contract|topology",
			"absent", "@File is missing profile"))
	}
	if doc.IDPrefix == "" {
		recs = append(recs, diag.Errorf(diag.CodeSchema, "/file_header/id_prefix", "RELID",
			"absent", "@File is missing id_prefix"))
	}
	return recs
}

// collectBlob gathers the raw declaration text following a declaration
// annotation: every line up to the next column-zero annotation or end of
// input, with trailing blank lines trimmed.
func collectBlob(lines []string, start int) (string, int) {
	end := start
	for end < len(lines) && !strings.HasPrefix(lines[end], "@") {
		end++
	}
	blob := strings.Join(lines[start:end], "\n")
	blob = strings.TrimRight(blob, " \t\n")
	return blob, end - 1
}

func pathAt(line int) string {
	return fmt.Sprintf("/line/%d", line+1)
}

func firstWord(s string) string {
	if idx := strings.IndexAny(s, " \t"); idx >= 0 {
		return s[:idx]
	}
	return s
}
