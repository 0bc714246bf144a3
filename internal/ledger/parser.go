// Package ledger parses the restricted YAML subset used for topology ledgers.
// Parse produces a generic value tree; LoadTopology layers typed validation on
// top of that tree, accumulating every violation so an author fixes the whole
// file in one pass.
//
// The parser is indentation-driven with a fixed 2-space step. Instead of
// language-level recursion it keeps an explicit stack of block frames, so
// pathological nesting depth cannot exhaust the call stack.
package ledger

import (
	"fmt"
	"strconv"
	"strings"

	"sdslc/internal/diag"
)

// blockKind tags what a frame has accumulated so far.
type blockKind int

const (
	blockUnknown blockKind = iota
	blockMap
	blockSeq
)

// frame is one open block. attach delivers the completed value to the parent
// when the block closes; item maps for list-of-maps entries are attached
// eagerly and mutated in place instead.
type frame struct {
	indent int
	kind   blockKind
	m      map[string]any
	s      []any
	attach func(any)
}

func (f *frame) value() any {
	switch f.kind {
	case blockMap:
		return f.m
	case blockSeq:
		return f.s
	}
	return nil
}

// Parse turns ledger text into a generic tree of nil, bool, int64, float64,
// string, []any and map[string]any values. The first malformed line aborts
// with a single parse error; downstream validation cannot proceed on a tree
// that failed to parse.
func Parse(text string) (any, error) {
	lines := strings.Split(text, "\n")

	var result any
	root := &frame{indent: 0, attach: func(v any) { result = v }}
	stack := []*frame{root}

	for i, raw := range lines {
		line := strings.TrimRight(raw, " \t\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		indent := leadingSpaces(line)
		if strings.HasPrefix(line[indent:], "\t") || strings.ContainsRune(line[:indent], '\t') {
			return nil, parseErr(diag.CodeParseIndent, i, "tab character in indentation")
		}

		// Close blocks until the line belongs to the top frame.
		for len(stack) > 1 && indent < stack[len(stack)-1].indent {
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			top.attach(top.value())
		}
		top := stack[len(stack)-1]
		if indent != top.indent {
			return nil, parseErr(diag.CodeParseIndent, i, "indent %d does not match any open block (expected %d)", indent, top.indent)
		}

		content := line[indent:]
		if content == "-" || strings.HasPrefix(content, "- ") {
			children, err := handleSeqLine(top, content, indent, i)
			if err != nil {
				return nil, err
			}
			stack = append(stack, children...)
			continue
		}

		child, err := handleMapLine(top, content, indent, i)
		if err != nil {
			return nil, err
		}
		if child != nil {
			stack = append(stack, child)
		}
	}

	// Close everything still open.
	for len(stack) > 1 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		top.attach(top.value())
	}
	root.attach(root.value())
	return result, nil
}

// handleSeqLine processes a "- ..." line inside top. It returns the frames to
// push when the item opens one or more nested blocks.
func handleSeqLine(top *frame, content string, indent, lineNo int) ([]*frame, error) {
	if top.kind == blockMap {
		return nil, parseErr(diag.CodeParseIndent, lineNo, "sequence item in a mapping block")
	}
	top.kind = blockSeq

	rest := strings.TrimSpace(content[1:])
	if rest == "" {
		// Item value is the nested block (or null when nothing follows).
		idx := len(top.s)
		top.s = append(top.s, nil)
		return []*frame{{
			indent: indent + 2,
			attach: func(v any) { top.s[idx] = v },
		}}, nil
	}

	key, value, isRecord := splitMapLine(rest)
	if !isRecord {
		v, err := scalar(rest, lineNo)
		if err != nil {
			return nil, err
		}
		top.s = append(top.s, v)
		return nil, nil
	}

	// Inline "key: value" record; following lines at the item body indent
	// merge into the same item (one level of list-of-maps). The map is
	// appended now and mutated in place through the pushed frame.
	item := make(map[string]any)
	top.s = append(top.s, item)
	itemFrame := &frame{indent: indent + 2, kind: blockMap, m: item, attach: func(any) {}}
	if value == "" {
		// "- key:" opens a nested block two columns past the item body.
		item[key] = nil
		k := key
		return []*frame{itemFrame, {
			indent: indent + 4,
			attach: func(v any) { item[k] = v },
		}}, nil
	}
	v, err := scalar(value, lineNo)
	if err != nil {
		return nil, err
	}
	item[key] = v
	return []*frame{itemFrame}, nil
}

// handleMapLine processes a "key: value" line inside top. It returns a new
// frame to push when the value is a nested block.
func handleMapLine(top *frame, content string, indent, lineNo int) (*frame, error) {
	if top.kind == blockSeq {
		return nil, parseErr(diag.CodeParseIndent, lineNo, "mapping entry in a sequence block")
	}

	key, value, ok := splitMapLine(content)
	if !ok {
		return nil, parseErr(diag.CodeParseScalar, lineNo, "expected key: value, got %q", content)
	}
	if top.kind == blockUnknown {
		top.kind = blockMap
		top.m = make(map[string]any)
	}

	if value == "" {
		m := top.m
		k := key
		m[k] = nil
		return &frame{
			indent: indent + 2,
			attach: func(v any) { m[k] = v },
		}, nil
	}

	v, err := scalar(value, lineNo)
	if err != nil {
		return nil, err
	}
	top.m[key] = v
	return nil, nil
}

// splitMapLine splits "key: value" / "key:" on the first colon. Keys are bare
// tokens in this subset; a colon inside a quoted value never matches because
// the key side would contain the opening quote.
func splitMapLine(s string) (key, value string, ok bool) {
	idx := strings.Index(s, ":")
	if idx <= 0 {
		return "", "", false
	}
	key = strings.TrimSpace(s[:idx])
	if key == "" || strings.ContainsAny(key, `"'`) {
		return "", "", false
	}
	rest := s[idx+1:]
	if rest != "" && !strings.HasPrefix(rest, " ") {
		return "", "", false
	}
	return key, strings.TrimSpace(rest), true
}

// scalar coerces a raw scalar token. Unterminated quoted strings are the one
// unparseable form; every other token is at worst a bare string.
func scalar(s string, lineNo int) (any, error) {
	switch s {
	case "null":
		return nil, nil
	case "true":
		return true, nil
	case "false":
		return false, nil
	case "[]":
		return []any{}, nil
	case "{}":
		return map[string]any{}, nil
	}
	if strings.HasPrefix(s, `"`) {
		if len(s) < 2 || !strings.HasSuffix(s, `"`) || endsEscaped(s[1:len(s)-1]) {
			return nil, parseErr(diag.CodeParseScalar, lineNo, "unterminated quoted string %q", s)
		}
		return unquote(s[1 : len(s)-1]), nil
	}
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v, nil
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil && strings.ContainsAny(s, ".eE") {
		return v, nil
	}
	return s, nil
}

// unquote resolves the two escape forms of the subset: \\ and \".
func unquote(body string) string {
	var sb strings.Builder
	escaped := false
	for i := 0; i < len(body); i++ {
		c := body[i]
		if escaped {
			sb.WriteByte(c)
			escaped = false
			continue
		}
		if c == '\\' {
			escaped = true
			continue
		}
		sb.WriteByte(c)
	}
	return sb.String()
}

// endsEscaped reports whether body ends in an unpaired backslash, which would
// make the closing quote part of the string rather than its terminator.
func endsEscaped(body string) bool {
	n := 0
	for i := len(body) - 1; i >= 0 && body[i] == '\\'; i-- {
		n++
	}
	return n%2 == 1
}

func leadingSpaces(s string) int {
	n := 0
	for n < len(s) && s[n] == ' ' {
		n++
	}
	return n
}

func parseErr(code diag.Code, lineNo int, format string, args ...any) error {
	return diag.NewError(diag.Record{
		Code:     code,
		Severity: diag.SeverityError,
		Message:  fmt.Sprintf(format, args...),
		Path:     fmt.Sprintf("/line/%d", lineNo+1),
	})
}
