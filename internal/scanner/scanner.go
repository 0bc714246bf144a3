// Package scanner extracts annotation metadata from SDSL2 text. ScanBlock
// walks a balanced {...} block character by character, aware of strings,
// escapes and comments; SplitPairs tokenizes a block body into raw key/value
// pairs without interpreting the values. Both operations are best-effort and
// never panic on malformed input: the caller decides what a truncated block
// means for its document.
package scanner

import "strings"

// Pair is one raw key:value occurrence inside a metadata block. Values are
// kept verbatim (quoted string, [...] list, or bare token) for the caller to
// interpret. Duplicate keys are preserved in order so callers can detect them.
type Pair struct {
	Key   string
	Value string
}

// BlockResult is the outcome of scanning one metadata block.
type BlockResult struct {
	// Text is the captured text from the opening brace to the matching
	// closing brace inclusive, with comments elided. For an unterminated
	// block it holds everything captured before input ran out.
	Text string
	// EndLine is the index of the line containing the closing brace, or the
	// last scanned line when the block never terminates.
	EndLine int
	// Terminated is false when input ended before the closing brace.
	Terminated bool
}

// ScanBlock consumes characters forward from lines[startLine][braceCol],
// which must be the opening '{', until the matching '}' is found. The brace
// depth counter only moves outside string and comment state; single- and
// double-quoted strings honor backslash escapes; "//" truncates the rest of
// a line; "/* */" sections are elided and may span lines.
func ScanBlock(lines []string, startLine, braceCol int) BlockResult {
	if startLine < 0 || startLine >= len(lines) {
		return BlockResult{EndLine: startLine, Terminated: false}
	}
	first := lines[startLine]
	if braceCol < 0 || braceCol >= len(first) || first[braceCol] != '{' {
		return BlockResult{EndLine: startLine, Terminated: false}
	}

	var sb strings.Builder
	depth := 0
	var quote byte // active quote char, 0 when outside strings
	escaped := false
	inBlockComment := false

	lineIdx := startLine
	for ; lineIdx < len(lines); lineIdx++ {
		line := lines[lineIdx]
		col := 0
		if lineIdx == startLine {
			col = braceCol
		}
		if lineIdx > startLine {
			sb.WriteByte('\n')
		}

		for ; col < len(line); col++ {
			c := line[col]

			if inBlockComment {
				if c == '*' && col+1 < len(line) && line[col+1] == '/' {
					inBlockComment = false
					col++
				}
				continue
			}

			if quote != 0 {
				sb.WriteByte(c)
				if escaped {
					escaped = false
				} else if c == '\\' {
					escaped = true
				} else if c == quote {
					quote = 0
				}
				continue
			}

			switch c {
			case '/':
				if col+1 < len(line) {
					switch line[col+1] {
					case '/':
						col = len(line) // line comment truncates the scan line
						continue
					case '*':
						inBlockComment = true
						col++
						continue
					}
				}
				sb.WriteByte(c)
			case '\'', '"':
				quote = c
				sb.WriteByte(c)
			case '{':
				depth++
				sb.WriteByte(c)
			case '}':
				depth--
				sb.WriteByte(c)
				if depth == 0 {
					return BlockResult{Text: sb.String(), EndLine: lineIdx, Terminated: true}
				}
			default:
				sb.WriteByte(c)
			}
		}
	}

	// Input ran out before the closing brace; report best effort.
	return BlockResult{Text: sb.String(), EndLine: len(lines) - 1, Terminated: false}
}

// SplitPairs tokenizes a metadata block body into ordered key/value pairs.
// The surrounding braces may be present or already stripped. Pair-separating
// commas are located at nesting depth zero only, so a value such as
// [@A.B,@C.D] is never split mid-list, and quoted strings may contain any
// separator character.
func SplitPairs(metaText string) []Pair {
	body := strings.TrimSpace(metaText)
	if strings.HasPrefix(body, "{") && strings.HasSuffix(body, "}") && len(body) >= 2 {
		body = body[1 : len(body)-1]
	}

	var pairs []Pair
	for _, chunk := range splitTopLevel(body, ',') {
		chunk = strings.TrimSpace(chunk)
		if chunk == "" {
			continue
		}
		key, value := splitKeyValue(chunk)
		pairs = append(pairs, Pair{Key: key, Value: value})
	}
	return pairs
}

// splitTopLevel splits s on sep occurrences at bracket depth zero, outside
// quoted strings. Nested {}, [] and () all contribute to depth.
func splitTopLevel(s string, sep byte) []string {
	var parts []string
	depth := 0
	var quote byte
	escaped := false
	start := 0

	for i := 0; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			if escaped {
				escaped = false
			} else if c == '\\' {
				escaped = true
			} else if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '\'', '"':
			quote = c
		case '{', '[', '(':
			depth++
		case '}', ']', ')':
			depth--
		case sep:
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	parts = append(parts, s[start:])
	return parts
}

// splitKeyValue splits one "key:value" chunk on the first top-level colon.
// A chunk without a colon yields the whole text as key and an empty value.
func splitKeyValue(chunk string) (string, string) {
	depth := 0
	var quote byte
	escaped := false

	for i := 0; i < len(chunk); i++ {
		c := chunk[i]
		if quote != 0 {
			if escaped {
				escaped = false
			} else if c == '\\' {
				escaped = true
			} else if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '\'', '"':
			quote = c
		case '{', '[', '(':
			depth++
		case '}', ']', ')':
			depth--
		case ':':
			if depth == 0 {
				return strings.TrimSpace(chunk[:i]), strings.TrimSpace(chunk[i+1:])
			}
		}
	}
	return strings.TrimSpace(chunk), ""
}
