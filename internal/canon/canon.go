// Package canon provides canonical-JSON serialization and content-addressed
// identifier derivation. Every derived id in the toolchain (edge ids, dep ids)
// flows through ContentID, so output is stable across process runs and across
// map insertion order.
package canon

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// idHexLen is the truncated digest length carried in derived ids.
const idHexLen = 16

// JSON serializes v as canonical JSON: map keys sorted lexicographically, no
// insignificant whitespace. Accepted value types are nil, bool, int, int64,
// string, []any and map[string]any. Anything else is a programmer error and
// panics: this path is only reachable from code that constructs the value
// literally, never from user input.
func JSON(v any) string {
	var sb strings.Builder
	encode(&sb, v)
	return sb.String()
}

func encode(sb *strings.Builder, v any) {
	switch x := v.(type) {
	case nil:
		sb.WriteString("null")
	case bool:
		if x {
			sb.WriteString("true")
		} else {
			sb.WriteString("false")
		}
	case int:
		sb.WriteString(strconv.Itoa(x))
	case int64:
		sb.WriteString(strconv.FormatInt(x, 10))
	case string:
		encodeString(sb, x)
	case []any:
		sb.WriteByte('[')
		for i, item := range x {
			if i > 0 {
				sb.WriteByte(',')
			}
			encode(sb, item)
		}
		sb.WriteByte(']')
	case []string:
		sb.WriteByte('[')
		for i, item := range x {
			if i > 0 {
				sb.WriteByte(',')
			}
			encodeString(sb, item)
		}
		sb.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				sb.WriteByte(',')
			}
			encodeString(sb, k)
			sb.WriteByte(':')
			encode(sb, x[k])
		}
		sb.WriteByte('}')
	default:
		panic(fmt.Sprintf("canon: unsupported value type %T", v))
	}
}

// encodeString writes a JSON string with the minimal escape set used by the
// canonical form: backslash, quote, and control characters.
func encodeString(sb *strings.Builder, s string) {
	sb.WriteByte('"')
	for _, r := range s {
		switch r {
		case '\\':
			sb.WriteString(`\\`)
		case '"':
			sb.WriteString(`\"`)
		case '\n':
			sb.WriteString(`\n`)
		case '\r':
			sb.WriteString(`\r`)
		case '\t':
			sb.WriteString(`\t`)
		default:
			if r < 0x20 {
				sb.WriteString(fmt.Sprintf(`\u%04x`, r))
			} else {
				sb.WriteRune(r)
			}
		}
	}
	sb.WriteByte('"')
}

// ContentID derives a deterministic identifier from prefix and the canonical
// JSON form of v: "PREFIX_<HEX>" with a truncated upper-case SHA-256 digest.
func ContentID(prefix string, v any) string {
	sum := sha256.Sum256([]byte(JSON(v)))
	short := strings.ToUpper(hex.EncodeToString(sum[:])[:idHexLen])
	return prefix + "_" + short
}
