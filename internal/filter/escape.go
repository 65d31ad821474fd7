package filter

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const hexDigits = "0123456789abcdef"

// Escape encodes a value for use in a filter string. Strings are UTF-8
// encoded and the bytes * ( ) \, ISO control characters and every byte above
// 0x7F are written as \XX. Byte slices are escaped byte by byte.
func Escape(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case []byte:
		var sb strings.Builder
		sb.Grow(len(v) * 3)
		for _, b := range v {
			writeHex(&sb, b)
		}
		return sb.String()
	case string:
		return escapeString(v)
	default:
		return escapeString(fmt.Sprint(v))
	}
}

func escapeString(s string) string {
	if !needsEscaping(s) {
		return s
	}

	var sb strings.Builder
	sb.Grow(len(s) + 8)
	for i := 0; i < len(s); i++ {
		b := s[i]
		if mustEscape(b) {
			writeHex(&sb, b)
		} else {
			sb.WriteByte(b)
		}
	}
	return sb.String()
}

func needsEscaping(s string) bool {
	for i := 0; i < len(s); i++ {
		if mustEscape(s[i]) {
			return true
		}
	}
	return false
}

// mustEscape reports whether a byte is special in filters. Bytes of C1
// control characters (U+0080-U+009F) are covered by the > 0x7F rule.
func mustEscape(b byte) bool {
	switch b {
	case '*', '(', ')', '\\':
		return true
	}
	return b < 0x20 || b >= 0x7f
}

func writeHex(sb *strings.Builder, b byte) {
	sb.WriteByte('\\')
	sb.WriteByte(hexDigits[b>>4])
	sb.WriteByte(hexDigits[b&0x0f])
}

// Unescape reverses Escape. Runs of \XX escapes are decoded as one byte
// sequence; the result is a string when it is valid UTF-8 and a []byte
// otherwise (binary values such as GUIDs). A backslash followed by anything
// other than two hex digits yields the following character literally.
func Unescape(s string) any {
	if strings.IndexByte(s, '\\') < 0 {
		return s
	}

	buf := unescapeBytes(s)
	if utf8.Valid(buf) {
		return string(buf)
	}
	return buf
}

// unescapeString is Unescape for callers that need a string regardless of
// the encoding of the decoded bytes.
func unescapeString(s string) string {
	if strings.IndexByte(s, '\\') < 0 {
		return s
	}
	return string(unescapeBytes(s))
}

func unescapeBytes(s string) []byte {
	buf := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' {
			buf = append(buf, c)
			continue
		}
		if i+2 < len(s) && isHex(s[i+1]) && isHex(s[i+2]) {
			buf = append(buf, unhex(s[i+1])<<4|unhex(s[i+2]))
			i += 2
			continue
		}
		if i+1 < len(s) {
			buf = append(buf, s[i+1])
			i++
			continue
		}
		buf = append(buf, c)
	}
	return buf
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func unhex(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}
