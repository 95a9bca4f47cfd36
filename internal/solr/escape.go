package solr

import (
	"strings"
	"unicode"
)

// EscapeQueryChars escapes characters with meaning in the Lucene query
// syntax so s can be used as a literal term.
func EscapeQueryChars(s string) string {
	var sb strings.Builder
	sb.Grow(len(s) + 8)
	for _, c := range s {
		switch c {
		case '\\', '+', '-', '!', '(', ')', ':', '^', '[', ']', '"', '{', '}',
			'~', '*', '?', '|', '&', ';', '/':
			sb.WriteByte('\\')
		default:
			if unicode.IsSpace(c) {
				sb.WriteByte('\\')
			}
		}
		sb.WriteRune(c)
	}
	return sb.String()
}
