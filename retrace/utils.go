package retrace

import (
	"strings"
	"unicode/utf8"
)

// ExternalClassName converts an internal class name into an external one,
// e.g. java/lang/Object -> java.lang.Object.
func ExternalClassName(name string) string {
	return strings.ReplaceAll(name, "/", ".")
}

func InternalClassName(name string) string {
	return strings.ReplaceAll(name, ".", "/")
}

// FieldsFuncWithDelims splits s like strings.FieldsFunc but keeps every
// delimiter rune as a token of its own, so joining the result gives s back.
func FieldsFuncWithDelims(s string, isDelim func(rune) bool) []string {
	var fields []string
	start := 0
	for i := 0; i < len(s); {
		c, width := utf8.DecodeRuneInString(s[i:])
		if isDelim(c) {
			if start < i {
				fields = append(fields, s[start:i])
			}
			fields = append(fields, s[i:i+width])
			start = i + width
		}
		i += width
	}
	if start < len(s) {
		fields = append(fields, s[start:])
	}
	return fields
}
