package encoder

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Encoder escapes identifiers that are illegal, reserved or non-ASCII in
// readable source so that they can be written as plain identifiers, and
// decodes them back. Decode(Encode(x)) == x for every x.
//
// An escape is the marker followed by one of
//
//	u + 4 hex digits   a rune of the basic multilingual plane
//	U + 6 hex digits   a rune of the supplementary planes
//	_ + letter         a rune with a mnemonic escape
//	x + 2 hex digits   a byte that is not part of valid UTF-8
//
// A marker followed by a digit at the very start of a name only keeps an
// identifier from starting with a digit.
type Encoder struct {
	rule      Rule
	marker    []rune
	unescapes map[rune]rune
	reserved  map[rune]bool
}

func New(rule Rule) (*Encoder, error) {
	if err := rule.Validate(); err != nil {
		return nil, err
	}

	e := Encoder{
		rule:      rule,
		marker:    []rune(rule.Marker),
		unescapes: make(map[rune]rune, len(rule.Escapes)),
		reserved:  make(map[rune]bool),
	}
	for c, code := range rule.Escapes {
		e.unescapes[code] = c
	}
	for _, c := range rule.Reserved {
		e.reserved[c] = true
	}
	return &e, nil
}

// Encode encodes name with rule.
func Encode(name string, rule Rule) (string, error) {
	e, err := New(rule)
	if err != nil {
		return "", err
	}
	return e.Encode(name), nil
}

// Decode decodes a name produced by Encode with the same rule.
func Decode(encoded string, rule Rule) (string, error) {
	e, err := New(rule)
	if err != nil {
		return "", err
	}
	return e.Decode(encoded)
}

func (e *Encoder) Rule() Rule {
	return e.rule
}

// IsLegal reports whether name is usable as a readable identifier as is.
func (e *Encoder) IsLegal(name string) bool {
	if name == "" || keywords[name] {
		return false
	}
	for i, c := range name {
		if i == 0 && !isIdentifierStart(c) {
			return false
		}
		if !isIdentifierPart(c) {
			return false
		}
	}
	return true
}

// NeedsEncoding reports whether Encode changes name.
func (e *Encoder) NeedsEncoding(name string) bool {
	return e.Encode(name) != name
}

func (e *Encoder) Encode(name string) string {
	if name == "" || name == "<init>" || name == "<clinit>" {
		return name
	}
	if e.rule.EscapeIllegalOnly && e.IsLegal(name) && !e.containsMarkerRune(name) {
		return name
	}

	runes, escaped := e.scan(name)
	if keywords[name] {
		escaped[0] = true
	}
	if !escaped[0] && !isIdentifierStart(runes[0]) && !unicode.IsDigit(runes[0]) {
		escaped[0] = true
	}
	e.protectMarker(runes, escaped)

	var buffer strings.Builder
	if !escaped[0] && unicode.IsDigit(runes[0]) {
		buffer.WriteString(e.rule.Marker)
	}
	for i, c := range runes {
		if escaped[i] {
			e.writeEscape(&buffer, c)
		} else {
			buffer.WriteRune(c)
		}
	}
	return buffer.String()
}

// scan splits name into runes and marks those that must be escaped. A byte
// that does not start valid UTF-8 becomes a negative rune holding its
// complement, so it cannot be mistaken for utf8.RuneError itself.
func (e *Encoder) scan(name string) ([]rune, []bool) {
	runes := make([]rune, 0, len(name))
	escaped := make([]bool, 0, len(name))
	for i := 0; i < len(name); {
		c, width := utf8.DecodeRuneInString(name[i:])
		if c == utf8.RuneError && width == 1 {
			runes = append(runes, ^rune(name[i]))
			escaped = append(escaped, true)
		} else {
			runes = append(runes, c)
			escaped = append(escaped, e.mustEscape(c))
		}
		i += width
	}
	return runes, escaped
}

func (e *Encoder) mustEscape(c rune) bool {
	return !isIdentifierPart(c) ||
		(e.rule.EscapeReservedChars && e.reserved[c]) ||
		(e.rule.EscapeNonASCII && c > unicode.MaxASCII)
}

// protectMarker escapes literal runes until the literal text holds no
// marker occurrence and no marker rune sits right before an escape, where
// it could join the escape's own marker. Escapes only grow, so this ends.
func (e *Encoder) protectMarker(runes []rune, escaped []bool) {
	for changed := true; changed; {
		changed = false
		for i, c := range runes {
			if escaped[i] || !e.isMarkerRune(c) {
				continue
			}
			if (i+1 < len(runes) && escaped[i+1]) || e.literalMarkerAt(runes, escaped, i) {
				escaped[i] = true
				changed = true
			}
		}
	}
}

func (e *Encoder) literalMarkerAt(runes []rune, escaped []bool, i int) bool {
	if i+len(e.marker) > len(runes) {
		return false
	}
	for j, m := range e.marker {
		if escaped[i+j] || runes[i+j] != m {
			return false
		}
	}
	return true
}

func (e *Encoder) isMarkerRune(c rune) bool {
	for _, m := range e.marker {
		if c == m {
			return true
		}
	}
	return false
}

func (e *Encoder) containsMarkerRune(name string) bool {
	return strings.ContainsAny(name, e.rule.Marker)
}

func (e *Encoder) writeEscape(buffer *strings.Builder, c rune) {
	buffer.WriteString(e.rule.Marker)
	if c < 0 {
		fmt.Fprintf(buffer, "x%02x", ^c)
		return
	}
	if code, ok := e.rule.Escapes[c]; ok {
		buffer.WriteRune('_')
		buffer.WriteRune(code)
		return
	}
	if c <= 0xFFFF {
		fmt.Fprintf(buffer, "u%04x", c)
		return
	}
	fmt.Fprintf(buffer, "U%06x", c)
}

func (e *Encoder) Decode(encoded string) (string, error) {
	if !utf8.ValidString(encoded) {
		return "", &DecodeError{Encoded: encoded, Reason: "not valid UTF-8"}
	}
	runes := []rune(encoded)
	var buffer strings.Builder

	i := 0
	if e.markerAt(runes, 0) && len(runes) > len(e.marker) && unicode.IsDigit(runes[len(e.marker)]) {
		i = len(e.marker)
	}

	for i < len(runes) {
		if !e.markerAt(runes, i) {
			buffer.WriteRune(runes[i])
			i++
			continue
		}

		c, width, reason := e.decodeEscape(runes[i+len(e.marker):])
		if reason != "" {
			return "", &DecodeError{Encoded: encoded, Offset: i, Reason: reason}
		}
		if c < 0 {
			buffer.WriteByte(byte(^c))
		} else {
			buffer.WriteRune(c)
		}
		i += len(e.marker) + width
	}
	return buffer.String(), nil
}

func (e *Encoder) markerAt(runes []rune, i int) bool {
	if i+len(e.marker) > len(runes) {
		return false
	}
	for j, m := range e.marker {
		if runes[i+j] != m {
			return false
		}
	}
	return true
}

func (e *Encoder) decodeEscape(code []rune) (rune, int, string) {
	if len(code) == 0 {
		return 0, 0, "marker at end of name"
	}

	switch code[0] {
	case '_':
		if len(code) < 2 {
			return 0, 0, "truncated mnemonic escape"
		}
		c, ok := e.unescapes[code[1]]
		if !ok {
			return 0, 0, fmt.Sprintf("unknown mnemonic escape %q", code[1])
		}
		return c, 2, ""
	case 'u':
		c, ok := parseHex(code[1:], 4)
		if !ok {
			return 0, 0, "malformed \\u escape"
		}
		return c, 5, ""
	case 'U':
		c, ok := parseHex(code[1:], 6)
		if !ok || c > unicode.MaxRune {
			return 0, 0, "malformed \\U escape"
		}
		return c, 7, ""
	case 'x':
		b, ok := parseHex(code[1:], 2)
		if !ok || b < utf8.RuneSelf {
			return 0, 0, "malformed \\x escape"
		}
		return ^b, 3, ""
	}
	return 0, 0, fmt.Sprintf("unknown escape %q", code[0])
}

func parseHex(digits []rune, width int) (rune, bool) {
	if len(digits) < width {
		return 0, false
	}
	var value rune
	for _, d := range digits[:width] {
		var nibble rune
		switch {
		case d >= '0' && d <= '9':
			nibble = d - '0'
		case d >= 'a' && d <= 'f':
			nibble = d - 'a' + 10
		default:
			return 0, false
		}
		value = value<<4 | nibble
	}
	return value, true
}

// isIdentifierStart follows Java: letters, currency symbols, connector
// punctuation and letter numbers.
func isIdentifierStart(c rune) bool {
	return unicode.IsLetter(c) ||
		unicode.Is(unicode.Sc, c) ||
		unicode.Is(unicode.Pc, c) ||
		unicode.Is(unicode.Nl, c)
}

func isIdentifierPart(c rune) bool {
	return isIdentifierStart(c) ||
		unicode.IsDigit(c) ||
		unicode.Is(unicode.Mn, c) ||
		unicode.Is(unicode.Mc, c)
}
