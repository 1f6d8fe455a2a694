package encoder

import (
	"errors"
	"fmt"
	"unicode"
)

// DefaultMarker introduces every escape in an encoded identifier.
const DefaultMarker = "$$"

// Rule configures an Encoder.
type Rule struct {
	// Marker starts every escape. Its runes must be legal identifier parts
	// that are neither letters nor digits, and the first must be a legal
	// identifier start.
	Marker string
	// Escapes gives single runes a mnemonic letter, written as
	// Marker + "_" + letter instead of the hex form.
	Escapes map[rune]rune
	// Reserved lists the runes escaped when EscapeReservedChars is set.
	Reserved string

	EscapeNonASCII      bool
	EscapeReservedChars bool
	// EscapeIllegalOnly passes legal names without marker runes through
	// untouched.
	EscapeIllegalOnly bool
}

// DefaultEscapes are the mnemonic escapes of DefaultRule.
var DefaultEscapes = map[rune]rune{
	'-': 'd',
	'.': 'p',
	'<': 'l',
	'>': 'g',
	' ': 's',
	'$': 'D',
	'/': 'S',
	';': 'c',
	'[': 'b',
}

// DefaultReserved are the runes escaped by EscapeReservedChars: the one
// legal rune compilers reserve for synthetic names.
const DefaultReserved = "$"

func DefaultRule() Rule {
	escapes := make(map[rune]rune, len(DefaultEscapes))
	for r, code := range DefaultEscapes {
		escapes[r] = code
	}
	return Rule{
		Marker:   DefaultMarker,
		Escapes:  escapes,
		Reserved: DefaultReserved,
	}
}

// Validate checks that the rule can encode every identifier reversibly.
func (r Rule) Validate() error {
	if r.Marker == "" {
		return errors.New("encoding marker is empty")
	}
	for i, c := range r.Marker {
		if unicode.IsLetter(c) || unicode.IsDigit(c) || !isIdentifierPart(c) {
			return fmt.Errorf("encoding marker %q: rune %q must be a non-alphanumeric identifier part", r.Marker, c)
		}
		if i == 0 && !isIdentifierStart(c) {
			return fmt.Errorf("encoding marker %q must begin with a legal identifier start", r.Marker)
		}
	}

	seen := make(map[rune]rune, len(r.Escapes))
	for c, code := range r.Escapes {
		if code > unicode.MaxASCII || !unicode.IsLetter(code) {
			return fmt.Errorf("escape code %q for %q is not an ASCII letter", code, c)
		}
		if previous, ok := seen[code]; ok {
			return fmt.Errorf("escape code %q used for both %q and %q", code, previous, c)
		}
		seen[code] = c
	}
	return nil
}
