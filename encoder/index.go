package encoder

import (
	"fmt"
)

// DecodeError reports an encoded name holding a malformed escape.
type DecodeError struct {
	Encoded string
	Offset  int
	Reason  string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("cannot decode %q at rune %d: %s", e.Encoded, e.Offset, e.Reason)
}

// EncodingCollisionError reports two distinct names that end up with the
// same encoded form within one scope.
type EncodingCollisionError struct {
	Scope   string
	Encoded string
	First   string
	Second  string
}

func (e *EncodingCollisionError) Error() string {
	scope := ""
	if e.Scope != "" {
		scope = " in " + e.Scope
	}
	return fmt.Sprintf("encoding collision%s: %q and %q both encode to %q", scope, e.First, e.Second, e.Encoded)
}

type scopedName struct {
	scope string
	name  string
}

// Index is the reverse lookup built while encoding a set of names. It is
// what catches two sources sharing an output.
type Index struct {
	bySource  map[scopedName]string
	byEncoded map[scopedName]string
}

func NewIndex() *Index {
	return &Index{
		bySource:  make(map[scopedName]string),
		byEncoded: make(map[scopedName]string),
	}
}

// Add records that source encodes to encoded within scope. Each source is
// added once per scope.
func (x *Index) Add(scope string, source string, encoded string) error {
	if previous, ok := x.byEncoded[scopedName{scope, encoded}]; ok && previous != source {
		return &EncodingCollisionError{Scope: scope, Encoded: encoded, First: previous, Second: source}
	}
	x.bySource[scopedName{scope, source}] = encoded
	x.byEncoded[scopedName{scope, encoded}] = source
	return nil
}

// Source returns the name that encodes to encoded within scope.
func (x *Index) Source(scope string, encoded string) (string, bool) {
	source, ok := x.byEncoded[scopedName{scope, encoded}]
	return source, ok
}

// Encoded returns the encoded form recorded for source within scope.
func (x *Index) Encoded(scope string, source string) (string, bool) {
	encoded, ok := x.bySource[scopedName{scope, source}]
	return encoded, ok
}

func (x *Index) Len() int {
	return len(x.bySource)
}

// BuildIndex encodes every name of scope and fails on the first collision.
func (e *Encoder) BuildIndex(scope string, names []string) (*Index, error) {
	index := NewIndex()
	for _, name := range names {
		if err := index.Add(scope, name, e.Encode(name)); err != nil {
			return nil, err
		}
	}
	return index, nil
}
