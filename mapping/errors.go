package mapping

import (
	"fmt"
	"strings"
)

// MapFormatError reports a malformed map-file line.
type MapFormatError struct {
	Path   string
	Line   int
	Text   string
	Reason string
}

func (e *MapFormatError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s:%d: %s: %q", e.Path, e.Line, e.Reason, e.Text)
	}
	return fmt.Sprintf("line %d: %s: %q", e.Line, e.Reason, e.Text)
}

// DuplicateMappingError reports one key mapped to two readable names.
type DuplicateMappingError struct {
	Path       string
	Key        Key
	First      string
	Second     string
	FirstLine  int
	SecondLine int
}

func (e *DuplicateMappingError) Error() string {
	prefix := ""
	if e.Path != "" {
		prefix = e.Path + ": "
	}
	return fmt.Sprintf("%sduplicate mapping for %s: %q (line %d) and %q (line %d)",
		prefix, e.Key, e.First, e.FirstLine, e.Second, e.SecondLine)
}

// UnresolvedChainError reports an element whose composite chain breaks
// because a later stage keys it under a stale owner path.
type UnresolvedChainError struct {
	Key           Key
	Stage         int
	Name          string
	ExpectedOwner string
	FoundOwner    string
}

func (e *UnresolvedChainError) Error() string {
	return fmt.Sprintf("unresolved chain for %s at stage %d: %s %q is mapped under owner %q, expected %q",
		e.Key, e.Stage, e.Key.Kind, e.Name, e.FoundOwner, e.ExpectedOwner)
}

// AmbiguousMappingError reports a readable name that several obfuscated
// elements map to, which makes unmapping it ambiguous.
type AmbiguousMappingError struct {
	Kind       Kind
	Owner      string
	Readable   string
	Candidates []string
}

func (e *AmbiguousMappingError) Error() string {
	where := e.Readable
	if e.Owner != "" {
		where = e.Owner + "." + e.Readable
	}
	return fmt.Sprintf("ambiguous reverse mapping for %s %s: %s",
		e.Kind, where, strings.Join(e.Candidates, ", "))
}
