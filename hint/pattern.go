// Package hint decides which classes and members count as obfuscated, from
// name patterns and from the class hierarchy they sit in.
package hint

import (
	"fmt"
	"regexp"
	"strings"
)

// Patterns are the obfuscated-name patterns for classes and members. A nil
// pattern never matches.
type Patterns struct {
	Class  *regexp.Regexp
	Member *regexp.Regexp
}

// Compile anchors both expressions so they must match a whole simple name.
// An empty expression leaves its pattern unset.
func Compile(classPattern string, memberPattern string) (Patterns, error) {
	var patterns Patterns
	var err error
	if patterns.Class, err = compileAnchored(classPattern); err != nil {
		return Patterns{}, fmt.Errorf("obfuscated class pattern: %w", err)
	}
	if patterns.Member, err = compileAnchored(memberPattern); err != nil {
		return Patterns{}, fmt.Errorf("obfuscated member pattern: %w", err)
	}
	return patterns, nil
}

func compileAnchored(expression string) (*regexp.Regexp, error) {
	if expression == "" {
		return nil, nil
	}
	return regexp.Compile(`^(?:` + expression + `)$`)
}

func (p Patterns) Empty() bool {
	return p.Class == nil && p.Member == nil
}

// Classify reports whether the simple name of identifierPath matches the
// class or member pattern. The simple name of a member is the text after
// the last '.'; that of a class is its innermost nested name.
func Classify(identifierPath string, isClass bool, patterns Patterns) bool {
	pattern := patterns.Member
	name := memberName(identifierPath)
	if isClass {
		pattern = patterns.Class
		name = SimpleName(identifierPath)
	}
	if pattern == nil {
		return false
	}
	return pattern.MatchString(name)
}

// SimpleName returns the innermost name of a class path: Inner for both
// a.Outer$Inner and a.Inner.
func SimpleName(class string) string {
	simple := memberName(class)
	return simple[strings.LastIndex(simple, "$")+1:]
}

func memberName(path string) string {
	return path[strings.LastIndex(path, ".")+1:]
}
