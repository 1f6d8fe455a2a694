package retrace

import (
	"strings"

	"github.com/emirpasic/gods/sets/linkedhashset"

	"github.com/swind/go-dexmap/mapping"
)

// NameResolver gives the display name of a real element. ownerPath is
// empty for classes.
type NameResolver interface {
	ResolveDisplay(kind mapping.Kind, ownerPath string, name string) (string, error)
}

// FrameInfo holds the names found in one stack-trace line. Empty fields
// were not present in the line.
type FrameInfo struct {
	ClassName  string
	SourceFile string
	LineNumber int
	Type       string
	FieldName  string
	MethodName string
	Arguments  string
}

var primitiveTypes = map[string]bool{
	"boolean": true, "byte": true, "char": true, "short": true,
	"int": true, "long": true, "float": true, "double": true, "void": true,
}

// FrameRemapper rewrites the names of a parsed frame to display names and
// remembers the class names it could not change, in first-seen order.
type FrameRemapper struct {
	resolver   NameResolver
	unresolved *linkedhashset.Set
}

func NewFrameRemapper(resolver NameResolver) *FrameRemapper {
	return &FrameRemapper{
		resolver:   resolver,
		unresolved: linkedhashset.New(),
	}
}

func (m *FrameRemapper) Transform(frame FrameInfo) (FrameInfo, error) {
	result := frame
	var err error

	if frame.ClassName != "" {
		if result.ClassName, err = m.DisplayClassName(frame.ClassName); err != nil {
			return FrameInfo{}, err
		}
		if frame.FieldName != "" {
			if result.FieldName, err = m.resolver.ResolveDisplay(mapping.Field, frame.ClassName, frame.FieldName); err != nil {
				return FrameInfo{}, err
			}
		}
		if frame.MethodName != "" {
			if result.MethodName, err = m.resolver.ResolveDisplay(mapping.Method, frame.ClassName, frame.MethodName); err != nil {
				return FrameInfo{}, err
			}
		}
		// Obfuscators commonly rename every source file attribute to this.
		if frame.SourceFile == "SourceFile" {
			result.SourceFile = sourceFileName(result.ClassName)
		}
	}

	if frame.Type != "" {
		if result.Type, err = m.displayType(frame.Type); err != nil {
			return FrameInfo{}, err
		}
	}
	if frame.Arguments != "" {
		if result.Arguments, err = m.displayArguments(frame.Arguments); err != nil {
			return FrameInfo{}, err
		}
	}
	return result, nil
}

// DisplayClassName returns the display name of a class found in a trace.
func (m *FrameRemapper) DisplayClassName(name string) (string, error) {
	display, err := m.resolver.ResolveDisplay(mapping.Class, "", name)
	if err != nil {
		return "", err
	}
	if display == name {
		m.unresolved.Add(name)
	}
	return display, nil
}

// Unresolved lists the class names that kept their name.
func (m *FrameRemapper) Unresolved() []string {
	names := make([]string, 0, m.unresolved.Size())
	for _, value := range m.unresolved.Values() {
		names = append(names, value.(string))
	}
	return names
}

func (m *FrameRemapper) displayType(javaType string) (string, error) {
	element := javaType
	dimensions := ""
	if index := strings.Index(javaType, "["); index >= 0 {
		element, dimensions = javaType[:index], javaType[index:]
	}
	if primitiveTypes[element] {
		return javaType, nil
	}
	display, err := m.DisplayClassName(element)
	if err != nil {
		return "", err
	}
	return display + dimensions, nil
}

func (m *FrameRemapper) displayArguments(arguments string) (string, error) {
	tokens := strings.Split(arguments, ",")
	for i, token := range tokens {
		display, err := m.displayType(strings.TrimSpace(token))
		if err != nil {
			return "", err
		}
		tokens[i] = display
	}
	return strings.Join(tokens, ","), nil
}

// sourceFileName guesses the source file of a class from its outermost
// class name.
func sourceFileName(className string) string {
	start := strings.LastIndex(className, ".") + 1
	if end := mapping.IndexOf(className, "$", start); end > 0 {
		return className[start:end] + ".java"
	}
	return className[start:] + ".java"
}
