// Package retrace rewrites stack traces of obfuscated programs so they show
// display names.
package retrace

import (
	"bufio"
	"io"
	"strings"
	"unicode"

	"github.com/apex/log"
)

// For example: "com.example.Foo.bar"
const expressionClassMethod = `%c\.%m`

// For example:
// "(Foo.java:123:0) ~[0]"
// "()(Foo.java:123:0)"
// or no source line info.
const expressionSourceLine = `(?:\(\))?(?:\((?:%s)?(?::?%l)?(?::\d+)?\))?\s*(?:~\[.*\])?`

// For example: "at o.afc.b + 45(:45)"
const expressionOptionalOffset = `(?:\+\s+[0-9]+)?`

// For example: "    at com.example.Foo.bar(Foo.java:123:0) ~[0]"
const expressionAt = `.*?\bat\s+` + expressionClassMethod + `\s*` + expressionOptionalOffset + expressionSourceLine

// For example: "java.lang.ClassCastException: com.example.Foo cannot be cast to com.example.Bar"
// Only one class per line can be matched, so prefer the first.
const (
	expressionCast1 = `.*?\bjava\.lang\.ClassCastException: %c cannot be cast to .{5,}`
	expressionCast2 = `.*?\bjava\.lang\.ClassCastException: .* cannot be cast to %c`
)

// For example: "java.lang.NullPointerException: Attempt to read from field 'java.lang.String com.example.Foo.bar' on a null object reference"
const (
	expressionNullFieldRead  = `.*?\bjava\.lang\.NullPointerException: Attempt to read from field '%t %c\.%f' on a null object reference`
	expressionNullFieldWrite = `.*?\bjava\.lang\.NullPointerException: Attempt to write to field '%t %c\.%f' on a null object reference`
	expressionNullMethod     = `.*?\bjava\.lang\.NullPointerException: Attempt to invoke (?:virtual|interface) method '%t %c\.%m\(%a\)' on a null object reference`
)

// For example: "Something: com.example.FooException: something"
const expressionThrow = `(?:.*?[:"]\s+)?%c(?::.*)?`

// For example: java.lang.NullPointerException: Cannot invoke "com.example.Foo.foo(int)" because the return value of "com.example.Foo.foo2()" is null
const (
	expressionReturnValueNull1 = `.*?\bjava\.lang\.NullPointerException: Cannot invoke ".*" because the return value of "%c\.%m\(%a\)" is null`
	expressionReturnValueNull2 = `.*?\bjava\.lang\.NullPointerException: Cannot invoke "%c\.%m\(%a\)" because the return value of ".*" is null`
)

// For example: Cannot invoke "java.net.ServerSocket.close()" because "com.example.Foo.bar" is null
const expressionBecauseIsNull = `.*?\bbecause "%c\.%f" is null`

// DefaultExpression matches any single frame or exception line.
const DefaultExpression = "(?:" + expressionAt + ")|" +
	"(?:" + expressionCast1 + ")|" +
	"(?:" + expressionCast2 + ")|" +
	"(?:" + expressionNullFieldRead + ")|" +
	"(?:" + expressionNullFieldWrite + ")|" +
	"(?:" + expressionNullMethod + ")|" +
	"(?:" + expressionReturnValueNull1 + ")|" +
	"(?:" + expressionBecauseIsNull + ")|" +
	"(?:" + expressionThrow + ")"

// SecondaryExpression picks up the second method of Java 16 helpful null
// pointer messages, which name two methods on one line.
const SecondaryExpression = "(?:" + expressionReturnValueNull2 + ")"

type Option func(r *Retracer)

// AllClassNames also rewrites every qualified class name found anywhere in
// a line, not only those in recognized frames.
func AllClassNames() Option {
	return func(r *Retracer) {
		r.allClassNames = true
	}
}

// WithExpression replaces the frame expression.
func WithExpression(pattern *FramePattern) Option {
	return func(r *Retracer) {
		r.patterns = []*FramePattern{pattern}
	}
}

type Retracer struct {
	patterns      []*FramePattern
	remapper      *FrameRemapper
	allClassNames bool
}

func New(resolver NameResolver, opts ...Option) *Retracer {
	r := Retracer{
		patterns: []*FramePattern{
			MustFramePattern(DefaultExpression),
			MustFramePattern(SecondaryExpression),
		},
		remapper: NewFrameRemapper(resolver),
	}
	for _, opt := range opts {
		opt(&r)
	}
	return &r
}

// Retrace copies reader to writer line by line, rewriting the names of
// every recognized frame.
func (r *Retracer) Retrace(reader io.Reader, writer io.Writer) error {
	bufWriter := bufio.NewWriter(writer)
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lines := 0
	for scanner.Scan() {
		line, err := r.RetraceLine(scanner.Text())
		if err != nil {
			return err
		}
		if _, err := bufWriter.WriteString(line + "\n"); err != nil {
			return err
		}
		lines++
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	if unresolved := r.remapper.Unresolved(); len(unresolved) > 0 {
		log.WithFields(log.Fields{"lines": lines, "unresolved": len(unresolved)}).Debug("classes left unchanged")
	}
	return bufWriter.Flush()
}

func (r *Retracer) RetraceLine(line string) (string, error) {
	matched := false
	for _, pattern := range r.patterns {
		frame, ok := pattern.Parse(line)
		if !ok {
			continue
		}
		matched = true

		display, err := r.remapper.Transform(frame)
		if err != nil {
			return "", err
		}
		line = pattern.Format(line, display)
	}

	if r.allClassNames && !matched {
		return r.displayTokens(line)
	}
	return line, nil
}

// Unresolved lists the class names seen in frames that kept their name.
func (r *Retracer) Unresolved() []string {
	return r.remapper.Unresolved()
}

func isTokenDelim(c rune) bool {
	return unicode.IsSpace(c) ||
		c == '(' || c == ')' ||
		c == '<' || c == '>' ||
		c == '[' || c == ']' ||
		c == '{' || c == '}' ||
		c == ';' || c == ':' || c == ',' ||
		c == '\'' || c == '"' ||
		c == '/' || c == '\\'
}

func (r *Retracer) displayTokens(line string) (string, error) {
	var buffer strings.Builder
	for _, token := range FieldsFuncWithDelims(line, isTokenDelim) {
		if !strings.Contains(token, ".") || strings.HasPrefix(token, ".") || strings.HasSuffix(token, ".") {
			buffer.WriteString(token)
			continue
		}
		display, err := r.remapper.DisplayClassName(token)
		if err != nil {
			return "", err
		}
		buffer.WriteString(display)
	}
	return buffer.String(), nil
}
