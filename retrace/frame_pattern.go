package retrace

import (
	"regexp"
	"strconv"
	"strings"
)

// Building blocks substituted for the %-placeholders of a frame expression.
const (
	regexClass      = `(?:[^\s":./()]+\.)*[^\s":./()]+`
	regexClassSlash = `(?:[^\s":./()]+/)*[^\s":./()]+`
	regexSourceFile = `(?:[^:()\d][^:()]*)?`
	regexLineNumber = `-?\b\d+\b`
	regexMember     = `<?[^\s":./()]+>?`
)

var (
	regexType      = regexClass + `(?:\[\])*`
	regexArguments = `(?:` + regexType + `(?:\s*,\s*` + regexType + `)*)?`
)

var placeholders = map[byte]string{
	'c': regexClass,
	'C': regexClassSlash,
	's': regexSourceFile,
	'l': regexLineNumber,
	't': regexType,
	'f': regexMember,
	'm': regexMember,
	'a': regexArguments,
}

// FramePattern parses and re-formats lines fully matching an expression with
// placeholders: %c class, %C class with slashes, %s source file, %l line
// number, %t type, %f field, %m method and %a argument list.
type FramePattern struct {
	pattern *regexp.Regexp
	// groups[i] is the placeholder captured by submatch i.
	groups []byte
}

func NewFramePattern(expression string) (*FramePattern, error) {
	var buffer strings.Builder
	groups := []byte{0}

	index := 0
	for {
		next := strings.IndexByte(expression[index:], '%')
		if next < 0 || index+next == len(expression)-1 {
			break
		}
		next += index

		placeholder := expression[next+1]
		regex, ok := placeholders[placeholder]
		if !ok {
			buffer.WriteString(expression[index : next+2])
			index = next + 2
			continue
		}

		buffer.WriteString(expression[index:next])
		buffer.WriteString("(")
		buffer.WriteString(regex)
		buffer.WriteString(")")
		groups = append(groups, placeholder)
		index = next + 2
	}
	buffer.WriteString(expression[index:])

	pattern, err := regexp.Compile(`^(?:` + buffer.String() + `)$`)
	if err != nil {
		return nil, err
	}
	return &FramePattern{pattern: pattern, groups: groups}, nil
}

func MustFramePattern(expression string) *FramePattern {
	f, err := NewFramePattern(expression)
	if err != nil {
		panic(err)
	}
	return f
}

// Parse extracts the frame of line, or false when line does not match.
func (f *FramePattern) Parse(line string) (FrameInfo, bool) {
	results := f.pattern.FindStringSubmatchIndex(line)
	if results == nil {
		return FrameInfo{}, false
	}

	var frame FrameInfo
	for i := 1; i < len(f.groups); i++ {
		start, end := results[2*i], results[2*i+1]
		if start < 0 || start == end {
			continue
		}
		value := line[start:end]

		switch f.groups[i] {
		case 'c':
			frame.ClassName = value
		case 'C':
			frame.ClassName = ExternalClassName(value)
		case 's':
			frame.SourceFile = value
		case 'l':
			lineNumber, err := strconv.Atoi(value)
			if err != nil {
				lineNumber = -1
			}
			frame.LineNumber = lineNumber
		case 't':
			frame.Type = value
		case 'f':
			frame.FieldName = value
		case 'm':
			frame.MethodName = value
		case 'a':
			frame.Arguments = value
		}
	}
	return frame, true
}

// Format writes frame into the matching parts of line. Text outside the
// placeholders is kept as is.
func (f *FramePattern) Format(line string, frame FrameInfo) string {
	results := f.pattern.FindStringSubmatchIndex(line)
	if results == nil {
		return line
	}

	var buffer strings.Builder
	lineIndex := 0
	for i := 1; i < len(f.groups); i++ {
		start, end := results[2*i], results[2*i+1]
		if start < 0 || start < lineIndex {
			continue
		}
		buffer.WriteString(line[lineIndex:start])

		switch f.groups[i] {
		case 'c':
			buffer.WriteString(frame.ClassName)
		case 'C':
			buffer.WriteString(InternalClassName(frame.ClassName))
		case 's':
			buffer.WriteString(frame.SourceFile)
		case 'l':
			buffer.WriteString(strconv.Itoa(frame.LineNumber))
		case 't':
			buffer.WriteString(frame.Type)
		case 'f':
			buffer.WriteString(frame.FieldName)
		case 'm':
			buffer.WriteString(frame.MethodName)
		case 'a':
			buffer.WriteString(frame.Arguments)
		}
		lineIndex = end
	}

	buffer.WriteString(line[lineIndex:])
	return buffer.String()
}
