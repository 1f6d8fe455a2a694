package mapping

import (
	"bufio"
	"io"
	"strings"

	"github.com/apex/log"
)

// MappingReader parses the map-file format:
//
//	# comment
//	a.b.C -> com.example.Thing:
//	    field a -> count
//	    method b(int) -> doThing
//
// Class headers start at column zero and end with ':'; member lines are
// indented and start with a kind marker.
type MappingReader struct {
	fileReader    io.Reader
	path          string
	readableFirst bool
}

type ReaderOption func(*MappingReader)

// ReadableFirst reads every arrow as "readable -> obfuscated", the
// orientation ProGuard writes its mapping files in.
func ReadableFirst() ReaderOption {
	return func(r *MappingReader) {
		r.readableFirst = true
	}
}

// WithPath names the file in errors.
func WithPath(path string) ReaderOption {
	return func(r *MappingReader) {
		r.path = path
	}
}

func IndexOf(s string, subStr string, position int) int {
	if position < 0 || position > len(s) {
		return -1
	}
	index := strings.Index(s[position:], subStr)
	if index < 0 {
		return index
	}
	return position + index
}

func NewMappingReader(fileReader io.Reader, opts ...ReaderOption) *MappingReader {
	reader := MappingReader{
		fileReader: fileReader,
	}
	for _, opt := range opts {
		opt(&reader)
	}

	return &reader
}

// Load reads a whole map file into a SymbolTable.
func Load(fileReader io.Reader, opts ...ReaderOption) (*SymbolTable, error) {
	builder := NewTableBuilder()
	reader := NewMappingReader(fileReader, opts...)
	if err := reader.Pump(builder); err != nil {
		return nil, err
	}
	table := builder.Table()
	log.WithFields(log.Fields{"path": reader.path, "entries": table.Len()}).Debug("loaded map file")
	return table, nil
}

// Pump feeds every mapping in the file to processor, stopping at the first
// malformed line or processor error.
func (r *MappingReader) Pump(processor MappingProcessor) error {
	var (
		className  string
		inClass    bool
		interested bool
		lineNumber int
	)

	scanner := bufio.NewScanner(r.fileReader)
	for scanner.Scan() {
		lineNumber++
		rawLine := stripComment(scanner.Text())
		line := strings.TrimSpace(rawLine)
		if len(line) == 0 {
			continue
		}

		if rawLine[0] != ' ' && rawLine[0] != '\t' {
			// Process the class mapping and remember the class's obfuscated name
			name, err := r.processClassMapping(lineNumber, line, processor, &interested)
			if err != nil {
				return r.attribute(err)
			}
			className = name
			inClass = true
			continue
		}

		if !inClass {
			return r.formatError(lineNumber, line, "member mapping before any class header")
		}
		if err := r.processClassMemberMapping(lineNumber, className, line, interested, processor); err != nil {
			return r.attribute(err)
		}
	}

	if err := scanner.Err(); err != nil {
		return err
	}

	return nil
}

func stripComment(line string) string {
	if strings.HasPrefix(strings.TrimSpace(line), "#") {
		return ""
	}
	for _, marker := range []string{" #", "\t#"} {
		if index := strings.Index(line, marker); index >= 0 {
			line = line[:index]
		}
	}
	return line
}

func (r *MappingReader) processClassMapping(lineNumber int, line string, processor MappingProcessor, interested *bool) (string, error) {
	// "____ -> ____:" or "____:"
	if !strings.HasSuffix(line, ":") {
		return "", r.formatError(lineNumber, line, "class header must end with ':'")
	}
	body := strings.TrimSpace(line[:len(line)-1])

	left, right := body, body
	if arrowIndex := IndexOf(body, "->", 0); arrowIndex >= 0 {
		left = strings.TrimSpace(body[:arrowIndex])
		right = strings.TrimSpace(body[arrowIndex+2:])
	}
	if len(left) == 0 || len(right) == 0 || strings.ContainsAny(left+right, " \t") {
		return "", r.formatError(lineNumber, line, "malformed class name")
	}

	className, newClassName := r.orient(left, right)
	ok, err := processor.ProcessClassMapping(lineNumber, className, newClassName)
	if err != nil {
		return "", err
	}
	*interested = ok
	return className, nil
}

// Parses one of
//
//	field ___ -> ___
//	method ___ -> ___
//	method ___(___) -> ___
//
// in the context of the current obfuscated class name.
func (r *MappingReader) processClassMemberMapping(lineNumber int, className string, line string, interested bool, processor MappingProcessor) error {
	spaceIndex := strings.IndexAny(line, " \t")
	if spaceIndex < 0 {
		return r.formatError(lineNumber, line, "missing kind marker")
	}

	kind, ok := ParseKind(line[:spaceIndex])
	if !ok || kind == Class {
		return r.formatError(lineNumber, line, "unknown kind marker "+`"`+line[:spaceIndex]+`"`)
	}

	rest := strings.TrimSpace(line[spaceIndex+1:])
	cursor := 0
	argumentIndex1 := -1
	argumentIndex2 := -1
	arrowIndex := IndexOf(rest, "->", 0)

	argumentIndex1 = IndexOf(rest, "(", 0)
	if argumentIndex1 >= 0 && (arrowIndex < 0 || argumentIndex1 < arrowIndex) {
		argumentIndex2 = IndexOf(rest, ")", argumentIndex1+1)
		if argumentIndex2 < 0 {
			return r.formatError(lineNumber, line, "unterminated argument list")
		}
		cursor = argumentIndex2 + 1
		arrowIndex = IndexOf(rest, "->", cursor)
	} else {
		argumentIndex1 = -1
	}

	if arrowIndex < 0 {
		return r.formatError(lineNumber, line, "missing '->'")
	}
	if kind == Field && argumentIndex1 >= 0 {
		return r.formatError(lineNumber, line, "field mapping with an argument list")
	}

	nameEndIndex := arrowIndex
	arguments := ""
	if argumentIndex1 >= 0 {
		nameEndIndex = argumentIndex1
		arguments = strings.TrimSpace(rest[argumentIndex1+1 : argumentIndex2])
		if len(strings.TrimSpace(rest[cursor:arrowIndex])) > 0 {
			return r.formatError(lineNumber, line, "unexpected text after argument list")
		}
	}
	left := strings.TrimSpace(rest[:nameEndIndex])
	right := strings.TrimSpace(rest[arrowIndex+2:])
	if len(left) == 0 || len(right) == 0 || strings.ContainsAny(left+right, " \t") {
		return r.formatError(lineNumber, line, "malformed member name")
	}

	if !interested {
		return nil
	}

	memberName, newMemberName := r.orient(left, right)
	if kind == Field {
		return processor.ProcessFieldMapping(lineNumber, className, memberName, newMemberName)
	}
	return processor.ProcessMethodMapping(lineNumber, className, memberName, arguments, newMemberName)
}

func (r *MappingReader) orient(left string, right string) (string, string) {
	if r.readableFirst {
		return right, left
	}
	return left, right
}

func (r *MappingReader) formatError(lineNumber int, line string, reason string) error {
	return &MapFormatError{Path: r.path, Line: lineNumber, Text: line, Reason: reason}
}

func (r *MappingReader) attribute(err error) error {
	switch e := err.(type) {
	case *MapFormatError:
		if e.Path == "" {
			e.Path = r.path
		}
	case *DuplicateMappingError:
		if e.Path == "" {
			e.Path = r.path
		}
	}
	return err
}
