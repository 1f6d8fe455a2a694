package mapping

// MappingProcessor receives the mappings read from a map file, already
// oriented so that the first name is always the obfuscated one.
type MappingProcessor interface {
	// ProcessClassMapping processes a class header.
	//
	// Parameters:
	//    line         the map-file line number.
	//    className    the obfuscated class name.
	//    newClassName the readable class name.
	//
	// Return:
	//    whether the processor is interested in receiving the member
	//    mappings of this class.
	ProcessClassMapping(line int, className string, newClassName string) (bool, error)

	// ProcessFieldMapping processes a field mapping of the current class.
	ProcessFieldMapping(line int, className string, fieldName string, newFieldName string) error

	// ProcessMethodMapping processes a method mapping of the current class.
	// arguments is the argument list as written, without parentheses, or
	// empty when the map file gives none.
	ProcessMethodMapping(line int, className string, methodName string, arguments string, newMethodName string) error
}

// TableBuilder is a MappingProcessor that collects every mapping into a
// SymbolTable.
type TableBuilder struct {
	builder *Builder
}

func NewTableBuilder() *TableBuilder {
	return &TableBuilder{builder: NewBuilder()}
}

func (tb *TableBuilder) ProcessClassMapping(line int, className string, newClassName string) (bool, error) {
	// A header without a rename only opens a member section.
	if className == newClassName {
		return true, nil
	}
	if err := tb.builder.Add(ClassKey(className), newClassName, line); err != nil {
		return false, err
	}
	return true, nil
}

func (tb *TableBuilder) ProcessFieldMapping(line int, className string, fieldName string, newFieldName string) error {
	return tb.builder.Add(MemberKey(Field, className, fieldName), newFieldName, line)
}

func (tb *TableBuilder) ProcessMethodMapping(line int, className string, methodName string, arguments string, newMethodName string) error {
	return tb.builder.AddEntry(MemberKey(Method, className, methodName), Entry{
		Readable: newMethodName,
		Args:     arguments,
		Line:     line,
	})
}

// Table freezes the collected mappings.
func (tb *TableBuilder) Table() *SymbolTable {
	return tb.builder.Build()
}
