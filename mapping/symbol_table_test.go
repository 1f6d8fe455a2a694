package mapping

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSymbolTableUnmap(t *testing.T) {
	table := mustLoad(t, `a -> com.example.Thing:
    field a -> count
    method b -> run
b -> com.example.Other:
    method b -> run
`)

	name, ok, err := table.Unmap(Class, "", "com.example.Thing")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "a", name)

	// Same readable member name on two owners is not ambiguous.
	name, ok, err = table.Unmap(Method, "b", "run")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "b", name)

	_, ok, err = table.Unmap(Field, "a", "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.True(t, table.Has(Field, "a", "count"))
	assert.Empty(t, table.ReverseConflicts())
}

func TestSymbolTableAmbiguousUnmap(t *testing.T) {
	table := mustLoad(t, `a -> Thing:
    method a -> run
    method b -> run
c -> Thing:
`)

	_, _, err := table.Unmap(Method, "a", "run")
	var ambiguousErr *AmbiguousMappingError
	require.True(t, errors.As(err, &ambiguousErr))
	assert.Equal(t, []string{"a", "b"}, ambiguousErr.Candidates)

	conflicts := table.ReverseConflicts()
	require.Len(t, conflicts, 2)
	assert.Equal(t, Class, conflicts[0].Kind)
	assert.Equal(t, "Thing", conflicts[0].Readable)
	assert.Equal(t, []string{"a", "c"}, conflicts[0].Candidates)
	assert.Equal(t, Method, conflicts[1].Kind)
}

func TestSymbolTableKeysAreOrdered(t *testing.T) {
	table := mustLoad(t, `b -> B:
    method z -> Z
    field y -> Y
a -> A:
    method x -> X
`)

	expected := []Key{
		ClassKey("a"),
		ClassKey("b"),
		MemberKey(Method, "a", "x"),
		MemberKey(Method, "b", "z"),
		MemberKey(Field, "b", "y"),
	}
	assert.Equal(t, expected, table.Keys())
}

func TestWriteToRoundTrip(t *testing.T) {
	table := mustLoad(t, `b -> B:
    method z(int) -> Z
    field y -> Y
a:
    method x -> X
`)

	var buffer bytes.Buffer
	require.NoError(t, WriteTo(&buffer, table))

	expected := `a:
    method x -> X
b -> B:
    method z(int) -> Z
    field y -> Y
`
	assert.Equal(t, expected, buffer.String())

	reread := mustLoad(t, buffer.String())
	assert.True(t, table.Equal(reread))
}

func TestWriteToReadableFirst(t *testing.T) {
	table := mustLoad(t, `b -> B:
    method z(int) -> Z
a:
    field x -> X
`)

	var buffer bytes.Buffer
	require.NoError(t, WriteTo(&buffer, table, WriteReadableFirst()))

	expected := `a:
    field X -> x
B -> b:
    method Z(int) -> z
`
	assert.Equal(t, expected, buffer.String())

	reread, err := Load(strings.NewReader(buffer.String()), ReadableFirst())
	require.NoError(t, err)
	assert.True(t, table.Equal(reread))
	entry, ok := reread.Lookup(MemberKey(Method, "b", "z"))
	require.True(t, ok)
	assert.Equal(t, "int", entry.Args)
}

func TestWriteToGroupsManyOwners(t *testing.T) {
	builder := NewBuilder()
	for i := 0; i < 200; i++ {
		owner := fmt.Sprintf("p.C%03d", i)
		if i%2 == 0 {
			require.NoError(t, builder.Add(ClassKey(owner), owner+"R", 0))
		}
		require.NoError(t, builder.Add(MemberKey(Field, owner, "f"), "g", 0))
		require.NoError(t, builder.Add(MemberKey(Method, owner, "m"), "n", 0))
	}
	table := builder.Build()

	var buffer bytes.Buffer
	require.NoError(t, WriteTo(&buffer, table))
	assert.Equal(t, 200, strings.Count(buffer.String(), ":\n"))
	assert.True(t, strings.HasPrefix(buffer.String(), "p.C000 -> p.C000R:\n    method m -> n\n    field f -> g\np.C001:\n"))

	reread := mustLoad(t, buffer.String())
	assert.True(t, table.Equal(reread))
}

func TestBuilderIsFrozenByBuild(t *testing.T) {
	builder := NewBuilder()
	require.NoError(t, builder.Add(ClassKey("a"), "A", 1))
	require.NoError(t, builder.Add(ClassKey("a"), "A", 2))
	assert.Equal(t, 1, builder.Len())

	table := builder.Build()
	assert.Equal(t, 1, table.Len())
	assert.Equal(t, "A", table.MapClass("a"))
	assert.Equal(t, "unmapped", table.MapClass("unmapped"))
}
