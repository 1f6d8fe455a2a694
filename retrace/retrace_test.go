package retrace

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swind/go-dexmap/mapping"
	"github.com/swind/go-dexmap/resolver"
)

const fooMap = `a.a -> com.example.Foo:
    method b -> bar
    field c -> count
a.b -> com.example.FooException:
`

func newRetracer(t *testing.T, opts ...Option) *Retracer {
	t.Helper()
	table, err := mapping.Load(strings.NewReader(fooMap))
	require.NoError(t, err)
	r, err := resolver.New(resolver.Options{Table: table}, nil)
	require.NoError(t, err)
	return New(r, opts...)
}

func TestRetrace(t *testing.T) {
	input := strings.Join([]string{
		`Exception in thread "main" a.b: boom`,
		"\tat a.a.b(SourceFile:12)",
		"\tat java.lang.Thread.run(Thread.java:764)",
		"java.lang.NullPointerException: Attempt to read from field 'int a.a.c' on a null object reference",
		"java.lang.ClassCastException: a.a cannot be cast to java.lang.String",
		`java.lang.NullPointerException: Cannot invoke "a.a.b(int)" because the return value of "a.a.b()" is null`,
		"plain text",
	}, "\n") + "\n"

	expected := strings.Join([]string{
		`Exception in thread "main" com.example.FooException: boom`,
		"\tat com.example.Foo.bar(Foo.java:12)",
		"\tat java.lang.Thread.run(Thread.java:764)",
		"java.lang.NullPointerException: Attempt to read from field 'int com.example.Foo.count' on a null object reference",
		"java.lang.ClassCastException: com.example.Foo cannot be cast to java.lang.String",
		`java.lang.NullPointerException: Cannot invoke "com.example.Foo.bar(int)" because the return value of "com.example.Foo.bar()" is null`,
		"plain text",
	}, "\n") + "\n"

	r := newRetracer(t)
	var output bytes.Buffer
	require.NoError(t, r.Retrace(strings.NewReader(input), &output))
	assert.Equal(t, expected, output.String())
	assert.Equal(t, []string{"java.lang.Thread"}, r.Unresolved())
}

func TestRetraceAllClassNames(t *testing.T) {
	line := "Caused by a.a while loading a.b, see (x)"

	plain, err := newRetracer(t).RetraceLine(line)
	require.NoError(t, err)
	assert.Equal(t, line, plain)

	all, err := newRetracer(t, AllClassNames()).RetraceLine(line)
	require.NoError(t, err)
	assert.Equal(t, "Caused by com.example.Foo while loading com.example.FooException, see (x)", all)
}

func TestFramePattern(t *testing.T) {
	pattern := MustFramePattern(`%C\.%m\(%s:%l\) %t %a`)
	line := "a/a.b(Foo.java:7) int[] a.a,int"

	frame, ok := pattern.Parse(line)
	require.True(t, ok)
	assert.Equal(t, FrameInfo{
		ClassName:  "a.a",
		SourceFile: "Foo.java",
		LineNumber: 7,
		Type:       "int[]",
		MethodName: "b",
		Arguments:  "a.a,int",
	}, frame)

	frame.ClassName = "com.example.Foo"
	frame.MethodName = "bar"
	assert.Equal(t, "com/example/Foo.bar(Foo.java:7) int[] a.a,int", pattern.Format(line, frame))

	_, ok = pattern.Parse("no frame here")
	assert.False(t, ok)
	assert.Equal(t, "no frame here", pattern.Format("no frame here", frame))

	_, err := NewFramePattern(`%c(`)
	assert.Error(t, err)
}

func TestFrameRemapperTypes(t *testing.T) {
	table, err := mapping.Load(strings.NewReader(fooMap))
	require.NoError(t, err)
	r, err := resolver.New(resolver.Options{Table: table}, nil)
	require.NoError(t, err)

	remapper := NewFrameRemapper(r)
	frame, err := remapper.Transform(FrameInfo{
		ClassName:  "a.a",
		MethodName: "b",
		Type:       "a.b[][]",
		Arguments:  "int, a.a[],java.lang.String",
	})
	require.NoError(t, err)
	assert.Equal(t, "com.example.Foo", frame.ClassName)
	assert.Equal(t, "bar", frame.MethodName)
	assert.Equal(t, "com.example.FooException[][]", frame.Type)
	assert.Equal(t, "int,com.example.Foo[],java.lang.String", frame.Arguments)
	assert.Equal(t, []string{"java.lang.String"}, remapper.Unresolved())
}
