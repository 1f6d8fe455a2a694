package resolver

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swind/go-dexmap/encoder"
	"github.com/swind/go-dexmap/hint"
	"github.com/swind/go-dexmap/mapping"
	"github.com/swind/go-dexmap/unit"
)

const obfuscatedThingMap = `test.Main$a -> test.Main$ObfuscatedThing:
    field a -> obfuscatedField
    method b -> obfuscatedMethod
`

func loadTable(t *testing.T, text string) *mapping.SymbolTable {
	t.Helper()
	table, err := mapping.Load(strings.NewReader(text))
	require.NoError(t, err)
	return table
}

func testUnit() *unit.Unit {
	return &unit.Unit{
		Name: "test.Main",
		Classes: []*unit.Class{
			{
				Name:    "test.Main$a",
				Fields:  []unit.Member{{Name: "a"}},
				Methods: []unit.Member{{Name: "b"}, {Name: "print"}},
			},
			{Name: "test.Main$HintOnParentOBF"},
			{
				Name:    "test.Main$Child",
				Super:   "test.Main$HintOnParentOBF",
				Methods: []unit.Member{{Name: "ñandú"}},
			},
			{
				Name:    "test.Main$Plain",
				Methods: []unit.Member{{Name: "ñandú"}, {Name: "illegal-name"}},
			},
			{Name: "test.Main$AnonymousClasses"},
			{Name: "test.Main$AnonymousClasses$1", Interfaces: []string{"java.lang.Runnable"}},
			{Name: "test.Main$AnonymousClasses$1$1", Super: "test.Main$a"},
		},
	}
}

func testOptions(t *testing.T) Options {
	t.Helper()
	patterns, err := hint.Compile(".*OBF", "")
	require.NoError(t, err)
	rule := encoder.DefaultRule()
	rule.EscapeNonASCII = true
	return Options{
		Table:                   loadTable(t, obfuscatedThingMap),
		Encode:                  true,
		Rule:                    rule,
		Patterns:                patterns,
		EncodeObfuscatedClasses: true,
		EncodeObfuscatedMembers: true,
	}
}

func TestResolveDisplay(t *testing.T) {
	u := testUnit()
	r, err := New(testOptions(t), hint.FromUnit(u))
	require.NoError(t, err)

	tests := []struct {
		kind     mapping.Kind
		owner    string
		real     string
		expected string
	}{
		{mapping.Class, "", "test.Main$a", "test.Main$ObfuscatedThing"},
		{mapping.Field, "test.Main$a", "a", "obfuscatedField"},
		{mapping.Method, "test.Main$a", "b", "obfuscatedMethod"},
		{mapping.Method, "test.Main$a", "print", "print"},
		{mapping.Method, "test.Main$Child", "ñandú", "$$u00f1and$$u00fa"},
		{mapping.Method, "test.Main$Plain", "ñandú", "ñandú"},
		{mapping.Method, "test.Main$Plain", "illegal-name", "illegal$$_dname"},
		{mapping.Class, "", "lib.Unknown", "lib.Unknown"},
	}
	for _, tt := range tests {
		display, err := r.ResolveDisplay(tt.kind, tt.owner, tt.real)
		require.NoError(t, err)
		assert.Equal(t, tt.expected, display, "%s %s.%s", tt.kind, tt.owner, tt.real)

		real, err := r.ResolveReal(tt.kind, tt.owner, display)
		require.NoError(t, err)
		assert.Equal(t, tt.real, real)
	}
}

func TestEncodeSelection(t *testing.T) {
	rule := encoder.DefaultRule()
	rule.EscapeNonASCII = true
	patterns, err := hint.Compile(".*OBF", "")
	require.NoError(t, err)
	// Only the obfuscated side of an encode map counts.
	encodeMap := loadTable(t, `test.Main$Plain:
    method ñandú -> unused
lib.Ñandú -> lib.Unused:
`)

	type element struct {
		kind  mapping.Kind
		owner string
		real  string
	}
	plainMethod := element{mapping.Method, "test.Main$Plain", "ñandú"}
	childMethod := element{mapping.Method, "test.Main$Child", "ñandú"}
	listedClass := element{mapping.Class, "", "lib.Ñandú"}
	flaggedClass := element{mapping.Class, "", "lib.ÑandúOBF"}

	tests := []struct {
		name     string
		options  Options
		expected map[element]string
	}{
		{
			name:    "nothing selected",
			options: Options{Encode: true, Rule: rule},
			expected: map[element]string{
				plainMethod:  "$$u00f1and$$u00fa",
				childMethod:  "$$u00f1and$$u00fa",
				flaggedClass: "lib.$$u00d1and$$u00faOBF",
			},
		},
		{
			name:    "patterns without toggles",
			options: Options{Encode: true, Rule: rule, Patterns: patterns, EncodeMap: encodeMap},
			expected: map[element]string{
				plainMethod:  "$$u00f1and$$u00fa",
				childMethod:  "ñandú",
				listedClass:  "lib.$$u00d1and$$u00fa",
				flaggedClass: "lib.ÑandúOBF",
			},
		},
		{
			name:    "members only",
			options: Options{Encode: true, Rule: rule, Patterns: patterns, EncodeObfuscatedMembers: true},
			expected: map[element]string{
				plainMethod:  "ñandú",
				childMethod:  "$$u00f1and$$u00fa",
				flaggedClass: "lib.ÑandúOBF",
			},
		},
		{
			name:    "classes only",
			options: Options{Encode: true, Rule: rule, Patterns: patterns, EncodeObfuscatedClasses: true},
			expected: map[element]string{
				childMethod:  "ñandú",
				listedClass:  "lib.Ñandú",
				flaggedClass: "lib.$$u00d1and$$u00faOBF",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := New(tt.options, hint.FromUnit(testUnit()))
			require.NoError(t, err)
			for e, expected := range tt.expected {
				display, err := r.ResolveDisplay(e.kind, e.owner, e.real)
				require.NoError(t, err)
				assert.Equal(t, expected, display, "%s %s.%s", e.kind, e.owner, e.real)

				real, err := r.ResolveReal(e.kind, e.owner, display)
				require.NoError(t, err)
				assert.Equal(t, e.real, real)
			}
		})
	}
}

func TestResolveRealUnknownSymbol(t *testing.T) {
	r, err := New(testOptions(t), hint.FromUnit(testUnit()))
	require.NoError(t, err)

	var unknownErr *UnknownSymbolError

	_, err = r.ResolveReal(mapping.Class, "", "test.Main$a")
	require.True(t, errors.As(err, &unknownErr), "got %v", err)
	assert.Equal(t, mapping.Class, unknownErr.Kind)

	_, err = r.ResolveReal(mapping.Field, "test.Main$a", "a")
	require.True(t, errors.As(err, &unknownErr), "got %v", err)
	assert.Equal(t, "test.Main$a", unknownErr.Owner)

	var decodeErr *encoder.DecodeError
	_, err = r.ResolveReal(mapping.Method, "test.Main$a", "broken$$x")
	assert.True(t, errors.As(err, &decodeErr), "got %v", err)
}

func TestResolveRealRequiresDisplayName(t *testing.T) {
	r, err := New(testOptions(t), hint.FromUnit(testUnit()))
	require.NoError(t, err)

	var unknownErr *UnknownSymbolError
	_, err = r.ResolveReal(mapping.Method, "test.Main$Child", "ñandú")
	require.True(t, errors.As(err, &unknownErr), "got %v", err)
	assert.Equal(t, "test.Main$Child", unknownErr.Owner)

	_, err = r.ResolveReal(mapping.Method, "test.Main$Plain", "illegal-name")
	assert.True(t, errors.As(err, &unknownErr), "got %v", err)

	real, err := r.ResolveReal(mapping.Method, "test.Main$Child", "$$u00f1and$$u00fa")
	require.NoError(t, err)
	assert.Equal(t, "ñandú", real)
}

func TestResolveRealRegisteredUnit(t *testing.T) {
	u := testUnit()
	r, err := New(testOptions(t), hint.FromUnit(u))
	require.NoError(t, err)
	require.NoError(t, r.RegisterUnit(u))

	var unknownErr *UnknownSymbolError
	for _, tt := range []struct {
		kind    mapping.Kind
		owner   string
		display string
	}{
		{mapping.Field, "test.Main$Plain", "doesNotExist"},
		{mapping.Method, "test.Main$a", "doesNotExist"},
		{mapping.Method, "test.Main$Child", "ñandú"},
		{mapping.Class, "", "test.Main$Missing"},
		{mapping.Class, "", "test.Such$Class"},
	} {
		_, err := r.ResolveReal(tt.kind, tt.owner, tt.display)
		assert.True(t, errors.As(err, &unknownErr), "%s %s.%s: got %v", tt.kind, tt.owner, tt.display, err)
	}

	tests := []struct {
		kind     mapping.Kind
		owner    string
		display  string
		expected string
	}{
		{mapping.Method, "test.Main$a", "print", "print"},
		{mapping.Field, "test.Main$a", "obfuscatedField", "a"},
		{mapping.Method, "test.Main$Plain", "illegal$$_dname", "illegal-name"},
		{mapping.Class, "", "test.Main$ObfuscatedThing", "test.Main$a"},
		{mapping.Class, "", "java.lang.Runnable", "java.lang.Runnable"},
		{mapping.Class, "", "java.lang.String", "java.lang.String"},
		{mapping.Method, "java.lang.String", "length", "length"},
	}
	for _, tt := range tests {
		real, err := r.ResolveReal(tt.kind, tt.owner, tt.display)
		require.NoError(t, err)
		assert.Equal(t, tt.expected, real)
	}
}

func TestUnmapOutputKeepsIntroducedNames(t *testing.T) {
	u := testUnit()
	session := NewSession(SessionOptions{Options: testOptions(t)})
	require.NoError(t, session.MapSource(u))

	plain := u.Find("test.Main$Plain")
	plain.Fields = append(plain.Fields, unit.Member{Name: "added"})
	u.Classes = append(u.Classes, &unit.Class{Name: "test.Main$Patch", Super: "test.Main$ObfuscatedThing"})

	require.NoError(t, session.UnmapOutput(u))
	assert.Equal(t, "added", u.Find("test.Main$Plain").Fields[0].Name)
	patch := u.Find("test.Main$Patch")
	require.NotNil(t, patch)
	assert.Equal(t, "test.Main$a", patch.Super)
}

func TestResolveRealAmbiguous(t *testing.T) {
	table := loadTable(t, `a -> Thing:
    method a -> run
    method b -> run
`)
	r, err := New(Options{Table: table}, nil)
	require.NoError(t, err)

	_, err = r.ResolveReal(mapping.Method, "a", "run")
	var ambiguousErr *mapping.AmbiguousMappingError
	require.True(t, errors.As(err, &ambiguousErr), "got %v", err)
	assert.Equal(t, []string{"a", "b"}, ambiguousErr.Candidates)
}

func TestIsFlaggedObfuscated(t *testing.T) {
	r, err := New(testOptions(t), hint.FromUnit(testUnit()))
	require.NoError(t, err)

	flagged, err := r.IsFlaggedObfuscated(mapping.Class, "test.Main$Child")
	require.NoError(t, err)
	assert.True(t, flagged)

	flagged, err = r.IsFlaggedObfuscated(mapping.Method, "test.Main$Child.run")
	require.NoError(t, err)
	assert.True(t, flagged)

	flagged, err = r.IsFlaggedObfuscated(mapping.Field, "test.Main$Plain.value")
	require.NoError(t, err)
	assert.False(t, flagged)

	_, err = r.IsFlaggedObfuscated(mapping.Field, "value")
	var unknownErr *UnknownSymbolError
	assert.True(t, errors.As(err, &unknownErr))
}

func TestEncodingCollision(t *testing.T) {
	options := testOptions(t)
	options.Table = loadTable(t, "test.Main$a -> test.Main$Plain:\n")

	r, err := New(options, hint.FromUnit(testUnit()))
	require.NoError(t, err)

	err = r.RegisterUnit(testUnit())
	var collisionErr *encoder.EncodingCollisionError
	require.True(t, errors.As(err, &collisionErr), "got %v", err)
	assert.Equal(t, "test.Main$Plain", collisionErr.Encoded)
	assert.Equal(t, "test.Main$a", collisionErr.First)
	assert.Equal(t, "test.Main$Plain", collisionErr.Second)
}

func TestSessionRoundTrip(t *testing.T) {
	u := testUnit()
	original := u.Clone()

	session := NewSession(SessionOptions{Options: testOptions(t), Deanonymize: true})
	require.NoError(t, session.MapSource(u))

	assert.Equal(t, []string{
		"test.Main$ObfuscatedThing",
		"test.Main$HintOnParentOBF",
		"test.Main$Child",
		"test.Main$Plain",
		"test.Main$AnonymousClasses",
		"test.Main$AnonymousClasses$Anon1",
		"test.Main$AnonymousClasses$Anon1$Anon1_Level2",
	}, u.ClassNames())

	thing := u.Find("test.Main$ObfuscatedThing")
	require.NotNil(t, thing)
	assert.Equal(t, "obfuscatedField", thing.Fields[0].Name)
	assert.Equal(t, "obfuscatedMethod", thing.Methods[0].Name)
	assert.Equal(t, "$$u00f1and$$u00fa", u.Find("test.Main$Child").Methods[0].Name)
	assert.Equal(t, "test.Main$ObfuscatedThing", u.Find("test.Main$AnonymousClasses$Anon1$Anon1_Level2").Super)

	require.NoError(t, session.UnmapOutput(u))
	assert.Equal(t, original, u)
}

func TestUnmapOutputWithoutMapSource(t *testing.T) {
	u := &unit.Unit{Classes: []*unit.Class{
		{Name: "test.Main$ObfuscatedThing", Fields: []unit.Member{{Name: "obfuscatedField"}}},
	}}
	session := NewSession(SessionOptions{Options: Options{Table: loadTable(t, obfuscatedThingMap)}})
	require.NoError(t, session.UnmapOutput(u))
	assert.Equal(t, "test.Main$a", u.Classes[0].Name)
	assert.Equal(t, "a", u.Classes[0].Fields[0].Name)

	anonymous := NewSession(SessionOptions{Deanonymize: true})
	assert.Error(t, anonymous.UnmapOutput(u))
}

func TestProcessUnits(t *testing.T) {
	units := []*unit.Unit{testUnit(), testUnit(), testUnit()}
	options := testOptions(t)

	var processed atomic.Int32
	err := ProcessUnits(context.Background(), units, func(ctx context.Context, u *unit.Unit) error {
		processed.Add(1)
		return NewSession(SessionOptions{Options: options, Deanonymize: true}).MapSource(u)
	})
	require.NoError(t, err)
	assert.Equal(t, int32(3), processed.Load())
	for _, u := range units {
		assert.Equal(t, "test.Main$ObfuscatedThing", u.Classes[0].Name)
	}

	failure := errors.New("stop")
	err = ProcessUnits(context.Background(), units, func(ctx context.Context, u *unit.Unit) error {
		return failure
	})
	assert.ErrorIs(t, err, failure)
}
