package anon

import (
	"errors"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swind/go-dexmap/unit"
)

const outer = "test.Main$AnonymousClasses"

func anonymousClasses() *unit.Unit {
	return &unit.Unit{
		Name: "test.Main",
		Classes: []*unit.Class{
			{Name: outer},
			{Name: outer + "$1", Super: "java.lang.Object", Interfaces: []string{"java.lang.Runnable"}},
			{Name: outer + "$1$1", Interfaces: []string{"java.lang.Runnable"}},
			{Name: outer + "$1$1$Inner"},
			{Name: outer + "$Anon1"},
			{Name: outer + "$Anon1$Anon1_Level2"},
			{Name: outer + "$Anon1$1"},
			{Name: outer + "$Extended", Super: outer + "$1"},
		},
	}
}

func sortedNames(u *unit.Unit) []string {
	names := u.ClassNames()
	sort.Strings(names)
	return names
}

func TestDeanonymize(t *testing.T) {
	u := anonymousClasses()
	r := NewResolver()

	renames, err := r.Deanonymize(u)
	require.NoError(t, err)
	assert.Equal(t, Done, r.State())

	assert.Equal(t, []string{
		outer,
		outer + "$Anon1",
		outer + "$Anon1$Anon1_Level2",
		outer + "$Anon1$Anon1_Level2$Inner",
		outer + "$Anon1_Displaced1",
		outer + "$Anon1_Displaced1$Anon1_Level2",
		outer + "$Anon1_Displaced1$Anon1",
		outer + "$Extended",
	}, u.ClassNames())
	assert.Equal(t, outer+"$Anon1", u.Find(outer+"$Extended").Super)
	assert.Equal(t, outer+"$Anon1_Displaced1$Anon1", renames[outer+"$Anon1$1"])
	assert.NotContains(t, renames, outer)

	descriptors := r.Descriptors()
	require.Len(t, descriptors, 4)
	assert.Equal(t, Descriptor{
		Owner:    outer,
		Level:    1,
		Ordinal:  1,
		Original: outer + "$1",
		Assigned: outer + "$Anon1",
		Position: 1,
	}, descriptors[0])
	assert.Equal(t, Descriptor{
		Owner:    outer + "$1",
		Level:    2,
		Ordinal:  1,
		Original: outer + "$1$1",
		Assigned: outer + "$Anon1$Anon1_Level2",
		Position: 2,
	}, descriptors[1])
	assert.True(t, descriptors[2].Displaced)
	assert.Equal(t, outer+"$Anon1", descriptors[2].Original)
	assert.Equal(t, outer+"$Anon1_Displaced1", descriptors[2].Assigned)
	assert.Equal(t, 1, descriptors[3].Level)
	assert.Equal(t, outer+"$Anon1_Displaced1$Anon1", descriptors[3].Assigned)
}

func TestRoundTrip(t *testing.T) {
	u := anonymousClasses()
	original := u.Clone()
	r := NewResolver()

	_, err := r.Deanonymize(u)
	require.NoError(t, err)

	restored, err := r.Reanonymize(u)
	require.NoError(t, err)
	assert.Equal(t, original, u)
	assert.Equal(t, outer+"$1$1$Inner", restored[outer+"$Anon1$Anon1_Level2$Inner"])
	assert.Empty(t, r.Descriptors())

	_, err = r.Reanonymize(u)
	assert.ErrorIs(t, err, ErrNoDescriptors)

	_, err = r.Deanonymize(u)
	assert.NoError(t, err)
}

func TestPlanWithoutLevels(t *testing.T) {
	u := anonymousClasses()
	plan, err := ParsePlan("Synthetic")
	require.NoError(t, err)

	r := NewResolver(WithPlan(plan))
	_, err = r.Deanonymize(u)
	require.NoError(t, err)
	assert.Contains(t, u.ClassNames(), outer+"$Synthetic1$Synthetic1")
	assert.Contains(t, u.ClassNames(), outer+"$Anon1")
}

func TestDisplacementPicksFreeSuffix(t *testing.T) {
	u := &unit.Unit{Classes: []*unit.Class{
		{Name: "a.Outer$Anon2_Displaced1"},
		{Name: "a.Outer$Anon2"},
		{Name: "a.Outer$2"},
	}}
	_, err := NewResolver().Deanonymize(u)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.Outer$Anon2_Displaced1", "a.Outer$Anon2_Displaced2", "a.Outer$Anon2"}, u.ClassNames())
}

func TestReservedCollision(t *testing.T) {
	u := anonymousClasses()
	original := u.Clone()
	r := NewResolver(WithReserved(func(name string) bool {
		return name == outer+"$Anon1$Anon1_Level2"
	}))

	_, err := r.Deanonymize(u)
	var collisionErr *CollisionError
	require.True(t, errors.As(err, &collisionErr), "got %v", err)
	assert.Equal(t, outer+"$1$1", collisionErr.Original)
	assert.Equal(t, original, u)
	assert.Equal(t, Idle, r.State())
}

func TestStaleDescriptors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(u *unit.Unit)
	}{
		{"class added", func(u *unit.Unit) {
			u.Classes = append(u.Classes, &unit.Class{Name: outer + "$Anon1$Late"})
		}},
		{"anonymous class renamed", func(u *unit.Unit) {
			u.RenameClasses(map[string]string{outer + "$Anon1$Anon1_Level2": outer + "$Anon1$Renamed"})
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := anonymousClasses()
			r := NewResolver()
			_, err := r.Deanonymize(u)
			require.NoError(t, err)

			tt.mutate(u)
			before := u.Clone()

			_, err = r.Reanonymize(u)
			var staleErr *StaleDescriptorError
			require.True(t, errors.As(err, &staleErr), "got %v", err)
			assert.Equal(t, before, u)
			assert.Len(t, r.Descriptors(), 4)

			r.Abandon()
			assert.Equal(t, Idle, r.State())
			assert.Empty(t, r.Descriptors())
		})
	}
}

func TestStateErrors(t *testing.T) {
	u := anonymousClasses()
	r := NewResolver()

	_, err := r.Reanonymize(u)
	assert.ErrorIs(t, err, ErrNoDescriptors)

	_, err = r.Deanonymize(u)
	require.NoError(t, err)
	_, err = r.Deanonymize(u)
	assert.ErrorIs(t, err, ErrWrongState)
}

func TestParsePlan(t *testing.T) {
	plan, err := ParsePlan(DefaultPlan)
	require.NoError(t, err)
	assert.Equal(t, Plan{Prefix: "Anon", LevelInfix: "_Level"}, plan)
	assert.Equal(t, "Anon3", plan.Name(3, 1))
	assert.Equal(t, "Anon3_Level2", plan.Name(3, 2))
	assert.Equal(t, DefaultPlan, plan.String())

	for _, invalid := range []string{"", "[_Level]", "Anon[_Level", "Anon_Level]", "Anon[a][b]", "1Anon"} {
		_, err := ParsePlan(invalid)
		assert.Error(t, err, invalid)
	}
}
