package hint

import (
	"fmt"
	"strings"

	"github.com/apex/log"
	"github.com/emirpasic/gods/sets/hashset"
	"github.com/emirpasic/gods/stacks/arraystack"

	"github.com/swind/go-dexmap/unit"
)

// Type is one node of the hierarchy: a class with its direct supertypes.
type Type struct {
	Name       string
	Super      string
	Interfaces []string
}

func (t Type) parents() []string {
	var parents []string
	if t.Super != "" {
		parents = append(parents, t.Super)
	}
	return append(parents, t.Interfaces...)
}

type Hierarchy struct {
	types map[string]Type
}

func NewHierarchy() *Hierarchy {
	return &Hierarchy{types: make(map[string]Type)}
}

// FromUnit builds the hierarchy of every class declared in u.
func FromUnit(u *unit.Unit) *Hierarchy {
	h := NewHierarchy()
	for _, class := range u.Classes {
		h.Add(Type{Name: class.Name, Super: class.Super, Interfaces: class.Interfaces})
	}
	return h
}

func (h *Hierarchy) Add(t Type) {
	h.types[t.Name] = t
}

func (h *Hierarchy) Lookup(name string) (Type, bool) {
	t, ok := h.types[name]
	return t, ok
}

func (h *Hierarchy) Len() int {
	return len(h.types)
}

type HierarchyCycleError struct {
	Cycle []string
}

func (e *HierarchyCycleError) Error() string {
	return fmt.Sprintf("class hierarchy cycle: %s", strings.Join(e.Cycle, " -> "))
}

// Matcher propagates obfuscation hints from supertypes to subtypes. A class
// is obfuscated when its own name matches, or when any superclass or
// implemented interface is, transitively. Lexical nesting does not count.
// Results are memoized, so a Matcher must not be shared between goroutines.
type Matcher struct {
	hierarchy *Hierarchy
	patterns  Patterns
	memo      map[string]bool
}

func NewMatcher(hierarchy *Hierarchy, patterns Patterns) *Matcher {
	if hierarchy == nil {
		hierarchy = NewHierarchy()
	}
	return &Matcher{
		hierarchy: hierarchy,
		patterns:  patterns,
		memo:      make(map[string]bool),
	}
}

func (m *Matcher) IsObfuscatedClass(name string) (bool, error) {
	return m.visit(name, hashset.New(), arraystack.New())
}

// IsObfuscatedMember reports whether the member name matches, or its
// declaring class is obfuscated.
func (m *Matcher) IsObfuscatedMember(owner string, name string) (bool, error) {
	if Classify(name, false, m.patterns) {
		return true, nil
	}
	return m.IsObfuscatedClass(owner)
}

func (m *Matcher) visit(name string, inProgress *hashset.Set, path *arraystack.Stack) (bool, error) {
	if result, ok := m.memo[name]; ok {
		return result, nil
	}
	if inProgress.Contains(name) {
		return false, &HierarchyCycleError{Cycle: cycleOf(path, name)}
	}

	obfuscated := Classify(name, true, m.patterns)
	t, ok := m.hierarchy.Lookup(name)
	if !ok {
		m.memo[name] = obfuscated
		return obfuscated, nil
	}

	inProgress.Add(name)
	path.Push(name)
	for _, parent := range t.parents() {
		inherited, err := m.visit(parent, inProgress, path)
		if err != nil {
			return false, err
		}
		if inherited && !obfuscated {
			log.WithFields(log.Fields{"class": name, "from": parent}).Debug("obfuscation hint inherited")
		}
		obfuscated = obfuscated || inherited
	}
	path.Pop()
	inProgress.Remove(name)

	m.memo[name] = obfuscated
	return obfuscated, nil
}

// cycleOf returns the path from the first visit of name back to name.
func cycleOf(path *arraystack.Stack, name string) []string {
	// Values are top of stack first.
	values := path.Values()
	cycle := []string{name}
	for _, value := range values {
		cycle = append(cycle, value.(string))
		if value == name {
			break
		}
	}
	for i, j := 0, len(cycle)-1; i < j; i, j = i+1, j-1 {
		cycle[i], cycle[j] = cycle[j], cycle[i]
	}
	return cycle
}
