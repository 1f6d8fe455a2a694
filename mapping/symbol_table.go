package mapping

import (
	"sort"
	"strings"

	"github.com/emirpasic/gods/maps/treemap"
)

// Kind is the declared element kind a mapping applies to.
type Kind int

const (
	Class Kind = iota
	Method
	Field
)

func (k Kind) String() string {
	switch k {
	case Class:
		return "class"
	case Method:
		return "method"
	case Field:
		return "field"
	}
	return "unknown"
}

// ParseKind returns the kind named by a map-file marker.
func ParseKind(marker string) (Kind, bool) {
	switch marker {
	case "class":
		return Class, true
	case "method":
		return Method, true
	case "field":
		return Field, true
	}
	return Class, false
}

// Key identifies one mappable element. Classes have an empty Owner and a
// fully qualified Name; members carry their obfuscated owner class path.
type Key struct {
	Kind  Kind
	Owner string
	Name  string
}

func ClassKey(name string) Key {
	return Key{Kind: Class, Name: name}
}

func MemberKey(kind Kind, owner string, name string) Key {
	return Key{Kind: kind, Owner: owner, Name: name}
}

func (k Key) String() string {
	if k.Kind == Class {
		return "class " + k.Name
	}
	return k.Kind.String() + " " + k.Owner + "." + k.Name
}

func keyComparator(a, b interface{}) int {
	k1 := a.(Key)
	k2 := b.(Key)
	switch {
	case k1.Owner != k2.Owner:
		return strings.Compare(k1.Owner, k2.Owner)
	case k1.Kind != k2.Kind:
		return int(k1.Kind) - int(k2.Kind)
	default:
		return strings.Compare(k1.Name, k2.Name)
	}
}

// Entry is the readable side of a mapping plus where it came from.
type Entry struct {
	Readable string
	// Args is the method argument list as written in the map file, if any.
	Args string
	Line int
}

// SymbolTable maps obfuscated elements to readable names. A table is
// immutable once built and may be shared by any number of readers.
type SymbolTable struct {
	entries *treemap.Map
	forward map[Key]Entry
	reverse map[Key][]Key
}

func newSymbolTable(forward map[Key]Entry) *SymbolTable {
	table := SymbolTable{
		entries: treemap.NewWith(keyComparator),
		forward: forward,
		reverse: make(map[Key][]Key),
	}

	for key, entry := range forward {
		table.entries.Put(key, entry)
	}

	// Reverse keys keep the obfuscated owner so members of different
	// classes sharing a readable name never clash.
	it := table.entries.Iterator()
	for it.Next() {
		key := it.Key().(Key)
		entry := it.Value().(Entry)
		reverseKey := Key{Kind: key.Kind, Owner: key.Owner, Name: entry.Readable}
		table.reverse[reverseKey] = append(table.reverse[reverseKey], key)
	}

	return &table
}

// Len returns the number of mapped elements.
func (t *SymbolTable) Len() int {
	return len(t.forward)
}

// Lookup returns the entry mapped for key.
func (t *SymbolTable) Lookup(key Key) (Entry, bool) {
	entry, ok := t.forward[key]
	return entry, ok
}

// Map returns the readable name of key, or false when key is not mapped.
func (t *SymbolTable) Map(key Key) (string, bool) {
	entry, ok := t.forward[key]
	if !ok {
		return "", false
	}
	return entry.Readable, true
}

// MapClass returns the readable name of an obfuscated class, or the name
// itself when the class is not mapped.
func (t *SymbolTable) MapClass(name string) string {
	if readable, ok := t.Map(ClassKey(name)); ok {
		return readable
	}
	return name
}

// Unmap returns the obfuscated name whose readable name under owner is
// readable. A readable name shared by several elements is reported as an
// AmbiguousMappingError instead of picking one.
func (t *SymbolTable) Unmap(kind Kind, owner string, readable string) (string, bool, error) {
	keys := t.reverse[Key{Kind: kind, Owner: owner, Name: readable}]
	switch len(keys) {
	case 0:
		return "", false, nil
	case 1:
		return keys[0].Name, true, nil
	}

	err := AmbiguousMappingError{Kind: kind, Owner: owner, Readable: readable}
	for _, key := range keys {
		err.Candidates = append(err.Candidates, key.Name)
	}
	return "", false, &err
}

// Has reports whether readable is the output of any mapping of kind under owner.
func (t *SymbolTable) Has(kind Kind, owner string, readable string) bool {
	return len(t.reverse[Key{Kind: kind, Owner: owner, Name: readable}]) > 0
}

// ReverseConflicts lists every readable name produced by more than one
// element, in key order.
func (t *SymbolTable) ReverseConflicts() []*AmbiguousMappingError {
	var conflicts []*AmbiguousMappingError
	for reverseKey, keys := range t.reverse {
		if len(keys) < 2 {
			continue
		}
		err := AmbiguousMappingError{Kind: reverseKey.Kind, Owner: reverseKey.Owner, Readable: reverseKey.Name}
		for _, key := range keys {
			err.Candidates = append(err.Candidates, key.Name)
		}
		conflicts = append(conflicts, &err)
	}

	sort.Slice(conflicts, func(i, j int) bool {
		a := Key{Kind: conflicts[i].Kind, Owner: conflicts[i].Owner, Name: conflicts[i].Readable}
		b := Key{Kind: conflicts[j].Kind, Owner: conflicts[j].Owner, Name: conflicts[j].Readable}
		return keyComparator(a, b) < 0
	})
	return conflicts
}

// Keys returns every mapped key in deterministic order: by owner, then
// kind, then name. Classes sort first because their owner is empty.
func (t *SymbolTable) Keys() []Key {
	keys := make([]Key, 0, t.entries.Size())
	for _, key := range t.entries.Keys() {
		keys = append(keys, key.(Key))
	}
	return keys
}

// Each calls fn for every entry in key order.
func (t *SymbolTable) Each(fn func(key Key, entry Entry)) {
	it := t.entries.Iterator()
	for it.Next() {
		fn(it.Key().(Key), it.Value().(Entry))
	}
}

// Equal reports whether both tables hold the same readable name for the
// same keys. Line numbers are not compared.
func (t *SymbolTable) Equal(other *SymbolTable) bool {
	if t.Len() != other.Len() {
		return false
	}
	for key, entry := range t.forward {
		otherEntry, ok := other.forward[key]
		if !ok || otherEntry.Readable != entry.Readable {
			return false
		}
	}
	return true
}

// Builder accumulates mappings for a SymbolTable. It is the only writer a
// table ever has.
type Builder struct {
	forward map[Key]Entry
}

func NewBuilder() *Builder {
	return &Builder{forward: make(map[Key]Entry)}
}

// Add records key -> readable. Re-adding the same value is a no-op; a
// different value fails with a DuplicateMappingError naming both lines.
func (b *Builder) Add(key Key, readable string, line int) error {
	return b.AddEntry(key, Entry{Readable: readable, Line: line})
}

func (b *Builder) AddEntry(key Key, entry Entry) error {
	if previous, ok := b.forward[key]; ok {
		if previous.Readable == entry.Readable {
			return nil
		}
		return &DuplicateMappingError{
			Key:        key,
			First:      previous.Readable,
			Second:     entry.Readable,
			FirstLine:  previous.Line,
			SecondLine: entry.Line,
		}
	}
	b.forward[key] = entry
	return nil
}

func (b *Builder) Len() int {
	return len(b.forward)
}

// Build freezes the accumulated mappings. The builder must not be used
// afterwards.
func (b *Builder) Build() *SymbolTable {
	forward := b.forward
	b.forward = nil
	return newSymbolTable(forward)
}
