package mapping

import (
	"errors"
	"sort"

	"github.com/apex/log"
	"github.com/emirpasic/gods/sets/linkedhashset"
)

// Chain is an ordered list of tables modelling successive deobfuscation
// passes: the readable output of stage i is the obfuscated input of stage
// i+1.
type Chain []*SymbolTable

func (c Chain) Compose() (*SymbolTable, error) {
	return Compose(c)
}

// Compose collapses a chain into one table that renames like applying the
// stages in order.
//
// A stage renames only what it lists, so an element a later stage does not
// mention keeps the name it had. The composite holds every first-stage key
// followed through the later stages, plus every later key still reached by
// some element under the names it has at that stage. Members are looked up
// under the name their owner has at that stage; a member keyed under one
// of its owner's earlier names, which no class carries any more, fails
// with an UnresolvedChainError. Such elements are left out of the returned
// table, and all of their errors are returned joined alongside it.
// Elements that end up with their own name are not listed.
func Compose(chain Chain) (*SymbolTable, error) {
	c := composition{
		classes: make(map[string]Entry),
		members: make(map[Key]Entry),
		failed:  make(map[Key]bool),
	}
	for i, stage := range chain {
		c.apply(i, stage)
	}

	table := c.table()
	if len(c.errs) > 0 {
		log.WithFields(log.Fields{"stages": len(chain), "unresolved": len(c.errs)}).Warn("composite map has unresolved elements")
		return table, errors.Join(c.errs...)
	}

	log.WithFields(log.Fields{"stages": len(chain), "entries": table.Len()}).Debug("composed map chain")
	return table, nil
}

// composition is a chain folded up to some stage, keyed by the names
// elements had before the first stage.
type composition struct {
	applied Chain
	classes map[string]Entry
	members map[Key]Entry
	failed  map[Key]bool
	errs    []error
}

func (c *composition) currentClass(name string) string {
	if entry, ok := c.classes[name]; ok {
		return entry.Readable
	}
	return name
}

// origins returns every class currently named name. reverse indexes the
// renamed classes by current name.
func (c *composition) origins(reverse map[string][]string, name string) []string {
	origins := reverse[name]
	if _, renamed := c.classes[name]; !renamed {
		origins = append(origins[:len(origins):len(origins)], name)
	}
	return origins
}

// ownerNames lists the names class name had after each applied stage,
// oldest first.
func (c *composition) ownerNames(name string) []string {
	names := linkedhashset.New(name)
	for _, stage := range c.applied {
		name = stage.MapClass(name)
		names.Add(name)
	}

	values := names.Values()
	result := make([]string, len(values))
	for i, value := range values {
		result[i] = value.(string)
	}
	return result
}

func (c *composition) apply(index int, stage *SymbolTable) {
	reverse := make(map[string][]string, len(c.classes))
	for original, entry := range c.classes {
		reverse[entry.Readable] = append(reverse[entry.Readable], original)
	}

	// Members first: they are looked up under their owner's name before
	// this stage renames it.
	keys := make([]Key, 0, len(c.members))
	for key := range c.members {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keyComparator(keys[i], keys[j]) < 0 })

	for _, key := range keys {
		entry := c.members[key]
		owner := c.currentClass(key.Owner)
		if readable, ok := stage.Map(MemberKey(key.Kind, owner, entry.Readable)); ok {
			entry.Readable = readable
			c.members[key] = entry
			continue
		}
		if err := c.staleOwner(index, stage, reverse, key, owner, entry.Readable); err != nil {
			c.errs = append(c.errs, err)
			c.failed[key] = true
			delete(c.members, key)
		}
	}

	carried := make(map[Key]Entry)
	stage.Each(func(key Key, entry Entry) {
		if key.Kind == Class {
			return
		}
		for _, original := range c.origins(reverse, key.Owner) {
			origin := MemberKey(key.Kind, original, key.Name)
			if _, ok := c.members[origin]; ok || c.failed[origin] {
				continue
			}
			carried[origin] = entry
		}
	})
	for key, entry := range carried {
		c.members[key] = entry
	}

	for original, entry := range c.classes {
		entry.Readable = stage.MapClass(entry.Readable)
		c.classes[original] = entry
	}
	stage.Each(func(key Key, entry Entry) {
		if key.Kind != Class {
			return
		}
		if _, ok := c.classes[key.Name]; !ok {
			c.classes[key.Name] = entry
		}
	})

	c.applied = append(c.applied, stage)
}

// staleOwner reports a member the stage keys under an earlier name of its
// owner instead of the current one.
func (c *composition) staleOwner(index int, stage *SymbolTable, reverse map[string][]string, key Key, owner string, name string) error {
	for _, stale := range c.ownerNames(key.Owner) {
		if stale == owner || len(c.origins(reverse, stale)) > 0 {
			continue
		}
		if _, ok := stage.Map(MemberKey(key.Kind, stale, name)); ok {
			return &UnresolvedChainError{
				Key:           key,
				Stage:         index,
				Name:          name,
				ExpectedOwner: owner,
				FoundOwner:    stale,
			}
		}
	}
	return nil
}

func (c *composition) table() *SymbolTable {
	builder := NewBuilder()
	for name, entry := range c.classes {
		if entry.Readable != name {
			builder.AddEntry(ClassKey(name), entry)
		}
	}
	for key, entry := range c.members {
		if entry.Readable != key.Name {
			builder.AddEntry(key, entry)
		}
	}
	return builder.Build()
}
