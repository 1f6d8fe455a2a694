// Package resolver answers name queries for one compilation unit: which
// display name a real element gets, which real element a display name
// denotes, and whether an element is flagged obfuscated.
package resolver

import (
	"fmt"
	"strings"

	"github.com/apex/log"

	"github.com/swind/go-dexmap/encoder"
	"github.com/swind/go-dexmap/hint"
	"github.com/swind/go-dexmap/mapping"
	"github.com/swind/go-dexmap/unit"
)

const classScope = "class"

// Options select the transformations between real and display names.
type Options struct {
	// Table maps obfuscated names to readable ones. Nil disables mapping.
	Table *mapping.SymbolTable
	// Encode escapes display names with Rule. Selected elements get the
	// full rule and the rest only have illegal names escaped. Without any
	// selection every element gets the full rule.
	Encode   bool
	Rule     encoder.Rule
	Patterns hint.Patterns
	// EncodeObfuscatedClasses and EncodeObfuscatedMembers select the
	// elements flagged by Patterns.
	EncodeObfuscatedClasses bool
	EncodeObfuscatedMembers bool
	// EncodeMap selects the elements whose real names it maps. Its
	// readable names are not used.
	EncodeMap *mapping.SymbolTable
}

func (o Options) selective() bool {
	return (o.EncodeObfuscatedClasses && o.Patterns.Class != nil) ||
		(o.EncodeObfuscatedMembers && !o.Patterns.Empty()) ||
		o.EncodeMap != nil
}

func (o Options) listed(key mapping.Key) bool {
	if o.EncodeMap == nil {
		return false
	}
	_, ok := o.EncodeMap.Map(key)
	return ok
}

type UnknownSymbolError struct {
	Kind   mapping.Kind
	Owner  string
	Name   string
	Reason string
}

func (e *UnknownSymbolError) Error() string {
	key := mapping.Key{Kind: e.Kind, Owner: e.Owner, Name: e.Name}
	return fmt.Sprintf("unknown symbol %s: %s", key, e.Reason)
}

// Resolver is built per unit and is not safe for concurrent use.
type Resolver struct {
	table   *mapping.SymbolTable
	encode  bool
	options Options
	full    *encoder.Encoder
	lenient *encoder.Encoder
	matcher *hint.Matcher

	anonymized   map[string]string
	deanonymized map[string]string
	index        *encoder.Index

	// Classes and packages declared by registered units.
	declared map[string]bool
	packages map[string]bool
}

// New returns a resolver over hierarchy, which holds the real names of the
// unit's classes.
func New(opts Options, hierarchy *hint.Hierarchy) (*Resolver, error) {
	r := Resolver{
		table:        opts.Table,
		encode:       opts.Encode,
		options:      opts,
		matcher:      hint.NewMatcher(hierarchy, opts.Patterns),
		anonymized:   make(map[string]string),
		deanonymized: make(map[string]string),
		index:        encoder.NewIndex(),
		declared:     make(map[string]bool),
		packages:     make(map[string]bool),
	}
	if r.table == nil {
		r.table = mapping.NewBuilder().Build()
	}

	if opts.Encode {
		var err error
		if r.full, err = encoder.New(opts.Rule); err != nil {
			return nil, err
		}
		lenientRule := opts.Rule
		lenientRule.EscapeIllegalOnly = true
		if r.lenient, err = encoder.New(lenientRule); err != nil {
			return nil, err
		}
	}
	return &r, nil
}

// SetAnonymized records the synthetic names given to anonymous classes.
func (r *Resolver) SetAnonymized(renames map[string]string) {
	r.anonymized = make(map[string]string, len(renames))
	r.deanonymized = make(map[string]string, len(renames))
	for real, synthetic := range renames {
		r.anonymized[real] = synthetic
		r.deanonymized[synthetic] = real
	}
}

// RealClass returns the real name of a class currently carrying its
// synthetic anonymous name.
func (r *Resolver) RealClass(name string) string {
	if real, ok := r.deanonymized[name]; ok {
		return real
	}
	return name
}

// AnonymizedClass returns the synthetic name of an anonymous class, or name.
func (r *Resolver) AnonymizedClass(name string) string {
	if synthetic, ok := r.anonymized[name]; ok {
		return synthetic
	}
	return name
}

func (r *Resolver) Table() *mapping.SymbolTable {
	return r.table
}

func (r *Resolver) IsFlaggedObfuscated(kind mapping.Kind, path string) (bool, error) {
	if kind == mapping.Class {
		return r.matcher.IsObfuscatedClass(path)
	}
	split := strings.LastIndex(path, ".")
	if split < 0 {
		return false, &UnknownSymbolError{Kind: kind, Name: path, Reason: "member path has no owner"}
	}
	return r.matcher.IsObfuscatedMember(path[:split], path[split+1:])
}

// ResolveDisplay returns the name the element real is shown as: its mapped
// name, else its synthetic anonymous name, else itself, encoded when
// encoding is on. ownerPath is the real owner and is empty for classes.
func (r *Resolver) ResolveDisplay(kind mapping.Kind, ownerPath string, real string) (string, error) {
	if kind == mapping.Class {
		readable, ok := r.table.Map(mapping.ClassKey(real))
		if !ok {
			readable = r.AnonymizedClass(real)
		}
		return r.encodeClass(real, readable)
	}

	readable, ok := r.table.Map(mapping.MemberKey(kind, ownerPath, real))
	if !ok {
		readable = real
	}
	return r.encodeMember(kind, ownerPath, real, readable)
}

func (r *Resolver) encoderFor(selected bool) *encoder.Encoder {
	if selected || !r.options.selective() {
		return r.full
	}
	return r.lenient
}

func (r *Resolver) encodeClass(real string, readable string) (string, error) {
	if !r.encode {
		return readable, nil
	}
	selected := r.options.listed(mapping.ClassKey(real))
	if !selected && r.options.EncodeObfuscatedClasses {
		var err error
		if selected, err = r.matcher.IsObfuscatedClass(real); err != nil {
			return "", err
		}
	}
	packageEnd := strings.LastIndex(readable, ".") + 1
	return readable[:packageEnd] + r.encoderFor(selected).Encode(readable[packageEnd:]), nil
}

func (r *Resolver) encodeMember(kind mapping.Kind, owner string, real string, readable string) (string, error) {
	if !r.encode {
		return readable, nil
	}
	selected := r.options.listed(mapping.MemberKey(kind, owner, real))
	if !selected && r.options.EncodeObfuscatedMembers {
		var err error
		if selected, err = r.matcher.IsObfuscatedMember(owner, real); err != nil {
			return "", err
		}
	}
	return r.encoderFor(selected).Encode(readable), nil
}

// ResolveReal returns the real element shown as display. ownerPath is the
// real owner and is empty for classes. display must be exactly the name
// ResolveDisplay gives that element. Once a unit is registered, members of
// its classes and classes in its packages must be declared by it or named
// by the table; other classes resolve to themselves.
func (r *Resolver) ResolveReal(kind mapping.Kind, ownerPath string, display string) (string, error) {
	return r.resolveReal(kind, ownerPath, display, false)
}

// resolveOutput is ResolveReal for names a patch may have introduced.
func (r *Resolver) resolveOutput(kind mapping.Kind, ownerPath string, display string) (string, error) {
	return r.resolveReal(kind, ownerPath, display, true)
}

func (r *Resolver) resolveReal(kind mapping.Kind, ownerPath string, display string, introduced bool) (string, error) {
	if real, ok := r.index.Source(scopeOf(kind, ownerPath), display); ok {
		return real, nil
	}

	readable, err := r.decode(kind, display)
	if err != nil {
		return "", err
	}

	real, known, err := r.unmap(kind, ownerPath, readable)
	if err != nil {
		return "", err
	}
	if !known {
		if _, mapped := r.table.Map(mapping.MemberKey(kind, ownerPath, readable)); mapped {
			return "", &UnknownSymbolError{Kind: kind, Owner: ownerPath, Name: display, Reason: "names a mapped element by its obfuscated name"}
		}
		if !introduced && r.undeclared(kind, ownerPath, readable) {
			return "", &UnknownSymbolError{Kind: kind, Owner: ownerPath, Name: display, Reason: "not declared by the registered unit"}
		}
		real = readable
	}

	canonical, err := r.ResolveDisplay(kind, ownerPath, real)
	if err != nil {
		return "", err
	}
	if canonical != display {
		return "", &UnknownSymbolError{Kind: kind, Owner: ownerPath, Name: display, Reason: fmt.Sprintf("%s is displayed as %q", real, canonical)}
	}
	return real, nil
}

// unmap finds the real element whose readable name is readable through the
// table or, for classes, the synthetic anonymous names.
func (r *Resolver) unmap(kind mapping.Kind, ownerPath string, readable string) (string, bool, error) {
	real, ok, err := r.table.Unmap(kind, ownerPath, readable)
	if err != nil || ok {
		return real, ok, err
	}
	if kind == mapping.Class {
		if real, ok := r.deanonymized[readable]; ok {
			return real, true, nil
		}
	}
	return "", false, nil
}

// undeclared reports whether the registered unit owns the namespace of
// name, so that an element it does not index cannot exist.
func (r *Resolver) undeclared(kind mapping.Kind, ownerPath string, name string) bool {
	if kind == mapping.Class {
		return r.packages[packageOf(name)]
	}
	return r.declared[ownerPath]
}

func packageOf(class string) string {
	return class[:max(strings.LastIndex(class, "."), 0)]
}

func (r *Resolver) decode(kind mapping.Kind, display string) (string, error) {
	if !r.encode {
		return display, nil
	}
	if kind != mapping.Class {
		return r.full.Decode(display)
	}
	packageEnd := strings.LastIndex(display, ".") + 1
	simple, err := r.full.Decode(display[packageEnd:])
	if err != nil {
		return "", err
	}
	return display[:packageEnd] + simple, nil
}

func scopeOf(kind mapping.Kind, owner string) string {
	if kind == mapping.Class {
		return classScope
	}
	return kind.String() + " " + owner
}

// Register computes the display name of real and records it in the
// reverse index. Two real names sharing a display name within one scope
// are an encoder.EncodingCollisionError.
func (r *Resolver) Register(kind mapping.Kind, ownerPath string, real string) (string, error) {
	display, err := r.ResolveDisplay(kind, ownerPath, real)
	if err != nil {
		return "", err
	}
	if err := r.index.Add(scopeOf(kind, ownerPath), real, display); err != nil {
		return "", err
	}
	return display, nil
}

// RegisterUnit registers every class, supertype and member of u, which
// must carry real names.
func (r *Resolver) RegisterUnit(u *unit.Unit) error {
	for _, name := range referencedClasses(u) {
		if _, err := r.Register(mapping.Class, "", name); err != nil {
			return err
		}
	}
	for _, class := range u.Classes {
		r.declared[class.Name] = true
		r.packages[packageOf(class.Name)] = true
		for _, field := range class.Fields {
			if _, err := r.Register(mapping.Field, class.Name, field.Name); err != nil {
				return err
			}
		}
		for _, method := range class.Methods {
			if _, err := r.Register(mapping.Method, class.Name, method.Name); err != nil {
				return err
			}
		}
	}
	log.WithFields(log.Fields{"unit": u.Name, "names": r.index.Len()}).Debug("registered display names")
	return nil
}

// referencedClasses lists declared classes and their supertypes once each,
// in declaration order.
func referencedClasses(u *unit.Unit) []string {
	var names []string
	seen := make(map[string]bool)
	add := func(name string) {
		if name != "" && !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	for _, class := range u.Classes {
		add(class.Name)
	}
	for _, class := range u.Classes {
		add(class.Super)
		for _, name := range class.Interfaces {
			add(name)
		}
	}
	return names
}
