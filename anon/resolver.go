// Package anon gives anonymous classes stable readable names for the length
// of one processing pass and puts the compiler names back afterwards.
package anon

import (
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/apex/log"
	"github.com/emirpasic/gods/sets/hashset"

	"github.com/swind/go-dexmap/unit"
)

var (
	ErrNoDescriptors = errors.New("no anonymous class descriptors to restore")
	ErrWrongState    = errors.New("anonymization pass in wrong state")
)

type State int

const (
	Idle State = iota
	Scanning
	Assigning
	Restoring
	Done
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Scanning:
		return "scanning"
	case Assigning:
		return "assigning"
	case Restoring:
		return "restoring"
	case Done:
		return "done"
	}
	return "unknown"
}

// Descriptor records one renamed class of a deanonymization pass. Position
// is the class's pre-order index in the unit's nesting tree.
type Descriptor struct {
	Owner     string
	Level     int
	Ordinal   int
	Displaced bool
	Original  string
	Assigned  string
	Position  int
}

type CollisionError struct {
	Original string
	Assigned string
}

func (e *CollisionError) Error() string {
	return fmt.Sprintf("synthetic name %q for anonymous class %q is already taken", e.Assigned, e.Original)
}

type StaleDescriptorError struct {
	Descriptor Descriptor
	Found      string
	Reason     string
}

func (e *StaleDescriptorError) Error() string {
	if e.Descriptor.Original == "" {
		return "stale anonymous class descriptors: " + e.Reason
	}
	if e.Found == "" {
		return fmt.Sprintf("cannot restore %q from %q: %s", e.Descriptor.Original, e.Descriptor.Assigned, e.Reason)
	}
	return fmt.Sprintf("cannot restore %q from %q: %s (found %q)", e.Descriptor.Original, e.Descriptor.Assigned, e.Reason, e.Found)
}

type Option func(r *Resolver)

func WithPlan(plan Plan) Option {
	return func(r *Resolver) {
		r.plan = plan
	}
}

// WithReserved marks full class names that synthetic names must not take,
// such as names produced by mapping or encoding.
func WithReserved(reserved func(name string) bool) Option {
	return func(r *Resolver) {
		r.reserved = reserved
	}
}

// Resolver runs one deanonymize/reanonymize pass over one unit. It is not
// safe for concurrent use.
type Resolver struct {
	plan     Plan
	reserved func(name string) bool

	state       State
	planned     bool
	descriptors []Descriptor
	nodeCount   int
}

func NewResolver(opts ...Option) *Resolver {
	r := Resolver{plan: Plan{Prefix: "Anon", LevelInfix: "_Level"}}
	for _, opt := range opts {
		opt(&r)
	}
	return &r
}

func (r *Resolver) State() State {
	return r.state
}

func (r *Resolver) Descriptors() []Descriptor {
	return append([]Descriptor(nil), r.descriptors...)
}

// Abandon discards the descriptors of the current pass.
func (r *Resolver) Abandon() {
	r.state = Idle
	r.planned = false
	r.descriptors = nil
	r.nodeCount = 0
}

// Deanonymize renames every anonymous class of u, and every class nested in
// one, and returns the renames applied. Named classes that already hold a
// synthetic name are displaced first. u is left untouched on error.
func (r *Resolver) Deanonymize(u *unit.Unit) (map[string]string, error) {
	if r.planned || (r.state != Idle && r.state != Done) {
		return nil, fmt.Errorf("deanonymize %s: %w (%s)", u.Name, ErrWrongState, r.state)
	}

	r.state = Scanning
	t := buildTree(u)

	r.state = Assigning
	descriptors, renames, err := r.assign(t)
	if err != nil {
		r.state = Idle
		return nil, err
	}

	u.RenameClasses(renames)
	r.descriptors = descriptors
	r.nodeCount = t.size
	r.planned = true
	r.state = Done

	log.WithFields(log.Fields{
		"unit":        u.Name,
		"anonymous":   len(descriptors),
		"renamed":     len(renames),
		"tree-size":   t.size,
		"anon-prefix": r.plan.Prefix,
	}).Debug("deanonymized")
	return renames, nil
}

func (r *Resolver) assign(t *tree) ([]Descriptor, map[string]string, error) {
	var descriptors []Descriptor
	renames := make(map[string]string)
	assigned := make(map[*node]string)
	levels := make(map[*node]int)
	position := make(map[*node]int)

	index := 0
	t.walk(func(n *node) {
		position[n] = index
		index++
	})

	var err error
	t.walk(func(n *node) {
		if err != nil {
			return
		}
		if n.parent == nil {
			assigned[n] = n.name
		}
		newName := assigned[n]

		children := n.childNodes()
		segments := make(map[*node]string, len(children))

		occupied := hashset.New()
		synthetic := hashset.New()
		for _, c := range children {
			occupied.Add(c.segment)
			ordinal, ok := ordinalOf(c.segment)
			if !ok {
				continue
			}
			level := 1 + levels[n]
			levels[c] = level
			segment := r.plan.Name(ordinal, level)
			segments[c] = segment
			synthetic.Add(segment)

			descriptors = append(descriptors, Descriptor{
				Owner:    n.name,
				Level:    level,
				Ordinal:  ordinal,
				Original: c.name,
				Assigned: newName + "$" + segment,
				Position: position[c],
			})
		}

		for _, c := range children {
			if _, ok := segments[c]; ok {
				continue
			}
			if !synthetic.Contains(c.segment) {
				segments[c] = c.segment
				continue
			}
			displaced := displacedSegment(c.segment, occupied, synthetic)
			occupied.Add(displaced)
			segments[c] = displaced
			descriptors = append(descriptors, Descriptor{
				Owner:     n.name,
				Displaced: true,
				Original:  c.name,
				Assigned:  newName + "$" + displaced,
				Position:  position[c],
			})
		}

		for _, c := range children {
			assigned[c] = newName + "$" + segments[c]
			if assigned[c] != c.name {
				renames[c.name] = assigned[c]
			}
			if _, anonymous := levels[c]; anonymous && r.reserved != nil && r.reserved(assigned[c]) {
				err = &CollisionError{Original: c.name, Assigned: assigned[c]}
				return
			}
		}
	})
	if err != nil {
		return nil, nil, err
	}

	sort.Slice(descriptors, func(i, j int) bool {
		return descriptors[i].Position < descriptors[j].Position
	})
	return descriptors, renames, nil
}

func ordinalOf(segment string) (int, bool) {
	if !isAnonymous(segment) {
		return 0, false
	}
	ordinal, err := strconv.Atoi(segment)
	return ordinal, err == nil
}

func displacedSegment(segment string, occupied *hashset.Set, synthetic *hashset.Set) string {
	for k := 1; ; k++ {
		candidate := segment + "_Displaced" + strconv.Itoa(k)
		if !occupied.Contains(candidate) && !synthetic.Contains(candidate) {
			return candidate
		}
	}
}

// Reanonymize puts back the names recorded by Deanonymize and discards the
// descriptors. The unit must still have the shape it had after
// Deanonymize, otherwise a StaleDescriptorError is returned and u is left
// untouched.
func (r *Resolver) Reanonymize(u *unit.Unit) (map[string]string, error) {
	switch {
	case r.state != Done && r.state != Idle:
		return nil, fmt.Errorf("reanonymize %s: %w (%s)", u.Name, ErrWrongState, r.state)
	case !r.planned:
		return nil, fmt.Errorf("reanonymize %s: %w", u.Name, ErrNoDescriptors)
	}

	r.state = Restoring
	t := buildTree(u)
	nodes := make([]*node, 0, t.size)
	t.walk(func(n *node) {
		nodes = append(nodes, n)
	})

	if len(nodes) != r.nodeCount {
		r.state = Done
		return nil, &StaleDescriptorError{
			Reason: fmt.Sprintf("unit has %d nested names, expected %d", len(nodes), r.nodeCount),
		}
	}

	originals := make(map[*node]string, len(r.descriptors))
	for _, d := range r.descriptors {
		n := nodes[d.Position]
		if n.name != d.Assigned {
			r.state = Done
			return nil, &StaleDescriptorError{Descriptor: d, Found: n.name, Reason: "class was renamed or moved"}
		}
		originals[n] = d.Original[len(d.Owner)+1:]
	}

	renames := make(map[string]string)
	restored := make(map[*node]string, len(nodes))
	for _, n := range nodes {
		switch {
		case n.parent == nil:
			restored[n] = n.name
		case originals[n] != "":
			restored[n] = restored[n.parent] + "$" + originals[n]
		default:
			restored[n] = restored[n.parent] + "$" + n.segment
		}
		if restored[n] != n.name {
			renames[n.name] = restored[n]
		}
	}

	u.RenameClasses(renames)
	log.WithFields(log.Fields{
		"unit":     u.Name,
		"restored": len(renames),
	}).Debug("reanonymized")

	r.descriptors = nil
	r.planned = false
	r.nodeCount = 0
	r.state = Done
	return renames, nil
}
