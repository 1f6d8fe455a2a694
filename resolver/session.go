package resolver

import (
	"context"
	"fmt"
	"runtime"

	"github.com/apex/log"
	"golang.org/x/sync/errgroup"

	"github.com/swind/go-dexmap/anon"
	"github.com/swind/go-dexmap/hint"
	"github.com/swind/go-dexmap/mapping"
	"github.com/swind/go-dexmap/unit"
)

// SessionOptions extend Options with the anonymous class pass.
type SessionOptions struct {
	Options
	Deanonymize bool
	Plan        anon.Plan
}

// Session moves one unit from real to display names and back. A session
// is bound to the first unit it maps.
type Session struct {
	options  SessionOptions
	resolver *Resolver
	anon     *anon.Resolver
}

func NewSession(options SessionOptions) *Session {
	if options.Plan.Prefix == "" {
		options.Plan = anon.Plan{Prefix: "Anon", LevelInfix: "_Level"}
	}
	return &Session{options: options}
}

// Resolver returns the resolver built by MapSource, or nil before it.
func (s *Session) Resolver() *Resolver {
	return s.resolver
}

// MapSource deanonymizes u when configured, then renames every class,
// supertype and member to its display name.
func (s *Session) MapSource(u *unit.Unit) error {
	source := u.Clone()

	resolver, err := New(s.options.Options, hint.FromUnit(source))
	if err != nil {
		return err
	}
	s.resolver = resolver

	if s.options.Deanonymize {
		table := resolver.Table()
		s.anon = anon.NewResolver(
			anon.WithPlan(s.options.Plan),
			anon.WithReserved(func(name string) bool {
				return table.Has(mapping.Class, "", name)
			}),
		)
		renames, err := s.anon.Deanonymize(u)
		if err != nil {
			return fmt.Errorf("map %s: %w", u.Name, err)
		}
		resolver.SetAnonymized(renames)
	}

	if err := resolver.RegisterUnit(source); err != nil {
		return fmt.Errorf("map %s: %w", u.Name, err)
	}

	err = u.RenameMembers(func(kind mapping.Kind, owner string, name string) (string, error) {
		return resolver.ResolveDisplay(kind, resolver.RealClass(owner), name)
	})
	if err != nil {
		return fmt.Errorf("map %s: %w", u.Name, err)
	}

	renames := make(map[string]string)
	for _, real := range referencedClasses(source) {
		display, err := resolver.ResolveDisplay(mapping.Class, "", real)
		if err != nil {
			return fmt.Errorf("map %s: %w", u.Name, err)
		}
		renames[resolver.AnonymizedClass(real)] = display
	}
	u.RenameClasses(renames)

	log.WithFields(log.Fields{"unit": u.Name, "classes": len(u.Classes)}).Debug("mapped source")
	return nil
}

// UnmapOutput renames display names in u back to real names and restores
// anonymous classes. Classes and members the unit introduces keep their
// decoded names. It needs the resolver built by MapSource when anonymous
// classes were renamed; otherwise it builds one.
func (s *Session) UnmapOutput(u *unit.Unit) error {
	if s.resolver == nil {
		if s.options.Deanonymize {
			return fmt.Errorf("unmap %s: %w", u.Name, anon.ErrNoDescriptors)
		}
		resolver, err := New(s.options.Options, hint.NewHierarchy())
		if err != nil {
			return err
		}
		s.resolver = resolver
	}
	resolver := s.resolver

	owners := make(map[string]string, len(u.Classes))
	for _, class := range u.Classes {
		real, err := resolver.resolveOutput(mapping.Class, "", class.Name)
		if err != nil {
			return fmt.Errorf("unmap %s: %w", u.Name, err)
		}
		owners[class.Name] = real
	}

	err := u.RenameMembers(func(kind mapping.Kind, owner string, name string) (string, error) {
		return resolver.resolveOutput(kind, owners[owner], name)
	})
	if err != nil {
		return fmt.Errorf("unmap %s: %w", u.Name, err)
	}

	renames := make(map[string]string)
	for _, display := range referencedClasses(u) {
		real, err := resolver.resolveOutput(mapping.Class, "", display)
		if err != nil {
			return fmt.Errorf("unmap %s: %w", u.Name, err)
		}
		renames[display] = resolver.AnonymizedClass(real)
	}
	u.RenameClasses(renames)

	if s.anon != nil {
		if _, err := s.anon.Reanonymize(u); err != nil {
			return fmt.Errorf("unmap %s: %w", u.Name, err)
		}
	}

	log.WithFields(log.Fields{"unit": u.Name, "classes": len(u.Classes)}).Debug("unmapped output")
	return nil
}

// ProcessUnits runs fn over units concurrently. Units are independent, so
// each call gets its own unit and nothing is shared between them.
func ProcessUnits(ctx context.Context, units []*unit.Unit, fn func(ctx context.Context, u *unit.Unit) error) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for _, u := range units {
		u := u
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return fn(ctx, u)
		})
	}
	return g.Wait()
}
