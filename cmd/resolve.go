package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/swind/go-dexmap/hint"
	"github.com/swind/go-dexmap/mapping"
	"github.com/swind/go-dexmap/resolver"
	"github.com/swind/go-dexmap/unit"
)

// newResolveCmd creates the "resolve" command.
func newResolveCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve <class|field|method> [owner] <name>",
		Short: "Resolve one identifier",
		Long: "Resolve prints the display name of a real identifier, or with --real the real name of a display identifier. " +
			"Members take their real owner class before the name.",
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runResolve(cmd, args)
		},
	}

	cmd.Flags().Bool("real", false, "Resolve a display name to its real name")
	cmd.Flags().Bool("flagged", false, "Print whether the identifier is flagged obfuscated")
	cmd.Flags().String("unit", "", "Compilation unit supplying the class hierarchy")

	return cmd
}

func (a *app) runResolve(cmd *cobra.Command, args []string) error {
	real, _ := cmd.Flags().GetBool("real")
	flagged, _ := cmd.Flags().GetBool("flagged")
	unitPath, _ := cmd.Flags().GetString("unit")

	kind, ok := mapping.ParseKind(args[0])
	if !ok {
		return fmt.Errorf("unknown kind %q", args[0])
	}
	var owner, name string
	switch {
	case kind == mapping.Class && len(args) == 2:
		name = args[1]
	case kind != mapping.Class && len(args) == 3:
		owner, name = args[1], args[2]
	case kind == mapping.Class:
		return fmt.Errorf("a class takes only its name, got %d arguments", len(args)-1)
	default:
		return fmt.Errorf("a %s takes an owner and a name", kind)
	}

	r, err := a.newResolver(cmd, unitPath)
	if err != nil {
		return err
	}

	var result string
	switch {
	case flagged:
		path := name
		if owner != "" {
			path = owner + "." + name
		}
		isFlagged, err := r.IsFlaggedObfuscated(kind, path)
		if err != nil {
			return err
		}
		result = fmt.Sprint(isFlagged)
	case real:
		result, err = r.ResolveReal(kind, owner, name)
	default:
		result, err = r.ResolveDisplay(kind, owner, name)
	}
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), result)
	return nil
}

// newResolver builds a resolver over the configured map. When unitPath is
// set, the unit supplies the class hierarchy and its display names are
// registered.
func (a *app) newResolver(cmd *cobra.Command, unitPath string) (*resolver.Resolver, error) {
	table, err := a.cfg.LoadTable(cmd.Context())
	if err != nil {
		return nil, err
	}
	options, err := a.cfg.SessionOptions(table)
	if err != nil {
		return nil, err
	}

	hierarchy := hint.NewHierarchy()
	var u *unit.Unit
	if unitPath != "" {
		if u, err = unit.LoadFile(unitPath); err != nil {
			return nil, err
		}
		hierarchy = hint.FromUnit(u)
	}

	r, err := resolver.New(options.Options, hierarchy)
	if err != nil {
		return nil, err
	}
	if u != nil {
		if err := r.RegisterUnit(u); err != nil {
			return nil, err
		}
	}
	return r, nil
}
