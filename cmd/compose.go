package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/apex/log"
	"github.com/spf13/cobra"

	"github.com/swind/go-dexmap/mapping"
)

// newComposeCmd creates the "compose" command.
func newComposeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compose",
		Short: "Compose the configured map files into one",
		Long:  "Compose collapses the map files given by --map, --compose-chain or --chain-manifest into a single map file keyed by the first stage.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runCompose(cmd)
		},
	}

	cmd.Flags().StringP("output", "o", "", "Write the composed map here instead of stdout")
	cmd.Flags().Bool("allow-unresolved", false, "Succeed even when chain elements cannot be resolved")

	return cmd
}

func (a *app) runCompose(cmd *cobra.Command) error {
	output, _ := cmd.Flags().GetString("output")
	allowUnresolved, _ := cmd.Flags().GetBool("allow-unresolved")

	table, composeErr := a.cfg.LoadTable(cmd.Context())
	if table == nil {
		if composeErr != nil {
			return composeErr
		}
		return errors.New("no map files configured")
	}

	for _, conflict := range table.ReverseConflicts() {
		log.WithField("candidates", conflict.Candidates).Warn(conflict.Error())
	}

	var w io.Writer = cmd.OutOrStdout()
	if output != "" {
		file, err := os.Create(output)
		if err != nil {
			return err
		}
		defer file.Close()
		w = file
	}
	var writeOptions []mapping.WriterOption
	if !a.cfg.MapSource {
		writeOptions = append(writeOptions, mapping.WriteReadableFirst())
	}
	if err := mapping.WriteTo(w, table, writeOptions...); err != nil {
		return fmt.Errorf("writing composed map: %w", err)
	}

	if composeErr != nil {
		var unresolved *mapping.UnresolvedChainError
		for _, err := range unwrapAll(composeErr) {
			if errors.As(err, &unresolved) {
				log.WithField("stage", unresolved.Stage).Warn(unresolved.Error())
			}
		}
		if !allowUnresolved {
			return composeErr
		}
	}
	return nil
}

// unwrapAll flattens a joined error.
func unwrapAll(err error) []error {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		return joined.Unwrap()
	}
	return []error{err}
}
