package cmd

import (
	"errors"
	"io"

	"github.com/apex/log"
	"github.com/spf13/cobra"

	"github.com/swind/go-dexmap/mapping"
	"github.com/swind/go-dexmap/retrace"
)

// newRetraceCmd creates the "retrace" command.
func newRetraceCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "retrace [trace-file]",
		Short: "Rewrite a stack trace with display names",
		Long:  "Retrace rewrites the frames of an obfuscated stack trace through the configured map. The trace is read from stdin when no file is given; .gz files are decompressed.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runRetrace(cmd, args)
		},
	}

	cmd.Flags().Bool("all-class-names", false, "Also rewrite qualified class names outside recognized frames")
	cmd.Flags().String("expression", "", "Frame expression replacing the built-in ones")
	cmd.Flags().String("unit", "", "Compilation unit supplying the class hierarchy")

	return cmd
}

func (a *app) runRetrace(cmd *cobra.Command, args []string) error {
	allClassNames, _ := cmd.Flags().GetBool("all-class-names")
	expression, _ := cmd.Flags().GetString("expression")
	unitPath, _ := cmd.Flags().GetString("unit")

	var opts []retrace.Option
	if allClassNames {
		opts = append(opts, retrace.AllClassNames())
	}
	if expression != "" {
		pattern, err := retrace.NewFramePattern(expression)
		if err != nil {
			return err
		}
		opts = append(opts, retrace.WithExpression(pattern))
	}

	paths, err := a.cfg.MapPaths()
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return errors.New("retrace needs a map file")
	}
	r, err := a.newResolver(cmd, unitPath)
	if err != nil {
		return err
	}

	var input io.Reader = cmd.InOrStdin()
	if len(args) == 1 {
		file, err := mapping.OpenMapFile(args[0])
		if err != nil {
			return err
		}
		defer file.Close()
		input = file
	}

	retracer := retrace.New(r, opts...)
	if err := retracer.Retrace(input, cmd.OutOrStdout()); err != nil {
		return err
	}
	for _, name := range retracer.Unresolved() {
		log.WithField("class", name).Debug("not in map")
	}
	return nil
}
