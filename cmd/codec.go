package cmd

import (
	"bufio"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/swind/go-dexmap/encoder"
)

// newEncodeCmd creates the "encode" command.
func newEncodeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "encode [name...]",
		Short: "Encode identifiers",
		Long:  "Encode escapes each name into a legal identifier. Names are read one per line from stdin when none are given.",
		RunE: func(cmd *cobra.Command, args []string) error {
			illegalOnly, _ := cmd.Flags().GetBool("illegal-only")
			e, err := a.newEncoder(illegalOnly)
			if err != nil {
				return err
			}
			return eachName(cmd, args, func(name string) (string, error) {
				return e.Encode(name), nil
			})
		},
	}

	cmd.Flags().Bool("illegal-only", false, "Leave legal names without marker characters untouched")

	return cmd
}

// newDecodeCmd creates the "decode" command.
func newDecodeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "decode [name...]",
		Short: "Decode encoded identifiers",
		Long:  "Decode reverses encode. Names are read one per line from stdin when none are given.",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.newEncoder(false)
			if err != nil {
				return err
			}
			return eachName(cmd, args, e.Decode)
		},
	}
}

func (a *app) newEncoder(illegalOnly bool) (*encoder.Encoder, error) {
	rule, err := a.cfg.Rule()
	if err != nil {
		return nil, err
	}
	rule.EscapeIllegalOnly = illegalOnly
	return encoder.New(rule)
}

// eachName prints fn applied to every argument, or to every stdin line
// when there are no arguments.
func eachName(cmd *cobra.Command, args []string, fn func(name string) (string, error)) error {
	out := cmd.OutOrStdout()
	convert := func(name string) error {
		result, err := fn(name)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, result)
		return err
	}

	if len(args) > 0 {
		for _, name := range args {
			if err := convert(name); err != nil {
				return err
			}
		}
		return nil
	}

	scanner := bufio.NewScanner(cmd.InOrStdin())
	for scanner.Scan() {
		if err := convert(scanner.Text()); err != nil {
			return err
		}
	}
	return scanner.Err()
}
