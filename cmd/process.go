package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/apex/log"
	"github.com/spf13/cobra"

	"github.com/swind/go-dexmap/resolver"
	"github.com/swind/go-dexmap/unit"
)

// newProcessCmd creates the "process" command.
func newProcessCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "process <unit.yaml>...",
		Short: "Map compilation units to display names",
		Long: "Process deanonymizes and maps each unit to display names and writes it to the output directory. " +
			"With --unmap-output the mapped unit, or its patched counterpart from --patched, is mapped back and " +
			"written next to it as <name>.unmapped.yaml.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runProcess(cmd, args)
		},
	}

	cmd.Flags().StringP("output", "o", "", "Output directory (required)")
	cmd.Flags().String("patched", "", "Directory holding patched units to unmap, by file name")
	cmd.MarkFlagRequired("output")

	return cmd
}

func (a *app) runProcess(cmd *cobra.Command, args []string) error {
	outputDir, _ := cmd.Flags().GetString("output")
	patchedDir, _ := cmd.Flags().GetString("patched")

	table, err := a.cfg.LoadTable(cmd.Context())
	if err != nil {
		return err
	}
	options, err := a.cfg.SessionOptions(table)
	if err != nil {
		return err
	}

	units := make([]*unit.Unit, 0, len(args))
	fileNames := make(map[*unit.Unit]string, len(args))
	for _, path := range args {
		u, err := unit.LoadFile(path)
		if err != nil {
			return err
		}
		units = append(units, u)
		fileNames[u] = filepath.Base(path)
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return err
	}

	unmap := a.cfg.UnmapOutput
	return resolver.ProcessUnits(cmd.Context(), units, func(ctx context.Context, u *unit.Unit) error {
		fileName := fileNames[u]
		session := resolver.NewSession(options)

		if err := session.MapSource(u); err != nil {
			return err
		}
		if err := saveUnit(u, filepath.Join(outputDir, fileName)); err != nil {
			return err
		}
		if !unmap {
			return nil
		}

		output := u.Clone()
		if patchedDir != "" {
			patched, err := unit.LoadFile(filepath.Join(patchedDir, fileName))
			if err != nil {
				return err
			}
			output = patched
		}
		if err := session.UnmapOutput(output); err != nil {
			return err
		}
		return saveUnit(output, filepath.Join(outputDir, unmappedName(fileName)))
	})
}

func unmappedName(fileName string) string {
	ext := filepath.Ext(fileName)
	return strings.TrimSuffix(fileName, ext) + ".unmapped" + ext
}

func saveUnit(u *unit.Unit, path string) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, file.Close())
	}()

	if err := u.Save(file); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	log.WithFields(log.Fields{"unit": u.Name, "path": path}).Info("wrote unit")
	return nil
}
