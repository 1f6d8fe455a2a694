// Package cmd implements the dexmap command line.
package cmd

import (
	"fmt"
	"os"

	"github.com/apex/log"
	"github.com/apex/log/handlers/cli"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/swind/go-dexmap/anon"
	"github.com/swind/go-dexmap/config"
	"github.com/swind/go-dexmap/encoder"
)

var version = "dev"

// app carries the configuration resolved before a subcommand runs.
type app struct {
	v          *viper.Viper
	configFile string
	verbose    bool
	cfg        *config.Config
}

func (a *app) setup(cmd *cobra.Command, args []string) error {
	if err := config.ReadFile(a.v, a.configFile); err != nil {
		return fmt.Errorf("reading config: %w", err)
	}
	cfg, err := config.Load(a.v)
	if err != nil {
		return err
	}
	a.cfg = cfg

	level, _ := log.ParseLevel(cfg.LogLevel)
	if a.verbose {
		level = log.DebugLevel
	}
	log.SetHandler(cli.New(cmd.ErrOrStderr()))
	log.SetLevel(level)
	return nil
}

// NewRootCmd builds the command tree with its own viper instance.
func NewRootCmd() *cobra.Command {
	a := &app{v: config.NewViper()}

	rootCmd := &cobra.Command{
		Use:               "dexmap",
		Short:             "Identifier mapping and resolution for patched dex code",
		Long:              "dexmap composes map files, encodes identifiers and moves compilation units between obfuscated and readable names.",
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "Config file (default .dexmap.yaml in the working or home directory)")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "Log debug output")

	flags.Bool(config.KeyMapSource, true, "Read map files as obfuscated -> readable")
	flags.StringSlice(config.KeyMap, nil, "Map files, composed in order")
	flags.StringSlice(config.KeyComposeChain, nil, "Map files of a composite chain")
	flags.String(config.KeyChainManifest, "", "File listing the map files of a chain")
	flags.Bool(config.KeyEncodeSource, false, "Encode display names")
	flags.String(config.KeyObfuscatedClassPattern, "", "Regular expression for obfuscated class names")
	flags.String(config.KeyObfuscatedMemberPattern, "", "Regular expression for obfuscated member names")
	flags.Bool(config.KeyEscapeNonASCII, false, "Escape non-ASCII characters")
	flags.Bool(config.KeyEscapeReservedChars, false, "Escape reserved characters such as '$'")
	flags.String(config.KeyEncodeMarker, encoder.DefaultMarker, "Marker starting every escape")
	flags.String(config.KeyEncodeMap, "", "Map file listing elements to encode fully")
	flags.Bool(config.KeyEncodeObfuscatedClasses, true, "Encode classes matching the obfuscated class pattern fully")
	flags.Bool(config.KeyEncodeObfuscatedMembers, true, "Encode members flagged obfuscated fully")
	flags.Bool(config.KeyUnmapOutput, false, "Map the output back to obfuscated names")
	flags.Bool(config.KeyDeanonymize, false, "Rename anonymous classes before mapping")
	flags.String(config.KeyAnonPlan, anon.DefaultPlan, "Synthetic anonymous class names, as Prefix[LevelInfix]")
	flags.String(config.KeyLogLevel, "info", "Log level")

	for _, key := range []string{
		config.KeyMapSource,
		config.KeyMap,
		config.KeyComposeChain,
		config.KeyChainManifest,
		config.KeyEncodeSource,
		config.KeyObfuscatedClassPattern,
		config.KeyObfuscatedMemberPattern,
		config.KeyEscapeNonASCII,
		config.KeyEscapeReservedChars,
		config.KeyEncodeMarker,
		config.KeyEncodeMap,
		config.KeyEncodeObfuscatedClasses,
		config.KeyEncodeObfuscatedMembers,
		config.KeyUnmapOutput,
		config.KeyDeanonymize,
		config.KeyAnonPlan,
		config.KeyLogLevel,
	} {
		if err := a.v.BindPFlag(key, flags.Lookup(key)); err != nil {
			panic(fmt.Sprintf("binding flag %s: %v", key, err))
		}
	}

	rootCmd.AddCommand(newComposeCmd(a))
	rootCmd.AddCommand(newResolveCmd(a))
	rootCmd.AddCommand(newEncodeCmd(a))
	rootCmd.AddCommand(newDecodeCmd(a))
	rootCmd.AddCommand(newProcessCmd(a))
	rootCmd.AddCommand(newRetraceCmd(a))
	rootCmd.AddCommand(newConfigCmd(a))
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// newConfigCmd creates the "config" command.
func newConfigCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.cfg.Dump(cmd.OutOrStdout())
		},
	}
}

// newVersionCmd creates the "version" command.
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print dexmap version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "dexmap %s\n", version)
		},
	}
}
