// Package config holds the settings shared by every dexmap command. Values
// come from flags, DEXMAP_* environment variables and an optional
// .dexmap.yaml file, in that order of precedence.
package config

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/apex/log"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/swind/go-dexmap/anon"
	"github.com/swind/go-dexmap/encoder"
	"github.com/swind/go-dexmap/hint"
	"github.com/swind/go-dexmap/mapping"
	"github.com/swind/go-dexmap/resolver"
)

const (
	EnvPrefix = "DEXMAP"
	FileName  = ".dexmap"
)

// Keys of every setting, as used by flags, environment and config file.
const (
	KeyMapSource               = "map-source"
	KeyMap                     = "map"
	KeyComposeChain            = "compose-chain"
	KeyChainManifest           = "chain-manifest"
	KeyEncodeSource            = "encode-source"
	KeyObfuscatedClassPattern  = "obfuscated-class-pattern"
	KeyObfuscatedMemberPattern = "obfuscated-member-pattern"
	KeyEscapeNonASCII          = "escape-non-ascii"
	KeyEscapeReservedChars     = "escape-reserved-chars"
	KeyUnmapOutput             = "unmap-output"
	KeyDeanonymize             = "deanonymize"
	KeyAnonPlan                = "anon-plan"
	KeyEncodeMarker            = "encode-marker"
	KeyEncodeMap               = "encode-map"
	KeyEncodeObfuscatedClasses = "encode-obfuscated-classes"
	KeyEncodeObfuscatedMembers = "encode-obfuscated-members"
	KeyLogLevel                = "log-level"
)

type Config struct {
	// MapSource reads map files as obfuscated -> readable. When false they
	// are read the other way round, as ProGuard writes them.
	MapSource     bool     `yaml:"map-source" mapstructure:"map-source"`
	Maps          []string `yaml:"map,omitempty" mapstructure:"map"`
	ComposeChain  []string `yaml:"compose-chain,omitempty" mapstructure:"compose-chain"`
	ChainManifest string   `yaml:"chain-manifest,omitempty" mapstructure:"chain-manifest"`

	EncodeSource            bool   `yaml:"encode-source" mapstructure:"encode-source"`
	ObfuscatedClassPattern  string `yaml:"obfuscated-class-pattern,omitempty" mapstructure:"obfuscated-class-pattern"`
	ObfuscatedMemberPattern string `yaml:"obfuscated-member-pattern,omitempty" mapstructure:"obfuscated-member-pattern"`
	EscapeNonASCII          bool   `yaml:"escape-non-ascii" mapstructure:"escape-non-ascii"`
	EscapeReservedChars     bool   `yaml:"escape-reserved-chars" mapstructure:"escape-reserved-chars"`
	EncodeMarker            string `yaml:"encode-marker" mapstructure:"encode-marker"`
	// EncodeMap names a map file whose obfuscated names are always
	// encoded with the full rule.
	EncodeMap               string `yaml:"encode-map,omitempty" mapstructure:"encode-map"`
	EncodeObfuscatedClasses bool   `yaml:"encode-obfuscated-classes" mapstructure:"encode-obfuscated-classes"`
	EncodeObfuscatedMembers bool   `yaml:"encode-obfuscated-members" mapstructure:"encode-obfuscated-members"`

	UnmapOutput bool   `yaml:"unmap-output" mapstructure:"unmap-output"`
	Deanonymize bool   `yaml:"deanonymize" mapstructure:"deanonymize"`
	AnonPlan    string `yaml:"anon-plan" mapstructure:"anon-plan"`

	LogLevel string `yaml:"log-level" mapstructure:"log-level"`
}

var defaults = map[string]interface{}{
	KeyMapSource:    true,
	KeyEncodeMarker: encoder.DefaultMarker,
	KeyAnonPlan:     anon.DefaultPlan,
	KeyLogLevel:     "info",

	KeyEncodeObfuscatedClasses: true,
	KeyEncodeObfuscatedMembers: true,
}

// NewViper returns a viper instance with defaults, environment binding and
// the optional config file search set up.
func NewViper() *viper.Viper {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName(FileName)
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(home)
	}
	return v
}

// ReadFile reads path, or the first .dexmap.yaml found when path is empty.
// A missing default file is not an error.
func ReadFile(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(path)
		return v.ReadInConfig()
	}
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return err
	}
	log.WithField("file", v.ConfigFileUsed()).Debug("using config file")
	return nil
}

func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if len(c.Maps) > 0 && len(c.ComposeChain) > 0 {
		return fmt.Errorf("%s and %s are mutually exclusive", KeyMap, KeyComposeChain)
	}
	if _, err := c.Rule(); err != nil {
		return err
	}
	if _, err := c.Patterns(); err != nil {
		return err
	}
	if _, err := c.Plan(); err != nil {
		return err
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%s: %w", KeyLogLevel, err)
	}
	return nil
}

func (c *Config) Rule() (encoder.Rule, error) {
	rule := encoder.DefaultRule()
	if c.EncodeMarker != "" {
		rule.Marker = c.EncodeMarker
	}
	rule.EscapeNonASCII = c.EscapeNonASCII
	rule.EscapeReservedChars = c.EscapeReservedChars
	if err := rule.Validate(); err != nil {
		return encoder.Rule{}, fmt.Errorf("%s: %w", KeyEncodeMarker, err)
	}
	return rule, nil
}

func (c *Config) Patterns() (hint.Patterns, error) {
	return hint.Compile(c.ObfuscatedClassPattern, c.ObfuscatedMemberPattern)
}

func (c *Config) Plan() (anon.Plan, error) {
	return anon.ParsePlan(c.AnonPlan)
}

func (c *Config) ReaderOptions() []mapping.ReaderOption {
	if c.MapSource {
		return nil
	}
	return []mapping.ReaderOption{mapping.ReadableFirst()}
}

// MapPaths returns the map files to compose, in chain order. The chain
// manifest is used when neither map nor compose-chain is set.
func (c *Config) MapPaths() ([]string, error) {
	switch {
	case len(c.ComposeChain) > 0:
		return c.ComposeChain, nil
	case len(c.Maps) > 0:
		return c.Maps, nil
	case c.ChainManifest != "":
		file, err := os.Open(c.ChainManifest)
		if err != nil {
			return nil, err
		}
		defer file.Close()
		return mapping.LoadChainManifest(file, filepath.Dir(c.ChainManifest))
	}
	return nil, nil
}

// LoadTable loads and composes the configured map files. It returns nil
// when no map file is configured.
func (c *Config) LoadTable(ctx context.Context) (*mapping.SymbolTable, error) {
	paths, err := c.MapPaths()
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, nil
	}
	return mapping.LoadChain(ctx, paths, c.ReaderOptions()...)
}

func (c *Config) SessionOptions(table *mapping.SymbolTable) (resolver.SessionOptions, error) {
	rule, err := c.Rule()
	if err != nil {
		return resolver.SessionOptions{}, err
	}
	patterns, err := c.Patterns()
	if err != nil {
		return resolver.SessionOptions{}, err
	}
	plan, err := c.Plan()
	if err != nil {
		return resolver.SessionOptions{}, err
	}
	var encodeMap *mapping.SymbolTable
	if c.EncodeMap != "" {
		if encodeMap, err = mapping.LoadFile(c.EncodeMap, c.ReaderOptions()...); err != nil {
			return resolver.SessionOptions{}, fmt.Errorf("%s: %w", KeyEncodeMap, err)
		}
	}
	return resolver.SessionOptions{
		Options: resolver.Options{
			Table:                   table,
			Encode:                  c.EncodeSource,
			Rule:                    rule,
			Patterns:                patterns,
			EncodeObfuscatedClasses: c.EncodeObfuscatedClasses,
			EncodeObfuscatedMembers: c.EncodeObfuscatedMembers,
			EncodeMap:               encodeMap,
		},
		Deanonymize: c.Deanonymize,
		Plan:        plan,
	}, nil
}

// Dump writes the effective configuration as YAML.
func (c *Config) Dump(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return err
	}
	return enc.Close()
}
