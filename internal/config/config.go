// Package config resolves gx's settings with precedence CLI flag > GX_
// environment variable > YAML config file > built-in default, via
// spf13/viper bound to a cobra command's flags.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Verbosity is the output detail level.
type Verbosity string

const (
	Compact  Verbosity = "compact"
	Summary  Verbosity = "summary"
	Detailed Verbosity = "detailed"
	Full     Verbosity = "full"
)

// RepoDiscovery holds the §4.6 discovery tunables.
type RepoDiscovery struct {
	MaxDepth       int      `yaml:"max-depth" mapstructure:"max-depth"`
	IgnorePatterns []string `yaml:"ignore-patterns" mapstructure:"ignore-patterns"`
}

// Output holds display tunables.
type Output struct {
	Verbosity Verbosity `yaml:"verbosity"`
}

// Logging holds the sink and level for zerolog.
type Logging struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Config is gx's fully-resolved settings, matching the keys table in
// spec.md §6. The mapstructure tags are what viper's Unmarshal matches for
// hyphenated keys; the yaml tags drive WriteDefault.
type Config struct {
	DefaultUserOrg string        `yaml:"default-user-org" mapstructure:"default-user-org"`
	TokenPath      string        `yaml:"token-path" mapstructure:"token-path"`
	Jobs           string        `yaml:"jobs"` // "nproc" or a literal integer string
	Output         Output        `yaml:"output"`
	RepoDiscovery  RepoDiscovery `yaml:"repo-discovery" mapstructure:"repo-discovery"`
	Logging        Logging       `yaml:"logging"`
}

// Default returns gx's built-in defaults, used when no config file exists
// and no override is set.
func Default() Config {
	return Config{
		TokenPath: "~/.config/github/tokens/{user_or_org}",
		Output:    Output{Verbosity: Summary},
		RepoDiscovery: RepoDiscovery{
			MaxDepth:       3,
			IgnorePatterns: []string{"node_modules", ".git", "target", "build"},
		},
		Logging: Logging{Level: "info", File: "~/.local/share/gx/logs/gx.log"},
	}
}

// EnvPrefix is the environment-variable prefix gx's config binds under.
const EnvPrefix = "GX"

// New builds a Viper instance layered default < file < env < flags, per
// spec.md §6's precedence (CLI > environment > file). explicitPath, when
// non-empty, is tried before the default search locations
// (~/.config/gx/gx.yml, then ./gx.yml).
func New(cmd *cobra.Command, explicitPath string) (*viper.Viper, Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))

	if path := resolveConfigPath(explicitPath); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, Config{}, err
		}
	}

	if cmd != nil {
		if err := bindFlagsToViper(cmd, v); err != nil {
			return nil, Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, Config{}, err
	}
	return v, cfg, nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("default-user-org", d.DefaultUserOrg)
	v.SetDefault("token-path", d.TokenPath)
	v.SetDefault("jobs", d.Jobs)
	v.SetDefault("output.verbosity", string(d.Output.Verbosity))
	v.SetDefault("repo-discovery.max-depth", d.RepoDiscovery.MaxDepth)
	v.SetDefault("repo-discovery.ignore-patterns", d.RepoDiscovery.IgnorePatterns)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.file", d.Logging.File)
}

// bindFlagsToViper binds every flag on cmd to v, so a flag explicitly set
// on the command line always wins over env/file/default. Every failed bind
// is collected rather than just the first, per eos's pkg/cli aggregation
// pattern, since a caller fixing one binding error wants to see the rest
// in the same report.
func bindFlagsToViper(cmd *cobra.Command, v *viper.Viper) error {
	var result *multierror.Error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if err := v.BindPFlag(f.Name, f); err != nil {
			result = multierror.Append(result, err)
		}
	})
	return result.ErrorOrNil()
}

// resolveConfigPath returns explicitPath if set, else the first of
// ~/.config/gx/gx.yml or ./gx.yml that exists, else "".
func resolveConfigPath(explicitPath string) string {
	if explicitPath != "" {
		return explicitPath
	}

	if home, err := os.UserHomeDir(); err == nil {
		primary := filepath.Join(home, ".config", "gx", "gx.yml")
		if fileExists(primary) {
			return primary
		}
	}

	if fileExists("gx.yml") {
		return "gx.yml"
	}
	return ""
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// ExpandHome expands a leading "~/" in path to the user's home directory.
func ExpandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~/"))
}

// ExpandTokenPath substitutes {user_or_org} into a token-path template and
// expands a leading "~/".
func ExpandTokenPath(template, userOrOrg string) string {
	expanded := strings.ReplaceAll(template, "{user_or_org}", userOrOrg)
	return ExpandHome(expanded)
}

// WriteDefault writes the built-in default config as YAML to path, for a
// `gx config init`-style bootstrap (not itself a CLI subcommand in scope,
// but useful from tests and from main's first-run check).
func WriteDefault(path string) error {
	data, err := yaml.Marshal(Default())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
