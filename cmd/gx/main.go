// Command gx coordinates file edits, commits, and pull requests across a
// fleet of git repositories discovered under the working tree.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/scottidler/gx/internal/config"
)

var (
	cfgFile   string
	logLevel  string
	loadedCfg config.Config
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "gx",
		Short: "Coordinate git operations across many repositories at once",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			initLogger()
			return nil
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "path to gx.yml (default: ~/.config/gx/gx.yml or ./gx.yml)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logging.level from config")

	root.AddCommand(newCreateCmd())
	root.AddCommand(newReviewCmd())
	root.AddCommand(newCleanupCmd())
	root.AddCommand(newRollbackCmd())

	return root
}

func initLogger() {
	_, cfg, err := config.New(nil, cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "gx: failed to load config: %v\n", err)
		cfg = config.Default()
	}
	loadedCfg = cfg

	level := cfg.Logging.Level
	if logLevel != "" {
		level = logLevel
	}
	parsed, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		parsed = zerolog.InfoLevel
	}

	var writer zerolog.Logger
	if cfg.Logging.File != "" {
		path := config.ExpandHome(cfg.Logging.File)
		if f, err := openLogFile(path); err == nil {
			writer = zerolog.New(f).With().Timestamp().Logger()
		} else {
			writer = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
		}
	} else {
		writer = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}

	log.Logger = writer.Level(parsed)
}

func openLogFile(path string) (*os.File, error) {
	if err := ensureParentDir(path); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
}

func ensureParentDir(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0755)
}
