package main

import (
	"io"

	"github.com/spf13/cobra"

	"albuminome/internal/config"
	"albuminome/internal/logging"
)

// cli carries state shared by the subcommands.
type cli struct {
	stdout io.Writer
	stderr io.Writer
	getenv func(string) string

	configPath string
	logLevel   string
	dataDir    string
}

func newRootCmd(stdout, stderr io.Writer, getenv func(string) string) *cobra.Command {
	c := &cli{stdout: stdout, stderr: stderr, getenv: getenv}
	root := &cobra.Command{
		Use:           "albuminome",
		Short:         "Explore albumin-bound and co-removed proteins across studies",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "YAML configuration file")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "override the configured log level")
	root.PersistentFlags().StringVar(&c.dataDir, "data-dir", "", "read the reference tables from this directory")
	root.AddCommand(c.serveCmd(), c.exploreCmd(), c.vocabularyCmd())
	return root
}

// loadConfig resolves the configuration from file, environment and flags.
func (c *cli) loadConfig() (config.Config, error) {
	cfg, err := config.Load(c.configPath, c.getenv)
	if err != nil {
		return config.Config{}, err
	}
	if c.logLevel != "" {
		cfg.Logging.Level = c.logLevel
	}
	if c.dataDir != "" {
		cfg.Blob.Driver = "fs"
		cfg.Blob.FSRoot = c.dataDir
	}
	return cfg, nil
}

// newLogger builds the zap logger writing to stderr so command output on
// stdout stays machine-readable.
func (c *cli) newLogger(cfg config.Config) (*logging.Logger, error) {
	return logging.New(logging.Config{Level: cfg.Logging.Level, Encoding: cfg.Logging.Encoding, Output: c.stderr})
}
