package main

import (
	"github.com/getpup/streamcoord/internal/config"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configFile string
	logLevel   string
	signalsOut string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "streamcoord",
		Short: "Coordinate runtime changes of running stream-processing pipelines",
		Long: `streamcoord validates, sequences and enacts commands against running
pipelines: algorithm and parameter changes, lifecycle transitions, load
shedding, replay and parallelism changes backed by task reallocation.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "Config file (.yaml, .yml or .toml)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level, overrides the config file")
	cmd.PersistentFlags().StringVar(&opts.signalsOut, "signals-out", "-", "File receiving signals as JSON lines (-: stdout, stderr for submit)")

	cmd.AddCommand(
		newServeCommand(opts),
		newSubmitCommand(opts),
		newMigrateCommand(opts),
		newVersionCommand(),
	)

	return cmd
}

func (o *rootOptions) load() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if o.configFile == "" {
		cfg = config.Default()
		err = cfg.Adjust()
	} else {
		cfg, err = config.Load(o.configFile)
	}
	if err != nil {
		return nil, err
	}

	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	return cfg, nil
}
