// Copyright 2026 The OpenBug Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands builds the openbug command tree.
package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/pflag"

	"github.com/openbug-ai/cli/cmd/openbug/cli"
	"github.com/openbug-ai/cli/lib/config"
	"github.com/openbug-ai/cli/lib/version"
)

// Root returns the complete command tree.
func Root() *cli.Command {
	return &cli.Command{
		Name: "openbug",
		Description: `openbug: debug running services with an AI assistant.

Wrap each service with "openbug attach" so its output reaches the local
relay, then open "openbug chat" to ask questions. The assistant reads
the services' logs and code through tool calls answered on this machine.`,
		Subcommands: []*cli.Command{
			relayCommand(),
			attachCommand(),
			chatCommand(),
			projectsCommand(),
			logsCommand(),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func(args []string) error {
					fmt.Printf("openbug %s\n", version.Full())
					return nil
				},
			},
		},
	}
}

// commonFlags are accepted by every command that reads configuration.
type commonFlags struct {
	configPath string
	verbose    bool
}

func (f *commonFlags) register(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&f.configPath, "config", "", "configuration file (default: $"+config.EnvVar+", then built-in defaults)")
	flagSet.BoolVarP(&f.verbose, "verbose", "v", false, "log at debug level")
}

// level is Debug with --verbose and normal otherwise.
func (f *commonFlags) level(normal slog.Level) slog.Level {
	if f.verbose {
		return slog.LevelDebug
	}
	return normal
}

// load reads and validates the configuration.
func (f *commonFlags) load() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if f.configPath != "" {
		cfg, err = config.LoadFile(f.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		source := cfg.Path
		if source == "" {
			source = "defaults"
		}
		return nil, fmt.Errorf("invalid configuration (%s):\n%w", source, err)
	}
	return cfg, nil
}

func noArgs(args []string) error {
	if len(args) > 0 {
		return fmt.Errorf("unexpected argument %q", args[0])
	}
	return nil
}
